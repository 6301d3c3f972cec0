// Copyright (c) 2025 Ronan Le Meillat
//
// ePortfolio Downloader - A tool for downloading D2L ePortfolio presentations for offline viewing
//
// Author: Ronan Le Meillat
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package main

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// parseDocument parses an HTML page into a node tree
func parseDocument(body []byte) (*html.Node, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

// renderDocument serializes a node tree back to HTML
func renderDocument(doc *html.Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return nil, fmt.Errorf("failed to render HTML: %w", err)
	}
	return buf.Bytes(), nil
}

// query wraps a parsed tree for selector lookups. Selections share the
// underlying nodes, so attribute changes land in the tree.
func query(doc *html.Node) *goquery.Document {
	return goquery.NewDocumentFromNode(doc)
}

// JoinURL joins baseURL and relURL to create an absolute URL
func JoinURL(baseURL, relURL string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}

	rel, err := url.Parse(relURL)
	if err != nil {
		return ""
	}

	return base.ResolveReference(rel).String()
}

// resolveRef turns an href or src found on pageURL into an absolute address.
// Root-relative references are placed on domain. It reports false for
// references that do not name a resource, such as fragments and data URIs.
func resolveRef(ref, pageURL, domain string) (string, bool) {
	ref = strings.TrimSpace(ref)
	lower := strings.ToLower(ref)
	switch {
	case ref == "", strings.HasPrefix(ref, "#"):
		return "", false
	case strings.HasPrefix(lower, "data:"), strings.HasPrefix(lower, "javascript:"), strings.HasPrefix(lower, "mailto:"):
		return "", false
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return ref, true
	case strings.HasPrefix(ref, "//"):
		scheme := "https:"
		if strings.HasPrefix(domain, "http://") {
			scheme = "http:"
		}
		return scheme + ref, true
	case strings.HasPrefix(ref, "/"):
		return domain + ref, true
	}

	abs := JoinURL(pageURL, ref)
	return abs, abs != ""
}

// onDomain reports whether an absolute URL is served by domain
func onDomain(rawURL, domain string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	d, err := url.Parse(domain)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, d.Host)
}

// urlPath returns the path component of a URL, or "" if it cannot be parsed
func urlPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Path
}
