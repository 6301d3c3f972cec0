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
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// DiscoveredRoot is the presentation's root page as fetched during discovery
type DiscoveredRoot struct {
	Page Page
	Body []byte
	Doc  *html.Node
}

// DiscoverPages seeds the index with the presentation's own page and
// registers every sibling page reachable from its navigation menu.
//
// Only the root document is scanned: every page of a presentation carries
// the same navigation menu.
func DiscoverPages(ctx context.Context, fetcher Fetcher, domain string, pres *ObjectProperties, b *IndexBuilder) (*DiscoveredRoot, error) {
	rootID := pres.ID()
	rootURL, ok := resolveRef(pres.ViewLink, domain+"/", domain)
	if !ok {
		return nil, fmt.Errorf("presentation %s has no view link", rootID)
	}
	if err := b.SetRoot(rootID, rootURL); err != nil {
		return nil, err
	}

	body, err := fetcher.Fetch(ctx, rootURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch presentation root: %w", err)
	}
	doc, err := parseDocument(body)
	if err != nil {
		return nil, err
	}

	var addErr error
	navigationAnchors(query(doc)).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		onclick, _ := a.Attr("onclick")
		pageID, err := PageTransitionID(onclick, rootID)
		if err != nil {
			debugLog.Printf("Skipping navigation link: %v", err)
			return true
		}
		if b.HasPage(pageID) {
			return true
		}

		fileName := pageFileName(a.Text(), pageID)
		added, err := b.AddPage(pageID, withPageID(rootURL, pageID), fileName)
		if err != nil {
			addErr = err
			return false
		}
		if added {
			debugLog.Printf("Found page %s (%s)", pageID, fileName)
		}
		return true
	})
	if addErr != nil {
		return nil, addErr
	}

	return &DiscoveredRoot{Page: b.pages.items[0], Body: body, Doc: doc}, nil
}

// navigationAnchors selects the anchors that switch pages inside the
// presentation, as opposed to external or object links.
func navigationAnchors(doc *goquery.Document) *goquery.Selection {
	return doc.Find("a").FilterFunction(func(_ int, a *goquery.Selection) bool {
		href, ok := a.Attr("href")
		if !ok || href != navAnchorHref {
			return false
		}
		onclick, ok := a.Attr("onclick")
		return ok && isPageTransition(onclick)
	})
}

// withPageID appends the pageId parameter selecting one page of a presentation
func withPageID(rootURL, pageID string) string {
	sep := "?"
	if strings.Contains(rootURL, "?") {
		sep = "&"
	}
	return rootURL + sep + "pageId=" + pageID
}

// pageFileName derives a page's file name from its navigation label:
// lower-cased, spaces removed, with an .html suffix.
func pageFileName(label, pageID string) string {
	name := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(label), " ", ""))
	name = sanitizeFileName(name)
	if name == "" {
		name = "page" + pageID
	}
	return name + ".html"
}

// sanitizeFileName replaces characters that cannot appear in a file name
func sanitizeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '-'
		case '\n', '\r', '\t':
			return -1
		}
		return r
	}, name)
}
