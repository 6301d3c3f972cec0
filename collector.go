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

// Collector registers the resources one page references
type Collector struct {
	Domain   string
	Builder  *IndexBuilder
	Resolver NameResolver
}

// CollectResources scans a page for embedded artifacts, stylesheets and
// formatting images. Only metadata lookup failures are returned; elements
// without a usable identifier or address are skipped.
func (c *Collector) CollectResources(ctx context.Context, doc *html.Node, pageURL string) error {
	q := query(doc)

	if err := c.collectEmbedded(ctx, q, pageURL); err != nil {
		return err
	}
	if err := c.collectStylesheets(q, pageURL); err != nil {
		return err
	}
	return c.collectImages(q, pageURL)
}

// collectEmbedded registers every uploaded file linked by an anchor or image
func (c *Collector) collectEmbedded(ctx context.Context, q *goquery.Document, pageURL string) error {
	var refs []string
	q.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		if href, _ := a.Attr("href"); isEmbeddedFileRef(href) {
			refs = append(refs, href)
		}
	})
	q.Find("img[src]").Each(func(_ int, img *goquery.Selection) {
		if src, _ := img.Attr("src"); isEmbeddedFileRef(src) {
			refs = append(refs, src)
		}
	})

	for _, ref := range refs {
		if err := c.addEmbedded(ctx, ref, pageURL); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) addEmbedded(ctx context.Context, ref, pageURL string) error {
	id, err := EmbeddedObjectID(ref)
	if err != nil {
		debugLog.Printf("Skipping embedded reference: %v", err)
		return nil
	}
	if c.Builder.HasAsset(id) {
		return nil
	}

	address, ok := resolveRef(ref, pageURL, c.Domain)
	if !ok {
		debugLog.Printf("Skipping embedded reference %q: no address", ref)
		return nil
	}

	name, err := c.Resolver.ResolveFileName(ctx, id)
	if err != nil {
		return fmt.Errorf("embedded object %s: %w", id, err)
	}

	if _, err := c.Builder.AddAsset(id, address, sanitizeFileName(name)); err != nil {
		return err
	}
	debugLog.Printf("Found embedded object %s (%s)", id, name)
	return nil
}

// collectStylesheets registers every linked CSS file
func (c *Collector) collectStylesheets(q *goquery.Document, pageURL string) error {
	var addErr error
	stylesheetLinks(q).EachWithBreak(func(_ int, link *goquery.Selection) bool {
		href, _ := link.Attr("href")
		address, ok := resolveRef(href, pageURL, c.Domain)
		if !ok || urlFileName(address) == "" {
			return true
		}
		if !onDomain(address, c.Domain) {
			debugLog.Printf("Keeping external stylesheet URL: %s", address)
			return true
		}
		added, err := c.Builder.AddStylesheet(address)
		if err != nil {
			addErr = err
			return false
		}
		if added {
			debugLog.Printf("Found stylesheet %s", address)
		}
		return true
	})
	return addErr
}

// collectImages registers platform images that are not uploaded files.
// Images on other hosts keep their remote address.
func (c *Collector) collectImages(q *goquery.Document, pageURL string) error {
	var addErr error
	q.Find("img[src]").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src, _ := img.Attr("src")
		if isEmbeddedFileRef(src) {
			return true
		}
		address, ok := resolveRef(src, pageURL, c.Domain)
		if !ok || urlFileName(address) == "" {
			return true
		}
		if !onDomain(address, c.Domain) {
			debugLog.Printf("Keeping external image URL: %s", address)
			return true
		}
		added, err := c.Builder.AddImage(address, src)
		if err != nil {
			addErr = err
			return false
		}
		if added {
			debugLog.Printf("Found formatting image %s", address)
		}
		return true
	})
	return addErr
}

// stylesheetLinks selects <link> elements that load CSS
func stylesheetLinks(q *goquery.Document) *goquery.Selection {
	return q.Find("link[href]").FilterFunction(func(_ int, link *goquery.Selection) bool {
		typ, _ := link.Attr("type")
		rel, _ := link.Attr("rel")
		return strings.EqualFold(typ, "text/css") || strings.EqualFold(strings.TrimSpace(rel), "stylesheet")
	})
}
