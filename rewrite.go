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
	"errors"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var errNoRoot = errors.New("index has no root page")

// LinkRewriter points every reference of a page at its local copy. It only
// reads the frozen index, so the same page always rewrites the same way.
type LinkRewriter struct {
	index  *Index
	domain string
	rootID string
}

// NewLinkRewriter prepares a rewriter over a frozen index
func NewLinkRewriter(index *Index, domain string) (*LinkRewriter, error) {
	root, ok := index.Root()
	if !ok {
		return nil, errNoRoot
	}
	return &LinkRewriter{index: index, domain: domain, rootID: root.ID}, nil
}

// prefix returns the relative path of an output directory as seen from the
// page being rewritten.
func prefix(dir string, isRoot bool) string {
	if isRoot {
		return "./" + dir + "/"
	}
	return "../" + dir + "/"
}

// RewriteDocument rewrites page, embedded file, stylesheet and image
// references of doc in place. pageURL is the remote address doc was fetched
// from; isRoot selects paths for index.html rather than a page in Pages/.
func (r *LinkRewriter) RewriteDocument(doc *html.Node, pageURL string, isRoot bool) {
	q := query(doc)
	r.rewritePageLinks(q, isRoot)
	r.rewriteEmbedded(q, isRoot)
	r.rewriteStylesheets(q, pageURL, isRoot)
	r.rewriteImages(q, isRoot)
}

// rewritePageLinks points navigation anchors at sibling page files. The
// entry of the page being viewed becomes a self reference.
func (r *LinkRewriter) rewritePageLinks(q *goquery.Document, isRoot bool) {
	q.Find("div." + currentPageClass).Each(func(_ int, div *goquery.Selection) {
		current := div.ChildrenFiltered("a").First()
		if current.Length() == 0 {
			current = div.Find("a").First()
		}
		current.SetAttr("href", "#")
	})

	navigationAnchors(q).Each(func(_ int, a *goquery.Selection) {
		onclick, _ := a.Attr("onclick")
		page, ok := r.targetPage(onclick)
		if !ok {
			return
		}

		switch {
		case isRoot && page.IsRoot():
			a.SetAttr("href", "./"+page.FileName)
		case isRoot:
			a.SetAttr("href", prefix(pagesDir, true)+page.FileName)
		case page.IsRoot():
			a.SetAttr("href", "../"+page.FileName)
		default:
			a.SetAttr("href", page.FileName)
		}
	})
}

// targetPage finds the page a navigation script switches to
func (r *LinkRewriter) targetPage(onclick string) (Page, bool) {
	id, err := PageTransitionID(onclick, r.rootID)
	if err != nil {
		return Page{}, false
	}
	return r.index.Page(id)
}

// rewriteEmbedded points anchors and images at uploaded files in Content/
func (r *LinkRewriter) rewriteEmbedded(q *goquery.Document, isRoot bool) {
	rewrite := func(s *goquery.Selection, attr string) {
		ref, ok := s.Attr(attr)
		if !ok || !isEmbeddedFileRef(ref) {
			return
		}
		id, err := EmbeddedObjectID(ref)
		if err != nil {
			return
		}
		if asset, ok := r.index.Asset(id); ok {
			s.SetAttr(attr, prefix(contentDir, isRoot)+asset.FileName)
		}
	}

	q.Find("a[href]").Each(func(_ int, a *goquery.Selection) { rewrite(a, "href") })
	q.Find("img[src]").Each(func(_ int, img *goquery.Selection) { rewrite(img, "src") })
}

// rewriteStylesheets points <link> elements at their copies in Formatting/
func (r *LinkRewriter) rewriteStylesheets(q *goquery.Document, pageURL string, isRoot bool) {
	stylesheetLinks(q).Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		address, ok := resolveRef(href, pageURL, r.domain)
		if !ok {
			return
		}
		if sheet, ok := r.index.Stylesheet(address); ok {
			link.SetAttr("href", prefix(formattingDir, isRoot)+sheet.FileName)
		}
	})
}

// rewriteImages points formatting images at their copies in Formatting/.
// The src must equal the path of the image's URL, or the src it was first
// registered under; other spellings of the same URL are not matched.
func (r *LinkRewriter) rewriteImages(q *goquery.Document, isRoot bool) {
	images := r.index.Images()
	if len(images) == 0 {
		return
	}

	q.Find("img[src]").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		if isEmbeddedFileRef(src) {
			return
		}
		for _, image := range images {
			if src == urlPath(image.URL) || src == image.Src {
				img.SetAttr("src", prefix(formattingDir, isRoot)+image.FileName)
				return
			}
		}
	})
}

// StripScripts removes every <script> element from doc
func StripScripts(doc *html.Node) {
	query(doc).Find("script").Remove()
}
