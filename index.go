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
	"fmt"
	"path"
	"strings"
)

// Output directories of a mirror. Links written into pages use these exact
// segments so they resolve on case-sensitive filesystems.
const (
	indexFileName = "index.html"
	pagesDir      = "Pages"
	contentDir    = "Content"
	formattingDir = "Formatting"
)

// Page is one HTML page of a presentation
type Page struct {
	ID       string // platform page id (object id for the root)
	URL      string // remote address
	FileName string // local file name
	Ordinal  int    // 0 is the root, rendered as index.html
}

// IsRoot reports whether the page is the presentation's index document
func (p Page) IsRoot() bool { return p.Ordinal == 0 }

// EmbeddedAsset is a user uploaded object linked from a page
type EmbeddedAsset struct {
	ID       string
	URL      string
	FileName string
}

// Stylesheet is a platform served CSS file
type Stylesheet struct {
	URL      string
	FileName string
}

// FormattingImage is a platform served layout image
type FormattingImage struct {
	URL      string
	Src      string // literal src attribute the image was first found under
	FileName string
}

// table is an insertion ordered set keyed by identity.
type table[T any] struct {
	keys  map[string]int
	items []T
}

func newTable[T any]() table[T] {
	return table[T]{keys: make(map[string]int)}
}

func (t *table[T]) has(key string) bool {
	_, ok := t.keys[key]
	return ok
}

func (t *table[T]) get(key string) (T, bool) {
	i, ok := t.keys[key]
	if !ok {
		var zero T
		return zero, false
	}
	return t.items[i], true
}

func (t *table[T]) add(key string, item T) {
	t.keys[key] = len(t.items)
	t.items = append(t.items, item)
}

func (t *table[T]) clone() table[T] {
	c := table[T]{keys: make(map[string]int, len(t.keys)), items: make([]T, len(t.items))}
	for k, v := range t.keys {
		c.keys[k] = v
	}
	copy(c.items, t.items)
	return c
}

// fileNamer hands out unique file names within one output directory.
type fileNamer map[string]bool

func (n fileNamer) claim(name string) string {
	if !n[name] {
		n[name] = true
		return name
	}
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d%s", stem, i, ext)
		if !n[candidate] {
			n[candidate] = true
			return candidate
		}
	}
}

// IndexBuilder collects pages and resources during discovery. It is not safe
// for concurrent use.
type IndexBuilder struct {
	pages       table[Page]
	assets      table[EmbeddedAsset]
	stylesheets table[Stylesheet]
	images      table[FormattingImage]

	pageNames       fileNamer
	contentNames    fileNamer
	formattingNames fileNamer

	frozen bool
}

// NewIndexBuilder creates an empty builder
func NewIndexBuilder() *IndexBuilder {
	return &IndexBuilder{
		pages:           newTable[Page](),
		assets:          newTable[EmbeddedAsset](),
		stylesheets:     newTable[Stylesheet](),
		images:          newTable[FormattingImage](),
		pageNames:       make(fileNamer),
		contentNames:    make(fileNamer),
		formattingNames: make(fileNamer),
	}
}

// SetRoot registers the presentation's own page as ordinal 0.
func (b *IndexBuilder) SetRoot(id, url string) error {
	if b.frozen {
		return ErrIndexFrozen
	}
	if len(b.pages.items) > 0 {
		return fmt.Errorf("root page already set to %s", b.pages.items[0].ID)
	}
	b.pages.add(id, Page{ID: id, URL: url, FileName: indexFileName, Ordinal: 0})
	return nil
}

// AddPage registers a sibling page. The root must be set first. It reports
// whether a new entry was created.
func (b *IndexBuilder) AddPage(id, url, fileName string) (bool, error) {
	if b.frozen {
		return false, ErrIndexFrozen
	}
	if len(b.pages.items) == 0 {
		return false, fmt.Errorf("page %s registered before the root page", id)
	}
	if b.pages.has(id) {
		return false, nil
	}
	b.pages.add(id, Page{
		ID:       id,
		URL:      url,
		FileName: b.pageNames.claim(fileName),
		Ordinal:  len(b.pages.items),
	})
	return true, nil
}

// HasPage reports whether a page id is already known
func (b *IndexBuilder) HasPage(id string) bool { return b.pages.has(id) }

// AddAsset registers an embedded artifact keyed by its object id
func (b *IndexBuilder) AddAsset(id, url, fileName string) (bool, error) {
	if b.frozen {
		return false, ErrIndexFrozen
	}
	if b.assets.has(id) {
		return false, nil
	}
	b.assets.add(id, EmbeddedAsset{ID: id, URL: url, FileName: b.contentNames.claim(fileName)})
	return true, nil
}

// HasAsset reports whether an object id is already registered
func (b *IndexBuilder) HasAsset(id string) bool { return b.assets.has(id) }

// AddStylesheet registers a stylesheet keyed by its query-less URL
func (b *IndexBuilder) AddStylesheet(rawURL string) (bool, error) {
	if b.frozen {
		return false, ErrIndexFrozen
	}
	key := stripQuery(rawURL)
	if b.stylesheets.has(key) {
		return false, nil
	}
	b.stylesheets.add(key, Stylesheet{URL: rawURL, FileName: b.formattingNames.claim(urlFileName(rawURL))})
	return true, nil
}

// AddImage registers a formatting image keyed by its query-less URL
func (b *IndexBuilder) AddImage(rawURL, src string) (bool, error) {
	if b.frozen {
		return false, ErrIndexFrozen
	}
	key := stripQuery(rawURL)
	if b.images.has(key) {
		return false, nil
	}
	b.images.add(key, FormattingImage{URL: rawURL, Src: src, FileName: b.formattingNames.claim(urlFileName(rawURL))})
	return true, nil
}

// Freeze ends the discovery phase. The builder rejects every mutation after
// this call and the returned Index never changes.
func (b *IndexBuilder) Freeze() *Index {
	b.frozen = true
	return &Index{
		pages:       b.pages.clone(),
		assets:      b.assets.clone(),
		stylesheets: b.stylesheets.clone(),
		images:      b.images.clone(),
	}
}

// Index is the frozen, read-only view used while rewriting documents.
type Index struct {
	pages       table[Page]
	assets      table[EmbeddedAsset]
	stylesheets table[Stylesheet]
	images      table[FormattingImage]
}

// Root returns page 0
func (x *Index) Root() (Page, bool) {
	if len(x.pages.items) == 0 {
		return Page{}, false
	}
	return x.pages.items[0], true
}

// Pages returns all pages in ordinal order
func (x *Index) Pages() []Page { return append([]Page(nil), x.pages.items...) }

// Page looks up a page by id
func (x *Index) Page(id string) (Page, bool) { return x.pages.get(id) }

// Assets returns embedded artifacts in discovery order
func (x *Index) Assets() []EmbeddedAsset {
	return append([]EmbeddedAsset(nil), x.assets.items...)
}

// Asset looks up an embedded artifact by object id
func (x *Index) Asset(id string) (EmbeddedAsset, bool) { return x.assets.get(id) }

// Stylesheets returns stylesheets in discovery order
func (x *Index) Stylesheets() []Stylesheet {
	return append([]Stylesheet(nil), x.stylesheets.items...)
}

// Stylesheet looks up a stylesheet by URL, ignoring the query string
func (x *Index) Stylesheet(rawURL string) (Stylesheet, bool) {
	return x.stylesheets.get(stripQuery(rawURL))
}

// Images returns formatting images in discovery order
func (x *Index) Images() []FormattingImage {
	return append([]FormattingImage(nil), x.images.items...)
}

// stripQuery drops the query string and fragment from a URL
func stripQuery(rawURL string) string {
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}

// urlFileName returns the last path segment of a URL without its query string
func urlFileName(rawURL string) string {
	p := stripQuery(rawURL)
	return p[strings.LastIndex(p, "/")+1:]
}
