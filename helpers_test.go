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
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/net/html"
)

// fakeFetcher serves bodies from memory and records every request
type fakeFetcher struct {
	mu       sync.Mutex
	bodies   map[string]string
	requests []string
}

func newFakeFetcher(bodies map[string]string) *fakeFetcher {
	return &fakeFetcher{bodies: bodies}
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, url)
	body, ok := f.bodies[url]
	if !ok {
		return nil, &FetchError{URL: url, StatusCode: 404}
	}
	return []byte(body), nil
}

func (f *fakeFetcher) Download(ctx context.Context, url, destPath string) error {
	body, err := f.Fetch(ctx, url)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(destPath, body, 0644)
}

func (f *fakeFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r == url {
			n++
		}
	}
	return n
}

// fakeResolver names objects from a map
type fakeResolver struct {
	mu    sync.Mutex
	names map[string]string
	calls int
}

func (r *fakeResolver) ResolveFileName(_ context.Context, id string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	name, ok := r.names[id]
	if !ok {
		return "", fmt.Errorf("%w: object %s", ErrMetadataLookup, id)
	}
	return name, nil
}

// mustParse parses markup or fails the test
func mustParse(t *testing.T, markup string) *html.Node {
	t.Helper()
	doc, err := parseDocument([]byte(markup))
	if err != nil {
		t.Fatalf("parseDocument: %v", err)
	}
	return doc
}

// mustRender renders a parsed document or fails the test
func mustRender(t *testing.T, doc *html.Node) string {
	t.Helper()
	out, err := renderDocument(doc)
	if err != nil {
		t.Fatalf("renderDocument: %v", err)
	}
	return string(out)
}

// unifiedDiff returns a readable diff of two renderings for failure messages
func unifiedDiff(want, got string) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(want),
		B:        difflib.SplitLines(got),
		FromFile: "want",
		ToFile:   "got",
		Context:  3,
	})
	if err != nil {
		return err.Error()
	}
	return diff
}

// attrs lists the values of attr on every element matching selector
func attrs(doc *html.Node, selector, attr string) []string {
	var values []string
	query(doc).Find(selector).Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr(attr); ok {
			values = append(values, v)
		}
	})
	return values
}
