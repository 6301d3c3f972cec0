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
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Mirror downloads ePortfolio presentations for offline viewing
type Mirror struct {
	cfg      *Config
	fetcher  Fetcher
	resolver  NameResolver
	now       func() time.Time
	writeFile func(name string, data []byte, perm os.FileMode) error
}

// MirrorResult summarizes one mirrored presentation
type MirrorResult struct {
	Dir        string // mirror root directory
	Pages      int
	Assets     int // embedded files, stylesheets and images in the index
	Downloaded int // files written by the asset phase
	Failed     int // assets and CSS references that could not be fetched
}

// NewMirror creates a mirror that fetches through fetcher and names
// embedded files through resolver.
func NewMirror(cfg *Config, fetcher Fetcher, resolver NameResolver) *Mirror {
	return &Mirror{cfg: cfg, fetcher: fetcher, resolver: resolver, now: time.Now, writeFile: os.WriteFile}
}

// Run mirrors one presentation. Page and metadata failures abort the run;
// asset failures are logged and counted.
func (m *Mirror) Run(ctx context.Context, pres *ObjectProperties) (*MirrorResult, error) {
	infoLog.Printf("Mirroring presentation %s (%s)", pres.Name, pres.ID())

	index, bodies, err := m.buildIndex(ctx, pres)
	if err != nil {
		return nil, err
	}

	dir, err := m.materialize(pres.Name)
	if err != nil {
		return nil, err
	}
	infoLog.Printf("Saving presentation to: %s", dir)

	pages := index.Pages()
	if err := m.writePages(index, pages, bodies, dir); err != nil {
		// A mirror without all of its pages is not kept
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			errorLog.Printf("Failed to remove %s: %v", dir, rmErr)
		}
		return nil, err
	}

	downloaded, failed := m.downloadAssets(ctx, index, dir)

	return &MirrorResult{
		Dir:        dir,
		Pages:      len(pages),
		Assets:     len(index.Assets()) + len(index.Stylesheets()) + len(index.Images()),
		Downloaded: downloaded,
		Failed:     failed,
	}, nil
}

// buildIndex runs discovery and collection and freezes the result. The page
// bodies fetched along the way are returned for rewriting.
func (m *Mirror) buildIndex(ctx context.Context, pres *ObjectProperties) (*Index, map[string][]byte, error) {
	builder := NewIndexBuilder()
	root, err := DiscoverPages(ctx, m.fetcher, m.cfg.Domain, pres, builder)
	if err != nil {
		return nil, nil, err
	}

	collector := &Collector{Domain: m.cfg.Domain, Builder: builder, Resolver: m.resolver}
	if err := collector.CollectResources(ctx, root.Doc, root.Page.URL); err != nil {
		return nil, nil, fmt.Errorf("page %s: %w", root.Page.FileName, err)
	}

	bodies := map[string][]byte{root.Page.ID: root.Body}
	// Collection never adds pages, so the page list is stable here
	for _, page := range builder.pages.items[1:] {
		infoLog.Printf("Processing page: %s", page.FileName)
		body, err := m.fetcher.Fetch(ctx, page.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("page %s: %w", page.FileName, err)
		}
		doc, err := parseDocument(body)
		if err != nil {
			return nil, nil, fmt.Errorf("page %s: %w", page.FileName, err)
		}
		if err := collector.CollectResources(ctx, doc, page.URL); err != nil {
			return nil, nil, fmt.Errorf("page %s: %w", page.FileName, err)
		}
		bodies[page.ID] = body
	}

	index := builder.Freeze()
	infoLog.Printf("Found %d pages, %d files, %d stylesheets, %d images",
		len(index.Pages()), len(index.Assets()), len(index.Stylesheets()), len(index.Images()))
	return index, bodies, nil
}

// mirrorDirName is <name without spaces>_presentation_<HHMMSS>
func mirrorDirName(name string, now time.Time) string {
	base := sanitizeFileName(strings.ReplaceAll(name, " ", ""))
	if base == "" {
		base = "untitled"
	}
	return base + "_presentation_" + now.Format("150405")
}

// materialize creates the mirror root and its Pages, Content and Formatting
// directories. An existing mirror directory is an error.
func (m *Mirror) materialize(name string) (string, error) {
	if err := os.MkdirAll(m.cfg.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	dir := filepath.Join(m.cfg.OutputDir, mirrorDirName(name, m.now()))
	if err := os.Mkdir(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create mirror directory: %w", err)
	}
	for _, sub := range []string{pagesDir, contentDir, formattingDir} {
		if err := os.Mkdir(filepath.Join(dir, sub), 0755); err != nil {
			return "", fmt.Errorf("failed to create %s directory: %w", sub, err)
		}
	}
	return dir, nil
}

// writePage rewrites one page and saves it as index.html or Pages/<name>
func (m *Mirror) writePages(index *Index, pages []Page, bodies map[string][]byte, dir string) error {
	rewriter, err := NewLinkRewriter(index, m.cfg.Domain)
	if err != nil {
		return err
	}
	for _, page := range pages {
		if err := m.writePage(rewriter, page, bodies[page.ID], dir); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mirror) writePage(rewriter *LinkRewriter, page Page, body []byte, dir string) error {
	doc, err := parseDocument(body)
	if err != nil {
		return fmt.Errorf("page %s: %w", page.FileName, err)
	}

	rewriter.RewriteDocument(doc, page.URL, page.IsRoot())
	StripScripts(doc)

	out, err := renderDocument(doc)
	if err != nil {
		return fmt.Errorf("page %s: %w", page.FileName, err)
	}

	outputPath := filepath.Join(dir, indexFileName)
	if !page.IsRoot() {
		outputPath = filepath.Join(dir, pagesDir, page.FileName)
	}
	if err := m.writeFile(outputPath, out, 0644); err != nil {
		return fmt.Errorf("failed to write HTML file %s: %w", outputPath, err)
	}

	relPath, _ := filepath.Rel(dir, outputPath)
	infoLog.Printf("Saved HTML file: %s", relPath)
	return nil
}

// formattingFiles hands out Formatting file names and downloads each remote
// file at most once, whether it is an indexed image or found in a stylesheet.
type formattingFiles struct {
	mu    sync.Mutex
	names fileNamer
	byURL map[string]*formattingFile
}

type formattingFile struct {
	once sync.Once
	name string
	err  error
}

func newFormattingFiles(index *Index) *formattingFiles {
	f := &formattingFiles{names: make(fileNamer), byURL: make(map[string]*formattingFile)}
	for _, sheet := range index.Stylesheets() {
		f.names[sheet.FileName] = true
	}
	for _, image := range index.Images() {
		f.names[image.FileName] = true
		f.byURL[stripQuery(image.URL)] = &formattingFile{name: image.FileName}
	}
	return f
}

// fetch downloads rawURL under its reserved name, or under a fresh name
// derived from wanted. Concurrent callers for one URL share a single download.
func (f *formattingFiles) fetch(ctx context.Context, rawURL, wanted string, download func(ctx context.Context, name string) error) (string, error) {
	key := stripQuery(rawURL)

	f.mu.Lock()
	file, ok := f.byURL[key]
	if !ok {
		file = &formattingFile{name: f.names.claim(wanted)}
		f.byURL[key] = file
	}
	f.mu.Unlock()

	file.once.Do(func() {
		file.err = download(ctx, file.name)
	})
	return file.name, file.err
}

type downloadJob struct {
	label string
	run   func(ctx context.Context) (skipped int, err error)
}

// downloadAssets fetches embedded files, formatting images and stylesheets
// in parallel, bounded by the configured concurrency.
func (m *Mirror) downloadAssets(ctx context.Context, index *Index, dir string) (int, int) {
	files := newFormattingFiles(index)
	var jobs []downloadJob

	for _, asset := range index.Assets() {
		jobs = append(jobs, downloadJob{label: asset.URL, run: func(ctx context.Context) (int, error) {
			return 0, m.fetcher.Download(ctx, asset.URL, filepath.Join(dir, contentDir, asset.FileName))
		}})
	}
	for _, image := range index.Images() {
		jobs = append(jobs, downloadJob{label: image.URL, run: func(ctx context.Context) (int, error) {
			_, err := files.fetch(ctx, image.URL, image.FileName, func(ctx context.Context, name string) error {
				return m.fetcher.Download(ctx, image.URL, filepath.Join(dir, formattingDir, name))
			})
			return 0, err
		}})
	}
	for _, sheet := range index.Stylesheets() {
		jobs = append(jobs, downloadJob{label: sheet.URL, run: func(ctx context.Context) (int, error) {
			return m.saveStylesheet(ctx, sheet, dir, files)
		}})
	}

	// Use a semaphore to limit concurrency based on the configured setting
	sem := semaphore.NewWeighted(int64(m.cfg.Concurrency))

	var wg sync.WaitGroup
	errorsChan := make(chan error, len(jobs))

	total := len(jobs)
	var counter, skipped int32

	infoLog.Printf("Downloading %d files with %d workers...", total, m.cfg.Concurrency)

	for _, job := range jobs {
		wg.Add(1)

		go func(job downloadJob) {
			defer wg.Done()

			// Acquire semaphore
			if err := sem.Acquire(ctx, 1); err != nil {
				errorsChan <- fmt.Errorf("failed to acquire semaphore: %w", err)
				return
			}
			defer sem.Release(1)

			n, err := job.run(ctx)
			atomic.AddInt32(&skipped, int32(n))
			if err != nil {
				errorsChan <- fmt.Errorf("failed to download %s: %w", job.label, err)
				return
			}

			// Update progress counter
			done := atomic.AddInt32(&counter, 1)
			if done%10 == 0 || done == int32(total) {
				infoLog.Printf("Progress: %d/%d files downloaded (%.1f%%)", done, total, float64(done)/float64(total)*100)
			}
		}(job)
	}

	wg.Wait()
	close(errorsChan)

	// Report any errors
	errorCount := 0
	for err := range errorsChan {
		errorLog.Printf("Error: %v", err)
		errorCount++
	}

	infoLog.Printf("Download complete: %d files successfully downloaded, %d errors", total-errorCount, errorCount)
	return total - errorCount, errorCount + int(skipped)
}

// saveStylesheet fetches a stylesheet, downloads the files it references
// into Formatting and writes the rewritten copy next to them.
func (m *Mirror) saveStylesheet(ctx context.Context, sheet Stylesheet, dir string, files *formattingFiles) (int, error) {
	body, err := m.fetcher.Fetch(ctx, sheet.URL)
	if err != nil {
		return 0, err
	}

	css, skipped := RewriteCSS(ctx, string(body), sheet.URL, m.cfg.Domain, func(ctx context.Context, asset CSSAsset) (string, error) {
		return files.fetch(ctx, asset.URL, asset.FileName, func(ctx context.Context, name string) error {
			return m.fetcher.Download(ctx, asset.URL, filepath.Join(dir, formattingDir, name))
		})
	})

	outputPath := filepath.Join(dir, formattingDir, sheet.FileName)
	if err := m.writeFile(outputPath, []byte(css), 0644); err != nil {
		return skipped, fmt.Errorf("failed to write stylesheet %s: %w", outputPath, err)
	}
	infoLog.Printf("Processed CSS file: %s (%d references skipped)", sheet.FileName, skipped)
	return skipped, nil
}
