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
	"iter"
	"strings"
	"unicode"
)

const cssURLMarker = "url("

// CSSAsset is one url() reference found in a stylesheet
type CSSAsset struct {
	Line     int    // zero based line number
	Start    int    // byte offset of the reference within its line
	End      int    // byte offset of the closing parenthesis
	Ref      string // the reference as written
	URL      string // resolved address without query string
	FileName string // local name in the Formatting directory
	Err      error  // set, wrapping ErrUnresolvedCSSAsset, when Ref has no address
}

// CSSAssets scans a stylesheet line by line and yields every url()
// reference with its resolved address. The sequence is produced lazily and
// is meant to be consumed once. data: URIs are not yielded.
func CSSAssets(cssText, cssURL, domain string) iter.Seq[CSSAsset] {
	return func(yield func(CSSAsset) bool) {
		for n, line := range strings.SplitAfter(cssText, "\n") {
			pos := 0
			for {
				i := strings.Index(line[pos:], cssURLMarker)
				if i < 0 {
					break
				}
				begin := pos + i + len(cssURLMarker)
				j := strings.IndexByte(line[begin:], ')')
				if j < 0 {
					asset := CSSAsset{Line: n, Start: begin, End: len(line), Ref: line[begin:]}
					asset.Err = fmt.Errorf("unterminated url( on line %d: %w", n+1, ErrUnresolvedCSSAsset)
					if !yield(asset) {
						return
					}
					break
				}
				end := begin + j
				pos = end + 1

				ref := line[begin:end]
				bare := strings.Trim(strings.TrimSpace(ref), `'"`)
				if bare == "" || strings.HasPrefix(strings.ToLower(bare), "data:") {
					continue
				}

				asset := CSSAsset{Line: n, Start: begin, End: end, Ref: ref}
				asset.URL, asset.Err = resolveCSSRef(ref, cssURL, domain)
				if asset.Err == nil {
					asset.FileName = urlFileName(asset.URL)
					if asset.FileName == "" {
						asset.Err = fmt.Errorf("no file name in %q: %w", asset.URL, ErrUnresolvedCSSAsset)
					}
				}
				if !yield(asset) {
					return
				}
			}
		}
	}
}

// resolveCSSRef turns a url() argument into an absolute address:
//
//   - a leading "/" is a path on domain;
//   - a leading letter or digit is relative to the stylesheet's directory;
//   - anything else (quotes, whitespace, "../") is read from its first "/"
//     as a path on domain, with trailing punctuation trimmed.
//
// Absolute http(s) references are kept. The query string is dropped.
func resolveCSSRef(ref, cssURL, domain string) (string, error) {
	bare := strings.Trim(strings.TrimSpace(ref), `'"`)
	lower := strings.ToLower(bare)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return stripQuery(bare), nil
	case strings.HasPrefix(bare, "//"):
		scheme := "https:"
		if strings.HasPrefix(domain, "http://") {
			scheme = "http:"
		}
		return stripQuery(scheme + bare), nil
	}

	var address string
	switch first := rune(ref[0]); {
	case first == '/':
		address = domain + strings.TrimRightFunc(ref, unicode.IsSpace)
	case isASCIIAlnum(first):
		dir := stripQuery(cssURL)
		address = dir[:strings.LastIndex(dir, "/")+1] + strings.TrimRightFunc(ref, unicode.IsSpace)
	default:
		slash := strings.IndexByte(ref, '/')
		if slash < 0 {
			return "", fmt.Errorf("no path in %q: %w", ref, ErrUnresolvedCSSAsset)
		}
		address = strings.TrimRightFunc(domain+ref[slash:], func(r rune) bool {
			return !isASCIIAlnum(r)
		})
	}
	return stripQuery(address), nil
}

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// CSSDownloadFunc fetches one stylesheet asset and returns the local file
// name it was stored under.
type CSSDownloadFunc func(ctx context.Context, asset CSSAsset) (string, error)

// RewriteCSS downloads every asset a stylesheet references and points each
// url() at the local copy. An asset is downloaded once per stylesheet. A
// reference that cannot be resolved or downloaded is logged and left as it
// was. It returns the rewritten text and the number of references skipped.
func RewriteCSS(ctx context.Context, cssText, cssURL, domain string, download CSSDownloadFunc) (string, int) {
	type substitution struct {
		start, end int
		name       string
	}
	subs := make(map[int][]substitution)
	local := make(map[string]string)
	failed := make(map[string]bool)
	skipped := 0

	for asset := range CSSAssets(cssText, cssURL, domain) {
		if asset.Err != nil {
			errorLog.Printf("Skipping url(%s) in %s: %v", asset.Ref, cssURL, asset.Err)
			skipped++
			continue
		}
		name, ok := local[asset.URL]
		if !ok {
			if failed[asset.URL] {
				skipped++
				continue
			}
			var err error
			name, err = download(ctx, asset)
			if err != nil {
				errorLog.Printf("Failed to download %s referenced by %s: %v", asset.URL, cssURL, err)
				failed[asset.URL] = true
				skipped++
				continue
			}
			local[asset.URL] = name
		}
		subs[asset.Line] = append(subs[asset.Line], substitution{asset.Start, asset.End, name})
	}

	var out strings.Builder
	out.Grow(len(cssText))
	for n, line := range strings.SplitAfter(cssText, "\n") {
		pos := 0
		for _, s := range subs[n] {
			out.WriteString(line[pos:s.start])
			out.WriteString(s.name)
			pos = s.end
		}
		out.WriteString(line[pos:])
	}
	return out.String(), skipped
}
