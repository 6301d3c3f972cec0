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
	"strings"
)

// Textual conventions of the ePortfolio presentation markup.
const (
	// pageTransitionMarker is the client-side handler that switches pages,
	// e.g. onclick="GotoPage(1234,5678); return false;".
	pageTransitionMarker = "GotoPage"
	// navAnchorHref is the href every navigation anchor carries.
	navAnchorHref = "javascript://"
	// embeddedFileMarker identifies links to user uploaded files. Anchors use
	// "d2lfile" and images "d2lFile", so it is matched without case.
	embeddedFileMarker = "d2lfile"
	// contextIDMarker introduces the object id in an embedded file URL.
	contextIDMarker = "contextId="
	// currentPageClass wraps the navigation entry of the page being viewed.
	currentPageClass = "d_t_nav_current_page"
)

// PageTransitionID reads the page id that follows the presentation's own id
// in a navigation script. One separator character is skipped after rootID.
func PageTransitionID(script, rootID string) (string, error) {
	if rootID == "" {
		return "", fmt.Errorf("empty root id: %w", ErrIdentifierNotFound)
	}
	start, ok := scanMarker(script, rootID)
	if !ok {
		return "", fmt.Errorf("root id %s not in %q: %w", rootID, script, ErrIdentifierNotFound)
	}
	// skip the separator
	start++
	id := scanDigits(script, start)
	if id == "" {
		return "", fmt.Errorf("no page id after %s in %q: %w", rootID, script, ErrIdentifierNotFound)
	}
	return id, nil
}

// EmbeddedObjectID reads the object id carried by the contextId= parameter of
// an embedded file reference.
func EmbeddedObjectID(ref string) (string, error) {
	start, ok := scanMarker(ref, contextIDMarker)
	if !ok {
		return "", fmt.Errorf("no %s in %q: %w", contextIDMarker, ref, ErrIdentifierNotFound)
	}
	id := scanDigits(ref, start)
	if id == "" {
		return "", fmt.Errorf("empty %s in %q: %w", contextIDMarker, ref, ErrIdentifierNotFound)
	}
	return id, nil
}

// scanMarker returns the offset just past the first occurrence of marker.
func scanMarker(s, marker string) (int, bool) {
	i := strings.Index(s, marker)
	if i < 0 {
		return 0, false
	}
	return i + len(marker), true
}

// scanDigits returns the maximal run of ASCII digits starting at offset.
func scanDigits(s string, offset int) string {
	if offset >= len(s) {
		return ""
	}
	end := offset
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return s[offset:end]
}

// isPageTransition reports whether an onclick handler switches pages inside
// the presentation.
func isPageTransition(onclick string) bool {
	return strings.Contains(onclick, pageTransitionMarker)
}

// isEmbeddedFileRef reports whether an href or src points at an uploaded file
func isEmbeddedFileRef(ref string) bool {
	return strings.Contains(strings.ToLower(ref), embeddedFileMarker)
}
