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
	"fmt"
	"io"
	"log"
	"os"
)

var (
	// ErrIdentifierNotFound is returned when an onclick script or URL does not
	// carry the identifier its platform convention promises.
	ErrIdentifierNotFound = errors.New("identifier not found")
	// ErrUnresolvedCSSAsset marks a CSS url() reference that cannot be turned
	// into an absolute address or could not be downloaded.
	ErrUnresolvedCSSAsset = errors.New("unresolved css asset")
	// ErrMetadataLookup wraps failures of the ePortfolio metadata service.
	ErrMetadataLookup = errors.New("metadata lookup failed")
	// ErrFetch wraps every retrieval failure reported by a Fetcher.
	ErrFetch = errors.New("fetch failed")
	// ErrIndexFrozen is returned by IndexBuilder once Freeze has been called.
	ErrIndexFrozen = errors.New("resource index is frozen")
)

// FetchError describes a failed retrieval of a single URL
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: bad status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

// Unwrap lets errors.Is match both ErrFetch and the transport error.
func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrFetch}
	}
	return []error{ErrFetch, e.Err}
}

// Loggers. Debug output is discarded until initLoggers enables it.
var (
	infoLog  = log.New(os.Stdout, "INFO: ", log.Ldate|log.Ltime)
	errorLog = log.New(os.Stderr, "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile)
	debugLog = log.New(io.Discard, "", 0)
)

func initLoggers(verbose bool) {
	infoLog = log.New(os.Stdout, "INFO: ", log.Ldate|log.Ltime)
	errorLog = log.New(os.Stderr, "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile)

	if verbose {
		debugLog = log.New(os.Stdout, "DEBUG: ", log.Ldate|log.Ltime|log.Lshortfile)
	} else {
		debugLog = log.New(io.Discard, "", 0)
	}
}
