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
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Fetcher retrieves remote documents and files
type Fetcher interface {
	// Fetch returns the body of a URL
	Fetch(ctx context.Context, url string) ([]byte, error)
	// Download writes the body of a URL to destPath
	Download(ctx context.Context, url, destPath string) error
}

// HTTPFetcher is a Fetcher over net/http with bounded retries
type HTTPFetcher struct {
	client     *http.Client
	headers    http.Header
	retries    int
	retryDelay time.Duration
}

// NewHTTPFetcher builds a fetcher from the runtime configuration
func NewHTTPFetcher(cfg *Config) *HTTPFetcher {
	headers := make(http.Header)
	if cfg.UserAgent != "" {
		headers.Set("User-Agent", cfg.UserAgent)
	}
	if cfg.Token != "" {
		headers.Set("Authorization", "Bearer "+cfg.Token)
	}
	if cfg.Cookie != "" {
		headers.Set("Cookie", cfg.Cookie)
	}

	retries := cfg.Retries
	if retries < 1 {
		retries = 1
	}

	return &HTTPFetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		headers:    headers,
		retries:    retries,
		retryDelay: cfg.RetryDelay,
	}
}

// Fetch retrieves a URL into memory
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := f.withRetry(ctx, url, func() error {
		var err error
		body, err = f.fetchOnce(ctx, url)
		return err
	})
	return body, err
}

// Download retrieves a URL into destPath, creating its directory if needed
func (f *HTTPFetcher) Download(ctx context.Context, url, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return f.withRetry(ctx, url, func() error {
		return f.downloadOnce(ctx, url, destPath)
	})
}

// withRetry runs attempt until it succeeds, the context ends or the retry
// budget is spent. Delays double after each failure.
func (f *HTTPFetcher) withRetry(ctx context.Context, url string, attempt func() error) error {
	delay := f.retryDelay

	var err error
	for i := 0; i < f.retries; i++ {
		err = attempt()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}

		if i < f.retries-1 {
			debugLog.Printf("Retrying %s (attempt %d/%d): %v", url, i+1, f.retries, err)
			select {
			case <-ctx.Done():
				return &FetchError{URL: url, Err: ctx.Err()}
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return err
}

// retryable reports whether a failure may be transient. Client errors other
// than 429 are final.
func retryable(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) && fe.StatusCode >= 400 && fe.StatusCode < 500 {
		return fe.StatusCode == http.StatusTooManyRequests
	}
	return true
}

func (f *HTTPFetcher) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	for k, v := range f.headers {
		req.Header[k] = v
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	// Check if the request was successful
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	return body, nil
}

func (f *HTTPFetcher) downloadOnce(ctx context.Context, url, destPath string) error {
	resp, err := f.get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Create the output file
	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()

	// Copy the response body to the file, dropping it if the body is cut short
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(destPath)
		return &FetchError{URL: url, Err: err}
	}

	debugLog.Printf("Downloaded %s to %s", url, destPath)
	return nil
}
