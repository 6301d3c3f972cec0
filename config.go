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
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default values
const (
	DefaultAPIVersion  = "2.3"
	DefaultConcurrency = 10
	DefaultTimeout     = 30 * time.Second
	DefaultRetries     = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultUserAgent   = "epo-go-downloader/1.0"
	configName         = "epo-downloader"
)

// Config holds the runtime settings shared by every command
type Config struct {
	Domain      string        // scheme and host of the ePortfolio site
	APIVersion  string        // ePortfolio API version
	OutputDir   string        // where mirrors and exports are written
	Concurrency int           // maximum parallel asset downloads
	Timeout     time.Duration // per request timeout
	Retries     int           // attempts per request
	RetryDelay  time.Duration // first retry delay, doubled each attempt
	UserAgent   string
	Token       string // bearer token for the API and page requests
	Cookie      string // session cookie for the API and page requests
	Verbose     bool
}

func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("api_version", DefaultAPIVersion)
	v.SetDefault("output_dir", ".")
	v.SetDefault("concurrency", DefaultConcurrency)
	v.SetDefault("timeout", DefaultTimeout)
	v.SetDefault("retries", DefaultRetries)
	v.SetDefault("retry_delay", DefaultRetryDelay)
	v.SetDefault("user_agent", DefaultUserAgent)
	v.SetDefault("verbose", false)
}

// newConfigViper prepares a viper instance reading epo-downloader.{yaml,toml,json}
// from the working directory or ~/.config/epo-downloader, and EPO_* variables.
func newConfigViper(configFile string) *viper.Viper {
	v := viper.New()
	setConfigDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", configName))
		}
	}

	v.SetEnvPrefix("EPO")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// loadConfig reads the configuration file, if any, and decodes the merged
// settings.
func loadConfig(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		Domain:      strings.TrimSuffix(v.GetString("domain"), "/"),
		APIVersion:  v.GetString("api_version"),
		OutputDir:   v.GetString("output_dir"),
		Concurrency: v.GetInt("concurrency"),
		Timeout:     v.GetDuration("timeout"),
		Retries:     v.GetInt("retries"),
		RetryDelay:  v.GetDuration("retry_delay"),
		UserAgent:   v.GetString("user_agent"),
		Token:       v.GetString("token"),
		Cookie:      v.GetString("cookie"),
		Verbose:     v.GetBool("verbose"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings every command depends on
func (c *Config) Validate() error {
	if c.Domain == "" {
		return errors.New("domain is not set (use --domain, EPO_DOMAIN or the config file)")
	}
	if !strings.HasPrefix(c.Domain, "http://") && !strings.HasPrefix(c.Domain, "https://") {
		return fmt.Errorf("domain %q must include the scheme", c.Domain)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	if c.APIVersion == "" {
		c.APIVersion = DefaultAPIVersion
	}
	return nil
}
