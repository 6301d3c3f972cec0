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
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// app carries what every subcommand needs once flags and config are merged
type app struct {
	cfg     *Config
	fetcher *HTTPFetcher
	client  *ValenceClient
}

// setup loads the configuration and builds the shared clients
func (a *app) setup(cmd *cobra.Command) error {
	configFile, _ := cmd.Flags().GetString("config")
	v := newConfigViper(configFile)

	// Flags override the config file and the environment
	flags := cmd.Flags()
	for key, flag := range map[string]string{
		"domain":      "domain",
		"api_version": "api-version",
		"output_dir":  "output-dir",
		"concurrency": "concurrency",
		"timeout":     "timeout",
		"retries":     "retries",
		"token":       "token",
		"cookie":      "cookie",
		"verbose":     "verbose",
	} {
		if f := flags.Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}

	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	initLoggers(cfg.Verbose)

	a.cfg = cfg
	a.fetcher = NewHTTPFetcher(cfg)
	a.client = NewValenceClient(cfg.Domain, cfg.APIVersion, a.fetcher)
	return nil
}

func (a *app) newMirror() *Mirror {
	return NewMirror(a.cfg, a.fetcher, a.client)
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "epo-downloader",
		Short: "Download D2L ePortfolio presentations for offline viewing",
		Long: `epo-downloader mirrors D2L ePortfolio presentations into a self contained
directory (index.html, Pages/, Content/, Formatting/) and exports other
ePortfolio objects with their metadata.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			return a.setup(cmd)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Config file (default ./epo-downloader.yaml)")
	pf.String("domain", "", "ePortfolio site, e.g. https://school.brightspace.com")
	pf.String("api-version", DefaultAPIVersion, "ePortfolio API version")
	pf.String("output-dir", ".", "Output directory")
	pf.Int("concurrency", DefaultConcurrency, "Maximum concurrent downloads")
	pf.Duration("timeout", DefaultTimeout, "HTTP timeout per request")
	pf.Int("retries", DefaultRetries, "Attempts per request")
	pf.String("token", "", "Bearer token sent with every request")
	pf.String("cookie", "", "Session cookie sent with every request")
	pf.BoolP("verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(newPresentationCmd(a), newExportCmd(a), newListCmd(a))
	return rootCmd
}

func newPresentationCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "presentation <object-id>",
		Short: "Mirror one presentation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pres, err := a.client.GetObjectProperties(ctx, args[0])
			if err != nil {
				return err
			}
			if pres.ObjectTypeID != TypePresentation {
				return fmt.Errorf("object %s is a %s, not a presentation", args[0], pres.ObjectTypeID)
			}

			result, err := a.newMirror().Run(ctx, pres)
			if err != nil {
				return err
			}
			infoLog.Printf("Saved %d pages and %d files to %s (%d failed)",
				result.Pages, result.Downloaded, result.Dir, result.Failed)
			return nil
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	var asXML, withComments bool
	cmd := &cobra.Command{
		Use:   "export <object-id>...",
		Short: "Export objects with their metadata",
		Long: `Export writes each object's metadata next to its content: the file of a
file artifact, the address of a link artifact, every item of a collection and
a full mirror for presentations.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exporter := &Exporter{
				Source:   a.client,
				Fetcher:  a.fetcher,
				Mirror:   a.newMirror(),
				Dir:      a.cfg.OutputDir,
				XML:      asXML,
				Comments: withComments,
			}
			for _, id := range args {
				if err := exporter.Export(cmd.Context(), id); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asXML, "xml", false, "Write metadata as XML")
	cmd.Flags().BoolVar(&withComments, "comments", false, "Include object comments in the metadata")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	var (
		opts ListOptions
		all  bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your ePortfolio objects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for {
				set, err := a.client.ListObjects(cmd.Context(), opts)
				if err != nil {
					return err
				}
				for _, obj := range set.Items {
					fmt.Fprintf(out, "%s\t%s\t%s\n", obj.ID(), obj.ObjectTypeID, obj.Name)
				}
				if !all || !set.PagingInfo.HasMoreItems || set.PagingInfo.Bookmark == "" {
					if set.PagingInfo.HasMoreItems && set.PagingInfo.Bookmark != "" {
						fmt.Fprintf(out, "more: --bookmark %s\n", set.PagingInfo.Bookmark)
					}
					return nil
				}
				opts.Bookmark = set.PagingInfo.Bookmark
			}
		},
	}
	cmd.Flags().StringVar(&opts.Query, "query", "", "Search expression")
	cmd.Flags().StringVar(&opts.Bookmark, "bookmark", "", "Resume after this bookmark")
	cmd.Flags().IntVar(&opts.PageSize, "page-size", 0, "Objects per request")
	cmd.Flags().BoolVar(&all, "all", false, "Follow bookmarks until every object is listed")
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		errorLog.Printf("%v", err)
		stop()
		os.Exit(1)
	}
}
