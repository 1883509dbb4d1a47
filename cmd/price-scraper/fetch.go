package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/kaidolaptops/price-scraper/internal/models"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newFetchCmd(a *app) *cobra.Command {
	var (
		file    string
		url     string
		site    string
		exact   bool
		output  string
		compact bool
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch prices for one product page or a file of requests",
		Long: `Fetch prices sequentially and print the results as JSON.

Requests come either from --file (a YAML or JSON list of
{laptoplink, company, isExactMatch}) or from --url and --site.`,
		Example: `  price-scraper fetch --url https://alta.ge/... --site alta
  price-scraper fetch --file laptops.yaml --output prices.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs, err := collectRequests(file, url, site, exact)
			if err != nil {
				return err
			}

			fetcher, stop, err := a.newFetcher()
			if err != nil {
				return err
			}
			defer stop()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			results := fetcher.FetchAll(ctx, reqs)

			out := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				out = f
			}

			return writeResults(out, results, !compact)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML or JSON file with a list of requests")
	cmd.Flags().StringVarP(&url, "url", "u", "", "product page URL")
	cmd.Flags().StringVarP(&site, "site", "s", "", "site identifier for --url")
	cmd.Flags().BoolVar(&exact, "exact", false, "mark the request as an exact model match")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write results to this file instead of stdout")
	cmd.Flags().BoolVar(&compact, "compact", false, "print JSON without indentation")
	cmd.MarkFlagsMutuallyExclusive("file", "url")
	cmd.MarkFlagsRequiredTogether("url", "site")

	return cmd
}

func collectRequests(file, url, site string, exact bool) ([]models.PriceRequest, error) {
	if file != "" {
		return loadRequests(file)
	}
	if url != "" {
		return []models.PriceRequest{models.NewPriceRequest(url, site, exact)}, nil
	}
	return nil, errors.New("either --file or --url and --site is required")
}

// loadRequests reads a request list. JSON is valid YAML, so one decoder
// serves both formats.
func loadRequests(path string) ([]models.PriceRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read requests: %w", err)
	}

	var reqs []models.PriceRequest
	if err := yaml.Unmarshal(data, &reqs); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if len(reqs) == 0 {
		return nil, fmt.Errorf("%s contains no requests", path)
	}

	for i, req := range reqs {
		if req.URL == "" || req.Company == "" {
			return nil, fmt.Errorf("request %d in %s: laptoplink and company are required", i, path)
		}
	}

	return reqs, nil
}

func writeResults(w io.Writer, v interface{}, indent bool) error {
	enc := json.NewEncoder(w)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	return nil
}
