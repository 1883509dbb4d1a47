package main

import (
	"fmt"
	"os"

	"github.com/kaidolaptops/price-scraper/internal/models"
	"github.com/kaidolaptops/price-scraper/internal/pricing"
	"github.com/kaidolaptops/price-scraper/internal/sites"
	"github.com/spf13/cobra"
)

type extractOutput struct {
	Company string         `json:"company"`
	Price   int            `json:"price"`
	Found   bool           `json:"found"`
	Failure models.Failure `json:"failure,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func newExtractCmd(a *app) *cobra.Command {
	var (
		site string
		path string
	)

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Read the price from a saved product page",
		Long:  "Run a site's price extractor against an HTML file without starting a browser.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, ok := sites.Parse(site)
			if !ok {
				return fmt.Errorf("%w: %q", sites.ErrUnsupported, site)
			}

			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("failed to open html: %w", err)
			}
			defer f.Close()

			page, err := sites.NewHTMLPage(f)
			if err != nil {
				return fmt.Errorf("failed to parse html: %w", err)
			}

			out := extractOutput{Company: s.String()}
			price, err := sites.Extract(s, page)
			if err != nil {
				a.logger.Warn("price not extracted", "site", s, "file", path, "error", err)
				out.Failure = pricing.Classify(err)
				out.Error = err.Error()
			} else {
				out.Price = price
				out.Found = true
			}

			return writeResults(cmd.OutOrStdout(), out, true)
		},
	}

	cmd.Flags().StringVarP(&site, "site", "s", "", "site identifier")
	cmd.Flags().StringVar(&path, "html", "", "path to a saved product page")
	cmd.MarkFlagRequired("site")
	cmd.MarkFlagRequired("html")

	return cmd
}
