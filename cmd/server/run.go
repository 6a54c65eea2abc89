package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shelfwatch/backend/internal/domain"
	"github.com/shelfwatch/backend/internal/logger"
	"github.com/shelfwatch/backend/internal/usecase"
)

func runCmd() *cobra.Command {
	var req usecase.RunRequest
	var pass string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one baseline or monitoring pass in the foreground",
		Long: `Execute one catalog pass for a retailer category and print the run summary.

Examples:
  shelfwatch run --retailer selfridges --category dresses --url https://www.selfridges.com/GB/en/cat/womens/clothing/dresses/
  shelfwatch run --retailer selfridges --category dresses --url https://... --pass baseline`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.Pass = domain.Pass(pass)
			return runOnce(cmd, req)
		},
	}

	cmd.Flags().StringVar(&req.Retailer, "retailer", "", "retailer name from the retailers config")
	cmd.Flags().StringVar(&req.Category, "category", "", "category label")
	cmd.Flags().StringVar(&req.ListingURL, "url", "", "listing page URL")
	cmd.Flags().StringSliceVar(&req.CandidateURLs, "candidate", nil, "explicit product URLs instead of a listing page")
	cmd.Flags().StringVar(&pass, "pass", string(domain.PassMonitor), "baseline or monitor")
	_ = cmd.MarkFlagRequired("retailer")
	_ = cmd.MarkFlagRequired("category")

	return cmd
}

func runOnce(cmd *cobra.Command, req usecase.RunRequest) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer syncLogger(log)

	a, err := newApp(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	// Misconfigured retailers are refused before any extraction is attempted
	if reason, ok := a.invalidRetailers[req.Retailer]; ok {
		return reason
	}

	summary, err := a.monitor.Run(cmd.Context(), req)
	if summary != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(summary); encErr != nil {
			log.Warn("Failed to print run summary", logger.Error(encErr))
		}
	}
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}
	return nil
}
