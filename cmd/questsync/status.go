package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/questsync/internal/server"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the save endpoint's aggregate health",
	RunE:  runStatus,
}

var fixesCmd = &cobra.Command{
	Use:   "fixes",
	Short: "Show the catalog fix-run report",
	RunE:  runFixes,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(fixesCmd)
}

func fetchJSON(path string, out interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.API.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.API.BaseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("endpoint returned HTTP %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func runStatus(cmd *cobra.Command, args []string) error {
	var report server.HealthReport
	if err := fetchJSON("/api/v1/health", &report); err != nil {
		color.Red("Save endpoint unreachable: %v", err)
		return nil
	}

	switch report.Level {
	case "ok":
		color.Green("Health: ok")
	case "degraded":
		color.Yellow("Health: degraded")
	default:
		color.Red("Health: %s", report.Level)
	}

	fmt.Printf("  store reachable: %v\n", report.Liveness.StoreReachable)
	fmt.Printf("  checked at:      %s\n", report.Liveness.Timestamp.Local().Format(time.RFC1123))

	if report.Fixes != nil {
		fmt.Printf("  catalog fixes:   %d/%d applied, %d id change(s)\n",
			report.Fixes.Successful, report.Fixes.Total, report.Fixes.IDChanges)
	}
	return nil
}

func runFixes(cmd *cobra.Command, args []string) error {
	var status struct {
		RanAt      time.Time `json:"ran_at"`
		Total      int       `json:"total"`
		Successful int       `json:"successful"`
		Failed     int       `json:"failed"`
		IDChanges  int       `json:"id_changes"`
		Failures   []struct {
			DisplayName   string `json:"display_name"`
			FailureReason string `json:"failure_reason"`
		} `json:"failures"`
	}
	if err := fetchJSON("/api/v1/fixes", &status); err != nil {
		return err
	}

	fmt.Printf("Fix run at %s\n", status.RanAt.Local().Format(time.RFC1123))
	color.Green("  applied: %d/%d", status.Successful, status.Total)
	if status.IDChanges > 0 {
		color.Yellow("  identifier drift: %d record(s)", status.IDChanges)
	}
	if status.Failed > 0 {
		color.Red("  failed: %d", status.Failed)
		for _, f := range status.Failures {
			fmt.Printf("    %s: %s\n", f.DisplayName, f.FailureReason)
		}
	}
	return nil
}
