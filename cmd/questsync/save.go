package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/questsync/internal/client"
	"github.com/example/questsync/internal/models"
)

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Submit a completed-item set through the save pipeline",
	Long: `Save submits a full replacement of the user's completed set. When the
endpoint is down the save lands in the durable local queue and syncs
automatically once connectivity returns.`,
	Example: `  questsync save --user u1 --items quest-1,quest-2
  questsync save --user u1 --items ""`,
	RunE: runSave,
}

var (
	saveUser  string
	saveItems string
)

func init() {
	rootCmd.AddCommand(saveCmd)

	saveCmd.Flags().StringVarP(&saveUser, "user", "u", "", "User reference (required)")
	saveCmd.Flags().StringVarP(&saveItems, "items", "i", "", "Comma-separated completed item ids")

	_ = saveCmd.MarkFlagRequired("user")
}

func runSave(cmd *cobra.Command, args []string) error {
	c, err := client.New(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	var items []string
	if saveItems != "" {
		items = strings.Split(saveItems, ",")
	}

	outcome, err := c.Pipeline.Submit(context.Background(), models.SaveIntent{
		UserID:           saveUser,
		CompletedItemIDs: items,
		ClientTimestamp:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	switch {
	case outcome.Success:
		color.Green("Saved %d items (correlation %s, %d attempt(s), %dms)",
			outcome.AppliedCount, outcome.ServerCorrelationID, outcome.Attempts, outcome.DurationMs)
	case outcome.Queued:
		color.Yellow("Endpoint unreachable; progress saved locally and will sync automatically")
	default:
		color.Red("Save failed: %s", outcome.ErrorKind)
	}

	fmt.Println()
	return nil
}
