package main

import (
	"context"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/questsync/internal/client"
)

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Replay queued saves now",
	Long:  `Flush is the manual retry trigger: it replays the durable local queue oldest-first without waiting for a health recovery edge.`,
	RunE:  runFlush,
}

func init() {
	rootCmd.AddCommand(flushCmd)
}

func runFlush(cmd *cobra.Command, args []string) error {
	c, err := client.New(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	before, err := c.Queue.List()
	if err != nil {
		return err
	}
	if len(before) == 0 {
		color.Green("Queue is empty, nothing to replay")
		return nil
	}

	if err := c.Pipeline.Flush(context.Background()); err != nil {
		return err
	}

	after, err := c.Queue.List()
	if err != nil {
		return err
	}

	drained := len(before) - len(after)
	if len(after) == 0 {
		color.Green("Replayed %d queued save(s)", drained)
	} else {
		color.Yellow("Replayed %d queued save(s), %d still pending", drained, len(after))
	}
	return nil
}
