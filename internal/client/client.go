// Package client wires the client-resident components together.
package client

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/example/questsync/internal/config"
	"github.com/example/questsync/internal/events"
	"github.com/example/questsync/internal/health"
	"github.com/example/questsync/internal/pipeline"
	"github.com/example/questsync/internal/queue"
	"github.com/example/questsync/internal/transport"
)

// Client is the high-level API for questsync client operations.
type Client struct {
	Pipeline *pipeline.Pipeline
	Monitor  *health.Monitor
	Queue    queue.Store

	config    *config.Config
	logger    *events.Logger
	transport transport.Transport
}

// New builds a client: logger config feeds the transport, the durable
// queue backend comes from config, and the pipeline is gated by the
// monitor.
func New(cfg *config.Config, logger *events.Logger) (*Client, error) {
	transportClient := transport.NewHTTPClient(&cfg.API, logger)

	queueStore, err := queue.Open(&cfg.Queue, logger)
	if err != nil {
		return nil, fmt.Errorf("open save queue: %w", err)
	}

	monitor := health.New(transportClient, &cfg.Health, logger)
	pipe := pipeline.New(transportClient, queueStore, monitor, &cfg.API, logger)

	return &Client{
		Pipeline:  pipe,
		Monitor:   monitor,
		Queue:     queueStore,
		config:    cfg,
		logger:    logger,
		transport: transportClient,
	}, nil
}

// Start runs the health monitor and the recovery drain until ctx ends.
func (c *Client) Start(ctx context.Context) {
	go c.Monitor.Run(ctx)
	go c.Pipeline.Run(ctx, c.Monitor.Events())
}

// Close releases the queue store and transport.
func (c *Client) Close() error {
	var firstErr error
	if err := c.Queue.Close(); err != nil {
		firstErr = err
	}
	if err := c.transport.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// NewLogger builds the process logger from config.
func NewLogger(cfg *config.LogConfig) (*events.Logger, error) {
	var output io.Writer = os.Stdout
	if cfg.File != "" {
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		output = file
	}
	return events.New(events.ParseLevel(cfg.Level), cfg.Format, output), nil
}
