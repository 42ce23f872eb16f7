package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"

	"github.com/example/questsync/internal/config"
	"github.com/example/questsync/internal/events"
	"github.com/example/questsync/internal/models"
)

// HTTPClient implements Transport over HTTP.
type HTTPClient struct {
	client    *http.Client
	baseURL   string
	userAgent string
	logger    *events.Logger
}

// NewHTTPClient creates an HTTP transport.
func NewHTTPClient(cfg *config.APIConfig, logger *events.Logger) *HTTPClient {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			NextProtos: []string{"h2", "http/1.1"},
		},
	}

	if err := http2.ConfigureTransport(transport); err != nil {
		logger.WithError(err).Warn("Failed to configure HTTP/2")
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		baseURL:   cfg.BaseURL,
		userAgent: cfg.UserAgent,
		logger:    logger.WithField("component", "http_client"),
	}
}

// SubmitSave performs one save delivery attempt.
func (c *HTTPClient) SubmitSave(ctx context.Context, req models.SaveRequest) (*models.SaveResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal save request: %w", err)
	}

	url := c.baseURL + "/api/v1/saves"

	c.logger.WithFields(map[string]interface{}{
		"method": "POST",
		"url":    url,
		"items":  len(req.CompletedItemIDs),
	}).Debug("Sending save request")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, c.classifyTransportErr(req.UserID, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &models.SaveError{Kind: models.ErrKindTransient, UserID: req.UserID, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.classifyStatus(req.UserID, resp.StatusCode, respBody)
	}

	var saveResp models.SaveResponse
	if err := json.Unmarshal(respBody, &saveResp); err != nil {
		return nil, &models.SaveError{Kind: models.ErrKindTransient, UserID: req.UserID, Err: fmt.Errorf("parse response: %w", err)}
	}

	c.logger.WithFields(map[string]interface{}{
		"correlation_id": saveResp.CorrelationID,
		"applied_count":  saveResp.AppliedCount,
	}).Debug("Save accepted")

	return &saveResp, nil
}

// Ping calls the liveness side channel with the caller's timeout.
func (c *HTTPClient) Ping(ctx context.Context) (*models.PingResponse, error) {
	url := c.baseURL + "/api/v1/status"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute probe: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("probe returned HTTP %d", resp.StatusCode)
	}

	var ping models.PingResponse
	if err := json.NewDecoder(resp.Body).Decode(&ping); err != nil {
		return nil, fmt.Errorf("parse probe response: %w", err)
	}

	return &ping, nil
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// classifyTransportErr maps network-layer failures onto the error
// taxonomy. Timeouts and connection errors are transient.
func (c *HTTPClient) classifyTransportErr(userID string, err error) error {
	kind := models.ErrKindTransient

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		err = fmt.Errorf("attempt timed out: %w", err)
	}

	return &models.SaveError{Kind: kind, UserID: userID, Err: err}
}

// classifyStatus maps non-2xx responses onto the error taxonomy. The
// server's own error_kind wins when the body parses; otherwise 4xx is
// validation and 5xx is transient.
func (c *HTTPClient) classifyStatus(userID string, status int, body []byte) error {
	var apiErr models.APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.ErrorKind != "" {
		apiErr.StatusCode = status
		return &models.SaveError{Kind: apiErr.ErrorKind, UserID: userID, Err: &apiErr}
	}

	kind := models.ErrKindTransient
	if status >= 400 && status < 500 {
		kind = models.ErrKindValidation
	}

	return &models.SaveError{
		Kind:   kind,
		UserID: userID,
		Err:    fmt.Errorf("HTTP %d: %s", status, bytes.TrimSpace(body)),
	}
}
