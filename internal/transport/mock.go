package transport

import (
	"context"
	"sync"
	"time"

	"github.com/example/questsync/internal/models"
)

// MockTransport provides a mock implementation for testing.
type MockTransport struct {
	mu sync.Mutex

	// Response configuration
	SaveResponse *models.SaveResponse
	PingResponse *models.PingResponse

	// Error injection. SaveErrors is consumed one per attempt; when
	// exhausted, SaveErr (possibly nil) applies.
	SaveErrors []error
	SaveErr    error
	PingErr    error

	// Optional per-attempt latency, for timeout tests.
	SaveDelay time.Duration

	// Request tracking
	SaveRequests []models.SaveRequest
	PingCalls    int
}

// NewMockTransport creates a mock transport that accepts every save.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		SaveResponse: &models.SaveResponse{CorrelationID: "mock-corr", AppliedCount: 0},
		PingResponse: &models.PingResponse{OK: true, Timestamp: time.Now(), StoreReachable: true},
	}
}

// SubmitSave records the request and returns the configured result.
func (m *MockTransport) SubmitSave(ctx context.Context, req models.SaveRequest) (*models.SaveResponse, error) {
	m.mu.Lock()
	m.SaveRequests = append(m.SaveRequests, req)
	var err error
	if len(m.SaveErrors) > 0 {
		err = m.SaveErrors[0]
		m.SaveErrors = m.SaveErrors[1:]
	} else {
		err = m.SaveErr
	}
	delay := m.SaveDelay
	resp := m.SaveResponse
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, err
	}

	out := *resp
	if out.AppliedCount == 0 {
		out.AppliedCount = len(req.CompletedItemIDs)
	}
	return &out, nil
}

// Ping returns the configured probe result.
func (m *MockTransport) Ping(ctx context.Context) (*models.PingResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PingCalls++
	if m.PingErr != nil {
		return nil, m.PingErr
	}
	out := *m.PingResponse
	return &out, nil
}

// Close is a no-op.
func (m *MockTransport) Close() error {
	return nil
}

// SetPingErr swaps the injected probe error while the mock is in use.
func (m *MockTransport) SetPingErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PingErr = err
}

// PingCount returns how many probes the mock has served.
func (m *MockTransport) PingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PingCalls
}

// Requests returns a copy of the tracked save requests.
func (m *MockTransport) Requests() []models.SaveRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.SaveRequest, len(m.SaveRequests))
	copy(out, m.SaveRequests)
	return out
}
