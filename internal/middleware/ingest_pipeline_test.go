package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ThreatLens/internal/domain/models"
)

type countingProc struct {
	mu     sync.Mutex
	events []*models.ThreatEvent
	err    error
}

func (c *countingProc) Process(_ context.Context, e *models.ThreatEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, e)
	return nil
}

func (c *countingProc) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

type nopMetrics struct{}

func (nopMetrics) RecordEventIngested(string, string) {}
func (nopMetrics) RecordDetection(string)             {}
func (nopMetrics) RecordTrainingRun(string)           {}
func (nopMetrics) RecordError(string)                 {}
func (nopMetrics) RecordModelInfo(int, int64)         {}
func (nopMetrics) RecordLatency(string, float64)      {}

func validTestEvent(addr string) *models.ThreatEvent {
	return &models.ThreatEvent{
		Timestamp:  time.Now(),
		SourceAddr: addr,
		Username:   "alice",
		EventType:  "login_attempt",
		EventValue: 1,
	}
}

func TestPipelineForwardsValidEvent(t *testing.T) {
	proc := &countingProc{}
	p := NewIngestPipeline(proc, nopMetrics{})

	require.NoError(t, p.Process(context.Background(), validTestEvent("10.0.0.1")))
	assert.Equal(t, 1, proc.count())
}

func TestPipelineRejectsInvalid(t *testing.T) {
	proc := &countingProc{}
	p := NewIngestPipeline(proc, nopMetrics{})

	assert.Error(t, p.Process(context.Background(), nil))
	assert.Error(t, p.Process(context.Background(), &models.ThreatEvent{Timestamp: time.Now()}))
	assert.Error(t, p.Process(context.Background(), &models.ThreatEvent{SourceAddr: "a"}))

	e := validTestEvent("10.0.0.1")
	e.EventValue = -1
	assert.Error(t, p.Process(context.Background(), e))

	assert.Zero(t, proc.count())
}

func TestPipelineThrottlesPerSource(t *testing.T) {
	proc := &countingProc{}
	p := NewIngestPipeline(proc, nopMetrics{}, WithMaxRPS(1))

	// Same source twice back to back: second is throttled, not an error.
	require.NoError(t, p.Process(context.Background(), validTestEvent("10.0.0.1")))
	require.NoError(t, p.Process(context.Background(), validTestEvent("10.0.0.1")))
	assert.Equal(t, 1, proc.count())

	// A different source is unaffected.
	require.NoError(t, p.Process(context.Background(), validTestEvent("10.0.0.2")))
	assert.Equal(t, 2, proc.count())
}

func TestPipelineBuffersOnDownstreamError(t *testing.T) {
	proc := &countingProc{err: errors.New("backend down")}
	p := NewIngestPipeline(proc, nopMetrics{}, WithBufferSize(10))

	err := p.Process(context.Background(), validTestEvent("10.0.0.1"))
	assert.Error(t, err)
	assert.Zero(t, proc.count())

	// Downstream recovers; the flusher drains the buffer.
	proc.mu.Lock()
	proc.err = nil
	proc.mu.Unlock()

	p.Start(context.Background())
	defer p.Stop()

	require.Eventually(t, func() bool {
		return proc.count() == 1
	}, 2*time.Second, 10*time.Millisecond)
}
