package usecase

import (
	"context"

	"ThreatLens/internal/domain/models"
	drepo "ThreatLens/internal/domain/repository"
	mid "ThreatLens/internal/middleware"
)

// EventCollector collects events from the sensor feed and processes them.
type EventCollector struct {
	stream  drepo.EventStream
	proc    *EventProcessor
	metrics drepo.Metrics
	pipe    *mid.IngestPipeline
}

// NewEventCollector creates a new EventCollector instance.
func NewEventCollector(stream drepo.EventStream, proc *EventProcessor, metrics drepo.Metrics, pipe *mid.IngestPipeline) *EventCollector {
	return &EventCollector{stream: stream, proc: proc, metrics: metrics, pipe: pipe}
}

// IsConnected returns true if the sensor feed is connected.
func (c *EventCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *EventCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	evCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, evCh, errCh)
	return nil
}

func (c *EventCollector) consume(ctx context.Context, evCh <-chan *models.ThreatEvent, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if err != nil {
				c.metrics.RecordError("stream")
				_ = c.stream.Reconnect(ctx)
			}
		case e := <-evCh:
			if e == nil {
				continue
			}
			if c.pipe != nil {
				_ = c.pipe.Process(ctx, e)
			} else {
				_ = c.proc.Process(ctx, e)
			}
		}
	}
}

func (c *EventCollector) Stop() error { return c.stream.Close() }

// Processor returns the underlying EventProcessor for lifecycle management.
func (c *EventCollector) Processor() *EventProcessor { return c.proc }

// Shutdown stops the pipeline and closes the stream.
func (c *EventCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	return c.stream.Close()
}
