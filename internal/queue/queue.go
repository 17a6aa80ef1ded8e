// Package queue carries scrape requests from the scheduler and API to the
// worker pool.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrClosed is returned by Dequeue once the queue has been closed.
var ErrClosed = errors.New("queue closed")

// Request asks a worker to run the pipeline for one signal.
type Request struct {
	SignalID    string    `json:"signalId"`
	DryRun      bool      `json:"dryRun"`
	RequestedAt time.Time `json:"requestedAt"`
}

// Queue is the transport between producers and workers.
type Queue interface {
	Enqueue(ctx context.Context, req Request) error
	Dequeue(ctx context.Context) (Request, error)
	Close()
}

// Encode serializes req for wire transports.
func Encode(req Request) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return data, nil
}

// Decode parses a request produced by Encode.
func Decode(data []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, fmt.Errorf("decode request: %w", err)
	}
	if req.SignalID == "" {
		return Request{}, errors.New("decode request: signalId is required")
	}
	return req, nil
}
