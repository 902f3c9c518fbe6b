// Package worker implements the worker main loop: reservation, dispatch to
// a child process, accounting, and the signal-driven control plane.
//
// This file holds example job handlers for demonstration. A real deployment
// registers its own handlers with a HandlerRegistry; these exist so
// cmd/ember-worker has something to run out of the box.
package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/emberqueue/ember/internal/job"
	"github.com/emberqueue/ember/internal/logger"
)

// HandleCountItems counts items in a JSON array argument list.
func HandleCountItems(ctx context.Context, p *job.Payload) ([]byte, error) {
	var items []string
	if err := p.UnmarshalArgs(&items); err != nil {
		return nil, err
	}
	logger.Default().WithComponent(logger.ComponentWorker).Info("counted items", "job_id", p.ID, "count", len(items))
	return json.Marshal(map[string]int{"count": len(items)})
}

// HandleSendEmail simulates sending an email.
func HandleSendEmail(ctx context.Context, p *job.Payload) ([]byte, error) {
	var email struct {
		To      string `json:"to"`
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := p.UnmarshalArgs(&email); err != nil {
		return nil, err
	}
	logger.Default().WithComponent(logger.ComponentWorker).Info("sending email", "job_id", p.ID, "to", email.To)
	time.Sleep(2 * time.Second)
	return nil, nil
}

// HandleProcessData simulates data processing.
func HandleProcessData(ctx context.Context, p *job.Payload) ([]byte, error) {
	logger.Default().WithComponent(logger.ComponentWorker).Info("processing data", "job_id", p.ID)
	time.Sleep(3 * time.Second)
	return nil, nil
}
