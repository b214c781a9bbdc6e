package llmclient

import (
	"context"

	"github.com/nevindra/codexcore"
)

// ResponseStream is a single-consumer channel of decoded ResponseEvents.
// Dropping it (calling Close without draining Events) cancels the
// underlying HTTP body read via the stream's context.
type ResponseStream struct {
	Events     <-chan codexcore.ResponseEvent
	RateLimits *codexcore.RateLimitSnapshot

	cancel context.CancelFunc
	done   <-chan error
}

// Close cancels the pump. Safe to call multiple times.
func (s *ResponseStream) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Wait blocks until the pump goroutine exits and returns its terminal
// error (nil on a clean Completed event). Callers that fully drain Events
// before calling Wait get the authoritative reason the channel closed.
func (s *ResponseStream) Wait() error {
	if s.done == nil {
		return nil
	}
	return <-s.done
}
