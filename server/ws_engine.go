package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"deadsongs/core/apperr"
)

type loadReply struct {
	duration float64
	err      error
}

// wsEngine is a MediaEngine whose audio element lives in the browser.
// Every load gets a token; media reports for an older token are ignored.
type wsEngine struct {
	client  *wsClient
	timeout time.Duration

	mu      sync.Mutex
	token   uint64
	pending chan loadReply
}

func newWSEngine(client *wsClient, timeout time.Duration) *wsEngine {
	return &wsEngine{client: client, timeout: timeout}
}

// Load asks the browser to load url and waits for "loaded" or "load_error".
func (e *wsEngine) Load(ctx context.Context, url string) (float64, error) {
	reply := make(chan loadReply, 1)

	e.mu.Lock()
	if e.pending != nil {
		e.pending <- loadReply{err: apperr.ErrSuperseded}
	}
	e.token++
	tok := e.token
	e.pending = reply
	e.mu.Unlock()

	if err := e.client.Send(serverMessage{Type: "load", Token: tok, URL: url}); err != nil {
		e.drop(tok)
		return 0, err
	}

	var timeout <-chan time.Time
	if e.timeout > 0 {
		t := time.NewTimer(e.timeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case r := <-reply:
		return r.duration, r.err
	case <-ctx.Done():
		e.drop(tok)
		return 0, ctx.Err()
	case <-e.client.done:
		e.drop(tok)
		return 0, errClientClosed
	case <-timeout:
		e.drop(tok)
		return 0, fmt.Errorf("media load timed out after %s", e.timeout)
	}
}

func (e *wsEngine) drop(tok uint64) {
	e.mu.Lock()
	if e.token == tok {
		e.pending = nil
	}
	e.mu.Unlock()
}

// resolve completes the pending load for tok. It reports false when no
// load with that token is waiting.
func (e *wsEngine) resolve(tok uint64, r loadReply) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if tok != e.token || e.pending == nil {
		return false
	}
	e.pending <- r
	e.pending = nil
	return true
}

// current reports whether tok belongs to the media now loaded.
func (e *wsEngine) current(tok uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return tok == e.token
}

func (e *wsEngine) Play() error {
	return e.client.Send(serverMessage{Type: "play"})
}

func (e *wsEngine) Pause() error {
	return e.client.Send(serverMessage{Type: "pause"})
}

func (e *wsEngine) Seek(seconds float64) error {
	return e.client.Send(serverMessage{Type: "seek", Value: &seconds})
}

func (e *wsEngine) SetVolume(v float64) error {
	return e.client.Send(serverMessage{Type: "volume", Value: &v})
}

func loadError(message string) error {
	if message == "" {
		message = "media error"
	}
	return errors.New(message)
}
