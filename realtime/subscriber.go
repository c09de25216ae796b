// Copyright (c) 2025 Placepact Authors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	reconnectBaseDelay   = 1 * time.Second
	reconnectMaxDelay    = 30 * time.Second
	maxReconnectAttempts = 5
)

// Connection states reported by Subscriber.State.
const (
	StateConnected    = "connected"
	StateReconnecting = "reconnecting"
	StateFailed       = "failed"
)

// ReconnectDelay returns the wait before reconnect attempt n (1-based):
// one second doubling per attempt, capped at thirty seconds.
func ReconnectDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := reconnectBaseDelay << (attempt - 1)
	if delay > reconnectMaxDelay || delay <= 0 {
		return reconnectMaxDelay
	}
	return delay
}

// StateChange reports a subscriber transition. Attempt is set only for
// StateReconnecting.
type StateChange struct {
	State   string
	Attempt int
}

// Subscriber maintains a client connection to a session's event stream,
// reconnecting with exponential backoff when it drops.
type Subscriber struct {
	url    string
	dialer *websocket.Dialer

	Events chan *Message
	States chan StateChange
}

// NewSubscriber prepares a subscriber for the given ws:// URL. Call Run
// to connect.
func NewSubscriber(url string) *Subscriber {
	return &Subscriber{
		url:    url,
		dialer: websocket.DefaultDialer,
		Events: make(chan *Message, 64),
		States: make(chan StateChange, 16),
	}
}

// Run connects and delivers events until the context is cancelled or
// the reconnect budget is exhausted. Events and States are closed on
// return.
func (s *Subscriber) Run(ctx context.Context) error {
	defer close(s.Events)
	defer close(s.States)

	attempt := 0
	for {
		conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
		if err == nil {
			attempt = 0
			s.notify(StateChange{State: StateConnected})
			err = s.consume(ctx, conn)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		attempt++
		if attempt > maxReconnectAttempts {
			s.notify(StateChange{State: StateFailed})
			return fmt.Errorf("gave up after %d reconnect attempts: %w", maxReconnectAttempts, err)
		}

		delay := ReconnectDelay(attempt)
		s.notify(StateChange{State: StateReconnecting, Attempt: attempt})
		slog.Info("reconnecting to event stream",
			"url", s.url, "attempt", attempt, "delay", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// consume reads events until the connection fails or the context ends.
func (s *Subscriber) consume(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			slog.Warn("discarding malformed event", "error", err)
			continue
		}

		select {
		case s.Events <- &msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Subscriber) notify(change StateChange) {
	select {
	case s.States <- change:
	default:
	}
}
