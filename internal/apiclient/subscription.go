// ABOUTME: Server-sent events subscription to a conversation's snapshot stream
// ABOUTME: Parses event/data framed lines into chat.Message snapshot slices

package apiclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/2389/parley/internal/chat"
)

// Snapshots can carry an entire conversation, so the line buffer needs more
// room than bufio's default.
const maxSSELineSize = 4 * 1024 * 1024

// streamSubscription consumes one SSE stream. It satisfies chat.Subscription.
type streamSubscription struct {
	snaps     chan []chat.Message
	errs      chan error
	cancel    context.CancelFunc
	closeOnce sync.Once
	logger    *slog.Logger
}

// SubscribeMessages opens the conversation's snapshot stream. The returned
// subscription stays open until Close is called, ctx is cancelled, or the
// server ends the stream.
func (c *Client) SubscribeMessages(ctx context.Context, conversationID string) (chat.Subscription, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	url := c.baseURL + "/api/conversations/" + conversationID + "/stream"
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating stream request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("opening stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		err := statusError(resp)
		resp.Body.Close()
		cancel()
		return nil, err
	}

	sub := &streamSubscription{
		snaps:  make(chan []chat.Message, 4),
		errs:   make(chan error, 1),
		cancel: cancel,
		logger: c.logger,
	}
	go sub.read(streamCtx, resp.Body)
	return sub, nil
}

func (s *streamSubscription) Snapshots() <-chan []chat.Message { return s.snaps }

func (s *streamSubscription) Err() <-chan error { return s.errs }

// Close tears down the stream. Safe to call more than once.
func (s *streamSubscription) Close() {
	s.closeOnce.Do(s.cancel)
}

// read consumes the SSE wire format: "event:" and "data:" prefixed lines
// accumulate until a blank line marks the end of one event.
func (s *streamSubscription) read(ctx context.Context, body io.ReadCloser) {
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxSSELineSize)

	var eventType string
	var data strings.Builder

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if eventType != "" || data.Len() > 0 {
				s.dispatch(ctx, eventType, data.String())
			}
			eventType = ""
			data.Reset()
			continue
		}
		if after, ok := strings.CutPrefix(line, "event: "); ok {
			eventType = after
		} else if after, ok := strings.CutPrefix(line, "data: "); ok {
			data.WriteString(after)
		}
	}

	err := scanner.Err()
	if ctx.Err() != nil {
		// Closed locally, nothing to report.
		return
	}
	if err == nil {
		err = fmt.Errorf("stream ended: %w", io.EOF)
	}
	select {
	case s.errs <- err:
	default:
	}
}

// dispatch decodes a complete event and forwards snapshots to the consumer.
func (s *streamSubscription) dispatch(ctx context.Context, eventType, data string) {
	if eventType != "snapshot" {
		s.logger.Debug("ignoring unknown stream event", "event", eventType)
		return
	}

	var wire []messageJSON
	if err := json.Unmarshal([]byte(data), &wire); err != nil {
		s.logger.Warn("malformed snapshot event", "error", err)
		return
	}

	select {
	case s.snaps <- toChatMessages(wire):
	case <-ctx.Done():
	}
}
