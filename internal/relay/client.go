// Package relay implements the websocket client for the record relay
// network: queries fan out to every configured relay and results are
// merged, publishes succeed once any relay acknowledges.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"chorus/internal/core"
)

const (
	// frameEvent carries a record from or to a relay
	frameEvent = "EVENT"
	// frameRequest opens a query subscription
	frameRequest = "REQ"
	// frameClose closes a query subscription
	frameClose = "CLOSE"
	// frameEndOfStored signals that all stored records were delivered
	frameEndOfStored = "EOSE"
	// frameOK acknowledges a published record
	frameOK = "OK"
	// frameNotice carries a human-readable relay message
	frameNotice = "NOTICE"
)

var (
	// ErrNoRelays is returned when the client has no configured relays.
	ErrNoRelays = errors.New("no relays configured")
	// ErrAllRelaysFailed is returned when every relay query failed.
	ErrAllRelaysFailed = errors.New("all relay queries failed")
	// ErrPublishRejected is returned when no relay accepted a record.
	ErrPublishRejected = errors.New("no relay accepted the record")
)

// Client talks to a set of relays. It implements core.RelayClient.
// Delivery is at-least-once: the same record may arrive from several
// relays, and callers are expected to deduplicate downstream.
type Client struct {
	config *core.RelayConfig
	logger *zap.Logger

	limiter *rate.Limiter
	dialer  *websocket.Dialer
}

// NewClient creates a relay client for the configured relay set.
func NewClient(config *core.RelayConfig, logger *zap.Logger) *Client {
	return &Client{
		config:  config,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(config.RatePerSecond), config.RateBurst),
		dialer:  websocket.DefaultDialer,
	}
}

// Query sends the filter disjunction to every relay and merges the
// results, dropping byte-identical duplicates by record ID. It fails
// only when every relay fails.
func (c *Client) Query(ctx context.Context, filters []core.Filter) ([]core.RawRecord, error) {
	if len(c.config.URLs) == 0 {
		return nil, ErrNoRelays
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.QueryTimeout)
	defer cancel()

	type relayResult struct {
		records []core.RawRecord
		err     error
	}

	results := make(chan relayResult, len(c.config.URLs))
	var wg sync.WaitGroup

	for _, url := range c.config.URLs {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			records, err := c.queryRelay(ctx, url, filters)
			if err != nil {
				c.logger.Warn("Relay query failed",
					zap.String("relay", url),
					zap.Error(err))
			}
			results <- relayResult{records: records, err: err}
		}(url)
	}

	wg.Wait()
	close(results)

	seen := make(map[string]struct{})
	var merged []core.RawRecord
	var lastErr error
	failures := 0

	for res := range results {
		if res.err != nil {
			failures++
			lastErr = res.err
			continue
		}
		for _, rec := range res.records {
			if _, dup := seen[rec.ID]; dup {
				continue
			}
			seen[rec.ID] = struct{}{}
			merged = append(merged, rec)
		}
	}

	if failures == len(c.config.URLs) {
		return nil, fmt.Errorf("%w: %w", ErrAllRelaysFailed, lastErr)
	}

	return merged, nil
}

func (c *Client) queryRelay(ctx context.Context, url string, filters []core.Filter) ([]core.RawRecord, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	conn, _, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
		_ = conn.SetWriteDeadline(deadline)
	}

	subID := fmt.Sprintf("chorus-%d", time.Now().UnixNano())

	request := []interface{}{frameRequest, subID}
	for _, f := range filters {
		request = append(request, toWireFilter(f))
	}
	if err := conn.WriteJSON(request); err != nil {
		return nil, fmt.Errorf("send query: %w", err)
	}

	var records []core.RawRecord
	for {
		frame, err := readFrame(conn)
		if err != nil {
			return nil, fmt.Errorf("read frame: %w", err)
		}

		switch frameType(frame) {
		case frameEvent:
			if len(frame) < 3 {
				continue
			}
			var ev wireEvent
			if err := json.Unmarshal(frame[2], &ev); err != nil {
				c.logger.Debug("Skipping undecodable event",
					zap.String("relay", url),
					zap.Error(err))
				continue
			}
			records = append(records, fromWireEvent(ev))
		case frameEndOfStored:
			_ = conn.WriteJSON([]interface{}{frameClose, subID})
			return records, nil
		case frameNotice:
			c.logger.Debug("Relay notice",
				zap.String("relay", url),
				zap.String("notice", frameText(frame, 1)))
		default:
			// Unknown frame types are ignored for forward compatibility.
		}
	}
}

// Publish broadcasts a signed record to every relay and succeeds once
// any relay acknowledges it.
func (c *Client) Publish(ctx context.Context, rec core.RawRecord) error {
	if len(c.config.URLs) == 0 {
		return ErrNoRelays
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.PublishTimeout)
	defer cancel()

	acks := make(chan error, len(c.config.URLs))
	var wg sync.WaitGroup

	for _, url := range c.config.URLs {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			acks <- c.publishRelay(ctx, url, rec)
		}(url)
	}

	wg.Wait()
	close(acks)

	var lastErr error
	for err := range acks {
		if err == nil {
			return nil
		}
		lastErr = err
	}

	return fmt.Errorf("%w: %w", ErrPublishRejected, lastErr)
}

func (c *Client) publishRelay(ctx context.Context, url string, rec core.RawRecord) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	conn, _, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
		_ = conn.SetWriteDeadline(deadline)
	}

	if err := conn.WriteJSON([]interface{}{frameEvent, toWireEvent(rec)}); err != nil {
		return fmt.Errorf("send record: %w", err)
	}

	for {
		frame, err := readFrame(conn)
		if err != nil {
			return fmt.Errorf("read ack: %w", err)
		}

		if frameType(frame) != frameOK {
			continue
		}

		if len(frame) < 3 {
			return fmt.Errorf("malformed ack from %s", url)
		}

		var accepted bool
		if err := json.Unmarshal(frame[2], &accepted); err != nil {
			return fmt.Errorf("malformed ack from %s: %w", url, err)
		}
		if !accepted {
			return fmt.Errorf("relay %s rejected record: %s", url, frameText(frame, 3))
		}

		c.logger.Debug("Record accepted",
			zap.String("relay", url),
			zap.String("recordID", rec.ID))
		return nil
	}
}

func readFrame(conn *websocket.Conn) ([]json.RawMessage, error) {
	_, message, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	var frame []json.RawMessage
	if err := json.Unmarshal(message, &frame); err != nil {
		return nil, fmt.Errorf("unmarshal frame: %w", err)
	}
	if len(frame) == 0 {
		return nil, errors.New("empty frame")
	}
	return frame, nil
}

func frameType(frame []json.RawMessage) string {
	return frameText(frame, 0)
}

func frameText(frame []json.RawMessage, index int) string {
	if index >= len(frame) {
		return ""
	}
	var s string
	if err := json.Unmarshal(frame[index], &s); err != nil {
		return ""
	}
	return s
}
