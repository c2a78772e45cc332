package relay

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/KashirApp/Kashir-sub002/pkg/clients"
	"github.com/KashirApp/Kashir-sub002/pkg/logging"
)

// Client queries one relay endpoint over its websocket subscription
// protocol. Each Query opens a fresh connection: queries never share a
// socket, so a slow query cannot head-of-line block an unrelated one.
type Client struct {
	url    string
	logger logging.Logger
	dialer *websocket.Dialer
}

// Config represents configuration for a relay client
type Config struct {
	URL    string
	Logger logging.Logger
}

// NewClient creates a new relay client
func NewClient(cfg Config) *Client {
	dialer := &websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	return &Client{
		url:    cfg.URL,
		logger: cfg.Logger,
		dialer: dialer,
	}
}

// URL returns the relay endpoint this client talks to.
func (c *Client) URL() string { return c.url }

// Query sends one subscription request and collects events until the relay
// signals end-of-stored-events or the timeout expires.
func (c *Client) Query(ctx context.Context, filter Filter, timeout time.Duration) ([]Event, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, resp, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		return nil, clients.NewTransportError("dial", err)
	}
	defer conn.Close()

	sub := uuid.New().String()

	deadline, _ := ctx.Deadline()
	conn.SetWriteDeadline(deadline)
	req := []interface{}{"REQ", sub, filter}
	if err := conn.WriteJSON(req); err != nil {
		return nil, clients.NewTransportError("subscribe", err)
	}

	events, err := c.collect(ctx, conn, sub)

	// Best-effort unsubscribe before teardown.
	conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = conn.WriteJSON([]interface{}{"CLOSE", sub})

	if err != nil {
		return nil, err
	}

	c.logger.WithFields(logging.Fields{
		"relay":  c.url,
		"events": len(events),
	}).Debug("Relay query complete")

	return events, nil
}

func (c *Client) collect(ctx context.Context, conn *websocket.Conn, sub string) ([]Event, error) {
	deadline, _ := ctx.Deadline()
	conn.SetReadDeadline(deadline)

	var events []Event
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return nil, clients.NewTransportError("read", err)
		}

		frame, label, err := decodeFrame(payload)
		if err != nil {
			c.logger.WithError(err).WithField("relay", c.url).Warn("Skipping malformed relay frame")
			continue
		}

		switch label {
		case "EVENT":
			if len(frame) < 3 {
				c.logger.WithField("relay", c.url).Warn("Skipping truncated EVENT frame")
				continue
			}
			var frameSub string
			if err := json.Unmarshal(frame[1], &frameSub); err != nil || frameSub != sub {
				continue
			}
			var evt Event
			if err := json.Unmarshal(frame[2], &evt); err != nil {
				c.logger.WithError(err).WithField("relay", c.url).Warn("Skipping unparseable event")
				continue
			}
			events = append(events, evt)

		case "EOSE":
			if len(frame) < 2 {
				continue
			}
			var frameSub string
			if err := json.Unmarshal(frame[1], &frameSub); err != nil || frameSub != sub {
				// End-of-stream for some other subscription; not ours.
				continue
			}
			return events, nil

		case "NOTICE":
			msg := noticeText(frame)
			if strings.Contains(strings.ToLower(msg), "error") {
				return nil, clients.NewProtocolError("query", "relay notice: %s", msg)
			}
			c.logger.WithFields(logging.Fields{
				"relay":  c.url,
				"notice": msg,
			}).Info("Relay notice")

		default:
			// Unknown frame kinds are ignored.
		}
	}
}

// decodeFrame splits a wire frame into its raw elements and first label.
func decodeFrame(payload []byte) ([]json.RawMessage, string, error) {
	var frame []json.RawMessage
	if err := json.Unmarshal(payload, &frame); err != nil {
		return nil, "", clients.NewProtocolError("decode", "frame is not a JSON array: %v", err)
	}
	if len(frame) == 0 {
		return nil, "", clients.NewProtocolError("decode", "empty frame")
	}
	var label string
	if err := json.Unmarshal(frame[0], &label); err != nil {
		return nil, "", clients.NewProtocolError("decode", "frame label is not a string: %v", err)
	}
	return frame, label, nil
}

func noticeText(frame []json.RawMessage) string {
	if len(frame) < 2 {
		return ""
	}
	var msg string
	if err := json.Unmarshal(frame[1], &msg); err != nil {
		return string(frame[1])
	}
	return msg
}
