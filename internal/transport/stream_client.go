// Package transport keeps the websocket session with the dialogue service.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/cortexface/internal/bridge"
)

var (
	ErrNotConnected = errors.New("transport: not connected")
	ErrBackpressure = errors.New("transport: outbound buffer full")
)

// Message types on the session socket.
const (
	TypeHello        = "hello"
	TypeUtterance    = "utterance"
	TypeTurnComplete = "turn_complete"
	TypeError        = "error"
	TypePing         = "ping"
	TypePong         = "pong"
)

// HelloMessage announces this participant after dialing.
type HelloMessage struct {
	Type          string `json:"type"`
	ParticipantID string `json:"participant_id"`
	Role          string `json:"role"`
}

// UtteranceMessage carries one utterance from the dialogue service.
type UtteranceMessage struct {
	Type string `json:"type"`
	bridge.Utterance
}

// TurnCompleteMessage tells the service the avatar finished speaking.
type TurnCompleteMessage struct {
	Type          string `json:"type"`
	ParticipantID string `json:"participant_id,omitempty"`
	Timestamp     string `json:"timestamp"`
}

// ErrorMessage reports errors
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type Config struct {
	URL           string
	Path          string
	ParticipantID string
	MinBackoff    time.Duration
	MaxBackoff    time.Duration
	WriteTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Path == "" {
		c.Path = "/v1/avatar/ws"
	}
	if c.MinBackoff <= 0 {
		c.MinBackoff = 3 * time.Second
	}
	if c.MaxBackoff < c.MinBackoff {
		c.MaxBackoff = max(60*time.Second, c.MinBackoff)
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	return c
}

// StreamClient connects to the dialogue service and feeds utterances to a
// single handler.
type StreamClient struct {
	cfg    Config
	logger zerolog.Logger
	out    chan any

	mu        sync.RWMutex
	connected bool
	writeMu   sync.Mutex

	onUtterance  func(u bridge.Utterance) error
	onError      func(err error)
	onConnection func(connected bool)
}

func NewStreamClient(cfg Config, logger zerolog.Logger) *StreamClient {
	return &StreamClient{
		cfg:    cfg.withDefaults(),
		logger: logger.With().Str("component", "session-stream").Logger(),
		out:    make(chan any, 16),
	}
}

// SetUtteranceHandler sets the callback for inbound utterances. It runs on the
// reader goroutine.
func (c *StreamClient) SetUtteranceHandler(fn func(u bridge.Utterance) error) {
	c.onUtterance = fn
}

// SetErrorCallback sets the callback for errors
func (c *StreamClient) SetErrorCallback(cb func(err error)) {
	c.onError = cb
}

func (c *StreamClient) SetConnectionCallback(cb func(connected bool)) {
	c.onConnection = cb
}

// IsConnected returns connection status
func (c *StreamClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SendTurnComplete queues a turn_complete message. It never blocks.
func (c *StreamClient) SendTurnComplete() error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	msg := TurnCompleteMessage{
		Type:          TypeTurnComplete,
		ParticipantID: c.cfg.ParticipantID,
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case c.out <- msg:
		return nil
	default:
		return ErrBackpressure
	}
}

// Run maintains the connection with reconnection until ctx is done.
func (c *StreamClient) Run(ctx context.Context) error {
	backoff := c.cfg.MinBackoff
	consecutiveFailures := 0

	for {
		if ctx.Err() != nil {
			return nil
		}
		err := c.connectWS(ctx)
		c.setConnected(false)
		if ctx.Err() != nil {
			return nil
		}

		if err == nil {
			backoff = c.cfg.MinBackoff
			consecutiveFailures = 0
			c.logger.Info().Dur("delay", backoff).Msg("Session WebSocket closed by server, reconnecting")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			continue
		}

		consecutiveFailures++
		if consecutiveFailures >= 3 {
			if consecutiveFailures == 3 {
				c.logger.Warn().
					Err(err).
					Int("failures", consecutiveFailures).
					Msg("Session WebSocket not available, will retry less frequently")
			} else {
				c.logger.Debug().
					Int("failures", consecutiveFailures).
					Msg("Session WebSocket still unavailable")
			}
			backoff = c.cfg.MaxBackoff
		} else {
			c.logger.Warn().Err(err).Msg("WebSocket connection failed, reconnecting...")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		if backoff < c.cfg.MaxBackoff {
			backoff = min(backoff*2, c.cfg.MaxBackoff)
		}
	}
}

func (c *StreamClient) endpoint() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = c.cfg.Path
	return u.String(), nil
}

// connectWS serves one connection. It returns nil when the peer closed the
// socket normally.
func (c *StreamClient) connectWS(ctx context.Context) error {
	endpoint, err := c.endpoint()
	if err != nil {
		return err
	}

	c.logger.Info().Str("url", endpoint).Msg("Connecting to session WebSocket")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	if err := c.write(conn, HelloMessage{Type: TypeHello, ParticipantID: c.cfg.ParticipantID, Role: "avatar"}); err != nil {
		return fmt.Errorf("hello: %w", err)
	}
	c.setConnected(true)
	c.logger.Info().Msg("Connected to session WebSocket")

	go c.writeLoop(connCtx, conn)

	for {
		var msg json.RawMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		c.handleMessage(conn, msg)
	}
}

func (c *StreamClient) writeLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.out:
			if err := c.write(conn, msg); err != nil {
				c.logger.Warn().Err(err).Msg("write failed")
				conn.Close()
				return
			}
		}
	}
}

// write serializes writers; gorilla connections allow one at a time.
func (c *StreamClient) write(conn *websocket.Conn, msg any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}

func (c *StreamClient) setConnected(connected bool) {
	c.mu.Lock()
	changed := c.connected != connected
	c.connected = connected
	c.mu.Unlock()

	if changed && c.onConnection != nil {
		c.onConnection(connected)
	}
}

// handleMessage processes incoming WebSocket messages
func (c *StreamClient) handleMessage(conn *websocket.Conn, raw json.RawMessage) {
	var typeMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &typeMsg); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to parse message type")
		return
	}

	switch typeMsg.Type {
	case TypeUtterance:
		var msg UtteranceMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to parse utterance message")
			return
		}
		if c.onUtterance == nil {
			return
		}
		if err := c.onUtterance(msg.Utterance); err != nil {
			c.logger.Debug().Err(err).Str("speaker", msg.SpeakerID).Msg("Utterance dropped")
		}

	case TypePing:
		if err := c.write(conn, map[string]string{"type": TypePong}); err != nil {
			c.logger.Debug().Err(err).Msg("pong failed")
		}

	case TypeError:
		var msg ErrorMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to parse error message")
			return
		}
		c.logger.Warn().Str("message", msg.Message).Msg("Server error")

		if c.onError != nil {
			c.onError(fmt.Errorf("server: %s", msg.Message))
		}

	default:
		c.logger.Debug().Str("type", typeMsg.Type).Msg("Unknown message type")
	}
}
