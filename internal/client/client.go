// Package client implements the resilient delivery layer of the drawing
// board: connection lifecycle with auto-reconnect, offline queueing of
// edits, and merging of remote shape traffic into the local replica.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ezeslucky/drawio/internal/crypto"
	"github.com/ezeslucky/drawio/internal/models"
	"github.com/ezeslucky/drawio/internal/replica"
)

const (
	// DefaultReconnectDelay is the fixed delay before a reconnect
	// attempt. No backoff growth, no retry cap.
	DefaultReconnectDelay = 1 * time.Second

	// DefaultFlushInterval is the period of the offline queue drain.
	DefaultFlushInterval = 5 * time.Second
)

// Conn is the client's view of a transport connection.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
}

// Dialer opens transport connections. Swapped for a fake in tests.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type wsDialer struct{}

func (wsDialer) Dial(ctx context.Context, rawURL string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type Config struct {
	// URL is the websocket base URL; the bearer token is appended as
	// the token query parameter.
	URL      string
	Token    string
	RoomID   string
	UserID   string
	UserName string

	// Key is the 32-byte room key; shape payloads never leave the
	// client unencrypted.
	Key []byte

	ReconnectDelay time.Duration
	FlushInterval  time.Duration
	Dialer         Dialer
}

func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.New("url is required")
	}
	if c.Token == "" {
		return errors.New("token is required")
	}
	if c.RoomID == "" || c.UserID == "" {
		return errors.New("room id and user id are required")
	}
	if len(c.Key) != crypto.KeySize {
		return fmt.Errorf("room key must be %d bytes", crypto.KeySize)
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.Dialer == nil {
		c.Dialer = wsDialer{}
	}
	return nil
}

// Client is the connection manager. State machine: disconnected →
// connecting → joined → disconnected, looping through a fixed-delay
// reconnect until Close.
type Client struct {
	cfg     Config
	replica *replica.Replica
	queue   *Queue

	mu           sync.Mutex
	conn         Conn
	connected    bool
	closed       bool
	reconnect    *time.Timer
	participants []models.Participant

	// wmu serializes transport writes from the send path, the flush
	// timer and the join handshake.
	wmu sync.Mutex

	done chan struct{}

	onParticipants     func([]models.Participant)
	onConnectionChange func(bool)
	onRoomClosed       func(roomID string)
}

func New(cfg Config, rep *replica.Replica) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		cfg:     cfg,
		replica: rep,
		queue:   NewQueue(),
		done:    make(chan struct{}),
	}, nil
}

// SetOnParticipants installs the participant-view callback. Must be
// called before Start.
func (c *Client) SetOnParticipants(fn func([]models.Participant)) { c.onParticipants = fn }

// SetOnConnectionChange installs the connectivity callback. Must be
// called before Start.
func (c *Client) SetOnConnectionChange(fn func(bool)) { c.onConnectionChange = fn }

// SetOnRoomClosed installs the room-closed callback. Must be called
// before Start.
func (c *Client) SetOnRoomClosed(fn func(roomID string)) { c.onRoomClosed = fn }

// Start begins connecting and launches the periodic queue flush. It
// does not wait for the connection to come up: edits made before then
// are queued.
func (c *Client) Start() {
	go c.flushLoop()
	go c.connect()
}

func (c *Client) dialURL() string {
	return c.cfg.URL + "?token=" + url.QueryEscape(c.cfg.Token)
}

func (c *Client) connect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	conn, err := c.cfg.Dialer.Dial(context.Background(), c.dialURL())
	if err != nil {
		slog.Warn("websocket dial failed", "error", err)
		c.scheduleReconnect()
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.notifyConnection(true)

	// Joining is fire-and-forget: the client counts as connected on
	// transport-open, not on the join being accepted.
	c.writeJSON(conn, models.Envelope{
		Type:     models.MessageTypeJoin,
		RoomID:   c.cfg.RoomID,
		UserID:   c.cfg.UserID,
		UserName: c.cfg.UserName,
	})

	go c.readLoop(conn)
}

func (c *Client) readLoop(conn Conn) {
	for {
		var env models.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				slog.Error("dropping unparseable message", "error", err)
				continue
			}
			c.handleDisconnect(conn, err)
			return
		}
		c.handleEnvelope(env)
	}
}

func (c *Client) handleDisconnect(conn Conn, err error) {
	c.mu.Lock()
	if c.closed || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.connected = false
	c.mu.Unlock()

	_ = conn.Close()
	slog.Warn("websocket closed", "error", err)
	c.notifyConnection(false)
	c.scheduleReconnect()
}

func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.reconnect = time.AfterFunc(c.cfg.ReconnectDelay, c.connect)
}

// handleEnvelope dispatches one inbound envelope. Shape traffic from
// this client is discarded (echo suppression); decrypt or parse
// failures drop the envelope and keep the connection.
func (c *Client) handleEnvelope(env models.Envelope) {
	switch env.Type {
	case models.MessageTypeConnectionReady:
		// Server greeting, nothing to do.

	case models.MessageTypeUserJoined:
		if env.Participants != nil {
			c.setParticipants(env.Participants)
		}

	case models.MessageTypeUserLeft:
		if env.UserID != "" {
			c.removeParticipant(env.UserID)
		}

	case models.MessageTypeDraw, models.MessageTypeUpdate:
		if env.UserID == c.cfg.UserID || env.Message == "" {
			return
		}
		plaintext, err := crypto.DecryptFromBase64(env.Message, c.cfg.Key)
		if err != nil {
			slog.Error("failed to decrypt shape payload", "shape_id", env.ID, "error", err)
			return
		}
		var shape models.Shape
		if err := json.Unmarshal(plaintext, &shape); err != nil {
			slog.Error("failed to parse shape payload", "shape_id", env.ID, "error", err)
			return
		}
		if err := shape.Validate(); err != nil {
			slog.Error("dropping invalid remote shape", "error", err)
			return
		}
		c.replica.Upsert(shape)

	case models.MessageTypeEraser:
		if env.UserID != c.cfg.UserID && env.ID != "" {
			c.replica.Remove(env.ID)
		}

	case models.MessageTypeRoomClosed:
		if c.onRoomClosed != nil {
			c.onRoomClosed(env.RoomID)
		}

	default:
		slog.Warn("unknown envelope type", "type", env.Type)
	}
}

// SendShape encrypts and sends a DRAW or UPDATE for the given shape,
// queueing it if the transport is down.
func (c *Client) SendShape(msgType models.MessageType, shape models.Shape) error {
	if msgType != models.MessageTypeDraw && msgType != models.MessageTypeUpdate {
		return fmt.Errorf("cannot send shape as %s", msgType)
	}
	if err := shape.Validate(); err != nil {
		return err
	}

	plaintext, err := json.Marshal(shape)
	if err != nil {
		return fmt.Errorf("failed to marshal shape: %w", err)
	}
	encrypted, err := crypto.EncryptToBase64(plaintext, c.cfg.Key)
	if err != nil {
		return fmt.Errorf("failed to encrypt shape: %w", err)
	}

	c.Send(models.Envelope{
		Type:      msgType,
		RoomID:    c.cfg.RoomID,
		UserID:    c.cfg.UserID,
		UserName:  c.cfg.UserName,
		ID:        shape.ID,
		Message:   encrypted,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
	return nil
}

// SendErase sends an ERASER for the given shape id.
func (c *Client) SendErase(shapeID string) {
	c.Send(models.Envelope{
		Type:      models.MessageTypeEraser,
		RoomID:    c.cfg.RoomID,
		UserID:    c.cfg.UserID,
		UserName:  c.cfg.UserName,
		ID:        shapeID,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// Send attempts immediate delivery if the transport is open and
// otherwise hands the envelope to the offline queue. An edit is never
// rejected for being offline.
func (c *Client) Send(env models.Envelope) {
	c.mu.Lock()
	conn, open := c.conn, c.connected
	c.mu.Unlock()

	if open && conn != nil {
		if c.writeJSON(conn, env) {
			return
		}
	}
	c.queue.Enqueue(env)
}

// writeJSON performs one serialized transport write. Returns false on
// failure; the caller decides whether to queue.
func (c *Client) writeJSON(conn Conn, env models.Envelope) bool {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := conn.WriteJSON(env); err != nil {
		slog.Warn("websocket write failed", "type", env.Type, "error", err)
		return false
	}
	return true
}

func (c *Client) flushLoop() {
	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if c.IsConnected() {
				c.queue.Flush(c.trySend)
			}
		}
	}
}

func (c *Client) trySend(env models.Envelope) bool {
	c.mu.Lock()
	conn, open := c.conn, c.connected
	c.mu.Unlock()

	if !open || conn == nil {
		return false
	}
	return c.writeJSON(conn, env)
}

// Close tears the client down: announces the leave if possible, stops
// the flush and reconnect timers, and releases the transport. No
// callbacks fire after Close returns.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn, open := c.conn, c.connected
	c.conn = nil
	c.connected = false
	if c.reconnect != nil {
		c.reconnect.Stop()
	}
	c.mu.Unlock()

	close(c.done)

	if open && conn != nil {
		c.writeJSON(conn, models.Envelope{
			Type:   models.MessageTypeLeave,
			RoomID: c.cfg.RoomID,
			UserID: c.cfg.UserID,
		})
		return conn.Close()
	}
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// QueuedCount reports how many envelopes await delivery.
func (c *Client) QueuedCount() int {
	return c.queue.Len()
}

// Participants returns the last known participant view of the room.
func (c *Client) Participants() []models.Participant {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Participant, len(c.participants))
	copy(out, c.participants)
	return out
}

func (c *Client) setParticipants(participants []models.Participant) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.participants = participants
	fn := c.onParticipants
	c.mu.Unlock()

	if fn != nil {
		fn(participants)
	}
}

func (c *Client) removeParticipant(userID string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	remaining := c.participants[:0]
	for _, p := range c.participants {
		if p.UserID != userID {
			remaining = append(remaining, p)
		}
	}
	c.participants = remaining
	snapshot := make([]models.Participant, len(remaining))
	copy(snapshot, remaining)
	fn := c.onParticipants
	c.mu.Unlock()

	if fn != nil {
		fn(snapshot)
	}
}

func (c *Client) notifyConnection(up bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	fn := c.onConnectionChange
	c.mu.Unlock()

	if fn != nil {
		fn(up)
	}
}
