package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrRoomNotFound = errors.New("room not found")
)

// ShapeKind tags the variant of a Shape.
type ShapeKind string

const (
	ShapeRectangle ShapeKind = "rectangle"
	ShapeEllipse   ShapeKind = "ellipse"
	ShapeDiamond   ShapeKind = "diamond"
	ShapeLine      ShapeKind = "line"
	ShapeArrow     ShapeKind = "arrow"
	ShapeFreeDraw  ShapeKind = "free-draw"
	ShapeText      ShapeKind = "text"
)

var shapeKinds = map[ShapeKind]bool{
	ShapeRectangle: true,
	ShapeEllipse:   true,
	ShapeDiamond:   true,
	ShapeLine:      true,
	ShapeArrow:     true,
	ShapeFreeDraw:  true,
	ShapeText:      true,
}

// Point is a single coordinate of a line, arrow or free-draw path.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Shape is one drawable element of the canvas. The ID is assigned at
// creation, never reused, and is the sole merge key for synchronization.
// Geometry and style fields are opaque to the sync layer.
type Shape struct {
	ID          string    `json:"id"`
	Kind        ShapeKind `json:"kind"`
	X           float64   `json:"x,omitempty"`
	Y           float64   `json:"y,omitempty"`
	Width       float64   `json:"width,omitempty"`
	Height      float64   `json:"height,omitempty"`
	Points      []Point   `json:"points,omitempty"`
	Text        string    `json:"text,omitempty"`
	StrokeFill  string    `json:"strokeFill,omitempty"`
	BgFill      string    `json:"bgFill,omitempty"`
	StrokeWidth float64   `json:"strokeWidth,omitempty"`
	StrokeStyle string    `json:"strokeStyle,omitempty"`
	FontFamily  string    `json:"fontFamily,omitempty"`
	FontSize    string    `json:"fontSize,omitempty"`
}

func (s *Shape) Validate() error {
	if s.ID == "" {
		return errors.New("shape missing id")
	}
	if !shapeKinds[s.Kind] {
		return fmt.Errorf("unknown shape kind %q", s.Kind)
	}
	return nil
}

// Participant is the public identity of a connected room member. It is
// always derived from live sessions, never stored.
type Participant struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// Room is a named collaboration scope persisted in the durable store.
// Membership of a live room is tracked by the session registry, not here.
type Room struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedBy string `json:"createdBy"`
	CreatedAt int64  `json:"createdAt"` // Unix timestamp (seconds)
}

// MessageType discriminates the Envelope union.
type MessageType string

const (
	MessageTypeJoin            MessageType = "JOIN"
	MessageTypeLeave           MessageType = "LEAVE"
	MessageTypeCloseRoom       MessageType = "CLOSE_ROOM"
	MessageTypeUserJoined      MessageType = "USER_JOINED"
	MessageTypeUserLeft        MessageType = "USER_LEFT"
	MessageTypeRoomClosed      MessageType = "ROOM_CLOSED"
	MessageTypeDraw            MessageType = "DRAW"
	MessageTypeUpdate          MessageType = "UPDATE"
	MessageTypeEraser          MessageType = "ERASER"
	MessageTypeConnectionReady MessageType = "CONNECTION_READY"
)

// Envelope is the wire-level message unit exchanged over the websocket.
// Message carries an opaque (encrypted) serialized Shape for DRAW/UPDATE
// and is empty for structural messages. Participants is populated only on
// USER_JOINED notifications and JOIN replies.
type Envelope struct {
	Type         MessageType   `json:"type"`
	RoomID       string        `json:"roomId,omitempty"`
	UserID       string        `json:"userId,omitempty"`
	UserName     string        `json:"userName,omitempty"`
	ID           string        `json:"id,omitempty"`
	Message      string        `json:"message,omitempty"`
	Participants []Participant `json:"participants,omitempty"`
	Timestamp    string        `json:"timestamp,omitempty"`
}

// Validate checks the per-type required fields once at the boundary.
// Every envelope past the transport handshake must carry roomId and
// userId; DRAW and UPDATE additionally need the shape id and payload,
// ERASER the shape id.
func (e *Envelope) Validate() error {
	if e.RoomID == "" {
		return fmt.Errorf("%s envelope missing roomId", e.Type)
	}
	if e.UserID == "" {
		return fmt.Errorf("%s envelope missing userId", e.Type)
	}

	switch e.Type {
	case MessageTypeDraw, MessageTypeUpdate:
		if e.ID == "" || e.Message == "" {
			return fmt.Errorf("%s envelope missing shape id or payload", e.Type)
		}
	case MessageTypeEraser:
		if e.ID == "" {
			return fmt.Errorf("%s envelope missing shape id", e.Type)
		}
	}

	return nil
}
