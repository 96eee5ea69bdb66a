package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ezeslucky/drawio/internal/models"
	"github.com/ezeslucky/drawio/internal/session"
)

type tokenVerifier interface {
	Verify(token string) (string, error)
}

type roomDeleter interface {
	DeleteRoom(roomID string) error
}

// errTerminate signals the read loop that the connection was closed
// deliberately and handling must stop.
var errTerminate = errors.New("connection terminated")

// Server accepts websocket connections, authenticates them by the token
// query parameter, and dispatches envelopes to the registry and router.
type Server struct {
	auth     tokenVerifier
	registry *session.Registry
	router   *Router
	rooms    roomDeleter
	upgrader *websocket.Upgrader
}

func NewServer(auth tokenVerifier, registry *session.Registry, router *Router, rooms roomDeleter) *Server {
	return &Server{
		auth:     auth,
		registry: registry,
		router:   router,
		rooms:    rooms,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for now
			},
		},
	}
}

func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("error upgrading to websocket", "error", err)
		return
	}
	conn := newSafeConn(ws)

	if token == "" {
		slog.Warn("connection rejected: no token in query params")
		_ = conn.CloseWithCode(websocket.ClosePolicyViolation, "User not authenticated")
		return
	}

	userID, err := s.auth.Verify(token)
	if err != nil {
		slog.Warn("connection rejected: invalid token", "error", err)
		_ = conn.CloseWithCode(websocket.ClosePolicyViolation, "User not authenticated")
		return
	}

	// The display name starts out as the user id and may be upgraded by
	// the first envelope that carries one.
	s.registry.Register(userID, userID, conn)
	defer s.disconnect(userID, conn)

	if err := conn.WriteJSON(models.Envelope{
		Type:      models.MessageTypeConnectionReady,
		UserID:    userID,
		Timestamp: stamp(),
	}); err != nil {
		slog.Error("failed to send connection greeting", "user_id", userID, "error", err)
		return
	}

	for {
		var env models.Envelope
		if err := ws.ReadJSON(&env); err != nil {
			// A frame that is not valid JSON is dropped; only transport
			// level errors end the session.
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				slog.Error("dropping unparseable message", "user_id", userID, "error", err)
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("websocket read failed", "user_id", userID, "error", err)
			}
			return
		}

		if err := s.handleEnvelope(userID, conn, env); err != nil {
			return
		}
	}
}

// handleEnvelope processes one inbound envelope. A nil return keeps the
// connection open, including for malformed or unknown messages.
func (s *Server) handleEnvelope(userID string, conn wsConn, env models.Envelope) error {
	if err := env.Validate(); err != nil {
		slog.Error("dropping invalid envelope", "user_id", userID, "error", err)
		return nil
	}

	s.registry.AdoptUserName(userID, env.UserName)
	userName, ok := s.registry.Lookup(userID)
	if !ok {
		// Evicted by a reconnect while this envelope was in flight.
		return errTerminate
	}

	switch env.Type {
	case models.MessageTypeJoin:
		participants, err := s.registry.Join(userID, env.RoomID)
		if err != nil {
			if errors.Is(err, models.ErrRoomNotFound) {
				slog.Warn("join rejected: room not found", "room_id", env.RoomID, "user_id", userID)
			} else {
				slog.Error("join failed", "room_id", env.RoomID, "user_id", userID, "error", err)
			}
			_ = conn.CloseWithCode(websocket.ClosePolicyViolation, "room not found")
			return errTerminate
		}

		// The joiner gets the snapshot directly, everyone else gets a
		// refreshed one through the router.
		if err := conn.WriteJSON(models.Envelope{
			Type:         models.MessageTypeUserJoined,
			RoomID:       env.RoomID,
			UserID:       userID,
			UserName:     userName,
			Participants: participants,
			Timestamp:    stamp(),
		}); err != nil {
			slog.Error("failed to send join reply", "user_id", userID, "error", err)
		}

		s.router.Broadcast(env.RoomID, models.Envelope{
			Type:      models.MessageTypeUserJoined,
			RoomID:    env.RoomID,
			UserID:    userID,
			UserName:  userName,
			Timestamp: stamp(),
		}, []string{userID}, true)

	case models.MessageTypeLeave:
		s.registry.Leave(userID, env.RoomID)
		s.router.Broadcast(env.RoomID, models.Envelope{
			Type:      models.MessageTypeUserLeft,
			RoomID:    env.RoomID,
			UserID:    userID,
			UserName:  userName,
			Timestamp: stamp(),
		}, []string{userID}, true)

	case models.MessageTypeCloseRoom:
		members := s.registry.MembersOf(env.RoomID)
		if len(members) != 1 || members[0].UserID != userID {
			slog.Warn("close room rejected: not the sole participant",
				"room_id", env.RoomID, "user_id", userID)
			return nil
		}

		if err := conn.WriteJSON(models.Envelope{
			Type:      models.MessageTypeRoomClosed,
			RoomID:    env.RoomID,
			Timestamp: stamp(),
		}); err != nil {
			slog.Error("failed to send room closed notice", "user_id", userID, "error", err)
		}
		if err := s.rooms.DeleteRoom(env.RoomID); err != nil {
			slog.Error("failed to delete room", "room_id", env.RoomID, "error", err)
		}
		_ = conn.CloseWithCode(websocket.CloseNormalClosure, "Room deleted")
		return errTerminate

	case models.MessageTypeDraw, models.MessageTypeUpdate, models.MessageTypeEraser:
		// Rebroadcast with the authenticated identity, never the one the
		// client claimed. The sender is not excluded here: echo
		// suppression is client-side.
		s.router.Broadcast(env.RoomID, models.Envelope{
			Type:      env.Type,
			RoomID:    env.RoomID,
			UserID:    userID,
			UserName:  userName,
			ID:        env.ID,
			Message:   env.Message,
			Timestamp: stamp(),
		}, nil, false)

	default:
		slog.Warn("unknown envelope type", "type", env.Type, "user_id", userID)
	}

	return nil
}

// disconnect tears the session down after the read loop exits and
// announces the departure to every room the user had joined. The owner
// check keeps an evicted connection's unwind from dropping the session
// installed by a reconnect.
func (s *Server) disconnect(userID string, conn session.Conn) {
	userName, _ := s.registry.Lookup(userID)

	rooms, owned := s.registry.DropIfOwner(userID, conn)
	if !owned {
		return
	}

	for _, roomID := range rooms {
		s.router.Broadcast(roomID, models.Envelope{
			Type:      models.MessageTypeUserLeft,
			RoomID:    roomID,
			UserID:    userID,
			UserName:  userName,
			Timestamp: stamp(),
		}, []string{userID}, true)
	}
}

func stamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
