package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ezeslucky/drawio/internal/auth"
	"github.com/ezeslucky/drawio/internal/models"
	"github.com/ezeslucky/drawio/internal/session"
	"github.com/ezeslucky/drawio/internal/storage"
)

// API exposes the HTTP surface next to the websocket endpoint: token
// issuance and room management.
type API struct {
	auth     *auth.AuthService
	storage  *storage.BboltStorage
	registry *session.Registry
}

func New(authService *auth.AuthService, store *storage.BboltStorage, registry *session.Registry) *API {
	return &API{
		auth:     authService,
		storage:  store,
		registry: registry,
	}
}

// LoginHandler issues a signed token for a user. There is no account
// database: identity is a client-chosen id plus optional email, the
// token just binds it for the websocket handshake.
func (a *API) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
		Email  string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		req.UserID = uuid.NewString()
	}

	token, err := a.auth.Issue(req.UserID, req.Email)
	if err != nil {
		log.Printf("failed to issue token: %v", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]string{
		"userId": req.UserID,
		"token":  token,
	})
}

// RequireAuth wraps a handler with bearer-token verification and passes
// the resolved user id through the request header.
func (a *API) RequireAuth(next func(w http.ResponseWriter, r *http.Request, userID string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Authorization")
		if len(token) > 7 && token[:7] == "Bearer " {
			token = token[7:]
		}
		userID, err := a.auth.Verify(token)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r, userID)
	}
}

func (a *API) CreateRoomHandler(w http.ResponseWriter, r *http.Request, userID string) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	room := models.Room{
		ID:        uuid.NewString(),
		Name:      req.Name,
		CreatedBy: userID,
		CreatedAt: time.Now().Unix(),
	}
	if err := a.storage.UpsertRoom(room); err != nil {
		log.Printf("failed to create room: %v", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, room)
}

func (a *API) ListRoomsHandler(w http.ResponseWriter, r *http.Request, userID string) {
	rooms, err := a.storage.ListRooms()
	if err != nil {
		log.Printf("failed to list rooms: %v", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if rooms == nil {
		rooms = []models.Room{}
	}
	writeJSON(w, rooms)
}

// RoomHandler returns the room record plus its live participant
// snapshot.
func (a *API) RoomHandler(w http.ResponseWriter, r *http.Request, userID string) {
	roomID := r.PathValue("id")

	room, err := a.storage.GetRoom(roomID)
	if errors.Is(err, models.ErrRoomNotFound) {
		http.Error(w, "Room not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("failed to get room: %v", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, struct {
		models.Room
		Participants []models.Participant `json:"participants"`
	}{
		Room:         room,
		Participants: a.registry.ParticipantsOf(roomID),
	})
}

// DeleteRoomHandler removes the room record. Only the creator may
// delete it. Live sessions joined to the room are not kicked; their
// broadcasts simply stop reaching anyone new.
func (a *API) DeleteRoomHandler(w http.ResponseWriter, r *http.Request, userID string) {
	roomID := r.PathValue("id")

	room, err := a.storage.GetRoom(roomID)
	if errors.Is(err, models.ErrRoomNotFound) {
		http.Error(w, "Room not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("failed to get room: %v", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if room.CreatedBy != userID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	if err := a.storage.DeleteRoom(roomID); err != nil {
		log.Printf("failed to delete room: %v", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}
