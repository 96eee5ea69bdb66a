package session

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/ezeslucky/drawio/internal/models"
)

// Conn is the write side of a live transport connection. The registry
// never reads from it.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// RoomStore is the durable-store capability consulted on JOIN.
type RoomStore interface {
	RoomExists(roomID string) (bool, error)
}

// Session binds a connected user to its transport and room memberships.
// At most one session exists per user id; a reconnect evicts the prior one.
type Session struct {
	UserID   string
	UserName string
	Conn     Conn

	rooms map[string]struct{}
}

// Registry is the authoritative record of who is connected and which
// rooms they occupy. All mutation goes through one mutex so participant
// snapshots stay consistent under concurrent connection events.
type Registry struct {
	roomStore RoomStore

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry(roomStore RoomStore) *Registry {
	return &Registry{
		roomStore: roomStore,
		sessions:  make(map[string]*Session),
	}
}

// Register installs a session for the user, evicting any prior one.
// Last connection wins: the old transport is closed so the same user is
// never delivered to twice.
func (r *Registry) Register(userID, userName string, conn Conn) {
	if userName == "" {
		userName = userID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.sessions[userID]; ok {
		if err := prev.Conn.Close(); err != nil {
			slog.Warn("failed to close evicted connection", "user_id", userID, "error", err)
		}
	}

	r.sessions[userID] = &Session{
		UserID:   userID,
		UserName: userName,
		Conn:     conn,
		rooms:    make(map[string]struct{}),
	}
}

// AdoptUserName upgrades the display name of a session that still
// carries the default (user id) name. Later renames are ignored.
func (r *Registry) AdoptUserName(userID, userName string) {
	if userName == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, ok := r.sessions[userID]; ok && sess.UserName == sess.UserID {
		sess.UserName = userName
	}
}

// Join adds the user to a room after checking the room exists in the
// durable store, and returns the deduplicated participant snapshot for
// that room. Joining a room twice is a no-op.
func (r *Registry) Join(userID, roomID string) ([]models.Participant, error) {
	exists, err := r.roomStore.RoomExists(roomID)
	if err != nil {
		return nil, fmt.Errorf("room lookup failed: %w", err)
	}
	if !exists {
		return nil, models.ErrRoomNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[userID]
	if !ok {
		return nil, models.ErrNotFound
	}
	sess.rooms[roomID] = struct{}{}

	return r.participantsOfLocked(roomID), nil
}

// Leave removes the room from the user's room set. Not an error if the
// user never joined it.
func (r *Registry) Leave(userID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, ok := r.sessions[userID]; ok {
		delete(sess.rooms, roomID)
	}
}

// DropConnection removes the session entirely and returns the rooms it
// had joined so the caller can broadcast the departure to each.
func (r *Registry) DropConnection(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropLocked(userID)
}

// DropIfOwner removes the session only if it still owns the given
// connection. A reconnect replaces the session before the evicted
// transport's read loop unwinds, and that unwind must not take the new
// session with it.
func (r *Registry) DropIfOwner(userID string, conn Conn) ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[userID]
	if !ok || sess.Conn != conn {
		return nil, false
	}
	return r.dropLocked(userID), true
}

func (r *Registry) dropLocked(userID string) []string {
	sess, ok := r.sessions[userID]
	if !ok {
		return nil
	}
	delete(r.sessions, userID)

	rooms := make([]string, 0, len(sess.rooms))
	for roomID := range sess.rooms {
		rooms = append(rooms, roomID)
	}
	sort.Strings(rooms)
	return rooms
}

// ParticipantsOf returns the current participant set of a room,
// deduplicated by user id.
func (r *Registry) ParticipantsOf(roomID string) []models.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.participantsOfLocked(roomID)
}

func (r *Registry) participantsOfLocked(roomID string) []models.Participant {
	participants := make([]models.Participant, 0)
	for _, sess := range r.sessions {
		if _, ok := sess.rooms[roomID]; ok {
			participants = append(participants, models.Participant{
				UserID:   sess.UserID,
				UserName: sess.UserName,
			})
		}
	}
	sort.Slice(participants, func(i, j int) bool {
		return participants[i].UserID < participants[j].UserID
	})
	return participants
}

// Member is a point-in-time view of a room occupant used for fan-out.
type Member struct {
	UserID   string
	UserName string
	Conn     Conn
}

// MembersOf snapshots the sessions currently joined to a room. The
// router iterates the snapshot so sends never run under the registry
// lock.
func (r *Registry) MembersOf(roomID string) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]Member, 0)
	for _, sess := range r.sessions {
		if _, ok := sess.rooms[roomID]; ok {
			members = append(members, Member{
				UserID:   sess.UserID,
				UserName: sess.UserName,
				Conn:     sess.Conn,
			})
		}
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].UserID < members[j].UserID
	})
	return members
}

// Lookup returns the display name of a connected user.
func (r *Registry) Lookup(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[userID]
	if !ok {
		return "", false
	}
	return sess.UserName, true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
