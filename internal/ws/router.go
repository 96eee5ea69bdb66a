package ws

import (
	"log/slog"

	"github.com/ezeslucky/drawio/internal/models"
	"github.com/ezeslucky/drawio/internal/session"
)

// Router fans an envelope out to the members of a room. It is stateless
// with respect to who sent the envelope: sender exclusion for shape
// traffic happens client-side by user id comparison.
type Router struct {
	registry *session.Registry
}

func NewRouter(registry *session.Registry) *Router {
	return &Router{registry: registry}
}

// Broadcast delivers the envelope to every member of the room except
// the excluded user ids. When refreshParticipants is set, or the
// envelope announces a join, the participant snapshot is recomputed at
// send time and overwritten so all recipients see a consistent view.
// Individual send failures are logged and never abort delivery to the
// remaining members.
func (rt *Router) Broadcast(roomID string, env models.Envelope, exclude []string, refreshParticipants bool) {
	if refreshParticipants || env.Type == models.MessageTypeUserJoined {
		env.Participants = rt.registry.ParticipantsOf(roomID)
	}

	excluded := make(map[string]bool, len(exclude))
	for _, userID := range exclude {
		excluded[userID] = true
	}

	for _, member := range rt.registry.MembersOf(roomID) {
		if excluded[member.UserID] {
			continue
		}
		if err := member.Conn.WriteJSON(env); err != nil {
			slog.Warn("broadcast send failed",
				"room_id", roomID,
				"user_id", member.UserID,
				"type", env.Type,
				"error", err)
		}
	}
}

// Participants exposes the deduplicated participant snapshot of a room.
func (rt *Router) Participants(roomID string) []models.Participant {
	return rt.registry.ParticipantsOf(roomID)
}
