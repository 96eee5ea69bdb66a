package ws

import (
	"errors"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/ezeslucky/drawio/internal/models"
	"github.com/ezeslucky/drawio/internal/session"
)

type mockVerifier struct {
	users map[string]string // token -> userId
}

func (m *mockVerifier) Verify(token string) (string, error) {
	if userID, ok := m.users[token]; ok {
		return userID, nil
	}
	return "", errors.New("invalid token")
}

func newTestServer(rooms ...string) (*Server, *session.Registry, *mockRoomStore) {
	store := newMockRoomStore(rooms...)
	registry := session.NewRegistry(store)
	router := NewRouter(registry)
	server := NewServer(&mockVerifier{}, registry, router, store)
	return server, registry, store
}

func TestServer_JoinRepliesAndBroadcasts(t *testing.T) {
	server, registry, _ := newTestServer("r1")

	a, b := &mockConn{}, &mockConn{}
	registry.Register("a", "a", a)
	registry.Register("b", "b", b)

	if err := server.handleEnvelope("a", a, models.Envelope{
		Type: models.MessageTypeJoin, RoomID: "r1", UserID: "a", UserName: "Alice",
	}); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	// Joiner reply carries the participant snapshot.
	got := a.envelopes()
	if len(got) != 1 || got[0].Type != models.MessageTypeUserJoined {
		t.Fatalf("expected USER_JOINED reply, got %+v", got)
	}
	if len(got[0].Participants) != 1 || got[0].Participants[0].UserName != "Alice" {
		t.Errorf("expected snapshot with Alice, got %+v", got[0].Participants)
	}

	// The second joiner triggers a refreshed broadcast to the first.
	if err := server.handleEnvelope("b", b, models.Envelope{
		Type: models.MessageTypeJoin, RoomID: "r1", UserID: "b", UserName: "Bob",
	}); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	got = a.envelopes()
	if len(got) != 2 {
		t.Fatalf("expected broadcast to prior member, got %d envelopes", len(got))
	}
	if got[1].UserID != "b" || len(got[1].Participants) != 2 {
		t.Errorf("expected USER_JOINED for b with 2 participants, got %+v", got[1])
	}
}

func TestServer_JoinUnknownRoomTerminates(t *testing.T) {
	server, registry, _ := newTestServer("r1")

	conn := &mockConn{}
	registry.Register("a", "a", conn)

	err := server.handleEnvelope("a", conn, models.Envelope{
		Type: models.MessageTypeJoin, RoomID: "missing", UserID: "a",
	})
	if !errors.Is(err, errTerminate) {
		t.Fatalf("expected termination, got %v", err)
	}
	if conn.closeCode != websocket.ClosePolicyViolation {
		t.Errorf("expected close code 1008, got %d", conn.closeCode)
	}
}

func TestServer_DrawFanoutKeepsSender(t *testing.T) {
	server, registry, _ := newTestServer("r1")

	a, b := &mockConn{}, &mockConn{}
	registry.Register("a", "a", a)
	registry.Register("b", "b", b)
	mustJoin(t, server, a, "a", "r1")
	mustJoin(t, server, b, "b", "r1")

	aLen, bLen := len(a.envelopes()), len(b.envelopes())

	if err := server.handleEnvelope("a", a, models.Envelope{
		Type: models.MessageTypeDraw, RoomID: "r1", UserID: "a", ID: "s1", Message: "ciphertext",
	}); err != nil {
		t.Fatalf("draw failed: %v", err)
	}

	// The router excludes nobody for shape traffic; the sender's client
	// suppresses its own echo.
	gotA, gotB := a.envelopes(), b.envelopes()
	if len(gotA) != aLen+1 {
		t.Errorf("sender did not receive its own DRAW back")
	}
	if len(gotB) != bLen+1 {
		t.Fatalf("peer did not receive the DRAW")
	}

	draw := gotB[len(gotB)-1]
	if draw.Type != models.MessageTypeDraw || draw.ID != "s1" || draw.Message != "ciphertext" {
		t.Errorf("unexpected DRAW envelope: %+v", draw)
	}
	if draw.UserID != "a" {
		t.Errorf("server must stamp the authenticated sender, got %q", draw.UserID)
	}
}

func TestServer_SpoofedIdentityOverwritten(t *testing.T) {
	server, registry, _ := newTestServer("r1")

	a, b := &mockConn{}, &mockConn{}
	registry.Register("a", "a", a)
	registry.Register("b", "b", b)
	mustJoin(t, server, a, "a", "r1")
	mustJoin(t, server, b, "b", "r1")

	bLen := len(b.envelopes())

	// The envelope claims to be from b; the rebroadcast must say a.
	if err := server.handleEnvelope("a", a, models.Envelope{
		Type: models.MessageTypeUpdate, RoomID: "r1", UserID: "b", ID: "s1", Message: "ciphertext",
	}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	gotB := b.envelopes()
	if len(gotB) != bLen+1 {
		t.Fatalf("peer did not receive the UPDATE")
	}
	if gotB[len(gotB)-1].UserID != "a" {
		t.Errorf("spoofed user id survived the rebroadcast: %+v", gotB[len(gotB)-1])
	}
}

func TestServer_InvalidEnvelopeKeepsConnection(t *testing.T) {
	server, registry, _ := newTestServer("r1")

	conn := &mockConn{}
	registry.Register("a", "a", conn)

	for _, env := range []models.Envelope{
		{Type: models.MessageTypeDraw, RoomID: "r1", UserID: "a"},              // no id, no payload
		{Type: models.MessageTypeEraser, RoomID: "r1", UserID: "a"},            // no id
		{Type: models.MessageTypeJoin, UserID: "a"},                            // no room
		{Type: "SOMETHING_ELSE", RoomID: "r1", UserID: "a"},                    // unknown type
		{Type: models.MessageTypeUpdate, RoomID: "r1", UserID: "a", ID: "s1"},  // no payload
	} {
		if err := server.handleEnvelope("a", conn, env); err != nil {
			t.Errorf("envelope %+v must not terminate the connection: %v", env, err)
		}
	}

	if conn.closed {
		t.Error("connection was closed on a droppable envelope")
	}
}

func TestServer_CloseRoom(t *testing.T) {
	server, registry, store := newTestServer("r1")

	a, b := &mockConn{}, &mockConn{}
	registry.Register("a", "a", a)
	registry.Register("b", "b", b)
	mustJoin(t, server, a, "a", "r1")
	mustJoin(t, server, b, "b", "r1")

	// Rejected while another participant is present.
	if err := server.handleEnvelope("a", a, models.Envelope{
		Type: models.MessageTypeCloseRoom, RoomID: "r1", UserID: "a",
	}); err != nil {
		t.Fatalf("close with other members must be a no-op, got %v", err)
	}
	if len(store.deleted) != 0 {
		t.Fatal("room deleted while occupied")
	}

	registry.Leave("b", "r1")

	err := server.handleEnvelope("a", a, models.Envelope{
		Type: models.MessageTypeCloseRoom, RoomID: "r1", UserID: "a",
	})
	if !errors.Is(err, errTerminate) {
		t.Fatalf("expected termination after room close, got %v", err)
	}

	got := a.envelopes()
	last := got[len(got)-1]
	if last.Type != models.MessageTypeRoomClosed || last.RoomID != "r1" {
		t.Errorf("expected ROOM_CLOSED notice, got %+v", last)
	}
	if a.closeCode != websocket.CloseNormalClosure {
		t.Errorf("expected close code 1000, got %d", a.closeCode)
	}
	if len(store.deleted) != 1 || store.deleted[0] != "r1" {
		t.Errorf("room not deleted from the store: %v", store.deleted)
	}
}

func TestServer_DisconnectBroadcastsToAllRooms(t *testing.T) {
	server, registry, _ := newTestServer("r1", "r2")

	a, b, c := &mockConn{}, &mockConn{}, &mockConn{}
	registry.Register("a", "a", a)
	registry.Register("b", "b", b)
	registry.Register("c", "c", c)
	mustJoin(t, server, a, "a", "r1")
	mustJoin(t, server, a, "a", "r2")
	mustJoin(t, server, b, "b", "r1")
	mustJoin(t, server, c, "c", "r2")

	bLen, cLen := len(b.envelopes()), len(c.envelopes())

	server.disconnect("a", a)

	gotB, gotC := b.envelopes(), c.envelopes()
	if len(gotB) != bLen+1 || gotB[len(gotB)-1].Type != models.MessageTypeUserLeft {
		t.Errorf("r1 member missed USER_LEFT: %+v", gotB)
	}
	if len(gotC) != cLen+1 || gotC[len(gotC)-1].Type != models.MessageTypeUserLeft {
		t.Errorf("r2 member missed USER_LEFT: %+v", gotC)
	}
	if registry.Len() != 2 {
		t.Errorf("expected a's session gone, got %d sessions", registry.Len())
	}

	// The departed user is out of every refreshed snapshot.
	if got := gotB[len(gotB)-1].Participants; len(got) != 1 || got[0].UserID != "b" {
		t.Errorf("stale participants after disconnect: %+v", got)
	}
}

func TestServer_AdoptsUserNameFromEnvelope(t *testing.T) {
	server, registry, _ := newTestServer("r1")

	conn := &mockConn{}
	registry.Register("a", "a", conn)

	mustJoin(t, server, conn, "a", "r1")

	// Name arrives on a later envelope while still defaulted.
	if err := server.handleEnvelope("a", conn, models.Envelope{
		Type: models.MessageTypeLeave, RoomID: "r1", UserID: "a", UserName: "Alice",
	}); err != nil {
		t.Fatal(err)
	}

	if name, _ := registry.Lookup("a"); name != "Alice" {
		t.Errorf("expected adopted name Alice, got %s", name)
	}
}

func mustJoin(t *testing.T, server *Server, conn wsConn, userID, roomID string) {
	t.Helper()
	if err := server.handleEnvelope(userID, conn, models.Envelope{
		Type:   models.MessageTypeJoin,
		RoomID: roomID,
		UserID: userID,
	}); err != nil {
		t.Fatalf("join %s to %s failed: %v", userID, roomID, err)
	}
}
