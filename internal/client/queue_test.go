package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezeslucky/drawio/internal/models"
)

func env(id string) models.Envelope {
	return models.Envelope{Type: models.MessageTypeDraw, RoomID: "r1", UserID: "u1", ID: id, Message: "m"}
}

func TestQueueFlushDeliversExactlyOnce(t *testing.T) {
	q := NewQueue()

	q.Enqueue(env("s1"))
	q.Enqueue(env("s2"))
	q.Enqueue(env("s3"))
	require.Equal(t, 3, q.Len())

	var sent []string
	q.Flush(func(e models.Envelope) bool {
		sent = append(sent, e.ID)
		return true
	})

	assert.Equal(t, []string{"s1", "s2", "s3"}, sent, "FIFO by arrival order")
	assert.Equal(t, 0, q.Len())

	// A second flush presents nothing again.
	q.Flush(func(e models.Envelope) bool {
		t.Errorf("unexpected re-delivery of %s", e.ID)
		return true
	})
}

func TestQueueFlushKeepsFailedEntries(t *testing.T) {
	q := NewQueue()

	q.Enqueue(env("s1"))
	q.Enqueue(env("s2"))
	q.Enqueue(env("s3"))

	// The walk does not stop at the first failure: s3 is still tried
	// and delivered even though s2 failed.
	var sent []string
	q.Flush(func(e models.Envelope) bool {
		sent = append(sent, e.ID)
		return e.ID != "s2"
	})

	assert.Equal(t, []string{"s1", "s2", "s3"}, sent)
	assert.Equal(t, 1, q.Len())

	// The failed entry is retried on the next tick.
	sent = nil
	q.Flush(func(e models.Envelope) bool {
		sent = append(sent, e.ID)
		return true
	})
	assert.Equal(t, []string{"s2"}, sent)
	assert.Equal(t, 0, q.Len())
}

func TestQueueFlushAllFailing(t *testing.T) {
	q := NewQueue()
	q.Enqueue(env("s1"))
	q.Enqueue(env("s2"))

	q.Flush(func(models.Envelope) bool { return false })

	require.Equal(t, 2, q.Len())

	var sent []string
	q.Flush(func(e models.Envelope) bool {
		sent = append(sent, e.ID)
		return true
	})
	assert.Equal(t, []string{"s1", "s2"}, sent, "order preserved across failed ticks")
}

func TestQueueFlushEmpty(t *testing.T) {
	q := NewQueue()
	q.Flush(func(models.Envelope) bool {
		t.Error("trySend called on empty queue")
		return true
	})
}
