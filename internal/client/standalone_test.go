package client

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezeslucky/drawio/internal/models"
	"github.com/ezeslucky/drawio/internal/replica"
)

type memSnapshotStore struct {
	mu      sync.Mutex
	shapes  []models.Shape
	saves   int
	loadErr error
}

func (s *memSnapshotStore) LoadCanvas() ([]models.Shape, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.shapes, nil
}

func (s *memSnapshotStore) SaveCanvas(shapes []models.Shape) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shapes = shapes
	s.saves++
	return nil
}

func TestOpenStandalone(t *testing.T) {
	store := &memSnapshotStore{
		shapes: []models.Shape{
			{ID: "s1", Kind: models.ShapeRectangle},
			{ID: "s2", Kind: models.ShapeEllipse},
		},
	}
	rep := replica.New()

	require.NoError(t, OpenStandalone(store, rep))
	assert.Equal(t, 2, rep.Len(), "persisted canvas restored on open")

	// Mutations write back through the onChange hook.
	rep.Upsert(models.Shape{ID: "s3", Kind: models.ShapeLine})
	rep.Remove("s1")

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, 2, store.saves)
	require.Len(t, store.shapes, 2)
	assert.Equal(t, "s2", store.shapes[0].ID)
	assert.Equal(t, "s3", store.shapes[1].ID)
}

func TestOpenStandalone_LoadError(t *testing.T) {
	store := &memSnapshotStore{loadErr: errors.New("disk gone")}
	err := OpenStandalone(store, replica.New())
	assert.Error(t, err)
}
