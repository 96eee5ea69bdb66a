package storage

import (
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/ezeslucky/drawio/internal/models"
)

var (
	bucketRooms  = []byte("rooms")
	bucketCanvas = []byte("canvas")

	// Single well-known key for the local replica snapshot.
	keyCanvasShapes = []byte("shapes")
)

type BboltStorage struct {
	db *bbolt.DB
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketRooms); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketCanvas); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

// UpsertRoom stores a new or updated room record.
func (s *BboltStorage) UpsertRoom(room models.Room) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRooms)
		dbRoom := &DBRoom{
			ID:        room.ID,
			Name:      room.Name,
			CreatedBy: room.CreatedBy,
			CreatedAt: room.CreatedAt,
		}

		data, err := dbRoom.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(dbRoom.Key(), data)
	})
}

// RoomExists reports whether a room record is present. This is the
// durable-store capability consulted on every JOIN.
func (s *BboltStorage) RoomExists(roomID string) (bool, error) {
	var exists bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		exists = tx.Bucket(bucketRooms).Get([]byte(roomID)) != nil
		return nil
	})
	return exists, err
}

func (s *BboltStorage) GetRoom(roomID string) (models.Room, error) {
	var room models.Room
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketRooms).Get([]byte(roomID))
		if data == nil {
			return models.ErrRoomNotFound
		}
		var dbRoom DBRoom
		if err := dbRoom.UnmarshalBinary(data); err != nil {
			return err
		}
		room = models.Room{
			ID:        dbRoom.ID,
			Name:      dbRoom.Name,
			CreatedBy: dbRoom.CreatedBy,
			CreatedAt: dbRoom.CreatedAt,
		}
		return nil
	})
	return room, err
}

// ListRooms returns all rooms stored in the database.
func (s *BboltStorage) ListRooms() ([]models.Room, error) {
	var rooms []models.Room
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRooms)
		return b.ForEach(func(k, v []byte) error {
			var dbRoom DBRoom
			if err := dbRoom.UnmarshalBinary(v); err != nil {
				return err
			}
			rooms = append(rooms, models.Room{
				ID:        dbRoom.ID,
				Name:      dbRoom.Name,
				CreatedBy: dbRoom.CreatedBy,
				CreatedAt: dbRoom.CreatedAt,
			})
			return nil
		})
	})
	return rooms, err
}

func (s *BboltStorage) DeleteRoom(roomID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRooms).Delete([]byte(roomID))
	})
}

// SaveCanvas overwrites the local replica snapshot. Called after every
// accepted mutation in standalone mode, so it stays a single Put.
func (s *BboltStorage) SaveCanvas(shapes []models.Shape) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		canvas := DBCanvas{Shapes: make([]DBShape, len(shapes))}
		for i, shape := range shapes {
			canvas.Shapes[i] = toDBShape(shape)
		}

		data, err := canvas.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal canvas: %w", err)
		}
		return tx.Bucket(bucketCanvas).Put(keyCanvasShapes, data)
	})
}

// LoadCanvas reads the local replica snapshot in stored (paint) order.
// A missing snapshot is not an error, it returns an empty canvas.
func (s *BboltStorage) LoadCanvas() ([]models.Shape, error) {
	var shapes []models.Shape
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketCanvas).Get(keyCanvasShapes)
		if data == nil {
			return nil
		}

		var canvas DBCanvas
		if err := canvas.UnmarshalBinary(data); err != nil {
			return fmt.Errorf("failed to unmarshal canvas: %w", err)
		}

		shapes = make([]models.Shape, len(canvas.Shapes))
		for i, dbShape := range canvas.Shapes {
			shapes[i] = fromDBShape(dbShape)
		}
		return nil
	})
	return shapes, err
}

func (s *BboltStorage) ClearCanvas() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCanvas).Delete(keyCanvasShapes)
	})
}
