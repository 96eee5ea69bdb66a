package storage

import (
	"encoding"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ezeslucky/drawio/internal/models"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

type DBRoom struct {
	ID        string `msgpack:"id"`
	Name      string `msgpack:"name"`
	CreatedBy string `msgpack:"createdBy"`
	CreatedAt int64  `msgpack:"createdAt"`
}

func (r *DBRoom) Key() []byte {
	return []byte(r.ID)
}

func (r *DBRoom) MarshalBinary() (data []byte, err error) {
	type alias DBRoom
	return msgpack.Marshal((*alias)(r))
}

func (r *DBRoom) UnmarshalBinary(data []byte) error {
	type alias DBRoom
	return msgpack.Unmarshal(data, (*alias)(r))
}

type DBPoint struct {
	X float64 `msgpack:"x"`
	Y float64 `msgpack:"y"`
}

type DBShape struct {
	ID          string    `msgpack:"id"`
	Kind        string    `msgpack:"kind"`
	X           float64   `msgpack:"x"`
	Y           float64   `msgpack:"y"`
	Width       float64   `msgpack:"width"`
	Height      float64   `msgpack:"height"`
	Points      []DBPoint `msgpack:"points,omitempty"`
	Text        string    `msgpack:"text,omitempty"`
	StrokeFill  string    `msgpack:"strokeFill,omitempty"`
	BgFill      string    `msgpack:"bgFill,omitempty"`
	StrokeWidth float64   `msgpack:"strokeWidth,omitempty"`
	StrokeStyle string    `msgpack:"strokeStyle,omitempty"`
	FontFamily  string    `msgpack:"fontFamily,omitempty"`
	FontSize    string    `msgpack:"fontSize,omitempty"`
}

// DBCanvas is the local replica snapshot: the ordered shape list stored
// verbatim, order is paint order.
type DBCanvas struct {
	Shapes []DBShape `msgpack:"shapes"`
}

func (c *DBCanvas) MarshalBinary() (data []byte, err error) {
	type alias DBCanvas
	return msgpack.Marshal((*alias)(c))
}

func (c *DBCanvas) UnmarshalBinary(data []byte) error {
	type alias DBCanvas
	return msgpack.Unmarshal(data, (*alias)(c))
}

func toDBShape(s models.Shape) DBShape {
	db := DBShape{
		ID:          s.ID,
		Kind:        string(s.Kind),
		X:           s.X,
		Y:           s.Y,
		Width:       s.Width,
		Height:      s.Height,
		Text:        s.Text,
		StrokeFill:  s.StrokeFill,
		BgFill:      s.BgFill,
		StrokeWidth: s.StrokeWidth,
		StrokeStyle: s.StrokeStyle,
		FontFamily:  s.FontFamily,
		FontSize:    s.FontSize,
	}
	if len(s.Points) > 0 {
		db.Points = make([]DBPoint, len(s.Points))
		for i, p := range s.Points {
			db.Points[i] = DBPoint{X: p.X, Y: p.Y}
		}
	}
	return db
}

func fromDBShape(db DBShape) models.Shape {
	s := models.Shape{
		ID:          db.ID,
		Kind:        models.ShapeKind(db.Kind),
		X:           db.X,
		Y:           db.Y,
		Width:       db.Width,
		Height:      db.Height,
		Text:        db.Text,
		StrokeFill:  db.StrokeFill,
		BgFill:      db.BgFill,
		StrokeWidth: db.StrokeWidth,
		StrokeStyle: db.StrokeStyle,
		FontFamily:  db.FontFamily,
		FontSize:    db.FontSize,
	}
	if len(db.Points) > 0 {
		s.Points = make([]models.Point, len(db.Points))
		for i, p := range db.Points {
			s.Points[i] = models.Point{X: p.X, Y: p.Y}
		}
	}
	return s
}
