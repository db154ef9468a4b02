package domain

import (
	"strconv"
	"time"
)

// Object type discriminators. Rotation is in degrees (0-360).
const (
	TypeSticky    = "sticky"
	TypeRectangle = "rectangle"
	TypeText      = "text"
	TypeFrame     = "frame"
	TypeCircle    = "circle"
	TypeLine      = "line"
	TypeConnector = "connector"
)

// ConnectorStyle values for BoardObject.Style.
const (
	StyleLine  = "line"
	StyleArrow = "arrow"
)

// Board is a whiteboard's metadata record. Objects live in their own
// per-board collection.
type Board struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BoardObject is a placeable object on a board, discriminated by Type.
// Connectors carry FromID/ToID instead of geometry; their rendered shape is
// derived from the endpoints' centers.
type BoardObject struct {
	ID       string  `json:"id"`
	Type     string  `json:"type"`
	X        float64 `json:"x,omitempty"`
	Y        float64 `json:"y,omitempty"`
	Width    float64 `json:"width,omitempty"`
	Height   float64 `json:"height,omitempty"`
	Rotation float64 `json:"rotation,omitempty"`
	Text     string  `json:"text,omitempty"`
	Color    string  `json:"color,omitempty"`
	Title    string  `json:"title,omitempty"`
	FontSize float64 `json:"fontSize,omitempty"`
	FromID   string  `json:"fromId,omitempty"`
	ToID     string  `json:"toId,omitempty"`
	Style    string  `json:"style,omitempty"`
}

// Movable reports whether the object can be repositioned or resized.
// Connectors have no geometry of their own.
func (o *BoardObject) Movable() bool {
	return o.Type != TypeConnector
}

// ColorCapable reports whether changeColor applies to this object type.
func (o *BoardObject) ColorCapable() bool {
	switch o.Type {
	case TypeSticky, TypeRectangle, TypeCircle, TypeLine, TypeText:
		return true
	}
	return false
}

// TextCapable reports whether updateText applies to this object type.
func (o *BoardObject) TextCapable() bool {
	return o.Type == TypeSticky || o.Type == TypeText
}

// ToDoc serializes the object to a document field map. The id is the
// document key and is not repeated in the body.
func (o *BoardObject) ToDoc() map[string]any {
	doc := map[string]any{"type": o.Type}
	if o.Type == TypeConnector {
		doc["fromId"] = o.FromID
		doc["toId"] = o.ToID
		if o.Style != "" {
			doc["style"] = o.Style
		}
		return doc
	}
	doc["x"] = o.X
	doc["y"] = o.Y
	doc["width"] = o.Width
	doc["height"] = o.Height
	if o.Rotation != 0 {
		doc["rotation"] = o.Rotation
	}
	switch o.Type {
	case TypeSticky:
		doc["text"] = o.Text
		if o.Color != "" {
			doc["color"] = o.Color
		}
	case TypeText:
		doc["text"] = o.Text
		if o.FontSize != 0 {
			doc["fontSize"] = o.FontSize
		}
		if o.Color != "" {
			doc["color"] = o.Color
		}
	case TypeFrame:
		if o.Title != "" {
			doc["title"] = o.Title
		}
	default:
		if o.Color != "" {
			doc["color"] = o.Color
		}
	}
	return doc
}

// BoardObjectFromDoc builds a BoardObject from a document id and field map.
// It tolerates loosely typed values (numbers stored as strings and the like)
// and returns false for documents that do not parse into a known type.
func BoardObjectFromDoc(id string, data map[string]any) (*BoardObject, bool) {
	typ, _ := data["type"].(string)

	if typ == TypeConnector {
		fromID := coerceString(data["fromId"])
		toID := coerceString(data["toId"])
		if fromID == "" || toID == "" {
			return nil, false
		}
		obj := &BoardObject{ID: id, Type: TypeConnector, FromID: fromID, ToID: toID}
		if style := coerceString(data["style"]); style == StyleLine || style == StyleArrow {
			obj.Style = style
		}
		return obj, true
	}

	switch typ {
	case TypeSticky, TypeRectangle, TypeText, TypeFrame, TypeCircle, TypeLine:
	default:
		return nil, false
	}

	obj := &BoardObject{
		ID:     id,
		Type:   typ,
		X:      coerceNumber(data["x"]),
		Y:      coerceNumber(data["y"]),
		Width:  coerceNumber(data["width"]),
		Height: coerceNumber(data["height"]),
	}
	if v, ok := data["rotation"]; ok {
		obj.Rotation = coerceNumber(v)
	}
	switch typ {
	case TypeSticky:
		obj.Text = coerceString(data["text"])
		obj.Color = coerceString(data["color"])
	case TypeText:
		obj.Text = coerceString(data["text"])
		obj.Color = coerceString(data["color"])
		if v, ok := data["fontSize"]; ok {
			obj.FontSize = coerceNumber(v)
		}
	case TypeFrame:
		obj.Title = coerceString(data["title"])
	default:
		obj.Color = coerceString(data["color"])
	}
	return obj, true
}

func coerceNumber(val any) float64 {
	switch v := val.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

func coerceString(val any) string {
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}
