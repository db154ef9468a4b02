package tool

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"boardpilot/internal/domain"
)

// Default geometry applied when a tool omits optional dimensions.
const (
	defaultStickyWidth  = 120.0
	defaultStickyHeight = 80.0
	defaultStickyColor  = "#FEF3C7"
	defaultGridGap      = 20.0
)

// Executor applies validated tool calls to a board as one atomic batch.
// Calls are replayed against an in-memory snapshot first so a failure at any
// step leaves the board untouched.
type Executor struct {
	store   domain.BoardStore
	catalog *Catalog
	logger  *slog.Logger

	// newID is swappable for deterministic tests.
	newID func() string
}

var _ domain.BoardToolExecutor = (*Executor)(nil)

func NewExecutor(store domain.BoardStore, catalog *Catalog, logger *slog.Logger) *Executor {
	return &Executor{
		store:   store,
		catalog: catalog,
		logger:  logger,
		newID:   newObjectID,
	}
}

func newObjectID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// snapshot is the working view of a board during replay. Staged creates are
// visible to later calls in the same batch.
type snapshot struct {
	objects map[string]*domain.BoardObject
	order   []string
}

func newSnapshot(objs []domain.BoardObject) *snapshot {
	s := &snapshot{objects: make(map[string]*domain.BoardObject, len(objs))}
	for i := range objs {
		obj := objs[i]
		s.objects[obj.ID] = &obj
		s.order = append(s.order, obj.ID)
	}
	return s
}

func (s *snapshot) get(id string) (*domain.BoardObject, bool) {
	obj, ok := s.objects[id]
	return obj, ok
}

func (s *snapshot) add(obj *domain.BoardObject) {
	s.objects[obj.ID] = obj
	s.order = append(s.order, obj.ID)
}

func (s *snapshot) list() []domain.BoardObject {
	out := make([]domain.BoardObject, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.objects[id])
	}
	return out
}

// Execute validates every call up front, replays them against a snapshot of
// the board while staging writes, then commits the batch in one transaction.
// Any validation failure aborts before anything is written.
func (e *Executor) Execute(ctx context.Context, boardID string, calls []domain.BoardToolCall) (*domain.ExecuteResult, error) {
	const op = "Executor.Execute"

	for _, call := range calls {
		if err := e.catalog.Validate(call.Tool, call.Args); err != nil {
			return nil, domain.NewDomainError(op, domain.ErrValidation, err.Error())
		}
	}

	objs, err := e.store.ListObjects(ctx, boardID)
	if err != nil {
		return nil, domain.NewDomainError(op, domain.ErrToolFailure, err.Error())
	}
	snap := newSnapshot(objs)

	batch := e.store.NewBatch()
	var createdIDs []string
	includeState := false

	for _, call := range calls {
		switch call.Tool {
		case ToolGetBoardState:
			includeState = true

		case ToolCreateStickyNote:
			obj := &domain.BoardObject{
				ID:     e.newID(),
				Type:   domain.TypeSticky,
				Text:   argString(call.Args, "text"),
				X:      argNumber(call.Args, "x"),
				Y:      argNumber(call.Args, "y"),
				Width:  defaultStickyWidth,
				Height: defaultStickyHeight,
				Color:  argStringDefault(call.Args, "color", defaultStickyColor),
			}
			batch.Create(boardID, obj)
			snap.add(obj)
			createdIDs = append(createdIDs, obj.ID)

		case ToolCreateShape:
			shapeType, ok := normalizeShapeType(argString(call.Args, "type"))
			if !ok {
				return nil, domain.NewDomainError(op, domain.ErrValidation,
					"createShape.type must be rectangle, circle, or line.")
			}
			obj := &domain.BoardObject{
				ID:     e.newID(),
				Type:   shapeType,
				X:      argNumber(call.Args, "x"),
				Y:      argNumber(call.Args, "y"),
				Width:  argNumber(call.Args, "width"),
				Height: argNumber(call.Args, "height"),
				Color:  argString(call.Args, "color"),
			}
			batch.Create(boardID, obj)
			snap.add(obj)
			createdIDs = append(createdIDs, obj.ID)

		case ToolCreateFrame:
			obj := &domain.BoardObject{
				ID:     e.newID(),
				Type:   domain.TypeFrame,
				Title:  argString(call.Args, "title"),
				X:      argNumber(call.Args, "x"),
				Y:      argNumber(call.Args, "y"),
				Width:  argNumber(call.Args, "width"),
				Height: argNumber(call.Args, "height"),
			}
			batch.Create(boardID, obj)
			snap.add(obj)
			createdIDs = append(createdIDs, obj.ID)

		case ToolCreateConnector:
			fromID := argString(call.Args, "fromId")
			toID := argString(call.Args, "toId")
			if _, ok := snap.get(fromID); !ok {
				return nil, domain.NewDomainError(op, domain.ErrValidation,
					"createConnector endpoints must exist on the board.")
			}
			if _, ok := snap.get(toID); !ok {
				return nil, domain.NewDomainError(op, domain.ErrValidation,
					"createConnector endpoints must exist on the board.")
			}
			obj := &domain.BoardObject{
				ID:     e.newID(),
				Type:   domain.TypeConnector,
				FromID: fromID,
				ToID:   toID,
				Style:  argString(call.Args, "style"),
			}
			batch.Create(boardID, obj)
			snap.add(obj)
			createdIDs = append(createdIDs, obj.ID)

		case ToolMoveObject:
			objectID := argString(call.Args, "objectId")
			existing, ok := snap.get(objectID)
			if !ok {
				return nil, domain.NewDomainError(op, domain.ErrValidation,
					fmt.Sprintf("Object not found: %s", objectID))
			}
			if !existing.Movable() {
				return nil, domain.NewDomainError(op, domain.ErrValidation,
					"Cannot move a connector with moveObject.")
			}
			x := argNumber(call.Args, "x")
			y := argNumber(call.Args, "y")
			batch.Update(boardID, objectID, map[string]any{"x": x, "y": y})
			existing.X, existing.Y = x, y

		case ToolResizeObject:
			objectID := argString(call.Args, "objectId")
			existing, ok := snap.get(objectID)
			if !ok {
				return nil, domain.NewDomainError(op, domain.ErrValidation,
					fmt.Sprintf("Object not found: %s", objectID))
			}
			if !existing.Movable() {
				return nil, domain.NewDomainError(op, domain.ErrValidation,
					"Cannot resize a connector.")
			}
			width := argNumber(call.Args, "width")
			height := argNumber(call.Args, "height")
			batch.Update(boardID, objectID, map[string]any{"width": width, "height": height})
			existing.Width, existing.Height = width, height

		case ToolUpdateText:
			objectID := argString(call.Args, "objectId")
			existing, ok := snap.get(objectID)
			if !ok {
				return nil, domain.NewDomainError(op, domain.ErrValidation,
					fmt.Sprintf("Object not found: %s", objectID))
			}
			if !existing.TextCapable() {
				return nil, domain.NewDomainError(op, domain.ErrValidation,
					"updateText is only allowed for sticky and text objects.")
			}
			text := argString(call.Args, "newText")
			batch.Update(boardID, objectID, map[string]any{"text": text})
			existing.Text = text

		case ToolChangeColor:
			objectID := argString(call.Args, "objectId")
			existing, ok := snap.get(objectID)
			if !ok {
				return nil, domain.NewDomainError(op, domain.ErrValidation,
					fmt.Sprintf("Object not found: %s", objectID))
			}
			if !existing.ColorCapable() {
				return nil, domain.NewDomainError(op, domain.ErrValidation,
					"changeColor is not supported for this object type.")
			}
			color := argString(call.Args, "color")
			batch.Update(boardID, objectID, map[string]any{"color": color})
			existing.Color = color

		case ToolCreateSWOT, ToolCreateUserJourney, ToolCreateRetro:
			for _, tmpl := range buildTemplate(call.Tool, call.Args) {
				obj := tmpl
				obj.ID = e.newID()
				batch.Create(boardID, &obj)
				snap.add(&obj)
				createdIDs = append(createdIDs, obj.ID)
			}

		case ToolArrangeInGrid:
			if err := e.stageArrangeInGrid(boardID, call.Args, snap, batch); err != nil {
				return nil, domain.NewDomainError(op, domain.ErrValidation, err.Error())
			}

		case ToolDistributeEvenly:
			if err := e.stageDistributeEvenly(boardID, call.Args, snap, batch); err != nil {
				return nil, domain.NewDomainError(op, domain.ErrValidation, err.Error())
			}

		default:
			return nil, domain.NewDomainError(op, domain.ErrValidation,
				fmt.Sprintf("Unknown tool: %s", call.Tool))
		}
	}

	if batch.Len() > 0 {
		if err := batch.Commit(ctx); err != nil {
			e.logger.Error("tool batch commit failed",
				"board_id", boardID,
				"staged", batch.Len(),
				"error", err)
			return nil, domain.NewDomainError(op, domain.ErrToolFailure, err.Error())
		}
	}

	e.logger.Debug("tool calls executed",
		"board_id", boardID,
		"calls", len(calls),
		"created", len(createdIDs))

	result := &domain.ExecuteResult{
		Executed:         len(calls),
		CreatedObjectIDs: createdIDs,
	}
	if includeState {
		result.BoardState = snap.list()
	}
	return result, nil
}

// selectMovable resolves ids against the snapshot, rejecting missing ids and
// connectors. Shared by the layout tools.
func selectMovable(toolName string, ids []string, snap *snapshot) ([]*domain.BoardObject, error) {
	selected := make([]*domain.BoardObject, 0, len(ids))
	for _, id := range ids {
		obj, ok := snap.get(id)
		if !ok {
			return nil, fmt.Errorf("Object not found: %s", id)
		}
		if !obj.Movable() {
			return nil, fmt.Errorf("%s cannot include connectors.", toolName)
		}
		selected = append(selected, obj)
	}
	return selected, nil
}

func (e *Executor) stageArrangeInGrid(boardID string, args map[string]any, snap *snapshot, batch domain.WriteBatch) error {
	ids := argStringSlice(args, "objectIds")
	selected, err := selectMovable(ToolArrangeInGrid, ids, snap)
	if err != nil {
		return err
	}

	originX := argNumber(args, "originX")
	originY := argNumber(args, "originY")
	gapX := argNumberDefault(args, "gapX", defaultGridGap)
	gapY := argNumberDefault(args, "gapY", defaultGridGap)
	columns := int(argNumberDefault(args, "columns", 0))
	if columns < 1 {
		columns = int(math.Ceil(math.Sqrt(float64(len(selected)))))
	}

	// Uniform cell sized to the largest selected object plus the gaps.
	var cellW, cellH float64
	for _, obj := range selected {
		cellW = math.Max(cellW, obj.Width)
		cellH = math.Max(cellH, obj.Height)
	}

	for i, obj := range selected {
		row := i / columns
		col := i % columns
		x := originX + float64(col)*(cellW+gapX)
		y := originY + float64(row)*(cellH+gapY)
		batch.Update(boardID, obj.ID, map[string]any{"x": x, "y": y})
		obj.X, obj.Y = x, y
	}
	return nil
}

func (e *Executor) stageDistributeEvenly(boardID string, args map[string]any, snap *snapshot, batch domain.WriteBatch) error {
	ids := argStringSlice(args, "objectIds")
	if len(ids) < 2 {
		return fmt.Errorf("distributeEvenly requires at least 2 objects.")
	}
	selected, err := selectMovable(ToolDistributeEvenly, ids, snap)
	if err != nil {
		return err
	}

	horizontal := argString(args, "direction") == "horizontal"
	sort.SliceStable(selected, func(i, j int) bool {
		if horizontal {
			return selected[i].X < selected[j].X
		}
		return selected[i].Y < selected[j].Y
	})

	// Keep the span from the first object's leading edge to the last object's
	// trailing edge, distributing the slack as equal gaps. Overlapping objects
	// clamp to zero gap rather than being pushed apart.
	var span, extent float64
	first := selected[0]
	last := selected[len(selected)-1]
	if horizontal {
		span = (last.X + last.Width) - first.X
		for _, obj := range selected {
			extent += obj.Width
		}
	} else {
		span = (last.Y + last.Height) - first.Y
		for _, obj := range selected {
			extent += obj.Height
		}
	}
	gap := (span - extent) / float64(len(selected)-1)
	if gap < 0 {
		gap = 0
	}

	pos := first.X
	if !horizontal {
		pos = first.Y
	}
	for _, obj := range selected {
		if horizontal {
			batch.Update(boardID, obj.ID, map[string]any{"x": pos, "y": obj.Y})
			obj.X = pos
			pos += obj.Width + gap
		} else {
			batch.Update(boardID, obj.ID, map[string]any{"x": obj.X, "y": pos})
			obj.Y = pos
			pos += obj.Height + gap
		}
	}
	return nil
}

func normalizeShapeType(value string) (string, bool) {
	switch strings.ToLower(value) {
	case "rectangle", "rect":
		return domain.TypeRectangle, true
	case "circle":
		return domain.TypeCircle, true
	case "line":
		return domain.TypeLine, true
	}
	return "", false
}

func argString(args map[string]any, key string) string {
	if s, ok := args[key].(string); ok {
		return s
	}
	return ""
}

func argStringDefault(args map[string]any, key, def string) string {
	if s, ok := args[key].(string); ok && s != "" {
		return s
	}
	return def
}

func argNumber(args map[string]any, key string) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func argNumberDefault(args map[string]any, key string, def float64) float64 {
	if _, ok := args[key]; !ok {
		return def
	}
	return argNumber(args, key)
}

func argStringSlice(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
