package tool

import (
	"fmt"

	"boardpilot/internal/domain"
)

// Template layout constants. Quadrant and column sizes are tuned for the
// default board zoom so a freshly created template is fully visible.
const (
	swotQuadrantWidth  = 320.0
	swotQuadrantHeight = 240.0
	swotGap            = 24.0

	journeyStageWidth    = 220.0
	journeyStageHeight   = 260.0
	journeyGap           = 32.0
	journeyDefaultStages = 5

	retroColumnWidth  = 280.0
	retroColumnHeight = 360.0
	retroGap          = 24.0
)

// buildTemplate expands a composite template call into its constituent
// objects, in creation order, without ids. The executor mints ids so later
// calls in the same batch can reference them.
func buildTemplate(name string, args map[string]any) []domain.BoardObject {
	originX := argNumber(args, "originX")
	originY := argNumber(args, "originY")

	switch name {
	case ToolCreateSWOT:
		w := argNumberDefault(args, "quadrantWidth", swotQuadrantWidth)
		h := argNumberDefault(args, "quadrantHeight", swotQuadrantHeight)
		return buildSWOT(originX, originY, w, h)
	case ToolCreateUserJourney:
		stages := int(argNumberDefault(args, "stageCount", journeyDefaultStages))
		return buildUserJourney(originX, originY, stages)
	case ToolCreateRetro:
		return buildRetro(originX, originY)
	}
	return nil
}

// buildSWOT lays out four titled quadrants with one seed sticky each:
// 8 objects total.
func buildSWOT(originX, originY, w, h float64) []domain.BoardObject {
	quadrants := []struct {
		title  string
		prompt string
		col    float64
		row    float64
	}{
		{"Strengths", "What do we do well?", 0, 0},
		{"Weaknesses", "Where can we improve?", 1, 0},
		{"Opportunities", "What could we pursue?", 0, 1},
		{"Threats", "What could hurt us?", 1, 1},
	}

	objects := make([]domain.BoardObject, 0, len(quadrants)*2)
	for _, q := range quadrants {
		frameX := originX + q.col*(w+swotGap)
		frameY := originY + q.row*(h+swotGap)
		objects = append(objects, domain.BoardObject{
			Type:   domain.TypeFrame,
			Title:  q.title,
			X:      frameX,
			Y:      frameY,
			Width:  w,
			Height: h,
		})
		objects = append(objects, domain.BoardObject{
			Type:   domain.TypeSticky,
			Text:   q.prompt,
			X:      frameX + swotGap,
			Y:      frameY + swotGap*2,
			Width:  defaultStickyWidth,
			Height: defaultStickyHeight,
			Color:  defaultStickyColor,
		})
	}
	return objects
}

// buildUserJourney lays out stageCount titled frames in a row, one object
// per stage.
func buildUserJourney(originX, originY float64, stages int) []domain.BoardObject {
	if stages < 1 {
		stages = journeyDefaultStages
	}
	objects := make([]domain.BoardObject, 0, stages)
	for i := 0; i < stages; i++ {
		objects = append(objects, domain.BoardObject{
			Type:   domain.TypeFrame,
			Title:  fmt.Sprintf("Stage %d", i+1),
			X:      originX + float64(i)*(journeyStageWidth+journeyGap),
			Y:      originY,
			Width:  journeyStageWidth,
			Height: journeyStageHeight,
		})
	}
	return objects
}

// buildRetro lays out three titled columns with one seed sticky each:
// 6 objects total.
func buildRetro(originX, originY float64) []domain.BoardObject {
	columns := []struct {
		title  string
		prompt string
	}{
		{"Went well", "Add something that went well"},
		{"To improve", "Add something to improve"},
		{"Action items", "Add an action item"},
	}

	objects := make([]domain.BoardObject, 0, len(columns)*2)
	for i, c := range columns {
		frameX := originX + float64(i)*(retroColumnWidth+retroGap)
		objects = append(objects, domain.BoardObject{
			Type:   domain.TypeFrame,
			Title:  c.title,
			X:      frameX,
			Y:      originY,
			Width:  retroColumnWidth,
			Height: retroColumnHeight,
		})
		objects = append(objects, domain.BoardObject{
			Type:   domain.TypeSticky,
			Text:   c.prompt,
			X:      frameX + retroGap,
			Y:      originY + retroGap*2,
			Width:  defaultStickyWidth,
			Height: defaultStickyHeight,
			Color:  defaultStickyColor,
		})
	}
	return objects
}
