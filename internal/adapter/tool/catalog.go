package tool

import (
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonschema"

	"boardpilot/internal/domain"
)

// Tool names recognized by the executor. The set is closed: anything else is
// a validation failure, never a silent skip.
const (
	ToolCreateStickyNote   = "createStickyNote"
	ToolCreateShape        = "createShape"
	ToolCreateFrame        = "createFrame"
	ToolCreateConnector    = "createConnector"
	ToolMoveObject         = "moveObject"
	ToolResizeObject       = "resizeObject"
	ToolUpdateText         = "updateText"
	ToolChangeColor        = "changeColor"
	ToolGetBoardState      = "getBoardState"
	ToolCreateSWOT         = "createSWOTTemplate"
	ToolCreateUserJourney  = "createUserJourneyTemplate"
	ToolCreateRetro        = "createRetroTemplate"
	ToolArrangeInGrid      = "arrangeInGrid"
	ToolDistributeEvenly   = "distributeEvenly"
)

type toolSpec struct {
	name        string
	description string
	params      json.RawMessage
	compiled    *jsonschema.Schema
}

// Catalog holds the declared tool set with compiled argument schemas.
type Catalog struct {
	specs map[string]*toolSpec
	order []string
}

// NewCatalog compiles every tool's argument schema. A compile failure is a
// programming error and aborts startup.
func NewCatalog() (*Catalog, error) {
	c := &Catalog{specs: make(map[string]*toolSpec)}
	compiler := jsonschema.NewCompiler()

	for _, def := range toolDefs {
		compiled, err := compiler.Compile([]byte(def.params))
		if err != nil {
			return nil, fmt.Errorf("compile schema for %q: %w", def.name, err)
		}
		spec := &toolSpec{
			name:        def.name,
			description: def.description,
			params:      json.RawMessage(def.params),
			compiled:    compiled,
		}
		c.specs[def.name] = spec
		c.order = append(c.order, def.name)
	}
	return c, nil
}

// Known reports whether name is a recognized tool.
func (c *Catalog) Known(name string) bool {
	_, ok := c.specs[name]
	return ok
}

// Names returns the tool names in declaration order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.order))
	copy(names, c.order)
	return names
}

// Schemas returns the full catalog for LLM function-calling.
func (c *Catalog) Schemas() []domain.ToolSchema {
	schemas := make([]domain.ToolSchema, 0, len(c.order))
	for _, name := range c.order {
		spec := c.specs[name]
		schemas = append(schemas, domain.ToolSchema{
			Name:        spec.name,
			Description: spec.description,
			Parameters:  spec.params,
		})
	}
	return schemas
}

// Validate checks args against the tool's compiled schema. An unknown tool
// name or a schema violation returns a descriptive error.
func (c *Catalog) Validate(name string, args map[string]any) error {
	spec, ok := c.specs[name]
	if !ok {
		return fmt.Errorf("Unknown tool: %s", name)
	}
	if args == nil {
		args = map[string]any{}
	}
	result := spec.compiled.Validate(args)
	if !result.IsValid() {
		return fmt.Errorf("Invalid tool arguments for %s.", name)
	}
	return nil
}

type toolDef struct {
	name        string
	description string
	params      string
}

var toolDefs = []toolDef{
	{
		name: ToolCreateStickyNote,
		description: "Add a sticky note to the board. If the user does not specify content, " +
			"use 'New note' or a brief phrase from their message; if they do not specify " +
			"position, use (100, 100) or place near existing objects. Prefer using defaults " +
			"over asking the user.",
		params: `{
			"type": "object",
			"properties": {
				"text":  {"type": "string", "description": "Note content"},
				"x":     {"type": "number", "description": "X position"},
				"y":     {"type": "number", "description": "Y position"},
				"color": {"type": "string", "description": "Optional hex color"}
			},
			"required": ["text", "x", "y"]
		}`,
	},
	{
		name:        ToolCreateShape,
		description: "Create a rectangle, circle, or line shape at the given position and size.",
		params: `{
			"type": "object",
			"properties": {
				"type":   {"type": "string", "description": "rectangle, circle, or line"},
				"x":      {"type": "number"},
				"y":      {"type": "number"},
				"width":  {"type": "number"},
				"height": {"type": "number"},
				"color":  {"type": "string", "description": "Optional hex color"}
			},
			"required": ["type", "x", "y", "width", "height"]
		}`,
	},
	{
		name:        ToolCreateFrame,
		description: "Create a titled frame to group related objects.",
		params: `{
			"type": "object",
			"properties": {
				"title":  {"type": "string"},
				"x":      {"type": "number"},
				"y":      {"type": "number"},
				"width":  {"type": "number"},
				"height": {"type": "number"}
			},
			"required": ["title", "x", "y", "width", "height"]
		}`,
	},
	{
		name:        ToolCreateConnector,
		description: "Connect two existing objects with a line or arrow. Both endpoint ids must exist on the board.",
		params: `{
			"type": "object",
			"properties": {
				"fromId": {"type": "string", "description": "Source object id"},
				"toId":   {"type": "string", "description": "Target object id"},
				"style":  {"type": "string", "enum": ["line", "arrow"]}
			},
			"required": ["fromId", "toId"]
		}`,
	},
	{
		name:        ToolMoveObject,
		description: "Move an existing object to a new position. Connectors cannot be moved.",
		params: `{
			"type": "object",
			"properties": {
				"objectId": {"type": "string"},
				"x":        {"type": "number"},
				"y":        {"type": "number"}
			},
			"required": ["objectId", "x", "y"]
		}`,
	},
	{
		name:        ToolResizeObject,
		description: "Resize an existing object. Connectors cannot be resized.",
		params: `{
			"type": "object",
			"properties": {
				"objectId": {"type": "string"},
				"width":    {"type": "number"},
				"height":   {"type": "number"}
			},
			"required": ["objectId", "width", "height"]
		}`,
	},
	{
		name:        ToolUpdateText,
		description: "Replace the text of a sticky note or text object.",
		params: `{
			"type": "object",
			"properties": {
				"objectId": {"type": "string"},
				"newText":  {"type": "string"}
			},
			"required": ["objectId", "newText"]
		}`,
	},
	{
		name:        ToolChangeColor,
		description: "Change the color of a color-capable object (sticky, shape, or text).",
		params: `{
			"type": "object",
			"properties": {
				"objectId": {"type": "string"},
				"color":    {"type": "string"}
			},
			"required": ["objectId", "color"]
		}`,
	},
	{
		name:        ToolGetBoardState,
		description: "Read the current board contents. Use before referencing existing objects by id.",
		params: `{
			"type": "object",
			"properties": {}
		}`,
	},
	{
		name: ToolCreateSWOT,
		description: "Create a SWOT analysis template with four quadrants (Strengths, Weaknesses, " +
			"Opportunities, Threats) at the given origin. Use when the user asks for a SWOT " +
			"template or four-quadrant analysis.",
		params: `{
			"type": "object",
			"properties": {
				"originX":        {"type": "number", "description": "Top-left X of the SWOT area"},
				"originY":        {"type": "number", "description": "Top-left Y of the SWOT area"},
				"quadrantWidth":  {"type": "number", "description": "Optional width per quadrant"},
				"quadrantHeight": {"type": "number", "description": "Optional height per quadrant"}
			},
			"required": ["originX", "originY"]
		}`,
	},
	{
		name: ToolCreateUserJourney,
		description: "Create a user journey template with multiple stages (default 5) in a row. " +
			"Use when the user asks for a user journey, journey map, or stage template.",
		params: `{
			"type": "object",
			"properties": {
				"originX":    {"type": "number", "description": "Left X of the journey"},
				"originY":    {"type": "number", "description": "Top Y of the journey"},
				"stageCount": {"type": "number", "minimum": 1, "maximum": 10, "description": "Number of stages (default 5)"}
			},
			"required": ["originX", "originY"]
		}`,
	},
	{
		name: ToolCreateRetro,
		description: "Create a retrospective template with three columns: Went well, To improve, " +
			"Action items. Use when the user asks for a retro, retrospective, or " +
			"start/stop/continue board.",
		params: `{
			"type": "object",
			"properties": {
				"originX": {"type": "number", "description": "Left X of the retro board"},
				"originY": {"type": "number", "description": "Top Y of the retro board"}
			},
			"required": ["originX", "originY"]
		}`,
	},
	{
		name: ToolArrangeInGrid,
		description: "Arrange the given objects in a grid layout. Use when the user asks to " +
			"arrange, grid, or align items in a grid. Object IDs must exist on the board.",
		params: `{
			"type": "object",
			"properties": {
				"objectIds": {
					"type": "array",
					"items": {"type": "string"},
					"minItems": 1,
					"description": "Array of object IDs to arrange"
				},
				"originX": {"type": "number", "description": "Grid top-left X"},
				"originY": {"type": "number", "description": "Grid top-left Y"},
				"columns": {"type": "integer", "minimum": 1, "description": "Number of columns"},
				"gapX":    {"type": "number", "minimum": 0, "description": "Horizontal gap between items"},
				"gapY":    {"type": "number", "minimum": 0, "description": "Vertical gap between items"}
			},
			"required": ["objectIds"]
		}`,
	},
	{
		name: ToolDistributeEvenly,
		description: "Distribute the given objects evenly in a horizontal or vertical line. Use " +
			"when the user asks to space evenly, distribute, or align with equal spacing. " +
			"Requires at least 2 objects.",
		params: `{
			"type": "object",
			"properties": {
				"objectIds": {
					"type": "array",
					"items": {"type": "string"},
					"minItems": 1,
					"description": "Array of object IDs to distribute"
				},
				"direction": {"type": "string", "enum": ["horizontal", "vertical"]}
			},
			"required": ["objectIds", "direction"]
		}`,
	},
}
