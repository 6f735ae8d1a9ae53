package inspect

import (
	"time"

	"github.com/ctagard/cellbridge/pkg/types"
)

// MimeJSON keys the payload in both data and metadata
const MimeJSON = "application/json"

const (
	payloadVersion  = "1.0"
	payloadRenderer = "variable-inspector"
)

var (
	unavailableSuggestions = []string{
		"Set a breakpoint and run the program",
		"Ensure the variable is in scope",
		"Check if the program is currently stopped",
	}
	notFoundSuggestions = []string{
		"Check variable name spelling",
		"Ensure variable is in current scope",
		"Verify the frame ID is correct",
	}
)

// Payload is the body of a richInspectVariables reply
type Payload struct {
	Data     map[string]any `json:"data"`
	Metadata map[string]any `json:"metadata"`

	// Success is carried on the response envelope, not in the body
	Success bool `json:"-"`
}

// Render turns an inspection result into a rich payload. now stamps variable payloads.
func Render(res *Result, now time.Time) *Payload {
	switch res.Kind {
	case KindUnavailable:
		return &Payload{
			Success: true,
			Data: map[string]any{MimeJSON: map[string]any{
				"type":        "unavailable",
				"name":        res.Name,
				"message":     "Variable not accessible - no active debugging session",
				"suggestions": unavailableSuggestions,
			}},
			Metadata: map[string]any{MimeJSON: map[string]any{
				"available": false,
				"reason":    "no_stopped_threads",
			}},
		}
	case KindNotFound:
		return &Payload{
			Success: false,
			Data: map[string]any{MimeJSON: map[string]any{
				"type":        "error",
				"name":        res.Name,
				"message":     "Variable '" + res.Name + "' not found or not accessible",
				"frameId":     res.FrameID,
				"suggestions": notFoundSuggestions,
			}},
			Metadata: map[string]any{MimeJSON: map[string]any{
				"error":     true,
				"errorType": "variable_not_found",
			}},
		}
	}

	root := res.Node
	data := map[string]any{
		"type":        "variable",
		"name":        root.Name,
		"value":       root.Value,
		"valueType":   root.Type,
		"frameId":     res.FrameID,
		"timestamp":   now.Unix(),
		"isContainer": root.IsContainer,
		"size":        root.Size,
		"leaf":        root.Leaf(),
		"hasChildren": root.HasChildren,
		"children":    renderChildren(root.Children),
		"expanded":    false,
	}

	return &Payload{
		Success: true,
		Data:    map[string]any{MimeJSON: data},
		Metadata: map[string]any{MimeJSON: map[string]any{
			"version":      payloadVersion,
			"renderer":     payloadRenderer,
			"expandable":   root.HasChildren,
			"rootVariable": root.Name,
			"capabilities": map[string]any{
				"tree":   true,
				"search": true,
				"filter": true,
				"export": true,
			},
		}},
	}
}

// RenderInvalidRequest is the payload for a request that names no variable
func RenderInvalidRequest(details string) *Payload {
	return &Payload{
		Success: false,
		Data: map[string]any{MimeJSON: map[string]any{
			"type":    "error",
			"message": "Invalid variable name in request",
			"details": details,
		}},
		Metadata: map[string]any{MimeJSON: map[string]any{
			"error":     true,
			"errorType": "invalid_request",
		}},
	}
}

func renderChildren(nodes []*types.VariableNode) []map[string]any {
	out := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		child := map[string]any{
			"type":      "element",
			"name":      n.Name,
			"value":     n.Value,
			"valueType": n.Type,
			"index":     n.Index,
			"leaf":      n.Leaf(),
		}
		if n.IsContainer {
			child["hasChildren"] = true
			child["size"] = n.Size
		}
		out = append(out, child)
	}
	return out
}
