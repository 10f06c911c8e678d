package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/flowptr/painter-bridge/internal/dispatch"
)

// Runner executes fn on the bridge loop and waits for it
type Runner interface {
	Do(ctx context.Context, fn func()) error
}

// EngineStatus is reported by the engine_status tool
type EngineStatus struct {
	Connected    bool   `json:"connected"`
	Ready        bool   `json:"ready"`
	State        string `json:"state"`
	ConnectionID string `json:"connection_id,omitempty"`
	Commands     int    `json:"commands"`
}

// BridgeOptions wires the bridge tools to the running bridge
type BridgeOptions struct {
	Commands *dispatch.Registry
	Loop     Runner
	// Push sends a host command to the engine. Runs on the loop.
	Push func(method string, params any) error
	// Status snapshots the engine state. Runs on the loop.
	Status func() EngineStatus
}

// PushParams are the arguments of push_engine_command
type PushParams struct {
	Method string         `json:"method" jsonschema:"host command name, for example PROJECT_OPENED"`
	Params map[string]any `json:"params,omitempty" jsonschema:"command parameters"`
}

// ToolName maps a command name to its tool name
func ToolName(command string) string {
	return "engine_" + strings.ToLower(command)
}

// RegisterBridgeTools exposes every dispatch command as a tool plus the
// push and status tools. Every call runs on the bridge loop.
func RegisterBridgeTools(r *Registry, opts BridgeOptions) {
	for _, command := range opts.Commands.SortedCommands() {
		command := command
		desc, ok := commandDescriptions[command]
		if !ok {
			desc = fmt.Sprintf("Invoke the %s command as if sent by the engine", command)
		}
		schema, ok := commandSchemas[command]
		if !ok {
			schema = object(nil, nil)
		}
		r.Register(ToolDef{
			Name:        ToolName(command),
			Description: desc,
			InputSchema: schema,
		}, func(ctx context.Context, args json.RawMessage) (any, error) {
			var result any
			var callErr error
			err := opts.Loop.Do(ctx, func() {
				result, callErr = opts.Commands.Invoke(ctx, command, args)
			})
			if err != nil {
				return nil, err
			}
			return result, callErr
		})
	}

	if opts.Push != nil {
		RegisterTyped(r, ToolDef{
			Name:        "push_engine_command",
			Description: "Send a host command to the connected engine without waiting for a reply",
		}, func(ctx context.Context, p PushParams) (any, error) {
			if p.Method == "" {
				return nil, fmt.Errorf("method is required")
			}
			var params any = p.Params
			if p.Params == nil {
				params = map[string]any{}
			}
			var pushErr error
			if err := opts.Loop.Do(ctx, func() {
				pushErr = opts.Push(p.Method, params)
			}); err != nil {
				return nil, err
			}
			if pushErr != nil {
				return nil, pushErr
			}
			return map[string]any{"sent": p.Method}, nil
		})
	}

	if opts.Status != nil {
		r.Register(ToolDef{
			Name:        "engine_status",
			Description: "Report engine connection, readiness and supervisor state",
		}, func(ctx context.Context, _ json.RawMessage) (any, error) {
			var status EngineStatus
			if err := opts.Loop.Do(ctx, func() {
				status = opts.Status()
			}); err != nil {
				return nil, err
			}
			return status, nil
		})
	}
}

func str(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: desc}
}

func object(required []string, props map[string]*jsonschema.Schema) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object", Required: required, Properties: props}
}

var logSchema = object(nil, map[string]*jsonschema.Schema{
	"message": str("text to log"),
})

var commandSchemas = map[string]*jsonschema.Schema{
	"OPEN_PROJECT": object([]string{"path"}, map[string]*jsonschema.Schema{
		"path": str("project file to open"),
	}),
	"SAVE_PROJECT_AS": object([]string{"path"}, map[string]*jsonschema.Schema{
		"path": str("destination project file"),
	}),
	"EXECUTE_STATEMENT": object([]string{"statement"}, map[string]*jsonschema.Schema{
		"statement": str("statement to evaluate in the host scripting environment"),
	}),
	"EXTRACT_THUMBNAIL": object([]string{"path"}, map[string]*jsonschema.Schema{
		"path": str("image file to write"),
	}),
	"IMPORT_PROJECT_RESOURCE": object([]string{"path"}, map[string]*jsonschema.Schema{
		"path":        str("file to import"),
		"usage":       str("resource usage, for example texture"),
		"destination": str("resource shelf destination"),
	}),
	"GET_PROJECT_SETTINGS": object([]string{"key"}, map[string]*jsonschema.Schema{
		"key": str("settings namespace"),
	}),
	"GET_RESOURCE_INFO": object([]string{"url"}, map[string]*jsonschema.Schema{
		"url": str("resource url"),
	}),
	"UPDATE_DOCUMENT_RESOURCES": object([]string{"old_url", "new_url"}, map[string]*jsonschema.Schema{
		"old_url": str("resource url to replace"),
		"new_url": str("replacement resource url"),
	}),
	"EXPORT_DOCUMENT_MAPS": object(nil, map[string]*jsonschema.Schema{
		"destination": str("export directory, defaults to the project export path"),
	}),
	"TOGGLE_DEBUG_LOGGING": object([]string{"enabled"}, map[string]*jsonschema.Schema{
		"enabled": {Type: "boolean", Description: "turn debug logging on or off"},
	}),
	"LOG_DEBUG":     logSchema,
	"LOG_INFO":      logSchema,
	"LOG_WARNING":   logSchema,
	"LOG_ERROR":     logSchema,
	"LOG_EXCEPTION": logSchema,
}

var commandDescriptions = map[string]string{
	"GET_VERSION":                "Report the painter and API versions",
	"ENGINE_READY":               "Mark the engine as ready",
	"GET_CURRENT_PROJECT_PATH":   "Path of the open project",
	"NEEDS_SAVING":               "Whether the open project has unsaved changes",
	"OPEN_PROJECT":               "Open a project file",
	"SAVE_PROJECT":               "Save the open project",
	"SAVE_PROJECT_AS":            "Save the open project to a new path",
	"SAVE_PROJECT_AS_ACTION":     "Save the open project to a path chosen by the host",
	"CLOSE_PROJECT":              "Close the open project",
	"EXECUTE_STATEMENT":          "Evaluate a statement in the host scripting environment",
	"EXTRACT_THUMBNAIL":          "Write a viewport thumbnail to a file",
	"IMPORT_PROJECT_RESOURCE":    "Import a file as a project resource",
	"GET_PROJECT_SETTINGS":       "Read a project settings namespace",
	"GET_RESOURCE_INFO":          "Describe a project resource",
	"UPDATE_DOCUMENT_RESOURCES":  "Replace a resource everywhere it is used",
	"DOCUMENT_RESOURCES":         "List resources in use by the project",
	"GET_PROJECT_EXPORT_PATH":    "Default export directory of the project",
	"GET_MAP_EXPORT_INFORMATION": "Planned map export files per texture set",
	"EXPORT_DOCUMENT_MAPS":       "Export all document maps",
	"TOGGLE_DEBUG_LOGGING":       "Turn debug logging on or off",
}
