// Package tools holds the tool catalog types consumed by the session core:
// tool definitions with JSON-schema parameters, templated output shaping, and
// per-service schema specialization.
package tools

// Well-known tool names. The catalog may carry more, but these drive the
// conversation state machine and the progressive-injection flow.
const (
	NameGetServiceDetails    = "get_service_details"
	NameGetQuote             = "get_quote"
	NameCheckDayAvailability = "check_day_availability"
	NameCreateUser           = "create_user"
	NameCreateBooking        = "create_booking"
	NameRequestTool          = "request_tool"
)

// JSONSchema is the parameter shape of a function tool.
type JSONSchema struct {
	Type        string                `json:"type,omitempty"`
	Description string                `json:"description,omitempty"`
	Properties  map[string]JSONSchema `json:"properties,omitempty"`
	Required    []string              `json:"required,omitempty"`
	Items       *JSONSchema           `json:"items,omitempty"`
	Enum        []string              `json:"enum,omitempty"`
}

// Clone returns a deep copy. Schema specialization works on copies so the
// catalog entry stays usable for other services.
func (s *JSONSchema) Clone() *JSONSchema {
	if s == nil {
		return nil
	}
	out := &JSONSchema{
		Type:        s.Type,
		Description: s.Description,
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]JSONSchema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = *prop.Clone()
		}
	}
	if len(s.Required) > 0 {
		out.Required = append([]string(nil), s.Required...)
	}
	if s.Items != nil {
		out.Items = s.Items.Clone()
	}
	if len(s.Enum) > 0 {
		out.Enum = append([]string(nil), s.Enum...)
	}
	return out
}

// OutputTemplate shapes a tool's raw result into the wire payload: which data
// fields to expose and how to phrase the human-readable message. Message
// templates substitute {field} and ${field} placeholders from the result.
type OutputTemplate struct {
	DataStructure  map[string]string `json:"data_structure,omitempty"`
	SuccessMessage string            `json:"success_message,omitempty"`
	ErrorMessage   string            `json:"error_message,omitempty"`
}

// Tool is a catalog entry. Immutable once loaded into a session; dynamic
// schemas are resolved into fresh instances per (tool, service) pair.
type Tool struct {
	Name              string          `json:"name"`
	Description       string          `json:"description,omitempty"`
	Version           string          `json:"version,omitempty"`
	FunctionSchema    *JSONSchema     `json:"function_schema,omitempty"`
	DynamicParameters bool            `json:"dynamic_parameters,omitempty"`
	OutputTemplate    *OutputTemplate `json:"output_template,omitempty"`
	BusinessSpecific  bool            `json:"business_specific,omitempty"`
}

// FunctionDefinition is the function-tool entry sent to the realtime upstream.
type FunctionDefinition struct {
	Type        string      `json:"type"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Parameters  *JSONSchema `json:"parameters,omitempty"`
}

// Definition renders the tool for the upstream tool inventory.
func (t Tool) Definition() FunctionDefinition {
	return FunctionDefinition{
		Type:        "function",
		Name:        t.Name,
		Description: t.Description,
		Parameters:  t.FunctionSchema,
	}
}

// Definitions renders a granted tool set for a session.update payload. Always
// non-nil so the upstream inventory is replaced, never left stale.
func Definitions(granted []Tool) []FunctionDefinition {
	defs := make([]FunctionDefinition, 0, len(granted))
	for _, t := range granted {
		defs = append(defs, t.Definition())
	}
	return defs
}
