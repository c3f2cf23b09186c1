package tools

import (
	"fmt"
	"strconv"
	"strings"
)

// Response is the structured payload returned to the model for every tool
// outcome. Message is natural language; Data carries the fields selected by
// the tool's output template. Raw error objects never appear here.
type Response struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

const fallbackErrorMessage = "Something went wrong. Please try again."

// BuildSuccess shapes a successful handler result through the tool's output
// template. Fields named in data_structure but absent from the result become
// nil so the wire shape is stable.
func BuildSuccess(tool Tool, result map[string]any) *Response {
	data := templatedData(tool, result)
	message := "Done."
	if tool.OutputTemplate != nil && strings.TrimSpace(tool.OutputTemplate.SuccessMessage) != "" {
		message = renderMessage(tool.OutputTemplate.SuccessMessage, result)
	}
	return &Response{Success: true, Message: message, Data: data}
}

// BuildFailure shapes a user-input error. The message is never empty: the
// explicit message wins, then the template's error_message, then a generic
// fallback.
func BuildFailure(tool Tool, message string, result map[string]any) *Response {
	data := templatedData(tool, result)
	message = strings.TrimSpace(message)
	if message == "" && tool.OutputTemplate != nil && strings.TrimSpace(tool.OutputTemplate.ErrorMessage) != "" {
		message = renderMessage(tool.OutputTemplate.ErrorMessage, result)
	}
	if message == "" {
		message = fallbackErrorMessage
	}
	return &Response{Success: false, Message: message, Data: data}
}

// Failure builds a failure response that is not tied to a catalog entry, for
// dispatch-level outcomes like "tool unavailable".
func Failure(message string) *Response {
	message = strings.TrimSpace(message)
	if message == "" {
		message = fallbackErrorMessage
	}
	return &Response{Success: false, Message: message}
}

func templatedData(tool Tool, result map[string]any) map[string]any {
	if tool.OutputTemplate == nil || len(tool.OutputTemplate.DataStructure) == 0 {
		if len(result) == 0 {
			return nil
		}
		data := make(map[string]any, len(result))
		for k, v := range result {
			data[k] = v
		}
		return data
	}
	data := make(map[string]any, len(tool.OutputTemplate.DataStructure))
	for field := range tool.OutputTemplate.DataStructure {
		if v, ok := result[field]; ok {
			data[field] = v
		} else {
			data[field] = nil
		}
	}
	return data
}

// renderMessage substitutes {field} and ${field} placeholders with values from
// the result map. Unmatched placeholders are left as-is.
func renderMessage(template string, values map[string]any) string {
	out := template
	for key, value := range values {
		rendered := formatValue(value)
		out = strings.ReplaceAll(out, "${"+key+"}", rendered)
		out = strings.ReplaceAll(out, "{"+key+"}", rendered)
	}
	return out
}

func formatValue(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(value), 'f', -1, 32)
	case int:
		return strconv.Itoa(value)
	case int64:
		return strconv.FormatInt(value, 10)
	case bool:
		return strconv.FormatBool(value)
	default:
		return fmt.Sprintf("%v", value)
	}
}
