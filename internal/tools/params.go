package tools

import (
	"encoding/json"
	"strconv"
)

// Request is one /mcp/run invocation.
type Request struct {
	ToolName   string `json:"tool_name"`
	Parameters Params `json:"parameters"`
}

// Params are the caller-supplied tool parameters.
type Params map[string]any

// MissingParamError reports a required parameter that was absent or empty.
type MissingParamError struct {
	Label string
}

func (e *MissingParamError) Error() string {
	return e.Label + " is required"
}

// String returns the parameter as a string. Numbers are formatted without
// exponent so phone numbers sent as JSON numbers survive; other types yield "".
func (p Params) String(name string) string {
	switch v := p[name].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	}
	return ""
}

// Required returns the named parameter or a MissingParamError carrying label.
func (p Params) Required(name, label string) (string, error) {
	v := p.String(name)
	if v == "" {
		return "", &MissingParamError{Label: label}
	}
	return v, nil
}

// Optional returns the named parameter or fallback when absent.
func (p Params) Optional(name, fallback string) string {
	if v := p.String(name); v != "" {
		return v
	}
	return fallback
}
