package tools

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Result is the uniform response envelope every tool produces.
// On the wire it is a flat JSON object: "success", "error" (present iff
// success is false) and any tool-specific fields.
type Result struct {
	Success bool
	Error   string
	Fields  map[string]any
}

// OK returns a successful result carrying fields.
func OK(fields map[string]any) Result {
	return Result{Success: true, Fields: fields}
}

// Fail returns a failed result with msg as its error.
func Fail(msg string) Result {
	return Result{Error: msg}
}

// Failf is Fail with formatting.
func Failf(format string, args ...any) Result {
	return Fail(fmt.Sprintf(format, args...))
}

// FailErr turns err into a failed result.
func FailErr(err error) Result {
	if err == nil {
		return Fail("unknown error")
	}
	return Fail(err.Error())
}

// With returns a copy of r with key set to v.
func (r Result) With(key string, v any) Result {
	fields := make(map[string]any, len(r.Fields)+1)
	maps.Copy(fields, r.Fields)
	fields[key] = v
	r.Fields = fields
	return r
}

// Get returns the tool-specific field key, or nil.
func (r Result) Get(key string) any {
	return r.Fields[key]
}

// Bool returns the tool-specific field key as a bool (false if absent).
func (r Result) Bool(key string) bool {
	b, _ := r.Fields[key].(bool)
	return b
}

// MarshalJSON flattens the envelope. Fields named "success" or "error" are
// shadowed by the envelope values.
func (r Result) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+2)
	maps.Copy(out, r.Fields)
	out["success"] = r.Success
	if r.Success {
		delete(out, "error")
	} else {
		msg := r.Error
		if msg == "" {
			msg = "unknown error"
		}
		out["error"] = msg
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts any flat envelope, such as one returned by a session host.
func (r *Result) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	res := Result{}
	if v, ok := raw["success"].(bool); ok {
		res.Success = v
	}
	if v, ok := raw["error"].(string); ok {
		res.Error = v
	}
	delete(raw, "success")
	delete(raw, "error")
	if len(raw) > 0 {
		res.Fields = raw
	}
	*r = res
	return nil
}
