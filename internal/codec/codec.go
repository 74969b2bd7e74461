// Package codec serializes task arguments, keyword arguments, results and
// TMConfig values to the opaque blobs the queue store persists on a Task
// row. The store never inspects these blobs; only codec and the app layer
// that calls it know their shape.
package codec

import (
	"encoding/json"
	"fmt"
)

// DepRef is the placeholder an argument takes when its value is the
// not-yet-known result of another task. EncodeArgs/EncodeKwargs replace
// any *app.Future it finds with a DepRef before marshaling, and the
// caller is responsible for collecting the referenced task ids into the
// Task's Deps list.
type DepRef struct {
	TaskID string `json:"$desipipe_dep"`
}

// isDepRef reports whether a decoded map matches the DepRef wire shape,
// used by DecodeArgs/DecodeKwargs (through reviveOne) to avoid
// round-tripping through reflection tags twice.
func isDepRef(v any) (string, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	id, ok := m["$desipipe_dep"].(string)
	return id, ok
}

// EncodeArgs marshals a positional argument list to a blob, resolving any
// value implementing Futurer to a DepRef and appending its task id to
// deps. args must otherwise be JSON-marshalable.
func EncodeArgs(args []any) (blob []byte, deps []string, err error) {
	resolved := make([]any, len(args))
	for i, a := range args {
		r, id, isDep := resolveDep(a)
		resolved[i] = r
		if isDep {
			deps = append(deps, id)
		}
	}
	blob, err = json.Marshal(resolved)
	if err != nil {
		return nil, nil, fmt.Errorf("codec: encode args: %w", err)
	}
	return blob, deps, nil
}

// EncodeKwargs marshals keyword arguments the same way EncodeArgs does.
func EncodeKwargs(kwargs map[string]any) (blob []byte, deps []string, err error) {
	if kwargs == nil {
		return nil, nil, nil
	}
	resolved := make(map[string]any, len(kwargs))
	for k, v := range kwargs {
		r, id, isDep := resolveDep(v)
		resolved[k] = r
		if isDep {
			deps = append(deps, id)
		}
	}
	blob, err = json.Marshal(resolved)
	if err != nil {
		return nil, nil, fmt.Errorf("codec: encode kwargs: %w", err)
	}
	return blob, deps, nil
}

// Futurer is implemented by app.Future; codec depends on the method, not
// the concrete type, so app can depend on codec without a cycle.
type Futurer interface {
	TaskID() string
}

func resolveDep(v any) (resolved any, taskID string, isDep bool) {
	if f, ok := v.(Futurer); ok {
		return DepRef{TaskID: f.TaskID()}, f.TaskID(), true
	}
	return v, "", false
}

// DecodeArgs unmarshals a positional argument blob back into a []any.
// Any element previously resolved to a DepRef decodes back to a DepRef
// value rather than the original Future, since the Future no longer
// exists once reloaded from the store; Worker.resolveDeps in the worker
// runtime replaces DepRefs with the dependency's actual result before calling
// the app function.
func DecodeArgs(blob []byte) ([]any, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	var raw []any
	if err := json.Unmarshal(blob, &raw); err != nil {
		return nil, fmt.Errorf("codec: decode args: %w", err)
	}
	return reviveDeps(raw), nil
}

// DecodeKwargs unmarshals a keyword argument blob.
func DecodeKwargs(blob []byte) (map[string]any, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	var raw map[string]any
	if err := json.Unmarshal(blob, &raw); err != nil {
		return nil, fmt.Errorf("codec: decode kwargs: %w", err)
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = reviveOne(v)
	}
	return out, nil
}

func reviveDeps(raw []any) []any {
	out := make([]any, len(raw))
	for i, v := range raw {
		out[i] = reviveOne(v)
	}
	return out
}

func reviveOne(v any) any {
	if id, ok := isDepRef(v); ok {
		return DepRef{TaskID: id}
	}
	return v
}

// EncodeResult marshals an app's return value for storage on ResultBlob.
func EncodeResult(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	blob, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: encode result: %w", err)
	}
	return blob, nil
}

// DecodeResult unmarshals a ResultBlob into dst, a pointer supplied by
// the caller who knows the expected type.
func DecodeResult(blob []byte, dst any) error {
	if len(blob) == 0 {
		return nil
	}
	if err := json.Unmarshal(blob, dst); err != nil {
		return fmt.Errorf("codec: decode result: %w", err)
	}
	return nil
}
