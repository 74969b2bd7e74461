// Package identity computes the content hash that gives a Task its stable
// id: two calls with the same app, source and arguments produce the same
// id, so the scheduler can detect and reuse a prior result instead of
// re-running work (spec §3, reuse policy "fresh").
package identity

import (
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/minio/blake2b-simd"
)

// Spec is the set of inputs that determine a task's identity. AppHash is
// the App's own hash (see AppHash), which depends only on the App's name,
// source and free variables; Hash combines it with this call's
// arguments.
type Spec struct {
	AppHash    string
	ArgsBlob   []byte
	KwargsBlob []byte
	Deps       []string // dependency task ids, already part of ArgsBlob/KwargsBlob as DepRefs but included again to pin ordering
}

// Hash returns a stable task id for spec: "tsk_" followed by lowercase
// hex. Future
// arguments are hashed by the referenced task's id (carried in
// spec.Deps and embedded in the blobs as codec.DepRef values), not by
// the future's eventual value, so a task's identity is knowable before
// any of its dependencies have run.
func Hash(spec Spec) string {
	h := blake2b.New256()
	writeFramed(h, []byte(spec.AppHash))
	writeFramed(h, spec.ArgsBlob)
	writeFramed(h, spec.KwargsBlob)

	deps := append([]string(nil), spec.Deps...)
	sort.Strings(deps)
	for _, d := range deps {
		writeFramed(h, []byte(d))
	}

	return "tsk_" + hex.EncodeToString(h.Sum(nil))
}

// AppHash returns the stable hash of an App's identity: its registered
// name, its source text (supplied explicitly at registration, since Go
// cannot introspect a function's source the way the original dynamic
// language runtime does) and its free variables blob.
func AppHash(name, sourceText string, freeVarsBlob []byte) string {
	h := blake2b.New256()
	writeFramed(h, []byte(name))
	writeFramed(h, []byte(sourceText))
	writeFramed(h, freeVarsBlob)
	return hex.EncodeToString(h.Sum(nil))
}

// writeFramed writes a length prefix ahead of b so that concatenating
// two fields of different lengths never collides with a different split
// of the same bytes (e.g. ["ab","c"] vs ["a","bc"]).
func writeFramed(h interface{ Write([]byte) (int, error) }, b []byte) {
	var lenBuf [8]byte
	n := len(b)
	for i := 0; i < 8; i++ {
		lenBuf[i] = byte(n >> (8 * i))
	}
	h.Write(lenBuf[:])
	h.Write(b)
}

// NameKey returns the identity used by the "name" reuse policy: tasks
// match on app name and arguments alone, ignoring source text and free
// variables, so an app's implementation can change without invalidating
// prior results addressed by name.
func NameKey(appName string, argsBlob, kwargsBlob []byte) string {
	h := blake2b.New256()
	writeFramed(h, []byte(appName))
	writeFramed(h, argsBlob)
	writeFramed(h, kwargsBlob)
	return fmt.Sprintf("name_%x", h.Sum(nil))
}
