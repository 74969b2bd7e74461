package app

import "github.com/me/desipipe/internal/workerrt"

// DefaultRegistry is the process-global registry PythonApp and BashApp
// populate. A worker process must import whatever package calls
// PythonApp/BashApp before it starts serving tasks of that app name —
// Go has no runtime introspection to discover a function from its
// registered name otherwise, so registration has to happen by the
// caller actually running the registering code (typically an init() in
// the same package that defines the app).
var DefaultRegistry = workerrt.NewRegistry()
