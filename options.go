// Copyright 2026 The Thorn Authors
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package thorn

// WithDebugCreationStack enables capturing a Go stack trace at the moment
// each promise is created, mirroring the teacher's WithDebugMode creation-
// stack feature. Off by default: runtime.Callers is not free, and most
// hosts only want it while chasing a specific unhandled-rejection report.
// Retrieve the captured trace with [PromiseCreationStack].
func WithDebugCreationStack(enabled bool) RuntimeOption {
	return func(rt *Runtime) { rt.debugStack = enabled }
}
