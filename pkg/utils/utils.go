// Copyright (c) 2024-2026 CoachlyAI
//
// Licensed under GPL-2.0 with Coachly Additional Terms.
// See LICENSE.md or contact sales@coachly.ai for commercial usage.
package utils

import (
	"context"
	"encoding/json"
	"runtime/debug"
)

// ToJson marshals v for diagnostic output; errors collapse to an empty string.
func ToJson(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// Go runs fn on a new goroutine with panic recovery. A panicking background
// task must never take the whole agent down mid-recording.
func Go(ctx context.Context, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				// Recovered panics are printed with stack; the logger is not
				// plumbed here to keep the helper dependency-free.
				debug.PrintStack()
			}
		}()
		select {
		case <-ctx.Done():
			return
		default:
		}
		fn()
	}()
}
