package controller

import "time"

// Clock abstracts wall-clock time so tests can drive the simulation
// deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock returns the real wall clock (UTC).
func SystemClock() Clock { return systemClock{} }
