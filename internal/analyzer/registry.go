package analyzer

import (
	"fmt"
	"sort"
	"sync"
)

// Backend identifies a scorer implementation
type Backend string

const (
	BackendNative Backend = "native"
	BackendOpenCV Backend = "opencv"
)

type scorerConstructor func(ScoringOptions) SharpnessScorer

var (
	backendsMu sync.RWMutex
	backends   = map[Backend]scorerConstructor{
		BackendNative: NewSharpnessScorer,
	}
)

// registerBackend makes an optional implementation available to NewScorer.
// Build-tagged backends call it from init.
func registerBackend(b Backend, ctor scorerConstructor) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[b] = ctor
}

// NewScorer creates a scorer for the named backend
func NewScorer(backend Backend, options ScoringOptions) (SharpnessScorer, error) {
	if backend == "" {
		backend = BackendNative
	}

	backendsMu.RLock()
	ctor, ok := backends[backend]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported scorer backend: %s (available: %v)", backend, AvailableBackends())
	}
	return ctor(options), nil
}

// AvailableBackends lists the compiled-in backends
func AvailableBackends() []Backend {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	out := make([]Backend, 0, len(backends))
	for b := range backends {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
