package settings

import (
	"context"
	"sync/atomic"
)

// ambient holds the process-wide settings snapshot. It is swapped wholesale on
// rebuild (e.g. after a secrets file changes); readers always see a complete
// snapshot.
var ambient atomic.Pointer[Settings]

type ctxKey struct{}

// SetAmbient replaces the process-wide snapshot.
func SetAmbient(s *Settings) {
	ambient.Store(s)
}

// Ambient returns the process-wide snapshot, resolving the static layers
// lazily on first use.
func Ambient() *Settings {
	if s := ambient.Load(); s != nil {
		return s
	}
	s, err := Resolve(ResolveOptions{})
	if err != nil {
		// Embedded defaults alone always decode; reaching here means a local
		// secrets file is malformed. Fall back to defaults only.
		s, _ = Resolve(ResolveOptions{SecretsFiles: []string{}})
	}
	ambient.CompareAndSwap(nil, s)
	return ambient.Load()
}

// WithScoped overlays a snapshot for the dynamic scope of a single dispatch.
// Readers that use FromContext see the scoped snapshot; other in-flight
// dispatches are unaffected.
func WithScoped(ctx context.Context, s *Settings) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the scoped snapshot when one is present, falling back to
// the ambient snapshot.
func FromContext(ctx context.Context) *Settings {
	if s, ok := ctx.Value(ctxKey{}).(*Settings); ok && s != nil {
		return s
	}
	return Ambient()
}
