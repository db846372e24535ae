package source

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds an Adapter (gdrive, s3, …).
type Factory func() Adapter

var (
	regMu    sync.RWMutex
	registry = map[string]Factory{}
)

// Register is called from main (or a test) once per link scheme.
func Register(scheme string, f Factory) {
	regMu.Lock()
	registry[scheme] = f
	regMu.Unlock()
}

// NewAdapter returns a driver by scheme ("gdrive", "s3").
func NewAdapter(scheme string) (Adapter, error) {
	regMu.RLock()
	f, ok := registry[scheme]
	regMu.RUnlock()
	if ok {
		return f(), nil
	}
	return nil, fmt.Errorf("source: unsupported scheme %q", scheme)
}

func schemes() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(registry))
	for s := range registry {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
