package sink

import (
	"fmt"
	"sort"
	"sync"

	"numflow/internal/job"
)

// Adapter is the common behaviour every sink exposes. The pipeline pushes
// one job.Result per finished call, success or failure.
type Adapter interface {
	Configure(any) error   // driver-specific config ⇒ struct
	Push(job.Result) error // publish one result
	Close() error          // idempotent
}

/*──────── registry ───────*/

type factory = func() Adapter

var (
	mu  sync.RWMutex
	reg = map[string]factory{}
)

func Register(name string, f factory) {
	mu.Lock()
	defer mu.Unlock()
	reg[name] = f
}

func NewAdapter(name string) (Adapter, error) {
	mu.RLock()
	f, ok := reg[name]
	mu.RUnlock()
	if ok {
		return f(), nil
	}
	return nil, fmt.Errorf("unknown sink %q (have %v)", name, Names())
}

// Names lists the registered drivers.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(reg))
	for n := range reg {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
