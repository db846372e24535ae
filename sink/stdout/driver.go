// numflow/sink/stdout/driver.go
package stdout

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"numflow/internal/job"
	"numflow/sink"
)

/* ────────── public config ────────── */
type Config struct {
	PrintCounter bool      `yaml:"print_counter"` // prepend seq#
	JSON         bool      `yaml:"json"`          // one JSON document per line
	Out          io.Writer `yaml:"-"`             // nil → os.Stdout
}

/* ────────── driver ────────── */
type driver struct {
	cfg Config

	mu  sync.Mutex // serialises writes and seq
	seq uint64
}

/* ────────── sink.Adapter ────────── */
func (d *driver) Configure(raw any) error {
	c, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("stdout-sink: expected Config, got %T", raw)
	}
	if c.Out == nil {
		c.Out = os.Stdout
	}
	d.cfg = c
	return nil
}

func (d *driver) Push(r job.Result) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	if d.cfg.PrintCounter {
		if _, err := fmt.Fprintf(d.cfg.Out, "[sink %06d] ", d.seq); err != nil {
			return err
		}
	}

	if d.cfg.JSON {
		b, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("stdout-sink: %w", err)
		}
		_, err = fmt.Fprintf(d.cfg.Out, "%s\n", b)
		return err
	}

	out := r.OutputPath
	if r.Operation == job.OpInverse {
		out = r.InverseOutputPath
	}
	_, err := fmt.Fprintf(d.cfg.Out, "%s %s %s rows=%d chunks=%d elapsed=%.3fs out=%s msg=%q\n",
		r.JobID, r.Operation, r.Status, r.RowCount, r.ChunkCount, r.ElapsedSeconds, out, r.Message)
	return err
}

func (d *driver) Close() error { return nil }

/* ────────── auto-register ────────── */
func init() {
	sink.Register("stdout", func() sink.Adapter { return &driver{} })
}
