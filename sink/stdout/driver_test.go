package stdout

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"numflow/internal/job"
	"numflow/sink"
)

func TestPushText(t *testing.T) {
	var buf bytes.Buffer
	a, err := sink.NewAdapter("stdout")
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Configure(Config{PrintCounter: true, Out: &buf}); err != nil {
		t.Fatal(err)
	}
	_ = a.Push(job.Result{JobID: "j1", Operation: job.OpTransform, Status: job.StatusSuccess, OutputPath: "out/t.csv", RowCount: 10})
	_ = a.Push(job.Result{JobID: "j2", Operation: job.OpInverse, Status: job.StatusError, Message: "boom"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "[sink 000001] j1 transform success rows=10") || !strings.Contains(lines[0], "out=out/t.csv") {
		t.Errorf("line 0 = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "[sink 000002] j2 inverse_transform error") || !strings.Contains(lines[1], `msg="boom"`) {
		t.Errorf("line 1 = %q", lines[1])
	}
}

func TestPushJSON(t *testing.T) {
	var buf bytes.Buffer
	d := &driver{}
	if err := d.Configure(Config{JSON: true, Out: &buf}); err != nil {
		t.Fatal(err)
	}
	if err := d.Push(job.Result{JobID: "j1", Status: job.StatusSuccess, HandleID: "h1"}); err != nil {
		t.Fatal(err)
	}
	var got job.Result
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("not json: %v (%q)", err, buf.String())
	}
	if got.JobID != "j1" || got.HandleID != "h1" {
		t.Errorf("decoded %+v", got)
	}
}

func TestConfigureWrongType(t *testing.T) {
	d := &driver{}
	if err := d.Configure(struct{}{}); err == nil {
		t.Fatal("expected error for foreign config type")
	}
}
