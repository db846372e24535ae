package registry

import (
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Fit policies. The policy decides which rows the encoder learns from and
// is recorded on every handle.
const (
	FitSample = "sample"
	FitFull   = "full"
)

// Schema describes what a fitted encoder consumes and produces.
type Schema struct {
	Column       string `yaml:"column"`
	InputWidth   int    `yaml:"input_width"`
	OutputWidth  int    `yaml:"output_width"`
	Encoder      string `yaml:"encoder"`
	FitPolicy    string `yaml:"fit_policy"`
	TrainingRows int    `yaml:"training_rows"`
}

// Handle identifies one fitted encoder. Callers hold handles; the fitted
// state stays inside the registry.
type Handle struct {
	ID        string    `yaml:"id"`
	DatasetID string    `yaml:"dataset_id"`
	FittedAt  time.Time `yaml:"fitted_at"`
	Schema    Schema    `yaml:"schema"`
}

// HandleID is the deterministic handle id for a dataset identity.
func HandleID(datasetID string) string {
	return fmt.Sprintf("h%016x", xxhash.Sum64String(datasetID))
}

// NotFoundError means no encoder has been fitted for the handle.
type NotFoundError struct {
	HandleID  string
	DatasetID string
}

func (e *NotFoundError) Error() string {
	if e.DatasetID != "" {
		return fmt.Sprintf("no fitted transformer for dataset %q (handle %s); transform the data first", e.DatasetID, e.HandleID)
	}
	return fmt.Sprintf("no fitted transformer for handle %s; transform the data first", e.HandleID)
}
