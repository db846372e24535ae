// Package layout fixes the on-disk names of raw, transformed and inverted
// files. The dataset id is embedded in every name so a transformed file can
// be traced back to the encoder that produced it.
package layout

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	rawPrefix         = "data_"
	transformedPrefix = "transformed_"
	inversePrefix     = "inverse_"
	ext               = ".csv"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidID reports whether id is safe to embed in a file name.
func ValidID(id string) bool { return idPattern.MatchString(id) }

// RawPath is where the fetcher stores the dataset with the given id.
func RawPath(dir, id string) string {
	return filepath.Join(dir, rawPrefix+id+ext)
}

// TransformedPath is the forward output for a raw file.
func TransformedPath(dir, rawPath string) string {
	return filepath.Join(dir, transformedPrefix+filepath.Base(rawPath))
}

// InversePath is the inverse output for a transformed file.
func InversePath(dir, transformedPath string) string {
	return filepath.Join(dir, inversePrefix+filepath.Base(transformedPath))
}

// DatasetID extracts the dataset id from a raw file path.
func DatasetID(rawPath string) (string, error) {
	base := filepath.Base(rawPath)
	id, ok := strings.CutPrefix(base, rawPrefix)
	if ok {
		id, ok = strings.CutSuffix(id, ext)
	}
	if !ok || !ValidID(id) {
		return "", fmt.Errorf("layout: %q is not a raw dataset file", base)
	}
	return id, nil
}

// DatasetIDFromTransformed recovers the dataset id from a forward output
// name (transformed_data_<id>.csv).
func DatasetIDFromTransformed(path string) (string, error) {
	base := filepath.Base(path)
	raw, ok := strings.CutPrefix(base, transformedPrefix)
	if !ok {
		return "", fmt.Errorf("layout: %q is not a transformed file", base)
	}
	return DatasetID(raw)
}
