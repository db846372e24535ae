package layout

import (
	"path/filepath"
	"testing"
)

func TestNamesCarryDatasetID(t *testing.T) {
	raw := RawPath("downloads", "1AbC-x_9")
	if raw != filepath.Join("downloads", "data_1AbC-x_9.csv") {
		t.Fatalf("unexpected raw path %q", raw)
	}
	fwd := TransformedPath("downloads", raw)
	if filepath.Base(fwd) != "transformed_data_1AbC-x_9.csv" {
		t.Fatalf("unexpected transformed path %q", fwd)
	}
	inv := InversePath("downloads", fwd)
	if filepath.Base(inv) != "inverse_transformed_data_1AbC-x_9.csv" {
		t.Fatalf("unexpected inverse path %q", inv)
	}

	id, err := DatasetID(raw)
	if err != nil || id != "1AbC-x_9" {
		t.Fatalf("DatasetID(%q) = %q, %v", raw, id, err)
	}
	id, err = DatasetIDFromTransformed("/elsewhere/" + filepath.Base(fwd))
	if err != nil || id != "1AbC-x_9" {
		t.Fatalf("DatasetIDFromTransformed = %q, %v", id, err)
	}
}

func TestDatasetID_Rejects(t *testing.T) {
	for _, p := range []string{"amounts.csv", "data_.csv", "data_a b.csv", "data_x.txt"} {
		if _, err := DatasetID(p); err == nil {
			t.Errorf("DatasetID(%q) should fail", p)
		}
	}
	if _, err := DatasetIDFromTransformed("data_x.csv"); err == nil {
		t.Error("raw name accepted as transformed")
	}
}
