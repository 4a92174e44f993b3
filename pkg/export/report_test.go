package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/traceflow/traceflow/pkg/forest"
)

func sampleMeta() forest.GroupMetadataMap {
	return forest.GroupMetadataMap{
		1: {Name: "step 2", Parents: map[int64]bool{0: true}, Children: map[int64]bool{}},
		0: {Name: "step 1", ModelID: "bert", Parents: map[int64]bool{}, Children: map[int64]bool{1: true}},
	}
}

func TestRowsSortedByID(t *testing.T) {
	rows := Rows(sampleMeta())
	if len(rows) != 2 || rows[0].ID != 0 || rows[1].ID != 1 {
		t.Fatalf("rows = %+v", rows)
	}
	if rows[0].Children[0] != 1 || rows[1].Parents[0] != 0 {
		t.Errorf("relationships lost: %+v", rows)
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, sampleMeta()); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var back []GroupRow
	if err := json.Unmarshal(buf.Bytes(), &back); err != nil {
		t.Fatalf("output is not valid json: %v", err)
	}
	if len(back) != 2 || back[0].ModelID != "bert" {
		t.Errorf("round trip = %+v", back)
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleMeta()); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want header + 2", len(records))
	}
	if records[1][1] != "step 1" || records[2][3] != "0" {
		t.Errorf("records = %v", records)
	}
}

func TestWriteFileByExtension(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"report.json", "report.csv", "report.xlsx"} {
		if err := WriteFile(filepath.Join(dir, name), sampleMeta()); err != nil {
			t.Errorf("WriteFile(%s): %v", name, err)
		}
	}
	if err := WriteFile(filepath.Join(dir, "report.txt"), sampleMeta()); err == nil {
		t.Error("unsupported extension must error")
	}
}
