// Package export writes group reports for downstream analysis and BI
// tools: JSON, CSV, and XLSX.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/traceflow/traceflow/pkg/errors"
	"github.com/traceflow/traceflow/pkg/forest"
)

// GroupRow is one report row, flattened for tabular formats.
type GroupRow struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	ModelID  string  `json:"model_id,omitempty"`
	Parents  []int64 `json:"parents"`
	Children []int64 `json:"children"`
}

// Rows flattens the group metadata map into rows sorted by group id.
func Rows(meta forest.GroupMetadataMap) []GroupRow {
	rows := make([]GroupRow, 0, len(meta))
	for id, m := range meta {
		rows = append(rows, GroupRow{
			ID:       id,
			Name:     m.Name,
			ModelID:  m.ModelID,
			Parents:  sortedIDs(m.Parents),
			Children: sortedIDs(m.Children),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows
}

func sortedIDs(set map[int64]bool) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// WriteJSON writes the report as a JSON array.
func WriteJSON(w io.Writer, meta forest.GroupMetadataMap) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Rows(meta)); err != nil {
		return errors.ExportError("json", err)
	}
	return nil
}

// WriteCSV writes the report as CSV with a header row.
func WriteCSV(w io.Writer, meta forest.GroupMetadataMap) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "name", "model_id", "parents", "children"}); err != nil {
		return errors.ExportError("csv", err)
	}
	for _, row := range Rows(meta) {
		rec := []string{
			strconv.FormatInt(row.ID, 10),
			row.Name,
			row.ModelID,
			joinIDs(row.Parents),
			joinIDs(row.Children),
		}
		if err := cw.Write(rec); err != nil {
			return errors.ExportError("csv", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.ExportError("csv", err)
	}
	return nil
}

// WriteXLSX writes the report as a single-sheet workbook.
func WriteXLSX(path string, meta forest.GroupMetadataMap) error {
	xl := excelize.NewFile()
	defer xl.Close()

	const sheet = "Groups"
	idx, err := xl.NewSheet(sheet)
	if err != nil {
		return errors.ExportError("xlsx", err)
	}
	xl.SetActiveSheet(idx)
	xl.DeleteSheet("Sheet1")

	header := []interface{}{"ID", "Name", "Model ID", "Parents", "Children"}
	if err := xl.SetSheetRow(sheet, "A1", &header); err != nil {
		return errors.ExportError("xlsx", err)
	}
	for i, row := range Rows(meta) {
		cell := fmt.Sprintf("A%d", i+2)
		values := []interface{}{row.ID, row.Name, row.ModelID, joinIDs(row.Parents), joinIDs(row.Children)}
		if err := xl.SetSheetRow(sheet, cell, &values); err != nil {
			return errors.ExportError("xlsx", err)
		}
	}

	if err := xl.SaveAs(path); err != nil {
		return errors.ExportError("xlsx", err)
	}
	return nil
}

// WriteFile writes the report in the format implied by the extension:
// .json, .csv, or .xlsx.
func WriteFile(path string, meta forest.GroupMetadataMap) error {
	switch ext(path) {
	case ".json":
		f, err := os.Create(path)
		if err != nil {
			return errors.ExportError("json", err)
		}
		defer f.Close()
		return WriteJSON(f, meta)
	case ".csv":
		f, err := os.Create(path)
		if err != nil {
			return errors.ExportError("csv", err)
		}
		defer f.Close()
		return WriteCSV(f, meta)
	case ".xlsx":
		return WriteXLSX(path, meta)
	default:
		return errors.New(errors.CodeExportFailed, "unsupported report format").
			WithContext("path", path)
	}
}

func ext(path string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/'; i-- {
		if path[i] == '.' {
			return path[i:]
		}
	}
	return ""
}

func joinIDs(ids []int64) string {
	s := ""
	for i, id := range ids {
		if i > 0 {
			s += ","
		}
		s += strconv.FormatInt(id, 10)
	}
	return s
}
