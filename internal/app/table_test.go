package app

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"contact_harvest/internal/shared/types"
)

const nameCol, localityCol = "Name (Formatted)", "Contact Address (City, State)"

func TestReadTable(t *testing.T) {
	in := "\ufeffID,Name (Formatted),\"Contact Address (City, State)\",Notes\n" +
		"7,John Smith,\"Austin, TX\",vip\n" +
		"8, Jane Doe ,\"Dallas, TX\"\n"
	tbl, err := ReadTable(strings.NewReader(in), nameCol, localityCol)
	if err != nil {
		t.Fatalf("ReadTable failed: %v", err)
	}
	if tbl.Header[0] != "ID" {
		t.Errorf("BOM not stripped: %q", tbl.Header[0])
	}
	if len(tbl.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(tbl.Rows))
	}
	r := tbl.Rows[1]
	if r.Ordinal != 1 || r.Name != "Jane Doe" || r.Locality != "Dallas, TX" {
		t.Errorf("unexpected row %+v", r)
	}
	if len(r.Fields) != 4 || r.Fields[3] != "" {
		t.Errorf("short row should be padded to header width, got %q", r.Fields)
	}
}

func TestReadTableMissingColumn(t *testing.T) {
	_, err := ReadTable(strings.NewReader("Name (Formatted),City\nA,B\n"), nameCol, localityCol)
	if err == nil || !strings.Contains(err.Error(), localityCol) {
		t.Fatalf("expected missing column error, got %v", err)
	}
}

func TestWriteMergedKeepsEveryInputRow(t *testing.T) {
	tbl := &Table{
		Header: []string{"ID", nameCol, localityCol},
		Rows: []types.InputRow{
			{Ordinal: 0, Fields: []string{"1", "John Smith", "Austin, TX"}},
			{Ordinal: 1, Fields: []string{"2", "Nobody", "Waco, TX"}},
			{Ordinal: 2, Fields: []string{"3", "Many", "Houston, TX"}},
		},
	}
	found := types.Result{VerifiedName: "John Smith", VerifiedAddress: "123 Main St, Austin, TX 78701", Remarks: types.RecordFound(), UsedEgress: "1.2.3.4:8080"}
	found.Phones = [types.PhoneSlots]string{"", "", "(512) 555-1212", ""}
	found.Emails = [types.EmailSlots]string{"", "js@example.com", ""}
	results := map[int]types.Result{
		0: found,
		2: {Remarks: types.ResultSummary("42 records found")},
		9: {Remarks: types.NoRecordFound()}, // no such input row
	}

	var buf bytes.Buffer
	if err := WriteMerged(&buf, tbl, results); err != nil {
		t.Fatal(err)
	}
	recs, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 4 {
		t.Fatalf("expected header + 3 rows, got %d", len(recs))
	}
	wantHeader := append([]string{"ID", nameCol, localityCol}, ExtractionColumns...)
	if strings.Join(recs[0], "|") != strings.Join(wantHeader, "|") {
		t.Errorf("header = %q", recs[0])
	}
	row := recs[1]
	if row[0] != "1" || row[3] != "John Smith" || row[5] != "(512) 555-1212" || row[6] != "" || row[9] != "js@example.com" {
		t.Errorf("unexpected merged row %q", row)
	}
	if row[12] != "Record found" || row[13] != "1.2.3.4:8080" {
		t.Errorf("unexpected remarks/egress %q", row[12:])
	}
	if got := recs[2][3:]; strings.Join(got, "") != "" {
		t.Errorf("row without result should have empty extraction columns, got %q", got)
	}
	if recs[3][12] != "42 records found" {
		t.Errorf("summary remarks = %q", recs[3][12])
	}
}

func TestDefaultOutputPath(t *testing.T) {
	if got := DefaultOutputPath("data/leads.csv"); got != "data/leads_output.csv" {
		t.Errorf("got %q", got)
	}
	if got := DefaultOutputPath("leads"); got != "leads_output.csv" {
		t.Errorf("got %q", got)
	}
}

func TestPrompterInputPath(t *testing.T) {
	var out strings.Builder
	p := NewPrompter(strings.NewReader("\n  \n\"leads.csv\"\n"), &out)
	got, err := p.InputPath()
	if err != nil || got != "leads.csv" {
		t.Fatalf("InputPath = %q, %v", got, err)
	}
	if _, err := p.InputPath(); err == nil {
		t.Error("expected error at end of input")
	}
}
