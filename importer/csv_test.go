package importer

import (
	"strings"
	"testing"
)

func TestParseTable_PadsAndTruncates(t *testing.T) {
	data := []byte("nome,prod,desc\nRevenue,Cards\nCost,Loans,Monthly cost,extra\n")

	table, err := ParseTable(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(table.Headers) != 3 {
		t.Fatalf("expected 3 headers, got %v", table.Headers)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(table.Rows))
	}
	if got := table.Rows[0]; len(got) != 3 || got[2] != "" {
		t.Fatalf("expected short row padded, got %v", got)
	}
	if got := table.Rows[1]; len(got) != 3 || got[2] != "Monthly cost" {
		t.Fatalf("expected long row truncated, got %v", got)
	}
}

func TestParseTable_StripsBOMAndTrimsHeaders(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte(" nome , prod \nRevenue,Cards\n")...)

	table, err := ParseTable(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Headers[0] != "nome" || table.Headers[1] != "prod" {
		t.Fatalf("expected trimmed headers, got %v", table.Headers)
	}
}

func TestParseTable_DropsEmptyRows(t *testing.T) {
	data := []byte("nome,prod\nRevenue,Cards\n,\n  ,  \n")

	table, err := ParseTable(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(table.Rows) != 1 {
		t.Fatalf("expected empty rows dropped, got %v", table.Rows)
	}
}

func TestParseTable_EmptyFile(t *testing.T) {
	if _, err := ParseTable(nil); err == nil {
		t.Fatal("expected error for empty file")
	}
	if _, err := ParseTable([]byte("")); err == nil || !strings.Contains(err.Error(), "no header row") {
		t.Fatalf("expected header error, got %v", err)
	}
}

func TestBuildRow_ProjectsOnlyMappedColumns(t *testing.T) {
	headers := []string{"nome", "prod", "desc", "unmapped"}
	mapping := MapColumns(headers)

	row := BuildRow(headers, []string{" Revenue ", "Cards", "Billed monthly revenue", "noise"}, mapping)

	if row[FieldName] != "Revenue" {
		t.Fatalf("expected trimmed name, got %q", row[FieldName])
	}
	if row[FieldProduct] != "Cards" || row[FieldConcept] != "Billed monthly revenue" {
		t.Fatalf("unexpected row: %v", row)
	}
	if len(row) != 3 {
		t.Fatalf("expected unmapped column excluded, got %v", row)
	}
}

func TestPreviewFlow(t *testing.T) {
	svc := NewService(nil, nil)
	data := []byte("nome,prod,desc\nRevenue,Cards,Billed monthly revenue per customer\nAB,Loans,Monthly outstanding balance\n")

	result, err := svc.Preview(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 previewed rows, got %d", len(result.Rows))
	}
	if result.Importable != 1 {
		t.Fatalf("expected 1 importable row, got %d", result.Importable)
	}
	if len(result.Rows[0].Errors) != 0 {
		t.Fatalf("expected first row valid, got %v", result.Rows[0].Errors)
	}
	if len(result.Rows[1].Errors) != 1 {
		t.Fatalf("expected short-name error on second row, got %v", result.Rows[1].Errors)
	}
}
