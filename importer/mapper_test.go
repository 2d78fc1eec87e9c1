package importer

import (
	"reflect"
	"testing"
)

func TestMapColumns_PortugueseHeaders(t *testing.T) {
	mapping := MapColumns([]string{"nome", "prod", "desc"})

	want := map[string]Field{
		"nome": FieldName,
		"prod": FieldProduct,
		"desc": FieldConcept,
	}
	if !reflect.DeepEqual(mapping.Columns, want) {
		t.Fatalf("expected %v, got %v", want, mapping.Columns)
	}
	if len(mapping.Ambiguous) != 0 {
		t.Fatalf("expected no ambiguous headers, got %v", mapping.Ambiguous)
	}
}

func TestMapColumns_AccentInsensitive(t *testing.T) {
	mapping := MapColumns([]string{"Descrição", "Histórico", "Prioridade"})

	want := map[string]Field{
		"Descrição":  FieldConcept,
		"Histórico":  FieldMinHistory,
		"Prioridade": FieldPriority,
	}
	if !reflect.DeepEqual(mapping.Columns, want) {
		t.Fatalf("expected %v, got %v", want, mapping.Columns)
	}
}

func TestMapColumns_Deterministic(t *testing.T) {
	headers := []string{"Variable Name", "tipo", "Produto", "conceito", "lag", "ignored_column"}

	first := MapColumns(headers)
	second := MapColumns(headers)

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical mappings, got %v then %v", first, second)
	}
	if _, ok := first.Columns["ignored_column"]; ok {
		t.Fatalf("expected ignored_column to stay unmapped, got %v", first.Columns)
	}
}

func TestMapColumns_LongestAliasWins(t *testing.T) {
	// "tipo_produto" contains a type alias (tipo, 4) and a product alias
	// (produto, 7); the longer alias decides.
	mapping := MapColumns([]string{"tipo_produto"})

	if got := mapping.Columns["tipo_produto"]; got != FieldProduct {
		t.Fatalf("expected product, got %q (ambiguous: %v)", got, mapping.Ambiguous)
	}
}

func TestMapColumns_TiedMatchesFlaggedAmbiguous(t *testing.T) {
	// "tipo_prio" matches type (tipo, 4) and priority (prio, 4) at equal
	// length; it must be flagged instead of silently assigned.
	mapping := MapColumns([]string{"tipo_prio"})

	if _, ok := mapping.Columns["tipo_prio"]; ok {
		t.Fatalf("expected ambiguous header to stay unmapped, got %v", mapping.Columns)
	}
	candidates, ok := mapping.Ambiguous["tipo_prio"]
	if !ok || len(candidates) != 2 {
		t.Fatalf("expected two ambiguity candidates, got %v", mapping.Ambiguous)
	}
}

func TestMapColumns_FieldAssignedOnce(t *testing.T) {
	mapping := MapColumns([]string{"nome", "nombre"})

	if got := mapping.Columns["nome"]; got != FieldName {
		t.Fatalf("expected first header to win variable_name, got %q", got)
	}
	if _, ok := mapping.Columns["nombre"]; ok {
		t.Fatalf("expected second variable_name candidate to stay unmapped, got %v", mapping.Columns)
	}
}

func TestMapColumns_EmptyAndBlankHeaders(t *testing.T) {
	mapping := MapColumns([]string{"", "   ", "conceito"})

	if len(mapping.Columns) != 1 {
		t.Fatalf("expected exactly one mapped header, got %v", mapping.Columns)
	}
	if got := mapping.Columns["conceito"]; got != FieldConcept {
		t.Fatalf("expected conceito -> concept, got %q", got)
	}
}
