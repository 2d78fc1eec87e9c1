package importer

import (
	"fmt"
	"strings"

	"caseflow/variable"
)

// Row is one column-mapped record awaiting validation. Values are raw
// cell strings keyed by canonical field.
type Row map[Field]string

const (
	minNameLen    = 3
	minConceptLen = 10
)

var requiredFields = []Field{FieldName, FieldProduct, FieldConcept}

// defaultValues fills fields the mapping did not cover, so only
// genuinely required-but-absent fields fail validation.
var defaultValues = map[Field]string{
	FieldType:     string(variable.TypeText),
	FieldPriority: string(variable.PriorityMedium),
}

// ApplyDefaults returns a copy of the row with absent defaultable fields
// filled in. The input row is never mutated.
func ApplyDefaults(row Row) Row {
	out := make(Row, len(row)+len(defaultValues))
	for f, v := range row {
		out[f] = v
	}
	for f, v := range defaultValues {
		if strings.TrimSpace(out[f]) == "" {
			out[f] = v
		}
	}
	return out
}

// ValidateRow applies defaults and returns the human-readable problems
// with one row. An empty result means the row is importable. Validation
// is advisory at the preview stage; the commit stage enforces it.
func ValidateRow(row Row) []string {
	filled := ApplyDefaults(row)

	var errs []string
	for _, f := range requiredFields {
		if strings.TrimSpace(filled[f]) == "" {
			errs = append(errs, fmt.Sprintf("%s is required", f.Label()))
		}
	}

	// The length rule holds for empty names too, alongside the required
	// error, so a short name always reports the minimum.
	if name := strings.TrimSpace(filled[FieldName]); len([]rune(name)) < minNameLen {
		errs = append(errs, fmt.Sprintf("%s must be at least %d characters", FieldName.Label(), minNameLen))
	}
	if concept := strings.TrimSpace(filled[FieldConcept]); concept != "" && len([]rune(concept)) < minConceptLen {
		errs = append(errs, fmt.Sprintf("%s must be at least %d characters", FieldConcept.Label(), minConceptLen))
	}

	if !variable.FieldType(filled[FieldType]).Valid() {
		errs = append(errs, fmt.Sprintf("%s must be one of text, number, date, boolean, select", FieldType.Label()))
	}
	if !variable.Priority(filled[FieldPriority]).Valid() {
		errs = append(errs, fmt.Sprintf("%s must be one of Low, Medium, High, Critical", FieldPriority.Label()))
	}
	if variable.FieldType(filled[FieldType]) == variable.TypeSelect && strings.TrimSpace(filled[FieldSelectOptions]) == "" {
		errs = append(errs, fmt.Sprintf("%s is required for select variables", FieldSelectOptions.Label()))
	}

	return errs
}

// CreateParams converts a validated row into variable creation params.
// Call ValidateRow first; this assumes the row passed.
func (r Row) CreateParams(caseID string) variable.CreateParams {
	filled := ApplyDefaults(r)

	params := variable.CreateParams{
		CaseID:     caseID,
		Name:       strings.TrimSpace(filled[FieldName]),
		Type:       variable.FieldType(filled[FieldType]),
		Product:    strings.TrimSpace(filled[FieldProduct]),
		Concept:    strings.TrimSpace(filled[FieldConcept]),
		MinHistory: strings.TrimSpace(filled[FieldMinHistory]),
		Priority:   variable.Priority(filled[FieldPriority]),
		DesiredLag: strings.TrimSpace(filled[FieldDesiredLag]),
	}
	if opts := strings.TrimSpace(filled[FieldSelectOptions]); opts != "" {
		params.SelectOptions = &opts
	}
	return params
}
