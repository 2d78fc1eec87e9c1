package importer

// Field names a canonical variable attribute a spreadsheet column can map
// to. The set is fixed; anything a header cannot be mapped to is ignored.
type Field string

const (
	FieldName          Field = "variable_name"
	FieldType          Field = "type"
	FieldProduct       Field = "product"
	FieldConcept       Field = "concept"
	FieldMinHistory    Field = "min_history"
	FieldPriority      Field = "priority"
	FieldDesiredLag    Field = "desired_lag"
	FieldSelectOptions Field = "select_options"
)

// fieldOrder fixes the iteration order everywhere a deterministic scan is
// required.
var fieldOrder = []Field{
	FieldName,
	FieldType,
	FieldProduct,
	FieldConcept,
	FieldMinHistory,
	FieldPriority,
	FieldDesiredLag,
	FieldSelectOptions,
}

var fieldLabels = map[Field]string{
	FieldName:          "Variable Name",
	FieldType:          "Type",
	FieldProduct:       "Product",
	FieldConcept:       "Concept",
	FieldMinHistory:    "Minimum History",
	FieldPriority:      "Priority",
	FieldDesiredLag:    "Desired Lag",
	FieldSelectOptions: "Select Options",
}

// Label returns the human-facing name used in validation messages.
func (f Field) Label() string {
	return fieldLabels[f]
}

// fieldAliases maps each canonical field to known header spellings.
// Upload sources are mixed English/Portuguese/Spanish, so aliases cover
// all three. Matching is substring based after normalization, so an
// alias also covers headers that merely contain it.
var fieldAliases = map[Field][]string{
	FieldName: {
		"variable_name", "variable", "nome", "nombre", "campo",
	},
	FieldType: {
		"type", "tipo", "data_type", "datatype",
	},
	FieldProduct: {
		"product", "produto", "producto", "prod",
	},
	FieldConcept: {
		"concept", "conceito", "concepto", "desc", "description", "descricao", "descripcion",
	},
	FieldMinHistory: {
		"min_history", "history", "historico", "historia", "hist",
	},
	FieldPriority: {
		"priority", "prioridade", "prioridad", "prio",
	},
	FieldDesiredLag: {
		"lag", "desired_lag", "defasagem", "atraso",
	},
	FieldSelectOptions: {
		"options", "opcoes", "opciones", "select_options", "valores",
	},
}
