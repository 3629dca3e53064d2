package schema

import "strings"

// ColumnType is the storage type a synthesized column is declared with.
type ColumnType string

const (
	ColumnText    ColumnType = "TEXT"
	ColumnInteger ColumnType = "INTEGER"
	ColumnReal    ColumnType = "REAL"
)

// fieldTypeColumns maps the platform's field-type taxonomy to storage
// column types. Lookup is case-insensitive; anything absent (including an
// empty field type) stores as TEXT. Storage is type-lenient: collection
// values land in TEXT columns as JSON.
var fieldTypeColumns = map[string]ColumnType{
	// text-ish scalars and everything serialized as text
	"textfield":     ColumnText,
	"textarea":      ColumnText,
	"textareafield": ColumnText,
	"richtextarea":  ColumnText,
	"richtextareafield": ColumnText,
	"fullname":      ColumnText,
	"fullnamefield": ColumnText,
	"email":         ColumnText,
	"emailfield":    ColumnText,
	"phone":         ColumnText,
	"phonefield":    ColumnText,
	"address":       ColumnText,
	"addressfield":  ColumnText,
	"linkurl":       ColumnText,
	"linkfield":     ColumnText,
	"date":          ColumnText,
	"datefield":     ColumnText,
	"time":          ColumnText,
	"timefield":     ColumnText,
	"datetime":      ColumnText,
	"firstcreated":  ColumnText,
	"lastupdated":   ColumnText,
	"singleselect":  ColumnText,
	"singleselectfield": ColumnText,
	"multipleselect":    ColumnText,
	"multipleselectfield": ColumnText,
	"tagfield":      ColumnText,
	"linkedrecord":  ColumnText,
	"linkedrecordfield": ColumnText,
	"assignedto":    ColumnText,
	"assignedtofield": ColumnText,
	"userfield":     ColumnText,
	"files":         ColumnText,
	"filesfield":    ColumnText,
	"images":        ColumnText,
	"imagesfield":   ColumnText,
	"signature":     ColumnText,
	"signaturefield": ColumnText,
	"button":        ColumnText,
	"buttonfield":   ColumnText,
	"ipaddress":     ColumnText,
	"ipaddressfield": ColumnText,
	"colorpicker":   ColumnText,
	"colorpickerfield": ColumnText,
	"socialnetwork": ColumnText,
	"socialnetworkfield": ColumnText,
	"status":        ColumnText,
	"statusfield":   ColumnText,
	"duedate":       ColumnText,
	"duedatefield":  ColumnText,
	"daterange":     ColumnText,
	"daterangefield": ColumnText,
	"formula":       ColumnText,
	"formulafield":  ColumnText,
	"lookup":        ColumnText,
	"lookupfield":   ColumnText,
	"subitems":      ColumnText,
	"subitemsfield": ColumnText,
	"checklist":     ColumnText,
	"checklistfield": ColumnText,
	"votefield":     ColumnText,
	"timetrackingfield": ColumnText,
	"recordid":      ColumnText,
	"deleteddate":   ColumnText,

	// integers
	"autonumber":      ColumnInteger,
	"autonumberfield": ColumnInteger,
	"comments_count":  ColumnInteger,
	"commentscount":   ColumnInteger,
	"commentscountfield": ColumnInteger,
	"yesno":           ColumnInteger,
	"yesnofield":      ColumnInteger,

	// reals
	"number":         ColumnReal,
	"numberfield":    ColumnReal,
	"currency":       ColumnReal,
	"currencyfield":  ColumnReal,
	"percent":        ColumnReal,
	"percentfield":   ColumnReal,
	"rating":         ColumnReal,
	"ratingfield":    ColumnReal,
	"duration":       ColumnReal,
	"durationfield":  ColumnReal,
	"numbersliderfield": ColumnReal,
}

// ColumnTypeFor returns the storage column type for a field type tag.
// Unknown or empty tags default to TEXT.
func ColumnTypeFor(fieldType string) ColumnType {
	if ct, ok := fieldTypeColumns[strings.ToLower(strings.TrimSpace(fieldType))]; ok {
		return ct
	}
	return ColumnText
}

// indexableFieldTypes are the field types whose primary column gets an
// index. Keyed on the normalized (lowercased) tag.
var indexableFieldTypes = map[string]bool{
	"status":       true,
	"statusfield":  true,
	"duedate":      true,
	"duedatefield": true,
	"daterange":    true,
	"daterangefield": true,
	"lastupdated":  true,
	"singleselect": true,
	"singleselectfield": true,
	"yesno":        true,
	"yesnofield":   true,
	"assignedto":   true,
	"assignedtofield": true,
	"currency":     true,
	"currencyfield": true,
	"number":       true,
	"numberfield":  true,
	"percent":      true,
	"percentfield": true,
	"rating":       true,
	"ratingfield":  true,
}

// neverIndexed overrides: bulky or volatile columns that are never worth
// an index even when a primary flag asks for one.
var neverIndexed = map[string]bool{
	"richtextarea":      true,
	"richtextareafield": true,
	"textarea":          true,
	"textareafield":     true,
	"formula":           true,
	"formulafield":      true,
	"files":             true,
	"filesfield":        true,
	"images":            true,
	"imagesfield":       true,
	"firstcreated":      true,
}

// indexable reports whether a field's primary column should be indexed.
func indexable(slug, fieldType string, primary bool) bool {
	ft := strings.ToLower(strings.TrimSpace(fieldType))
	if neverIndexed[ft] {
		return false
	}
	if indexableFieldTypes[ft] {
		return true
	}
	if slug == "title" {
		return true
	}
	return primary
}
