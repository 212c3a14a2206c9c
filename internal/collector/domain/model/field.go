package model

// FieldType is a key-value store field type.
type FieldType string

const (
	FieldTypeString FieldType = "string"
	FieldTypeNumber FieldType = "number"
	FieldTypeBool   FieldType = "bool"
	FieldTypeArray  FieldType = "array"
	FieldTypeCIDR   FieldType = "cidr"
	FieldTypeTime   FieldType = "time"
)

// FieldPrefix is prepended to the column label in field configuration posts.
const FieldPrefix = "field."

// storeNativeTypes are source types the store accepts verbatim.
var storeNativeTypes = map[string]FieldType{
	"array":  FieldTypeArray,
	"number": FieldTypeNumber,
	"bool":   FieldTypeBool,
	"string": FieldTypeString,
	"cidr":   FieldTypeCIDR,
	"time":   FieldTypeTime,
}

// MapSourceType converts a report data type into a store field type.
//
//	date     -> string
//	int      -> number
//	currency -> number
//	boolean  -> bool
//
// A source type that literally names a store type passes through; anything
// else becomes string.
func MapSourceType(sourceType string) FieldType {
	switch sourceType {
	case "date":
		return FieldTypeString
	case "int", "currency":
		return FieldTypeNumber
	case "boolean":
		return FieldTypeBool
	}
	if native, ok := storeNativeTypes[sourceType]; ok {
		return native
	}
	return FieldTypeString
}

// FieldDefinition is one configured store field.
type FieldDefinition struct {
	Name string
	Type FieldType
}

// ConfigKey is the form key used to configure the field, e.g. "field.Amount".
func (f FieldDefinition) ConfigKey() string {
	return FieldPrefix + f.Name
}

// FieldDefinitions derives one definition per column, in column order.
func FieldDefinitions(meta *ReportMetadata) []FieldDefinition {
	defs := make([]FieldDefinition, 0, len(meta.Columns))
	for _, c := range meta.Columns {
		defs = append(defs, FieldDefinition{Name: c.Label, Type: MapSourceType(c.SourceDataType)})
	}
	return defs
}
