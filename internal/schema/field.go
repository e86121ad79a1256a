package schema

// FieldType is the tagged-variant discriminator for a field descriptor, per
// §9's "Polymorphism of field descriptors" design note: modelled as one
// struct with a type tag rather than a type hierarchy, to stay close to how
// the schema actually arrives on disk (a JSON object per field).
type FieldType string

const (
	TypeString   FieldType = "string"
	TypeInteger  FieldType = "integer"
	TypeFloat    FieldType = "float"
	TypeBoolean  FieldType = "boolean"
	TypeDatetime FieldType = "datetime"
	TypeRef      FieldType = "REF"
	TypeList     FieldType = "list"
	TypeMapping  FieldType = "mapping"
)

// ForeignKey names the entity+field a REF or foreign_key-tagged field
// points at.
type ForeignKey struct {
	Entity string `json:"entity"`
	Field  string `json:"field"`
}

// Field is one entry of an entity's schema, loaded verbatim from
// schema/<schema>/<entity>.json. REF fields name their target via the
// top-level Entity/Field pair; plain foreign_key fields (non-REF) via
// ForeignKey. Both forms are accepted since §4.3 documents both.
type Field struct {
	Type       FieldType   `json:"type"`
	Required   bool        `json:"required"`
	MaxLength  *int        `json:"max_length,omitempty"`
	Min        *float64    `json:"min,omitempty"`
	Max        *float64    `json:"max,omitempty"`
	Regex      string      `json:"regex,omitempty"`
	PrimaryKey bool        `json:"primary_key,omitempty"`
	ForeignKey *ForeignKey `json:"foreign_key,omitempty"`
	Entity     string      `json:"entity,omitempty"` // REF target entity
	Field      string      `json:"field,omitempty"`  // REF target key field
	Unique     bool        `json:"unique,omitempty"`
}

// RefTarget resolves the entity+field a REF field points at.
func (f Field) RefTarget() (entity, field string, ok bool) {
	if f.Type != TypeRef {
		return "", "", false
	}
	if f.Entity != "" {
		target := f.Field
		if target == "" {
			target = "id"
		}
		return f.Entity, target, true
	}
	if f.ForeignKey != nil {
		return f.ForeignKey.Entity, f.ForeignKey.Field, true
	}
	return "", "", false
}

// Schema is an entity's field-name -> descriptor mapping.
type Schema map[string]Field
