package schema

import (
	"fmt"
	"regexp"
	"time"

	"go.uber.org/multierr"

	"rserv/internal/apperr"
)

// Mode selects which subset of validation rules apply, per §4.3.
type Mode int

const (
	ModeCreate Mode = iota
	ModeReplace
	ModePatch
)

// Lookup is the store-provided capability the validator needs for
// referential checks, injected per call so this package never imports the
// store package (avoiding the cyclic dependency the spec's §9 "Global
// mutable state" note warns against — no ambient store handle here).
type Lookup interface {
	// Exists reports whether entity/id currently has a document.
	Exists(entity string, id int64) bool
	// FieldEquals reports whether any document in entity (other than
	// excludeID) currently has field == value, for unique checks.
	FieldEquals(entity, field string, value interface{}, excludeID int64) bool
}

// Validator validates documents against a Registry's schemas.
type Validator struct {
	registry *Registry
}

// NewValidator builds a Validator over registry.
func NewValidator(registry *Registry) *Validator {
	return &Validator{registry: registry}
}

// Validate checks document against entity's schema for the given mode and
// returns the normalised document (REF values canonicalised to {"id": n})
// plus any field-level errors. An unschemed entity always validates
// (schema enforcement is optional per §1).
func (v *Validator) Validate(entity string, document map[string]interface{}, mode Mode, id int64, lookup Lookup) (map[string]interface{}, error) {
	s, ok := v.registry.Get(entity)
	if !ok {
		return document, nil
	}

	normalized := make(map[string]interface{}, len(document))
	for k, val := range document {
		normalized[k] = val
	}

	var errs error
	var details []apperr.Detail

	failed := make(map[string]bool)
	addErr := func(field, msg string) {
		if failed[field] {
			return
		}
		failed[field] = true
		errs = multierr.Append(errs, fmt.Errorf("%s: %s", field, msg))
		details = append(details, apperr.Detail{Field: field, Message: msg})
	}

	for name, desc := range s {
		value, present := document[name]

		if mode == ModePatch && !present {
			continue
		}
		if desc.Required && !present && mode != ModePatch {
			addErr(name, "missing required field")
			continue
		}
		if !present {
			continue
		}
		if value == nil {
			if desc.Required {
				addErr(name, "required field cannot be null")
			}
			continue
		}

		if desc.Type == TypeRef {
			value = NormalizeRef(value)
			normalized[name] = value
		}

		validateType(name, desc, value, addErr)

		if desc.Type == TypeRef && lookup != nil {
			for _, refID := range extractRefIDs(value) {
				targetEntity, _, ok := desc.RefTarget()
				if ok && !lookup.Exists(targetEntity, refID) {
					addErr(name, fmt.Sprintf("foreign key target %s/%d does not exist", targetEntity, refID))
				}
			}
		}

		if desc.Unique && lookup != nil {
			if lookup.FieldEquals(entity, name, value, id) {
				addErr(name, "value must be unique")
			}
		}
	}

	if errs != nil {
		return nil, apperr.Validation("schema validation failed", details...)
	}
	return normalized, nil
}

func validateType(name string, desc Field, value interface{}, addErr func(field, msg string)) {
	switch desc.Type {
	case TypeString:
		s, ok := value.(string)
		if !ok {
			addErr(name, "must be a string")
			return
		}
		if desc.MaxLength != nil && len(s) > *desc.MaxLength {
			addErr(name, fmt.Sprintf("exceeds maximum length of %d", *desc.MaxLength))
		}
		if desc.Regex != "" {
			re, err := regexp.Compile(desc.Regex)
			if err != nil {
				addErr(name, fmt.Sprintf("invalid regex in schema: %v", err))
				return
			}
			if !re.MatchString(s) {
				addErr(name, fmt.Sprintf("does not match required pattern: %s", desc.Regex))
			}
		}
	case TypeInteger:
		n, ok := asFloat(value)
		if !ok || !isWhole(value) {
			addErr(name, "must be an integer")
			return
		}
		checkRange(name, n, desc, addErr)
	case TypeFloat:
		n, ok := asFloat(value)
		if !ok {
			addErr(name, "must be a number")
			return
		}
		checkRange(name, n, desc, addErr)
	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			addErr(name, "must be a boolean")
		}
	case TypeDatetime:
		s, ok := value.(string)
		if !ok {
			addErr(name, "must be an ISO-8601 datetime string")
			return
		}
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			addErr(name, "must be a valid ISO format datetime string")
		}
	case TypeList:
		if _, ok := value.([]interface{}); !ok {
			addErr(name, "must be a list")
		}
	case TypeMapping:
		if _, ok := value.(map[string]interface{}); !ok {
			addErr(name, "must be a mapping")
		}
	case TypeRef:
		// validated by extractRefIDs/RefTarget in Validate
	}
}

func checkRange(name string, n float64, desc Field, addErr func(field, msg string)) {
	if desc.Min != nil && n < *desc.Min {
		addErr(name, fmt.Sprintf("must be greater than or equal to %v", *desc.Min))
	}
	if desc.Max != nil && n > *desc.Max {
		addErr(name, fmt.Sprintf("must be less than or equal to %v", *desc.Max))
	}
}

func asFloat(value interface{}) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func isWhole(value interface{}) bool {
	switch n := value.(type) {
	case float64:
		return n == float64(int64(n))
	case int, int64:
		return true
	default:
		return false
	}
}
