package schema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Stable, machine-distinguishable failure codes. Downstream consumers branch
// on these, never on message text.
const (
	CodeParse    = "VAL_SCHEMA_PARSE"
	CodeType     = "VAL_SCHEMA_TYPE"
	CodeRequired = "VAL_SCHEMA_REQUIRED"
	CodeEmpty    = "VAL_SCHEMA_EMPTY"
	CodeExtra    = "VAL_SCHEMA_EXTRA"
	CodeFormat   = "VAL_SCHEMA_FORMAT"
	CodeEnum     = "VAL_SCHEMA_ENUM"
	CodeRange    = "VAL_SCHEMA_RANGE"
	CodeLength   = "VAL_SCHEMA_LENGTH"
	CodeInvalid  = "VAL_SCHEMA_INVALID"
)

// Error is a single schema validation failure.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Validator is a pure, deterministic schema check: no I/O, no side effects.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the schema document for the given specification
// version. Unknown versions fail at construction, not at first message.
func NewValidator(version string) (*Validator, error) {
	doc, ok := versions[version]
	if !ok {
		return nil, fmt.Errorf("unknown schema version %q", version)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("sow.json", strings.NewReader(doc)); err != nil {
		return nil, err
	}
	sch, err := c.Compile("sow.json")
	if err != nil {
		return nil, err
	}
	return &Validator{schema: sch}, nil
}

// Validate checks candidate JSON against the schema and decodes it into a
// typed record. Any field not declared in the schema is rejected
// (closed-world policy). Failures always carry a stable code.
func (v *Validator) Validate(raw []byte) (*SOWData, error) {
	var candidate interface{}
	if err := json.Unmarshal(raw, &candidate); err != nil {
		return nil, &Error{Code: CodeParse, Message: fmt.Sprintf("candidate is not valid JSON: %v", err)}
	}

	if err := v.schema.Validate(candidate); err != nil {
		ve, ok := err.(*jsonschema.ValidationError)
		if !ok {
			return nil, &Error{Code: CodeInvalid, Message: err.Error()}
		}
		return nil, mapViolation(ve)
	}

	var data SOWData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, &Error{Code: CodeType, Message: fmt.Sprintf("decode: %v", err)}
	}

	// The schema guarantees minLength 1 but not non-blankness.
	if strings.TrimSpace(data.ClientName) == "" {
		return nil, &Error{Code: CodeEmpty, Message: "client_name cannot be blank", Field: "client_name"}
	}

	return &data, nil
}

var quotedRe = regexp.MustCompile(`'([^']+)'`)

// mapViolation walks to the first leaf cause and translates the failing
// keyword into a stable code.
func mapViolation(ve *jsonschema.ValidationError) *Error {
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}

	keyword := leafKeyword(leaf.KeywordLocation)
	field := fieldFromInstance(leaf.InstanceLocation)

	code := CodeInvalid
	switch keyword {
	case "type":
		code = CodeType
	case "required":
		code = CodeRequired
		// The instance location of a required failure is the parent
		// object; the missing property name is only in the message.
		if m := quotedRe.FindStringSubmatch(leaf.Message); m != nil {
			if field == "" {
				field = m[1]
			} else {
				field = field + "." + m[1]
			}
		}
	case "additionalProperties":
		code = CodeExtra
		if m := quotedRe.FindStringSubmatch(leaf.Message); m != nil && field == "" {
			field = m[1]
		}
	case "pattern", "format":
		code = CodeFormat
	case "enum", "const":
		code = CodeEnum
	case "minimum", "maximum", "exclusiveMinimum", "exclusiveMaximum":
		code = CodeRange
	case "minLength", "maxLength":
		code = CodeLength
	}

	return &Error{Code: code, Message: leaf.Message, Field: field}
}

func leafKeyword(keywordLocation string) string {
	parts := strings.Split(keywordLocation, "/")
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

// fieldFromInstance turns "/day_rates/0/rate" into "day_rates[0].rate".
func fieldFromInstance(loc string) string {
	loc = strings.TrimPrefix(loc, "/")
	if loc == "" {
		return ""
	}
	var b strings.Builder
	for i, seg := range strings.Split(loc, "/") {
		if isDigits(seg) {
			b.WriteString("[" + seg + "]")
			continue
		}
		if i > 0 {
			b.WriteString(".")
		}
		b.WriteString(seg)
	}
	return b.String()
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
