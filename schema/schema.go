// Package schema loads and represents the field-descriptor list that
// drives the validator's field-level checks (spec.md §3, §6). The YAML
// document is an input artifact; this package is the sole collaborator
// responsible for turning it into the ordered FieldDescriptor list the
// core validator consumes.
package schema

import (
	"regexp"

	"uscn.dev/protocol/protoerr"
)

// MaxFields is the hard cap on the number of field descriptors in a
// schema (spec.md §5).
const MaxFields = 64

// MaxNameLength is the hard cap on a field name's byte length
// (spec.md §3).
const MaxNameLength = 128

// FieldType is one of the five field types the validator recognizes
// (spec.md §3).
type FieldType string

const (
	TypeUint64       FieldType = "uint64"
	TypeTimestamp    FieldType = "timestamp"
	TypeBinary       FieldType = "binary"
	TypeSHA256Digest FieldType = "sha256_digest"
	TypeString       FieldType = "string"
)

func (t FieldType) valid() bool {
	switch t {
	case TypeUint64, TypeTimestamp, TypeBinary, TypeSHA256Digest, TypeString:
		return true
	default:
		return false
	}
}

// Field is one schema field descriptor (spec.md §3). Pattern is nil
// when the schema did not declare one. AllowedValues, when non-empty,
// is an additional membership constraint carried from the YAML
// document's optional `allowed_values` (spec.md §6); it is checked
// after the type and pattern checks.
type Field struct {
	Name          string
	Type          FieldType
	Required      bool
	MaxLength     int
	Pattern       *regexp.Regexp
	AllowedValues []string
}

// Schema is an ordered, validated list of field descriptors plus the
// document-level metadata spec.md §6 defines (message_type, version,
// compliance, normalization knobs, audit policy).
type Schema struct {
	MessageType string
	Version     string
	Compliance  string
	Fields      []Field

	CaseSensitive bool // normalization.case_sensitivity
	WhitespaceFold bool // normalization.whitespace == "normalized"

	AuditRequired  bool
	HashAlgorithm  string
	IncludeFields  []string
}

// FieldByName returns the field descriptor named name, or false if
// absent.
func (s *Schema) FieldByName(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func validateFields(fields []Field) error {
	if len(fields) > MaxFields {
		return protoerr.Newf(protoerr.SchemaMismatch, protoerr.StageSchema,
			"schema declares %d fields, exceeding MAX_SCHEMA_FIELDS=%d", len(fields), MaxFields)
	}
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return protoerr.New(protoerr.SchemaMismatch, protoerr.StageSchema, "field name must not be empty")
		}
		if len(f.Name) > MaxNameLength {
			return protoerr.Newf(protoerr.SchemaMismatch, protoerr.StageSchema,
				"field name %q exceeds %d bytes", f.Name, MaxNameLength)
		}
		if !f.Type.valid() {
			return protoerr.Newf(protoerr.SchemaMismatch, protoerr.StageSchema,
				"field %q has unknown type %q", f.Name, f.Type)
		}
		if _, dup := seen[f.Name]; dup {
			return protoerr.Newf(protoerr.SchemaMismatch, protoerr.StageSchema,
				"duplicate field name %q", f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}
