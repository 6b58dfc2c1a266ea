package schema

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"uscn.dev/protocol/protoerr"
)

// yamlDoc mirrors the schema file layout of spec.md §6 exactly, so
// unmarshal errors point at the same field names an operator sees in
// the YAML source.
type yamlDoc struct {
	MessageType string         `yaml:"message_type"`
	Version     string         `yaml:"version"`
	Compliance  string         `yaml:"compliance"`
	Fields      []yamlField    `yaml:"fields"`
	Normalization yamlNormalization `yaml:"normalization"`
	Audit       yamlAudit      `yaml:"audit"`
}

type yamlField struct {
	Name          string   `yaml:"name"`
	Type          string   `yaml:"type"`
	Required      bool     `yaml:"required"`
	MaxLength     int      `yaml:"max_length"`
	Validation    string   `yaml:"validation"`
	AllowedValues []string `yaml:"allowed_values"`
}

type yamlNormalization struct {
	CaseSensitivity bool   `yaml:"case_sensitivity"`
	Encoding        string `yaml:"encoding"`
	Whitespace      string `yaml:"whitespace"`
}

type yamlAudit struct {
	Required      bool     `yaml:"required"`
	HashAlgorithm string   `yaml:"hash_algorithm"`
	IncludeFields []string `yaml:"include_fields"`
}

// Parse decodes a schema YAML document (spec.md §6) into a validated
// Schema, compiling every field's pattern at load time (spec.md §3:
// "patterns compile successfully at schema-load time").
func Parse(data []byte) (*Schema, error) {
	var doc yamlDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, protoerr.Newf(protoerr.SchemaMismatch, protoerr.StageSchema, "parse schema yaml: %v", err)
	}

	fields := make([]Field, 0, len(doc.Fields))
	for _, yf := range doc.Fields {
		var pattern *regexp.Regexp
		if yf.Validation != "" {
			compiled, err := regexp.Compile(yf.Validation)
			if err != nil {
				return nil, protoerr.Newf(protoerr.SchemaMismatch, protoerr.StageSchema,
					"field %q: invalid pattern: %v", yf.Name, err)
			}
			pattern = compiled
		}
		fields = append(fields, Field{
			Name:          yf.Name,
			Type:          FieldType(yf.Type),
			Required:      yf.Required,
			MaxLength:     yf.MaxLength,
			Pattern:       pattern,
			AllowedValues: yf.AllowedValues,
		})
	}

	if err := validateFields(fields); err != nil {
		return nil, err
	}

	s := &Schema{
		MessageType:    doc.MessageType,
		Version:        doc.Version,
		Compliance:     doc.Compliance,
		Fields:         fields,
		CaseSensitive:  doc.Normalization.CaseSensitivity,
		WhitespaceFold: doc.Normalization.Whitespace == "normalized",
		AuditRequired:  doc.Audit.Required,
		HashAlgorithm:  doc.Audit.HashAlgorithm,
		IncludeFields:  doc.Audit.IncludeFields,
	}
	return s, nil
}

// LoadFile reads and parses the schema YAML document at path. The
// path is resolved relative to its own directory via fs.ReadFile over
// an os.DirFS rooted there, rejecting a file name of "." or ".."; the
// directory part of path is used as given — the same path-traversal defense
// the engine's normalizer exists to enforce elsewhere
// (node/safeio.go in the teacher; see SPEC_FULL.md §C.3).
func LoadFile(path string) (*Schema, error) {
	dir := filepath.Dir(path)
	name := filepath.Base(path)
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return nil, protoerr.Newf(protoerr.SchemaMismatch, protoerr.StageSchema, "invalid schema file name: %q", name)
	}
	data, err := fs.ReadFile(os.DirFS(dir), name)
	if err != nil {
		return nil, fmt.Errorf("schema: read %q: %w", path, err)
	}
	return Parse(data)
}
