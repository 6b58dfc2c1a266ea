// Command uscn-fixtures emits the conformance vectors spec.md §8
// names (S1-S6) as JSON fixture files, one gate per file, so that
// uscn-trace and any out-of-process conformance runner can replay them
// without recompiling this module.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
)

// fixtureFile groups the vectors for one conformance gate (spec.md §8
// scenario id, e.g. "S1").
type fixtureFile struct {
	Gate    string           `json:"gate"`
	Vectors []map[string]any `json:"vectors"`
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "uscn-fixtures: "+format+"\n", args...)
	os.Exit(1)
}

func mustWriteFixture(path string, f *fixtureFile) {
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		fatalf("marshal %s: %v", path, err)
	}
	b = append(b, '\n')
	if err := os.WriteFile(path, b, 0o600); err != nil {
		fatalf("write %s: %v", path, err)
	}
}

// defaultSchemaYAML is the schema spec.md §6 defaults to and the one
// S1-S4 vectors are checked against.
const defaultSchemaYAML = `
message_type: EXAMPLE_MESSAGE
version: "1.0"
compliance: SOC2
fields:
  - name: id
    type: uint64
    required: true
  - name: timestamp
    type: timestamp
    required: true
  - name: payload
    type: binary
    required: true
    max_length: 4096
  - name: signature
    type: sha256_digest
    required: true
  - name: message_type
    type: string
    required: true
    max_length: 64
  - name: source_id
    type: string
    required: true
    max_length: 64
    validation: "^[a-z0-9_]+$"
normalization:
  case_sensitivity: false
  encoding: utf8_canonical
  whitespace: normalized
audit:
  required: false
  hash_algorithm: sha3-256
  include_fields: ["id", "message_type"]
`

const hexSig64 = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func main() {
	var outDir string
	flag.StringVar(&outDir, "out", "testdata/conformance", "output directory for fixture files")
	flag.Parse()

	if err := os.MkdirAll(outDir, 0o750); err != nil {
		fatalf("mkdir %s: %v", outDir, err)
	}

	write(outDir, "S1.json", s1CanonicalAccept())
	write(outDir, "S2.json", s2PercentEncodedTraversal())
	write(outDir, "S3.json", s3MissingRequiredField())
	write(outDir, "S4.json", s4OversizeBuffer())
	write(outDir, "S5.json", s5ParameterConstraint())
	write(outDir, "S6.json", s6AuditTamperDetection())

	fmt.Fprintf(os.Stdout, "wrote 6 conformance fixtures to %s\n", outDir)
}

func write(dir, name string, f *fixtureFile) {
	mustWriteFixture(filepath.Join(dir, name), f)
}

// s1CanonicalAccept is spec.md §8 S1: a canonical, fully conformant
// message. Expected SUCCESS, zone AUTONOMOUS, one BUFFER_VALIDATION
// audit entry.
func s1CanonicalAccept() *fixtureFile {
	raw := `{"id":"12345","timestamp":"1700000000","payload":"aGVsbG8=","signature":"` +
		hexSig64 + `","message_type":"DATA","source_id":"node_a"}`
	return &fixtureFile{
		Gate: "S1",
		Vectors: []map[string]any{
			{
				"id":           "S1-canonical-accept",
				"schema_yaml":  defaultSchemaYAML,
				"alpha":        0.7,
				"beta":         0.3,
				"input":        raw,
				"expect_ok":    true,
				"expect_zone":  "AUTONOMOUS",
				"expect_audit": []string{"BUFFER_VALIDATION"},
			},
		},
	}
}

// s2PercentEncodedTraversal is spec.md §8 S2: the payload field holds
// a percent-encoded double traversal sequence that normalizes to
// "../../etc" and fails the base64 field check.
func s2PercentEncodedTraversal() *fixtureFile {
	raw := `{"id":"12345","timestamp":"1700000000","payload":"%2e%2e%2f%2e%2e%2fetc","signature":"` +
		hexSig64 + `","message_type":"DATA","source_id":"node_a"}`
	return &fixtureFile{
		Gate: "S2",
		Vectors: []map[string]any{
			{
				"id":                  "S2-percent-encoded-traversal",
				"schema_yaml":         defaultSchemaYAML,
				"alpha":               0.7,
				"beta":                0.3,
				"input":               raw,
				"expect_ok":           false,
				"expect_code":         "VALIDATION_FAILED",
				"expect_normalized_payload": "../../etc",
			},
		},
	}
}

// s3MissingRequiredField is spec.md §8 S3: the signature field is
// absent. Expected VALIDATION_FAILED with normalized = true and no
// further state mutated.
func s3MissingRequiredField() *fixtureFile {
	raw := `{"id":"12345","timestamp":"1700000000","payload":"aGVsbG8=","message_type":"DATA","source_id":"node_a"}`
	return &fixtureFile{
		Gate: "S3",
		Vectors: []map[string]any{
			{
				"id":                "S3-missing-required-field",
				"schema_yaml":       defaultSchemaYAML,
				"alpha":             0.7,
				"beta":              0.3,
				"input":             raw,
				"expect_ok":         false,
				"expect_code":       "VALIDATION_FAILED",
				"expect_normalized": true,
				"expect_validated":  false,
			},
		},
	}
}

// s4OversizeBuffer is spec.md §8 S4: an 8193-byte input, one over
// MAX_BUFFER_SIZE. Expected BUFFER_OVERFLOW at the structural check,
// before normalization runs.
func s4OversizeBuffer() *fixtureFile {
	return &fixtureFile{
		Gate: "S4",
		Vectors: []map[string]any{
			{
				"id":                "S4-oversize-buffer",
				"schema_yaml":       defaultSchemaYAML,
				"alpha":             0.7,
				"beta":              0.3,
				"input_length":      8193,
				"input_fill_byte":   "a",
				"expect_ok":         false,
				"expect_code":       "BUFFER_OVERFLOW",
				"expect_normalized": false,
			},
		},
	}
}

// s5ParameterConstraint is spec.md §8 S5: constructing a validator
// with alpha=0.8, beta=0.5 (sum exceeds the 1+epsilon construction
// bound). Expected construction failure NUMERICAL_INSTABILITY.
func s5ParameterConstraint() *fixtureFile {
	return &fixtureFile{
		Gate: "S5",
		Vectors: []map[string]any{
			{
				"id":          "S5-parameter-constraint",
				"schema_yaml": defaultSchemaYAML,
				"alpha":       0.8,
				"beta":        0.5,
				"expect_ok":   false,
				"expect_code": "NUMERICAL_INSTABILITY",
			},
		},
	}
}

// s6AuditTamperDetection is spec.md §8 S6: write a valid log, flip one
// byte in the second entry, run verify. Expected failure naming the
// offending entry index.
func s6AuditTamperDetection() *fixtureFile {
	return &fixtureFile{
		Gate: "S6",
		Vectors: []map[string]any{
			{
				"id":                 "S6-audit-tamper-detection",
				"operations":         []string{"BUFFER_VALIDATION", "BUFFER_VALIDATION", "BUFFER_VALIDATION"},
				"tamper_entry_index": 2,
				"tamper_field":       "context",
				"expect_ok":          false,
				"expect_entries_verified": 1,
				"expect_code":        "VALIDATION_FAILED",
			},
		},
	}
}
