package validate

import (
	"path/filepath"
	"testing"

	"uscn.dev/protocol/audit"
	"uscn.dev/protocol/buffer"
	"uscn.dev/protocol/protoerr"
	"uscn.dev/protocol/schema"
)

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

func newTestValidator(t *testing.T, opts Options) *Validator {
	t.Helper()
	return newTestValidatorWithSchemaYAML(t, opts, defaultSchemaYAML)
}

func newTestValidatorWithSchemaYAML(t *testing.T, opts Options, schemaYAML string) *Validator {
	t.Helper()
	s, err := schema.Parse([]byte(schemaYAML))
	if err != nil {
		t.Fatalf("schema.Parse: %v", err)
	}
	logPath := filepath.Join(t.TempDir(), "audit.log")
	log, err := audit.Init(logPath, s.Compliance)
	if err != nil {
		t.Fatalf("audit.Init: %v", err)
	}
	t.Cleanup(func() { _ = log.Cleanup() })

	v, err := New(opts, s, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return v
}

func rawBuffer(t *testing.T, data []byte) *buffer.Buffer {
	t.Helper()
	b, err := buffer.New(data, buffer.MaxBufferSize, buffer.SecurityNone)
	if err != nil {
		t.Fatalf("buffer.New: %v", err)
	}
	return b
}

func TestS1CanonicalAccept(t *testing.T) {
	v := newTestValidator(t, Options{Alpha: 0.7, Beta: 0.3, ZeroTrust: true, InlineNormalize: true})
	raw := `{"id":"12345","timestamp":"1700000000","payload":"aGVsbG8=","signature":"` +
		hexSig64 + `","message_type":"DATA","source_id":"node_a"}`
	b := rawBuffer(t, []byte(raw))

	if err := v.Validate(b); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !b.Validated() {
		t.Fatalf("expected buffer to be validated")
	}
	if b.Zone() != buffer.ZoneAutonomous {
		t.Fatalf("expected AUTONOMOUS zone, got %v", b.Zone())
	}
	if v.ValidationCount() != 1 {
		t.Fatalf("expected validation count 1, got %d", v.ValidationCount())
	}
}

func TestS2PercentEncodedTraversalRejected(t *testing.T) {
	v := newTestValidator(t, Options{Alpha: 0.7, Beta: 0.3, ZeroTrust: true, InlineNormalize: true})
	raw := `{"id":"12345","timestamp":"1700000000","payload":"%2e%2e%2f%2e%2e%2fetc","signature":"` +
		hexSig64 + `","message_type":"DATA","source_id":"node_a"}`
	b := rawBuffer(t, []byte(raw))

	err := v.Validate(b)
	if err == nil {
		t.Fatalf("expected VALIDATION_FAILED for path-traversal payload")
	}
	if code, ok := protoerr.CodeOf(err); !ok || code != protoerr.ValidationFailed {
		t.Fatalf("expected VALIDATION_FAILED, got %v", err)
	}
	if b.Validated() {
		t.Fatalf("buffer must not be validated")
	}
}

const caseSensitiveSchemaYAML = `
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
  case_sensitivity: true
  encoding: utf8_canonical
  whitespace: normalized
audit:
  required: false
  hash_algorithm: sha3-256
  include_fields: ["id", "message_type"]
`

// TestSchemaCaseSensitivityDrivesNormalizer proves that
// normalization.case_sensitivity (spec.md §6) actually changes the
// validator's behavior instead of every buffer being silently
// case-folded regardless of what the schema declares.
func TestSchemaCaseSensitivityDrivesNormalizer(t *testing.T) {
	raw := `{"id":"12345","timestamp":"1700000000","payload":"aGVsbG8=","signature":"` +
		hexSig64 + `","message_type":"DATA","source_id":"NODE_A"}`

	foldingValidator := newTestValidator(t, Options{Alpha: 0.7, Beta: 0.3, ZeroTrust: true, InlineNormalize: true})
	folded := rawBuffer(t, []byte(raw))
	if err := foldingValidator.Validate(folded); err != nil {
		t.Fatalf("expected case-insensitive schema to fold NODE_A and accept, got %v", err)
	}

	sensitiveValidator := newTestValidatorWithSchemaYAML(t,
		Options{Alpha: 0.7, Beta: 0.3, ZeroTrust: true, InlineNormalize: true}, caseSensitiveSchemaYAML)
	preserved := rawBuffer(t, []byte(raw))
	err := sensitiveValidator.Validate(preserved)
	if err == nil {
		t.Fatalf("expected case-sensitive schema to reject NODE_A against ^[a-z0-9_]+$")
	}
	if code, ok := protoerr.CodeOf(err); !ok || code != protoerr.ValidationFailed {
		t.Fatalf("expected VALIDATION_FAILED, got %v", err)
	}
}

func TestS3MissingRequiredField(t *testing.T) {
	v := newTestValidator(t, Options{Alpha: 0.7, Beta: 0.3, ZeroTrust: true, InlineNormalize: true})
	raw := `{"id":"12345","timestamp":"1700000000","payload":"aGVsbG8=","message_type":"DATA","source_id":"node_a"}`
	b := rawBuffer(t, []byte(raw))

	err := v.Validate(b)
	if err == nil {
		t.Fatalf("expected VALIDATION_FAILED for missing signature field")
	}
	if code, ok := protoerr.CodeOf(err); !ok || code != protoerr.ValidationFailed {
		t.Fatalf("expected VALIDATION_FAILED, got %v", err)
	}
	if !b.Normalized() {
		t.Fatalf("expected buffer to be normalized despite the later failure")
	}
	if b.Validated() {
		t.Fatalf("buffer must not be validated")
	}
}

func TestS4OversizeBufferRejected(t *testing.T) {
	v := newTestValidator(t, Options{Alpha: 0.7, Beta: 0.3, ZeroTrust: true, InlineNormalize: true})
	oversized := make([]byte, buffer.MaxBufferSize+1)
	for i := range oversized {
		oversized[i] = 'a'
	}
	b := rawBuffer(t, oversized)

	err := v.Validate(b)
	if err == nil {
		t.Fatalf("expected BUFFER_OVERFLOW for oversize buffer")
	}
	if code, ok := protoerr.CodeOf(err); !ok || code != protoerr.BufferOverflow {
		t.Fatalf("expected BUFFER_OVERFLOW, got %v", err)
	}
	if b.Normalized() {
		t.Fatalf("normalization must not run before the structural check passes")
	}
}

func TestS5ParameterConstraintRejectsConstruction(t *testing.T) {
	s, err := schema.Parse([]byte(defaultSchemaYAML))
	if err != nil {
		t.Fatalf("schema.Parse: %v", err)
	}
	logPath := filepath.Join(t.TempDir(), "audit.log")
	log, err := audit.Init(logPath, s.Compliance)
	if err != nil {
		t.Fatalf("audit.Init: %v", err)
	}
	defer log.Cleanup()

	_, err = New(Options{Alpha: 0.8, Beta: 0.5, ZeroTrust: true, InlineNormalize: true}, s, log)
	if err == nil {
		t.Fatalf("expected NUMERICAL_INSTABILITY for alpha=0.8 beta=0.5")
	}
	if code, ok := protoerr.CodeOf(err); !ok || code != protoerr.NumericalInstability {
		t.Fatalf("expected NUMERICAL_INSTABILITY, got %v", err)
	}
}

func TestZeroTrustGateRejectsUnnormalizedWhenNotInline(t *testing.T) {
	v := newTestValidator(t, Options{Alpha: 0.7, Beta: 0.3, ZeroTrust: true, InlineNormalize: false})
	raw := `{"id":"12345","timestamp":"1700000000","payload":"aGVsbG8=","signature":"` +
		hexSig64 + `","message_type":"DATA","source_id":"node_a"}`
	b := rawBuffer(t, []byte(raw))

	err := v.Validate(b)
	if err == nil {
		t.Fatalf("expected ZERO_TRUST_VIOLATION")
	}
	if code, ok := protoerr.CodeOf(err); !ok || code != protoerr.ZeroTrustViolation {
		t.Fatalf("expected ZERO_TRUST_VIOLATION, got %v", err)
	}
}

func TestNewRejectsDisablingZeroTrustWhenAuditRequired(t *testing.T) {
	doc := `
fields:
  - name: id
    type: uint64
audit:
  required: true
`
	s, err := schema.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("schema.Parse: %v", err)
	}
	logPath := filepath.Join(t.TempDir(), "audit.log")
	log, err := audit.Init(logPath, s.Compliance)
	if err != nil {
		t.Fatalf("audit.Init: %v", err)
	}
	defer log.Cleanup()

	_, err = New(Options{Alpha: 0.7, Beta: 0.3, ZeroTrust: false}, s, log)
	if err == nil {
		t.Fatalf("expected ZERO_TRUST_VIOLATION at construction")
	}
	if code, ok := protoerr.CodeOf(err); !ok || code != protoerr.ZeroTrustViolation {
		t.Fatalf("expected ZERO_TRUST_VIOLATION, got %v", err)
	}
}
