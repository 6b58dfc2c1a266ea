package validate

import (
	"bytes"
	"math"
	"regexp"
	"time"

	"uscn.dev/protocol/protoerr"
	"uscn.dev/protocol/schema"
)

// maxTimestampSkew is how far into the future a timestamp field may
// claim to be (spec.md §4.3.1).
const maxTimestampSkew = 365 * 86400

var (
	uint64Pattern = regexp.MustCompile(`^(0|[1-9][0-9]*)$`)
	sha256Pattern = regexp.MustCompile(`^[0-9a-f]{64}$`)
	base64Pattern = regexp.MustCompile(`^[A-Za-z0-9+/]*={0,2}$`)
)

// extractField locates `"name":` in a normalized flat-object payload
// and returns the associated value with one optional pair of
// surrounding quotes stripped and whitespace trimmed (spec.md §4.3,
// step 5).
func extractField(data []byte, name string) (string, bool) {
	needle := []byte(`"` + name + `":`)
	idx := bytes.Index(data, needle)
	if idx < 0 {
		return "", false
	}
	rest := data[idx+len(needle):]

	i := 0
	for i < len(rest) && rest[i] == ' ' {
		i++
	}
	rest = rest[i:]

	if len(rest) > 0 && rest[0] == '"' {
		end := 1
		for end < len(rest) && rest[end] != '"' {
			end++
		}
		if end >= len(rest) {
			return "", false
		}
		return string(rest[1:end]), true
	}

	end := 0
	for end < len(rest) && rest[end] != ',' && rest[end] != '}' {
		end++
	}
	value := trimTrailingSpace(rest[:end])
	return string(value), true
}

func trimTrailingSpace(b []byte) []byte {
	end := len(b)
	for end > 0 && b[end-1] == ' ' {
		end--
	}
	return b[:end]
}

// checkField applies the type, length, pattern, and allowed-value
// checks spec.md §4.3 step 5 and §4.3.1 define, against one extracted
// field value.
func checkField(f schema.Field, value string, now time.Time) error {
	switch f.Type {
	case schema.TypeUint64:
		if !uint64Pattern.MatchString(value) {
			return protoerr.Newf(protoerr.ValidationFailed, protoerr.StageFieldChecks,
				"field %q: not a valid uint64", f.Name)
		}
	case schema.TypeTimestamp:
		if !uint64Pattern.MatchString(value) {
			return protoerr.Newf(protoerr.ValidationFailed, protoerr.StageFieldChecks,
				"field %q: not a valid timestamp", f.Name)
		}
		v, err := parseUint64(value)
		if err != nil {
			return protoerr.Newf(protoerr.ValidationFailed, protoerr.StageFieldChecks,
				"field %q: timestamp overflow", f.Name)
		}
		if v > uint64(now.Unix())+maxTimestampSkew {
			return protoerr.Newf(protoerr.ValidationFailed, protoerr.StageFieldChecks,
				"field %q: timestamp too far in the future", f.Name)
		}
	case schema.TypeSHA256Digest:
		if !sha256Pattern.MatchString(value) {
			return protoerr.Newf(protoerr.ValidationFailed, protoerr.StageFieldChecks,
				"field %q: not a 64-hex-digit digest", f.Name)
		}
	case schema.TypeBinary:
		if !base64Pattern.MatchString(value) {
			return protoerr.Newf(protoerr.ValidationFailed, protoerr.StageFieldChecks,
				"field %q: not valid base64", f.Name)
		}
		if f.MaxLength > 0 && len(value) > f.MaxLength {
			return protoerr.Newf(protoerr.ValidationFailed, protoerr.StageFieldChecks,
				"field %q: exceeds max_length %d", f.Name, f.MaxLength)
		}
	case schema.TypeString:
		if !isPrintableExceptQuoteBackslash(value) {
			return protoerr.Newf(protoerr.ValidationFailed, protoerr.StageFieldChecks,
				"field %q: contains non-printable or forbidden characters", f.Name)
		}
		if f.MaxLength > 0 && len(value) > f.MaxLength {
			return protoerr.Newf(protoerr.ValidationFailed, protoerr.StageFieldChecks,
				"field %q: exceeds max_length %d", f.Name, f.MaxLength)
		}
	default:
		return protoerr.Newf(protoerr.SchemaMismatch, protoerr.StageFieldChecks, "field %q: unknown type %q", f.Name, f.Type)
	}

	if f.Pattern != nil && !f.Pattern.MatchString(value) {
		return protoerr.Newf(protoerr.ValidationFailed, protoerr.StageFieldChecks,
			"field %q: does not match pattern", f.Name)
	}
	if len(f.AllowedValues) > 0 && !contains(f.AllowedValues, value) {
		return protoerr.Newf(protoerr.ValidationFailed, protoerr.StageFieldChecks,
			"field %q: not among allowed values", f.Name)
	}
	return nil
}

func isPrintableExceptQuoteBackslash(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x20 || c > 0x7e || c == '"' || c == '\\' {
			return false
		}
	}
	return true
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func parseUint64(s string) (uint64, error) {
	var v uint64
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, protoerr.New(protoerr.ValidationFailed, protoerr.StageFieldChecks, "not a digit sequence")
		}
		d := uint64(c - '0')
		if v > (math.MaxUint64-d)/10 {
			return 0, protoerr.New(protoerr.ValidationFailed, protoerr.StageFieldChecks, "overflow")
		}
		v = v*10 + d
	}
	return v, nil
}
