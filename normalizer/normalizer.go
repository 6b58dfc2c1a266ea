// Package normalizer implements the USCN canonical-form reducer
// (spec.md §4.1): the fixed, three-phase reduction that maps every
// member of an encoding-equivalence class (percent-encoding, overlong
// UTF-8, case variation, whitespace variation) to one canonical byte
// sequence before any validation decision is made.
package normalizer

import (
	"sort"

	"uscn.dev/protocol/buffer"
	"uscn.dev/protocol/protoerr"
)

// MappingEntry is one (encoded_form, canonical_form) pair in the
// normalizer's reduction table (spec.md §3, "Normalizer state").
type MappingEntry struct {
	Encoded   string
	Canonical string
}

// Normalizer is the read-only, constructed-once reduction engine
// (spec.md §3: "constructed once at validator initialization, read-only
// thereafter").
type Normalizer struct {
	table          []MappingEntry
	caseSensitive  bool
	whitespaceFold bool
}

// DefaultTable returns the minimum required mapping-table entries of
// spec.md §4.1. Entries need not be pre-sorted by the caller; New
// establishes the longest-match-first order itself.
func DefaultTable() []MappingEntry {
	return []MappingEntry{
		{Encoded: "%2e%2e%2f", Canonical: "../"},
		{Encoded: "%c0%af", Canonical: "../"},
		{Encoded: ".%2e/", Canonical: "../"},
		{Encoded: "%2e%2e/", Canonical: "../"},
		{Encoded: "%2f", Canonical: "/"},
		{Encoded: "%2e", Canonical: "."},
		{Encoded: "%20", Canonical: " "},
		{Encoded: "%c0%ae", Canonical: "."},
	}
}

// New constructs a Normalizer over table, sorted into longest-match-
// first order, with the given case_sensitive and whitespace_fold
// knobs (spec.md §3). table is copied; the returned Normalizer never
// mutates it again.
func New(table []MappingEntry, caseSensitive, whitespaceFold bool) *Normalizer {
	sorted := make([]MappingEntry, len(table))
	copy(sorted, table)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Encoded) > len(sorted[j].Encoded)
	})
	return &Normalizer{table: sorted, caseSensitive: caseSensitive, whitespaceFold: whitespaceFold}
}

// Default returns the normalizer configured with DefaultTable and the
// spec's defaults: case_sensitive=false, whitespace_fold=true.
func Default() *Normalizer {
	return New(DefaultTable(), false, true)
}

// Normalize reduces b's current bytes to their canonical representative
// in place, per the three fixed phases of spec.md §4.1. It fails with
// NORMALIZATION_FAILED if the input is empty after reduction or if the
// result would exceed b's max_size.
func (n *Normalizer) Normalize(b *buffer.Buffer) error {
	input := b.Bytes()
	if len(input) == 0 {
		return errEmptyInput()
	}

	out := n.mappingPass(input)
	if !n.caseSensitive {
		out = foldCase(out)
	}
	if n.whitespaceFold {
		out = foldWhitespace(out)
	}
	if len(out) == 0 {
		return errEmptyInput()
	}
	return b.SetNormalized(out)
}

// Reduce applies the same three-phase reduction directly to a byte
// slice, without a Buffer. It is used by the CLI's normalize
// subcommand and by tests that check confluence and idempotence
// independent of buffer lifecycle.
func (n *Normalizer) Reduce(input []byte) ([]byte, error) {
	if len(input) == 0 {
		return nil, errEmptyInput()
	}
	out := n.mappingPass(input)
	if !n.caseSensitive {
		out = foldCase(out)
	}
	if n.whitespaceFold {
		out = foldWhitespace(out)
	}
	if len(out) == 0 {
		return nil, errEmptyInput()
	}
	return out, nil
}

// mappingPass is phase 1: scan left to right, at each position
// attempting the longest matching table entry; on match emit its
// canonical form and advance past it, otherwise copy one input byte.
func (n *Normalizer) mappingPass(input []byte) []byte {
	out := make([]byte, 0, len(input))
	i := 0
	for i < len(input) {
		matchedLen := 0
		var canonical string
		for _, e := range n.table {
			elen := len(e.Encoded)
			if elen == 0 || i+elen > len(input) {
				continue
			}
			if equalFoldASCII(input[i:i+elen], e.Encoded) {
				matchedLen = elen
				canonical = e.Canonical
				break // table is longest-match-first; first hit wins
			}
		}
		if matchedLen > 0 {
			out = append(out, canonical...)
			i += matchedLen
			continue
		}
		out = append(out, input[i])
		i++
	}
	return out
}

// equalFoldASCII reports whether a and b are equal under ASCII case
// folding. The mapping table's only letters are hex digits in
// percent-encoded sequences, so ASCII fold is sufficient to satisfy
// spec.md §4.1's "case-insensitive on hex digits" requirement.
func equalFoldASCII(a []byte, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// foldCase is phase 2: return a copy of input with ASCII A-Z folded
// to a-z.
func foldCase(input []byte) []byte {
	out := make([]byte, len(input))
	for i, c := range input {
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return out
}

func isWhitespace(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\v', '\f':
		return true
	default:
		return false
	}
}

// foldWhitespace is phase 3: collapse any maximal run of whitespace to
// a single space, then strip one trailing space if present.
func foldWhitespace(input []byte) []byte {
	out := make([]byte, 0, len(input))
	i := 0
	for i < len(input) {
		if isWhitespace(input[i]) {
			out = append(out, ' ')
			for i < len(input) && isWhitespace(input[i]) {
				i++
			}
			continue
		}
		out = append(out, input[i])
		i++
	}
	if n := len(out); n > 0 && out[n-1] == ' ' {
		out = out[:n-1]
	}
	return out
}

func errEmptyInput() error {
	return protoerr.New(protoerr.NormalizationFailed, protoerr.StageNormalize, "input empty after reduction")
}
