package automaton

import (
	"testing"

	"uscn.dev/protocol/buffer"
)

func mustBuffer(t *testing.T, s string) *buffer.Buffer {
	t.Helper()
	b, err := buffer.New([]byte(s), buffer.MaxBufferSize, buffer.SecurityNone)
	if err != nil {
		t.Fatalf("buffer.New: %v", err)
	}
	if err := b.SetNormalized([]byte(s)); err != nil {
		t.Fatalf("SetNormalized: %v", err)
	}
	return b
}

const s1Canonical = `{"id":"12345","timestamp":"1700000000","payload":"aghvmg8=","signature":"deadbeef","message_type":"data","source_id":"node_a"}`

func TestAcceptsFlatObject(t *testing.T) {
	a := New()
	accepted, consumed := a.Run([]byte(s1Canonical))
	if !accepted {
		t.Fatalf("expected acceptance, consumed %d of %d", consumed, len(s1Canonical))
	}
	if consumed != len(s1Canonical) {
		t.Fatalf("consumed %d, want %d", consumed, len(s1Canonical))
	}
}

func TestAcceptsEmptyObject(t *testing.T) {
	a := New()
	if accepted, _ := a.Run([]byte("{}")); !accepted {
		t.Fatalf("expected {} to be accepted")
	}
}

func TestRejectsTrailingComma(t *testing.T) {
	a := New()
	if accepted, _ := a.Run([]byte(`{"a":"b",}`)); accepted {
		t.Fatalf("trailing comma must be rejected")
	}
}

func TestRejectsUnterminatedObject(t *testing.T) {
	a := New()
	if accepted, _ := a.Run([]byte(`{"a":"b"`)); accepted {
		t.Fatalf("unterminated object must be rejected")
	}
}

func TestRejectsEmptyName(t *testing.T) {
	a := New()
	if accepted, _ := a.Run([]byte(`{"":"b"}`)); accepted {
		t.Fatalf("empty field name must be rejected")
	}
}

func TestRejectsTrailingGarbage(t *testing.T) {
	a := New()
	if accepted, _ := a.Run([]byte(`{"a":"b"}garbage`)); accepted {
		t.Fatalf("trailing garbage after object must be rejected")
	}
}

func TestRejectionClosure(t *testing.T) {
	// Property 8 (spec.md §8): once REJECT is entered, no further
	// input changes the outcome.
	a := New()
	base := []byte(`{"a":"b"x`) // enters REJECT at the stray 'x'
	suffixes := [][]byte{{}, []byte("}"), []byte("xyz"), []byte(`,"c":"d"}`)}
	_, consumedBase := a.Run(base)
	for _, suf := range suffixes {
		full := append(append([]byte{}, base...), suf...)
		accepted, consumed := a.Run(full)
		if accepted {
			t.Fatalf("expected continued rejection for suffix %q", suf)
		}
		if consumed != consumedBase {
			t.Fatalf("consumed changed after reject point: got %d want %d", consumed, consumedBase)
		}
	}
}

func TestMinimizeIsStable(t *testing.T) {
	a := New()
	again := a.minimize()
	if a.NumStates() != again.NumStates() {
		t.Fatalf("minimization not stable: %d states, then %d", a.NumStates(), again.NumStates())
	}
}

func TestAcceptSetsPatternHash(t *testing.T) {
	a := New()
	b := mustBuffer(t, s1Canonical)
	if err := a.Accept(b); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if _, ok := b.PatternHash(); !ok {
		t.Fatalf("expected pattern hash set on acceptance")
	}
}
