package normalizer

import (
	"bytes"
	"testing"

	"uscn.dev/protocol/buffer"
)

func TestConfluence(t *testing.T) {
	n := Default()
	inputs := []string{"../", "%2e%2e%2f", "%c0%af", ".%2e/"}
	var want []byte
	for i, in := range inputs {
		got, err := n.Reduce([]byte(in))
		if err != nil {
			t.Fatalf("reduce %q: %v", in, err)
		}
		if i == 0 {
			want = got
			continue
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("input %q: got %q, want %q (confluence violated)", in, got, want)
		}
	}
	if string(want) != "../" {
		t.Fatalf("canonical form = %q, want %q", want, "../")
	}
}

func TestIdempotence(t *testing.T) {
	n := Default()
	cases := []string{
		"%2e%2e%2f%2e%2e%2fetc",
		"Hello   World  ",
		"MixedCASE%20Input",
		"plain",
	}
	for _, in := range cases {
		once, err := n.Reduce([]byte(in))
		if err != nil {
			t.Fatalf("reduce(%q): %v", in, err)
		}
		twice, err := n.Reduce(once)
		if err != nil {
			t.Fatalf("reduce(reduce(%q)): %v", in, err)
		}
		if !bytes.Equal(once, twice) {
			t.Fatalf("idempotence violated for %q: %q != %q", in, once, twice)
		}
	}
}

func TestCaseFolding(t *testing.T) {
	n := Default()
	got, err := n.Reduce([]byte("ABC%2Edef"))
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if string(got) != "abc.def" {
		t.Fatalf("got %q, want %q", got, "abc.def")
	}
}

func TestWhitespaceFolding(t *testing.T) {
	n := Default()
	got, err := n.Reduce([]byte("a\t\tb\r\nc   "))
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if string(got) != "a b c" {
		t.Fatalf("got %q, want %q", got, "a b c")
	}
}

func TestEmptyAfterReductionFails(t *testing.T) {
	n := Default()
	if _, err := n.Reduce([]byte("")); err == nil {
		t.Fatalf("expected error for empty input")
	}
}

func TestNormalizeOverflowsBuffer(t *testing.T) {
	n := Default()
	b, err := buffer.New([]byte("%2e%2e%2e"), 2, buffer.SecurityNone)
	if err != nil {
		t.Fatalf("buffer.New: %v", err)
	}
	if err := n.Normalize(b); err == nil {
		t.Fatalf("expected NORMALIZATION_FAILED when canonical exceeds max_size")
	}
}

func TestNormalizeSetsFlag(t *testing.T) {
	n := Default()
	b, err := buffer.New([]byte(`{"a":"b"}`), 64, buffer.SecurityNone)
	if err != nil {
		t.Fatalf("buffer.New: %v", err)
	}
	if err := n.Normalize(b); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !b.Normalized() {
		t.Fatalf("expected normalized flag set")
	}
}

func TestPercentEncodedTraversalReducesToPathTraversal(t *testing.T) {
	n := Default()
	got, err := n.Reduce([]byte("%2e%2e%2f%2e%2e%2fetc"))
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if string(got) != "../../etc" {
		t.Fatalf("got %q, want %q", got, "../../etc")
	}
}
