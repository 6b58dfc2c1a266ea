// Package automaton implements the USCN minimized deterministic
// recognizer (spec.md §4.2): it accepts the canonical-message shape
// (a flat object of quoted "name":"value" pairs) and produces a
// pattern fingerprint over the bytes it consumed.
package automaton

import (
	"uscn.dev/protocol/buffer"
	"uscn.dev/protocol/hashing"
	"uscn.dev/protocol/protoerr"
)

// alphabetSize is the DFA's input alphabet: one symbol per byte value
// (spec.md §3: "Transition table δ: States × [0,256) → States").
const alphabetSize = 256

// Automaton is a minimized DFA: a dense S×256 transition table plus an
// accepting-state set. State 0 is always REJECT and is absorbing
// (δ(REJECT, c) = REJECT for all c), by construction (see builder).
type Automaton struct {
	trans     [][alphabetSize]int
	accepting []bool
	initial   int
	reject    int
}

// NumStates returns the minimized state count (an invariant of the
// grammar, not of this implementation — spec.md §4.2).
func (a *Automaton) NumStates() int { return len(a.trans) }

// New builds the grammar's raw (unminimized) transition table and
// reduces it via partition refinement (spec.md §4.2, "Minimization").
func New() *Automaton {
	return buildGrammar().minimize()
}

// Run feeds data through the automaton from the initial state. It
// reports whether the machine ends in an accepting state with all
// input consumed, and the number of bytes consumed before any
// transition to REJECT (which aborts the run immediately — spec.md
// §4.2, "Failure semantics").
func (a *Automaton) Run(data []byte) (accepted bool, consumed int) {
	state := a.initial
	for i, c := range data {
		state = a.trans[state][c]
		if state == a.reject {
			return false, i
		}
	}
	return a.accepting[state], len(data)
}

// Accept runs the automaton over b's normalized bytes. On acceptance
// it records the pattern fingerprint (spec.md §4.2, "Pattern hash") on
// b and returns nil. On rejection it returns a typed
// DFA_TRANSITION_FAILED / VALIDATION_FAILED error and leaves b
// unmarked, per spec.md §4.2's failure semantics.
func (a *Automaton) Accept(b *buffer.Buffer) error {
	data := b.Bytes()
	accepted, consumed := a.Run(data)
	if !accepted {
		if consumed < len(data) {
			return protoerr.Newf(protoerr.DFATransitionFailed, protoerr.StageAutomaton,
				"transition to REJECT after %d bytes", consumed)
		}
		return protoerr.New(protoerr.ValidationFailed, protoerr.StageAutomaton,
			"input consumed without reaching an accepting state")
	}
	b.SetPatternHash(hashing.PatternHash(data))
	return nil
}
