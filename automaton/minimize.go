package automaton

import (
	"strconv"
	"strings"
)

// minimize applies partition refinement (spec.md §4.2, Hopcroft-style):
// the initial partition separates accepting from non-accepting states;
// any block whose members disagree on the destination block of
// δ(s, c) for some input c is split. Refinement repeats until a full
// pass produces no splits. Each surviving block becomes one state of
// the returned, minimized Automaton.
func (a *Automaton) minimize() *Automaton {
	n := len(a.trans)
	class := make([]int, n)
	for s := 0; s < n; s++ {
		if a.accepting[s] {
			class[s] = 1
		}
	}

	for {
		sig := make([]string, n)
		for s := 0; s < n; s++ {
			var sb strings.Builder
			sb.WriteString(strconv.Itoa(class[s]))
			sb.WriteByte('|')
			for c := 0; c < alphabetSize; c++ {
				sb.WriteString(strconv.Itoa(class[a.trans[s][c]]))
				sb.WriteByte(',')
			}
			sig[s] = sb.String()
		}

		nextID := map[string]int{}
		newClass := make([]int, n)
		for s := 0; s < n; s++ {
			id, ok := nextID[sig[s]]
			if !ok {
				id = len(nextID)
				nextID[sig[s]] = id
			}
			newClass[s] = id
		}

		changed := false
		for s := 0; s < n; s++ {
			if newClass[s] != class[s] {
				changed = true
				break
			}
		}
		class = newClass
		if !changed {
			break
		}
	}

	numClasses := 0
	for _, c := range class {
		if c+1 > numClasses {
			numClasses = c + 1
		}
	}

	newTrans := make([][alphabetSize]int, numClasses)
	newAccepting := make([]bool, numClasses)
	seen := make([]bool, numClasses)
	for s := 0; s < n; s++ {
		cid := class[s]
		if seen[cid] {
			continue
		}
		seen[cid] = true
		for c := 0; c < alphabetSize; c++ {
			newTrans[cid][c] = class[a.trans[s][c]]
		}
		newAccepting[cid] = a.accepting[s]
	}

	return &Automaton{
		trans:     newTrans,
		accepting: newAccepting,
		initial:   class[a.initial],
		reject:    class[a.reject],
	}
}
