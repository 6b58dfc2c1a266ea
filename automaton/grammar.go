package automaton

// rawBuilder assembles the unminimized transition table for the
// grammar of spec.md §4.2: a flat object of `"name":"value"` pairs
// separated by `,`, enclosed in `{…}`, names drawn from [a-z0-9_]+
// (case-folded — the normalizer has already lower-cased the payload
// by the time the automaton runs), values drawn from printable ASCII
// excluding unescaped `"` and `\`.
//
// State 0 is always REJECT: new states' transition rows default to
// all-zeros (Go's zero value for int), which is exactly the REJECT
// state id, so any transition left unset by the grammar below is
// REJECT without needing an explicit fill pass.
type rawBuilder struct {
	trans     [][alphabetSize]int
	accepting []bool
}

func (b *rawBuilder) newState(accept bool) int {
	id := len(b.trans)
	b.trans = append(b.trans, [alphabetSize]int{})
	b.accepting = append(b.accepting, accept)
	return id
}

func (b *rawBuilder) on(state int, chars string, target int) {
	for i := 0; i < len(chars); i++ {
		b.trans[state][chars[i]] = target
	}
}

func (b *rawBuilder) onByte(state int, c byte, target int) {
	b.trans[state][c] = target
}

// onPrintableExcept routes every printable-ASCII byte (0x20..0x7e) not
// in excl to target; bytes outside that range, and bytes in excl, are
// left at their zero value (REJECT) unless set elsewhere.
func (b *rawBuilder) onPrintableExcept(state int, excl string, target int) {
	excluded := [256]bool{}
	for i := 0; i < len(excl); i++ {
		excluded[excl[i]] = true
	}
	for c := 0x20; c <= 0x7e; c++ {
		if !excluded[byte(c)] {
			b.trans[state][c] = target
		}
	}
}

const (
	nameChars = "abcdefghijklmnopqrstuvwxyz0123456789_"
)

func buildGrammar() *Automaton {
	b := &rawBuilder{}

	reject := b.newState(false) // id 0, by construction
	_ = reject

	initial := b.newState(false)
	objectOpen := b.newState(false)   // after '{' or after a comma handled separately (afterComma)
	afterComma := b.newState(false)   // after ',': only a new member may follow, no '}'
	nameOpening := b.newState(false)  // just saw opening '"', no name chars yet
	nameOpen := b.newState(false)     // FIELD_NAME: inside a name with >=1 char consumed
	nameClose := b.newState(false)    // after closing '"' of name, before ':'
	valueWait := b.newState(false)    // after ':', before opening '"' of value
	valueOpening := b.newState(false) // just saw opening '"' of value, no chars yet
	valueOpen := b.newState(false)    // FIELD_VALUE: inside a value
	valueClose := b.newState(false)   // after closing '"' of value, before ',' or '}'
	accept := b.newState(true)        // ACCEPT

	// INITIAL: only '{' is valid.
	b.onByte(initial, '{', objectOpen)

	// OBJECT_OPEN: whitespace (already folded to single spaces by the
	// normalizer), an opening quote to start a name, or '}' for an
	// empty object.
	b.onByte(objectOpen, ' ', objectOpen)
	b.onByte(objectOpen, '"', nameOpening)
	b.onByte(objectOpen, '}', accept)

	// AFTER_COMMA: like OBJECT_OPEN but a trailing comma may not be
	// followed directly by '}'.
	b.onByte(afterComma, ' ', afterComma)
	b.onByte(afterComma, '"', nameOpening)

	// NAME_OPENING / FIELD_NAME: names are non-empty [a-z0-9_]+.
	b.on(nameOpening, nameChars, nameOpen)
	b.on(nameOpen, nameChars, nameOpen)
	b.onByte(nameOpen, '"', nameClose)

	// After a field name, skip whitespace, then require ':'.
	b.onByte(nameClose, ' ', nameClose)
	b.onByte(nameClose, ':', valueWait)

	// Before a value, skip whitespace, then require an opening quote.
	b.onByte(valueWait, ' ', valueWait)
	b.onByte(valueWait, '"', valueOpening)

	// FIELD_VALUE: printable ASCII minus '"' and '\'; the empty value
	// ("") is permitted at this grammar layer (type/length checks are
	// the validator's job, spec.md §4.3).
	b.onByte(valueOpening, '"', valueClose)
	b.onPrintableExcept(valueOpening, `"\`, valueOpen)
	b.onByte(valueOpen, '"', valueClose)
	b.onPrintableExcept(valueOpen, `"\`, valueOpen)

	// After a value, skip whitespace, then require ',' (another
	// member) or '}' (end of object).
	b.onByte(valueClose, ' ', valueClose)
	b.onByte(valueClose, ',', afterComma)
	b.onByte(valueClose, '}', accept)

	// ACCEPT has no valid continuation: this grammar has no sequencing
	// after a complete object, so any further byte is REJECT (left at
	// its zero value).

	return &Automaton{
		trans:     b.trans,
		accepting: b.accepting,
		initial:   initial,
		reject:    reject,
	}
}
