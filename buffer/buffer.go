// Package buffer defines the owned byte container that flows through
// the USCN pipeline (spec.md §3): raw or canonical bytes plus the
// status flags, cost, zone, and pattern fingerprint the later stages
// attach to it.
package buffer

import "uscn.dev/protocol/hashing"

// MaxBufferSize is the hard cap on a buffer's byte length (spec.md §5).
const MaxBufferSize = 8192

// SecurityLevel is the ordered enum carried on a Buffer (spec.md §3).
// The core only ever checks an upper bound against it (spec.md §9,
// Open Question b); finer policy is left to callers.
type SecurityLevel int

const (
	SecurityNone SecurityLevel = iota
	SecurityLow
	SecurityMedium
	SecurityHigh
	SecurityCritical
)

func (l SecurityLevel) String() string {
	switch l {
	case SecurityNone:
		return "NONE"
	case SecurityLow:
		return "LOW"
	case SecurityMedium:
		return "MEDIUM"
	case SecurityHigh:
		return "HIGH"
	case SecurityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Zone is the governance-zone discretization of a buffer's cost value
// (spec.md §3, §4.4).
type Zone int

const (
	ZoneAutonomous Zone = iota
	ZoneWarning
	ZoneGovernance
)

func (z Zone) String() string {
	switch z {
	case ZoneAutonomous:
		return "AUTONOMOUS"
	case ZoneWarning:
		return "WARNING"
	case ZoneGovernance:
		return "GOVERNANCE"
	default:
		return "UNKNOWN"
	}
}

// Buffer is the owned byte container passed by mutable borrow into
// Validate. A Buffer is owned by its creator; the validator never
// retains it across calls (spec.md §3, "Ownership").
type Buffer struct {
	data          []byte
	maxSize       int
	securityLevel SecurityLevel

	normalized bool
	validated  bool

	costValue   float64
	zone        Zone
	patternHash [hashing.PatternHashSize]byte
	hasPattern  bool
}

// New constructs a Buffer over a copy of data, with the given maximum
// size and security level. It does not itself enforce MaxBufferSize —
// that check belongs to the validator's structural stage (spec.md
// §4.3) — but maxSize must be positive and no larger than
// MaxBufferSize.
func New(data []byte, maxSize int, level SecurityLevel) (*Buffer, error) {
	if maxSize <= 0 || maxSize > MaxBufferSize {
		return nil, errInvalidMaxSize(maxSize)
	}
	owned := make([]byte, len(data))
	copy(owned, data)
	return &Buffer{
		data:          owned,
		maxSize:       maxSize,
		securityLevel: level,
		zone:          ZoneGovernance, // unvalidated buffers read as rejecting until proven otherwise
	}, nil
}

// Bytes returns the buffer's current byte contents (raw until
// normalized, canonical afterward). The returned slice must not be
// mutated by the caller.
func (b *Buffer) Bytes() []byte { return b.data }

// Len returns the current byte length.
func (b *Buffer) Len() int { return len(b.data) }

// MaxSize returns the buffer's configured maximum size.
func (b *Buffer) MaxSize() int { return b.maxSize }

// SecurityLevel returns the buffer's security level.
func (b *Buffer) SecurityLevel() SecurityLevel { return b.securityLevel }

// Normalized reports whether the normalizer has run successfully.
func (b *Buffer) Normalized() bool { return b.normalized }

// Validated reports whether the validator has committed this buffer.
func (b *Buffer) Validated() bool { return b.validated }

// CostValue returns the admission cost computed by the cost evaluator.
// It is only meaningful once Validated() is true.
func (b *Buffer) CostValue() float64 { return b.costValue }

// Zone returns the governance zone computed by the cost evaluator.
func (b *Buffer) Zone() Zone { return b.zone }

// PatternHash returns the 32-byte pattern fingerprint set by the
// automaton, and whether it has been set.
func (b *Buffer) PatternHash() ([hashing.PatternHashSize]byte, bool) {
	return b.patternHash, b.hasPattern
}

// SetNormalized replaces the buffer's bytes with the canonical form
// produced by the normalizer and marks it normalized. It fails if the
// new length would exceed maxSize (spec.md §4.1).
func (b *Buffer) SetNormalized(canonical []byte) error {
	if len(canonical) > b.maxSize {
		return errCanonicalTooLarge(len(canonical), b.maxSize)
	}
	owned := make([]byte, len(canonical))
	copy(owned, canonical)
	b.data = owned
	b.normalized = true
	return nil
}

// SetPatternHash records the automaton's fingerprint over the
// consumed canonical bytes. It is an invariant violation to call this
// before normalization; callers (the automaton stage) are trusted to
// respect pipeline order.
func (b *Buffer) SetPatternHash(hash [hashing.PatternHashSize]byte) {
	b.patternHash = hash
	b.hasPattern = true
}

// SetCost records the cost evaluator's output and the zone it implies.
func (b *Buffer) SetCost(cost float64, zone Zone) {
	b.costValue = cost
	b.zone = zone
}

// Commit marks the buffer validated. Per spec.md §3's invariant,
// callers must only call this once normalized is true, cost is
// non-negative, and zone is not GOVERNANCE; Commit enforces that
// invariant defensively rather than trusting the caller.
func (b *Buffer) Commit() error {
	if !b.normalized {
		return errCommitNotNormalized()
	}
	if b.costValue < 0 {
		return errCommitNegativeCost()
	}
	if b.zone == ZoneGovernance {
		return errCommitGovernanceZone()
	}
	b.validated = true
	return nil
}

// Reset replaces the buffer's bytes with a copy of data and clears all
// validation-derived state (flags, cost, zone, pattern hash), so one
// Buffer can be reused for another payload.
func (b *Buffer) Reset(data []byte) {
	owned := make([]byte, len(data))
	copy(owned, data)
	b.data = owned
	b.normalized = false
	b.validated = false
	b.costValue = 0
	b.zone = ZoneGovernance
	b.hasPattern = false
	b.patternHash = [hashing.PatternHashSize]byte{}
}
