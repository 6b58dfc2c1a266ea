// Package validate implements the USCN validator: the orchestrator
// that composes the normalizer, automaton, schema-directed field
// checks, cost evaluator, and audit log into the single fixed-order
// pipeline spec.md §4.3 defines.
package validate

import (
	"time"

	"uscn.dev/protocol/audit"
	"uscn.dev/protocol/automaton"
	"uscn.dev/protocol/buffer"
	"uscn.dev/protocol/cost"
	"uscn.dev/protocol/hashing"
	"uscn.dev/protocol/normalizer"
	"uscn.dev/protocol/protoerr"
	"uscn.dev/protocol/schema"
)

// Options configures a Validator at construction (spec.md §4.3).
type Options struct {
	// Alpha and Beta weight the cost evaluator's KL-divergence and
	// entropy-delta terms (spec.md §4.4).
	Alpha, Beta float64

	// ZeroTrust enables the zero-trust gate (default true): an
	// un-normalized buffer may not reach the automaton without either
	// being normalized inline or rejected outright.
	ZeroTrust bool

	// InlineNormalize selects the zero-trust gate's policy when
	// ZeroTrust is enabled and a buffer arrives un-normalized: true
	// normalizes inline and proceeds; false rejects with
	// ZERO_TRUST_VIOLATION. Fixed at construction (spec.md §4.3).
	InlineNormalize bool
}

// Validator is the pipeline orchestrator. It exclusively owns its
// normalizer, automaton, and schema for its lifetime (spec.md §3,
// "Ownership") and is not safe for concurrent use — spec.md §5 holds
// the validator single-threaded by default and puts only the audit
// log behind a shared mutex.
type Validator struct {
	schema     *schema.Schema
	normalizer *normalizer.Normalizer
	automaton  *automaton.Automaton
	cost       *cost.Evaluator
	audit      *audit.Log

	zeroTrust       bool
	inlineNormalize bool

	validationCount uint64
}

// New constructs a Validator. The normalizer is derived from the
// schema's own normalization knobs (spec.md §6:
// normalization.case_sensitivity, normalization.whitespace) over
// normalizer.DefaultTable, so a schema that sets case_sensitivity=true
// or whitespace other than "normalized" actually changes how this
// validator's payloads are reduced, rather than always folding case
// and whitespace regardless of what the schema declares.
//
// New fails with NUMERICAL_INSTABILITY if opts.Alpha or opts.Beta
// violate the cost evaluator's construction constraints (spec.md
// §4.3), and with ZERO_TRUST_VIOLATION if the caller disables the
// zero-trust gate against a schema whose audit policy requires it
// (spec.md §4.3, §9 Open Question resolution: the schema's
// audit.required flag is the "profile that forbids it").
func New(opts Options, s *schema.Schema, log *audit.Log) (*Validator, error) {
	if !opts.ZeroTrust && s.AuditRequired {
		return nil, protoerr.New(protoerr.ZeroTrustViolation, protoerr.StageZeroTrust,
			"schema requires audit; zero-trust gate cannot be disabled")
	}
	ce, err := cost.New(opts.Alpha, opts.Beta)
	if err != nil {
		return nil, err
	}
	return &Validator{
		schema:          s,
		normalizer:      normalizer.New(normalizer.DefaultTable(), s.CaseSensitive, s.WhitespaceFold),
		automaton:       automaton.New(),
		cost:            ce,
		audit:           log,
		zeroTrust:       opts.ZeroTrust,
		inlineNormalize: opts.InlineNormalize,
	}, nil
}

// ValidationCount returns the number of buffers successfully committed
// through this validator (spec.md §4.3 step 7, "session validation
// counter").
func (v *Validator) ValidationCount() uint64 { return v.validationCount }

// Validate runs the fixed-order pipeline of spec.md §4.3 over b,
// fast-failing on the first non-success. Every terminating path —
// success or failure — writes exactly one audit entry (spec.md §7).
func (v *Validator) Validate(b *buffer.Buffer) error {
	// 1. Structural check.
	if b.Len() == 0 {
		return v.fail(protoerr.New(protoerr.InvalidInput, protoerr.StageStructural, "empty buffer"))
	}
	if b.Len() > buffer.MaxBufferSize {
		return v.fail(protoerr.Newf(protoerr.BufferOverflow, protoerr.StageStructural,
			"buffer length %d exceeds MAX_BUFFER_SIZE=%d", b.Len(), buffer.MaxBufferSize))
	}
	if b.SecurityLevel() > buffer.SecurityCritical {
		return v.fail(protoerr.New(protoerr.InvalidInput, protoerr.StageStructural, "security_level out of range"))
	}

	// 2. Zero-trust gate.
	if v.zeroTrust && !b.Normalized() && !v.inlineNormalize {
		return v.fail(protoerr.New(protoerr.ZeroTrustViolation, protoerr.StageZeroTrust,
			"buffer not normalized and inline normalization is disabled"))
	}

	// 3. Normalize (idempotent if already canonical).
	if !b.Normalized() {
		if err := v.normalizer.Normalize(b); err != nil {
			return v.fail(err)
		}
	}

	// 4. Automaton accept.
	if err := v.automaton.Accept(b); err != nil {
		return v.fail(err)
	}

	// 5. Field-level checks, in schema order.
	now := time.Now().UTC()
	for _, f := range v.schema.Fields {
		value, found := extractField(b.Bytes(), f.Name)
		if !found {
			if f.Required {
				return v.fail(protoerr.Newf(protoerr.ValidationFailed, protoerr.StageFieldChecks,
					"required field %q missing", f.Name))
			}
			continue
		}
		if err := checkField(f, value, now); err != nil {
			return v.fail(err)
		}
	}

	// 6. Cost evaluation.
	costValue, zone, err := v.cost.Evaluate(b.Bytes())
	if err != nil {
		return v.fail(err)
	}
	b.SetCost(costValue, zone)
	if zone == buffer.ZoneGovernance {
		return v.fail(protoerr.Newf(protoerr.SinphaseViolation, protoerr.StageCost,
			"cost %v falls in GOVERNANCE zone", costValue))
	}

	// 7. Commit.
	if err := b.Commit(); err != nil {
		return v.fail(err)
	}
	hashRef := hashing.HexRef(b.Bytes())
	if _, err := v.audit.Log(audit.OpBufferValidate, hashRef); err != nil {
		return protoerr.Newf(protoerr.AuditRequired, protoerr.StageAudit, "audit write failed after commit: %v", err)
	}
	v.validationCount++
	return nil
}

// fail logs a VALIDATION_FAILED audit entry for the terminating
// failure err and returns it, or AUDIT_REQUIRED if the audit write
// itself failed (spec.md §7: "the validator must not report SUCCESS if
// the audit write failed" — symmetrically, a failed audit write on the
// failure path surfaces as its own fatal error).
func (v *Validator) fail(err error) error {
	if _, logErr := v.audit.Log(audit.OpValidationFail, audit.NullHash); logErr != nil {
		return protoerr.Newf(protoerr.AuditRequired, protoerr.StageAudit, "audit write failed after %v: %v", err, logErr)
	}
	return err
}
