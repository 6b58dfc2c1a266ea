// Package cost implements the USCN admission-cost evaluator
// (spec.md §4.4): a mathematical classifier over the normalized
// payload that produces a non-negative cost and a governance zone.
package cost

import (
	"math"

	"uscn.dev/protocol/buffer"
	"uscn.dev/protocol/protoerr"
)

// epsilon is the floor used in place of zero denominators in the KL
// divergence (spec.md §4.4).
const epsilon = 1e-12

// alphaBetaSlack is the tolerance spec.md §4.3 allows on α + β ≤ 1.
const alphaBetaSlack = 1e-4

// Evaluator computes the admission cost C = α·KL(P‖Q) + β·ΔH(P,Q) for
// a normalized payload (spec.md §4.4).
type Evaluator struct {
	alpha, beta float64
}

// New constructs an Evaluator. It fails with NUMERICAL_INSTABILITY if
// alpha or beta is negative, or if alpha+beta exceeds 1+1e-4
// (spec.md §4.3, "Construction constraints").
func New(alpha, beta float64) (*Evaluator, error) {
	if alpha < 0 || beta < 0 {
		return nil, protoerr.Newf(protoerr.NumericalInstability, protoerr.StageCost,
			"alpha=%v beta=%v must be non-negative", alpha, beta)
	}
	if alpha+beta > 1+alphaBetaSlack {
		return nil, protoerr.Newf(protoerr.NumericalInstability, protoerr.StageCost,
			"alpha+beta=%v exceeds 1+%v", alpha+beta, alphaBetaSlack)
	}
	return &Evaluator{alpha: alpha, beta: beta}, nil
}

// Evaluate computes the admission cost for the first min(len(data),16)
// bytes of data and classifies it into a governance zone (spec.md
// §3, §4.4). It fails with NUMERICAL_INSTABILITY if data is empty or
// if any intermediate value is non-finite.
func (e *Evaluator) Evaluate(data []byte) (float64, buffer.Zone, error) {
	k := len(data)
	if k > 16 {
		k = 16
	}
	if k == 0 {
		return 0, buffer.ZoneGovernance, protoerr.New(protoerr.NumericalInstability, protoerr.StageCost, "empty payload")
	}

	p := make([]float64, k)
	var z float64
	for i := 0; i < k; i++ {
		v := float64(data[i]) + 1
		p[i] = v
		z += v
	}
	for i := range p {
		p[i] /= z
	}
	q := 1.0 / float64(k)

	var kl, entropyP float64
	for i := 0; i < k; i++ {
		pi := p[i]
		qi := q
		if qi < epsilon {
			qi = epsilon
		}
		kl += pi * math.Log2(pi/qi)
		if pi > 0 {
			entropyP += -pi * math.Log2(pi)
		}
	}
	entropyQ := math.Log2(float64(k)) // H(uniform over k symbols) = log2(k)
	deltaH := entropyP - entropyQ

	c := e.alpha*kl + e.beta*deltaH
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return 0, buffer.ZoneGovernance, protoerr.New(protoerr.NumericalInstability, protoerr.StageCost, "non-finite cost")
	}
	if c < 0 {
		// With Q uniform, ΔH = −KL, so c = (α−β)·KL: it is negative
		// whenever β > α, and can be a sub-epsilon negative from
		// rounding when P=Q. Any negative value is clamped to 0.
		c = 0
	}

	return c, zoneOf(c), nil
}

func zoneOf(c float64) buffer.Zone {
	switch {
	case c <= 0.5:
		return buffer.ZoneAutonomous
	case c <= 0.6:
		return buffer.ZoneWarning
	default:
		return buffer.ZoneGovernance
	}
}
