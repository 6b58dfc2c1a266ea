package buffer

import "uscn.dev/protocol/protoerr"

func errInvalidMaxSize(n int) error {
	return protoerr.Newf(protoerr.InvalidInput, protoerr.StageStructural, "max_size %d out of range", n)
}

func errCanonicalTooLarge(n, max int) error {
	return protoerr.Newf(protoerr.NormalizationFailed, protoerr.StageNormalize, "canonical length %d exceeds max_size %d", n, max)
}

func errCommitNotNormalized() error {
	return protoerr.New(protoerr.ValidationFailed, protoerr.StageFieldChecks, "commit: buffer not normalized")
}

func errCommitNegativeCost() error {
	return protoerr.New(protoerr.NumericalInstability, protoerr.StageCost, "commit: negative cost")
}

func errCommitGovernanceZone() error {
	return protoerr.New(protoerr.SinphaseViolation, protoerr.StageCost, "commit: zone is GOVERNANCE")
}
