package trust

import "encoding/json"

// IndexChecker is what the fetch pipeline consumes: verification of a
// whole repodata index and of one package's signed metadata block.
// PkgMgr (v0.6) implements it; v1's targets role currently does not
// produce one (see NullIndexChecker).
type IndexChecker interface {
	VerifyIndex(repodataRaw []byte) error
	VerifyPackage(signedMeta json.RawMessage, sigs map[string]PackageSignature) error
}

// NullIndexChecker is the seam left for v1 package-level verification.
// v1's targets role is declared and parsed for its key delegation,
// but this system defines no v1 repodata signing envelope, so both
// methods log that no v1 index checker is implemented and return nil
// — the same no-op-with-log behavior the orchestrator already gives
// an ungenerated checker.
type NullIndexChecker struct {
	Log Logger
}

func (n NullIndexChecker) VerifyIndex([]byte) error {
	if n.Log != nil {
		n.Log.Errorw("index checker not implemented for v1 targets")
	}
	return nil
}

func (n NullIndexChecker) VerifyPackage(json.RawMessage, map[string]PackageSignature) error {
	if n.Log != nil {
		n.Log.Errorw("index checker not implemented for v1 targets")
	}
	return nil
}
