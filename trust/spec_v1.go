package trust

import (
	"encoding/json"
	"strconv"
)

// SpecV1 is the "strict" TUF profile: spec_version/expires field
// names, canonical-compact signing bytes, signatures as an array.
type SpecV1 struct {
	version string
}

func (s SpecV1) Version() string            { return s.version }
func (s SpecV1) JSONKey() string            { return "spec_version" }
func (s SpecV1) ExpirationJSONKey() string  { return "expires" }
func (s SpecV1) Upgradable() bool           { return false }
func (s SpecV1) UpgradePrefixes() []string  { return nil }

// CompatiblePrefix names this root's major family, the one IsCompatible
// accepts.
func (s SpecV1) CompatiblePrefix() string {
	cur, err := parseSemver(s.version)
	if err != nil {
		return ""
	}
	return strconv.Itoa(cur.major)
}

func (s SpecV1) Canonicalize(signed json.RawMessage) ([]byte, error) {
	return canonicalizeCompact(signed)
}

type rawSigV1 struct {
	KeyID        string `json:"keyid"`
	Sig          string `json:"sig"`
	OtherHeaders string `json:"other_headers,omitempty"`
}

func (s SpecV1) ParseSignatures(raw json.RawMessage) ([]RoleSignature, error) {
	var entries []rawSigV1
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, newErr(CategoryRoleMeta, "", "v1 signatures must be an array", err)
	}
	out := make([]RoleSignature, 0, len(entries))
	for _, e := range entries {
		out = append(out, RoleSignature{KeyID: e.KeyID, Sig: e.Sig, PGPTrailer: e.OtherHeaders})
	}
	return out, nil
}

// IsCompatible requires an identical major version; this system only
// ever ships one v1 minor/patch but the major check is what the
// original's SpecBase::is_compatible asserts.
func (s SpecV1) IsCompatible(version string) bool {
	v, err := parseSemver(version)
	if err != nil {
		return false
	}
	cur, err := parseSemver(s.version)
	if err != nil {
		return false
	}
	return v.major == cur.major
}

// IsUpgrade never fires for v1: it is the terminal profile, nothing
// upgrades away from it.
func (s SpecV1) IsUpgrade(string) bool { return false }
