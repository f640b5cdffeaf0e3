package trust

import (
	"encoding/json"
	"fmt"
)

// SpecV06 is the "relaxed" legacy profile: metadata_spec_version/
// expiration field names, 2-space-indented canonical signing bytes,
// signatures keyed by keyid.
type SpecV06 struct {
	version string
}

func (s SpecV06) Version() string           { return s.version }
func (s SpecV06) JSONKey() string           { return "metadata_spec_version" }
func (s SpecV06) ExpirationJSONKey() string { return "expiration" }
func (s SpecV06) Upgradable() bool          { return true }

// CompatiblePrefix names this root's own major.minor family, the one
// IsCompatible accepts.
func (s SpecV06) CompatiblePrefix() string {
	cur, err := parseSemver(s.version)
	if err != nil {
		return "0.6"
	}
	return fmt.Sprintf("%d.%d", cur.major, cur.minor)
}

// UpgradePrefixes names the spec families a v0.6 root is allowed to
// hand control to: the terminal v1 family, or the next 0.x minor
// version within the same major family. A jump to 0.(minor+2) or
// beyond, or to major 2, is not an upgrade.
func (s SpecV06) UpgradePrefixes() []string {
	cur, err := parseSemver(s.version)
	if err != nil {
		return []string{"1"}
	}
	return []string{"1", fmt.Sprintf("%d.%d", cur.major, cur.minor+1)}
}

func (s SpecV06) Canonicalize(signed json.RawMessage) ([]byte, error) {
	return canonicalizeIndented(signed)
}

type PackageSignature struct {
	Signature    string `json:"signature"`
	OtherHeaders string `json:"other_headers,omitempty"`
}

func (s SpecV06) ParseSignatures(raw json.RawMessage) ([]RoleSignature, error) {
	var m map[string]PackageSignature
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, newErr(CategoryRoleMeta, "", "v0.6 signatures must be a keyid-keyed object", err)
	}
	out := make([]RoleSignature, 0, len(m))
	for keyid, e := range m {
		out = append(out, RoleSignature{KeyID: keyid, Sig: e.Signature, PGPTrailer: e.OtherHeaders})
	}
	return out, nil
}

// IsCompatible matches major.minor exactly while major==0 (the only
// family this profile ever speaks for), so a 0.6 root will accept a
// 0.6 update but reject a 0.7 one without going through IsUpgrade.
func (s SpecV06) IsCompatible(version string) bool {
	v, err := parseSemver(version)
	if err != nil {
		return false
	}
	cur, err := parseSemver(s.version)
	if err != nil {
		return false
	}
	return v.major == cur.major && v.minor == cur.minor
}

// IsUpgrade fires for the terminal v1 family or for the next 0.x
// minor version within the current major family — matching
// UpgradePrefixes exactly.
func (s SpecV06) IsUpgrade(version string) bool {
	v, err := parseSemver(version)
	if err != nil {
		return false
	}
	if v.major == 1 {
		return true
	}
	cur, err := parseSemver(s.version)
	if err != nil {
		return false
	}
	return v.major == cur.major && v.minor == cur.minor+1
}
