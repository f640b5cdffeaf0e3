package trust

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	cjson "github.com/docker/go/canonical/json"
)

// Spec captures everything that differs between the two metadata
// profiles this engine understands: which JSON keys carry the spec
// version and expiration, how "signed" bytes are canonicalized before
// being hashed/verified, how the signatures block is shaped, and the
// compatibility/upgrade rules used when chaining root updates.
type Spec interface {
	Version() string
	JSONKey() string
	ExpirationJSONKey() string
	Canonicalize(signed json.RawMessage) ([]byte, error)
	ParseSignatures(raw json.RawMessage) ([]RoleSignature, error)
	IsCompatible(version string) bool
	IsUpgrade(version string) bool
	Upgradable() bool
	CompatiblePrefix() string
	UpgradePrefixes() []string
}

type semver struct {
	major, minor, patch int
}

func parseSemver(s string) (semver, error) {
	parts := strings.SplitN(s, ".", 3)
	var v semver
	var err error
	if len(parts) < 1 {
		return v, newErr(CategorySpecVersion, "", "empty spec_version", nil)
	}
	if v.major, err = strconv.Atoi(parts[0]); err != nil {
		return v, newErr(CategorySpecVersion, s, "malformed spec_version", err)
	}
	if len(parts) > 1 {
		if v.minor, err = strconv.Atoi(parts[1]); err != nil {
			return v, newErr(CategorySpecVersion, s, "malformed spec_version", err)
		}
	}
	if len(parts) > 2 {
		if v.patch, err = strconv.Atoi(parts[2]); err != nil {
			return v, newErr(CategorySpecVersion, s, "malformed spec_version", err)
		}
	}
	return v, nil
}

// canonicalizeCompact runs docker/go's canonical JSON marshaler over an
// arbitrary "signed" payload; both profiles use this as their base
// byte representation before v0.6 re-indents it.
func canonicalizeCompact(signed json.RawMessage) ([]byte, error) {
	var v interface{}
	if err := json.Unmarshal(signed, &v); err != nil {
		return nil, newErr(CategoryRoleMeta, "", "signed payload is not valid json", err)
	}
	b, err := cjson.MarshalCanonical(v)
	if err != nil {
		return nil, newErr(CategoryRoleMeta, "", "canonicalizing signed payload", err)
	}
	return b, nil
}

// canonicalizeIndented reproduces the v0.6 profile's "canonicalize
// with 2-space indentation" rule: start from the same sorted-key
// canonical bytes as v1, then re-flow them with json.Indent so the
// ordering stays deterministic while the byte layout matches what the
// v0.6 signer actually hashed.
func canonicalizeIndented(signed json.RawMessage) ([]byte, error) {
	compact, err := canonicalizeCompact(signed)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "  "); err != nil {
		return nil, newErr(CategoryRoleMeta, "", "indenting canonical payload", err)
	}
	return out.Bytes(), nil
}

func detectSpec(raw map[string]json.RawMessage) (Spec, error) {
	if v, ok := raw["spec_version"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return nil, newErr(CategorySpecVersion, "", "malformed spec_version", err)
		}
		return SpecV1{version: s}, nil
	}
	if v, ok := raw["metadata_spec_version"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return nil, newErr(CategorySpecVersion, "", "malformed metadata_spec_version", err)
		}
		return SpecV06{version: s}, nil
	}
	return nil, newErr(CategorySpecVersion, "", fmt.Sprintf("no recognizable spec version key in %v", keysOf(raw)), nil)
}

func keysOf(m map[string]json.RawMessage) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
