package trust

import (
	"encoding/json"
	"fmt"
)

// envelope is the {"signed": ..., "signatures": ...} wrapper shared by
// every role file and by the repodata signing block.
type envelope struct {
	Signed     json.RawMessage `json:"signed"`
	Signatures json.RawMessage `json:"signatures"`
}

// RootRole is the trust anchor. Its SelfKeys are the "root" delegation
// under whatever profile produced it; Base.Declared carries every
// other role it delegates to (key_mgr for v0.6; snapshot/targets/
// timestamp for v1).
type RootRole struct {
	Base     RoleBase
	SelfKeys RoleFullKeys
	signed   json.RawMessage
}

func mandatoryRootRoles(spec Spec) map[string]bool {
	switch spec.(type) {
	case SpecV1:
		return map[string]bool{"root": true, "snapshot": true, "targets": true, "timestamp": true}
	case SpecV06:
		return map[string]bool{"root": true, "key_mgr": true}
	default:
		return map[string]bool{"root": true}
	}
}

type rawRootV1 struct {
	SpecVersion string `json:"spec_version"`
	Version     int    `json:"version"`
	Expires     string `json:"expires"`
	Keys        map[string]Key `json:"keys"`
	Roles       map[string]struct {
		KeyIDs    []string `json:"keyids"`
		Threshold int      `json:"threshold"`
	} `json:"roles"`
}

type rawRootV06 struct {
	Version             int    `json:"version"`
	MetadataSpecVersion string `json:"metadata_spec_version"`
	Expiration          string `json:"expiration"`
	Delegations         map[string]struct {
		Pubkeys   []string `json:"pubkeys"`
		Threshold int      `json:"threshold"`
	} `json:"delegations"`
}

// parseRootBody normalizes either wire shape into a RoleBase plus the
// root's own key bundle. v0.6 has no independent keyid namespace — a
// delegation just lists raw hex pubkeys — so the pubkey hex string is
// used directly as its own keyid, which is sufficient since nothing
// in this system needs to address a v0.6 key by an identifier other
// than the key itself.
func parseRootBody(spec Spec, signed json.RawMessage) (RoleBase, RoleFullKeys, error) {
	switch spec.(type) {
	case SpecV1:
		var r rawRootV1
		if err := json.Unmarshal(signed, &r); err != nil {
			return RoleBase{}, RoleFullKeys{}, newErr(CategoryRoleMeta, "", "malformed v1 root body", err)
		}
		declared := make(map[string]RoleFullKeys, len(r.Roles))
		for name, rk := range r.Roles {
			keys := make(map[string]Key, len(rk.KeyIDs))
			for _, kid := range rk.KeyIDs {
				k, ok := r.Keys[kid]
				if !ok {
					return RoleBase{}, RoleFullKeys{}, newErr(CategoryRoleMeta, kid, "role references undeclared keyid", nil)
				}
				keys[kid] = k
			}
			declared[name] = RoleFullKeys{Keys: keys, Threshold: rk.Threshold}
		}
		base := RoleBase{Type: "root", Version: r.Version, Expires: r.Expires, SpecVersion: r.SpecVersion, Spec: spec, Declared: declared}
		self, ok := declared["root"]
		if !ok {
			return RoleBase{}, RoleFullKeys{}, newErr(CategoryRoleMeta, "root", "root role missing self delegation", nil)
		}
		return base, self, nil
	case SpecV06:
		var r rawRootV06
		if err := json.Unmarshal(signed, &r); err != nil {
			return RoleBase{}, RoleFullKeys{}, newErr(CategoryRoleMeta, "", "malformed v0.6 root body", err)
		}
		declared := make(map[string]RoleFullKeys, len(r.Delegations))
		for name, d := range r.Delegations {
			keys := make(map[string]Key, len(d.Pubkeys))
			for _, pk := range d.Pubkeys {
				keys[pk] = Key{KeyType: "ed25519", Scheme: "ed25519", KeyVal: pk}
			}
			declared[name] = RoleFullKeys{Keys: keys, Threshold: d.Threshold}
		}
		base := RoleBase{Type: "root", Version: r.Version, Expires: r.Expiration, SpecVersion: r.MetadataSpecVersion, Spec: spec, Declared: declared}
		self, ok := declared["root"]
		if !ok {
			return RoleBase{}, RoleFullKeys{}, newErr(CategoryRoleMeta, "root", "root role missing self delegation", nil)
		}
		return base, self, nil
	default:
		return RoleBase{}, RoleFullKeys{}, newErr(CategorySpecVersion, "", "unrecognized spec profile", nil)
	}
}

// ParseRoot parses a root file of either profile and checks its
// self-signature: the declared "root" keys must satisfy their own
// threshold over the canonicalized signed body. This is the trust
// bootstrap — everything downstream is only as trustworthy as this
// initial check.
func ParseRoot(log Logger, data []byte) (*RootRole, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, newErr(CategoryRoleFile, "", "root file is not a signed envelope", err)
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(env.Signed, &probe); err != nil {
		return nil, newErr(CategoryRoleMeta, "", "root 'signed' body is not an object", err)
	}
	spec, err := detectSpec(probe)
	if err != nil {
		return nil, err
	}

	base, selfKeys, err := parseRootBody(spec, env.Signed)
	if err != nil {
		return nil, err
	}
	if err := base.ValidateDeclaredRoles(mandatoryRootRoles(spec), nil); err != nil {
		return nil, err
	}
	if err := base.ValidateExpiration(); err != nil {
		return nil, err
	}

	signedBytes, err := spec.Canonicalize(env.Signed)
	if err != nil {
		return nil, err
	}
	sigs, err := spec.ParseSignatures(env.Signatures)
	if err != nil {
		return nil, err
	}
	if err := CheckSignatures(log, "root", signedBytes, sigs, selfKeys); err != nil {
		return nil, err
	}

	return &RootRole{Base: base, SelfKeys: selfKeys, signed: env.Signed}, nil
}

// PossibleUpdateFiles returns, in priority order, the candidate file
// names for the next root version: upgrade-family variants first,
// then the compatible family, then the un-suffixed form.
func (r *RootRole) PossibleUpdateFiles() []string {
	n := r.Base.Version + 1
	var files []string
	for _, up := range r.Base.Spec.UpgradePrefixes() {
		files = append(files, fmt.Sprintf("%d.sv%s.root.json", n, up))
	}
	if cp := r.Base.Spec.CompatiblePrefix(); cp != "" {
		files = append(files, fmt.Sprintf("%d.sv%s.root.json", n, cp))
	}
	files = append(files, fmt.Sprintf("%d.root.json", n))
	return files
}

// createUpdate parses a candidate root file and applies the
// spec-compatibility gate: staying within a profile requires
// IsCompatible, crossing from v0.6 to v1 requires Upgradable() and
// IsUpgrade(). It does not yet check signatures against the current
// root or version monotonicity — that is Update's job, since the
// original keeps candidate construction separate from acceptance.
func (r *RootRole) createUpdate(candidateRaw []byte) (*RootRole, envelope, error) {
	var env envelope
	if err := json.Unmarshal(candidateRaw, &env); err != nil {
		return nil, env, newErr(CategoryRoleFile, "", "candidate root file is not a signed envelope", err)
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(env.Signed, &probe); err != nil {
		return nil, env, newErr(CategoryRoleMeta, "", "candidate root 'signed' body is not an object", err)
	}
	candidateSpec, err := detectSpec(probe)
	if err != nil {
		return nil, env, err
	}

	// The spec-compatibility gate is expressed purely in terms of the
	// CURRENT spec's own predicates, not a type switch on the
	// candidate's concrete Go type: staying within the same family
	// (IsCompatible) is always fine, and crossing to a new family or
	// minor version is fine only when the current spec is Upgradable
	// and recognizes the candidate's version as its upgrade target.
	// This is what lets a v0.6.6 root accept both a v0.6.7 candidate
	// and a v1 candidate through the same check.
	if !r.Base.Spec.IsCompatible(candidateSpec.Version()) {
		if !r.Base.Spec.Upgradable() || !r.Base.Spec.IsUpgrade(candidateSpec.Version()) {
			return nil, env, newErr(CategorySpecVersion, "", "incompatible spec transition to "+candidateSpec.Version(), nil)
		}
	}

	base, selfKeys, err := parseRootBody(candidateSpec, env.Signed)
	if err != nil {
		return nil, env, err
	}
	if err := base.ValidateDeclaredRoles(mandatoryRootRoles(candidateSpec), nil); err != nil {
		return nil, env, err
	}
	if err := base.ValidateExpiration(); err != nil {
		return nil, env, err
	}

	return &RootRole{Base: base, SelfKeys: selfKeys, signed: env.Signed}, env, nil
}

// Update runs the full chained-root-update pipeline: build the
// candidate, verify it under the CURRENT root's keys (so an attacker
// holding only the new key cannot forge a transition), then enforce
// strict version monotonicity.
func (r *RootRole) Update(log Logger, candidateRaw []byte) (*RootRole, error) {
	candidate, env, err := r.createUpdate(candidateRaw)
	if err != nil {
		return nil, err
	}

	signedBytes, err := candidate.Base.Spec.Canonicalize(env.Signed)
	if err != nil {
		return nil, err
	}
	sigs, err := candidate.Base.Spec.ParseSignatures(env.Signatures)
	if err != nil {
		return nil, err
	}
	if err := CheckSignatures(log, "root", signedBytes, sigs, r.SelfKeys); err != nil {
		return nil, err
	}

	if candidate.Base.Version > r.Base.Version+1 {
		return nil, newErr(CategoryRoleMeta, "", fmt.Sprintf("root version jumped from %d to %d", r.Base.Version, candidate.Base.Version), nil)
	}
	if candidate.Base.Version <= r.Base.Version {
		return nil, newErr(CategoryRollback, "", fmt.Sprintf("candidate root version %d did not advance past %d", candidate.Base.Version, r.Base.Version), nil)
	}
	return candidate, nil
}
