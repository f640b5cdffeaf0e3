package trust

import "encoding/json"

// rawDelegatedV06 is the common envelope body shape for key_mgr and
// pkg_mgr: a role header plus (for key_mgr only) further delegations.
type rawDelegatedV06 struct {
	Version             int    `json:"version"`
	MetadataSpecVersion string `json:"metadata_spec_version"`
	Expiration          string `json:"expiration"`
	Delegations         map[string]struct {
		Pubkeys   []string `json:"pubkeys"`
		Threshold int      `json:"threshold"`
	} `json:"delegations"`
}

// KeyMgr is signed by the root-declared key_mgr keys and declares the
// pkg_mgr keyset the repo checker fetches next.
type KeyMgr struct {
	Base       RoleBase
	PkgMgrKeys RoleFullKeys
}

// ParseKeyMgr verifies the key_mgr file against the keys the trusted
// root delegated to "key_mgr", and enforces that it speaks the exact
// spec version its root does.
func ParseKeyMgr(log Logger, data []byte, rootSpecVersion string, rootKeyMgrKeys RoleFullKeys) (*KeyMgr, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, newErr(CategoryRoleFile, "", "key_mgr file is not a signed envelope", err)
	}
	var r rawDelegatedV06
	if err := json.Unmarshal(env.Signed, &r); err != nil {
		return nil, newErr(CategoryRoleMeta, "", "malformed key_mgr body", err)
	}
	if r.MetadataSpecVersion != rootSpecVersion {
		return nil, newErr(CategorySpecVersion, "", "key_mgr spec_version "+r.MetadataSpecVersion+" does not match root "+rootSpecVersion, nil)
	}

	declared := make(map[string]RoleFullKeys, len(r.Delegations))
	for name, d := range r.Delegations {
		keys := make(map[string]Key, len(d.Pubkeys))
		for _, pk := range d.Pubkeys {
			keys[pk] = Key{KeyType: "ed25519", Scheme: "ed25519", KeyVal: pk}
		}
		declared[name] = RoleFullKeys{Keys: keys, Threshold: d.Threshold}
	}
	pkgMgrKeys, ok := declared["pkg_mgr"]
	if !ok {
		return nil, newErr(CategoryRoleMeta, "pkg_mgr", "key_mgr does not declare pkg_mgr", nil)
	}

	spec := SpecV06{version: r.MetadataSpecVersion}
	base := RoleBase{Type: "key_mgr", Version: r.Version, Expires: r.Expiration, SpecVersion: r.MetadataSpecVersion, Spec: spec, Declared: declared}
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
	if err := CheckSignatures(log, "key_mgr", signedBytes, sigs, rootKeyMgrKeys); err != nil {
		return nil, err
	}

	return &KeyMgr{Base: base, PkgMgrKeys: pkgMgrKeys}, nil
}
