package trust

import "encoding/json"

// PkgMgr is signed by the key_mgr-declared pkg_mgr keys and is the
// terminal authority for package-level signature checks. The same
// key bundle that verifies PkgMgr's own signature is reused to verify
// every package entry inside a repodata index — the spec gives
// pkg_mgr no further delegation of its own.
type PkgMgr struct {
	Base     RoleBase
	selfKeys RoleFullKeys
}

// ParsePkgMgr verifies the pkg_mgr file against the keys key_mgr
// declared for it.
func ParsePkgMgr(log Logger, data []byte, rootSpecVersion string, pkgMgrKeys RoleFullKeys) (*PkgMgr, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, newErr(CategoryRoleFile, "", "pkg_mgr file is not a signed envelope", err)
	}
	var r rawDelegatedV06
	if err := json.Unmarshal(env.Signed, &r); err != nil {
		return nil, newErr(CategoryRoleMeta, "", "malformed pkg_mgr body", err)
	}
	if r.MetadataSpecVersion != rootSpecVersion {
		return nil, newErr(CategorySpecVersion, "", "pkg_mgr spec_version "+r.MetadataSpecVersion+" does not match root "+rootSpecVersion, nil)
	}

	spec := SpecV06{version: r.MetadataSpecVersion}
	base := RoleBase{Type: "pkg_mgr", Version: r.Version, Expires: r.Expiration, SpecVersion: r.MetadataSpecVersion, Spec: spec}
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
	if err := CheckSignatures(log, "pkg_mgr", signedBytes, sigs, pkgMgrKeys); err != nil {
		return nil, err
	}

	return &PkgMgr{Base: base, selfKeys: pkgMgrKeys}, nil
}

type rawRepodataV06 struct {
	Packages   map[string]json.RawMessage             `json:"packages"`
	Signatures map[string]map[string]PackageSignature `json:"signatures"`
}

// VerifyIndex checks every package entry in a v0.6 repodata file
// against the pkg_mgr keyset. A package with no signatures entry, or
// one that falls short of threshold, fails the whole index with
// PackageError wrapped in IndexError.
func (p *PkgMgr) VerifyIndex(repodataRaw []byte) error {
	var repo rawRepodataV06
	if err := json.Unmarshal(repodataRaw, &repo); err != nil {
		return newErr(CategoryIndex, "", "malformed repodata", err)
	}
	for filename, meta := range repo.Packages {
		sigEntries, ok := repo.Signatures[filename]
		if !ok {
			pkgErr := newErr(CategoryPackage, filename, "no signatures entry for package", nil)
			return newErr(CategoryIndex, filename, "package-level verification failed", pkgErr)
		}
		if err := p.verifyPackageMeta(filename, meta, sigEntries); err != nil {
			return newErr(CategoryIndex, filename, "package-level verification failed", err)
		}
	}
	return nil
}

func (p *PkgMgr) verifyPackageMeta(artifact string, meta json.RawMessage, sigEntries map[string]PackageSignature) error {
	signedBytes, err := p.Base.Spec.Canonicalize(meta)
	if err != nil {
		return newErr(CategoryPackage, artifact, "canonicalizing package metadata", err)
	}
	sigs := make([]RoleSignature, 0, len(sigEntries))
	for keyid, e := range sigEntries {
		sigs = append(sigs, RoleSignature{KeyID: keyid, Sig: e.Signature, PGPTrailer: e.OtherHeaders})
	}
	if err := CheckSignatures(nil, "package:"+artifact, signedBytes, sigs, p.selfKeys); err != nil {
		return newErr(CategoryPackage, artifact, "signature threshold not met", err)
	}
	return nil
}

// VerifyPackage checks a single package's signed metadata blob
// against an explicit signatures map, for callers that already hold
// one package's data outside a full repodata file.
func (p *PkgMgr) VerifyPackage(signedMeta json.RawMessage, sigs map[string]PackageSignature) error {
	if len(sigs) == 0 {
		return newErr(CategorySignatures, "", "package signatures are empty", nil)
	}
	return p.verifyPackageMeta("", signedMeta, sigs)
}
