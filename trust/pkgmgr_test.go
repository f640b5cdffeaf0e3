package trust

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPkgMgr(t *testing.T, pub []byte) *PkgMgr {
	t.Helper()
	return &PkgMgr{
		Base: RoleBase{Type: "pkg_mgr", Spec: SpecV06{version: "0.6.0"}},
		selfKeys: RoleFullKeys{
			Keys:      map[string]Key{HexEncode(pub): {KeyType: "ed25519", Scheme: "ed25519", KeyVal: HexEncode(pub)}},
			Threshold: 1,
		},
	}
}

func TestPkgMgrVerifyIndexFailsOnUnsignedPackage(t *testing.T) {
	pubX, privX, err := GenerateEd25519Keypair()
	require.NoError(t, err)
	pkgMgr := newTestPkgMgr(t, pubX)

	signedMeta := json.RawMessage(`{"name":"pkg","version":"1.0","build":"0"}`)
	canon, err := pkgMgr.Base.Spec.Canonicalize(signedMeta)
	require.NoError(t, err)
	sig, err := Sign(canon, privX)
	require.NoError(t, err)

	repodata := struct {
		Packages   map[string]json.RawMessage           `json:"packages"`
		Signatures map[string]map[string]PackageSignature `json:"signatures"`
	}{
		Packages: map[string]json.RawMessage{
			"pkg-1.0-0.tar.bz2":      signedMeta,
			"unsigned-1.0-0.tar.bz2": json.RawMessage(`{"name":"unsigned"}`),
		},
		Signatures: map[string]map[string]PackageSignature{
			"pkg-1.0-0.tar.bz2": {HexEncode(pubX): {Signature: HexEncode(sig)}},
		},
	}
	raw, err := json.Marshal(repodata)
	require.NoError(t, err)

	err = pkgMgr.VerifyIndex(raw)
	require.Error(t, err)
	assert.True(t, IsCategory(err, CategoryIndex))
	assert.True(t, IsCategory(err, CategoryPackage))
}

func TestPkgMgrVerifyIndexAllSignedPasses(t *testing.T) {
	pubX, privX, err := GenerateEd25519Keypair()
	require.NoError(t, err)
	pkgMgr := newTestPkgMgr(t, pubX)

	signedMeta := json.RawMessage(`{"name":"pkg","version":"1.0","build":"0"}`)
	canon, err := pkgMgr.Base.Spec.Canonicalize(signedMeta)
	require.NoError(t, err)
	sig, err := Sign(canon, privX)
	require.NoError(t, err)

	repodata := struct {
		Packages   map[string]json.RawMessage           `json:"packages"`
		Signatures map[string]map[string]PackageSignature `json:"signatures"`
	}{
		Packages:   map[string]json.RawMessage{"pkg-1.0-0.tar.bz2": signedMeta},
		Signatures: map[string]map[string]PackageSignature{"pkg-1.0-0.tar.bz2": {HexEncode(pubX): {Signature: HexEncode(sig)}}},
	}
	raw, err := json.Marshal(repodata)
	require.NoError(t, err)

	assert.NoError(t, pkgMgr.VerifyIndex(raw))
}

func TestPkgMgrVerifyPackageEmptySignaturesFails(t *testing.T) {
	pubX, _, err := GenerateEd25519Keypair()
	require.NoError(t, err)
	pkgMgr := newTestPkgMgr(t, pubX)

	err = pkgMgr.VerifyPackage(json.RawMessage(`{}`), map[string]PackageSignature{})
	require.Error(t, err)
	assert.True(t, IsCategory(err, CategorySignatures))
}
