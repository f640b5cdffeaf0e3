package trust

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type v06RootFixture struct {
	Type                string              `json:"type"`
	Version             int                 `json:"version"`
	MetadataSpecVersion string              `json:"metadata_spec_version"`
	Timestamp           string              `json:"timestamp"`
	Expiration          string              `json:"expiration"`
	Delegations         map[string]v06Deleg `json:"delegations"`
}

type v06Deleg struct {
	Pubkeys   []string `json:"pubkeys"`
	Threshold int      `json:"threshold"`
}

func buildV06RootEnvelope(t *testing.T, fixture v06RootFixture, signers map[string][]byte) []byte {
	t.Helper()
	signedBytes, err := json.Marshal(fixture)
	require.NoError(t, err)
	spec := SpecV06{version: fixture.MetadataSpecVersion}
	canon, err := spec.Canonicalize(signedBytes)
	require.NoError(t, err)

	sigs := map[string]PackageSignature{}
	for keyid, priv := range signers {
		sig, err := Sign(canon, priv)
		require.NoError(t, err)
		sigs[keyid] = PackageSignature{Signature: HexEncode(sig)}
	}
	env := struct {
		Signed     json.RawMessage           `json:"signed"`
		Signatures map[string]PackageSignature `json:"signatures"`
	}{Signed: signedBytes, Signatures: sigs}
	out, err := json.Marshal(env)
	require.NoError(t, err)
	return out
}

func baseV06Fixture(version int, rootPub, keyMgrPub string) v06RootFixture {
	return v06RootFixture{
		Type:                "root",
		Version:             version,
		MetadataSpecVersion: "0.6.0",
		Timestamp:           "2020-01-01T00:00:00Z",
		Expiration:          "2030-01-01T00:00:00Z",
		Delegations: map[string]v06Deleg{
			"root":    {Pubkeys: []string{rootPub}, Threshold: 1},
			"key_mgr": {Pubkeys: []string{keyMgrPub}, Threshold: 1},
		},
	}
}

func TestRootChainHappyPath(t *testing.T) {
	pubA, privA, err := GenerateEd25519Keypair()
	require.NoError(t, err)
	pubB, _, err := GenerateEd25519Keypair()
	require.NoError(t, err)
	pubKM, _, err := GenerateEd25519Keypair()
	require.NoError(t, err)

	f1 := baseV06Fixture(1, HexEncode(pubA), HexEncode(pubKM))
	raw1 := buildV06RootEnvelope(t, f1, map[string][]byte{HexEncode(pubA): privA})
	root, err := ParseRoot(NopLogger{}, raw1)
	require.NoError(t, err)
	assert.Equal(t, 1, root.Base.Version)

	f2 := baseV06Fixture(2, HexEncode(pubB), HexEncode(pubKM))
	raw2 := buildV06RootEnvelope(t, f2, map[string][]byte{HexEncode(pubA): privA})
	updated, err := root.Update(NopLogger{}, raw2)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Base.Version)
	assert.Contains(t, updated.SelfKeys.Keys, HexEncode(pubB))
}

func TestRootUpdateRollbackRejected(t *testing.T) {
	pubA, privA, err := GenerateEd25519Keypair()
	require.NoError(t, err)
	pubB, privB, err := GenerateEd25519Keypair()
	require.NoError(t, err)
	pubKM, _, err := GenerateEd25519Keypair()
	require.NoError(t, err)

	f1 := baseV06Fixture(1, HexEncode(pubA), HexEncode(pubKM))
	raw1 := buildV06RootEnvelope(t, f1, map[string][]byte{HexEncode(pubA): privA})
	root, err := ParseRoot(NopLogger{}, raw1)
	require.NoError(t, err)

	f2 := baseV06Fixture(2, HexEncode(pubB), HexEncode(pubKM))
	raw2 := buildV06RootEnvelope(t, f2, map[string][]byte{HexEncode(pubA): privA})
	accepted, err := root.Update(NopLogger{}, raw2)
	require.NoError(t, err)

	// a "3.root.json" whose signed.version == 1 must fail with RollbackError
	f3 := baseV06Fixture(1, HexEncode(pubB), HexEncode(pubKM))
	raw3 := buildV06RootEnvelope(t, f3, map[string][]byte{HexEncode(pubB): privB})
	_, err = accepted.Update(NopLogger{}, raw3)
	require.Error(t, err)
	assert.True(t, IsCategory(err, CategoryRollback))
}

func TestRootUpdateVersionGapIsRoleMetadataError(t *testing.T) {
	pubA, privA, err := GenerateEd25519Keypair()
	require.NoError(t, err)
	pubKM, _, err := GenerateEd25519Keypair()
	require.NoError(t, err)

	f1 := baseV06Fixture(1, HexEncode(pubA), HexEncode(pubKM))
	raw1 := buildV06RootEnvelope(t, f1, map[string][]byte{HexEncode(pubA): privA})
	root, err := ParseRoot(NopLogger{}, raw1)
	require.NoError(t, err)

	f3 := baseV06Fixture(3, HexEncode(pubA), HexEncode(pubKM))
	raw3 := buildV06RootEnvelope(t, f3, map[string][]byte{HexEncode(pubA): privA})
	_, err = root.Update(NopLogger{}, raw3)
	require.Error(t, err)
	assert.True(t, IsCategory(err, CategoryRoleMeta))
}

func TestRootChainAcceptsNextMinorUpgrade(t *testing.T) {
	pubA, privA, err := GenerateEd25519Keypair()
	require.NoError(t, err)
	pubB, _, err := GenerateEd25519Keypair()
	require.NoError(t, err)
	pubKM, _, err := GenerateEd25519Keypair()
	require.NoError(t, err)

	f1 := baseV06Fixture(1, HexEncode(pubA), HexEncode(pubKM))
	raw1 := buildV06RootEnvelope(t, f1, map[string][]byte{HexEncode(pubA): privA})
	root, err := ParseRoot(NopLogger{}, raw1)
	require.NoError(t, err)

	f2 := f1
	f2.Version = 2
	f2.MetadataSpecVersion = "0.7.0"
	f2.Delegations = map[string]v06Deleg{
		"root":    {Pubkeys: []string{HexEncode(pubB)}, Threshold: 1},
		"key_mgr": {Pubkeys: []string{HexEncode(pubKM)}, Threshold: 1},
	}
	raw2 := buildV06RootEnvelope(t, f2, map[string][]byte{HexEncode(pubA): privA})

	updated, err := root.Update(NopLogger{}, raw2)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Base.Version)
	assert.Equal(t, "0.7.0", updated.Base.SpecVersion)

	// a jump past the immediate next minor (0.6 -> 0.8) must not be
	// treated as a valid upgrade.
	f3 := f1
	f3.Version = 2
	f3.MetadataSpecVersion = "0.8.0"
	raw3 := buildV06RootEnvelope(t, f3, map[string][]byte{HexEncode(pubA): privA})
	_, err = root.Update(NopLogger{}, raw3)
	require.Error(t, err)
	assert.True(t, IsCategory(err, CategorySpecVersion))
}

func TestPossibleUpdateFilesOrdering(t *testing.T) {
	pubA, privA, err := GenerateEd25519Keypair()
	require.NoError(t, err)
	pubKM, _, err := GenerateEd25519Keypair()
	require.NoError(t, err)

	f1 := baseV06Fixture(1, HexEncode(pubA), HexEncode(pubKM))
	raw1 := buildV06RootEnvelope(t, f1, map[string][]byte{HexEncode(pubA): privA})
	root, err := ParseRoot(NopLogger{}, raw1)
	require.NoError(t, err)

	files := root.PossibleUpdateFiles()
	require.Len(t, files, 4)
	assert.Equal(t, "2.sv1.root.json", files[0])
	assert.Equal(t, "2.sv0.7.root.json", files[1])
	assert.Equal(t, "2.sv0.6.root.json", files[2])
	assert.Equal(t, "2.root.json", files[3])
}
