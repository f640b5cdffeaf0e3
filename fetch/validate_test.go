package fetch

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTarballSizeMismatch(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/cache/pkg.tar.bz2", make([]byte, 5), 0644))

	err := ValidateTarball(fs, "/cache/pkg.tar.bz2", 10, "", "")
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, SizeError, verr.Kind)
}

func TestValidateTarballSHA256MismatchTakesPriorityOverMD5(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/cache/pkg.tar.bz2", []byte("hello"), 0644))

	err := ValidateTarball(fs, "/cache/pkg.tar.bz2", 0, "deadbeef", "5d41402abc4b2a76b9719d911017c592")
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, SHA256Error, verr.Kind)
}

func TestValidateTarballMD5Mismatch(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/cache/pkg.tar.bz2", []byte("hello"), 0644))

	err := ValidateTarball(fs, "/cache/pkg.tar.bz2", 0, "", "deadbeef")
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, MD5Error, verr.Kind)
}

func TestValidateTarballPassesWhenNothingToCompare(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/cache/pkg.tar.bz2", []byte("hello"), 0644))

	assert.NoError(t, ValidateTarball(fs, "/cache/pkg.tar.bz2", 0, "", ""))
}

func TestHashTarball(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/cache/pkg.tar.bz2", []byte("hello"), 0644))

	md5Hex, sha256Hex, size, err := HashTarball(fs, "/cache/pkg.tar.bz2")
	require.NoError(t, err)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", md5Hex)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", sha256Hex)
	assert.EqualValues(t, 5, size)
}
