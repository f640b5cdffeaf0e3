package fetch

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// ValidationFailure names which check failed, mirroring the three
// named error kinds the pipeline distinguishes for diagnostics.
type ValidationFailure string

const (
	SizeError   ValidationFailure = "SIZE_ERROR"
	SHA256Error ValidationFailure = "SHA256_ERROR"
	MD5Error    ValidationFailure = "MD5SUM_ERROR"
)

// ValidationError reports a failed tarball validation. The tarball
// itself is left on disk; cleanup is the transport layer's concern.
type ValidationError struct {
	Kind     ValidationFailure
	Path     string
	Expected string
	Actual   string
}

func (e *ValidationError) Error() string {
	return string(e.Kind) + ": " + e.Path + " expected " + e.Expected + " got " + e.Actual
}

// ValidateTarball runs the size -> sha256 -> md5 priority check
// against a downloaded tarball. Each check only runs if the
// corresponding expectation is known (nonzero size, non-empty
// checksum); the first populated check that fails wins, and an
// unvalidatable tarball (nothing known to compare) passes by default.
func ValidateTarball(fs afero.Fs, path string, expectedSize int64, expectedSHA256, expectedMD5 string) error {
	info, err := fs.Stat(path)
	if err != nil {
		return errors.Wrapf(err, "stat tarball %s", path)
	}

	if expectedSize != 0 && info.Size() != expectedSize {
		return &ValidationError{Kind: SizeError, Path: path, Expected: strconv.FormatInt(expectedSize, 10), Actual: strconv.FormatInt(info.Size(), 10)}
	}

	if expectedSHA256 != "" {
		actual, err := hashFile(fs, path, sha256.New())
		if err != nil {
			return err
		}
		if actual != expectedSHA256 {
			return &ValidationError{Kind: SHA256Error, Path: path, Expected: expectedSHA256, Actual: actual}
		}
		return nil
	}

	if expectedMD5 != "" {
		actual, err := hashFile(fs, path, md5.New())
		if err != nil {
			return err
		}
		if actual != expectedMD5 {
			return &ValidationError{Kind: MD5Error, Path: path, Expected: expectedMD5, Actual: actual}
		}
		return nil
	}

	return nil
}

type hasher interface {
	io.Writer
	Sum(b []byte) []byte
}

func hashFile(fs afero.Fs, path string, h hasher) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, "opening %s for hashing", path)
	}
	defer f.Close()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Wrapf(err, "hashing %s", path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashTarball computes both md5 and sha256 for a tarball in a single
// pass, used to fill in a record's checksums when neither source
// supplied them.
func HashTarball(fs afero.Fs, path string) (md5Hex, sha256Hex string, size int64, err error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", "", 0, errors.Wrapf(err, "opening %s for hashing", path)
	}
	defer f.Close()

	md5h := md5.New()
	sha256h := sha256.New()
	n, err := io.Copy(io.MultiWriter(md5h, sha256h), f)
	if err != nil {
		return "", "", 0, errors.Wrapf(err, "hashing %s", path)
	}
	return hex.EncodeToString(md5h.Sum(nil)), hex.EncodeToString(sha256h.Sum(nil)), n, nil
}
