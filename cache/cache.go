// Package cache implements the multi-directory package cache model:
// locating extracted packages and tarballs across an ordered list of
// cache directories, picking the first writable one for new
// downloads, and the write-probe/magic-file mechanics that make a
// directory recognizable as a package cache.
package cache

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// magicFile is the positive test for "this directory is a package
// cache", per the cache layout contract.
const magicFile = "urls"

// urlLogFile is the append-only log of resolved package URLs.
const urlLogFile = "urls.txt"

// PackageRef identifies one package well enough to probe cache
// directories for it: a basename (without the tarball extension)
// derived from name-version-build, the tarball's own filename, and
// whatever size/md5 the caller already knows from the channel index.
type PackageRef struct {
	Basename string
	Filename string
	Size     int64
	MD5      string
}

// RecordValidator decides whether an extracted package's on-disk
// repodata_record.json passes the corruption check. The fetch package
// supplies the concrete implementation; cache stays unaware of
// RepodataRecord's shape to avoid an import cycle.
type RecordValidator func(recordPath string) (valid bool, err error)

// Dir is one cache directory.
type Dir struct {
	fs   afero.Fs
	path string

	mu       sync.Mutex
	writable *bool
}

// NewDir wraps path as a cache directory on fs.
func NewDir(fs afero.Fs, path string) *Dir {
	return &Dir{fs: fs, path: path}
}

func (d *Dir) Path() string { return d.path }

func (d *Dir) magicFilePath() string { return filepath.Join(d.path, magicFile) }
func (d *Dir) urlLogPath() string    { return filepath.Join(d.path, urlLogFile) }

// ExtractedDirPath is where pkg would be unpacked under this cache
// directory.
func (d *Dir) ExtractedDirPath(pkg PackageRef) string {
	return filepath.Join(d.path, pkg.Basename)
}

// TarballPath is where pkg's tarball would live under this cache
// directory.
func (d *Dir) TarballPath(pkg PackageRef) string {
	return filepath.Join(d.path, pkg.Filename)
}

func (d *Dir) recordPath(pkg PackageRef) string {
	return filepath.Join(d.ExtractedDirPath(pkg), "info", "repodata_record.json")
}

// HasValidExtractedDir reports whether this directory holds an
// extracted copy of pkg whose record passes validate.
func (d *Dir) HasValidExtractedDir(pkg PackageRef, validate RecordValidator) bool {
	exists, err := afero.Exists(d.fs, d.recordPath(pkg))
	if err != nil || !exists {
		return false
	}
	ok, err := validate(d.recordPath(pkg))
	return err == nil && ok
}

// HasMatchingTarball reports whether this directory holds pkg's
// tarball with a matching size (and md5, when known).
func (d *Dir) HasMatchingTarball(pkg PackageRef) bool {
	info, err := d.fs.Stat(d.TarballPath(pkg))
	if err != nil {
		return false
	}
	if pkg.Size != 0 && info.Size() != pkg.Size {
		return false
	}
	if pkg.MD5 != "" {
		f, err := d.fs.Open(d.TarballPath(pkg))
		if err != nil {
			return false
		}
		defer f.Close()
		h := md5.New()
		if _, err := io.Copy(h, f); err != nil {
			return false
		}
		return hex.EncodeToString(h.Sum(nil)) == pkg.MD5
	}
	return true
}

// RemoveExtractedDir deletes a corrupted or stale extract directory so
// the fetch pipeline can force re-extraction.
func (d *Dir) RemoveExtractedDir(pkg PackageRef) error {
	if err := d.fs.RemoveAll(d.ExtractedDirPath(pkg)); err != nil {
		return errors.Wrapf(err, "removing extract dir for %s", pkg.Basename)
	}
	return nil
}

// Writable checks (and memoizes) whether this directory can be
// written to, per the "first writable path" algorithm: a directory
// that doesn't exist yet is writable if its parent is, since it will
// be auto-created; one that exists is probed by touching the magic
// file.
func (d *Dir) Writable() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.writable != nil {
		return *d.writable
	}
	ok := d.probeWritable()
	d.writable = &ok
	return ok
}

func (d *Dir) probeWritable() bool {
	exists, err := afero.DirExists(d.fs, d.path)
	if err != nil {
		return false
	}
	if !exists {
		// Does not exist yet: ensureMagic will create it, so treat the
		// directory as writable iff creation actually succeeds.
		return d.ensureMagic() == nil
	}
	return d.probeExistingWritable()
}

// probeExistingWritable writes and removes a throwaway probe file
// rather than the real magic file, so a read-only directory that
// happens to already contain "urls" is not falsely reported writable.
func (d *Dir) probeExistingWritable() bool {
	probe := filepath.Join(d.path, fmt.Sprintf(".pkgtrust-write-probe-%d", time.Now().UnixNano()))
	if err := afero.WriteFile(d.fs, probe, []byte{}, 0644); err != nil {
		return false
	}
	_ = d.fs.Remove(probe)
	if ok, _ := afero.Exists(d.fs, d.magicFilePath()); !ok {
		return d.ensureMagic() == nil
	}
	return true
}

// ensureMagic creates the directory (if needed) and touches both the
// positive-test magic file and the URL log, mirroring
// PackageCacheData::create_directory minus the sudo/group-permission
// bit twiddling, which is POSIX-only and orthogonal to cache
// correctness.
func (d *Dir) ensureMagic() error {
	if err := d.fs.MkdirAll(d.path, 0755); err != nil {
		return errors.Wrapf(err, "creating cache directory %s", d.path)
	}
	if ok, _ := afero.Exists(d.fs, d.magicFilePath()); !ok {
		if err := afero.WriteFile(d.fs, d.magicFilePath(), []byte{}, 0644); err != nil {
			return errors.Wrapf(err, "touching magic file in %s", d.path)
		}
	}
	if ok, _ := afero.Exists(d.fs, d.urlLogPath()); !ok {
		if err := afero.WriteFile(d.fs, d.urlLogPath(), []byte{}, 0644); err != nil {
			return errors.Wrapf(err, "touching url log in %s", d.path)
		}
	}
	return nil
}

// AppendURL appends url to this directory's url log. Writes are
// serialized per directory by d.mu, matching the one-mutex-per-cache-
// directory policy.
func (d *Dir) AppendURL(url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ensureMagic(); err != nil {
		return err
	}
	existing, err := afero.ReadFile(d.fs, d.urlLogPath())
	if err != nil {
		return errors.Wrapf(err, "reading url log in %s", d.path)
	}
	var buf bytes.Buffer
	buf.Write(existing)
	if len(existing) > 0 && !bytes.HasSuffix(existing, []byte("\n")) {
		buf.WriteByte('\n')
	}
	buf.WriteString(url)
	buf.WriteByte('\n')
	if err := afero.WriteFile(d.fs, d.urlLogPath(), buf.Bytes(), 0644); err != nil {
		return errors.Wrapf(err, "appending to url log in %s", d.path)
	}
	return nil
}

// MultiCache holds an ordered list of cache directories and answers
// the three cache queries the fetch pipeline needs. The extracted-dir
// and tarball queries stat or read the filesystem live on every call,
// so a write by this process or any other is visible to the very next
// probe. Only the per-directory writability result is memoized (see
// Dir.Writable).
type MultiCache struct {
	dirs []*Dir
}

// NewMultiCache wraps an ordered list of directory paths.
func NewMultiCache(fs afero.Fs, paths []string) *MultiCache {
	dirs := make([]*Dir, len(paths))
	for i, p := range paths {
		dirs[i] = NewDir(fs, p)
	}
	return &MultiCache{dirs: dirs}
}

// GetExtractedDirPath returns the first directory holding a valid
// extracted copy of pkg.
func (mc *MultiCache) GetExtractedDirPath(pkg PackageRef, validate RecordValidator) (string, bool) {
	for _, d := range mc.dirs {
		if d.HasValidExtractedDir(pkg, validate) {
			return d.ExtractedDirPath(pkg), true
		}
	}
	return "", false
}

// GetTarballPath returns the first directory holding a tarball that
// matches pkg.
func (mc *MultiCache) GetTarballPath(pkg PackageRef) (string, bool) {
	for _, d := range mc.dirs {
		if d.HasMatchingTarball(pkg) {
			return d.TarballPath(pkg), true
		}
	}
	return "", false
}

// FirstWritableCache returns the first directory that exists (or can
// be created) and passes the write probe, auto-creating it and its
// magic file on demand. The probe-then-create sequence is guarded by
// the returned Dir's own mutex, so concurrent callers racing to adopt
// the same empty directory each get a consistently-initialized result
// rather than a half-created one.
func (mc *MultiCache) FirstWritableCache() (*Dir, error) {
	for _, d := range mc.dirs {
		if d.Writable() {
			return d, nil
		}
	}
	return nil, errors.New("did not find a writable package cache directory")
}
