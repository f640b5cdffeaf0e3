package fetch

import (
	"context"
	"encoding/json"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/mamba-go/pkgtrust/cache"
)

// Downloader is the external collaborator for tarball retrieval. Real
// transport (mirrors, retries, proxies) is out of scope here; this
// seam exists so Fetcher can be tested without a network.
type Downloader interface {
	Download(ctx context.Context, target DownloadTarget, destPath string) error
}

// Extractor is the external collaborator for archive extraction.
// Implementations may run in-process or shell out to a child process;
// the pipeline only needs a destination directory populated or an
// error.
type Extractor interface {
	Extract(ctx context.Context, tarballPath, destDir string) error
}

// ExtractSemaphore bounds how many extractions run concurrently
// across the whole process, per the "serialized across packages by a
// global counting semaphore" resource rule. A nil semaphore imposes
// no bound.
type ExtractSemaphore chan struct{}

// NewExtractSemaphore creates a semaphore with the given concurrency
// bound. A bound <= 0 means unbounded.
func NewExtractSemaphore(bound int) ExtractSemaphore {
	if bound <= 0 {
		return nil
	}
	return make(ExtractSemaphore, bound)
}

func (s ExtractSemaphore) acquire(ctx context.Context) error {
	if s == nil {
		return nil
	}
	select {
	case s <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s ExtractSemaphore) release() {
	if s == nil {
		return
	}
	<-s
}

// State is the needs-download/needs-extract decision for one package,
// computed by DecideState at the start of each Fetch against the
// current cache state.
type State struct {
	NeedsDownload bool
	NeedsExtract  bool

	ExtractedDir string
	TarballPath  string
}

// recordValidator adapts fetch's own corruption check to the function
// shape cache.MultiCache expects, without cache importing fetch.
func recordValidator(fs afero.Fs) cache.RecordValidator {
	return func(recordPath string) (bool, error) {
		data, err := afero.ReadFile(fs, recordPath)
		if err != nil {
			return false, err
		}
		rec, err := LoadRepodataRecord(data)
		if err != nil {
			return false, err
		}
		return !rec.IsCorrupted(), nil
	}
}

// DecideState runs the State decision table against mc for pkg.
func DecideState(fs afero.Fs, mc *cache.MultiCache, pkg cache.PackageRef) State {
	if dir, ok := mc.GetExtractedDirPath(pkg, recordValidator(fs)); ok {
		return State{NeedsDownload: false, NeedsExtract: false, ExtractedDir: dir}
	}
	if tb, ok := mc.GetTarballPath(pkg); ok {
		return State{NeedsDownload: false, NeedsExtract: true, TarballPath: tb}
	}
	return State{NeedsDownload: true, NeedsExtract: true}
}

// Fetcher runs the full per-package pipeline: download, validate,
// extract, write the record, append the URL log.
type Fetcher struct {
	fs         afero.Fs
	cache      *cache.MultiCache
	downloader Downloader
	extractor  Extractor
	semaphore  ExtractSemaphore
}

// NewFetcher wires a Fetcher. sem may be nil for unbounded extraction
// concurrency (tests, single-package runs).
func NewFetcher(fs afero.Fs, mc *cache.MultiCache, dl Downloader, ex Extractor, sem ExtractSemaphore) *Fetcher {
	return &Fetcher{fs: fs, cache: mc, downloader: dl, extractor: ex, semaphore: sem}
}

// Fetch runs the pipeline for one package and returns the path to its
// extracted directory on success.
func (f *Fetcher) Fetch(ctx context.Context, info PackageInfo, ref cache.PackageRef) (string, error) {
	state := DecideState(f.fs, f.cache, ref)
	if !state.NeedsDownload && !state.NeedsExtract {
		return state.ExtractedDir, nil
	}

	dir, err := f.cache.FirstWritableCache()
	if err != nil {
		return "", errors.Wrap(err, "selecting a writable cache directory")
	}

	tarballPath := state.TarballPath
	var resolvedURL string
	if state.NeedsDownload {
		tarballPath = dir.TarballPath(ref)
		target := ResolveDownloadTarget(info)
		resolvedURL = target.URL
		if err := f.downloader.Download(ctx, target, tarballPath); err != nil {
			return "", errors.Wrapf(err, "downloading %s", ref.Filename)
		}
		if err := ValidateTarball(f.fs, tarballPath, info.Size, info.SHA256, info.MD5); err != nil {
			return "", err
		}
	}

	extractDir := dir.ExtractedDirPath(ref)
	if err := f.extract(ctx, tarballPath, extractDir); err != nil {
		return "", err
	}

	if err := f.writeRecord(info, tarballPath, extractDir); err != nil {
		return "", err
	}

	if resolvedURL != "" {
		if err := dir.AppendURL(resolvedURL); err != nil {
			return "", errors.Wrap(err, "appending url log")
		}
	}

	return extractDir, nil
}

func (f *Fetcher) extract(ctx context.Context, tarballPath, destDir string) error {
	if err := f.semaphore.acquire(ctx); err != nil {
		return errors.Wrap(err, "acquiring extraction slot")
	}
	defer f.semaphore.release()

	if err := f.fs.RemoveAll(destDir); err != nil {
		return errors.Wrapf(err, "clearing stale extract dir %s", destDir)
	}
	if err := f.extractor.Extract(ctx, tarballPath, destDir); err != nil {
		return errors.Wrapf(err, "extracting %s", tarballPath)
	}
	return nil
}

func (f *Fetcher) writeRecord(info PackageInfo, tarballPath, extractDir string) error {
	indexPath := filepath.Join(extractDir, "info", "index.json")
	var indexJSON map[string]interface{}
	if data, err := afero.ReadFile(f.fs, indexPath); err == nil {
		if jerr := json.Unmarshal(data, &indexJSON); jerr != nil {
			return errors.Wrapf(jerr, "parsing %s", indexPath)
		}
	}

	md5Hex, sha256Hex, size, err := HashTarball(f.fs, tarballPath)
	if err != nil {
		return err
	}

	record, err := BuildRecord(info, indexJSON, size, md5Hex, sha256Hex)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling repodata_record.json")
	}
	recordPath := filepath.Join(extractDir, "info", "repodata_record.json")
	if err := afero.WriteFile(f.fs, recordPath, out, 0644); err != nil {
		return errors.Wrapf(err, "writing %s", recordPath)
	}
	return nil
}
