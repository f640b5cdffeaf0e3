package trust

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// RoleFileFetcher is the external collaborator for role-file
// retrieval: given a relative file name under the channel's trust
// metadata path, it returns the bytes if the resource exists. This
// keeps HTTP transport, mirrors and retry policy entirely out of this
// package, per the fetch/transport Non-goal.
type RoleFileFetcher interface {
	FetchIfExists(ctx context.Context, name string) (data []byte, exists bool, err error)
}

// RepoChecker drives the full trust bootstrap: load or bootstrap the
// root of trust, chase the chained root-update sequence, and build
// the index checker the fetch pipeline will call per package.
type RepoChecker struct {
	log       Logger
	fs        afero.Fs
	fetcher   RoleFileFetcher
	baseURL   string
	refPath   string
	cachePath string

	checker     IndexChecker
	rootVersion int
}

// NewRepoChecker wires the orchestrator. fs is the afero filesystem
// used for both the reference directory and the cache; refPath and
// cachePath are directories, not files.
func NewRepoChecker(log Logger, fs afero.Fs, fetcher RoleFileFetcher, baseURL, refPath, cachePath string) *RepoChecker {
	if log == nil {
		log = NopLogger{}
	}
	return &RepoChecker{log: log, fs: fs, fetcher: fetcher, baseURL: baseURL, refPath: refPath, cachePath: cachePath}
}

func (c *RepoChecker) cachedRootPath() string {
	if c.cachePath == "" {
		return ""
	}
	return filepath.Join(c.cachePath, "root.json")
}

func (c *RepoChecker) refRootPath() string {
	return filepath.Join(c.refPath, "root.json")
}

// RootVersion reports the version of the most recently accepted root,
// valid only after GenerateIndexChecker has succeeded.
func (c *RepoChecker) RootVersion() int { return c.rootVersion }

func (c *RepoChecker) initialTrustedRoot() (string, error) {
	cached := c.cachedRootPath()
	if cached != "" {
		if ok, _ := afero.Exists(c.fs, cached); ok {
			c.log.Debugw("using cached root as initial trusted file")
			return cached, nil
		}
	}
	ref := c.refRootPath()
	if ok, _ := afero.Exists(c.fs, ref); !ok {
		return "", newErr(CategoryRoleFile, ref, "initial trusted root not found for "+c.baseURL, nil)
	}
	return ref, nil
}

func (c *RepoChecker) persistNamed(name string, data []byte) error {
	if c.cachePath == "" {
		return nil
	}
	target := filepath.Join(c.cachePath, name)
	if ok, _ := afero.Exists(c.fs, target); ok {
		if err := c.fs.Remove(target); err != nil {
			return newErr(CategoryRoleFile, target, "removing stale cached role file", err)
		}
	}
	if err := afero.WriteFile(c.fs, target, data, 0644); err != nil {
		return newErr(CategoryRoleFile, target, "persisting role file to cache", err)
	}
	return nil
}

func (c *RepoChecker) getRootRole(ctx context.Context, tr *TimeRef) (*RootRole, error) {
	trustedPath, err := c.initialTrustedRoot()
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(c.fs, trustedPath)
	if err != nil {
		return nil, newErr(CategoryRoleFile, trustedPath, "reading initial trusted root", err)
	}
	root, err := ParseRoot(c.log, data)
	if err != nil {
		return nil, err
	}
	if trustedPath != c.cachedRootPath() {
		if err := c.persistNamed("root.json", data); err != nil {
			return nil, err
		}
	}

	for {
		var candidate []byte
		var found bool
		for _, f := range root.PossibleUpdateFiles() {
			b, exists, ferr := c.fetcher.FetchIfExists(ctx, f)
			if ferr != nil {
				return nil, newErr(CategoryFetching, f, "fetching candidate root update", ferr)
			}
			if exists {
				candidate = b
				found = true
				break
			}
		}
		if !found {
			break
		}
		next, err := root.Update(c.log, candidate)
		if err != nil {
			return nil, err
		}
		root = next
		if err := c.persistNamed("root.json", candidate); err != nil {
			return nil, err
		}
	}

	c.rootVersion = root.Base.Version
	if root.Base.Expired(tr) {
		return nil, newErr(CategoryFreeze, "", fmt.Sprintf("possible freeze attack: root expired at %s", root.Base.Expires), nil)
	}
	return root, nil
}

// GenerateIndexChecker runs the whole trust bootstrap exactly once; a
// second call is a cheap no-op. It must be called before VerifyIndex
// or VerifyPackage do anything but log-and-return.
func (c *RepoChecker) GenerateIndexChecker(ctx context.Context) error {
	if c.checker != nil {
		return nil
	}
	tr := NewTimeRef(nil)
	root, err := c.getRootRole(ctx, tr)
	if err != nil {
		return err
	}

	switch root.Base.Spec.(type) {
	case SpecV06:
		checker, err := c.buildV06IndexChecker(ctx, root, tr)
		if err != nil {
			return err
		}
		c.checker = checker
	case SpecV1:
		c.checker = NullIndexChecker{Log: c.log}
	default:
		return newErr(CategorySpecVersion, "", "root has no known profile", nil)
	}
	c.log.Infow("index checker successfully generated", "base_url", c.baseURL)
	return nil
}

func (c *RepoChecker) fetchOrCached(ctx context.Context, name string) ([]byte, error) {
	data, exists, err := c.fetcher.FetchIfExists(ctx, name)
	if err == nil && exists {
		return data, nil
	}
	if c.cachePath != "" {
		cachedPath := filepath.Join(c.cachePath, name)
		if ok, _ := afero.Exists(c.fs, cachedPath); ok {
			if b, rerr := afero.ReadFile(c.fs, cachedPath); rerr == nil {
				c.log.Warnw("falling back to cached role file", "name", name)
				return b, nil
			}
		}
	}
	if err != nil {
		return nil, newErr(CategoryFetching, name, "fetching role file", err)
	}
	return nil, newErr(CategoryFetching, name, "role file not found and no cached fallback", nil)
}

func (c *RepoChecker) buildV06IndexChecker(ctx context.Context, root *RootRole, tr *TimeRef) (IndexChecker, error) {
	keyMgrKeys, ok := root.Base.Declared["key_mgr"]
	if !ok {
		return nil, newErr(CategoryRoleMeta, "key_mgr", "root does not declare key_mgr", nil)
	}

	keyMgrData, err := c.fetchOrCached(ctx, "key_mgr.json")
	if err != nil {
		return nil, err
	}
	keyMgr, err := ParseKeyMgr(c.log, keyMgrData, root.Base.SpecVersion, keyMgrKeys)
	if err != nil {
		return nil, err
	}
	if keyMgr.Base.Expired(tr) {
		return nil, newErr(CategoryFreeze, "key_mgr", fmt.Sprintf("possible freeze attack: key_mgr expired at %s", keyMgr.Base.Expires), nil)
	}
	if err := c.persistNamed("key_mgr.json", keyMgrData); err != nil {
		return nil, err
	}

	pkgMgrData, err := c.fetchOrCached(ctx, "pkg_mgr.json")
	if err != nil {
		return nil, err
	}
	pkgMgr, err := ParsePkgMgr(c.log, pkgMgrData, root.Base.SpecVersion, keyMgr.PkgMgrKeys)
	if err != nil {
		return nil, err
	}
	if pkgMgr.Base.Expired(tr) {
		return nil, newErr(CategoryFreeze, "pkg_mgr", fmt.Sprintf("possible freeze attack: pkg_mgr expired at %s", pkgMgr.Base.Expires), nil)
	}
	if err := c.persistNamed("pkg_mgr.json", pkgMgrData); err != nil {
		return nil, err
	}

	return pkgMgr, nil
}

// VerifyIndex delegates to the generated checker. Calling it before
// GenerateIndexChecker logs and returns nil rather than crashing; the
// orchestrator's contract is that the caller generates the checker
// first.
func (c *RepoChecker) VerifyIndex(repodataRaw []byte) error {
	if c.checker == nil {
		c.log.Errorw("index checker not valid; call GenerateIndexChecker first")
		return nil
	}
	return c.checker.VerifyIndex(repodataRaw)
}

// VerifyPackage delegates to the generated checker, same no-op
// contract as VerifyIndex.
func (c *RepoChecker) VerifyPackage(signedMeta json.RawMessage, sigs map[string]PackageSignature) error {
	if c.checker == nil {
		c.log.Errorw("index checker not valid; call GenerateIndexChecker first")
		return nil
	}
	return c.checker.VerifyPackage(signedMeta, sigs)
}
