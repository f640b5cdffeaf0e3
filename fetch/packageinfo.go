// Package fetch implements the per-package pipeline: decide what work
// a package needs, download it, validate the tarball, extract it, and
// write its repodata_record.json, delegating cache placement to
// cache.MultiCache. The pipeline does not call trust.IndexChecker;
// no signature verification happens inside this package.
package fetch

// InitializedKey is the sentinel defaulted-keys entry that marks a
// PackageInfo as having been built through an approved factory rather
// than assembled ad hoc. Its absence on a write path is a programmer
// error, not a data error, and is reported as a LogicError.
const InitializedKey = "_initialized"

// PackageInfo is a package identity plus whatever metadata is known
// about it at the point a fetch is requested. Fields populated with
// defaults rather than read from an authoritative source are recorded
// in DefaultedKeys, which BuildRecord uses to decide which fields an
// index.json merge is allowed to overwrite.
type PackageInfo struct {
	Name          string
	Version       string
	Build         string
	BuildNumber   int64
	Filename      string
	Channel       string
	Subdir        string
	PackageURL    string
	Size          int64
	SHA256        string
	MD5           string
	Depends       []string
	Constrains    []string
	TrackFeatures []string
	License       string
	Timestamp     int64

	DefaultedKeys map[string]bool
}

func (p PackageInfo) isDefaulted(key string) bool {
	return p.DefaultedKeys != nil && p.DefaultedKeys[key]
}

// NewPackageInfo is the approved factory for a PackageInfo built from
// fully-known fields (e.g. parsed out of a channel's repodata.json).
// It stamps the _initialized sentinel so downstream record-writing
// knows this value went through a real construction path.
func NewPackageInfo(name, version, build string, buildNumber int64, filename, channel, subdir string) PackageInfo {
	return PackageInfo{
		Name:          name,
		Version:       version,
		Build:         build,
		BuildNumber:   buildNumber,
		Filename:      filename,
		Channel:       channel,
		Subdir:        subdir,
		DefaultedKeys: map[string]bool{InitializedKey: true},
	}
}

// NewPackageInfoFromURL builds a PackageInfo from nothing but a
// user-supplied tarball URL. Most fields cannot be derived from the
// URL alone, so they're left at stub defaults and recorded as such —
// but deliberately without the _initialized sentinel, since a bare
// URL never goes through channel-index validation. BuildRecord treats
// that absence as a construction-path bug and refuses to write a
// record for it until the caller backfills metadata from the
// package's own info/index.json and re-marks it initialized.
func NewPackageInfoFromURL(url, filename string) PackageInfo {
	return PackageInfo{
		Filename:   filename,
		PackageURL: url,
		DefaultedKeys: map[string]bool{
			"license":      true,
			"timestamp":    true,
			"build_number": true,
			"depends":      true,
			"constrains":   true,
		},
	}
}

// MarkInitialized stamps the sentinel once the caller has backfilled
// a URL-derived PackageInfo with real metadata (e.g. from the
// tarball's own info/index.json).
func (p PackageInfo) MarkInitialized() PackageInfo {
	out := p
	out.DefaultedKeys = make(map[string]bool, len(p.DefaultedKeys)+1)
	for k, v := range p.DefaultedKeys {
		out.DefaultedKeys[k] = v
	}
	out.DefaultedKeys[InitializedKey] = true
	return out
}
