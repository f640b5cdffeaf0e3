package fetch

import (
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
)

// RepodataRecord is the on-disk canonical record for one extracted
// package: a strict superset of PackageInfo's fields, stored as a
// schemaless map (mirroring how the reference implementation treats
// repodata_record.json as JSON-merge rather than a fixed struct) so
// that arbitrary channel-supplied extension keys round-trip
// untouched.
type RepodataRecord map[string]interface{}

// IsCorrupted reports the "all three stub defaults present at once"
// corruption signature: a record written by an earlier buggy
// extraction, which the fetch pipeline then heals by re-extracting. A record with a zero timestamp but a real license is a
// legitimate epoch-0 legacy package, not corruption.
func (r RepodataRecord) IsCorrupted() bool {
	ts, _ := r["timestamp"].(float64)
	license, _ := r["license"].(string)
	buildNumber, _ := r["build_number"].(float64)
	return ts == 0 && license == "" && buildNumber == 0
}

// LoadRepodataRecord parses a repodata_record.json's bytes.
func LoadRepodataRecord(data []byte) (RepodataRecord, error) {
	var r RepodataRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrap(err, "parsing repodata_record.json")
	}
	return r, nil
}

// toMap serializes a PackageInfo into the same map shape a
// RepodataRecord uses, so BuildRecord can merge it against
// info/index.json key-by-key.
func (p PackageInfo) toMap() map[string]interface{} {
	m := map[string]interface{}{
		"name":         p.Name,
		"version":      p.Version,
		"build":        p.Build,
		"build_number": p.BuildNumber,
		"fn":           p.Filename,
		"channel":      p.Channel,
		"subdir":       p.Subdir,
		"url":          p.PackageURL,
		"size":         p.Size,
		"sha256":       p.SHA256,
		"md5":          p.MD5,
		"license":      p.License,
		"timestamp":    p.Timestamp,
		"depends":      stringsOrEmpty(p.Depends),
		"constrains":   stringsOrEmpty(p.Constrains),
	}
	if len(p.TrackFeatures) > 0 {
		m["track_features"] = p.TrackFeatures
	}
	return m
}

func stringsOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// BuildRecord produces the repodata_record.json content for a freshly
// extracted package. indexJSON is the package's own info/index.json,
// already parsed; tarballSize/tarballMD5/tarballSHA256 are computed
// from the tarball by HashTarball when the record is written.
//
// Merge rule: an index.json key overwrites the PackageInfo-derived
// value only when PackageInfo had that key in DefaultedKeys — i.e. a
// channel-patched, deliberately-empty depends array is never clobbered
// by the tarball's own (possibly stale) index.json, while a
// URL-derived stub field is filled in from the authoritative source.
// index.json keys that are not in DefaultedKeys are not copied, including
// keys PackageInfo does not carry at all (such as noarch).
func BuildRecord(info PackageInfo, indexJSON map[string]interface{}, tarballSize int64, tarballMD5, tarballSHA256 string) (RepodataRecord, error) {
	if !info.isDefaulted(InitializedKey) {
		return nil, errors.New("logic error: PackageInfo was not built through an approved factory")
	}

	record := info.toMap()
	keys := sortedKeys(indexJSON)
	for _, k := range keys {
		if info.isDefaulted(indexJSONKeyToInfoKey(k)) {
			record[k] = indexJSON[k]
		}
	}

	if depends, ok := record["depends"].([]string); ok {
		if depends == nil {
			record["depends"] = []string{}
		}
	}
	if constrains, ok := record["constrains"].([]string); ok {
		if constrains == nil {
			record["constrains"] = []string{}
		}
	}

	if size, _ := record["size"].(int64); size == 0 {
		record["size"] = tarballSize
	}
	if md5, _ := record["md5"].(string); md5 == "" {
		record["md5"] = tarballMD5
	}
	if sha, _ := record["sha256"].(string); sha == "" {
		record["sha256"] = tarballSHA256
	}

	if tf, ok := record["track_features"].([]string); ok && len(tf) == 0 {
		delete(record, "track_features")
	}

	return RepodataRecord(record), nil
}

// indexJSONKeyToInfoKey maps an info/index.json field name to the
// DefaultedKeys name used when PackageInfo was constructed. All names
// are currently shared verbatim, so this is the identity mapping.
func indexJSONKeyToInfoKey(indexKey string) string {
	return indexKey
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
