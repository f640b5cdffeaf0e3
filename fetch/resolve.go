package fetch

import (
	"net/url"
	"path"
	"strings"
)

// DownloadTarget is what a Downloader actually receives: a request URL
// plus an optional mirror/registry name that, when set, tells the
// transport the URL is relative to that registry rather than
// self-contained.
type DownloadTarget struct {
	MirrorName     string
	URL            string
	ExpectedSize   int64
	ExpectedSHA256 string
}

// ResolveDownloadTarget applies the three URL-resolution rules: OCI
// registry references carry an explicit mirror name and a path-only
// URL, URLs with embedded credentials likewise split into channel +
// path so the credentials never end up logged verbatim, and anything
// else is used as-is.
func ResolveDownloadTarget(info PackageInfo) DownloadTarget {
	base := DownloadTarget{
		URL:            info.PackageURL,
		ExpectedSize:   info.Size,
		ExpectedSHA256: info.SHA256,
	}

	if strings.HasPrefix(info.PackageURL, "oci://") {
		base.MirrorName = info.Channel
		base.URL = path.Join(info.Subdir, info.Filename)
		return base
	}

	if hasEmbeddedCredentials(info.PackageURL) {
		base.MirrorName = info.Channel
		base.URL = path.Join(info.Subdir, info.Filename)
		return base
	}

	return base
}

// hasEmbeddedCredentials reports whether url carries userinfo
// (user:pass@host) or a token query parameter, either of which must
// never be echoed back out-of-band in logs or the persisted URL log.
func hasEmbeddedCredentials(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.User != nil {
		return true
	}
	q := u.Query()
	for _, key := range []string{"token", "access_token", "t"} {
		if q.Get(key) != "" {
			return true
		}
	}
	return false
}
