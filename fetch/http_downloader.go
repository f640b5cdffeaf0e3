package fetch

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// newTransport builds the *http.Transport tarball downloads use:
// environment-aware proxying, a dial timeout/keepalive pair, and a
// TLS handshake timeout, independent of Go's http.DefaultTransport so
// callers can tune it without touching global state.
func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

// HTTPDownloader is the default Downloader: a plain GET against
// target.URL (or, when MirrorName is set, against MirrorBaseURLs[MirrorName]
// joined with target.URL) streamed straight to destPath.
type HTTPDownloader struct {
	fs             afero.Fs
	client         *http.Client
	mirrorBaseURLs map[string]string
}

// NewHTTPDownloader wires an HTTPDownloader. mirrorBaseURLs maps a
// registry/mirror name (as produced by ResolveDownloadTarget for OCI
// and credentialed URLs) to the base URL credentials are layered onto
// out-of-band; it may be nil if no such targets are expected.
func NewHTTPDownloader(fs afero.Fs, timeout time.Duration, mirrorBaseURLs map[string]string) *HTTPDownloader {
	return &HTTPDownloader{
		fs:             fs,
		client:         &http.Client{Transport: newTransport(), Timeout: timeout},
		mirrorBaseURLs: mirrorBaseURLs,
	}
}

func (d *HTTPDownloader) resolveURL(target DownloadTarget) (string, error) {
	if target.MirrorName == "" {
		return target.URL, nil
	}
	base, ok := d.mirrorBaseURLs[target.MirrorName]
	if !ok {
		return "", errors.Errorf("no base url configured for mirror %q", target.MirrorName)
	}
	return base + "/" + target.URL, nil
}

// Download streams target to destPath, failing on any non-2xx status.
func (d *HTTPDownloader) Download(ctx context.Context, target DownloadTarget, destPath string) error {
	fullURL, err := d.resolveURL(target)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return errors.Wrapf(err, "building download request for %s", fullURL)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "downloading %s", fullURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return errors.Errorf("downloading %s: unexpected status %s", fullURL, resp.Status)
	}

	out, err := d.fs.Create(destPath)
	if err != nil {
		return errors.Wrapf(err, "creating %s", destPath)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return errors.Wrapf(err, "writing %s", destPath)
	}
	return nil
}
