package trust

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// defaultMaxRoleFileSize bounds a role-file GET the same way the
// teacher's remote_repo.go bounds a notary response with an
// io.LimitedReader: generous headroom over any real role file, but
// never unbounded.
const defaultMaxRoleFileSize = 10 << 20

// NewHTTPClient builds the *http.Client the role-file fetch adapter
// (HTTPRoleFileFetcher) takes; fetch.HTTPDownloader builds its own
// client. go-retryablehttp is used purely for its idiomatic
// transport/timeout defaults; retry/backoff policy itself stays a
// caller concern per the transport Non-goal, so retries are disabled.
func NewHTTPClient(timeout time.Duration) *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 0
	rc.Logger = nil
	hc := rc.StandardClient()
	hc.Timeout = timeout
	return hc
}

// HTTPRoleFileFetcher fetches role files by joining BaseURL with the
// requested name, treating 404 as "does not exist" rather than an
// error, matching check_resource_exists/download semantics from
// repo_checker.cpp's get_root_role loop.
type HTTPRoleFileFetcher struct {
	Client  *http.Client
	BaseURL string
	MaxSize int64
}

func (f HTTPRoleFileFetcher) FetchIfExists(ctx context.Context, name string) ([]byte, bool, error) {
	client := f.Client
	if client == nil {
		client = NewHTTPClient(30 * time.Second)
	}
	maxSize := f.MaxSize
	if maxSize == 0 {
		maxSize = defaultMaxRoleFileSize
	}
	url := fmt.Sprintf("%s/%s", strings.TrimRight(f.BaseURL, "/"), name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, url)
	}

	limited := io.LimitReader(resp.Body, maxSize+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, false, err
	}
	if int64(len(data)) > maxSize {
		return nil, false, fmt.Errorf("role file %s exceeds maximum size", name)
	}
	return data, true, nil
}
