package fetch

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamba-go/pkgtrust/cache"
)

type fakeDownloader struct {
	fs      afero.Fs
	content []byte
}

func (f *fakeDownloader) Download(_ context.Context, _ DownloadTarget, destPath string) error {
	return afero.WriteFile(f.fs, destPath, f.content, 0644)
}

type fakeExtractor struct {
	fs      afero.Fs
	indexJS []byte
}

func (f *fakeExtractor) Extract(_ context.Context, _, destDir string) error {
	return afero.WriteFile(f.fs, destDir+"/info/index.json", f.indexJS, 0644)
}

func TestFetcherFullPipelineOnColdCache(t *testing.T) {
	fs := afero.NewMemMapFs()
	mc := cache.NewMultiCache(fs, []string{"/cache/pkgs"})
	dl := &fakeDownloader{fs: fs, content: []byte("tarball-bytes")}
	ex := &fakeExtractor{fs: fs, indexJS: []byte(`{"license":"BSD-3-Clause","build_number":1}`)}

	fetcher := NewFetcher(fs, mc, dl, ex, NewExtractSemaphore(1))

	info := NewPackageInfoFromURL("https://example.test/pkg-1.0-0.tar.bz2", "pkg-1.0-0.tar.bz2").MarkInitialized()
	ref := cache.PackageRef{Basename: "pkg-1.0-0", Filename: "pkg-1.0-0.tar.bz2"}

	dir, err := fetcher.Fetch(context.Background(), info, ref)
	require.NoError(t, err)
	assert.Equal(t, "/cache/pkgs/pkg-1.0-0", dir)

	recordData, err := afero.ReadFile(fs, "/cache/pkgs/pkg-1.0-0/info/repodata_record.json")
	require.NoError(t, err)
	record, err := LoadRepodataRecord(recordData)
	require.NoError(t, err)
	assert.Equal(t, "BSD-3-Clause", record["license"])
	assert.NotEmpty(t, record["md5"])
	assert.NotEmpty(t, record["sha256"])

	urlLog, err := afero.ReadFile(fs, "/cache/pkgs/urls.txt")
	require.NoError(t, err)
	assert.Contains(t, string(urlLog), "https://example.test/pkg-1.0-0.tar.bz2")
}

func TestFetcherSkipsDownloadAndExtractWhenAlreadyCached(t *testing.T) {
	fs := afero.NewMemMapFs()
	recordPath := "/cache/pkgs/pkg-1.0-0/info/repodata_record.json"
	require.NoError(t, afero.WriteFile(fs, recordPath, []byte(`{"license":"BSD","build_number":1,"timestamp":123}`), 0644))

	mc := cache.NewMultiCache(fs, []string{"/cache/pkgs"})
	dl := &fakeDownloader{fs: fs}
	ex := &fakeExtractor{fs: fs}
	fetcher := NewFetcher(fs, mc, dl, ex, nil)

	info := NewPackageInfo("pkg", "1.0", "0", 0, "pkg-1.0-0.tar.bz2", "main", "linux-64")
	ref := cache.PackageRef{Basename: "pkg-1.0-0", Filename: "pkg-1.0-0.tar.bz2"}

	dir, err := fetcher.Fetch(context.Background(), info, ref)
	require.NoError(t, err)
	assert.Equal(t, "/cache/pkgs/pkg-1.0-0", dir)
}

func TestFetcherValidationFailureStopsBeforeExtract(t *testing.T) {
	fs := afero.NewMemMapFs()
	mc := cache.NewMultiCache(fs, []string{"/cache/pkgs"})
	dl := &fakeDownloader{fs: fs, content: []byte("short")}
	ex := &fakeExtractor{fs: fs}
	fetcher := NewFetcher(fs, mc, dl, ex, nil)

	info := NewPackageInfo("pkg", "1.0", "0", 0, "pkg-1.0-0.tar.bz2", "main", "linux-64")
	info.Size = 99999
	ref := cache.PackageRef{Basename: "pkg-1.0-0", Filename: "pkg-1.0-0.tar.bz2"}

	_, err := fetcher.Fetch(context.Background(), info, ref)
	require.Error(t, err)

	exists, _ := afero.Exists(fs, "/cache/pkgs/pkg-1.0-0/info/index.json")
	assert.False(t, exists, "extraction must not run after validation failure")
}
