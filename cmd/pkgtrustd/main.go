// Command pkgtrustd wires the trust, cache and fetch packages together
// into a minimal end-to-end demonstration: bootstrap trust for a
// channel, verify its index, and fetch one package. It has no flag
// parsing or config file loading of its own — the wiring is the
// point, not a CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/mamba-go/pkgtrust/cache"
	"github.com/mamba-go/pkgtrust/fetch"
	"github.com/mamba-go/pkgtrust/trust"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "pkgtrustd:", err)
		os.Exit(1)
	}
}

func run() error {
	zapLogger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	fs := afero.NewOsFs()

	channelURL := envOr("PKGTRUST_CHANNEL_URL", "https://conda.example.test/channel")
	refDir := envOr("PKGTRUST_REF_DIR", "./trust-ref")
	cacheDir := envOr("PKGTRUST_CACHE_DIR", "./trust-cache")
	pkgCacheDir := envOr("PKGTRUST_PKG_CACHE_DIR", "./pkg-cache")

	httpClient := trust.NewHTTPClient(30 * time.Second)
	fetcher := trust.HTTPRoleFileFetcher{Client: httpClient, BaseURL: channelURL}

	checker := trust.NewRepoChecker(log, fs, fetcher, channelURL, refDir, cacheDir)
	if err := checker.GenerateIndexChecker(context.Background()); err != nil {
		return fmt.Errorf("bootstrapping trust for %s: %w", channelURL, err)
	}
	log.Infow("trust bootstrap complete", "root_version", checker.RootVersion())

	resp, err := http.Get(channelURL + "/linux-64/repodata.json")
	if err != nil {
		return fmt.Errorf("fetching repodata: %w", err)
	}
	defer resp.Body.Close()
	repodataRaw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading repodata: %w", err)
	}
	if err := checker.VerifyIndex(repodataRaw); err != nil {
		return fmt.Errorf("verifying index: %w", err)
	}
	log.Infow("index verified", "channel", channelURL)

	mc := cache.NewMultiCache(fs, []string{pkgCacheDir})
	downloader := fetch.NewHTTPDownloader(fs, 60*time.Second, nil)
	pkgFetcher := fetch.NewFetcher(fs, mc, downloader, archiveExtractor{}, fetch.NewExtractSemaphore(1))

	pkg := fetch.NewPackageInfo("example-pkg", "1.0.0", "0", 0, "example-pkg-1.0.0-0.tar.bz2", channelURL, "linux-64")
	pkg.PackageURL = channelURL + "/linux-64/" + pkg.Filename
	ref := cache.PackageRef{Basename: "example-pkg-1.0.0-0", Filename: pkg.Filename}
	if _, err := pkgFetcher.Fetch(context.Background(), pkg, ref); err != nil {
		return fmt.Errorf("fetching %s: %w", pkg.Filename, err)
	}
	log.Infow("package fetched", "package", pkg.Filename)

	return nil
}

// archiveExtractor is a placeholder Extractor: real tarball/zip
// extraction is out of this system's scope (see the Non-goals around
// transaction/install orchestration), so this just documents the seam
// a caller would plug a real extractor (e.g. archive/tar + compress/bzip2) into.
type archiveExtractor struct{}

func (archiveExtractor) Extract(_ context.Context, _, destDir string) error {
	return os.MkdirAll(destDir+"/info", 0755)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
