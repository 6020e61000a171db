// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelScript Contributors

package remote

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"golang.org/x/crypto/blake2b"
)

// Fetcher retrieves published files from the remote source.
type Fetcher interface {
	// FetchCatalog retrieves and parses the published catalog.
	FetchCatalog(ctx context.Context) (*Catalog, error)

	// FetchFile retrieves one file by repository-relative path.
	FetchFile(ctx context.Context, path string) ([]byte, error)
}

// maxFetchBytes caps a single downloaded file.
const maxFetchBytes = 8 << 20 // 8 MiB

// HTTPFetcher fetches raw files from {repository}/{branch}/{path} with
// exponential-backoff retries on transient failures.
type HTTPFetcher struct {
	repository string
	branch     string
	client     *http.Client
	retries    uint64
}

// NewHTTPFetcher creates a fetcher for a repository address and branch.
func NewHTTPFetcher(repository, branch string, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPFetcher{
		repository: strings.TrimRight(repository, "/"),
		branch:     branch,
		client:     client,
		retries:    3,
	}
}

// FetchCatalog implements Fetcher.
func (f *HTTPFetcher) FetchCatalog(ctx context.Context) (*Catalog, error) {
	data, err := f.FetchFile(ctx, CatalogFileName)
	if err != nil {
		return nil, err
	}
	return ParseCatalog(data)
}

// FetchFile implements Fetcher. Server errors and network failures are
// retried; client errors (4xx) fail immediately.
func (f *HTTPFetcher) FetchFile(ctx context.Context, path string) ([]byte, error) {
	url := fmt.Sprintf("%s/%s/%s", f.repository, f.branch, strings.TrimLeft(path, "/"))

	var body []byte
	backoff := retry.WithMaxRetries(f.retries, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer func() { _ = resp.Body.Close() }()

		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode >= 500:
			return retry.RetryableError(oops.With("url", url).With("status", resp.StatusCode).New("server error"))
		default:
			return oops.With("url", url).With("status", resp.StatusCode).New("unexpected status")
		}

		body, err = io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes+1))
		if err != nil {
			return retry.RetryableError(err)
		}
		if len(body) > maxFetchBytes {
			return oops.With("url", url).New("response exceeds maximum size")
		}
		return nil
	})
	if err != nil {
		return nil, oops.In("remote").With("url", url).Hint("fetch failed").Wrap(err)
	}

	return body, nil
}

// VerifyChecksum checks data against a hex BLAKE2b-256 digest. An empty
// expected checksum passes: the catalog did not publish one.
func VerifyChecksum(data []byte, expected string) error {
	if expected == "" {
		return nil
	}
	sum := blake2b.Sum256(data)
	actual := hex.EncodeToString(sum[:])
	if !strings.EqualFold(actual, expected) {
		return oops.With("expected", expected).With("actual", actual).New("checksum mismatch")
	}
	return nil
}
