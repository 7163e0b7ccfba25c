// Package fetcher downloads the external country payload over HTTP(S) or FTP.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// Options configures the scheme-dispatching fetcher.
type Options struct {
	HTTP HTTPOptions
	FTP  FTPOptions
}

// SchemeFetcher routes a download to the HTTP or FTP fetcher by URL scheme.
type SchemeFetcher struct {
	http Fetcher
	ftp  Fetcher
}

// New creates a SchemeFetcher with HTTP and FTP backends.
func New(opts Options) *SchemeFetcher {
	return &SchemeFetcher{
		http: NewHTTPFetcher(opts.HTTP),
		ftp:  NewFTPFetcher(opts.FTP),
	}
}

// Download dispatches on the URL scheme.
func (f *SchemeFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: parse url")
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return f.http.Download(ctx, rawURL)
	case "ftp":
		return f.ftp.Download(ctx, rawURL)
	default:
		return nil, eris.Errorf("fetch: unsupported scheme %q", u.Scheme)
	}
}
