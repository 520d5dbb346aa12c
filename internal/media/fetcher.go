package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/lexiqai/wa-assistant/internal/errorsx"
	"github.com/lexiqai/wa-assistant/internal/observability"
	"github.com/lexiqai/wa-assistant/internal/resilience"
)

// MaxAudioBytes bounds a single fetched payload
const MaxAudioBytes = 64 << 20

// ErrRevoked is returned for blob: URLs that are not (or no longer) registered
var ErrRevoked = errors.New("object URL is not registered")

// Fetcher resolves blob:, data: and http(s): URLs to blobs. HTTP requests carry the
// session cookies held in the fetcher's jar.
type Fetcher struct {
	client  *http.Client
	urls    *ObjectURLs
	timeout time.Duration
	retry   *resilience.RetryConfig
}

// NewFetcher creates a fetcher resolving blob: URLs through urls
func NewFetcher(urls *ObjectURLs, timeout time.Duration) *Fetcher {
	jar, _ := cookiejar.New(nil)
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{
		client:  &http.Client{Jar: jar},
		urls:    urls,
		timeout: timeout,
		retry: &resilience.RetryConfig{
			MaxAttempts:       2,
			InitialBackoff:    200 * time.Millisecond,
			MaxBackoff:        time.Second,
			BackoffMultiplier: 2.0,
			Jitter:            true,
		},
	}
}

// WithHTTPClient replaces the HTTP client, keeping its cookie jar if it has one
func (f *Fetcher) WithHTTPClient(c *http.Client) *Fetcher {
	if c.Jar == nil {
		c.Jar = f.client.Jar
	}
	f.client = c
	return f
}

// Jar exposes the cookie jar so callers can seed session cookies
func (f *Fetcher) Jar() http.CookieJar {
	return f.client.Jar
}

// Fetch implements URLFetcher
func (f *Fetcher) Fetch(ctx context.Context, url string) (Blob, error) {
	switch {
	case strings.HasPrefix(url, "blob:"):
		if f.urls == nil {
			return Blob{}, errorsx.Wrap(ErrRevoked, errorsx.ReasonNotFound)
		}
		blob, ok := f.urls.Resolve(url)
		if !ok {
			return Blob{}, errorsx.Wrap(fmt.Errorf("%w: %s", ErrRevoked, url), errorsx.ReasonNotFound)
		}
		if blob.Empty() {
			return Blob{}, errorsx.Wrap(ErrEmptyPayload, errorsx.ReasonPayloadInvalid)
		}
		observability.RecordAudioBytes("object_url", blob.Size())
		return blob, nil

	case strings.HasPrefix(url, "data:"):
		return DecodeDataURI(url, "")

	case strings.HasPrefix(url, "https:"), strings.HasPrefix(url, "http:"):
		var blob Blob
		err := resilience.Retry(ctx, func(ctx context.Context) error {
			b, err := f.fetchHTTP(ctx, url)
			if err != nil {
				return err
			}
			blob = b
			return nil
		}, f.retry, resilience.IsRetryableNetworkError)
		if err != nil {
			return Blob{}, err
		}
		return blob, nil
	}

	return Blob{}, errorsx.Wrap(fmt.Errorf("%w: unsupported URL scheme in %q", ErrInvalidSource, url), errorsx.ReasonPayloadInvalid)
}

func (f *Fetcher) fetchHTTP(ctx context.Context, url string) (Blob, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Blob{}, errorsx.Wrap(err, errorsx.ReasonPayloadInvalid)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Blob{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("fetch %s: HTTP %d", url, resp.StatusCode)
		if resp.StatusCode >= 500 {
			return Blob{}, resilience.NewRetryableError(err)
		}
		return Blob{}, errorsx.Wrap(err, errorsx.ReasonNotFound)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxAudioBytes+1))
	if err != nil {
		return Blob{}, fmt.Errorf("read %s: %w", url, err)
	}
	if len(data) > MaxAudioBytes {
		return Blob{}, errorsx.Wrap(fmt.Errorf("fetch %s: payload exceeds %d bytes", url, MaxAudioBytes), errorsx.ReasonPayloadInvalid)
	}
	if len(data) == 0 {
		return Blob{}, errorsx.Wrap(ErrEmptyPayload, errorsx.ReasonPayloadInvalid)
	}

	observability.RecordAudioBytes("fetch", len(data))
	return Blob{Data: data, Type: resp.Header.Get("Content-Type")}, nil
}
