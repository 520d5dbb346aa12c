package media

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectURLs(t *testing.T) {
	urls := NewObjectURLs("https://web.whatsapp.com/")
	u := urls.Create(Blob{Data: []byte("a")})

	assert.Contains(t, u, "blob:https://web.whatsapp.com/")
	assert.Equal(t, 1, urls.Len())

	b, ok := urls.Resolve(u)
	require.True(t, ok)
	assert.Equal(t, []byte("a"), b.Data)

	urls.Revoke(u)
	urls.Revoke(u)
	_, ok = urls.Resolve(u)
	assert.False(t, ok)
	assert.Equal(t, 0, urls.Len())
}

func TestObjectURLs_RevokeAfter(t *testing.T) {
	urls := NewObjectURLs("https://web.whatsapp.com")
	u := urls.Create(Blob{Data: []byte("a")})
	urls.RevokeAfter(u, 20*time.Millisecond)

	assert.Equal(t, 1, urls.Len())
	assert.Eventually(t, func() bool { return urls.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestFetcher_ObjectURL(t *testing.T) {
	urls := NewObjectURLs("https://web.whatsapp.com")
	f := NewFetcher(urls, time.Second)
	u := urls.Create(Blob{Data: []byte("voice"), Type: "audio/ogg"})

	b, err := f.Fetch(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, "voice", string(b.Data))

	urls.Revoke(u)
	_, err = f.Fetch(context.Background(), u)
	assert.True(t, errors.Is(err, ErrRevoked))
}

func TestFetcher_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Type", "audio/ogg")
			_, _ = w.Write([]byte("OggS"))
		case "/empty":
			w.Header().Set("Content-Type", "audio/ogg")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewFetcher(nil, time.Second)

	b, err := f.Fetch(context.Background(), srv.URL+"/ok")
	require.NoError(t, err)
	assert.Equal(t, "OggS", string(b.Data))
	assert.Equal(t, "audio/ogg", b.Type)

	_, err = f.Fetch(context.Background(), srv.URL+"/empty")
	assert.True(t, errors.Is(err, ErrEmptyPayload))

	_, err = f.Fetch(context.Background(), srv.URL+"/missing")
	assert.Error(t, err)
}

func TestFetcher_RetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	b, err := NewFetcher(nil, time.Second).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(b.Data))
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestFetcher_SendsCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("wa_session"); err != nil {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewFetcher(nil, time.Second)
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	f.Jar().SetCookies(req.URL, []*http.Cookie{{Name: "wa_session", Value: "1"}})

	_, err := f.Fetch(context.Background(), srv.URL)
	assert.NoError(t, err)
}

func TestFetcher_UnsupportedScheme(t *testing.T) {
	_, err := NewFetcher(nil, time.Second).Fetch(context.Background(), "ftp://x/y")
	assert.True(t, errors.Is(err, ErrInvalidSource))
}
