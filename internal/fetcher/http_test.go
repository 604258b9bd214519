package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProfiles() []Profile {
	return []Profile{
		{Name: "p1", Headers: map[string]string{"User-Agent": "agent-one"}},
		{Name: "p2", Headers: map[string]string{"User-Agent": "agent-two"}},
		{Name: "p3", Headers: map[string]string{"User-Agent": "agent-three"}},
	}
}

func newTestFetcher(profiles []Profile) *ProfileFetcher {
	return NewProfileFetcher(Options{
		Timeout:  5 * time.Second,
		Profiles: profiles,
	})
}

func TestFetchText_FirstProfileSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "agent-one", r.Header.Get("User-Agent"))
		w.Write([]byte("<EV=105;NV=1>"))
	}))
	defer srv.Close()

	f := newTestFetcher(testProfiles())
	body, err := f.FetchText(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "<EV=105;NV=1>", body)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchText_FallsThroughToSecondProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "agent-one" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newTestFetcher(testProfiles())
	body, err := f.FetchText(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", body)
}

func TestFetchText_AllProfilesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := newTestFetcher(testProfiles())
	_, err := f.FetchText(context.Background(), srv.URL)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Profiles)
	assert.Equal(t, "p3", exhausted.LastProfile)
	assert.ErrorContains(t, exhausted.Err, "403")
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchText_SendsReferer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "https://temporeal.pbh.gov.br/", r.Header.Get("Referer"))
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewProfileFetcher(Options{
		Profiles: testProfiles(),
		Referer:  "https://temporeal.pbh.gov.br/",
	})
	_, err := f.FetchText(context.Background(), srv.URL)
	require.NoError(t, err)
}

func TestFetchText_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := newTestFetcher(testProfiles())
	_, err := f.FetchText(ctx, srv.URL)
	require.Error(t, err)
}

func TestDefaultProfiles_OrderedAndDistinct(t *testing.T) {
	profiles := DefaultProfiles()
	require.Len(t, profiles, 4)
	assert.Equal(t, "chrome120", profiles[0].Name)

	seen := map[string]bool{}
	for _, p := range profiles {
		ua := p.Headers["User-Agent"]
		require.NotEmpty(t, ua)
		assert.False(t, seen[ua], "user agents must differ across profiles")
		seen[ua] = true
	}
}
