package imagegen

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURLCheckerRejectsScheme(t *testing.T) {
	c := NewURLChecker(URLCheckerOptions{Logger: logrus.New()})

	err := c.Check(context.Background(), "ftp://x/y.jpg")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestURLCheckerStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		if r.URL.Path == "/missing.jpg" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
	}))
	defer srv.Close()

	c := NewURLChecker(URLCheckerOptions{Logger: logrus.New()})

	assert.NoError(t, c.Check(context.Background(), srv.URL+"/ok.jpg"))

	err := c.Check(context.Background(), srv.URL+"/missing.jpg")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrHTTPStatus))
}

func TestURLCheckerWarnsOnNonImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
	}))
	defer srv.Close()

	logger, hook := test.NewNullLogger()
	c := NewURLChecker(URLCheckerOptions{Logger: logger})

	require.NoError(t, c.Check(context.Background(), srv.URL+"/page"))
	require.Len(t, hook.Entries, 1)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestURLCheckerCachesResults(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "image/png")
	}))
	defer srv.Close()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewURLChecker(URLCheckerOptions{TTL: time.Minute, Logger: logrus.New()})
	c.now = func() time.Time { return now }

	require.NoError(t, c.Check(context.Background(), srv.URL+"/a.png"))
	require.NoError(t, c.Check(context.Background(), srv.URL+"/a.png"))
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))

	now = now.Add(2 * time.Minute)
	require.NoError(t, c.Check(context.Background(), srv.URL+"/a.png"))
	assert.EqualValues(t, 2, atomic.LoadInt32(&hits))
}
