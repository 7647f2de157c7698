package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/legisnotice/internal/legislation"
)

func TestHTTPNotifyPostsEvent(t *testing.T) {
	t.Parallel()

	type captured struct {
		method, key, contentType string
		event                    legislation.RefreshEvent
	}
	got := make(chan captured, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev legislation.RefreshEvent
		_ = json.NewDecoder(r.Body).Decode(&ev)
		got <- captured{method: r.Method, key: r.Header.Get("X-API-Key"), contentType: r.Header.Get("Content-Type"), event: ev}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n, err := NewHTTP(HTTPConfig{URL: srv.URL + "/api/legislation/refresh", APIKey: "secret"})
	require.NoError(t, err)

	event := legislation.RefreshEvent{
		RunID:      "run-1",
		Mode:       "all",
		National:   3,
		Admin:      5,
		TargetDate: "2024-05-10",
		FinishedAt: time.Date(2024, 5, 11, 1, 0, 0, 0, time.UTC),
	}
	require.NoError(t, n.Notify(context.Background(), event))

	c := <-got
	assert.Equal(t, http.MethodPost, c.method)
	assert.Equal(t, "secret", c.key)
	assert.Equal(t, "application/json", c.contentType)
	assert.Equal(t, event, c.event)
}

func TestHTTPNotifyRejectsNon2xx(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	n, err := NewHTTP(HTTPConfig{URL: srv.URL, Timeout: time.Second})
	require.NoError(t, err)
	err = n.Notify(context.Background(), legislation.RefreshEvent{})
	require.ErrorContains(t, err, "status 401")
}

func TestNewHTTPValidation(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "ftp://host/x", "http://", "::"} {
		_, err := NewHTTP(HTTPConfig{URL: raw})
		assert.Error(t, err, raw)
	}
}

func TestNoop(t *testing.T) {
	t.Parallel()

	var n legislation.Notifier = Noop{}
	assert.NoError(t, n.Notify(context.Background(), legislation.RefreshEvent{}))
}
