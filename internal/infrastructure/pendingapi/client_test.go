package pendingapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jerson21/santitelas-frontend-sub003/internal/domain/validation"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, now time.Time) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL + "/", Token: "tok"}, zap.NewNop(),
		WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	return c
}

func TestNewClient_InvalidConfig(t *testing.T) {
	for _, base := range []string{"", "ftp://host", "not a url", "http://"} {
		_, err := NewClient(Config{BaseURL: base}, nil)
		assert.ErrorIs(t, err, ErrInvalidConfig, base)
	}
}

func TestClient_Fetch(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		body    string
		wantIDs []validation.ID
	}{
		{
			name:    "success envelope",
			body:    `{"success":true,"data":[{"id":1,"cajero":"caja1","monto":15000,"tiempo_espera":30}]}`,
			wantIDs: []validation.ID{1},
		},
		{
			name:    "detalle envelope",
			body:    `{"transferencias_detalle":[{"id":"2","monto":"100.50"},{"id":3,"monto":0}]}`,
			wantIDs: []validation.ID{2, 3},
		},
		{
			name:    "bare list",
			body:    `[{"id":4,"monto":10}]`,
			wantIDs: []validation.ID{4},
		},
		{
			name:    "empty data",
			body:    `{"success":true,"data":[]}`,
			wantIDs: []validation.ID{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotAuth, gotPath string
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				gotAuth = r.Header.Get("Authorization")
				gotPath = r.URL.Path
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			}, now)

			entries, fetchedAt, err := c.Fetch(context.Background())
			require.NoError(t, err)
			assert.Equal(t, now, fetchedAt)
			assert.Equal(t, "Bearer tok", gotAuth)
			assert.Equal(t, "/api/transferencias/pendientes", gotPath)

			got := make([]validation.ID, 0, len(entries))
			for _, e := range entries {
				got = append(got, e.ID)
			}
			assert.Equal(t, tt.wantIDs, got)
		})
	}
}

func TestClient_Fetch_AgeBecomesTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":1,"monto":10,"tiempo_espera":90}]`))
	}, now)

	entries, _, err := c.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].CreatedAt)
	assert.Equal(t, now.Add(-90*time.Second), *entries[0].CreatedAt)
}

func TestClient_Fetch_Errors(t *testing.T) {
	t.Run("non-2xx status", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"token expirado"}`))
		}, time.Now())

		_, _, err := c.Fetch(context.Background())
		require.Error(t, err)
		var pe *PollError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, http.StatusUnauthorized, pe.StatusCode)
		assert.Equal(t, "token expirado", pe.Message)
		assert.ErrorIs(t, err, ErrRequestFailed)
	})

	t.Run("server reports failure", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"success":false,"message":"db down"}`))
		}, time.Now())

		_, _, err := c.Fetch(context.Background())
		assert.Equal(t, validation.CodeServerRejected, validation.CodeOf(err))
	})

	t.Run("malformed body", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		}, time.Now())

		_, _, err := c.Fetch(context.Background())
		var pe *PollError
		assert.True(t, errors.As(err, &pe))
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		base := srv.URL
		srv.Close()

		c, err := NewClient(Config{BaseURL: base}, nil)
		require.NoError(t, err)
		_, _, err = c.Fetch(context.Background())
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("context deadline", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		}, time.Now())

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, _, err := c.Fetch(ctx)
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}
