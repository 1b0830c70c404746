package affiliate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bot-ofertas/internal/logger"
)

const longURL = "https://www.amazon.com/dp/B08N5WRWNW?tag=ofertas"

func TestShorten(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v4/shorten", r.URL.Path)
		assert.Equal(t, "Bearer segredo", r.Header.Get("Authorization"))

		var body shortenRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, longURL, body.LongURL)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"link":"https://bit.ly/abc123"}`))
	}))
	defer srv.Close()

	s := NewShortener("segredo", srv.URL, logger.NewNop())
	assert.Equal(t, "https://bit.ly/abc123", s.Shorten(context.Background(), longURL))
}

func TestShortenFallbacks(t *testing.T) {
	t.Run("sem token", func(t *testing.T) {
		s := NewShortener("", "http://127.0.0.1:1", logger.NewNop())
		assert.False(t, s.Enabled())
		assert.Equal(t, longURL, s.Shorten(context.Background(), longURL))
	})

	t.Run("erro da API", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer srv.Close()

		s := NewShortener("segredo", srv.URL, logger.NewNop())
		assert.Equal(t, longURL, s.Shorten(context.Background(), longURL))
	})

	t.Run("resposta inválida", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`não é json`))
		}))
		defer srv.Close()

		s := NewShortener("segredo", srv.URL, logger.NewNop())
		assert.Equal(t, longURL, s.Shorten(context.Background(), longURL))
	})

	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		}))
		defer srv.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		s := NewShortener("segredo", srv.URL, logger.NewNop())
		assert.Equal(t, longURL, s.Shorten(ctx, longURL))
	})

	t.Run("nil", func(t *testing.T) {
		var s *Shortener
		assert.Equal(t, longURL, s.Shorten(context.Background(), longURL))
	})
}
