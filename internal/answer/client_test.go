package answer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestAskSendsContract(t *testing.T) {
	var got askRequest
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "k1", r.Header.Get("x-api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"success":true,"answer":"**4**"}`))
	})

	c := NewClient(Config{URL: srv.URL, APIKey: "k1", UserID: "lynix-x", Model: 1})
	answer, err := c.Ask(context.Background(), "what%20is%202%2B2%3F")
	require.NoError(t, err)

	assert.Equal(t, "**4**", answer)
	assert.Equal(t, askRequest{UserID: "lynix-x", Model: 1, Question: "what%20is%202%2B2%3F"}, got)
}

func TestAskUnsuccessfulCarriesNotice(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"notice":"rate limited"}`))
	})

	_, err := NewClient(Config{URL: srv.URL, APIKey: "k"}).Ask(context.Background(), "q")
	var unsuccessful *UnsuccessfulError
	require.True(t, errors.As(err, &unsuccessful))
	assert.Equal(t, "rate limited", unsuccessful.Notice)
}

func TestAskRejected(t *testing.T) {
	for _, code := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		})
		_, err := NewClient(Config{URL: srv.URL, APIKey: "bad"}).Ask(context.Background(), "q")
		assert.ErrorIs(t, err, ErrRejected)
	}
}

func TestAskMissingCredentialSendsNothing(t *testing.T) {
	var calls atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	_, err := NewClient(Config{URL: srv.URL}).Ask(context.Background(), "q")
	assert.ErrorIs(t, err, ErrMissingCredential)
	_, err = NewClient(Config{APIKey: "k"}).Ask(context.Background(), "q")
	assert.ErrorIs(t, err, ErrMissingCredential)
	assert.Zero(t, calls.Load())
}

func TestAskServerErrorAndGarbage(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	_, err := NewClient(Config{URL: srv.URL, APIKey: "k"}).Ask(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")

	srv = newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	})
	_, err = NewClient(Config{URL: srv.URL, APIKey: "k"}).Ask(context.Background(), "q")
	assert.Error(t, err)
}

func TestAskEmptyAnswer(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"answer":"  "}`))
	})
	_, err := NewClient(Config{URL: srv.URL, APIKey: "k"}).Ask(context.Background(), "q")
	assert.ErrorIs(t, err, ErrEmptyAnswer)
}

func TestAskTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	c := NewClient(Config{URL: srv.URL, APIKey: "k", Timeout: 50 * time.Millisecond})
	_, err := c.Ask(context.Background(), "q")
	assert.Error(t, err)
}
