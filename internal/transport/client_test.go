package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_DecodesEnvelopeData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "/books/list", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		writeJSON(w, 200, map[string]any{
			"success": true,
			"data": map[string]any{
				"records":      []map[string]any{{"id": 1}, {"id": 2}},
				"total_record": 12,
				"total_page":   6,
			},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, NewTokenStore(TokenPair{AccessToken: "tok"}))
	var page Page[map[string]any]
	_, err := c.Get(context.Background(), "/books/list?page=2", &page)
	require.NoError(t, err)
	assert.Len(t, page.Records, 2)
	assert.Equal(t, 12, page.TotalRecord)
	assert.Equal(t, 6, page.TotalPage)
}

func TestClient_ErrorMessages(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"message", 400, `{"success":false,"message":"Title already exists"}`, "Title already exists"},
		{"error object", 422, `{"error":{"code":"VALIDATION_FAILED","message":"Validation failed"}}`, "Validation failed"},
		{"error string", 404, `{"error":"Not found here"}`, "Not found here"},
		{"errors list", 400, `{"errors":["Email is invalid"]}`, "Email is invalid"},
		{"plain text", 403, `Forbidden by policy`, "Forbidden by policy"},
		{"empty 4xx", 409, ``, "Conflict"},
		{"server", 500, `{"message":"pq: relation does not exist"}`, MsgServer},
		{"bad gateway", 502, `<html>`, MsgServer},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			c := NewClient(Config{BaseURL: srv.URL}, nil)
			_, err := c.Get(context.Background(), "/x", nil)
			require.Error(t, err)
			assert.Equal(t, tc.want, UserMessage(err))

			var te *Error
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tc.status, te.Status)
		})
	}
}

func TestClient_SuccessFalseIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"success": false, "message": "Quota reached"})
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}, nil).Post(context.Background(), "/x", map[string]any{}, nil)
	assert.Equal(t, "Quota reached", UserMessage(err))
}

func TestClient_FieldErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 422, map[string]any{"error": map[string]any{
			"message": "Validation failed",
			"details": []map[string]any{{"field": "title", "message": "title is required"}},
		}})
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}, nil).Post(context.Background(), "/x", nil, nil)
	var te *Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, map[string]string{"title": "title is required"}, te.Fields)
}

func TestClient_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(Config{BaseURL: url}, nil).Get(context.Background(), "/x", nil)
	require.Error(t, err)
	assert.Equal(t, MsgNetwork, UserMessage(err))
}

func TestClient_ConcurrentUnauthorizedRefreshesOnce(t *testing.T) {
	var refreshes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/refresh":
			refreshes.Add(1)
			time.Sleep(50 * time.Millisecond)
			writeJSON(w, 200, map[string]any{"data": TokenPair{AccessToken: "fresh", RefreshToken: "r2"}})
		default:
			if r.Header.Get("Authorization") != "Bearer fresh" {
				writeJSON(w, 401, map[string]any{"message": "token expired"})
				return
			}
			writeJSON(w, 200, map[string]any{"success": true, "data": map[string]any{"ok": true}})
		}
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, NewTokenStore(TokenPair{AccessToken: "stale", RefreshToken: "r1"}))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var out map[string]bool
			_, err := c.Get(context.Background(), "/books/list", &out)
			if err == nil && !out["ok"] {
				err = errors.New("missing data")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 1, refreshes.Load())
	assert.Equal(t, TokenPair{AccessToken: "fresh", RefreshToken: "r2"}, c.Tokens().Pair())
}

func TestClient_FailedRefreshExpiresSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 401, map[string]any{"message": "nope"})
	}))
	defer srv.Close()

	var expired atomic.Int32
	c := NewClient(Config{BaseURL: srv.URL},
		NewTokenStore(TokenPair{AccessToken: "stale", RefreshToken: "r1"}),
		WithOnExpired(func() { expired.Add(1) }))

	_, err := c.Get(context.Background(), "/books/list", nil)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, MsgSessionExpired, UserMessage(err))
	assert.EqualValues(t, 1, expired.Load())
	assert.Empty(t, c.Tokens().Access())
}

func TestClient_SecondUnauthorizedExpiresSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/auth/refresh" {
			writeJSON(w, 200, map[string]any{"data": TokenPair{AccessToken: "fresh"}})
			return
		}
		writeJSON(w, 401, map[string]any{"message": "still no"})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, NewTokenStore(TokenPair{AccessToken: "stale", RefreshToken: "r1"}))
	_, err := c.Get(context.Background(), "/books/list", nil)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestClient_RefreshServerErrorKeepsSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/auth/refresh" {
			writeJSON(w, 503, map[string]any{"message": "maintenance"})
			return
		}
		writeJSON(w, 401, map[string]any{"message": "token expired"})
	}))
	defer srv.Close()

	var expired atomic.Int32
	c := NewClient(Config{BaseURL: srv.URL},
		NewTokenStore(TokenPair{AccessToken: "stale", RefreshToken: "r1"}),
		WithOnExpired(func() { expired.Add(1) }))

	_, err := c.Get(context.Background(), "/books/list", nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, MsgServer, UserMessage(err))
	assert.Zero(t, expired.Load())
	assert.Equal(t, "stale", c.Tokens().Access())
}

func TestClient_CancelledCallerDoesNotExpireSharedRefresh(t *testing.T) {
	var waiting sync.WaitGroup
	waiting.Add(1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/refresh":
			waiting.Done()
			time.Sleep(200 * time.Millisecond)
			writeJSON(w, 200, map[string]any{"data": TokenPair{AccessToken: "fresh", RefreshToken: "r2"}})
		default:
			if r.Header.Get("Authorization") != "Bearer fresh" {
				writeJSON(w, 401, map[string]any{"message": "token expired"})
				return
			}
			writeJSON(w, 200, map[string]any{"success": true, "data": map[string]any{"ok": true}})
		}
	}))
	defer srv.Close()

	var expired atomic.Int32
	c := NewClient(Config{BaseURL: srv.URL},
		NewTokenStore(TokenPair{AccessToken: "stale", RefreshToken: "r1"}),
		WithOnExpired(func() { expired.Add(1) }))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		waiting.Wait()
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := c.Get(ctx, "/books/list", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrSessionExpired)

	var out map[string]bool
	_, err = c.Get(context.Background(), "/books/list", &out)
	require.NoError(t, err)
	assert.True(t, out["ok"])
	assert.Zero(t, expired.Load())
	assert.Equal(t, "fresh", c.Tokens().Access())
}

func TestClient_ProactiveRefreshOnExpiringJWT(t *testing.T) {
	expiring, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "op-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(10 * time.Second)),
	}).SignedString([]byte("backend-secret"))
	require.NoError(t, err)

	var refreshes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/auth/refresh" {
			refreshes.Add(1)
			writeJSON(w, 200, map[string]any{"data": TokenPair{AccessToken: "fresh", RefreshToken: "r2"}})
			return
		}
		assert.Equal(t, "Bearer fresh", r.Header.Get("Authorization"))
		writeJSON(w, 200, map[string]any{"success": true})
	}))
	defer srv.Close()

	ts := NewTokenStore(TokenPair{AccessToken: expiring, RefreshToken: "r1"})
	assert.Equal(t, "op-1", ts.Subject())

	c := NewClient(Config{BaseURL: srv.URL, RefreshSkew: time.Minute}, ts)
	_, err = c.Get(context.Background(), "/x", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, refreshes.Load())
}

func TestClient_RetriedMultipartIsReplayedIdentically(t *testing.T) {
	var bodies []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/auth/refresh" {
			writeJSON(w, 200, map[string]any{"data": TokenPair{AccessToken: "fresh"}})
			return
		}
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(401)
			return
		}
		assert.Equal(t, 2, strings.Count(string(b), `name="category_id"`))
		writeJSON(w, 200, map[string]any{"success": true})
	}))
	defer srv.Close()

	body, err := FormBody(map[string]any{"title": "Dune", "category_id": []any{3, 5}, "note": nil})
	require.NoError(t, err)

	c := NewClient(Config{BaseURL: srv.URL}, NewTokenStore(TokenPair{AccessToken: "stale", RefreshToken: "r"}))
	_, err = c.Post(context.Background(), "/books/create", body, nil)
	require.NoError(t, err)

	require.Len(t, bodies, 2)
	assert.Equal(t, bodies[0], bodies[1])
}

func TestFormBody_Conventions(t *testing.T) {
	body, err := FormBody(map[string]any{
		"title":     "Dune",
		"tags":      []any{"a", "b"},
		"published": true,
		"price":     float64(12.5),
		"subtitle":  nil,
		"cover":     []*multipart.FileHeader{},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"price", "published", "subtitle", "tags", "tags", "title"}, body.Keys())

	raw, err := body.Bytes()
	require.NoError(t, err)
	r := multipart.NewReader(strings.NewReader(string(raw)), strings.TrimPrefix(body.ContentType(), "multipart/form-data; boundary="))
	form, err := r.ReadForm(1 << 20)
	require.NoError(t, err)
	assert.Equal(t, []string{"12.5"}, form.Value["price"])
	assert.Equal(t, []string{"true"}, form.Value["published"])
	assert.Equal(t, []string{""}, form.Value["subtitle"])
}

func TestClient_Login(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var creds map[string]string
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds["password"] != "secret" {
			writeJSON(w, 401, map[string]any{"error": map[string]any{"message": "Invalid email or password"}})
			return
		}
		writeJSON(w, 200, map[string]any{"data": TokenPair{AccessToken: "a", RefreshToken: "r"}})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, nil)
	_, err := c.Login(context.Background(), "op@example.com", "wrong")
	assert.Equal(t, "Invalid email or password", UserMessage(err))

	pair, err := c.Login(context.Background(), "op@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "a", pair.AccessToken)
	assert.Equal(t, "a", c.Tokens().Access())
}
