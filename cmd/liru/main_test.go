package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appcfg "github.com/park285/liru-go/internal/config"
	"github.com/park285/liru-go/internal/cookiestore"
	"github.com/park285/liru-go/internal/lila"
	"github.com/park285/liru-go/internal/msgcat"
)

func lilaServer(t *testing.T, logins *int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			*logins++
			_ = r.ParseForm()
			if r.PostForm.Get("password") != "pw" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			http.SetCookie(w, &http.Cookie{Name: "lila2", Value: "fresh"})
			_, _ = w.Write([]byte(`{"id":"alice","username":"Alice"}`))
		case "/account/info":
			c, err := r.Cookie("lila2")
			if err != nil || c.Value == "stale" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"id":"alice","username":"Alice","nowPlaying":[{"fullId":"abcdefgh1234","gameId":"abcdefgh"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAuthenticateAnonymous(t *testing.T) {
	u, err := authenticate(context.Background(), &appcfg.AppConfig{}, lila.NewClient("http://127.0.0.1:1"),
		cookiestore.NewMemory(nil), msgcat.Default(), os.Stdin, &strings.Builder{})
	require.NoError(t, err)
	assert.True(t, u.Anonymous())
}

func TestAuthenticateSignsInAndStoresCookies(t *testing.T) {
	var logins int
	srv := lilaServer(t, &logins)
	store := cookiestore.NewMemory(nil)
	cfg := &appcfg.AppConfig{Username: "Alice", Password: "pw"}

	u, err := authenticate(context.Background(), cfg, lila.NewClient(srv.URL), store, msgcat.Default(), os.Stdin, &strings.Builder{})
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.Username)
	assert.Equal(t, 1, logins)

	saved, err := store.Load(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"lila2": "fresh"}, saved)

	// A second run reuses the stored cookie.
	u, err = authenticate(context.Background(), cfg, lila.NewClient(srv.URL), store, msgcat.Default(), os.Stdin, &strings.Builder{})
	require.NoError(t, err)
	assert.Equal(t, "abcdefgh1234", gamePath(nil, u))
	assert.Equal(t, 1, logins)
}

func TestAuthenticateReplacesStaleCookies(t *testing.T) {
	var logins int
	srv := lilaServer(t, &logins)
	store := cookiestore.NewMemory(nil)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "alice", map[string]string{"lila2": "stale"}, cookiestore.DefaultTTL))

	client := lila.NewClient(srv.URL)
	_, err := authenticate(ctx, &appcfg.AppConfig{Username: "alice", Password: "pw"}, client, store, msgcat.Default(), os.Stdin, &strings.Builder{})
	require.NoError(t, err)
	assert.Equal(t, 1, logins)
	v, _ := client.Jar().Get("lila2")
	assert.Equal(t, "fresh", v)
}

func TestAuthenticateRejected(t *testing.T) {
	var logins int
	srv := lilaServer(t, &logins)
	_, err := authenticate(context.Background(), &appcfg.AppConfig{Username: "alice", Password: "bad"},
		lila.NewClient(srv.URL), cookiestore.NewMemory(nil), msgcat.Default(), os.Stdin, &strings.Builder{})
	assert.ErrorIs(t, err, lila.ErrUnauthorized)
}

func TestGamePath(t *testing.T) {
	assert.Equal(t, "abc/white", gamePath([]string{"/abc/white"}, nil))
	assert.Equal(t, "tv/best", gamePath(nil, lila.AnonymousUser()))
	assert.Equal(t, "tv/best", gamePath([]string{"  "}, nil))
}
