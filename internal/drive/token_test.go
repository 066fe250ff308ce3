package drive

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

// newTokenServer returns a server that exchanges any credential for a token
// valid until expiry, counting fetches.
func newTokenServer(t *testing.T, expiry time.Time, fetches *int) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*fetches++

		if got := r.Header.Get("Authorization"); got != "Bearer app-credential" {
			t.Errorf("auth header = %q", got)
		}

		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "google-token",
			"expires_at":   expiry.Format(time.RFC3339),
		})
	}))
}

func TestTokenManager_NoCredential(t *testing.T) {
	t.Parallel()

	m := NewTokenManager("http://unused", nil, testLogger(t))

	if _, err := m.Token(context.Background()); !errors.Is(err, ErrNoCredential) {
		t.Errorf("Token without credential = %v, want ErrNoCredential", err)
	}
}

func TestTokenManager_CachesUntilRefreshBuffer(t *testing.T) {
	t.Parallel()

	var fetches int

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	expiry := now.Add(time.Hour)

	srv := newTokenServer(t, expiry, &fetches)
	defer srv.Close()

	m := NewTokenManager(srv.URL, srv.Client(), testLogger(t))
	m.now = func() time.Time { return now }
	m.SetCredential("app-credential")

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tok, err := m.Token(ctx)
		if err != nil {
			t.Fatalf("Token: %v", err)
		}

		if tok != "google-token" {
			t.Errorf("token = %q", tok)
		}
	}

	if fetches != 1 {
		t.Errorf("fetches = %d, want 1 (cached)", fetches)
	}

	// Step inside the refresh buffer: the cached token is no longer trusted.
	now = expiry.Add(-4 * time.Minute)

	if _, err := m.Token(ctx); err != nil {
		t.Fatalf("Token: %v", err)
	}

	if fetches != 2 {
		t.Errorf("fetches = %d, want 2 (refreshed inside buffer)", fetches)
	}
}

func TestTokenManager_SetCredentialDropsCache(t *testing.T) {
	t.Parallel()

	var fetches int

	srv := newTokenServer(t, time.Now().Add(time.Hour), &fetches)
	defer srv.Close()

	m := NewTokenManager(srv.URL, srv.Client(), testLogger(t))
	m.SetCredential("app-credential")

	ctx := context.Background()

	if _, err := m.Token(ctx); err != nil {
		t.Fatalf("Token: %v", err)
	}

	m.SetCredential("app-credential")

	if _, err := m.Token(ctx); err != nil {
		t.Fatalf("Token: %v", err)
	}

	if fetches != 2 {
		t.Errorf("fetches = %d, want 2 (cache dropped on credential change)", fetches)
	}
}

func TestTokenManager_ExchangeFailureClassified(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	m := NewTokenManager(srv.URL, srv.Client(), testLogger(t))
	m.SetCredential("expired-credential")

	_, err := m.Token(context.Background())
	if err == nil {
		t.Fatal("Token with rejected credential should fail")
	}

	var de *Error
	if !errors.As(err, &de) || de.Kind != KindAuth {
		t.Errorf("err = %v, want KindAuth", err)
	}
}

func TestOAuthBridge(t *testing.T) {
	t.Parallel()

	src := fakeOAuthSource{token: "oauth-token"}

	ts := NewOAuthTokenSource(src)

	tok, err := ts.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}

	if tok != "oauth-token" {
		t.Errorf("token = %q, want oauth-token", tok)
	}
}

type fakeOAuthSource struct {
	token string
}

func (f fakeOAuthSource) Token() (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: f.token}, nil
}
