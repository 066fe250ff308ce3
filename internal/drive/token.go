package drive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// tokenRefreshBuffer is how close to expiry a cached access token may get
// before it is proactively re-fetched.
const tokenRefreshBuffer = 5 * time.Minute

// ErrNoCredential is returned when no app credential has been installed.
// The user must be logged in before the pipeline can reach Drive.
var ErrNoCredential = errors.New("drive: no credential installed")

// TokenSource supplies a bearer access token for Drive API calls.
// Defined here at the consumer per "accept interfaces, return structs".
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// tokenResponse is the backend exchange payload.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at"` // RFC 3339
}

// TokenManager exchanges the app's bearer credential (a backend-issued JWT)
// for a Google access token via the backend's token endpoint, and caches the
// result process-wide until it is within tokenRefreshBuffer of expiry.
type TokenManager struct {
	endpoint   string // full URL of the token exchange endpoint
	httpClient *http.Client
	logger     *slog.Logger

	mu         sync.Mutex
	credential string
	cached     string
	expiry     time.Time

	now func() time.Time
}

// NewTokenManager creates a token manager against the given exchange endpoint
// (typically "<api base>/auth/google-token").
func NewTokenManager(endpoint string, httpClient *http.Client, logger *slog.Logger) *TokenManager {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &TokenManager{
		endpoint:   endpoint,
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}
}

// SetCredential installs the app credential used for token exchange.
// The cached access token is dropped so the next call re-fetches under the
// new identity.
func (m *TokenManager) SetCredential(credential string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.credential = credential
	m.cached = ""
	m.expiry = time.Time{}
}

// ClearCache drops the cached access token without touching the credential.
func (m *TokenManager) ClearCache() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cached = ""
	m.expiry = time.Time{}
}

// Token returns a valid access token, re-fetching when the cached one is
// within tokenRefreshBuffer of expiry.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.credential == "" {
		return "", ErrNoCredential
	}

	if m.cached != "" && m.now().Before(m.expiry.Add(-tokenRefreshBuffer)) {
		return m.cached, nil
	}

	return m.fetchLocked(ctx)
}

// fetchLocked fetches a fresh token from the backend. Caller holds m.mu.
func (m *TokenManager) fetchLocked(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("drive: building token request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+m.credential)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", networkError("token exchange", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)

		m.logger.Warn("token exchange failed",
			slog.Int("status", resp.StatusCode),
		)

		return "", statusError(resp.StatusCode, string(body))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("drive: decoding token response: %w", err)
	}

	expiry, err := time.Parse(time.RFC3339, tr.ExpiresAt)
	if err != nil {
		return "", fmt.Errorf("drive: parsing token expiry %q: %w", tr.ExpiresAt, err)
	}

	m.cached = tr.AccessToken
	m.expiry = expiry

	m.logger.Debug("access token refreshed", slog.Time("expiry", expiry))

	return m.cached, nil
}

// oauthBridge adapts an oauth2.TokenSource to the drive TokenSource, for
// deployments that hold their own Google OAuth client instead of going
// through the backend exchange.
type oauthBridge struct {
	src oauth2.TokenSource
}

// NewOAuthTokenSource wraps an oauth2.TokenSource (with whatever refresh
// behavior it carries) as a drive TokenSource.
func NewOAuthTokenSource(src oauth2.TokenSource) TokenSource {
	return &oauthBridge{src: src}
}

func (b *oauthBridge) Token(_ context.Context) (string, error) {
	t, err := b.src.Token()
	if err != nil {
		return "", fmt.Errorf("drive: obtaining oauth token: %w", err)
	}

	return t.AccessToken, nil
}
