package pickapp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/etnz/drivepick/gate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// newTestAuthorizer returns an Authorizer whose token endpoint is a fake and
// whose callback server listens on a free loopback port.
func newTestAuthorizer(t *testing.T, tokenPath string) (*Authorizer, *atomic.Int32) {
	t.Helper()
	var exchanges atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error":"invalid_grant"}`)
			return
		}
		exchanges.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-1",
			"refresh_token": "refresh-1",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	t.Cleanup(srv.Close)

	a := NewAuthorizer(Config{
		ClientID:    "client-id",
		RedirectURL: "http://127.0.0.1:0/callback",
		TokenPath:   tokenPath,
	})
	a.config.Endpoint = oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"}
	a.Out = io.Discard
	return a, &exchanges
}

// consent simulates the user answering the consent page with the given
// callback parameters. The state is taken from the consent URL unless set.
func consent(t *testing.T, params url.Values) func(string) error {
	return func(authURL string) error {
		u, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		redirect := u.Query().Get("redirect_uri")
		if _, ok := params["state"]; !ok {
			params.Set("state", u.Query().Get("state"))
		}
		go func() {
			resp, err := http.Get(redirect + "?" + params.Encode())
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestAuthorizeConsentAndCache(t *testing.T) {
	tokenPath := filepath.Join(t.TempDir(), "drivepick", "token.json")
	a, exchanges := newTestAuthorizer(t, tokenPath)
	a.OpenURL = consent(t, url.Values{"code": {"good-code"}})

	_, err := a.Token()
	assert.Error(t, err, "no token before authorization")

	token, err := a.Authorize(testCtx(t))
	require.NoError(t, err)
	assert.Equal(t, "access-1", token)
	assert.EqualValues(t, 1, exchanges.Load())

	tok, err := a.Token()
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok.AccessToken)

	info, err := os.Stat(tokenPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// A new authorizer uses the cache without asking the user.
	b, _ := newTestAuthorizer(t, tokenPath)
	b.OpenURL = func(string) error {
		t.Error("consent page opened with a valid cached token")
		return errors.New("unexpected")
	}
	token, err = b.Authorize(testCtx(t))
	require.NoError(t, err)
	assert.Equal(t, "access-1", token)
}

func TestAuthorizeDenied(t *testing.T) {
	a, exchanges := newTestAuthorizer(t, filepath.Join(t.TempDir(), "token.json"))
	a.OpenURL = consent(t, url.Values{"error": {"access_denied"}})

	_, err := a.Authorize(testCtx(t))
	require.ErrorIs(t, err, gate.ErrAuthorizationDenied)
	assert.Contains(t, err.Error(), "access_denied")
	assert.Zero(t, exchanges.Load())
}

func TestAuthorizeBadCode(t *testing.T) {
	a, _ := newTestAuthorizer(t, filepath.Join(t.TempDir(), "token.json"))
	a.OpenURL = consent(t, url.Values{"code": {"stolen-code"}})

	_, err := a.Authorize(testCtx(t))
	require.ErrorIs(t, err, gate.ErrAuthorizationDenied)
}

func TestAuthorizeForgedState(t *testing.T) {
	a, _ := newTestAuthorizer(t, filepath.Join(t.TempDir(), "token.json"))
	a.OpenURL = consent(t, url.Values{"code": {"good-code"}, "state": {"forged"}})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := a.Authorize(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAuthorizeExpiredCache(t *testing.T) {
	tokenPath := filepath.Join(t.TempDir(), "token.json")
	a, exchanges := newTestAuthorizer(t, tokenPath)
	// Expired and not refreshable: the user is asked again.
	require.NoError(t, a.saveToken(&oauth2.Token{AccessToken: "old", Expiry: time.Now().Add(-time.Hour)}))
	a.OpenURL = consent(t, url.Values{"code": {"good-code"}})

	token, err := a.Authorize(testCtx(t))
	require.NoError(t, err)
	assert.Equal(t, "access-1", token)
	assert.EqualValues(t, 1, exchanges.Load())
}

func TestLogout(t *testing.T) {
	tokenPath := filepath.Join(t.TempDir(), "token.json")
	a, _ := newTestAuthorizer(t, tokenPath)
	require.NoError(t, a.saveToken(&oauth2.Token{AccessToken: "access-1"}))

	_, err := a.Authorize(testCtx(t))
	require.NoError(t, err)

	require.NoError(t, a.Logout())
	_, err = os.Stat(tokenPath)
	assert.True(t, os.IsNotExist(err))
	_, err = a.Token()
	assert.Error(t, err)

	assert.NoError(t, a.Logout(), "logging out twice is fine")
}

// rotatingSource hands out the tokens in order, repeating the last one.
type rotatingSource struct {
	tokens []string
	calls  int
}

func (r *rotatingSource) Token() (*oauth2.Token, error) {
	i := min(r.calls, len(r.tokens)-1)
	r.calls++
	return &oauth2.Token{AccessToken: r.tokens[i], RefreshToken: "refresh-1"}, nil
}

func TestAuthorizeCachesRefreshedToken(t *testing.T) {
	tokenPath := filepath.Join(t.TempDir(), "token.json")
	a, _ := newTestAuthorizer(t, tokenPath)
	require.NoError(t, a.saveToken(&oauth2.Token{AccessToken: "access-1", RefreshToken: "refresh-1"}))

	src := a.cachingSource(testCtx(t), &rotatingSource{tokens: []string{"access-1", "access-2"}}, &oauth2.Token{AccessToken: "access-1"})
	a.setSource(src)

	tok, err := a.Token()
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok.AccessToken)
	cached, err := a.loadToken()
	require.NoError(t, err)
	assert.Equal(t, "access-1", cached.AccessToken)

	// The Drive client refreshes the token later in the session.
	tok, err = a.Token()
	require.NoError(t, err)
	assert.Equal(t, "access-2", tok.AccessToken)
	cached, err = a.loadToken()
	require.NoError(t, err)
	assert.Equal(t, "access-2", cached.AccessToken)
	assert.Equal(t, "refresh-1", cached.RefreshToken)

	// A new authorizer starts from the refreshed token.
	b, _ := newTestAuthorizer(t, tokenPath)
	cached, err = b.loadToken()
	require.NoError(t, err)
	assert.Equal(t, "access-2", cached.AccessToken)
}
