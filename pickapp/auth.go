package pickapp

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/etnz/drivepick/gate"
	"github.com/pkg/browser"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
)

// Authorizer obtains an OAuth 2.0 token for the Drive API, from the cache
// when possible, from the user's consent otherwise.
//
// Once authorized it is the token source of the Drive client.
type Authorizer struct {
	config    oauth2.Config
	tokenPath string

	// OpenURL opens the consent page. Defaults to the system browser.
	OpenURL func(string) error
	// Out receives the instructions printed to the user.
	Out io.Writer

	mu  sync.Mutex
	src oauth2.TokenSource
}

// NewAuthorizer returns an Authorizer for the read-only Drive scope.
func NewAuthorizer(cfg Config) *Authorizer {
	return &Authorizer{
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{drive.DriveReadonlyScope},
			Endpoint:     google.Endpoint,
		},
		tokenPath: cfg.TokenPath,
		OpenURL:   browser.OpenURL,
		Out:       os.Stderr,
	}
}

// Authorize returns a valid access token. A cached token is used, and
// refreshed, when possible. Otherwise the user is asked for consent.
func (a *Authorizer) Authorize(ctx context.Context) (string, error) {
	log := zerolog.Ctx(ctx)
	// The token source outlives the pick that created it.
	bg := context.WithoutCancel(ctx)

	tok, err := a.loadToken()
	if err == nil {
		src := oauth2.ReuseTokenSource(tok, a.config.TokenSource(bg, tok))
		fresh, err := src.Token()
		if err == nil {
			if fresh.AccessToken != tok.AccessToken {
				if err := a.saveToken(fresh); err != nil {
					log.Warn().Err(err).Msg("failed to cache refreshed token")
				}
			}
			a.setSource(a.cachingSource(bg, src, fresh))
			log.Debug().Msg("using cached token")
			return fresh.AccessToken, nil
		}
		log.Debug().Err(err).Msg("cached token cannot be refreshed, asking for consent")
	} else {
		log.Debug().Err(err).Msg("no cached token")
	}

	tok, err = a.Login(ctx)
	if err != nil {
		return "", err
	}
	a.setSource(a.cachingSource(bg, oauth2.ReuseTokenSource(tok, a.config.TokenSource(bg, tok)), tok))
	return tok.AccessToken, nil
}

// cachingSource wraps src so that every token it refreshes after last is
// written back to the cache.
func (a *Authorizer) cachingSource(ctx context.Context, src oauth2.TokenSource, last *oauth2.Token) oauth2.TokenSource {
	return &savingSource{ctx: ctx, a: a, src: src, last: last.AccessToken}
}

type savingSource struct {
	ctx context.Context
	a   *Authorizer
	src oauth2.TokenSource

	mu   sync.Mutex
	last string
}

func (c *savingSource) Token() (*oauth2.Token, error) {
	tok, err := c.src.Token()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if tok.AccessToken == c.last {
		return tok, nil
	}
	c.last = tok.AccessToken
	if err := c.a.saveToken(tok); err != nil {
		zerolog.Ctx(c.ctx).Warn().Err(err).Msg("failed to cache refreshed token")
	} else {
		zerolog.Ctx(c.ctx).Debug().Str("path", c.a.tokenPath).Msg("refreshed token cached")
	}
	return tok, nil
}

// Token implements oauth2.TokenSource. It fails until Authorize succeeded.
func (a *Authorizer) Token() (*oauth2.Token, error) {
	a.mu.Lock()
	src := a.src
	a.mu.Unlock()
	if src == nil {
		return nil, errors.New("not authorized yet")
	}
	return src.Token()
}

func (a *Authorizer) setSource(src oauth2.TokenSource) {
	a.mu.Lock()
	a.src = src
	a.mu.Unlock()
}

// Login runs the OAuth 2.0 consent flow, stores and returns the user token.
func (a *Authorizer) Login(ctx context.Context) (*oauth2.Token, error) {
	log := zerolog.Ctx(ctx)

	// Create a random state string for CSRF protection.
	state, err := randomState()
	if err != nil {
		return nil, err
	}

	redirect, err := url.Parse(a.config.RedirectURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URL %q: %w", a.config.RedirectURL, err)
	}
	ln, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to start callback server: %w", err)
	}
	// The listener may have picked the port.
	_, port, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("unexpected callback address: %w", err)
	}
	conf := a.config
	redirect.Host = net.JoinHostPort(redirect.Hostname(), port)
	conf.RedirectURL = redirect.String()

	// Use channels to receive the authorization code from the HTTP handler.
	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	callbackPath := redirect.Path
	if callbackPath == "" {
		callbackPath = "/"
	}
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		// Check for errors from Google.
		if errMsg := r.FormValue("error"); errMsg != "" {
			send(errChan, fmt.Errorf("%w: %s", gate.ErrAuthorizationDenied, errMsg))
			fmt.Fprintf(w, "Authorization denied. You can close this window.")
			return
		}

		// Verify the state parameter.
		if r.FormValue("state") != state {
			http.Error(w, "Invalid state parameter.", http.StatusBadRequest)
			return
		}

		send(codeChan, r.FormValue("code"))
		fmt.Fprintf(w, "Authorization successful! You can now close this browser window and return to the terminal.")
	})
	server := &http.Server{Handler: mux}

	go func() {
		if err := server.Serve(ln); err != http.ErrServerClosed {
			send(errChan, fmt.Errorf("callback server error: %w", err))
		}
	}()
	defer func() {
		// we can now safely shutdown the server
		if err := server.Shutdown(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Msg("failed to shutdown callback server")
		}
	}()

	// Get the authorization URL and open it in the user's browser.
	authURL := conf.AuthCodeURL(state, oauth2.AccessTypeOffline)
	fmt.Fprintln(a.Out, "Your browser should open for you to grant drivepick access to your Google Drive...")
	if err := a.OpenURL(authURL); err != nil {
		fmt.Fprintf(a.Out, "\nIf your browser didn't open, please open this URL manually:\n\n%s\n\n", authURL)
	}

	// Wait for the authorization code or an error.
	var authCode string
	select {
	case authCode = <-codeChan:
	case err := <-errChan:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// Exchange the code for a token.
	tok, err := conf.Exchange(ctx, authCode)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to exchange authorization code for token: %w", gate.ErrAuthorizationDenied, err)
	}
	if err := a.saveToken(tok); err != nil {
		return nil, err
	}
	log.Debug().Str("path", a.tokenPath).Msg("token cached")
	return tok, nil
}

// Logout removes the cached token.
func (a *Authorizer) Logout() error {
	if err := os.Remove(a.tokenPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove cached token: %w", err)
	}
	a.setSource(nil)
	return nil
}

// saveToken saves a token to the cache file.
func (a *Authorizer) saveToken(token *oauth2.Token) error {
	// Ensure the directory exists.
	if err := os.MkdirAll(filepath.Dir(a.tokenPath), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Open the file with secure permissions (read/write for user only).
	f, err := os.OpenFile(a.tokenPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache oauth token: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("failed to encode token to file: %w", err)
	}
	return nil
}

// loadToken reads the cached token.
func (a *Authorizer) loadToken() (*oauth2.Token, error) {
	f, err := os.Open(a.tokenPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open token file: %w", err)
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("token file is empty")
		}
		return nil, fmt.Errorf("failed to decode token from file: %w", err)
	}
	return tok, nil
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random state: %w", err)
	}
	return fmt.Sprintf("%x", b), nil
}

// send delivers v unless the channel already holds a value.
func send[T any](c chan T, v T) {
	select {
	case c <- v:
	default:
	}
}
