package pickapp

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// App holds the Google Drive service client used during a pick.
type App struct {
	tokens oauth2.TokenSource
	opts   []option.ClientOption

	mu      sync.Mutex
	service *drive.Service
	rootID  string
}

// NewApp returns an App whose Drive client authenticates with tokens. The
// client itself is only built by LoadClient, tokens may not be able to serve
// a token before then.
func NewApp(tokens oauth2.TokenSource, opts ...option.ClientOption) *App {
	return &App{tokens: tokens, opts: opts}
}

// LoadClient builds the Drive service client.
func (a *App) LoadClient(ctx context.Context) error {
	httpClient := oauth2.NewClient(context.WithoutCancel(ctx), a.tokens)
	opts := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, a.opts...)

	driveService, err := drive.NewService(ctx, opts...)
	if err != nil {
		return fmt.Errorf("could not create drive service: %w", err)
	}

	a.mu.Lock()
	a.service = driveService
	a.mu.Unlock()
	return nil
}

func (a *App) drive() (*drive.Service, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.service == nil {
		return nil, fmt.Errorf("drive client not loaded")
	}
	return a.service, nil
}
