package pickapp

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net"
	"net/http"
	"os"
	"sync"

	"github.com/etnz/drivepick/gate"
	"github.com/pkg/browser"
	"github.com/rs/zerolog"
)

//go:embed picker.html
var pageFS embed.FS

// PathResolver resolves the path of a folder.
type PathResolver interface {
	FolderPath(ctx context.Context, folderID string) (string, error)
}

// BrowserDialog shows the Google Picker in the user's browser. The page is
// served from a loopback server and posts the user's choice back to it.
type BrowserDialog struct {
	apiKey   string
	resolver PathResolver

	// OpenURL opens the picker page. Defaults to the system browser.
	OpenURL func(string) error
	// Out receives the instructions printed to the user.
	Out io.Writer

	page    *template.Template
	ln      net.Listener
	state   string
	results chan pickResult

	mu  sync.Mutex
	req *gate.Request
}

type pickResult struct {
	State    string `json:"state"`
	Action   string `json:"action"`
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	URL      string `json:"url"`
}

// NewBrowserDialog creates a BrowserDialog using the developer key apiKey.
// resolver, when not nil, fills the path of the picked folder.
func NewBrowserDialog(apiKey string, resolver PathResolver) *BrowserDialog {
	return &BrowserDialog{
		apiKey:   apiKey,
		resolver: resolver,
		OpenURL:  browser.OpenURL,
		Out:      os.Stderr,
	}
}

// Load parses the picker page and starts the loopback server. The server
// stops when ctx is done.
func (d *BrowserDialog) Load(ctx context.Context) error {
	page, err := template.ParseFS(pageFS, "picker.html")
	if err != nil {
		return fmt.Errorf("failed to parse picker page: %w", err)
	}
	state, err := randomState()
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to start picker server: %w", err)
	}
	d.page = page
	d.state = state
	d.ln = ln
	d.results = make(chan pickResult, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", d.servePage)
	mux.HandleFunc("POST /result", d.serveResult)
	server := &http.Server{Handler: mux}

	log := zerolog.Ctx(ctx)
	go func() {
		if err := server.Serve(ln); err != http.ErrServerClosed {
			log.Error().Err(err).Msg("picker server error")
		}
	}()
	go func() {
		<-ctx.Done()
		if err := server.Shutdown(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Msg("failed to shutdown picker server")
		}
	}()
	log.Debug().Str("addr", ln.Addr().String()).Msg("picker server listening")
	return nil
}

// Open shows the picker and waits for the user's choice.
func (d *BrowserDialog) Open(ctx context.Context, req gate.Request) (gate.Item, error) {
	if d.ln == nil {
		return gate.Item{}, fmt.Errorf("browser dialog is not loaded")
	}
	if err := ctx.Err(); err != nil {
		return gate.Item{}, err
	}
	d.mu.Lock()
	d.req = &req
	d.mu.Unlock()

	pageURL := fmt.Sprintf("http://%s/?state=%s", d.ln.Addr(), d.state)
	fmt.Fprintln(d.Out, "Your browser should open for you to pick a folder...")
	if err := d.OpenURL(pageURL); err != nil {
		fmt.Fprintf(d.Out, "\nIf your browser didn't open, please open this URL manually:\n\n%s\n\n", pageURL)
	}

	var res pickResult
	select {
	case res = <-d.results:
	case <-ctx.Done():
		return gate.Item{}, ctx.Err()
	}
	if res.Action != "picked" {
		return gate.Item{}, gate.ErrUserCancelled
	}

	item := gate.Item{ID: res.ID, Name: res.Name, MimeType: res.MimeType, URL: res.URL}
	if d.resolver != nil {
		path, err := d.resolver.FolderPath(ctx, res.ID)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("folder", res.ID).Msg("failed to resolve folder path")
		} else {
			item.Path = path
		}
	}
	return item, nil
}

func (d *BrowserDialog) servePage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("state") != d.state {
		http.Error(w, "Invalid state parameter.", http.StatusBadRequest)
		return
	}
	d.mu.Lock()
	req := d.req
	d.mu.Unlock()
	if req == nil {
		http.Error(w, "The picker is not ready yet.", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := d.page.Execute(w, struct {
		APIKey       string
		Token        string
		RootFolderID string
		State        string
	}{d.apiKey, req.Token, req.RootFolderID, d.state})
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to render picker page")
	}
}

func (d *BrowserDialog) serveResult(w http.ResponseWriter, r *http.Request) {
	var res pickResult
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&res); err != nil {
		http.Error(w, "Invalid result.", http.StatusBadRequest)
		return
	}
	if res.State != d.state {
		http.Error(w, "Invalid state parameter.", http.StatusBadRequest)
		return
	}
	switch res.Action {
	case "picked":
		if res.ID == "" {
			http.Error(w, "Missing folder id.", http.StatusBadRequest)
			return
		}
	case "cancel":
	default:
		http.Error(w, "Unknown action.", http.StatusBadRequest)
		return
	}
	send(d.results, res)
	w.WriteHeader(http.StatusNoContent)
}
