package pickapp

import (
	"context"

	"github.com/etnz/drivepick/gate"
)

// Dialog is a folder selection dialog.
type Dialog interface {
	// Load prepares the dialog. Resources it holds are released when ctx is
	// done.
	Load(ctx context.Context) error
	// Open shows the dialog from the root folder of req and returns the
	// picked folder, or gate.ErrUserCancelled.
	Open(ctx context.Context, req gate.Request) (gate.Item, error)
}

// Picker binds the Google collaborators of a pick together.
type Picker struct {
	Auth   *Authorizer
	App    *App
	Dialog Dialog
}

var _ gate.Collaborators = (*Picker)(nil)

// NewPicker creates a Picker whose Drive client is authorized by auth.
func NewPicker(auth *Authorizer, dialog Dialog) *Picker {
	return &Picker{Auth: auth, App: NewApp(auth), Dialog: dialog}
}

// Start starts a pick, calling onSelected with the folder picked by the user.
func (p *Picker) Start(ctx context.Context, onSelected func(gate.Item)) *gate.Pick {
	return gate.Start(ctx, p, onSelected)
}

func (p *Picker) Authorize(ctx context.Context) (string, error) { return p.Auth.Authorize(ctx) }

func (p *Picker) LoadClient(ctx context.Context) error { return p.App.LoadClient(ctx) }

func (p *Picker) LoadUI(ctx context.Context) error { return p.Dialog.Load(ctx) }

func (p *Picker) FetchRootFolderID(ctx context.Context, token string) (string, error) {
	return p.App.FetchRootFolderID(ctx, token)
}

func (p *Picker) OpenDialog(ctx context.Context, req gate.Request) (gate.Item, error) {
	return p.Dialog.Open(ctx, req)
}
