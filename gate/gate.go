// Package gate sequences the asynchronous preconditions of a folder pick and
// opens the selection dialog exactly once when all of them are satisfied.
//
// Authorization, data client load and dialog load complete independently and
// in any order. Once authorization and the data client are ready the root
// folder id is looked up, and once the root folder id and the dialog are ready
// the dialog is opened. Every state change happens on a single event loop
// goroutine per pick, collaborators only post their completion to it.
package gate

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Item is the folder selected by the user.
type Item struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType,omitempty"`
	URL      string `json:"url,omitempty"`
	Path     string `json:"path,omitempty"`
}

// Request carries what the dialog needs once every precondition is met.
type Request struct {
	Token        string
	RootFolderID string
}

// Collaborators are the external services the gate waits on.
//
// Every method may block; they are always called from their own goroutine
// with the pick context, which is cancelled as soon as the pick is over.
type Collaborators interface {
	// Authorize returns an access token.
	Authorize(ctx context.Context) (string, error)
	// LoadClient prepares the data client.
	LoadClient(ctx context.Context) error
	// LoadUI prepares the selection dialog.
	LoadUI(ctx context.Context) error
	// FetchRootFolderID resolves the id of the root folder. It is only called
	// after Authorize and LoadClient succeeded.
	FetchRootFolderID(ctx context.Context, token string) (string, error)
	// OpenDialog shows the selection dialog and returns the picked item, or
	// ErrUserCancelled when the user dismissed it.
	OpenDialog(ctx context.Context, req Request) (Item, error)
}

// Result is the terminal outcome of a pick.
type Result struct {
	State State
	// Picked is true when the user confirmed a selection, Item is then set.
	Picked bool
	Item   Item
}

type eventKind int

const (
	authorized eventKind = iota
	clientLoaded
	pickerLoaded
	rootResolved
	dialogClosed
)

type event struct {
	kind      eventKind
	value     string
	item      Item
	dismissed bool
	err       error
}

// maxEvents is the number of events a pick can ever receive: one per
// precondition, one for the root lookup and one for the dialog.
const maxEvents = 5

// Pick is a running folder pick.
type Pick struct {
	ID string

	c          Collaborators
	onSelected func(Item)
	ctx        context.Context
	cancel     context.CancelFunc
	events     chan event
	log        zerolog.Logger
	s          session

	done   chan struct{}
	result Result
	err    error
}

// Start creates a fresh session and launches the three preconditions.
// onSelected is called at most once, with the user's selection. It may be nil
// when the caller only reads the Result.
//
// Cancelling ctx, or calling Cancel, abandons the pick: pending collaborators
// see their context cancelled and neither the dialog nor onSelected run
// afterwards.
func Start(ctx context.Context, c Collaborators, onSelected func(Item)) *Pick {
	if onSelected == nil {
		onSelected = func(Item) {}
	}
	id := uuid.NewString()
	pctx, cancel := context.WithCancel(ctx)
	p := &Pick{
		ID:         id,
		c:          c,
		onSelected: onSelected,
		ctx:        pctx,
		cancel:     cancel,
		events:     make(chan event, maxEvents),
		log:        zerolog.Ctx(ctx).With().Str("pick", id).Logger(),
		done:       make(chan struct{}),
	}

	go func() {
		token, err := c.Authorize(pctx)
		if err == nil && token == "" {
			err = errors.New("empty access token")
		}
		p.events <- event{kind: authorized, value: token, err: wrap(ErrAuthorizationDenied, err)}
	}()
	go func() {
		err := c.LoadClient(pctx)
		p.events <- event{kind: clientLoaded, err: wrap(ErrDependencyLoad, err)}
	}()
	go func() {
		err := c.LoadUI(pctx)
		p.events <- event{kind: pickerLoaded, err: wrap(ErrDependencyLoad, err)}
	}()

	go p.loop()
	return p
}

// Cancel abandons the pick. It is a no-op once the pick is over.
func (p *Pick) Cancel() {
	p.cancel()
}

// Done is closed once the pick reached a terminal state.
func (p *Pick) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the pick is over or ctx is done. A user cancelling the
// dialog is not an error: the Result is Fired and not Picked.
func (p *Pick) Wait(ctx context.Context) (Result, error) {
	select {
	case <-p.done:
		return p.result, p.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (p *Pick) loop() {
	defer close(p.done)
	defer p.cancel()

	p.log.Debug().Msg("pick started")
	for !p.s.state.Terminal() {
		select {
		case ev := <-p.events:
			p.handle(ev)
		case <-p.ctx.Done():
			if p.s.cancel(fmt.Errorf("%w: %w", ErrCancelled, context.Cause(p.ctx))) {
				p.log.Debug().Msg("pick cancelled")
			}
		}
	}

	p.result.State = p.s.state
	p.err = p.s.err
	p.log.Debug().Stringer("state", p.s.state).Err(p.err).Msg("pick over")
}

func (p *Pick) handle(ev event) {
	// Once cancelled, no completion may advance the session, whichever
	// branch of the loop select won. A collaborator aborting because of the
	// cancellation is not a failure either.
	if p.ctx.Err() != nil {
		if p.s.cancel(fmt.Errorf("%w: %w", ErrCancelled, context.Cause(p.ctx))) {
			p.log.Debug().Msg("pick cancelled")
		}
		return
	}
	if ev.err != nil {
		if p.s.fail(ev.err) {
			p.log.Debug().Err(ev.err).Msg("pick failed")
		}
		return
	}

	var actions []action
	switch ev.kind {
	case authorized:
		p.log.Debug().Msg("authorized")
		actions = p.s.authorized(ev.value)
	case clientLoaded:
		p.log.Debug().Msg("data client loaded")
		actions = p.s.clientLoaded()
	case pickerLoaded:
		p.log.Debug().Msg("dialog loaded")
		actions = p.s.pickerLoaded()
	case rootResolved:
		p.log.Debug().Str("root", ev.value).Msg("root folder resolved")
		actions = p.s.rootResolved(ev.value)
	case dialogClosed:
		if !p.s.done() {
			return
		}
		if !ev.dismissed {
			p.result.Picked = true
			p.result.Item = ev.item
			p.log.Debug().Str("folder", ev.item.ID).Msg("folder picked")
			p.onSelected(ev.item)
		} else {
			p.log.Debug().Msg("dialog dismissed")
		}
		return
	}
	p.run(actions)
}

func (p *Pick) run(actions []action) {
	for _, a := range actions {
		switch a {
		case lookupRoot:
			token := p.s.authToken
			go func() {
				id, err := p.c.FetchRootFolderID(p.ctx, token)
				if err == nil && id == "" {
					err = errors.New("empty root folder id")
				}
				p.events <- event{kind: rootResolved, value: id, err: wrap(ErrRootFolderLookup, err)}
			}()
		case fire:
			req := Request{Token: p.s.authToken, RootFolderID: p.s.rootFolderID}
			go func() {
				if err := p.ctx.Err(); err != nil {
					p.events <- event{kind: dialogClosed, err: err}
					return
				}
				item, err := p.c.OpenDialog(p.ctx, req)
				if errors.Is(err, ErrUserCancelled) {
					p.events <- event{kind: dialogClosed, dismissed: true}
					return
				}
				p.events <- event{kind: dialogClosed, item: item, err: wrap(ErrDialog, err)}
			}()
		}
	}
}

// wrap tags err with the failure kind unless it already carries it.
func wrap(kind, err error) error {
	if err == nil || errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}
