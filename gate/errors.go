package gate

import "errors"

var (
	// ErrAuthorizationDenied is reported when the user or the provider refuses
	// the authorization.
	ErrAuthorizationDenied = errors.New("authorization denied")
	// ErrDependencyLoad is reported when the data client or the dialog could
	// not be loaded.
	ErrDependencyLoad = errors.New("dependency load failure")
	// ErrRootFolderLookup is reported when the root folder id cannot be
	// resolved.
	ErrRootFolderLookup = errors.New("root folder lookup failure")
	// ErrDialog is reported when the selection dialog failed after opening.
	ErrDialog = errors.New("selection dialog failure")
	// ErrUserCancelled is returned by a dialog when the user dismissed it.
	// It is a normal outcome, never surfaced by Pick.Wait as an error.
	ErrUserCancelled = errors.New("user cancelled")
	// ErrCancelled is reported when the caller abandoned the pick.
	ErrCancelled = errors.New("pick cancelled")
)
