package pickapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

const folderMimeType = "application/vnd.google-apps.folder"

// maxDepth bounds the parent walk of FolderPath.
const maxDepth = 64

// Folder is a folder within Google Drive.
type Folder struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Parents []string `json:"parents,omitempty"`
}

// FetchRootFolderID returns the id of the user's "My Drive" folder.
// The token is already carried by the Drive client.
func (a *App) FetchRootFolderID(ctx context.Context, _ string) (string, error) {
	srv, err := a.drive()
	if err != nil {
		return "", err
	}

	var id string
	err = retry.Do(func() error {
		f, err := srv.Files.Get("root").Fields("id").Context(ctx).Do()
		if err != nil {
			if !transient(err) {
				return retry.Unrecoverable(err)
			}
			return err
		}
		id = f.Id
		return nil
	},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			zerolog.Ctx(ctx).Debug().Err(err).Uint("attempt", n+1).Msg("retrying root folder lookup")
		}),
	)
	if err != nil {
		return "", fmt.Errorf("failed to get root folder: %w", err)
	}

	a.mu.Lock()
	a.rootID = id
	a.mu.Unlock()
	return id, nil
}

// transient reports whether a Drive API error is worth retrying.
func transient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500
	}
	// Network level failure.
	return true
}

// ListFolders lists the folders directly within parentID, sorted by name.
func (a *App) ListFolders(ctx context.Context, parentID string) ([]Folder, error) {
	srv, err := a.drive()
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("'%s' in parents and mimeType = '%s' and trashed = false", escapeQuery(parentID), folderMimeType)
	var folders []Folder
	err = srv.Files.List().
		Q(query).
		OrderBy("name").
		Fields("nextPageToken, files(id, name, parents)").
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				folders = append(folders, Folder{ID: f.Id, Name: f.Name, Parents: f.Parents})
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to list folders in %s: %w", parentID, err)
	}
	return folders, nil
}

// FolderPath returns the slash separated path of a folder from the root
// folder, the folder name included. Folders outside of "My Drive", such as
// shared drives, get the path from their topmost reachable ancestor.
func (a *App) FolderPath(ctx context.Context, folderID string) (string, error) {
	srv, err := a.drive()
	if err != nil {
		return "", err
	}
	a.mu.Lock()
	rootID := a.rootID
	a.mu.Unlock()

	var names []string
	id := folderID
	for depth := 0; id != "" && id != rootID; depth++ {
		if depth == maxDepth {
			return "", fmt.Errorf("folder %s is nested too deeply", folderID)
		}
		f, err := srv.Files.Get(id).Fields("id, name, parents").Context(ctx).Do()
		if err != nil {
			var gerr *googleapi.Error
			// Parents the user cannot see end the path.
			if depth > 0 && errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
				break
			}
			return "", fmt.Errorf("failed to get folder %s: %w", id, err)
		}
		names = append(names, f.Name)
		id = ""
		// Google only allows a single parent since 2020.
		if len(f.Parents) > 0 {
			id = f.Parents[0]
		}
	}

	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return strings.Join(names, "/"), nil
}

// escapeQuery escapes a value for a Drive query string literal.
func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
