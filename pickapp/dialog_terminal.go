package pickapp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/etnz/drivepick/gate"
	"github.com/mitchellh/go-wordwrap"
)

// FolderLister lists the folders within a folder.
type FolderLister interface {
	ListFolders(ctx context.Context, parentID string) ([]Folder, error)
}

// TerminalDialog lets the user browse and pick a folder from the terminal.
type TerminalDialog struct {
	lister FolderLister
	w      io.Writer
	r      *bufio.Reader
	lines  chan line
}

type line struct {
	text string
	err  error
}

// NewTerminalDialog creates a TerminalDialog reading commands from r.
func NewTerminalDialog(lister FolderLister, w io.Writer, r io.Reader) *TerminalDialog {
	return &TerminalDialog{
		lister: lister,
		w:      w,
		r:      bufio.NewReader(r),
	}
}

// Load starts reading the user input. The reader stops handing lines over
// once ctx is done.
func (d *TerminalDialog) Load(ctx context.Context) error {
	if d.lister == nil || d.w == nil {
		return fmt.Errorf("terminal dialog is not configured")
	}
	if d.lines != nil {
		return nil
	}
	lines := make(chan line)
	d.lines = lines
	go func() {
		defer close(lines)
		deliver := func(l line) bool {
			select {
			case lines <- l:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for {
			s, err := d.r.ReadString('\n')
			if s != "" || err == nil {
				if !deliver(line{text: s}) {
					return
				}
			}
			if err != nil {
				if err != io.EOF {
					deliver(line{err: err})
				}
				return
			}
		}
	}()
	return nil
}

// Open runs the browsing session from the root folder.
func (d *TerminalDialog) Open(ctx context.Context, req gate.Request) (gate.Item, error) {
	if d.lines == nil {
		return gate.Item{}, fmt.Errorf("terminal dialog is not loaded")
	}
	if err := ctx.Err(); err != nil {
		return gate.Item{}, err
	}

	stack := []Folder{{ID: req.RootFolderID, Name: "My Drive"}}

	fmt.Fprintln(d.w, "Type a folder number to open it, '.' to pick the current folder,")
	fmt.Fprintln(d.w, "'..' to go up, 'q' to cancel.")
	for {
		current := stack[len(stack)-1]
		children, err := d.lister.ListFolders(ctx, current.ID)
		if err != nil {
			return gate.Item{}, err
		}
		d.render(stack, children)

		fmt.Fprint(d.w, "> ")
		var input string
		select {
		case l, ok := <-d.lines:
			if !ok {
				if err := ctx.Err(); err != nil {
					return gate.Item{}, err
				}
				fmt.Fprintln(d.w) // Newline on exit
				return gate.Item{}, gate.ErrUserCancelled
			}
			if l.err != nil {
				return gate.Item{}, fmt.Errorf("failed to read input: %w", l.err)
			}
			input = strings.TrimSpace(l.text)
		case <-ctx.Done():
			return gate.Item{}, ctx.Err()
		}

		switch input {
		case "q", "quit":
			return gate.Item{}, gate.ErrUserCancelled
		case ".":
			return gate.Item{
				ID:       current.ID,
				Name:     current.Name,
				MimeType: folderMimeType,
				URL:      "https://drive.google.com/drive/folders/" + current.ID,
				Path:     folderPath(stack),
			}, nil
		case "..":
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		case "":
		default:
			n, err := strconv.Atoi(input)
			if err != nil || n < 1 || n > len(children) {
				fmt.Fprintf(d.w, "unknown choice %q\n", input)
				continue
			}
			stack = append(stack, children[n-1])
		}
	}
}

// folderPath is the path of the last folder of stack, without the root.
func folderPath(stack []Folder) string {
	names := make([]string, 0, len(stack)-1)
	for _, f := range stack[1:] {
		names = append(names, f.Name)
	}
	return strings.Join(names, "/")
}

func (d *TerminalDialog) render(stack []Folder, children []Folder) {
	fmt.Fprintf(d.w, "\n%s\n", "/"+folderPath(stack))
	if len(children) == 0 {
		fmt.Fprintln(d.w, "  (no folders)")
		return
	}
	for i, f := range children {
		d.logMultiline(fmt.Sprintf("%d)", i+1), f.Name)
	}
}

// logMultiline prints text after prefix, wrapping long lines and indenting
// the continuation lines.
func (d *TerminalDialog) logMultiline(prefix, text string) {
	const wrapWidth = 80 // Approximate width to wrap lines

	firstLinePrefix := fmt.Sprintf("%6s ", prefix)
	indentPrefix := strings.Repeat(" ", len(firstLinePrefix))

	textWidth := wrapWidth - len(firstLinePrefix)
	wrappedLines := strings.Split(wordwrap.WrapString(text, uint(textWidth)), "\n")
	for i, l := range wrappedLines {
		if i == 0 {
			fmt.Fprintf(d.w, "%s%s\n", firstLinePrefix, l)
		} else {
			fmt.Fprintf(d.w, "%s%s\n", indentPrefix, l)
		}
	}
}
