package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/etnz/drivepick/gate"
	"github.com/etnz/drivepick/pickapp"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
)

func main() {
	verboseFlag := flag.BoolP("verbose", "v", false, "Print logs")
	loginFlag := flag.Bool("login", false, "Authorize drivepick to access your Google Drive.")
	logoutFlag := flag.Bool("logout", false, "Forget the cached authorization.")
	browserFlag := flag.Bool("browser", false, "Pick the folder with the Google Picker in your browser instead of the terminal.")
	jsonFlag := flag.Bool("json", false, "Print the picked folder as JSON.")
	clientIDFlag := flag.String("client-id", "", "OAuth client ID (default $DRIVEPICK_CLIENT_ID)")
	apiKeyFlag := flag.String("api-key", "", "Google API key for the browser picker (default $DRIVEPICK_API_KEY)")
	timeoutFlag := flag.Duration("timeout", 10*time.Minute, "Give up when no folder was picked after this duration.")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "drivepick: pick a Google Drive folder\n\n")
		fmt.Fprintf(os.Stderr, "Authorizes access to your Google Drive, then lets you browse and pick a folder.\n")
		fmt.Fprintf(os.Stderr, "The picked folder is printed on the standard output.\n\n")
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		flag.PrintDefaults()
	}

	flag.Parse()

	logger := zerolog.Nop()
	if *verboseFlag {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			With().Timestamp().Logger().Level(zerolog.DebugLevel)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logger.WithContext(ctx)

	// A missing .env file is fine.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn().Err(err).Msg("failed to load .env")
	}

	cfg, err := pickapp.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *clientIDFlag != "" {
		cfg.ClientID = *clientIDFlag
	}
	if *apiKeyFlag != "" {
		cfg.APIKey = *apiKeyFlag
	}

	auth := pickapp.NewAuthorizer(cfg)

	// Handle -logout flag
	if *logoutFlag {
		if err := auth.Logout(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, "Logged out.")
		return
	}

	if err := cfg.Validate(*browserFlag); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Handle -login flag
	if *loginFlag {
		if _, err := auth.Login(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Authentication failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, "Successfully logged in. drivepick is now authorized to access your Google Drive.")
		return
	}

	// Default action: pick a folder
	ctx, cancel := context.WithTimeout(ctx, *timeoutFlag)
	defer cancel()

	picker := pickapp.NewPicker(auth, nil)
	if *browserFlag {
		picker.Dialog = pickapp.NewBrowserDialog(cfg.APIKey, picker.App)
	} else {
		picker.Dialog = pickapp.NewTerminalDialog(picker.App, os.Stderr, os.Stdin)
	}

	pick := picker.Start(ctx, func(item gate.Item) {
		if *jsonFlag {
			if err := json.NewEncoder(os.Stdout).Encode(item); err != nil {
				fmt.Fprintf(os.Stderr, "Error encoding folder to JSON: %v\n", err)
			}
			return
		}
		fmt.Printf("%s\t%s\n", item.ID, item.Path)
	})

	res, err := pick.Wait(context.Background())
	if code := report(os.Stderr, res, err); code != 0 {
		os.Exit(code)
	}
}

// report prints the outcome of a pick that did not deliver a folder and
// returns the exit code. Dismissing the dialog and interrupting the pick are
// not failures; running out of time is.
func report(w io.Writer, res gate.Result, err error) int {
	switch {
	case err == nil && res.Picked:
		return 0
	case err == nil:
		fmt.Fprintln(w, "No folder picked.")
		return 0
	case errors.Is(err, gate.ErrCancelled) && errors.Is(err, context.Canceled):
		fmt.Fprintln(w, "Pick cancelled.")
		return 0
	default:
		fmt.Fprintf(w, "Error: %v\n", err)
		return 1
	}
}
