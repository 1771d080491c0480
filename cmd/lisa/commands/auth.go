// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/lisa/cmd/lisa/cli"
	"github.com/bureau-foundation/lisa/lib/config"
	"github.com/bureau-foundation/lisa/lib/tracker"
)

func loginCommand() *cli.Command {
	var noBrowser bool
	return &cli.Command{
		Name:    "login",
		Summary: "Authenticate with the tracker in a browser",
		Description: `Run the browser OAuth flow and store the token in the configured
token file. The token is refreshed automatically before it expires.
Setting the API key variable (LINEAR_API_KEY by default) takes
precedence over a stored token.`,
		Usage: "lisa login [flags]",
		Flags: func() *pflag.FlagSet {
			noBrowser = false
			flagSet := pflag.NewFlagSet("login", pflag.ContinueOnError)
			flagSet.BoolVar(&noBrowser, "no-browser", false, "print the authorization URL instead of opening a browser")
			return flagSet
		},
		Run: func(ctx context.Context, _ []string) error {
			settings, err := config.Load(".")
			if err != nil {
				return err
			}
			logger := cli.NewCommandLogger(slog.LevelInfo)
			open := openBrowser
			if noBrowser {
				open = printURL
			}
			token, err := tracker.Login(ctx, tracker.LoginConfig{Open: open, Logger: logger})
			if err != nil {
				return err
			}
			tokens := tokenSource(settings, logger)
			if err := tokens.Store(token); err != nil {
				return err
			}
			logger.Info("logged in", "token_file", tokens.Path())
			return nil
		},
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:    "logout",
		Summary: "Remove the stored tracker token",
		Usage:   "lisa logout",
		Run: func(_ context.Context, _ []string) error {
			settings, err := config.Load(".")
			if err != nil {
				return err
			}
			logger := cli.NewCommandLogger(slog.LevelInfo)
			tokens := tokenSource(settings, logger)
			if err := tokens.Clear(); err != nil {
				return err
			}
			logger.Info("logged out", "token_file", tokens.Path())
			return nil
		},
	}
}

// openBrowser launches the platform's URL opener, and prints the URL
// as well in case no browser is available.
func openBrowser(url string) error {
	printURL(url)
	opener := "xdg-open"
	if runtime.GOOS == "darwin" {
		opener = "open"
	}
	if err := exec.Command(opener, url).Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Could not open a browser (%v); open the URL above manually.\n", err)
	}
	return nil
}

func printURL(url string) error {
	fmt.Fprintf(os.Stderr, "Open this URL to authorize lisa:\n\n  %s\n\n", url)
	return nil
}
