package login

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coursemirror/coursemirror/cmd/util"
	"github.com/coursemirror/coursemirror/pkg/config"
	"github.com/coursemirror/coursemirror/pkg/errors"
	"github.com/coursemirror/coursemirror/pkg/platform"
)

// Mocked for unit testing.
var openSession = platform.Login

// New creates a new `login` command.
func New() *cobra.Command {
	var server string
	var token string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate against your institution's platform",
		Run: func(_ *cobra.Command, _ []string) {
			if err := Main(server, token); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&server, "server", "",
		"Base URL of your institution's platform, e.g. https://campus.example.edu.")
	cmd.Flags().StringVar(&token, "token", "",
		"API token issued by the platform.")
	return cmd
}

// Main validates the credential and persists it for the sync engine.
func Main(server, token string) error {
	if server == "" {
		return errors.NewFriendlyError("The platform address is required.\n" +
			"Please provide it with `coursemirror login --server <url>`")
	}
	if token == "" {
		return errors.NewFriendlyError("An API token is required.\n" +
			"Please provide it with `coursemirror login --token <token>`")
	}

	session, err := openSession(server, token)
	if err != nil {
		if errors.RootCause(err) == errors.ErrInvalidCredential {
			return errors.NewFriendlyError(
				"The platform at %q rejected the token.\n"+
					"Please check it and try again.", server)
		}
		return errors.WithContext(err, "open session")
	}

	var cfg config.User
	if config.UserConfigExists() {
		cfg, err = config.ParseUser()
		if err != nil {
			return errors.WithContext(err, "read existing config")
		}
	}
	cfg.Server = server
	cfg.Credential = token
	if err := config.WriteUser(cfg); err != nil {
		return errors.WithContext(err, "save credential")
	}

	fmt.Printf("Logged in as %s.\n", session.Username())
	return nil
}
