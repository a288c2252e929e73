package logout

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coursemirror/coursemirror/cmd/util"
	"github.com/coursemirror/coursemirror/pkg/config"
	"github.com/coursemirror/coursemirror/pkg/errors"
)

// New creates a new `logout` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved platform credential",
		Run: func(_ *cobra.Command, _ []string) {
			if err := run(); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

func run() error {
	if !config.UserConfigExists() {
		fmt.Println("Not logged in.")
		return nil
	}

	cfg, err := config.ParseUser()
	if err != nil {
		return errors.WithContext(err, "read config")
	}

	cfg.Credential = ""
	if err := config.WriteUser(cfg); err != nil {
		return errors.WithContext(err, "save config")
	}

	fmt.Println("Logged out.")
	return nil
}
