package sync

import (
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/coursemirror/coursemirror/cmd/util"
	"github.com/coursemirror/coursemirror/pkg/config"
	"github.com/coursemirror/coursemirror/pkg/errors"
	"github.com/coursemirror/coursemirror/pkg/sync"
)

// New creates a new `sync` command.
func New() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run the sync engine in the foreground",
		Long: "Run the sync engine in the foreground. Content that changed\n" +
			"since the last pass is downloaded on the configured interval\n" +
			"until the process is interrupted.",
		Run: func(_ *cobra.Command, _ []string) {
			if err := run(force); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().BoolVar(&force, "force", false,
		"Start a download pass immediately, regardless of staleness.")
	return cmd
}

func run(force bool) error {
	userCfg, err := config.ParseUser()
	if err != nil {
		return errors.WithContext(err, "read config")
	}
	if userCfg.Credential == "" {
		return errors.NewFriendlyError("No saved credential.\n" +
			"Please run `coursemirror login` first.")
	}

	engine := sync.New(config.NewStore(userCfg))
	if !engine.Auth(userCfg.Credential) {
		return errors.NewFriendlyError("The platform rejected the saved " +
			"credential.\nPlease run `coursemirror login` again.")
	}
	if force {
		engine.ForceSync()
	}

	log.WithField("user", engine.Username()).
		Infof("Mirroring into %s", userCfg.DownloadLocation)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	<-sigs

	log.Info("Shutting down")
	engine.StopSync()
	return nil
}
