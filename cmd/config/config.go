package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/coursemirror/coursemirror/cmd/util"
	"github.com/coursemirror/coursemirror/pkg/config"
	"github.com/coursemirror/coursemirror/pkg/errors"
	"github.com/coursemirror/coursemirror/pkg/sync"
)

// Mocked for unit testing.
var (
	stdout          io.Writer = os.Stdout
	parseUserConfig           = config.ParseUser
)

// New creates a new `config` command.
func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and change the CourseMirror configuration",
	}

	// Setup the commands for querying the contents of the user config.
	type getterSpec struct {
		use, short string
		fn         func(config.User) string
	}

	getters := []getterSpec{
		{
			use:   "get-location",
			short: "Get the directory course content is mirrored into",
			fn:    func(cfg config.User) string { return cfg.DownloadLocation },
		},
		{
			use:   "get-data-source",
			short: "Get the platform-side course filter",
			fn:    func(cfg config.User) string { return cfg.DataSource },
		},
		{
			use:   "get-interval",
			short: "Get the time between download passes, in seconds",
			fn: func(cfg config.User) string {
				return strconv.Itoa(cfg.SyncIntervalSeconds)
			},
		},
	}
	for _, getter := range getters {
		getter := getter
		cmd.AddCommand(&cobra.Command{
			Use:   getter.use,
			Short: getter.short,
			Run: func(_ *cobra.Command, _ []string) {
				cfg, err := parseUserConfig()
				if err != nil {
					err = errors.WithContext(err, "read config")
					util.HandleFatalError(err)
				}

				fmt.Fprintln(stdout, getter.fn(cfg))
			},
		})
	}

	cmd.AddCommand(newSetLocation(), newSetDataSource(), newSetInterval())
	return cmd
}

func newSetLocation() *cobra.Command {
	var redownload bool
	cmd := &cobra.Command{
		Use:   "set-location <path>",
		Short: "Change the directory course content is mirrored into",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			if err := withEngine(func(engine *sync.Engine) error {
				return engine.ChangeDownloadLocation(args[0], redownload)
			}); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().BoolVar(&redownload, "redownload", false,
		"Re-download ALL content into the new location on the next sync.")
	return cmd
}

func newSetDataSource() *cobra.Command {
	return &cobra.Command{
		Use:   "set-data-source <filter>",
		Short: "Change the platform-side course filter",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			if err := withEngine(func(engine *sync.Engine) error {
				return engine.SetDataSource(args[0])
			}); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

func newSetInterval() *cobra.Command {
	return &cobra.Command{
		Use:   "set-interval <seconds>",
		Short: "Change the time between download passes",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			seconds, err := strconv.Atoi(args[0])
			if err != nil || seconds <= 0 {
				util.HandleFatalError(errors.NewFriendlyError(
					"The sync interval must be a positive number of seconds."))
			}

			if err := withEngine(func(engine *sync.Engine) error {
				return engine.SetSyncInterval(time.Duration(seconds) * time.Second)
			}); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

// withEngine applies a settings change through the same engine type the sync
// loop uses, so mutations write through to the config file identically in
// both places.
func withEngine(change func(*sync.Engine) error) error {
	cfg, err := parseUserConfig()
	if err != nil {
		return errors.WithContext(err, "read config")
	}

	return change(sync.New(config.NewStore(cfg)))
}
