package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/coursemirror/coursemirror/cmd/bugtool"
	configCmd "github.com/coursemirror/coursemirror/cmd/config"
	"github.com/coursemirror/coursemirror/cmd/login"
	"github.com/coursemirror/coursemirror/cmd/logout"
	syncCmd "github.com/coursemirror/coursemirror/cmd/sync"
	"github.com/coursemirror/coursemirror/cmd/update"
	"github.com/coursemirror/coursemirror/cmd/util"
	"github.com/coursemirror/coursemirror/cmd/version"
)

// verboseLogKey is the environment variable used to enable verbose logging.
// When it's set to `true`, Debug events are logged, rather than just Info and
// above.
const verboseLogKey = "COURSEMIRROR_LOG_VERBOSE"

// Execute runs the main CLI process.
func Execute() {
	if os.Getenv(verboseLogKey) == "true" {
		log.SetLevel(log.DebugLevel)
	}

	rootCmd := &cobra.Command{
		Use:          "coursemirror",
		Short:        "Mirror your course content to local storage",
		SilenceUsage: true,

		// The call to rootCmd.Execute prints the error, so we silence errors
		// here to avoid double printing.
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		bugtool.New(),
		configCmd.New(),
		login.New(),
		logout.New(),
		syncCmd.New(),
		update.New(),
		version.New(),
	)

	if err := rootCmd.Execute(); err != nil {
		util.HandleFatalError(err)
	}
}
