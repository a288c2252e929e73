package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coursemirror/coursemirror/pkg/version"
)

// New creates a new `version` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of CourseMirror",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("coursemirror version %s\n", version.Version)
		},
	}
}
