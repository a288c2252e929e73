package update

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	goversion "github.com/hashicorp/go-version"
	"github.com/spf13/cobra"

	"github.com/coursemirror/coursemirror/cmd/util"
	"github.com/coursemirror/coursemirror/pkg/errors"
	"github.com/coursemirror/coursemirror/pkg/version"
)

// Mocked for unit testing.
var endpoint = "https://api.github.com/repos/coursemirror/coursemirror/releases/latest"

type release struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// New creates a new `update` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Check whether a newer CourseMirror release is available",
		Run: func(_ *cobra.Command, _ []string) {
			if err := run(); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

func run() error {
	if version.Version == version.EmptyValue {
		return errors.NewFriendlyError("This build has no version " +
			"information, so it can't be compared against releases.")
	}

	local, err := goversion.NewVersion(version.Version)
	if err != nil {
		return errors.WithContext(err, "parse local version")
	}

	pp := util.NewProgressPrinter(os.Stdout, "Checking for updates")
	go pp.Run()
	latest, err := fetchLatestRelease()
	pp.Stop()
	if err != nil {
		return errors.WithContext(err, "fetch latest release")
	}

	remote, err := goversion.NewVersion(strings.TrimPrefix(latest.TagName, "v"))
	if err != nil {
		return errors.WithContext(err, "parse release version")
	}

	if remote.GreaterThan(local) {
		fmt.Printf("A newer release is available: %s (you have %s).\n"+
			"Download it at %s\n", latest.TagName, version.Version, latest.HTMLURL)
		return nil
	}

	fmt.Printf("You're up to date at %s.\n", version.Version)
	return nil
}

func fetchLatestRelease() (release, error) {
	resp, err := http.Get(endpoint)
	if err != nil {
		return release{}, errors.WithContext(err, "get")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return release{}, fmt.Errorf("unexpected status %q", resp.Status)
	}

	var rel release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return release{}, errors.WithContext(err, "decode")
	}
	return rel, nil
}
