package bugtool

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ghodss/yaml"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/coursemirror/coursemirror/cmd/util"
	"github.com/coursemirror/coursemirror/pkg/config"
	"github.com/coursemirror/coursemirror/pkg/errors"
	"github.com/coursemirror/coursemirror/pkg/version"
)

var fs = afero.NewOsFs()

// New creates a new `bug-tool` command.
func New() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "bug-tool",
		Short: "Generate an archive for CourseMirror debugging",
		Run:   func(_ *cobra.Command, _ []string) { main(out) },
	}
	cmd.Flags().StringVar(&out, "out", "", "path for archive")
	return cmd
}

func main(out string) {
	tmpdir, err := afero.TempDir(fs, "", "coursemirror-bug-tool")
	if err != nil {
		err = errors.NewFriendlyError("Failed to create out directory:\n%s", err)
		util.HandleFatalError(err)
	}

	// Wrap defer in a function to handle errors from fs.RemoveAll().
	defer func() {
		err := fs.RemoveAll(tmpdir)
		if err != nil {
			util.HandleFatalError(err)
		}
	}()

	setupInfo(tmpdir)

	if out == "" {
		out = fmt.Sprintf("coursemirror-bug-info-%s.tar.gz",
			time.Now().Format("Jan_02_2006-15-04-05"))
	}
	if err := tarDirectory(tmpdir, out); err != nil {
		err = errors.NewFriendlyError("Failed to tar:\n%s", err)
		util.HandleFatalError(err)
	}

	msg := `Created bug information archive at '%s'.
Please attach it to a GitHub issue.
You may want to edit the archive if your courses contain sensitive information.
The archive contains:
 * The sync error logs.
 * The user configuration, with the credential removed.
 * The version of the CourseMirror CLI.
`
	fmt.Printf(msg, out)
}

func setupInfo(root string) {
	userConfig, err := config.ParseUser()
	if err != nil {
		log.WithError(err).Error("Failed to parse user config")
		return
	}

	if err := setupSyncLogs(root, userConfig); err != nil {
		log.WithError(err).Warn("Failed to collect sync error logs")
	}

	if err := setupConfig(root, userConfig); err != nil {
		log.WithError(err).Warn("Failed to collect config")
	}

	if err := setupVersion(root); err != nil {
		log.WithError(err).Warn("Failed to collect version info")
	}
}

// setupSyncLogs copies the dated failure logs written by the sync engine
// under <download_location>/log.
func setupSyncLogs(root string, userConfig config.User) error {
	logDir := filepath.Join(userConfig.DownloadLocation, "log")
	exists, err := afero.DirExists(fs, logDir)
	if err != nil {
		return errors.WithContext(err, "check log directory")
	}
	if !exists {
		return nil
	}

	outdir := filepath.Join(root, "sync-logs")
	if err := fs.Mkdir(outdir, 0755); err != nil {
		return errors.WithContext(err, "mkdir")
	}

	entries, err := afero.ReadDir(fs, logDir)
	if err != nil {
		return errors.WithContext(err, "list logs")
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := copyFile(filepath.Join(logDir, entry.Name()),
			filepath.Join(outdir, entry.Name())); err != nil {
			return errors.WithContext(err, fmt.Sprintf("copy %s", entry.Name()))
		}
	}
	return nil
}

// setupConfig writes the user config with the credential scrubbed.
func setupConfig(root string, userConfig config.User) error {
	userConfig.Credential = ""
	configBytes, err := yaml.Marshal(userConfig)
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	path := filepath.Join(root, "config.yaml")
	if err := afero.WriteFile(fs, path, configBytes, 0644); err != nil {
		return errors.WithContext(err, "write")
	}
	return nil
}

func setupVersion(root string) error {
	path := filepath.Join(root, "version")
	return afero.WriteFile(fs, path, []byte(version.Version+"\n"), 0644)
}

func copyFile(src, dst string) error {
	in, err := fs.Open(src)
	if err != nil {
		return errors.WithContext(err, "open source")
	}
	defer in.Close()

	out, err := fs.Create(dst)
	if err != nil {
		return errors.WithContext(err, "open destination")
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return errors.WithContext(err, "copy")
	}
	return nil
}

func tarDirectory(src, outPath string) error {
	out, err := fs.Create(outPath)
	if err != nil {
		return errors.WithContext(err, "open destination")
	}
	defer out.Close()

	gzw := gzip.NewWriter(out)
	defer gzw.Close()

	tw := tar.NewWriter(gzw)
	defer tw.Close()

	return afero.Walk(fs, src, func(file string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		header, err := tar.FileInfoHeader(fi, fi.Name())
		if err != nil {
			return errors.WithContext(err, fmt.Sprintf("make header %s", file))
		}

		relPath, err := filepath.Rel(src, file)
		if err != nil {
			return errors.WithContext(err, fmt.Sprintf("get relative path of %s to %s", file, src))
		}

		header.Name = filepath.Join("coursemirror-bug-info", relPath)
		if err := tw.WriteHeader(header); err != nil {
			return errors.WithContext(err, fmt.Sprintf("write %s header", file))
		}

		// Only write contents if it's a file (i.e. not a directory).
		if !fi.Mode().IsRegular() {
			return nil
		}

		f, err := fs.Open(file)
		if err != nil {
			return errors.WithContext(err, fmt.Sprintf("open %s", file))
		}
		defer f.Close()

		if _, err := io.Copy(tw, f); err != nil {
			return errors.WithContext(err, fmt.Sprintf("copy %s", file))
		}
		return nil
	})
}
