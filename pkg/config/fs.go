package config

import "github.com/spf13/afero"

// fs is used for mock tests. It will be overridden by afero.NewMemMapFs()
// in the tests.
var fs = afero.NewOsFs()

// SetFs swaps the filesystem config files are read from and written to, and
// returns the previous one. It exists so that tests in other packages can
// redirect config writes to an in-memory filesystem.
func SetFs(newFs afero.Fs) afero.Fs {
	old := fs
	fs = newFs
	return old
}
