package config

import (
	"path/filepath"
	"time"

	"github.com/ghodss/yaml"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"

	"github.com/coursemirror/coursemirror/pkg/errors"
)

const (
	// UserConfigPath is the default path to the CourseMirror user config.
	UserConfigPath = "~/.coursemirror.yaml"

	// InitialUserConfigVersion is the first version of the CourseMirror
	// user config. Config files that do not specify a version
	// will default to this version.
	InitialUserConfigVersion = "v1alpha1"

	// SupportedUserConfigVersion is the supported version of the
	// CourseMirror user config of the current CourseMirror binary.
	SupportedUserConfigVersion = "v1alpha1"

	// DefaultDownloadLocation is where course content is mirrored when the
	// user hasn't picked a location.
	DefaultDownloadLocation = "~/Downloads/CourseMirror"

	// DefaultDataSource narrows which top-level subjects the platform
	// returns. The value is opaque to CourseMirror and passed through to the
	// remote query verbatim. The default works for most institutions, but may
	// need tweaking.
	DefaultDataSource = "_21_1"

	// DefaultSyncIntervalSeconds is the time between download passes.
	DefaultSyncIntervalSeconds = 60 * 30
)

// User contains the persisted CourseMirror settings: where to reach the
// platform, the saved credential, and the sync engine's durable state.
type User struct {
	Version             string     `json:"version,omitempty"`
	Server              string     `json:"server"`
	Credential          string     `json:"credential,omitempty"`
	DownloadLocation    string     `json:"downloadLocation"`
	DataSource          string     `json:"dataSource,omitempty"`
	SyncIntervalSeconds int        `json:"syncIntervalSeconds,omitempty"`
	LastSyncTime        *time.Time `json:"lastSyncTime,omitempty"`
}

func (u User) getVersion() string {
	return u.Version
}

// SyncInterval returns the configured time between download passes.
func (u User) SyncInterval() time.Duration {
	return time.Duration(u.SyncIntervalSeconds) * time.Second
}

// homedirExpand will be overridden in mock tests
var homedirExpand = homedir.Expand

// ParseUser attempts to parse the User stored in the default path.
func ParseUser() (User, error) {
	path, err := GetUserConfigPath()
	if err != nil {
		return User{}, errors.WithContext(err, "expand config path")
	}

	config := User{Version: InitialUserConfigVersion}
	if err := parseConfig(path, &config, SupportedUserConfigVersion); err != nil {
		if _, ok := err.(errors.FileNotFound); ok {
			return User{}, errors.NewFriendlyError("The CourseMirror user "+
				"config file doesn't exist at %q. Please run "+
				"`coursemirror login` to create it.", path)
		}
		return User{}, errors.WithContext(err, "parse")
	}

	if config.DownloadLocation == "" {
		config.DownloadLocation = DefaultDownloadLocation
	}
	config.DownloadLocation, err = homedirExpand(config.DownloadLocation)
	if err != nil {
		return User{}, errors.WithContext(err, "expand download location")
	}

	// Evaluate relative paths relative to the config path.
	if !filepath.IsAbs(config.DownloadLocation) {
		config.DownloadLocation = filepath.Join(filepath.Dir(path), config.DownloadLocation)
	}

	if config.DataSource == "" {
		config.DataSource = DefaultDataSource
	}
	if config.SyncIntervalSeconds == 0 {
		config.SyncIntervalSeconds = DefaultSyncIntervalSeconds
	}
	return config, nil
}

// UserConfigExists reports whether a user config file is present at the
// default path.
func UserConfigExists() bool {
	path, err := GetUserConfigPath()
	if err != nil {
		return false
	}
	exists, err := afero.Exists(fs, path)
	return err == nil && exists
}

// WriteUser writes the given user config to disk.
func WriteUser(cfg User) error {
	cfg.Version = SupportedUserConfigVersion
	path, err := GetUserConfigPath()
	if err != nil {
		return errors.WithContext(err, "expand config path")
	}

	yamlBytes, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	if err := afero.WriteFile(fs, path, yamlBytes, 0600); err != nil {
		return errors.WithContext(err, "write")
	}
	return nil
}

// GetUserConfigPath gets the path to the user's global CourseMirror
// configuration. This path is expanded, so it can be directly passed to file
// operations.
func GetUserConfigPath() (string, error) {
	return homedirExpand(UserConfigPath)
}
