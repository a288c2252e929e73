package login

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursemirror/coursemirror/pkg/config"
	"github.com/coursemirror/coursemirror/pkg/errors"
	"github.com/coursemirror/coursemirror/pkg/platform"
)

func TestMainPersistsCredential(t *testing.T) {
	memFs := afero.NewMemMapFs()
	oldFs := config.SetFs(memFs)
	defer config.SetFs(oldFs)

	oldOpenSession := openSession
	defer func() { openSession = oldOpenSession }()

	var gotServer, gotToken string
	openSession = func(server, token string) (*platform.Session, error) {
		gotServer, gotToken = server, token
		return &platform.Session{}, nil
	}

	require.NoError(t, Main("https://learn.example.edu", "tok"))
	assert.Equal(t, "https://learn.example.edu", gotServer)
	assert.Equal(t, "tok", gotToken)

	path, err := config.GetUserConfigPath()
	require.NoError(t, err)
	contents, err := afero.ReadFile(memFs, path)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "https://learn.example.edu")
	assert.Contains(t, string(contents), "tok")
}

func TestMainRejectedCredential(t *testing.T) {
	oldOpenSession := openSession
	defer func() { openSession = oldOpenSession }()
	openSession = func(server, token string) (*platform.Session, error) {
		return nil, errors.ErrInvalidCredential
	}

	err := Main("https://learn.example.edu", "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected the token")
}

func TestMainMissingFlags(t *testing.T) {
	tests := []struct {
		name, server, token, expError string
	}{
		{name: "NoServer", token: "tok", expError: "--server"},
		{name: "NoToken", server: "https://learn.example.edu", expError: "--token"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := Main(test.server, test.token)
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), test.expError))
		})
	}
}
