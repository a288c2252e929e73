package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootCause(t *testing.T) {
	tests := []struct {
		name string
		err  error
		exp  error
	}{
		{
			name: "NoContext",
			err:  ErrSessionExpired,
			exp:  ErrSessionExpired,
		},
		{
			name: "OneLevel",
			err:  WithContext(ErrSessionExpired, "fetch children"),
			exp:  ErrSessionExpired,
		},
		{
			name: "TwoLevels",
			err: WithContext(
				WithContext(ErrSessionExpired, "fetch children"),
				"expand folder"),
			exp: ErrSessionExpired,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.exp, RootCause(test.err))
		})
	}
}

func TestWithContextMessage(t *testing.T) {
	err := WithContext(New("boom"), "sync")
	assert.EqualError(t, err, "sync: boom")
}

func TestIsConnectionError(t *testing.T) {
	connErr := ConnectionError{Err: New("connection refused")}
	assert.True(t, IsConnectionError(connErr))
	assert.True(t, IsConnectionError(WithContext(connErr, "download")))
	assert.False(t, IsConnectionError(New("boom")))
	assert.False(t, IsConnectionError(ErrSessionExpired))
}

func TestFriendlyMessage(t *testing.T) {
	err := NewFriendlyError("something %s happened", "bad")
	assert.EqualError(t, err, "something bad happened")

	friendly, ok := err.(FriendlyError)
	assert.True(t, ok)
	assert.Equal(t, "something bad happened", friendly.FriendlyMessage())
}
