package config

import (
	goSync "sync"
	"time"
)

// Store holds the live user config and writes every mutation straight back to
// disk, so the persisted state always matches what the sync engine is acting
// on.
type Store struct {
	mu   goSync.Mutex
	user User
}

// NewStore creates a Store around an already-parsed user config.
func NewStore(user User) *Store {
	return &Store{user: user}
}

// User returns a snapshot of the current config.
func (s *Store) User() User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// SetLastSyncTime records the instant the last successful download pass
// started. A nil value forces the next pass to re-download everything.
func (s *Store) SetLastSyncTime(t *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user.LastSyncTime = t
	return WriteUser(s.user)
}

// SetDownloadLocation updates where course content is mirrored.
func (s *Store) SetDownloadLocation(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user.DownloadLocation = path
	return WriteUser(s.user)
}

// SetDataSource updates the opaque platform-side course filter.
func (s *Store) SetDataSource(dataSource string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user.DataSource = dataSource
	return WriteUser(s.user)
}

// SetSyncInterval updates the time between download passes.
func (s *Store) SetSyncInterval(interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user.SyncIntervalSeconds = int(interval / time.Second)
	return WriteUser(s.user)
}

// SetCredential saves the platform credential for automatic re-login.
func (s *Store) SetCredential(credential string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user.Credential = credential
	return WriteUser(s.user)
}
