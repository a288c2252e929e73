// Package sync implements the scheduling state machine that decides when a
// download pass runs. A single background loop wakes on a fixed interval,
// checks whether the mirror is outdated (or a sync was forced), and runs at
// most one download job at a time. Job failures are classified into
// retryable, session-invalidating, or unexpected, and drive the engine's
// logout, re-authentication, and circuit-breaker behavior.
package sync

import (
	"fmt"
	"os"
	"path/filepath"
	goSync "sync"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/coursemirror/coursemirror/pkg/config"
	"github.com/coursemirror/coursemirror/pkg/download"
	"github.com/coursemirror/coursemirror/pkg/errors"
	"github.com/coursemirror/coursemirror/pkg/platform"
)

const (
	// checkInterval is how long the loop sleeps between staleness checks.
	checkInterval = 10 * time.Second

	// maxRetries is the number of consecutive transient failures tolerated
	// before the engine forces a logout, as a circuit breaker against a
	// persistently unreachable endpoint.
	maxRetries = 3

	// logDirectory is where failure reports are written, under the download
	// location.
	logDirectory = "log"
)

// Mocked for unit testing.
var (
	fs = afero.NewOsFs()

	openSession = func(server, credential string) (download.Session, error) {
		return platform.Login(server, credential)
	}

	runJob = func(j *download.Job) (time.Time, error) {
		return j.Run()
	}
)

// Engine is the long-lived scheduler. All state transitions happen on the
// caller's goroutine or the single scheduling loop; readers get
// eventually-consistent snapshots.
type Engine struct {
	clock clockwork.Clock
	store *config.Store

	mu             goSync.Mutex
	state          State
	session        download.Session
	credential     string
	forceSync      bool
	failedAttempts int
	nextSync       time.Time
}

// New creates an engine around the persisted configuration. If a previous
// sync time exists, the next sync is scheduled relative to it.
func New(store *config.Store) *Engine {
	e := &Engine{
		clock: clockwork.NewRealClock(),
		store: store,
	}

	user := store.User()
	if user.LastSyncTime != nil {
		log.Debug("Preexisting sync state found")
		e.nextSync = user.LastSyncTime.Add(user.SyncInterval())
	}
	return e
}

// Auth opens a platform session with the given credential. Syncing starts
// automatically on success.
func (e *Engine) Auth(credential string) bool {
	session, err := openSession(e.store.User().Server, credential)
	if err != nil {
		log.WithError(err).Warn("Credentials are incorrect")
		return false
	}

	e.mu.Lock()
	e.session = session
	e.credential = credential
	e.mu.Unlock()

	log.Info("Logged in successfully")
	e.StartSync()
	return true
}

// LogOut stops syncing and forgets the user session.
func (e *Engine) LogOut() {
	e.StopSync()

	e.mu.Lock()
	e.session = nil
	e.mu.Unlock()
}

// StartSync spawns the scheduling loop. It has no effect if the loop is
// already running.
func (e *Engine) StartSync() {
	e.mu.Lock()
	if e.state == StateWaiting || e.state == StateSyncing {
		e.mu.Unlock()
		return
	}
	e.state = StateWaiting
	e.mu.Unlock()

	log.Info("Starting sync loop")
	go e.loop()
}

// StopSync tells the loop to exit. It is advisory: the loop observes it at
// its next tick boundary, and a download pass already in flight runs to
// completion.
func (e *Engine) StopSync() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateIdle {
		e.state = StateStopped
	}
}

// ForceSync requests an immediate download pass on the next tick, regardless
// of staleness.
func (e *Engine) ForceSync() {
	log.Debug("Forced syncing")
	e.mu.Lock()
	e.forceSync = true
	e.mu.Unlock()
}

// loop is the single thread of control that serializes download passes.
func (e *Engine) loop() {
	reauth := false
	for e.IsActive() {
		if e.Outdated() || e.forceRequested() {
			log.Debug("Syncing now")
			e.transition(StateWaiting, StateSyncing)
			if e.syncOnce() {
				reauth = true
			}
			e.transition(StateSyncing, StateWaiting)
			e.clearForce()
		}
		e.clock.Sleep(checkInterval)
	}

	// The session expired mid-sync: attempt one re-login with the saved
	// credential. On success Auth restarts the loop; on failure the engine
	// stays logged out.
	if reauth {
		e.mu.Lock()
		credential := e.credential
		e.mu.Unlock()
		e.Auth(credential)
	}
}

// syncOnce runs one download pass and digests its result. It reports whether
// the engine should re-authenticate after the loop exits.
func (e *Engine) syncOnce() bool {
	user := e.store.User()
	job := download.New(e.currentSession(), user.LastSyncTime,
		user.DownloadLocation, user.DataSource, fs)

	started, err := runJob(job)
	switch {
	case err == nil:
		if err := e.store.SetLastSyncTime(&started); err != nil {
			log.WithError(err).Warn("Failed to persist last sync time")
		}
		e.mu.Lock()
		e.failedAttempts = 0
		e.nextSync = started.Add(user.SyncInterval())
		e.mu.Unlock()
		return false

	case errors.RootCause(err) == errors.ErrSessionExpired:
		log.Warn("User session expired")
		e.LogOut()
		return true

	case errors.IsConnectionError(err):
		log.WithError(err).Warn("Could not reach the platform; will retry")
		e.recordFailure(err, user.DownloadLocation)

		e.mu.Lock()
		e.failedAttempts++
		tripped := e.failedAttempts >= maxRetries
		e.mu.Unlock()

		if tripped {
			log.Warnf("Giving up after %d failed attempts", maxRetries)
			e.LogOut()
		}
		return false

	default:
		log.WithError(err).Error("Unexpected error during sync")
		e.recordFailure(err, user.DownloadLocation)
		return false
	}
}

// recordFailure appends the failure detail to a dated log file under the
// download location. This is a best-effort diagnostic side channel.
func (e *Engine) recordFailure(failure error, downloadLocation string) {
	dir := filepath.Join(downloadLocation, logDirectory)
	if err := fs.MkdirAll(dir, 0755); err != nil {
		log.WithError(err).Warn("Failed to create failure log directory")
		return
	}

	now := e.clock.Now()
	path := filepath.Join(dir,
		fmt.Sprintf("sync_error_%s.log", now.Format("2006-01-02T15_04_05")))
	out, err := fs.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.WithError(err).Warn("Failed to open failure log")
		return
	}
	defer out.Close()

	fmt.Fprintf(out, "%s %s\n", now.Format(time.RFC3339), failure)
}

// Outdated returns true if the mirror needs a download pass: either no pass
// has ever succeeded, or the next scheduled sync time has arrived.
func (e *Engine) Outdated() bool {
	if e.store.User().LastSyncTime == nil {
		return true
	}

	e.mu.Lock()
	next := e.nextSync
	e.mu.Unlock()
	return !e.clock.Now().Before(next)
}

// ChangeDownloadLocation points the mirror at a new directory. With
// redownload set, the last sync time is cleared so the next pass downloads
// everything into the new location.
func (e *Engine) ChangeDownloadLocation(path string, redownload bool) error {
	if path == e.store.User().DownloadLocation {
		return nil
	}

	if err := e.store.SetDownloadLocation(path); err != nil {
		return errors.WithContext(err, "persist download location")
	}

	if redownload {
		if err := e.store.SetLastSyncTime(nil); err != nil {
			return errors.WithContext(err, "clear last sync time")
		}
		e.mu.Lock()
		e.nextSync = time.Time{}
		e.mu.Unlock()
	}
	return nil
}

// SetSyncInterval changes the time between download passes and reschedules
// the next one accordingly.
func (e *Engine) SetSyncInterval(interval time.Duration) error {
	if err := e.store.SetSyncInterval(interval); err != nil {
		return errors.WithContext(err, "persist sync interval")
	}

	if last := e.store.User().LastSyncTime; last != nil {
		e.mu.Lock()
		e.nextSync = last.Add(interval)
		e.mu.Unlock()
	}
	return nil
}

// SyncInterval returns the time between download passes.
func (e *Engine) SyncInterval() time.Duration {
	return e.store.User().SyncInterval()
}

// SetDataSource changes the opaque platform-side course filter.
func (e *Engine) SetDataSource(dataSource string) error {
	if err := e.store.SetDataSource(dataSource); err != nil {
		return errors.WithContext(err, "persist data source")
	}
	return nil
}

// DataSource returns the opaque platform-side course filter.
func (e *Engine) DataSource() string {
	return e.store.User().DataSource
}

// LastSyncTime returns the instant before which content is considered
// already downloaded, or nil if no pass has succeeded.
func (e *Engine) LastSyncTime() *time.Time {
	return e.store.User().LastSyncTime
}

// NextSyncTime returns when the mirror becomes outdated. It is zero when no
// pass has ever succeeded.
func (e *Engine) NextSyncTime() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nextSync
}

// IsActive reports whether the scheduling loop is running.
func (e *Engine) IsActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StateWaiting || e.state == StateSyncing
}

// IsSyncing reports whether a download pass is currently executing.
func (e *Engine) IsSyncing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StateSyncing
}

// IsLoggedIn reports whether a user session is currently active.
func (e *Engine) IsLoggedIn() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session != nil
}

// Username returns the identity of the active session, or "" when logged
// out.
func (e *Engine) Username() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return ""
	}
	return e.session.Username()
}

func (e *Engine) currentSession() download.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

func (e *Engine) forceRequested() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.forceSync
}

func (e *Engine) clearForce() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.forceSync = false
}

func (e *Engine) transition(from, to State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == from {
		e.state = to
	}
}
