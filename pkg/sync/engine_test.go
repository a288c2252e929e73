package sync

import (
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursemirror/coursemirror/pkg/config"
	"github.com/coursemirror/coursemirror/pkg/download"
	"github.com/coursemirror/coursemirror/pkg/errors"
	"github.com/coursemirror/coursemirror/pkg/platform"
)

var baseTime = time.Date(2021, 3, 14, 12, 0, 0, 0, time.UTC)

type stubSession struct {
	username string
}

func (s stubSession) Username() string {
	return s.username
}

func (s stubSession) FetchCourses(dataSource string) ([]platform.Course, error) {
	return nil, nil
}

func (s stubSession) FetchChildren(courseID, contentID string) ([]platform.Content, error) {
	return nil, nil
}

func (s stubSession) DownloadLeaf(courseID, contentID string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

// mockEngine redirects the engine's filesystem and remote seams, and swaps in
// a fake clock so tests control when the loop ticks.
func mockEngine(t *testing.T, user config.User) (*Engine, clockwork.FakeClock) {
	oldFs := fs
	fs = afero.NewMemMapFs()
	oldConfigFs := config.SetFs(fs)

	oldOpenSession, oldRunJob := openSession, runJob
	openSession = func(server, credential string) (download.Session, error) {
		return stubSession{username: "student"}, nil
	}
	runJob = func(j *download.Job) (time.Time, error) {
		return baseTime, nil
	}

	t.Cleanup(func() {
		fs = oldFs
		config.SetFs(oldConfigFs)
		openSession = oldOpenSession
		runJob = oldRunJob
	})

	e := New(config.NewStore(user))
	clock := clockwork.NewFakeClockAt(baseTime)
	e.clock = clock
	return e, clock
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func testUser() config.User {
	return config.User{
		Version:             config.SupportedUserConfigVersion,
		Server:              "https://learn.example.edu",
		DownloadLocation:    "/dl",
		DataSource:          config.DefaultDataSource,
		SyncIntervalSeconds: config.DefaultSyncIntervalSeconds,
	}
}

func TestAuth(t *testing.T) {
	e, _ := mockEngine(t, testUser())
	require.True(t, e.Auth("good-token"))
	defer e.StopSync()

	assert.True(t, e.IsLoggedIn())
	assert.True(t, e.IsActive())
	assert.Equal(t, "student", e.Username())
}

func TestAuthRejectedCredential(t *testing.T) {
	e, _ := mockEngine(t, testUser())
	openSession = func(server, credential string) (download.Session, error) {
		return nil, errors.ErrInvalidCredential
	}

	assert.False(t, e.Auth("bad-token"))
	assert.False(t, e.IsLoggedIn())
	assert.False(t, e.IsActive())
	assert.Equal(t, "", e.Username())
}

func TestNeverSyncedRunsImmediately(t *testing.T) {
	e, _ := mockEngine(t, testUser())

	var runs int32
	runJob = func(j *download.Job) (time.Time, error) {
		atomic.AddInt32(&runs, 1)
		return baseTime, nil
	}

	require.True(t, e.Auth("good-token"))
	defer e.StopSync()

	waitFor(t, func() bool { return atomic.LoadInt32(&runs) == 1 }, "first sync")

	waitFor(t, func() bool { return e.LastSyncTime() != nil }, "persisted sync time")
	assert.Equal(t, baseTime, *e.LastSyncTime())
	assert.Equal(t, baseTime.Add(e.SyncInterval()), e.NextSyncTime())
}

func TestForceSync(t *testing.T) {
	user := testUser()
	user.LastSyncTime = &baseTime
	e, clock := mockEngine(t, user)

	var runs int32
	runJob = func(j *download.Job) (time.Time, error) {
		atomic.AddInt32(&runs, 1)
		return clock.Now(), nil
	}

	require.True(t, e.Auth("good-token"))
	defer e.StopSync()

	// The mirror is fresh, so the first tick doesn't sync.
	clock.BlockUntil(1)
	assert.Equal(t, int32(0), atomic.LoadInt32(&runs))

	e.ForceSync()
	clock.Advance(checkInterval)
	waitFor(t, func() bool { return atomic.LoadInt32(&runs) == 1 }, "forced sync")

	// The force flag was consumed; the next tick doesn't sync again.
	clock.BlockUntil(1)
	clock.Advance(checkInterval)
	clock.BlockUntil(1)
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
}

func TestOutdated(t *testing.T) {
	neverSynced := testUser()

	synced := testUser()
	synced.LastSyncTime = &baseTime

	tests := []struct {
		name    string
		user    config.User
		elapsed time.Duration
		exp     bool
	}{
		{name: "NeverSynced", user: neverSynced, exp: true},
		{name: "Fresh", user: synced, elapsed: 1700 * time.Second, exp: false},
		{name: "ExactlyAtInterval", user: synced, elapsed: 1800 * time.Second, exp: true},
		{name: "Stale", user: synced, elapsed: 1801 * time.Second, exp: true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			e, clock := mockEngine(t, test.user)
			clock.Advance(test.elapsed)
			assert.Equal(t, test.exp, e.Outdated())
		})
	}
}

func TestAtMostOneSyncAtATime(t *testing.T) {
	e, _ := mockEngine(t, testUser())

	var inFlight, peak int32
	release := make(chan struct{})
	runJob = func(j *download.Job) (time.Time, error) {
		cur := atomic.AddInt32(&inFlight, 1)
		if cur > atomic.LoadInt32(&peak) {
			atomic.StoreInt32(&peak, cur)
		}
		<-release
		atomic.AddInt32(&inFlight, -1)
		return baseTime, nil
	}

	require.True(t, e.Auth("good-token"))
	defer e.StopSync()

	// Starting the loop again while it's running must not spawn a second
	// one.
	e.StartSync()
	e.StartSync()

	waitFor(t, func() bool { return e.IsSyncing() }, "sync started")
	assert.True(t, e.IsActive())

	close(release)
	waitFor(t, func() bool { return !e.IsSyncing() }, "sync finished")
	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))
}

func TestSessionExpiredReauthenticates(t *testing.T) {
	var logins int32
	var runs int32

	e, clock := mockEngine(t, testUser())
	openSession = func(server, credential string) (download.Session, error) {
		atomic.AddInt32(&logins, 1)
		assert.Equal(t, "good-token", credential)
		return stubSession{username: "student"}, nil
	}
	runJob = func(j *download.Job) (time.Time, error) {
		if atomic.AddInt32(&runs, 1) == 1 {
			return time.Time{}, errors.WithContext(errors.ErrSessionExpired, "fetch course list")
		}
		return clock.Now(), nil
	}

	require.True(t, e.Auth("good-token"))
	defer e.StopSync()

	// The first pass hits the expired session and logs the engine out.
	waitFor(t, func() bool { return atomic.LoadInt32(&runs) == 1 }, "first sync")
	waitFor(t, func() bool { return !e.IsLoggedIn() }, "logout")

	// Once the loop observes the stop, it re-logs in with the saved
	// credential and the restarted loop syncs successfully.
	clock.BlockUntil(1)
	clock.Advance(checkInterval)
	waitFor(t, func() bool { return atomic.LoadInt32(&logins) == 2 }, "re-login")
	waitFor(t, func() bool { return atomic.LoadInt32(&runs) == 2 }, "second sync")
	waitFor(t, func() bool { return e.LastSyncTime() != nil }, "persisted sync time")
	assert.True(t, e.IsLoggedIn())
}

func TestRepeatedConnectionFailuresLogOut(t *testing.T) {
	e, clock := mockEngine(t, testUser())

	var runs int32
	runJob = func(j *download.Job) (time.Time, error) {
		atomic.AddInt32(&runs, 1)
		return time.Time{}, errors.ConnectionError{Err: errors.New("connection refused")}
	}

	require.True(t, e.Auth("good-token"))
	defer e.StopSync()

	for i := 1; i < maxRetries; i++ {
		waitFor(t, func() bool {
			return atomic.LoadInt32(&runs) == int32(i)
		}, "sync attempt")
		assert.True(t, e.IsLoggedIn())

		clock.BlockUntil(1)
		clock.Advance(checkInterval)
	}

	waitFor(t, func() bool { return atomic.LoadInt32(&runs) == maxRetries }, "final attempt")
	waitFor(t, func() bool { return !e.IsLoggedIn() }, "circuit breaker logout")
	assert.False(t, e.IsActive())

	// Each failed attempt left a dated report under the download location.
	reports, err := afero.ReadDir(fs, "/dl/log")
	require.NoError(t, err)
	assert.Len(t, reports, maxRetries)
}

func TestSuccessResetsFailureCount(t *testing.T) {
	e, clock := mockEngine(t, testUser())

	var runs int32
	runJob = func(j *download.Job) (time.Time, error) {
		if atomic.AddInt32(&runs, 1) == 1 {
			return time.Time{}, errors.ConnectionError{Err: errors.New("connection refused")}
		}
		return clock.Now(), nil
	}

	require.True(t, e.Auth("good-token"))
	defer e.StopSync()

	waitFor(t, func() bool { return atomic.LoadInt32(&runs) == 1 }, "failed sync")
	clock.BlockUntil(1)
	clock.Advance(checkInterval)

	waitFor(t, func() bool { return atomic.LoadInt32(&runs) == 2 }, "successful sync")
	waitFor(t, func() bool { return e.LastSyncTime() != nil }, "persisted sync time")

	e.mu.Lock()
	failures := e.failedAttempts
	e.mu.Unlock()
	assert.Equal(t, 0, failures)
	assert.True(t, e.IsLoggedIn())
}

func TestStopSyncObservedAtTickBoundary(t *testing.T) {
	user := testUser()
	user.LastSyncTime = &baseTime
	e, clock := mockEngine(t, user)

	var runs int32
	runJob = func(j *download.Job) (time.Time, error) {
		atomic.AddInt32(&runs, 1)
		return clock.Now(), nil
	}

	require.True(t, e.Auth("good-token"))
	clock.BlockUntil(1)

	e.StopSync()
	assert.False(t, e.IsActive())

	// The sleeping loop exits on its next wakeup without syncing.
	clock.Advance(checkInterval)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&runs))
	assert.True(t, e.IsLoggedIn())
}

func TestChangeDownloadLocation(t *testing.T) {
	user := testUser()
	user.LastSyncTime = &baseTime
	e, _ := mockEngine(t, user)

	require.NoError(t, e.ChangeDownloadLocation("/elsewhere", false))
	assert.Equal(t, "/elsewhere", e.store.User().DownloadLocation)
	require.NotNil(t, e.LastSyncTime())
	assert.Equal(t, baseTime, *e.LastSyncTime())

	// With redownload, the next pass starts from scratch.
	require.NoError(t, e.ChangeDownloadLocation("/fresh", true))
	assert.Nil(t, e.LastSyncTime())
	assert.True(t, e.NextSyncTime().IsZero())
	assert.True(t, e.Outdated())
}

func TestChangeDownloadLocationSamePath(t *testing.T) {
	user := testUser()
	user.LastSyncTime = &baseTime
	e, _ := mockEngine(t, user)

	require.NoError(t, e.ChangeDownloadLocation("/dl", true))
	require.NotNil(t, e.LastSyncTime())
	assert.Equal(t, baseTime, *e.LastSyncTime())
}

func TestSetSyncIntervalReschedules(t *testing.T) {
	user := testUser()
	user.LastSyncTime = &baseTime
	e, _ := mockEngine(t, user)

	require.NoError(t, e.SetSyncInterval(time.Hour))
	assert.Equal(t, time.Hour, e.SyncInterval())
	assert.Equal(t, baseTime.Add(time.Hour), e.NextSyncTime())
}

func TestSetDataSource(t *testing.T) {
	e, _ := mockEngine(t, testUser())
	require.NoError(t, e.SetDataSource("_42_1"))
	assert.Equal(t, "_42_1", e.DataSource())
}
