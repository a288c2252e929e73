// Package download implements one complete traversal-and-download pass over
// the remote course hierarchy. A Job is single use: construct it, call Run
// once, and read the terminal result.
package download

import (
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/coursemirror/coursemirror/pkg/content"
	"github.com/coursemirror/coursemirror/pkg/errors"
	"github.com/coursemirror/coursemirror/pkg/platform"
	"github.com/coursemirror/coursemirror/pkg/pool"
)

// numWorkers caps the number of in-flight leaf transfers across all courses
// in a pass.
const numWorkers = 8

// Session is the slice of the platform client a download pass needs.
type Session interface {
	content.Session
	Username() string
	FetchCourses(dataSource string) ([]platform.Course, error)
}

// Mocked for unit testing.
var now = time.Now

// Job holds the immutable parameters of one download pass.
type Job struct {
	session     Session
	cutoff      *time.Time
	destination string
	dataSource  string
	fs          afero.Fs
}

// New creates a download pass bound to the given session. Content modified
// before cutoff is skipped; a nil cutoff re-downloads everything.
func New(session Session, cutoff *time.Time, destination, dataSource string, fs afero.Fs) *Job {
	return &Job{
		session:     session,
		cutoff:      cutoff,
		destination: destination,
		dataSource:  dataSource,
		fs:          fs,
	}
}

// Run mirrors every course visible to the session into the destination root
// and returns the instant the pass began, which becomes the next cutoff on
// success.
//
// Failures are classified for the scheduler: an expired session is escalated
// immediately and aborts the remaining walk, transport failures are escalated
// after the in-flight transfers drain (completed writes are kept), and any
// other per-leaf failure is logged and skipped. A skipped leaf is picked up
// again on the next pass, since the cutoff still includes it.
func (j *Job) Run() (time.Time, error) {
	start := now().UTC()

	courses, err := j.session.FetchCourses(j.dataSource)
	if err != nil {
		return time.Time{}, errors.WithContext(err, "fetch course list")
	}

	p := pool.New(numWorkers)
	ctx := content.Context{
		Session: j.session,
		Fs:      j.fs,
		Pool:    p,
		Cutoff:  j.cutoff,
	}

	var walkErr error
	for _, course := range courses {
		root, err := content.NewFolder(ctx, course.ID, "", course.Name)
		if err != nil {
			walkErr = err
			break
		}

		dest := filepath.Join(j.destination, content.SanitizeName(course.Name))
		if err := root.Write(dest, ctx); err != nil {
			walkErr = err
			break
		}
	}

	// Always drain the pool so no transfer outlives the job.
	leafErrs := p.Wait()

	if err := j.classify(walkErr, leafErrs); err != nil {
		return time.Time{}, err
	}
	return start, nil
}

// classify folds the walk error and the per-leaf errors into the job's
// terminal result.
func (j *Job) classify(walkErr error, leafErrs []error) error {
	for _, err := range append([]error{walkErr}, leafErrs...) {
		if err != nil && errors.RootCause(err) == errors.ErrSessionExpired {
			return err
		}
	}

	if walkErr != nil {
		return walkErr
	}

	var connectionErr error
	for _, err := range leafErrs {
		if errors.IsConnectionError(err) {
			connectionErr = err
			continue
		}
		log.WithError(err).Warn("Failed to download one file; it will be " +
			"retried on the next pass")
	}
	return connectionErr
}
