// Package content models the remote course-content hierarchy as a tree of
// nodes and implements the write pass that mirrors it to local storage.
//
// Folder nodes are expanded one level at a time: constructing a folder issues
// exactly one FetchChildren call, and a child folder isn't fetched until the
// traversal reaches it. Leaf downloads are submitted to the shared worker
// pool and run concurrently; directories appear on disk only once the first
// eligible leaf beneath them is written, so folders whose entire contents are
// filtered out never litter the mirror.
package content

import (
	"io"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/coursemirror/coursemirror/pkg/errors"
	"github.com/coursemirror/coursemirror/pkg/platform"
	"github.com/coursemirror/coursemirror/pkg/pool"
)

// Content handlers the client knows how to mirror. Children carrying any
// other handler (or none) are skipped; that's expected, not an error.
const (
	handlerFolder   = "resource/folder"
	handlerFile     = "resource/file"
	handlerDocument = "resource/document"
)

// Session is the slice of the platform client the tree walk needs.
type Session interface {
	FetchChildren(courseID, contentID string) ([]platform.Content, error)
	DownloadLeaf(courseID, contentID string) (io.ReadCloser, error)
}

// Context carries the run-scoped collaborators shared by one whole walk: the
// session, the destination filesystem, the bounded worker pool, and the
// incremental-sync cutoff. A nil Cutoff downloads everything.
type Context struct {
	Session Session
	Fs      afero.Fs
	Pool    *pool.Pool
	Cutoff  *time.Time
}

// Node is one course, folder, or file in the remote hierarchy. Folder nodes
// hold their direct children once constructed; leaf nodes carry the metadata
// needed to download them exactly once per pass.
type Node struct {
	id       string
	courseID string
	name     string
	modified time.Time
	isFolder bool
	children []Node
}

// NewFolder constructs a folder node, issuing one remote call to enumerate
// its direct children. Child folders are left unexpanded; Write fetches them
// when the traversal reaches them. An empty contentID addresses the course
// root.
func NewFolder(ctx Context, courseID, contentID, name string) (*Node, error) {
	descriptors, err := ctx.Session.FetchChildren(courseID, contentID)
	if err != nil {
		return nil, errors.WithContext(err, "expand folder")
	}

	node := &Node{id: contentID, courseID: courseID, name: name, isFolder: true}
	for _, desc := range descriptors {
		child, ok := fromDescriptor(desc)
		if !ok {
			continue
		}
		node.children = append(node.children, child)
	}
	return node, nil
}

func fromDescriptor(desc platform.Content) (Node, bool) {
	node := Node{id: desc.ID, courseID: desc.CourseID, name: desc.Name}
	if desc.Modified != nil {
		node.modified = *desc.Modified
	}

	switch desc.ContentHandler {
	case handlerFolder:
		node.isFolder = true
	case handlerFile, handlerDocument:
	default:
		return Node{}, false
	}
	return node, true
}

// Write mirrors the folder's subtree into dir. Eligible leaves are submitted
// to the worker pool without blocking; child folders are expanded and
// recursed into with the path extended by their name. The walk stops early if
// the session has been observed to be expired, since every remaining remote
// call would fail the same way.
func (n *Node) Write(dir string, ctx Context) error {
	for _, child := range n.children {
		if err := expiredSessionError(ctx.Pool.Errors()); err != nil {
			return err
		}

		if !child.isFolder {
			child.submit(dir, ctx)
			continue
		}

		sub, err := NewFolder(ctx, child.courseID, child.id, child.name)
		if err != nil {
			return err
		}
		if err := sub.Write(filepath.Join(dir, sanitizeName(child.name)), ctx); err != nil {
			return err
		}
	}
	return nil
}

// submit schedules the leaf's download-and-write as one unit of work, unless
// the leaf predates the cutoff. It returns immediately; the pool bounds the
// number of in-flight transfers.
func (n Node) submit(dir string, ctx Context) {
	if !n.eligible(ctx.Cutoff) {
		return
	}

	dst := filepath.Join(dir, sanitizeName(n.name))
	ctx.Pool.Submit(func() error {
		return n.download(dst, ctx)
	})
}

// eligible reports whether the leaf should be downloaded this pass. Leaves
// with an unknown modification time are always included.
func (n Node) eligible(cutoff *time.Time) bool {
	if cutoff == nil || n.modified.IsZero() {
		return true
	}
	return !n.modified.Before(*cutoff)
}

func (n Node) download(dst string, ctx Context) error {
	body, err := ctx.Session.DownloadLeaf(n.courseID, n.id)
	if err != nil {
		return errors.WithContext(err, "fetch "+n.name)
	}
	defer body.Close()

	// The parent directory is created here, on the first eligible leaf,
	// rather than when the folder node is visited. A folder with zero
	// eligible descendants therefore never creates a directory.
	if err := ctx.Fs.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return errors.WithContext(err, "create directory")
	}

	out, err := ctx.Fs.Create(dst)
	if err != nil {
		return errors.WithContext(err, "create "+dst)
	}
	defer out.Close()

	if _, err := io.Copy(out, body); err != nil {
		return errors.WithContext(err, "write "+dst)
	}

	log.WithField("path", dst).Debug("Downloaded")
	return nil
}

func expiredSessionError(errs []error) error {
	for _, err := range errs {
		if errors.RootCause(err) == errors.ErrSessionExpired {
			return err
		}
	}
	return nil
}

// SanitizeName converts a remote node name into a safe local file name.
func SanitizeName(name string) string {
	return sanitizeName(name)
}

var nameReplacer = strings.NewReplacer("/", "_", "\\", "_", ":", "_")

func sanitizeName(name string) string {
	return strings.TrimSpace(nameReplacer.Replace(name))
}
