package util

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"time"

	log "github.com/sirupsen/logrus"
)

// friendlyError errors carry a message that should be shown to the user
// as-is, without the usual error chain decoration.
type friendlyError interface {
	FriendlyMessage() string
}

// HandleFatalError prints the error and exits.
func HandleFatalError(err error) {
	if friendly, ok := err.(friendlyError); ok {
		fmt.Fprintln(os.Stderr, friendly.FriendlyMessage())
	} else {
		log.WithError(err).Fatal("Fatal error")
	}
	os.Exit(1)
}

// HandlePanic turns a panic anywhere in the CLI into a bug-report request
// rather than a raw stack dump.
func HandlePanic() {
	if r := recover(); r != nil {
		fmt.Fprintf(os.Stderr,
			"CourseMirror hit an unexpected error: %v\n\n%s\n"+
				"This is a bug. Please run `coursemirror bug-tool` and attach "+
				"the archive to a GitHub issue.\n", r, debug.Stack())
		os.Exit(1)
	}
}

// ProgressPrinter prints a message followed by a trickle of dots until
// stopped, so long-running commands don't look hung.
type ProgressPrinter struct {
	w    io.Writer
	msg  string
	stop chan struct{}
	done chan struct{}
}

// NewProgressPrinter creates a ProgressPrinter that writes to w.
func NewProgressPrinter(w io.Writer, msg string) *ProgressPrinter {
	return &ProgressPrinter{
		w:    w,
		msg:  msg,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Run prints until Stop is called. It's meant to be run in a goroutine.
func (pp *ProgressPrinter) Run() {
	defer close(pp.done)
	fmt.Fprint(pp.w, pp.msg)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fmt.Fprint(pp.w, ".")
		case <-pp.stop:
			fmt.Fprintln(pp.w)
			return
		}
	}
}

// Stop terminates the printer and waits for the final newline.
func (pp *ProgressPrinter) Stop() {
	close(pp.stop)
	<-pp.done
}
