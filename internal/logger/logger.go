// Package logger collects the warnings raised while building. Warnings never
// stop a build; they are gathered from every stage and handed back, sorted,
// when the build completes.
package logger

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Msg is a warning raised while building.
type Msg struct {
	// File is the full path of the file the warning concerns, if any.
	File string
	Text string
}

func (m Msg) String() string {
	if m.File == "" {
		return m.Text
	}

	return m.File + ": " + m.Text
}

type msgsArray []Msg

func (a msgsArray) Len() int      { return len(a) }
func (a msgsArray) Swap(i, j int) { a[i], a[j] = a[j], a[i] }

func (a msgsArray) Less(i, j int) bool {
	if a[i].File != a[j].File {
		return a[i].File < a[j].File
	}

	return a[i].Text < a[j].Text
}

// Log is safe for concurrent use.
type Log struct {
	mu   sync.Mutex
	msgs msgsArray
	echo bool
	zl   zerolog.Logger
}

// New creates a log. When echo is set each warning is also written to zl as
// it arrives.
func New(zl zerolog.Logger, echo bool) *Log {
	return &Log{zl: zl, echo: echo}
}

// AddWarning records a warning about a file.
func (l *Log) AddWarning(file, text string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.msgs = append(l.msgs, Msg{File: file, Text: text})

	if l.echo {
		l.zl.Warn().Str("file", file).Msg(text)
	}
}

// Len returns the number of warnings recorded so far.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.msgs)
}

// Done returns the warnings sorted by file then text.
func (l *Log) Done() []Msg {
	l.mu.Lock()
	defer l.mu.Unlock()

	msgs := make(msgsArray, len(l.msgs))
	copy(msgs, l.msgs)
	sort.Stable(msgs)

	return msgs
}
