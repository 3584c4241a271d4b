// Package dasm renders the decoded metadata graph as textual IL. One
// call walks the whole graph top to bottom and emits a single ordered
// text stream; nothing is buffered beyond the line being composed.
package dasm

import (
	"errors"
	"fmt"
	"io"
)

// ErrSinkWrite reports that the output destination rejected a write.
// Rendering stops at the point of failure; text already written is
// not rolled back.
var ErrSinkWrite = errors.New("sink write failed")

// Sink is the ordered-text output destination.
type Sink interface {
	Write(text string) error
	WriteLine(text string) error
	WriteBlankLine() error
}

// WriterSink adapts an io.Writer to the Sink interface.
type WriterSink struct {
	w io.Writer
}

// NewWriterSink wraps w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Write(text string) error {
	if _, err := io.WriteString(s.w, text); err != nil {
		return fmt.Errorf("%w: %v", ErrSinkWrite, err)
	}
	return nil
}

func (s *WriterSink) WriteLine(text string) error {
	return s.Write(text + "\n")
}

func (s *WriterSink) WriteBlankLine() error {
	return s.Write("\n")
}
