package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

// fakeObjectWriter records whether its context was canceled when Close ran
type fakeObjectWriter struct {
	ctx             context.Context
	buf             bytes.Buffer
	closed          bool
	canceledAtClose bool
}

func (w *fakeObjectWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *fakeObjectWriter) Close() error {
	w.closed = true
	w.canceledAtClose = w.ctx.Err() != nil
	if w.canceledAtClose {
		return context.Canceled
	}
	return nil
}

func TestWriteObjectCommits(t *testing.T) {
	w := &fakeObjectWriter{}
	open := func(ctx context.Context) io.WriteCloser {
		w.ctx = ctx
		return w
	}

	if err := writeObject(context.Background(), open, strings.NewReader("payload")); err != nil {
		t.Fatal(err)
	}
	if !w.closed || w.canceledAtClose {
		t.Errorf("Expected a clean close, got closed=%v canceled=%v", w.closed, w.canceledAtClose)
	}
	if w.buf.String() != "payload" {
		t.Errorf("Expected payload to be written, got %q", w.buf.String())
	}
}

func TestWriteObjectCancelsOnReadError(t *testing.T) {
	w := &fakeObjectWriter{}
	open := func(ctx context.Context) io.WriteCloser {
		w.ctx = ctx
		return w
	}
	readErr := errors.New("source went away")

	err := writeObject(context.Background(), open, iotest.ErrReader(readErr))
	if !errors.Is(err, readErr) {
		t.Fatalf("Expected the read error, got %v", err)
	}
	if !w.closed {
		t.Fatal("Expected the writer to be closed")
	}
	if !w.canceledAtClose {
		t.Error("Expected the upload context to be canceled before Close")
	}
}
