package auth

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytup/internal/shared"
)

func TestConsoleChannel(t *testing.T) {
	ctx := context.Background()

	t.Run("reads and trims one line", func(t *testing.T) {
		var out bytes.Buffer
		ch := &ConsoleChannel{In: strings.NewReader("  4/abc-DEF  \nignored\n"), Out: &out}
		code, err := ch.DeliverCode(ctx, CodeRequest{URL: "https://example.com", NeedCode: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if code != "4/abc-DEF" {
			t.Errorf("expected 4/abc-DEF, got %q", code)
		}
		if !strings.Contains(out.String(), "Enter the code you get after authorization here:") {
			t.Errorf("prompt missing from output: %q", out.String())
		}
	})

	t.Run("last line without newline", func(t *testing.T) {
		ch := &ConsoleChannel{In: strings.NewReader("XYZ"), Out: io.Discard}
		code, err := ch.DeliverCode(ctx, CodeRequest{NeedCode: true})
		if err != nil || code != "XYZ" {
			t.Errorf("expected XYZ, got %q (%v)", code, err)
		}
	})

	t.Run("closed input is fatal", func(t *testing.T) {
		ch := &ConsoleChannel{In: strings.NewReader(""), Out: io.Discard}
		_, err := ch.DeliverCode(ctx, CodeRequest{NeedCode: true})
		if !errors.Is(err, ErrInputClosed) {
			t.Errorf("expected ErrInputClosed, got %v", err)
		}
	})

	t.Run("no code needed", func(t *testing.T) {
		ch := &ConsoleChannel{In: strings.NewReader("unused\n"), Out: io.Discard}
		code, err := ch.DeliverCode(ctx, CodeRequest{NeedCode: false})
		if err != nil || code != "" {
			t.Errorf("expected empty code, got %q (%v)", code, err)
		}
	})

	t.Run("cancellation", func(t *testing.T) {
		r, w := io.Pipe()
		defer w.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		ch := &ConsoleChannel{In: r, Out: io.Discard}
		if _, err := ch.DeliverCode(ctx, CodeRequest{NeedCode: true}); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestFileChannel(t *testing.T) {
	t.Run("ignores stale code and waits for a new one", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "code.txt")
		if err := os.WriteFile(path, []byte("OLDCODE\n"), 0o600); err != nil {
			t.Fatal(err)
		}

		var out bytes.Buffer
		ch := &FileChannel{Path: path, Interval: 10 * time.Millisecond, Out: &out}

		go func() {
			time.Sleep(50 * time.Millisecond)
			_ = os.WriteFile(path, nil, 0o600)
			time.Sleep(50 * time.Millisecond)
			_ = os.WriteFile(path, []byte("ABC123\n"), 0o600)
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		code, err := ch.DeliverCode(ctx, CodeRequest{NeedCode: true, User: "alice"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if code != "ABC123" {
			t.Errorf("expected ABC123, got %q", code)
		}
		if !strings.Contains(out.String(), "Waiting for auth code in file: "+path) {
			t.Errorf("missing wait notice: %q", out.String())
		}
	})

	t.Run("first non-empty line wins", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "code.txt")
		ch := &FileChannel{Path: path, Interval: 10 * time.Millisecond}

		go func() {
			time.Sleep(20 * time.Millisecond)
			_ = os.WriteFile(path, []byte("\n  FIRST  \nSECOND\n"), 0o600)
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		code, err := ch.DeliverCode(ctx, CodeRequest{NeedCode: true})
		if err != nil || code != "FIRST" {
			t.Errorf("expected FIRST, got %q (%v)", code, err)
		}
	})

	t.Run("stale file that cannot be removed", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "code.txt")
		if err := os.MkdirAll(filepath.Join(path, "child"), 0o700); err != nil {
			t.Fatal(err)
		}

		ch := &FileChannel{Path: path, Interval: 10 * time.Millisecond}
		_, err := ch.DeliverCode(context.Background(), CodeRequest{NeedCode: true})
		if !errors.Is(err, ErrStaleCodeFile) {
			t.Errorf("expected ErrStaleCodeFile, got %v", err)
		}
	})

	t.Run("cancellation", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "code.txt")
		ch := &FileChannel{Path: path, Interval: time.Hour}

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		if _, err := ch.DeliverCode(ctx, CodeRequest{NeedCode: true}); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected context.DeadlineExceeded, got %v", err)
		}
	})

	t.Run("discards a code issued for another request", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "code.txt")
		ch := &FileChannel{Path: path, Interval: 10 * time.Millisecond}

		go func() {
			time.Sleep(20 * time.Millisecond)
			_ = os.WriteFile(path, []byte("OTHER\nforeign-state\n"), 0o600)
			for {
				if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
					break
				}
				time.Sleep(5 * time.Millisecond)
			}
			_ = os.WriteFile(path, []byte("GOOD\nmy-state\n"), 0o600)
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		code, err := ch.DeliverCode(ctx, CodeRequest{NeedCode: true, State: "my-state"})
		if err != nil || code != "GOOD" {
			t.Errorf("expected GOOD, got %q (%v)", code, err)
		}
	})

	t.Run("returns within one poll interval of the write", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "code.txt")
		interval := 100 * time.Millisecond
		ch := &FileChannel{Path: path, Interval: interval}

		written := make(chan time.Time, 1)
		go func() {
			time.Sleep(30 * time.Millisecond)
			_ = os.WriteFile(path, []byte("CODE\n"), 0o600)
			written <- time.Now()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		code, err := ch.DeliverCode(ctx, CodeRequest{NeedCode: true})
		returned := time.Now()
		if err != nil || code != "CODE" {
			t.Fatalf("expected CODE, got %q (%v)", code, err)
		}
		if gap := returned.Sub(<-written); gap > interval+50*time.Millisecond {
			t.Errorf("code returned %s after the write, interval is %s", gap, interval)
		}
	})

	t.Run("keeps waiting after a watcher error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "code.txt")
		var logs bytes.Buffer
		logger := shared.NewLogger(&logs)
		logger.SetLevel(log.DebugLevel)
		ch := &FileChannel{Path: path, Logger: logger}

		tick := make(chan time.Time)
		watchErrs := make(chan error, 1)
		watchErrs <- errors.New("queue overflow")

		type result struct {
			code string
			err  error
		}
		done := make(chan result, 1)
		go func() {
			code, err := ch.wait(context.Background(), CodeRequest{NeedCode: true}, tick, nil, watchErrs)
			done <- result{code, err}
		}()

		deadline := time.Now().Add(2 * time.Second)
		for len(watchErrs) > 0 {
			if time.Now().After(deadline) {
				t.Fatal("watcher error was never read")
			}
			time.Sleep(time.Millisecond)
		}

		if err := os.WriteFile(path, []byte("CODE\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		tick <- time.Now()

		res := <-done
		if res.err != nil || res.code != "CODE" {
			t.Errorf("expected CODE, got %q (%v)", res.code, res.err)
		}
		if !strings.Contains(logs.String(), "file watcher error") {
			t.Errorf("expected the watcher error to be logged, got %q", logs.String())
		}
	})

	t.Run("no code needed leaves the file alone", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "code.txt")
		if err := os.WriteFile(path, []byte("KEEP"), 0o600); err != nil {
			t.Fatal(err)
		}
		ch := &FileChannel{Path: path}
		if code, err := ch.DeliverCode(context.Background(), CodeRequest{}); err != nil || code != "" {
			t.Errorf("expected empty code, got %q (%v)", code, err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("file should still exist: %v", err)
		}
	})
}

func TestNewCodeChannel(t *testing.T) {
	cfg := shared.DefaultConfig().Auth

	cfg.UseFileAuthResponse = true
	if _, ok := NewCodeChannel(cfg, nil, nil, nil).(*FileChannel); !ok {
		t.Error("expected a file channel")
	}

	cfg.UseFileAuthResponse = false
	if _, ok := NewCodeChannel(cfg, nil, nil, nil).(*ConsoleChannel); !ok {
		t.Error("expected a console channel")
	}
}
