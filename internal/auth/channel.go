package auth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytup/internal/shared"
	"github.com/fsnotify/fsnotify"
)

// CodeRequest asks a [CodeChannel] for the authorization code that follows visiting URL.
type CodeRequest struct {
	URL      string
	NeedCode bool
	User     string
	// State is the state parameter of URL. Channels that can see it reject codes for other requests.
	State string
}

// CodeChannel obtains an authorization code from a human.
type CodeChannel interface {
	// DeliverCode blocks until a code is available, ctx is done, or the channel fails.
	// It returns "" without blocking when req.NeedCode is false.
	DeliverCode(ctx context.Context, req CodeRequest) (string, error)
}

// NewCodeChannel returns a [FileChannel] when use_file_auth_response is set and a [ConsoleChannel] otherwise.
func NewCodeChannel(cfg shared.AuthConfig, in io.Reader, out io.Writer, logger *log.Logger) CodeChannel {
	if cfg.UseFileAuthResponse {
		return &FileChannel{Path: cfg.PathAuthCode, Interval: cfg.PollInterval(), Out: out, Logger: logger}
	}
	return &ConsoleChannel{In: in, Out: out}
}

const consolePrompt = "Enter the code you get after authorization here: "

// ConsoleChannel reads the code as one line from In, prompting on Out.
type ConsoleChannel struct {
	In  io.Reader
	Out io.Writer
}

func (c *ConsoleChannel) DeliverCode(ctx context.Context, req CodeRequest) (string, error) {
	if !req.NeedCode {
		return "", nil
	}

	in, out := c.In, c.Out
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprint(out, consolePrompt)

	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := bufio.NewReader(in).ReadString('\n')
		ch <- result{line, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		code := strings.TrimSpace(r.line)
		switch {
		case r.err == nil:
			return code, nil
		case errors.Is(r.err, io.EOF) && code != "":
			return code, nil
		case errors.Is(r.err, io.EOF):
			return "", ErrInputClosed
		default:
			return "", fmt.Errorf("failed to read code: %w", r.err)
		}
	}
}

// FileChannel waits for the code to appear as the first line of the file at Path.
//
// Any file already at Path is removed before waiting so a code from an earlier
// run is never reused. The file is re-read every Interval; a watcher on the
// parent directory wakes the loop early when it can be installed.
//
// The callback server writes the redirect's state on the second line. When present it
// must match the request, otherwise the file is discarded and the wait goes on. A file
// written by hand with only the code is accepted.
type FileChannel struct {
	Path     string
	Interval time.Duration
	Out      io.Writer
	Logger   *log.Logger
}

func (c *FileChannel) DeliverCode(ctx context.Context, req CodeRequest) (string, error) {
	if !req.NeedCode {
		return "", nil
	}

	if err := os.Remove(c.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s: %w", ErrStaleCodeFile, c.Path, err)
	}

	if c.Out != nil {
		fmt.Fprintf(c.Out, "Waiting for auth code in file: %s\n", c.Path)
	}
	if c.Logger != nil {
		c.Logger.Info("waiting for auth code", "path", c.Path, "user", req.User)
	}

	interval := c.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		events    <-chan fsnotify.Event
		watchErrs <-chan error
	)
	if w, err := fsnotify.NewWatcher(); err == nil {
		defer w.Close()
		if err := w.Add(filepath.Dir(c.Path)); err == nil {
			events, watchErrs = w.Events, w.Errors
		} else {
			c.debug("falling back to polling", "err", err)
		}
	}
	return c.wait(ctx, req, ticker.C, events, watchErrs)
}

// wait re-reads the code file on every tick and on every watcher event for it.
func (c *FileChannel) wait(
	ctx context.Context,
	req CodeRequest,
	tick <-chan time.Time,
	events <-chan fsnotify.Event,
	watchErrs <-chan error,
) (string, error) {
	for {
		code, state, err := readCodeFile(c.Path)
		switch {
		case err == nil && code != "" && (state == "" || req.State == "" || state == req.State):
			return code, nil
		case err == nil && code != "":
			if c.Logger != nil {
				c.Logger.Warn("discarding auth code", "path", c.Path, "err", ErrStateMismatch)
			}
			if err := os.Remove(c.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return "", fmt.Errorf("%w: %s: %w", ErrStaleCodeFile, c.Path, err)
			}
		case err != nil && !errors.Is(err, fs.ErrNotExist) && c.Logger != nil:
			c.Logger.Warn("could not read auth code file", "path", c.Path, "err", err)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-tick:
		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			c.debug("file watcher error", "err", err)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) != filepath.Clean(c.Path) {
				continue
			}
		}
	}
}

func (c *FileChannel) debug(msg string, kv ...any) {
	if c.Logger != nil {
		c.Logger.Debug(msg, kv...)
	}
}

// readCodeFile returns the first two non-empty lines of the file, trimmed: the code and its state.
func readCodeFile(path string) (code, state string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
		if len(lines) == 2 {
			break
		}
	}
	switch len(lines) {
	case 0:
		return "", "", nil
	case 1:
		return lines[0], "", nil
	}
	return lines[0], lines[1], nil
}
