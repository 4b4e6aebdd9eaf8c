package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/ytup/internal/backoff"
	"github.com/desertthunder/ytup/internal/shared"
	"golang.org/x/oauth2"
)

const (
	scopeUpload   = "https://www.googleapis.com/auth/youtube.upload"
	scopeReadonly = "https://www.googleapis.com/auth/youtube.readonly"
)

type tokenServer struct {
	*httptest.Server
	exchanges atomic.Int32
	scope     string
	lastForm  chan map[string]string
	// refresh answers refresh_token grants when set.
	refresh http.HandlerFunc
}

func newTokenServer(t *testing.T, scope string) *tokenServer {
	t.Helper()
	ts := &tokenServer{scope: scope, lastForm: make(chan map[string]string, 16)}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.Form.Get("grant_type") == "refresh_token" && ts.refresh != nil {
			ts.refresh(w, r)
			return
		}
		ts.exchanges.Add(1)
		ts.lastForm <- map[string]string{
			"code":          r.Form.Get("code"),
			"code_verifier": r.Form.Get("code_verifier"),
			"redirect_uri":  r.Form.Get("redirect_uri"),
		}
		if r.Form.Get("code") == "bad" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-" + r.Form.Get("code"),
			"refresh_token": "refresh",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"scope":         ts.scope,
		})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func writeSecret(t *testing.T, dir, tokenURL string) string {
	t.Helper()
	secret := fmt.Sprintf(`{"installed":{
		"client_id":"client-id",
		"client_secret":"client-secret",
		"auth_uri":"https://accounts.example.com/o/oauth2/auth",
		"token_uri":%q,
		"redirect_uris":["http://localhost"]
	}}`, tokenURL)
	path := filepath.Join(dir, "client_secret.json")
	if err := os.WriteFile(path, []byte(secret), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

type recorder struct {
	mu    sync.Mutex
	users []string
}

func (r *recorder) RecordAccount(_ context.Context, user, _ string, _ []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, user)
	return nil
}

type countingChannel struct {
	code  string
	calls atomic.Int32
	urls  chan string
}

func (c *countingChannel) DeliverCode(_ context.Context, req CodeRequest) (string, error) {
	c.calls.Add(1)
	if c.urls != nil {
		c.urls <- req.URL
	}
	return c.code, nil
}

// blockingChannel holds the flow until a code is released or the flow's context ends.
type blockingChannel struct {
	started chan struct{}
	stopped chan error
	release chan string
}

func newBlockingChannel() *blockingChannel {
	return &blockingChannel{
		started: make(chan struct{}, 4),
		stopped: make(chan error, 4),
		release: make(chan string, 1),
	}
}

func (c *blockingChannel) DeliverCode(ctx context.Context, _ CodeRequest) (string, error) {
	c.started <- struct{}{}
	select {
	case <-ctx.Done():
		c.stopped <- ctx.Err()
		return "", ctx.Err()
	case code := <-c.release:
		return code, nil
	}
}

// waitForWaiters blocks until n callers share an in-flight authentication.
func waitForWaiters(t *testing.T, m *Manager, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		m.mu.Lock()
		total := 0
		for _, f := range m.flights {
			total += f.waiters
		}
		m.mu.Unlock()
		if total >= n {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %d waiters, have %d", n, total)
		}
		time.Sleep(time.Millisecond)
	}
}

func saveCredential(t *testing.T, m *Manager, user string, scopes []string, expiry time.Time) string {
	t.Helper()
	path := m.Store().ResolvePath(user)
	if err := m.Store().EnsureReady(path); err != nil {
		t.Fatal(err)
	}
	cred := &Credential{
		User:   user,
		Scopes: scopes,
		Token:  &oauth2.Token{AccessToken: "stale", RefreshToken: "rt", TokenType: "Bearer", Expiry: expiry},
	}
	if err := m.Store().Save(path, cred); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestManager(t *testing.T, dir string, ch CodeChannel, rec AccountRecorder) *Manager {
	t.Helper()
	cfg := shared.DefaultConfig().Auth
	cfg.PathAuthentications = filepath.Join(dir, "auth", "{user}.json")
	cfg.UseLocalAuthRedirect = true

	m, err := NewManager(Options{
		Config:   cfg,
		Logger:   shared.NewLogger(&bytes.Buffer{}),
		Out:      &bytes.Buffer{},
		Channel:  ch,
		Recorder: rec,
		Retry:    &backoff.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2, MaxDelay: 5 * time.Millisecond},
	})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestGetAuthenticator(t *testing.T) {
	scopes := []string{scopeUpload, scopeReadonly}
	ctx := context.Background()

	t.Run("runs the flow and persists the credential", func(t *testing.T) {
		dir := t.TempDir()
		ts := newTokenServer(t, strings.Join(scopes, " "))
		secret := writeSecret(t, dir, ts.URL)
		ch := &countingChannel{code: "ABC123", urls: make(chan string, 1)}
		rec := &recorder{}
		m := newTestManager(t, dir, ch, rec)

		cred, err := m.GetAuthenticator(ctx, secret, scopes, "alice")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cred.Token.AccessToken != "access-ABC123" {
			t.Errorf("unexpected access token %s", cred.Token.AccessToken)
		}

		path := filepath.Join(dir, "auth", "alice.json")
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("token file should exist: %v", err)
		}

		form := <-ts.lastForm
		if form["code"] != "ABC123" {
			t.Errorf("exchanged wrong code %q", form["code"])
		}
		if form["code_verifier"] == "" {
			t.Error("expected a PKCE verifier")
		}
		if form["redirect_uri"] != "http://localhost:8080/googleapi/auth" {
			t.Errorf("unexpected redirect_uri %q", form["redirect_uri"])
		}

		url := <-ch.urls
		for _, want := range []string{"access_type=offline", "prompt=select_account+consent", "code_challenge_method=S256"} {
			if !strings.Contains(url, want) {
				t.Errorf("consent URL missing %s: %s", want, url)
			}
		}
		if len(rec.users) != 1 || rec.users[0] != "alice" {
			t.Errorf("account not recorded: %v", rec.users)
		}
	})

	t.Run("reuses a persisted credential", func(t *testing.T) {
		dir := t.TempDir()
		ts := newTokenServer(t, strings.Join(scopes, " "))
		secret := writeSecret(t, dir, ts.URL)
		ch := &countingChannel{code: "ABC123"}
		m := newTestManager(t, dir, ch, nil)

		for range 2 {
			if _, err := m.GetAuthenticator(ctx, secret, scopes, "alice"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if n := ch.calls.Load(); n != 1 {
			t.Errorf("expected one consent prompt, got %d", n)
		}
		if n := ts.exchanges.Load(); n != 1 {
			t.Errorf("expected one exchange, got %d", n)
		}
	})

	t.Run("distinct users get distinct files", func(t *testing.T) {
		dir := t.TempDir()
		ts := newTokenServer(t, strings.Join(scopes, " "))
		secret := writeSecret(t, dir, ts.URL)
		m := newTestManager(t, dir, &countingChannel{code: "C"}, nil)

		a, err := m.GetAuthenticator(ctx, secret, scopes, "alice")
		if err != nil {
			t.Fatal(err)
		}
		b, err := m.GetAuthenticator(ctx, secret, scopes, "bob")
		if err != nil {
			t.Fatal(err)
		}
		if a.Path() == b.Path() {
			t.Errorf("expected distinct paths, both %s", a.Path())
		}
	})

	t.Run("empty user resolves to unknown", func(t *testing.T) {
		dir := t.TempDir()
		ts := newTokenServer(t, strings.Join(scopes, " "))
		secret := writeSecret(t, dir, ts.URL)
		m := newTestManager(t, dir, &countingChannel{code: "C"}, nil)

		cred, err := m.GetAuthenticator(ctx, secret, scopes, "")
		if err != nil {
			t.Fatal(err)
		}
		if filepath.Base(cred.Path()) != "unknown.json" {
			t.Errorf("unexpected path %s", cred.Path())
		}
	})

	t.Run("concurrent calls share one flow", func(t *testing.T) {
		dir := t.TempDir()
		ts := newTokenServer(t, strings.Join(scopes, " "))
		secret := writeSecret(t, dir, ts.URL)
		ch := &countingChannel{code: "C"}
		m := newTestManager(t, dir, ch, nil)

		var wg sync.WaitGroup
		errs := make(chan error, 8)
		creds := make(chan *Credential, 8)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				cred, err := m.GetAuthenticator(ctx, secret, scopes, "alice")
				errs <- err
				creds <- cred
			}()
		}
		wg.Wait()
		close(errs)
		close(creds)
		for err := range errs {
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if n := ch.calls.Load(); n != 1 {
			t.Errorf("expected one consent prompt, got %d", n)
		}

		seen := map[*oauth2.Token]bool{}
		for cred := range creds {
			if seen[cred.Token] {
				t.Fatal("callers must not share a token")
			}
			seen[cred.Token] = true
		}
	})

	t.Run("cancelling one caller leaves the others running", func(t *testing.T) {
		dir := t.TempDir()
		ts := newTokenServer(t, strings.Join(scopes, " "))
		secret := writeSecret(t, dir, ts.URL)
		ch := newBlockingChannel()
		m := newTestManager(t, dir, ch, nil)

		ctxA, cancelA := context.WithCancel(ctx)
		errA := make(chan error, 1)
		go func() {
			_, err := m.GetAuthenticator(ctxA, secret, scopes, "alice")
			errA <- err
		}()
		<-ch.started

		ctxB, cancelB := context.WithTimeout(ctx, 10*time.Second)
		defer cancelB()
		type result struct {
			cred *Credential
			err  error
		}
		resB := make(chan result, 1)
		go func() {
			cred, err := m.GetAuthenticator(ctxB, secret, scopes, "alice")
			resB <- result{cred, err}
		}()
		waitForWaiters(t, m, 2)

		cancelA()
		if err := <-errA; !errors.Is(err, context.Canceled) {
			t.Errorf("expected caller A to be cancelled, got %v", err)
		}

		ch.release <- "ABC123"
		res := <-resB
		if res.err != nil {
			t.Fatalf("caller B should succeed, got %v", res.err)
		}
		if res.cred.Token.AccessToken != "access-ABC123" {
			t.Errorf("unexpected access token %s", res.cred.Token.AccessToken)
		}
		if n := len(ch.stopped); n != 0 {
			t.Errorf("the shared flow should not be cancelled, stopped %d times", n)
		}
	})

	t.Run("the last caller out stops the flow", func(t *testing.T) {
		dir := t.TempDir()
		ts := newTokenServer(t, strings.Join(scopes, " "))
		secret := writeSecret(t, dir, ts.URL)
		ch := newBlockingChannel()
		m := newTestManager(t, dir, ch, nil)

		ctxA, cancelA := context.WithCancel(ctx)
		errA := make(chan error, 1)
		go func() {
			_, err := m.GetAuthenticator(ctxA, secret, scopes, "alice")
			errA <- err
		}()
		<-ch.started
		cancelA()

		if err := <-errA; !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		select {
		case <-ch.stopped:
		case <-time.After(5 * time.Second):
			t.Fatal("the abandoned flow kept waiting for a code")
		}

		ch.release <- "NEXT"
		cred, err := m.GetAuthenticator(ctx, secret, scopes, "alice")
		if err != nil {
			t.Fatalf("a later call should start a new flow, got %v", err)
		}
		if cred.Token.AccessToken != "access-NEXT" {
			t.Errorf("unexpected access token %s", cred.Token.AccessToken)
		}
	})

	t.Run("refresh failure keeps the token file", func(t *testing.T) {
		dir := t.TempDir()
		ts := newTokenServer(t, strings.Join(scopes, " "))
		var refreshes atomic.Int32
		ts.refresh = func(w http.ResponseWriter, r *http.Request) {
			refreshes.Add(1)
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
		}
		secret := writeSecret(t, dir, ts.URL)
		ch := &countingChannel{code: "C"}
		m := newTestManager(t, dir, ch, nil)
		path := saveCredential(t, m, "alice", scopes, time.Now().Add(-time.Hour))

		_, err := m.GetAuthenticator(ctx, secret, scopes, "alice")
		if !errors.Is(err, &StageError{Stage: StageRefresh}) {
			t.Fatalf("expected refresh stage error, got %v", err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("token file should be kept, got %v", err)
		}
		if n := refreshes.Load(); n < 2 {
			t.Errorf("expected the refresh to be retried, got %d attempts", n)
		}
		if n := ch.calls.Load(); n != 0 {
			t.Errorf("no consent prompt expected, got %d", n)
		}
	})

	t.Run("revoked refresh token runs the flow again", func(t *testing.T) {
		dir := t.TempDir()
		ts := newTokenServer(t, strings.Join(scopes, " "))
		ts.refresh = func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
		}
		secret := writeSecret(t, dir, ts.URL)
		ch := &countingChannel{code: "C"}
		m := newTestManager(t, dir, ch, nil)
		saveCredential(t, m, "alice", scopes, time.Now().Add(-time.Hour))

		cred, err := m.GetAuthenticator(ctx, secret, scopes, "alice")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cred.Token.AccessToken != "access-C" {
			t.Errorf("expected a new token, got %s", cred.Token.AccessToken)
		}
		if n := ch.calls.Load(); n != 1 {
			t.Errorf("expected one consent prompt, got %d", n)
		}
	})

	t.Run("user names cannot leave the credential directory", func(t *testing.T) {
		dir := t.TempDir()
		ts := newTokenServer(t, strings.Join(scopes, " "))
		secret := writeSecret(t, dir, ts.URL)
		ch := &countingChannel{code: "C"}
		m := newTestManager(t, dir, ch, nil)

		for _, user := range []string{"../escape", "a/b", ".."} {
			_, err := m.GetAuthenticator(ctx, secret, scopes, user)
			if !errors.Is(err, &StageError{Stage: StagePath}) || !errors.Is(err, ErrInvalidUser) {
				t.Errorf("%q: expected path stage error wrapping ErrInvalidUser, got %v", user, err)
			}
		}
		if n := ch.calls.Load(); n != 0 {
			t.Errorf("no consent prompt expected, got %d", n)
		}
		if _, err := os.Stat(filepath.Join(dir, "escape.json")); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("nothing should be written outside the credential directory, got %v", err)
		}
	})

	t.Run("missing secret", func(t *testing.T) {
		dir := t.TempDir()
		m := newTestManager(t, dir, &countingChannel{code: "C"}, nil)
		_, err := m.GetAuthenticator(ctx, filepath.Join(dir, "missing.json"), scopes, "alice")
		if !errors.Is(err, &StageError{Stage: StageSecret}) {
			t.Errorf("expected secret stage error, got %v", err)
		}
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected the cause to be preserved, got %v", err)
		}
	})

	t.Run("rejected code", func(t *testing.T) {
		dir := t.TempDir()
		ts := newTokenServer(t, strings.Join(scopes, " "))
		secret := writeSecret(t, dir, ts.URL)
		m := newTestManager(t, dir, &countingChannel{code: "bad"}, nil)

		_, err := m.GetAuthenticator(ctx, secret, scopes, "alice")
		if !errors.Is(err, &StageError{Stage: StageExchange}) {
			t.Errorf("expected exchange stage error, got %v", err)
		}
	})

	t.Run("channel failure", func(t *testing.T) {
		dir := t.TempDir()
		ts := newTokenServer(t, strings.Join(scopes, " "))
		secret := writeSecret(t, dir, ts.URL)
		m := newTestManager(t, dir, &stubChannel{err: ErrInputClosed}, nil)

		_, err := m.GetAuthenticator(ctx, secret, scopes, "alice")
		if !errors.Is(err, &StageError{Stage: StageFlow}) || !errors.Is(err, ErrInputClosed) {
			t.Errorf("expected flow stage error wrapping ErrInputClosed, got %v", err)
		}
	})

	t.Run("missing scopes remove the token file", func(t *testing.T) {
		dir := t.TempDir()
		ts := newTokenServer(t, scopeReadonly)
		secret := writeSecret(t, dir, ts.URL)
		m := newTestManager(t, dir, &countingChannel{code: "C"}, nil)

		_, err := m.GetAuthenticator(ctx, secret, scopes, "alice")
		if !errors.Is(err, &StageError{Stage: StageScopes}) || !errors.Is(err, ErrScopesNotGranted) {
			t.Fatalf("expected scopes stage error, got %v", err)
		}
		if !strings.Contains(err.Error(), "could not get access to requested scopes") {
			t.Errorf("unexpected message %q", err.Error())
		}
		if _, err := os.Stat(filepath.Join(dir, "auth", "alice.json")); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("token file should be removed, got %v", err)
		}
	})
}

func TestManagerLogout(t *testing.T) {
	dir := t.TempDir()
	ts := newTokenServer(t, "")
	secret := writeSecret(t, dir, ts.URL)
	m := newTestManager(t, dir, &countingChannel{code: "C"}, nil)

	if _, err := m.GetAuthenticator(context.Background(), secret, []string{scopeUpload}, "alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Lookup("alice"); err != nil {
		t.Fatalf("lookup failed: %v", err)
	}

	path, err := m.Logout("alice")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("token file should be gone, got %v", err)
	}
	if _, err := m.Lookup("alice"); !errors.Is(err, ErrCredentialNotFound) {
		t.Errorf("expected ErrCredentialNotFound, got %v", err)
	}
}

func TestNewManagerRejectsBadTemplate(t *testing.T) {
	cfg := shared.DefaultConfig().Auth
	cfg.PathAuthentications = "/tmp/{account}.json"
	_, err := NewManager(Options{Config: cfg})
	if !errors.Is(err, ErrMalformedTemplate) {
		t.Errorf("expected ErrMalformedTemplate, got %v", err)
	}
}
