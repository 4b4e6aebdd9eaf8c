package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
)

// DefaultUser is substituted when no user name is given.
const DefaultUser = "unknown"

// Credential is a persisted OAuth token together with the user and scopes it was granted for.
type Credential struct {
	User   string        `json:"user"`
	Scopes []string      `json:"scopes"`
	Token  *oauth2.Token `json:"token"`

	conf  *oauth2.Config
	store *TokenStore
	path  string
}

// Covers reports whether every scope in want was granted.
func (c *Credential) Covers(want []string) bool {
	granted := make(map[string]bool, len(c.Scopes))
	for _, s := range c.Scopes {
		granted[s] = true
	}
	for _, s := range want {
		if !granted[s] {
			return false
		}
	}
	return true
}

// clone returns a copy that shares no mutable state with c.
func (c *Credential) clone() *Credential {
	cp := *c
	cp.Scopes = append([]string(nil), c.Scopes...)
	if c.Token != nil {
		tok := *c.Token
		cp.Token = &tok
	}
	return &cp
}

// Path is the file the credential was loaded from or saved to.
func (c *Credential) Path() string { return c.path }

// TokenSource returns a source that refreshes the token when it expires and writes
// the refreshed token back to the credential file.
func (c *Credential) TokenSource(ctx context.Context) oauth2.TokenSource {
	var base oauth2.TokenSource
	if c.conf != nil {
		base = c.conf.TokenSource(ctx, c.Token)
	} else {
		base = oauth2.StaticTokenSource(c.Token)
	}
	return &persistingSource{cred: c, base: oauth2.ReuseTokenSource(c.Token, base)}
}

// Client returns an HTTP client authorized with the credential.
func (c *Credential) Client(ctx context.Context) *http.Client {
	return oauth2.NewClient(ctx, c.TokenSource(ctx))
}

type persistingSource struct {
	mu   sync.Mutex
	cred *Credential
	base oauth2.TokenSource
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.cred.Token
	if prev != nil && prev.AccessToken == tok.AccessToken && prev.RefreshToken == tok.RefreshToken {
		return tok, nil
	}

	// Google omits the refresh token on refresh responses.
	if tok.RefreshToken == "" && prev != nil {
		tok.RefreshToken = prev.RefreshToken
	}
	s.cred.Token = tok
	if s.cred.store != nil && s.cred.path != "" {
		if err := s.cred.store.Save(s.cred.path, s.cred); err != nil && s.cred.store.logger != nil {
			s.cred.store.logger.Warn("could not persist refreshed token", "path", s.cred.path, "err", err)
		}
	}
	return tok, nil
}

var userReplacer = strings.NewReplacer("/", "_", "\\", "_", "\x00", "_")

type segment struct {
	literal string
	user    bool
}

// TokenStore maps user names onto credential files through a path template such as
// "/tmp/twba/auth/{user}.json". Literal braces are written {{ and }}.
type TokenStore struct {
	template string
	segments []segment
	logger   *log.Logger
	locks    sync.Map
}

// NewTokenStore parses template. The only placeholder is {user}.
func NewTokenStore(template string, logger *log.Logger) (*TokenStore, error) {
	segments, err := parseTemplate(template)
	if err != nil {
		return nil, err
	}
	return &TokenStore{template: template, segments: segments, logger: logger}, nil
}

func parseTemplate(t string) ([]segment, error) {
	var (
		out []segment
		lit strings.Builder
	)
	for i := 0; i < len(t); i++ {
		switch c := t[i]; c {
		case '{':
			if i+1 < len(t) && t[i+1] == '{' {
				lit.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(t[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("%w: unclosed '{' in %q", ErrMalformedTemplate, t)
			}
			name := t[i+1 : i+1+end]
			if name != "user" {
				return nil, fmt.Errorf("%w: unknown placeholder {%s} in %q", ErrMalformedTemplate, name, t)
			}
			if lit.Len() > 0 {
				out = append(out, segment{literal: lit.String()})
				lit.Reset()
			}
			out = append(out, segment{user: true})
			i += end + 1
		case '}':
			if i+1 < len(t) && t[i+1] == '}' {
				lit.WriteByte('}')
				i++
				continue
			}
			return nil, fmt.Errorf("%w: stray '}' in %q", ErrMalformedTemplate, t)
		default:
			lit.WriteByte(c)
		}
	}
	if lit.Len() > 0 {
		out = append(out, segment{literal: lit.String()})
	}
	return out, nil
}

// CheckUser rejects names that could move the credential file out of its directory.
func CheckUser(user string) error {
	if user == "." || user == ".." || strings.ContainsAny(user, "/\\\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidUser, user)
	}
	return nil
}

// ResolvePath expands the template for user. An empty user resolves as [DefaultUser].
// Separators and dot names are replaced so the result stays where the template points.
func (s *TokenStore) ResolvePath(user string) string {
	if user == "" {
		user = DefaultUser
	}
	if CheckUser(user) != nil {
		user = userReplacer.Replace(user)
		if user == "." || user == ".." {
			user = strings.Repeat("_", len(user))
		}
	}
	var b strings.Builder
	for _, seg := range s.segments {
		if seg.user {
			b.WriteString(user)
		} else {
			b.WriteString(seg.literal)
		}
	}
	return b.String()
}

// EnsureReady creates the parent directory of path when path is missing or is a directory.
// Failures are logged and returned, but callers may proceed; the later write will report the real error.
func (s *TokenStore) EnsureReady(path string) error {
	info, err := os.Stat(path)
	if err == nil && !info.IsDir() {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		if s.logger != nil {
			s.logger.Warn("could not create token directory", "path", path, "err", err)
		}
		return err
	}
	return nil
}

// Lock serializes writers of the same credential file. The returned func releases the lock.
func (s *TokenStore) Lock(path string) func() {
	v, _ := s.locks.LoadOrStore(filepath.Clean(path), &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Load reads the credential at path. A missing file yields [ErrCredentialNotFound].
func (s *TokenStore) Load(path string) (*Credential, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrCredentialNotFound
	}
	if err != nil {
		return nil, err
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("failed to decode credential %s: %w", path, err)
	}
	if cred.Token == nil {
		return nil, fmt.Errorf("credential %s has no token", path)
	}
	cred.store = s
	cred.path = path
	return &cred, nil
}

// Save writes cred to path atomically with owner-only permissions.
func (s *TokenStore) Save(path string, cred *Credential) error {
	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}

	cred.store = s
	cred.path = path
	return nil
}

// Remove deletes the credential file. A missing file is not an error.
func (s *TokenStore) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
