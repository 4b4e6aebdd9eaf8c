package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytup/internal/backoff"
	"github.com/desertthunder/ytup/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/singleflight"
)

// AccountRecorder is notified after a user authenticates successfully.
type AccountRecorder interface {
	RecordAccount(ctx context.Context, user, tokenPath string, scopes []string) error
}

// Options configures a [Manager].
type Options struct {
	Config shared.AuthConfig
	Logger *log.Logger
	In     io.Reader
	Out    io.Writer
	// Channel overrides the channel chosen from Config.
	Channel CodeChannel
	// HTTPClient is used for the token endpoint.
	HTTPClient *http.Client
	Recorder   AccountRecorder
	// Retry governs access token refreshes. Nil uses [backoff.DefaultPolicy].
	Retry *backoff.Policy
}

// Manager runs the authorization-code flow and hands out credentials.
type Manager struct {
	cfg      shared.AuthConfig
	store    *TokenStore
	logger   *log.Logger
	in       io.Reader
	out      io.Writer
	channel  CodeChannel
	client   *http.Client
	recorder AccountRecorder
	retry    *backoff.Policy

	mu      sync.Mutex
	group   singleflight.Group
	flights map[string]*flight
}

// NewManager validates the token path template and returns a manager.
func NewManager(opts Options) (*Manager, error) {
	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	store, err := NewTokenStore(opts.Config.PathAuthentications, logger)
	if err != nil {
		return nil, stageErr(StagePath, "", err)
	}

	in, out := opts.In, opts.Out
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	channel := opts.Channel
	if channel == nil {
		channel = NewCodeChannel(opts.Config, in, out, logger)
	}

	retry := opts.Retry
	if retry == nil {
		retry = backoff.DefaultPolicy()
	}

	return &Manager{
		cfg:      opts.Config,
		store:    store,
		logger:   logger,
		in:       in,
		out:      out,
		channel:  channel,
		client:   opts.HTTPClient,
		recorder: opts.Recorder,
		retry:    retry,
		flights:  make(map[string]*flight),
	}, nil
}

// Store exposes the underlying token store.
func (m *Manager) Store() *TokenStore { return m.store }

// GetAuthenticator returns a credential for user covering scopes, running the consent flow when
// no usable credential is on disk. Concurrent calls for the same user share one flow, and each
// caller gets its own copy of the result.
//
// Cancelling ctx abandons only this call. The shared flow stops once every caller has left.
func (m *Manager) GetAuthenticator(ctx context.Context, secretPath string, scopes []string, user string) (*Credential, error) {
	if user == "" {
		user = DefaultUser
	}
	if err := CheckUser(user); err != nil {
		return nil, stageErr(StagePath, user, err)
	}
	logger := shared.WithLogger(m.logger, "user", user)

	data, err := os.ReadFile(secretPath)
	if err != nil {
		return nil, stageErr(StageSecret, user, err)
	}
	conf, err := google.ConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, stageErr(StageSecret, user, err)
	}

	delegate := NewFlowDelegate(user, m.cfg, m.channel, m.out, logger)
	conf.RedirectURL = delegate.RedirectURI()

	path := m.store.ResolvePath(user)
	dirErr := m.store.EnsureReady(path)

	if m.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, m.client)
	}

	key := path + "|" + strings.Join(sortedCopy(scopes), " ")
	f, results := m.join(ctx, key, func(flowCtx context.Context) (any, error) {
		unlock := m.store.Lock(path)
		defer unlock()
		return m.authenticate(flowCtx, logger, conf, delegate, path, user, scopes, dirErr)
	})
	defer m.leave(key, f)

	select {
	case <-ctx.Done():
		return nil, stageErr(StageFlow, user, ctx.Err())
	case res := <-results:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			logger.Debug("joined in-flight authentication", "path", path)
		}
		return res.Val.(*Credential).clone(), nil
	}
}

// flight is the context shared by every caller waiting on one singleflight key.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// join registers a waiter for key and returns the channel its result arrives on.
// The first waiter starts fn on a context detached from its own cancellation.
func (m *Manager) join(ctx context.Context, key string, fn func(context.Context) (any, error)) (*flight, <-chan singleflight.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		m.flights[key] = f
	}
	f.waiters++
	return f, m.group.DoChan(key, func() (any, error) { return fn(f.ctx) })
}

// leave drops a waiter. The last one out cancels the flow and forgets the key so the next
// caller starts fresh instead of joining a cancelled flow.
func (m *Manager) leave(key string, f *flight) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if m.flights[key] == f {
		delete(m.flights, key)
	}
	m.group.Forget(key)
}

func (m *Manager) authenticate(
	ctx context.Context,
	logger *log.Logger,
	conf *oauth2.Config,
	delegate *FlowDelegate,
	path, user string,
	scopes []string,
	dirErr error,
) (*Credential, error) {
	cred, err := m.store.Load(path)
	if err != nil && !errors.Is(err, ErrCredentialNotFound) {
		logger.Warn("ignoring unreadable credential", "path", path, "err", err)
	}

	reuse := err == nil && cred.Covers(scopes)
	if reuse {
		cred.conf = conf
		switch err := m.refresh(ctx, cred); {
		case err == nil:
			logger.Debug("reusing persisted credential", "path", path)
		case refreshRevoked(err):
			logger.Warn("stored refresh token was rejected, authorizing again", "path", path, "err", err)
			reuse = false
		default:
			// The file is kept: a failing token endpoint says nothing about the grant.
			return nil, stageErr(StageRefresh, user, err)
		}
	}

	if !reuse {
		cred, err = m.runFlow(ctx, conf, delegate, user, scopes)
		if err != nil {
			return nil, err
		}
		if err := m.store.Save(path, cred); err != nil {
			if dirErr != nil {
				return nil, stageErr(StageDirectory, user, errors.Join(dirErr, err))
			}
			return nil, stageErr(StagePersist, user, err)
		}
		logger.Info("credential saved", "path", path)

		if !cred.Covers(scopes) {
			if rmErr := m.store.Remove(path); rmErr != nil {
				logger.Warn("could not remove credential after scope failure", "path", path, "err", rmErr)
			}
			return nil, stageErr(StageScopes, user,
				fmt.Errorf("%w: want %v, have %v", ErrScopesNotGranted, scopes, cred.Scopes))
		}
		if err := m.refresh(ctx, cred); err != nil {
			return nil, stageErr(StageRefresh, user, err)
		}
	}

	if m.recorder != nil {
		if err := m.recorder.RecordAccount(ctx, user, path, cred.Scopes); err != nil {
			logger.Warn("could not record account", "err", err)
		}
	}
	return cred, nil
}

func (m *Manager) runFlow(ctx context.Context, conf *oauth2.Config, delegate *FlowDelegate, user string, scopes []string) (*Credential, error) {
	state := shared.GenerateID()
	verifier := oauth2.GenerateVerifier()
	url := conf.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "select_account consent"),
		oauth2.S256ChallengeOption(verifier),
	)

	code, err := delegate.PresentUserURL(ctx, url, true)
	if err != nil {
		return nil, stageErr(StageFlow, user, err)
	}
	if code == "" {
		return nil, stageErr(StageFlow, user, fmt.Errorf("empty authorization code"))
	}

	tok, err := conf.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, stageErr(StageExchange, user, err)
	}

	return &Credential{User: user, Scopes: grantedScopes(tok, scopes), Token: tok, conf: conf}, nil
}

// refresh obtains a usable access token, retrying transient token endpoint failures.
func (m *Manager) refresh(ctx context.Context, cred *Credential) error {
	return m.retry.Do(ctx, func(ctx context.Context) error {
		_, err := cred.TokenSource(ctx).Token()
		return err
	})
}

// refreshRevoked reports whether the token endpoint rejected the refresh token itself.
func refreshRevoked(err error) bool {
	var rerr *oauth2.RetrieveError
	return errors.As(err, &rerr) && rerr.ErrorCode == "invalid_grant"
}

// grantedScopes reads the space-separated "scope" field of the token response,
// falling back to the requested scopes when the provider does not report one.
func grantedScopes(tok *oauth2.Token, requested []string) []string {
	if s, ok := tok.Extra("scope").(string); ok && strings.TrimSpace(s) != "" {
		return strings.Fields(s)
	}
	return append([]string(nil), requested...)
}

// Logout removes the persisted credential for user.
func (m *Manager) Logout(user string) (string, error) {
	if err := CheckUser(user); err != nil {
		return "", err
	}
	path := m.store.ResolvePath(user)
	unlock := m.store.Lock(path)
	defer unlock()
	return path, m.store.Remove(path)
}

// Lookup loads the persisted credential for user without running the flow.
func (m *Manager) Lookup(user string) (*Credential, error) {
	if err := CheckUser(user); err != nil {
		return nil, err
	}
	return m.store.Load(m.store.ResolvePath(user))
}

func sortedCopy(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}
