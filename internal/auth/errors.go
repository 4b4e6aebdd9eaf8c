package auth

import (
	"errors"
	"fmt"
)

// Stage names the step of [Manager.GetAuthenticator] that failed.
type Stage string

const (
	StageSecret    Stage = "secret"
	StagePath      Stage = "path"
	StageDirectory Stage = "directory"
	StageFlow      Stage = "flow"
	StageExchange  Stage = "exchange"
	StagePersist   Stage = "persist"
	StageRefresh   Stage = "refresh"
	StageScopes    Stage = "scopes"
)

var stageMessages = map[Stage]string{
	StageSecret:    "could not read application secret",
	StagePath:      "could not resolve token path",
	StageDirectory: "could not prepare token directory",
	StageFlow:      "authorization flow failed",
	StageExchange:  "could not exchange authorization code",
	StagePersist:   "could not persist token",
	StageRefresh:   "could not refresh access token",
	StageScopes:    "could not get access to requested scopes",
}

var (
	ErrInputClosed        = errors.New("input closed before a code was entered")
	ErrStaleCodeFile      = errors.New("could not remove stale auth code file")
	ErrMalformedTemplate  = errors.New("malformed path template")
	ErrScopesNotGranted   = errors.New("requested scopes were not granted")
	ErrCredentialNotFound = errors.New("no persisted credential")
	ErrInvalidUser        = errors.New("invalid user name")
	ErrStateMismatch      = errors.New("auth code was issued for another request")
)

// StageError tags a failure of the authentication flow with the step that produced it.
type StageError struct {
	Stage Stage
	User  string
	Err   error
}

func (e *StageError) Error() string {
	msg, ok := stageMessages[e.Stage]
	if !ok {
		msg = string(e.Stage)
	}
	return fmt.Sprintf("%s for %s: %v", msg, e.User, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, &StageError{Stage: StageScopes}) match on stage alone.
func (e *StageError) Is(target error) bool {
	t, ok := target.(*StageError)
	return ok && t.Err == nil && t.User == "" && t.Stage == e.Stage
}

func stageErr(stage Stage, user string, err error) error {
	return &StageError{Stage: stage, User: user, Err: err}
}
