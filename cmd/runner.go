package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytup/internal/auth"
	"github.com/desertthunder/ytup/internal/backoff"
	"github.com/desertthunder/ytup/internal/repositories"
	"github.com/desertthunder/ytup/internal/services"
	"github.com/desertthunder/ytup/internal/shared"
	"github.com/urfave/cli/v3"
)

// UploaderFactory builds the remote client for an authenticated user.
type UploaderFactory func(ctx context.Context, cred *auth.Credential) (services.Uploader, error)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config      *shared.Config
	configPath  string
	httpClient  *http.Client
	logger      *log.Logger
	output      io.Writer
	input       io.Reader
	newUploader UploaderFactory
	db          *sql.DB
	closers     []io.Closer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	Input      io.Reader
	// NewUploader overrides the YouTube client, mainly for tests.
	NewUploader UploaderFactory
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:      opts.Config,
		configPath:  opts.ConfigPath,
		httpClient:  opts.HTTPClient,
		logger:      opts.Logger,
		output:      opts.Output,
		input:       opts.Input,
		newUploader: opts.NewUploader,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, callbackCommand, playlistCommand, uploadCommand, uploadsCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger replaces the logger used by every command.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// Before loads the configuration named by --config and applies log settings.
// A missing default config file is not an error; the embedded defaults are used.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := cmd.String("config")
	if path == "" {
		path = r.configPath
	}

	loaded := false
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			config, err := shared.LoadConfig(path)
			if err != nil {
				return ctx, err
			}
			r.config = config
			r.configPath = path
			loaded = true
		} else if cmd.IsSet("config") {
			return ctx, fmt.Errorf("%w: %s", shared.ErrMissingConfig, path)
		}
	}
	if !loaded {
		if err := r.config.ApplyEnv(os.LookupEnv); err != nil {
			return ctx, err
		}
	}

	if r.config.Log.File != "" {
		logger, closer, err := shared.NewFileLogger(r.config.Log, os.Stderr)
		if err != nil {
			return ctx, fmt.Errorf("failed to open log file: %w", err)
		}
		r.logger = logger
		r.closers = append(r.closers, closer)
	} else {
		r.logger.SetLevel(shared.ParseLevel(r.config.Log.Level))
	}
	if cmd.Bool("verbose") {
		r.logger.SetLevel(log.DebugLevel)
	}
	return ctx, nil
}

// After releases the database and log file.
func (r *Runner) After(ctx context.Context, cmd *cli.Command) error {
	var errs []error
	if r.db != nil {
		errs = append(errs, r.db.Close())
		r.db = nil
	}
	for _, c := range r.closers {
		errs = append(errs, c.Close())
	}
	r.closers = nil
	return errors.Join(errs...)
}

// database opens the configured database once and applies pending migrations.
func (r *Runner) database() (*sql.DB, error) {
	if r.db != nil {
		return r.db, nil
	}
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, err
	}
	shared.ConfigureDatabase(db, r.config.Database)
	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	r.db = db
	return db, nil
}

// accounts returns the account repository, or nil when the database is unavailable.
func (r *Runner) accounts() *repositories.AccountRepository {
	db, err := r.database()
	if err != nil {
		r.logger.Warn("account history disabled", "error", err)
		return nil
	}
	return repositories.NewAccountRepository(db)
}

func (r *Runner) manager() (*auth.Manager, error) {
	opts := auth.Options{
		Config:     r.config.Auth,
		Logger:     r.logger,
		In:         r.input,
		Out:        r.output,
		HTTPClient: r.httpClient,
		Retry:      backoff.PolicyFromConfig(r.config.Retry, r.logger),
	}
	if accounts := r.accounts(); accounts != nil {
		opts.Recorder = accounts
	}
	return auth.NewManager(opts)
}

// authenticate returns the credential for the --user flag, running the consent flow when needed.
func (r *Runner) authenticate(ctx context.Context, cmd *cli.Command) (*auth.Credential, error) {
	m, err := r.manager()
	if err != nil {
		return nil, err
	}
	secret := r.config.Auth.SecretPath
	if s := cmd.String("secret"); s != "" {
		secret = s
	}
	if secret == "" {
		return nil, fmt.Errorf("%w: auth.secret_path is not set", shared.ErrMissingCredentials)
	}
	return m.GetAuthenticator(ctx, secret, r.config.Auth.Scopes, cmd.String("user"))
}

func (r *Runner) uploader(ctx context.Context, cmd *cli.Command) (services.Uploader, error) {
	cred, err := r.authenticate(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if r.newUploader != nil {
		return r.newUploader(ctx, cred)
	}
	return services.NewYouTubeClient(ctx, cred, services.YouTubeOptions{
		Policy: backoff.PolicyFromConfig(r.config.Retry, r.logger),
		Upload: r.config.Upload,
		Logger: r.logger,
	})
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
