package auth

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytup/internal/shared"
)

// FlowDelegate presents the consent URL for one user and returns the code the user brings back.
type FlowDelegate struct {
	User    string
	Config  shared.AuthConfig
	Channel CodeChannel
	Out     io.Writer
	Logger  *log.Logger

	// openBrowser is swapped in tests.
	openBrowser func(context.Context, string) error
}

// NewFlowDelegate builds a delegate for user. A nil channel is chosen from cfg.
func NewFlowDelegate(user string, cfg shared.AuthConfig, ch CodeChannel, out io.Writer, logger *log.Logger) *FlowDelegate {
	if out == nil {
		out = os.Stdout
	}
	if ch == nil {
		ch = NewCodeChannel(cfg, os.Stdin, out, logger)
	}
	return &FlowDelegate{
		User:        user,
		Config:      cfg,
		Channel:     ch,
		Out:         out,
		Logger:      logger,
		openBrowser: shared.OpenBrowser,
	}
}

// RedirectURI is the callback registered with the authorization server. It depends only on config.
func (d *FlowDelegate) RedirectURI() string {
	return d.Config.RedirectURI()
}

// PresentUserURL shows rawURL to the user and, when needCode is set, waits for the code.
func (d *FlowDelegate) PresentUserURL(ctx context.Context, rawURL string, needCode bool) (string, error) {
	fmt.Fprintf(d.Out, "Please open this URL in your browser to authenticate for %s:\n%s\n", d.User, rawURL)
	if d.Logger != nil {
		d.Logger.Info("authorization required", "user", d.User, "url", rawURL)
	}

	if d.Config.OpenBrowser && d.openBrowser != nil {
		if err := d.openBrowser(ctx, rawURL); err != nil && d.Logger != nil {
			d.Logger.Warn("could not open browser", "err", err)
		}
	}

	if !needCode {
		return "", nil
	}

	req := CodeRequest{URL: rawURL, NeedCode: true, User: d.User}
	if u, err := url.Parse(rawURL); err == nil {
		req.State = u.Query().Get("state")
	}
	code, err := d.Channel.DeliverCode(ctx, req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(code), nil
}
