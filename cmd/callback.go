package main

import (
	"context"

	"github.com/desertthunder/ytup/internal/server"
	"github.com/urfave/cli/v3"
)

// CallbackServe receives OAuth redirects and drops each code into the auth code file,
// where a waiting `auth login` with use_file_auth_response picks it up.
func (r *Runner) CallbackServe(ctx context.Context, cmd *cli.Command) error {
	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}
	codePath := cmd.String("code-path")
	if codePath == "" {
		codePath = r.config.Auth.PathAuthCode
	}

	router := server.NewBasicRouter()
	router.Use(server.RequestLogger(r.logger))
	router.Handler(server.NewCodeHandler(r.config.Server.CallbackPath, codePath, r.logger))

	r.writePlain("→ Waiting for redirects on http://%s%s\n", addr, r.config.Server.CallbackPath)
	r.writePlain("→ Codes are written to %s\n", codePath)
	return server.Serve(ctx, addr, router, r.logger)
}
