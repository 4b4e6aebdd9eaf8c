package server

import (
	"fmt"
	"html/template"
	"net/http"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

var resultPage = template.Must(template.New("result").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { margin: 0 0 1rem 0; }
        .ok { color: #1DB954; }
        .fail { color: #d33; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1 class="{{.Class}}">{{.Title}}</h1>
        <p>{{.Message}}</p>
    </div>
</body>
</html>
`))

// CodeHandler receives the OAuth redirect and writes the authorization code to CodePath,
// followed by the redirect's state so the waiting flow can tell its own code apart.
type CodeHandler struct {
	CodePath string
	Route    string
	Logger   *log.Logger
}

// NewCodeHandler serves route and writes codes to codePath.
func NewCodeHandler(route, codePath string, logger *log.Logger) *CodeHandler {
	return &CodeHandler{CodePath: codePath, Route: route, Logger: logger}
}

func (h *CodeHandler) Routes() []string {
	return []string{h.Route}
}

func (h *CodeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		h.Logger.Warn("authorization denied", "error", e, "description", q.Get("error_description"))
		h.render(w, http.StatusBadRequest, "Authorization failed", fmt.Sprintf("The provider returned %q.", e), "fail")
		return
	}

	code := q.Get("code")
	if code == "" {
		h.render(w, http.StatusBadRequest, "Authorization failed", "No authorization code in the request.", "fail")
		return
	}

	if err := writeCode(h.CodePath, code, q.Get("state")); err != nil {
		h.Logger.Error("could not write auth code", "path", h.CodePath, "err", err)
		h.render(w, http.StatusInternalServerError, "Authorization failed", "The code could not be stored.", "fail")
		return
	}

	h.Logger.Info("auth code stored", "path", h.CodePath)
	h.render(w, http.StatusOK, "Authorization Successful", "You can close this window and return to the terminal.", "ok")
}

func (h *CodeHandler) render(w http.ResponseWriter, status int, title, message, class string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = resultPage.Execute(w, map[string]string{"Title": title, "Message": message, "Class": class})
}

// writeCode replaces the file at path with code, and state on the next line when given,
// so a poller never sees a partial write.
func writeCode(path, code, state string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".code-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	body := code + "\n"
	if state != "" {
		body += state + "\n"
	}
	if _, err := tmp.WriteString(body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
