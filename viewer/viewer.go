// Package viewer shows rendered figures in a browser tab served from a
// local HTTP server and reports when the user dismisses it.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/interpose/middleware"
	"github.com/justinas/alice"
	"go.uber.org/zap"
)

// DefaultAddr binds an ephemeral port on the loopback interface.
const DefaultAddr = "127.0.0.1:0"

// DefaultGrace is how long a hidden page has to come back (a reload) before
// the window counts as closed.
const DefaultGrace = 2 * time.Second

// Figure is one image shown on the page.
type Figure struct {
	Name        string // URL-safe identifier
	Title       string
	ContentType string
	Data        []byte
}

// Window is a page of figures with a Close button. The zero value is not
// usable; see Open.
type Window struct {
	Title   string
	Figures []Figure

	// Grace is the delay between the page being hidden and the window
	// closing. A new page load within it cancels the close.
	Grace time.Duration

	log    *zap.Logger
	srv    *http.Server
	ln     net.Listener
	served chan error

	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	pending *time.Timer
}

// New builds a window without starting a server, which is what tests that
// drive Handler directly need.
func New(title string, figs []Figure, log *zap.Logger) *Window {
	if log == nil {
		log = zap.NewNop()
	}

	return &Window{
		Title:   title,
		Figures: figs,
		Grace:   DefaultGrace,
		log:     log,
		closed:  make(chan struct{}),
	}
}

// Open starts serving the window on addr.
func Open(addr, title string, figs []Figure, log *zap.Logger) (*Window, error) {
	w := New(title, figs, log)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("viewer: listen on %s: %w", addr, err)
	}
	w.ln = ln
	w.srv = &http.Server{Handler: w.Handler(), ReadHeaderTimeout: 10 * time.Second}
	w.served = make(chan error, 1)

	go func() {
		err := w.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		w.served <- err
	}()

	w.log.Debug("viewer listening", zap.String("url", w.URL()))

	return w, nil
}

// URL is the page address, or empty when the window is not being served.
func (w *Window) URL() string {
	if w.ln == nil {
		return ""
	}
	return "http://" + w.ln.Addr().String() + "/"
}

// Handler routes the page, the figure images and the close action.
func (w *Window) Handler() http.Handler {
	router := mux.NewRouter()
	POST := router.Methods("POST").Subrouter()
	GET := router.Methods("GET", "HEAD").Subrouter()

	GET.HandleFunc("/", w.index).Name("index")
	GET.Handle("/figure/{name}", middleware.MaxAgeHandler(60, http.HandlerFunc(w.figure))).Name("figure")
	GET.HandleFunc("/closed", w.closedPage)
	POST.HandleFunc("/close", w.closePost)

	standard := alice.New(
		middleware.GorillaLog(),
	)

	return standard.Then(router)
}

// Close dismisses the window as if the user had pressed the button.
func (w *Window) Close() {
	w.closeOnce.Do(func() { close(w.closed) })
}

// hidden schedules a close after Grace unless the page is loaded again.
func (w *Window) hidden() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(w.Grace, w.Close)
}

// cancelHidden drops a close scheduled by hidden.
func (w *Window) cancelHidden() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending != nil {
		w.pending.Stop()
		w.pending = nil
	}
}

// Closed is closed once the user dismisses the window.
func (w *Window) Closed() <-chan struct{} { return w.closed }

// Wait blocks until the user closes the window or ctx is done, then stops
// the server. It returns ctx.Err() in the latter case.
func (w *Window) Wait(ctx context.Context) error {
	var err error
	select {
	case <-w.closed:
		w.log.Info("viewer closed by user")
	case <-ctx.Done():
		err = ctx.Err()
	}
	w.cancelHidden()

	if w.srv == nil {
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := w.srv.Shutdown(shutdownCtx); serr != nil && err == nil {
		err = fmt.Errorf("viewer: shutdown: %w", serr)
	}
	if serr := <-w.served; serr != nil && err == nil {
		err = fmt.Errorf("viewer: serve: %w", serr)
	}

	return err
}

func (w *Window) index(rw http.ResponseWriter, r *http.Request) {
	w.cancelHidden()
	rw.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(rw, w); err != nil {
		w.log.Warn("viewer template", zap.Error(err))
	}
}

func (w *Window) figure(rw http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	for _, f := range w.Figures {
		if f.Name == name {
			rw.Header().Set("Content-Type", f.ContentType)
			rw.Write(f.Data)
			return
		}
	}
	http.NotFound(rw, r)
}

// closePost handles the Close button and the beacon the page sends when it
// is hidden (tab closed, navigated away or reloaded).
func (w *Window) closePost(rw http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("beacon") != "" {
		w.log.Debug("viewer page hidden")
		w.hidden()
		rw.WriteHeader(http.StatusNoContent)
		return
	}

	w.Close()
	http.Redirect(rw, r, "/closed", http.StatusSeeOther)
}

func (w *Window) closedPage(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/html; charset=utf-8")
	closedTemplate.Execute(rw, w)
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title>
<style>body{font-family:sans-serif;margin:1em}img{max-width:100%;display:block;margin:1em 0;border:1px solid #ddd}</style>
</head>
<body>
<h1>{{.Title}}</h1>
<form method="POST" action="/close"><button type="submit">Close</button></form>
{{range .Figures}}<h2>{{.Title}}</h2>
<img src="/figure/{{.Name}}" alt="{{.Title}}">
{{end}}
<script>
window.addEventListener("pagehide", function () { navigator.sendBeacon("/close?beacon=1"); });
</script>
</body>
</html>
`))

// OpenBrowser asks the desktop to show url in the default browser. It does
// not wait for the browser to exit.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("viewer: open browser: %w", err)
	}
	go cmd.Wait()
	return nil
}

var closedTemplate = template.Must(template.New("closed").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body><p>{{.Title}} closed. You can close this tab.</p></body></html>
`))
