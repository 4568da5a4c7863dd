package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/metersync/pkg/config"
	"github.com/raterudder/metersync/pkg/job"
	"github.com/raterudder/metersync/pkg/log"
	"github.com/raterudder/metersync/pkg/metrics"
	"github.com/raterudder/metersync/pkg/types"
)

const authTokenCookie = "auth_token"

// Runner runs the job. *job.Runner implements it.
type Runner interface {
	Run(ctx context.Context) job.Result
	Last() (job.Result, bool)
}

// Loader loads the persisted dataset. *storage.Gateway implements it.
type Loader interface {
	Load(ctx context.Context) (types.Dataset, error)
}

// tokenVerifier validates an OIDC ID token and returns its email claim.
type tokenVerifier func(ctx context.Context, rawIDToken string) (string, error)

// Server exposes the job and the dataset over HTTP so a scheduler can trigger
// runs and charts can be rendered on demand.
type Server struct {
	runner   Runner
	data     Loader
	location *time.Location
	metrics  *metrics.Metrics
	now      func() time.Time

	listenAddr string
	httpServer *http.Server

	allowedEmails []string
	verifier      tokenVerifier
	bypassAuth    bool
	serverName    string
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(runner Runner, data Loader, cfg *config.Config, m *metrics.Metrics) *Server {
	srv := &Server{
		runner:     runner,
		data:       data,
		metrics:    m,
		now:        time.Now,
		serverName: "metersync",
	}
	revision := os.Getenv("K_REVISION")
	if revision != "" {
		srv.serverName = revision
	}

	// get the port from PORT when running in cloud run
	port := os.Getenv("PORT")
	if port == "" {
		// otherwise default to 8080
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	allowedEmails := lflag.String("allowed-emails", "", "comma-delimited list of email addresses allowed to call the API")
	oidcIssuer := lflag.String("oidc-issuer", "https://accounts.google.com", "OIDC issuer of the ID tokens")
	oidcAudience := lflag.String("oidc-audience", "", "audience to validate ID tokens against, empty disables authentication")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.location = cfg.Site.Location()
		if *allowedEmails != "" {
			for _, email := range strings.Split(*allowedEmails, ",") {
				if email = strings.TrimSpace(email); email != "" {
					srv.allowedEmails = append(srv.allowedEmails, email)
				}
			}
		}
		if *oidcAudience == "" {
			log.Ctx(context.Background()).Warn("oidc-audience not set, API authentication is disabled")
			srv.bypassAuth = true
			return
		}
		if len(srv.allowedEmails) == 0 {
			panic("allowed-emails is required when oidc-audience is set")
		}
		provider, err := oidc.NewProvider(context.Background(), *oidcIssuer)
		if err != nil {
			log.Ctx(context.Background()).Error("failed to initialize OIDC provider", slog.String("issuer", *oidcIssuer), slog.Any("error", err))
			os.Exit(1)
		}
		srv.verifier = oidcVerifier(provider.Verifier(&oidc.Config{ClientID: *oidcAudience}))
	})

	return srv
}

func (s *Server) setupHandler() http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("POST /api/update", s.handleUpdate)
	apiMux.HandleFunc("GET /api/status", s.handleStatus)
	apiMux.HandleFunc("GET /api/export", s.handleExport)
	apiMux.HandleFunc("GET /charts/{column}", s.handleChart)

	mux := http.NewServeMux()
	mux.Handle("/api/", s.authMiddleware(apiMux))
	mux.Handle("/charts/", s.authMiddleware(apiMux))
	mux.HandleFunc("/healthz", s.handleHealthz)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return s.revisionMiddleware(gziphandler.GzipHandler(s.securityHeadersMiddleware(mux)))
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  15 * time.Second,
	}

	// use a channel to capturing server errors
	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		// Context canceled, shut down gracefully
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSON(w http.ResponseWriter, v any, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, struct {
		Error string `json:"error"`
	}{Error: msg}, code)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}

// localNow is the wall clock in the site's time zone.
func (s *Server) localNow() time.Time {
	loc := s.location
	if loc == nil {
		loc = time.Local
	}
	return s.now().In(loc)
}
