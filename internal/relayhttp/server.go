// Package relayhttp exposes the operation dispatch table to relay peers
// as POST /ds/<operation>.
package relayhttp

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dsbridge/dsbridge/internal/dserr"
	"github.com/dsbridge/dsbridge/internal/relay"
	"github.com/dsbridge/dsbridge/internal/session"
)

// response is the uniform body shape: details carries either the
// operation result or the error message.
type response struct {
	Error   bool `json:"error"`
	Details any  `json:"details"`
}

// Server adapts HTTP requests to the dispatch table. Each request
// carries its own connection parameters merged with the operation
// parameters, so the server holds no directory credentials.
type Server struct {
	log  session.Logger
	open relay.Opener
}

// NewServer builds a relay peer. open defaults to session.Open.
func NewServer(open relay.Opener, log session.Logger) *Server {
	if log == nil {
		log = session.NopLogger{}
	}
	if open == nil {
		open = func(cfg session.Config, log session.Logger) (session.Directory, error) {
			return session.Open(cfg, log)
		}
	}
	return &Server{log: log, open: open}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, response{Details: "ok"})
	})
	r.Post("/ds/{operation}", s.handleOperation)
	return r
}

func (s *Server) handleOperation(w http.ResponseWriter, r *http.Request) {
	op := chi.URLParam(r, "operation")

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, response{Error: true, Details: "malformed request body"})
		return
	}

	conn := make(map[string]any)
	params := make(relay.Params)
	for k, v := range body {
		if relay.IsConnKey(k) {
			conn[k] = v
		} else {
			params[k] = v
		}
	}

	cfg, err := relay.ConnFromParams(conn)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, response{Error: true, Details: err.Error()})
		return
	}

	dir, err := s.open(cfg, s.log)
	if err != nil {
		s.log.Warn("session open failed", session.SanitizeFields(map[string]any{
			"operation": op,
			"hosts":     cfg.Hosts,
			"error":     err.Error(),
		}))
		writeJSON(w, http.StatusBadGateway, response{Error: true, Details: err.Error()})
		return
	}
	defer dir.Close()

	result, err := relay.Dispatch(dir, op, params)
	if err != nil {
		s.log.Debug("operation failed", map[string]any{"operation": op, "error": err.Error()})
		writeJSON(w, statusFor(err), response{Error: true, Details: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, response{Details: result})
}

func statusFor(err error) int {
	switch dserr.KindOf(err) {
	case dserr.KindValidation:
		return http.StatusBadRequest
	case dserr.KindNotFound:
		return http.StatusNotFound
	case dserr.KindTimeout:
		return http.StatusGatewayTimeout
	case dserr.KindConnectivity:
		return http.StatusBadGateway
	default:
		return http.StatusUnprocessableEntity
	}
}

func writeJSON(w http.ResponseWriter, status int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
