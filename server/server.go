// Package server exposes dataset scaling over HTTP.
//
// Clients obtain a token from POST /auth and pass it as a bearer token to GET /images, which scales
// a dataset on the server's file system, and to POST /config/reload.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sensorable/kittiscale"
)

// Server handles the HTTP API.
type Server struct {
	config *Store
	debug  bool // Log request details.
	now    func() time.Time
	mux    *http.ServeMux
}

// New creates a server using the configuration in store.
func New(store *Store, debug bool) *Server {
	s := &Server{config: store, debug: debug, now: time.Now, mux: http.NewServeMux()}
	s.mux.HandleFunc("/", s.handleHome)
	s.mux.HandleFunc("/auth", s.handleAuth)
	s.mux.HandleFunc("/images", s.handleScale)
	s.mux.HandleFunc("/config/reload", s.handleReload)
	return s
}

// Handler returns the root handler, with request logging.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		respondError(w, "not found", http.StatusNotFound)
		return
	}
	respondJSON(w, map[string]string{"message": "kittiscale"}, http.StatusOK)
}

type authResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

// handleAuth issues a token to a known user.
func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg := s.config.Get()
	params, err := extractParams(r, map[string]string{"user_id": ""})
	if err != nil {
		respondError(w, err.Error(), http.StatusUnsupportedMediaType)
		return
	}
	userID := params["user_id"]
	if !cfg.allowsUser(userID) {
		log.Printf("Rejected token request for %q", userID)
		s.throttle(r, cfg)
		respondError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	token, err := issueToken(cfg, userID, s.now())
	if err != nil {
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, authResponse{Token: token, UserID: userID}, http.StatusOK)
}

type scaleResponse struct {
	Message string            `json:"message"`
	Output  string            `json:"output"`
	Scaled  []string          `json:"scaled"`
	Skipped map[string]string `json:"skipped,omitempty"`
}

type scaleError struct {
	Error  string `json:"error"`
	Output string `json:"output"` // The partially written output folder.
}

// handleScale scales the dataset at input_path into a new folder below output_path.
func (s *Server) handleScale(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		respondError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	cfg, ok := s.authorize(w, r)
	if !ok {
		return
	}

	params, err := extractParams(r, map[string]string{
		"input_path":    cfg.DataDir,
		"output_path":   "",
		"target_width":  strconv.Itoa(cfg.TargetWidth),
		"target_height": strconv.Itoa(cfg.TargetHeight),
	})
	if err != nil {
		respondError(w, err.Error(), http.StatusUnsupportedMediaType)
		return
	}
	if s.debug {
		log.Printf("Scale request parameters: %v", params)
	}

	width, errW := strconv.Atoi(params["target_width"])
	height, errH := strconv.Atoi(params["target_height"])
	if errW != nil || errH != nil {
		respondError(w, "target_width and target_height must be integers", http.StatusBadRequest)
		return
	}
	opts, err := cfg.options(width, height)
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}
	inputPath := params["input_path"]
	if inputPath == "" {
		respondError(w, "missing input_path", http.StatusBadRequest)
		return
	}
	outputPath := params["output_path"]
	if outputPath == "" {
		outputPath = inputPath
	}

	ds, err := kittiscale.OpenDataset(inputPath)
	if err != nil {
		respondError(w, err.Error(), statusFor(err))
		return
	}
	out, err := kittiscale.PrepareOutput(outputPath)
	if err != nil {
		respondError(w, err.Error(), statusFor(err))
		return
	}

	report, err := kittiscale.ScaleDataset(r.Context(), ds, out, opts)
	if err != nil {
		// The output folder may already hold some scaled pairs.
		log.Printf("Scaling stopped, partial output left in %s", out.Root)
		respondJSON(w, scaleError{Error: err.Error(), Output: out.Root}, statusFor(err))
		return
	}

	resp := scaleResponse{
		Message: "data successfully scaled",
		Output:  out.Root,
		Scaled:  report.Scaled,
	}
	if len(report.Skipped) > 0 {
		resp.Skipped = make(map[string]string, len(report.Skipped))
		for name, err := range report.Skipped {
			resp.Skipped[name] = err.Error()
		}
	}
	respondJSON(w, resp, http.StatusOK)
}

type reloadResponse struct {
	Message  string    `json:"message"`
	LoadedAt time.Time `json:"loaded_at"`
	Users    int       `json:"users"`
}

// handleReload re-reads the configuration file.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, ok := s.authorize(w, r); !ok {
		return
	}

	cfg, err := s.config.Reload()
	if err != nil {
		log.Printf("Config reload failed, keeping the active config: %v", err)
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	log.Printf("Config reloaded, %d users", len(cfg.UserIDs))
	respondJSON(w, reloadResponse{
		Message:  "config reloaded",
		LoadedAt: s.config.LoadedAt(),
		Users:    len(cfg.UserIDs),
	}, http.StatusOK)
}

// authorize verifies the request's bearer token and returns the active configuration. On failure
// it writes the response and returns false.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) (Config, bool) {
	cfg := s.config.Get()
	token, err := bearerToken(r)
	if err == nil {
		_, err = verifyToken(cfg, token, s.now())
	}
	if err != nil {
		log.Printf("Rejected %s %s: %v", r.Method, r.URL.Path, err)
		s.throttle(r, cfg)
		respondError(w, "unauthorized", http.StatusUnauthorized)
		return Config{}, false
	}
	return cfg, true
}

// throttle delays a failed authentication by cfg.Throttle, unless the client goes away first.
func (s *Server) throttle(r *http.Request, cfg Config) {
	if cfg.Throttle <= 0 {
		return
	}
	t := time.NewTimer(cfg.Throttle)
	defer t.Stop()
	select {
	case <-t.C:
	case <-r.Context().Done():
	}
}

// statusFor maps scaling errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case kittiscale.IsValidationError(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, kittiscale.ErrNoSuchPath), errors.Is(err, kittiscale.ErrNotADirectory),
		errors.Is(err, kittiscale.ErrLayout), errors.Is(err, kittiscale.ErrEmptyFolder),
		errors.Is(err, kittiscale.ErrFileExtension), errors.Is(err, kittiscale.ErrUnmatchedFiles):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// extractParams returns the value of each expected parameter, or its default. Parameters are read
// from a JSON object body if the request has a JSON content type, otherwise from the query string
// and form.
func extractParams(r *http.Request, expected map[string]string) (map[string]string, error) {
	params := make(map[string]string, len(expected))

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body map[string]interface{}
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&body); err != nil {
			return nil, fmt.Errorf("JSON decode error: %v", err)
		}
		for name, def := range expected {
			params[name] = def
			if v, ok := body[name]; ok && v != nil {
				params[name] = fmt.Sprint(v)
			}
		}
		return params, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	for name, def := range expected {
		params[name] = def
		if _, ok := r.Form[name]; ok {
			params[name] = r.Form.Get(name)
		}
	}
	return params, nil
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.debug {
			log.Printf("%s %s received from %s, content type %q", r.Method, r.URL, r.RemoteAddr,
				r.Header.Get("Content-Type"))
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Printf("%s %s -> %d (%v)", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}

func respondJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to write the response: %v", err)
	}
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, map[string]string{"error": message}, status)
}
