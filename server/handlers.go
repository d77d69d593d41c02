package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sardine-ai/go-config-advisor/client"
	"github.com/sardine-ai/go-config-advisor/hardware"
	"github.com/sardine-ai/go-config-advisor/metrics"
	"github.com/sardine-ai/go-config-advisor/model"
	"github.com/sardine-ai/go-config-advisor/properties"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const maxRequestBody = 4 << 20

var readMethods = []string{http.MethodGet, http.MethodHead}

// CreateHandlers builds the router. Authentication and the other serving
// middleware are added by Handler.
func (s *Server) CreateHandlers() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/health", s.health).Methods(readMethods...)
	router.HandleFunc("/ready", s.ready).Methods(readMethods...)
	router.HandleFunc("/status", s.statusHandler).Methods(readMethods...)
	router.Handle("/metrics", metrics.Handler()).Methods(readMethods...)

	limiter := rate.NewLimiter(rate.Limit(s.RateLimit), s.RateBurst)
	api := router.PathPrefix("/v1").Subrouter()
	api.Use(func(next http.Handler) http.Handler { return RateLimit(next, limiter) })
	api.HandleFunc("/validate", s.validate).Methods(http.MethodPost)
	api.HandleFunc("/recommend", s.recommend).Methods(http.MethodPost)
	api.HandleFunc("/rules", s.rules).Methods(readMethods...)
	api.HandleFunc("/audit", s.lastAudit).Methods(readMethods...)

	router.HandleFunc("/{repository}", s.repositoryDocument).Methods(readMethods...)
	return router
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("error writing response")
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	if !s.IsHealthy() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) ready(w http.ResponseWriter, _ *http.Request) {
	if !s.IsReady() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) statusHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"healthy":      s.IsHealthy(),
		"ready":        s.IsReady(),
		"repositories": s.GetRepositoryStatus(),
	})
}

func (s *Server) repositoryDocument(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["repository"]
	for _, repo := range s.Repositories {
		if repo.GetName() != name {
			continue
		}
		w.Header().Set("Content-Type", "application/yaml")
		if _, err := w.Write(repo.GetRawData()); err != nil {
			logrus.WithError(err).Error("error writing response")
		}
		return
	}
	http.NotFound(w, r)
}

// File is one configuration file submitted for validation.
type File struct {
	Name    string `json:"name"`
	Format  string `json:"format,omitempty"`
	Content string `json:"content"`
}

// ValidateRequest is the body of POST /v1/validate. ProfileName refers to a
// profile served by one of the repositories and wins over Profile.
type ValidateRequest struct {
	Profile     *model.Profile `json:"profile,omitempty"`
	ProfileName string         `json:"profile_name,omitempty"`
	Files       []File         `json:"files"`
	// Snippet validates the files as a fragment: absent keys are not reported.
	Snippet bool `json:"snippet,omitempty"`
}

// RecommendRequest is the body of POST /v1/recommend.
type RecommendRequest struct {
	Profile     *model.Profile `json:"profile,omitempty"`
	ProfileName string         `json:"profile_name,omitempty"`
}

func decodeBody(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// resolveProfile picks the named profile from the repositories, the inline
// profile, or the default profile, in that order.
func (s *Server) resolveProfile(inline *model.Profile, name string) (model.Profile, error) {
	if name != "" {
		for _, repo := range s.Repositories {
			profile, err := (&client.Client{Repository: repo}).Profile(name)
			if err == nil {
				return profile, nil
			}
			if !errors.Is(err, client.ErrConfigNotFound) {
				return model.Profile{}, err
			}
		}
		return model.Profile{}, fmt.Errorf("%w: profile %s", client.ErrConfigNotFound, name)
	}
	if inline != nil {
		return *inline, nil
	}
	return hardware.DefaultProfile(), nil
}

func parseFiles(files []File) (*model.PropertySet, error) {
	set := model.NewPropertySet()
	for i, f := range files {
		name := f.Name
		if name == "" {
			name = fmt.Sprintf("file-%d", i+1)
		}
		var (
			format properties.Format
			err    error
		)
		if f.Format != "" {
			format, err = properties.ParseFormat(f.Format)
		} else {
			format, err = properties.DetectFormat(name)
		}
		if err != nil {
			return nil, err
		}
		parsed, err := properties.Parse(format, name, []byte(f.Content))
		if err != nil {
			return nil, err
		}
		set.Merge(parsed)
	}
	return set, nil
}

func profileErrorCode(err error) int {
	if errors.Is(err, client.ErrConfigNotFound) {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}

func (s *Server) validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Files) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("at least one file is required"))
		return
	}
	profile, err := s.resolveProfile(req.Profile, req.ProfileName)
	if err != nil {
		writeError(w, profileErrorCode(err), err)
		return
	}
	props, err := parseFiles(req.Files)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	validate := s.advisor.Validate
	if req.Snippet {
		validate = s.advisor.ValidateSnippet
	}
	report, err := validate(r.Context(), props, profile)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) recommend(w http.ResponseWriter, r *http.Request) {
	var req RecommendRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	profile, err := s.resolveProfile(req.Profile, req.ProfileName)
	if err != nil {
		writeError(w, profileErrorCode(err), err)
		return
	}
	rec, err := s.advisor.Recommend(profile)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" || format == "json" {
		writeJSON(w, http.StatusOK, rec)
		return
	}
	out, err := rec.Render(format)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write(out); err != nil {
		logrus.WithError(err).Error("error writing response")
	}
}

func (s *Server) rules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.advisor.Rules())
}

func (s *Server) lastAudit(w http.ResponseWriter, _ *http.Request) {
	audit := s.LastAudit()
	if audit == nil {
		writeError(w, http.StatusNotFound, errors.New("no database audit has run yet"))
		return
	}
	writeJSON(w, http.StatusOK, audit)
}
