package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/cbcr-finder/internal/blacklist"
	"github.com/JakeFAU/cbcr-finder/internal/finder"
	"github.com/JakeFAU/cbcr-finder/internal/ledger"
	"github.com/JakeFAU/cbcr-finder/internal/runs"
)

// startRunRequest mirrors finder.Input; nil fields fall back to config defaults.
type startRunRequest struct {
	Targets              []string `json:"targets" validate:"omitempty,max=5000,dive,max=256"`
	Target               string   `json:"target" validate:"max=256"`
	Periods              []string `json:"periods" validate:"omitempty,max=50,dive,required,max=32"`
	Keywords             *string  `json:"keywords" validate:"omitempty,max=512"`
	DateRestrict         *string  `json:"date_restrict" validate:"omitempty,oneof='' y1 y2 y3 y4 y5"`
	RestrictByName       *bool    `json:"restrict_by_name"`
	Scope                string   `json:"scope" validate:"max=128"`
	SearchTimeoutSeconds *int     `json:"search_timeout_seconds" validate:"omitempty,min=1,max=600"`
	FetchTimeoutSeconds  *int     `json:"fetch_timeout_seconds" validate:"omitempty,min=1,max=600"`
}

type blacklistRequest struct {
	Entries []string `json:"entries" validate:"max=10000,dive,max=512"`
}

type runResponse struct {
	RunID  string      `json:"run_id"`
	Status runs.Status `json:"status"`
}

type ledgerResponse struct {
	Path string       `json:"path"`
	Rows []ledger.Row `json:"rows"`
}

type blacklistResponse struct {
	Path    string   `json:"path"`
	Entries []string `json:"entries"`
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	run, err := s.runs.Start(s.toInput(req))
	switch {
	case err == nil:
	case errors.Is(err, finder.ErrConfiguration):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, runs.ErrRunActive):
		writeError(w, http.StatusConflict, err.Error())
		return
	default:
		s.logger.Error("start run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start run")
		return
	}
	writeJSON(w, http.StatusAccepted, runResponse{RunID: run.ID, Status: run.Status})
}

func (s *Server) toInput(req startRunRequest) finder.Input {
	in := finder.Input{
		Targets:        req.Targets,
		Target:         req.Target,
		Periods:        req.Periods,
		Keywords:       valueOrDefault(req.Keywords, s.cfg.Finder.Keywords),
		DateRestrict:   valueOrDefault(req.DateRestrict, s.cfg.Finder.DateRestrict),
		RestrictByName: valueOrDefault(req.RestrictByName, s.cfg.Finder.RestrictByName),
		Scope:          strings.TrimSpace(req.Scope),
		SearchTimeout:  s.cfg.SearchTimeout(),
		FetchTimeout:   s.cfg.FetchTimeout(),
	}
	if len(in.Periods) == 0 {
		in.Periods = append([]string(nil), s.cfg.Finder.Periods...)
	}
	if req.SearchTimeoutSeconds != nil {
		in.SearchTimeout = time.Duration(*req.SearchTimeoutSeconds) * time.Second
	}
	if req.FetchTimeoutSeconds != nil {
		in.FetchTimeout = time.Duration(*req.FetchTimeoutSeconds) * time.Second
	}
	return in
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}

func (s *Server) listRuns(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.runs.List())
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.Get(chi.URLParam(r, "run_id"))
	if err != nil {
		s.writeRunError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) cancelRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.Cancel(chi.URLParam(r, "run_id"))
	if err != nil {
		s.writeRunError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, runResponse{RunID: run.ID, Status: run.Status})
}

func (s *Server) writeRunError(w http.ResponseWriter, err error) {
	if errors.Is(err, runs.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	s.logger.Error("run lookup failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func (s *Server) getLedger(w http.ResponseWriter, r *http.Request) {
	scope := strings.TrimSpace(r.URL.Query().Get("scope"))
	if strings.Contains(scope, "..") {
		writeError(w, http.StatusBadRequest, "scope must not contain '..'")
		return
	}
	path := s.locator.LedgerPath(scope)
	l, err := ledger.Load(r.Context(), s.store, path)
	if err != nil {
		s.logger.Error("load ledger failed", zap.String("path", path), zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to load ledger")
		return
	}
	writeJSON(w, http.StatusOK, ledgerResponse{Path: path, Rows: l.Rows()})
}

func (s *Server) getBlacklist(w http.ResponseWriter, r *http.Request) {
	path := s.locator.BlacklistPath()
	b, err := blacklist.Load(r.Context(), s.store, path)
	if err != nil {
		s.logger.Error("load blacklist failed", zap.String("path", path), zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to load blacklist")
		return
	}
	writeJSON(w, http.StatusOK, blacklistResponse{Path: path, Entries: b.Entries()})
}

// putBlacklist replaces the whole blacklist with the request entries.
func (s *Server) putBlacklist(w http.ResponseWriter, r *http.Request) {
	var req blacklistRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	path := s.locator.BlacklistPath()
	b := blacklist.New(req.Entries...)
	if err := blacklist.Save(r.Context(), s.store, path, b); err != nil {
		s.logger.Error("save blacklist failed", zap.String("path", path), zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to save blacklist")
		return
	}
	writeJSON(w, http.StatusOK, blacklistResponse{Path: path, Entries: b.Entries()})
}
