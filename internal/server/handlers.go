package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/stayloop/availsync/internal/availsync"
	aserrs "github.com/stayloop/availsync/internal/errors"
	"github.com/stayloop/availsync/internal/serverutil"
)

func (s *Server) handleSyncProperty(w http.ResponseWriter, r *http.Request) error {
	id := mux.Vars(r)["id"]

	report, err := s.svc.SyncProperty(r.Context(), id)
	if err != nil {
		return aserrs.FromDomain(err)
	}

	return serverutil.WriteJSON(w, http.StatusOK, report)
}

func (s *Server) handleCancelSync(w http.ResponseWriter, r *http.Request) error {
	id := mux.Vars(r)["id"]

	if !s.svc.CancelSync(id) {
		return aserrs.E(http.StatusNotFound, fmt.Sprintf("no sync in flight for property %s", id))
	}

	return serverutil.WriteJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) error {
	id := mux.Vars(r)["id"]

	source := availsync.Source(r.URL.Query().Get("source"))
	if source == "" {
		source = availsync.SourceUnified
	}
	switch source {
	case availsync.SourceScraping, availsync.SourceFeed, availsync.SourceUnified:
	default:
		return aserrs.E(http.StatusBadRequest, fmt.Sprintf("unknown source %q", source))
	}

	if _, err := s.props.Property(r.Context(), id); err != nil {
		return aserrs.FromDomain(err)
	}
	records, err := s.records.RecordsBySource(r.Context(), id, source)
	if err != nil {
		return aserrs.FromDomain(err)
	}

	return serverutil.WriteJSON(w, http.StatusOK, map[string]any{
		"property_id": id,
		"source":      source,
		"records":     records,
	})
}

type syncRunReq struct {
	ForceAll bool `json:"force_all"`
}

func (syncRunReq) Validate() error { return nil }

func (s *Server) handleSyncRun(w http.ResponseWriter, r *http.Request) error {
	var req syncRunReq
	if r.ContentLength > 0 {
		decoded, err := serverutil.DecodeValid[syncRunReq](r.Body)
		if err != nil {
			return aserrs.E(http.StatusBadRequest, err)
		}
		req = decoded
	}

	stats, err := s.svc.SyncAllUnified(r.Context(), req.ForceAll)
	if err != nil {
		return aserrs.FromDomain(err)
	}

	return serverutil.WriteJSON(w, http.StatusOK, stats)
}

func (s *Server) handleActiveSyncs(w http.ResponseWriter, r *http.Request) error {
	return serverutil.WriteJSON(w, http.StatusOK, map[string]any{
		"active": s.svc.ActiveSyncs(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) error {
	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return aserrs.E(http.StatusBadRequest, fmt.Sprintf("invalid days value %q", raw))
		}
		days = parsed
	}

	stats, err := s.svc.Stats(r.Context(), days)
	if err != nil {
		return aserrs.FromDomain(err)
	}

	return serverutil.WriteJSON(w, http.StatusOK, stats)
}

type testSourceReq struct {
	URL string `json:"url"`
}

func (t testSourceReq) Validate() error {
	if t.URL == "" {
		return fmt.Errorf("url is required")
	}
	return nil
}

func (s *Server) handleTestSource(w http.ResponseWriter, r *http.Request) error {
	req, err := serverutil.DecodeValid[testSourceReq](r.Body)
	if err != nil {
		return aserrs.E(http.StatusBadRequest, err)
	}

	return serverutil.WriteJSON(w, http.StatusOK, s.svc.TestSourceURL(r.Context(), req.URL))
}
