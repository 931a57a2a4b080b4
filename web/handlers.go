package web

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"contest-live-service/models"
	"contest-live-service/services"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetContest(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.state.Contest()
	if !ok {
		writeError(w, http.StatusNotFound, "no contest configuration received yet")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleGetScoreboard(w http.ResponseWriter, r *http.Request) {
	variant := models.OptimismLevel(mux.Vars(r)["variant"])
	switch variant {
	case models.OptimismNormal, models.OptimismOptimistic, models.OptimismPessimistic:
	default:
		writeError(w, http.StatusBadRequest, "unknown scoreboard variant")
		return
	}

	board, ok := s.state.Scoreboard(variant)
	if !ok {
		writeError(w, http.StatusNotFound, "scoreboard not computed yet")
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (s *Server) handleGetQueue(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := s.state.Queue()
	if !ok {
		writeError(w, http.StatusNotFound, "queue not computed yet")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleGetSpotlight(w http.ResponseWriter, r *http.Request) {
	selection, ok := s.state.Spotlight()
	if !ok {
		writeError(w, http.StatusNotFound, "no spotlight selection yet")
		return
	}
	writeJSON(w, http.StatusOK, selection)
}

// handleSpotlightRequest 导播请求聚焦某支队伍
func (s *Server) handleSpotlightRequest(w http.ResponseWriter, r *http.Request) {
	var req services.InterestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.spotlight.Request(req)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleGetAnalytics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Analytics())
}

// handleSetMedals 在线更新奖牌配置, 立即作用于 NORMAL 记分板
func (s *Server) handleSetMedals(w http.ResponseWriter, r *http.Request) {
	var settings models.MedalSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeError(w, http.StatusBadRequest, "invalid medal settings")
		return
	}
	s.scoreboard.SetMedals(settings)
	writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
