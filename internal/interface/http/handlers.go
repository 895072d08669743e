package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/seasons-hub/seasons-bot/internal/application/command"
	"github.com/seasons-hub/seasons-bot/internal/application/query"
	"github.com/seasons-hub/seasons-bot/internal/domain/community"
	"github.com/seasons-hub/seasons-bot/internal/domain/shared"
	"github.com/seasons-hub/seasons-bot/internal/infrastructure/scheduler"
	"github.com/seasons-hub/seasons-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot answers uptime pings from the hosting platform.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Bot is running!"))
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, r, http.StatusOK, map[string]string{"status": "healthy"})
		return
	}
	status := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

// handleReady reports whether the store and the gateway are up.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// ══════════════════════════════════════════════════════════════════════════════
// USER HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetUser handles GET /admin/users/{id}
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	if s.deps.Progress == nil {
		writeNotConfigured(w)
		return
	}
	dto, err := s.deps.Progress.Handle(r.Context(), query.GetProgressQuery{UserID: mux.Vars(r)["id"]})
	if err != nil {
		s.internalError(w, "failed to get user", err)
		return
	}
	if !dto.HasRecord {
		writeJSONError(w, http.StatusNotFound, "not_found", "No record for this member")
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

// AdjustXPRequest is the body of POST /admin/users/{id}/xp. A negative amount
// deducts.
type AdjustXPRequest struct {
	Amount int `json:"amount"`
}

// AdjustXPResponse is the member's record after the adjustment.
type AdjustXPResponse struct {
	UserID   string `json:"user_id"`
	Exp      int    `json:"exp"`
	OldLevel int    `json:"old_level"`
	NewLevel int    `json:"new_level"`
}

// handleAdjustXP handles POST /admin/users/{id}/xp
func (s *Server) handleAdjustXP(w http.ResponseWriter, r *http.Request) {
	if s.deps.GrantXP == nil {
		writeNotConfigured(w)
		return
	}

	var req AdjustXPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", "Body must be {\"amount\": <int>}")
		return
	}
	if req.Amount == 0 {
		writeJSONError(w, http.StatusBadRequest, "invalid_amount", "Amount must not be zero")
		return
	}

	cmd := command.GrantXPCommand{Member: s.member(r, mux.Vars(r)["id"]), Amount: req.Amount, Mode: command.ModeGrant}
	if req.Amount < 0 {
		cmd.Amount, cmd.Mode = -req.Amount, command.ModeDeduct
	}

	res, err := s.deps.GrantXP.Handle(r.Context(), cmd)
	if err != nil {
		s.internalError(w, "failed to adjust xp", err)
		return
	}
	writeJSON(w, r, http.StatusOK, AdjustXPResponse{
		UserID:   cmd.Member.ID,
		Exp:      res.Exp,
		OldLevel: res.Change.Old,
		NewLevel: res.Change.New,
	})
}

// member resolves the member through the directory; an unknown member is
// adjusted by id alone.
func (s *Server) member(r *http.Request, userID string) community.Member {
	if s.deps.Directory != nil {
		m, err := s.deps.Directory.Member(r.Context(), userID)
		if err == nil && m != nil {
			return *m
		}
		if err != nil && !errors.Is(err, shared.ErrMemberNotFound) {
			s.logger.Warn("member lookup failed", logger.UserID(userID), logger.Err(err))
		}
	}
	return community.Member{ID: userID, DisplayName: userID}
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleXPLeaderboard handles GET /admin/leaderboard/xp?limit=
func (s *Server) handleXPLeaderboard(w http.ResponseWriter, r *http.Request) {
	if s.deps.XPLeaderboard == nil {
		writeNotConfigured(w)
		return
	}
	res, err := s.deps.XPLeaderboard.Handle(r.Context(), query.GetXPLeaderboardQuery{Limit: queryInt(r, "limit", 10)})
	if err != nil {
		s.internalError(w, "failed to get xp leaderboard", err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// handleAttendanceLeaderboard handles GET /admin/leaderboard/attendance?limit=
func (s *Server) handleAttendanceLeaderboard(w http.ResponseWriter, r *http.Request) {
	if s.deps.AttendanceLeaderboard == nil {
		writeNotConfigured(w)
		return
	}
	res, err := s.deps.AttendanceLeaderboard.Handle(r.Context(), query.GetAttendanceLeaderboardQuery{Limit: queryInt(r, "limit", 10)})
	if err != nil {
		s.internalError(w, "failed to get attendance leaderboard", err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// ══════════════════════════════════════════════════════════════════════════════
// HIDDEN QUEST HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetQuest handles GET /admin/quests/{id}
func (s *Server) handleGetQuest(w http.ResponseWriter, r *http.Request) {
	if s.deps.InspectQuest == nil {
		writeNotConfigured(w)
		return
	}
	dto, err := s.deps.InspectQuest.Handle(r.Context(), query.InspectHiddenQuestQuery{QuestID: mux.Vars(r)["id"]})
	if errors.Is(err, shared.ErrQuestNotFound) {
		writeJSONError(w, http.StatusNotFound, "not_found", "Unknown hidden quest")
		return
	}
	if err != nil {
		s.internalError(w, "failed to inspect quest", err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

// handleResetQuest handles DELETE /admin/quests/{id}
func (s *Server) handleResetQuest(w http.ResponseWriter, r *http.Request) {
	if s.deps.Quests == nil {
		writeNotConfigured(w)
		return
	}
	questID := mux.Vars(r)["id"]
	err := s.deps.Quests.Reset(r.Context(), questID)
	if errors.Is(err, shared.ErrQuestNotFound) {
		writeJSONError(w, http.StatusNotFound, "not_found", "Unknown hidden quest")
		return
	}
	if err != nil {
		s.internalError(w, "failed to reset quest", err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"quest_id": questID, "status": "reset"})
}

// ══════════════════════════════════════════════════════════════════════════════
// JOB HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleListJobs handles GET /admin/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeNotConfigured(w)
		return
	}
	writeJSON(w, r, http.StatusOK, s.deps.Jobs.ListJobs())
}

// JobRunResponse is the outcome of a manual run.
type JobRunResponse struct {
	*scheduler.JobResult
	Error string `json:"error,omitempty"`
}

// handleRunJob handles POST /admin/jobs/{name}/run
func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeNotConfigured(w)
		return
	}
	name := mux.Vars(r)["name"]
	res, err := s.deps.Jobs.RunNow(r.Context(), name)
	switch {
	case errors.Is(err, scheduler.ErrJobNotFound):
		writeJSONError(w, http.StatusNotFound, "not_found", "Unknown job")
	case errors.Is(err, scheduler.ErrJobAlreadyRunning):
		writeJSONError(w, http.StatusConflict, "already_running", "Job is already running")
	case res == nil:
		s.internalError(w, "job run failed", err)
	case err != nil:
		s.logger.Warn("manual job run failed", logger.Job(name), logger.Err(err))
		writeJSON(w, r, http.StatusOK, JobRunResponse{JobResult: res, Error: err.Error()})
	default:
		writeJSON(w, r, http.StatusOK, JobRunResponse{JobResult: res})
	}
}

// handleToggleJob handles POST /admin/jobs/{name}/enable and /disable. A
// disabled job keeps its registration and can still be run manually.
func (s *Server) handleToggleJob(enable bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Jobs == nil {
			writeNotConfigured(w)
			return
		}
		name := mux.Vars(r)["name"]

		toggle := s.deps.Jobs.DisableJob
		if enable {
			toggle = s.deps.Jobs.EnableJob
		}
		err := toggle(name)
		if errors.Is(err, scheduler.ErrJobNotFound) {
			writeJSONError(w, http.StatusNotFound, "not_found", "Unknown job")
			return
		}
		if err != nil {
			s.internalError(w, "toggle job failed", err)
			return
		}

		info, err := s.deps.Jobs.GetJobInfo(name)
		if err != nil {
			s.internalError(w, "read job failed", err)
			return
		}
		s.logger.Info("job toggled", logger.Job(name), slog.Bool("enabled", info.Enabled))
		writeJSON(w, r, http.StatusOK, info)
	}
}

// handleStats handles GET /admin/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]any, len(s.deps.Stats))
	for name, snapshot := range s.deps.Stats {
		out[name] = snapshot()
	}
	writeJSON(w, r, http.StatusOK, out)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, logger.Err(err))
	writeJSONError(w, http.StatusInternalServerError, "internal_error", "Request failed")
}

func writeNotConfigured(w http.ResponseWriter) {
	writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Handler not configured")
}

// queryInt extracts an integer query parameter with a default value.
func queryInt(r *http.Request, key string, defaultValue int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return defaultValue
	}
	return v
}
