package web

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"

	"streetlegacy/combat"
	"streetlegacy/database"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// Server is a thin JSON adapter over the combat service. All combat rules
// live behind the service; handlers only decode, delegate, and encode.
type Server struct {
	router *mux.Router
	repo   *database.Repository
	svc    *combat.Service
	authMW *AuthMiddleware
}

func NewServer(repo *database.Repository, svc *combat.Service, sessionSecret string) *Server {
	s := &Server{
		router: mux.NewRouter(),
		repo:   repo,
		svc:    svc,
		authMW: NewAuthMiddleware(repo, sessionSecret),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api/combat").Subrouter()
	api.Use(s.authMW.RequirePlayer)
	api.HandleFunc("/attack", s.handleAttack).Methods("POST")
	api.HandleFunc("/action", s.handleAction).Methods("POST")
	api.HandleFunc("/session", s.handleActiveSession).Methods("GET")
	api.HandleFunc("/history", s.handleHistory).Methods("GET")
}

func (s *Server) Start(port string) error {
	handler := s.authMW.LoadPlayer(s.router)
	handler = handlers.CombinedLoggingHandler(os.Stdout, handler)
	handler = handlers.RecoveryHandler()(handler)

	log.Printf("combat API listening on :%s", port)
	return http.ListenAndServe(":"+port, handler)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type attackRequest struct {
	TargetID int `json:"target_id"`
}

func (s *Server) handleAttack(w http.ResponseWriter, r *http.Request) {
	player := GetPlayerFromContext(r)

	var req attackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := s.svc.InitiateCombat(player.ID, req.TargetID)
	if err != nil {
		s.writeCombatError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.sessionView(session, player.ID))
}

type actionRequest struct {
	SessionID int    `json:"session_id"`
	Action    string `json:"action"`
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	player := GetPlayerFromContext(r)

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, resolved, err := s.svc.SubmitAction(req.SessionID, player.ID, combat.Action(req.Action))
	if err != nil {
		s.writeCombatError(w, err)
		return
	}

	view := s.sessionView(session, player.ID)
	view.RoundResolved = resolved
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleActiveSession(w http.ResponseWriter, r *http.Request) {
	player := GetPlayerFromContext(r)

	session, err := s.svc.GetActiveSession(player.ID)
	if err != nil {
		s.writeCombatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessionView(session, player.ID))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	player := GetPlayerFromContext(r)

	entries, err := s.repo.GetCombatHistoryForPlayer(player.ID, 50)
	if err != nil {
		log.Printf("history query for player %d: %v", player.ID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// sessionView shapes a session for the polling client. Pending action values
// stay hidden; each side only learns whether the other has moved.
type sessionView struct {
	ID                     int                    `json:"id"`
	Round                  int                    `json:"round"`
	MaxRounds              int                    `json:"max_rounds"`
	AttackerID             int                    `json:"attacker_id"`
	DefenderID             int                    `json:"defender_id"`
	AttackerHealth         int                    `json:"attacker_health"`
	DefenderHealth         int                    `json:"defender_health"`
	AttackerStartingHealth int                    `json:"attacker_starting_health"`
	DefenderStartingHealth int                    `json:"defender_starting_health"`
	YouSubmitted           bool                   `json:"you_submitted"`
	OpponentSubmitted      bool                   `json:"opponent_submitted"`
	RoundResolved          bool                   `json:"round_resolved,omitempty"`
	Status                 string                 `json:"status"`
	WinnerID               *int                   `json:"winner_id,omitempty"`
	LootAmount             int                    `json:"loot_amount"`
	Log                    []combat.RoundLogEntry `json:"log"`
}

func (s *Server) sessionView(session *database.CombatSession, viewerID int) *sessionView {
	view := &sessionView{
		ID:                     session.ID,
		Round:                  session.CurrentRound,
		MaxRounds:              session.MaxRounds,
		AttackerID:             session.AttackerID,
		DefenderID:             session.DefenderID,
		AttackerHealth:         session.AttackerHealth,
		DefenderHealth:         session.DefenderHealth,
		AttackerStartingHealth: session.AttackerStartingHealth,
		DefenderStartingHealth: session.DefenderStartingHealth,
		Status:                 session.Status,
		LootAmount:             session.LootAmount,
	}
	if session.WinnerID.Valid {
		winnerID := int(session.WinnerID.Int64)
		view.WinnerID = &winnerID
	}
	viewerIsAttacker := viewerID == session.AttackerID
	if viewerIsAttacker {
		view.YouSubmitted = session.AttackerAction.Valid
		view.OpponentSubmitted = session.DefenderAction.Valid
	} else {
		view.YouSubmitted = session.DefenderAction.Valid
		view.OpponentSubmitted = session.AttackerAction.Valid
	}
	entries, err := combat.ParseCombatLog(session.CombatLog)
	if err != nil {
		log.Printf("parse combat log for session %d: %v", session.ID, err)
	}
	view.Log = entries
	return view
}

func (s *Server) writeCombatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, combat.ErrSessionNotFound), errors.Is(err, combat.ErrTargetNotFound),
		errors.Is(err, sql.ErrNoRows):
		writeError(w, http.StatusNotFound, err.Error())
	case combat.IsValidationError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("combat handler error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
