package combat

import (
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"streetlegacy/database"
	"streetlegacy/utils"
)

// Validation errors surfaced to callers. No state is mutated when one of
// these is returned.
var (
	ErrSelfTarget        = errors.New("you cannot attack yourself")
	ErrAlreadyInCombat   = errors.New("you are already in a fight")
	ErrTargetNotFound    = errors.New("target not found")
	ErrHospitalized      = errors.New("a combatant is in the hospital")
	ErrDifferentDistrict = errors.New("target is in another district")
	ErrLowStamina        = errors.New("not enough stamina to fight")
	ErrLevelGap          = errors.New("level gap is too large")
	ErrSameCrew          = errors.New("you cannot attack a crew member")
	ErrOnCooldown        = errors.New("target is on attack cooldown")
	ErrSafeZone          = errors.New("this district is a safe zone")
	ErrTargetInCombat    = errors.New("target is already in a fight")

	ErrSessionNotFound  = errors.New("combat session not found")
	ErrSessionNotActive = errors.New("combat session is not active")
	ErrNotInSession     = errors.New("player is not part of this session")
	ErrAlreadySubmitted = errors.New("action already submitted this round")
	ErrUnknownAction    = errors.New("unknown combat action")
)

// IsValidationError reports whether an error is one of the caller-facing
// validation failures (as opposed to an infrastructure failure).
func IsValidationError(err error) bool {
	for _, sentinel := range []error{
		ErrSelfTarget, ErrAlreadyInCombat, ErrTargetNotFound, ErrHospitalized,
		ErrDifferentDistrict, ErrLowStamina, ErrLevelGap, ErrSameCrew,
		ErrOnCooldown, ErrSafeZone, ErrTargetInCombat,
		ErrSessionNotFound, ErrSessionNotActive, ErrNotInSession,
		ErrAlreadySubmitted, ErrUnknownAction,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// Store is the persistence surface the combat engine needs. Implemented by
// *database.Repository; tests substitute an in-memory fake.
type Store interface {
	GetPlayer(playerID int) (*database.Player, error)
	TouchLastCombat(attackerID, defenderID int, now time.Time) error
	ActiveBuffModifiers(playerID int, now time.Time) (database.StatModifiers, error)
	ActiveInjuryModifiers(playerID int, now time.Time) (database.StatModifiers, error)
	GetDistrict(districtID int) (*database.District, error)
	GetCombatSession(sessionID int) (*database.CombatSession, error)
	GetActiveSessionForPlayer(playerID int) (*database.CombatSession, error)
	InsertCombatSession(session database.CombatSession) (int, error)
	UpdateCombatRound(session *database.CombatSession) error
	GetTimedOutSessions(cutoff time.Time) ([]database.CombatSession, error)
	IsOnCooldown(attackerID, targetID int, now time.Time) (bool, error)
	CountKills24h(playerID int, now time.Time) (int, error)
	HasActiveAutoBounty(playerID int, now time.Time) (bool, error)
	ApplySettlement(update database.SettlementUpdate) error
}

// Service is the single entry point for every combat mutation. All paths that
// touch a session (submit, flee, sweep) funnel through its per-session lease,
// which serializes concurrent callers the way a row lock would.
type Service struct {
	repo   Store
	tuning Tuning

	now      func() time.Time
	roundRNG func(sessionID, round int) Roller
	fleeRNG  func(sessionID, round int) Roller
	lootRoll func(sessionID int) float64

	mu     sync.Mutex
	leases map[int]*sync.Mutex
	initMu sync.Mutex
}

func NewService(repo Store, tuning Tuning) *Service {
	return &Service{
		repo:   repo,
		tuning: tuning,
		now:    func() time.Time { return time.Now().UTC() },
		roundRNG: func(sessionID, round int) Roller {
			return utils.NewSeededRNG(utils.CombatRoundSeed(sessionID, round))
		},
		fleeRNG: func(sessionID, round int) Roller {
			return utils.NewSeededRNG(utils.FleeSeed(sessionID, round))
		},
		lootRoll: func(sessionID int) float64 {
			return utils.NewSeededRNG(utils.LootSeed(sessionID)).Float64()
		},
		leases: make(map[int]*sync.Mutex),
	}
}

// lease returns the exclusive mutex for a session, creating it on first use.
func (s *Service) lease(sessionID int) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.leases[sessionID]
	if !ok {
		m = &sync.Mutex{}
		s.leases[sessionID] = m
	}
	return m
}

// dropLease forgets a terminal session's mutex. Callers must not hold it.
func (s *Service) dropLease(sessionID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.leases, sessionID)
}

// Tuning returns the service's active tuning values.
func (s *Service) Tuning() Tuning {
	return s.tuning
}

var _ Roller = (*rand.Rand)(nil)

// RoundLogEntry is one round's structured record in a session's combat log.
type RoundLogEntry struct {
	Round          int     `json:"round"`
	AttackerAction Action  `json:"attacker_action"`
	DefenderAction Action  `json:"defender_action"`
	AttackerStrike Outcome `json:"attacker_strike"`
	DefenderStrike Outcome `json:"defender_strike"`
	AttackerHealth int     `json:"attacker_health"`
	DefenderHealth int     `json:"defender_health"`
}

// ParseCombatLog decodes a session's stored log.
func ParseCombatLog(raw string) ([]RoundLogEntry, error) {
	if raw == "" {
		return nil, nil
	}
	var entries []RoundLogEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func appendCombatLog(session *database.CombatSession, entry RoundLogEntry) error {
	entries, err := ParseCombatLog(session.CombatLog)
	if err != nil {
		return err
	}
	entries = append(entries, entry)
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	session.CombatLog = string(raw)
	return nil
}
