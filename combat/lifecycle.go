package combat

import (
	"database/sql"
	"errors"
	"fmt"

	"streetlegacy/database"
)

// InitiateCombat validates an attack and creates the session. The checks run
// in a fixed order and the first failure wins; nothing is written until every
// check passes. The whole sequence holds the initiation lock so two
// simultaneous attacks cannot create overlapping sessions.
func (s *Service) InitiateCombat(attackerID, targetID int) (*database.CombatSession, error) {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	now := s.now()

	if attackerID == targetID {
		return nil, ErrSelfTarget
	}

	if _, err := s.repo.GetActiveSessionForPlayer(attackerID); err == nil {
		return nil, ErrAlreadyInCombat
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("check attacker session: %w", err)
	}

	attacker, err := s.repo.GetPlayer(attackerID)
	if err != nil {
		return nil, fmt.Errorf("load attacker: %w", err)
	}
	target, err := s.repo.GetPlayer(targetID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTargetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load target: %w", err)
	}
	if attacker.IsHospitalized(now) || target.IsHospitalized(now) {
		return nil, ErrHospitalized
	}

	if attacker.DistrictID != target.DistrictID {
		return nil, ErrDifferentDistrict
	}

	if attacker.StaminaMax > 0 && attacker.Stamina*100 < s.tuning.StaminaPctRequired*attacker.StaminaMax {
		return nil, ErrLowStamina
	}

	gap := attacker.Level - target.Level
	if gap < 0 {
		gap = -gap
	}
	if gap > s.tuning.MaxLevelGap {
		return nil, ErrLevelGap
	}

	if attacker.CrewID.Valid && target.CrewID.Valid && attacker.CrewID.Int64 == target.CrewID.Int64 {
		return nil, ErrSameCrew
	}

	onCooldown, err := s.repo.IsOnCooldown(attackerID, targetID, now)
	if err != nil {
		return nil, fmt.Errorf("check cooldown: %w", err)
	}
	if onCooldown {
		return nil, ErrOnCooldown
	}

	district, err := s.repo.GetDistrict(attacker.DistrictID)
	if err != nil {
		return nil, fmt.Errorf("load district: %w", err)
	}
	if district.SafeZone {
		return nil, ErrSafeZone
	}

	if _, err := s.repo.GetActiveSessionForPlayer(targetID); err == nil {
		return nil, ErrTargetInCombat
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("check target session: %w", err)
	}

	session := database.CombatSession{
		AttackerID:             attackerID,
		DefenderID:             targetID,
		DistrictID:             attacker.DistrictID,
		CurrentRound:           1,
		MaxRounds:              s.tuning.MaxRounds,
		AttackerHealth:         attacker.Health,
		DefenderHealth:         target.Health,
		AttackerStartingHealth: attacker.Health,
		DefenderStartingHealth: target.Health,
		LastActionAt:           now,
		Status:                 database.StatusActive,
		CombatLog:              "[]",
		CreatedAt:              now,
	}
	id, err := s.repo.InsertCombatSession(session)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	session.ID = id

	if err := s.repo.TouchLastCombat(attackerID, targetID, now); err != nil {
		return nil, fmt.Errorf("stamp last combat: %w", err)
	}

	return &session, nil
}

// GetActiveSession returns the caller's active session, or ErrSessionNotFound.
func (s *Service) GetActiveSession(playerID int) (*database.CombatSession, error) {
	session, err := s.repo.GetActiveSessionForPlayer(playerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}
