package combat

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"streetlegacy/database"
)

// SubmitAction records one side's action for the current round and, when both
// sides are in, resolves the round. The returned bool reports whether a round
// (or the whole session) was resolved by this call.
//
// Flee is the exception: it resolves immediately instead of waiting for the
// opponent, ending the session on success or degrading to a recorded
// flee_failed no-op on failure.
func (s *Service) SubmitAction(sessionID, playerID int, action Action) (*database.CombatSession, bool, error) {
	if !SubmittableAction(action) {
		return nil, false, ErrUnknownAction
	}

	lock := s.lease(sessionID)
	lock.Lock()
	terminal := false
	defer func() {
		lock.Unlock()
		if terminal {
			s.dropLease(sessionID)
		}
	}()

	session, err := s.repo.GetCombatSession(sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, ErrSessionNotFound
	}
	if err != nil {
		return nil, false, fmt.Errorf("load session: %w", err)
	}
	if session.Status != database.StatusActive {
		return nil, false, ErrSessionNotActive
	}
	if playerID != session.AttackerID && playerID != session.DefenderID {
		return nil, false, ErrNotInSession
	}

	isAttacker := playerID == session.AttackerID
	if (isAttacker && session.AttackerAction.Valid) || (!isAttacker && session.DefenderAction.Valid) {
		return nil, false, ErrAlreadySubmitted
	}

	now := s.now()

	if action == ActionFlee {
		resolved, err := s.resolveFlee(session, playerID, now)
		terminal = err == nil && session.Status != database.StatusActive
		return session, resolved, err
	}

	setSideAction(session, isAttacker, action)
	session.LastActionAt = now

	if session.AttackerAction.Valid && session.DefenderAction.Valid {
		if err := s.resolveRound(session, now); err != nil {
			return nil, false, err
		}
		terminal = session.Status != database.StatusActive
		return session, true, nil
	}

	if err := s.repo.UpdateCombatRound(session); err != nil {
		return nil, false, fmt.Errorf("save action: %w", err)
	}
	return session, false, nil
}

func setSideAction(session *database.CombatSession, isAttacker bool, action Action) {
	val := sql.NullString{String: string(action), Valid: true}
	if isAttacker {
		session.AttackerAction = val
	} else {
		session.DefenderAction = val
	}
}

// resolveRound runs one full exchange. Both strikes resolve independently
// from the same per-round seeded roller: attacker's strike draws first, then
// the defender's. Defend raises the defending side's effective defense for
// this round only; flee_failed strikes nothing.
func (s *Service) resolveRound(session *database.CombatSession, now time.Time) error {
	attacker, err := s.repo.GetPlayer(session.AttackerID)
	if err != nil {
		return fmt.Errorf("load attacker: %w", err)
	}
	defender, err := s.repo.GetPlayer(session.DefenderID)
	if err != nil {
		return fmt.Errorf("load defender: %w", err)
	}

	attackerSnap, err := s.snapshotFor(attacker, now)
	if err != nil {
		return fmt.Errorf("attacker snapshot: %w", err)
	}
	defenderSnap, err := s.snapshotFor(defender, now)
	if err != nil {
		return fmt.Errorf("defender snapshot: %w", err)
	}

	attackerAction := Action(session.AttackerAction.String)
	defenderAction := Action(session.DefenderAction.String)
	rng := s.roundRNG(session.ID, session.CurrentRound)

	var attackerStrike, defenderStrike Outcome
	if attackerAction != ActionFleeFailed {
		attackerStrike = CalculateDamage(attackerSnap, defenderSnap, attackerAction,
			defenderAction == ActionDefend, s.tuning, rng)
	}
	if defenderAction != ActionFleeFailed {
		defenderStrike = CalculateDamage(defenderSnap, attackerSnap, defenderAction,
			attackerAction == ActionDefend, s.tuning, rng)
	}

	session.DefenderHealth -= attackerStrike.Damage
	session.AttackerHealth -= defenderStrike.Damage

	entry := RoundLogEntry{
		Round:          session.CurrentRound,
		AttackerAction: attackerAction,
		DefenderAction: defenderAction,
		AttackerStrike: attackerStrike,
		DefenderStrike: defenderStrike,
		AttackerHealth: session.AttackerHealth,
		DefenderHealth: session.DefenderHealth,
	}
	if err := appendCombatLog(session, entry); err != nil {
		return fmt.Errorf("append log: %w", err)
	}

	session.AttackerAction = sql.NullString{}
	session.DefenderAction = sql.NullString{}
	session.LastActionAt = now

	status, winnerID := decideTermination(session)
	if status != "" {
		return s.settle(session, status, winnerID, now)
	}

	session.CurrentRound++
	if err := s.repo.UpdateCombatRound(session); err != nil {
		return fmt.Errorf("save round: %w", err)
	}
	return nil
}

// decideTermination checks the terminal conditions in their fixed priority
// order. An empty status means the fight continues. The winner pointer is nil
// for a draw.
func decideTermination(session *database.CombatSession) (string, *int) {
	attackerDown := session.AttackerHealth <= 0
	defenderDown := session.DefenderHealth <= 0

	switch {
	case attackerDown && defenderDown:
		return database.StatusDraw, nil
	case attackerDown:
		return database.StatusDefenderWon, &session.DefenderID
	case defenderDown:
		return database.StatusAttackerWon, &session.AttackerID
	}

	if session.CurrentRound >= session.MaxRounds {
		// Judged on percentage of own starting health.
		attackerScore := session.AttackerHealth * session.DefenderStartingHealth
		defenderScore := session.DefenderHealth * session.AttackerStartingHealth
		switch {
		case attackerScore > defenderScore:
			return database.StatusAttackerWon, &session.AttackerID
		case defenderScore > attackerScore:
			return database.StatusDefenderWon, &session.DefenderID
		default:
			return database.StatusDraw, nil
		}
	}

	return "", nil
}

// resolveFlee handles a flee submission. Success terminates the session right
// away: the runner takes a cut of their own max health and drops some cash,
// and the usual cooldown still applies. Failure burns the round action.
func (s *Service) resolveFlee(session *database.CombatSession, playerID int, now time.Time) (bool, error) {
	player, err := s.repo.GetPlayer(playerID)
	if err != nil {
		return false, fmt.Errorf("load fleeing player: %w", err)
	}
	snap, err := s.snapshotFor(player, now)
	if err != nil {
		return false, fmt.Errorf("fleeing snapshot: %w", err)
	}

	isAttacker := playerID == session.AttackerID
	chance := s.tuning.FleeBaseChance + snap.Evasion/2
	roll := s.fleeRNG(session.ID, session.CurrentRound).Float64() * 100

	if roll > float64(chance) {
		log.Printf("player %d failed to flee session %d (rolled %.1f vs %d%%)",
			playerID, session.ID, roll, chance)
		setSideAction(session, isAttacker, ActionFleeFailed)
		session.LastActionAt = now

		if session.AttackerAction.Valid && session.DefenderAction.Valid {
			if err := s.resolveRound(session, now); err != nil {
				return false, err
			}
			return true, nil
		}
		if err := s.repo.UpdateCombatRound(session); err != nil {
			return false, fmt.Errorf("save flee failure: %w", err)
		}
		return false, nil
	}

	// Escape costs health and cash but ends the fight with no loot exchange.
	selfDamage := snap.MaxHealth * s.tuning.FleeDamagePct / 100
	if isAttacker {
		session.AttackerHealth -= selfDamage
		if session.AttackerHealth < 1 {
			session.AttackerHealth = 1
		}
	} else {
		session.DefenderHealth -= selfDamage
		if session.DefenderHealth < 1 {
			session.DefenderHealth = 1
		}
	}
	cashLoss := player.Level * 100 * s.tuning.FleeCashPct / 100

	entry := RoundLogEntry{
		Round:          session.CurrentRound,
		AttackerHealth: session.AttackerHealth,
		DefenderHealth: session.DefenderHealth,
	}
	if isAttacker {
		entry.AttackerAction = ActionFlee
	} else {
		entry.DefenderAction = ActionFlee
	}
	if err := appendCombatLog(session, entry); err != nil {
		return false, fmt.Errorf("append log: %w", err)
	}

	log.Printf("player %d fled session %d (rolled %.1f vs %d%%, -%d health, -%d cash)",
		playerID, session.ID, roll, chance, selfDamage, cashLoss)

	if err := s.settleFled(session, playerID, cashLoss, now); err != nil {
		return false, err
	}
	return true, nil
}
