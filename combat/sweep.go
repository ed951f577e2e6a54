package combat

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"streetlegacy/database"
)

// SweepTimeouts forfeits every active session whose last action is older than
// the round timeout. A side that submitted wins by forfeit; if neither side
// moved, the fight is a draw. Each session is re-read under its lease so a
// sweep racing a just-completed manual resolution backs off cleanly.
// Returns the number of sessions settled.
func (s *Service) SweepTimeouts(now time.Time) (int, error) {
	cutoff := now.Add(-time.Duration(s.tuning.RoundTimeoutSeconds) * time.Second)
	stale, err := s.repo.GetTimedOutSessions(cutoff)
	if err != nil {
		return 0, fmt.Errorf("scan timed out sessions: %w", err)
	}

	settled := 0
	for i := range stale {
		if err := s.sweepSession(stale[i].ID, cutoff, now); err != nil {
			if errors.Is(err, database.ErrAlreadySettled) {
				continue
			}
			log.Printf("sweeper: session %d: %v", stale[i].ID, err)
			continue
		}
		settled++
	}
	return settled, nil
}

func (s *Service) sweepSession(sessionID int, cutoff, now time.Time) error {
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
		return nil
	}
	if err != nil {
		return fmt.Errorf("reload session: %w", err)
	}
	// A manual resolution may have won the race while we waited on the lease.
	if session.Status != database.StatusActive || !session.LastActionAt.Before(cutoff) {
		return nil
	}

	var status string
	var winnerID *int
	switch {
	case session.AttackerAction.Valid && !session.DefenderAction.Valid:
		status = database.StatusAttackerWon
		winnerID = &session.AttackerID
	case session.DefenderAction.Valid && !session.AttackerAction.Valid:
		status = database.StatusDefenderWon
		winnerID = &session.DefenderID
	default:
		status = database.StatusDraw
	}

	log.Printf("sweeper: forfeiting session %d as %s (idle since %s)",
		session.ID, status, session.LastActionAt.Format(time.RFC3339))

	if err := s.settle(session, status, winnerID, now); err != nil {
		return err
	}
	terminal = true
	return nil
}
