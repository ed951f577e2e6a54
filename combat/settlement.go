package combat

import (
	"fmt"
	"log"
	"math"
	"time"

	"streetlegacy/database"
)

// SettlementInput gathers everything the outcome computation needs, so the
// computation itself stays pure and testable.
type SettlementInput struct {
	Session *database.CombatSession
	Status  string
	// Winner and Loser are nil for draw and fled outcomes.
	Winner *database.Player
	Loser  *database.Player
	// LootRoll is uniform [0,1); it picks the loot fraction inside the
	// configured range.
	LootRoll float64
	// Kills24h counts the winner's kills in the trailing 24h, before this one.
	Kills24h int
	// HasAutoBounty reports an existing unexpired auto-bounty on the winner.
	HasAutoBounty bool
	// FleeCashLoss is the cash penalty for a fled session, charged to FledBy.
	FleeCashLoss int
	FledBy       int
	Now          time.Time
}

// BuildSettlement computes a session's complete terminal write set. The
// returned update is applied atomically by the store; nothing here touches
// persistence.
func BuildSettlement(in SettlementInput, tuning Tuning) database.SettlementUpdate {
	session := in.Session

	update := database.SettlementUpdate{
		SessionID:      session.ID,
		Status:         in.Status,
		CompletedAt:    in.Now,
		AttackerHealth: session.AttackerHealth,
		DefenderHealth: session.DefenderHealth,
		CurrentRound:   session.CurrentRound,
		CombatLog:      session.CombatLog,
		Cooldown: database.CombatCooldown{
			AttackerID:    session.AttackerID,
			TargetID:      session.DefenderID,
			CooldownUntil: in.Now.Add(time.Duration(tuning.CooldownMinutes) * time.Minute),
		},
	}

	attacker := playerSettlementFor(session.AttackerID, session.AttackerHealth, in.Now, tuning)
	defender := playerSettlementFor(session.DefenderID, session.DefenderHealth, in.Now, tuning)

	if in.Winner != nil && in.Loser != nil {
		winnerID := in.Winner.ID
		update.WinnerID = &winnerID

		lootPct := tuning.LootMinPct + in.LootRoll*(tuning.LootMaxPct-tuning.LootMinPct)
		loot := int(math.Floor(float64(in.Loser.Cash) * lootPct))
		xp := tuning.BaseXP + in.Loser.Level*tuning.XPPerLevel
		update.LootAmount = loot

		winner, loser := &attacker, &defender
		if in.Winner.ID == session.DefenderID {
			winner, loser = &defender, &attacker
		}
		winner.CashDelta = loot
		winner.XPDelta = xp
		winner.BumpKillStreak = true
		loser.CashDelta = -loot
		loser.ResetStreak = true

		update.Injury = loserInjury(in, tuning)
		update.Kill = &database.KillLogEntry{
			WinnerID:   in.Winner.ID,
			LoserID:    in.Loser.ID,
			DistrictID: session.DistrictID,
			CreatedAt:  in.Now,
		}
		update.History = historyEntry(session, in.Status, &winnerID, loot, xp, in.Now)

		if in.Kills24h >= tuning.AutoBountyKills && !in.HasAutoBounty {
			update.AutoBounty = &database.Bounty{
				TargetID:  in.Winner.ID,
				Amount:    tuning.AutoBountyAmount,
				Auto:      true,
				ExpiresAt: in.Now.Add(time.Duration(tuning.AutoBountyDays) * 24 * time.Hour),
			}
		}
	} else {
		if in.Status == database.StatusFled && in.FledBy != 0 {
			if in.FledBy == session.AttackerID {
				attacker.CashDelta = -in.FleeCashLoss
			} else {
				defender.CashDelta = -in.FleeCashLoss
			}
		}
		update.History = historyEntry(session, in.Status, nil, 0, 0, in.Now)
	}

	update.Players = []database.PlayerSettlement{attacker, defender}
	return update
}

// playerSettlementFor writes the session health back to the player row,
// holding it at 1 and hospitalizing when the fight ended at or below zero.
func playerSettlementFor(playerID, health int, now time.Time, tuning Tuning) database.PlayerSettlement {
	p := database.PlayerSettlement{PlayerID: playerID, Health: health}
	if health <= 0 {
		p.Health = 1
		until := now.Add(time.Duration(tuning.HospitalMinutes) * time.Minute)
		p.HospitalUntil = &until
	}
	return p
}

// loserInjury sizes the loser's injury by the share of starting health lost.
func loserInjury(in SettlementInput, tuning Tuning) *database.Injury {
	session := in.Session
	starting, final := session.AttackerStartingHealth, session.AttackerHealth
	source := session.DefenderID
	if in.Loser.ID == session.DefenderID {
		starting, final = session.DefenderStartingHealth, session.DefenderHealth
		source = session.AttackerID
	}
	pct := 0
	if starting > 0 {
		pct = (starting - final) * 100 / starting
	}
	tier := tuning.InjuryForSeverity(SeverityForDamagePct(pct))
	return &database.Injury{
		PlayerID:       in.Loser.ID,
		Severity:       tier.Severity,
		Name:           tier.Name,
		AttackMod:      tier.AttackMod,
		DefenseMod:     tier.DefenseMod,
		AccuracyMod:    tier.AccuracyMod,
		EvasionMod:     tier.EvasionMod,
		MaxHealthMod:   tier.MaxHealthMod,
		HealsAt:        in.Now.Add(time.Duration(tier.HealHours * float64(time.Hour))),
		SourcePlayerID: source,
	}
}

func historyEntry(session *database.CombatSession, status string, winnerID *int, loot, xp int, now time.Time) database.CombatHistoryEntry {
	entry := database.CombatHistoryEntry{
		SessionID:           session.ID,
		AttackerID:          session.AttackerID,
		DefenderID:          session.DefenderID,
		Status:              status,
		RoundsFought:        session.CurrentRound,
		AttackerDamageDealt: session.DefenderStartingHealth - session.DefenderHealth,
		DefenderDamageDealt: session.AttackerStartingHealth - session.AttackerHealth,
		LootAmount:          loot,
		XPAwarded:           xp,
		CreatedAt:           now,
	}
	if winnerID != nil {
		entry.WinnerID.Int64 = int64(*winnerID)
		entry.WinnerID.Valid = true
	}
	return entry
}

// settle concludes a session with a winner, loser, or draw. The store applies
// the update in one transaction guarded on the session still being active, so
// a racing sweep or duplicate call settles nothing twice.
func (s *Service) settle(session *database.CombatSession, status string, winnerID *int, now time.Time) error {
	in := SettlementInput{
		Session: session,
		Status:  status,
		Now:     now,
	}

	if winnerID != nil {
		loserID := session.AttackerID
		if *winnerID == session.AttackerID {
			loserID = session.DefenderID
		}
		winner, err := s.repo.GetPlayer(*winnerID)
		if err != nil {
			return fmt.Errorf("load winner: %w", err)
		}
		loser, err := s.repo.GetPlayer(loserID)
		if err != nil {
			return fmt.Errorf("load loser: %w", err)
		}
		kills, err := s.repo.CountKills24h(*winnerID, now)
		if err != nil {
			return fmt.Errorf("count kills: %w", err)
		}
		hasBounty, err := s.repo.HasActiveAutoBounty(*winnerID, now)
		if err != nil {
			return fmt.Errorf("check auto-bounty: %w", err)
		}
		in.Winner = winner
		in.Loser = loser
		in.LootRoll = s.lootRoll(session.ID)
		in.Kills24h = kills
		in.HasAutoBounty = hasBounty
	}

	update := BuildSettlement(in, s.tuning)
	if err := s.repo.ApplySettlement(update); err != nil {
		return err
	}

	session.Status = status
	if winnerID != nil {
		session.WinnerID.Int64 = int64(*winnerID)
		session.WinnerID.Valid = true
	}
	session.LootAmount = update.LootAmount
	session.CompletedAt.Time = now
	session.CompletedAt.Valid = true

	log.Printf("session %d settled: %s (round %d)", session.ID, status, session.CurrentRound)
	return nil
}

// settleFled concludes a session the moment a flee roll succeeds.
func (s *Service) settleFled(session *database.CombatSession, fledBy, cashLoss int, now time.Time) error {
	in := SettlementInput{
		Session:      session,
		Status:       database.StatusFled,
		FleeCashLoss: cashLoss,
		FledBy:       fledBy,
		Now:          now,
	}
	update := BuildSettlement(in, s.tuning)
	if err := s.repo.ApplySettlement(update); err != nil {
		return err
	}

	session.Status = database.StatusFled
	session.CompletedAt.Time = now
	session.CompletedAt.Valid = true

	log.Printf("session %d settled: fled by player %d (round %d)", session.ID, fledBy, session.CurrentRound)
	return nil
}
