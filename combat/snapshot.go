package combat

import (
	"time"

	"streetlegacy/database"
)

// Snapshot is a combatant's effective stat set for one round: base player
// record plus the summed modifiers of active buffs and unhealed injuries.
// It carries no identity and is recomputed every round.
type Snapshot struct {
	Health     int
	MaxHealth  int
	Attack     int
	Defense    int
	Accuracy   int
	Evasion    int
	Level      int
	Stamina    int
	StaminaMax int
}

// Stat bounds applied after modifier aggregation.
const (
	minAccuracy = 10
	maxAccuracy = 95
	minEvasion  = 0
	maxEvasion  = 80
	minDefense  = 1
	minAttack   = 0
)

// BuildSnapshot folds aggregated modifiers into a player's base stats and
// clamps the result into the ranges the damage model expects.
func BuildSnapshot(player *database.Player, mods database.StatModifiers) Snapshot {
	snap := Snapshot{
		Health:     player.Health,
		MaxHealth:  player.MaxHealth + mods.MaxHealth,
		Attack:     player.Attack + mods.Attack,
		Defense:    player.Defense + mods.Defense,
		Accuracy:   player.Accuracy + mods.Accuracy,
		Evasion:    player.Evasion + mods.Evasion,
		Level:      player.Level,
		Stamina:    player.Stamina,
		StaminaMax: player.StaminaMax,
	}
	if snap.MaxHealth < 1 {
		snap.MaxHealth = 1
	}
	if snap.Health > snap.MaxHealth {
		snap.Health = snap.MaxHealth
	}
	if snap.Attack < minAttack {
		snap.Attack = minAttack
	}
	if snap.Defense < minDefense {
		snap.Defense = minDefense
	}
	snap.Accuracy = clamp(snap.Accuracy, minAccuracy, maxAccuracy)
	snap.Evasion = clamp(snap.Evasion, minEvasion, maxEvasion)
	return snap
}

// snapshotFor resolves a player's snapshot at the given instant. Buffs and
// injuries can change mid-fight, so round resolution calls this fresh each
// round rather than caching.
func (s *Service) snapshotFor(player *database.Player, now time.Time) (Snapshot, error) {
	buffs, err := s.repo.ActiveBuffModifiers(player.ID, now)
	if err != nil {
		return Snapshot{}, err
	}
	injuries, err := s.repo.ActiveInjuryModifiers(player.ID, now)
	if err != nil {
		return Snapshot{}, err
	}
	return BuildSnapshot(player, buffs.Add(injuries)), nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
