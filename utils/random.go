package utils

import (
	"math/rand"
)

func NewSeededRNG(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// CombatRoundSeed derives a per-round seed so a session's rounds replay
// identically during recovery and in tests.
func CombatRoundSeed(sessionID, round int) int64 {
	return int64(sessionID)*1000000 + int64(round)
}

// FleeSeed is kept on a separate stream from round resolution so an attempted
// flee does not perturb the round outcome.
func FleeSeed(sessionID, round int) int64 {
	return int64(sessionID)*1000000 + int64(round)*1000 + 7
}

// LootSeed drives the settlement loot roll.
func LootSeed(sessionID int) int64 {
	return int64(sessionID)*1000000 + 13
}
