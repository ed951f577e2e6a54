package combat

import "math"

// Action is a player's submitted move for one round.
type Action string

const (
	ActionAttack      Action = "attack"
	ActionDefend      Action = "defend"
	ActionHeavyAttack Action = "heavy_attack"
	ActionFlee        Action = "flee"
	// ActionFleeFailed is recorded when a flee roll fails; it counts as a
	// submitted no-op for the round.
	ActionFleeFailed Action = "flee_failed"
)

// SubmittableAction reports whether players may submit the action themselves.
func SubmittableAction(a Action) bool {
	switch a {
	case ActionAttack, ActionDefend, ActionHeavyAttack, ActionFlee:
		return true
	}
	return false
}

// Roller is the randomness source for combat rolls. *rand.Rand satisfies it;
// tests inject scripted values.
type Roller interface {
	Float64() float64
}

// Outcome is the result of one attacker→defender strike.
type Outcome struct {
	Hit      bool `json:"hit"`
	Damage   int  `json:"damage"`
	Critical bool `json:"critical"`
}

// HitChance is the attacker's chance (percent) of landing a strike,
// clamped to [20,95].
func HitChance(attacker, defender Snapshot) int {
	return clamp(attacker.Accuracy-defender.Evasion+50, 20, 95)
}

// CalculateDamage resolves one strike. It is pure: all randomness comes from
// rng, drawn in a fixed order (hit roll, damage multiplier, crit roll) so a
// seeded source replays identically.
//
// Damage reduction uses the defender's effective defense with diminishing
// returns: defense/(defense+scale), with defense multiplied when the
// defender's action this round is defend.
func CalculateDamage(attacker, defender Snapshot, action Action, defenderDefends bool, tuning Tuning, rng Roller) Outcome {
	hitRoll := rng.Float64() * 100
	if hitRoll > float64(HitChance(attacker, defender)) {
		return Outcome{}
	}

	base := float64(attacker.Attack)
	if action == ActionHeavyAttack {
		base *= tuning.HeavyMultiplier
	}

	defense := float64(defender.Defense)
	if defenderDefends {
		defense *= tuning.DefendMultiplier
	}
	reduction := defense / (defense + float64(tuning.DefenseScale))

	multiplier := 0.8 + rng.Float64()*0.4
	damage := int(math.Floor(base * multiplier * (1 - reduction)))
	if damage < 1 {
		damage = 1
	}

	critical := rng.Float64() < tuning.CritChance
	if critical {
		damage = int(math.Floor(float64(damage) * tuning.CritMultiplier))
		if damage < 1 {
			damage = 1
		}
	}

	return Outcome{Hit: true, Damage: damage, Critical: critical}
}
