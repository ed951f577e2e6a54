package database

import (
	"database/sql"
	"time"
)

type Player struct {
	ID             int           `db:"id"`
	Username       string        `db:"username"`
	Level          int           `db:"level"`
	Cash           int           `db:"cash"`
	XP             int           `db:"xp"`
	Health         int           `db:"health"`
	MaxHealth      int           `db:"max_health"`
	Attack         int           `db:"attack"`
	Defense        int           `db:"defense"`
	Accuracy       int           `db:"accuracy"`
	Evasion        int           `db:"evasion"`
	Stamina        int           `db:"stamina"`
	StaminaMax     int           `db:"stamina_max"`
	CrewID         sql.NullInt64 `db:"crew_id"`
	DistrictID     int           `db:"district_id"`
	HospitalUntil  sql.NullTime  `db:"hospital_until"`
	KillStreak     int           `db:"kill_streak"`
	BestKillStreak int           `db:"best_kill_streak"`
	LastCombatAt   sql.NullTime  `db:"last_combat_at"`
	CreatedAt      time.Time     `db:"created_at"`
}

// IsHospitalized reports whether the player is still locked in the hospital
// at the given instant.
func (p *Player) IsHospitalized(now time.Time) bool {
	return p.HospitalUntil.Valid && p.HospitalUntil.Time.After(now)
}

type CombatSession struct {
	ID                     int            `db:"id"`
	AttackerID             int            `db:"attacker_id"`
	DefenderID             int            `db:"defender_id"`
	DistrictID             int            `db:"district_id"`
	CurrentRound           int            `db:"current_round"`
	MaxRounds              int            `db:"max_rounds"`
	AttackerHealth         int            `db:"attacker_health"`
	DefenderHealth         int            `db:"defender_health"`
	AttackerStartingHealth int            `db:"attacker_starting_health"`
	DefenderStartingHealth int            `db:"defender_starting_health"`
	AttackerAction         sql.NullString `db:"attacker_action"`
	DefenderAction         sql.NullString `db:"defender_action"`
	LastActionAt           time.Time      `db:"last_action_at"`
	Status                 string         `db:"status"`
	WinnerID               sql.NullInt64  `db:"winner_id"`
	LootAmount             int            `db:"loot_amount"`
	CombatLog              string         `db:"combat_log"`
	CreatedAt              time.Time      `db:"created_at"`
	CompletedAt            sql.NullTime   `db:"completed_at"`
}

// Session statuses. A session is mutated only while active; exactly one
// terminal status is ever written, by the settlement transaction.
const (
	StatusActive      = "active"
	StatusAttackerWon = "attacker_won"
	StatusDefenderWon = "defender_won"
	StatusDraw        = "draw"
	StatusFled        = "fled"
)

type CombatCooldown struct {
	ID            int       `db:"id"`
	AttackerID    int       `db:"attacker_id"`
	TargetID      int       `db:"target_id"`
	CooldownUntil time.Time `db:"cooldown_until"`
	CreatedAt     time.Time `db:"created_at"`
}

// StatModifiers is the aggregated stat delta from a set of buffs or injuries.
// Scanned from SUM() queries, so every column is COALESCEd to zero.
type StatModifiers struct {
	Attack    int `db:"attack_mod"`
	Defense   int `db:"defense_mod"`
	Accuracy  int `db:"accuracy_mod"`
	Evasion   int `db:"evasion_mod"`
	MaxHealth int `db:"max_health_mod"`
}

func (m StatModifiers) Add(o StatModifiers) StatModifiers {
	return StatModifiers{
		Attack:    m.Attack + o.Attack,
		Defense:   m.Defense + o.Defense,
		Accuracy:  m.Accuracy + o.Accuracy,
		Evasion:   m.Evasion + o.Evasion,
		MaxHealth: m.MaxHealth + o.MaxHealth,
	}
}

type Buff struct {
	ID           int       `db:"id"`
	PlayerID     int       `db:"player_id"`
	Name         string    `db:"name"`
	AttackMod    int       `db:"attack_mod"`
	DefenseMod   int       `db:"defense_mod"`
	AccuracyMod  int       `db:"accuracy_mod"`
	EvasionMod   int       `db:"evasion_mod"`
	MaxHealthMod int       `db:"max_health_mod"`
	ExpiresAt    time.Time `db:"expires_at"`
	CreatedAt    time.Time `db:"created_at"`
}

type Injury struct {
	ID             int       `db:"id"`
	PlayerID       int       `db:"player_id"`
	Severity       int       `db:"severity"`
	Name           string    `db:"name"`
	AttackMod      int       `db:"attack_mod"`
	DefenseMod     int       `db:"defense_mod"`
	AccuracyMod    int       `db:"accuracy_mod"`
	EvasionMod     int       `db:"evasion_mod"`
	MaxHealthMod   int       `db:"max_health_mod"`
	HealsAt        time.Time `db:"heals_at"`
	SourcePlayerID int       `db:"source_player_id"`
	CreatedAt      time.Time `db:"created_at"`
}

type District struct {
	ID       int    `db:"id"`
	Name     string `db:"name"`
	SafeZone bool   `db:"safe_zone"`
}

type KillLogEntry struct {
	ID         int       `db:"id"`
	WinnerID   int       `db:"winner_id"`
	LoserID    int       `db:"loser_id"`
	DistrictID int       `db:"district_id"`
	CreatedAt  time.Time `db:"created_at"`
}

type Bounty struct {
	ID        int       `db:"id"`
	TargetID  int       `db:"target_id"`
	Amount    int       `db:"amount"`
	Auto      bool      `db:"auto"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}

type CombatHistoryEntry struct {
	ID                  int           `db:"id"`
	SessionID           int           `db:"session_id"`
	AttackerID          int           `db:"attacker_id"`
	DefenderID          int           `db:"defender_id"`
	Status              string        `db:"status"`
	WinnerID            sql.NullInt64 `db:"winner_id"`
	RoundsFought        int           `db:"rounds_fought"`
	AttackerDamageDealt int           `db:"attacker_damage_dealt"`
	DefenderDamageDealt int           `db:"defender_damage_dealt"`
	LootAmount          int           `db:"loot_amount"`
	XPAwarded           int           `db:"xp_awarded"`
	CreatedAt           time.Time     `db:"created_at"`
}

type AuthSession struct {
	Token     string    `db:"token"`
	PlayerID  int       `db:"player_id"`
	ExpiresAt time.Time `db:"expires_at"`
}
