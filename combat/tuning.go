package combat

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning holds the combat balance knobs. Compiled defaults can be overlaid
// with a YAML file so balance passes don't need a rebuild.
type Tuning struct {
	MaxRounds            int     `yaml:"max_rounds"`
	RoundTimeoutSeconds  int     `yaml:"round_timeout_seconds"`
	SweepIntervalSeconds int     `yaml:"sweep_interval_seconds"`
	CooldownMinutes      int     `yaml:"cooldown_minutes"`
	HospitalMinutes      int     `yaml:"hospital_minutes"`
	StaminaPctRequired   int     `yaml:"stamina_pct_required"`
	MaxLevelGap          int     `yaml:"max_level_gap"`
	CritChance           float64 `yaml:"crit_chance"`
	CritMultiplier       float64 `yaml:"crit_multiplier"`
	HeavyMultiplier      float64 `yaml:"heavy_multiplier"`
	DefendMultiplier     float64 `yaml:"defend_multiplier"`
	DefenseScale         int     `yaml:"defense_scale"`
	LootMinPct           float64 `yaml:"loot_min_pct"`
	LootMaxPct           float64 `yaml:"loot_max_pct"`
	BaseXP               int     `yaml:"base_xp"`
	XPPerLevel           int     `yaml:"xp_per_level"`
	FleeBaseChance       int     `yaml:"flee_base_chance"`
	FleeDamagePct        int     `yaml:"flee_damage_pct"`
	FleeCashPct          int     `yaml:"flee_cash_pct"`
	AutoBountyKills      int     `yaml:"auto_bounty_kills"`
	AutoBountyAmount     int     `yaml:"auto_bounty_amount"`
	AutoBountyDays       int     `yaml:"auto_bounty_days"`

	Injuries []InjuryTier `yaml:"injuries"`
}

// InjuryTier describes the injury handed to a loser at one severity level.
type InjuryTier struct {
	Severity     int     `yaml:"severity"`
	Name         string  `yaml:"name"`
	AttackMod    int     `yaml:"attack_mod"`
	DefenseMod   int     `yaml:"defense_mod"`
	AccuracyMod  int     `yaml:"accuracy_mod"`
	EvasionMod   int     `yaml:"evasion_mod"`
	MaxHealthMod int     `yaml:"max_health_mod"`
	HealHours    float64 `yaml:"heal_hours"`
}

func DefaultTuning() Tuning {
	return Tuning{
		MaxRounds:            10,
		RoundTimeoutSeconds:  60,
		SweepIntervalSeconds: 5,
		CooldownMinutes:      30,
		HospitalMinutes:      30,
		StaminaPctRequired:   25,
		MaxLevelGap:          10,
		CritChance:           0.05,
		CritMultiplier:       1.5,
		HeavyMultiplier:      1.5,
		DefendMultiplier:     1.5,
		DefenseScale:         50,
		LootMinPct:           0.10,
		LootMaxPct:           0.25,
		BaseXP:               50,
		XPPerLevel:           10,
		FleeBaseChance:       30,
		FleeDamagePct:        15,
		FleeCashPct:          5,
		AutoBountyKills:      5,
		AutoBountyAmount:     5000,
		AutoBountyDays:       7,
		Injuries: []InjuryTier{
			{Severity: 1, Name: "Bruised", AttackMod: -1, DefenseMod: -1, HealHours: 1},
			{Severity: 2, Name: "Sprained Wrist", AttackMod: -3, AccuracyMod: -2, HealHours: 2},
			{Severity: 3, Name: "Fractured Ribs", AttackMod: -5, DefenseMod: -3, MaxHealthMod: -10, HealHours: 4},
			{Severity: 4, Name: "Broken Leg", AttackMod: -8, DefenseMod: -5, EvasionMod: -5, MaxHealthMod: -20, HealHours: 8},
			{Severity: 5, Name: "Severe Trauma", AttackMod: -12, DefenseMod: -8, AccuracyMod: -5, EvasionMod: -5, MaxHealthMod: -30, HealHours: 24},
		},
	}
}

// LoadTuning reads a YAML overlay on top of the defaults. An empty path
// returns the defaults unchanged.
func LoadTuning(path string) (Tuning, error) {
	tuning := DefaultTuning()
	if path == "" {
		return tuning, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return tuning, fmt.Errorf("read tuning file: %w", err)
	}
	if err := yaml.Unmarshal(data, &tuning); err != nil {
		return tuning, fmt.Errorf("parse tuning file: %w", err)
	}
	return tuning, nil
}

// InjuryForSeverity returns the tier for a severity, falling back to the
// mildest tier if the table has no exact match.
func (t Tuning) InjuryForSeverity(severity int) InjuryTier {
	for _, tier := range t.Injuries {
		if tier.Severity == severity {
			return tier
		}
	}
	if len(t.Injuries) > 0 {
		return t.Injuries[0]
	}
	return InjuryTier{Severity: severity, Name: "Bruised", HealHours: 1}
}

// SeverityForDamagePct maps the percentage of starting health a loser lost to
// an injury severity.
func SeverityForDamagePct(pct int) int {
	switch {
	case pct >= 75:
		return 5
	case pct >= 50:
		return 4
	case pct >= 35:
		return 3
	case pct >= 20:
		return 2
	default:
		return 1
	}
}
