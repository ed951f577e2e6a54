package database

import "github.com/jmoiron/sqlx"

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS players (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		level INTEGER NOT NULL DEFAULT 1,
		cash INTEGER NOT NULL DEFAULT 0,
		xp INTEGER NOT NULL DEFAULT 0,
		health INTEGER NOT NULL DEFAULT 100,
		max_health INTEGER NOT NULL DEFAULT 100,
		attack INTEGER NOT NULL DEFAULT 10,
		defense INTEGER NOT NULL DEFAULT 10,
		accuracy INTEGER NOT NULL DEFAULT 50,
		evasion INTEGER NOT NULL DEFAULT 10,
		stamina INTEGER NOT NULL DEFAULT 100,
		stamina_max INTEGER NOT NULL DEFAULT 100,
		crew_id INTEGER,
		district_id INTEGER NOT NULL DEFAULT 1,
		hospital_until DATETIME,
		kill_streak INTEGER NOT NULL DEFAULT 0,
		best_kill_streak INTEGER NOT NULL DEFAULT 0,
		last_combat_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`,
	`CREATE TABLE IF NOT EXISTS combat_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		attacker_id INTEGER NOT NULL,
		defender_id INTEGER NOT NULL,
		district_id INTEGER NOT NULL,
		current_round INTEGER NOT NULL DEFAULT 1,
		max_rounds INTEGER NOT NULL DEFAULT 10,
		attacker_health INTEGER NOT NULL,
		defender_health INTEGER NOT NULL,
		attacker_starting_health INTEGER NOT NULL,
		defender_starting_health INTEGER NOT NULL,
		attacker_action TEXT,
		defender_action TEXT,
		last_action_at DATETIME NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		winner_id INTEGER,
		loot_amount INTEGER NOT NULL DEFAULT 0,
		combat_log TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL DEFAULT (datetime('now')),
		completed_at DATETIME
	)`,
	// Backstop for the lifecycle checks: a player can be party to at most
	// one active session at a time.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_active_attacker
		ON combat_sessions(attacker_id) WHERE status = 'active'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_active_defender
		ON combat_sessions(defender_id) WHERE status = 'active'`,
	`CREATE TABLE IF NOT EXISTS combat_cooldowns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		attacker_id INTEGER NOT NULL,
		target_id INTEGER NOT NULL,
		cooldown_until DATETIME NOT NULL,
		created_at DATETIME NOT NULL DEFAULT (datetime('now')),
		UNIQUE(attacker_id, target_id)
	)`,
	`CREATE TABLE IF NOT EXISTS buffs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		player_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		attack_mod INTEGER NOT NULL DEFAULT 0,
		defense_mod INTEGER NOT NULL DEFAULT 0,
		accuracy_mod INTEGER NOT NULL DEFAULT 0,
		evasion_mod INTEGER NOT NULL DEFAULT 0,
		max_health_mod INTEGER NOT NULL DEFAULT 0,
		expires_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`,
	`CREATE TABLE IF NOT EXISTS injuries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		player_id INTEGER NOT NULL,
		severity INTEGER NOT NULL,
		name TEXT NOT NULL,
		attack_mod INTEGER NOT NULL DEFAULT 0,
		defense_mod INTEGER NOT NULL DEFAULT 0,
		accuracy_mod INTEGER NOT NULL DEFAULT 0,
		evasion_mod INTEGER NOT NULL DEFAULT 0,
		max_health_mod INTEGER NOT NULL DEFAULT 0,
		heals_at DATETIME NOT NULL,
		source_player_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`,
	`CREATE TABLE IF NOT EXISTS districts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		safe_zone BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS kill_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		winner_id INTEGER NOT NULL,
		loser_id INTEGER NOT NULL,
		district_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS bounties (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		target_id INTEGER NOT NULL,
		amount INTEGER NOT NULL,
		auto BOOLEAN NOT NULL DEFAULT FALSE,
		expires_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`,
	`CREATE TABLE IF NOT EXISTS combat_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL,
		attacker_id INTEGER NOT NULL,
		defender_id INTEGER NOT NULL,
		status TEXT NOT NULL,
		winner_id INTEGER,
		rounds_fought INTEGER NOT NULL,
		attacker_damage_dealt INTEGER NOT NULL,
		defender_damage_dealt INTEGER NOT NULL,
		loot_amount INTEGER NOT NULL,
		xp_awarded INTEGER NOT NULL,
		created_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		player_id INTEGER NOT NULL,
		expires_at DATETIME NOT NULL
	)`,
}

// Migrate creates any missing tables and indexes. Safe to run on every boot.
func Migrate(db *sqlx.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
