package database

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrAlreadySettled is returned by ApplySettlement when the session has
// already left the active status. No side effects have occurred.
var ErrAlreadySettled = errors.New("combat session already settled")

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Player methods

func (r *Repository) GetPlayer(playerID int) (*Player, error) {
	var player Player
	err := r.db.Get(&player, "SELECT * FROM players WHERE id = ?", playerID)
	return &player, err
}

func (r *Repository) GetPlayerByUsername(username string) (*Player, error) {
	var player Player
	err := r.db.Get(&player, "SELECT * FROM players WHERE username = ?", username)
	return &player, err
}

func (r *Repository) InsertPlayer(player Player) (int, error) {
	result, err := r.db.NamedExec(`
		INSERT INTO players (username, level, cash, xp, health, max_health, attack, defense,
			accuracy, evasion, stamina, stamina_max, crew_id, district_id, hospital_until,
			kill_streak, best_kill_streak, created_at)
		VALUES (:username, :level, :cash, :xp, :health, :max_health, :attack, :defense,
			:accuracy, :evasion, :stamina, :stamina_max, :crew_id, :district_id, :hospital_until,
			:kill_streak, :best_kill_streak, datetime('now'))
	`, player)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	return int(id), err
}

// TouchLastCombat stamps last_combat_at on both parties of a new session.
func (r *Repository) TouchLastCombat(attackerID, defenderID int, now time.Time) error {
	_, err := r.db.Exec("UPDATE players SET last_combat_at = ? WHERE id = ? OR id = ?",
		now, attackerID, defenderID)
	return err
}

// Buff / injury methods

func (r *Repository) ActiveBuffModifiers(playerID int, now time.Time) (StatModifiers, error) {
	var mods StatModifiers
	err := r.db.Get(&mods, `
		SELECT COALESCE(SUM(attack_mod), 0) AS attack_mod,
			COALESCE(SUM(defense_mod), 0) AS defense_mod,
			COALESCE(SUM(accuracy_mod), 0) AS accuracy_mod,
			COALESCE(SUM(evasion_mod), 0) AS evasion_mod,
			COALESCE(SUM(max_health_mod), 0) AS max_health_mod
		FROM buffs WHERE player_id = ? AND expires_at > ?`,
		playerID, now)
	return mods, err
}

func (r *Repository) ActiveInjuryModifiers(playerID int, now time.Time) (StatModifiers, error) {
	var mods StatModifiers
	err := r.db.Get(&mods, `
		SELECT COALESCE(SUM(attack_mod), 0) AS attack_mod,
			COALESCE(SUM(defense_mod), 0) AS defense_mod,
			COALESCE(SUM(accuracy_mod), 0) AS accuracy_mod,
			COALESCE(SUM(evasion_mod), 0) AS evasion_mod,
			COALESCE(SUM(max_health_mod), 0) AS max_health_mod
		FROM injuries WHERE player_id = ? AND heals_at > ?`,
		playerID, now)
	return mods, err
}

func (r *Repository) InsertBuff(buff Buff) error {
	_, err := r.db.NamedExec(`
		INSERT INTO buffs (player_id, name, attack_mod, defense_mod, accuracy_mod,
			evasion_mod, max_health_mod, expires_at, created_at)
		VALUES (:player_id, :name, :attack_mod, :defense_mod, :accuracy_mod,
			:evasion_mod, :max_health_mod, :expires_at, datetime('now'))
	`, buff)
	return err
}

func (r *Repository) CreateInjury(injury Injury) error {
	_, err := r.db.NamedExec(`
		INSERT INTO injuries (player_id, severity, name, attack_mod, defense_mod,
			accuracy_mod, evasion_mod, max_health_mod, heals_at, source_player_id, created_at)
		VALUES (:player_id, :severity, :name, :attack_mod, :defense_mod,
			:accuracy_mod, :evasion_mod, :max_health_mod, :heals_at, :source_player_id, datetime('now'))
	`, injury)
	return err
}

// District methods

func (r *Repository) GetDistrict(districtID int) (*District, error) {
	var district District
	err := r.db.Get(&district, "SELECT * FROM districts WHERE id = ?", districtID)
	return &district, err
}

func (r *Repository) InsertDistrict(district District) (int, error) {
	result, err := r.db.NamedExec(
		"INSERT INTO districts (name, safe_zone) VALUES (:name, :safe_zone)", district)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	return int(id), err
}

// Combat session methods

func (r *Repository) GetCombatSession(sessionID int) (*CombatSession, error) {
	var session CombatSession
	err := r.db.Get(&session, "SELECT * FROM combat_sessions WHERE id = ?", sessionID)
	return &session, err
}

// GetActiveSessionForPlayer returns the player's active session on either
// side of the fight, or sql.ErrNoRows.
func (r *Repository) GetActiveSessionForPlayer(playerID int) (*CombatSession, error) {
	var session CombatSession
	err := r.db.Get(&session, `
		SELECT * FROM combat_sessions
		WHERE status = 'active' AND (attacker_id = ? OR defender_id = ?)`,
		playerID, playerID)
	return &session, err
}

func (r *Repository) InsertCombatSession(session CombatSession) (int, error) {
	result, err := r.db.NamedExec(`
		INSERT INTO combat_sessions (attacker_id, defender_id, district_id, current_round,
			max_rounds, attacker_health, defender_health, attacker_starting_health,
			defender_starting_health, last_action_at, status, combat_log, created_at)
		VALUES (:attacker_id, :defender_id, :district_id, :current_round,
			:max_rounds, :attacker_health, :defender_health, :attacker_starting_health,
			:defender_starting_health, :last_action_at, :status, :combat_log, datetime('now'))
	`, session)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	return int(id), err
}

// UpdateCombatRound persists the mutable round state of an active session.
func (r *Repository) UpdateCombatRound(session *CombatSession) error {
	_, err := r.db.NamedExec(`
		UPDATE combat_sessions
		SET current_round = :current_round,
			attacker_health = :attacker_health,
			defender_health = :defender_health,
			attacker_action = :attacker_action,
			defender_action = :defender_action,
			last_action_at = :last_action_at,
			combat_log = :combat_log
		WHERE id = :id AND status = 'active'
	`, session)
	return err
}

// GetTimedOutSessions returns active sessions whose last action predates the
// cutoff. The sweeper decides each one's fate.
func (r *Repository) GetTimedOutSessions(cutoff time.Time) ([]CombatSession, error) {
	var sessions []CombatSession
	err := r.db.Select(&sessions,
		"SELECT * FROM combat_sessions WHERE status = 'active' AND last_action_at < ?", cutoff)
	return sessions, err
}

// Cooldown methods

func (r *Repository) IsOnCooldown(attackerID, targetID int, now time.Time) (bool, error) {
	var count int
	err := r.db.Get(&count, `
		SELECT COUNT(*) FROM combat_cooldowns
		WHERE attacker_id = ? AND target_id = ? AND cooldown_until > ?`,
		attackerID, targetID, now)
	return count > 0, err
}

func (r *Repository) UpsertCooldown(attackerID, targetID int, until time.Time) error {
	_, err := r.db.Exec(`
		INSERT INTO combat_cooldowns (attacker_id, target_id, cooldown_until, created_at)
		VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(attacker_id, target_id) DO UPDATE SET cooldown_until = excluded.cooldown_until`,
		attackerID, targetID, until)
	return err
}

// Kill log / bounty methods

func (r *Repository) CountKills24h(playerID int, now time.Time) (int, error) {
	var count int
	err := r.db.Get(&count,
		"SELECT COUNT(*) FROM kill_log WHERE winner_id = ? AND created_at > ?",
		playerID, now.Add(-24*time.Hour))
	return count, err
}

func (r *Repository) HasActiveAutoBounty(playerID int, now time.Time) (bool, error) {
	var count int
	err := r.db.Get(&count,
		"SELECT COUNT(*) FROM bounties WHERE target_id = ? AND auto = TRUE AND expires_at > ?",
		playerID, now)
	return count > 0, err
}

// Combat history

func (r *Repository) GetCombatHistoryForPlayer(playerID, limit int) ([]CombatHistoryEntry, error) {
	var entries []CombatHistoryEntry
	err := r.db.Select(&entries, `
		SELECT * FROM combat_history
		WHERE attacker_id = ? OR defender_id = ?
		ORDER BY created_at DESC LIMIT ?`,
		playerID, playerID, limit)
	return entries, err
}

// Auth session methods

func (r *Repository) CreateAuthSession(token string, playerID int, expiresAt time.Time) error {
	_, err := r.db.Exec(
		"INSERT INTO sessions (token, player_id, expires_at) VALUES (?, ?, ?)",
		token, playerID, expiresAt)
	return err
}

func (r *Repository) GetPlayerBySessionToken(token string, now time.Time) (*Player, error) {
	var player Player
	err := r.db.Get(&player, `
		SELECT p.* FROM players p
		JOIN sessions s ON p.id = s.player_id
		WHERE s.token = ? AND s.expires_at > ?`,
		token, now)
	return &player, err
}

func (r *Repository) DeleteAuthSession(token string) error {
	_, err := r.db.Exec("DELETE FROM sessions WHERE token = ?", token)
	return err
}

// Settlement

// PlayerSettlement is one player's share of a settlement: the final health to
// write plus cash/XP/streak/hospital effects.
type PlayerSettlement struct {
	PlayerID       int
	Health         int
	CashDelta      int
	XPDelta        int
	BumpKillStreak bool
	ResetStreak    bool
	HospitalUntil  *time.Time
}

// SettlementUpdate is everything a terminal session writes, applied in one
// transaction by ApplySettlement.
type SettlementUpdate struct {
	SessionID      int
	Status         string
	WinnerID       *int
	LootAmount     int
	CompletedAt    time.Time
	AttackerHealth int
	DefenderHealth int
	CurrentRound   int
	CombatLog      string
	Players        []PlayerSettlement
	Injury         *Injury
	Kill           *KillLogEntry
	AutoBounty     *Bounty
	Cooldown       CombatCooldown
	History        CombatHistoryEntry
}

// ApplySettlement commits a session's terminal outcome atomically. The first
// statement flips the session out of the active status; if another caller got
// there first, nothing else runs and ErrAlreadySettled is returned. Player
// rows are always updated in ascending id order so two settlements sharing a
// player cannot deadlock.
func (r *Repository) ApplySettlement(update SettlementUpdate) error {
	tx, err := r.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var winnerID interface{}
	if update.WinnerID != nil {
		winnerID = *update.WinnerID
	}
	result, err := tx.Exec(`
		UPDATE combat_sessions
		SET status = ?, winner_id = ?, loot_amount = ?, completed_at = ?,
			attacker_health = ?, defender_health = ?, current_round = ?, combat_log = ?,
			attacker_action = NULL, defender_action = NULL
		WHERE id = ? AND status = 'active'`,
		update.Status, winnerID, update.LootAmount, update.CompletedAt,
		update.AttackerHealth, update.DefenderHealth, update.CurrentRound, update.CombatLog,
		update.SessionID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrAlreadySettled
	}

	players := make([]PlayerSettlement, len(update.Players))
	copy(players, update.Players)
	sort.Slice(players, func(i, j int) bool { return players[i].PlayerID < players[j].PlayerID })

	for _, p := range players {
		if err := applyPlayerSettlement(tx, p); err != nil {
			return fmt.Errorf("settle player %d: %w", p.PlayerID, err)
		}
	}

	if update.Injury != nil {
		_, err = tx.NamedExec(`
			INSERT INTO injuries (player_id, severity, name, attack_mod, defense_mod,
				accuracy_mod, evasion_mod, max_health_mod, heals_at, source_player_id, created_at)
			VALUES (:player_id, :severity, :name, :attack_mod, :defense_mod,
				:accuracy_mod, :evasion_mod, :max_health_mod, :heals_at, :source_player_id, datetime('now'))
		`, update.Injury)
		if err != nil {
			return err
		}
	}

	if update.Kill != nil {
		_, err = tx.Exec(
			"INSERT INTO kill_log (winner_id, loser_id, district_id, created_at) VALUES (?, ?, ?, ?)",
			update.Kill.WinnerID, update.Kill.LoserID, update.Kill.DistrictID, update.Kill.CreatedAt)
		if err != nil {
			return err
		}
	}

	if update.AutoBounty != nil {
		_, err = tx.Exec(`
			INSERT INTO bounties (target_id, amount, auto, expires_at, created_at)
			VALUES (?, ?, TRUE, ?, datetime('now'))`,
			update.AutoBounty.TargetID, update.AutoBounty.Amount, update.AutoBounty.ExpiresAt)
		if err != nil {
			return err
		}
	}

	_, err = tx.Exec(`
		INSERT INTO combat_cooldowns (attacker_id, target_id, cooldown_until, created_at)
		VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(attacker_id, target_id) DO UPDATE SET cooldown_until = excluded.cooldown_until`,
		update.Cooldown.AttackerID, update.Cooldown.TargetID, update.Cooldown.CooldownUntil)
	if err != nil {
		return err
	}

	_, err = tx.NamedExec(`
		INSERT INTO combat_history (session_id, attacker_id, defender_id, status, winner_id,
			rounds_fought, attacker_damage_dealt, defender_damage_dealt, loot_amount, xp_awarded, created_at)
		VALUES (:session_id, :attacker_id, :defender_id, :status, :winner_id,
			:rounds_fought, :attacker_damage_dealt, :defender_damage_dealt, :loot_amount, :xp_awarded, datetime('now'))
	`, update.History)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func applyPlayerSettlement(tx *sqlx.Tx, p PlayerSettlement) error {
	_, err := tx.Exec(`
		UPDATE players
		SET health = ?, cash = cash + ?, xp = xp + ?
		WHERE id = ?`,
		p.Health, p.CashDelta, p.XPDelta, p.PlayerID)
	if err != nil {
		return err
	}
	if p.BumpKillStreak {
		_, err = tx.Exec(`
			UPDATE players
			SET kill_streak = kill_streak + 1,
				best_kill_streak = MAX(best_kill_streak, kill_streak + 1)
			WHERE id = ?`, p.PlayerID)
		if err != nil {
			return err
		}
	}
	if p.ResetStreak {
		_, err = tx.Exec("UPDATE players SET kill_streak = 0 WHERE id = ?", p.PlayerID)
		if err != nil {
			return err
		}
	}
	if p.HospitalUntil != nil {
		_, err = tx.Exec("UPDATE players SET hospital_until = ? WHERE id = ?",
			*p.HospitalUntil, p.PlayerID)
		if err != nil {
			return err
		}
	}
	return nil
}
