package database

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := sqlx.Connect("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// :memory: is per-connection; keep the pool on one.
	db.SetMaxOpenConns(1)
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRepository(db)
}

func seedPlayer(t *testing.T, r *Repository, username string) int {
	t.Helper()
	id, err := r.InsertPlayer(Player{
		Username: username, Level: 10, Cash: 1000, Health: 100, MaxHealth: 100,
		Attack: 30, Defense: 20, Accuracy: 60, Evasion: 20,
		Stamina: 80, StaminaMax: 100, DistrictID: 1,
	})
	if err != nil {
		t.Fatalf("insert player %s: %v", username, err)
	}
	return id
}

func seedSession(t *testing.T, r *Repository, attackerID, defenderID int, lastAction time.Time) int {
	t.Helper()
	id, err := r.InsertCombatSession(CombatSession{
		AttackerID: attackerID, DefenderID: defenderID, DistrictID: 1,
		CurrentRound: 1, MaxRounds: 10,
		AttackerHealth: 100, DefenderHealth: 100,
		AttackerStartingHealth: 100, DefenderStartingHealth: 100,
		LastActionAt: lastAction, Status: StatusActive, CombatLog: "[]",
	})
	if err != nil {
		t.Fatalf("insert session: %v", err)
	}
	return id
}

func TestPlayerRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	id := seedPlayer(t, repo, "vince")

	player, err := repo.GetPlayer(id)
	if err != nil {
		t.Fatalf("get player: %v", err)
	}
	if player.Username != "vince" || player.Cash != 1000 || player.MaxHealth != 100 {
		t.Fatalf("player: %+v", player)
	}

	byName, err := repo.GetPlayerByUsername("vince")
	if err != nil || byName.ID != id {
		t.Fatalf("by username: %+v err=%v", byName, err)
	}

	if _, err := repo.GetPlayer(999); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("missing player: got %v", err)
	}
}

func TestActiveModifierSums(t *testing.T) {
	repo := newTestRepo(t)
	id := seedPlayer(t, repo, "vince")
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	buffs := []Buff{
		{PlayerID: id, Name: "Adrenaline", AttackMod: 5, AccuracyMod: 3, ExpiresAt: now.Add(time.Hour)},
		{PlayerID: id, Name: "Painkillers", DefenseMod: 4, ExpiresAt: now.Add(30 * time.Minute)},
		{PlayerID: id, Name: "Stale", AttackMod: 100, ExpiresAt: now.Add(-time.Minute)},
	}
	for _, b := range buffs {
		if err := repo.InsertBuff(b); err != nil {
			t.Fatalf("insert buff: %v", err)
		}
	}

	mods, err := repo.ActiveBuffModifiers(id, now)
	if err != nil {
		t.Fatalf("buff mods: %v", err)
	}
	want := StatModifiers{Attack: 5, Defense: 4, Accuracy: 3}
	if mods != want {
		t.Fatalf("buff mods = %+v, want %+v", mods, want)
	}

	injuries := []Injury{
		{PlayerID: id, Severity: 3, Name: "Fractured Ribs", AttackMod: -5, DefenseMod: -3,
			MaxHealthMod: -10, HealsAt: now.Add(4 * time.Hour), SourcePlayerID: 2},
		{PlayerID: id, Severity: 1, Name: "Bruised", AttackMod: -1,
			HealsAt: now.Add(-time.Hour), SourcePlayerID: 2},
	}
	for _, inj := range injuries {
		if err := repo.CreateInjury(inj); err != nil {
			t.Fatalf("insert injury: %v", err)
		}
	}

	mods, err = repo.ActiveInjuryModifiers(id, now)
	if err != nil {
		t.Fatalf("injury mods: %v", err)
	}
	want = StatModifiers{Attack: -5, Defense: -3, MaxHealth: -10}
	if mods != want {
		t.Fatalf("injury mods = %+v, want %+v", mods, want)
	}

	// No rows at all still scans to zeros.
	mods, err = repo.ActiveBuffModifiers(999, now)
	if err != nil || mods != (StatModifiers{}) {
		t.Fatalf("empty mods = %+v err=%v", mods, err)
	}
}

func TestCooldownUpsert(t *testing.T) {
	repo := newTestRepo(t)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	if err := repo.UpsertCooldown(1, 2, now.Add(10*time.Minute)); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	// Same pair again must overwrite, not violate the unique constraint.
	if err := repo.UpsertCooldown(1, 2, now.Add(30*time.Minute)); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	on, err := repo.IsOnCooldown(1, 2, now.Add(20*time.Minute))
	if err != nil || !on {
		t.Fatalf("on=%v err=%v, want cooldown active at +20m", on, err)
	}
	on, err = repo.IsOnCooldown(1, 2, now.Add(31*time.Minute))
	if err != nil || on {
		t.Fatalf("on=%v err=%v, want cooldown expired at +31m", on, err)
	}
	on, err = repo.IsOnCooldown(2, 1, now)
	if err != nil || on {
		t.Fatalf("cooldown is directional, reverse pair should be clear")
	}
}

func TestSessionQueries(t *testing.T) {
	repo := newTestRepo(t)
	attackerID := seedPlayer(t, repo, "vince")
	defenderID := seedPlayer(t, repo, "marco")
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	id := seedSession(t, repo, attackerID, defenderID, now)

	session, err := repo.GetCombatSession(id)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if session.Status != StatusActive || session.CombatLog != "[]" {
		t.Fatalf("session: %+v", session)
	}

	for _, playerID := range []int{attackerID, defenderID} {
		got, err := repo.GetActiveSessionForPlayer(playerID)
		if err != nil || got.ID != id {
			t.Fatalf("active session for %d: %+v err=%v", playerID, got, err)
		}
	}
	if _, err := repo.GetActiveSessionForPlayer(999); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("uninvolved player: got %v", err)
	}

	session.CurrentRound = 2
	session.AttackerHealth = 70
	session.AttackerAction = sql.NullString{String: "attack", Valid: true}
	session.LastActionAt = now.Add(time.Minute)
	session.CombatLog = `[{"round":1}]`
	if err := repo.UpdateCombatRound(session); err != nil {
		t.Fatalf("update round: %v", err)
	}

	got, err := repo.GetCombatSession(id)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.CurrentRound != 2 || got.AttackerHealth != 70 || !got.AttackerAction.Valid {
		t.Fatalf("round state not persisted: %+v", got)
	}

	stale, err := repo.GetTimedOutSessions(now.Add(2 * time.Minute))
	if err != nil || len(stale) != 1 {
		t.Fatalf("stale=%d err=%v, want the idle session", len(stale), err)
	}
	stale, err = repo.GetTimedOutSessions(now)
	if err != nil || len(stale) != 0 {
		t.Fatalf("stale=%d err=%v, want none before the cutoff", len(stale), err)
	}
}

func TestOneActiveSessionPerPlayer(t *testing.T) {
	repo := newTestRepo(t)
	attackerID := seedPlayer(t, repo, "vince")
	defenderID := seedPlayer(t, repo, "marco")
	thirdID := seedPlayer(t, repo, "sal")
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	seedSession(t, repo, attackerID, defenderID, now)

	_, err := repo.InsertCombatSession(CombatSession{
		AttackerID: attackerID, DefenderID: thirdID, DistrictID: 1,
		CurrentRound: 1, MaxRounds: 10,
		AttackerHealth: 100, DefenderHealth: 100,
		AttackerStartingHealth: 100, DefenderStartingHealth: 100,
		LastActionAt: now, Status: StatusActive, CombatLog: "[]",
	})
	if err == nil {
		t.Fatal("second active session for the same attacker must hit the unique index")
	}
}

func TestApplySettlementIsAtomicAndIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	winnerID := seedPlayer(t, repo, "vince")
	loserID := seedPlayer(t, repo, "marco")
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	sessionID := seedSession(t, repo, winnerID, loserID, now)

	hospital := now.Add(30 * time.Minute)
	update := SettlementUpdate{
		SessionID:      sessionID,
		Status:         StatusAttackerWon,
		WinnerID:       &winnerID,
		LootAmount:     150,
		CompletedAt:    now,
		AttackerHealth: 60,
		DefenderHealth: 0,
		CurrentRound:   4,
		CombatLog:      `[{"round":1}]`,
		Players: []PlayerSettlement{
			{PlayerID: winnerID, Health: 60, CashDelta: 150, XPDelta: 170, BumpKillStreak: true},
			{PlayerID: loserID, Health: 0, CashDelta: -150, ResetStreak: true, HospitalUntil: &hospital},
		},
		Injury: &Injury{PlayerID: loserID, Severity: 4, Name: "Broken Leg",
			HealsAt: now.Add(8 * time.Hour), SourcePlayerID: winnerID},
		Kill: &KillLogEntry{WinnerID: winnerID, LoserID: loserID, DistrictID: 1, CreatedAt: now},
		AutoBounty: &Bounty{TargetID: winnerID, Amount: 5000, Auto: true,
			ExpiresAt: now.Add(7 * 24 * time.Hour)},
		Cooldown: CombatCooldown{AttackerID: winnerID, TargetID: loserID,
			CooldownUntil: now.Add(30 * time.Minute)},
		History: CombatHistoryEntry{SessionID: sessionID, AttackerID: winnerID,
			DefenderID: loserID, Status: StatusAttackerWon, RoundsFought: 4,
			AttackerDamageDealt: 100, DefenderDamageDealt: 40, LootAmount: 150, XPAwarded: 170},
	}
	update.History.WinnerID = sql.NullInt64{Int64: int64(winnerID), Valid: true}

	if err := repo.ApplySettlement(update); err != nil {
		t.Fatalf("apply: %v", err)
	}

	session, err := repo.GetCombatSession(sessionID)
	if err != nil {
		t.Fatalf("reload session: %v", err)
	}
	if session.Status != StatusAttackerWon || !session.WinnerID.Valid ||
		int(session.WinnerID.Int64) != winnerID || session.LootAmount != 150 {
		t.Fatalf("session: %+v", session)
	}
	if session.AttackerAction.Valid || session.DefenderAction.Valid {
		t.Fatal("terminal session must clear pending actions")
	}
	if !session.CompletedAt.Valid {
		t.Fatal("completed_at not set")
	}

	winner, err := repo.GetPlayer(winnerID)
	if err != nil {
		t.Fatal(err)
	}
	if winner.Cash != 1150 || winner.XP != 170 || winner.KillStreak != 1 || winner.BestKillStreak != 1 {
		t.Fatalf("winner: %+v", winner)
	}
	loser, err := repo.GetPlayer(loserID)
	if err != nil {
		t.Fatal(err)
	}
	if loser.Cash != 850 || loser.Health != 0 || loser.KillStreak != 0 {
		t.Fatalf("loser: %+v", loser)
	}
	if !loser.IsHospitalized(now) {
		t.Fatal("loser should be hospitalized")
	}

	kills, err := repo.CountKills24h(winnerID, now)
	if err != nil || kills != 1 {
		t.Fatalf("kills=%d err=%v", kills, err)
	}
	hasBounty, err := repo.HasActiveAutoBounty(winnerID, now)
	if err != nil || !hasBounty {
		t.Fatalf("bounty=%v err=%v", hasBounty, err)
	}
	on, err := repo.IsOnCooldown(winnerID, loserID, now)
	if err != nil || !on {
		t.Fatalf("cooldown=%v err=%v", on, err)
	}
	history, err := repo.GetCombatHistoryForPlayer(winnerID, 10)
	if err != nil || len(history) != 1 {
		t.Fatalf("history=%d err=%v", len(history), err)
	}
	if history[0].XPAwarded != 170 || history[0].AttackerDamageDealt != 100 {
		t.Fatalf("history row: %+v", history[0])
	}

	// A racing second settlement must change nothing.
	if err := repo.ApplySettlement(update); !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("second apply: got %v, want ErrAlreadySettled", err)
	}
	winner, _ = repo.GetPlayer(winnerID)
	if winner.Cash != 1150 || winner.KillStreak != 1 {
		t.Fatalf("second apply leaked side effects: %+v", winner)
	}
	history, _ = repo.GetCombatHistoryForPlayer(winnerID, 10)
	if len(history) != 1 {
		t.Fatalf("duplicate history rows: %d", len(history))
	}
}

func TestCountKills24hWindow(t *testing.T) {
	repo := newTestRepo(t)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	rows := []KillLogEntry{
		{WinnerID: 1, LoserID: 2, DistrictID: 1, CreatedAt: now.Add(-time.Hour)},
		{WinnerID: 1, LoserID: 3, DistrictID: 1, CreatedAt: now.Add(-23 * time.Hour)},
		{WinnerID: 1, LoserID: 4, DistrictID: 1, CreatedAt: now.Add(-25 * time.Hour)},
		{WinnerID: 9, LoserID: 2, DistrictID: 1, CreatedAt: now},
	}
	for _, k := range rows {
		_, err := repo.db.Exec(
			"INSERT INTO kill_log (winner_id, loser_id, district_id, created_at) VALUES (?, ?, ?, ?)",
			k.WinnerID, k.LoserID, k.DistrictID, k.CreatedAt)
		if err != nil {
			t.Fatalf("seed kill: %v", err)
		}
	}

	kills, err := repo.CountKills24h(1, now)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if kills != 2 {
		t.Fatalf("kills = %d, want 2 inside the window", kills)
	}
}

func TestAuthSessions(t *testing.T) {
	repo := newTestRepo(t)
	id := seedPlayer(t, repo, "vince")
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	if err := repo.CreateAuthSession("tok-1", id, now.Add(time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}
	player, err := repo.GetPlayerBySessionToken("tok-1", now)
	if err != nil || player.ID != id {
		t.Fatalf("lookup: %+v err=%v", player, err)
	}

	if _, err := repo.GetPlayerBySessionToken("tok-1", now.Add(2*time.Hour)); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expired token: got %v", err)
	}
	if err := repo.DeleteAuthSession("tok-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetPlayerBySessionToken("tok-1", now); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("deleted token: got %v", err)
	}
}
