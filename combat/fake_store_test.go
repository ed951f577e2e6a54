package combat

import (
	"database/sql"
	"time"

	"streetlegacy/database"
)

// fakeStore is an in-memory Store for engine tests. It mirrors the repository
// semantics the engine relies on: sql.ErrNoRows for missing rows and the
// active-status guard in ApplySettlement.
type fakeStore struct {
	players   map[int]*database.Player
	buffs     map[int]database.StatModifiers
	injuries  map[int]database.StatModifiers
	districts map[int]*database.District
	sessions  map[int]*database.CombatSession
	cooldowns map[[2]int]time.Time
	kills24h  map[int]int
	bounties  map[int]bool

	nextSessionID int
	settled       []database.SettlementUpdate
	roundUpdates  int
	touched       [][2]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		players:       make(map[int]*database.Player),
		buffs:         make(map[int]database.StatModifiers),
		injuries:      make(map[int]database.StatModifiers),
		districts:     map[int]*database.District{1: {ID: 1, Name: "Downtown"}},
		sessions:      make(map[int]*database.CombatSession),
		cooldowns:     make(map[[2]int]time.Time),
		kills24h:      make(map[int]int),
		bounties:      make(map[int]bool),
		nextSessionID: 1,
	}
}

func (f *fakeStore) addPlayer(p database.Player) *database.Player {
	cp := p
	f.players[p.ID] = &cp
	return &cp
}

func (f *fakeStore) addSession(s database.CombatSession) *database.CombatSession {
	cp := s
	if cp.CombatLog == "" {
		cp.CombatLog = "[]"
	}
	f.sessions[s.ID] = &cp
	return &cp
}

func (f *fakeStore) GetPlayer(playerID int) (*database.Player, error) {
	p, ok := f.players[playerID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return p, nil
}

func (f *fakeStore) TouchLastCombat(attackerID, defenderID int, now time.Time) error {
	f.touched = append(f.touched, [2]int{attackerID, defenderID})
	return nil
}

func (f *fakeStore) ActiveBuffModifiers(playerID int, now time.Time) (database.StatModifiers, error) {
	return f.buffs[playerID], nil
}

func (f *fakeStore) ActiveInjuryModifiers(playerID int, now time.Time) (database.StatModifiers, error) {
	return f.injuries[playerID], nil
}

func (f *fakeStore) GetDistrict(districtID int) (*database.District, error) {
	d, ok := f.districts[districtID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return d, nil
}

func (f *fakeStore) GetCombatSession(sessionID int) (*database.CombatSession, error) {
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return s, nil
}

func (f *fakeStore) GetActiveSessionForPlayer(playerID int) (*database.CombatSession, error) {
	for _, s := range f.sessions {
		if s.Status == database.StatusActive && (s.AttackerID == playerID || s.DefenderID == playerID) {
			return s, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeStore) InsertCombatSession(session database.CombatSession) (int, error) {
	id := f.nextSessionID
	f.nextSessionID++
	session.ID = id
	f.sessions[id] = &session
	return id, nil
}

func (f *fakeStore) UpdateCombatRound(session *database.CombatSession) error {
	f.roundUpdates++
	f.sessions[session.ID] = session
	return nil
}

func (f *fakeStore) GetTimedOutSessions(cutoff time.Time) ([]database.CombatSession, error) {
	var out []database.CombatSession
	for _, s := range f.sessions {
		if s.Status == database.StatusActive && s.LastActionAt.Before(cutoff) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeStore) IsOnCooldown(attackerID, targetID int, now time.Time) (bool, error) {
	until, ok := f.cooldowns[[2]int{attackerID, targetID}]
	return ok && until.After(now), nil
}

func (f *fakeStore) CountKills24h(playerID int, now time.Time) (int, error) {
	return f.kills24h[playerID], nil
}

func (f *fakeStore) HasActiveAutoBounty(playerID int, now time.Time) (bool, error) {
	return f.bounties[playerID], nil
}

func (f *fakeStore) ApplySettlement(update database.SettlementUpdate) error {
	s, ok := f.sessions[update.SessionID]
	if !ok || s.Status != database.StatusActive {
		return database.ErrAlreadySettled
	}
	s.Status = update.Status
	s.LootAmount = update.LootAmount
	s.AttackerHealth = update.AttackerHealth
	s.DefenderHealth = update.DefenderHealth
	s.CurrentRound = update.CurrentRound
	s.CombatLog = update.CombatLog
	s.AttackerAction = sql.NullString{}
	s.DefenderAction = sql.NullString{}
	if update.WinnerID != nil {
		s.WinnerID = sql.NullInt64{Int64: int64(*update.WinnerID), Valid: true}
	}
	f.cooldowns[[2]int{update.Cooldown.AttackerID, update.Cooldown.TargetID}] = update.Cooldown.CooldownUntil
	for _, p := range update.Players {
		if player, ok := f.players[p.PlayerID]; ok {
			player.Health = p.Health
			player.Cash += p.CashDelta
			player.XP += p.XPDelta
			if p.BumpKillStreak {
				player.KillStreak++
				if player.KillStreak > player.BestKillStreak {
					player.BestKillStreak = player.KillStreak
				}
			}
			if p.ResetStreak {
				player.KillStreak = 0
			}
			if p.HospitalUntil != nil {
				player.HospitalUntil = sql.NullTime{Time: *p.HospitalUntil, Valid: true}
			}
		}
	}
	f.settled = append(f.settled, update)
	return nil
}

// scriptedRoller replays a fixed sequence of rolls, cycling when exhausted.
type scriptedRoller struct {
	vals []float64
	i    int
}

func (r *scriptedRoller) Float64() float64 {
	v := r.vals[r.i%len(r.vals)]
	r.i++
	return v
}
