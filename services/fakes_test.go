package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/yufr007/seacaster-sub001/ledger"
	"github.com/yufr007/seacaster-sub001/metrics"
	"github.com/yufr007/seacaster-sub001/models"
	"github.com/yufr007/seacaster-sub001/realtime"
	"github.com/yufr007/seacaster-sub001/repositories"
)

// fakeStore - хранилище в памяти, воспроизводящее транзакционные гарантии
// настоящих репозиториев: допуск и приём результата атомарны под одним мьютексом.
type fakeStore struct {
	mu          sync.Mutex
	tournaments map[int]*models.Tournament
	entries     map[int]map[int]*models.Entry
	events      []models.ScoreEvent

	nextTournamentID int
	nextEntryID      int
	nextEventID      int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tournaments: make(map[int]*models.Tournament),
		entries:     make(map[int]map[int]*models.Entry),
	}
}

func copyTournament(t *models.Tournament) *models.Tournament {
	c := *t
	c.PayoutCurve = append([]float64(nil), t.PayoutCurve...)
	return &c
}

func (s *fakeStore) Create(ctx context.Context, t *models.Tournament) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTournamentID++
	t.ID = s.nextTournamentID
	t.CreatedAt = time.Now()
	s.tournaments[t.ID] = copyTournament(t)
	s.entries[t.ID] = make(map[int]*models.Entry)
	return nil
}

func (s *fakeStore) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	return copyTournament(t), nil
}

func (s *fakeStore) List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Tournament, 0)
	for _, t := range s.tournaments {
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		if filter.Kind != nil && t.Kind != *filter.Kind {
			continue
		}
		out = append(out, *copyTournament(t))
	}
	return out, nil
}

func (s *fakeStore) TransitionStatus(ctx context.Context, id int, from, to models.TournamentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tournaments[id]
	if !ok || t.Status != from {
		return repositories.ErrStaleTransition
	}
	t.Status = to
	return nil
}

func (s *fakeStore) ListDueForTransition(ctx context.Context, now time.Time) ([]*models.Tournament, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	due := make([]*models.Tournament, 0)
	for _, t := range s.tournaments {
		switch {
		case t.Status == models.StatusOpen && !now.Before(t.StartTime):
			due = append(due, copyTournament(t))
		case t.Status == models.StatusLive && !now.Before(t.EndTime):
			due = append(due, copyTournament(t))
		}
	}
	return due, nil
}

func (s *fakeStore) CreateEntry(ctx context.Context, tournamentID, playerID int, method models.EntryMethod) (*models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tournaments[tournamentID]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	if t.Status != models.StatusOpen {
		return nil, repositories.ErrTournamentNotOpen
	}
	if t.EntryCount >= t.Capacity {
		return nil, repositories.ErrCapacityExceeded
	}
	if _, dup := s.entries[tournamentID][playerID]; dup {
		return nil, repositories.ErrAlreadyEntered
	}

	s.nextEntryID++
	entry := &models.Entry{
		ID:           s.nextEntryID,
		TournamentID: tournamentID,
		PlayerID:     playerID,
		EntryMethod:  method,
		EnteredAt:    time.Now(),
	}
	s.entries[tournamentID][playerID] = entry
	t.EntryCount++
	c := *entry
	return &c, nil
}

func (s *fakeStore) GetByTournamentAndPlayer(ctx context.Context, tournamentID, playerID int) (*models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[tournamentID][playerID]
	if !ok {
		return nil, repositories.ErrEntryNotFound
	}
	c := *entry
	return &c, nil
}

func (s *fakeStore) ListByTournament(ctx context.Context, tournamentID int) ([]models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Entry, 0, len(s.entries[tournamentID]))
	for _, entry := range s.entries[tournamentID] {
		out = append(out, *entry)
	}
	return out, nil
}

func (s *fakeStore) AppendScore(ctx context.Context, tournamentID, playerID int, score float64, submittedAt time.Time) (*models.ScoreEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tournaments[tournamentID]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	if t.Status != models.StatusLive {
		return nil, repositories.ErrTournamentNotLive
	}
	entry, ok := s.entries[tournamentID][playerID]
	if !ok {
		return nil, repositories.ErrNoSuchEntry
	}

	t.LastSequence++
	s.nextEventID++
	event := models.ScoreEvent{
		ID:             s.nextEventID,
		TournamentID:   tournamentID,
		PlayerID:       playerID,
		Score:          score,
		SubmittedAt:    submittedAt,
		SequenceNumber: t.LastSequence,
	}
	s.events = append(s.events, event)

	switch t.ScoringMode {
	case models.ScoringCumulative:
		entry.BestScore += score
		entry.BestScoreSeq = event.SequenceNumber
	default:
		if score > entry.BestScore {
			entry.BestScore = score
			entry.BestScoreSeq = event.SequenceNumber
		}
	}
	return &event, nil
}

func (s *fakeStore) ListScores(tournamentID int) []models.ScoreEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ScoreEvent, 0)
	for _, e := range s.events {
		if e.TournamentID == tournamentID {
			out = append(out, e)
		}
	}
	return out
}

// scoreRepoAdapter дотягивает fakeStore до интерфейса ScoreRepository.
type scoreRepoAdapter struct{ store *fakeStore }

func (a scoreRepoAdapter) AppendScore(ctx context.Context, tournamentID, playerID int, score float64, submittedAt time.Time) (*models.ScoreEvent, error) {
	return a.store.AppendScore(ctx, tournamentID, playerID, score, submittedAt)
}

func (a scoreRepoAdapter) ListByTournament(ctx context.Context, tournamentID int, limit int) ([]models.ScoreEvent, error) {
	events := a.store.ListScores(tournamentID)
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

type fakePayoutRepo struct {
	mu      sync.Mutex
	settled map[int]bool
	payouts map[string]*models.Payout
	order   []string
}

func newFakePayoutRepo() *fakePayoutRepo {
	return &fakePayoutRepo{
		settled: make(map[int]bool),
		payouts: make(map[string]*models.Payout),
	}
}

func (r *fakePayoutRepo) RecordPayouts(ctx context.Context, tournamentID int, payouts []models.Payout) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.settled[tournamentID] {
		return repositories.ErrAlreadySettled
	}
	r.settled[tournamentID] = true
	for _, p := range payouts {
		c := p
		c.CreatedAt = time.Now()
		r.payouts[p.ID] = &c
		r.order = append(r.order, p.ID)
	}
	return nil
}

func (r *fakePayoutRepo) UpdateStatus(ctx context.Context, payoutID string, status models.PayoutStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payouts[payoutID]
	if !ok {
		return repositories.ErrPayoutNotFound
	}
	p.Status = status
	return nil
}

func (r *fakePayoutRepo) ListByTournament(ctx context.Context, tournamentID int) ([]models.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Payout, 0)
	for _, id := range r.order {
		if r.payouts[id].TournamentID == tournamentID {
			out = append(out, *r.payouts[id])
		}
	}
	return out, nil
}

type ledgerCall struct {
	PlayerID int
	Amount   float64
}

type fakeLedger struct {
	mu           sync.Mutex
	authorizeErr error
	// payoutFailures fails that many Payout calls before succeeding.
	payoutFailures int
	authorized     []ledgerCall
	transferred    []ledgerCall
}

func (l *fakeLedger) Authorize(ctx context.Context, playerID int, amount float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.authorizeErr != nil {
		return l.authorizeErr
	}
	l.authorized = append(l.authorized, ledgerCall{playerID, amount})
	return nil
}

func (l *fakeLedger) Payout(ctx context.Context, playerID int, amount float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.payoutFailures > 0 {
		l.payoutFailures--
		return ledger.ErrTransferFailed
	}
	l.transferred = append(l.transferred, ledgerCall{playerID, amount})
	return nil
}

func (l *fakeLedger) transferCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.transferred)
}

type fakeBroadcaster struct {
	mu       sync.Mutex
	messages map[int][]realtime.ServerMessage
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{messages: make(map[int][]realtime.ServerMessage)}
}

func (b *fakeBroadcaster) BroadcastToRoom(tournamentID int, message realtime.ServerMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	message.TournamentID = tournamentID
	b.messages[tournamentID] = append(b.messages[tournamentID], message)
}

func (b *fakeBroadcaster) RoomSize(tournamentID int) int { return 0 }

func (b *fakeBroadcaster) byType(tournamentID int, eventType string) []realtime.ServerMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]realtime.ServerMessage, 0)
	for _, m := range b.messages[tournamentID] {
		if m.Type == eventType {
			out = append(out, m)
		}
	}
	return out
}

// testEnv собирает сервисы на фейках с управляемыми часами.
type testEnv struct {
	store   *fakeStore
	payouts *fakePayoutRepo
	ledger  *fakeLedger
	hub     *fakeBroadcaster

	leaderboards *LeaderboardService
	tournaments  *TournamentService
	settlement   *SettlementService

	mu  sync.Mutex
	now time.Time
}

func newTestEnv() *testEnv {
	env := &testEnv{
		store:   newFakeStore(),
		payouts: newFakePayoutRepo(),
		ledger:  &fakeLedger{},
		hub:     newFakeBroadcaster(),
		now:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.leaderboards = NewLeaderboardService(env.store)
	env.settlement = NewSettlementService(
		env.store,
		env.payouts,
		env.leaderboards,
		env.ledger,
		env.hub,
		nil,
		metrics.NewManagerWith(prometheus.NewRegistry(), "test"),
		logger,
	).WithClock(env.clock).WithRetryBaseDelay(time.Millisecond)
	env.tournaments = NewTournamentService(
		env.store,
		env.store,
		scoreRepoAdapter{env.store},
		env.leaderboards,
		env.ledger,
		env.hub,
		env.settlement,
		metrics.NewManagerWith(prometheus.NewRegistry(), "test"),
		logger,
		100000,
		time.Second,
	).WithClock(env.clock)
	return env
}

func (env *testEnv) clock() time.Time {
	env.mu.Lock()
	defer env.mu.Unlock()
	return env.now
}

// createTournament создает открытый турнир, стартующий через час.
func (env *testEnv) createTournament(ctx context.Context, mutate func(*CreateTournamentInput)) (*models.Tournament, error) {
	input := CreateTournamentInput{
		Name:            "midnight reef cup",
		Kind:            models.KindDaily,
		EntryFee:        5,
		PrizePool:       100,
		HouseCutPercent: 10,
		Capacity:        10,
		StartTime:       env.clock().Add(time.Hour),
		EndTime:         env.clock().Add(25 * time.Hour),
		PayoutCurve:     []float64{80, 20},
	}
	if mutate != nil {
		mutate(&input)
	}
	return env.tournaments.CreateTournament(ctx, input)
}

// startTournament прокручивает часы за start_time и проводит развёртку.
func (env *testEnv) startTournament(ctx context.Context, t *models.Tournament) error {
	env.mu.Lock()
	if env.now.Before(t.StartTime) {
		env.now = t.StartTime.Add(time.Second)
	}
	env.mu.Unlock()
	return env.tournaments.SweepStatuses(ctx)
}

// endTournament прокручивает часы за end_time и проводит развёртку.
func (env *testEnv) endTournament(ctx context.Context, t *models.Tournament) error {
	env.mu.Lock()
	if env.now.Before(t.EndTime) {
		env.now = t.EndTime.Add(time.Second)
	}
	env.mu.Unlock()
	return env.tournaments.SweepStatuses(ctx)
}
