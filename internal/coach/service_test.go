package coach

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/moodcoach/internal/domain"
	"github.com/ashureev/moodcoach/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// fakeRepo is an in-memory store.Repository.
type fakeRepo struct {
	mu            sync.Mutex
	moods         map[string][]domain.MoodEntry
	turns         map[string][]domain.ConversationTurn
	interventions map[string][]domain.InterventionRecord
	appendErr     error
	loads         int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		moods:         map[string][]domain.MoodEntry{},
		turns:         map[string][]domain.ConversationTurn{},
		interventions: map[string][]domain.InterventionRecord{},
	}
}

func (r *fakeRepo) GetUser(context.Context, string) (*domain.User, error) { return nil, nil }
func (r *fakeRepo) UpsertUser(context.Context, *domain.User) error { return nil }
func (r *fakeRepo) UpdateLastSeen(context.Context, string, time.Time) error {
	return nil
}

func (r *fakeRepo) InsertMoodEntry(_ context.Context, e *domain.MoodEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.moods[e.UserID] = append(r.moods[e.UserID], *e)
	return nil
}

func (r *fakeRepo) ListMoodEntries(ctx context.Context, userID string) ([]domain.MoodEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads++
	return append([]domain.MoodEntry(nil), r.moods[userID]...), nil
}

func (r *fakeRepo) AppendTurns(_ context.Context, userID string, turns []domain.ConversationTurn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return r.appendErr
	}
	r.turns[userID] = append(r.turns[userID], turns...)
	return nil
}

func (r *fakeRepo) ListRecentTurns(_ context.Context, userID string, limit int) ([]domain.ConversationTurn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	turns := r.turns[userID]
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return append([]domain.ConversationTurn(nil), turns...), nil
}

func (r *fakeRepo) InsertInterventionRecord(_ context.Context, userID string, rec *domain.InterventionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interventions[userID] = append(r.interventions[userID], *rec)
	return nil
}

func (r *fakeRepo) ListInterventionRecords(_ context.Context, userID string) ([]domain.InterventionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.InterventionRecord(nil), r.interventions[userID]...), nil
}

func (r *fakeRepo) PruneTurns(context.Context, int) (int64, error) { return 0, nil }
func (r *fakeRepo) Ping(context.Context) error { return nil }
func (r *fakeRepo) Close() error { return nil }

type fakeClassifier struct {
	analysis domain.Analysis
	err      error
	calls    int
}

func (f *fakeClassifier) Classify(context.Context, string, PatternProfile) (domain.Analysis, error) {
	f.calls++
	return f.analysis, f.err
}

type fakeGenerator struct {
	reply        string
	err          error
	calls        int
	systemPrompt string
	history      []domain.ConversationTurn
}

func (f *fakeGenerator) Generate(_ context.Context, systemPrompt string, history []domain.ConversationTurn, _ string) (string, error) {
	f.calls++
	f.systemPrompt = systemPrompt
	f.history = history
	return f.reply, f.err
}

var testNow = time.Date(2026, 3, 2, 20, 10, 0, 0, time.UTC)

func newTestService(repo *fakeRepo, c Classifier, g Generator) *Service {
	return NewService(repo, c, g, Options{
		Location: time.UTC,
		Selector: NewSelector(DefaultCatalog(), rand.NewPCG(7, 7)),
		Now:      func() time.Time { return testNow },
	})
}

func TestSubmitMessage_PatternBasedSupport(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	for _, e := range []domain.MoodEntry{
		entryAt("stressed", "work", 7, 20),
		entryAt("stressed", "work", 8, 20),
		entryAt("stressed", "work", 6, 20),
	} {
		repo.moods["u1"] = append(repo.moods["u1"], e)
	}
	classifier := &fakeClassifier{analysis: domain.Analysis{
		PrimaryEmotion: "Stressed", Intensity: 6, Triggers: []string{"work"}, EatingUrge: 5, RiskLevel: "medium",
	}}
	generator := &fakeGenerator{reply: "That sounds like a lot."}
	svc := newTestService(repo, classifier, generator)

	res, err := svc.SubmitMessage(context.Background(), "u1", "Work is crushing me again")
	if err != nil {
		t.Fatalf("SubmitMessage failed: %v", err)
	}
	if res.Action == nil || res.Action.Type != domain.ActionPatternBasedSupport {
		t.Fatalf("expected pattern_based_support, got %+v", res.Action)
	}
	if res.Emotion != "stressed" {
		t.Fatalf("expected normalized emotion, got %q", res.Emotion)
	}
	if res.Reply != "That sounds like a lot." {
		t.Fatalf("unexpected reply %q", res.Reply)
	}
	if res.Intervention == "" {
		t.Fatal("expected an intervention")
	}
	if len(res.Insights) == 0 || len(res.Recommendations) == 0 {
		t.Fatalf("expected insights and recommendations, got %v / %v", res.Insights, res.Recommendations)
	}
	if !strings.Contains(generator.systemPrompt, "work") {
		t.Fatal("expected profile in system prompt")
	}
	if len(generator.history) == 0 || generator.history[0].Content != knownTriggerHint {
		t.Fatalf("expected known trigger hint, got %+v", generator.history)
	}

	turns := repo.turns["u1"]
	if len(turns) != 2 || turns[1].ActionType != domain.ActionPatternBasedSupport {
		t.Fatalf("expected persisted tagged turns, got %+v", turns)
	}
}

func TestSubmitMessage_CrisisShortCircuits(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	classifier := &fakeClassifier{}
	generator := &fakeGenerator{reply: "unused"}
	svc := newTestService(repo, classifier, generator)

	res, err := svc.SubmitMessage(context.Background(), "u1", "I want to kill myself")
	if err != nil {
		t.Fatalf("SubmitMessage failed: %v", err)
	}
	if !res.RequiresEscalation || res.Category != CategoryCrisis {
		t.Fatalf("expected crisis escalation, got %+v", res)
	}
	if res.Action != nil || res.Intervention != "" {
		t.Fatalf("expected no action or intervention, got %+v", res)
	}
	if len(res.Resources) == 0 || res.Message == "" {
		t.Fatal("expected resources and message")
	}
	if classifier.calls != 0 || generator.calls != 0 {
		t.Fatalf("external services called on escalation: classify=%d generate=%d", classifier.calls, generator.calls)
	}
}

func TestSubmitMessage_ClassifierFailureFallsBack(t *testing.T) {
	t.Parallel()

	svc := newTestService(newFakeRepo(), &fakeClassifier{err: errors.New("timeout")}, &fakeGenerator{reply: "ok"})

	res, err := svc.SubmitMessage(context.Background(), "u1", "I'm so bored tonight")
	if err != nil {
		t.Fatalf("SubmitMessage failed: %v", err)
	}
	if res.Analysis.PrimaryEmotion != "bored" || res.Analysis.Context != fallbackContext {
		t.Fatalf("expected keyword fallback, got %+v", res.Analysis)
	}
	if res.Analysis.Intensity != domain.DefaultIntensity || res.Analysis.EatingUrge != domain.DefaultEatingUrge {
		t.Fatalf("expected default numbers, got %+v", res.Analysis)
	}
	if res.Analysis.RiskLevel != domain.RiskMedium {
		t.Fatalf("expected medium risk, got %q", res.Analysis.RiskLevel)
	}
}

func TestSubmitMessage_GeneratorFailure(t *testing.T) {
	t.Parallel()

	generator := &fakeGenerator{err: errors.New("upstream 500")}
	svc := newTestService(newFakeRepo(), nil, generator)

	res, err := svc.SubmitMessage(context.Background(), "u1", "rough day")
	if err != nil {
		t.Fatalf("SubmitMessage failed: %v", err)
	}
	if res.Reply != apologyReply {
		t.Fatalf("expected apology, got %q", res.Reply)
	}
	if res.Intervention != BreathingFallback {
		t.Fatalf("expected breathing fallback, got %q", res.Intervention)
	}
	if generator.calls != 1 {
		t.Fatalf("expected a single generator call, got %d", generator.calls)
	}
}

func TestSubmitMessage_ReinforcedIntervention(t *testing.T) {
	t.Parallel()

	classifier := &fakeClassifier{analysis: domain.Analysis{PrimaryEmotion: "sad", Intensity: 4, RiskLevel: "low"}}
	svc := newTestService(newFakeRepo(), classifier, &fakeGenerator{reply: "I hear you."})
	ctx := context.Background()

	if err := svc.MarkInterventionHelpful(ctx, "u1", "sad", "", "Call my sister"+reinforcedSuffix); err != nil {
		t.Fatalf("MarkInterventionHelpful failed: %v", err)
	}
	res, err := svc.SubmitMessage(ctx, "u1", "feeling low")
	if err != nil {
		t.Fatalf("SubmitMessage failed: %v", err)
	}
	if res.Intervention != "Call my sister"+reinforcedSuffix {
		t.Fatalf("expected reinforced intervention, got %q", res.Intervention)
	}
}

func TestSubmitMessage_RejectsBadInput(t *testing.T) {
	t.Parallel()

	svc := newTestService(newFakeRepo(), nil, nil)
	if _, err := svc.SubmitMessage(context.Background(), "", "hi"); !errors.Is(err, ErrMissingUser) {
		t.Fatalf("expected ErrMissingUser, got %v", err)
	}
	if _, err := svc.SubmitMessage(context.Background(), "u1", "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestSubmitMessage_PersistFailureKeepsMemory(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	repo.appendErr = errors.New("disk full")
	svc := newTestService(repo, nil, &fakeGenerator{reply: "ok"})
	ctx := context.Background()

	if _, err := svc.SubmitMessage(ctx, "u1", "hello"); err != nil {
		t.Fatalf("SubmitMessage failed: %v", err)
	}
	history, err := svc.History(ctx, "u1")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 turns in memory, got %d", len(history))
	}
}

func TestLogMood(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	svc := newTestService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.LogMood(ctx, "u1", domain.MoodInput{Emotion: "sad", Intensity: 11, Trigger: "rain"})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Field != "intensity" {
		t.Fatalf("expected intensity ValidationError, got %v", err)
	}
	if !IsClientError(err) {
		t.Fatal("expected validation error to be a client error")
	}
	if len(repo.moods["u1"]) != 0 {
		t.Fatal("rejected entry was stored")
	}

	entry, err := svc.LogMood(ctx, "u1", domain.MoodInput{Emotion: "sad", Intensity: 10, Trigger: "rain"})
	if err != nil {
		t.Fatalf("LogMood failed: %v", err)
	}
	if entry.Hour != testNow.Hour() || entry.ID == "" {
		t.Fatalf("unexpected entry %+v", entry)
	}

	moods, err := svc.ListMoods(ctx, "u1")
	if err != nil {
		t.Fatalf("ListMoods failed: %v", err)
	}
	if len(moods) != 1 || len(repo.moods["u1"]) != 1 {
		t.Fatalf("expected exactly one stored entry, got state=%d repo=%d", len(moods), len(repo.moods["u1"]))
	}
}

func TestGetAnalytics_NoData(t *testing.T) {
	t.Parallel()

	svc := newTestService(newFakeRepo(), nil, nil)
	got, err := svc.GetAnalytics(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetAnalytics failed: %v", err)
	}
	if got.Message != noDataMessage {
		t.Fatalf("expected no-data message, got %q", got.Message)
	}
	if len(got.Profile.TriggerFrequency) != 0 || len(got.Profile.EmotionFrequency) != 0 {
		t.Fatal("expected empty frequency maps")
	}
}

func TestCheckIn(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	svc := newTestService(newFakeRepo(), nil, nil)
	got, err := svc.CheckIn(ctx, "u1")
	if err != nil {
		t.Fatalf("CheckIn failed: %v", err)
	}
	if got.Type != CheckInGeneral {
		t.Fatalf("expected general with no entries, got %q", got.Type)
	}

	repo := newFakeRepo()
	repo.moods["u1"] = []domain.MoodEntry{entryAt("bored", "tv", 4, 21), entryAt("bored", "tv", 4, 21)}
	svc = newTestService(repo, nil, nil)
	if got, _ = svc.CheckIn(ctx, "u1"); got.Type != CheckInRiskTime {
		t.Fatalf("expected risk_time, got %q", got.Type)
	}

	repo = newFakeRepo()
	old := entryAt("sad", "rain", 4, 9)
	old.CreatedAt = testNow.Add(-48 * time.Hour)
	repo.moods["u1"] = []domain.MoodEntry{old}
	svc = newTestService(repo, nil, nil)
	if got, _ = svc.CheckIn(ctx, "u1"); got.Type != CheckInLongAbsence {
		t.Fatalf("expected long_absence, got %q", got.Type)
	}
}

func TestMarkInterventionHelpful_RequiresText(t *testing.T) {
	t.Parallel()

	svc := newTestService(newFakeRepo(), nil, nil)
	err := svc.MarkInterventionHelpful(context.Background(), "u1", "sad", "low", "  ")
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestStateLoadedOnce(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	svc := newTestService(repo, nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.ListMoods(ctx, "u1"); err != nil {
				t.Errorf("ListMoods failed: %v", err)
			}
		}()
	}
	wg.Wait()

	repo.mu.Lock()
	loads := repo.loads
	repo.mu.Unlock()
	if loads != 1 {
		t.Fatalf("expected one load for concurrent requests, got %d", loads)
	}
	if _, err := svc.ListMoods(ctx, "u1"); err != nil {
		t.Fatalf("ListMoods failed: %v", err)
	}
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if repo.loads != loads {
		t.Fatalf("expected cached state, loads went %d -> %d", loads, repo.loads)
	}
	if svc.CachedUsers() != 1 {
		t.Fatalf("expected 1 cached user, got %d", svc.CachedUsers())
	}
}

// gatedGenerator parks every call until release is closed.
type gatedGenerator struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedGenerator) Generate(ctx context.Context, _ string, _ []domain.ConversationTurn, _ string) (string, error) {
	g.once.Do(func() { close(g.entered) })
	select {
	case <-g.release:
		return "I'm here with you.", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestEvictionKeepsUserSerialized(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	gen := &gatedGenerator{entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewService(repo, nil, gen, Options{
		Location:  time.UTC,
		CacheSize: 1,
		Selector:  NewSelector(DefaultCatalog(), rand.NewPCG(7, 7)),
		Now:       func() time.Time { return testNow },
	})
	ctx := context.Background()

	turnDone := make(chan error, 1)
	go func() {
		_, err := svc.SubmitMessage(ctx, "a", "long day, kind of flat")
		turnDone <- err
	}()
	<-gen.entered

	// Loading another user pushes a out of the single-slot cache mid-turn.
	if _, err := svc.ListMoods(ctx, "b"); err != nil {
		t.Fatalf("ListMoods(b) failed: %v", err)
	}

	moodDone := make(chan error, 1)
	go func() {
		_, err := svc.LogMood(ctx, "a", domain.MoodInput{Emotion: "sad", Intensity: 4, Trigger: "rain"})
		moodDone <- err
	}()

	select {
	case <-moodDone:
		t.Fatal("LogMood for a completed while a's turn was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(gen.release)
	if err := <-turnDone; err != nil {
		t.Fatalf("SubmitMessage failed: %v", err)
	}
	if err := <-moodDone; err != nil {
		t.Fatalf("LogMood failed: %v", err)
	}

	history, err := svc.History(ctx, "a")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	repo.mu.Lock()
	stored := len(repo.turns["a"])
	repo.mu.Unlock()
	if stored != 2 || len(history) != stored {
		t.Fatalf("expected 2 turns in store and memory, got store=%d memory=%d", stored, len(history))
	}
	moods, err := svc.ListMoods(ctx, "a")
	if err != nil {
		t.Fatalf("ListMoods(a) failed: %v", err)
	}
	if len(moods) != 1 {
		t.Fatalf("expected 1 mood entry, got %d", len(moods))
	}
	if held := svc.states.locks.held(); held != 0 {
		t.Fatalf("expected lock table to drain, %d entries left", held)
	}
}

func TestCachedUsersGaugeFollowsEvictions(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	svc := NewService(newFakeRepo(), nil, nil, Options{
		Location:  time.UTC,
		CacheSize: 1,
		Metrics:   m,
	})
	ctx := context.Background()

	for _, user := range []string{"u1", "u2", "u3"} {
		if _, err := svc.ListMoods(ctx, user); err != nil {
			t.Fatalf("ListMoods(%s) failed: %v", user, err)
		}
	}
	if got := testutil.ToFloat64(m.CachedUsers); got != 1 {
		t.Fatalf("expected cached users gauge 1, got %v", got)
	}
	if svc.CachedUsers() != 1 {
		t.Fatalf("expected 1 resident user, got %d", svc.CachedUsers())
	}
}

func TestCancelledLoadDoesNotAffectLaterCallers(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	repo.moods["u1"] = []domain.MoodEntry{entryAt("sad", "rain", 4, 9)}
	svc := newTestService(repo, nil, nil)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.ListMoods(cancelled, "u1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if svc.CachedUsers() != 0 {
		t.Fatalf("failed load must not be cached, got %d users", svc.CachedUsers())
	}

	moods, err := svc.ListMoods(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListMoods failed: %v", err)
	}
	if len(moods) != 1 {
		t.Fatalf("expected 1 mood entry, got %d", len(moods))
	}
}
