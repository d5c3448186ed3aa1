package coach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/moodcoach/internal/domain"
	"github.com/ashureev/moodcoach/internal/metrics"
	"github.com/ashureev/moodcoach/internal/store"
)

// apologyReply is shown when the reply generator fails.
const apologyReply = "I'm having a little trouble finding the right words right now, but I'm still here with you. " +
	"Let's take a moment together before anything else."

// Default service options.
const (
	DefaultClassifyTimeout = 15 * time.Second
	DefaultGenerateTimeout = 30 * time.Second
	DefaultContextTurns    = 6
	DefaultCacheSize       = 1024
	DefaultStateTTL        = 30 * time.Minute
)

// Metric labels for external calls.
const (
	callClassify = "classify"
	callGenerate = "generate"
)

// Options tunes a Service. Zero values take the defaults above.
type Options struct {
	ClassifyTimeout time.Duration
	GenerateTimeout time.Duration
	HistoryLimit    int
	ContextTurns    int
	CacheSize       int
	StateTTL        time.Duration
	// Location is the zone used for hour-of-day rules and new entries.
	Location *time.Location
	Selector *Selector
	Now      func() time.Time
	Metrics  *metrics.Metrics
}

func (o *Options) setDefaults() {
	if o.ClassifyTimeout <= 0 {
		o.ClassifyTimeout = DefaultClassifyTimeout
	}
	if o.GenerateTimeout <= 0 {
		o.GenerateTimeout = DefaultGenerateTimeout
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = defaultHistoryLimit
	}
	if o.ContextTurns <= 0 {
		o.ContextTurns = DefaultContextTurns
	}
	if o.CacheSize <= 0 {
		o.CacheSize = DefaultCacheSize
	}
	if o.StateTTL <= 0 {
		o.StateTTL = DefaultStateTTL
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Selector == nil {
		o.Selector = NewSelector(DefaultCatalog(), nil)
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Service runs the coaching pipeline and owns per-user state.
type Service struct {
	repo       store.Repository
	classifier Classifier
	generator  Generator
	states     *stateCache
	opts       Options
}

// NewService wires a Service. classifier and generator may be nil, in which
// case every turn uses the local fallbacks.
func NewService(repo store.Repository, classifier Classifier, generator Generator, opts Options) *Service {
	opts.setDefaults()
	return &Service{
		repo:       repo,
		classifier: classifier,
		generator:  generator,
		states:     newStateCache(repo, opts.CacheSize, opts.StateTTL, opts.HistoryLimit, opts.Metrics),
		opts:       opts,
	}
}

// TurnResult is the outcome of one chat message. Escalated turns carry only
// the escalation fields.
type TurnResult struct {
	Reply           string              `json:"response,omitempty"`
	Emotion         string              `json:"emotion,omitempty"`
	Confidence      *float64            `json:"confidence,omitempty"`
	Analysis        *domain.Analysis    `json:"analysis,omitempty"`
	Intervention    string              `json:"intervention,omitempty"`
	Action          *domain.AgentAction `json:"agentAction,omitempty"`
	Insights        []string            `json:"insights,omitempty"`
	Recommendations []string            `json:"recommendations,omitempty"`

	RequiresEscalation bool           `json:"requiresEscalation"`
	Category           CrisisCategory `json:"category,omitempty"`
	Resources          []Resource     `json:"resources,omitempty"`
	Message            string         `json:"message,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// SubmitMessage runs one chat turn for userID.
func (s *Service) SubmitMessage(ctx context.Context, userID, message string) (*TurnResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrMissingUser
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	crisis := CheckCrisis(message)

	st, release, err := s.states.acquire(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user state: %w", err)
	}
	defer release()

	now := s.clock()

	if crisis.RequiresEscalation {
		result := &TurnResult{
			RequiresEscalation: true,
			Category:           crisis.Category,
			Resources:          crisis.Resources,
			Message:            escalationMessage(crisis.Category),
			Timestamp:          now,
		}
		s.record(ctx, st, userID,
			domain.ConversationTurn{Role: domain.RoleUser, Content: message, CreatedAt: now},
			domain.ConversationTurn{Role: domain.RoleAssistant, Content: result.Message, CreatedAt: now},
		)
		s.opts.Metrics.Escalation(string(crisis.Category))
		slog.Warn("Message escalated", "user_id", userID, "category", crisis.Category)
		return result, nil
	}

	profile := AnalyzePatterns(st.moods)
	analysis := s.classify(ctx, userID, message, profile)
	action := DecideAction(analysis, profile, now)

	history := generatorHistory(st.memory.Recent(s.opts.ContextTurns), action)
	reply, err := s.generate(ctx, SystemPrompt(profile), history, message)

	var intervention string
	if err != nil {
		slog.Warn("Reply generation failed, using fallback", "user_id", userID, "error", err)
		s.opts.Metrics.Fallback(callGenerate)
		reply = apologyReply
		intervention = BreathingFallback
	} else {
		intervention = s.opts.Selector.Select(analysis, st.interventions)
	}

	result := &TurnResult{
		Reply:           reply,
		Emotion:         analysis.PrimaryEmotion,
		Confidence:      analysis.Confidence,
		Analysis:        &analysis,
		Intervention:    intervention,
		Action:          &action,
		Insights:        Insights(profile, analysis, now),
		Recommendations: Recommendations(profile),
		Timestamp:       now,
	}

	s.record(ctx, st, userID,
		domain.ConversationTurn{Role: domain.RoleUser, Content: message, CreatedAt: now},
		domain.ConversationTurn{
			Role:       domain.RoleAssistant,
			Content:    reply,
			CreatedAt:  now,
			Emotion:    analysis.PrimaryEmotion,
			Intensity:  analysis.Intensity,
			RiskLevel:  analysis.RiskLevel,
			ActionType: action.Type,
		},
	)
	s.opts.Metrics.Turn(string(action.Type))
	slog.Debug("Turn completed",
		"user_id", userID,
		"emotion", analysis.PrimaryEmotion,
		"risk", analysis.RiskLevel,
		"action", action.Type,
	)
	return result, nil
}

// classify asks the classifier for an analysis and falls back to keyword
// detection when it is missing, slow, or fails.
func (s *Service) classify(ctx context.Context, userID, message string, profile PatternProfile) domain.Analysis {
	if s.classifier == nil {
		s.opts.Metrics.Fallback(callClassify)
		return FallbackAnalysis(message)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.ClassifyTimeout)
	defer cancel()

	started := time.Now()
	analysis, err := s.classifier.Classify(callCtx, message, profile)
	s.opts.Metrics.ObserveExternal(callClassify, started)
	if err != nil {
		slog.Warn("Classification failed, using fallback", "user_id", userID, "error", err)
		s.opts.Metrics.Fallback(callClassify)
		return FallbackAnalysis(message)
	}
	analysis.Normalize()
	return analysis
}

func (s *Service) generate(ctx context.Context, systemPrompt string, history []domain.ConversationTurn, message string) (string, error) {
	if s.generator == nil {
		return "", ErrGeneratorUnavailable
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.GenerateTimeout)
	defer cancel()

	started := time.Now()
	reply, err := s.generator.Generate(callCtx, systemPrompt, history, message)
	s.opts.Metrics.ObserveExternal(callGenerate, started)
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", ErrEmptyReply
	}
	return reply, nil
}

// record persists turns and appends them to memory. A storage failure is
// logged and the turn still lands in memory. Callers hold the user's lock.
func (s *Service) record(ctx context.Context, st *userState, userID string, turns ...domain.ConversationTurn) {
	if err := s.repo.AppendTurns(ctx, userID, turns); err != nil {
		slog.Warn("Failed to persist conversation turns", "user_id", userID, "error", err)
	}
	st.memory.Append(turns...)
}

// LogMood validates and stores a mood entry stamped with the current time.
func (s *Service) LogMood(ctx context.Context, userID string, in domain.MoodInput) (*domain.MoodEntry, error) {
	entry, err := domain.NewMoodEntry(strings.TrimSpace(userID), in, s.clock())
	if err != nil {
		s.opts.Metrics.ValidationFailed()
		return nil, err
	}

	st, release, err := s.states.acquire(ctx, entry.UserID)
	if err != nil {
		return nil, fmt.Errorf("load user state: %w", err)
	}
	defer release()

	if err := s.repo.InsertMoodEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("store mood entry: %w", err)
	}
	st.moods = append(st.moods, *entry)
	s.opts.Metrics.MoodLogged()

	slog.Debug("Mood logged", "user_id", entry.UserID, "emotion", entry.Emotion, "intensity", entry.Intensity)
	return entry, nil
}

// ListMoods returns the user's entries, oldest first.
func (s *Service) ListMoods(ctx context.Context, userID string) ([]domain.MoodEntry, error) {
	st, release, err := s.lockedState(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	out := make([]domain.MoodEntry, len(st.moods))
	copy(out, st.moods)
	return out, nil
}

// GetAnalytics summarises the user's mood log.
func (s *Service) GetAnalytics(ctx context.Context, userID string) (*Analytics, error) {
	moods, err := s.ListMoods(ctx, userID)
	if err != nil {
		return nil, err
	}
	return BuildAnalytics(moods), nil
}

// Check-in types.
const (
	CheckInRiskTime    = "risk_time"
	CheckInLongAbsence = "long_absence"
	CheckInGeneral     = "general"
)

// longAbsence is the gap since the last entry after which a check-in says so.
const longAbsence = 24 * time.Hour

// CheckIn is a proactive prompt for the user.
type CheckIn struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// CheckIn picks a prompt for the current moment. Risk time wins over a long
// absence, which wins over the general prompt.
func (s *Service) CheckIn(ctx context.Context, userID string) (*CheckIn, error) {
	moods, err := s.ListMoods(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	profile := AnalyzePatterns(moods)

	switch {
	case inRiskWindow(now.Hour(), profile.RiskHours):
		return &CheckIn{
			Type: CheckInRiskTime,
			Message: "This is usually a tougher time of day for you. How are you feeling right now? " +
				"It might help to plan something calming for the next hour.",
		}, nil
	case len(moods) > 0 && now.Sub(moods[len(moods)-1].CreatedAt) > longAbsence:
		return &CheckIn{
			Type:    CheckInLongAbsence,
			Message: "It's been a while since your last check-in. How have things been going?",
		}, nil
	default:
		return &CheckIn{
			Type:    CheckInGeneral,
			Message: "Just checking in. How are you feeling today?",
		}, nil
	}
}

// MarkInterventionHelpful stores a suggestion the user found helpful so it can
// be offered again for the same emotion or risk level.
func (s *Service) MarkInterventionHelpful(ctx context.Context, userID, emotion, riskLevel, intervention string) error {
	intervention = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(intervention), reinforcedSuffix))
	if intervention == "" {
		s.opts.Metrics.ValidationFailed()
		return &domain.ValidationError{Field: "intervention", Reason: "is required"}
	}

	rec := domain.InterventionRecord{
		Emotion:      strings.ToLower(strings.TrimSpace(emotion)),
		Intervention: intervention,
		Helpful:      true,
		CreatedAt:    s.clock(),
	}
	if strings.TrimSpace(riskLevel) != "" {
		rec.RiskLevel = domain.ParseRiskLevel(riskLevel)
	}

	st, release, err := s.lockedState(ctx, userID)
	if err != nil {
		return err
	}
	defer release()

	if err := s.repo.InsertInterventionRecord(ctx, strings.TrimSpace(userID), &rec); err != nil {
		return fmt.Errorf("store intervention record: %w", err)
	}
	st.interventions = append(st.interventions, rec)
	return nil
}

// History returns the retained conversation, oldest first.
func (s *Service) History(ctx context.Context, userID string) ([]domain.ConversationTurn, error) {
	st, release, err := s.lockedState(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()
	return st.memory.All(), nil
}

// CachedUsers reports how many users currently have state in memory.
func (s *Service) CachedUsers() int {
	return s.states.len()
}

// lockedState returns the user's state with the user's lock held until
// release is called.
func (s *Service) lockedState(ctx context.Context, userID string) (*userState, func(), error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, nil, ErrMissingUser
	}
	st, release, err := s.states.acquire(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("load user state: %w", err)
	}
	return st, release, nil
}

func (s *Service) clock() time.Time {
	return s.opts.Now().In(s.opts.Location)
}

// IsClientError reports whether err was caused by bad input rather than a
// failure inside the service.
func IsClientError(err error) bool {
	var verr *domain.ValidationError
	return errors.As(err, &verr) || errors.Is(err, ErrMissingUser) || errors.Is(err, ErrEmptyMessage)
}
