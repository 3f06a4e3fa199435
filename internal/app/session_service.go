package app

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"quest-session-service/internal/domain"
)

// SessionWriter persists session rows to the remote data store.
type SessionWriter interface {
	CreateSession(ctx context.Context, session *domain.Session) error
	UpdateSession(ctx context.Context, session *domain.Session) error
}

// ActiveSessionStore tracks in-flight sessions (in-memory, optionally with
// external liveness markers).
type ActiveSessionStore interface {
	Put(session *ActiveSession)
	Get(sessionID string) (*ActiveSession, bool)
	Delete(sessionID string)
}

// StartResult is returned when a quest session begins.
type StartResult struct {
	SessionID      string          `json:"sessionId"`
	Question       domain.Question `json:"question"`
	QuestionNumber int             `json:"questionNumber"`
	MaxQuestions   int             `json:"maxQuestions"`
	Level          int             `json:"level"`
}

// AnswerOutcome is the result of grading one submission. Exactly one of Next
// and Summary is set: Next while the quest continues, Summary once it ends.
type AnswerOutcome struct {
	SessionID         string           `json:"sessionId"`
	QuestionID        string           `json:"questionId"`
	Correct           bool             `json:"correct"`
	PointsEarned      int              `json:"pointsEarned"`
	Score             int              `json:"score"`
	CurrentStreak     int              `json:"currentStreak"`
	QuestionsAnswered int              `json:"questionsAnswered"`
	Level             int              `json:"level"`
	Next              *domain.Question `json:"next,omitempty"`
	Summary           *QuestSummary    `json:"summary,omitempty"`
}

// QuestSummary captures the final stats of a terminal session.
type QuestSummary struct {
	SessionID        string  `json:"sessionId"`
	TopicID          string  `json:"topicId"`
	Status           string  `json:"status"`
	TotalQuestions   int     `json:"totalQuestions"`
	CorrectAnswers   int     `json:"correctAnswers"`
	FinalScore       int     `json:"finalScore"`
	MaxStreak        int     `json:"maxStreak"`
	TimeSpentSeconds float64 `json:"timeSpentSeconds"`
	Accuracy         float64 `json:"accuracy"`
	Perfect          bool    `json:"perfect"`
	UnderTimeBudget  bool    `json:"underTimeBudget"`
	ReachedMaxLevel  bool    `json:"reachedMaxLevel"`
}

// timeBudgetPerQuestion is the pace that earns the "speedy" achievement.
const timeBudgetPerQuestion = 30 * time.Second

// ActiveSession is the in-memory state of one running quest. All mutation goes
// through SessionService under the session mutex; no two flows ever race on
// the same session's score or streak.
type ActiveSession struct {
	mu           sync.Mutex
	data         domain.Session
	difficulty   domain.DifficultyState
	current      domain.Question
	servedAt     time.Time
	timeSpent    time.Duration
	maxLevelSeen int
	notifier     Notifier
	// graded is set when an answer was applied in memory but the row update
	// failed; a retried submission skips re-grading and only retries the
	// persist-and-advance step.
	graded bool
}

// ID returns the session id.
func (s *ActiveSession) ID() string { return s.data.ID }

// NewActiveSession wraps a session row for registration in an
// ActiveSessionStore. Exported for infrastructure layers and their tests.
func NewActiveSession(data domain.Session) *ActiveSession {
	return &ActiveSession{data: data}
}

// SessionService owns the quest lifecycle. It is the single source of truth
// for session state, consumed by every surface.
type SessionService struct {
	active     ActiveSessionStore
	writer     SessionWriter
	difficulty *DifficultyController
	supply     *QuestionSupply
	queue      *AnalyticsQueue

	maxQuestions int
	clock        func() time.Time
	newID        func() string
}

func NewSessionService(active ActiveSessionStore, writer SessionWriter, difficulty *DifficultyController, supply *QuestionSupply, queue *AnalyticsQueue) *SessionService {
	return &SessionService{
		active:       active,
		writer:       writer,
		difficulty:   difficulty,
		supply:       supply,
		queue:        queue,
		maxQuestions: domain.DefaultMaxQuestions,
		clock:        time.Now,
		newID:        uuid.NewString,
	}
}

// WithClock is test-only for deterministic timestamps.
func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	s.clock = now
	return s
}

// Start creates a session row, loads the learner's persisted difficulty, and
// serves the first question. Any failure here aborts the attempt: no partial
// session is left in progress.
func (s *SessionService) Start(ctx context.Context, userID, topicID string, notifier Notifier) (StartResult, error) {
	if userID == "" {
		return StartResult{}, domain.ErrNoUser
	}
	if notifier == nil {
		notifier = LogNotifier{}
	}

	state := s.difficulty.Load(ctx, userID, topicID)
	now := s.clock()
	session := domain.Session{
		ID:           s.newID(),
		UserID:       userID,
		TopicID:      topicID,
		Status:       domain.SessionInProgress,
		MaxQuestions: s.maxQuestions,
		StartedAt:    now,
	}

	if err := s.writer.CreateSession(ctx, &session); err != nil {
		return StartResult{}, err
	}

	question, err := s.supply.NextQuestion(ctx, topicID, state.Level, "")
	if err != nil {
		// Roll the row out of in_progress so the failed attempt leaves no
		// dangling session behind.
		session.Status = domain.SessionInterrupted
		session.FinalScore = domain.InterruptedScore
		ended := s.clock()
		session.EndedAt = &ended
		if uerr := s.writer.UpdateSession(ctx, &session); uerr != nil {
			log.Printf("session %s: abort write failed: %v", session.ID, uerr)
		}
		return StartResult{}, err
	}

	active := &ActiveSession{
		data:         session,
		difficulty:   state,
		current:      question,
		servedAt:     now,
		maxLevelSeen: state.Level,
		notifier:     notifier,
	}
	s.active.Put(active)

	return StartResult{
		SessionID:      session.ID,
		Question:       question,
		QuestionNumber: 1,
		MaxQuestions:   s.maxQuestions,
		Level:          state.Level,
	}, nil
}

// SubmitAnswer grades a submission, updates score/streak/difficulty, enqueues
// telemetry, and persists the row before advancing. A persistence failure is
// returned as a *domain.RecoverableError: in-memory state is kept and the
// caller may submit the same answer again.
func (s *SessionService) SubmitAnswer(ctx context.Context, sessionID, questionID, selected string) (AnswerOutcome, error) {
	active, ok := s.active.Get(sessionID)
	if !ok {
		return AnswerOutcome{}, domain.ErrSessionNotFound
	}

	active.mu.Lock()
	defer active.mu.Unlock()

	if active.data.Status != domain.SessionInProgress {
		return AnswerOutcome{}, domain.ErrSessionFinished
	}

	if !active.graded {
		if questionID != active.current.ID {
			return AnswerOutcome{}, &domain.ValidationError{Subject: "answer", Reason: "question id does not match current question"}
		}
		s.grade(ctx, active, selected)
	} else if questionID != active.current.ID {
		return AnswerOutcome{}, &domain.ValidationError{Subject: "answer", Reason: "pending question id mismatch"}
	}

	if err := s.writer.UpdateSession(ctx, &active.data); err != nil {
		return AnswerOutcome{}, &domain.RecoverableError{Op: "persist session", Err: err}
	}
	active.graded = false

	last := active.data.QuestionHistory[len(active.data.QuestionHistory)-1]
	outcome := AnswerOutcome{
		SessionID:         sessionID,
		QuestionID:        last.QuestionID,
		Correct:           last.Correct,
		PointsEarned:      last.PointsEarned,
		Score:             active.data.FinalScore,
		CurrentStreak:     active.data.CurrentStreak,
		QuestionsAnswered: active.data.QuestionsAnswered,
		Level:             active.difficulty.Level,
	}

	if active.data.QuestionsAnswered < active.data.MaxQuestions {
		next, err := s.supply.NextQuestion(ctx, active.data.TopicID, active.difficulty.Level, active.current.ID)
		if err != nil {
			// Pool exhausted (or unreachable): end the quest cleanly with
			// what was answered instead of leaving the learner hanging.
			log.Printf("session %s: next question unavailable: %v", sessionID, err)
			summary := s.completeLocked(ctx, active)
			outcome.Summary = &summary
			return outcome, nil
		}
		active.current = next
		active.servedAt = s.clock()
		outcome.Next = &next
		return outcome, nil
	}

	summary := s.completeLocked(ctx, active)
	outcome.Summary = &summary
	return outcome, nil
}

// grade applies one answer to the in-memory session and difficulty state and
// enqueues the per-question telemetry event.
func (s *SessionService) grade(ctx context.Context, active *ActiveSession, selected string) {
	now := s.clock()
	question := active.current
	correct := selected == question.CorrectAnswer
	points := 0
	if correct {
		points = question.Points
	}

	data := &active.data
	data.QuestionsAnswered++
	data.FinalScore += points
	if correct {
		data.CorrectAnswers++
		data.CurrentStreak++
		if data.CurrentStreak > data.MaxStreak {
			data.MaxStreak = data.CurrentStreak
		}
	} else {
		data.CurrentStreak = 0
	}

	data.QuestionHistory = append(data.QuestionHistory, domain.QuestionOutcome{
		QuestionID:     question.ID,
		Difficulty:     question.DifficultyLevel,
		PointsPossible: question.Points,
		PointsEarned:   points,
		TimeTaken:      now.Sub(active.servedAt).Seconds(),
		Correct:        correct,
		SelectedAnswer: selected,
	})

	active.difficulty = s.difficulty.Record(ctx, active.difficulty, correct, active.notifier)
	if active.difficulty.Level > active.maxLevelSeen {
		active.maxLevelSeen = active.difficulty.Level
	}

	data.Analytics = snapshot(data)
	active.graded = true

	if err := s.queue.Enqueue("quest_progress", map[string]any{
		"sessionId":         data.ID,
		"userId":            data.UserID,
		"topicId":           data.TopicID,
		"questionsAnswered": data.QuestionsAnswered,
		"correctAnswers":    data.CorrectAnswers,
		"score":             data.FinalScore,
		"currentStreak":     data.CurrentStreak,
		"level":             active.difficulty.Level,
		"snapshot":          data.Analytics,
	}, DefaultMaxRetries); err != nil {
		log.Printf("session %s: enqueue progress event: %v", data.ID, err)
	}
}

// completeLocked finalizes a session as completed. Caller holds the session
// mutex.
func (s *SessionService) completeLocked(ctx context.Context, active *ActiveSession) QuestSummary {
	data := &active.data
	ended := s.clock()
	data.Status = domain.SessionCompleted
	data.EndedAt = &ended
	if data.FinalScore < 0 {
		data.FinalScore = 0
	}

	accuracy := 0.0
	if data.QuestionsAnswered > 0 {
		accuracy = float64(data.CorrectAnswers) / float64(data.QuestionsAnswered) * 100
	}

	summary := QuestSummary{
		SessionID:        data.ID,
		TopicID:          data.TopicID,
		Status:           data.Status,
		TotalQuestions:   data.QuestionsAnswered,
		CorrectAnswers:   data.CorrectAnswers,
		FinalScore:       data.FinalScore,
		MaxStreak:        data.MaxStreak,
		TimeSpentSeconds: active.timeSpent.Seconds(),
		Accuracy:         accuracy,
		Perfect:          data.CorrectAnswers == data.QuestionsAnswered && data.QuestionsAnswered > 0,
		UnderTimeBudget:  active.timeSpent < timeBudgetPerQuestion*time.Duration(data.QuestionsAnswered),
		ReachedMaxLevel:  active.maxLevelSeen >= domain.MaxLevel,
	}

	if err := s.writer.UpdateSession(ctx, data); err != nil {
		log.Printf("session %s: completion write failed: %v", data.ID, err)
	}

	if err := s.queue.Enqueue("quest_completed", map[string]any{
		"sessionId": data.ID,
		"userId":    data.UserID,
		"topicId":   data.TopicID,
		"achievement": map[string]any{
			"maxStreak":       summary.MaxStreak,
			"finalScore":      summary.FinalScore,
			"perfectScore":    summary.Perfect,
			"underTimeBudget": summary.UnderTimeBudget,
			"reachedMaxLevel": summary.ReachedMaxLevel,
		},
	}, DefaultMaxRetries); err != nil {
		log.Printf("session %s: enqueue completion event: %v", data.ID, err)
	}

	s.active.Delete(data.ID)
	return summary
}

// Exit interrupts an active session. The write is best-effort: a storage
// failure is logged and the learner still leaves the quest.
func (s *SessionService) Exit(ctx context.Context, sessionID string) (QuestSummary, error) {
	active, ok := s.active.Get(sessionID)
	if !ok {
		return QuestSummary{}, domain.ErrSessionNotFound
	}

	active.mu.Lock()
	defer active.mu.Unlock()

	if active.data.Status != domain.SessionInProgress {
		return QuestSummary{}, domain.ErrSessionFinished
	}

	data := &active.data
	ended := s.clock()
	data.Status = domain.SessionInterrupted
	data.FinalScore = domain.InterruptedScore
	data.EndedAt = &ended

	if err := s.writer.UpdateSession(ctx, data); err != nil {
		log.Printf("session %s: interruption write failed: %v", sessionID, err)
	}

	s.active.Delete(sessionID)
	return QuestSummary{
		SessionID:        data.ID,
		TopicID:          data.TopicID,
		Status:           data.Status,
		TotalQuestions:   data.QuestionsAnswered,
		CorrectAnswers:   data.CorrectAnswers,
		FinalScore:       data.FinalScore,
		MaxStreak:        data.MaxStreak,
		TimeSpentSeconds: active.timeSpent.Seconds(),
	}, nil
}

// Tick adds advisory wall-clock time to the active session. It is driven by a
// repeating transport timer and is never used for score correctness.
func (s *SessionService) Tick(sessionID string, delta time.Duration) {
	active, ok := s.active.Get(sessionID)
	if !ok {
		return
	}
	active.mu.Lock()
	active.timeSpent += delta
	active.mu.Unlock()
}

// snapshot recomputes the derived analytics aggregate from the history.
func snapshot(data *domain.Session) domain.AnalyticsSnapshot {
	snap := domain.AnalyticsSnapshot{
		DifficultyProgression: make([]int, 0, len(data.QuestionHistory)),
	}
	totalTime := 0.0
	for _, h := range data.QuestionHistory {
		totalTime += h.TimeTaken
		snap.DifficultyProgression = append(snap.DifficultyProgression, h.Difficulty)
	}
	if n := len(data.QuestionHistory); n > 0 {
		snap.AverageTimePerQuestion = totalTime / float64(n)
		snap.SuccessRate = float64(data.CorrectAnswers) / float64(n) * 100
	}
	return snap
}
