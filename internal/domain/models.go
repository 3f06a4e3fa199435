package domain

import "time"

// Session statuses. A session reaches exactly one terminal status exactly once.
const (
	SessionInProgress  = "in_progress"
	SessionCompleted   = "completed"
	SessionInterrupted = "interrupted"
)

// InterruptedScore is the reserved finalScore for abandoned sessions,
// distinguishable from any real (non-negative) score.
const InterruptedScore = -1

// DefaultMaxQuestions is the fixed quest length.
const DefaultMaxQuestions = 10

// QuestionOutcome records one graded answer within a session.
type QuestionOutcome struct {
	QuestionID     string  `json:"questionId"`
	Difficulty     int     `json:"difficulty"`
	PointsPossible int     `json:"pointsPossible"`
	PointsEarned   int     `json:"pointsEarned"`
	TimeTaken      float64 `json:"timeTaken"`
	Correct        bool    `json:"correct"`
	SelectedAnswer string  `json:"selectedAnswer"`
}

// AnalyticsSnapshot is the derived aggregate carried on a session row.
type AnalyticsSnapshot struct {
	AverageTimePerQuestion float64 `json:"averageTimePerQuestion"`
	SuccessRate            float64 `json:"successRate"`
	DifficultyProgression  []int   `json:"difficultyProgression"`
}

// Session is one quest attempt by a learner on a topic.
type Session struct {
	ID                string            `json:"id"`
	UserID            string            `json:"userId"`
	TopicID           string            `json:"topicId"`
	Status            string            `json:"status"`
	QuestionsAnswered int               `json:"questionsAnswered"`
	CorrectAnswers    int               `json:"correctAnswers"`
	FinalScore        int               `json:"finalScore"`
	MaxQuestions      int               `json:"maxQuestions"`
	CurrentStreak     int               `json:"currentStreak"`
	MaxStreak         int               `json:"maxStreak"`
	QuestionHistory   []QuestionOutcome `json:"questionHistory"`
	Analytics         AnalyticsSnapshot `json:"analytics"`
	StartedAt         time.Time         `json:"startedAt"`
	EndedAt           *time.Time        `json:"endedAt,omitempty"`
}

// DifficultyState tracks the adaptive difficulty for one (user, topic) pair.
// Level is always within [MinLevel, MaxLevel]; at most one of the consecutive
// counters is non-zero at any time.
type DifficultyState struct {
	UserID               string  `json:"userId"`
	TopicID              string  `json:"topicId"`
	Level                int     `json:"level"`
	ConsecutiveCorrect   int     `json:"consecutiveCorrect"`
	ConsecutiveIncorrect int     `json:"consecutiveIncorrect"`
	TotalAttempted       int     `json:"totalAttempted"`
	SuccessRate          float64 `json:"successRate"`
}

// Difficulty bounds and streak thresholds for the adaptive controller.
const (
	MinLevel = 1
	MaxLevel = 3

	PromoteStreak = 3
	DemoteStreak  = 2
)

// NewDifficultyState returns the starting state for a user on a topic.
func NewDifficultyState(userID, topicID string) DifficultyState {
	return DifficultyState{UserID: userID, TopicID: topicID, Level: MinLevel}
}

// Question is an immutable content item. Items with a non-empty ToolType are
// interactive-tool placeholders and must never be delivered in a quest.
type Question struct {
	ID              string   `json:"id"`
	TopicID         string   `json:"topicId"`
	DifficultyLevel int      `json:"difficultyLevel"`
	Points          int      `json:"points"`
	Text            string   `json:"text"`
	ImageRef        string   `json:"imageRef,omitempty"`
	Options         []string `json:"options"`
	CorrectAnswer   string   `json:"correctAnswer"`
	ToolType        string   `json:"toolType,omitempty"`
}

// AnalyticsEvent is a queued telemetry record. The delivery queue is its sole
// owner from enqueue until delivery or retry exhaustion.
type AnalyticsEvent struct {
	ID         string         `json:"id"`
	EventType  string         `json:"eventType"`
	Payload    map[string]any `json:"payload"`
	Timestamp  time.Time      `json:"timestamp"`
	RetryCount int            `json:"retryCount"`
	MaxRetries int            `json:"maxRetries"`
}

// GradeOrder lists grades in unlock order.
var GradeOrder = []string{"K1", "K2", "G1", "G2", "G3", "G4", "G5"}

// GradeIndex returns the position of a grade in GradeOrder, or -1 if unknown.
func GradeIndex(grade string) int {
	for i, g := range GradeOrder {
		if g == grade {
			return i
		}
	}
	return -1
}

// Topic is a unit of learning content within the prerequisite DAG.
type Topic struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Grade         string   `json:"grade"`
	OrderIndex    int      `json:"orderIndex"`
	Prerequisites []string `json:"prerequisites"`
}

// TopicCompletion is a learner's completion record for a topic. A topic counts
// as completed only when both content and quest are done.
type TopicCompletion struct {
	UserID           string `json:"userId"`
	TopicID          string `json:"topicId"`
	ContentCompleted bool   `json:"contentCompleted"`
	QuestCompleted   bool   `json:"questCompleted"`
}

// PathNode statuses.
const (
	NodeLocked    = "locked"
	NodeAvailable = "available"
	NodeCompleted = "completed"
)

// NodeMetadata carries unlock bookkeeping for a path node.
type NodeMetadata struct {
	AvailableAt  *time.Time `json:"availableAt,omitempty"`
	LastAccessed *time.Time `json:"lastAccessed,omitempty"`
}

// PathNode is one topic's unlock state for a user. A node may be available or
// completed only if every prerequisite is completed (or it has none) and its
// grade does not exceed the user's grade.
type PathNode struct {
	ID            string       `json:"id"`
	TopicID       string       `json:"topicId"`
	Title         string       `json:"title"`
	Grade         string       `json:"grade"`
	Status        string       `json:"status"`
	Prerequisites []string     `json:"prerequisites"`
	Children      []string     `json:"children"`
	Version       int          `json:"version"`
	Metadata      NodeMetadata `json:"metadata"`
}

// RateLimitResult is the outcome of the server-side rate limit check.
type RateLimitResult struct {
	Allowed           bool `json:"allowed"`
	WaitSeconds       int  `json:"waitSeconds"`
	AttemptsRemaining int  `json:"attemptsRemaining"`
}
