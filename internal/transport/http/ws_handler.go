package http

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"quest-session-service/internal/app"
	"quest-session-service/internal/domain"
)

type WSHandler struct {
	service  *app.SessionService
	hub      *NotifierHub
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.SessionService, hub *NotifierHub) *WSHandler {
	return &WSHandler{
		service: service,
		hub:     hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type notificationPayload struct {
	Kind    string `json:"kind"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// questionView is the client-facing question shape. The correct answer never
// leaves the server.
type questionView struct {
	ID              string   `json:"id"`
	Text            string   `json:"text"`
	ImageRef        string   `json:"imageRef,omitempty"`
	Options         []string `json:"options"`
	Points          int      `json:"points"`
	DifficultyLevel int      `json:"difficultyLevel"`
	Number          int      `json:"number"`
	Total           int      `json:"total"`
}

type answerResultView struct {
	QuestionID        string `json:"questionId"`
	Correct           bool   `json:"correct"`
	PointsEarned      int    `json:"pointsEarned"`
	Score             int    `json:"score"`
	CurrentStreak     int    `json:"currentStreak"`
	QuestionsAnswered int    `json:"questionsAnswered"`
	Level             int    `json:"level"`
}

func viewOf(q domain.Question, number, total int) questionView {
	return questionView{
		ID:              q.ID,
		Text:            q.Text,
		ImageRef:        q.ImageRef,
		Options:         q.Options,
		Points:          q.Points,
		DifficultyLevel: q.DifficultyLevel,
		Number:          number,
		Total:           total,
	}
}

// connNotifier delivers notifications over the connection's send channel. It
// drops rather than blocks if the writer is saturated; notifications are
// advisory.
type connNotifier struct {
	send chan outboundMessage[any]
}

func (n *connNotifier) Notify(kind, title, message string) {
	msg := outboundMessage[any]{Type: "notification", Payload: notificationPayload{
		Kind: kind, Title: title, Message: message,
	}}
	select {
	case n.send <- msg:
	default:
	}
}

// ServeWS runs one learner's quest flow over a websocket connection.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	topicID := r.URL.Query().Get("topicId")
	if userID == "" || topicID == "" {
		http.Error(w, "missing userId or topicId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()
	defer func() {
		close(send)
		<-writerDone
	}()

	notifier := &connNotifier{send: send}
	unregister := h.hub.register(notifier)
	defer unregister()

	var sessionID string
	stopTicker := func() {}
	defer func() {
		stopTicker()
		// Navigating away mid-quest interrupts the session best-effort.
		if sessionID != "" {
			if _, err := h.service.Exit(r.Context(), sessionID); err != nil &&
				err != domain.ErrSessionNotFound && err != domain.ErrSessionFinished {
				log.Printf("ws disconnect: interrupt %s: %v", sessionID, err)
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		switch inbound.Type {
		case "start":
			if sessionID != "" {
				send <- errMsg("session already started", false)
				continue
			}
			result, err := h.service.Start(r.Context(), userID, topicID, notifier)
			if err != nil {
				send <- errMsg(err.Error(), false)
				continue
			}
			sessionID = result.SessionID
			stopTicker = h.startTicker(sessionID)
			send <- outboundMessage[any]{Type: "question", Payload: viewOf(
				result.Question, result.QuestionNumber, result.MaxQuestions)}

		case "answer":
			if sessionID == "" {
				send <- errMsg("no active session", false)
				continue
			}
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errMsg("invalid answer payload", false)
				continue
			}
			outcome, err := h.service.SubmitAnswer(r.Context(), sessionID, payload.QuestionID, payload.Answer)
			if err != nil {
				send <- errMsg(err.Error(), domain.IsRecoverable(err))
				continue
			}
			send <- outboundMessage[any]{Type: "answerResult", Payload: answerResultView{
				QuestionID:        outcome.QuestionID,
				Correct:           outcome.Correct,
				PointsEarned:      outcome.PointsEarned,
				Score:             outcome.Score,
				CurrentStreak:     outcome.CurrentStreak,
				QuestionsAnswered: outcome.QuestionsAnswered,
				Level:             outcome.Level,
			}}
			if outcome.Next != nil {
				send <- outboundMessage[any]{Type: "question", Payload: viewOf(
					*outcome.Next, outcome.QuestionsAnswered+1, domain.DefaultMaxQuestions)}
			}
			if outcome.Summary != nil {
				stopTicker()
				stopTicker = func() {}
				sessionID = ""
				send <- outboundMessage[any]{Type: "summary", Payload: *outcome.Summary}
			}

		case "exit":
			if sessionID == "" {
				send <- errMsg("no active session", false)
				continue
			}
			summary, err := h.service.Exit(r.Context(), sessionID)
			stopTicker()
			stopTicker = func() {}
			sessionID = ""
			if err != nil {
				send <- errMsg(err.Error(), false)
				continue
			}
			send <- outboundMessage[any]{Type: "interrupted", Payload: summary}

		default:
			send <- errMsg("unknown message type", false)
		}
	}
}

// startTicker drives the advisory wall-clock accumulation for a session.
func (h *WSHandler) startTicker(sessionID string) func() {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				h.service.Tick(sessionID, time.Second)
			case <-stop:
				return
			}
		}
	}()
	var once bool
	return func() {
		if !once {
			once = true
			close(stop)
		}
	}
}

func errMsg(message string, retryable bool) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: message, Retryable: retryable}}
}
