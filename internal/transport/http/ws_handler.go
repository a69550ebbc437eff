package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"mapquiz-service/internal/app"
	"mapquiz-service/internal/domain"
)

type WSHandler struct {
	service  *app.ReviewService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.ReviewService) *WSHandler {
	return &WSHandler{
		service: service,
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
	FeatureID   *int64         `json:"featureId,omitempty"`
	ClickCoords *domain.LngLat `json:"clickCoords,omitempty"`
}

type connectivityPayload struct {
	Online bool `json:"online"`
}

type sessionPayload struct {
	ID    string           `json:"id"`
	Stats domain.PageStats `json:"stats"`
}

type questionPayload struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type statsPayload struct {
	Session domain.SessionStats `json:"session"`
	Page    domain.PageStats    `json:"page"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the
// review use cases. The browser supplies the dataset to drill and, when it
// has one, the progress id it mirrors into its URL and local storage.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	datasetID := r.URL.Query().Get("dataset")
	progressID := r.URL.Query().Get("id")
	if datasetID == "" {
		http.Error(w, "missing dataset", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	session, err := h.service.Connect(r.Context(), datasetID, progressID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	// Answers are persisted as they happen, so dropping the session on
	// disconnect loses nothing; the next connect rebuilds it.
	defer h.service.Disconnect(session.UserID())

	// The id goes straight back so the browser can bookmark it.
	h.send(conn, "session", sessionPayload{ID: session.UserID(), Stats: session.PageStats()})
	h.sendNextQuestion(conn, session)

	// A single goroutine reads and writes, so no write pump is needed; the
	// only concurrent work is fire-and-forget persistence, which never
	// touches the connection.
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				h.send(conn, "error", errorPayload{Message: "invalid answer payload"})
				continue
			}
			h.handleAnswer(conn, session, payload)
		case "noIdea":
			h.handleAnswer(conn, session, answerPayload{})
		case "next":
			h.sendNextQuestion(conn, session)
		case "stats":
			h.send(conn, "stats", statsPayload{Session: session.Stats(), Page: session.PageStats()})
		case "connectivity":
			var payload connectivityPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				h.send(conn, "error", errorPayload{Message: "invalid connectivity payload"})
				continue
			}
			h.service.SetOnline(payload.Online)
		default:
			h.send(conn, "error", errorPayload{Message: "unsupported message type"})
		}
	}
}

func (h *WSHandler) handleAnswer(conn *websocket.Conn, session *app.ReviewSession, payload answerPayload) {
	tap := domain.TapEvent{ClickCoords: payload.ClickCoords}
	if payload.FeatureID != nil {
		if feature, ok := session.Feature(*payload.FeatureID); ok {
			tap.Feature = &feature
		}
	}

	result, err := session.Answer(tap)
	if errors.Is(err, domain.ErrNoActiveQuestion) {
		// Duplicate event; nothing is awaiting an answer. Ignore.
		return
	}
	if err != nil {
		h.send(conn, "error", errorPayload{Message: err.Error()})
		return
	}
	h.send(conn, "answerResult", result)
}

func (h *WSHandler) sendNextQuestion(conn *websocket.Conn, session *app.ReviewSession) {
	question, ok := session.NextQuestion()
	if !ok {
		// Nothing left to review right now; a normal terminal state.
		h.send(conn, "noQuestions", statsPayload{Session: session.Stats(), Page: session.PageStats()})
		return
	}
	h.send(conn, "question", questionPayload{ID: question.ID, Name: question.Name})
}

func (h *WSHandler) send(conn *websocket.Conn, msgType string, payload any) {
	if err := conn.WriteJSON(outboundMessage[any]{Type: msgType, Payload: payload}); err != nil {
		log.Printf("ws write error: %v", err)
	}
}
