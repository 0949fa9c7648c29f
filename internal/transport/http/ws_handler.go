package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"popsies-quiz-service/internal/app"
	"popsies-quiz-service/internal/domain"
	"popsies-quiz-service/internal/logging"
)

// WSHandler is a request/response command channel for participants. Every
// inbound message gets exactly one reply; the server never pushes on its own.
type WSHandler struct {
	service  *app.SessionService
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.SessionService, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		service: service,
		logger:  logger,
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
	QuestionID       string  `json:"questionId"`
	OptionID         string  `json:"optionId"`
	TimeTakenSeconds float64 `json:"timeTakenSeconds"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// ServeWS upgrades the request and binds the connection to one participant.
//
//	/ws?code=ABCDEF&accountId=u1&name=Alice   joins the session holding the code
//	/ws?sessionId=s1&participantId=p1          resumes an existing membership
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code, accountID, name := q.Get("code"), q.Get("accountId"), q.Get("name")
	sessionID, participantID := q.Get("sessionId"), q.Get("participantId")
	resume := sessionID != "" && participantID != ""
	if !resume && (code == "" || accountID == "" || name == "") {
		writeError(w, r, h.logger, fmt.Errorf("%w: missing code, accountId, or name", domain.ErrInvalidInput))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.FromContext(r.Context(), h.logger).Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	logger := logging.FromContext(r.Context(), h.logger)

	var joined app.JoinResult
	if resume {
		joined, err = h.resume(r, sessionID, participantID)
	} else {
		joined, err = h.service.JoinSession(r.Context(), code, accountID, name)
	}
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	sessionID, participantID = joined.Session.ID, joined.Participant.ID
	if err := conn.WriteJSON(outboundMessage{Type: "joined", Payload: joined}); err != nil {
		return
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("ws read ended", zap.String("session_id", sessionID), zap.Error(err))
			}
			return
		}

		reply, done := h.dispatch(r, sessionID, participantID, inbound)
		if err := conn.WriteJSON(reply); err != nil {
			logger.Warn("ws write error", zap.String("session_id", sessionID), zap.Error(err))
			return
		}
		if done {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "left"))
			return
		}
	}
}

func (h *WSHandler) dispatch(r *http.Request, sessionID, participantID string, inbound inboundMessage) (outboundMessage, bool) {
	switch inbound.Type {
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errorMessage(fmt.Errorf("%w: invalid answer payload", domain.ErrInvalidInput)), false
		}
		result, err := h.service.SubmitAnswer(r.Context(), app.SubmitAnswerRequest{
			SessionID:        sessionID,
			ParticipantID:    participantID,
			QuestionID:       payload.QuestionID,
			OptionID:         payload.OptionID,
			TimeTakenSeconds: payload.TimeTakenSeconds,
		})
		if err != nil {
			return errorMessage(err), false
		}
		return outboundMessage{Type: "answerResult", Payload: result}, false
	case "leave":
		session, err := h.service.LeaveSession(r.Context(), sessionID, participantID)
		if err != nil {
			return errorMessage(err), false
		}
		participant, _ := session.Participant(participantID)
		return outboundMessage{Type: "left", Payload: participant}, true
	default:
		return errorMessage(fmt.Errorf("%w: unsupported message type", domain.ErrInvalidInput)), false
	}
}

func (h *WSHandler) resume(r *http.Request, sessionID, participantID string) (app.JoinResult, error) {
	session, err := h.service.GetSession(r.Context(), sessionID)
	if err != nil {
		return app.JoinResult{}, err
	}
	participant, ok := session.Participant(participantID)
	if !ok {
		return app.JoinResult{}, domain.ErrParticipantNotFound
	}
	if !participant.Active {
		return app.JoinResult{}, domain.ErrParticipantInactive
	}
	return app.JoinResult{Session: session, Participant: participant}, nil
}

func errorMessage(err error) outboundMessage {
	return outboundMessage{Type: "error", Payload: errorPayloadFor(err)}
}
