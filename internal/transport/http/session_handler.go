package http

import (
	"net/http"

	"github.com/go-chi/chi"
	"go.uber.org/zap"

	"popsies-quiz-service/internal/app"
)

// SessionHandler exposes the session use cases as JSON over HTTP.
type SessionHandler struct {
	service *app.SessionService
	logger  *zap.Logger
}

func NewSessionHandler(service *app.SessionService, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{service: service, logger: logger}
}

type joinRequest struct {
	Code        string `json:"code"`
	AccountID   string `json:"accountId"`
	DisplayName string `json:"displayName"`
}

type answerRequest struct {
	ParticipantID    string  `json:"participantId"`
	QuestionID       string  `json:"questionId"`
	OptionID         string  `json:"optionId"`
	TimeTakenSeconds float64 `json:"timeTakenSeconds"`
}

// Routes mounts the session endpoints on r.
func (h *SessionHandler) Routes(r chi.Router) {
	r.Post("/sessions", h.create)
	r.Post("/sessions/join", h.join)
	r.Get("/sessions/code/{code}", h.getByCode)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Get("/leaderboard", h.leaderboard)
		r.Post("/start", h.start)
		r.Post("/advance", h.advance)
		r.Post("/complete", h.complete)
		r.Post("/cancel", h.cancel)
		r.Post("/answers", h.submitAnswer)
		r.Delete("/participants/{participantID}", h.removeParticipant)
	})
}

func (h *SessionHandler) create(w http.ResponseWriter, r *http.Request) {
	var req app.CreateSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	session, err := h.service.CreateSession(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Location", "/sessions/"+session.ID)
	writeJSON(w, r, h.logger, http.StatusCreated, session)
}

func (h *SessionHandler) join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	joined, err := h.service.JoinSession(r.Context(), req.Code, req.AccountID, req.DisplayName)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, h.logger, http.StatusCreated, joined)
}

func (h *SessionHandler) get(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, h.logger, http.StatusOK, session)
}

func (h *SessionHandler) getByCode(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.GetSessionByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, h.logger, http.StatusOK, session)
}

func (h *SessionHandler) leaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.service.Leaderboard(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, h.logger, http.StatusOK, board)
}

func (h *SessionHandler) start(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.StartSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, h.logger, http.StatusOK, session)
}

func (h *SessionHandler) advance(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.AdvanceQuestion(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, h.logger, http.StatusOK, session)
}

func (h *SessionHandler) complete(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.service.CompleteSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, h.logger, http.StatusOK, outcome)
}

func (h *SessionHandler) cancel(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.CancelSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, h.logger, http.StatusOK, session)
}

func (h *SessionHandler) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	result, err := h.service.SubmitAnswer(r.Context(), app.SubmitAnswerRequest{
		SessionID:        chi.URLParam(r, "id"),
		ParticipantID:    req.ParticipantID,
		QuestionID:       req.QuestionID,
		OptionID:         req.OptionID,
		TimeTakenSeconds: req.TimeTakenSeconds,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, h.logger, http.StatusCreated, result)
}

func (h *SessionHandler) removeParticipant(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.LeaveSession(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "participantID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, h.logger, http.StatusOK, session)
}
