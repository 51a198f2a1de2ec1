package handlers

import (
	"net/http"

	"github.com/classarena/classarena/middleware"
	"github.com/classarena/classarena/services"
)

type MatchHandler struct {
	matchService services.MatchService
}

func NewMatchHandler(matchService services.MatchService) *MatchHandler {
	return &MatchHandler{matchService: matchService}
}

func (h *MatchHandler) GetMatchHandler(w http.ResponseWriter, r *http.Request) {
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	state, err := h.matchService.Get(r.Context(), matchID)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	successResponse(w, http.StatusOK, state)
}

func (h *MatchHandler) StartMatchHandler(w http.ResponseWriter, r *http.Request) {
	caller, err := middleware.GetCallerFromContext(r.Context())
	if err != nil {
		errorResponse(w, http.StatusUnauthorized, "authentication required")
		return
	}

	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	state, err := h.matchService.Start(r.Context(), caller, matchID)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	successResponse(w, http.StatusOK, state)
}

func (h *MatchHandler) SubmitAnswerHandler(w http.ResponseWriter, r *http.Request) {
	caller, err := middleware.GetCallerFromContext(r.Context())
	if err != nil {
		errorResponse(w, http.StatusUnauthorized, "authentication required")
		return
	}

	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	var input services.SubmitAnswerInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, err)
		return
	}

	result, err := h.matchService.SubmitAnswer(r.Context(), caller, matchID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	successResponse(w, http.StatusOK, result)
}

// NextQuestionHandler принудительно двигает матч дальше: невзятые ответы
// фиксируются как таймауты.
func (h *MatchHandler) NextQuestionHandler(w http.ResponseWriter, r *http.Request) {
	caller, err := middleware.GetCallerFromContext(r.Context())
	if err != nil {
		errorResponse(w, http.StatusUnauthorized, "authentication required")
		return
	}

	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	state, err := h.matchService.AdvanceQuestion(r.Context(), caller, matchID)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	successResponse(w, http.StatusOK, state)
}

func (h *MatchHandler) CompleteMatchHandler(w http.ResponseWriter, r *http.Request) {
	caller, err := middleware.GetCallerFromContext(r.Context())
	if err != nil {
		errorResponse(w, http.StatusUnauthorized, "authentication required")
		return
	}

	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	var input struct {
		WinnerParticipantID *int `json:"winner_participant_id,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := readJSON(w, r, &input); err != nil {
			badRequestResponse(w, err)
			return
		}
	}

	match, err := h.matchService.Complete(r.Context(), caller, matchID, input.WinnerParticipantID)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	successResponse(w, http.StatusOK, match)
}
