package handlers

import (
	"net/http"

	"github.com/classarena/classarena/middleware"
	"github.com/classarena/classarena/services"
)

type TournamentHandler struct {
	tournamentService services.TournamentService
}

func NewTournamentHandler(tournamentService services.TournamentService) *TournamentHandler {
	return &TournamentHandler{tournamentService: tournamentService}
}

func (h *TournamentHandler) CreateTournamentHandler(w http.ResponseWriter, r *http.Request) {
	caller, err := middleware.GetCallerFromContext(r.Context())
	if err != nil {
		errorResponse(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var input services.CreateTournamentInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, err)
		return
	}

	tournament, err := h.tournamentService.Create(r.Context(), caller, input)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	successResponse(w, http.StatusCreated, tournament)
}

func (h *TournamentHandler) GetTournamentHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	tournament, err := h.tournamentService.Get(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	successResponse(w, http.StatusOK, tournament)
}

func (h *TournamentHandler) ListByClassroomHandler(w http.ResponseWriter, r *http.Request) {
	classroomID, err := getIDFromURL(r, "classroomID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	tournaments, err := h.tournamentService.ListByClassroom(r.Context(), classroomID)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	successResponse(w, http.StatusOK, tournaments)
}

// BuildBracketHandler строит сетку и переводит турнир в in_progress одним
// вызовом.
func (h *TournamentHandler) BuildBracketHandler(w http.ResponseWriter, r *http.Request) {
	caller, err := middleware.GetCallerFromContext(r.Context())
	if err != nil {
		errorResponse(w, http.StatusUnauthorized, "authentication required")
		return
	}

	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	tournament, err := h.tournamentService.BuildAndStart(r.Context(), caller, tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	successResponse(w, http.StatusOK, tournament)
}

func (h *TournamentHandler) CancelTournamentHandler(w http.ResponseWriter, r *http.Request) {
	caller, err := middleware.GetCallerFromContext(r.Context())
	if err != nil {
		errorResponse(w, http.StatusUnauthorized, "authentication required")
		return
	}

	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	if err := h.tournamentService.Cancel(r.Context(), caller, tournamentID); err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	successResponse(w, http.StatusOK, map[string]interface{}{"cancelled": true})
}
