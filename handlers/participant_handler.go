package handlers

import (
	"net/http"

	"github.com/classarena/classarena/middleware"
	"github.com/classarena/classarena/services"
)

type ParticipantHandler struct {
	registryService services.RegistryService
}

func NewParticipantHandler(registryService services.RegistryService) *ParticipantHandler {
	return &ParticipantHandler{registryService: registryService}
}

func (h *ParticipantHandler) AddParticipantHandler(w http.ResponseWriter, r *http.Request) {
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

	var entry services.EntryInput
	if err := readJSON(w, r, &entry); err != nil {
		badRequestResponse(w, err)
		return
	}

	participant, err := h.registryService.Add(r.Context(), caller, tournamentID, entry)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	successResponse(w, http.StatusCreated, participant)
}

// AddParticipantsBulkHandler регистрирует пачку участников атомарно: либо
// все, либо никто.
func (h *ParticipantHandler) AddParticipantsBulkHandler(w http.ResponseWriter, r *http.Request) {
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

	var input struct {
		Entries []services.EntryInput `json:"entries"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, err)
		return
	}

	participants, err := h.registryService.AddMany(r.Context(), caller, tournamentID, input.Entries)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	successResponse(w, http.StatusCreated, participants)
}

func (h *ParticipantHandler) RemoveParticipantHandler(w http.ResponseWriter, r *http.Request) {
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
	participantID, err := getIDFromURL(r, "participantID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	if err := h.registryService.Remove(r.Context(), caller, tournamentID, participantID); err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	successResponse(w, http.StatusOK, map[string]interface{}{"removed": true})
}

func (h *ParticipantHandler) ShuffleSeedsHandler(w http.ResponseWriter, r *http.Request) {
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

	participants, err := h.registryService.Shuffle(r.Context(), caller, tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	successResponse(w, http.StatusOK, participants)
}
