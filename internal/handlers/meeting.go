package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/convenehq/convene/internal/closer"
	"github.com/convenehq/convene/internal/logger"
	"github.com/convenehq/convene/internal/meeting"
	"github.com/convenehq/convene/internal/middleware"
	"github.com/convenehq/convene/internal/navigation"
	"github.com/convenehq/convene/internal/store"
)

// MeetingService handles meeting navigation and close requests.
type MeetingService struct {
	Authority  *navigation.Authority
	Aggregator *closer.Aggregator
	Log        *logger.Logger
}

type navigateRequest struct {
	FacilitatorStageID string `json:"facilitatorStageId"`
	CompletedStageID   string `json:"completedStageId"`
}

// NavigateMeeting moves the facilitator pointer and/or completes a stage.
func (ms *MeetingService) NavigateMeeting(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		ms.Log.Error("failed to extract identity from context")
		respondWithError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	meetingID := mux.Vars(r)["meetingId"]

	var req navigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ms.Log.Error("failed to decode request body", "error", err)
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	delta, err := ms.Authority.Navigate(ctx, identity, meetingID, navigation.Request{
		FacilitatorStageID: req.FacilitatorStageID,
		CompletedStageID:   req.CompletedStageID,
	}, mutatorID(r))
	if err != nil {
		ms.Log.WithMeeting(meetingID).Warn("navigation rejected", "error", err)
		respondWithError(w, statusForError(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, delta)
}

// EndMeeting closes the team's active meeting.
func (ms *MeetingService) EndMeeting(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		ms.Log.Error("failed to extract identity from context")
		respondWithError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	teamID := mux.Vars(r)["teamId"]

	result, err := ms.Aggregator.CloseMeeting(ctx, teamID, identity, mutatorID(r))
	if err != nil {
		ms.Log.WithTeam(teamID).Warn("close meeting failed", "error", err)
		respondWithError(w, statusForError(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// mutatorID is the socket id of the client connection that originated the
// action; receivers use it for echo suppression.
func mutatorID(r *http.Request) string {
	return r.Header.Get("X-Socket-Id")
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, meeting.ErrNotTeamMember), errors.Is(err, meeting.ErrNotFacilitator):
		return http.StatusForbidden
	case errors.Is(err, meeting.ErrNoActiveMeeting),
		errors.Is(err, meeting.ErrMeetingAlreadyEnded),
		errors.Is(err, meeting.ErrStaleTransition):
		return http.StatusConflict
	case errors.Is(err, meeting.ErrInvalidStage), errors.Is(err, meeting.ErrInvalidTransition):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Error marshaling JSON: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
