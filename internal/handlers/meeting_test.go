package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convenehq/convene/internal/auth"
	"github.com/convenehq/convene/internal/closer"
	"github.com/convenehq/convene/internal/collab"
	"github.com/convenehq/convene/internal/logger"
	"github.com/convenehq/convene/internal/meeting"
	"github.com/convenehq/convene/internal/middleware"
	"github.com/convenehq/convene/internal/navigation"
	"github.com/convenehq/convene/internal/pubsub"
	"github.com/convenehq/convene/internal/store"
)

func newMeetingService(t *testing.T) (*MeetingService, *store.MemStore) {
	t.Helper()
	ms := store.NewMemStore()
	ms.PutMeeting(&meeting.Meeting{
		ID:                 "meeting-1",
		TeamID:             "team-1",
		CreatedAt:          time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC),
		FacilitatorStageID: "checkin-1",
		Phases: []meeting.Phase{
			{ID: "phase-checkin", PhaseType: meeting.PhaseCheckIn, Stages: []meeting.Stage{
				{ID: "checkin-1", PhaseType: meeting.PhaseCheckIn, IsNavigable: true, IsNavigableByFacilitator: true},
				{ID: "checkin-2", PhaseType: meeting.PhaseCheckIn, SortOrder: 1},
			}},
		},
	})
	ms.PutTeam(&meeting.Team{ID: "team-1", OrgID: "org-1", ActiveFacilitator: "tm-ava", MeetingID: "meeting-1"})
	ms.PutTeamMember(meeting.TeamMember{ID: "tm-ava", TeamID: "team-1", UserID: "user-ava", PreferredName: "Ava", IsLead: true, IsNotRemoved: true})
	ms.PutTeamMember(meeting.TeamMember{ID: "tm-ben", TeamID: "team-1", UserID: "user-ben", PreferredName: "Ben", IsNotRemoved: true})

	nop := logger.NewNop()
	rec := pubsub.NewRecorder()
	side := &collab.LogSideEffects{Log: nop}
	svc := &MeetingService{
		Authority: &navigation.Authority{Store: ms, Pub: rec, Log: nop},
		Aggregator: &closer.Aggregator{
			Store:     ms,
			Pub:       rec,
			Auth:      &auth.StoreAuthorizer{Store: ms},
			Ordering:  collab.StepOrdering{},
			Archival:  collab.TagArchival{},
			Telemetry: side,
			Chat:      side,
			Email:     side,
			Suggested: collab.NewMemorySuggestedActions(),
			Summary:   &collab.CopyComposer{Rand: rand.New(rand.NewSource(1))},
			Log:       nop,
			Rand:      rand.New(rand.NewSource(1)),
		},
		Log: nop,
	}
	return svc, ms
}

func doRequest(t *testing.T, handler http.HandlerFunc, method, path string, vars map[string]string, identity auth.Identity, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-Socket-Id", "socket-test")
	req = mux.SetURLVars(req, vars)
	ctx := context.WithValue(req.Context(), middleware.IdentityContextKey, identity)
	w := httptest.NewRecorder()
	handler(w, req.WithContext(ctx))
	return w
}

func TestNavigateMeeting_OK(t *testing.T) {
	svc, ms := newMeetingService(t)

	w := doRequest(t, svc.NavigateMeeting, http.MethodPost, "/api/v1/meetings/meeting-1/navigate",
		map[string]string{"meetingId": "meeting-1"},
		auth.Identity{UserID: "user-ava"},
		map[string]string{"completedStageId": "checkin-1", "facilitatorStageId": "checkin-2"})

	require.Equal(t, http.StatusOK, w.Code)

	var delta navigation.Delta
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &delta))
	assert.Equal(t, "checkin-2", delta.FacilitatorStageID)

	var persisted *meeting.Meeting
	require.NoError(t, ms.View(context.Background(), func(tx store.Tx) error {
		var err error
		persisted, err = tx.Meeting("meeting-1")
		return err
	}))
	assert.Equal(t, "checkin-2", persisted.FacilitatorStageID)
}

func TestNavigateMeeting_ErrorStatuses(t *testing.T) {
	svc, _ := newMeetingService(t)

	cases := []struct {
		name     string
		identity auth.Identity
		body     map[string]string
		want     int
	}{
		{"viewer forbidden", auth.Identity{UserID: "user-ben"}, map[string]string{"completedStageId": "checkin-1"}, http.StatusForbidden},
		{"non-member forbidden", auth.Identity{UserID: "user-zed"}, map[string]string{"completedStageId": "checkin-1"}, http.StatusForbidden},
		{"unknown stage", auth.Identity{UserID: "user-ava"}, map[string]string{"facilitatorStageId": "nope"}, http.StatusBadRequest},
		{"locked stage", auth.Identity{UserID: "user-ava"}, map[string]string{"facilitatorStageId": "checkin-2"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doRequest(t, svc.NavigateMeeting, http.MethodPost, "/api/v1/meetings/meeting-1/navigate",
				map[string]string{"meetingId": "meeting-1"}, tc.identity, tc.body)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestNavigateMeeting_UnknownMeetingIs404(t *testing.T) {
	svc, _ := newMeetingService(t)

	w := doRequest(t, svc.NavigateMeeting, http.MethodPost, "/api/v1/meetings/meeting-404/navigate",
		map[string]string{"meetingId": "meeting-404"},
		auth.Identity{UserID: "user-ava"},
		map[string]string{"completedStageId": "checkin-1"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEndMeeting_OK(t *testing.T) {
	svc, _ := newMeetingService(t)

	w := doRequest(t, svc.EndMeeting, http.MethodPost, "/api/v1/teams/team-1/meeting/end",
		map[string]string{"teamId": "team-1"}, auth.Identity{UserID: "user-ava"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	svc.Aggregator.Flush()

	var result closer.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "meeting-1", result.MeetingID)
	assert.Equal(t, meeting.Lobby, result.Team.MeetingPhase)

	// A second close is a conflict.
	w = doRequest(t, svc.EndMeeting, http.MethodPost, "/api/v1/teams/team-1/meeting/end",
		map[string]string{"teamId": "team-1"}, auth.Identity{UserID: "user-ava"}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestEndMeeting_NonMemberForbidden(t *testing.T) {
	svc, _ := newMeetingService(t)

	w := doRequest(t, svc.EndMeeting, http.MethodPost, "/api/v1/teams/team-1/meeting/end",
		map[string]string{"teamId": "team-1"}, auth.Identity{UserID: "user-zed"}, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
