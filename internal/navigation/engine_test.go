package navigation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convenehq/convene/internal/meeting"
)

// newRetroMeeting builds a meeting sitting on the terminal vote stage,
// with an empty discuss phase waiting to be materialized. Reflection
// groups carry vote counts [3, 5, 5, 0] in creation order a, b, c, d.
func newRetroMeeting(t *testing.T) *meeting.Meeting {
	t.Helper()
	return &meeting.Meeting{
		ID:                 "meeting-1",
		TeamID:             "team-1",
		CreatedAt:          time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC),
		FacilitatorStageID: "vote-1",
		Phases: []meeting.Phase{
			{ID: "phase-checkin", PhaseType: meeting.PhaseCheckIn, Stages: []meeting.Stage{
				{ID: "checkin-1", PhaseType: meeting.PhaseCheckIn, SortOrder: 0, IsComplete: true, IsNavigable: true, IsNavigableByFacilitator: true},
				{ID: "checkin-2", PhaseType: meeting.PhaseCheckIn, SortOrder: 1, IsComplete: true, IsNavigable: true, IsNavigableByFacilitator: true},
			}},
			{ID: "phase-reflect", PhaseType: meeting.PhaseReflect, Stages: []meeting.Stage{
				{ID: "reflect-1", PhaseType: meeting.PhaseReflect, IsComplete: true, IsNavigable: true, IsNavigableByFacilitator: true},
			}},
			{ID: "phase-group", PhaseType: meeting.PhaseGroup, Stages: []meeting.Stage{
				{ID: "group-1", PhaseType: meeting.PhaseGroup, IsComplete: true, IsNavigable: true, IsNavigableByFacilitator: true},
			}},
			{ID: "phase-vote", PhaseType: meeting.PhaseVote, Stages: []meeting.Stage{
				{ID: "vote-1", PhaseType: meeting.PhaseVote, IsNavigable: true, IsNavigableByFacilitator: true},
			}},
			{ID: "phase-discuss", PhaseType: meeting.PhaseDiscuss},
		},
		ReflectionGroups: []meeting.ReflectionGroup{
			{ID: "group-a", Title: "Slow reviews", VoteCount: 3, SortOrder: 0},
			{ID: "group-b", Title: "Flaky deploys", VoteCount: 5, SortOrder: 1},
			{ID: "group-c", Title: "Unclear specs", VoteCount: 5, SortOrder: 2},
			{ID: "group-d", Title: "Snacks", VoteCount: 0, SortOrder: 3},
		},
	}
}

var facilitator = Actor{UserID: "user-ava", IsFacilitator: true}

func TestCompute_NonFacilitatorRejected(t *testing.T) {
	m := newRetroMeeting(t)
	viewer := Actor{UserID: "user-ben", IsFacilitator: false}

	_, err := Compute(m, viewer, Request{FacilitatorStageID: "checkin-1"})
	require.ErrorIs(t, err, meeting.ErrNotFacilitator)
}

func TestCompute_EndedMeetingRejected(t *testing.T) {
	m := newRetroMeeting(t)
	ended := time.Now()
	m.EndedAt = &ended

	_, err := Compute(m, facilitator, Request{FacilitatorStageID: "vote-1"})
	require.ErrorIs(t, err, meeting.ErrMeetingAlreadyEnded)
}

func TestCompute_UnknownStageRejected(t *testing.T) {
	m := newRetroMeeting(t)

	_, err := Compute(m, facilitator, Request{FacilitatorStageID: "nope"})
	require.ErrorIs(t, err, meeting.ErrInvalidStage)

	_, err = Compute(m, facilitator, Request{})
	require.ErrorIs(t, err, meeting.ErrInvalidStage)
}

func TestCompute_LockedStageRejected(t *testing.T) {
	m := newRetroMeeting(t)
	m.Phases[3].Stages = append(m.Phases[3].Stages, meeting.Stage{
		ID: "vote-2", PhaseType: meeting.PhaseVote, SortOrder: 1,
	})

	_, err := Compute(m, facilitator, Request{FacilitatorStageID: "vote-2"})
	require.ErrorIs(t, err, meeting.ErrInvalidTransition)
}

func TestCompute_CompletedTargetRejected(t *testing.T) {
	m := newRetroMeeting(t)

	_, err := Compute(m, facilitator, Request{FacilitatorStageID: "checkin-1"})
	require.ErrorIs(t, err, meeting.ErrInvalidTransition)
}

func TestCompute_DoesNotMutateInput(t *testing.T) {
	m := newRetroMeeting(t)

	_, err := Compute(m, facilitator, Request{CompletedStageID: "vote-1"})
	require.NoError(t, err)

	stage, _, ok := m.StageByID("vote-1")
	require.True(t, ok)
	assert.False(t, stage.IsComplete)
	discuss, _ := m.PhaseByType(meeting.PhaseDiscuss)
	assert.Empty(t, discuss.Stages)
}

func TestCompute_CompleteVoteMaterializesDiscuss(t *testing.T) {
	m := newRetroMeeting(t)

	delta, err := Compute(m, facilitator, Request{
		CompletedStageID:   "vote-1",
		FacilitatorStageID: DiscussStageID(m.ID, "group-b"),
	})
	require.NoError(t, err)

	assert.Equal(t, "vote-1", delta.CompletedStageID)
	assert.Equal(t, DiscussStageID(m.ID, "group-b"), delta.FacilitatorStageID)
	assert.Equal(t, "vote-1", delta.OldFacilitatorStage.ID)
	assert.True(t, delta.OldFacilitatorStage.IsComplete)
	assert.Equal(t, []meeting.PhaseType{meeting.PhaseVote}, delta.CompletedPhases)

	Apply(m, delta)

	discuss, ok := m.PhaseByType(meeting.PhaseDiscuss)
	require.True(t, ok)
	require.Len(t, discuss.Stages, 3, "zero-vote group must be excluded")

	// Descending vote count, creation order breaking the 5/5 tie.
	assert.Equal(t, "group-b", discuss.Stages[0].ReflectionGroupID)
	assert.Equal(t, "group-c", discuss.Stages[1].ReflectionGroupID)
	assert.Equal(t, "group-a", discuss.Stages[2].ReflectionGroupID)

	for i, stage := range discuss.Stages {
		assert.Equal(t, meeting.PhaseDiscuss, stage.PhaseType)
		assert.Equal(t, i, stage.SortOrder)
		assert.False(t, stage.IsComplete)
	}
	assert.True(t, discuss.Stages[0].IsNavigable)
	assert.False(t, discuss.Stages[1].IsNavigable)

	vote, _, ok := m.StageByID("vote-1")
	require.True(t, ok)
	assert.True(t, vote.IsComplete)
	assert.Equal(t, DiscussStageID(m.ID, "group-b"), m.FacilitatorStageID)
}

func TestCompute_ReplayDoesNotDuplicateDiscussStages(t *testing.T) {
	m := newRetroMeeting(t)
	req := Request{
		CompletedStageID:   "vote-1",
		FacilitatorStageID: DiscussStageID(m.ID, "group-b"),
	}

	delta, err := Compute(m, facilitator, req)
	require.NoError(t, err)
	Apply(m, delta)

	replay, err := Compute(m, facilitator, req)
	require.NoError(t, err)
	Apply(m, replay)

	discuss, _ := m.PhaseByType(meeting.PhaseDiscuss)
	assert.Len(t, discuss.Stages, 3)
}

func TestCompute_UnlocksNextSequentialStage(t *testing.T) {
	m := newRetroMeeting(t)
	m.FacilitatorStageID = "checkin-1"
	m.Phases[0].Stages[0].IsComplete = false
	m.Phases[0].Stages[1] = meeting.Stage{ID: "checkin-2", PhaseType: meeting.PhaseCheckIn, SortOrder: 1}

	delta, err := Compute(m, facilitator, Request{
		CompletedStageID:   "checkin-1",
		FacilitatorStageID: "checkin-2",
	})
	require.NoError(t, err)

	require.Len(t, delta.UnlockedStages, 1)
	assert.Equal(t, UnlockedStage{ID: "checkin-2", IsNavigable: true, IsNavigableByFacilitator: true}, delta.UnlockedStages[0])
	assert.Empty(t, delta.CompletedPhases, "the phase still has an incomplete stage")

	Apply(m, delta)
	next, _, ok := m.StageByID("checkin-2")
	require.True(t, ok)
	assert.True(t, next.IsNavigable)
	assert.Equal(t, "checkin-2", m.FacilitatorStageID)
}

func TestCanJump(t *testing.T) {
	m := newRetroMeeting(t)
	m.Phases[3].Stages = append(m.Phases[3].Stages, meeting.Stage{
		ID: "vote-2", PhaseType: meeting.PhaseVote, IsNavigableByFacilitator: true,
	})

	assert.NoError(t, CanJump(m, "checkin-1", false))
	assert.ErrorIs(t, CanJump(m, "vote-2", false), meeting.ErrInvalidTransition)
	assert.NoError(t, CanJump(m, "vote-2", true))
	assert.ErrorIs(t, CanJump(m, "missing", true), meeting.ErrInvalidStage)
}
