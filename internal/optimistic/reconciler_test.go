package optimistic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convenehq/convene/internal/meeting"
	"github.com/convenehq/convene/internal/navigation"
)

func newReplicaMeeting(t *testing.T) *meeting.Meeting {
	t.Helper()
	return &meeting.Meeting{
		ID:                 "meeting-1",
		TeamID:             "team-1",
		CreatedAt:          time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC),
		FacilitatorStageID: "vote-1",
		Phases: []meeting.Phase{
			{ID: "phase-reflect", PhaseType: meeting.PhaseReflect, Stages: []meeting.Stage{
				{ID: "reflect-1", PhaseType: meeting.PhaseReflect, IsComplete: true, IsNavigable: true, IsNavigableByFacilitator: true},
			}},
			{ID: "phase-vote", PhaseType: meeting.PhaseVote, Stages: []meeting.Stage{
				{ID: "vote-1", PhaseType: meeting.PhaseVote, IsNavigable: true, IsNavigableByFacilitator: true},
			}},
			{ID: "phase-discuss", PhaseType: meeting.PhaseDiscuss},
		},
		ReflectionGroups: []meeting.ReflectionGroup{
			{ID: "group-a", VoteCount: 2, SortOrder: 0},
			{ID: "group-b", VoteCount: 4, SortOrder: 1},
		},
	}
}

// completeVote runs the shared engine as the authority would and returns
// the authoritative delta plus the resulting authoritative state.
func completeVote(t *testing.T, m *meeting.Meeting) (*navigation.Delta, *meeting.Meeting) {
	t.Helper()
	target := navigation.DiscussStageID(m.ID, "group-b")
	delta, err := navigation.Compute(m, navigation.Actor{UserID: "user-ava", IsFacilitator: true}, navigation.Request{
		CompletedStageID:   "vote-1",
		FacilitatorStageID: target,
	})
	require.NoError(t, err)
	authoritative := m.Clone()
	navigation.Apply(authoritative, delta)
	return delta, authoritative
}

func TestPredictNavigate_AppliesImmediately(t *testing.T) {
	m := newReplicaMeeting(t)
	c := NewClient(m, "socket-ava", true)

	_, err := c.PredictNavigate(navigation.Request{
		CompletedStageID:   "vote-1",
		FacilitatorStageID: navigation.DiscussStageID(m.ID, "group-b"),
	})
	require.NoError(t, err)

	assert.Equal(t, navigation.DiscussStageID(m.ID, "group-b"), c.LocalStageID)
	discuss, _ := c.Meeting.PhaseByType(meeting.PhaseDiscuss)
	assert.Len(t, discuss.Stages, 2)
}

func TestPredictNavigate_ViewerCannotPredictAuthoritativeMove(t *testing.T) {
	c := NewClient(newReplicaMeeting(t), "socket-ben", false)

	_, err := c.PredictNavigate(navigation.Request{FacilitatorStageID: "reflect-1"})
	require.ErrorIs(t, err, meeting.ErrNotFacilitator)
}

func TestApplyAuthoritative_FollowerIsMoved(t *testing.T) {
	m := newReplicaMeeting(t)
	delta, authoritative := completeVote(t, m)

	viewer := NewClient(m, "socket-ben", false)
	require.Equal(t, "vote-1", viewer.LocalStageID)

	viewer.ApplyAuthoritative(delta, "socket-ava")

	assert.Equal(t, authoritative.FacilitatorStageID, viewer.LocalStageID)
	assert.Equal(t, authoritative.FacilitatorStageID, viewer.Meeting.FacilitatorStageID)
}

func TestApplyAuthoritative_DivergedViewerStaysPut(t *testing.T) {
	m := newReplicaMeeting(t)
	delta, _ := completeVote(t, m)

	viewer := NewClient(m, "socket-ben", false)
	require.NoError(t, viewer.JumpLocal("reflect-1"))

	viewer.ApplyAuthoritative(delta, "socket-ava")

	assert.Equal(t, "reflect-1", viewer.LocalStageID)
	assert.Equal(t, delta.FacilitatorStageID, viewer.Meeting.FacilitatorStageID)
}

func TestApplyAuthoritative_TypingInReflectDefersFollow(t *testing.T) {
	m := newReplicaMeeting(t)
	m.FacilitatorStageID = "reflect-1"
	m.Phases[0].Stages[0].IsComplete = false

	delta, err := navigation.Compute(m, navigation.Actor{UserID: "user-ava", IsFacilitator: true}, navigation.Request{
		CompletedStageID:   "reflect-1",
		FacilitatorStageID: "vote-1",
	})
	require.NoError(t, err)

	viewer := NewClient(m, "socket-ben", false)
	viewer.BeginInteraction()

	viewer.ApplyAuthoritative(delta, "socket-ava")

	// Mid-edit on an interruption-sensitive phase: position preserved,
	// reconciliation deferred.
	assert.Equal(t, "reflect-1", viewer.LocalStageID)
	assert.Equal(t, "vote-1", viewer.Meeting.FacilitatorStageID)

	viewer.EndInteraction()
	assert.Equal(t, "vote-1", viewer.LocalStageID)
}

func TestApplyAuthoritative_TypingElsewhereStillFollows(t *testing.T) {
	m := newReplicaMeeting(t)
	delta, _ := completeVote(t, m)

	viewer := NewClient(m, "socket-ben", false)
	viewer.BeginInteraction() // typing, but the vote phase is not interruption-sensitive

	viewer.ApplyAuthoritative(delta, "socket-ava")
	assert.Equal(t, delta.FacilitatorStageID, viewer.LocalStageID)
}

func TestApplyAuthoritative_EchoSkipsFollow(t *testing.T) {
	m := newReplicaMeeting(t)

	facilitatorClient := NewClient(m, "socket-ava", true)
	predicted, err := facilitatorClient.PredictNavigate(navigation.Request{
		CompletedStageID:   "vote-1",
		FacilitatorStageID: navigation.DiscussStageID(m.ID, "group-b"),
	})
	require.NoError(t, err)

	_, authoritative := completeVote(t, m)

	facilitatorClient.ApplyAuthoritative(predicted, "socket-ava")

	assert.Equal(t, authoritative.FacilitatorStageID, facilitatorClient.LocalStageID)
	assert.Equal(t, authoritative.Phases, facilitatorClient.Meeting.Phases)
}

func TestApplyAuthoritative_MinimalInvalidation(t *testing.T) {
	m := newReplicaMeeting(t)
	delta, authoritative := completeVote(t, m)

	viewer := NewClient(m, "socket-ben", false)
	// Local-only divergence in a phase the transition does not touch.
	viewer.Meeting.Phases[0].Stages[0].IsNavigable = false
	// Divergent prediction in a touched phase: a bogus discuss stage.
	discuss, _ := viewer.Meeting.PhaseByType(meeting.PhaseDiscuss)
	discuss.Stages = []meeting.Stage{{ID: "bogus", PhaseType: meeting.PhaseDiscuss}}

	viewer.ApplyAuthoritative(delta, "socket-ava")

	// The touched phase is replaced wholesale by the authoritative
	// snapshot; the untouched phase keeps its local state.
	gotDiscuss, _ := viewer.Meeting.PhaseByType(meeting.PhaseDiscuss)
	wantDiscuss, _ := authoritative.PhaseByType(meeting.PhaseDiscuss)
	assert.Equal(t, wantDiscuss.Stages, gotDiscuss.Stages)
	assert.False(t, viewer.Meeting.Phases[0].Stages[0].IsNavigable)
}

func TestApplyAuthoritative_ReplayedEnvelopesConverge(t *testing.T) {
	m := newReplicaMeeting(t)

	// First authoritative transition: complete vote, enter discuss.
	delta1, state1 := completeVote(t, m)

	// Second: complete the first discuss stage, advance to the next.
	first := navigation.DiscussStageID(m.ID, "group-b")
	second := navigation.DiscussStageID(m.ID, "group-a")
	delta2, err := navigation.Compute(state1, navigation.Actor{UserID: "user-ava", IsFacilitator: true}, navigation.Request{
		CompletedStageID:   first,
		FacilitatorStageID: second,
	})
	require.NoError(t, err)
	final := state1.Clone()
	navigation.Apply(final, delta2)

	viewer := NewClient(m, "socket-ben", false)
	for _, d := range []*navigation.Delta{delta1, delta2, delta1, delta2} {
		viewer.ApplyAuthoritative(d, "socket-ava")
	}

	assert.Equal(t, final.FacilitatorStageID, viewer.Meeting.FacilitatorStageID)
	assert.Equal(t, final.Phases, viewer.Meeting.Phases)
	assert.Equal(t, final.FacilitatorStageID, viewer.LocalStageID)
}
