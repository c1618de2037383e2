package navigation

import (
	"context"
	"errors"
	"fmt"

	"github.com/convenehq/convene/internal/auth"
	"github.com/convenehq/convene/internal/logger"
	"github.com/convenehq/convene/internal/meeting"
	"github.com/convenehq/convene/internal/pubsub"
	"github.com/convenehq/convene/internal/store"
)

// NavigateMeetingPayload is the envelope payload fanned out after an
// authoritative transition commits.
type NavigateMeetingPayload struct {
	Delta Delta `json:"delta"`
}

func (NavigateMeetingPayload) PayloadType() string { return "NavigateMeetingPayload" }

// Authority re-runs the transition rules against durable state and is the
// only writer of facilitatorStageId. Writes are guarded by a compare-and-
// set on the stage the transition was computed from; a lost race retries
// once against fresh state before failing as stale.
type Authority struct {
	Store store.Store
	Pub   pubsub.Publisher
	Log   *logger.Logger
}

// Navigate validates, commits and fans out a facilitator transition.
// mutatorID is the socket id of the originating client.
func (a *Authority) Navigate(ctx context.Context, identity auth.Identity, meetingID string, req Request, mutatorID string) (*Delta, error) {
	const attempts = 2
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		delta, teamID, err := a.tryNavigate(ctx, identity, meetingID, req)
		if errors.Is(err, meeting.ErrStaleTransition) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}

		opts := pubsub.SubOptions{MutatorID: mutatorID, OperationID: pubsub.NewOperationID()}
		a.Pub.Publish(ctx, pubsub.Topic{Kind: pubsub.TopicTeam, ID: teamID}, NavigateMeetingPayload{Delta: *delta}, opts)
		a.Log.WithMeeting(meetingID).Debug("navigation committed",
			"facilitator_stage_id", delta.FacilitatorStageID,
			"completed_stage_id", delta.CompletedStageID)
		return delta, nil
	}
	return nil, lastErr
}

func (a *Authority) tryNavigate(ctx context.Context, identity auth.Identity, meetingID string, req Request) (*Delta, string, error) {
	var (
		m      *meeting.Meeting
		actor  Actor
		teamID string
	)
	err := a.Store.View(ctx, func(tx store.Tx) error {
		var err error
		m, err = tx.Meeting(meetingID)
		if err != nil {
			return err
		}
		team, err := tx.Team(m.TeamID)
		if err != nil {
			return err
		}
		members, err := tx.TeamMembers(m.TeamID)
		if err != nil {
			return err
		}
		teamID = team.ID
		for _, tm := range members {
			if tm.UserID == identity.UserID && tm.IsNotRemoved {
				actor = Actor{
					UserID:        identity.UserID,
					IsFacilitator: team.ActiveFacilitator == tm.ID,
				}
				return nil
			}
		}
		return fmt.Errorf("user %s on team %s: %w", identity.UserID, team.ID, meeting.ErrNotTeamMember)
	})
	if err != nil {
		return nil, "", err
	}

	expected := m.FacilitatorStageID
	delta, err := Compute(m, actor, req)
	if err != nil {
		return nil, "", err
	}

	applied := m.Clone()
	Apply(applied, delta)
	err = a.Store.Atomically(ctx, func(tx store.Tx) error {
		return tx.UpdateMeetingNavigation(applied, expected)
	})
	if err != nil {
		return nil, "", err
	}
	return delta, teamID, nil
}
