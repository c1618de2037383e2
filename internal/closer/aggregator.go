// Package closer ends a meeting: it freezes task state into the meeting
// record, snapshots invitees, resets the team back to the lobby, rotates
// the check-in order, archives completed work and fans out notifications
// to every affected party exactly once.
package closer

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/convenehq/convene/internal/auth"
	"github.com/convenehq/convene/internal/collab"
	"github.com/convenehq/convene/internal/logger"
	"github.com/convenehq/convene/internal/meeting"
	"github.com/convenehq/convene/internal/pubsub"
	"github.com/convenehq/convene/internal/store"
)

// transientAttempts bounds retries against idempotent collaborators.
const transientAttempts = 3

// EndMeetingPayload is fanned out to the team topic and to each member's
// task topic after a close commits. The lead's notification topic receives
// a variant carrying RemovedSuggestedActionID.
type EndMeetingPayload struct {
	Team                     *meeting.Team         `json:"team,omitempty"`
	ArchivedTasks            []collab.ArchivedTask `json:"archivedTasks,omitempty"`
	MeetingID                string                `json:"meetingId"`
	RemovedSuggestedActionID string                `json:"removedSuggestedActionId,omitempty"`
}

func (EndMeetingPayload) PayloadType() string { return "EndMeetingPayload" }

// Result is the close operation's return contract.
type Result struct {
	Team          *meeting.Team
	ArchivedTasks []collab.ArchivedTask
	MeetingID     string
}

// Aggregator closes meetings. The two Atomically blocks are the durability
// boundary: everything inside them fully applies or not at all, and the
// precondition re-check inside the first block serializes concurrent close
// attempts without an application-level lock.
type Aggregator struct {
	Store     store.Store
	Pub       pubsub.Publisher
	Auth      auth.Authorizer
	Ordering  collab.OrderingService
	Archival  collab.ArchivalService
	Telemetry collab.Telemetry
	Chat      collab.ChatNotifier
	Email     collab.EmailSender
	Suggested collab.SuggestedActionService
	Summary   collab.SummaryComposer
	Log       *logger.Logger

	// Rand drives the check-in rotation; Now stamps endedAt. Both are
	// injectable for tests and default to the obvious sources.
	Rand *rand.Rand
	Now  func() time.Time

	sideEffects sync.WaitGroup
}

// Flush waits for detached best-effort side effects to finish. Tests (and
// graceful shutdown) call it; request handlers never do.
func (ag *Aggregator) Flush() {
	ag.sideEffects.Wait()
}

// CloseMeeting finishes the team's active meeting and returns the closed
// result. Precondition failures (no active meeting, already ended, not a
// member) surface to the caller; post-commit collaborator failures are
// retried or logged but never un-close the meeting.
func (ag *Aggregator) CloseMeeting(ctx context.Context, teamID string, actor auth.Identity, mutatorID string) (*Result, error) {
	log := ag.Log.WithTeam(teamID)

	if !actor.IsSuperUser {
		isMember, err := ag.Auth.IsTeamMember(ctx, actor, teamID)
		if err != nil {
			return nil, fmt.Errorf("membership check: %w", err)
		}
		if !isMember {
			return nil, fmt.Errorf("user %s on team %s: %w", actor.UserID, teamID, meeting.ErrNotTeamMember)
		}
	}

	now := ag.now()
	var (
		completed *meeting.Meeting
		members   []meeting.TeamMember
	)

	// First atomic unit: precondition re-check plus the meeting close-out
	// write. Only one concurrent close can observe endedAt unset here.
	err := ag.Store.Atomically(ctx, func(tx store.Tx) error {
		m, err := tx.LatestMeeting(teamID)
		if err != nil {
			return fmt.Errorf("%w: %s", meeting.ErrNoActiveMeeting, teamID)
		}
		if m.Ended() {
			return meeting.ErrMeetingAlreadyEnded
		}
		team, err := tx.Team(teamID)
		if err != nil {
			return err
		}
		members, err = tx.TeamMembers(teamID)
		if err != nil {
			return err
		}
		tasks, err := tx.TasksByTeam(teamID)
		if err != nil {
			return err
		}
		agendaCount, err := tx.ActiveAgendaItemCount(teamID)
		if err != nil {
			return err
		}

		snapshots := selectSnapshotTasks(m, tasks)
		expression, statement := ag.Summary.ComposeSuccessSummary()

		m.EndedAt = &now
		m.Facilitator = team.ActiveFacilitator
		m.SuccessExpression = expression
		m.SuccessStatement = statement
		m.AgendaItemsCompleted = agendaCount
		m.Invitees = buildInvitees(members, snapshots)
		m.Tasks = snapshots
		if err := tx.UpdateMeeting(m); err != nil {
			return err
		}
		completed = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	log = log.WithMeeting(completed.ID)

	// Sort orders come from an external collaborator; the snapshot is its
	// input and the canonical task records receive the result. A
	// persistent ordering failure must not block the team reset, and it
	// must leave the canonical sort orders untouched.
	var ordered []meeting.TaskSnapshot
	err = ag.retryTransient(func() error {
		var oerr error
		ordered, oerr = ag.Ordering.ComputeSortOrders(ctx, completed.Tasks)
		return oerr
	})
	if err != nil {
		log.Error("sort order computation failed, keeping canonical order", "error", err)
		ordered = nil
	}

	// Second atomic unit: canonical sort orders, team reset, agenda
	// deactivation, check-in rotation and archival candidate collection.
	var (
		resetTeam  *meeting.Team
		candidates []collab.ArchiveCandidate
	)
	err = ag.Store.Atomically(ctx, func(tx store.Tx) error {
		for _, snap := range ordered {
			id, perr := meeting.ParseSnapshotTaskID(snap.ID)
			if perr != nil {
				return perr
			}
			if uerr := tx.UpdateTaskSortOrder(id.TaskID, snap.SortOrder); uerr != nil {
				return uerr
			}
		}

		team, terr := tx.Team(teamID)
		if terr != nil {
			return terr
		}
		team.ResetToLobby()
		if terr := tx.UpdateTeam(team); terr != nil {
			return terr
		}
		resetTeam = team

		if derr := tx.DeactivateAgendaItems(teamID); derr != nil {
			return derr
		}

		all, merr := tx.TeamMembers(teamID)
		if merr != nil {
			return merr
		}
		perm := ag.rand().Perm(len(all))
		for i := range all {
			all[i].CheckInOrder = perm[i]
			all[i].IsCheckedIn = meeting.CheckInUnknown
			if uerr := tx.UpdateTeamMember(all[i]); uerr != nil {
				return uerr
			}
		}

		tasks, aerr := tx.TasksByTeam(teamID)
		if aerr != nil {
			return aerr
		}
		for _, t := range tasks {
			if t.Status == meeting.StatusDone && !t.HasTag(meeting.TagArchived) {
				candidates = append(candidates, collab.ArchiveCandidate{
					ID:      t.ID,
					Content: t.Content,
					Tags:    append([]string(nil), t.Tags...),
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var archived []collab.ArchivedTask
	err = ag.retryTransient(func() error {
		var aerr error
		archived, aerr = ag.Archival.ArchiveTasks(ctx, candidates)
		return aerr
	})
	if err != nil {
		log.Error("archival failed", "error", err, "candidates", len(candidates))
		archived = nil
	}

	// Detached best-effort side effects: analytics, chat, email. Failures
	// are collected and logged, never surfaced. The goroutine outlives the
	// request, so it must not inherit the request's cancellation.
	presentUserIDs := presentInvitees(completed.Invitees)
	detached := context.WithoutCancel(ctx)
	ag.sideEffects.Add(1)
	go func() {
		defer ag.sideEffects.Done()
		var errs error
		errs = multierr.Append(errs, ag.Telemetry.RecordEvent(detached, "Meeting Completed", presentUserIDs, map[string]interface{}{
			"teamId":        teamID,
			"meetingNumber": completed.MeetingNumber,
		}))
		errs = multierr.Append(errs, ag.Chat.NotifyMeetingEnded(detached, completed.ID, teamID))
		errs = multierr.Append(errs, ag.Email.SendSummaryEmail(detached, completed))
		if errs != nil {
			log.Warn("best-effort side effects failed", "error", errs)
		}
	}()

	// Removed members still rotate through the check-in shuffle above, but
	// only current members get timeline events and notifications.
	var active []meeting.TeamMember
	for _, tm := range members {
		if tm.IsNotRemoved {
			active = append(active, tm)
		}
	}

	events := make([]meeting.TimelineEvent, len(active))
	for i, tm := range active {
		events[i] = meeting.TimelineEvent{
			ID:        uuid.NewString(),
			Type:      meeting.TimelineEventMeetingCompleted,
			CreatedAt: now,
			UserID:    tm.UserID,
			TeamID:    teamID,
			OrgID:     resetTeam.OrgID,
			MeetingID: completed.ID,
		}
	}
	if err := ag.Store.InsertTimelineEvents(ctx, events); err != nil {
		return nil, fmt.Errorf("timeline events: %w", err)
	}

	opts := pubsub.SubOptions{MutatorID: mutatorID, OperationID: pubsub.NewOperationID()}

	if resetTeam.IsOnboardTeam {
		ag.clearOnboardingPrompt(ctx, log, active, completed.ID, opts)
	}

	data := EndMeetingPayload{
		Team:          resetTeam,
		ArchivedTasks: archived,
		MeetingID:     completed.ID,
	}
	ag.Pub.Publish(ctx, pubsub.Topic{Kind: pubsub.TopicTeam, ID: teamID}, data, opts)
	for _, tm := range active {
		ag.Pub.Publish(ctx, pubsub.Topic{Kind: pubsub.TopicTask, ID: tm.UserID}, data, opts)
	}

	// Audit log
	log.Audit("meeting closed",
		"meeting_number", completed.MeetingNumber,
		"tasks", len(completed.Tasks),
		"archived", len(archived))

	return &Result{Team: resetTeam, ArchivedTasks: archived, MeetingID: completed.ID}, nil
}

// clearOnboardingPrompt removes the team lead's "try an action meeting"
// suggested action and, when one was pending, notifies the lead. Failures
// here are best-effort.
func (ag *Aggregator) clearOnboardingPrompt(ctx context.Context, log *logger.Logger, members []meeting.TeamMember, meetingID string, opts pubsub.SubOptions) {
	var lead *meeting.TeamMember
	for i := range members {
		if members[i].IsLead {
			lead = &members[i]
			break
		}
	}
	if lead == nil {
		return
	}
	removedID, err := ag.Suggested.RemoveSuggestedAction(ctx, lead.UserID, collab.SuggestedActionTryActionMeeting)
	if err != nil {
		log.Warn("suggested action removal failed", "user_id", lead.UserID, "error", err)
		return
	}
	if removedID == "" {
		return
	}
	ag.Pub.Publish(ctx, pubsub.Topic{Kind: pubsub.TopicNotification, ID: lead.UserID}, EndMeetingPayload{
		MeetingID:                meetingID,
		RemovedSuggestedActionID: removedID,
	}, opts)
}

// selectSnapshotTasks picks the tasks frozen into the completed meeting:
// not private, and either created since the meeting started or done but
// not yet archived. Order is creation time ascending; ids are re-keyed to
// the composite snapshot form.
func selectSnapshotTasks(m *meeting.Meeting, tasks []meeting.Task) []meeting.TaskSnapshot {
	var picked []meeting.Task
	for _, t := range tasks {
		if t.HasTag(meeting.TagPrivate) {
			continue
		}
		createdDuring := !t.CreatedAt.Before(m.CreatedAt)
		doneUnarchived := t.Status == meeting.StatusDone && !t.HasTag(meeting.TagArchived)
		if createdDuring || doneUnarchived {
			picked = append(picked, t)
		}
	}
	sort.SliceStable(picked, func(i, j int) bool { return picked[i].CreatedAt.Before(picked[j].CreatedAt) })

	out := make([]meeting.TaskSnapshot, len(picked))
	for i, t := range picked {
		out[i] = meeting.SnapshotTask(m.ID, t)
	}
	return out
}

// buildInvitees snapshots the non-removed members in preferred-name order.
// The tri-state check-in collapses to a boolean; unknown counts as absent.
func buildInvitees(members []meeting.TeamMember, snapshots []meeting.TaskSnapshot) []meeting.Invitee {
	var active []meeting.TeamMember
	for _, tm := range members {
		if tm.IsNotRemoved {
			active = append(active, tm)
		}
	}
	sort.SliceStable(active, func(i, j int) bool { return active[i].PreferredName < active[j].PreferredName })

	out := make([]meeting.Invitee, len(active))
	for i, tm := range active {
		var assigned []meeting.TaskSnapshot
		for _, snap := range snapshots {
			if snap.AssigneeID == tm.ID {
				assigned = append(assigned, snap)
			}
		}
		out[i] = meeting.Invitee{
			ID:            tm.ID,
			UserID:        tm.UserID,
			Picture:       tm.Picture,
			PreferredName: tm.PreferredName,
			Present:       tm.IsCheckedIn.Present(),
			Tasks:         assigned,
		}
	}
	return out
}

func presentInvitees(invitees []meeting.Invitee) []string {
	var out []string
	for _, inv := range invitees {
		if inv.Present {
			out = append(out, inv.UserID)
		}
	}
	return out
}

func (ag *Aggregator) retryTransient(fn func() error) error {
	var err error
	for i := 0; i < transientAttempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}

func (ag *Aggregator) now() time.Time {
	if ag.Now != nil {
		return ag.Now()
	}
	return time.Now().UTC()
}

func (ag *Aggregator) rand() *rand.Rand {
	if ag.Rand != nil {
		return ag.Rand
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}
