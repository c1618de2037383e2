// Package store defines the transactional boundary the core logic depends
// on. The close-meeting aggregate write spans meetings, teams, team
// members, tasks and agenda items; Atomically must apply the whole unit or
// none of it. Implementations: the in-memory store in this package and the
// MySQL store in store/mysql.
package store

import (
	"context"
	"errors"

	"github.com/convenehq/convene/internal/meeting"
)

// ErrNotFound is returned for lookups of records that do not exist.
var ErrNotFound = errors.New("record not found")

// Tx exposes the reads and writes available inside one atomic unit.
type Tx interface {
	// LatestMeeting returns the team's most recent meeting by createdAt,
	// ended or not. ErrNotFound when the team has never met.
	LatestMeeting(teamID string) (*meeting.Meeting, error)
	Meeting(meetingID string) (*meeting.Meeting, error)
	Team(teamID string) (*meeting.Team, error)
	TeamMembers(teamID string) ([]meeting.TeamMember, error)
	TasksByTeam(teamID string) ([]meeting.Task, error)
	ActiveAgendaItemCount(teamID string) (int, error)

	UpdateMeeting(m *meeting.Meeting) error
	// UpdateMeetingNavigation writes the meeting only if its stored
	// facilitatorStageId still equals expected; otherwise it returns
	// meeting.ErrStaleTransition and writes nothing.
	UpdateMeetingNavigation(m *meeting.Meeting, expectedFacilitatorStageID string) error
	UpdateTeam(t *meeting.Team) error
	UpdateTeamMember(tm meeting.TeamMember) error
	UpdateTaskSortOrder(taskID string, sortOrder float64) error
	DeactivateAgendaItems(teamID string) error
}

// Store is the persistence collaborator.
type Store interface {
	// View runs fn against a consistent read-only snapshot.
	View(ctx context.Context, fn func(Tx) error) error
	// Atomically runs fn as one all-or-nothing unit. Any error from fn
	// aborts the whole unit with no partial writes.
	Atomically(ctx context.Context, fn func(Tx) error) error
	// InsertTimelineEvents records events, skipping any duplicate of an
	// already-recorded (meetingId, userId, type) triple.
	InsertTimelineEvents(ctx context.Context, events []meeting.TimelineEvent) error
}
