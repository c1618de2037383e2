package meeting

import "errors"

// Error taxonomy shared across the navigation engine, the end-meeting
// aggregator and the HTTP surface. Callers match with errors.Is.
var (
	// ErrNotFacilitator: a non-facilitator attempted an authoritative move.
	ErrNotFacilitator = errors.New("actor is not the facilitator")

	// ErrInvalidTransition: the requested stage is not navigable or is
	// already complete.
	ErrInvalidTransition = errors.New("invalid stage transition")

	// ErrInvalidStage: the requested stage id does not exist in the meeting.
	ErrInvalidStage = errors.New("unknown stage")

	// ErrMeetingAlreadyEnded: the meeting has an endedAt timestamp.
	ErrMeetingAlreadyEnded = errors.New("meeting already ended")

	// ErrNoActiveMeeting: the team has no meeting with endedAt unset.
	ErrNoActiveMeeting = errors.New("no active meeting")

	// ErrStaleTransition: the facilitator position moved between read and
	// write and a single retry against fresh state also lost the race.
	ErrStaleTransition = errors.New("stale transition")

	// ErrNotTeamMember: the actor lacks membership on the target team.
	ErrNotTeamMember = errors.New("actor is not a team member")
)
