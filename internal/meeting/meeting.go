package meeting

import (
	"time"
)

// PhaseType enumerates the closed set of agenda phases.
type PhaseType string

const (
	PhaseCheckIn PhaseType = "checkin"
	PhaseReflect PhaseType = "reflect"
	PhaseGroup   PhaseType = "group"
	PhaseVote    PhaseType = "vote"
	PhaseDiscuss PhaseType = "discuss"
)

// InterruptionSensitive reports whether a viewer may be mid-edit on this
// phase. While a viewer is typing in such a phase, a facilitator move must
// not yank their local position out from under them.
func (p PhaseType) InterruptionSensitive() bool {
	return p == PhaseReflect
}

// Stage is an atomic, orderable step within a phase.
type Stage struct {
	ID                       string    `json:"id"`
	PhaseType                PhaseType `json:"phaseType"`
	SortOrder                int       `json:"sortOrder"`
	IsComplete               bool      `json:"isComplete"`
	IsNavigable              bool      `json:"isNavigable"`
	IsNavigableByFacilitator bool      `json:"isNavigableByFacilitator"`

	// ReflectionGroupID is set on discuss stages materialized from vote
	// results; empty everywhere else.
	ReflectionGroupID string `json:"reflectionGroupId,omitempty"`
}

// Phase is an ordered group of stages sharing a type. Order is significant:
// navigation is sequential within and across phases.
type Phase struct {
	ID        string    `json:"id"`
	PhaseType PhaseType `json:"phaseType"`
	Stages    []Stage   `json:"stages"`
}

// ReflectionGroup is a voted-on cluster of reflections. SortOrder records
// creation order and breaks vote-count ties when discuss stages are
// materialized.
type ReflectionGroup struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	VoteCount int    `json:"voteCount"`
	SortOrder int    `json:"sortOrder"`
}

// Invitee is a team member snapshot frozen into a completed meeting.
type Invitee struct {
	ID            string         `json:"id"`
	UserID        string         `json:"userId"`
	Picture       string         `json:"picture,omitempty"`
	PreferredName string         `json:"preferredName"`
	Present       bool           `json:"present"`
	Tasks         []TaskSnapshot `json:"tasks"`
}

// Meeting is the shared, phase-structured agenda a facilitator drives.
// EndedAt is nil while the meeting is active. Invitees, Tasks,
// AgendaItemsCompleted and the summary fields are written exactly once, by
// the end-meeting aggregator.
type Meeting struct {
	ID                 string            `json:"id"`
	TeamID             string            `json:"teamId"`
	CreatedAt          time.Time         `json:"createdAt"`
	EndedAt            *time.Time        `json:"endedAt,omitempty"`
	MeetingNumber      int               `json:"meetingNumber"`
	Phases             []Phase           `json:"phases"`
	FacilitatorStageID string            `json:"facilitatorStageId"`
	ReflectionGroups   []ReflectionGroup `json:"reflectionGroups,omitempty"`

	// Close-out fields, populated by the aggregator.
	Facilitator          string         `json:"facilitator,omitempty"`
	SuccessExpression    string         `json:"successExpression,omitempty"`
	SuccessStatement     string         `json:"successStatement,omitempty"`
	AgendaItemsCompleted int            `json:"agendaItemsCompleted,omitempty"`
	Invitees             []Invitee      `json:"invitees,omitempty"`
	Tasks                []TaskSnapshot `json:"tasks,omitempty"`
}

// Ended reports whether the meeting has been closed out.
func (m *Meeting) Ended() bool {
	return m.EndedAt != nil
}

// StageByID returns pointers into the meeting's phase slice for the stage
// with the given id and its containing phase.
func (m *Meeting) StageByID(stageID string) (*Stage, *Phase, bool) {
	for pi := range m.Phases {
		phase := &m.Phases[pi]
		for si := range phase.Stages {
			if phase.Stages[si].ID == stageID {
				return &phase.Stages[si], phase, true
			}
		}
	}
	return nil, nil, false
}

// StageAfter returns the next stage in flattened phase order after the given
// stage id, crossing phase boundaries.
func (m *Meeting) StageAfter(stageID string) (*Stage, bool) {
	found := false
	for pi := range m.Phases {
		phase := &m.Phases[pi]
		for si := range phase.Stages {
			if found {
				return &phase.Stages[si], true
			}
			if phase.Stages[si].ID == stageID {
				found = true
			}
		}
	}
	return nil, false
}

// PhaseByType returns the first phase of the given type.
func (m *Meeting) PhaseByType(pt PhaseType) (*Phase, bool) {
	for pi := range m.Phases {
		if m.Phases[pi].PhaseType == pt {
			return &m.Phases[pi], true
		}
	}
	return nil, false
}

// Clone returns a deep copy. The navigation engine and the optimistic
// reconciler both work on copies so the caller's snapshot stays untouched.
func (m *Meeting) Clone() *Meeting {
	if m == nil {
		return nil
	}
	out := *m
	if m.EndedAt != nil {
		t := *m.EndedAt
		out.EndedAt = &t
	}
	out.Phases = make([]Phase, len(m.Phases))
	for i, p := range m.Phases {
		cp := p
		cp.Stages = append([]Stage(nil), p.Stages...)
		out.Phases[i] = cp
	}
	out.ReflectionGroups = append([]ReflectionGroup(nil), m.ReflectionGroups...)
	out.Tasks = append([]TaskSnapshot(nil), m.Tasks...)
	if m.Invitees != nil {
		out.Invitees = make([]Invitee, len(m.Invitees))
		for i, inv := range m.Invitees {
			ci := inv
			ci.Tasks = append([]TaskSnapshot(nil), inv.Tasks...)
			out.Invitees[i] = ci
		}
	}
	return &out
}
