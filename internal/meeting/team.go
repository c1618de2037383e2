package meeting

import "time"

// Lobby is the navigation pointer value for a team with no meeting running.
const Lobby = "lobby"

// CheckInState is the tri-state presence flag on a team member.
type CheckInState int8

const (
	CheckInUnknown CheckInState = iota
	CheckedIn
	NotCheckedIn
)

// Present collapses the tri-state to a boolean; unknown counts as absent.
func (s CheckInState) Present() bool {
	return s == CheckedIn
}

// TeamMember is a user's membership on a team. CheckInOrder and IsCheckedIn
// are reassigned every meeting close; the rest is owned by presence updates.
type TeamMember struct {
	ID            string       `json:"id"`
	TeamID        string       `json:"teamId"`
	UserID        string       `json:"userId"`
	PreferredName string       `json:"preferredName"`
	Picture       string       `json:"picture,omitempty"`
	IsCheckedIn   CheckInState `json:"isCheckedIn"`
	CheckInOrder  int          `json:"checkInOrder"`
	IsLead        bool         `json:"isLead"`
	IsNotRemoved  bool         `json:"isNotRemoved"`
}

// Team carries the navigation pointers the end-meeting aggregator resets.
type Team struct {
	ID                   string `json:"id"`
	OrgID                string `json:"orgId"`
	Name                 string `json:"name"`
	IsOnboardTeam        bool   `json:"isOnboardTeam"`
	FacilitatorPhase     string `json:"facilitatorPhase"`
	MeetingPhase         string `json:"meetingPhase"`
	MeetingID            string `json:"meetingId,omitempty"`
	FacilitatorPhaseItem int    `json:"facilitatorPhaseItem,omitempty"`
	MeetingPhaseItem     int    `json:"meetingPhaseItem,omitempty"`
	ActiveFacilitator    string `json:"activeFacilitator,omitempty"`
}

// ResetToLobby clears the team's meeting pointers back to their idle
// defaults.
func (t *Team) ResetToLobby() {
	t.FacilitatorPhase = Lobby
	t.MeetingPhase = Lobby
	t.MeetingID = ""
	t.FacilitatorPhaseItem = 0
	t.MeetingPhaseItem = 0
	t.ActiveFacilitator = ""
}

// AgendaItem is a discussion topic queued for the meeting.
type AgendaItem struct {
	ID       string `json:"id"`
	TeamID   string `json:"teamId"`
	Content  string `json:"content"`
	IsActive bool   `json:"isActive"`
}

// Timeline event types.
const TimelineEventMeetingCompleted = "COMPLETED_ACTION_MEETING"

// TimelineEvent is a per-user history entry recorded when a meeting closes.
type TimelineEvent struct {
	ID               string    `json:"id"`
	Type             string    `json:"type"`
	CreatedAt        time.Time `json:"createdAt"`
	InteractionCount int       `json:"interactionCount"`
	SeenCount        int       `json:"seenCount"`
	UserID           string    `json:"userId"`
	TeamID           string    `json:"teamId"`
	OrgID            string    `json:"orgId"`
	MeetingID        string    `json:"meetingId"`
}
