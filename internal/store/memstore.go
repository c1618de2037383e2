package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/convenehq/convene/internal/meeting"
)

// MemStore is an in-memory Store. Atomically serializes writers under one
// mutex and restores a snapshot on error, which gives the same
// all-or-nothing and serialization guarantees the production store
// provides through SQL transactions.
type MemStore struct {
	mu sync.RWMutex

	meetings    map[string]*meeting.Meeting
	teams       map[string]*meeting.Team
	members     map[string]meeting.TeamMember
	tasks       map[string]meeting.Task
	agendaItems map[string]meeting.AgendaItem

	timeline     []meeting.TimelineEvent
	timelineSeen map[string]bool
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		meetings:     make(map[string]*meeting.Meeting),
		teams:        make(map[string]*meeting.Team),
		members:      make(map[string]meeting.TeamMember),
		tasks:        make(map[string]meeting.Task),
		agendaItems:  make(map[string]meeting.AgendaItem),
		timelineSeen: make(map[string]bool),
	}
}

// Seeding helpers for tests and local development.

func (s *MemStore) PutMeeting(m *meeting.Meeting) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meetings[m.ID] = m.Clone()
}

func (s *MemStore) PutTeam(t *meeting.Team) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.teams[t.ID] = &cp
}

func (s *MemStore) PutTeamMember(tm meeting.TeamMember) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[tm.ID] = tm
}

func (s *MemStore) PutTask(t meeting.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
}

func (s *MemStore) PutAgendaItem(a meeting.AgendaItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agendaItems[a.ID] = a
}

// TimelineEvents returns everything recorded so far.
func (s *MemStore) TimelineEvents() []meeting.TimelineEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]meeting.TimelineEvent(nil), s.timeline...)
}

// Task returns a canonical task record.
func (s *MemStore) Task(taskID string) (meeting.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[taskID]
	return t, ok
}

// View runs fn against the store. It takes the write lock because the
// shared Tx type carries write methods; View callers are expected to only
// read.
func (s *MemStore) View(_ context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&memTx{s: s})
}

// Atomically runs fn as one unit; on error every write is rolled back.
func (s *MemStore) Atomically(_ context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	backup := s.snapshotLocked()
	if err := fn(&memTx{s: s}); err != nil {
		s.restoreLocked(backup)
		return err
	}
	return nil
}

// InsertTimelineEvents appends events, skipping duplicates of an already
// recorded (meetingId, userId, type) triple.
func (s *MemStore) InsertTimelineEvents(_ context.Context, events []meeting.TimelineEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		key := ev.MeetingID + "|" + ev.UserID + "|" + ev.Type
		if s.timelineSeen[key] {
			continue
		}
		s.timelineSeen[key] = true
		s.timeline = append(s.timeline, ev)
	}
	return nil
}

type memSnapshot struct {
	meetings    map[string]*meeting.Meeting
	teams       map[string]*meeting.Team
	members     map[string]meeting.TeamMember
	tasks       map[string]meeting.Task
	agendaItems map[string]meeting.AgendaItem
}

func (s *MemStore) snapshotLocked() memSnapshot {
	snap := memSnapshot{
		meetings:    make(map[string]*meeting.Meeting, len(s.meetings)),
		teams:       make(map[string]*meeting.Team, len(s.teams)),
		members:     make(map[string]meeting.TeamMember, len(s.members)),
		tasks:       make(map[string]meeting.Task, len(s.tasks)),
		agendaItems: make(map[string]meeting.AgendaItem, len(s.agendaItems)),
	}
	for id, m := range s.meetings {
		snap.meetings[id] = m.Clone()
	}
	for id, t := range s.teams {
		cp := *t
		snap.teams[id] = &cp
	}
	for id, tm := range s.members {
		snap.members[id] = tm
	}
	for id, t := range s.tasks {
		snap.tasks[id] = t
	}
	for id, a := range s.agendaItems {
		snap.agendaItems[id] = a
	}
	return snap
}

func (s *MemStore) restoreLocked(snap memSnapshot) {
	s.meetings = snap.meetings
	s.teams = snap.teams
	s.members = snap.members
	s.tasks = snap.tasks
	s.agendaItems = snap.agendaItems
}

// memTx operates directly on the store's maps; the caller holds the lock.
type memTx struct {
	s *MemStore
}

func (tx *memTx) LatestMeeting(teamID string) (*meeting.Meeting, error) {
	var latest *meeting.Meeting
	for _, m := range tx.s.meetings {
		if m.TeamID != teamID {
			continue
		}
		if latest == nil || m.CreatedAt.After(latest.CreatedAt) {
			latest = m
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("latest meeting for team %s: %w", teamID, ErrNotFound)
	}
	return latest.Clone(), nil
}

func (tx *memTx) Meeting(meetingID string) (*meeting.Meeting, error) {
	m, ok := tx.s.meetings[meetingID]
	if !ok {
		return nil, fmt.Errorf("meeting %s: %w", meetingID, ErrNotFound)
	}
	return m.Clone(), nil
}

func (tx *memTx) Team(teamID string) (*meeting.Team, error) {
	t, ok := tx.s.teams[teamID]
	if !ok {
		return nil, fmt.Errorf("team %s: %w", teamID, ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (tx *memTx) TeamMembers(teamID string) ([]meeting.TeamMember, error) {
	var out []meeting.TeamMember
	for _, tm := range tx.s.members {
		if tm.TeamID == teamID {
			out = append(out, tm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tx *memTx) TasksByTeam(teamID string) ([]meeting.Task, error) {
	var out []meeting.Task
	for _, t := range tx.s.tasks {
		if t.TeamID == teamID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (tx *memTx) ActiveAgendaItemCount(teamID string) (int, error) {
	count := 0
	for _, a := range tx.s.agendaItems {
		if a.TeamID == teamID && a.IsActive {
			count++
		}
	}
	return count, nil
}

func (tx *memTx) UpdateMeeting(m *meeting.Meeting) error {
	if _, ok := tx.s.meetings[m.ID]; !ok {
		return fmt.Errorf("meeting %s: %w", m.ID, ErrNotFound)
	}
	tx.s.meetings[m.ID] = m.Clone()
	return nil
}

func (tx *memTx) UpdateMeetingNavigation(m *meeting.Meeting, expectedFacilitatorStageID string) error {
	current, ok := tx.s.meetings[m.ID]
	if !ok {
		return fmt.Errorf("meeting %s: %w", m.ID, ErrNotFound)
	}
	if current.FacilitatorStageID != expectedFacilitatorStageID {
		return meeting.ErrStaleTransition
	}
	tx.s.meetings[m.ID] = m.Clone()
	return nil
}

func (tx *memTx) UpdateTeam(t *meeting.Team) error {
	if _, ok := tx.s.teams[t.ID]; !ok {
		return fmt.Errorf("team %s: %w", t.ID, ErrNotFound)
	}
	cp := *t
	tx.s.teams[t.ID] = &cp
	return nil
}

func (tx *memTx) UpdateTeamMember(tm meeting.TeamMember) error {
	if _, ok := tx.s.members[tm.ID]; !ok {
		return fmt.Errorf("team member %s: %w", tm.ID, ErrNotFound)
	}
	tx.s.members[tm.ID] = tm
	return nil
}

func (tx *memTx) UpdateTaskSortOrder(taskID string, sortOrder float64) error {
	t, ok := tx.s.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	t.SortOrder = sortOrder
	tx.s.tasks[taskID] = t
	return nil
}

func (tx *memTx) DeactivateAgendaItems(teamID string) error {
	for id, a := range tx.s.agendaItems {
		if a.TeamID == teamID && a.IsActive {
			a.IsActive = false
			tx.s.agendaItems[id] = a
		}
	}
	return nil
}
