// Package mysql is the production Store. Meetings, teams, members and
// tasks are stored as JSON documents with the columns the queries filter
// on lifted out, mirroring the document-store shape the domain model
// assumes. The unique key on timeline_events (meeting_id, user_id,
// event_type) makes event insertion idempotent.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/convenehq/convene/internal/meeting"
	"github.com/convenehq/convene/internal/store"
)

// Store implements store.Store on MySQL.
type Store struct {
	DB *sql.DB
}

// Open connects and verifies the database.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{DB: db}, nil
}

// View runs fn inside a read-only transaction.
func (s *Store) View(ctx context.Context, fn func(store.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin read transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqlTx{ctx: ctx, tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// Atomically runs fn inside a serializable transaction; any error rolls
// the whole unit back.
func (s *Store) Atomically(ctx context.Context, fn func(store.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() // Will be ignored if transaction is committed

	if err := fn(&sqlTx{ctx: ctx, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// InsertTimelineEvents inserts events, ignoring duplicates of the
// (meeting_id, user_id, event_type) unique key.
func (s *Store) InsertTimelineEvents(ctx context.Context, events []meeting.TimelineEvent) error {
	query := `
		INSERT IGNORE INTO timeline_events
			(event_id, event_type, created_at, user_id, team_id, org_id, meeting_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	for _, ev := range events {
		_, err := s.DB.ExecContext(ctx, query,
			ev.ID, ev.Type, ev.CreatedAt, ev.UserID, ev.TeamID, ev.OrgID, ev.MeetingID)
		if err != nil {
			return fmt.Errorf("insert timeline event: %w", err)
		}
	}
	return nil
}

type sqlTx struct {
	ctx context.Context
	tx  *sql.Tx
}

func (t *sqlTx) LatestMeeting(teamID string) (*meeting.Meeting, error) {
	query := `
		SELECT doc FROM meetings
		WHERE team_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`
	return t.scanMeeting(t.tx.QueryRowContext(t.ctx, query, teamID), teamID)
}

func (t *sqlTx) Meeting(meetingID string) (*meeting.Meeting, error) {
	query := `SELECT doc FROM meetings WHERE meeting_id = ?`
	return t.scanMeeting(t.tx.QueryRowContext(t.ctx, query, meetingID), meetingID)
}

func (t *sqlTx) scanMeeting(row *sql.Row, key string) (*meeting.Meeting, error) {
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("meeting %s: %w", key, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query meeting: %w", err)
	}
	var m meeting.Meeting
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, fmt.Errorf("decode meeting document: %w", err)
	}
	return &m, nil
}

func (t *sqlTx) Team(teamID string) (*meeting.Team, error) {
	var doc []byte
	query := `SELECT doc FROM teams WHERE team_id = ?`
	if err := t.tx.QueryRowContext(t.ctx, query, teamID).Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("team %s: %w", teamID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query team: %w", err)
	}
	var team meeting.Team
	if err := json.Unmarshal(doc, &team); err != nil {
		return nil, fmt.Errorf("decode team document: %w", err)
	}
	return &team, nil
}

func (t *sqlTx) TeamMembers(teamID string) ([]meeting.TeamMember, error) {
	query := `SELECT doc FROM team_members WHERE team_id = ? ORDER BY member_id`
	rows, err := t.tx.QueryContext(t.ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("query team members: %w", err)
	}
	defer rows.Close()

	var out []meeting.TeamMember
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan team member: %w", err)
		}
		var tm meeting.TeamMember
		if err := json.Unmarshal(doc, &tm); err != nil {
			return nil, fmt.Errorf("decode team member document: %w", err)
		}
		out = append(out, tm)
	}
	return out, rows.Err()
}

func (t *sqlTx) TasksByTeam(teamID string) ([]meeting.Task, error) {
	query := `SELECT doc FROM tasks WHERE team_id = ? ORDER BY created_at`
	rows, err := t.tx.QueryContext(t.ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var out []meeting.Task
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		var task meeting.Task
		if err := json.Unmarshal(doc, &task); err != nil {
			return nil, fmt.Errorf("decode task document: %w", err)
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

func (t *sqlTx) ActiveAgendaItemCount(teamID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM agenda_items WHERE team_id = ? AND is_active = 1`
	if err := t.tx.QueryRowContext(t.ctx, query, teamID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count agenda items: %w", err)
	}
	return count, nil
}

func (t *sqlTx) UpdateMeeting(m *meeting.Meeting) error {
	doc, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode meeting document: %w", err)
	}
	query := `
		UPDATE meetings
		SET doc = ?, ended_at = ?, facilitator_stage_id = ?
		WHERE meeting_id = ?
	`
	result, err := t.tx.ExecContext(t.ctx, query, doc, m.EndedAt, m.FacilitatorStageID, m.ID)
	if err != nil {
		return fmt.Errorf("update meeting: %w", err)
	}
	return requireRow(result, m.ID)
}

func (t *sqlTx) UpdateMeetingNavigation(m *meeting.Meeting, expectedFacilitatorStageID string) error {
	doc, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode meeting document: %w", err)
	}
	query := `
		UPDATE meetings
		SET doc = ?, facilitator_stage_id = ?
		WHERE meeting_id = ? AND facilitator_stage_id = ?
	`
	result, err := t.tx.ExecContext(t.ctx, query, doc, m.FacilitatorStageID, m.ID, expectedFacilitatorStageID)
	if err != nil {
		return fmt.Errorf("update meeting navigation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update meeting navigation: %w", err)
	}
	if affected == 0 {
		return meeting.ErrStaleTransition
	}
	return nil
}

func (t *sqlTx) UpdateTeam(team *meeting.Team) error {
	doc, err := json.Marshal(team)
	if err != nil {
		return fmt.Errorf("encode team document: %w", err)
	}
	query := `UPDATE teams SET doc = ? WHERE team_id = ?`
	result, err := t.tx.ExecContext(t.ctx, query, doc, team.ID)
	if err != nil {
		return fmt.Errorf("update team: %w", err)
	}
	return requireRow(result, team.ID)
}

func (t *sqlTx) UpdateTeamMember(tm meeting.TeamMember) error {
	doc, err := json.Marshal(tm)
	if err != nil {
		return fmt.Errorf("encode team member document: %w", err)
	}
	query := `UPDATE team_members SET doc = ? WHERE member_id = ?`
	result, err := t.tx.ExecContext(t.ctx, query, doc, tm.ID)
	if err != nil {
		return fmt.Errorf("update team member: %w", err)
	}
	return requireRow(result, tm.ID)
}

func (t *sqlTx) UpdateTaskSortOrder(taskID string, sortOrder float64) error {
	query := `
		UPDATE tasks
		SET sort_order = ?, doc = JSON_SET(doc, '$.sortOrder', ?)
		WHERE task_id = ?
	`
	result, err := t.tx.ExecContext(t.ctx, query, sortOrder, sortOrder, taskID)
	if err != nil {
		return fmt.Errorf("update task sort order: %w", err)
	}
	return requireRow(result, taskID)
}

func (t *sqlTx) DeactivateAgendaItems(teamID string) error {
	query := `UPDATE agenda_items SET is_active = 0 WHERE team_id = ?`
	if _, err := t.tx.ExecContext(t.ctx, query, teamID); err != nil {
		return fmt.Errorf("deactivate agenda items: %w", err)
	}
	return nil
}

func requireRow(result sql.Result, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", id, store.ErrNotFound)
	}
	return nil
}
