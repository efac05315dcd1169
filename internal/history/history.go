// Package history records manual advances: when each began, what it targeted,
// and how it ended.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dokzlo13/climated/internal/schedule"
)

// EndReason says how an advance ended.
type EndReason string

const (
	EndCancelled EndReason = "cancelled"
	EndExpired   EndReason = "expired"
	EndReplaced  EndReason = "replaced"
	EndDeleted   EndReason = "deleted"
)

// Entry is one advance.
type Entry struct {
	ID          string          `json:"id"`
	Group       string          `json:"group"`
	ActivatedAt time.Time       `json:"activated_at"`
	NaturalTime time.Time       `json:"target_time"`
	TargetDay   schedule.DayKey `json:"target_day"`
	TargetNode  schedule.Node   `json:"target_node"`
	EndedAt     *time.Time      `json:"cancelled_at"`
	EndReason   EndReason       `json:"end_reason,omitempty"`
}

// Store persists advance history in SQLite.
type Store struct {
	db *sql.DB
}

// New creates a history store on an open database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record inserts a new, open entry.
func (s *Store) Record(e Entry) error {
	node, err := json.Marshal(e.TargetNode)
	if err != nil {
		return fmt.Errorf("failed to marshal target node: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO advance_history (id, group_id, activated_at, natural_time, target_day, target_node)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.Group, e.ActivatedAt.UTC().Unix(), e.NaturalTime.UTC().Unix(), string(e.TargetDay), string(node))
	return err
}

// End closes an open entry. Entries already closed are left untouched.
func (s *Store) End(id string, at time.Time, reason EndReason) error {
	_, err := s.db.Exec(`
		UPDATE advance_history SET ended_at = ?, end_reason = ?
		WHERE id = ? AND ended_at IS NULL
	`, at.UTC().Unix(), string(reason), id)
	return err
}

// Since returns a group's entries activated at or after since, oldest first.
func (s *Store) Since(group string, since time.Time) ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT id, group_id, activated_at, natural_time, target_day, target_node, ended_at, end_reason
		FROM advance_history
		WHERE group_id = ? AND activated_at >= ?
		ORDER BY activated_at ASC
	`, group, since.UTC().Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var activated, natural int64
		var day, node string
		var ended sql.NullInt64
		var reason sql.NullString

		if err := rows.Scan(&e.ID, &e.Group, &activated, &natural, &day, &node, &ended, &reason); err != nil {
			return nil, err
		}
		e.ActivatedAt = time.Unix(activated, 0).UTC()
		e.NaturalTime = time.Unix(natural, 0).UTC()
		e.TargetDay = schedule.DayKey(day)
		if err := json.Unmarshal([]byte(node), &e.TargetNode); err != nil {
			return nil, fmt.Errorf("failed to unmarshal target node: %w", err)
		}
		if ended.Valid {
			t := time.Unix(ended.Int64, 0).UTC()
			e.EndedAt = &t
		}
		e.EndReason = EndReason(reason.String)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Clear deletes a group's history.
func (s *Store) Clear(group string) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM advance_history WHERE group_id = ?`, group)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Rename moves history to a renamed group.
func (s *Store) Rename(oldGroup, newGroup string) error {
	_, err := s.db.Exec(`UPDATE advance_history SET group_id = ? WHERE group_id = ?`, newGroup, oldGroup)
	return err
}

// DeleteOlderThan removes closed entries activated before cutoff.
func (s *Store) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result, err := s.db.Exec(`
		DELETE FROM advance_history WHERE activated_at < ? AND ended_at IS NOT NULL
	`, cutoff.UTC().Unix())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
