package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gaa1973/memo-platform/internal/model"
)

type MemoStore struct {
	db *sql.DB
}

func NewMemoStore(db *sql.DB) *MemoStore {
	return &MemoStore{db: db}
}

func scanMemo(scanner interface{ Scan(...any) error }) (*model.Memo, error) {
	var m model.Memo
	err := scanner.Scan(&m.ID, &m.Title, &m.Content, &m.AuthorID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

const memoCols = `id, title, content, author_id, created_at, updated_at`

// ListByAuthor returns the author's memos, newest first.
func (s *MemoStore) ListByAuthor(ctx context.Context, authorID int64) ([]model.Memo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memoCols+` FROM memos WHERE author_id = ? ORDER BY created_at DESC, id DESC`,
		authorID,
	)
	if err != nil {
		return nil, fmt.Errorf("list memos: %w", err)
	}
	defer rows.Close()

	memos := []model.Memo{}
	for rows.Next() {
		m, err := scanMemo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memo: %w", err)
		}
		memos = append(memos, *m)
	}
	return memos, rows.Err()
}

func (s *MemoStore) Create(ctx context.Context, title, content string, authorID int64) (*model.Memo, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO memos (title, content, author_id) VALUES (?, ?, ?)`,
		title, content, authorID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert memo: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID returns nil, nil when no memo has the id.
func (s *MemoStore) GetByID(ctx context.Context, id int64) (*model.Memo, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memoCols+` FROM memos WHERE id = ?`, id)
	m, err := scanMemo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get memo: %w", err)
	}
	return m, nil
}

// UpdateByAuthor rewrites title and content only when both id and author
// match, returning the number of rows touched (0 or 1).
func (s *MemoStore) UpdateByAuthor(ctx context.Context, id, authorID int64, title, content string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE memos SET title = ?, content = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND author_id = ?`,
		title, content, id, authorID,
	)
	if err != nil {
		return 0, fmt.Errorf("update memo: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}

// DeleteByAuthor removes the memo only when both id and author match,
// returning the number of rows touched (0 or 1).
func (s *MemoStore) DeleteByAuthor(ctx context.Context, id, authorID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM memos WHERE id = ? AND author_id = ?`, id, authorID)
	if err != nil {
		return 0, fmt.Errorf("delete memo: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
