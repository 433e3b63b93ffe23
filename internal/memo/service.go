// Package memo holds the ownership rules for memos. Reads distinguish a
// missing memo from someone else's memo; writes never do.
package memo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gaa1973/memo-platform/internal/model"
	"github.com/gaa1973/memo-platform/internal/websocket"
)

type memoRepository interface {
	ListByAuthor(ctx context.Context, authorID int64) ([]model.Memo, error)
	Create(ctx context.Context, title, content string, authorID int64) (*model.Memo, error)
	GetByID(ctx context.Context, id int64) (*model.Memo, error)
	UpdateByAuthor(ctx context.Context, id, authorID int64, title, content string) (int64, error)
	DeleteByAuthor(ctx context.Context, id, authorID int64) (int64, error)
}

// Publisher delivers change events to a single user's live connections.
type Publisher interface {
	PublishTo(userID int64, msg websocket.Message)
}

type Service struct {
	repo   memoRepository
	pub    Publisher
	logger *slog.Logger
}

// NewService builds a Service. pub may be nil.
func NewService(repo memoRepository, pub Publisher, logger *slog.Logger) *Service {
	return &Service{repo: repo, pub: pub, logger: logger}
}

func (s *Service) publish(uid int64, action string, id int64) {
	if s.pub != nil {
		s.pub.PublishTo(uid, websocket.NewMessage("memo", action, id, nil))
	}
}

// ListOwned returns uid's memos, newest first. The result is never nil.
func (s *Service) ListOwned(ctx context.Context, uid int64) ([]model.Memo, error) {
	memos, err := s.repo.ListByAuthor(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("list owned memos: %w", err)
	}
	if memos == nil {
		memos = []model.Memo{}
	}
	return memos, nil
}

func (s *Service) Create(ctx context.Context, uid int64, title, content string) (*model.Memo, error) {
	m, err := s.repo.Create(ctx, title, content, uid)
	if err != nil {
		return nil, fmt.Errorf("create memo: %w", err)
	}

	s.logger.Debug("memo created", "memo_id", m.ID, "user_id", uid)
	s.publish(uid, "created", m.ID)
	return m, nil
}

// GetOwned returns ErrNotFound when no memo has the id and ErrForbidden when
// it belongs to another user.
func (s *Service) GetOwned(ctx context.Context, uid, id int64) (*model.Memo, error) {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get memo: %w", err)
	}
	if m == nil {
		return nil, ErrNotFound
	}
	if m.AuthorID != uid {
		return nil, ErrForbidden
	}
	return m, nil
}

// UpdateOwned applies the change in a single statement filtered on both id
// and author, then re-reads the row.
func (s *Service) UpdateOwned(ctx context.Context, uid, id int64, title, content string) (*model.Memo, error) {
	n, err := s.repo.UpdateByAuthor(ctx, id, uid, title, content)
	if err != nil {
		return nil, fmt.Errorf("update memo: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFoundOrForbidden
	}

	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload memo: %w", err)
	}
	// Deleted between the update and the re-read.
	if m == nil {
		return nil, ErrNotFoundOrForbidden
	}

	s.logger.Debug("memo updated", "memo_id", id, "user_id", uid)
	s.publish(uid, "updated", id)
	return m, nil
}

func (s *Service) DeleteOwned(ctx context.Context, uid, id int64) error {
	n, err := s.repo.DeleteByAuthor(ctx, id, uid)
	if err != nil {
		return fmt.Errorf("delete memo: %w", err)
	}
	if n == 0 {
		return ErrNotFoundOrForbidden
	}

	s.logger.Debug("memo deleted", "memo_id", id, "user_id", uid)
	s.publish(uid, "deleted", id)
	return nil
}
