// Package memostore keeps a local, optimistically updated copy of the
// current user's memos. Writes show up immediately and are later confirmed
// with the server's record or rolled back.
package memostore

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gaa1973/memo-platform/internal/model"
)

var (
	ErrTitleRequired = errors.New("title is required")
	ErrUnknownMemo   = errors.New("memo not found")
	// ErrProvisional is returned when deleting a memo the server has not
	// confirmed yet.
	ErrProvisional = errors.New("memo is still being saved")
)

// API is the subset of the HTTP client the store drives.
type API interface {
	ListMemos(ctx context.Context) ([]model.Memo, error)
	CreateMemo(ctx context.Context, title, content string) (*model.Memo, error)
	DeleteMemo(ctx context.Context, id int64) error
}

type OpKind string

const (
	OpCreate OpKind = "create"
	OpDelete OpKind = "delete"
)

type OpState string

const (
	Pending   OpState = "pending"
	Confirmed OpState = "confirmed"
	Reverted  OpState = "reverted"
)

// Op is the lifecycle of one optimistic write. For creates MemoID is the
// temporary id and ConfirmedID the server's id once known.
type Op struct {
	Seq         int
	Kind        OpKind
	MemoID      int64
	ConfirmedID int64
	State       OpState
	Err         error
}

type Store struct {
	api    API
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	memos    []model.Memo
	loading  int
	creating int
	deleting int
	message  string
	ops      []Op
	lastTemp int64
	subs     map[chan struct{}]struct{}
}

func New(api API, logger *slog.Logger) *Store {
	return &Store{
		api:    api,
		logger: logger,
		now:    time.Now,
		memos:  []model.Memo{},
		subs:   make(map[chan struct{}]struct{}),
	}
}

// Memos returns a copy of the current sequence.
func (s *Store) Memos() []model.Memo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Memo, len(s.memos))
	copy(out, s.memos)
	return out
}

// Message is the last user-facing status or error text.
func (s *Store) Message() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.message
}

func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading > 0
}

func (s *Store) Creating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creating > 0
}

func (s *Store) Deleting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleting > 0
}

// Ops returns the lifecycle of every write issued so far.
func (s *Store) Ops() []Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Op, len(s.ops))
	copy(out, s.ops)
	return out
}

// Subscribe returns a channel that receives a value after every state
// change. Notifications coalesce; a slow reader sees at least one.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
	}
}

// notify must be called with mu held.
func (s *Store) notify() {
	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Load replaces the local sequence with the server's. On failure the
// sequence is left as it was.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	s.loading++
	s.notify()
	s.mu.Unlock()

	memos, err := s.api.ListMemos(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading--
	if err != nil {
		s.message = err.Error()
		s.logger.Warn("load memos", "error", err)
		s.notify()
		return err
	}
	s.memos = make([]model.Memo, len(memos))
	copy(s.memos, memos)
	s.notify()
	return nil
}

// nextTempID must be called with mu held. Ids are negative and strictly
// decreasing, so they never match a server id or each other.
func (s *Store) nextTempID() int64 {
	id := -s.now().UnixNano()
	if s.lastTemp != 0 && id >= s.lastTemp {
		id = s.lastTemp - 1
	}
	s.lastTemp = id
	return id
}

// Create prepends a provisional memo and asks the server to create it.
// An empty title is rejected without a request.
func (s *Store) Create(ctx context.Context, title, content string) (*model.Memo, error) {
	s.mu.Lock()
	if strings.TrimSpace(title) == "" {
		s.message = ErrTitleRequired.Error()
		s.notify()
		s.mu.Unlock()
		return nil, ErrTitleRequired
	}

	tempID := s.nextTempID()
	provisional := model.Memo{
		ID:        tempID,
		Title:     title,
		Content:   content,
		CreatedAt: s.now(),
	}
	s.memos = append([]model.Memo{provisional}, s.memos...)
	seq := s.startOp(OpCreate, tempID)
	s.creating++
	s.notify()
	s.mu.Unlock()

	created, err := s.api.CreateMemo(ctx, title, content)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.creating--

	if err != nil {
		if i := s.indexOf(tempID); i >= 0 {
			s.memos = append(s.memos[:i], s.memos[i+1:]...)
		}
		s.finishOp(seq, Reverted, 0, err)
		s.message = err.Error()
		s.logger.Warn("create memo reverted", "temp_id", tempID, "error", err)
		s.notify()
		return nil, err
	}

	if i := s.indexOf(tempID); i >= 0 {
		s.memos[i] = *created
	} else if s.indexOf(created.ID) < 0 {
		// A Load replaced the sequence before the server had the memo.
		s.memos = append([]model.Memo{*created}, s.memos...)
	}
	s.finishOp(seq, Confirmed, created.ID, nil)
	s.message = "memo created"
	s.logger.Debug("create memo confirmed", "temp_id", tempID, "memo_id", created.ID)
	s.notify()
	return created, nil
}

// Delete removes the memo locally, then on the server. If the server
// refuses, the memo is put back where it was.
func (s *Store) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	if id < 0 {
		s.message = ErrProvisional.Error()
		s.notify()
		s.mu.Unlock()
		return ErrProvisional
	}
	idx := s.indexOf(id)
	if idx < 0 {
		s.message = ErrUnknownMemo.Error()
		s.notify()
		s.mu.Unlock()
		return ErrUnknownMemo
	}

	removed := s.memos[idx]
	s.memos = append(s.memos[:idx], s.memos[idx+1:]...)
	seq := s.startOp(OpDelete, id)
	s.deleting++
	s.notify()
	s.mu.Unlock()

	err := s.api.DeleteMemo(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleting--

	if err != nil {
		if s.indexOf(id) < 0 {
			s.insertAt(idx, removed)
		}
		s.finishOp(seq, Reverted, 0, err)
		s.message = err.Error()
		s.logger.Warn("delete memo reverted", "memo_id", id, "error", err)
		s.notify()
		return err
	}

	s.finishOp(seq, Confirmed, id, nil)
	s.message = "memo deleted"
	s.logger.Debug("delete memo confirmed", "memo_id", id)
	s.notify()
	return nil
}

// The helpers below must be called with mu held.

func (s *Store) indexOf(id int64) int {
	for i, m := range s.memos {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) insertAt(i int, m model.Memo) {
	if i > len(s.memos) {
		i = len(s.memos)
	}
	s.memos = append(s.memos, model.Memo{})
	copy(s.memos[i+1:], s.memos[i:])
	s.memos[i] = m
}

func (s *Store) startOp(kind OpKind, memoID int64) int {
	seq := len(s.ops) + 1
	s.ops = append(s.ops, Op{Seq: seq, Kind: kind, MemoID: memoID, State: Pending})
	return seq
}

func (s *Store) finishOp(seq int, state OpState, confirmedID int64, err error) {
	op := &s.ops[seq-1]
	op.State = state
	op.ConfirmedID = confirmedID
	op.Err = err
}
