package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gaa1973/memo-platform/internal/auth"
	"github.com/gaa1973/memo-platform/internal/memo"
	"github.com/gaa1973/memo-platform/internal/model"
)

type memoService interface {
	ListOwned(ctx context.Context, uid int64) ([]model.Memo, error)
	Create(ctx context.Context, uid int64, title, content string) (*model.Memo, error)
	GetOwned(ctx context.Context, uid, id int64) (*model.Memo, error)
	UpdateOwned(ctx context.Context, uid, id int64, title, content string) (*model.Memo, error)
	DeleteOwned(ctx context.Context, uid, id int64) error
}

type MemoHandler struct {
	svc    memoService
	logger *slog.Logger
}

func NewMemoHandler(svc memoService, logger *slog.Logger) *MemoHandler {
	return &MemoHandler{svc: svc, logger: logger}
}

// memoRequest never carries an author; ownership comes from the session.
type memoRequest struct {
	Title   string `json:"title" validate:"required,max=200"`
	Content string `json:"content" validate:"max=20000"`
}

func (h *MemoHandler) readRequest(w http.ResponseWriter, r *http.Request) (memoRequest, bool) {
	var req memoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return req, false
	}
	req.Title = strings.TrimSpace(req.Title)
	if err := validateStruct(req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return req, false
	}
	return req, true
}

// fail renders service errors with their own status; anything else is a 500.
func (h *MemoHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	var se *memo.Error
	if errors.As(err, &se) {
		writeMessage(w, se.Status, se.Message)
		return
	}
	h.logger.Error(op, "error", err, "user_id", auth.UserID(r.Context()))
	writeMessage(w, http.StatusInternalServerError, "failed to "+op)
}

func (h *MemoHandler) List(w http.ResponseWriter, r *http.Request) {
	memos, err := h.svc.ListOwned(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, r, "list memos", err)
		return
	}
	writeJSON(w, http.StatusOK, memos)
}

func (h *MemoHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readRequest(w, r)
	if !ok {
		return
	}

	m, err := h.svc.Create(r.Context(), auth.UserID(r.Context()), req.Title, req.Content)
	if err != nil {
		h.fail(w, r, "create memo", err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *MemoHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}

	m, err := h.svc.GetOwned(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		h.fail(w, r, "get memo", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *MemoHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}

	req, ok := h.readRequest(w, r)
	if !ok {
		return
	}

	m, err := h.svc.UpdateOwned(r.Context(), auth.UserID(r.Context()), id, req.Title, req.Content)
	if err != nil {
		h.fail(w, r, "update memo", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *MemoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.svc.DeleteOwned(r.Context(), auth.UserID(r.Context()), id); err != nil {
		h.fail(w, r, "delete memo", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
