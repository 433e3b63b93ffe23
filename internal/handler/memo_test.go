package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaa1973/memo-platform/internal/auth"
	"github.com/gaa1973/memo-platform/internal/memo"
	"github.com/gaa1973/memo-platform/internal/model"
)

type fakeMemoService struct {
	memos map[int64]model.Memo
	next  int64
	err   error

	lastUID int64
}

func newFakeMemoService() *fakeMemoService {
	return &fakeMemoService{memos: map[int64]model.Memo{}, next: 1}
}

func (f *fakeMemoService) ListOwned(_ context.Context, uid int64) ([]model.Memo, error) {
	f.lastUID = uid
	if f.err != nil {
		return nil, f.err
	}
	out := []model.Memo{}
	for _, m := range f.memos {
		if m.AuthorID == uid {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMemoService) Create(_ context.Context, uid int64, title, content string) (*model.Memo, error) {
	f.lastUID = uid
	if f.err != nil {
		return nil, f.err
	}
	m := model.Memo{ID: f.next, Title: title, Content: content, AuthorID: uid}
	f.memos[m.ID] = m
	f.next++
	return &m, nil
}

func (f *fakeMemoService) GetOwned(_ context.Context, uid, id int64) (*model.Memo, error) {
	m, ok := f.memos[id]
	if !ok {
		return nil, memo.ErrNotFound
	}
	if m.AuthorID != uid {
		return nil, memo.ErrForbidden
	}
	return &m, nil
}

func (f *fakeMemoService) UpdateOwned(_ context.Context, uid, id int64, title, content string) (*model.Memo, error) {
	m, ok := f.memos[id]
	if !ok || m.AuthorID != uid {
		return nil, memo.ErrNotFoundOrForbidden
	}
	m.Title, m.Content = title, content
	f.memos[id] = m
	return &m, nil
}

func (f *fakeMemoService) DeleteOwned(_ context.Context, uid, id int64) error {
	m, ok := f.memos[id]
	if !ok || m.AuthorID != uid {
		return memo.ErrNotFoundOrForbidden
	}
	delete(f.memos, id)
	return nil
}

func newTestMemoHandler(svc memoService) *MemoHandler {
	return NewMemoHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func authedRequest(method, target, body string, uid int64) *http.Request {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	return req.WithContext(auth.WithAuth(req.Context(), auth.AuthContext{UserID: uid}))
}

func decodeMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Message
}

func TestMemoCreate(t *testing.T) {
	svc := newFakeMemoService()
	h := newTestMemoHandler(svc)

	rec := httptest.NewRecorder()
	h.Create(rec, authedRequest("POST", "/api/memos", `{"title":"  T  ","content":"C","authorId":99}`, 7))

	require.Equal(t, http.StatusCreated, rec.Code)
	var got model.Memo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "T", got.Title)
	assert.Equal(t, "C", got.Content)
	assert.Equal(t, int64(7), got.AuthorID, "author comes from the session, not the body")
}

func TestMemoCreateValidation(t *testing.T) {
	h := newTestMemoHandler(newFakeMemoService())

	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty title", `{"title":"   ","content":"C"}`, "title is required"},
		{"bad json", `{"title":`, "invalid JSON"},
		{"no body", ``, "request body is empty"},
		{"long title", `{"title":"` + strings.Repeat("x", 201) + `"}`, "title must be at most 200 characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Create(rec, authedRequest("POST", "/api/memos", tt.body, 7))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, decodeMessage(t, rec))
		})
	}
}

func TestMemoList(t *testing.T) {
	svc := newFakeMemoService()
	svc.Create(context.Background(), 7, "mine", "")
	svc.Create(context.Background(), 8, "theirs", "")
	h := newTestMemoHandler(svc)

	rec := httptest.NewRecorder()
	h.List(rec, authedRequest("GET", "/api/memos", "", 7))

	require.Equal(t, http.StatusOK, rec.Code)
	var got []model.Memo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, "mine", got[0].Title)
}

func TestMemoListEmptyIsArray(t *testing.T) {
	h := newTestMemoHandler(newFakeMemoService())

	rec := httptest.NewRecorder()
	h.List(rec, authedRequest("GET", "/api/memos", "", 7))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestMemoGetStatuses(t *testing.T) {
	svc := newFakeMemoService()
	m, _ := svc.Create(context.Background(), 7, "mine", "")
	h := newTestMemoHandler(svc)

	tests := []struct {
		name string
		id   string
		uid  int64
		want int
	}{
		{"owner", "1", 7, http.StatusOK},
		{"other user", "1", 8, http.StatusForbidden},
		{"missing", "42", 7, http.StatusNotFound},
		{"bad id", "abc", 7, http.StatusBadRequest},
		{"zero id", "0", 7, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := authedRequest("GET", "/api/memos/"+tt.id, "", tt.uid)
			req.SetPathValue("id", tt.id)
			rec := httptest.NewRecorder()
			h.Get(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
	assert.Equal(t, int64(1), m.ID)
}

func TestMemoUpdate(t *testing.T) {
	svc := newFakeMemoService()
	svc.Create(context.Background(), 7, "old", "")
	h := newTestMemoHandler(svc)

	req := authedRequest("PUT", "/api/memos/1", `{"title":"new","content":"body"}`, 7)
	req.SetPathValue("id", "1")
	rec := httptest.NewRecorder()
	h.Update(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got model.Memo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "new", got.Title)
	assert.Equal(t, "body", got.Content)
}

func TestMemoWriteDeniedLooksLikeMissing(t *testing.T) {
	svc := newFakeMemoService()
	svc.Create(context.Background(), 7, "mine", "")
	h := newTestMemoHandler(svc)

	bodies := map[string]string{}
	for _, id := range []string{"1", "42"} {
		req := authedRequest("PUT", "/api/memos/"+id, `{"title":"x"}`, 8)
		req.SetPathValue("id", id)
		rec := httptest.NewRecorder()
		h.Update(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		bodies["update "+id] = rec.Body.String()

		req = authedRequest("DELETE", "/api/memos/"+id, "", 8)
		req.SetPathValue("id", id)
		rec = httptest.NewRecorder()
		h.Delete(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		bodies["delete "+id] = rec.Body.String()
	}
	assert.Equal(t, bodies["update 1"], bodies["update 42"])
	assert.Equal(t, bodies["delete 1"], bodies["delete 42"])
	assert.Len(t, svc.memos, 1)
}

func TestMemoDelete(t *testing.T) {
	svc := newFakeMemoService()
	svc.Create(context.Background(), 7, "mine", "")
	h := newTestMemoHandler(svc)

	req := authedRequest("DELETE", "/api/memos/1", "", 7)
	req.SetPathValue("id", "1")
	rec := httptest.NewRecorder()
	h.Delete(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Empty(t, svc.memos)
}

func TestMemoInternalError(t *testing.T) {
	svc := newFakeMemoService()
	svc.err = errors.New("database is locked")
	h := newTestMemoHandler(svc)

	rec := httptest.NewRecorder()
	h.List(rec, authedRequest("GET", "/api/memos", "", 7))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	msg := decodeMessage(t, rec)
	assert.Equal(t, "failed to list memos", msg)
	assert.NotContains(t, msg, "locked")
}
