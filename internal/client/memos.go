package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gaa1973/memo-platform/internal/model"
)

type Credentials struct {
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Password string `json:"password"`
}

type MemoInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (c *Client) Register(ctx context.Context, cred Credentials) (*model.User, error) {
	var u model.User
	if err := c.Do(ctx, http.MethodPost, "/auth/register", cred, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*model.User, error) {
	var u model.User
	if err := c.Do(ctx, http.MethodPost, "/auth/login", Credentials{Email: email, Password: password}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.Do(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var u model.User
	if err := c.Do(ctx, http.MethodGet, "/auth/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) ListMemos(ctx context.Context) ([]model.Memo, error) {
	var memos []model.Memo
	if err := c.Do(ctx, http.MethodGet, "/memos", nil, &memos); err != nil {
		return nil, err
	}
	if memos == nil {
		memos = []model.Memo{}
	}
	return memos, nil
}

func (c *Client) CreateMemo(ctx context.Context, title, content string) (*model.Memo, error) {
	var m model.Memo
	if err := c.Do(ctx, http.MethodPost, "/memos", MemoInput{Title: title, Content: content}, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) GetMemo(ctx context.Context, id int64) (*model.Memo, error) {
	var m model.Memo
	if err := c.Do(ctx, http.MethodGet, memoPath(id), nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) UpdateMemo(ctx context.Context, id int64, title, content string) (*model.Memo, error) {
	var m model.Memo
	if err := c.Do(ctx, http.MethodPut, memoPath(id), MemoInput{Title: title, Content: content}, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) DeleteMemo(ctx context.Context, id int64) error {
	return c.Do(ctx, http.MethodDelete, memoPath(id), nil, nil)
}

func memoPath(id int64) string {
	return fmt.Sprintf("/memos/%d", id)
}
