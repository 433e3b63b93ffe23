package memo

import "net/http"

// Error is a service failure that carries the HTTP status it should be
// rendered with.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	// ErrNotFound and ErrForbidden are only produced by reads.
	ErrNotFound  = &Error{Status: http.StatusNotFound, Message: "memo not found"}
	ErrForbidden = &Error{Status: http.StatusForbidden, Message: "access denied"}

	// ErrNotFoundOrForbidden is the only failure of an owner-scoped write.
	// It must not reveal whether the memo exists.
	ErrNotFoundOrForbidden = &Error{Status: http.StatusNotFound, Message: "memo not found or not permitted"}
)
