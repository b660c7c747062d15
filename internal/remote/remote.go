package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nhle/mailsync/internal/model"
)

// AuthError indicates that authentication has failed or expired for the
// remote store. It is returned by clients when the server rejects the
// session credentials.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error: %s", e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// ListResult holds a page of messages returned from the remote store,
// newest first.
type ListResult struct {
	Messages []model.Message
	Total    int
	HasMore  bool
}

// Client defines the remote message store contract. The engine treats it
// as an opaque collaborator: a call either succeeds with a payload or
// fails with an error. Timeouts and retries belong to the transport.
type Client interface {
	// ListMessages retrieves one page of a folder, newest first.
	ListMessages(ctx context.Context, folder model.Folder, page, pageSize int) (*ListResult, error)

	// ListNewMessages retrieves only messages newer than since,
	// newest first, bounded by maxResults.
	ListNewMessages(ctx context.Context, folder model.Folder, since time.Time, maxResults int) (*ListResult, error)

	// Send submits a message for delivery.
	Send(ctx context.Context, msg model.Message) error

	// SaveDraft stores a draft in the remote draft folder.
	SaveDraft(ctx context.Context, msg model.Message) error

	// MarkSpam moves the given messages to the remote spam folder.
	MarkSpam(ctx context.Context, ids []string) error

	// ReportNotSpam moves the given messages out of the remote spam folder.
	ReportNotSpam(ctx context.Context, ids []string) error
}
