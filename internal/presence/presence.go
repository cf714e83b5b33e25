package presence

import (
	"context"

	"github.com/google/uuid"

	"github.com/codeWithGodstime/meetmesh/internal/user"
)

// Handle identifies one live websocket connection.
type Handle string

func NewHandle() Handle {
	return Handle(uuid.NewString())
}

func (h Handle) String() string {
	return string(h)
}

// Registry maps a user to at most one live connection handle.
// The last Set wins; the displaced handle is not notified.
type Registry interface {
	Set(ctx context.Context, u user.ID, h Handle) error
	Get(ctx context.Context, u user.ID) (Handle, bool, error)
	Clear(ctx context.Context, u user.ID) error
	// ClearIf removes the entry only while it still points at h, so a
	// connection that was displaced cannot clear its successor.
	ClearIf(ctx context.Context, u user.ID, h Handle) error
}
