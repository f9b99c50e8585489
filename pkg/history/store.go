// Package history holds delivered global messages and serves them back in
// reverse-chronological pages.
package history

import (
	"context"

	"github.com/mahaj/chat-core/pkg/model"
)

// DefaultLimit is the page size used when the caller does not supply one.
const DefaultLimit = 20

// DefaultCapacity is the retention bound of the in-memory store.
const DefaultCapacity = 100

// Page is one pagination window over retained history. Messages are
// oldest-first within the window; Total counts only retained messages, so
// evicted history is permanently out of reach.
type Page struct {
	Messages []model.Message `json:"messages"`
	Total    int             `json:"total"`
	HasMore  bool            `json:"hasMore"`
}

// Store is the history collaborator. Implementations keep messages in append
// order and bound their retention. Offset counts back from the newest
// message: Page(ctx, 0, 20) is the 20 most recent, and growing offsets walk
// backward in time. Negative offsets clamp to 0 and non-positive limits fall
// back to DefaultLimit.
type Store interface {
	Append(ctx context.Context, msg *model.Message) error
	Page(ctx context.Context, offset, limit int) (Page, error)
}

func clampWindow(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return offset, limit
}
