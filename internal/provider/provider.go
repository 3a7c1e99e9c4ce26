// Package provider defines the narrow capability interface the triage
// core consumes. Concrete mail-service adapters (Gmail, IMAP, Outlook)
// implement it; the core never depends on any of them directly.
package provider

import (
	"context"

	"mailtriage/internal/model"
)

// Capabilities is a bit set describing what a provider supports. The
// runner adapts its action building to these flags instead of probing
// concrete types.
type Capabilities uint32

const (
	// CapMultiLabel means a message may carry several labels at once.
	CapMultiLabel Capabilities = 1 << iota
	// CapFolders means the provider routes by folder rather than label.
	CapFolders
	// CapStar means messages can be starred or flagged.
	CapStar
	// CapArchive means messages can leave the inbox without deletion.
	CapArchive
	// CapBatchApply means the provider has a native multi-message apply.
	CapBatchApply
	// CapSearch means list queries are evaluated server-side.
	CapSearch
	// CapColorCategories means the provider supports colored categories.
	CapColorCategories
)

// Has reports whether all bits in want are set.
func (c Capabilities) Has(want Capabilities) bool {
	return c&want == want
}

// ListResult is one page of messages plus the cursor for the next page.
// An empty NextCursor means the listing is exhausted.
type ListResult struct {
	Messages   []*model.EmailMessage
	NextCursor string
}

// Provider is the capability interface every mail-service adapter
// implements. Action application must be idempotent: re-applying an
// already applied set is a harmless no-op, which is what lets the runner
// promise at-least-once semantics across crashes.
type Provider interface {
	Name() string
	Capabilities() Capabilities

	// Connect establishes the session. Adapters return an *AuthError for
	// rejected credentials so the runner can abort without burning the
	// retry budget.
	Connect(ctx context.Context) error
	Close() error

	// ListMessages fetches one page. An empty cursor starts from the
	// provider's natural beginning.
	ListMessages(ctx context.Context, cursor, query string, pageSize int) (*ListResult, error)

	// GetMessage fetches the full view of a single message.
	GetMessage(ctx context.Context, id string) (*model.EmailMessage, error)

	// ApplyActions submits the accumulated per-message intents. Outcomes
	// are independent: one message's failure must not block the others.
	ApplyActions(ctx context.Context, actions []*model.ActionSet) (*model.ApplyResult, error)

	// EnsureLabel creates the label or folder when it does not exist yet.
	EnsureLabel(ctx context.Context, label string) error

	// HealthCheck verifies connectivity with a minimal round trip.
	HealthCheck(ctx context.Context) error
}
