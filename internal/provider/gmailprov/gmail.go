// Package gmailprov adapts the Gmail REST API to the provider interface.
// Gmail is label-native: archiving is removing the INBOX label, starring
// is adding STARRED, and nested labels use "/" in their names.
package gmailprov

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"mailtriage/internal/model"
	"mailtriage/internal/provider"
)

const user = "me"

// Config carries the OAuth material for one Gmail account. RefreshToken
// lets the token source mint fresh access tokens; with only an
// AccessToken the session lasts until it expires.
type Config struct {
	ClientID     string
	ClientSecret string
	AccessToken  string
	RefreshToken string
}

// Gmail implements provider.Provider over the Gmail v1 API.
type Gmail struct {
	cfg    Config
	logger *zap.Logger

	svc *gmail.Service

	mu       sync.Mutex
	labelIDs map[string]string // label name -> label id
}

// New returns an unconnected Gmail adapter.
func New(cfg Config, logger *zap.Logger) *Gmail {
	return &Gmail{cfg: cfg, logger: logger, labelIDs: make(map[string]string)}
}

func (g *Gmail) Name() string { return "gmail" }

func (g *Gmail) Capabilities() provider.Capabilities {
	return provider.CapMultiLabel |
		provider.CapStar |
		provider.CapArchive |
		provider.CapSearch
}

// Connect builds the API client and primes the label cache. Credential
// problems surface as *provider.AuthError.
func (g *Gmail) Connect(ctx context.Context) error {
	token := &oauth2.Token{
		AccessToken:  g.cfg.AccessToken,
		RefreshToken: g.cfg.RefreshToken,
		TokenType:    "Bearer",
	}
	if g.cfg.RefreshToken != "" {
		// Force an immediate refresh so a stale access token is replaced
		// before the first real call.
		token.Expiry = time.Now()
	}
	oauthCfg := &oauth2.Config{
		ClientID:     g.cfg.ClientID,
		ClientSecret: g.cfg.ClientSecret,
		Endpoint:     google.Endpoint,
	}
	client := oauth2.NewClient(ctx, oauthCfg.TokenSource(ctx, token))

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return fmt.Errorf("failed to create gmail client: %w", err)
	}
	g.svc = svc

	if err := g.loadLabels(ctx); err != nil {
		return g.wrapErr(err)
	}
	g.logger.Info("Connected to Gmail", zap.Int("labels", len(g.labelIDs)))
	return nil
}

func (g *Gmail) Close() error { return nil }

func (g *Gmail) loadLabels(ctx context.Context) error {
	resp, err := g.svc.Users.Labels.List(user).Context(ctx).Do()
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, label := range resp.Labels {
		g.labelIDs[label.Name] = label.Id
	}
	return nil
}

// ListMessages returns one page of message ids. The listing endpoint
// only yields ids and thread ids; the runner hydrates each message via
// GetMessage.
func (g *Gmail) ListMessages(ctx context.Context, cursor, query string, pageSize int) (*provider.ListResult, error) {
	call := g.svc.Users.Messages.List(user).
		MaxResults(int64(pageSize)).
		Context(ctx)
	if query != "" {
		call = call.Q(query)
	} else {
		call = call.LabelIds("INBOX")
	}
	if cursor != "" {
		call = call.PageToken(cursor)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, g.wrapErr(err)
	}

	out := &provider.ListResult{NextCursor: resp.NextPageToken}
	for _, m := range resp.Messages {
		out.Messages = append(out.Messages, &model.EmailMessage{ID: m.Id})
	}
	return out, nil
}

// GetMessage fetches the metadata view: headers only, no body download.
func (g *Gmail) GetMessage(ctx context.Context, id string) (*model.EmailMessage, error) {
	msg, err := g.svc.Users.Messages.Get(user, id).
		Format("metadata").
		MetadataHeaders("From", "Subject").
		Context(ctx).
		Do()
	if err != nil {
		return nil, g.wrapErr(err)
	}

	out := &model.EmailMessage{
		ID:         msg.Id,
		ReceivedAt: time.UnixMilli(msg.InternalDate).UTC(),
		SizeBytes:  msg.SizeEstimate,
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch h.Name {
			case "From":
				out.Sender = h.Value
			case "Subject":
				out.Subject = h.Value
			}
		}
	}
	for _, labelID := range msg.LabelIds {
		switch labelID {
		case "UNREAD":
			// presence means unread
		case "STARRED":
			out.IsStarred = true
		default:
			out.Labels = append(out.Labels, labelID)
		}
	}
	out.IsRead = !containsLabel(msg.LabelIds, "UNREAD")
	return out, nil
}

func containsLabel(ids []string, want string) bool {
	for _, id := range ids {
		if id == want {
			return true
		}
	}
	return false
}

// ApplyActions modifies each message independently. Modify with the same
// label set twice is a no-op on Gmail's side, so re-application after a
// crash is safe.
func (g *Gmail) ApplyActions(ctx context.Context, actions []*model.ActionSet) (*model.ApplyResult, error) {
	res := &model.ApplyResult{}
	for _, a := range actions {
		if err := g.applyOne(ctx, a); err != nil {
			if provider.IsAuthError(err) || provider.IsRateLimitError(err) {
				// Account-level failures affect every remaining message;
				// let the runner's retry policy deal with the whole page.
				return nil, err
			}
			res.RecordFailure(a.MessageID, err)
			continue
		}
		res.Succeeded++
	}
	return res, nil
}

func (g *Gmail) applyOne(ctx context.Context, a *model.ActionSet) error {
	req := &gmail.ModifyMessageRequest{}
	for _, label := range a.AddLabels {
		id, err := g.ensureLabelID(ctx, label)
		if err != nil {
			return err
		}
		req.AddLabelIds = append(req.AddLabelIds, id)
	}
	for _, label := range a.RemoveLabels {
		g.mu.Lock()
		id, ok := g.labelIDs[label]
		g.mu.Unlock()
		if !ok {
			// Removing a label that does not exist is already the desired
			// end state.
			continue
		}
		req.RemoveLabelIds = append(req.RemoveLabelIds, id)
	}
	if a.Star {
		req.AddLabelIds = append(req.AddLabelIds, "STARRED")
	}
	if a.Archive {
		req.RemoveLabelIds = append(req.RemoveLabelIds, "INBOX")
	}
	if len(req.AddLabelIds) == 0 && len(req.RemoveLabelIds) == 0 {
		return nil
	}

	_, err := g.svc.Users.Messages.Modify(user, a.MessageID, req).Context(ctx).Do()
	if err != nil {
		return g.wrapErr(err)
	}
	return nil
}

// EnsureLabel creates the label if Gmail does not have it yet. Nested
// path segments ("Triage/Delegate") are created implicitly by Gmail when
// the full name is used.
func (g *Gmail) EnsureLabel(ctx context.Context, label string) error {
	_, err := g.ensureLabelID(ctx, label)
	return err
}

func (g *Gmail) ensureLabelID(ctx context.Context, label string) (string, error) {
	g.mu.Lock()
	if id, ok := g.labelIDs[label]; ok {
		g.mu.Unlock()
		return id, nil
	}
	g.mu.Unlock()

	created, err := g.svc.Users.Labels.Create(user, &gmail.Label{
		Name:                  label,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}).Context(ctx).Do()
	if err != nil {
		// A concurrent creation or a stale cache shows up as 409; reload
		// and retry the lookup once.
		if apiErr, ok := err.(*googleapi.Error); ok && apiErr.Code == 409 {
			if err := g.loadLabels(ctx); err != nil {
				return "", g.wrapErr(err)
			}
			g.mu.Lock()
			id, ok := g.labelIDs[label]
			g.mu.Unlock()
			if ok {
				return id, nil
			}
		}
		return "", g.wrapErr(err)
	}

	g.mu.Lock()
	g.labelIDs[label] = created.Id
	g.mu.Unlock()
	g.logger.Debug("Created Gmail label", zap.String("label", label))
	return created.Id, nil
}

// HealthCheck does the cheapest authenticated round trip available.
func (g *Gmail) HealthCheck(ctx context.Context) error {
	_, err := g.svc.Users.GetProfile(user).Context(ctx).Do()
	if err != nil {
		return g.wrapErr(err)
	}
	return nil
}

// wrapErr maps Gmail API failures onto the provider error taxonomy so
// the runner can choose between aborting and retrying.
func (g *Gmail) wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if apiErr, ok := err.(*googleapi.Error); ok {
		switch apiErr.Code {
		case 401, 403:
			if apiErr.Code == 403 && strings.Contains(strings.ToLower(apiErr.Message), "rate") {
				return &provider.RateLimitError{Provider: "gmail", Message: apiErr.Message}
			}
			return &provider.AuthError{Provider: "gmail", Message: apiErr.Message}
		case 429:
			return &provider.RateLimitError{Provider: "gmail", Message: apiErr.Message}
		}
	}
	return err
}
