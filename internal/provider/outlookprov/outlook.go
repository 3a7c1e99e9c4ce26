// Package outlookprov adapts the Microsoft Graph mail API to the
// provider interface. Outlook is category-native: labels and tier names
// become colored categories on the message, folders are real folders,
// starring is the follow-up flag, and archiving moves to the well-known
// archive folder.
package outlookprov

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"mailtriage/internal/model"
	"mailtriage/internal/provider"
)

// Config carries one Outlook account's settings. AccessToken is an
// OAuth bearer token with Mail.ReadWrite scope; BaseURL is overridable
// for sovereign clouds and tests.
type Config struct {
	AccessToken string
	BaseURL     string
}

// Outlook implements provider.Provider over Microsoft Graph.
type Outlook struct {
	client *graphClient
	logger *zap.Logger

	mu         sync.Mutex
	folderIDs  map[string]string // display name -> folder id
	categories map[string]bool   // known master category names
}

// New returns an unconnected Outlook adapter.
func New(cfg Config, logger *zap.Logger) *Outlook {
	return &Outlook{
		client:     newGraphClient(cfg.BaseURL, cfg.AccessToken),
		logger:     logger,
		folderIDs:  make(map[string]string),
		categories: make(map[string]bool),
	}
}

func (o *Outlook) Name() string { return "outlook" }

func (o *Outlook) Capabilities() provider.Capabilities {
	return provider.CapMultiLabel |
		provider.CapFolders |
		provider.CapStar |
		provider.CapArchive |
		provider.CapSearch |
		provider.CapColorCategories
}

// Connect validates the token and primes the category and folder caches.
func (o *Outlook) Connect(ctx context.Context) error {
	if err := o.loadCategories(ctx); err != nil {
		return err
	}
	if err := o.loadFolders(ctx); err != nil {
		return err
	}
	o.logger.Info("Connected to Outlook",
		zap.Int("categories", len(o.categories)),
		zap.Int("folders", len(o.folderIDs)),
	)
	return nil
}

func (o *Outlook) Close() error { return nil }

type categoryList struct {
	Value []struct {
		ID          string `json:"id"`
		DisplayName string `json:"displayName"`
	} `json:"value"`
}

func (o *Outlook) loadCategories(ctx context.Context) error {
	var list categoryList
	if err := o.client.get(ctx, "/me/outlook/masterCategories", &list); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, c := range list.Value {
		o.categories[c.DisplayName] = true
	}
	return nil
}

type folderList struct {
	Value []struct {
		ID          string `json:"id"`
		DisplayName string `json:"displayName"`
	} `json:"value"`
}

func (o *Outlook) loadFolders(ctx context.Context) error {
	var list folderList
	if err := o.client.get(ctx, "/me/mailFolders?$top=100", &list); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, f := range list.Value {
		o.folderIDs[f.DisplayName] = f.ID
	}
	return nil
}

type graphMessage struct {
	ID               string   `json:"id"`
	Subject          string   `json:"subject"`
	ReceivedDateTime string   `json:"receivedDateTime"`
	Categories       []string `json:"categories"`
	IsRead           bool     `json:"isRead"`
	From             struct {
		EmailAddress struct {
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"from"`
	Flag struct {
		FlagStatus string `json:"flagStatus"`
	} `json:"flag"`
}

type messagePage struct {
	Value    []graphMessage `json:"value"`
	NextLink string         `json:"@odata.nextLink"`
}

const messageSelect = "id,subject,from,receivedDateTime,categories,isRead,flag"

// ListMessages pages the inbox. The cursor is Graph's own @odata.nextLink
// URL, opaque to the rest of the system.
func (o *Outlook) ListMessages(ctx context.Context, cursor, query string, pageSize int) (*provider.ListResult, error) {
	var page messagePage
	var err error
	if cursor != "" {
		err = o.client.getURL(ctx, cursor, &page)
	} else {
		path := fmt.Sprintf("/me/mailFolders/inbox/messages?$top=%d&$select=%s", pageSize, messageSelect)
		if query != "" {
			path += "&$search=" + url.QueryEscape(`"`+query+`"`)
		}
		err = o.client.get(ctx, path, &page)
	}
	if err != nil {
		return nil, err
	}

	out := &provider.ListResult{NextCursor: page.NextLink}
	for i := range page.Value {
		out.Messages = append(out.Messages, toModel(&page.Value[i]))
	}
	return out, nil
}

// GetMessage fetches one message's triage-relevant fields.
func (o *Outlook) GetMessage(ctx context.Context, id string) (*model.EmailMessage, error) {
	var msg graphMessage
	path := fmt.Sprintf("/me/messages/%s?$select=%s", url.PathEscape(id), messageSelect)
	if err := o.client.get(ctx, path, &msg); err != nil {
		return nil, err
	}
	return toModel(&msg), nil
}

func toModel(msg *graphMessage) *model.EmailMessage {
	received, _ := time.Parse(time.RFC3339, msg.ReceivedDateTime)
	return &model.EmailMessage{
		ID:         msg.ID,
		Sender:     msg.From.EmailAddress.Address,
		Subject:    msg.Subject,
		ReceivedAt: received,
		Labels:     msg.Categories,
		IsRead:     msg.IsRead,
		IsStarred:  msg.Flag.FlagStatus == "flagged",
	}
}

// ApplyActions patches each message independently. The category list is
// computed as a set union, so a re-applied patch converges to the same
// state.
func (o *Outlook) ApplyActions(ctx context.Context, actions []*model.ActionSet) (*model.ApplyResult, error) {
	res := &model.ApplyResult{}
	for _, a := range actions {
		if err := o.applyOne(ctx, a); err != nil {
			if provider.IsAuthError(err) || provider.IsRateLimitError(err) {
				return nil, err
			}
			res.RecordFailure(a.MessageID, err)
			continue
		}
		res.Succeeded++
	}
	return res, nil
}

func (o *Outlook) applyOne(ctx context.Context, a *model.ActionSet) error {
	current, err := o.GetMessage(ctx, a.MessageID)
	if err != nil {
		return err
	}

	want := make(map[string]bool, len(current.Labels))
	for _, c := range current.Labels {
		want[c] = true
	}
	for _, label := range a.AddLabels {
		want[label] = true
		if err := o.ensureCategory(ctx, label, a.Color); err != nil {
			return err
		}
	}
	if a.Category != "" {
		want[a.Category] = true
		if err := o.ensureCategory(ctx, a.Category, a.Color); err != nil {
			return err
		}
	}
	for _, label := range a.RemoveLabels {
		delete(want, label)
	}

	categories := make([]string, 0, len(want))
	for c := range want {
		categories = append(categories, c)
	}

	patch := map[string]interface{}{"categories": categories}
	if a.Star {
		patch["flag"] = map[string]string{"flagStatus": "flagged"}
	}
	msgPath := "/me/messages/" + url.PathEscape(a.MessageID)
	if err := o.client.patch(ctx, msgPath, patch, nil); err != nil {
		return err
	}

	target := a.TargetFolder
	if target == "" && a.Archive {
		// Graph accepts the well-known folder name directly.
		target = "archive"
	}
	if target != "" {
		destID, err := o.folderID(ctx, target)
		if err != nil {
			return err
		}
		body := map[string]string{"destinationId": destID}
		if err := o.client.post(ctx, msgPath+"/move", body, nil); err != nil {
			return err
		}
	}
	return nil
}

// EnsureLabel provisions a master category for the label.
func (o *Outlook) EnsureLabel(ctx context.Context, label string) error {
	return o.ensureCategory(ctx, label, "")
}

// presetColors maps tier color names onto Graph's category presets.
var presetColors = map[string]string{
	"red":    "preset0",
	"orange": "preset1",
	"yellow": "preset3",
	"green":  "preset4",
	"blue":   "preset8",
	"gray":   "preset23",
}

func (o *Outlook) ensureCategory(ctx context.Context, name, color string) error {
	o.mu.Lock()
	known := o.categories[name]
	o.mu.Unlock()
	if known {
		return nil
	}

	preset, ok := presetColors[strings.ToLower(color)]
	if !ok {
		preset = "preset8"
	}
	body := map[string]string{"displayName": name, "color": preset}
	err := o.client.post(ctx, "/me/outlook/masterCategories", body, nil)
	if err != nil {
		// Another client may have created it since the cache was loaded.
		if strings.Contains(err.Error(), "ErrorCategoryNameExists") {
			err = nil
		}
	}
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.categories[name] = true
	o.mu.Unlock()
	return nil
}

func (o *Outlook) folderID(ctx context.Context, name string) (string, error) {
	if name == "archive" {
		return name, nil
	}
	o.mu.Lock()
	id, ok := o.folderIDs[name]
	o.mu.Unlock()
	if ok {
		return id, nil
	}

	var created struct {
		ID string `json:"id"`
	}
	body := map[string]string{"displayName": name}
	if err := o.client.post(ctx, "/me/mailFolders", body, &created); err != nil {
		// Race with another client; reload and retry the lookup.
		if strings.Contains(err.Error(), "ErrorFolderExists") {
			if err := o.loadFolders(ctx); err != nil {
				return "", err
			}
			o.mu.Lock()
			id, ok := o.folderIDs[name]
			o.mu.Unlock()
			if ok {
				return id, nil
			}
		}
		return "", err
	}

	o.mu.Lock()
	o.folderIDs[name] = created.ID
	o.mu.Unlock()
	o.logger.Debug("Created Outlook folder", zap.String("folder", name))
	return created.ID, nil
}

// HealthCheck does a minimal authenticated round trip.
func (o *Outlook) HealthCheck(ctx context.Context) error {
	var me struct {
		ID string `json:"id"`
	}
	return o.client.get(ctx, "/me?$select=id", &me)
}
