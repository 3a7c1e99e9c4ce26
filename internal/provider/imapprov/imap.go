// Package imapprov adapts plain IMAP servers to the provider interface.
// IMAP has no first-class labels: custom keywords stand in for labels,
// \Flagged stands in for starring, and archiving is a copy to the
// archive mailbox followed by expunge. Paging is UID-based, so the
// cursor survives reconnects and concurrent mailbox changes.
package imapprov

import (
	"context"
	"crypto/tls"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/charset"
	"go.uber.org/zap"

	"mailtriage/internal/model"
	"mailtriage/internal/provider"
)

func init() {
	// Decode non-UTF-8 headers instead of surfacing raw encoded words.
	imap.CharsetReader = charset.Reader
}

// Config carries one IMAP account's connection settings.
type Config struct {
	Host          string
	Port          int
	Username      string
	Password      string
	Mailbox       string // defaults to INBOX
	ArchiveFolder string // defaults to Archive
	StartTLS      bool   // plain dial then STARTTLS instead of implicit TLS
}

// IMAP implements provider.Provider over a single selected mailbox.
// Message ids are decimal UIDs within that mailbox.
type IMAP struct {
	cfg    Config
	logger *zap.Logger

	mu sync.Mutex
	c  *client.Client
}

// New returns an unconnected IMAP adapter.
func New(cfg Config, logger *zap.Logger) *IMAP {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	if cfg.ArchiveFolder == "" {
		cfg.ArchiveFolder = "Archive"
	}
	return &IMAP{cfg: cfg, logger: logger}
}

func (p *IMAP) Name() string { return "imap" }

func (p *IMAP) Capabilities() provider.Capabilities {
	return provider.CapMultiLabel |
		provider.CapFolders |
		provider.CapStar |
		provider.CapArchive
}

// Connect dials, authenticates and selects the working mailbox. A login
// rejection surfaces as *provider.AuthError.
func (p *IMAP) Connect(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)
	tlsCfg := &tls.Config{ServerName: p.cfg.Host}

	var c *client.Client
	var err error
	if p.cfg.StartTLS {
		c, err = client.Dial(addr)
		if err == nil {
			err = c.StartTLS(tlsCfg)
		}
	} else {
		c, err = client.DialTLS(addr, tlsCfg)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	if err := c.Login(p.cfg.Username, p.cfg.Password); err != nil {
		_ = c.Logout()
		return &provider.AuthError{Provider: "imap", Message: err.Error()}
	}
	if _, err := c.Select(p.cfg.Mailbox, false); err != nil {
		_ = c.Logout()
		return fmt.Errorf("failed to select %s: %w", p.cfg.Mailbox, err)
	}

	p.mu.Lock()
	p.c = c
	p.mu.Unlock()
	p.logger.Info("Connected to IMAP server",
		zap.String("host", p.cfg.Host),
		zap.String("mailbox", p.cfg.Mailbox),
	)
	return nil
}

func (p *IMAP) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.c == nil {
		return nil
	}
	err := p.c.Logout()
	p.c = nil
	return err
}

func (p *IMAP) conn() (*client.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.c == nil {
		return nil, fmt.Errorf("imap: not connected")
	}
	return p.c, nil
}

// ListMessages pages through the mailbox in ascending UID order. The
// cursor is the highest UID already handed out; queries are not pushed
// to the server.
func (p *IMAP) ListMessages(_ context.Context, cursor, _ string, pageSize int) (*provider.ListResult, error) {
	c, err := p.conn()
	if err != nil {
		return nil, err
	}

	var fromUID uint32 = 1
	if cursor != "" {
		last, err := strconv.ParseUint(cursor, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("imap: bad cursor %q: %w", cursor, err)
		}
		fromUID = uint32(last) + 1
	}

	criteria := imap.NewSearchCriteria()
	criteria.Uid = new(imap.SeqSet)
	criteria.Uid.AddRange(fromUID, 0)
	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, err
	}
	if len(uids) == 0 {
		return &provider.ListResult{}, nil
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })

	more := len(uids) > pageSize
	if more {
		uids = uids[:pageSize]
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, []imap.FetchItem{
			imap.FetchUid,
			imap.FetchEnvelope,
			imap.FetchFlags,
			imap.FetchInternalDate,
			imap.FetchRFC822Size,
		}, messages)
	}()

	out := &provider.ListResult{}
	for msg := range messages {
		out.Messages = append(out.Messages, toModel(msg))
	}
	if err := <-done; err != nil {
		return nil, err
	}

	if more {
		out.NextCursor = strconv.FormatUint(uint64(uids[len(uids)-1]), 10)
	}
	return out, nil
}

// GetMessage fetches a single message by UID.
func (p *IMAP) GetMessage(_ context.Context, id string) (*model.EmailMessage, error) {
	c, err := p.conn()
	if err != nil {
		return nil, err
	}
	seqset, err := uidSet(id)
	if err != nil {
		return nil, err
	}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, []imap.FetchItem{
			imap.FetchUid,
			imap.FetchEnvelope,
			imap.FetchFlags,
			imap.FetchInternalDate,
			imap.FetchRFC822Size,
		}, messages)
	}()

	var found *model.EmailMessage
	for msg := range messages {
		found = toModel(msg)
	}
	if err := <-done; err != nil {
		return nil, err
	}
	if found == nil {
		return nil, &provider.MessageError{MessageID: id, Err: fmt.Errorf("no such uid")}
	}
	return found, nil
}

func toModel(msg *imap.Message) *model.EmailMessage {
	out := &model.EmailMessage{
		ID:         strconv.FormatUint(uint64(msg.Uid), 10),
		ReceivedAt: msg.InternalDate,
		SizeBytes:  int64(msg.Size),
	}
	if msg.Envelope != nil {
		out.Subject = msg.Envelope.Subject
		if len(msg.Envelope.From) > 0 {
			from := msg.Envelope.From[0]
			out.Sender = from.MailboxName + "@" + from.HostName
		}
		if out.ReceivedAt.IsZero() {
			out.ReceivedAt = msg.Envelope.Date
		}
	}
	for _, flag := range msg.Flags {
		switch flag {
		case imap.SeenFlag:
			out.IsRead = true
		case imap.FlaggedFlag:
			out.IsStarred = true
		case imap.AnsweredFlag, imap.DeletedFlag, imap.DraftFlag, imap.RecentFlag:
		default:
			out.Labels = append(out.Labels, flag)
		}
	}
	return out
}

// ApplyActions stores keyword and flag changes per message, collecting
// folder moves so the expunge happens once at the end of the page.
// Storing a keyword that is already set is a no-op, so re-application is
// safe; a moved message simply no longer matches its old UID.
func (p *IMAP) ApplyActions(_ context.Context, actions []*model.ActionSet) (*model.ApplyResult, error) {
	c, err := p.conn()
	if err != nil {
		return nil, err
	}

	res := &model.ApplyResult{}
	moved := new(imap.SeqSet)
	movedAny := false

	for _, a := range actions {
		seqset, err := uidSet(a.MessageID)
		if err != nil {
			res.RecordFailure(a.MessageID, err)
			continue
		}
		if err := p.applyOne(c, seqset, a); err != nil {
			res.RecordFailure(a.MessageID, err)
			continue
		}
		if a.TargetFolder != "" || a.Archive {
			moved.AddNum(mustUID(a.MessageID))
			movedAny = true
		}
		res.Succeeded++
	}

	if movedAny {
		item := imap.FormatFlagsOp(imap.AddFlags, true)
		if err := c.UidStore(moved, item, []interface{}{imap.DeletedFlag}, nil); err != nil {
			return nil, err
		}
		if err := c.Expunge(nil); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (p *IMAP) applyOne(c *client.Client, seqset *imap.SeqSet, a *model.ActionSet) error {
	var add []interface{}
	for _, label := range a.AddLabels {
		add = append(add, keyword(label))
	}
	if a.Star {
		add = append(add, imap.FlaggedFlag)
	}
	if len(add) > 0 {
		item := imap.FormatFlagsOp(imap.AddFlags, true)
		if err := c.UidStore(seqset, item, add, nil); err != nil {
			return err
		}
	}

	var remove []interface{}
	for _, label := range a.RemoveLabels {
		remove = append(remove, keyword(label))
	}
	if len(remove) > 0 {
		item := imap.FormatFlagsOp(imap.RemoveFlags, true)
		if err := c.UidStore(seqset, item, remove, nil); err != nil {
			return err
		}
	}

	target := a.TargetFolder
	if target == "" && a.Archive {
		target = p.cfg.ArchiveFolder
	}
	if target != "" {
		if err := p.ensureMailbox(c, target); err != nil {
			return err
		}
		if err := c.UidCopy(seqset, target); err != nil {
			return err
		}
	}
	return nil
}

// EnsureLabel creates the mailbox used as the label's folder. Keyword
// labels need no provisioning.
func (p *IMAP) EnsureLabel(_ context.Context, label string) error {
	c, err := p.conn()
	if err != nil {
		return err
	}
	return p.ensureMailbox(c, label)
}

func (p *IMAP) ensureMailbox(c *client.Client, name string) error {
	err := c.Create(name)
	if err == nil {
		return nil
	}
	// RFC 3501 reports an existing mailbox as a NO response; every server
	// words it differently, so match loosely.
	if strings.Contains(strings.ToLower(err.Error()), "exist") {
		return nil
	}
	return err
}

// HealthCheck issues a NOOP on the live connection.
func (p *IMAP) HealthCheck(_ context.Context) error {
	c, err := p.conn()
	if err != nil {
		return err
	}
	return c.Noop()
}

// keyword normalizes a label into an IMAP keyword atom. Spaces are the
// only character in our label set that an atom cannot carry.
func keyword(label string) string {
	return strings.ReplaceAll(label, " ", "_")
}

func uidSet(id string) (*imap.SeqSet, error) {
	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return nil, &provider.MessageError{MessageID: id, Err: fmt.Errorf("bad uid: %w", err)}
	}
	seqset := new(imap.SeqSet)
	seqset.AddNum(uint32(uid))
	return seqset, nil
}

func mustUID(id string) uint32 {
	uid, _ := strconv.ParseUint(id, 10, 32)
	return uint32(uid)
}
