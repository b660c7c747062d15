package imap

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	goimap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	smtp "github.com/emersion/go-smtp"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/remote"
)

// SMTPConfig holds the SMTP submission settings for sending messages.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	TLS      bool
}

// defaultMailboxes maps engine folders to conventional IMAP mailbox names.
var defaultMailboxes = map[model.Folder]string{
	model.FolderInbox:   "INBOX",
	model.FolderSent:    "Sent",
	model.FolderDraft:   "Drafts",
	model.FolderArchive: "Archive",
	model.FolderSpam:    "Junk",
}

// Adapter implements remote.Client over IMAP for reads and SMTP for
// submission.
type Adapter struct {
	client     *Client
	smtpConfig SMTPConfig
	mailboxes  map[model.Folder]string
	username   string
}

// NewAdapter creates a remote store adapter for an IMAP/SMTP account.
// A nil mailboxes map selects the conventional names (INBOX, Sent,
// Drafts, Archive, Junk).
func NewAdapter(
	imapHost, imapPort string,
	smtpHost, smtpPort string,
	username, password string,
	useTLS bool,
	mailboxes map[model.Folder]string,
) *Adapter {
	if mailboxes == nil {
		mailboxes = defaultMailboxes
	}
	return &Adapter{
		client: NewClient(imapHost, imapPort, username, password, useTLS),
		smtpConfig: SMTPConfig{
			Host:     smtpHost,
			Port:     smtpPort,
			Username: username,
			Password: password,
			TLS:      useTLS,
		},
		mailboxes: mailboxes,
		username:  username,
	}
}

func (a *Adapter) mailbox(folder model.Folder) string {
	if mb, ok := a.mailboxes[folder]; ok {
		return mb
	}
	return string(folder)
}

// ListMessages retrieves one page of a folder, newest first.
func (a *Adapter) ListMessages(
	ctx context.Context,
	folder model.Folder,
	page, pageSize int,
) (*remote.ListResult, error) {
	if pageSize < 1 {
		pageSize = 50
	}
	if page < 1 {
		page = 1
	}

	// Fetch enough to cover the requested page in one mailbox pass.
	fetched, total, err := a.client.FetchMailbox(
		ctx, a.mailbox(folder), nil, page*pageSize,
	)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", folder, err)
	}

	messages := a.toMessages(folder, fetched)

	start := (page - 1) * pageSize
	if start >= len(messages) {
		return &remote.ListResult{Total: total}, nil
	}
	end := start + pageSize
	if end > len(messages) {
		end = len(messages)
	}

	return &remote.ListResult{
		Messages: messages[start:end],
		Total:    total,
		HasMore:  total > page*pageSize,
	}, nil
}

// ListNewMessages retrieves messages newer than since, newest first.
// IMAP SINCE has day granularity, so the result may include messages the
// caller already has; the engine deduplicates by id.
func (a *Adapter) ListNewMessages(
	ctx context.Context,
	folder model.Folder,
	since time.Time,
	maxResults int,
) (*remote.ListResult, error) {
	fetched, total, err := a.client.FetchMailbox(
		ctx, a.mailbox(folder), &since, maxResults,
	)
	if err != nil {
		return nil, fmt.Errorf("listing new in %s: %w", folder, err)
	}

	messages := a.toMessages(folder, fetched)

	// Trim to the exact cutoff; keep anything without a parsable date.
	filtered := messages[:0]
	for _, m := range messages {
		if m.Timestamp.IsZero() || m.Timestamp.After(since) {
			filtered = append(filtered, m)
		}
	}

	return &remote.ListResult{
		Messages: filtered,
		Total:    total,
		HasMore:  maxResults > 0 && total > maxResults,
	}, nil
}

// Send submits a message over SMTP.
func (a *Adapter) Send(ctx context.Context, msg model.Message) error {
	raw, err := composeRaw(a.username, msg)
	if err != nil {
		return fmt.Errorf("composing message: %w", err)
	}

	if err := a.sendSMTP(msg.To, raw); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

// SaveDraft appends a draft to the remote draft mailbox.
func (a *Adapter) SaveDraft(ctx context.Context, msg model.Message) error {
	raw, err := composeRaw(a.username, msg)
	if err != nil {
		return fmt.Errorf("composing draft: %w", err)
	}

	err = a.client.Append(
		ctx, a.mailbox(model.FolderDraft), raw,
		[]goimap.Flag{goimap.FlagDraft},
	)
	if err != nil {
		return fmt.Errorf("saving draft: %w", err)
	}
	return nil
}

// MarkSpam moves the given messages from the inbox to the spam mailbox.
func (a *Adapter) MarkSpam(ctx context.Context, ids []string) error {
	err := a.client.MoveByMessageID(
		ctx, a.mailbox(model.FolderInbox), a.mailbox(model.FolderSpam), ids,
	)
	if err != nil {
		return fmt.Errorf("marking spam: %w", err)
	}
	return nil
}

// ReportNotSpam moves the given messages from the spam mailbox back to
// the inbox.
func (a *Adapter) ReportNotSpam(ctx context.Context, ids []string) error {
	err := a.client.MoveByMessageID(
		ctx, a.mailbox(model.FolderSpam), a.mailbox(model.FolderInbox), ids,
	)
	if err != nil {
		return fmt.Errorf("reporting not spam: %w", err)
	}
	return nil
}

// toMessages maps fetched IMAP data to cache messages, newest first.
func (a *Adapter) toMessages(
	folder model.Folder, fetched []Fetched,
) []model.Message {
	messages := make([]model.Message, 0, len(fetched))
	for _, f := range fetched {
		messages = append(messages, messageFromFetched(folder, f))
	}

	// FetchMailbox returns ascending UID order; the cache wants newest
	// first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages
}

// messageFromFetched converts one fetched IMAP message into the engine's
// message model.
func messageFromFetched(folder model.Folder, f Fetched) model.Message {
	env := f.Envelope

	msg := model.Message{
		ID:          messageID(folder, env),
		Folder:      folder,
		From:        env.From,
		To:          env.To,
		Subject:     env.Subject,
		BodyPlain:   f.TextBody,
		BodyHTML:    f.HTMLBody,
		Timestamp:   env.Date,
		IsImportant: hasFlag(env.Flags, "$Important"),
		IsRead:      hasFlag(env.Flags, string(goimap.FlagSeen)),
		IsStarred:   hasFlag(env.Flags, string(goimap.FlagFlagged)),
	}

	for _, att := range f.Attachments {
		msg.Attachments = append(msg.Attachments, model.AttachmentRef{
			Filename: att.Filename,
			MIMEType: att.MIMEType,
			Size:     att.Size,
		})
	}
	msg.HasAttachment = len(msg.Attachments) > 0

	return msg
}

// messageID derives a stable cache id from the Message-ID header,
// falling back to the mailbox UID when the header is missing.
func messageID(folder model.Folder, env Envelope) string {
	if env.MessageID != "" {
		return sanitizeID(env.MessageID)
	}
	return fmt.Sprintf("%s-%d", folder, env.UID)
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, want) {
			return true
		}
	}
	return false
}

// idUnsafeChars matches characters that are not safe in a cache id.
var idUnsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._@-]`)

func sanitizeID(s string) string {
	return idUnsafeChars.ReplaceAllString(s, "_")
}

// composeRaw renders a message into RFC 2822 wire format.
func composeRaw(from string, msg model.Message) ([]byte, error) {
	var buf bytes.Buffer

	var h mail.Header
	h.SetDate(time.Now())
	h.SetSubject(msg.Subject)
	h.SetAddressList("From", []*mail.Address{{Address: from}})

	toList := make([]*mail.Address, 0, len(msg.To))
	for _, to := range msg.To {
		toList = append(toList, &mail.Address{Address: to})
	}
	h.SetAddressList("To", toList)

	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("creating message writer: %w", err)
	}

	body := msg.BodyPlain
	if body == "" {
		body = msg.BodyHTML
	}
	if _, err := io.WriteString(w, body); err != nil {
		w.Close()
		return nil, fmt.Errorf("writing message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing message writer: %w", err)
	}

	return buf.Bytes(), nil
}

// sendSMTP submits a raw message to the configured SMTP server.
func (a *Adapter) sendSMTP(to []string, raw []byte) error {
	addr := a.smtpConfig.Host + ":" + a.smtpConfig.Port

	var client *smtp.Client
	var err error

	if a.smtpConfig.TLS {
		client, err = smtp.DialTLS(addr, nil)
	} else {
		client, err = smtp.DialStartTLS(addr, nil)
	}
	if err != nil {
		return fmt.Errorf("connecting to SMTP %s: %w", addr, err)
	}
	defer client.Close()

	auth := sasl.NewPlainClient("", a.smtpConfig.Username, a.smtpConfig.Password)
	if err := client.Auth(auth); err != nil {
		return &remote.AuthError{
			Message: fmt.Sprintf(
				"SMTP authentication failed for %s: %v",
				a.smtpConfig.Username, err,
			),
		}
	}

	if err := client.SendMail(a.username, to, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("SMTP submission: %w", err)
	}

	return client.Quit()
}
