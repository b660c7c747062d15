package imap

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"

	"github.com/nhle/mailsync/internal/remote"
)

// Envelope holds the parsed envelope data from an IMAP message.
type Envelope struct {
	MessageID string
	Subject   string
	From      string
	To        []string
	Date      time.Time
	Flags     []string
	UID       uint32
}

// Fetched holds the full parsed content of one fetched message.
type Fetched struct {
	Envelope    Envelope
	TextBody    string
	HTMLBody    string
	Attachments []Attachment
}

// Attachment holds metadata about a message attachment.
type Attachment struct {
	Filename string
	Size     int64
	MIMEType string
}

// Client wraps go-imap v2 for connecting to and querying IMAP servers.
// Each operation dials a fresh connection; the engine fetches rarely
// enough that connection reuse is not worth the session bookkeeping.
type Client struct {
	host     string
	port     string
	username string
	password string
	tls      bool
}

// NewClient creates a new IMAP client configuration.
func NewClient(host, port, username, password string, tls bool) *Client {
	return &Client{
		host:     host,
		port:     port,
		username: username,
		password: password,
		tls:      tls,
	}
}

// Connect establishes a connection to the IMAP server, authenticates,
// and returns the connected client. The caller is responsible for
// calling Logout on the returned client.
func (c *Client) Connect(_ context.Context) (*imapclient.Client, error) {
	addr := c.host + ":" + c.port

	var client *imapclient.Client
	var err error

	if c.tls {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(c.username, c.password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &remote.AuthError{
			Message: fmt.Sprintf(
				"authentication failed for %s: %v", c.username, err,
			),
		}
	}

	return client, nil
}

// FetchMailbox selects the mailbox, searches for matching messages (all
// of them, or only those received after since), and fetches envelope and
// body data for the newest limit matches. The second return value is the
// total number of matches before the limit was applied.
func (c *Client) FetchMailbox(
	ctx context.Context,
	mailbox string,
	since *time.Time,
	limit int,
) ([]Fetched, int, error) {
	client, err := c.Connect(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select(mailbox, nil).Wait(); err != nil {
		return nil, 0, fmt.Errorf("selecting %s: %w", mailbox, err)
	}

	criteria := &imap.SearchCriteria{}
	if since != nil {
		criteria.Since = *since
	}

	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, 0, fmt.Errorf("searching %s: %w", mailbox, err)
	}

	uids := searchData.AllUIDs()
	total := len(uids)
	if total == 0 {
		return nil, 0, nil
	}

	// UIDs ascend with arrival order; keep the most recent ones.
	if limit > 0 && len(uids) > limit {
		uids = uids[len(uids)-limit:]
	}

	uidSet := imap.UIDSetNum(uids...)

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		Flags:       true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := client.Fetch(uidSet, fetchOpts)
	defer fetchCmd.Close()

	var fetched []Fetched
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			continue
		}

		f := Fetched{Envelope: envelopeFromBuffer(buf)}
		if rawBody := buf.FindBodySection(bodySection); rawBody != nil {
			f.TextBody, f.HTMLBody, f.Attachments = parseMIMEBody(rawBody)
		}
		fetched = append(fetched, f)
	}

	if err := fetchCmd.Close(); err != nil {
		return fetched, total, fmt.Errorf("fetching %s: %w", mailbox, err)
	}

	return fetched, total, nil
}

// Append stores a raw message into the mailbox with the given flags.
func (c *Client) Append(
	ctx context.Context,
	mailbox string,
	raw []byte,
	flags []imap.Flag,
) error {
	client, err := c.Connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	appendCmd := client.Append(mailbox, int64(len(raw)), &imap.AppendOptions{
		Flags: flags,
	})
	if _, err := appendCmd.Write(raw); err != nil {
		return fmt.Errorf("writing append data: %w", err)
	}
	if err := appendCmd.Close(); err != nil {
		return fmt.Errorf("closing append data: %w", err)
	}
	if _, err := appendCmd.Wait(); err != nil {
		return fmt.Errorf("appending to %s: %w", mailbox, err)
	}

	return nil
}

// MoveByMessageID locates messages in fromMailbox by their Message-ID
// header and moves them to toMailbox. Unknown ids are skipped; moving a
// message that is already gone is not an error.
func (c *Client) MoveByMessageID(
	ctx context.Context,
	fromMailbox, toMailbox string,
	messageIDs []string,
) error {
	client, err := c.Connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select(fromMailbox, nil).Wait(); err != nil {
		return fmt.Errorf("selecting %s: %w", fromMailbox, err)
	}

	var uids []imap.UID
	for _, id := range messageIDs {
		criteria := &imap.SearchCriteria{
			Header: []imap.SearchCriteriaHeaderField{
				{Key: "Message-Id", Value: id},
			},
		}
		searchData, err := client.UIDSearch(criteria, nil).Wait()
		if err != nil {
			return fmt.Errorf("locating message %s: %w", id, err)
		}
		uids = append(uids, searchData.AllUIDs()...)
	}

	if len(uids) == 0 {
		return nil
	}

	if _, err := client.Move(imap.UIDSetNum(uids...), toMailbox).Wait(); err != nil {
		return fmt.Errorf("moving to %s: %w", toMailbox, err)
	}

	return nil
}

// envelopeFromBuffer extracts an Envelope from a FetchMessageBuffer.
func envelopeFromBuffer(buf *imapclient.FetchMessageBuffer) Envelope {
	env := Envelope{
		UID: uint32(buf.UID),
	}

	if buf.Envelope != nil {
		env.MessageID = buf.Envelope.MessageID
		env.Subject = buf.Envelope.Subject
		env.Date = buf.Envelope.Date

		if len(buf.Envelope.From) > 0 {
			from := buf.Envelope.From[0]
			if from.Name != "" {
				env.From = from.Name
			} else {
				env.From = from.Addr()
			}
		}

		for _, to := range buf.Envelope.To {
			env.To = append(env.To, to.Addr())
		}
	}

	for _, flag := range buf.Flags {
		env.Flags = append(env.Flags, string(flag))
	}

	return env
}

// parseMIMEBody parses a raw RFC 2822 message body using go-message
// and extracts the text/plain body, text/html body, and attachment
// metadata.
func parseMIMEBody(raw []byte) (
	textBody string, htmlBody string, attachments []Attachment,
) {
	reader := bytes.NewReader(raw)

	mr, err := mail.CreateReader(reader)
	if err != nil {
		// If parsing fails, try treating the whole thing as plain text
		return string(raw), "", nil
	}
	defer mr.Close()

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			switch {
			case strings.HasPrefix(contentType, "text/plain"):
				textBody = string(body)
			case strings.HasPrefix(contentType, "text/html"):
				htmlBody = string(body)
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()

			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			attachments = append(attachments, Attachment{
				Filename: filename,
				Size:     int64(len(body)),
				MIMEType: contentType,
			})
		}
	}

	return textBody, htmlBody, attachments
}
