package mailbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"

	"github.com/lanhoang/maildigest/internal/model"
)

// IMAPMailbox implements Mailbox over go-imap v2. Each Fetch opens a
// fresh connection; runs are infrequent enough that connection reuse
// is not worth the session bookkeeping.
type IMAPMailbox struct {
	host     string
	port     string
	username string
	password string
	folder   string
	tls      bool
}

// NewIMAPMailbox creates an IMAP mailbox client configuration.
func NewIMAPMailbox(
	host, port, username, password, folder string, useTLS bool,
) *IMAPMailbox {
	if folder == "" {
		folder = "INBOX"
	}
	return &IMAPMailbox{
		host:     host,
		port:     port,
		username: username,
		password: password,
		folder:   folder,
		tls:      useTLS,
	}
}

// connect establishes a connection to the IMAP server, authenticates,
// and returns the connected client. The caller is responsible for
// calling Logout on the returned client.
func (m *IMAPMailbox) connect(_ context.Context) (*imapclient.Client, error) {
	addr := m.host + ":" + m.port

	var client *imapclient.Client
	var err error

	if m.tls {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, &Error{
			Kind:    model.KindNetworkTimeout,
			Message: fmt.Sprintf("connecting to IMAP %s: %v", addr, err),
		}
	}

	if err := client.Login(m.username, m.password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &Error{
			Kind: model.KindAuth,
			Message: fmt.Sprintf(
				"authentication failed for %s: %v", m.username, err,
			),
		}
	}

	return client, nil
}

// Fetch connects to IMAP, selects the configured folder, searches for
// unseen (or all) messages, and returns the newest limit of them with
// envelope data and a plain-text body.
func (m *IMAPMailbox) Fetch(
	ctx context.Context, limit int, onlyUnread bool,
) ([]model.MessageRecord, error) {
	client, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select(m.folder, nil).Wait(); err != nil {
		return nil, &Error{
			Kind:    model.KindNotFound,
			Message: fmt.Sprintf("selecting %s: %v", m.folder, err),
		}
	}

	criteria := &imap.SearchCriteria{}
	if onlyUnread {
		criteria.NotFlag = []imap.Flag{imap.FlagSeen}
	}

	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	// Keep the most recent UIDs only.
	if limit > 0 && len(uids) > limit {
		uids = uids[len(uids)-limit:]
	}

	uidSet := imap.UIDSetNum(uids...)

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := client.Fetch(uidSet, fetchOpts)
	defer fetchCmd.Close()

	var records []model.MessageRecord
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			continue
		}

		records = append(records, recordFromBuffer(buf, bodySection))
	}

	if err := fetchCmd.Close(); err != nil {
		return records, fmt.Errorf("fetching messages: %w", err)
	}

	// Search returns ascending UID order; reverse for newest-first.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}

	return records, nil
}

// recordFromBuffer extracts a MessageRecord from a fetched message.
func recordFromBuffer(
	buf *imapclient.FetchMessageBuffer,
	bodySection *imap.FetchItemBodySection,
) model.MessageRecord {
	rec := model.MessageRecord{
		ID: fmt.Sprintf("uid-%d", uint32(buf.UID)),
	}

	if buf.Envelope != nil {
		if buf.Envelope.MessageID != "" {
			rec.ID = buf.Envelope.MessageID
		}
		rec.Subject = buf.Envelope.Subject
		if !buf.Envelope.Date.IsZero() {
			rec.Date = buf.Envelope.Date.Format("2006-01-02 15:04")
		}

		if len(buf.Envelope.From) > 0 {
			from := buf.Envelope.From[0]
			if from.Name != "" {
				rec.Sender = from.Name
			} else {
				rec.Sender = from.Addr()
			}
		}
	}

	if rec.Subject == "" {
		rec.Subject = "(no subject)"
	}
	if rec.Sender == "" {
		rec.Sender = "(unknown sender)"
	}

	if raw := buf.FindBodySection(bodySection); raw != nil {
		textBody, htmlBody := parseMIMEBody(raw)
		if textBody != "" {
			rec.Body = textBody
		} else {
			rec.Body = stripHTML(htmlBody)
		}
	}

	return rec
}

// parseMIMEBody parses a raw RFC 2822 message body using go-message
// and extracts the text/plain and text/html inline parts.
func parseMIMEBody(raw []byte) (textBody string, htmlBody string) {
	reader := bytes.NewReader(raw)

	mr, err := mail.CreateReader(reader)
	if err != nil {
		// If parsing fails, treat the whole thing as plain text.
		return string(raw), ""
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

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, _ := h.ContentType()
		body, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			continue
		}

		switch {
		case strings.HasPrefix(contentType, "text/plain"):
			textBody += string(body)
		case strings.HasPrefix(contentType, "text/html"):
			htmlBody += string(body)
		}
	}

	return strings.TrimSpace(textBody), htmlBody
}
