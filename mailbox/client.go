package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/mail"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	gomessage "github.com/emersion/go-message/mail"

	"inboxpilot/config"
	"inboxpilot/models"
	"inboxpilot/utils"
)

// Client is the mailbox provider boundary. Items are addressed by their
// Message-ID header so ids stay stable across IMAP sessions; operations
// that need a mailbox-local UID resolve it with a header search.
type Client struct {
	cfg config.IMAPConfig
}

func NewClient(cfg config.IMAPConfig) *Client {
	return &Client{cfg: cfg}
}

func (c *Client) connect() (*client.Client, error) {
	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)

	var imapClient *client.Client
	var err error
	switch strings.ToUpper(c.cfg.Encryption) {
	case "SSL", "TLS":
		imapClient, err = client.DialTLS(addr, &tls.Config{ServerName: c.cfg.Host})
	case "STARTTLS":
		imapClient, err = client.Dial(addr)
		if err == nil {
			err = imapClient.StartTLS(&tls.Config{ServerName: c.cfg.Host})
		}
	default:
		imapClient, err = client.Dial(addr)
	}
	if err != nil {
		return nil, utils.NewUpstreamError("failed to connect to IMAP server", err)
	}

	if err := imapClient.Login(c.cfg.Username, c.cfg.Password); err != nil {
		_ = imapClient.Logout()
		return nil, utils.NewUpstreamError("failed to login to IMAP server", err)
	}
	return imapClient, nil
}

// ListUnread returns the unread items in folder (INBOX when empty),
// newest-last. A non-zero since narrows the search with an IMAP SINCE
// criterion; SINCE has day granularity, so callers still dedup against the
// processed record. Bodies are fetched with BODY.PEEK so listing never flips
// the \Seen flag.
func (c *Client) ListUnread(folder string, since time.Time, max int) ([]models.Item, error) {
	imapClient, err := c.connect()
	if err != nil {
		return nil, err
	}
	defer imapClient.Logout()

	if folder == "" {
		folder = "INBOX"
	}
	if _, err := imapClient.Select(folder, true); err != nil {
		return nil, utils.NewUpstreamError("failed to select mailbox "+folder, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	if !since.IsZero() {
		criteria.Since = since
	}
	ids, err := imapClient.Search(criteria)
	if err != nil {
		return nil, utils.NewUpstreamError("failed to search messages", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if max > 0 && len(ids) > max {
		ids = ids[len(ids)-max:]
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- imapClient.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope, imap.FetchItem("BODY.PEEK[]")}, messages)
	}()

	var items []models.Item
	for msg := range messages {
		item, err := parseMessage(msg)
		if err != nil {
			utils.LogError("mailbox_parse_failed", err, map[string]interface{}{
				"seq_num": msg.SeqNum,
				"folder":  folder,
			})
			continue
		}
		items = append(items, item)
	}
	if err := <-done; err != nil {
		return nil, utils.NewUpstreamError("error during fetch", err)
	}
	return items, nil
}

// MarkRead sets \Seen on the message carrying the given Message-ID in
// folder (INBOX when empty).
func (c *Client) MarkRead(itemID, folder string) error {
	return c.storeByMessageID(itemID, folder, func(ic *client.Client, seqset *imap.SeqSet) error {
		flags := imap.FormatFlagsOp(imap.AddFlags, true)
		return ic.Store(seqset, flags, []interface{}{imap.SeenFlag}, nil)
	})
}

// FileAway copies the message out of fromFolder (INBOX when empty) into
// toFolder, then deletes and expunges the source copy. Used by the
// delayed-action side effect.
func (c *Client) FileAway(itemID, fromFolder, toFolder string) error {
	return c.storeByMessageID(itemID, fromFolder, func(ic *client.Client, seqset *imap.SeqSet) error {
		if err := ic.Copy(seqset, toFolder); err != nil {
			return err
		}
		flags := imap.FormatFlagsOp(imap.AddFlags, true)
		if err := ic.Store(seqset, flags, []interface{}{imap.DeletedFlag}, nil); err != nil {
			return err
		}
		return ic.Expunge(nil)
	})
}

func (c *Client) storeByMessageID(itemID, folder string, op func(*client.Client, *imap.SeqSet) error) error {
	imapClient, err := c.connect()
	if err != nil {
		return err
	}
	defer imapClient.Logout()

	if folder == "" {
		folder = "INBOX"
	}
	if _, err := imapClient.Select(folder, false); err != nil {
		return utils.NewUpstreamError("failed to select mailbox "+folder, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Header.Set("Message-ID", itemID)
	ids, err := imapClient.Search(criteria)
	if err != nil {
		return utils.NewUpstreamError("failed to search by message id", err)
	}
	if len(ids) == 0 {
		// Already gone; the operation is idempotent.
		return nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)
	if err := op(imapClient, seqset); err != nil {
		return utils.NewUpstreamError("mailbox store operation failed", err)
	}
	return nil
}

// AppendDraft mirrors a generated draft into the drafts folder so it shows
// up in the operator's mail client. Best-effort; callers log failures.
func (c *Client) AppendDraft(draft models.Draft) error {
	return c.appendMessage(c.cfg.DraftsFolder, []string{imap.DraftFlag}, draft.Recipient, draft.Subject, draft.Content, draft.InReplyToItemID)
}

// AppendSent archives a transmitted reply into the sent folder.
func (c *Client) AppendSent(draft models.Draft, finalContent string) error {
	return c.appendMessage(c.cfg.SentFolder, []string{imap.SeenFlag}, draft.Recipient, draft.Subject, finalContent, draft.InReplyToItemID)
}

func (c *Client) appendMessage(folder string, flags []string, to, subject, body, inReplyTo string) error {
	imapClient, err := c.connect()
	if err != nil {
		return err
	}
	defer imapClient.Logout()

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", c.cfg.Username)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	if inReplyTo != "" {
		fmt.Fprintf(&b, "In-Reply-To: %s\r\n", inReplyTo)
	}
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)

	msg := strings.NewReader(b.String())
	if err := imapClient.Append(folder, flags, time.Now(), msg); err != nil {
		return utils.NewUpstreamError("failed to append to "+folder, err)
	}
	return nil
}

// CheckHealth dials the server under a bounded timeout. A timeout is
// reported as unavailable rather than hanging the status endpoint.
func (c *Client) CheckHealth(ctx context.Context, timeout time.Duration) error {
	type result struct{ err error }
	ch := make(chan result, 1)
	go func() {
		imapClient, err := c.connect()
		if err == nil {
			_ = imapClient.Logout()
		}
		ch <- result{err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		return r.err
	case <-timer.C:
		return utils.NewUpstreamError("mailbox health check timed out", nil)
	case <-ctx.Done():
		return utils.NewUpstreamError("mailbox health check canceled", ctx.Err())
	}
}

func parseMessage(msg *imap.Message) (models.Item, error) {
	if msg == nil || msg.Envelope == nil {
		return models.Item{}, fmt.Errorf("message has no envelope")
	}

	item := models.Item{
		ID:         msg.Envelope.MessageId,
		ThreadID:   msg.Envelope.InReplyTo,
		Subject:    msg.Envelope.Subject,
		Sender:     formatAddress(msg.Envelope.From),
		Recipient:  formatAddress(msg.Envelope.To),
		ReceivedAt: msg.Envelope.Date,
		Headers:    make(map[string]string),
	}
	if item.ThreadID == "" {
		item.ThreadID = item.ID
	}

	// The Body map is keyed by the section pointers the library allocated
	// while parsing the response, so GetBody's structural comparison is the
	// only reliable lookup.
	literal := msg.GetBody(&imap.BodySectionName{})
	if literal == nil {
		literal = msg.GetBody(&imap.BodySectionName{Peek: true})
	}
	if literal == nil {
		return item, fmt.Errorf("fetch response carries no body literal")
	}

	mr, err := gomessage.CreateReader(literal)
	if err != nil {
		return item, fmt.Errorf("failed to create message reader: %w", err)
	}

	fields := mr.Header.Fields()
	for fields.Next() {
		item.Headers[fields.Key()] = fields.Value()
	}

	var bodyText, bodyHTML string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		} else if err != nil {
			return item, fmt.Errorf("failed to read next part: %w", err)
		}
		if h, ok := p.Header.(*gomessage.InlineHeader); ok {
			contentType, _, _ := h.ContentType()
			b, err := io.ReadAll(p.Body)
			if err != nil {
				return item, fmt.Errorf("failed to read body: %w", err)
			}
			if strings.Contains(contentType, "text/plain") {
				bodyText = string(b)
			} else if strings.Contains(contentType, "text/html") {
				bodyHTML = string(b)
			}
		}
	}
	item.Body = bodyText
	if item.Body == "" {
		item.Body = bodyHTML
	}
	return item, nil
}

func formatAddress(addrs []*imap.Address) string {
	if len(addrs) == 0 {
		return ""
	}
	a := addrs[0]
	email := a.MailboxName + "@" + a.HostName
	if a.PersonalName != "" {
		return (&mail.Address{Name: a.PersonalName, Address: email}).String()
	}
	return email
}
