package utils

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/gomail.v2"

	"inboxpilot/config"
	"inboxpilot/models"
)

// ReplyMailer transmits approved reply drafts over SMTP.
type ReplyMailer struct {
	cfg config.SMTPConfig
}

func NewReplyMailer(cfg config.SMTPConfig) *ReplyMailer {
	return &ReplyMailer{cfg: cfg}
}

// SendReply transmits finalContent as a reply to the original item. The
// caller supplies the content; the stored draft body is never sent as-is.
func (rm *ReplyMailer) SendReply(draft models.Draft, finalContent string) (models.SendResult, error) {
	if rm.cfg.Host == "" || rm.cfg.FromEmail == "" {
		return models.SendResult{}, NewUpstreamError("SMTP transport not configured", nil)
	}
	if strings.TrimSpace(finalContent) == "" {
		return models.SendResult{}, NewValidationError("reply content is empty")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", fmt.Sprintf("%s <%s>", rm.cfg.FromName, rm.cfg.FromEmail))
	m.SetHeader("To", draft.Recipient)
	m.SetHeader("Subject", replySubject(draft.Subject))
	if draft.InReplyToItemID != "" {
		m.SetHeader("In-Reply-To", draft.InReplyToItemID)
		m.SetHeader("References", draft.InReplyToItemID)
	}
	m.SetBody("text/plain", finalContent)

	d := gomail.NewDialer(rm.cfg.Host, rm.cfg.Port, rm.cfg.Username, rm.cfg.Password)
	if err := d.DialAndSend(m); err != nil {
		return models.SendResult{}, NewUpstreamError("error sending reply", err)
	}

	return models.SendResult{
		Sent:      true,
		Recipient: draft.Recipient,
		SentAt:    time.Now().UTC(),
	}, nil
}

func replySubject(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "Re: your enquiry"
	}
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}
