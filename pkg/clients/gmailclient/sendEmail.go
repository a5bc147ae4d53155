package gmailclient

import (
	"encoding/base64"
	"fmt"
	"mime"
	"time"

	"google.golang.org/api/gmail/v1"
)

const EMAIL_INTERVAL = 3 * time.Second

// SendEmail sends a plain text e-mail.
// Throttles requests to respect Gmail API rate limits.
func (c *Client) SendEmail(to, subject, body string) error {
	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()

	if !c.lastSendTime.IsZero() {
		if elapsed := time.Since(c.lastSendTime); elapsed < EMAIL_INTERVAL {
			time.Sleep(EMAIL_INTERVAL - elapsed)
		}
	}

	gmailMessage := &gmail.Message{
		Raw: encodeMessage(c.sender, to, subject, body),
	}

	_, err := c.service.Users.Messages.Send("me", gmailMessage).Do()
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	c.lastSendTime = time.Now()
	return nil
}

// encodeMessage builds the raw RFC 2822 message. Subjects are Q-encoded since they carry accents.
func encodeMessage(from, to, subject, body string) string {
	message := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		from, to, mime.QEncoding.Encode("utf-8", subject), body)
	return base64.URLEncoding.EncodeToString([]byte(message))
}
