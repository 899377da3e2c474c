package mailer

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// SMTP sends through a plain SMTP relay with PLAIN auth when credentials are set.
type SMTP struct {
	host string
	port int
	user string
	pass string

	// sendMail is smtp.SendMail; tests replace it.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTP(host string, port int, user, pass string) *SMTP {
	return &SMTP{host: host, port: port, user: user, pass: pass, sendMail: smtp.SendMail}
}

func (s *SMTP) Send(ctx context.Context, msg Message) DeliveryStatus {
	status := DeliveryStatus{Transport: "smtp"}
	if err := ctx.Err(); err != nil {
		status.Message = err.Error()
		return status
	}

	from, err := mail.ParseAddress(msg.Sender)
	if err != nil {
		status.Message = fmt.Sprintf("invalid sender: %v", err)
		return status
	}
	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), s.host)
	body, err := buildMIME(msg, messageID, time.Now())
	if err != nil {
		status.Message = err.Error()
		return status
	}

	var auth smtp.Auth
	if s.user != "" {
		auth = smtp.PlainAuth("", s.user, s.pass, s.host)
	}
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	if err := s.sendMail(addr, auth, from.Address, []string{msg.Recipient}, body); err != nil {
		status.Message = err.Error()
		return status
	}
	return DeliveryStatus{Delivered: true, ID: messageID, Message: "Queued", Transport: "smtp"}
}

// buildMIME renders a multipart/alternative message with text and HTML parts.
func buildMIME(msg Message, messageID string, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nDate: %s\r\nMessage-ID: %s\r\nMIME-Version: 1.0\r\nContent-Type: multipart/alternative; boundary=%q\r\n\r\n",
		msg.Sender,
		msg.Recipient,
		mime.QEncoding.Encode("utf-8", msg.Subject),
		now.Format(time.RFC1123Z),
		messageID,
		mw.Boundary(),
	)

	parts := []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=utf-8", msg.Text},
		{"text/html; charset=utf-8", msg.HTML},
	}
	for _, p := range parts {
		w, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {p.contentType},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return nil, err
		}
		qp := quotedprintable.NewWriter(w)
		if _, err := qp.Write([]byte(p.content)); err != nil {
			return nil, err
		}
		if err := qp.Close(); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return append([]byte(header), buf.Bytes()...), nil
}
