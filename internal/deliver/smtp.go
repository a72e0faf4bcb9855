package deliver

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/lanhoang/maildigest/internal/model"
	"github.com/lanhoang/maildigest/internal/render"
)

// dialTimeout bounds the initial SMTP connection attempt.
const dialTimeout = 30 * time.Second

// SMTPDelivery implements Delivery over SMTP. Port 465 uses implicit
// TLS; anything else uses STARTTLS.
type SMTPDelivery struct {
	host     string
	port     string
	username string
	password string
}

// NewSMTPDelivery creates an SMTP delivery client configuration.
func NewSMTPDelivery(host, port, username, password string) *SMTPDelivery {
	return &SMTPDelivery{
		host:     host,
		port:     port,
		username: username,
		password: password,
	}
}

// Deliver composes the digest message and sends it to the destination
// address.
func (d *SMTPDelivery) Deliver(
	_ context.Context, doc *render.Document, to string,
) (*Receipt, error) {
	if to == "" {
		return nil, &Error{
			Kind:    model.KindNotFound,
			Message: "no destination address configured",
		}
	}

	body := composeMessage(d.username, to, doc.Subject, doc.HTML)
	addr := d.host + ":" + d.port

	var err error
	if d.port == "465" {
		err = d.sendWithTLS(addr, to, body)
	} else {
		err = d.sendWithStartTLS(addr, to, body)
	}
	if err != nil {
		return nil, err
	}

	return &Receipt{
		To:          to,
		Subject:     doc.Subject,
		DeliveredAt: time.Now(),
	}, nil
}

// composeMessage builds the RFC 2822 message with an HTML body.
func composeMessage(from, to, subject, htmlBody string) string {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", from))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)
	return msg.String()
}

// sendWithTLS sends the message over an implicit TLS connection.
func (d *SMTPDelivery) sendWithTLS(addr, to, body string) error {
	tlsConfig := &tls.Config{ServerName: d.host}

	dialer := &net.Dialer{Timeout: dialTimeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
	if err != nil {
		return &Error{
			Kind:    model.KindNetworkTimeout,
			Message: fmt.Sprintf("TLS dial to %s: %v", addr, err),
		}
	}

	client, err := smtp.NewClient(conn, d.host)
	if err != nil {
		conn.Close()
		return &Error{
			Kind:    model.KindNetworkTimeout,
			Message: fmt.Sprintf("creating SMTP client: %v", err),
		}
	}
	defer client.Close()

	auth := smtp.PlainAuth("", d.username, d.password, d.host)
	if err := client.Auth(auth); err != nil {
		return &Error{
			Kind:    model.KindAuth,
			Message: fmt.Sprintf("SMTP auth: %v", err),
		}
	}

	return d.sendViaClient(client, to, body)
}

// sendWithStartTLS sends the message using STARTTLS.
func (d *SMTPDelivery) sendWithStartTLS(addr, to, body string) error {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return &Error{
			Kind:    model.KindNetworkTimeout,
			Message: fmt.Sprintf("dial to %s: %v", addr, err),
		}
	}

	client, err := smtp.NewClient(conn, d.host)
	if err != nil {
		conn.Close()
		return &Error{
			Kind:    model.KindNetworkTimeout,
			Message: fmt.Sprintf("creating SMTP client: %v", err),
		}
	}
	defer client.Close()

	tlsConfig := &tls.Config{ServerName: d.host}
	if err := client.StartTLS(tlsConfig); err != nil {
		return &Error{
			Kind:    model.KindNetworkTimeout,
			Message: fmt.Sprintf("SMTP STARTTLS: %v", err),
		}
	}

	auth := smtp.PlainAuth("", d.username, d.password, d.host)
	if err := client.Auth(auth); err != nil {
		return &Error{
			Kind:    model.KindAuth,
			Message: fmt.Sprintf("SMTP auth: %v", err),
		}
	}

	return d.sendViaClient(client, to, body)
}

// sendViaClient sends the message using an authenticated SMTP client.
// Recipient rejection is fatal; later protocol failures stay transient
// so the dispatcher retries them.
func (d *SMTPDelivery) sendViaClient(client *smtp.Client, to, body string) error {
	if err := client.Mail(d.username); err != nil {
		return &Error{
			Kind:    model.KindUnknown,
			Message: fmt.Sprintf("SMTP MAIL FROM: %v", err),
		}
	}

	if err := client.Rcpt(to); err != nil {
		return &Error{
			Kind:    model.KindNotFound,
			Message: fmt.Sprintf("SMTP RCPT TO %s: %v", to, err),
		}
	}

	writer, err := client.Data()
	if err != nil {
		return &Error{
			Kind:    model.KindUnknown,
			Message: fmt.Sprintf("SMTP DATA: %v", err),
		}
	}

	if _, err := writer.Write([]byte(body)); err != nil {
		return &Error{
			Kind:    model.KindNetworkTimeout,
			Message: fmt.Sprintf("writing message body: %v", err),
		}
	}

	if err := writer.Close(); err != nil {
		return &Error{
			Kind:    model.KindNetworkTimeout,
			Message: fmt.Sprintf("closing message body: %v", err),
		}
	}

	return client.Quit()
}
