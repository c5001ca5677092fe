package mailer

import (
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	gomail "github.com/emersion/go-message/mail"
)

// buildMessage assembles an RFC 5322 text/plain message.
func buildMessage(from, to, subject, msgID, body string) ([]byte, error) {
	var h gomail.Header
	h.SetDate(time.Now())
	h.SetSubject(subject)
	h.SetMessageID(trimBrackets(msgID))
	if err := setAddr(&h, "From", from); err != nil {
		return nil, err
	}
	if err := setAddr(&h, "To", to); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w, err := gomail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("compose message: %w", err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func setAddr(h *gomail.Header, field, addr string) error {
	list, err := gomail.ParseAddressList(addr)
	if err != nil {
		return fmt.Errorf("%s address %q: %w", field, addr, err)
	}
	h.SetAddressList(field, list)
	return nil
}

func trimBrackets(id string) string {
	if len(id) >= 2 && id[0] == '<' && id[len(id)-1] == '>' {
		return id[1 : len(id)-1]
	}
	return id
}

// relay pushes the message through the configured relay using STARTTLS when
// the server offers it. SMTP 5xx replies are treated as permanent.
func (c *SMTP) relay(to string, raw []byte) error {
	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(port(c.cfg.Port)))
	conn, err := net.DialTimeout("tcp", addr, c.timeout)
	if err != nil {
		return &SendError{Permanent: false, Err: fmt.Errorf("dial %s: %w", addr, err)}
	}

	client, err := smtp.NewClient(conn, c.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return &SendError{Permanent: false, Err: fmt.Errorf("smtp handshake: %w", err)}
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: c.cfg.Host}); err != nil {
			return classify(fmt.Errorf("starttls: %w", err))
		}
	}
	if c.cfg.Username != "" {
		auth := smtp.PlainAuth("", c.cfg.Username, c.cfg.Password, c.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return classify(fmt.Errorf("smtp auth: %w", err))
		}
	}

	if err := client.Mail(c.cfg.From); err != nil {
		return classify(fmt.Errorf("mail from: %w", err))
	}
	if err := client.Rcpt(to); err != nil {
		return classify(fmt.Errorf("rcpt to: %w", err))
	}
	w, err := client.Data()
	if err != nil {
		return classify(fmt.Errorf("data: %w", err))
	}
	if _, err := w.Write(raw); err != nil {
		_ = w.Close()
		return classify(err)
	}
	if err := w.Close(); err != nil {
		return classify(err)
	}
	return client.Quit()
}

func port(p int) int {
	if p <= 0 {
		return 587
	}
	return p
}

// classify maps SMTP reply codes to retryability: 5xx replies are permanent,
// everything else (4xx, network errors) is worth a retry.
func classify(err error) error {
	var tp *textproto.Error
	if errors.As(err, &tp) && tp.Code >= 500 && tp.Code < 600 {
		return &SendError{Permanent: true, Err: err}
	}
	return &SendError{Permanent: false, Err: err}
}
