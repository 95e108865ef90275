package output

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	mail "github.com/wneessen/go-mail"
)

// Mailer is the outbound transport the run hands its rendered report to.
// The body is staged in a temp file by the caller; adapters read it from
// bodyPath.
type Mailer interface {
	Send(from string, to []string, subject, bodyPath string) error
}

// SendmailMailer pipes the message to a sendmail-compatible binary.
type SendmailMailer struct {
	Path string
}

// Send writes a complete message (headers + body) to the sendmail
// process's stdin.
func (m *SendmailMailer) Send(from string, to []string, subject, bodyPath string) error {
	body, err := os.ReadFile(bodyPath)
	if err != nil {
		return errors.Wrap(err, "reading staged mail body")
	}

	args := []string{"-f", from}
	args = append(args, to...)
	cmd := exec.Command(m.Path, args...)

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\n", from)
	fmt.Fprintf(&msg, "To: %s\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "Subject: %s\n", subject)
	msg.WriteString("\n")
	msg.Write(body)

	cmd.Stdin = strings.NewReader(msg.String())
	out, err := cmd.CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "sendmail %s failed: %s", m.Path, strings.TrimSpace(string(out)))
	}
	return nil
}

// SMTPMailer delivers through an SMTP server, with STARTTLS and
// authentication when credentials are configured.
type SMTPMailer struct {
	Host     string
	Port     int
	User     string
	Password string
}

// Send builds and submits one message per call.
func (m *SMTPMailer) Send(from string, to []string, subject, bodyPath string) error {
	body, err := os.ReadFile(bodyPath)
	if err != nil {
		return errors.Wrap(err, "reading staged mail body")
	}

	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return errors.Wrapf(err, "invalid sender %q", from)
	}
	if err := msg.To(to...); err != nil {
		return errors.Wrap(err, "invalid recipient list")
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, string(body))

	opts := []mail.Option{
		mail.WithPort(m.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if m.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.User),
			mail.WithPassword(m.Password),
		)
	}

	client, err := mail.NewClient(m.Host, opts...)
	if err != nil {
		return errors.Wrapf(err, "connecting to %s", m.Host)
	}
	if err := client.DialAndSend(msg); err != nil {
		return errors.Wrapf(err, "sending mail via %s", m.Host)
	}
	return nil
}

// StdoutMailer is the dry-run transport: the message goes to stdout and
// nothing leaves the machine.
type StdoutMailer struct{}

func (m *StdoutMailer) Send(from string, to []string, subject, bodyPath string) error {
	body, err := os.ReadFile(bodyPath)
	if err != nil {
		return errors.Wrap(err, "reading staged mail body")
	}
	fmt.Printf("From: %s\n", from)
	fmt.Printf("To: %s\n", strings.Join(to, ", "))
	fmt.Printf("Subject: %s\n\n", subject)
	fmt.Println(string(body))
	return nil
}
