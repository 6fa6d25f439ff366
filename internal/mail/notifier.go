// Package mail renders and submits notification email. Templates carry
// a subject and a body; the notifier wraps subjects with the site
// prefix, appends the shared footer, and throttles submission.
package mail

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/smtp"
	"path"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/srcf/warden/internal/common"
	"github.com/srcf/warden/internal/plumbing"
)

//go:embed templates
var templateFS embed.FS

// Recipient is who a message goes to; Name may be empty.
type Recipient struct {
	Name  string
	Email string
}

// RecipientFor derives the notification address of a member or society.
func RecipientFor(owner plumbing.Owner) Recipient {
	return Recipient{Name: owner.OwnerDesc(), Email: owner.OwnerEmail()}
}

func (r Recipient) address() string {
	if r.Name == "" {
		return r.Email
	}
	return fmt.Sprintf("%s <%s>", r.Name, r.Email)
}

// Notifier renders templates and submits them over local SMTP.
type Notifier struct {
	config    common.MailConfig
	logger    arbor.ILogger
	limiter   *rate.Limiter
	templates map[string]*template.Template

	// SubjectPrefix wraps every subject; Footer is appended to every
	// body. Both follow the site convention unless overridden.
	SubjectPrefix string
	Footer        string
}

// NewNotifier loads the embedded templates and prepares the limiter.
func NewNotifier(config common.MailConfig, logger arbor.ILogger) (*Notifier, error) {
	templates, err := loadTemplates()
	if err != nil {
		return nil, err
	}
	limit := rate.Inf
	if config.RatePerMinute > 0 {
		limit = rate.Limit(float64(config.RatePerMinute) / 60)
	}
	return &Notifier{
		config:        config,
		logger:        logger,
		limiter:       rate.NewLimiter(limit, 1),
		templates:     templates,
		SubjectPrefix: "[SRCF] %s",
	}, nil
}

func loadTemplates() (map[string]*template.Template, error) {
	templates := make(map[string]*template.Template)
	err := fs.WalkDir(templateFS, "templates", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(p, ".tmpl") {
			return err
		}
		data, err := templateFS.ReadFile(p)
		if err != nil {
			return err
		}
		name := strings.TrimSuffix(strings.TrimPrefix(p, "templates/"), ".tmpl")
		tmpl, err := template.New(path.Base(name)).Parse(string(data))
		if err != nil {
			return fmt.Errorf("parsing template %s: %w", name, err)
		}
		templates[name] = tmpl
		return nil
	})
	return templates, err
}

// Render produces the final subject and body for a template. Subjects
// are collapsed to a single line and wrapped with the site prefix.
func (n *Notifier) Render(name string, data any) (subject, body string, err error) {
	tmpl, ok := n.templates[name]
	if !ok {
		return "", "", fmt.Errorf("no such mail template %s", name)
	}
	var subjectBuf, bodyBuf strings.Builder
	if err := tmpl.ExecuteTemplate(&subjectBuf, "subject", data); err != nil {
		return "", "", fmt.Errorf("rendering %s subject: %w", name, err)
	}
	if err := tmpl.ExecuteTemplate(&bodyBuf, "body", data); err != nil {
		return "", "", fmt.Errorf("rendering %s body: %w", name, err)
	}
	subject = strings.Join(strings.Fields(subjectBuf.String()), " ")
	if n.SubjectPrefix != "" {
		subject = fmt.Sprintf(n.SubjectPrefix, subject)
	}
	body = bodyBuf.String()
	if n.Footer != "" {
		body = strings.TrimRight(body, "\n") + "\n\n-- \n" + n.Footer + "\n"
	}
	return subject, body, nil
}

// Send renders a template and mails it to the recipient. With mail
// suppressed, the intent is logged and the Result is unchanged.
func (n *Notifier) Send(ctx context.Context, to Recipient, templateName string, data any) (*plumbing.Result, error) {
	subject, body, err := n.Render(templateName, data)
	if err != nil {
		return nil, err
	}
	if n.config.Suppress {
		n.logger.Info().
			Str("to", to.Email).
			Str("template", templateName).
			Str("subject", subject).
			Msg("Mail suppressed")
		return plumbing.NewResult(plumbing.StateUnchanged), nil
	}
	if err := n.submit(ctx, to, subject, body, false); err != nil {
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateSuccess), nil
}

// SendSysadmins mails the sysadmin list directly, bypassing templates;
// the runner uses this for failure reports.
func (n *Notifier) SendSysadmins(ctx context.Context, subject, body string) error {
	if n.SubjectPrefix != "" {
		subject = fmt.Sprintf(n.SubjectPrefix, strings.Join(strings.Fields(subject), " "))
	}
	if n.config.Suppress {
		n.logger.Info().Str("subject", subject).Msg("Sysadmin mail suppressed")
		return nil
	}
	to := Recipient{Name: n.config.SysadminsName, Email: n.config.SysadminsEmail}
	return n.submit(ctx, to, subject, body, true)
}

func (n *Notifier) sysadmins() Recipient {
	return Recipient{Name: n.config.SysadminsName, Email: n.config.SysadminsEmail}
}

// submit assembles the RFC 5322 message and hands it to the local MTA.
func (n *Notifier) submit(ctx context.Context, to Recipient, subject, body string, toSysadmins bool) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}
	from := n.sysadmins()

	var msg strings.Builder
	fmt.Fprintf(&msg, "Message-Id: <%s@srcf-warden>\r\n", uuid.New().String())
	fmt.Fprintf(&msg, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&msg, "From: %s\r\n", from.address())
	fmt.Fprintf(&msg, "To: %s\r\n", to.address())
	fmt.Fprintf(&msg, "Reply-To: %s\r\n", from.address())
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))

	recipients := []string{to.Email}
	if !toSysadmins && to.Email != from.Email {
		// Sysadmins are copied on operational mail.
		recipients = append(recipients, from.Email)
	}

	addr := fmt.Sprintf("%s:%d", n.config.SMTPHost, n.config.SMTPPort)
	if err := smtp.SendMail(addr, nil, from.Email, recipients, []byte(msg.String())); err != nil {
		return fmt.Errorf("sending mail to %s: %w", to.Email, err)
	}
	n.logger.Debug().
		Str("to", to.Email).
		Str("subject", subject).
		Msg("Mail sent")
	return nil
}
