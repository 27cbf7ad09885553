package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/99minutos/account-service/internal/core/domain"
	"github.com/99minutos/account-service/internal/core/ports"
)

// Notifier renders account emails and hands them to a Sender. With a nil
// Sender every call is a no-op.
type Notifier struct {
	sender    Sender
	templates *template.Template
	baseURL   string
	appName   string
	log       zerolog.Logger
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier parses the built-in templates. baseURL prefixes verification
// links and must end with a slash.
func NewNotifier(sender Sender, baseURL, appName string, log zerolog.Logger) (*Notifier, error) {
	tmpl, err := template.New("emails").Parse(emailTemplates)
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}
	return &Notifier{
		sender:    sender,
		templates: tmpl,
		baseURL:   baseURL,
		appName:   appName,
		log:       log.With().Str("component", "email").Logger(),
	}, nil
}

func (n *Notifier) SendVerificationEmail(ctx context.Context, account *domain.Account) error {
	return n.send(ctx, ports.CategoryEmailVerification, account, n.VerificationURL(account))
}

func (n *Notifier) SendPasswordResetNotice(ctx context.Context, account *domain.Account) error {
	return n.send(ctx, ports.CategoryPasswordReset, account, "")
}

func (n *Notifier) SendAccountLockedNotice(ctx context.Context, account *domain.Account) error {
	return n.send(ctx, ports.CategoryAccountLocked, account, "")
}

// VerificationURL is {baseURL}verify-email/{id}/{token}.
func (n *Notifier) VerificationURL(account *domain.Account) string {
	return n.baseURL + "verify-email/" + url.PathEscape(account.ID) + "/" + url.PathEscape(account.VerificationToken)
}

func (n *Notifier) send(ctx context.Context, category ports.NotificationCategory, account *domain.Account, link string) error {
	if n.sender == nil {
		return nil
	}

	var body bytes.Buffer
	data := templateData{
		AppName:         n.appName,
		Name:            account.FirstName,
		Email:           account.Email,
		VerificationURL: link,
	}
	if err := n.templates.ExecuteTemplate(&body, string(category), data); err != nil {
		return fmt.Errorf("render %s email: %w", category, err)
	}

	if err := n.sender.Send(ctx, account.Email, subjects[category], body.String()); err != nil {
		return fmt.Errorf("send %s email: %w", category, err)
	}
	n.log.Debug().
		Str("account_id", account.ID).
		Str("category", string(category)).
		Msg("email delivered")
	return nil
}
