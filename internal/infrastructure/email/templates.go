package email

import "github.com/99minutos/account-service/internal/core/ports"

var subjects = map[ports.NotificationCategory]string{
	ports.CategoryEmailVerification: "Verify Your Account",
	ports.CategoryPasswordReset:     "Password Reset Instructions",
	ports.CategoryAccountLocked:     "Account Locked Notification",
}

// templateData is shared by every message.
type templateData struct {
	AppName         string
	Name            string
	Email           string
	VerificationURL string
}

const layoutStyle = `
<style>
    body { font-family: -apple-system, 'Segoe UI', Roboto, sans-serif; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; background-color: #f5f5f5; }
    .container { background-color: #ffffff; border-radius: 12px; padding: 40px; }
    h1 { color: #1a1a1a; font-size: 24px; text-align: center; }
    .message { color: #666; font-size: 16px; text-align: center; }
    .button { display: inline-block; background: #4F46E5; color: #ffffff !important; text-decoration: none; padding: 14px 36px; border-radius: 8px; font-weight: 600; }
    .link-text { background-color: #F3F4F6; border-radius: 8px; padding: 15px; word-break: break-all; font-size: 14px; color: #666; }
    .footer { text-align: center; margin-top: 40px; color: #999; font-size: 12px; }
</style>`

const emailTemplates = `
{{define "footer"}}
<div class="footer">
    <p>This is an automated message, please do not reply.</p>
    <p>&copy; {{.AppName}}</p>
</div>
{{end}}

{{define "email_verification"}}
<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>Verify Your Account</title>` + layoutStyle + `</head>
<body>
<div class="container">
    <h1>Welcome{{if .Name}}, {{.Name}}{{end}}!</h1>
    <p class="message">Please confirm {{.Email}} belongs to you by opening the link below.</p>
    <p style="text-align: center;"><a href="{{.VerificationURL}}" class="button">Verify email</a></p>
    <div class="link-text">{{.VerificationURL}}</div>
    {{template "footer" .}}
</div>
</body>
</html>
{{end}}

{{define "password_reset"}}
<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>Password Reset</title>` + layoutStyle + `</head>
<body>
<div class="container">
    <h1>Your password was reset</h1>
    <p class="message">Hello{{if .Name}} {{.Name}}{{end}}, the password for {{.Email}} has just been changed.</p>
    <p class="message">If you did not request this change, contact an administrator immediately.</p>
    {{template "footer" .}}
</div>
</body>
</html>
{{end}}

{{define "account_locked"}}
<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>Account Locked</title>` + layoutStyle + `</head>
<body>
<div class="container">
    <h1>Your account has been locked</h1>
    <p class="message">Hello{{if .Name}} {{.Name}}{{end}}, we locked {{.Email}} after too many failed sign-in attempts.</p>
    <p class="message">An administrator or manager can unlock it for you.</p>
    {{template "footer" .}}
</div>
</body>
</html>
{{end}}
`
