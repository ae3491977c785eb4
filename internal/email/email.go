package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type Sender struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string

	log zerolog.Logger
}

func NewSender(host, port, username, password, from string, log zerolog.Logger) *Sender {
	return &Sender{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		From:     from,
		log:      log,
	}
}

var resetTemplate = template.Must(template.New("reset").Parse(`
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; border: 1px solid #ddd; border-radius: 5px; }
        .header { background-color: #1f6feb; color: white; padding: 10px; text-align: center; border-radius: 5px 5px 0 0; }
        .content { padding: 20px; }
        .button { display: inline-block; padding: 10px 20px; background-color: #2ea043; color: white; text-decoration: none; border-radius: 4px; font-weight: bold; }
        .footer { margin-top: 20px; font-size: 0.8em; color: #777; text-align: center; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>SafeChatHub</h1>
        </div>
        <div class="content">
            <p>Hi {{.Username}},</p>
            <p>We received a request to reset your password. The link below is valid for one hour.</p>
            <p style="text-align: center;">
                <a href="{{.Link}}" class="button">Reset Password</a>
            </p>
            <p>If you didn't ask for this, you can safely ignore this email.</p>
        </div>
        <div class="footer">
            <p>&copy; SafeChatHub</p>
        </div>
    </div>
</body>
</html>
`))

// SendPasswordReset mails link to the user. Without an SMTP host the mail is
// only logged.
func (s *Sender) SendPasswordReset(to, username, link string) error {
	var body bytes.Buffer
	if err := resetTemplate.Execute(&body, map[string]string{"Username": username, "Link": link}); err != nil {
		return errors.Wrap(err, "email.SendPasswordReset.Execute")
	}

	const subject = "Reset your SafeChatHub password"
	if s.Host == "" {
		s.log.Info().Str("to", to).Str("subject", subject).Str("link", link).Msg("smtp not configured, email not sent")
		return nil
	}

	headers := [][2]string{
		{"From", s.From},
		{"To", to},
		{"Subject", subject},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/html; charset=\"UTF-8\""},
	}
	var message bytes.Buffer
	for _, h := range headers {
		fmt.Fprintf(&message, "%s: %s\r\n", h[0], h[1])
	}
	message.WriteString("\r\n")
	message.Write(body.Bytes())

	auth := smtp.PlainAuth("", s.Username, s.Password, s.Host)
	addr := fmt.Sprintf("%s:%s", s.Host, s.Port)
	return errors.Wrap(smtp.SendMail(addr, auth, s.From, []string{to}, message.Bytes()), "email.SendPasswordReset")
}
