package email

import (
	"bytes"
	"html/template"
)

var layout = template.Must(template.New("layout").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
</head>
<body style="margin: 0; padding: 0; font-family: Arial, sans-serif; background-color: #f5f1ea;">
    <table role="presentation" style="width: 100%; border-collapse: collapse;">
        <tr>
            <td align="center" style="padding: 40px 0;">
                <table role="presentation" style="width: 600px; background-color: #ffffff; border-radius: 8px;">
                    <tr>
                        <td style="padding: 32px; text-align: center; background-color: #6b4f2c; border-radius: 8px 8px 0 0;">
                            <h1 style="margin: 0; color: #ffffff; font-size: 26px;">{{.Title}}</h1>
                        </td>
                    </tr>
                    <tr>
                        <td style="padding: 32px; font-size: 16px; line-height: 24px; color: #333333;">
                            {{range .Paragraphs}}<p style="margin: 0 0 16px;">{{.}}</p>{{end}}
                            {{if .ActionURL}}
                            <p style="margin: 28px 0; text-align: center;">
                                <a href="{{.ActionURL}}" style="display: inline-block; padding: 14px 36px; background-color: #6b4f2c; color: #ffffff; text-decoration: none; border-radius: 6px; font-weight: bold;">{{.ActionLabel}}</a>
                            </p>
                            {{end}}
                            {{if .Footnote}}<p style="margin: 16px 0 0; font-size: 13px; color: #777777;">{{.Footnote}}</p>{{end}}
                        </td>
                    </tr>
                    <tr>
                        <td style="padding: 24px; text-align: center; background-color: #faf7f2; border-radius: 0 0 8px 8px; font-size: 12px; color: #999999;">
                            Nour Hub equine management
                        </td>
                    </tr>
                </table>
            </td>
        </tr>
    </table>
</body>
</html>`))

type page struct {
	Title       string
	Paragraphs  []string
	ActionURL   string
	ActionLabel string
	Footnote    string
}

func render(p page) string {
	var buf bytes.Buffer
	if err := layout.Execute(&buf, p); err != nil {
		// the template is static, so this only fails on a programming error
		panic(err)
	}
	return buf.String()
}

func WelcomeEmailTemplate(name, appURL string) string {
	return render(page{
		Title: "Welcome to Nour Hub",
		Paragraphs: []string{
			"Hi " + name + ",",
			"Your account is ready. Create your first facility or accept an invitation to join an existing one.",
		},
		ActionURL:   appURL,
		ActionLabel: "Open Nour Hub",
	})
}

func InvitationEmailTemplate(msg InvitationMessage, link string) string {
	inviter := msg.InviterName
	if inviter == "" {
		inviter = "A team member"
	}
	return render(page{
		Title: "You're invited",
		Paragraphs: []string{
			inviter + " invited you to join " + msg.TenantName + " as " + msg.Role + ".",
		},
		ActionURL:   link,
		ActionLabel: "Accept invitation",
		Footnote:    "This invitation expires on " + msg.ExpiresAt.UTC().Format("2 Jan 2006 15:04 MST") + ".",
	})
}
