package mail

// contactTemplate is rendered with text/template: every field has already
// been HTML-escaped by the contact handler.
const contactTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>New contact form submission</title>
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; color: #1d1d1f; max-width: 600px; margin: 0 auto; padding: 24px;">
  <h2 style="margin-top: 0;">New contact form submission{{if .Site}} on {{.Site}}{{end}}</h2>
  <table style="border-collapse: collapse; width: 100%;">
    <tr>
      <td style="padding: 8px 0; font-weight: 600; width: 90px;">Name</td>
      <td style="padding: 8px 0;">{{.Name}}</td>
    </tr>
    <tr>
      <td style="padding: 8px 0; font-weight: 600;">Email</td>
      <td style="padding: 8px 0;">{{.Email}}</td>
    </tr>
  </table>
  <h3>Message</h3>
  <div style="white-space: pre-wrap; background: #f5f5f7; border-radius: 8px; padding: 16px;">{{.Message}}</div>
  <hr style="border: none; border-top: 1px solid #d2d2d7; margin: 24px 0;">
  <p style="color: #86868b; font-size: 12px;">Submission {{.ID}} received {{.ReceivedAt.UTC.Format "2006-01-02 15:04:05 MST"}}</p>
</body>
</html>
`
