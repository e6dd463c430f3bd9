// Package mailer renders digest emails and delivers them through AWS
// SES. Delivery outcomes (bounces, complaints, deliveries) flow back in
// via the SNS webhook handler.
package mailer

import (
	"fmt"
	"time"

	"github.com/osteele/liquid"
)

// digestLayout is the Liquid shell wrapped around the summarizer's HTML
// content. The content arrives pre-formatted, so it is injected raw.
const digestLayout = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>{{ subject | escape }}</title>
</head>
<body style="margin:0;padding:0;background-color:#f4f4f7;font-family:-apple-system,'Segoe UI',Roboto,Helvetica,Arial,sans-serif;">
  <table role="presentation" width="100%" cellpadding="0" cellspacing="0" style="background-color:#f4f4f7;">
    <tr>
      <td align="center" style="padding:24px 12px;">
        <table role="presentation" width="600" cellpadding="0" cellspacing="0" style="max-width:600px;background-color:#ffffff;border-radius:8px;overflow:hidden;">
          <tr>
            <td style="background-color:#1a1a2e;padding:20px 32px;">
              <span style="color:#ffffff;font-size:20px;font-weight:700;">InfoCapsule</span>
            </td>
          </tr>
          <tr>
            <td style="padding:32px;color:#333333;font-size:15px;line-height:1.6;">
              {{ content }}
            </td>
          </tr>
          <tr>
            <td style="padding:20px 32px;background-color:#f4f4f7;color:#8a8a98;font-size:12px;line-height:1.5;">
              You are receiving this digest because you subscribed to InfoCapsule.
              Pause deliveries anytime from your dashboard.
              <br>&copy; {{ year }} InfoCapsule
            </td>
          </tr>
        </table>
      </td>
    </tr>
  </table>
</body>
</html>`

// Layout renders summarizer output into the full email HTML.
type Layout struct {
	engine   *liquid.Engine
	template *liquid.Template
}

// NewLayout compiles the digest layout template.
func NewLayout() (*Layout, error) {
	engine := liquid.NewEngine()

	tmpl, err := engine.ParseString(digestLayout)
	if err != nil {
		return nil, fmt.Errorf("failed to parse digest layout: %w", err)
	}

	return &Layout{engine: engine, template: tmpl}, nil
}

// Render wraps the digest content in the email shell.
func (l *Layout) Render(subject, content string) (string, error) {
	out, err := l.template.RenderString(map[string]interface{}{
		"subject": subject,
		"content": content,
		"year":    time.Now().UTC().Year(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render digest layout: %w", err)
	}
	return out, nil
}
