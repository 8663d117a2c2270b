package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/mail"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/gomail.v2"

	"tonstation_bot/internal/config"
	"tonstation_bot/internal/logbus"
	"tonstation_bot/internal/model"
)

type sendFunc func(ctx context.Context, settings config.EmailConfig, pass model.PassSummary) error

// EmailNotifier mails a summary after every pass. Sending happens on a
// background goroutine so a slow SMTP server never delays the loop.
type EmailNotifier struct {
	settings config.EmailConfig
	bus      *logbus.Bus
	send     sendFunc

	mu     sync.Mutex
	queue  chan model.PassSummary
	ctx    context.Context
	cancel func()
	wg     sync.WaitGroup
}

func NewEmailNotifier(settings config.EmailConfig, bus *logbus.Bus) *EmailNotifier {
	return newEmailNotifier(settings, bus, SendPassSummaryEmail)
}

func newEmailNotifier(settings config.EmailConfig, bus *logbus.Bus, send sendFunc) *EmailNotifier {
	ctx, cancel := context.WithCancel(context.Background())
	n := &EmailNotifier{
		settings: settings,
		bus:      bus,
		send:     send,
		queue:    make(chan model.PassSummary, 16),
		ctx:      ctx,
		cancel:   cancel,
	}
	n.wg.Add(1)
	go n.loop()
	return n
}

// Close drains already queued summaries, then stops the worker.
func (n *EmailNotifier) Close(ctx context.Context) error {
	n.mu.Lock()
	cancel := n.cancel
	n.cancel = nil
	n.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *EmailNotifier) NotifyPassCompleted(_ context.Context, pass model.PassSummary) {
	select {
	case n.queue <- pass:
	default:
		if n.bus != nil {
			n.bus.Warn("pass summary email dropped: queue full", map[string]any{"passId": pass.ID})
		}
	}
}

func (n *EmailNotifier) loop() {
	defer n.wg.Done()
	for {
		select {
		case pass := <-n.queue:
			n.handle(pass)
		case <-n.ctx.Done():
			for {
				select {
				case pass := <-n.queue:
					n.handle(pass)
				default:
					return
				}
			}
		}
	}
}

func (n *EmailNotifier) handle(pass model.PassSummary) {
	if !n.settings.Enabled {
		return
	}
	if err := validateEmailSettings(n.settings); err != nil {
		if n.bus != nil {
			n.bus.Warn("email settings invalid", map[string]any{"error": err.Error()})
		}
		return
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(n.ctx), 30*time.Second)
	defer cancel()
	if err := n.send(sendCtx, n.settings, pass); err != nil {
		if n.bus != nil {
			n.bus.Warn("pass summary email failed", map[string]any{
				"error":  err.Error(),
				"passId": pass.ID,
			})
		}
		return
	}
	if n.bus != nil {
		n.bus.Info("pass summary email sent", map[string]any{
			"passId": pass.ID,
			"to":     strings.TrimSpace(n.settings.Email),
		})
	}
}

func validateEmailSettings(s config.EmailConfig) error {
	email := strings.TrimSpace(s.Email)
	if email == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return errors.New("invalid email")
	}
	if strings.TrimSpace(s.AuthCode) == "" {
		return errors.New("authCode is required")
	}
	return nil
}

func SendPassSummaryEmail(ctx context.Context, settings config.EmailConfig, pass model.PassSummary) error {
	if err := validateEmailSettings(settings); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	email := strings.TrimSpace(settings.Email)
	host, port, useSSL, err := smtpConfigForEmail(email)
	if err != nil {
		return err
	}
	htmlBody, textBody, err := buildSummaryEmailBody(pass)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", msg.FormatAddress(email, "TON Station bot"))
	msg.SetHeader("To", email)
	msg.SetHeader("Subject", buildSummarySubject(pass))
	msg.SetBody("text/plain", textBody)
	msg.AddAlternative("text/html", htmlBody)

	d := gomail.NewDialer(host, port, email, strings.TrimSpace(settings.AuthCode))
	d.SSL = useSSL
	return d.DialAndSend(msg)
}

func smtpConfigForEmail(email string) (host string, port int, useSSL bool, err error) {
	parts := strings.Split(strings.TrimSpace(email), "@")
	if len(parts) != 2 || strings.TrimSpace(parts[1]) == "" {
		return "", 0, false, errors.New("invalid email format")
	}
	domain := strings.ToLower(strings.TrimSpace(parts[1]))

	switch {
	case domain == "qq.com" || strings.HasSuffix(domain, ".qq.com") || domain == "foxmail.com" || strings.HasSuffix(domain, ".foxmail.com"):
		return "smtp.qq.com", 465, true, nil
	case domain == "163.com" || strings.HasSuffix(domain, ".163.com") ||
		domain == "126.com" || strings.HasSuffix(domain, ".126.com"):
		return "smtp.163.com", 465, true, nil
	case domain == "gmail.com" || strings.HasSuffix(domain, ".gmail.com"):
		return "smtp.gmail.com", 587, false, nil
	case domain == "outlook.com" || strings.HasSuffix(domain, ".outlook.com") ||
		domain == "hotmail.com" || strings.HasSuffix(domain, ".hotmail.com") ||
		domain == "live.com" || strings.HasSuffix(domain, ".live.com"):
		return "smtp.office365.com", 587, false, nil
	case domain == "yahoo.com" || strings.HasSuffix(domain, ".yahoo.com"):
		return "smtp.mail.yahoo.com", 465, true, nil
	default:
		return "smtp." + domain, 465, true, nil
	}
}

func buildSummarySubject(pass model.PassSummary) string {
	if pass.Failed > 0 {
		return fmt.Sprintf("TON Station pass: %d/%d accounts ok, %d failed", pass.Succeeded, pass.Accounts, pass.Failed)
	}
	return fmt.Sprintf("TON Station pass: %d/%d accounts ok", pass.Succeeded, pass.Accounts)
}

var emailSummaryHTMLTpl = template.Must(template.New("email-summary").Parse(`
<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width" />
    <title>Pass summary</title>
  </head>
  <body style="margin:0;padding:0;background:#f6f8fb;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,'Helvetica Neue',Arial,sans-serif;">
    <div style="max-width:720px;margin:0 auto;padding:24px;">
      <div style="background:#ffffff;border:1px solid #e6e8ef;border-radius:14px;overflow:hidden;">
        <div style="padding:18px 22px;background:linear-gradient(135deg,#0ea5e9,#6366f1);color:#ffffff;">
          <div style="font-size:16px;font-weight:700;letter-spacing:.2px;">Pass summary</div>
          <div style="margin-top:6px;font-size:12px;opacity:.95;">{{ .Start }} ~ {{ .End }}</div>
        </div>

        <div style="padding:22px;">
          <div style="font-size:14px;color:#111827;">
            <strong>{{ .Succeeded }}</strong> of {{ .Accounts }} accounts ok,
            farms started {{ .FarmsStarted }}, farms claimed {{ .FarmsClaimed }}, quests claimed {{ .QuestsClaimed }}
          </div>

          <div style="margin-top:12px;border:1px solid #eef0f6;border-radius:12px;overflow:hidden;">
            <table role="presentation" cellspacing="0" cellpadding="0" border="0" style="width:100%;border-collapse:collapse;">
              <thead>
                <tr style="background:#fafbff;">
                  <th style="padding:10px 12px;text-align:left;font-size:12px;color:#6b7280;border-bottom:1px solid #eef0f6;">#</th>
                  <th style="padding:10px 12px;text-align:left;font-size:12px;color:#6b7280;border-bottom:1px solid #eef0f6;">Account</th>
                  <th style="padding:10px 12px;text-align:left;font-size:12px;color:#6b7280;border-bottom:1px solid #eef0f6;">Status</th>
                  <th style="padding:10px 12px;text-align:left;font-size:12px;color:#6b7280;border-bottom:1px solid #eef0f6;">Farm</th>
                  <th style="padding:10px 12px;text-align:left;font-size:12px;color:#6b7280;border-bottom:1px solid #eef0f6;">Quests</th>
                </tr>
              </thead>
              <tbody>
                {{ range .Rows }}
                <tr>
                  <td style="padding:10px 12px;font-size:12px;color:#111827;border-bottom:1px solid #eef0f6;">{{ .Index }}</td>
                  <td style="padding:10px 12px;font-size:12px;color:#111827;border-bottom:1px solid #eef0f6;">{{ .Account }}</td>
                  <td style="padding:10px 12px;font-size:12px;color:#111827;border-bottom:1px solid #eef0f6;">{{ .Status }}</td>
                  <td style="padding:10px 12px;font-size:12px;color:#111827;border-bottom:1px solid #eef0f6;">{{ .Farm }}</td>
                  <td style="padding:10px 12px;font-size:12px;color:#111827;border-bottom:1px solid #eef0f6;">{{ .Quests }}</td>
                </tr>
                {{ end }}
              </tbody>
            </table>
          </div>
        </div>
      </div>
    </div>
  </body>
</html>
`))

type summaryRow struct {
	Index   string
	Account string
	Status  string
	Farm    string
	Quests  string
}

func buildSummaryEmailBody(pass model.PassSummary) (htmlBody string, textBody string, err error) {
	rows := make([]summaryRow, 0, len(pass.Runs))
	for _, run := range pass.Runs {
		farm := string(run.Farm.Action)
		if farm == "" {
			farm = "-"
		}
		rows = append(rows, summaryRow{
			Index:   strconv.Itoa(run.Index),
			Account: safeText(run.FirstName, run.AccountID),
			Status:  string(run.Status),
			Farm:    farm,
			Quests:  fmt.Sprintf("%d claimed / %d listed", run.Quests.Claimed, run.Quests.Listed),
		})
	}

	data := struct {
		Start         string
		End           string
		Accounts      int
		Succeeded     int
		FarmsStarted  int
		FarmsClaimed  int
		QuestsClaimed int
		Rows          []summaryRow
	}{
		Start:         pass.StartedAt.Format("2006-01-02 15:04:05"),
		End:           pass.FinishedAt.Format("2006-01-02 15:04:05"),
		Accounts:      pass.Accounts,
		Succeeded:     pass.Succeeded,
		FarmsStarted:  pass.FarmsStarted,
		FarmsClaimed:  pass.FarmsClaimed,
		QuestsClaimed: pass.QuestsClaimed,
		Rows:          rows,
	}

	var buf bytes.Buffer
	if err := emailSummaryHTMLTpl.Execute(&buf, data); err != nil {
		return "", "", err
	}

	text := new(strings.Builder)
	text.WriteString("Pass summary\n")
	text.WriteString(fmt.Sprintf("%s ~ %s\n", data.Start, data.End))
	text.WriteString(fmt.Sprintf("%d of %d accounts ok, farms started %d, farms claimed %d, quests claimed %d\n",
		pass.Succeeded, pass.Accounts, pass.FarmsStarted, pass.FarmsClaimed, pass.QuestsClaimed))
	for _, row := range rows {
		text.WriteString(fmt.Sprintf("- %s | %s | %s | farm %s | %s\n", row.Index, row.Account, row.Status, row.Farm, row.Quests))
	}

	return buf.String(), text.String(), nil
}

func safeText(prefer, fallback string) string {
	prefer = strings.TrimSpace(prefer)
	if prefer != "" {
		return prefer
	}
	return strings.TrimSpace(fallback)
}
