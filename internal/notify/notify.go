package notify

import (
	"fmt"
	"sort"
	"strings"

	gomail "gopkg.in/gomail.v2"

	"github.com/LuckySoftware/Aletheia/internal/model"
)

// Notifier mails run summaries to the operators. An empty SMTP host
// disables it, so unattended runs never fail on mail delivery being
// unconfigured.
type Notifier struct {
	cfg    model.SMTPConfig
	sender func(*gomail.Message) error
}

// New creates a Notifier from the SMTP settings.
func New(cfg model.SMTPConfig) *Notifier {
	n := &Notifier{cfg: cfg}
	n.sender = func(m *gomail.Message) error {
		d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
		return d.DialAndSend(m)
	}
	return n
}

// Enabled reports whether a host is configured.
func (n *Notifier) Enabled() bool {
	return n.cfg.Host != ""
}

// SendReport delivers the run summary. Disabled notifiers return nil.
func (n *Notifier) SendReport(report model.RunReport) error {
	if !n.Enabled() {
		return nil
	}
	if len(n.cfg.To) == 0 {
		return fmt.Errorf("smtp.to has no recipients")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.From)
	m.SetHeader("To", n.cfg.To...)
	m.SetHeader("Subject", subject(report))
	m.SetBody("text/plain", body(report))

	if err := n.sender(m); err != nil {
		return fmt.Errorf("send report mail: %w", err)
	}
	return nil
}

// SendFailure reports an aborted run: which stage counters were reached
// and the error that stopped it.
func (n *Notifier) SendFailure(report model.RunReport, runErr error) error {
	if !n.Enabled() {
		return nil
	}
	if len(n.cfg.To) == 0 {
		return fmt.Errorf("smtp.to has no recipients")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.From)
	m.SetHeader("To", n.cfg.To...)
	m.SetHeader("Subject", fmt.Sprintf("[aletheia] %s run %s: FAILED",
		report.Plant, report.StartedAt.Format("2006-01-02")))
	m.SetBody("text/plain", fmt.Sprintf("Run %s aborted: %v\n\n%s", report.RunID, runErr, body(report)))

	if err := n.sender(m); err != nil {
		return fmt.Errorf("send failure mail: %w", err)
	}
	return nil
}

func subject(r model.RunReport) string {
	status := "OK"
	if r.Errors > 0 {
		status = fmt.Sprintf("%d errors", r.Errors)
	}
	return fmt.Sprintf("[aletheia] %s run %s: %s", r.Plant, r.StartedAt.Format("2006-01-02"), status)
}

func body(r model.RunReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s for plant %s\n", r.RunID, r.Plant)
	fmt.Fprintf(&b, "Started:  %s\n", r.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "Finished: %s\n\n", r.FinishedAt.Format("2006-01-02 15:04:05 MST"))

	fmt.Fprintf(&b, "Files read:    %d\n", r.FilesRead)
	fmt.Fprintf(&b, "Rows ingested: %d (%d skipped)\n\n", r.RowsIngested, r.RowsSkipped)

	fmt.Fprintf(&b, "Duplicates: %d\n", r.Duplicates)
	fmt.Fprintf(&b, "Excluded:   %d\n", r.Excluded)
	fmt.Fprintf(&b, "Validated:  %d\n", r.Validated)
	fmt.Fprintf(&b, "Errors:     %d\n", r.Errors)

	if len(r.FailuresByRule) > 0 {
		b.WriteString("\nFailures by rule:\n")
		keys := make([]string, 0, len(r.FailuresByRule))
		for k := range r.FailuresByRule {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "  %-40s %d\n", k, r.FailuresByRule[k])
		}
	}

	if len(r.ParseWarnings) > 0 {
		b.WriteString("\nExclusion sheet warnings:\n")
		for _, w := range r.ParseWarnings {
			fmt.Fprintf(&b, "  %s\n", w)
		}
	}

	fmt.Fprintf(&b, "\nExclusion channels: %d (%d windows)\n", r.ExclusionChannels, r.ExclusionWindows)
	return b.String()
}
