package notify

import (
	"errors"
	"strings"
	"testing"
	"time"

	gomail "gopkg.in/gomail.v2"

	"github.com/LuckySoftware/Aletheia/internal/model"
)

var errInjected = errors.New("ingest: directory unreadable")

func sampleReport() model.RunReport {
	return model.RunReport{
		RunID:        "run-123",
		Plant:        "canahuate-i",
		StartedAt:    time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC),
		FinishedAt:   time.Date(2024, 5, 1, 6, 2, 0, 0, time.UTC),
		FilesRead:    3,
		RowsIngested: 864,
		Duplicates:   2,
		Excluded:     10,
		Validated:    800,
		Errors:       52,
		FailuresByRule: map[string]int{
			"col_1/range":    40,
			"col_2/not_null": 12,
		},
		ExclusionChannels: 4,
		ExclusionWindows:  9,
	}
}

func TestSendReport_DisabledWithoutHost(t *testing.T) {
	n := New(model.SMTPConfig{})
	n.sender = func(*gomail.Message) error {
		t.Fatal("disabled notifier must not attempt delivery")
		return nil
	}
	if err := n.SendReport(sampleReport()); err != nil {
		t.Fatalf("disabled notifier must be a no-op, got %v", err)
	}
}

func TestSendReport_NoRecipients(t *testing.T) {
	n := New(model.SMTPConfig{Host: "smtp.example.com", Port: 587, From: "x@example.com"})
	if err := n.SendReport(sampleReport()); err == nil {
		t.Fatal("expected error when no recipients are configured")
	}
}

func TestSendReport_BuildsMessage(t *testing.T) {
	n := New(model.SMTPConfig{
		Host: "smtp.example.com", Port: 587,
		From: "aletheia@example.com", To: []string{"ops@example.com"},
	})

	var sent *gomail.Message
	n.sender = func(m *gomail.Message) error {
		sent = m
		return nil
	}

	if err := n.SendReport(sampleReport()); err != nil {
		t.Fatalf("SendReport failed: %v", err)
	}
	if sent == nil {
		t.Fatal("message was not handed to the sender")
	}
	if got := sent.GetHeader("Subject"); len(got) != 1 || !strings.Contains(got[0], "52 errors") {
		t.Errorf("subject must surface the error count: %v", got)
	}
	if got := sent.GetHeader("To"); len(got) != 1 || got[0] != "ops@example.com" {
		t.Errorf("unexpected recipients: %v", got)
	}
}

func TestBodyContents(t *testing.T) {
	b := body(sampleReport())
	for _, want := range []string{
		"run-123", "canahuate-i",
		"Duplicates: 2", "Validated:  800", "Errors:     52",
		"col_1/range", "col_2/not_null",
		"Exclusion channels: 4 (9 windows)",
	} {
		if !strings.Contains(b, want) {
			t.Errorf("body missing %q:\n%s", want, b)
		}
	}
}

func TestSendFailure(t *testing.T) {
	n := New(model.SMTPConfig{
		Host: "smtp.example.com", Port: 587,
		From: "aletheia@example.com", To: []string{"ops@example.com"},
	})

	var sent *gomail.Message
	n.sender = func(m *gomail.Message) error {
		sent = m
		return nil
	}

	if err := n.SendFailure(sampleReport(), errInjected); err != nil {
		t.Fatalf("SendFailure failed: %v", err)
	}
	if got := sent.GetHeader("Subject"); len(got) != 1 || !strings.Contains(got[0], "FAILED") {
		t.Errorf("failure subject must be unmistakable: %v", got)
	}
}

func TestSubjectOKWhenNoErrors(t *testing.T) {
	r := sampleReport()
	r.Errors = 0
	if s := subject(r); !strings.Contains(s, "OK") {
		t.Errorf("clean run subject must say OK: %s", s)
	}
}
