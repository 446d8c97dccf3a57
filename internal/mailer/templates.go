package mailer

import (
	"fmt"

	"github.com/xkilldash9x/salesi-reporter/internal/config"
)

// ReportMessage is the per-representative report email.
func ReportMessage(cfg config.MailConfig, repName, date string, screenshot Attachment) Message {
	return Message{
		FromName:    cfg.FromName,
		To:          []string{cfg.To},
		Subject:     fmt.Sprintf("Sales-i Call Outcome Report — %s — %s", repName, date),
		Body:        fmt.Sprintf("Attached is the Call Outcome Report for %s for %s.", repName, date),
		Attachments: []Attachment{screenshot},
	}
}

// AlertMessage is the failure notification for a run. detail should carry
// the error and, where available, its stack.
func AlertMessage(cfg config.MailConfig, runID, detail string, attachments []Attachment) Message {
	return Message{
		FromName:    cfg.AlertFromName,
		To:          []string{cfg.AlertTo},
		Subject:     fmt.Sprintf("ALERT: Sales-i daily run FAILED (RunID %s)", runID),
		Body:        fmt.Sprintf("Fatal error.\nRunID: %s\n\n%s", runID, detail),
		Attachments: attachments,
	}
}
