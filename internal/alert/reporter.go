// Package alert turns a fatal run error into diagnostics and an alert email.
package alert

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/xkilldash9x/salesi-reporter/internal/artifacts"
	"github.com/xkilldash9x/salesi-reporter/internal/browser"
	"github.com/xkilldash9x/salesi-reporter/internal/config"
	"github.com/xkilldash9x/salesi-reporter/internal/mailer"
	"go.uber.org/zap"
)

// DefaultTimeout bounds diagnostics and the alert send together.
const DefaultTimeout = 60 * time.Second

// Reporter is the single failure path of a run.
type Reporter struct {
	mu   sync.Mutex
	page browser.Page

	store   *artifacts.Store
	mailer  mailer.Mailer
	mail    config.MailConfig
	runID   string
	logFile string
	timeout time.Duration
	logger  *zap.Logger
}

// NewReporter returns a reporter for the run. Call SetPage once a browser
// page exists so failures can be captured.
func NewReporter(store *artifacts.Store, m mailer.Mailer, mail config.MailConfig, runID, logFile string, logger *zap.Logger) *Reporter {
	return &Reporter{
		store:   store,
		mailer:  m,
		mail:    mail,
		runID:   runID,
		logFile: logFile,
		timeout: DefaultTimeout,
		logger:  logger.Named("alert"),
	}
}

// SetPage sets the page captured on failure.
func (r *Reporter) SetPage(p browser.Page) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.page = p
}

func (r *Reporter) currentPage() browser.Page {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.page
}

// Fatal logs cause, saves a screenshot and HTML dump of the page, and mails
// an alert with whatever could be collected. It runs even when ctx is
// already cancelled and always returns cause.
func (r *Reporter) Fatal(ctx context.Context, cause error) error {
	r.logger.Error("FATAL: " + cause.Error())

	ctx, cancel := context.WithTimeout(browser.Detach(ctx), r.timeout)
	defer cancel()

	var attachments []mailer.Attachment
	if page := r.currentPage(); page != nil {
		pngPath, htmlPath := r.store.FatalPaths(r.runID)
		r.guard("screenshot", func() {
			if a, ok := r.captureScreenshot(ctx, page, pngPath); ok {
				attachments = append(attachments, a)
			}
		})
		r.guard("html", func() { r.captureHTML(ctx, page, htmlPath) })
	}
	r.guard("log", func() {
		if a, ok := r.logAttachment(); ok {
			attachments = append([]mailer.Attachment{a}, attachments...)
		}
	})

	msg := mailer.AlertMessage(r.mail, r.runID, fmt.Sprintf("%+v", cause), attachments)
	var sendErr error
	if !r.guard("send", func() { sendErr = r.mailer.Send(ctx, msg) }) {
		return cause
	}
	if sendErr != nil {
		r.logger.Error("Failed to send alert email", zap.Error(sendErr))
		return cause
	}
	r.logger.Info("Alert email sent", zap.Strings("to", msg.To), zap.Int("attachments", len(attachments)))
	return cause
}

// guard runs one diagnostics step and reports whether it completed. A panic
// in it is logged and the remaining steps still run.
func (r *Reporter) guard(step string, fn func()) (ok bool) {
	defer func() {
		if v := recover(); v != nil {
			r.logger.Error("Failure diagnostics step panicked", zap.String("step", step), zap.Any("panic", v))
			ok = false
		}
	}()
	fn()
	return true
}

func (r *Reporter) captureScreenshot(ctx context.Context, page browser.Page, path string) (mailer.Attachment, bool) {
	if err := r.store.Capture(ctx, page, path); err != nil {
		r.logger.Warn("Failure screenshot not captured", zap.Error(err))
		return mailer.Attachment{}, false
	}
	data, err := r.store.Read(path)
	if err != nil {
		r.logger.Warn("Failure screenshot unreadable", zap.Error(err))
		return mailer.Attachment{}, false
	}
	r.logger.Info("Failure screenshot saved", zap.String("path", path))
	return mailer.Attachment{Filename: filepath.Base(path), Data: data}, true
}

func (r *Reporter) captureHTML(ctx context.Context, page browser.Page, path string) {
	html, err := page.HTML(ctx)
	if err == nil {
		err = r.store.Write(path, []byte(html))
	}
	if err != nil {
		r.logger.Warn("Failure HTML not captured", zap.Error(err))
		return
	}
	r.logger.Info("Failure HTML saved", zap.String("path", path))
}

func (r *Reporter) logAttachment() (mailer.Attachment, bool) {
	_ = r.logger.Sync()
	if r.logFile == "" || !r.store.Exists(r.logFile) {
		return mailer.Attachment{}, false
	}
	data, err := r.store.Read(r.logFile)
	if err != nil {
		r.logger.Warn("Run log not attached", zap.Error(err))
		return mailer.Attachment{}, false
	}
	return mailer.Attachment{Filename: filepath.Base(r.logFile), Data: data}, true
}
