package alert

import (
	"context"
	"errors"
	"strings"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/salesi-reporter/internal/artifacts"
	"github.com/xkilldash9x/salesi-reporter/internal/browser/browsertest"
	"github.com/xkilldash9x/salesi-reporter/internal/config"
	"github.com/xkilldash9x/salesi-reporter/internal/mailer"
	"github.com/xkilldash9x/salesi-reporter/internal/mailer/mailertest"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const runID = "2024-03-02T06-00-00-000Z"

type fixture struct {
	store    *artifacts.Store
	recorder *mailertest.Recorder
	page     *browsertest.Page
	reporter *Reporter
}

func testMail() config.MailConfig {
	mail := config.NewDefaultConfig().Mail
	mail.To = "team@example.com"
	mail.AlertTo = "oncall@example.com"
	return mail
}

func newFixture(t *testing.T, logger *zap.Logger) *fixture {
	t.Helper()
	store := artifacts.NewStore(afero.NewMemMapFs(), "screenshots", "logs")
	require.NoError(t, store.EnsureDirs())
	f := &fixture{
		store:    store,
		recorder: &mailertest.Recorder{},
		page:     browsertest.New(),
	}
	f.reporter = NewReporter(store, f.recorder, testMail(), runID, store.LogPath(runID), logger)
	f.reporter.SetPage(f.page)
	return f
}

func attachmentNames(msg mailer.Message) []string {
	var names []string
	for _, a := range msg.Attachments {
		names = append(names, a.Filename)
	}
	return names
}

func TestFatalSendsAlertWithDiagnostics(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t))
	require.NoError(t, f.store.Write(f.store.LogPath(runID), []byte("[ts] Logging in\n")))
	f.page.HTMLContent = "<html><body>oops</body></html>"

	cause := pkgerrors.Wrap(errors.New("detail link not found"), "representative Aaron")
	got := f.reporter.Fatal(context.Background(), cause)
	assert.Same(t, cause, got)

	png, html := f.store.FatalPaths(runID)
	assert.True(t, f.store.Exists(png))
	data, err := f.store.Read(html)
	require.NoError(t, err)
	assert.Equal(t, "<html><body>oops</body></html>", string(data))

	msgs := f.recorder.Messages()
	require.Len(t, msgs, 1)
	msg := msgs[0]
	assert.Equal(t, "ALERT: Sales-i daily run FAILED (RunID "+runID+")", msg.Subject)
	assert.Equal(t, []string{"oncall@example.com"}, msg.To)
	assert.Equal(t, "Sales-i Bot (ALERT)", msg.FromName)
	assert.True(t, strings.HasPrefix(msg.Body, "Fatal error.\nRunID: "+runID+"\n\ndetail link not found\nrepresentative Aaron"))
	assert.Contains(t, msg.Body, "reporter_test.go", "stack trace expected in body")
	assert.Equal(t, []string{"salesi_" + runID + ".log", "FATAL_" + runID + ".png"}, attachmentNames(msg))
}

func TestFatalScreenshotFailureStillCapturesHTMLAndAlerts(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t))
	f.page.ScreenshotErr = errors.New("target crashed")

	f.reporter.Fatal(context.Background(), errors.New("boom"))

	png, html := f.store.FatalPaths(runID)
	assert.False(t, f.store.Exists(png))
	assert.True(t, f.store.Exists(html))

	msgs := f.recorder.Messages()
	require.Len(t, msgs, 1)
	assert.Empty(t, msgs[0].Attachments, "no log file and no screenshot")
}

func TestFatalHTMLFailureKeepsScreenshot(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t))
	f.page.HTMLErr = errors.New("no document")

	f.reporter.Fatal(context.Background(), errors.New("boom"))

	png, html := f.store.FatalPaths(runID)
	assert.True(t, f.store.Exists(png))
	assert.False(t, f.store.Exists(html))
	require.Len(t, f.recorder.Messages(), 1)
	assert.Equal(t, []string{"FATAL_" + runID + ".png"}, attachmentNames(f.recorder.Messages()[0]))
}

func TestFatalWithoutPage(t *testing.T) {
	store := artifacts.NewStore(afero.NewMemMapFs(), "screenshots", "logs")
	rec := &mailertest.Recorder{}
	r := NewReporter(store, rec, testMail(), runID, store.LogPath(runID), zaptest.NewLogger(t))

	r.Fatal(context.Background(), errors.New("browser did not start"))

	require.Len(t, rec.Messages(), 1)
	assert.Contains(t, rec.Messages()[0].Body, "browser did not start")
}

func TestFatalRunsAfterCancellation(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f.reporter.Fatal(ctx, context.Canceled)

	assert.Equal(t, 1, f.page.ScreenshotCount())
	assert.Len(t, f.recorder.Messages(), 1)
}

func TestFatalAlertSendFailureIsLoggedOnly(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	f := newFixture(t, zap.New(core))
	f.recorder.Errs = []error{errors.New("535 auth failed")}

	cause := errors.New("boom")
	assert.Same(t, cause, f.reporter.Fatal(context.Background(), cause))

	assert.Equal(t, 1, logs.FilterMessage("FATAL: boom").Len())
	assert.Equal(t, 1, logs.FilterMessage("Failed to send alert email").Len())
	assert.Equal(t, 1, f.recorder.Attempts())
}

// crashingPage panics while failure diagnostics are collected.
type crashingPage struct {
	*browsertest.Page
}

func (crashingPage) Screenshot(context.Context) ([]byte, error) {
	panic("driver blew up")
}

func (crashingPage) HTML(context.Context) (string, error) {
	panic("document gone")
}

func TestFatalCapturePanicsStillAlert(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	f := newFixture(t, zap.New(core))
	f.reporter.SetPage(crashingPage{Page: f.page})
	require.NoError(t, f.store.Write(f.store.LogPath(runID), []byte("[ts] Logging in\n")))

	cause := errors.New("login step \"password\" failed")
	var got error
	require.NotPanics(t, func() { got = f.reporter.Fatal(context.Background(), cause) })
	assert.Same(t, cause, got)

	png, html := f.store.FatalPaths(runID)
	assert.False(t, f.store.Exists(png))
	assert.False(t, f.store.Exists(html))

	msgs := f.recorder.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Body, "password")
	assert.Equal(t, []string{"salesi_" + runID + ".log"}, attachmentNames(msgs[0]))
	assert.Equal(t, 2, logs.FilterMessage("Failure diagnostics step panicked").Len())
}

type panickingMailer struct{}

func (panickingMailer) Send(context.Context, mailer.Message) error {
	panic("smtp client corrupted")
}

func TestFatalSendPanicIsLoggedOnly(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	store := artifacts.NewStore(afero.NewMemMapFs(), "screenshots", "logs")
	r := NewReporter(store, panickingMailer{}, testMail(), runID, store.LogPath(runID), zap.New(core))

	cause := errors.New("boom")
	var got error
	require.NotPanics(t, func() { got = r.Fatal(context.Background(), cause) })
	assert.Same(t, cause, got)
	assert.Equal(t, 1, logs.FilterMessage("Failure diagnostics step panicked").Len())
	assert.Zero(t, logs.FilterMessage("Alert email sent").Len())
}
