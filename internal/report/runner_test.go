package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/salesi-reporter/internal/artifacts"
	"github.com/xkilldash9x/salesi-reporter/internal/browser/browsertest"
	"github.com/xkilldash9x/salesi-reporter/internal/config"
	"github.com/xkilldash9x/salesi-reporter/internal/mailer/mailertest"
	"github.com/xkilldash9x/salesi-reporter/internal/navigator"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	aaron = config.Representative{Name: "Aaron", ID: "215523"}
	barry = config.Representative{Name: "Barry", ID: "200215321"}
	kevin = config.Representative{Name: "Kevin Sellers", ID: "200229000"}
)

// stubPortal and stubNavigation record calls and return scripted results.
type stubPortal struct {
	loginErr error
	openErr  error
}

func (p *stubPortal) Login(context.Context) error { return p.loginErr }
func (p *stubPortal) OpenReport(context.Context) error { return p.openErr }

type stubNavigation struct {
	calls []string

	panelOpen   bool
	userOK      bool
	applyOK     bool
	detailErr   error
	landingErr  error
	panicOnUser bool
}

func newStubNavigation() *stubNavigation {
	return &stubNavigation{panelOpen: true, userOK: true, applyOK: true}
}

func (n *stubNavigation) EnsureFilterPanel(context.Context) (bool, error) {
	n.calls = append(n.calls, "panel")
	return n.panelOpen, nil
}

func (n *stubNavigation) SetDates(_ context.Context, date string) error {
	n.calls = append(n.calls, "dates "+date)
	return nil
}

func (n *stubNavigation) SetUser(_ context.Context, rep config.Representative) (bool, error) {
	if n.panicOnUser {
		var m map[string]int
		m[rep.ID]++
	}
	n.calls = append(n.calls, "user "+rep.ID)
	return n.userOK, nil
}

func (n *stubNavigation) ApplyFilters(context.Context) (bool, error) {
	n.calls = append(n.calls, "apply")
	return n.applyOK, nil
}

func (n *stubNavigation) WaitForResults(context.Context) error {
	n.calls = append(n.calls, "results")
	return nil
}

func (n *stubNavigation) OpenDetail(_ context.Context, rep config.Representative) error {
	n.calls = append(n.calls, "detail "+rep.Name)
	return n.detailErr
}

func (n *stubNavigation) AdjustColumns(_ context.Context, columns []string) error {
	n.calls = append(n.calls, "columns")
	return nil
}

func (n *stubNavigation) ReturnToLanding(_ context.Context, rep config.Representative) error {
	n.calls = append(n.calls, "landing "+rep.Name)
	return n.landingErr
}

func (n *stubNavigation) ReopenFilters(_ context.Context, after config.Representative) error {
	n.calls = append(n.calls, "reopen "+after.Name)
	return nil
}

type recordingDebugger struct{ labels []string }

func (d *recordingDebugger) Capture(_ context.Context, label string) {
	d.labels = append(d.labels, label)
}

// testConfig keeps production bounds with every delay zeroed.
func testConfig(reps ...config.Representative) *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Mail.To = "team@example.com"
	cfg.Mail.AlertTo = "team@example.com"
	cfg.Representatives = reps
	cfg.Timing = config.TimingConfig{
		GotoAttempts:      6,
		RetryAttempts:     3,
		FilterPanelRounds: 10,
		LandingAttempts:   5,
	}
	return cfg
}

type stubFixture struct {
	store    *artifacts.Store
	page     *browsertest.Page
	nav      *stubNavigation
	debug    *recordingDebugger
	recorder *mailertest.Recorder
	runner   *Runner
	run      *RunContext
}

func newStubFixture(t *testing.T, reps ...config.Representative) *stubFixture {
	t.Helper()
	store := artifacts.NewStore(afero.NewMemMapFs(), "screenshots", "logs")
	rc := NewRunContext(time.Date(2024, 3, 2, 6, 0, 0, 0, time.UTC), "screenshots", "logs", store.LogPath)
	f := &stubFixture{
		store:    store,
		page:     browsertest.New(),
		nav:      newStubNavigation(),
		debug:    &recordingDebugger{},
		recorder: &mailertest.Recorder{},
		run:      rc,
	}
	rc.Page = f.page
	f.runner = NewRunner(Deps{
		Run:        rc,
		Config:     testConfig(reps...),
		Portal:     &stubPortal{},
		Navigation: f.nav,
		Store:      store,
		Debug:      f.debug,
		Mailer:     f.recorder,
		Logger:     zaptest.NewLogger(t),
	})
	return f
}

func TestRunProcessesRepresentativesInOrder(t *testing.T) {
	f := newStubFixture(t, aaron, kevin)

	require.NoError(t, f.runner.Run(context.Background()))

	assert.Equal(t, []string{
		"panel",
		"dates 03/01/2024", "user 215523", "apply", "results", "detail Aaron", "columns",
		"landing Aaron", "reopen Aaron",
		"dates 03/01/2024", "user 200229000", "apply", "results", "detail Kevin Sellers",
	}, f.nav.calls)
	assert.Equal(t, []string{"debug-filter-panel"}, f.debug.labels)

	msgs := f.recorder.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "Sales-i Call Outcome Report — Kevin Sellers — 03/01/2024", msgs[1].Subject)
	assert.Equal(t, "Attached is the Call Outcome Report for Kevin Sellers for 03/01/2024.", msgs[1].Body)
	require.Len(t, msgs[1].Attachments, 1)
	assert.Equal(t, "call-outcome_kevin-sellers_03-01-2024.png", msgs[1].Attachments[0].Filename)
	assert.Equal(t, browsertest.PNG, msgs[1].Attachments[0].Data)

	assert.True(t, f.store.Exists(f.store.ReportPath("Aaron", "03/01/2024")))
	assert.True(t, f.store.Exists(f.store.ReportPath("Kevin Sellers", "03/01/2024")))
}

func TestRunFailures(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name   string
		setup  func(f *stubFixture)
		target error
		emails int
	}{
		{
			name:   "filter panel never opens",
			setup:  func(f *stubFixture) { f.nav.panelOpen = false },
			target: navigator.ErrFilterPanelUnavailable,
		},
		{
			name:   "user not selectable",
			setup:  func(f *stubFixture) { f.nav.userOK = false },
			target: ErrUserNotSelected,
		},
		{
			name:   "no apply control",
			setup:  func(f *stubFixture) { f.nav.applyOK = false },
			target: ErrApplyNotFound,
		},
		{
			name:   "detail view unreachable",
			setup:  func(f *stubFixture) { f.nav.detailErr = navigator.ErrDetailLinkNotFound },
			target: navigator.ErrDetailLinkNotFound,
		},
		{
			name:   "landing not reached after first report",
			setup:  func(f *stubFixture) { f.nav.landingErr = navigator.ErrLandingNotReached },
			target: navigator.ErrLandingNotReached,
			emails: 1,
		},
		{
			name:   "screenshot keeps failing",
			setup:  func(f *stubFixture) { f.page.ScreenshotErr = boom },
			target: boom,
		},
		{
			name:   "email keeps failing",
			setup:  func(f *stubFixture) { f.recorder.Errs = []error{boom, boom, boom} },
			target: boom,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newStubFixture(t, aaron, barry)
			tt.setup(f)

			err := f.runner.Run(context.Background())
			assert.ErrorIs(t, err, tt.target)
			assert.Len(t, f.recorder.Messages(), tt.emails)
		})
	}
}

func TestRunRetriesEmail(t *testing.T) {
	f := newStubFixture(t, aaron)
	f.recorder.Errs = []error{errors.New("421 try again"), errors.New("421 try again")}

	require.NoError(t, f.runner.Run(context.Background()))
	assert.Equal(t, 3, f.recorder.Attempts())
	assert.Len(t, f.recorder.Messages(), 1)
}

func TestRunRecoversPanics(t *testing.T) {
	f := newStubFixture(t, aaron)
	f.nav.panicOnUser = true

	err := f.runner.Run(context.Background())
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.NotEmpty(t, pe.Stack)
	assert.Empty(t, f.recorder.Messages())
}

func TestRunWrapsLoginFailure(t *testing.T) {
	f := newStubFixture(t, aaron)
	boom := errors.New("timeout waiting for tenant")
	f.runner.portal = &stubPortal{loginErr: boom}

	err := f.runner.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "login: timeout waiting for tenant")
	assert.Empty(t, f.nav.calls)
}
