package report

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/xkilldash9x/salesi-reporter/internal/artifacts"
	"github.com/xkilldash9x/salesi-reporter/internal/config"
	"github.com/xkilldash9x/salesi-reporter/internal/mailer"
	"github.com/xkilldash9x/salesi-reporter/internal/navigator"
	"github.com/xkilldash9x/salesi-reporter/internal/retry"
	"go.uber.org/zap"
)

// Portal signs in and opens the report.
type Portal interface {
	Login(ctx context.Context) error
	OpenReport(ctx context.Context) error
}

// Navigation is the set of report screen steps the loop drives.
type Navigation interface {
	EnsureFilterPanel(ctx context.Context) (bool, error)
	SetDates(ctx context.Context, date string) error
	SetUser(ctx context.Context, rep config.Representative) (bool, error)
	ApplyFilters(ctx context.Context) (bool, error)
	WaitForResults(ctx context.Context) error
	OpenDetail(ctx context.Context, rep config.Representative) error
	AdjustColumns(ctx context.Context, columns []string) error
	ReturnToLanding(ctx context.Context, rep config.Representative) error
	ReopenFilters(ctx context.Context, after config.Representative) error
}

var (
	// ErrUserNotSelected is returned when no selector offered the representative.
	ErrUserNotSelected = errors.New("could not select user")
	// ErrApplyNotFound is returned when the filter panel has no apply control.
	ErrApplyNotFound = errors.New("apply filters control not found")
)

// Deps wires a Runner.
type Deps struct {
	Run        *RunContext
	Config     *config.Config
	Portal     Portal
	Navigation Navigation
	Store      *artifacts.Store
	Debug      navigator.Debugger
	Mailer     mailer.Mailer
	Logger     *zap.Logger
}

// Runner captures and mails one report per representative.
type Runner struct {
	run     *RunContext
	reps    []config.Representative
	columns []string
	mail    config.MailConfig
	policy  retry.Policy
	portal  Portal
	nav     Navigation
	store   *artifacts.Store
	debug   navigator.Debugger
	mailer  mailer.Mailer
	logger  *zap.Logger
}

// NewRunner returns a Runner over the configured roster.
func NewRunner(d Deps) *Runner {
	return &Runner{
		run:     d.Run,
		reps:    d.Config.Representatives,
		columns: d.Config.HiddenColumns,
		mail:    d.Config.Mail,
		policy:  retry.Policy{Attempts: d.Config.Timing.RetryAttempts, Delay: d.Config.Timing.RetryDelay},
		portal:  d.Portal,
		nav:     d.Navigation,
		store:   d.Store,
		debug:   d.Debug,
		mailer:  d.Mailer,
		logger:  d.Logger.Named("report"),
	}
}

// Run signs in, opens the report and processes every representative in
// order. The first error ends the run. A panic is recovered and returned as
// a *PanicError.
func (r *Runner) Run(ctx context.Context) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = NewPanicError(v)
		}
	}()

	r.logger.Info("Run started",
		zap.String("run_id", r.run.ID),
		zap.String("date", r.run.Date),
		zap.Int("representatives", len(r.reps)),
	)

	if err := r.portal.Login(ctx); err != nil {
		return errors.Wrap(err, "login")
	}
	if err := r.portal.OpenReport(ctx); err != nil {
		return errors.Wrap(err, "open report")
	}

	open, err := r.nav.EnsureFilterPanel(ctx)
	if err != nil {
		return errors.Wrap(err, "open filter panel")
	}
	if !open {
		return errors.WithStack(navigator.ErrFilterPanelUnavailable)
	}
	r.debug.Capture(ctx, "debug-filter-panel")

	last := len(r.reps) - 1
	for i, rep := range r.reps {
		if err := r.processRepresentative(ctx, i, rep); err != nil {
			return errors.Wrapf(err, "representative %s", rep.Name)
		}
		if i == last {
			break
		}
		if err := r.nav.ReturnToLanding(ctx, rep); err != nil {
			return errors.Wrap(err, "return to report list")
		}
		if err := r.nav.ReopenFilters(ctx, rep); err != nil {
			return errors.Wrap(err, "reopen filters")
		}
	}

	r.logger.Info("All reports sent", zap.Int("count", len(r.reps)))
	return nil
}

func (r *Runner) processRepresentative(ctx context.Context, i int, rep config.Representative) error {
	r.logger.Info("Processing", zap.String("rep", rep.Name), zap.Int("index", i+1), zap.Int("of", len(r.reps)))

	if err := r.nav.SetDates(ctx, r.run.Date); err != nil {
		return err
	}

	selected, err := r.nav.SetUser(ctx, rep)
	if err != nil {
		return err
	}
	if !selected {
		return errors.Wrapf(ErrUserNotSelected, "%s (%s)", rep.Name, rep.ID)
	}

	applied, err := r.nav.ApplyFilters(ctx)
	if err != nil {
		return err
	}
	if !applied {
		return errors.WithStack(ErrApplyNotFound)
	}

	if err := r.nav.WaitForResults(ctx); err != nil {
		return err
	}
	if err := r.nav.OpenDetail(ctx, rep); err != nil {
		return err
	}
	if i == 0 {
		if err := r.nav.AdjustColumns(ctx, r.columns); err != nil {
			return err
		}
	}

	path := r.store.ReportPath(rep.Name, r.run.Date)
	err = retry.Do(ctx, r.logger, "Screenshot "+rep.Name, r.policy, func(ctx context.Context) error {
		return r.store.Capture(ctx, r.run.Page, path)
	})
	if err != nil {
		return errors.Wrap(err, "screenshot")
	}
	r.logger.Info("Screenshot saved", zap.String("rep", rep.Name), zap.String("path", path))

	png, err := r.store.Read(path)
	if err != nil {
		return err
	}
	msg := mailer.ReportMessage(r.mail, rep.Name, r.run.Date, mailer.Attachment{
		Filename: filepath.Base(path),
		Data:     png,
	})
	err = retry.Do(ctx, r.logger, "Email "+rep.Name, r.policy, func(ctx context.Context) error {
		return r.mailer.Send(ctx, msg)
	})
	if err != nil {
		return errors.Wrap(err, "email")
	}

	r.logger.Info("Completed: " + rep.Name)
	return nil
}
