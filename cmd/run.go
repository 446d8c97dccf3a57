package cmd

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/xkilldash9x/salesi-reporter/internal/alert"
	"github.com/xkilldash9x/salesi-reporter/internal/artifacts"
	"github.com/xkilldash9x/salesi-reporter/internal/browser"
	"github.com/xkilldash9x/salesi-reporter/internal/config"
	"github.com/xkilldash9x/salesi-reporter/internal/mailer"
	"github.com/xkilldash9x/salesi-reporter/internal/navigator"
	"github.com/xkilldash9x/salesi-reporter/internal/observability"
	"github.com/xkilldash9x/salesi-reporter/internal/portal"
	"github.com/xkilldash9x/salesi-reporter/internal/report"
	"go.uber.org/zap"
)

// browserSession is a page that must be closed when the run ends.
type browserSession interface {
	browser.Page
	Close(ctx context.Context) error
}

// runDeps holds the side-effecting constructors a run uses.
type runDeps struct {
	fs         afero.Fs
	now        func() time.Time
	initLogger func(cfg config.LoggerConfig, logFile string) (*zap.Logger, func())
	newMailer  func(cfg config.MailConfig, logger *zap.Logger) (mailer.Mailer, error)
	launch     func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (browserSession, error)
}

// newRunDeps is swapped in tests.
var newRunDeps = productionRunDeps

func productionRunDeps() runDeps {
	return runDeps{
		fs:  afero.NewOsFs(),
		now: time.Now,
		initLogger: func(cfg config.LoggerConfig, logFile string) (*zap.Logger, func()) {
			observability.InitializeRunLogger(cfg, logFile)
			return observability.GetLogger(), observability.Close
		},
		newMailer: func(cfg config.MailConfig, logger *zap.Logger) (mailer.Mailer, error) {
			m, err := mailer.NewSMTPMailer(cfg, logger)
			if err != nil {
				return nil, err
			}
			return m, nil
		},
		launch: func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (browserSession, error) {
			s, err := browser.Launch(ctx, cfg, logger)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
	}
}

// runReport performs one full run. Every failure after the mailer exists,
// panics included, goes through the alert reporter before being returned.
func runReport(ctx context.Context, cfg *config.Config, rt runDeps) (err error) {
	store := artifacts.NewStore(rt.fs, cfg.Paths.ScreenshotDir, cfg.Paths.LogDir)
	if err := store.EnsureDirs(); err != nil {
		return err
	}

	rc := report.NewRunContext(rt.now(), cfg.Paths.ScreenshotDir, cfg.Paths.LogDir, store.LogPath)
	logger, closeLog := rt.initLogger(cfg.Logger, rc.LogFile)
	defer closeLog()

	logger.Info("Starting salesi-reporter",
		zap.String("version", Version),
		zap.String("run_id", rc.ID),
		zap.String("date", rc.Date),
		zap.String("log_file", rc.LogFile),
	)

	m, err := rt.newMailer(cfg.Mail, logger)
	if err != nil {
		logger.Error("Mailer unavailable; no alert can be sent", zap.Error(err))
		return err
	}
	reporter := alert.NewReporter(store, m, cfg.Mail, rc.ID, rc.LogFile, logger)
	defer func() {
		if v := recover(); v != nil {
			err = reporter.Fatal(ctx, report.NewPanicError(v))
		}
	}()

	sess, err := rt.launch(ctx, cfg.Browser, logger)
	if err != nil {
		return reporter.Fatal(ctx, errors.Wrap(err, "launch browser"))
	}
	// Panics past this point are alerted here, while the page can still be captured.
	defer func() {
		if v := recover(); v != nil {
			err = reporter.Fatal(ctx, report.NewPanicError(v))
		}
		if cerr := sess.Close(context.Background()); cerr != nil {
			logger.Warn("Browser did not close cleanly", zap.Error(cerr))
		}
		logger.Info("Browser closed.")
	}()

	rc.Page = sess
	reporter.SetPage(sess)

	debug := artifacts.NewDebugger(store, sess, logger)
	nav := navigator.New(sess, cfg.Timing, cfg.Portal.ReportName, debug, logger)
	driver, err := portal.NewDriver(sess, cfg.Portal, cfg.Timing, nav, logger)
	if err != nil {
		return reporter.Fatal(ctx, err)
	}

	runner := report.NewRunner(report.Deps{
		Run:        rc,
		Config:     cfg,
		Portal:     driver,
		Navigation: nav,
		Store:      store,
		Debug:      debug,
		Mailer:     m,
		Logger:     logger,
	})
	if err := runner.Run(ctx); err != nil {
		return reporter.Fatal(ctx, err)
	}

	logger.Info("Run finished.",
		zap.Int("reports", len(cfg.Representatives)),
		zap.Duration("elapsed", rt.now().Sub(rc.Started)),
	)
	return nil
}
