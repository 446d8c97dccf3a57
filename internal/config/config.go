// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config is the full runtime configuration for a reporting run.
type Config struct {
	Logger          LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Browser         BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	Portal          PortalConfig     `mapstructure:"portal" yaml:"portal"`
	Mail            MailConfig       `mapstructure:"mail" yaml:"mail"`
	Paths           PathsConfig      `mapstructure:"paths" yaml:"paths"`
	Timing          TimingConfig     `mapstructure:"timing" yaml:"timing"`
	Representatives []Representative `mapstructure:"representatives" yaml:"representatives"`
	// HiddenColumns are unchecked in the detail grid's column chooser before the first capture.
	HiddenColumns []string `mapstructure:"hidden_columns" yaml:"hidden_columns"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
}

// BrowserConfig holds settings for the Chrome instance driven during a run.
type BrowserConfig struct {
	Headless        bool           `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	ExecPath        string         `mapstructure:"exec_path" yaml:"exec_path"`
	Args            []string       `mapstructure:"args" yaml:"args"`
	Viewport        map[string]int `mapstructure:"viewport" yaml:"viewport"`
	// ActionTimeout bounds auto-waiting for an element before an action on it.
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	StartupTimeout    time.Duration `mapstructure:"startup_timeout" yaml:"startup_timeout"`
}

// PortalConfig describes the sales-i tenant and the account used to sign in.
type PortalConfig struct {
	LoginURL      string `mapstructure:"login_url" yaml:"login_url"`
	WelcomeURL    string `mapstructure:"welcome_url" yaml:"welcome_url"`
	TenantPattern string `mapstructure:"tenant_pattern" yaml:"tenant_pattern"`
	ReportName    string `mapstructure:"report_name" yaml:"report_name"`
	Username      string `mapstructure:"username" yaml:"-"`
	Password      string `mapstructure:"password" yaml:"-"`
}

// MailConfig configures the SMTP transport and recipients.
type MailConfig struct {
	Host          string        `mapstructure:"host" yaml:"host"`
	Port          int           `mapstructure:"port" yaml:"port"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Username      string        `mapstructure:"username" yaml:"-"`
	Password      string        `mapstructure:"password" yaml:"-"`
	FromName      string        `mapstructure:"from_name" yaml:"from_name"`
	AlertFromName string        `mapstructure:"alert_from_name" yaml:"alert_from_name"`
	To            string        `mapstructure:"to" yaml:"to"`
	AlertTo       string        `mapstructure:"alert_to" yaml:"alert_to"`
}

// PathsConfig holds the per-run output locations.
type PathsConfig struct {
	ScreenshotDir string `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
	LogDir        string `mapstructure:"log_dir" yaml:"log_dir"`
}

// TimingConfig collects every wait, poll budget and retry bound used while
// navigating the portal. Tests zero the delays.
type TimingConfig struct {
	LoginRedirectTimeout time.Duration `mapstructure:"login_redirect_timeout" yaml:"login_redirect_timeout"`
	IdleTimeout          time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	DetailIdleTimeout    time.Duration `mapstructure:"detail_idle_timeout" yaml:"detail_idle_timeout"`

	GotoAttempts   int           `mapstructure:"goto_attempts" yaml:"goto_attempts"`
	GotoRetryDelay time.Duration `mapstructure:"goto_retry_delay" yaml:"goto_retry_delay"`
	RetryAttempts  int           `mapstructure:"retry_attempts" yaml:"retry_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`

	ProbeTimeout       time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
	FilterProbeTimeout time.Duration `mapstructure:"filter_probe_timeout" yaml:"filter_probe_timeout"`
	FilterPanelRounds  int           `mapstructure:"filter_panel_rounds" yaml:"filter_panel_rounds"`
	FilterPanelSettle  time.Duration `mapstructure:"filter_panel_settle" yaml:"filter_panel_settle"`
	FilterRoundDelay   time.Duration `mapstructure:"filter_round_delay" yaml:"filter_round_delay"`

	PickerStepDelay      time.Duration `mapstructure:"picker_step_delay" yaml:"picker_step_delay"`
	PickerDismissTimeout time.Duration `mapstructure:"picker_dismiss_timeout" yaml:"picker_dismiss_timeout"`
	ApplySettle          time.Duration `mapstructure:"apply_settle" yaml:"apply_settle"`
	DetailVerifyTimeout  time.Duration `mapstructure:"detail_verify_timeout" yaml:"detail_verify_timeout"`
	ColumnsTimeout       time.Duration `mapstructure:"columns_timeout" yaml:"columns_timeout"`
	ColumnsSettle        time.Duration `mapstructure:"columns_settle" yaml:"columns_settle"`

	LandingAttempts     int           `mapstructure:"landing_attempts" yaml:"landing_attempts"`
	LandingSettle       time.Duration `mapstructure:"landing_settle" yaml:"landing_settle"`
	LandingRetryDelay   time.Duration `mapstructure:"landing_retry_delay" yaml:"landing_retry_delay"`
	UserDropdownTimeout time.Duration `mapstructure:"user_dropdown_timeout" yaml:"user_dropdown_timeout"`
}

// Representative is a sales rep whose report is captured and mailed.
// ID is the value of the rep's option in the portal's user selector.
type Representative struct {
	Name string `mapstructure:"name" yaml:"name"`
	ID   string `mapstructure:"id" yaml:"id"`
}

// DefaultRepresentatives is the roster used when no config file overrides it.
var DefaultRepresentatives = []Representative{
	{Name: "Aaron", ID: "215523"},
	{Name: "Barry", ID: "200215321"},
	{Name: "Brandon", ID: "200229612"},
	{Name: "Chris", ID: "200226708"},
	{Name: "Dave", ID: "200226280"},
	{Name: "Murph", ID: "200226279"},
	{Name: "Jeremy", ID: "200224688"},
	{Name: "Jesse", ID: "200223301"},
	{Name: "John", ID: "200230324"},
	{Name: "Kevin", ID: "200223210"},
	{Name: "Kevin Sellers", ID: "200229000"},
	{Name: "Matt Kartz", ID: "200228999"},
	{Name: "Mike", ID: "200221589"},
	{Name: "Trevor", ID: "200227744"},
}

// requiredEnv maps config keys that must come from the environment to their variable names.
// Order is the order they are reported in.
var requiredEnv = []struct {
	key string
	env string
}{
	{"portal.username", "SI_USERNAME"},
	{"portal.password", "SI_PASSWORD"},
	{"mail.username", "GMAIL_USER"},
	{"mail.password", "GMAIL_APP_PASS"},
	{"mail.to", "TO_EMAIL"},
}

// MissingEnvError reports required environment variables that were not set.
type MissingEnvError struct {
	Missing []string
}

func (e *MissingEnvError) Error() string {
	return fmt.Sprintf("missing required environment variables: %s", strings.Join(e.Missing, ", "))
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "salesi")
	v.SetDefault("logger.max_size", 512)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.viewport", map[string]int{"width": 1600, "height": 1000})
	v.SetDefault("browser.action_timeout", "30s")
	v.SetDefault("browser.navigation_timeout", "45s")
	v.SetDefault("browser.startup_timeout", "30s")

	// -- Portal --
	v.SetDefault("portal.login_url", "https://login.sales-i.com/Account/Login")
	v.SetDefault("portal.welcome_url", "https://us2t.sales-i.com/Net/RecordCard_v3/welcome.aspx")
	v.SetDefault("portal.tenant_pattern", `(?i)us2t\.sales-i\.com`)
	v.SetDefault("portal.report_name", "Call Outcome Report")

	// -- Mail --
	v.SetDefault("mail.host", "smtp.gmail.com")
	v.SetDefault("mail.port", 465)
	v.SetDefault("mail.timeout", "30s")
	v.SetDefault("mail.from_name", "Sales-i Bot")
	v.SetDefault("mail.alert_from_name", "Sales-i Bot (ALERT)")

	// -- Paths --
	v.SetDefault("paths.screenshot_dir", "screenshots")
	v.SetDefault("paths.log_dir", "logs")

	// -- Timing --
	v.SetDefault("timing.login_redirect_timeout", "45s")
	v.SetDefault("timing.idle_timeout", "15s")
	v.SetDefault("timing.detail_idle_timeout", "10s")
	v.SetDefault("timing.goto_attempts", 6)
	v.SetDefault("timing.goto_retry_delay", "700ms")
	v.SetDefault("timing.retry_attempts", 3)
	v.SetDefault("timing.retry_delay", "700ms")
	v.SetDefault("timing.probe_timeout", "2s")
	v.SetDefault("timing.filter_probe_timeout", "500ms")
	v.SetDefault("timing.filter_panel_rounds", 10)
	v.SetDefault("timing.filter_panel_settle", "1s")
	v.SetDefault("timing.filter_round_delay", "500ms")
	v.SetDefault("timing.picker_step_delay", "300ms")
	v.SetDefault("timing.picker_dismiss_timeout", "5s")
	v.SetDefault("timing.apply_settle", "3s")
	v.SetDefault("timing.detail_verify_timeout", "5s")
	v.SetDefault("timing.columns_timeout", "5s")
	v.SetDefault("timing.columns_settle", "300ms")
	v.SetDefault("timing.landing_attempts", 5)
	v.SetDefault("timing.landing_settle", "2s")
	v.SetDefault("timing.landing_retry_delay", "1s")
	v.SetDefault("timing.user_dropdown_timeout", "3s")

	// -- Roster --
	reps := make([]map[string]string, 0, len(DefaultRepresentatives))
	for _, r := range DefaultRepresentatives {
		reps = append(reps, map[string]string{"name": r.Name, "id": r.ID})
	}
	v.SetDefault("representatives", reps)
	v.SetDefault("hidden_columns", []string{"Contact", "Call Outcome", "Next Action"})
}

// BindEnvironment binds the credential and recipient keys to the variable
// names the deployment already uses.
func BindEnvironment(v *viper.Viper) {
	for _, r := range requiredEnv {
		_ = v.BindEnv(r.key, r.env)
	}
	_ = v.BindEnv("mail.alert_to", "ALERT_EMAIL")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	BindEnvironment(v)

	var missing []string
	for _, r := range requiredEnv {
		if strings.TrimSpace(v.GetString(r.key)) == "" {
			missing = append(missing, r.env)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingEnvError{Missing: missing}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.Mail.AlertTo == "" {
		cfg.Mail.AlertTo = cfg.Mail.To
	}

	var err error
	if cfg.Paths.ScreenshotDir, err = expandPath(cfg.Paths.ScreenshotDir); err != nil {
		return nil, fmt.Errorf("invalid paths.screenshot_dir: %w", err)
	}
	if cfg.Paths.LogDir, err = expandPath(cfg.Paths.LogDir); err != nil {
		return nil, fmt.Errorf("invalid paths.log_dir: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func expandPath(p string) (string, error) {
	expanded, err := homedir.Expand(p)
	if err != nil {
		return "", err
	}
	return filepath.Clean(expanded), nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Portal.LoginURL == "" || c.Portal.WelcomeURL == "" {
		return fmt.Errorf("portal.login_url and portal.welcome_url are required")
	}
	if c.Portal.ReportName == "" {
		return fmt.Errorf("portal.report_name is required")
	}
	if _, err := regexp.Compile(c.Portal.TenantPattern); err != nil {
		return fmt.Errorf("portal.tenant_pattern is not a valid expression: %w", err)
	}
	if c.Mail.Host == "" || c.Mail.Port <= 0 {
		return fmt.Errorf("mail.host and a positive mail.port are required")
	}
	if c.Paths.ScreenshotDir == "" || c.Paths.LogDir == "" {
		return fmt.Errorf("paths.screenshot_dir and paths.log_dir are required")
	}
	if err := c.Timing.Validate(); err != nil {
		return fmt.Errorf("timing configuration invalid: %w", err)
	}
	return ValidateRepresentatives(c.Representatives)
}

// Validate checks that every retry bound allows at least one attempt.
func (t *TimingConfig) Validate() error {
	if t.GotoAttempts <= 0 {
		return fmt.Errorf("goto_attempts must be greater than 0")
	}
	if t.RetryAttempts <= 0 {
		return fmt.Errorf("retry_attempts must be greater than 0")
	}
	if t.FilterPanelRounds <= 0 {
		return fmt.Errorf("filter_panel_rounds must be greater than 0")
	}
	if t.LandingAttempts <= 0 {
		return fmt.Errorf("landing_attempts must be greater than 0")
	}
	return nil
}

// ValidateRepresentatives requires a non-empty roster with unique, non-empty ids.
func ValidateRepresentatives(reps []Representative) error {
	if len(reps) == 0 {
		return fmt.Errorf("at least one representative is required")
	}
	seen := make(map[string]string, len(reps))
	for i, r := range reps {
		if strings.TrimSpace(r.Name) == "" || strings.TrimSpace(r.ID) == "" {
			return fmt.Errorf("representative %d must have both a name and an id", i)
		}
		if prev, ok := seen[r.ID]; ok {
			return fmt.Errorf("representative id %s is shared by %q and %q", r.ID, prev, r.Name)
		}
		seen[r.ID] = r.Name
	}
	return nil
}

// ViewportSize returns the configured window size, falling back to 1600x1000.
func (b BrowserConfig) ViewportSize() (width, height int) {
	width, height = 1600, 1000
	if w, ok := b.Viewport["width"]; ok && w > 0 {
		width = w
	}
	if h, ok := b.Viewport["height"]; ok && h > 0 {
		height = h
	}
	return width, height
}
