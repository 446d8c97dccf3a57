// internal/browser/allocator.go
package browser

import (
	"runtime"
	"sort"
	"strings"

	"github.com/chromedp/chromedp"
	"github.com/xkilldash9x/salesi-reporter/internal/config"
)

// allocatorFlags returns the Chrome command line flags for a run, keyed by
// flag name without the leading dashes.
func allocatorFlags(cfg config.BrowserConfig, goos string) map[string]any {
	flags := map[string]any{
		"headless":                  cfg.Headless,
		"ignore-certificate-errors": cfg.IgnoreTLSErrors,
		"disable-extensions":        true,
		"disable-gpu":               cfg.Headless,
	}

	// Custom arguments from config.yaml, e.g. "--lang=en-US" or "--kiosk".
	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		flagName := strings.TrimPrefix(parts[0], "--")
		if flagName == "" {
			continue
		}
		if len(parts) == 2 {
			flags[flagName] = parts[1]
		} else {
			flags[flagName] = true
		}
	}

	// Flags required for running inside containers (e.g., Docker on Linux).
	if goos == "linux" {
		flags["no-sandbox"] = true
		flags["disable-dev-shm-usage"] = true
		flags["disable-setuid-sandbox"] = true
	}
	return flags
}

// buildAllocatorOptions assembles the exec allocator options for a run.
func buildAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	flags := allocatorFlags(cfg, runtime.GOOS)
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		opts = append(opts, chromedp.Flag(name, flags[name]))
	}

	width, height := cfg.ViewportSize()
	opts = append(opts, chromedp.WindowSize(width, height))

	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.StartupTimeout > 0 {
		opts = append(opts, chromedp.WSURLReadTimeout(cfg.StartupTimeout))
	}
	return opts
}
