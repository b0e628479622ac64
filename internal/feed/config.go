package feed

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"standings-sync/internal/configutil"
	"standings-sync/internal/detect"
	"standings-sync/internal/locate"
	"standings-sync/internal/notify"
	"standings-sync/internal/remote"
	"standings-sync/internal/retry"
	"standings-sync/internal/telemetry"
	"strconv"
	"time"
)

const (
	DefaultDownloadDir = "pdfs"
	DefaultExtension   = "pdf"
	DefaultSchedule    = "*/30 * * * *"
)

// Duration is a time.Duration written as a string like "5s" in the config.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

type RetryConfig struct {
	Attempts int      `json:"attempts"`
	Delay    Duration `json:"delay"`
	Timeout  Duration `json:"timeout"`
}

// Policy fills unset fields from retry.DefaultPolicy.
func (c RetryConfig) Policy() retry.Policy {
	policy := retry.DefaultPolicy()
	if c.Attempts > 0 {
		policy.Attempts = c.Attempts
	}
	if c.Delay > 0 {
		policy.Delay = time.Duration(c.Delay)
	}
	if c.Timeout > 0 {
		policy.Timeout = time.Duration(c.Timeout)
	}
	return policy
}

type SourceKind string

const (
	// SourceStatic downloads a fixed url.
	SourceStatic       SourceKind = "static"
	SourceAnchor       SourceKind = "anchor"
	SourceExportButton SourceKind = "export-button"
	// SourcePopup clicks the export button in a browser and reads the url of
	// the window it opens.
	SourcePopup SourceKind = "popup"
)

type Source struct {
	Kind    SourceKind `json:"kind"`
	URL     string     `json:"url"`
	BaseURL string     `json:"base_url"`
	// Render loads the page in the browser before parsing, for pages that
	// build their links with javascript.
	Render bool `json:"render"`
}

type Feed struct {
	Name          string `json:"name"`
	Title         string `json:"title"`
	Source        Source `json:"source"`
	Detect        string `json:"detect"`
	CompareLocal  bool   `json:"compare_local"`
	RemoteDir     string `json:"remote_dir"`
	PublicBaseURL string `json:"public_base_url"`
	MarkerFile    string `json:"marker_file"`
	Extension     string `json:"extension"`
}

// LocalDir is where the dated copies of the feed are kept.
func (f Feed) LocalDir(downloadDir string) string {
	return filepath.Join(downloadDir, f.Name)
}

// MarkerPath is the marker file of the feed, relative paths are resolved
// against downloadDir.
func (f Feed) MarkerPath(downloadDir string) string {
	if f.MarkerFile == "" {
		return filepath.Join(downloadDir, f.Name+".marker")
	}
	if filepath.IsAbs(f.MarkerFile) {
		return f.MarkerFile
	}
	return filepath.Join(downloadDir, f.MarkerFile)
}

func (f Feed) Policy() detect.Policy {
	policy, err := detect.ParsePolicy(f.Detect)
	if err != nil {
		// Validate rejects unknown policies before a feed is used
		panic(err)
	}
	return policy
}

type SMTPConfig struct {
	Server   string `json:"server"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	From     string `json:"from"`
	// To is a comma separated list of recipients.
	To string `json:"to"`
}

func (c SMTPConfig) Transport() notify.SMTPConfig {
	return notify.SMTPConfig{
		Server:   c.Server,
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
	}
}

type Config struct {
	Timezone    string               `json:"timezone"`
	DownloadDir string               `json:"download_dir"`
	StateDB     string               `json:"state_db"`
	Retry       RetryConfig          `json:"retry"`
	Schedule    string               `json:"schedule"`
	Otlp        telemetry.OtlpConfig `json:"otlp"`
	Browser     locate.BrowserConfig `json:"browser"`
	FTP         remote.FTPConfig     `json:"ftp"`
	// RemoteRoot publishes into a local directory instead of over ftp, the
	// directory is usually served by a web server.
	RemoteRoot string     `json:"remote_root"`
	SMTP       SMTPConfig `json:"smtp"`
	DryRun     bool       `json:"dry_run"`
	Feeds      []Feed     `json:"feeds"`
}

// WithDefaults fills every unset optional field.
func (c Config) WithDefaults() Config {
	if c.DownloadDir == "" {
		c.DownloadDir = DefaultDownloadDir
	}
	if c.Schedule == "" {
		c.Schedule = DefaultSchedule
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = notify.DefaultSMTPPort
	}

	feeds := make([]Feed, len(c.Feeds))
	for i, f := range c.Feeds {
		if f.Title == "" {
			f.Title = f.Name
		}
		if f.Extension == "" {
			f.Extension = DefaultExtension
		}
		if f.Detect == "" {
			f.Detect = string(detect.PolicyContent)
		}
		if f.Source.BaseURL == "" {
			f.Source.BaseURL = locate.DefaultBaseURL
		}
		feeds[i] = f
	}
	c.Feeds = feeds
	return c
}

// Environment variables that override the config file.
const (
	EnvFTPHost     = "FTP_HOST"
	EnvFTPUsername = "FTP_USERNAME"
	EnvFTPPassword = "FTP_PASSWORD"
	EnvEmailFrom   = "EMAIL_FROM"
	EnvEmailTo     = "EMAIL_TO"
	EnvSMTPServer  = "SMTP_SERVER"
	EnvSMTPPort    = "SMTP_PORT"
	EnvSMTPUser    = "SMTP_USER"
	EnvSMTPPass    = "SMTP_PASS"
	EnvDryRun      = "DRY_RUN"
)

// ApplyEnv overrides the config with every variable lookup finds, it is
// usually os.LookupEnv.
func (c Config) ApplyEnv(lookup func(string) (string, bool)) (Config, error) {
	set := func(name string, target *string) {
		value, ok := lookup(name)
		if ok {
			*target = value
		}
	}
	set(EnvFTPHost, &c.FTP.Host)
	set(EnvFTPUsername, &c.FTP.Username)
	set(EnvFTPPassword, &c.FTP.Password)
	set(EnvEmailFrom, &c.SMTP.From)
	set(EnvEmailTo, &c.SMTP.To)
	set(EnvSMTPServer, &c.SMTP.Server)
	set(EnvSMTPUser, &c.SMTP.Username)
	set(EnvSMTPPass, &c.SMTP.Password)

	port, ok := lookup(EnvSMTPPort)
	if ok && port != "" {
		parsed, err := strconv.Atoi(port)
		if err != nil {
			return c, fmt.Errorf("%s: %w", EnvSMTPPort, err)
		}
		c.SMTP.Port = parsed
	}

	dryRun, ok := lookup(EnvDryRun)
	if ok {
		c.DryRun = dryRun == "1"
	}
	return c, nil
}

var feedName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Validate checks the feeds, it expects WithDefaults to have been applied.
func (c Config) Validate() error {
	var errs []error
	_, err := time.LoadLocation(c.Timezone)
	if err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}

	seen := map[string]bool{}
	for i, f := range c.Feeds {
		fail := func(format string, args ...any) {
			errs = append(errs, fmt.Errorf("feeds[%d] (%s): %s", i, f.Name, fmt.Sprintf(format, args...)))
		}
		if !feedName.MatchString(f.Name) {
			fail("name must be lowercase letters, digits, '-' or '_'")
		}
		if seen[f.Name] {
			fail("duplicate name")
		}
		seen[f.Name] = true

		switch f.Source.Kind {
		case SourceStatic, SourceAnchor, SourceExportButton, SourcePopup:
		default:
			fail("unknown source kind %q", f.Source.Kind)
		}
		if f.Source.URL == "" {
			fail("source url is required")
		}
		_, err := detect.ParsePolicy(f.Detect)
		if err != nil {
			fail("%s", err)
		}
		if f.RemoteDir == "" {
			fail("remote_dir is required")
		}
		if f.PublicBaseURL == "" {
			fail("public_base_url is required")
		}
	}
	return errors.Join(errs...)
}

// ValidateTransport checks that publishing and notifying are possible.
func (c Config) ValidateTransport() error {
	var errs []error
	if c.FTP.Host == "" && c.RemoteRoot == "" {
		errs = append(errs, fmt.Errorf("no remote configured, set %s or remote_root", EnvFTPHost))
	}
	if c.SMTP.Server == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvSMTPServer))
	}
	if c.SMTP.From == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvEmailFrom))
	}
	if len(notify.ParseRecipients(c.SMTP.To)) == 0 {
		errs = append(errs, fmt.Errorf("%s is required", EnvEmailTo))
	}
	return errors.Join(errs...)
}

// Find returns the feed called name.
func (c Config) Find(name string) (Feed, bool) {
	for _, f := range c.Feeds {
		if f.Name == name {
			return f, true
		}
	}
	return Feed{}, false
}

// Load reads the config file at path and its local override, applies the
// environment and validates the feeds.
// ResolvePaths anchors the relative local paths of the config at dir.
func (c Config) ResolvePaths(dir string) Config {
	for _, p := range []*string{&c.DownloadDir, &c.StateDB, &c.RemoteRoot} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
	return c
}

// Load reads the config at path. A relative path that does not exist in the
// working directory is searched for in its parents, local paths in a config
// found that way are relative to the directory holding it.
func Load(path string) (Config, error) {
	cfg, err := configutil.ReadConfig[Config](path)
	dir := ""
	if errors.Is(err, fs.ErrNotExist) && !filepath.IsAbs(path) {
		cfg, dir, err = configutil.ReadRecursively[Config](path)
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg = cfg.WithDefaults()
	if dir != "" {
		slog.Info("using config from parent directory", "dir", dir)
		cfg = cfg.ResolvePaths(dir)
	}
	cfg, err = cfg.ApplyEnv(os.LookupEnv)
	if err != nil {
		return Config{}, err
	}
	err = cfg.Validate()
	if err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}
