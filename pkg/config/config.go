// Package config builds the single configuration struct shared by every
// command. Values come from flags, then the environment (optionally seeded
// from a .env file), then defaults.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/metersync/pkg/log"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Scope describes what a command needs from the configuration.
type Scope int

const (
	// ScopeRead is enough to load the persisted dataset (charts, export).
	ScopeRead Scope = iota
	// ScopeFetch also requires SolarEdge credentials.
	ScopeFetch
)

// SolarEdge configures the vendor API client.
type SolarEdge struct {
	BaseURL string        `validate:"required,url"`
	APIKey  string        `validate:"required"`
	SiteID  string        `validate:"required"`
	MaxSpan time.Duration `validate:"gt=0"`
	Timeout time.Duration `validate:"gte=0"`
}

// Site describes the installation.
type Site struct {
	Timezone      string `validate:"required"`
	BootstrapDate string `validate:"required,datetime=2006-01-02"`

	location  *time.Location
	bootstrap time.Time
}

// Location returns the site's time zone. The vendor reports wall clock in
// this zone.
func (s Site) Location() *time.Location {
	if s.location == nil {
		return time.Local
	}
	return s.location
}

// Bootstrap returns the installation start used when no dataset exists yet.
func (s Site) Bootstrap() time.Time {
	return s.bootstrap
}

// S3 configures the s3 blob store. Empty credentials fall back to the AWS
// default chain.
type S3 struct {
	Bucket          string `validate:"required_if=Enabled true"`
	Region          string
	Endpoint        string `validate:"omitempty,url"`
	AccessKeyID     string `validate:"required_with=SecretAccessKey"`
	SecretAccessKey string `validate:"required_with=AccessKeyID"`
	PathStyle       bool
	Enabled         bool
}

// Firestore configures the firestore blob store.
type Firestore struct {
	ProjectID  string
	Database   string
	Emulator   string
	Collection string `validate:"required"`
}

// Redis configures the redis blob store.
type Redis struct {
	Addr     string `validate:"required_if=Enabled true"`
	Password string
	Enabled  bool
}

// Postgres configures the postgres blob store.
type Postgres struct {
	DSN     string `validate:"required_if=Enabled true"`
	Enabled bool
}

// Storage selects and configures the blob store holding the dataset.
type Storage struct {
	Provider  string `validate:"oneof=s3 firestore redis postgres badger file"`
	ObjectKey string `validate:"required"`
	Dir       string `validate:"required_if=Provider badger,required_if=Provider file"`

	S3        S3
	Firestore Firestore
	Redis     Redis
	Postgres  Postgres
}

// Chart configures the chart renderer.
type Chart struct {
	Columns   []string `validate:"min=1,dive,required"`
	OutputDir string   `validate:"required"`
}

// Config is built once at startup and passed to every component.
type Config struct {
	SolarEdge SolarEdge
	Site      Site
	Storage   Storage
	Chart     Chart

	MetricsTextfile  string
	ScheduleInterval time.Duration `validate:"gte=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration for the given scope and resolves derived
// values (time zone, bootstrap date).
func (c *Config) Validate(scope Scope) error {
	c.Storage.S3.Enabled = c.Storage.Provider == "s3"
	c.Storage.Redis.Enabled = c.Storage.Provider == "redis"
	c.Storage.Postgres.Enabled = c.Storage.Provider == "postgres"

	if scope == ScopeFetch {
		if c.SolarEdge.APIKey == "" || c.SolarEdge.SiteID == "" {
			return fmt.Errorf("%w: API_KEY and SITE_ID must be provided", ErrInvalid)
		}
		if err := validate.Struct(c.SolarEdge); err != nil {
			return wrapValidation("solaredge", err)
		}
	}
	if err := validate.Struct(c.Storage); err != nil {
		return wrapValidation("storage", err)
	}
	if err := validate.Struct(c.Site); err != nil {
		return wrapValidation("site", err)
	}
	if err := validate.Var(c.ScheduleInterval, "gte=0"); err != nil {
		return wrapValidation("schedule-interval", err)
	}

	loc, err := time.LoadLocation(c.Site.Timezone)
	if err != nil {
		return fmt.Errorf("%w: site timezone %q: %v", ErrInvalid, c.Site.Timezone, err)
	}
	c.Site.location = loc
	c.Site.bootstrap, err = time.ParseInLocation("2006-01-02", c.Site.BootstrapDate, loc)
	if err != nil {
		return fmt.Errorf("%w: bootstrap date %q: %v", ErrInvalid, c.Site.BootstrapDate, err)
	}
	return nil
}

// ValidateChart checks the chart section. Only the chart commands need it.
func (c *Config) ValidateChart() error {
	if err := validate.Struct(c.Chart); err != nil {
		return wrapValidation("chart", err)
	}
	return nil
}

func wrapValidation(section string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, section, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s: %s", ErrInvalid, section, strings.Join(fields, ", "))
}

// envFlag registers a string flag whose value falls back to an environment
// variable and then to def.
type envFlag struct {
	flag *string
	env  string
	def  string
}

func stringFlag(name, env, def, usage string) envFlag {
	if env != "" {
		usage = fmt.Sprintf("%s (env %s)", usage, env)
	}
	if def != "" {
		usage = fmt.Sprintf("%s (default %q)", usage, def)
	}
	return envFlag{flag: lflag.String(name, "", usage), env: env, def: def}
}

func (f envFlag) String() string {
	if *f.flag != "" {
		return *f.flag
	}
	if f.env != "" {
		if v := os.Getenv(f.env); v != "" {
			return v
		}
	}
	return f.def
}

func (f envFlag) Duration() (time.Duration, error) {
	s := f.String()
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func (f envFlag) Bool() bool {
	switch strings.ToLower(f.String()) {
	case "1", "t", "true", "yes", "y":
		return true
	}
	return false
}

func (f envFlag) List() []string {
	var out []string
	for _, s := range strings.Split(f.String(), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Configured loads .env, registers every flag, and returns the Config that is
// filled in and validated once lflag.Configure runs. Invalid configuration
// panics before any network call is made.
func Configured(scope Scope) *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Ctx(context.Background()).Warn("failed to load .env", slog.Any("error", err))
	}

	apiURL := stringFlag("solaredge-api-url", "SOLAREDGE_API_URL", "https://monitoringapi.solaredge.com", "URL for the SolarEdge monitoring API")
	apiKey := stringFlag("api-key", "API_KEY", "", "SolarEdge API key")
	siteID := stringFlag("site-id", "SITE_ID", "", "SolarEdge site ID")
	maxSpan := stringFlag("max-request-span", "MAX_REQUEST_SPAN", "672h", "Longest window requested from SolarEdge in a single call")
	timeout := stringFlag("solaredge-timeout", "SOLAREDGE_TIMEOUT", "1m", "HTTP timeout for SolarEdge requests")

	timezone := stringFlag("site-timezone", "SITE_TIMEZONE", "Local", "Time zone of the site's wall clock")
	bootstrap := stringFlag("bootstrap-date", "BOOTSTRAP_DATE", "2024-11-08", "Installation start date used when no dataset exists (YYYY-MM-DD)")

	provider := stringFlag("storage-provider", "STORAGE_PROVIDER", "s3", "Blob store holding the dataset (available: s3, firestore, redis, postgres, badger, file)")
	objectKey := stringFlag("object-key", "FILE_KEY", "meter_data.parquet", "Key of the dataset blob; the extension selects the codec (.parquet or .csv)")
	storageDir := stringFlag("storage-dir", "STORAGE_DIR", "", "Directory for the badger and file blob stores")

	s3Bucket := stringFlag("s3-bucket", "S3_BUCKET_NAME", "", "S3 bucket name")
	s3Region := stringFlag("s3-region", "AWS_REGION", "us-east-1", "S3 region")
	s3Endpoint := stringFlag("s3-endpoint", "S3_ENDPOINT", "", "Custom S3 compatible endpoint")
	s3AccessKey := stringFlag("s3-access-key-id", "AWS_ACCESS_KEY_ID", "", "S3 access key ID")
	s3Secret := stringFlag("s3-secret-access-key", "AWS_SECRET_ACCESS_KEY", "", "S3 secret access key")
	s3PathStyle := stringFlag("s3-path-style", "S3_PATH_STYLE", "false", "Use path style S3 addressing")

	fsProject := stringFlag("firestore-project-id", "FIRESTORE_PROJECT_ID", "", "Google Cloud Project ID for Firestore")
	fsDatabase := stringFlag("firestore-database", "FIRESTORE_DATABASE", "", "Google Cloud Firestore Database")
	fsEmulator := stringFlag("firestore-emulator", "", "", "Use Firestore emulator")
	fsCollection := stringFlag("firestore-collection", "FIRESTORE_COLLECTION", "blobs", "Firestore collection holding dataset blobs")

	redisAddr := stringFlag("redis-addr", "REDIS_ADDR", "", "Redis address (host:port)")
	redisPassword := stringFlag("redis-password", "REDIS_PASSWORD", "", "Redis password")

	pgDSN := stringFlag("postgres-dsn", "PG_DSN", "", "Postgres connection string")

	chartColumns := stringFlag("chart-columns", "CHART_COLUMNS", "Consumption,Production", "Comma-delimited meter columns to chart")
	chartDir := stringFlag("chart-output-dir", "CHART_OUTPUT_DIR", ".", "Directory the chart HTML files are written to")

	metricsTextfile := stringFlag("metrics-textfile", "METRICS_TEXTFILE", "", "Write prometheus metrics to this file after each run")
	schedule := stringFlag("schedule-interval", "SCHEDULE_INTERVAL", "", "Run the job repeatedly at this interval instead of once (e.g. 15m)")

	c := &Config{}

	lflag.Do(func() {
		var err error
		c.SolarEdge = SolarEdge{
			BaseURL: apiURL.String(),
			APIKey:  apiKey.String(),
			SiteID:  siteID.String(),
		}
		if c.SolarEdge.MaxSpan, err = maxSpan.Duration(); err != nil {
			panic(fmt.Sprintf("invalid max-request-span: %v", err))
		}
		if c.SolarEdge.Timeout, err = timeout.Duration(); err != nil {
			panic(fmt.Sprintf("invalid solaredge-timeout: %v", err))
		}
		c.Site = Site{
			Timezone:      timezone.String(),
			BootstrapDate: bootstrap.String(),
		}
		c.Storage = Storage{
			Provider:  provider.String(),
			ObjectKey: objectKey.String(),
			Dir:       storageDir.String(),
			S3: S3{
				Bucket:          s3Bucket.String(),
				Region:          s3Region.String(),
				Endpoint:        s3Endpoint.String(),
				AccessKeyID:     s3AccessKey.String(),
				SecretAccessKey: s3Secret.String(),
				PathStyle:       s3PathStyle.Bool(),
			},
			Firestore: Firestore{
				ProjectID:  fsProject.String(),
				Database:   fsDatabase.String(),
				Emulator:   fsEmulator.String(),
				Collection: fsCollection.String(),
			},
			Redis: Redis{
				Addr:     redisAddr.String(),
				Password: redisPassword.String(),
			},
			Postgres: Postgres{
				DSN: pgDSN.String(),
			},
		}
		c.Chart = Chart{
			Columns:   chartColumns.List(),
			OutputDir: chartDir.String(),
		}
		c.MetricsTextfile = metricsTextfile.String()
		if c.ScheduleInterval, err = schedule.Duration(); err != nil {
			panic(fmt.Sprintf("invalid schedule-interval: %v", err))
		}

		if err := c.Validate(scope); err != nil {
			panic(err.Error())
		}
	})

	return c
}
