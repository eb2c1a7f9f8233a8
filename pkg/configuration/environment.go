package configuration

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/worklane/worklane/pkg/logging"
)

const Production = "production"

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		c.Unload()
		panic(err)
	}
	return c
})

// LoadEnv loads the given env files from the working directory, falling back
// to the module root (nearest parent with a go.mod) so tests and CLIs behave
// the same from any package directory.
func LoadEnv(envFiles []string) (int, error) {
	existing := existingFiles(envFiles)
	if len(existing) == 0 {
		if root, ok := moduleRoot(); ok {
			prefixed := make([]string, 0, len(envFiles))
			for _, file := range envFiles {
				prefixed = append(prefixed, filepath.Join(root, file))
			}
			existing = existingFiles(prefixed)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

func existingFiles(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			out = append(out, p)
		}
	}
	return out
}

func moduleRoot() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for {
		if info, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil && !info.IsDir() {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"worklane"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type ImportOptions struct {
	MaxUploadRows int           `env:"IMPORT_MAX_UPLOAD_ROWS" envDefault:"50000"`
	BatchSize     int           `env:"IMPORT_BATCH_SIZE" envDefault:"200"`
	JobTTL        time.Duration `env:"IMPORT_JOB_TTL" envDefault:"2h"`
	TenantJobCap  int           `env:"IMPORT_TENANT_JOB_CAP" envDefault:"50"`
}

func (i *ImportOptions) Validate() error {
	if i.MaxUploadRows <= 0 {
		return fmt.Errorf("IMPORT_MAX_UPLOAD_ROWS must be positive, got %d", i.MaxUploadRows)
	}
	if i.BatchSize <= 0 {
		return fmt.Errorf("IMPORT_BATCH_SIZE must be positive, got %d", i.BatchSize)
	}
	if i.JobTTL <= 0 {
		return fmt.Errorf("IMPORT_JOB_TTL must be positive, got %s", i.JobTTL)
	}
	if i.TenantJobCap <= 0 {
		return fmt.Errorf("IMPORT_TENANT_JOB_CAP must be positive, got %d", i.TenantJobCap)
	}
	return nil
}

type AsanaOptions struct {
	BaseURL            string        `env:"ASANA_BASE_URL" envDefault:"https://app.asana.com/api/1.0"`
	AccessToken        string        `env:"ASANA_ACCESS_TOKEN"`
	MinRequestInterval time.Duration `env:"ASANA_MIN_REQUEST_INTERVAL" envDefault:"200ms"`
	MaxRetries         int           `env:"ASANA_MAX_RETRIES" envDefault:"3"`
	PageSize           int           `env:"ASANA_PAGE_SIZE" envDefault:"100"`
}

func (a *AsanaOptions) Validate() error {
	if a.MinRequestInterval < 0 {
		return fmt.Errorf("ASANA_MIN_REQUEST_INTERVAL must be non-negative, got %s", a.MinRequestInterval)
	}
	if a.MaxRetries < 0 {
		return fmt.Errorf("ASANA_MAX_RETRIES must be non-negative, got %d", a.MaxRetries)
	}
	if a.PageSize < 1 || a.PageSize > 100 {
		return fmt.Errorf("ASANA_PAGE_SIZE must be within 1..100, got %d", a.PageSize)
	}
	return nil
}

type JobsOptions struct {
	WorkerEnabled     bool          `env:"JOBS_WORKER_ENABLED" envDefault:"true"`
	PollInterval      time.Duration `env:"JOBS_POLL_INTERVAL" envDefault:"1s"`
	BatchSize         int           `env:"JOBS_BATCH_SIZE" envDefault:"10"`
	MaxAttempts       int           `env:"JOBS_MAX_ATTEMPTS" envDefault:"5"`
	ClaimTimeout      time.Duration `env:"JOBS_CLAIM_TIMEOUT" envDefault:"15m"`
	LastErrorMaxBytes int           `env:"JOBS_LAST_ERROR_MAX_BYTES" envDefault:"2048"`
	SingleActive      bool          `env:"JOBS_SINGLE_ACTIVE" envDefault:"false"`

	CleanerEnabled         bool          `env:"JOBS_CLEANER_ENABLED" envDefault:"true"`
	CleanerInterval        time.Duration `env:"JOBS_CLEANER_INTERVAL" envDefault:"1m"`
	CleanerRetention       time.Duration `env:"JOBS_CLEANER_RETENTION" envDefault:"168h"`
	CleanerFailedRetention time.Duration `env:"JOBS_CLEANER_FAILED_RETENTION" envDefault:"720h"`
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"false"`
	Addr    string `env:"PROMETHEUS_METRICS_ADDR" envDefault:":9464"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/metrics"`
}

type OpenTelemetryOptions struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	TempoURL    string `env:"OTEL_TEMPO_URL" envDefault:"localhost:4318"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"worklane-worker"`
}

type Configuration struct {
	Database      DatabaseOptions
	Import        ImportOptions
	Asana         AsanaOptions
	Jobs          JobsOptions
	Prometheus    PrometheusOptions
	OpenTelemetry OpenTelemetryOptions

	MigrationsDir    string `env:"MIGRATIONS_DIR" envDefault:"migrations"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"error"`
	LogPath          string `env:"LOG_PATH" envDefault:"./logs/worker.log"`

	// RLS enforcement mode (disabled/enforce).
	RLSEnforce string `env:"RLS_ENFORCE" envDefault:"disabled"`

	logFile io.Closer
	logger  *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

func Use() *Configuration {
	return singleton()
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}

	if err := c.Import.Validate(); err != nil {
		return fmt.Errorf("import configuration error: %w", err)
	}
	if err := c.Asana.Validate(); err != nil {
		return fmt.Errorf("asana configuration error: %w", err)
	}
	if err := c.validateRLS(); err != nil {
		return err
	}

	f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogPath)
	if err != nil {
		return err
	}
	c.logFile = f
	c.logger = logger

	c.Database.Opts = c.Database.ConnectionString()
	return nil
}

func (c *Configuration) validateRLS() error {
	mode := strings.ToLower(strings.TrimSpace(c.RLSEnforce))
	if mode == "" {
		mode = "disabled"
	}
	switch mode {
	case "disabled", "enforce":
	default:
		return fmt.Errorf("invalid RLS_ENFORCE=%q (expected disabled|enforce)", c.RLSEnforce)
	}

	if mode == "enforce" && strings.EqualFold(strings.TrimSpace(c.Database.User), "postgres") {
		return fmt.Errorf("RLS_ENFORCE=enforce requires a non-superuser DB_USER (postgres will bypass RLS)")
	}

	c.RLSEnforce = mode
	return nil
}

// Unload handles a graceful shutdown.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
	}
}
