package config

import (
	"encoding/json"
	"heapdb/common"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	EnvPageSize         = "HEAPDB_PAGE_SIZE"
	EnvPoolPages        = "HEAPDB_POOL_PAGES"
	EnvDeadlockInterval = "HEAPDB_DEADLOCK_INTERVAL"
	EnvReplacer         = "HEAPDB_REPLACER"
	EnvFsync            = "HEAPDB_FSYNC"
	EnvLogLevel         = "HEAPDB_LOG_LEVEL"
)

// Options holds the configuration of a database.
type Options struct {
	// PageSize is the size of every page of every heap file in bytes.
	PageSize int `json:"page_size"`
	// PoolPages is the number of pages the buffer pool keeps in memory.
	PoolPages int `json:"pool_pages"`
	// DeadlockCheckInterval is how often the lock manager looks for deadlocks.
	DeadlockCheckInterval time.Duration `json:"deadlock_check_interval"`
	// Replacer picks the buffer pool's eviction policy, "clock" or "lru".
	Replacer string `json:"replacer,omitempty"`
	// Fsync makes every commit sync the files it wrote to.
	Fsync bool `json:"fsync"`
	// LogLevel is one of DEBUG, INFO, WARN, ERROR.
	LogLevel string `json:"log_level,omitempty"`
}

func Default() Options {
	return Options{
		PageSize:              common.DefaultPageSize,
		PoolPages:             common.DefaultPoolPages,
		DeadlockCheckInterval: 2 * time.Second,
		Replacer:              "clock",
		LogLevel:              "INFO",
	}
}

// FromEnv returns the default options overridden by the HEAPDB_* environment variables that are set.
func FromEnv() (Options, error) {
	o := Default()
	if err := o.applyEnv(); err != nil {
		return Options{}, err
	}
	return o, o.Validate()
}

// Load reads options from a json file. Fields missing in the file keep their default values and environment
// variables override the file.
func Load(path string) (Options, error) {
	o := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, errors.Wrapf(err, "read config %s", path)
	}
	if err := json.Unmarshal(data, &o); err != nil {
		return Options{}, errors.Wrapf(err, "parse config %s", path)
	}

	if err := o.applyEnv(); err != nil {
		return Options{}, err
	}
	return o, o.Validate()
}

func (o *Options) applyEnv() error {
	if v, ok := os.LookupEnv(EnvPageSize); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "%s", EnvPageSize)
		}
		o.PageSize = n
	}

	if v, ok := os.LookupEnv(EnvPoolPages); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "%s", EnvPoolPages)
		}
		o.PoolPages = n
	}

	if v, ok := os.LookupEnv(EnvDeadlockInterval); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrapf(err, "%s", EnvDeadlockInterval)
		}
		o.DeadlockCheckInterval = d
	}

	if v, ok := os.LookupEnv(EnvFsync); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, "%s", EnvFsync)
		}
		o.Fsync = b
	}

	if v, ok := os.LookupEnv(EnvReplacer); ok {
		o.Replacer = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		o.LogLevel = v
	}
	return nil
}

func (o Options) Validate() error {
	if o.PageSize <= 0 {
		return errors.Errorf("page size must be positive, got %d", o.PageSize)
	}
	if o.PoolPages <= 0 {
		return errors.Errorf("pool pages must be positive, got %d", o.PoolPages)
	}
	if o.DeadlockCheckInterval <= 0 {
		return errors.Errorf("deadlock check interval must be positive, got %v", o.DeadlockCheckInterval)
	}
	switch o.Replacer {
	case "", "clock", "lru":
	default:
		return errors.Errorf("unknown replacer %q", o.Replacer)
	}
	if _, err := ParseLevel(o.LogLevel); err != nil {
		return err
	}
	return nil
}

var logLevel = new(slog.LevelVar)

// ParseLevel maps DEBUG, INFO, WARN and ERROR, in any case, to slog levels. An empty string is INFO.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToUpper(level) {
	case "", "INFO":
		return slog.LevelInfo, nil
	case "DEBUG":
		return slog.LevelDebug, nil
	case "WARN":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, errors.Errorf("unknown log level %q", level)
}

// ConfigureLogging sets up the global default logger with a TextHandler writing to stderr at the given level.
func ConfigureLogging(level string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}

	logLevel.Set(lvl)
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
	return nil
}

// SetLogLevel changes the level of the logger configured by ConfigureLogging.
func SetLogLevel(level slog.Level) {
	logLevel.Set(level)
}
