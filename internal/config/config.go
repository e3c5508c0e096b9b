package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/itchyny/timefmt-go"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/eynsfordcq/aws-s3-file-segregation/internal/segregation"
	"github.com/eynsfordcq/aws-s3-file-segregation/internal/storage"
)

// DatetimeFormat is the layout accepted by the --datetime override.
const DatetimeFormat = "%Y-%m-%d %H:%M:%S"

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Segregation SegregationConfig
	Storage     StorageConfig
	Log         LogConfig
	Lock        LockConfig
	History     HistoryConfig
	Server      ServerConfig
	Schedule    ScheduleConfig
}

type SegregationConfig struct {
	SourcePrefix       string
	SegregatedTemplate string
	ErrorPrefix        string
	MatchPattern       string
	DatetimeFormat     string
	TimeDelaySeconds   int64
	PageSize           int
	MaxPages           int
	Workers            int
}

type StorageConfig struct {
	Driver    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	PathStyle bool
}

type LogConfig struct {
	File   string
	Level  string
	Format string
}

type LockConfig struct {
	Enabled       bool
	RedisURL      string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

type HistoryConfig struct {
	Enabled      bool
	Driver       string
	DSN          string
	Host         string
	Port         string
	User         string
	Password     string
	DBName       string
	SSLMode      string
	MaxOpenConns int
	Keep         int
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type ScheduleConfig struct {
	Interval time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("segregation.source_prefix", "")
	v.SetDefault("segregation.segregated_template", "")
	v.SetDefault("segregation.error_prefix", "")
	v.SetDefault("segregation.match_pattern", "")
	v.SetDefault("segregation.datetime_format", "")
	v.SetDefault("segregation.time_delay", int64(segregation.DefaultTimeDelay/time.Second))
	v.SetDefault("segregation.page_size", segregation.DefaultPageSize)
	v.SetDefault("segregation.max_pages", segregation.DefaultMaxPages)
	v.SetDefault("segregation.workers", segregation.DefaultWorkers())

	v.SetDefault("storage.driver", storage.DriverS3)
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.region", "")
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.path_style", false)

	v.SetDefault("log.file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("lock.enabled", false)
	v.SetDefault("lock.redis_url", "")
	v.SetDefault("lock.redis_host", "127.0.0.1")
	v.SetDefault("lock.redis_port", "6379")
	v.SetDefault("lock.redis_password", "")
	v.SetDefault("lock.redis_db", 0)
	v.SetDefault("lock.ttl", "1h")

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.driver", "pgx")
	v.SetDefault("history.dsn", "")
	v.SetDefault("history.host", "localhost")
	v.SetDefault("history.port", "5432")
	v.SetDefault("history.user", "postgres")
	v.SetDefault("history.password", "postgres")
	v.SetDefault("history.dbname", "segregation")
	v.SetDefault("history.sslmode", "disable")
	v.SetDefault("history.max_open_conns", 10)
	v.SetDefault("history.keep", 100)

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 15)
	v.SetDefault("server.write_timeout", 15)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("schedule.interval", "5m")
}

// Load reads the config file at path, if any, with every key overridable from
// the environment: segregation.page_size is SEGREGATION_PAGE_SIZE.
func Load(path string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Config{
		Segregation: SegregationConfig{
			SourcePrefix:       v.GetString("segregation.source_prefix"),
			SegregatedTemplate: v.GetString("segregation.segregated_template"),
			ErrorPrefix:        v.GetString("segregation.error_prefix"),
			MatchPattern:       v.GetString("segregation.match_pattern"),
			DatetimeFormat:     v.GetString("segregation.datetime_format"),
			TimeDelaySeconds:   v.GetInt64("segregation.time_delay"),
			PageSize:           v.GetInt("segregation.page_size"),
			MaxPages:           v.GetInt("segregation.max_pages"),
			Workers:            v.GetInt("segregation.workers"),
		},
		Storage: StorageConfig{
			Driver:    strings.ToLower(v.GetString("storage.driver")),
			Endpoint:  v.GetString("storage.endpoint"),
			AccessKey: v.GetString("storage.access_key"),
			SecretKey: v.GetString("storage.secret_key"),
			Region:    v.GetString("storage.region"),
			UseSSL:    v.GetBool("storage.use_ssl"),
			PathStyle: v.GetBool("storage.path_style"),
		},
		Log: LogConfig{
			File:   v.GetString("log.file"),
			Level:  v.GetString("log.level"),
			Format: strings.ToLower(v.GetString("log.format")),
		},
		Lock: LockConfig{
			Enabled:       v.GetBool("lock.enabled"),
			RedisURL:      v.GetString("lock.redis_url"),
			RedisHost:     v.GetString("lock.redis_host"),
			RedisPort:     v.GetString("lock.redis_port"),
			RedisPassword: v.GetString("lock.redis_password"),
			RedisDB:       v.GetInt("lock.redis_db"),
			TTL:           v.GetDuration("lock.ttl"),
		},
		History: HistoryConfig{
			Enabled:      v.GetBool("history.enabled"),
			Driver:       strings.ToLower(v.GetString("history.driver")),
			DSN:          v.GetString("history.dsn"),
			Host:         v.GetString("history.host"),
			Port:         v.GetString("history.port"),
			User:         v.GetString("history.user"),
			Password:     v.GetString("history.password"),
			DBName:       v.GetString("history.dbname"),
			SSLMode:      v.GetString("history.sslmode"),
			MaxOpenConns: v.GetInt("history.max_open_conns"),
			Keep:         v.GetInt("history.keep"),
		},
		Server: ServerConfig{
			Port:           v.GetString("server.port"),
			Mode:           v.GetString("server.mode"),
			ReadTimeout:    v.GetInt("server.read_timeout"),
			WriteTimeout:   v.GetInt("server.write_timeout"),
			AllowedOrigins: v.GetStringSlice("server.allowed_origins"),
		},
		Schedule: ScheduleConfig{
			Interval: v.GetDuration("schedule.interval"),
		},
	}, nil
}

// Validate reports every problem found, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	var problems []string
	addf := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	s := c.Segregation
	if s.SourcePrefix == "" {
		addf("segregation.source_prefix is required")
	} else if _, err := storage.ParseLocator(s.SourcePrefix); err != nil {
		addf("segregation.source_prefix: %v", err)
	}
	if s.ErrorPrefix == "" {
		addf("segregation.error_prefix is required")
	} else if _, err := storage.ParseLocator(s.ErrorPrefix); err != nil {
		addf("segregation.error_prefix: %v", err)
	}
	if s.SegregatedTemplate == "" {
		addf("segregation.segregated_template is required")
	} else if _, err := storage.ParseLocator(timefmt.Format(time.Now(), s.SegregatedTemplate)); err != nil {
		addf("segregation.segregated_template: %v", err)
	}
	if s.MatchPattern != "" {
		if _, err := regexp.Compile(s.MatchPattern); err != nil {
			addf("segregation.match_pattern: %v", err)
		}
		if s.DatetimeFormat == "" {
			addf("segregation.datetime_format is required with match_pattern")
		}
	}
	if s.TimeDelaySeconds < 0 {
		addf("segregation.time_delay must not be negative")
	}
	if s.PageSize < 1 {
		addf("segregation.page_size must be positive")
	}
	if s.MaxPages < 1 {
		addf("segregation.max_pages must be positive")
	}
	if s.Workers < 1 {
		addf("segregation.workers must be positive")
	}

	switch c.Storage.Driver {
	case storage.DriverS3, storage.DriverMinio, storage.DriverMemory:
	default:
		addf("storage.driver %q is not supported", c.Storage.Driver)
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		addf("log.format %q is not supported", c.Log.Format)
	}
	if c.Log.File != "" {
		if err := checkWritableDir(filepath.Dir(timefmt.Format(time.Now(), c.Log.File))); err != nil {
			addf("log.file: %v", err)
		}
	}

	if c.History.Enabled {
		switch c.History.Driver {
		case "pgx", "postgres":
		default:
			addf("history.driver %q is not supported", c.History.Driver)
		}
	}
	if c.Lock.Enabled && c.Lock.TTL <= 0 {
		addf("lock.ttl must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// EngineConfig converts the segregation section. processDate may be zero.
func (c *Config) EngineConfig(processDate time.Time) segregation.Config {
	s := c.Segregation
	return segregation.Config{
		SourcePrefix:       s.SourcePrefix,
		SegregatedTemplate: s.SegregatedTemplate,
		ErrorPrefix:        s.ErrorPrefix,
		MatchPattern:       s.MatchPattern,
		TimeFormat:         s.DatetimeFormat,
		TimeDelay:          time.Duration(s.TimeDelaySeconds) * time.Second,
		PageSize:           s.PageSize,
		MaxPages:           s.MaxPages,
		Workers:            s.Workers,
		ProcessDate:        processDate,
	}
}

// StoreConfig converts the storage section.
func (c *Config) StoreConfig() storage.Config {
	return storage.Config{
		Driver:    c.Storage.Driver,
		Endpoint:  c.Storage.Endpoint,
		AccessKey: c.Storage.AccessKey,
		SecretKey: c.Storage.SecretKey,
		Region:    c.Storage.Region,
		UseSSL:    c.Storage.UseSSL,
		PathStyle: c.Storage.PathStyle,
	}
}

// ParseDatetime parses a --datetime value in local time.
func ParseDatetime(value string) (time.Time, error) {
	t, err := timefmt.ParseInLocation(value, DatetimeFormat, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("datetime %q does not match %s: %w", value, DatetimeFormat, err)
	}
	// time.Date rolls days past the end of the month into the next one
	if timefmt.Format(t, DatetimeFormat) != value {
		return time.Time{}, fmt.Errorf("datetime %q is not a valid calendar time", value)
	}
	return t, nil
}

func checkWritableDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	f, err := os.CreateTemp(dir, ".segregate-*")
	if err != nil {
		return fmt.Errorf("%s is not writable: %w", dir, err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
