package formflow

import (
	"time"
)

// Config consolidates settings for storage, export and the optional integrations
type Config struct {
	Storage   StorageConfig   `json:"storage"`
	Database  DatabaseConfig  `json:"database"`
	Export    ExportConfig    `json:"export"`
	Archive   ArchiveConfig   `json:"archive"`
	Events    EventsConfig    `json:"events"`
	Badge     BadgeConfig     `json:"badge"`
	Analytics AnalyticsConfig `json:"analytics"`
	Logging   LoggingConfig   `json:"logging"`
	Metrics   MetricsConfig   `json:"metrics"`
}

// Storage drivers
const (
	StorageDriverKV       = "kv"
	StorageDriverPostgres = "postgres"
)

// StorageConfig selects the repository backing the form store
type StorageConfig struct {
	Driver string `json:"driver"` // kv or postgres
	// Path of the key-value file; ":memory:" keeps everything in process.
	Path string `json:"path"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Database        string        `json:"database"`
	Username        string        `json:"username"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"sslMode"`
	UseIAM          bool          `json:"useIAM"`
	Region          string        `json:"region"`
	MaxConnections  int           `json:"maxConnections"`
	MaxIdleConns    int           `json:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime"`
	ConnMaxIdleTime time.Duration `json:"connMaxIdleTime"`
	Timeout         time.Duration `json:"timeout"`
	TableNames      TableNames    `json:"tableNames"`
}

// TableNames holds the PostgreSQL table names used by the form repository
type TableNames struct {
	Forms       string `json:"forms"`
	Submissions string `json:"submissions"`
}

// ExportConfig contains CSV and bundle export settings
type ExportConfig struct {
	DefaultCSVFilename string `json:"defaultCSVFilename"`
	TimestampFormat    string `json:"timestampFormat"`
}

// ArchiveConfig contains object storage settings for archived exports
type ArchiveConfig struct {
	Enabled        bool   `json:"enabled"`
	Bucket         string `json:"bucket"`
	Prefix         string `json:"prefix"`
	Region         string `json:"region"`
	Endpoint       string `json:"endpoint"`
	AccessKey      string `json:"accessKey"`
	SecretKey      string `json:"secretKey"`
	ForcePathStyle bool   `json:"forcePathStyle"`
}

// Event drivers
const (
	EventsDriverNone  = "none"
	EventsDriverNATS  = "nats"
	EventsDriverKafka = "kafka"
)

// EventsConfig selects where submission events are published
type EventsConfig struct {
	Driver       string   `json:"driver"` // none, nats or kafka
	NATSURL      string   `json:"natsURL"`
	KafkaBrokers []string `json:"kafkaBrokers"`
	Topic        string   `json:"topic"`
}

// BadgeConfig contains defaults for the badge composer
type BadgeConfig struct {
	DefaultWidthMM   float64 `json:"defaultWidthMM"`
	DefaultHeightMM  float64 `json:"defaultHeightMM"`
	DefaultPaddingMM float64 `json:"defaultPaddingMM"`
	DefaultFontSize  float64 `json:"defaultFontSize"` // points
	QRSizePx         int     `json:"qrSizePx"`
}

// AnalyticsConfig contains settings for the submission summary engine
type AnalyticsConfig struct {
	Enabled     bool   `json:"enabled"`
	DSN         string `json:"dsn"` // empty means in-memory
	TopValues   int    `json:"topValues"`
	MemoryLimit string `json:"memoryLimit"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// MetricsConfig contains metrics collection settings
type MetricsConfig struct {
	Enabled   bool   `json:"enabled"`
	Path      string `json:"path"`
	Namespace string `json:"namespace"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Driver: StorageDriverKV,
			Path:   ":memory:",
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			SSLMode:         "disable",
			MaxConnections:  25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			Timeout:         30 * time.Second,
			TableNames: TableNames{
				Forms:       "forms",
				Submissions: "form_submissions",
			},
		},
		Export: ExportConfig{
			DefaultCSVFilename: "form-submissions.csv",
			TimestampFormat:    "2006-01-02T15:04:05.000Z",
		},
		Archive: ArchiveConfig{
			Prefix: "formflow/exports",
			Region: "us-east-1",
		},
		Events: EventsConfig{
			Driver: EventsDriverNone,
			Topic:  "formflow.submissions",
		},
		Badge: BadgeConfig{
			DefaultWidthMM:   86,
			DefaultHeightMM:  54,
			DefaultPaddingMM: 3,
			DefaultFontSize:  12,
			QRSizePx:         256,
		},
		Analytics: AnalyticsConfig{
			Enabled:     true,
			TopValues:   10,
			MemoryLimit: "256MB",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Path:      "/metrics",
			Namespace: "formflow",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageDriverKV:
		if c.Storage.Path == "" {
			return &ConfigError{Field: "storage.path", Message: "must not be empty for the kv driver"}
		}
	case StorageDriverPostgres:
		if c.Database.MaxConnections <= 0 {
			return &ConfigError{Field: "database.maxConnections", Message: "must be greater than 0"}
		}
		if c.Database.TableNames.Forms == "" || c.Database.TableNames.Submissions == "" {
			return &ConfigError{Field: "database.tableNames", Message: "forms and submissions table names are required"}
		}
		if c.Database.UseIAM && c.Database.Region == "" {
			return &ConfigError{Field: "database.region", Message: "is required when useIAM is set"}
		}
	default:
		return &ConfigError{Field: "storage.driver", Message: "must be one of kv, postgres"}
	}

	if c.Export.DefaultCSVFilename == "" {
		return &ConfigError{Field: "export.defaultCSVFilename", Message: "must not be empty"}
	}

	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return &ConfigError{Field: "archive.bucket", Message: "is required when archive is enabled"}
	}

	switch c.Events.Driver {
	case "", EventsDriverNone:
	case EventsDriverNATS:
		if c.Events.NATSURL == "" {
			return &ConfigError{Field: "events.natsURL", Message: "is required for the nats driver"}
		}
	case EventsDriverKafka:
		if len(c.Events.KafkaBrokers) == 0 {
			return &ConfigError{Field: "events.kafkaBrokers", Message: "at least one broker is required for the kafka driver"}
		}
		if c.Events.Topic == "" {
			return &ConfigError{Field: "events.topic", Message: "is required for the kafka driver"}
		}
	default:
		return &ConfigError{Field: "events.driver", Message: "must be one of none, nats, kafka"}
	}

	if c.Badge.DefaultWidthMM <= 0 || c.Badge.DefaultHeightMM <= 0 {
		return &ConfigError{Field: "badge.defaultWidthMM", Message: "badge dimensions must be greater than 0"}
	}

	if c.Badge.QRSizePx <= 0 {
		return &ConfigError{Field: "badge.qrSizePx", Message: "must be greater than 0"}
	}

	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ConfigError) Error() string {
	return "config validation error for field '" + e.Field + "': " + e.Message
}
