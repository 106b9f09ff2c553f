package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAuditFileFolder = "audit"
	DefaultEventTable      = "FileEvent"
	DefaultSQLDriver       = DriverSQLServer
	DefaultEventUser       = "CRP FileEvent populator"

	DriverSQLServer = "sqlserver"
	DriverSQLite    = "sqlite3"
	DriverPgx       = "pgx"

	MarketDateFromFilename = "filename"
	MarketDateFromModTime  = "modtime"

	// AzureBlobScheme prefixes SOURCE_LOCATION values that live in Azure Blob Storage.
	AzureBlobScheme = "azblob://"
)

// Config represents the application configuration
type Config struct {
	UseCached             bool   `yaml:"USE_CACHED"`
	CacheFileFolder       string `yaml:"CACHE_FILE_FOLDER" validate:"required"`
	AuditFileFolder       string `yaml:"AUDIT_FILE_FOLDER"`
	DefaultSourceLocation string `yaml:"DEFAULT_SOURCE_LOCATION"`
	MaxSubfolderDepth     int    `yaml:"MAX_SUBFOLDER_DEPTH" validate:"min=0"`
	MarketDateSource      string `yaml:"MARKET_DATE_SOURCE" validate:"datesource"`
	MetricsTextfile       string `yaml:"METRICS_TEXTFILE"`

	SQL SQLConfig `yaml:",inline"`

	Event   EventConfig  `yaml:"EVENT"`
	Logging LogConfig    `yaml:"LOGGING"`
	Server  ServerConfig `yaml:"SERVER"`
	Azure   AzureConfig  `yaml:"AZURE"`

	// Types holds every other top-level section, keyed by data file type.
	Types map[string]TypeConfig `yaml:",inline"`
}

// SQLConfig contains the event store connection settings
type SQLConfig struct {
	Driver                 string `yaml:"SQL_DRIVER" validate:"sqldriver"`
	Server                 string `yaml:"SQL_SERVER"`
	Database               string `yaml:"SQL_DATABASE" validate:"required_without=DSN"`
	DSN                    string `yaml:"SQL_DSN"`
	InsertTemplateFilePath string `yaml:"SQL_INSERT_TEMPLATE_FILE_PATH" validate:"required"`
	EventTable             string `yaml:"EVENT_TABLE" validate:"sqlident"`
}

// EventConfig holds the administrative attributes written with every file event
type EventConfig struct {
	Step             string `yaml:"STEP"`
	StepRetryCount   int    `yaml:"STEP_RETRY_COUNT" validate:"min=0"`
	Status           string `yaml:"STATUS"`
	ServerName       string `yaml:"SERVER_NAME"`
	ModificationUser string `yaml:"MODIFICATION_USER"`
	Source           string `yaml:"SOURCE"`
	Comment          string `yaml:"COMMENT"`
	IsManual         *bool  `yaml:"IS_MANUAL"`
}

// Manual reports the IsManual flag, true unless configured otherwise.
func (e EventConfig) Manual() bool {
	return e.IsManual == nil || *e.IsManual
}

// LogConfig contains logging settings
type LogConfig struct {
	Level      string `yaml:"LEVEL" validate:"loglevel"`
	Format     string `yaml:"FORMAT" validate:"logformat"`
	File       string `yaml:"FILE"`
	MaxSizeMB  int    `yaml:"MAX_SIZE_MB" validate:"min=0"`
	MaxBackups int    `yaml:"MAX_BACKUPS" validate:"min=0"`
}

// ServerConfig contains HTTP server settings for the read-only API
type ServerConfig struct {
	Port int    `yaml:"PORT" validate:"min=0,max=65535"`
	Host string `yaml:"HOST"`
}

// AzureConfig contains Azure Blob Storage settings used by azblob:// sources
type AzureConfig struct {
	StorageAccount   string `yaml:"STORAGE_ACCOUNT"`
	ConnectionString string `yaml:"CONNECTION_STRING"`
	SASToken         string `yaml:"SAS_TOKEN"`
	// For service principal auth
	TenantID     string `yaml:"TENANT_ID"`
	ClientID     string `yaml:"CLIENT_ID"`
	ClientSecret string `yaml:"CLIENT_SECRET"`
	// Use managed identity
	UseManagedIdentity bool `yaml:"USE_MANAGED_IDENTITY"`
}

// TypeConfig is one data file type section
type TypeConfig struct {
	SourceLocation  string   `yaml:"SOURCE_LOCATION"`
	FilenamePattern string   `yaml:"FILENAME_PATTERN"`
	FilePatterns    []string `yaml:"FILE_PATTERNS"`
}

// DataFileType is a resolved type section ready for a run
type DataFileType struct {
	Name            string
	SourceLocation  string
	FilenamePattern string
	FilePatterns    []string
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes configuration from YAML bytes, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables in the config
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for unspecified config options
func (c *Config) applyDefaults() {
	if c.AuditFileFolder == "" {
		c.AuditFileFolder = DefaultAuditFileFolder
	}

	if c.MarketDateSource == "" {
		c.MarketDateSource = MarketDateFromFilename
	}

	if c.SQL.Driver == "" {
		c.SQL.Driver = DefaultSQLDriver
	}

	if c.SQL.EventTable == "" {
		c.SQL.EventTable = DefaultEventTable
	}

	if c.Event.Step == "" {
		c.Event.Step = "Monitor"
	}

	if c.Event.Status == "" {
		c.Event.Status = "Completed"
	}

	if c.Event.ServerName == "" {
		if host, err := os.Hostname(); err == nil {
			c.Event.ServerName = host
		}
	}

	if c.Event.ModificationUser == "" {
		c.Event.ModificationUser = DefaultEventUser
	}

	if c.Event.Source == "" {
		c.Event.Source = DefaultEventUser
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}

	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}

	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
}

// DataFileType resolves the named type section. A missing section, source
// location or filename pattern is a configuration error.
func (c *Config) DataFileType(name string) (*DataFileType, error) {
	section, ok := c.Types[name]
	if !ok {
		return nil, NewConfigurationError(name, "", "no configuration section for data file type")
	}

	location := section.SourceLocation
	if location == "" {
		location = c.DefaultSourceLocation
	}
	if location == "" {
		return nil, NewConfigurationError(name, "SOURCE_LOCATION", "required (or set DEFAULT_SOURCE_LOCATION)")
	}

	if section.FilenamePattern == "" {
		return nil, NewConfigurationError(name, "FILENAME_PATTERN", "required")
	}
	if _, err := regexp.Compile(section.FilenamePattern); err != nil {
		return nil, NewConfigurationError(name, "FILENAME_PATTERN", fmt.Sprintf("invalid regular expression: %v", err))
	}

	if strings.HasPrefix(location, AzureBlobScheme) {
		if c.Azure.StorageAccount == "" && c.Azure.ConnectionString == "" {
			return nil, NewConfigurationError("AZURE", "STORAGE_ACCOUNT", "required for azblob:// source locations")
		}
		if c.Azure.GetAuthMethod() == "none" {
			return nil, NewConfigurationError("AZURE", "", "no Azure authentication method configured (connection_string, sas_token, managed_identity, or service principal)")
		}
	}

	return &DataFileType{
		Name:            name,
		SourceLocation:  location,
		FilenamePattern: section.FilenamePattern,
		FilePatterns:    section.FilePatterns,
	}, nil
}

// CacheFilePath returns the inventory cache artifact path for a data file type.
func (c *Config) CacheFilePath(dataFileType string) string {
	return filepath.Join(c.CacheFileFolder, dataFileType+"_cache.parquet")
}

// DataSourceName returns the database/sql DSN for the configured driver
func (s SQLConfig) DataSourceName() string {
	if s.DSN != "" {
		return s.DSN
	}

	switch s.Driver {
	case DriverSQLite:
		return s.Database + "?_busy_timeout=5000"
	case DriverPgx:
		u := url.URL{Scheme: "postgres", Host: s.Server, Path: "/" + s.Database}
		return u.String()
	default:
		query := url.Values{}
		query.Add("database", s.Database)
		query.Add("encrypt", "disable")
		u := url.URL{Scheme: "sqlserver", Host: s.Server, RawQuery: query.Encode()}
		return u.String()
	}
}

// GetAuthMethod returns a string describing the configured auth method
func (c *AzureConfig) GetAuthMethod() string {
	if c.ConnectionString != "" {
		return "connection_string"
	}
	if c.SASToken != "" {
		return "sas_token"
	}
	if c.UseManagedIdentity {
		return "managed_identity"
	}
	if c.TenantID != "" && c.ClientID != "" && c.ClientSecret != "" {
		return "service_principal"
	}
	return "none"
}

// GetServiceURL returns the Azure Blob service URL
func (c *AzureConfig) GetServiceURL() string {
	return fmt.Sprintf("https://%s.blob.core.windows.net/", c.StorageAccount)
}
