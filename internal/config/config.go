// Package config loads job settings from the environment, an optional
// .env file and an optional YAML file.
//
// Keys map to environment variables by upper-casing and replacing dots with
// underscores (sheets.spreadsheet_id -> SHEETS_SPREADSHEET_ID). The variable
// names used by the earlier sync scripts are accepted as aliases.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/ideamans/go-sheetsync"
	"github.com/ideamans/go-sheetsync/archive"
	"github.com/ideamans/go-sheetsync/internal/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the sync jobs.
type Config struct {
	// Log holds configuration for the logger.
	Log logger.Config `mapstructure:"log"`
	// Sheets holds the sink spreadsheet settings.
	Sheets SheetsConfig `mapstructure:"sheets"`
	// CRM holds the lead source settings.
	CRM CRMConfig `mapstructure:"crm"`
	// Postgres holds the query source settings.
	Postgres PostgresConfig `mapstructure:"postgres"`
	// Sync holds reconciliation settings.
	Sync SyncConfig `mapstructure:"sync"`
	// Archive holds snapshot storage settings.
	Archive archive.Config `mapstructure:"archive"`
}

// SheetsConfig holds the spreadsheet settings.
type SheetsConfig struct {
	SpreadsheetID string `mapstructure:"spreadsheet_id" default:""`
	SheetName     string `mapstructure:"sheet_name" default:"Leads"`
	// Credentials is service account JSON content or a path to the key file.
	// Application default credentials are used when empty.
	Credentials string `mapstructure:"credentials" default:""`
	// ClientEmail and PrivateKey authenticate as a service account whose
	// key fields are stored separately. They take precedence over
	// Credentials.
	ClientEmail string `mapstructure:"client_email" default:""`
	PrivateKey  string `mapstructure:"private_key" default:""`
	// Endpoint overrides the Sheets API base URL.
	Endpoint string `mapstructure:"endpoint" default:""`
	// ExcelFile writes to a local xlsx workbook instead of Google Sheets.
	ExcelFile string `mapstructure:"excel_file" default:""`
}

// CRMConfig holds the getleads API settings.
type CRMConfig struct {
	Endpoint       string   `mapstructure:"endpoint" default:"https://emoneeds.icg-crm.in/api/leads/getleads"`
	Token          string   `mapstructure:"token" default:""`
	DateAfter      string   `mapstructure:"date_after" default:""`
	DateBefore     string   `mapstructure:"date_before" default:""`
	StageIDs       []string `mapstructure:"stage_ids" default:""`
	AllStages      bool     `mapstructure:"all_stages" default:"false"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds" default:"180"`
}

// PostgresConfig holds the query source settings.
type PostgresConfig struct {
	Host     string `mapstructure:"host" default:""`
	Port     string `mapstructure:"port" default:"5432"`
	Database string `mapstructure:"database" default:""`
	User     string `mapstructure:"user" default:""`
	Password string `mapstructure:"password" default:""`
	SSLMode  string `mapstructure:"sslmode" default:"prefer"`
	// Query is the SELECT to sync; QueryFile is read when Query is empty.
	Query          string `mapstructure:"query" default:""`
	QueryFile      string `mapstructure:"query_file" default:""`
	OrderBy        string `mapstructure:"order_by" default:""`
	FullPopulation bool   `mapstructure:"full_population" default:"false"`
	// IDColumn keys upserts of query rows; replace mode does not need it.
	IDColumn string `mapstructure:"id_column" default:""`
}

// SyncConfig holds reconciliation settings.
type SyncConfig struct {
	IDColumn       string              `mapstructure:"id_column" default:"lead_id"`
	Headers        []string            `mapstructure:"headers" default:""`
	ExcludeColumns []string            `mapstructure:"exclude_columns" default:"comments,statuslog"`
	Mappings       []sheetsync.Mapping `mapstructure:"mappings"`
	PageSize       int                 `mapstructure:"page_size" default:"200"`
	MaxPages       int                 `mapstructure:"max_pages" default:"500"`
	MaxRetries     int                 `mapstructure:"max_retries" default:"5"`
	RetryDelay     time.Duration       `mapstructure:"retry_delay" default:"20s"`
	PageDelay      time.Duration       `mapstructure:"page_delay" default:"2s"`
	DeleteStale    bool                `mapstructure:"delete_stale" default:"false"`
	UpdatePolicy   string              `mapstructure:"update_policy" default:"on-change"`
	CompareColumns []string            `mapstructure:"compare_columns" default:""`
	VersionColumn  string              `mapstructure:"version_column" default:""`
	Filter         sheetsync.Filter    `mapstructure:"filter"`
	DryRun         bool                `mapstructure:"dry_run" default:"false"`
}

// legacyEnv lists the variable names read by the earlier sync scripts
var legacyEnv = map[string][]string{
	"crm.token":             {"CRM_API_TOKEN"},
	"sheets.spreadsheet_id": {"SHEET_ID"},
	"sheets.credentials":    {"SERVICE_ACCOUNT_JSON"},
	"postgres.host":         {"PG_HOST"},
	"postgres.database":     {"PG_DB"},
	"postgres.user":         {"PG_USER"},
	"postgres.password":     {"PG_PASSWORD"},
	"postgres.port":         {"PG_PORT"},
}

// Load reads configuration. envDir is where .env is looked up; configFile
// is an optional YAML file. Environment variables take precedence over the
// file.
func Load(envDir, configFile string) (*Config, error) {
	envPath := ".env"
	if envDir != "" && envDir != "." {
		envPath = filepath.Join(envDir, ".env")
	}
	// Ignore error if file doesn't exist (e.g. production)
	_ = godotenv.Overload(envPath)

	v := viper.New()

	// Recursively parse struct tags to set default values
	bindValues(v, Config{}, "")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	// Map environment variables to nested keys (e.g. CRM_TOKEN -> crm.token)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, envKey}, names...)...); err != nil {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	config.CRM.StageIDs = compact(config.CRM.StageIDs)
	config.Sync.Headers = compact(config.Sync.Headers)
	config.Sync.ExcludeColumns = compact(config.Sync.ExcludeColumns)
	config.Sync.CompareColumns = compact(config.Sync.CompareColumns)

	return &config, nil
}

// bindValues uses reflection to iterate over the struct and set default values in Viper
// based on the 'default' and 'mapstructure' tags.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)

	// If it's a pointer, get the element
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")

		// Skip if no tag
		if tag == "" {
			continue
		}

		// Build the key
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		// Lists of structs only come from the config file
		if field.Type.Kind() == reflect.Slice && field.Type.Elem().Kind() == reflect.Struct {
			continue
		}

		// If it's a nested struct, recurse
		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		defaultValue := field.Tag.Get("default")
		// Always set default (even if empty) to register the key for AutomaticEnv
		v.SetDefault(key, defaultValue)
	}
}

// compact trims entries and drops blanks left by comma separated values
func compact(list []string) []string {
	var out []string
	for _, s := range list {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Reconciler returns the reconciler settings
func (c *SyncConfig) Reconciler() *sheetsync.Config {
	return &sheetsync.Config{
		IDColumn:       c.IDColumn,
		Headers:        c.Headers,
		ExcludeColumns: c.ExcludeColumns,
		Mappings:       c.Mappings,
		PageSize:       c.PageSize,
		MaxPages:       c.MaxPages,
		MaxRetries:     c.MaxRetries,
		RetryDelay:     c.RetryDelay,
		PageDelay:      c.PageDelay,
		DeleteStale:    c.DeleteStale,
		UpdatePolicy:   sheetsync.UpdatePolicy(c.UpdatePolicy),
		CompareColumns: c.CompareColumns,
		VersionColumn:  c.VersionColumn,
		Filter:         c.Filter,
		DryRun:         c.DryRun,
	}
}

// Validate checks the sink settings
func (c *SheetsConfig) Validate() error {
	if c.ExcelFile == "" && c.SpreadsheetID == "" {
		return fmt.Errorf("%w: sheets.spreadsheet_id (SHEET_ID)", sheetsync.ErrMissingConfig)
	}
	if c.SheetName == "" {
		return fmt.Errorf("%w: sheets.sheet_name", sheetsync.ErrMissingConfig)
	}
	if (c.ClientEmail == "") != (c.PrivateKey == "") {
		return fmt.Errorf("%w: sheets.client_email and sheets.private_key must be set together", sheetsync.ErrMissingConfig)
	}
	return nil
}

// Validate checks the lead source settings
func (c *CRMConfig) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("%w: crm.token (CRM_API_TOKEN)", sheetsync.ErrMissingConfig)
	}
	return nil
}

// Validate checks the query source settings
func (c *PostgresConfig) Validate() error {
	missing := []string{}
	if c.Host == "" {
		missing = append(missing, "postgres.host (PG_HOST)")
	}
	if c.Database == "" {
		missing = append(missing, "postgres.database (PG_DB)")
	}
	if c.User == "" {
		missing = append(missing, "postgres.user (PG_USER)")
	}
	if c.Query == "" && c.QueryFile == "" {
		missing = append(missing, "postgres.query or postgres.query_file")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", sheetsync.ErrMissingConfig, strings.Join(missing, ", "))
	}
	return nil
}

// LoadQuery returns Query, reading QueryFile when Query is empty
func (c *PostgresConfig) LoadQuery() (string, error) {
	if c.Query != "" {
		return c.Query, nil
	}
	if c.QueryFile == "" {
		return "", fmt.Errorf("%w: postgres.query", sheetsync.ErrMissingConfig)
	}
	b, err := os.ReadFile(c.QueryFile)
	if err != nil {
		return "", fmt.Errorf("failed to read query file: %w", err)
	}
	return string(b), nil
}

// ValidateArchive checks the archive settings when snapshots are enabled
func ValidateArchive(c *archive.Config) error {
	if !c.Enabled {
		return nil
	}
	if c.Endpoint == "" || c.Bucket == "" {
		return fmt.Errorf("%w: archive.endpoint and archive.bucket", sheetsync.ErrMissingConfig)
	}
	return nil
}
