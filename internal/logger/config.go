package logger

// Config holds configuration for the logger.
type Config struct {
	// Level is the minimum level: debug, info, warn, error.
	Level string `mapstructure:"level" default:"info"`
	// Format is json or console.
	Format string `mapstructure:"format" default:"console"`
	// File additionally writes json logs to a rotated file when set.
	File string `mapstructure:"file" default:""`
	// MaxSizeMB is the size at which the log file is rotated.
	MaxSizeMB int `mapstructure:"max_size_mb" default:"50"`
	// MaxBackups is the number of rotated files kept.
	MaxBackups int `mapstructure:"max_backups" default:"5"`
}
