package archive

// Config holds configuration for sink snapshots.
type Config struct {
	// Enabled turns snapshots on.
	Enabled bool `mapstructure:"enabled" default:"false"`
	// Endpoint is the URL of the storage service.
	Endpoint string `mapstructure:"endpoint" default:"localhost:9000"`
	// AccessKey is the access key ID for authentication.
	AccessKey string `mapstructure:"access_key" default:""`
	// SecretKey is the secret access key for authentication.
	SecretKey string `mapstructure:"secret_key" default:""`
	// UseSSL indicates whether to use SSL/TLS for connections.
	UseSSL bool `mapstructure:"use_ssl" default:"true"`
	// Bucket receives the snapshots.
	Bucket string `mapstructure:"bucket" default:"sheetsync-archive"`
	// Prefix is prepended to every object name.
	Prefix string `mapstructure:"prefix" default:"snapshots"`
	// Region is the location of the bucket (e.g., us-east-1).
	Region string `mapstructure:"region" default:""`
	// TimeoutSeconds is the connection timeout in seconds.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"30"`
}
