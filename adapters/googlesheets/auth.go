package googlesheets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ideamans/go-sheetsync"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// ServiceAccountKey represents the structure of a service account JSON key file
type ServiceAccountKey struct {
	Type                    string `json:"type"`
	ProjectID               string `json:"project_id"`
	PrivateKeyID            string `json:"private_key_id"`
	PrivateKey              string `json:"private_key"`
	ClientEmail             string `json:"client_email"`
	ClientID                string `json:"client_id"`
	AuthURI                 string `json:"auth_uri"`
	TokenURI                string `json:"token_uri"`
	AuthProviderX509CertURL string `json:"auth_provider_x509_cert_url"`
	ClientX509CertURL       string `json:"client_x509_cert_url"`
}

// Credentials selects how a Sink authenticates. ClientEmail with PrivateKey
// wins over Key; with neither set Application Default Credentials are used.
type Credentials struct {
	// Key is service account JSON content or a path to the key file
	Key string
	// ClientEmail and PrivateKey are the two fields of a service account
	// key, for deployments that keep them in separate secrets. Escaped \n
	// sequences in PrivateKey are accepted.
	ClientEmail string
	PrivateKey  string
	// TokenURL overrides the token endpoint used with ClientEmail
	TokenURL string
}

// NewFromCredentials creates a Sink from whichever credentials are set. Extra
// options are applied after the credentials, e.g. option.WithEndpoint.
func NewFromCredentials(ctx context.Context, config Config, creds Credentials, opts ...option.ClientOption) (*Sink, error) {
	email := strings.TrimSpace(creds.ClientEmail)
	privateKey := strings.TrimSpace(creds.PrivateKey)
	if (email == "") != (privateKey == "") {
		return nil, fmt.Errorf("%w: client email and private key must be set together", sheetsync.ErrMissingConfig)
	}
	if email != "" {
		tokenURL := creds.TokenURL
		if tokenURL == "" {
			tokenURL = google.JWTTokenURL
		}
		ts := serviceAccountTokenSource(ctx, email, privateKey, tokenURL)
		return NewSink(ctx, config, append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)...)
	}

	key := strings.TrimSpace(creds.Key)
	switch {
	case key == "":
		return NewWithDefaultCredentials(ctx, config, opts...)
	case strings.HasPrefix(key, "{"):
		if _, err := ParseServiceAccountJSON([]byte(key)); err != nil {
			return nil, err
		}
		return NewWithJSONKeyData(ctx, config, []byte(key), opts...)
	default:
		return NewWithJSONKeyFile(ctx, config, key, opts...)
	}
}

// NewWithJSONKeyFile creates a new Sink using a JSON key file
func NewWithJSONKeyFile(ctx context.Context, config Config, jsonPath string, opts ...option.ClientOption) (*Sink, error) {
	// If jsonPath is empty, try GOOGLE_APPLICATION_CREDENTIALS env var
	if jsonPath == "" {
		jsonPath = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
		if jsonPath == "" {
			return nil, fmt.Errorf("no JSON key file path provided and GOOGLE_APPLICATION_CREDENTIALS not set")
		}
	}

	jsonData, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON key file: %w", err)
	}
	return NewWithJSONKeyData(ctx, config, jsonData, opts...)
}

// NewWithJSONKeyData creates a new Sink using JSON key data
func NewWithJSONKeyData(ctx context.Context, config Config, jsonData []byte, opts ...option.ClientOption) (*Sink, error) {
	creds, err := google.CredentialsFromJSON(ctx, jsonData, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}

	return NewSink(ctx, config, append([]option.ClientOption{option.WithCredentials(creds)}, opts...)...)
}

// NewWithServiceAccountKey creates a new Sink using email and private key
func NewWithServiceAccountKey(ctx context.Context, config Config, email string, privateKey string, opts ...option.ClientOption) (*Sink, error) {
	return NewFromCredentials(ctx, config, Credentials{ClientEmail: email, PrivateKey: privateKey}, opts...)
}

// NewWithDefaultCredentials creates a new Sink using Application Default Credentials
func NewWithDefaultCredentials(ctx context.Context, config Config, opts ...option.ClientOption) (*Sink, error) {
	// This will use:
	// 1. GOOGLE_APPLICATION_CREDENTIALS environment variable if set
	// 2. gcloud auth application-default credentials if available
	// 3. GCE metadata service if running on Google Cloud
	tokenSource, err := google.DefaultTokenSource(ctx, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("failed to get default token source: %w", err)
	}

	return NewSink(ctx, config, append([]option.ClientOption{option.WithTokenSource(tokenSource)}, opts...)...)
}

// ParseServiceAccountJSON parses a service account JSON file or data
func ParseServiceAccountJSON(jsonData []byte) (*ServiceAccountKey, error) {
	var key ServiceAccountKey
	if err := json.Unmarshal(jsonData, &key); err != nil {
		return nil, fmt.Errorf("failed to parse service account JSON: %w", err)
	}

	if key.Type != "service_account" {
		return nil, fmt.Errorf("invalid key type: %s (expected: service_account)", key.Type)
	}

	if key.ClientEmail == "" || key.PrivateKey == "" {
		return nil, fmt.Errorf("missing required fields in service account key")
	}

	return &key, nil
}

func serviceAccountTokenSource(ctx context.Context, email, privateKey, tokenURL string) oauth2.TokenSource {
	jwtConfig := &jwt.Config{
		Email:      email,
		PrivateKey: []byte(strings.ReplaceAll(privateKey, `\n`, "\n")),
		Scopes:     []string{sheets.SpreadsheetsScope},
		TokenURL:   tokenURL,
	}
	return jwtConfig.TokenSource(ctx)
}
