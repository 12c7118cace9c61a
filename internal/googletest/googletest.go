// Package googletest runs a fake Google endpoint for credential tests: an
// OAuth2 token endpoint that accepts JWT bearer grants and a read-only
// subset of the Sheets v4 API.
package googletest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// TokenPath is where the fake token endpoint listens
const TokenPath = "/token"

// Server is a fake Google endpoint. Access tokens are "token-for-<iss>", so
// the Authorization header of a Sheets request names the service account
// that signed the grant.
type Server struct {
	URL      string
	TokenURL string

	// Tabs lists the sheet titles of every spreadsheet
	Tabs []string
	// Values is returned for every values.get call
	Values [][]interface{}

	key *rsa.PrivateKey

	mu     sync.Mutex
	grants []string
	auths  []string
}

// NewServer starts a fake endpoint that is closed with the test
func NewServer(t *testing.T) *Server {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	s := &Server{key: key, Tabs: []string{"Leads"}}
	mux := http.NewServeMux()
	mux.HandleFunc(TokenPath, s.token)
	mux.HandleFunc("/v4/spreadsheets/", s.sheets)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	s.URL = server.URL
	s.TokenURL = server.URL + TokenPath
	return s
}

// PrivateKeyPEM returns the PKCS#8 PEM signing key
func (s *Server) PrivateKeyPEM(t *testing.T) string {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(s.key)
	if err != nil {
		t.Fatalf("failed to marshal key: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

// ServiceAccountJSON returns a service account key whose token_uri points
// at the fake token endpoint
func (s *Server) ServiceAccountJSON(t *testing.T, email string) string {
	t.Helper()
	data, err := json.Marshal(map[string]string{
		"type":           "service_account",
		"project_id":     "test-project",
		"private_key_id": "test-key-id",
		"private_key":    s.PrivateKeyPEM(t),
		"client_email":   email,
		"client_id":      "1234567890",
		"auth_uri":       "https://accounts.google.com/o/oauth2/auth",
		"token_uri":      s.TokenURL,
	})
	if err != nil {
		t.Fatalf("failed to marshal key: %v", err)
	}
	return string(data)
}

// Grants returns the issuer of every JWT grant the token endpoint accepted
func (s *Server) Grants() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.grants...)
}

// Authorizations returns the Authorization header of every Sheets request
func (s *Server) Authorizations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.auths...)
}

func (s *Server) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("grant_type") != "urn:ietf:params:oauth:grant-type:jwt-bearer" {
		http.Error(w, `{"error":"unsupported_grant_type"}`, http.StatusBadRequest)
		return
	}
	iss, err := issuer(r.PostForm.Get("assertion"))
	if err != nil {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.grants = append(s.grants, iss)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"access_token": "token-for-" + iss,
		"token_type":   "Bearer",
		"expires_in":   3600,
	})
}

func (s *Server) sheets(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.auths = append(s.auths, r.Header.Get("Authorization"))
	s.mu.Unlock()

	if r.Method != http.MethodGet {
		http.Error(w, "read only", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	rest := strings.TrimPrefix(r.URL.Path, "/v4/spreadsheets/")
	if _, rng, ok := strings.Cut(rest, "/values/"); ok {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"range":          rng,
			"majorDimension": "ROWS",
			"values":         s.Values,
		})
		return
	}

	tabs := make([]map[string]interface{}, 0, len(s.Tabs))
	for i, title := range s.Tabs {
		tabs = append(tabs, map[string]interface{}{
			"properties": map[string]interface{}{"sheetId": i, "title": title},
		})
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"spreadsheetId": rest,
		"sheets":        tabs,
	})
}

// issuer reads the iss claim of an unverified JWT
func issuer(assertion string) (string, error) {
	parts := strings.Split(assertion, ".")
	if len(parts) != 3 {
		return "", errMalformed
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", err
	}
	var claims struct {
		Iss string `json:"iss"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", err
	}
	if claims.Iss == "" {
		return "", errMalformed
	}
	return claims.Iss, nil
}

var errMalformed = errors.New("malformed assertion")
