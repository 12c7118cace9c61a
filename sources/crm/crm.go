// Package crm pages through leads of the CRM getleads API.
//
// The API takes a form-encoded POST and answers with {"lead_data": [...]}.
// Lead keys are decoded in payload order so that headers derived from the
// first lead follow the order the CRM returns.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ideamans/go-sheetsync"
	"go.uber.org/zap"
)

// DefaultEndpoint is the getleads API used when Config.Endpoint is empty
const DefaultEndpoint = "https://emoneeds.icg-crm.in/api/leads/getleads"

// Config holds the request parameters of the lead source
type Config struct {
	Endpoint   string        // getleads URL
	Token      string        // API token
	DateAfter  string        // lead_date_after (YYYY-MM-DD), optional
	DateBefore string        // lead_date_before (YYYY-MM-DD), optional
	StageIDs   []string      // stage_id filter, optional
	AllStages  bool          // StageIDs lists every stage of the CRM
	Timeout    time.Duration // per request (default: 180s)
}

// StatusError is returned for non-2xx responses
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http status %d", e.Code)
	}
	return fmt.Sprintf("http status %d: %s", e.Code, e.Body)
}

// Source implements sheetsync.Source over the getleads API
type Source struct {
	config Config
	client *http.Client
	logger *zap.Logger
}

// Option customizes a Source
type Option func(*Source)

// WithHTTPClient replaces the default client
func WithHTTPClient(c *http.Client) Option {
	return func(s *Source) {
		if c != nil {
			s.client = c
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Source) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a lead source
func New(config Config, opts ...Option) (*Source, error) {
	if strings.TrimSpace(config.Token) == "" {
		return nil, fmt.Errorf("%w: crm token", sheetsync.ErrMissingConfig)
	}
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	if _, err := url.ParseRequestURI(config.Endpoint); err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	if config.Timeout <= 0 {
		config.Timeout = 180 * time.Second
	}

	s := &Source{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Complete is false when a date window or a stage subset narrows the leads
func (s *Source) Complete() bool {
	if s.config.DateAfter != "" || s.config.DateBefore != "" {
		return false
	}
	if len(s.config.StageIDs) > 0 && !s.config.AllStages {
		return false
	}
	return true
}

// Fetch requests one page of leads
func (s *Source) Fetch(ctx context.Context, offset, limit int) ([]*sheetsync.Record, error) {
	form := s.form(offset, limit)
	s.logger.Debug("fetching leads", zap.Int("offset", offset), zap.Int("limit", limit))

	body, err := s.post(ctx, form)
	if err != nil {
		return nil, err
	}

	leads, err := decodeLeads(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", sheetsync.ErrMalformedPage, err)
	}
	return leads, nil
}

// KeyType is one field of a sample lead and its JSON type
type KeyType struct {
	Key  string
	Type string
}

// Probe fetches a single lead and lists its keys with their JSON types
func (s *Source) Probe(ctx context.Context) ([]KeyType, error) {
	leads, err := s.Fetch(ctx, 0, 1)
	if err != nil {
		return nil, err
	}
	if len(leads) == 0 {
		return nil, errors.New("no lead_data found")
	}

	sample := leads[0]
	keys := make([]KeyType, 0, len(sample.Keys))
	for _, k := range sample.Keys {
		keys = append(keys, KeyType{Key: k, Type: jsonType(sample.Fields[k])})
	}
	return keys, nil
}

func (s *Source) form(offset, limit int) url.Values {
	form := url.Values{}
	form.Set("token", s.config.Token)
	form.Set("lead_offset", strconv.Itoa(offset))
	form.Set("limit", strconv.Itoa(limit))
	form.Set("lead_limit", strconv.Itoa(limit))
	if s.config.DateAfter != "" {
		form.Set("lead_date_after", s.config.DateAfter)
	}
	if s.config.DateBefore != "" {
		form.Set("lead_date_before", s.config.DateBefore)
	}
	if len(s.config.StageIDs) > 0 {
		form.Set("stage_id", strings.Join(s.config.StageIDs, ","))
	}
	return form
}

func (s *Source) post(ctx context.Context, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: snippet(body)}
	}
	return body, nil
}

// decodeLeads reads {"lead_data": [...]} keeping each lead's key order.
// A null or empty lead_data is an empty page; a payload without lead_data
// is malformed.
func decodeLeads(r io.Reader) ([]*sheetsync.Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	var leads []*sheetsync.Record
	found := false
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		if key != "lead_data" {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, err
			}
			continue
		}

		found = true
		tok, err = dec.Token()
		if err != nil {
			return nil, err
		}
		if tok == nil {
			continue
		}
		if d, ok := tok.(json.Delim); !ok || d != '[' {
			return nil, fmt.Errorf("lead_data is not an array")
		}
		for dec.More() {
			rec, err := decodeObject(dec)
			if err != nil {
				return nil, err
			}
			leads = append(leads, rec)
		}
		if err := expectDelim(dec, ']'); err != nil {
			return nil, err
		}
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.New("response has no lead_data")
	}
	return leads, nil
}

// decodeObject decodes one JSON object into a record in key order
func decodeObject(dec *json.Decoder) (*sheetsync.Record, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("lead is not an object")
	}

	rec := &sheetsync.Record{Fields: make(map[string]interface{})}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var v interface{}
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		rec.Set(key, v)
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	return rec, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func jsonType(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "bool"
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
