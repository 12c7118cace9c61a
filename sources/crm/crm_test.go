package crm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/ideamans/go-sheetsync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSource(t *testing.T, cfg Config, handler http.HandlerFunc) *Source {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg.Endpoint = server.URL + "/api/leads/getleads"
	if cfg.Token == "" {
		cfg.Token = "secret"
	}
	src, err := New(cfg)
	require.NoError(t, err)
	return src
}

func TestSource_FetchSendsForm(t *testing.T) {
	var got url.Values
	src := newTestSource(t, Config{
		DateAfter: "2025-01-01",
		StageIDs:  []string{"1", "2", "15"},
	}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/leads/getleads", r.URL.Path)
		require.NoError(t, r.ParseForm())
		got = r.PostForm
		w.Write([]byte(`{"lead_data": []}`))
	})

	leads, err := src.Fetch(context.Background(), 400, 200)
	require.NoError(t, err)
	assert.Empty(t, leads)

	assert.Equal(t, "secret", got.Get("token"))
	assert.Equal(t, "400", got.Get("lead_offset"))
	assert.Equal(t, "200", got.Get("limit"))
	assert.Equal(t, "200", got.Get("lead_limit"))
	assert.Equal(t, "2025-01-01", got.Get("lead_date_after"))
	assert.Equal(t, "", got.Get("lead_date_before"))
	assert.Equal(t, "1,2,15", got.Get("stage_id"))
}

func TestSource_FetchDecodesLeadsInKeyOrder(t *testing.T) {
	src := newTestSource(t, Config{}, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": true,
			"lead_data": [
				{"lead_id": 9007199254740993, "name": "Asha", "stage": {"id": 2, "name": "New"}, "comments": [], "amount": 12.50, "phone": null},
				{"name": "Ravi", "lead_id": 12}
			],
			"total": 2
		}`))
	})

	leads, err := src.Fetch(context.Background(), 0, 200)
	require.NoError(t, err)
	require.Len(t, leads, 2)

	first := leads[0]
	assert.Equal(t, []string{"lead_id", "name", "stage", "comments", "amount", "phone"}, first.Keys)
	assert.Equal(t, json.Number("9007199254740993"), first.Fields["lead_id"])
	assert.Equal(t, "9007199254740993", first.ID("lead_id"))
	assert.Equal(t, `{"id":2,"name":"New"}`, first.Cell("stage"))
	assert.Equal(t, "[]", first.Cell("comments"))
	assert.Equal(t, "12.50", first.Cell("amount"))
	assert.Equal(t, "", first.Cell("phone"))

	assert.Equal(t, []string{"name", "lead_id"}, leads[1].Keys)
}

func TestSource_FetchErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		malformed bool
	}{
		{name: "server error", status: http.StatusBadGateway, body: "bad gateway"},
		{name: "not json", status: http.StatusOK, body: "<html>maintenance</html>", malformed: true},
		{name: "missing lead_data", status: http.StatusOK, body: `{"status": false, "message": "invalid token"}`, malformed: true},
		{name: "lead_data not array", status: http.StatusOK, body: `{"lead_data": "none"}`, malformed: true},
		{name: "truncated", status: http.StatusOK, body: `{"lead_data": [{"lead_id": 1`, malformed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newTestSource(t, Config{}, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := src.Fetch(context.Background(), 0, 10)
			require.Error(t, err)
			assert.Equal(t, tt.malformed, errors.Is(err, sheetsync.ErrMalformedPage))

			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				assert.Equal(t, tt.status, statusErr.Code)
			} else {
				assert.True(t, tt.malformed)
			}
		})
	}
}

func TestSource_NullLeadData(t *testing.T) {
	src := newTestSource(t, Config{}, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"lead_data": null}`))
	})

	leads, err := src.Fetch(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Empty(t, leads)
}

func TestSource_Complete(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   bool
	}{
		{name: "no filters", config: Config{Token: "t"}, want: true},
		{name: "date window", config: Config{Token: "t", DateAfter: "2025-01-01"}, want: false},
		{name: "upper bound", config: Config{Token: "t", DateBefore: "2025-06-01"}, want: false},
		{name: "stage subset", config: Config{Token: "t", StageIDs: []string{"1", "2"}}, want: false},
		{name: "all stages listed", config: Config{Token: "t", StageIDs: []string{"1", "2"}, AllStages: true}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := New(tt.config)
			require.NoError(t, err)
			assert.Equal(t, tt.want, src.Complete())
		})
	}
}

func TestNew_RequiresToken(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, sheetsync.ErrMissingConfig)

	_, err = New(Config{Token: "t", Endpoint: "not a url"})
	assert.Error(t, err)
}

func TestSource_Probe(t *testing.T) {
	var limit string
	src := newTestSource(t, Config{}, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		limit = r.PostForm.Get("lead_limit")
		w.Write([]byte(`{"lead_data": [{"lead_id": 1, "name": "Asha", "tags": ["a"], "meta": {}, "vip": false, "email": null}]}`))
	})

	keys, err := src.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1", limit)
	assert.Equal(t, []KeyType{
		{Key: "lead_id", Type: "number"},
		{Key: "name", Type: "string"},
		{Key: "tags", Type: "array"},
		{Key: "meta", Type: "object"},
		{Key: "vip", Type: "bool"},
		{Key: "email", Type: "null"},
	}, keys)
}

func TestSource_ProbeEmpty(t *testing.T) {
	src := newTestSource(t, Config{}, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"lead_data": []}`))
	})

	_, err := src.Probe(context.Background())
	assert.Error(t, err)
}
