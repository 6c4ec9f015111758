package sheets

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"autoledger/internal/domain"
)

func newFakeClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	svc, err := sheetsapi.NewService(context.Background(),
		option.WithEndpoint(ts.URL),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	return NewWithService(svc, "sheet-123", "Transactions", log.New(io.Discard))
}

func TestRowMapping(t *testing.T) {
	txn := domain.Transaction{
		Amount:    42.5,
		Merchant:  "Dunkin",
		Category:  "Coffee/Snacks",
		CreatedAt: time.Date(2025, time.March, 9, 14, 30, 0, 0, time.UTC),
	}
	row := Row(txn)
	require.Len(t, row, 4)
	assert.Equal(t, "03/09/2025", row[0])
	assert.Equal(t, "42.50", row[1])
	assert.Equal(t, "Dunkin", row[2])
	assert.Equal(t, "Coffee/Snacks", row[3])
}

func TestAppendRow(t *testing.T) {
	var gotPath string
	var gotBody struct {
		Values [][]interface{} `json:"values"`
	}
	client := newFakeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{}`)
	}))

	txn := domain.Transaction{
		Amount:    12.34,
		Merchant:  "Shell",
		Category:  "Transportation",
		CreatedAt: time.Date(2025, time.January, 2, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, client.AppendRow(context.Background(), txn))

	assert.Contains(t, gotPath, "/spreadsheets/sheet-123/values/")
	assert.Contains(t, gotPath, "Transactions!B:E")
	require.Len(t, gotBody.Values, 1)
	assert.Equal(t, []interface{}{"01/02/2025", "12.34", "Shell", "Transportation"}, gotBody.Values[0])
}

func TestAppendRowServerError(t *testing.T) {
	client := newFakeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"code": 503}}`, http.StatusServiceUnavailable)
	}))

	err := client.AppendRow(context.Background(), domain.Transaction{CreatedAt: time.Now()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append row")
}

func TestAppendRowNotConfigured(t *testing.T) {
	client := NewWithService(nil, "", "Transactions", log.New(io.Discard))
	assert.False(t, client.Configured())

	err := client.AppendRow(context.Background(), domain.Transaction{})
	assert.Error(t, err)
}

func TestValidateTarget(t *testing.T) {
	client := newFakeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"properties": {"title": "Family Budget"}}`)
	}))

	title, err := client.ValidateTarget(context.Background(), "sheet-123")
	require.NoError(t, err)
	assert.Equal(t, "Family Budget", title)
}

func TestEnsureHeadersWritesWhenEmpty(t *testing.T) {
	var updateCalled bool
	client := newFakeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodGet {
			io.WriteString(w, `{"values": []}`)
			return
		}
		if strings.Contains(r.URL.Path, "Transactions!B4:E4") {
			updateCalled = true
		}
		io.WriteString(w, `{}`)
	}))

	require.NoError(t, client.EnsureHeaders(context.Background()))
	assert.True(t, updateCalled)
}

func TestEnsureHeadersSkipsWhenPresent(t *testing.T) {
	var updateCalled bool
	client := newFakeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodGet {
			io.WriteString(w, `{"values": [["Date", "Amount"]]}`)
			return
		}
		updateCalled = true
		io.WriteString(w, `{}`)
	}))

	require.NoError(t, client.EnsureHeaders(context.Background()))
	assert.False(t, updateCalled)
}

func TestExtractSpreadsheetID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1AbC-xyz_123", "1AbC-xyz_123"},
		{"  1AbC-xyz_123", "1AbC-xyz_123"},
		{"https://docs.google.com/spreadsheets/d/1AbC-xyz_123/edit#gid=0", "1AbC-xyz_123"},
		{"https://example.com/other", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractSpreadsheetID(tt.in))
	}
}
