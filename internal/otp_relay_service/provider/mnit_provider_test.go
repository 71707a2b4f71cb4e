package provider

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMNITProvider_GetName(t *testing.T) {
	provider := NewMNITProvider(testLogger(), "a", "i", "key", nil)
	assert.Equal(t, "mnit", provider.GetName())
}

func TestMNITProvider_Allocate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "test-key", r.Header.Get("mapikey"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		bodyBytes, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"range":"261347435XXX","is_national":null,"remove_plus":null}`, string(bodyBytes))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"meta":{"code":200},"data":{"number":"261347435123","full_number":"+261347435123","iso":"MG"}}`)
	}))
	defer server.Close()

	provider := NewMNITProvider(testLogger(), server.URL, server.URL, "test-key", server.Client())
	res, err := provider.Allocate(context.Background(), "261347435XXX")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Succeeded)
	assert.Equal(t, "+261347435123", res.PhoneNumber)
	assert.Equal(t, "MG", res.Country)
	assert.Empty(t, res.RawError)
}

func TestMNITProvider_Allocate_Rejected(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"MetaCodeNotOK", `{"meta":{"code":400},"message":"range exhausted"}`},
		{"NoNumber", `{"meta":{"code":200},"data":{"country":"Madagascar"}}`},
		{"NotJSON", `<html>maintenance</html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			provider := NewMNITProvider(testLogger(), server.URL, server.URL, "k", server.Client())
			res, err := provider.Allocate(context.Background(), "261XXX")
			require.NoError(t, err)
			assert.False(t, res.Succeeded)
			assert.Equal(t, tt.body, res.RawError)
		})
	}
}

func TestMNITProvider_Allocate_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"message":"bad key"}`)
	}))
	defer server.Close()

	provider := NewMNITProvider(testLogger(), server.URL, server.URL, "k", server.Client())
	res, err := provider.Allocate(context.Background(), "261XXX")
	assert.Nil(t, res)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "allocate", apiErr.Operation)
	assert.Contains(t, apiErr.Error(), "bad key")
}

func TestMNITProvider_Allocate_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := server.Client()
	client.Timeout = 20 * time.Millisecond
	provider := NewMNITProvider(testLogger(), server.URL, server.URL, "k", client)

	_, err := provider.Allocate(context.Background(), "261XXX")
	assert.Error(t, err)
}

func TestMNITProvider_FetchInbox(t *testing.T) {
	var gotQuery map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "test-key", r.Header.Get("mapikey"))
		gotQuery = r.URL.Query()
		io.WriteString(w, `{"meta":{"code":200},"data":[
			{"number":"+261 347 435 123","message":"Code: 552910","id":12345678901234567890},
			{},
			"noise"
		]}`)
	}))
	defer server.Close()

	provider := NewMNITProvider(testLogger(), server.URL, server.URL, "test-key", server.Client())
	records, err := provider.FetchInbox(context.Background(), InboxQuery{Date: "2024-05-01", Page: 2, Status: "success"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Code: 552910", records[0]["message"])
	assert.Equal(t, json.Number("12345678901234567890"), records[0]["id"])

	assert.Equal(t, []string{"2024-05-01"}, gotQuery["date"])
	assert.Equal(t, []string{"2"}, gotQuery["page"])
	assert.Equal(t, []string{""}, gotQuery["search"])
	assert.Equal(t, []string{"success"}, gotQuery["status"])
}

func TestMNITProvider_FetchInbox_Shapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"SingleObject", `{"data":{"number":"261347435123","status":"expired"}}`, 1},
		{"NullData", `{"data":null}`, 0},
		{"EmptyList", `{"data":[]}`, 0},
		{"MissingData", `{"meta":{"code":200}}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sawStatus bool
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, sawStatus = r.URL.Query()["status"]
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			provider := NewMNITProvider(testLogger(), server.URL, server.URL, "k", server.Client())
			records, err := provider.FetchInbox(context.Background(), InboxQuery{Date: "2024-05-01", Page: 1})
			require.NoError(t, err)
			assert.Len(t, records, tt.want)
			assert.False(t, sawStatus, "unfiltered query must not send status")
		})
	}
}

func TestMNITProvider_FetchInbox_Errors(t *testing.T) {
	t.Run("HTTPStatus", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, strings.Repeat("x", 500), http.StatusBadGateway)
		}))
		defer server.Close()

		provider := NewMNITProvider(testLogger(), server.URL, server.URL, "k", server.Client())
		_, err := provider.FetchInbox(context.Background(), InboxQuery{Date: "2024-05-01", Page: 1})
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
		assert.LessOrEqual(t, len(apiErr.Body), maxRenderedBody+3)
	})

	t.Run("MalformedBody", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"data":[`)
		}))
		defer server.Close()

		provider := NewMNITProvider(testLogger(), server.URL, server.URL, "k", server.Client())
		_, err := provider.FetchInbox(context.Background(), InboxQuery{Date: "2024-05-01", Page: 1})
		assert.Error(t, err)
	})

	t.Run("CancelledContext", func(t *testing.T) {
		provider := NewMNITProvider(testLogger(), "http://127.0.0.1:1", "http://127.0.0.1:1", "k", nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := provider.FetchInbox(ctx, InboxQuery{Date: "2024-05-01", Page: 1})
		assert.Error(t, err)
	})
}
