package sheets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_FetchColumn(t *testing.T) {
	t.Run("returns first cell of each row", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Contains(t, r.URL.Path, "/v4/spreadsheets/sheet-a/values/")
			assert.Equal(t, "test-key", r.URL.Query().Get("key"))

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"range":"Hoja 1!N2:N4","values":[["+34 600 111 222"],[],["34900333444","extra"]]}`))
		}))
		defer server.Close()

		client := NewClient(&Config{BaseURL: server.URL, APIKey: "test-key", Timeout: time.Second})

		column, err := client.FetchColumn(context.Background(), "sheet-a", "Hoja 1!N2:N")
		require.NoError(t, err)
		assert.Equal(t, []string{"+34 600 111 222", "", "34900333444"}, column)
	})

	t.Run("empty range yields empty column", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"range":"Hoja 1!S2:S"}`))
		}))
		defer server.Close()

		client := NewClient(&Config{BaseURL: server.URL})

		column, err := client.FetchColumn(context.Background(), "sheet-a", "Hoja 1!S2:S")
		require.NoError(t, err)
		assert.Empty(t, column)
	})

	t.Run("API error status is surfaced", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error":{"message":"The caller does not have permission"}}`))
		}))
		defer server.Close()

		client := NewClient(&Config{BaseURL: server.URL})

		_, err := client.FetchColumn(context.Background(), "sheet-a", "Hoja 1!N2:N")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sheets API error")
		assert.Contains(t, err.Error(), "does not have permission")
	})

	t.Run("malformed body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`not json`))
		}))
		defer server.Close()

		client := NewClient(&Config{BaseURL: server.URL})

		_, err := client.FetchColumn(context.Background(), "sheet-a", "Hoja 1!N2:N")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decode sheets response")
	})
}
