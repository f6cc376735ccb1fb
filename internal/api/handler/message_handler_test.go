package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comiendoalmundo/followup-service/internal/allowlist"
	"github.com/comiendoalmundo/followup-service/internal/async"
	"github.com/comiendoalmundo/followup-service/internal/backend"
	"github.com/comiendoalmundo/followup-service/internal/followup"
)

// fakeJobStore keeps jobs in a map keyed by job id
type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[string]*followup.Job
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[string]*followup.Job)}
}

func (f *fakeJobStore) UpsertJob(ctx context.Context, job *followup.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *job
	f.jobs[job.JobID] = &copied
	return nil
}

func (f *fakeJobStore) DeleteJobs(ctx context.Context, ids []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var removed int64
	for _, id := range ids {
		if _, ok := f.jobs[id]; ok {
			delete(f.jobs, id)
			removed++
		}
	}
	return removed, nil
}

func (f *fakeJobStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

// fakeRowSource serves spreadsheet columns keyed by "spreadsheet/range"
type fakeRowSource struct {
	columns map[string][]string
}

func (f *fakeRowSource) FetchColumn(ctx context.Context, spreadsheetID, cellRange string) ([]string, error) {
	return f.columns[spreadsheetID+"/"+cellRange], nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeSender) SendText(ctx context.Context, phone, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, phone)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type testEnv struct {
	router *gin.Engine
	store  *fakeJobStore
	sender *fakeSender
	runner *async.Runner
}

// newTestEnv wires the handler surface against fakes. The allow-list has one
// source with a single listed contact, refreshed synchronously so the gate is
// populated before any request runs.
func newTestEnv(t *testing.T, forwardURL string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	discard := slog.New(slog.DiscardHandler)

	store := newFakeJobStore()
	profile := &followup.Profile{
		Steps: []followup.Step{
			{Name: "first", Offset: 24 * time.Hour},
			{Name: "second", Offset: 48 * time.Hour},
		},
		Variants: 2,
	}
	scheduler := followup.NewScheduler(store, profile, discard)

	source := &fakeRowSource{columns: map[string][]string{
		"sheet-a/A2:A": {"34600111222"},
	}}
	cache := allowlist.NewCache(source, []allowlist.SourceConfig{
		{ID: "potential", Name: "Potential", SpreadsheetID: "sheet-a", PhoneRange: "A2:A"},
	}, discard)
	cache.RefreshAll(context.Background())

	sender := &fakeSender{}
	runner := async.NewRunner(discard, time.Second)

	deps := &Dependencies{
		Logger:      discard,
		Scheduler:   scheduler,
		Profile:     profile,
		Cache:       cache,
		Sender:      sender,
		Backend:     backend.NewClient(&backend.Config{ForwardURL: forwardURL}, discard),
		Runner:      runner,
		VerifyToken: "verify-me",
	}

	h := NewMessageHandler(deps)

	r := gin.New()
	r.GET("/webhook", h.VerifyWebhook)
	r.POST("/webhook", h.ReceiveMessage)
	r.POST("/api/v1/messages/send", h.SendMessage)
	r.POST("/api/v1/contacts/reload", h.ReloadContact)

	return &testEnv{router: r, store: store, sender: sender, runner: runner}
}

func (e *testEnv) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// flush waits for the background tasks the request spawned
func (e *testEnv) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, e.runner.Shutdown(ctx))
}

func TestSendMessage(t *testing.T) {
	t.Run("source id arms the campaign and sends", func(t *testing.T) {
		env := newTestEnv(t, "")

		w := env.post(t, "/api/v1/messages/send", gin.H{
			"phone":            "+34 600 111 222",
			"name":             "Ana",
			"message":          "Hola Ana",
			"source_id":        "potential",
			"template_variant": 1,
		})

		require.Equal(t, http.StatusOK, w.Code)
		env.flush(t)

		assert.Equal(t, 2, env.store.count())
		assert.Equal(t, 1, env.sender.count())
	})

	t.Run("empty source id cancels pending follow-ups", func(t *testing.T) {
		env := newTestEnv(t, "")

		w := env.post(t, "/api/v1/messages/send", gin.H{
			"phone":     "34600111222",
			"message":   "primero",
			"source_id": "potential",
		})
		require.Equal(t, http.StatusOK, w.Code)
		env.flush(t)
		require.Equal(t, 2, env.store.count())

		w = env.post(t, "/api/v1/messages/send", gin.H{
			"phone":   "34 600 111 222",
			"message": "respuesta manual",
		})
		require.Equal(t, http.StatusOK, w.Code)
		env.flush(t)

		assert.Zero(t, env.store.count())
		assert.Equal(t, 2, env.sender.count())
	})

	t.Run("unknown source id is rejected", func(t *testing.T) {
		env := newTestEnv(t, "")

		w := env.post(t, "/api/v1/messages/send", gin.H{
			"phone":     "34600111222",
			"message":   "hola",
			"source_id": "nope",
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		env.flush(t)
		assert.Zero(t, env.store.count())
		assert.Zero(t, env.sender.count())
	})

	t.Run("variant out of range is rejected", func(t *testing.T) {
		env := newTestEnv(t, "")

		w := env.post(t, "/api/v1/messages/send", gin.H{
			"phone":            "34600111222",
			"message":          "hola",
			"source_id":        "potential",
			"template_variant": 5,
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		env.flush(t)
		assert.Zero(t, env.store.count())
	})

	t.Run("phone without digits is rejected", func(t *testing.T) {
		env := newTestEnv(t, "")

		w := env.post(t, "/api/v1/messages/send", gin.H{
			"phone":   "---",
			"message": "hola",
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing body fields are rejected", func(t *testing.T) {
		env := newTestEnv(t, "")

		w := env.post(t, "/api/v1/messages/send", gin.H{"phone": "34600111222"})

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestReloadContact(t *testing.T) {
	t.Run("cancels follow-ups and refreshes the source", func(t *testing.T) {
		env := newTestEnv(t, "")

		w := env.post(t, "/api/v1/messages/send", gin.H{
			"phone":     "34600111222",
			"message":   "hola",
			"source_id": "potential",
		})
		require.Equal(t, http.StatusOK, w.Code)
		env.flush(t)
		require.Equal(t, 2, env.store.count())

		w = env.post(t, "/api/v1/contacts/reload", gin.H{
			"source_id": "potential",
			"phone":     "34600111222",
		})

		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Success  bool  `json:"success"`
			Canceled int64 `json:"canceled"`
			Allowed  int   `json:"allowed"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, int64(2), resp.Canceled)
		assert.Equal(t, 1, resp.Allowed)
		assert.Zero(t, env.store.count())
	})

	t.Run("unknown source id is not found", func(t *testing.T) {
		env := newTestEnv(t, "")

		w := env.post(t, "/api/v1/contacts/reload", gin.H{
			"source_id": "nope",
			"phone":     "34600111222",
		})

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestVerifyWebhook(t *testing.T) {
	env := newTestEnv(t, "")

	t.Run("matching token echoes the challenge", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", nil)
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "12345", w.Body.String())
	})

	t.Run("wrong token is forbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestReceiveMessage(t *testing.T) {
	webhookBody := func(from string) gin.H {
		return gin.H{
			"entry": []gin.H{{
				"changes": []gin.H{{
					"value": gin.H{
						"contacts": []gin.H{{
							"wa_id":   from,
							"profile": gin.H{"name": "Ana"},
						}},
						"messages": []gin.H{{
							"from":      from,
							"timestamp": "1718000000",
							"type":      "text",
							"text":      gin.H{"body": "hola"},
						}},
					},
				}},
			}},
		}
	}

	t.Run("listed contact is forwarded", func(t *testing.T) {
		var forwarded []backend.InboundMessage
		var mu sync.Mutex
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var msg backend.InboundMessage
			require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
			mu.Lock()
			forwarded = append(forwarded, msg)
			mu.Unlock()
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		env := newTestEnv(t, srv.URL)

		w := env.post(t, "/webhook", webhookBody("34600111222"))
		require.Equal(t, http.StatusOK, w.Code)
		env.flush(t)

		mu.Lock()
		defer mu.Unlock()
		require.Len(t, forwarded, 1)
		assert.Equal(t, "34600111222", forwarded[0].From)
		assert.Equal(t, "Ana", forwarded[0].Name)
		assert.Equal(t, "hola", forwarded[0].Body)
	})

	t.Run("unlisted contact is dropped with a 200", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("backend must not be called for unlisted contacts")
		}))
		defer srv.Close()

		env := newTestEnv(t, srv.URL)

		w := env.post(t, "/webhook", webhookBody("34999888777"))
		require.Equal(t, http.StatusOK, w.Code)
		env.flush(t)
	})
}
