package webservice

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ohowland/mtress/internal/pkg/msg"
	"github.com/ohowland/mtress/internal/pkg/observability"
	"github.com/ohowland/mtress/internal/pkg/optmodel"
	"github.com/prometheus/client_golang/prometheus"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

const model = `
name: house
time_index: {start: 2022-01-01T00:00:00Z, freq: 1h, periods: 2}
locations:
  - name: house
    carriers:
      electricity: true
      heat: {levels: [30, 60], reference: 10}
    technologies:
      - {name: grid, type: electricity_grid, params: {working_rate: 0.3}}
      - {name: load, type: electricity_demand, params: {time_series: [1, 2]}}
      - {name: rod, type: resistive_heater, params: {nominal_power: 5, maximum_temperature: 60}}
      - name: tank
        type: heat_storage
        params: {volume: 0.3, power_limit: 5, multiplexer_implementation: flexible}
`

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	r := httptest.NewRequest(method, "http://example.com"+target, strings.NewReader(body))
	h.ServeHTTP(w, r)
	return w
}

func create(t *testing.T, h http.Handler) optmodel.Summary {
	t.Helper()
	w := do(t, h, http.MethodPost, "/models", model)
	assert.Equal(t, w.Code, http.StatusCreated, w.Body.String())
	var sum optmodel.Summary
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &sum))
	return sum
}

// BEGIN --- Webservice Tests

func TestHealth(t *testing.T) {
	w := do(t, New().Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, w.Code, http.StatusOK)
	assert.Equal(t, w.Header().Get("Content-Type"), "application/json; charset=UTF-8")
}

func TestCreateAndGetModel(t *testing.T) {
	h := New().Handler()
	sum := create(t, h)
	assert.Equal(t, sum.Name, "house")
	assert.Equal(t, sum.Steps, 2)
	assert.Equal(t, sum.SOS2, 2)

	w := do(t, h, http.MethodGet, "/models/"+sum.PID.String(), "")
	assert.Equal(t, w.Code, http.StatusOK)
	var got optmodel.Summary
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, got.PID, sum.PID)
	assert.Equal(t, got.Variables, sum.Variables)

	w = do(t, h, http.MethodGet, "/models", "")
	assert.Equal(t, w.Code, http.StatusOK)
	var list []optmodel.Summary
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Assert(t, is.Len(list, 1))

	w = do(t, h, http.MethodGet, "/models/"+sum.PID.String()+"/lp", "")
	assert.Equal(t, w.Code, http.StatusOK)
	assert.Equal(t, w.Header().Get("Content-Type"), "text/plain; charset=UTF-8")
	assert.Assert(t, is.Contains(w.Body.String(), "Minimize"))
	assert.Assert(t, is.Contains(w.Body.String(), "SOS"))
}

func TestCreateModelErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{"malformed yaml", "name: [", http.StatusBadRequest},
		{"bad time index", "name: x\nlocations: [{name: a}]", http.StatusBadRequest},
		{"unknown technology", strings.Replace(model, "electricity_grid", "warp_drive", 1), http.StatusUnprocessableEntity},
		{"infeasible parameter", strings.Replace(model, "nominal_power: 5", "nominal_power: -5", 1), http.StatusUnprocessableEntity},
	}
	h := New().Handler()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/models", tt.body)
			assert.Equal(t, w.Code, tt.code, w.Body.String())
			var body errorBody
			assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Assert(t, body.Error != "")
		})
	}
}

func TestGetModelErrors(t *testing.T) {
	h := New().Handler()
	w := do(t, h, http.MethodGet, "/models/not-a-uuid", "")
	assert.Equal(t, w.Code, http.StatusBadRequest)

	w = do(t, h, http.MethodGet, "/models/"+uuid.New().String()+"/lp", "")
	assert.Equal(t, w.Code, http.StatusNotFound)

	w = do(t, h, http.MethodDelete, "/models", "")
	assert.Equal(t, w.Code, http.StatusMethodNotAllowed)
}

func TestCORS(t *testing.T) {
	h := New(WithOrigins("http://dashboard.local")).Handler()
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodOptions, "http://example.com/models", nil)
	r.Header.Set("Origin", "http://dashboard.local")
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	h.ServeHTTP(w, r)
	assert.Equal(t, w.Header().Get("Access-Control-Allow-Origin"), "http://dashboard.local")

	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodGet, "http://example.com/health", nil)
	r.Header.Set("Origin", "http://elsewhere.local")
	h.ServeHTTP(w, r)
	assert.Equal(t, w.Header().Get("Access-Control-Allow-Origin"), "")
}

func TestMetrics(t *testing.T) {
	c, err := observability.NewBuildCollector(prometheus.NewRegistry())
	assert.NilError(t, err)
	h := New(WithMetrics(c)).Handler()
	create(t, h)

	w := do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, w.Code, http.StatusOK)
	assert.Assert(t, is.Contains(w.Body.String(), `mtress_builds_total{result="ok"} 1`))
}

func TestEvents(t *testing.T) {
	s := New()
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/events", nil)
	assert.NilError(t, err)
	defer conn.Close()

	// wait for the subscription
	deadline := time.Now().Add(time.Second)
	for s.Hub().Publish(msg.Summary, "ping") == 0 {
		assert.Assert(t, time.Now().Before(deadline), "websocket never subscribed")
		time.Sleep(5 * time.Millisecond)
	}
	var e struct {
		Topic   string          `json:"topic"`
		Payload json.RawMessage `json:"payload"`
	}
	assert.NilError(t, conn.ReadJSON(&e))
	assert.Equal(t, string(e.Payload), `"ping"`)

	resp, err := http.Post(srv.URL+"/models", "application/yaml", strings.NewReader(model))
	assert.NilError(t, err)
	resp.Body.Close()
	assert.Equal(t, resp.StatusCode, http.StatusCreated)

	var phases int
	assert.NilError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		assert.NilError(t, conn.ReadJSON(&e))
		if e.Topic == "summary" {
			break
		}
		assert.Equal(t, e.Topic, "phase")
		phases++
	}
	assert.Equal(t, phases, 4)
	var sum optmodel.Summary
	assert.NilError(t, json.Unmarshal(e.Payload, &sum))
	assert.Equal(t, sum.Name, "house")
}
