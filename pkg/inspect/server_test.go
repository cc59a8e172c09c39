package inspect

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vango-dev/resync/pkg/archive"
	"github.com/vango-dev/resync/pkg/effect"
	"github.com/vango-dev/resync/pkg/metrics"
	"github.com/vango-dev/resync/pkg/scenario"
)

func newTestServer(t *testing.T, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	s := New(append([]Option{WithLogger(quietLogger())}, opts...)...)
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	return s, ts
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	var body map[string]string
	decode(t, resp, &body)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("got %d %v", resp.StatusCode, body)
	}
}

func TestScenarios(t *testing.T) {
	dir := t.TempDir()
	doc := "name: local\ndescription: from disk\neffects: [{name: a, deps: once}]\npasses: [{}]\n"
	if err := os.WriteFile(filepath.Join(dir, "local.yaml"), []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: [oops"), 0644); err != nil {
		t.Fatal(err)
	}

	_, ts := newTestServer(t, WithScenarioDir(dir))
	resp, err := http.Get(ts.URL + "/scenarios")
	if err != nil {
		t.Fatal(err)
	}
	var infos []ScenarioInfo
	decode(t, resp, &infos)

	if len(infos) != len(scenario.Builtins())+2 {
		t.Fatalf("got %d scenarios, want %d", len(infos), len(scenario.Builtins())+2)
	}
	byName := map[string]ScenarioInfo{}
	for _, info := range infos {
		byName[info.Name] = info
	}
	if byName["mount-once"].Source != "builtin" {
		t.Errorf("mount-once = %+v", byName["mount-once"])
	}
	if byName["local"].Description != "from disk" {
		t.Errorf("local = %+v", byName["local"])
	}
	if byName["broken"].Error == "" {
		t.Errorf("broken should report its parse error: %+v", byName["broken"])
	}
}

func TestRunBuiltinArchivesReport(t *testing.T) {
	store := archive.NewMemoryStore()
	_, ts := newTestServer(t, WithStore(store))

	resp, err := http.Post(ts.URL+"/scenarios/run?name=secret-value-fixed", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	var report scenario.Report
	decode(t, resp, &report)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !report.Passed() || report.Setups["countSecrets"] != 2 {
		t.Errorf("report = %+v", report)
	}

	resp, err = http.Get(ts.URL + "/reports")
	if err != nil {
		t.Fatal(err)
	}
	var entries []archive.Entry
	decode(t, resp, &entries)
	if len(entries) != 1 || entries[0].Name != report.Key() {
		t.Fatalf("entries = %+v, want %s", entries, report.Key())
	}

	resp, err = http.Get(ts.URL + "/reports/" + report.Key())
	if err != nil {
		t.Fatal(err)
	}
	var stored scenario.Report
	decode(t, resp, &stored)
	if stored.ID != report.ID {
		t.Errorf("stored ID = %s, want %s", stored.ID, report.ID)
	}
}

func TestRunPostedScenario(t *testing.T) {
	_, ts := newTestServer(t)
	doc := `
name: posted
effects: [{name: a, deps: tracked}]
passes:
  - inputs: {a: [{value: 1}]}
  - inputs: {a: [{value: 1}, {value: 2}]}
expect: {error: R101}
`
	resp, err := http.Post(ts.URL+"/scenarios/run", "application/yaml", strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	var report scenario.Report
	decode(t, resp, &report)
	if report.Error != "R101" || !report.Passed() {
		t.Errorf("report = %+v", report)
	}
}

func TestRunErrors(t *testing.T) {
	_, ts := newTestServer(t)
	tests := []struct {
		name       string
		url        string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"unknown builtin", "/scenarios/run?name=nope", "", http.StatusNotFound, "R203"},
		{"malformed", "/scenarios/run", "name: [", http.StatusBadRequest, "R202"},
		{"invalid", "/scenarios/run", "name: x\neffects: []\npasses: []\n", http.StatusBadRequest, "R201"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+tt.url, "application/yaml", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			var body errorBody
			decode(t, resp, &body)
			if resp.StatusCode != tt.wantStatus || body.Code != tt.wantCode {
				t.Errorf("got %d %s, want %d %s (%s)", resp.StatusCode, body.Code, tt.wantStatus, tt.wantCode, body.Message)
			}
		})
	}
}

func TestMissingReport(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/reports/missing.json")
	if err != nil {
		t.Fatal(err)
	}
	var body errorBody
	decode(t, resp, &body)
	if resp.StatusCode != http.StatusNotFound || body.Code != "R303" {
		t.Errorf("got %d %s, want 404 R303", resp.StatusCode, body.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := metrics.New(metrics.WithRegistry(reg))
	_, ts := newTestServer(t, WithGatherer(reg), WithObserver(obs))

	resp, err := http.Post(ts.URL+"/scenarios/run?name=mount-once", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `resync_setups_total{effect="connect"} 1`) {
		t.Errorf("metrics output missing setups counter:\n%s", body)
	}
}

func TestEventsStream(t *testing.T) {
	s, ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.Hub().Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp, err := http.Post(ts.URL+"/scenarios/run?name=mount-once", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev effect.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != effect.EventSetup || ev.Effect != "connect" {
		t.Errorf("first event = %+v", ev)
	}
}

func TestSameOrigin(t *testing.T) {
	tests := []struct {
		origin string
		host   string
		want   bool
	}{
		{"", "localhost:7070", true},
		{"http://localhost:7070", "localhost:7070", true},
		{"http://evil.example", "localhost:7070", false},
		{"://bad", "localhost:7070", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/events", nil)
		r.Host = tt.host
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := sameOrigin(r); got != tt.want {
			t.Errorf("sameOrigin(%q, %q) = %v, want %v", tt.origin, tt.host, got, tt.want)
		}
	}
}
