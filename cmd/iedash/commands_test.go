package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/iedash/internal/api"
	"github.com/kalambet/iedash/internal/api/ws"
	"github.com/kalambet/iedash/internal/config"
	"github.com/kalambet/iedash/internal/dashboard"
	"github.com/kalambet/iedash/internal/events"
	"github.com/kalambet/iedash/internal/pipeline"
	"github.com/kalambet/iedash/internal/seed"
	"github.com/kalambet/iedash/internal/storage"
)

type recordedRequest struct {
	Method      string
	Path        string
	Body        string
	Auth        string
	ContentType string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method:      r.Method,
			Path:        r.URL.RequestURI(),
			Body:        body.String(),
			Auth:        r.Header.Get("Authorization"),
			ContentType: r.Header.Get("Content-Type"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found_error"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

// captureOutput redirects the CLI writers for the duration of a test.
func captureOutput(t *testing.T) (status, data *bytes.Buffer) {
	t.Helper()
	oldStatus, oldData, oldColor := statusOut, dataOut, noColor
	status, data = &bytes.Buffer{}, &bytes.Buffer{}
	statusOut, dataOut, noColor = status, data, true
	t.Cleanup(func() { statusOut, dataOut, noColor = oldStatus, oldData, oldColor })
	return status, data
}

func TestAPIClientAuth(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	client := ts.client()
	client.token = "my-secret-token"
	if _, err := client.get(ctx, "/health"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	client.token = ""
	if _, err := client.get(ctx, "/health"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ts.requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(ts.requests))
	}
	if ts.requests[0].Auth != "Bearer my-secret-token" {
		t.Errorf("auth = %q, want 'Bearer my-secret-token'", ts.requests[0].Auth)
	}
	if ts.requests[1].Auth != "" {
		t.Errorf("auth = %q, want none without a token", ts.requests[1].Auth)
	}
}

func TestAPIClientPut(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"PUT /api/providers/OpenAI/key": `{"name":"OpenAI","status":"connected","has_key":true,"masked_key":"*****1234"}`,
	})

	resp, err := ts.client().put(ctx, "/api/providers/OpenAI/key", map[string]string{"api_key": "sk-001234"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var p dashboard.ProviderView
	if err := decodeJSON(resp, &p); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if p.Name != "OpenAI" || !p.HasKey || p.Status != storage.ProviderConnected {
		t.Errorf("unexpected provider %+v", p)
	}
	if ts.requests[0].Body != `{"api_key":"sk-001234"}` {
		t.Errorf("body = %q", ts.requests[0].Body)
	}
	if ts.requests[0].ContentType != "application/json" {
		t.Errorf("content type = %q", ts.requests[0].ContentType)
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	_, err := ts.client().get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"invalid or missing bearer token","type":"authentication_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{baseURL: ts.URL, token: "bad-token", httpClient: ts.Client()}
	resp, err := client.post(ctx, "/api/chat", map[string]string{"message": "hi"})
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if got := err.Error(); got != "server returned 401: invalid or missing bearer token" {
		t.Errorf("error = %q", got)
	}
}

func TestUpload(t *testing.T) {
	var names []string
	var contents []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parsing multipart: %v", err)
			return
		}
		for _, fh := range r.MultipartForm.File["files"] {
			names = append(names, fh.Filename)
			f, _ := fh.Open()
			var buf bytes.Buffer
			buf.ReadFrom(f)
			f.Close()
			contents = append(contents, buf.String())
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"documents":[]}`))
	}))
	defer ts.Close()

	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.md")
	os.WriteFile(a, []byte("alpha"), 0o644)
	os.WriteFile(b, []byte("beta"), 0o644)

	client := &apiClient{baseURL: ts.URL, httpClient: ts.Client()}
	resp, err := client.upload(ctx, "/api/documents", []string{a, b})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if strings.Join(names, ",") != "a.txt,b.md" {
		t.Errorf("names = %v", names)
	}
	if strings.Join(contents, ",") != "alpha,beta" {
		t.Errorf("contents = %v", contents)
	}

	if _, err := client.upload(ctx, "/api/documents", []string{filepath.Join(dir, "missing")}); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestWSURL(t *testing.T) {
	tests := []struct {
		base, token, want string
	}{
		{"http://127.0.0.1:3000", "", "ws://127.0.0.1:3000/api/ws"},
		{"http://127.0.0.1:3000", "tok en", "ws://127.0.0.1:3000/api/ws?token=tok+en"},
		{"https://dash.example.com", "", "wss://dash.example.com/api/ws"},
	}
	for _, tt := range tests {
		c := &apiClient{baseURL: tt.base, token: tt.token}
		got, err := c.wsURL()
		if err != nil {
			t.Fatalf("wsURL(%s): %v", tt.base, err)
		}
		if got != tt.want {
			t.Errorf("wsURL(%s) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestServerBaseURL(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"127.0.0.1", "http://127.0.0.1:3000"},
		{"0.0.0.0", "http://127.0.0.1:3000"},
		{"", "http://127.0.0.1:3000"},
		{"::1", "http://[::1]:3000"},
	}
	for _, tt := range tests {
		cfg := config.Config{Server: config.ServerConfig{Host: tt.host, Port: 3000}}
		if got := serverBaseURL(cfg); got != tt.want {
			t.Errorf("serverBaseURL(%q) = %q, want %q", tt.host, got, tt.want)
		}
	}
}

// newLiveServer runs the real router, hub and dashboard.
func newLiveServer(t *testing.T, timings pipeline.Timings) (*apiClient, *dashboard.Service) {
	t.Helper()
	store, err := storage.Open(storage.MemoryDSN)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	data, err := seed.Load()
	if err != nil {
		t.Fatalf("loading seed: %v", err)
	}
	if err := store.Seed(data); err != nil {
		t.Fatalf("seeding: %v", err)
	}
	bus := events.NewBus(256)
	svc := dashboard.New(store, bus, data.Analytics, dashboard.Config{Timings: timings})
	hub := ws.NewHub(bus, svc, "")
	srv := httptest.NewServer(api.NewRouter(api.Deps{Dashboard: svc, Bus: bus, Hub: hub}))

	t.Cleanup(func() {
		hub.Close()
		srv.Close()
		svc.Close()
		bus.Close()
		store.Close()
	})
	return &apiClient{baseURL: srv.URL, httpClient: srv.Client()}, svc
}

func TestAskQuestion(t *testing.T) {
	status, _ := captureOutput(t)
	client, _ := newLiveServer(t, pipeline.Timings{
		PlanningTick:  time.Millisecond,
		ExecutionTick: time.Millisecond,
		Handoff:       time.Millisecond,
		Response:      time.Millisecond,
	})

	askCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	answer, err := askQuestion(askCtx, client, "What is our company vision?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(answer, "Company Vision 2025") {
		t.Errorf("answer = %q", answer)
	}
	if !strings.Contains(status.String(), "→ ") {
		t.Errorf("expected intermediate steps on the status output, got %q", status.String())
	}
}

func TestAskQuestion_Busy(t *testing.T) {
	captureOutput(t)
	client, svc := newLiveServer(t, pipeline.Timings{
		PlanningTick:  time.Hour,
		ExecutionTick: time.Hour,
		Handoff:       time.Hour,
		Response:      time.Hour,
	})

	if sub := svc.SubmitQuery("first"); sub.Status != dashboard.SubmitAccepted {
		t.Fatalf("first query = %s, want accepted", sub.Status)
	}

	askCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := askQuestion(askCtx, client, "second")
	if !errors.Is(err, errBusy) {
		t.Fatalf("error = %v, want errBusy", err)
	}
}

func chatFrame(t *testing.T, runID, stage, text string) ws.Frame {
	t.Helper()
	f, err := ws.NewEventFrame(string(events.EventChatMessage), storage.ChatMessage{
		Author: string(pipeline.AuthorAgent),
		Text:   text,
		Stage:  stage,
		RunID:  runID,
	})
	if err != nil {
		t.Fatalf("NewEventFrame: %v", err)
	}
	return f
}

func TestAnswerWatcher_OnlyReportsOwnRun(t *testing.T) {
	status, _ := captureOutput(t)

	accepted, err := ws.NewResponseFrame("req-1", true, dashboard.Submission{Status: dashboard.SubmitAccepted, RunID: "run-new"}, "")
	if err != nil {
		t.Fatalf("NewResponseFrame: %v", err)
	}

	// The previous run's answer lands before the response frame, and
	// again after it.
	frames := []ws.Frame{
		chatFrame(t, "run-old", pipeline.ResponseLabel, "stale answer"),
		chatFrame(t, "run-new", "Planning", "planned"),
		accepted,
		chatFrame(t, "run-old", pipeline.ResponseLabel, "stale answer"),
		chatFrame(t, "run-new", "Execution", "executed"),
		chatFrame(t, "run-new", pipeline.ResponseLabel, "fresh answer"),
	}

	w := &answerWatcher{reqID: "req-1"}
	for i, f := range frames {
		answer, done, err := w.handle(f)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if !done {
			continue
		}
		if i != len(frames)-1 {
			t.Fatalf("finished early at frame %d with %q", i, answer)
		}
		if answer != "fresh answer" {
			t.Fatalf("answer = %q, want %q", answer, "fresh answer")
		}
		if out := status.String(); !strings.Contains(out, "planned") || !strings.Contains(out, "executed") {
			t.Errorf("expected both steps reported, got %q", out)
		}
		return
	}
	t.Fatal("watcher never produced an answer")
}

func TestAnswerWatcher_IgnoresOtherRequests(t *testing.T) {
	other, err := ws.NewResponseFrame("req-other", true, dashboard.Submission{Status: dashboard.SubmitBusy}, "")
	if err != nil {
		t.Fatalf("NewResponseFrame: %v", err)
	}
	w := &answerWatcher{reqID: "req-1"}
	if _, done, err := w.handle(other); done || err != nil {
		t.Fatalf("handle(other) = done:%v err:%v, want neither", done, err)
	}
	if w.runID != "" {
		t.Fatalf("runID = %q, want empty", w.runID)
	}
}

func TestAskQuestion_AfterPreviousRun(t *testing.T) {
	captureOutput(t)
	client, svc := newLiveServer(t, pipeline.Timings{
		PlanningTick:  time.Millisecond,
		ExecutionTick: time.Millisecond,
		Handoff:       time.Millisecond,
		Response:      time.Millisecond,
	})

	askCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for i := 0; i < 5; i++ {
		// The previous answer is sent just before the pipeline frees up.
		for svc.SubmitQuery("what is our vision").Status != dashboard.SubmitAccepted {
			if askCtx.Err() != nil {
				t.Fatalf("iteration %d: pipeline never freed up", i)
			}
		}
		var answer string
		var err error
		for {
			answer, err = askQuestion(askCtx, client, "tell me about onboarding")
			if !errors.Is(err, errBusy) {
				break
			}
		}
		if err != nil {
			t.Fatalf("iteration %d: askQuestion: %v", i, err)
		}
		if want := pipeline.GenerateResponse("onboarding"); answer != want {
			t.Fatalf("iteration %d: answer = %q, want the onboarding response", i, answer)
		}
	}
}

func TestAskQuestion_Blank(t *testing.T) {
	if _, err := askQuestion(ctx, &apiClient{baseURL: "http://127.0.0.1:1"}, "   "); err == nil {
		t.Fatal("expected error for a blank question")
	}
}

func TestAskCommand_MissingArgs(t *testing.T) {
	captureOutput(t)
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"ask"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected error when no question is given")
	}
}

func TestPrintTable(t *testing.T) {
	_, data := captureOutput(t)

	printTable([]string{"id", "name"}, documentRows([]storage.Document{
		{ID: "doc1", Name: "Employee Onboarding SOP.pdf"},
	}))

	lines := strings.Split(strings.TrimSpace(data.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %q", data.String())
	}
	if !strings.HasPrefix(lines[0], "ID") || !strings.Contains(lines[0], "NAME") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "doc1") {
		t.Errorf("row = %q", lines[1])
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4000
	cfg.Pipeline.AgentName = "Strategy Analyst"

	keys := config.ShowAll(cfg)
	if len(keys) == 0 {
		t.Fatal("expected non-empty keys from ShowAll")
	}

	found := false
	for _, k := range keys {
		if k.Key == "server.port" && k.Value == "4000" {
			found = true
		}
	}
	if !found {
		t.Error("expected to find server.port=4000 in ShowAll output")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]string{
		"debug":   "DEBUG",
		"DEBUG":   "DEBUG",
		"warn":    "WARN",
		"warning": "WARN",
		"error":   "ERROR",
		"info":    "INFO",
		"bogus":   "INFO",
	}
	for in, want := range tests {
		if got := parseLogLevel(in).String(); got != want {
			t.Errorf("parseLogLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestDashboardConfig(t *testing.T) {
	cfg := config.Config{}
	cfg.Pipeline.PlanningTick = time.Millisecond
	cfg.Pipeline.HandoffDelay = 2 * time.Millisecond
	cfg.Pipeline.AgentName = "Ops"
	cfg.Activity.Capacity = 7
	cfg.Ingest.MaxProcessingDelay = time.Second

	dc := dashboardConfig(cfg)
	if dc.Timings.PlanningTick != time.Millisecond || dc.Timings.Handoff != 2*time.Millisecond {
		t.Errorf("timings = %+v", dc.Timings)
	}
	if dc.AgentName != "Ops" || dc.ActivityCapacity != 7 || dc.MaxProcessingDelay != time.Second {
		t.Errorf("config = %+v", dc)
	}
}

func TestPIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "iedash.pid")
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	pid, err := readPIDFile(path)
	if err != nil {
		t.Fatalf("readPIDFile: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}
	removePIDFile(path)
	if _, err := readPIDFile(path); err == nil {
		t.Error("expected error after removal")
	}
}

func TestOpenStore_SeedsOnce(t *testing.T) {
	dir := t.TempDir()
	data, err := seed.Load()
	if err != nil {
		t.Fatalf("loading seed: %v", err)
	}

	store, err := openStore(dir, data)
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	if err := store.SetAgentEnabled("operations-agent", true); err != nil {
		t.Fatalf("SetAgentEnabled: %v", err)
	}
	store.Close()

	store, err = openStore(dir, data)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	defer store.Close()

	a, err := store.GetAgent("operations-agent")
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if !a.Enabled {
		t.Error("reopening the store re-seeded it")
	}
}
