package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/queue/internal/config"
	"github.com/ehr/queue/internal/domain/queue"
	"github.com/ehr/queue/internal/platform/db"
	"github.com/ehr/queue/internal/platform/websocket"
)

// memRepo is an in-memory queue.PatientRepository.
type memRepo struct {
	rows map[int]*queue.Record
}

func newMemRepo() *memRepo {
	return &memRepo{rows: make(map[int]*queue.Record)}
}

func (m *memRepo) Insert(_ context.Context, p *queue.Patient) error {
	m.rows[p.ID] = &queue.Record{Patient: *p, Status: queue.StatusQueued, CreatedAt: time.Now()}
	return nil
}

func (m *memRepo) MarkServed(_ context.Context, id int, at time.Time) error {
	r, ok := m.rows[id]
	if !ok || r.Status != queue.StatusQueued {
		return queue.ErrNotFound
	}
	r.Status = queue.StatusServed
	r.ServedAt = &at
	return nil
}

func (m *memRepo) ListQueued(_ context.Context) ([]queue.Patient, error) {
	var out []queue.Patient
	for _, r := range m.rows {
		if r.Status == queue.StatusQueued {
			out = append(out, r.Patient)
		}
	}
	return out, nil
}

func (m *memRepo) ListServed(_ context.Context, limit, offset int) ([]*queue.Record, int, error) {
	var out []*queue.Record
	for _, r := range m.rows {
		if r.Status == queue.StatusServed {
			out = append(out, r)
		}
	}
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *memRepo) ClearQueued(_ context.Context) (int64, error) {
	var n int64
	for id, r := range m.rows {
		if r.Status == queue.StatusQueued {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

func (m *memRepo) DeleteServed(_ context.Context, id int) (bool, error) {
	r, ok := m.rows[id]
	if !ok || r.Status != queue.StatusServed {
		return false, nil
	}
	delete(m.rows, id)
	return true, nil
}

func (m *memRepo) Delete(_ context.Context, id int) error {
	delete(m.rows, id)
	return nil
}

func (m *memRepo) ListAll(_ context.Context) ([]*queue.Record, error) {
	var out []*queue.Record
	for _, r := range m.rows {
		out = append(out, r)
	}
	return out, nil
}

func (m *memRepo) FindByName(_ context.Context, name string, limit int) ([]*queue.Record, error) {
	var out []*queue.Record
	for _, r := range m.rows {
		if len(out) < limit && strings.Contains(strings.ToLower(r.Name), strings.ToLower(name)) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRepo) MaxID(_ context.Context) (int, error) {
	max := 0
	for id := range m.rows {
		if id > max {
			max = id
		}
	}
	return max, nil
}

func newTestConsole() (*console, *bytes.Buffer) {
	var out bytes.Buffer
	svc := queue.NewService(newMemRepo(), zerolog.Nop())
	return &console{svc: svc, out: &out}, &out
}

// ---------------------------------------------------------------------------
// console
// ---------------------------------------------------------------------------

func TestConsole_AddAndServe(t *testing.T) {
	c, out := newTestConsole()
	ctx := context.Background()

	if err := c.add(ctx, "Ada", 40, queue.PriorityMedium); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.add(ctx, "Bob", 70, queue.PriorityHigh); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.serve(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "Patient added successfully with ID: 1\n" +
		"Patient added successfully with ID: 2\n" +
		"Served patient: Bob (ID: 2)\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestConsole_AddRejectsInvalid(t *testing.T) {
	c, out := newTestConsole()

	c.add(context.Background(), "Ada", 151, queue.PriorityHigh)
	if got := out.String(); got != "Error: Age must be between 1 and 150.\n" {
		t.Errorf("unexpected output %q", got)
	}

	out.Reset()
	c.add(context.Background(), "Ada", 30, 4)
	if got := out.String(); got != "Error: Priority must be 1, 2, or 3.\n" {
		t.Errorf("unexpected output %q", got)
	}
	if c.svc.Size() != 0 {
		t.Error("invalid patients must not be admitted")
	}
}

func TestConsole_ServeEmpty(t *testing.T) {
	c, out := newTestConsole()
	if err := c.serve(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.String() != "No patients in queue.\n" {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestConsole_Display(t *testing.T) {
	c, out := newTestConsole()
	ctx := context.Background()
	c.svc.AdmitPatient(ctx, "Low Lou", 30, queue.PriorityLow)
	c.svc.AdmitPatient(ctx, "High Hal", 30, queue.PriorityHigh)

	c.display()
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected title, header and two rows, got %q", out.String())
	}
	if !strings.HasPrefix(lines[2], "1") || !strings.Contains(lines[2], "Low") {
		t.Errorf("display should keep admission order, got %q", lines[2])
	}

	out.Reset()
	c.sort(ctx)
	if out.String() != "Queue sorted by priority.\n" {
		t.Errorf("unexpected sort output %q", out.String())
	}

	out.Reset()
	c.display()
	lines = strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected title, header and two rows, got %q", out.String())
	}
	if !strings.Contains(lines[2], "High Hal") {
		t.Errorf("expected High Hal first after sort, got %q", out.String())
	}
}

func TestConsole_ServedAndRemove(t *testing.T) {
	c, out := newTestConsole()
	ctx := context.Background()
	c.svc.AdmitPatient(ctx, "Ada", 30, queue.PriorityHigh)
	c.svc.ServeNext(ctx)

	if err := c.served(ctx, 20, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "Served patients (1 total):") || !strings.Contains(out.String(), "Ada") {
		t.Errorf("unexpected output %q", out.String())
	}

	out.Reset()
	c.removeServed(ctx, 1)
	c.removeServed(ctx, 1)
	want := "Patient with ID 1 removed from served list.\n" +
		"Patient with ID 1 not found in served list.\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestConsole_Menu(t *testing.T) {
	c, out := newTestConsole()

	input := strings.Join([]string{
		"1", "Ada Lovelace", "36", "2",
		// rejected: empty name, bad age, bad priority
		"1", "",
		"1", "Bob", "abc",
		"1", "Bob", "50", "7",
		"9",
		"2",
		"2",
		"5",
		"6",
	}, "\n") + "\n"

	if err := c.menu(context.Background(), strings.NewReader(input)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"--- Patient Queue Menu ---",
		"Patient added successfully with ID: 1",
		"Error: Name cannot be empty.",
		"Error: Invalid age (must be 1-150).",
		"Error: Invalid priority (must be 1, 2, or 3).",
		"Invalid choice!",
		"Served patient: Ada Lovelace (ID: 1)",
		"No patients in queue.",
		"Queue cleared (0 removed).",
		"Goodbye!",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("menu output missing %q", want)
		}
	}
}

func TestConsole_MenuStopsAtEOF(t *testing.T) {
	c, out := newTestConsole()
	if err := c.menu(context.Background(), strings.NewReader("4\n")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(out.String(), "Goodbye!") {
		t.Error("EOF should end the loop without the exit message")
	}
}

// ---------------------------------------------------------------------------
// server wiring
// ---------------------------------------------------------------------------

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		Port:           "8000",
		Env:            "test",
		DBSchema:       "public",
		CORSOrigins:    []string{"http://localhost:3000"},
		LogLevel:       "info",
		BodyLimit:      "64K",
		RequestTimeout: 5 * time.Second,
	}
}

func TestNewEcho_Routes(t *testing.T) {
	svc := queue.NewService(newMemRepo(), zerolog.Nop())
	e := newEcho(testConfig(), zerolog.Nop(), svc, okPinger{}, websocket.NewHub(zerolog.Nop()))

	body := `{"name":"Ada","age":36,"priority":1}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/patients", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected request id header")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/queue", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Queue []queue.Patient `json:"queue"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Queue) != 1 || resp.Queue[0].Name != "Ada" {
		t.Errorf("unexpected queue: %s", rec.Body.String())
	}

	for _, path := range []string{"/health", "/health/db"} {
		req = httptest.NewRequest(http.MethodGet, path, nil)
		rec = httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}

func TestRunServer_ConfigErrorIsReturned(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	err := runServer()
	if err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("expected missing DATABASE_URL error, got %v", err)
	}
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	cfg := testConfig()
	cfg.LogLevel = "warn"
	logger := newLogger(&buf, cfg)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("unexpected log output %q", buf.String())
	}
}

// ---------------------------------------------------------------------------
// migrations
// ---------------------------------------------------------------------------

func TestMigrationsFS_Embedded(t *testing.T) {
	names, err := fs.Glob(migrationsFS(""), "*.sql")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(names) < 2 || names[0] != "001_patients.sql" {
		t.Errorf("unexpected embedded migrations: %v", names)
	}
}

func TestMigrationsFS_Dir(t *testing.T) {
	dir := t.TempDir()
	names, err := fs.Glob(migrationsFS(dir), "*.sql")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("expected empty dir, got %v", names)
	}
}

func TestPrintMigrationStatus(t *testing.T) {
	var buf bytes.Buffer
	at := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)
	printMigrationStatus(&buf, "queue", []db.MigrationStatus{
		{Version: 1, Name: "patients", Applied: true, AppliedAt: &at},
		{Version: 2, Name: "patient_indexes"},
	})

	out := buf.String()
	if !strings.Contains(out, "Migration status for schema: queue") {
		t.Errorf("missing heading: %q", out)
	}
	if !strings.Contains(out, "2026-10-19 09:30:00") {
		t.Errorf("missing applied time: %q", out)
	}
	if !strings.Contains(out, "pending") {
		t.Errorf("missing pending row: %q", out)
	}
}

// ---------------------------------------------------------------------------
// hubPublisher
// ---------------------------------------------------------------------------

func subscribe(hub *websocket.Hub, topics ...string) *websocket.Client {
	c := &websocket.Client{ID: topics[0], Topics: topics, Send: make(chan []byte, 8)}
	hub.Register(c)
	return c
}

func drain(c *websocket.Client) []websocket.Event {
	var out []websocket.Event
	for {
		select {
		case msg := <-c.Send:
			var ev websocket.Event
			json.Unmarshal(msg, &ev)
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestHubPublisher_Topics(t *testing.T) {
	hub := websocket.NewHub(zerolog.Nop())
	queueSub := subscribe(hub, websocket.TopicQueue)
	servedSub := subscribe(hub, websocket.TopicServed)

	svc := queue.NewService(newMemRepo(), zerolog.Nop())
	svc.SetPublisher(hubPublisher{hub: hub})
	ctx := context.Background()

	svc.AdmitPatient(ctx, "Ada", 36, queue.PriorityHigh)
	svc.ServeNext(ctx)
	svc.RemoveServed(ctx, 1)

	qe := drain(queueSub)
	if len(qe) != 2 || qe[0].Type != queue.ChangeAdmitted || qe[1].Type != queue.ChangeServed {
		t.Fatalf("unexpected queue topic events: %+v", qe)
	}
	if qe[0].PatientID != 1 || qe[0].Topic != websocket.TopicQueue {
		t.Errorf("unexpected admitted event: %+v", qe[0])
	}

	var ch queue.Change
	if err := json.Unmarshal(qe[0].Data, &ch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ch.Queue) != 1 || ch.Queue[0].Name != "Ada" {
		t.Errorf("expected queue snapshot in event data, got %s", qe[0].Data)
	}

	se := drain(servedSub)
	if len(se) != 2 || se[0].Type != queue.ChangeServed || se[1].Type != queue.ChangeServedRemoved {
		t.Fatalf("unexpected served topic events: %+v", se)
	}
}
