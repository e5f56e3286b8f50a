package observer

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/anime-shed/blur-inspector-go/pkg/models"
)

type recordingObserver struct {
	name   string
	events []ScanEvent
}

func (r *recordingObserver) OnEvent(ctx context.Context, event ScanEvent) {
	r.events = append(r.events, event)
}

func (r *recordingObserver) GetObserverName() string {
	return r.name
}

type panickingObserver struct{}

func (panickingObserver) OnEvent(ctx context.Context, event ScanEvent) {
	panic("boom")
}

func (panickingObserver) GetObserverName() string {
	return "panicking"
}

func TestEventPublisher_DeliversInOrder(t *testing.T) {
	pub := NewEventPublisher()
	rec := &recordingObserver{name: "rec"}
	pub.Subscribe(rec)

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		pub.NotifyObservers(ctx, ScanEvent{EventType: ChunkCompleted, Chunk: i})
	}

	if len(rec.events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(rec.events))
	}
	for i, ev := range rec.events {
		if ev.Chunk != i+1 {
			t.Errorf("Expected chunk %d at position %d, got %d", i+1, i, ev.Chunk)
		}
		if ev.Timestamp.IsZero() {
			t.Error("Expected timestamp to be filled in")
		}
	}
}

func TestEventPublisher_RunIDFromContext(t *testing.T) {
	pub := NewEventPublisher()
	rec := &recordingObserver{name: "rec"}
	pub.Subscribe(rec)

	pub.NotifyObservers(WithRunID(context.Background(), "run-1"), ScanEvent{EventType: ScanStarted})
	pub.NotifyObservers(WithRunID(context.Background(), "run-1"), ScanEvent{EventType: ScanStarted, RunID: "explicit"})

	if rec.events[0].RunID != "run-1" {
		t.Errorf("Expected run id from context, got %q", rec.events[0].RunID)
	}
	if rec.events[1].RunID != "explicit" {
		t.Errorf("Expected explicit run id to win, got %q", rec.events[1].RunID)
	}
}

func TestEventPublisher_PanicIsContained(t *testing.T) {
	pub := NewEventPublisher()
	rec := &recordingObserver{name: "rec"}
	pub.Subscribe(panickingObserver{})
	pub.Subscribe(rec)

	pub.NotifyObservers(context.Background(), ScanEvent{EventType: ScanStarted})

	if len(rec.events) != 1 {
		t.Errorf("Expected later observer to still be notified, got %d events", len(rec.events))
	}
}

func TestEventPublisher_Unsubscribe(t *testing.T) {
	pub := NewEventPublisher()
	rec := &recordingObserver{name: "rec"}
	pub.Subscribe(rec)
	pub.Unsubscribe(rec)

	pub.NotifyObservers(context.Background(), ScanEvent{EventType: ScanStarted})

	if len(rec.events) != 0 {
		t.Errorf("Expected no events after unsubscribe, got %d", len(rec.events))
	}
}

func TestMetricsObserver(t *testing.T) {
	m := NewMetricsObserver()
	ctx := context.Background()

	m.OnEvent(ctx, ScanEvent{EventType: ScanStarted})
	m.OnEvent(ctx, ScanEvent{EventType: ChunkCompleted, RSSBytes: 100})
	m.OnEvent(ctx, ScanEvent{EventType: ChunkCompleted, RSSBytes: 50})
	m.OnEvent(ctx, ScanEvent{EventType: ImageFailed})
	m.OnEvent(ctx, ScanEvent{EventType: ImageDegenerate})
	m.OnEvent(ctx, ScanEvent{EventType: ScanCompleted, Total: 7})
	m.OnEvent(ctx, ScanEvent{EventType: PermissionChallenged})
	m.OnEvent(ctx, ScanEvent{EventType: DeletionCompleted, Deletion: &models.DeletionReport{Deleted: 3}})

	got := m.GetMetrics()
	checks := map[string]interface{}{
		"scans_started":         int64(1),
		"scans_completed":       int64(1),
		"images_scored":         int64(7),
		"images_failed":         int64(1),
		"images_degenerate":     int64(1),
		"images_deleted":        int64(3),
		"permission_challenges": int64(1),
		"peak_rss_bytes":        uint64(100),
	}
	for k, want := range checks {
		if got[k] != want {
			t.Errorf("%s = %v, want %v", k, got[k], want)
		}
	}
}

func TestLoggingObserver(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	obs := NewLoggingObserver(logger)
	obs.OnEvent(context.Background(), ScanEvent{
		EventType:    ImageFailed,
		RunID:        "run-9",
		Handle:       "a.jpg",
		ErrorKind:    "decode",
		ErrorMessage: "bad header",
	})

	line := strings.TrimSpace(buf.String())
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("Expected JSON log line, got %q: %v", line, err)
	}
	if entry["run_id"] != "run-9" || entry["image"] != "a.jpg" || entry["error_kind"] != "decode" {
		t.Errorf("Unexpected log fields: %v", entry)
	}
	if entry["level"] != "warning" {
		t.Errorf("Expected warning level, got %v", entry["level"])
	}
}

func TestProgressObserver(t *testing.T) {
	var fractions []float64
	var completed []models.ImageResult
	var kinds []string

	obs := NewProgressObserver("progress", ProgressFuncs{
		Progress: func(f float64) { fractions = append(fractions, f) },
		Complete: func(r []models.ImageResult) { completed = r },
		Error:    func(kind string, err error) { kinds = append(kinds, kind) },
	})
	ctx := context.Background()

	obs.OnEvent(ctx, ScanEvent{EventType: ChunkCompleted, Progress: 0.5})
	obs.OnEvent(ctx, ScanEvent{EventType: ImageFailed, ErrorKind: "decode", ErrorMessage: "x"})
	obs.OnEvent(ctx, ScanEvent{EventType: ChunkCompleted, Progress: 1})
	obs.OnEvent(ctx, ScanEvent{EventType: ScanCompleted, Results: []models.ImageResult{{ID: "a"}}})

	if len(fractions) != 2 || fractions[0] != 0.5 || fractions[1] != 1 {
		t.Errorf("Unexpected progress: %v", fractions)
	}
	if len(completed) != 1 || completed[0].ID != "a" {
		t.Errorf("Unexpected completion: %v", completed)
	}
	if len(kinds) != 1 || kinds[0] != "decode" {
		t.Errorf("Unexpected errors: %v", kinds)
	}
}
