package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayusman/mudra/internal/eventlog"
	"github.com/ayusman/mudra/internal/features"
	"github.com/ayusman/mudra/internal/intent"
	"github.com/ayusman/mudra/internal/oracle"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewStore_CreatesDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")

	if _, err := os.Stat(dbPath); !os.IsNotExist(err) {
		t.Fatal("database file should not exist before creating store")
	}

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Fatal("database file should exist after creating store")
	}
	if s.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", s.Path(), dbPath)
	}
}

func TestNewStore_RunsMigrations(t *testing.T) {
	s := newTestStore(t)

	for _, table := range []string{"events", "annotations", "bindings", "settings"} {
		var name string
		err := s.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q should exist after migrations: %v", table, err)
		}
	}

	for _, idx := range []string{"idx_events_created_at", "idx_annotations_event_id", "idx_bindings_intent"} {
		var name string
		err := s.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='index' AND name=?", idx,
		).Scan(&name)
		if err != nil {
			t.Errorf("index %q should exist after migrations: %v", idx, err)
		}
	}
}

func TestNewStore_ReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Settings().Set(SettingMode, "async"); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = New(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if v, _ := s.Settings().Get(SettingMode); v != "async" {
		t.Errorf("mode after reopen = %q, want async", v)
	}
}

func TestStore_Close(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Errorf("close should not return error: %v", err)
	}

	if _, err := s.DB().Exec("SELECT 1"); err == nil {
		t.Error("DB operations should fail after close")
	}
}

func TestStore_Pragmas(t *testing.T) {
	s := newTestStore(t)

	tests := []struct {
		pragma string
		want   string
	}{
		{"foreign_keys", "1"},
		{"busy_timeout", "5000"},
		{"journal_mode", "wal"},
	}
	for _, tt := range tests {
		t.Run(tt.pragma, func(t *testing.T) {
			var got string
			if err := s.DB().QueryRow("PRAGMA " + tt.pragma).Scan(&got); err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("PRAGMA %s = %q, want %q", tt.pragma, got, tt.want)
			}
		})
	}
}

func TestBindingRepository_CRUD(t *testing.T) {
	s := newTestStore(t)
	repo := s.Bindings()

	b := &Binding{
		Intent:     intent.SwitchRight,
		PluginName: "keyboard",
		ActionName: "SWITCH_RIGHT",
		Enabled:    true,
	}
	if err := repo.Create(b); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.ID == "" {
		t.Fatal("Create should assign an ID")
	}

	got, err := repo.GetByID(b.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Intent != intent.SwitchRight || got.PluginName != "keyboard" || !got.Enabled {
		t.Errorf("GetByID = %+v", got)
	}
	if string(got.Config) != "{}" {
		t.Errorf("empty config stored as %q, want {}", got.Config)
	}

	got.ActionName = "next_track"
	got.PluginName = "media-control"
	got.Config = json.RawMessage(`{"repeat":2}`)
	if err := repo.Update(got); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ = repo.GetByID(b.ID)
	if got.ActionName != "next_track" || string(got.Config) != `{"repeat":2}` {
		t.Errorf("after update = %+v", got)
	}

	if err := repo.Delete(b.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.GetByID(b.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID after delete = %v, want ErrNotFound", err)
	}
	if err := repo.Delete(b.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
	if err := repo.Update(&Binding{ID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update missing = %v, want ErrNotFound", err)
	}
}

func TestBindingRepository_ListByIntent(t *testing.T) {
	s := newTestStore(t)
	repo := s.Bindings()

	seed := []*Binding{
		{ID: "a", Intent: intent.OpenMenu, PluginName: "keyboard", ActionName: "OPEN_MENU", Enabled: true},
		{ID: "b", Intent: intent.OpenMenu, PluginName: "media-control", ActionName: "play_pause", Enabled: false},
		{ID: "c", Intent: intent.CloseMenu, PluginName: "keyboard", ActionName: "CLOSE_MENU", Enabled: true},
	}
	for _, b := range seed {
		if err := repo.Create(b); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		in   intent.Intent
		want []string
	}{
		{intent.OpenMenu, []string{"a"}},
		{intent.CloseMenu, []string{"c"}},
		{intent.SwitchLeft, nil},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			got, err := repo.ListByIntent(tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d bindings, want %d", len(got), len(tt.want))
			}
			for i, b := range got {
				if b.ID != tt.want[i] {
					t.Errorf("binding %d = %s, want %s", i, b.ID, tt.want[i])
				}
			}
		})
	}

	all, err := repo.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("List returned %d, want 3", len(all))
	}
}

func TestSettingsRepository(t *testing.T) {
	s := newTestStore(t)
	repo := s.Settings()

	if _, err := repo.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
	if v, err := repo.GetOr(SettingEnabled, "true"); err != nil || v != "true" {
		t.Errorf("GetOr default = %q, %v", v, err)
	}
	if err := repo.Set(SettingEnabled, "false"); err != nil {
		t.Fatal(err)
	}
	if err := repo.Set(SettingEnabled, "true"); err != nil {
		t.Fatal(err)
	}
	if v, _ := repo.Get(SettingEnabled); v != "true" {
		t.Errorf("Get after overwrite = %q", v)
	}
}

func testRecord(id string, outcome string, at time.Time) eventlog.Record {
	return eventlog.Record{
		EventID:         id,
		ProposedIntent:  intent.SwitchLeft,
		ApprovedIntent:  intent.SwitchLeft,
		Trigger:         "sweep",
		Hand:            "Right",
		LocalConfidence: 0.8,
		Mode:            "sync",
		Outcome:         outcome,
		PolicyTag:       "sync_verified",
		Timestamps: map[string]time.Time{
			eventlog.StageProposed: at.Add(-100 * time.Millisecond),
			eventlog.StageTerminal: at,
		},
		LatenciesMS: map[string]float64{"end_to_end": 100},
	}
}

func TestEventRepository_InsertGetList(t *testing.T) {
	s := newTestStore(t)
	repo := s.Events()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := testRecord("e1", "executed", base)
	first.Verdict = &oracle.Verdict{
		Version: oracle.SchemaVersion, ProposedIntent: intent.SwitchLeft, FinalIntent: intent.SwitchLeft,
		Intentional: true, Confidence: 0.9, Reason: oracle.ReasonIntentionalCommand,
	}
	second := testRecord("e2", "rejected", base.Add(time.Second))
	second.ProposedIntent = intent.OpenMenu
	second.Error = "boom"
	second.ErrorStage = eventlog.ErrorStageExecution

	for _, rec := range []eventlog.Record{first, second} {
		if err := repo.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert %s: %v", rec.EventID, err)
		}
	}
	if err := repo.Insert(ctx, first); err == nil {
		t.Error("duplicate Insert should fail")
	}

	got, err := repo.Get(ctx, "e1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Verdict == nil || got.Verdict.FinalIntent != intent.SwitchLeft || got.PolicyTag != "sync_verified" {
		t.Errorf("Get e1 = %+v", got)
	}
	if _, err := repo.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing = %v", err)
	}

	tests := []struct {
		name   string
		filter EventFilter
		want   []string
	}{
		{"all newest first", EventFilter{}, []string{"e2", "e1"}},
		{"by outcome", EventFilter{Outcome: "executed"}, []string{"e1"}},
		{"by intent", EventFilter{Intent: intent.OpenMenu}, []string{"e2"}},
		{"limit", EventFilter{Limit: 1}, []string{"e2"}},
		{"since", EventFilter{Since: base.Add(500 * time.Millisecond)}, []string{"e2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(recs) != len(tt.want) {
				t.Fatalf("got %d records, want %d", len(recs), len(tt.want))
			}
			for i, r := range recs {
				if r.EventID != tt.want[i] {
					t.Errorf("record %d = %s, want %s", i, r.EventID, tt.want[i])
				}
			}
		})
	}

	counts, err := repo.Outcomes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts["executed"] != 1 || counts["rejected"] != 1 {
		t.Errorf("Outcomes = %v", counts)
	}
}

func TestEventSink_AnnotationsAndExport(t *testing.T) {
	s := newTestStore(t)
	sink := s.EventSink()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	vec := &features.Vector{SwipeDisplacement: 0.2, FingersExtended: 5, GestureType: intent.SwitchLeft}

	verified := testRecord("sync", "executed", base)
	verified.Features = vec
	verified.Verdict = &oracle.Verdict{FinalIntent: intent.SwitchLeft, Intentional: true, Confidence: 0.9, Reason: oracle.ReasonIntentionalCommand}

	optimistic := testRecord("async", "executed", base.Add(time.Second))
	optimistic.Mode = "async"
	optimistic.PolicyTag = "async_optimistic"
	optimistic.Features = vec

	unlabelled := testRecord("bare", "timed_out", base.Add(2*time.Second))
	unlabelled.Features = vec
	unlabelled.Verdict = nil

	noFeatures := testRecord("nofeat", "rejected", base.Add(3*time.Second))

	for _, rec := range []eventlog.Record{verified, optimistic, unlabelled, noFeatures} {
		if err := sink.WriteRecord(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	label := eventlog.Annotation{
		EventID: "async", Kind: eventlog.AnnotationLabel, Timestamp: base.Add(2 * time.Second),
		Verdict: &oracle.Verdict{FinalIntent: intent.None, Intentional: false, Reason: oracle.ReasonAccidentalMotion},
		Detail:  "disagrees",
	}
	stale := eventlog.Annotation{EventID: "bare", Kind: eventlog.AnnotationStaleVerifyFail, Error: "connection reset"}
	for _, ann := range []eventlog.Annotation{label, stale} {
		if err := sink.WriteAnnotation(ctx, ann); err != nil {
			t.Fatal(err)
		}
	}
	if err := sink.Close(); err != nil {
		t.Errorf("sink Close: %v", err)
	}

	anns, err := s.Events().Annotations(ctx, "async")
	if err != nil {
		t.Fatal(err)
	}
	if len(anns) != 1 || anns[0].Detail != "disagrees" || anns[0].Verdict.FinalIntent != intent.None {
		t.Errorf("Annotations(async) = %+v", anns)
	}

	var samples []FeatureSample
	err = s.Events().ExportFeatures(ctx, func(fs FeatureSample) error {
		samples = append(samples, fs)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 3 {
		t.Fatalf("exported %d samples, want 3", len(samples))
	}

	if samples[0].EventID != "sync" || samples[0].LabelIntent == nil || *samples[0].LabelIntent != intent.SwitchLeft {
		t.Errorf("verified sample = %+v", samples[0])
	}
	if samples[1].EventID != "async" || samples[1].LabelIntent == nil || *samples[1].LabelIntent != intent.None {
		t.Errorf("label annotation should label async sample: %+v", samples[1])
	}
	if samples[1].Intentional == nil || *samples[1].Intentional {
		t.Errorf("async sample intentional = %v, want false", samples[1].Intentional)
	}
	if samples[2].LabelIntent != nil || samples[2].Intentional != nil {
		t.Errorf("unlabelled sample = %+v", samples[2])
	}
	if samples[0].Features.FingersExtended != 5 {
		t.Errorf("features not decoded: %+v", samples[0].Features)
	}

	stop := errors.New("stop")
	n := 0
	err = s.Events().ExportFeatures(ctx, func(FeatureSample) error {
		n++
		return stop
	})
	if !errors.Is(err, stop) || n != 1 {
		t.Errorf("callback error should stop export: err=%v n=%d", err, n)
	}
}
