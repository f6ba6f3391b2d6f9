package e2e

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/eventlog"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/intent"
	"github.com/ayusman/mudra/internal/lifecycle"
	"github.com/ayusman/mudra/internal/oracle"
	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/server"
	"github.com/ayusman/mudra/internal/server/api"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/pkg/logger"
	"github.com/ayusman/mudra/testdata"
)

// installKeyboard writes a fake keyboard plugin that appends each request
// to calls.log.
func installKeyboard(t *testing.T, root string) string {
	t.Helper()
	dir := filepath.Join(root, "keyboard")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	manifest := plugin.Manifest{
		Name:       "keyboard",
		Version:    "1.0.0",
		Executable: "run.sh",
		Actions:    []string{"OPEN_MENU", "CLOSE_MENU", "SWITCH_RIGHT", "SWITCH_LEFT"},
	}
	data, _ := json.Marshal(manifest)
	if err := os.WriteFile(filepath.Join(dir, "plugin.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}
	calls := filepath.Join(root, "calls.log")
	script := "#!/bin/sh\ncat >> \"" + calls + "\"\necho >> \"" + calls + "\"\necho '{\"success\":true}'\n"
	if err := os.WriteFile(filepath.Join(dir, "run.sh"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return calls
}

func sweep(start time.Time, dx float64) []testdata.Step {
	hand := testdata.SizedPalm(0.2)
	if dx < 0 {
		hand = hand.Translate(0.2, 0)
	} else {
		hand = hand.Translate(-0.2, 0)
	}
	return testdata.NewSequence(start, 20*time.Millisecond).
		Frames(3, hand).
		Move(300*time.Millisecond, hand, dx, 0).
		Steps()
}

func getJSON(t *testing.T, client *http.Client, url string, dest any) {
	t.Helper()
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		t.Fatalf("GET %s: decode: %v", url, err)
	}
}

func TestE2E_CompleteWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}
	if runtime.GOOS == "windows" {
		t.Skip("plugins are shell scripts")
	}

	tmpDir := t.TempDir()
	s, err := store.New(filepath.Join(tmpDir, "data.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	pluginRoot := filepath.Join(tmpDir, "plugins")
	calls := installKeyboard(t, pluginRoot)
	plugins := plugin.NewManager(pluginRoot)
	if err := plugins.Discover(); err != nil {
		t.Fatal(err)
	}
	if _, err := plugin.SeedBindings(s.Bindings()); err != nil {
		t.Fatal(err)
	}

	hub := server.NewHub()
	sink := eventlog.NewMulti(s.EventSink(), hub)
	cfg := lifecycle.DefaultConfig()
	cfg.VerifyTimeout = time.Second
	lc := lifecycle.NewManager(cfg, oracle.NewStub(10*time.Millisecond),
		plugin.NewDispatcher(s.Bindings(), plugins, plugin.NewExecutor(5*time.Second)),
		sink, lifecycle.WithLogger(logger.Nop()))
	defer lc.Close(context.Background())

	application := app.New(app.Config{Store: s, Gesture: gesture.DefaultConfig()}, lc,
		app.WithPublisher(hub), app.WithLogger(logger.Nop()))

	ts := httptest.NewServer(server.New(server.Config{
		Store:      s,
		Plugins:    plugins,
		Controller: application,
		Frames:     application,
		Hub:        hub,
	}))
	defer ts.Close()
	client := ts.Client()
	ctx := context.Background()

	feed := func(steps []testdata.Step) string {
		t.Helper()
		var id string
		for _, st := range steps {
			ev, err := application.HandleFrame(ctx, st.At, st.Hands, nil)
			if err != nil {
				t.Fatalf("HandleFrame() error = %v", err)
			}
			if ev != nil {
				id = ev.ID
			}
		}
		if id == "" {
			t.Fatal("sweep produced no event")
		}
		lc.Wait()
		return id
	}

	t.Run("EnableViaAPI", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/mode", strings.NewReader(`{"enabled":true}`))
		resp, err := client.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK || !application.IsEnabled() {
			t.Fatalf("status = %d, enabled = %v", resp.StatusCode, application.IsEnabled())
		}
	})

	var syncID string
	t.Run("SyncSweepIsVerifiedAndExecuted", func(t *testing.T) {
		syncID = feed(sweep(time.Now(), -0.30))

		var got struct {
			Event       eventlog.Record       `json:"event"`
			Annotations []eventlog.Annotation `json:"annotations"`
		}
		getJSON(t, client, ts.URL+"/api/events/"+syncID, &got)
		if got.Event.Outcome != string(lifecycle.Executed) || got.Event.PolicyTag != lifecycle.TagSyncVerified {
			t.Errorf("event = %s/%s", got.Event.Outcome, got.Event.PolicyTag)
		}
		if got.Event.ApprovedIntent != intent.SwitchLeft {
			t.Errorf("approved intent = %s", got.Event.ApprovedIntent)
		}

		data, err := os.ReadFile(calls)
		if err != nil {
			t.Fatal(err)
		}
		var req plugin.Request
		if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &req); err != nil {
			t.Fatalf("plugin call %q: %v", data, err)
		}
		if req.Action != "SWITCH_LEFT" || req.EventID != syncID {
			t.Errorf("plugin request = %+v", req)
		}
	})

	t.Run("AsyncSweepIsLabelled", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/mode", strings.NewReader(`{"mode":"async"}`))
		resp, err := client.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()

		// Start after the engine cooldown.
		id := feed(sweep(time.Now().Add(2*time.Second), 0.30))

		var got struct {
			Event       eventlog.Record       `json:"event"`
			Annotations []eventlog.Annotation `json:"annotations"`
		}
		getJSON(t, client, ts.URL+"/api/events/"+id, &got)
		if got.Event.Mode != string(lifecycle.ModeAsync) || got.Event.PolicyTag != lifecycle.TagAsyncOptimistic {
			t.Errorf("event = %s/%s", got.Event.Mode, got.Event.PolicyTag)
		}
		if len(got.Annotations) != 1 || got.Annotations[0].Kind != eventlog.AnnotationLabel {
			t.Errorf("annotations = %+v", got.Annotations)
		}
	})

	t.Run("StatusAndHistory", func(t *testing.T) {
		var st api.Status
		getJSON(t, client, ts.URL+"/api/status", &st)
		if !st.Enabled || st.Mode != string(lifecycle.ModeAsync) || st.Frames == 0 {
			t.Errorf("status = %+v", st)
		}
		if len(st.Recent) != 2 {
			t.Errorf("recent events = %d, want 2", len(st.Recent))
		}

		var list struct {
			Events []eventlog.Record `json:"events"`
		}
		getJSON(t, client, ts.URL+"/api/events?outcome=executed", &list)
		if len(list.Events) != 2 {
			t.Fatalf("executed events = %d, want 2", len(list.Events))
		}
		if list.Events[1].EventID != syncID {
			t.Errorf("events not newest first: %s", list.Events[1].EventID)
		}
	})

	t.Run("FeatureExport", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/api/features?labelled=true")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		n := 0
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			var sample store.FeatureSample
			if err := json.Unmarshal(sc.Bytes(), &sample); err != nil {
				t.Fatalf("line %q: %v", sc.Text(), err)
			}
			if sample.LabelIntent == nil || sample.Features.GestureType != sample.ProposedIntent {
				t.Errorf("sample = %+v", sample)
			}
			n++
		}
		if n != 2 {
			t.Errorf("labelled samples = %d, want 2", n)
		}
	})
}
