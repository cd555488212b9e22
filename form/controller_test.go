package form

import (
	"Scripter/ai"
	"Scripter/core"
	"Scripter/storage"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeService struct {
	mutex     sync.Mutex
	requests  []core.ScriptRequest
	started   chan struct{}
	release   chan struct{}
	ignoreCtx bool
	script    string
	err       error
}

func (f *fakeService) GenerateScript(ctx context.Context, req core.ScriptRequest) (string, error) {
	f.mutex.Lock()
	f.requests = append(f.requests, req)
	f.mutex.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		if f.ignoreCtx {
			<-f.release
		} else {
			select {
			case <-f.release:
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	return f.script, f.err
}

func (f *fakeService) lastRequest() core.ScriptRequest {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.requests[len(f.requests)-1]
}

func TestSubmitBusyLifecycle(t *testing.T) {
	tests := []struct {
		name       string
		script     string
		err        error
		wantStatus OutcomeStatus
		wantScript string
	}{
		{name: "success", script: "Hello world", wantStatus: StatusSucceeded, wantScript: "Hello world"},
		{name: "unexpected status", err: &core.StatusError{Code: 404}, wantStatus: StatusUnexpected, wantScript: "previous"},
		{name: "transport error", err: errors.New("connection refused"), wantStatus: StatusFailed, wantScript: "previous"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := NewState()
			state.SetScript("previous")
			service := &fakeService{
				started: make(chan struct{}, 1),
				release: make(chan struct{}),
				script:  tt.script,
				err:     tt.err,
			}
			controller := NewController(state, service, "duckduckgo", discard)

			task := controller.Submit(context.Background())
			if !state.Busy() {
				t.Fatal("busy not set when Submit returned")
			}
			<-service.started
			if !state.Busy() {
				t.Fatal("busy cleared while request in flight")
			}
			close(service.release)

			outcome := task.Wait()
			if outcome.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q (err %v)", outcome.Status, tt.wantStatus, outcome.Err)
			}
			if state.Busy() {
				t.Error("busy still set after completion")
			}
			if state.Script() != tt.wantScript {
				t.Errorf("script = %q, want %q", state.Script(), tt.wantScript)
			}
			if controller.InFlight() != 0 {
				t.Errorf("in flight = %d", controller.InFlight())
			}
		})
	}
}

func TestSubmitRequestOmitsDuration(t *testing.T) {
	state := NewState()
	state.SetTopic("Deep sea mining")
	state.SetDurationMinutes(42)
	state.SetTemperature(0.9)
	if err := state.SetTone(ToneHumorous); err != nil {
		t.Fatal(err)
	}
	format, _ := FormatByLabel("YouTube description")
	if err := state.SetFormat(format); err != nil {
		t.Fatal(err)
	}

	service := &fakeService{script: "ok"}
	NewController(state, service, "googlesearch", discard).Submit(context.Background()).Wait()

	want := core.ScriptRequest{
		Topic:       "Deep sea mining",
		Tone:        "humorous",
		Format:      "youtube_desc",
		Temperature: 0.9,
		SearchTool:  "googlesearch",
	}
	if diff := cmp.Diff(want, service.lastRequest()); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}
}

func TestSubmitNotifiesBusyTransitions(t *testing.T) {
	state := NewState()
	var (
		mutex sync.Mutex
		busy  []bool
	)
	state.Subscribe(func(v Values) {
		mutex.Lock()
		defer mutex.Unlock()
		busy = append(busy, v.Busy)
	})

	NewController(state, &fakeService{script: "x"}, "duckduckgo", discard).Submit(context.Background()).Wait()

	mutex.Lock()
	defer mutex.Unlock()
	// begin, script, finish
	if diff := cmp.Diff([]bool{true, true, false}, busy); diff != "" {
		t.Errorf("busy transitions mismatch (-want +got):\n%s", diff)
	}
}

func TestTaskCancelDiscardsResponse(t *testing.T) {
	state := NewState()
	service := &fakeService{
		started:   make(chan struct{}, 1),
		release:   make(chan struct{}),
		ignoreCtx: true,
		script:    "late",
	}
	controller := NewController(state, service, "duckduckgo", discard)

	task := controller.Submit(context.Background())
	<-service.started
	task.Cancel()
	close(service.release)

	outcome := task.Wait()
	if outcome.Status != StatusFailed || !errors.Is(outcome.Err, context.Canceled) {
		t.Errorf("outcome = %+v", outcome)
	}
	if state.Script() != "" {
		t.Errorf("script = %q, want untouched", state.Script())
	}
	if state.Busy() {
		t.Error("busy still set")
	}
}

func TestCancelAll(t *testing.T) {
	state := NewState()
	service := &fakeService{started: make(chan struct{}, 2), release: make(chan struct{})}
	defer close(service.release)
	controller := NewController(state, service, "duckduckgo", discard)

	first := controller.Submit(context.Background())
	second := controller.Submit(context.Background())
	<-service.started
	<-service.started
	if controller.InFlight() != 2 {
		t.Fatalf("in flight = %d", controller.InFlight())
	}

	controller.CancelAll()
	first.Wait()
	second.Wait()
	if state.Busy() {
		t.Error("busy still set")
	}
}

// Overlapping submissions are not fenced: busy holds until both finish and
// whichever response lands last owns the script.
func TestOverlappingSubmissions(t *testing.T) {
	state := NewState()
	service := &fakeService{started: make(chan struct{}, 2), release: make(chan struct{}), script: "same"}
	controller := NewController(state, service, "duckduckgo", discard)

	first := controller.Submit(context.Background())
	second := controller.Submit(context.Background())
	if first.ID() == second.ID() {
		t.Error("task ids collide")
	}
	<-service.started
	<-service.started
	close(service.release)
	first.Wait()
	second.Wait()

	if state.Busy() {
		t.Error("busy still set")
	}
	if state.Script() != "same" {
		t.Errorf("script = %q", state.Script())
	}
}

func TestSubmitRecordsJournal(t *testing.T) {
	journal := storage.NewMemoryJournal()
	state := NewState()
	state.SetTopic("Rust vs Go")
	controller := NewController(state, &fakeService{err: &core.StatusError{Code: 503}}, "duckduckgo", discard,
		WithSession(11), WithJournal(journal))

	task := controller.Submit(context.Background())
	task.Wait()

	entries, err := journal.Recent(11, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries", len(entries))
	}
	got := entries[0]
	if got.TaskId != task.ID() || got.Topic != "Rust vs Go" || got.Outcome != "unexpected_status" || got.StatusCode != 503 {
		t.Errorf("entry = %+v", got)
	}
	if got.Error == "" {
		t.Error("entry has no error text")
	}
}

func TestSubmitAgainstHTTPService(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		refused    bool
		wantScript string
	}{
		{
			name: "200",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, `{"script": "Hello world"}`)
			},
			wantScript: "Hello world",
		},
		{
			name: "404",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.NotFound(w, r)
			},
		},
		{
			name:    "connection refused",
			handler: func(w http.ResponseWriter, r *http.Request) {},
			refused: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			if tt.refused {
				srv.Close()
			}

			conf := &core.Config{}
			conf.Generator.BaseURL = srv.URL
			conf.Generator.Path = "/generate_script/"
			state := NewState()
			controller := NewController(state, ai.NewScriptGenerator(conf, discard), conf.SearchTool(), discard)

			controller.Submit(context.Background()).Wait()
			if state.Script() != tt.wantScript {
				t.Errorf("script = %q, want %q", state.Script(), tt.wantScript)
			}
			if state.Busy() {
				t.Error("busy still set")
			}
		})
	}
}

// A field edit racing the end of a request must not reach subscribers after
// the busy=false snapshot.
func TestNotificationsFollowMutationOrder(t *testing.T) {
	state := NewState()
	service := &fakeService{started: make(chan struct{}, 1), release: make(chan struct{}), script: "done"}
	controller := NewController(state, service, "duckduckgo", discard)

	var (
		mutex     sync.Mutex
		delivered []Values
		held      bool
	)
	hold := make(chan struct{})
	state.Subscribe(func(v Values) {
		mutex.Lock()
		first := v.Topic == "edited" && !held
		if first {
			held = true
		}
		mutex.Unlock()
		if first {
			<-hold
		}
		mutex.Lock()
		delivered = append(delivered, v)
		mutex.Unlock()
	})

	task := controller.Submit(context.Background())
	<-service.started

	edited := make(chan struct{})
	go func() {
		defer close(edited)
		state.SetTopic("edited")
	}()
	waitUntil(t, func() bool { return state.Topic() == "edited" })

	close(service.release)
	waitUntil(t, func() bool { return state.Script() == "done" })
	// give the request time to finish while the edit is still being delivered
	deadline := time.Now().Add(50 * time.Millisecond)
	for state.Busy() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	close(hold)

	task.Wait()
	<-edited

	mutex.Lock()
	defer mutex.Unlock()
	last := delivered[len(delivered)-1]
	if last.Busy {
		t.Errorf("last delivered snapshot busy=true, state busy=%v", state.Busy())
	}
	for _, v := range delivered[:len(delivered)-1] {
		if !v.Busy {
			t.Errorf("busy=false delivered before later changes: %+v", delivered)
		}
	}
	if last.Script != "done" || last.Topic != "edited" {
		t.Errorf("last snapshot = %+v", last)
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(time.Millisecond)
	}
}
