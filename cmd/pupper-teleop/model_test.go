package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

type apiCall struct {
	path string
	body map[string]any
}

func fakeAPI(t *testing.T) (*apiClient, func() []apiCall) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []apiCall
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{}
		json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		calls = append(calls, apiCall{r.URL.Path, body})
		mu.Unlock()
		if r.URL.Path == "/api/class" {
			w.Write([]byte(`{"run_id":"abc"}`))
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)
	return newAPIClient(srv.URL), func() []apiCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]apiCall(nil), calls...)
	}
}

func press(t *testing.T, m model, key tea.KeyMsg) (model, tea.Msg) {
	t.Helper()
	next, cmd := m.Update(key)
	var msg tea.Msg
	if cmd != nil {
		msg = cmd()
	}
	return next.(model), msg
}

func TestArrowKeysDriveTheRobot(t *testing.T) {
	api, calls := fakeAPI(t)
	m := newModel(api, 0.5, 1.5)

	m, msg := press(t, m, tea.KeyMsg{Type: tea.KeyUp})
	if msg != logMsg("move 0.50") {
		t.Errorf("msg = %v", msg)
	}
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyRight})
	press(t, m, tea.KeyMsg{Type: tea.KeySpace})

	got := calls()
	if len(got) != 3 {
		t.Fatalf("calls = %+v", got)
	}
	if got[0].path != "/api/move" || got[0].body["velocity"] != 0.5 {
		t.Errorf("move call %+v", got[0])
	}
	if got[1].path != "/api/turn" || got[1].body["angular_velocity"] != -1.5 {
		t.Errorf("turn call %+v", got[1])
	}
	if got[2].path != "/api/stop" {
		t.Errorf("stop call %+v", got[2])
	}
}

func TestClassPrompt(t *testing.T) {
	api, calls := fakeAPI(t)
	m := newModel(api, 1, 1)

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	if !m.prompting {
		t.Fatal("c did not open the prompt")
	}
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("teddy")})
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeySpace})
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("bearx")})
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyBackspace})
	m, msg := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if m.prompting {
		t.Error("prompt still open after enter")
	}
	if msg != logMsg("face teddy bear: run abc") {
		t.Errorf("msg = %v", msg)
	}
	got := calls()
	if len(got) != 1 || got[0].path != "/api/class" || got[0].body["class"] != "teddy bear" {
		t.Errorf("calls = %+v", got)
	}
}
