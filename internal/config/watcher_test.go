package config_test

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/jarvis/internal/config"
)

// assistantYAML renders a minimal valid config with the given hot and cold
// fields.
func assistantYAML(logLevel, persona, listen string) string {
	return `
server:
  listen_addr: "` + listen + `"
  log_level: ` + logLevel + `
providers:
  llm:
    name: gemini
    api_key: test-key
  stt:
    name: whisper
    base_url: http://localhost:8080
assistant:
  persona: ` + persona + `
`
}

type reload struct{ old, new *config.Config }

// watch writes content to a fresh file and starts a fast-polling watcher
// that forwards every reload to the returned channel.
func watch(t *testing.T, content string) (string, *config.Watcher, <-chan reload) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	reloads := make(chan reload, 4)
	w, err := config.NewWatcher(path, func(old, new *config.Config) {
		reloads <- reload{old, new}
	}, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(w.Stop)
	return path, w, reloads
}

// rewrite replaces the file and bumps its mtime so coarse filesystem clocks
// cannot hide the change.
func rewrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("rewrite %s: %v", path, err)
	}
	bump(t, path)
}

func bump(t *testing.T, path string) {
	t.Helper()
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func expectNoReload(t *testing.T, reloads <-chan reload) {
	t.Helper()
	select {
	case r := <-reloads:
		t.Fatalf("unexpected reload to log_level=%q", r.new.Server.LogLevel)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_CurrentIsInitialConfig(t *testing.T) {
	t.Parallel()
	_, w, _ := watch(t, assistantYAML("info", "Be brief.", ":8765"))

	cur := w.Current()
	if cur.Server.LogLevel != config.LogInfo || cur.Assistant.Persona != "Be brief." {
		t.Errorf("Current() = log_level %q, persona %q", cur.Server.LogLevel, cur.Assistant.Persona)
	}
	if cur.Assistant.Name != config.DefaultAssistantName {
		t.Errorf("defaults not applied: assistant.name = %q", cur.Assistant.Name)
	}
}

func TestWatcher_HotFieldsReachCallback(t *testing.T) {
	t.Parallel()
	path, w, reloads := watch(t, assistantYAML("info", "Be brief.", ":8765"))

	rewrite(t, path, assistantYAML("debug", "Answer in one word.", ":8765"))

	var r reload
	select {
	case r = <-reloads:
	case <-time.After(2 * time.Second):
		t.Fatal("no reload within 2s")
	}

	d := config.Diff(r.old, r.new)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("log level diff = %v/%q, want debug", d.LogLevelChanged, d.NewLogLevel)
	}
	if !d.PersonaChanged || d.NewPersona != "Answer in one word." {
		t.Errorf("persona diff = %v/%q", d.PersonaChanged, d.NewPersona)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("RestartRequired = %v, want none", d.RestartRequired)
	}
	if w.Current() != r.new {
		t.Error("Current() does not return the reloaded config")
	}
}

func TestWatcher_ColdFieldIsReportedForRestart(t *testing.T) {
	t.Parallel()
	path, _, reloads := watch(t, assistantYAML("info", "Be brief.", ":8765"))

	rewrite(t, path, assistantYAML("info", "Be brief.", ":9999"))

	select {
	case r := <-reloads:
		d := config.Diff(r.old, r.new)
		if d.LogLevelChanged || d.PersonaChanged {
			t.Errorf("hot fields reported as changed: %+v", d)
		}
		if !slices.Equal(d.RestartRequired, []string{"server"}) {
			t.Errorf("RestartRequired = %v, want [server]", d.RestartRequired)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reload within 2s")
	}
}

func TestWatcher_InvalidEditKeepsPrevious(t *testing.T) {
	t.Parallel()
	path, w, reloads := watch(t, assistantYAML("info", "Be brief.", ":8765"))

	rewrite(t, path, "server:\n  log_level: loud\n")
	expectNoReload(t, reloads)

	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Errorf("Current() log_level = %q, want previous %q", got, config.LogInfo)
	}
}

func TestWatcher_TouchIsNotAReload(t *testing.T) {
	t.Parallel()
	path, _, reloads := watch(t, assistantYAML("info", "Be brief.", ":8765"))

	bump(t, path)
	expectNoReload(t, reloads)
}

func TestWatcher_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
		t.Fatal("NewWatcher on a missing file should fail")
	}
}

func TestWatcher_StopTwice(t *testing.T) {
	t.Parallel()
	_, w, _ := watch(t, assistantYAML("info", "Be brief.", ":8765"))
	w.Stop()
	w.Stop()
}
