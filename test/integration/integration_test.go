package integration

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

var nexusflowBinary string

func TestMain(m *testing.M) {
	tmpDir, err := os.MkdirTemp("", "nexusflow-integration-*")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(tmpDir)

	nexusflowBinary = filepath.Join(tmpDir, "nexusflow")
	cmd := exec.Command("go", "build", "-o", nexusflowBinary, "../../cmd/nexusflow")
	if out, err := cmd.CombinedOutput(); err != nil {
		panic("failed to build nexusflow: " + err.Error() + "\n" + string(out))
	}

	os.Exit(m.Run())
}

// worker is an in-memory stand-in for the remote request worker.
type worker struct {
	mu       sync.Mutex
	password string
	running  bool
	busy     bool
	success  int64
	failed   int64
	logs     []map[string]any
	lastForm map[string]any
}

func (w *worker) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(rw http.ResponseWriter, r *http.Request) {
		if r.FormValue("password") != w.password {
			rw.WriteHeader(http.StatusForbidden)
			return
		}
		http.SetCookie(rw, &http.Cookie{Name: "session", Value: "ok", Path: "/"})
		http.Redirect(rw, r, "/", http.StatusFound)
	})
	mux.HandleFunc("/", func(rw http.ResponseWriter, r *http.Request) {
		fmt.Fprint(rw, "<html></html>")
	})
	mux.HandleFunc("/api/start", w.guard(func(rw http.ResponseWriter, r *http.Request) {
		if w.busy {
			writeJSON(rw, map[string]any{"ok": false, "error": "port busy"})
			return
		}
		var form map[string]any
		_ = json.NewDecoder(r.Body).Decode(&form)
		w.lastForm = form
		w.running = true
		w.logs = nil
		writeJSON(rw, map[string]any{"ok": true})
	}))
	mux.HandleFunc("/api/stop", w.guard(func(rw http.ResponseWriter, r *http.Request) {
		w.running = false
		writeJSON(rw, map[string]any{"ok": true})
	}))
	mux.HandleFunc("/api/status", w.guard(func(rw http.ResponseWriter, r *http.Request) {
		if w.running {
			w.success++
			w.logs = append(w.logs, map[string]any{"ts": float64(time.Now().Unix()), "msg": "200 via p1", "ok": true})
		}
		writeJSON(rw, map[string]any{
			"ok":      true,
			"running": w.running,
			"stats": map[string]any{
				"total":      w.success + w.failed,
				"success":    w.success,
				"failed":     w.failed,
				"last_proxy": "p1",
				"last_error": nil,
				"uptime":     3,
			},
			"proxy_scores": map[string]any{"p1": map[string]any{"success": w.success, "failed": w.failed}},
		})
	}))
	mux.HandleFunc("/api/logs", w.guard(func(rw http.ResponseWriter, r *http.Request) {
		logs := w.logs
		if logs == nil {
			logs = []map[string]any{}
		}
		writeJSON(rw, map[string]any{"ok": true, "logs": logs})
	}))
	return mux
}

// guard serializes handlers and redirects to the login page without a
// session cookie when a password is set.
func (w *worker) guard(fn http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.password != "" {
			if c, err := r.Cookie("session"); err != nil || c.Value != "ok" {
				http.Redirect(rw, r, "/login", http.StatusFound)
				return
			}
		}
		fn(rw, r)
	}
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(v)
}

func startWorker(t *testing.T, w *worker) string {
	t.Helper()
	srv := httptest.NewServer(w.handler())
	t.Cleanup(srv.Close)
	return srv.URL
}

// testEnv isolates config discovery and state for one test.
func testEnv(t *testing.T, extra ...string) (string, []string) {
	t.Helper()
	home := t.TempDir()
	env := []string{
		"HOME=" + home,
		"XDG_STATE_HOME=" + filepath.Join(home, "state"),
		"PATH=" + os.Getenv("PATH"),
		"NEXUSFLOW_LOG_LEVEL=error",
	}
	return home, append(env, extra...)
}

func runNexusflow(t *testing.T, env []string, args ...string) (string, int) {
	t.Helper()
	cmd := exec.Command(nexusflowBinary, args...)
	cmd.Env = env
	cmd.Dir = t.TempDir()
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			t.Fatalf("run nexusflow: %v", err)
		}
		code = exitErr.ExitCode()
		t.Logf("stderr: %s", stderr.String())
	}
	return stdout.String(), code
}

func TestStartStatusStop(t *testing.T) {
	w := &worker{}
	url := startWorker(t, w)
	_, env := testEnv(t)

	out, code := runNexusflow(t, env, "--server", url, "start", "--url", "https://target.test/", "--concurrency", "4")
	if code != 0 {
		t.Fatalf("start exit %d: %s", code, out)
	}
	if !strings.Contains(out, "started") {
		t.Errorf("start output: %q", out)
	}
	w.mu.Lock()
	form := w.lastForm
	w.mu.Unlock()
	if form["url"] != "https://target.test/" || form["concurrency"] != float64(4) || form["interval_ms"] != float64(1000) {
		t.Errorf("unexpected form sent: %v", form)
	}

	out, code = runNexusflow(t, env, "--server", url, "--json", "status")
	if code != 0 {
		t.Fatalf("status exit %d", code)
	}
	var st struct {
		OK      bool `json:"ok"`
		Running bool `json:"running"`
	}
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("status JSON: %v (%q)", err, out)
	}
	if !st.Running {
		t.Error("worker should be running after start")
	}

	out, code = runNexusflow(t, env, "--server", url, "stop")
	if code != 0 || strings.TrimSpace(out) != "stop sent" {
		t.Errorf("stop: exit %d, output %q", code, out)
	}
}

func TestStartRejectedExitCode(t *testing.T) {
	w := &worker{busy: true}
	url := startWorker(t, w)
	_, env := testEnv(t)

	_, code := runNexusflow(t, env, "--server", url, "start")
	if code != 2 {
		t.Errorf("exit code = %d, want 2", code)
	}
}

func TestUnreachableWorker(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	_, env := testEnv(t)

	if _, code := runNexusflow(t, env, "--server", url, "status"); code != 3 {
		t.Errorf("status exit code = %d, want 3", code)
	}
	if _, code := runNexusflow(t, env, "--server", url, "stop"); code != 0 {
		t.Errorf("stop exit code = %d, want 0", code)
	}
}

func TestLoginWithPassword(t *testing.T) {
	w := &worker{password: "nexusflow"}
	url := startWorker(t, w)

	_, env := testEnv(t, "NEXUSFLOW_PASSWORD=wrong")
	if _, code := runNexusflow(t, env, "--server", url, "status"); code != 2 {
		t.Errorf("wrong password exit code = %d, want 2", code)
	}

	_, env = testEnv(t, "NEXUSFLOW_PASSWORD=nexusflow")
	if out, code := runNexusflow(t, env, "--server", url, "status"); code != 0 || !strings.Contains(out, "IDLE") {
		t.Errorf("status after login: exit %d, output %q", code, out)
	}
}

func TestWatchRecordsHistory(t *testing.T) {
	w := &worker{running: true}
	url := startWorker(t, w)
	historyDir := t.TempDir()
	_, env := testEnv(t,
		"NEXUSFLOW_HISTORY_BACKEND=file",
		"NEXUSFLOW_HISTORY_PATH="+historyDir,
		"NEXUSFLOW_POLL_INTERVAL=200ms",
	)

	cmd := exec.Command(nexusflowBinary, "--server", url, "watch")
	cmd.Env = env
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(1500 * time.Millisecond)
	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		t.Fatal(err)
	}
	if err := cmd.Wait(); err != nil {
		t.Fatalf("watch exited with error: %v", err)
	}

	out := stdout.String()
	if !strings.Contains(out, "RUNNING  total=") {
		t.Errorf("watch output missing stats line:\n%s", out)
	}
	if !strings.Contains(out, "200 via p1") {
		t.Errorf("watch output missing log rows:\n%s", out)
	}

	out, code := runNexusflow(t, env, "--json", "history", "--proxy", "p1")
	if code != 0 {
		t.Fatalf("history exit %d", code)
	}
	var recs []struct {
		ID      int64  `json:"id"`
		Proxy   string `json:"proxy"`
		OK      bool   `json:"ok"`
		Session string `json:"session"`
	}
	if err := json.Unmarshal([]byte(out), &recs); err != nil {
		t.Fatalf("history JSON: %v (%q)", err, out)
	}
	if len(recs) == 0 {
		t.Fatal("watch recorded no history")
	}
	for i, rec := range recs {
		if rec.Proxy != "p1" || !rec.OK || rec.Session == "" {
			t.Errorf("unexpected record: %+v", rec)
		}
		if i > 0 && rec.ID >= recs[i-1].ID {
			t.Errorf("records not newest first: %d after %d", rec.ID, recs[i-1].ID)
		}
	}
}

func TestPresetDumpRoundTrip(t *testing.T) {
	_, env := testEnv(t)
	dir := t.TempDir()
	preset := filepath.Join(dir, "preset.yaml")
	if err := os.WriteFile(preset, []byte("url: https://a.test/\nmode: burst\n"), 0644); err != nil {
		t.Fatal(err)
	}

	out, code := runNexusflow(t, env, "preset", "dump", "--preset", preset, "--format", "toml")
	if code != 0 {
		t.Fatalf("preset dump exit %d", code)
	}
	for _, want := range []string{`url = "https://a.test/"`, `mode = "burst"`, "interval_ms = 1000"} {
		if !strings.Contains(out, want) {
			t.Errorf("toml dump missing %q:\n%s", want, out)
		}
	}
}
