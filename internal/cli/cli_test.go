package cli

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vilaca/reciprocity-bot/internal/clock"
)

var configEnv = []string{
	"GITHUB_URL", "GITHUB_TOKEN", "GITHUB_USERNAME", "USERNAME",
	"REPOS_PER_PAGE", "NUM_OF_PAGES", "MAX_STARS", "STATE_FILE",
	"GRACE_PERIOD_DAYS", "METRICS_ADDR",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnv {
		t.Setenv(key, "")
	}
}

// fakeGitHub answers "METHOD path" routes with a status and body and
// records every request it sees.
type fakeGitHub struct {
	mu     sync.Mutex
	routes map[string]fakeRoute
	hits   []string
}

type fakeRoute struct {
	status int
	body   string
}

func newFakeGitHub(t *testing.T, routes map[string]fakeRoute) (*fakeGitHub, *httptest.Server) {
	t.Helper()
	f := &fakeGitHub{routes: routes}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		f.mu.Lock()
		f.hits = append(f.hits, key)
		f.mu.Unlock()

		route, ok := f.routes[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message":"Not Found"}`))
			return
		}
		w.WriteHeader(route.status)
		w.Write([]byte(route.body))
	}))
	t.Cleanup(server.Close)
	return f, server
}

func (f *fakeGitHub) requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.hits...)
}

type execResult struct {
	stdout string
	stderr string
	err    error
}

func execute(t *testing.T, now time.Time, args ...string) execResult {
	t.Helper()
	cmd := newRootCommand(&RootOptions{Clock: clock.NewFake(now)})
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return execResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func writeState(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "reciprocity-bot", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()

	for _, name := range []string{"run", "sweep", "status"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)

	logFormat := cmd.PersistentFlags().Lookup("log-format")
	require.NotNil(t, logFormat)
	assert.Equal(t, "text", logFormat.DefValue)

	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("state"))
}

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	run, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	for _, name := range []string{"once", "skip-initial", "first-offset", "metrics-addr"} {
		assert.NotNil(t, run.Flags().Lookup(name), name)
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("boom")))
	assert.Equal(t, ExitConfigError, GetExitCode(NewExitError(ExitConfigError, "bad")))

	wrapped := WrapExitError(ExitConfigError, "invalid configuration", errors.New("missing token"))
	assert.Equal(t, "invalid configuration: missing token", wrapped.Error())
	assert.Equal(t, ExitConfigError, GetExitCode(errors.Join(errors.New("outer"), wrapped)))
}

func TestInvalidLogFormat(t *testing.T) {
	clearEnv(t)

	res := execute(t, time.Now(), "status", "--log-format", "xml")

	assert.Equal(t, ExitConfigError, GetExitCode(res.err))
}

func TestRun_MissingTokenIsConfigError(t *testing.T) {
	clearEnv(t)
	t.Setenv("GITHUB_USERNAME", "bot")

	res := execute(t, time.Now(), "run", "--once", "--state", filepath.Join(t.TempDir(), "state.json"))

	require.Error(t, res.err)
	assert.Equal(t, ExitConfigError, GetExitCode(res.err))
	assert.Contains(t, res.err.Error(), "GITHUB_TOKEN")
}

func TestRun_Once(t *testing.T) {
	// Arrange
	clearEnv(t)
	fake, server := newFakeGitHub(t, map[string]fakeRoute{
		"GET /search/repositories": {200, `{"total_count":1,"items":[
			{"name":"foo","full_name":"alice/foo","stargazers_count":0,"owner":{"login":"alice"}}]}`},
		"PUT /user/starred/alice/foo": {204, ""},
		"GET /users/bob/following/bot": {204, ""},
		"PUT /user/following/bob":      {204, ""},
	})
	t.Setenv("GITHUB_TOKEN", "test-token")
	t.Setenv("GITHUB_USERNAME", "bot")
	t.Setenv("GITHUB_URL", server.URL)
	statePath := writeState(t, `[["bob","2024-01-02","bob/bar"]]`)

	// Act
	res := execute(t, time.Date(2024, 1, 3, 21, 30, 0, 0, time.UTC), "run", "--once", "--state", statePath)

	// Assert
	require.NoError(t, res.err, res.stderr)
	assert.Equal(t, "starred 1, followed back 1, expired 0, pending 1\n", res.stdout)
	assert.Contains(t, fake.requests(), "GET /users/alice/following/bot")

	saved, err := os.ReadFile(statePath)
	require.NoError(t, err)
	assert.Equal(t, "[\n  [\"alice\",\"2024-01-03\",\"alice/foo\"]\n]\n", string(saved))
}

func TestSweep(t *testing.T) {
	// Arrange
	clearEnv(t)
	fake, server := newFakeGitHub(t, map[string]fakeRoute{
		"DELETE /user/starred/alice/foo": {204, ""},
		"DELETE /user/following/alice":   {204, ""},
	})
	t.Setenv("GITHUB_TOKEN", "test-token")
	t.Setenv("GITHUB_USERNAME", "bot")
	t.Setenv("GITHUB_URL", server.URL)
	statePath := writeState(t, `[["alice","2024-01-01","alice/foo"],["carol","2024-01-09","carol/baz"]]`)

	// Act
	res := execute(t, time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC), "sweep", "--state", statePath)

	// Assert
	require.NoError(t, res.err, res.stderr)
	assert.Equal(t, "checked 2, followed back 0, expired 1, pending 1\n", res.stdout)
	assert.NotContains(t, fake.requests(), "GET /search/repositories")
	assert.NotContains(t, fake.requests(), "DELETE /user/starred/carol/baz")

	saved, err := os.ReadFile(statePath)
	require.NoError(t, err)
	assert.Equal(t, "[\n  [\"carol\",\"2024-01-09\",\"carol/baz\"]\n]\n", string(saved))
}

func TestStatus(t *testing.T) {
	clearEnv(t)
	statePath := writeState(t, `[["alice","2024-01-01","alice/foo"]]`)

	res := execute(t, time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC), "status", "--state", statePath)

	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "alice/foo")
	assert.Contains(t, res.stdout, "1 pending, grace period 3 days")
}

func TestStatus_JSON(t *testing.T) {
	clearEnv(t)
	statePath := writeState(t, `[["alice","2024-01-01","alice/foo"]]`)

	res := execute(t, time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC), "status", "--format", "json", "--state", statePath)

	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, `"days_left": 2`)
}

func TestStatus_MissingStateFile(t *testing.T) {
	clearEnv(t)

	res := execute(t, time.Now(), "status", "--state", filepath.Join(t.TempDir(), "absent.json"))

	require.NoError(t, res.err)
	assert.Equal(t, "No pending engagements.\n", res.stdout)
}

func TestStatus_MissingDatabaseIsNotCreated(t *testing.T) {
	clearEnv(t)
	dbPath := filepath.Join(t.TempDir(), "state.db")

	res := execute(t, time.Now(), "status", "--state", dbPath)

	require.NoError(t, res.err)
	assert.Equal(t, "No pending engagements.\n", res.stdout)
	assert.NoFileExists(t, dbPath)
}

func TestStatus_CorruptStateFile(t *testing.T) {
	clearEnv(t)
	statePath := writeState(t, `{not json`)

	res := execute(t, time.Now(), "status", "--state", statePath)

	assert.Equal(t, ExitFailure, GetExitCode(res.err))
}
