package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/taskboard/internal/model"
)

type env struct {
	config string
	db     string
}

func newEnv(t *testing.T) env {
	dir := t.TempDir()
	return env{
		config: filepath.Join(dir, "config.yaml"),
		db:     filepath.Join(dir, "data", "board.db"),
	}
}

// run executes one command line and returns its stdout.
func (e env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--config", e.config, "--db", e.db}, args...))
	err := root.Execute()
	return stdout.String(), err
}

func (e env) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	require.NoError(t, err, "taskboard %s", strings.Join(args, " "))
	return out
}

func firstField(s string) string {
	return strings.Fields(s)[0]
}

func TestProjectAndTaskCommands(t *testing.T) {
	e := newEnv(t)

	projectID := strings.TrimSpace(e.mustRun(t, "project", "add", "website", "--owner", "alice"))
	require.NotEmpty(t, projectID)
	assert.Contains(t, e.mustRun(t, "project", "list"), "website")

	a := firstField(e.mustRun(t, "task", "add", projectID, "design"))
	b := firstField(e.mustRun(t, "task", "add", projectID, "build"))
	c := firstField(e.mustRun(t, "task", "add", projectID, "launch", "--status", model.StatusReview))

	list := e.mustRun(t, "task", "list", projectID, "--status", model.StatusOpen)
	assert.Less(t, strings.Index(list, a), strings.Index(list, b))
	assert.NotContains(t, list, c)

	_, err := e.run(t, "task", "add", "missing", "orphan")
	assert.Error(t, err)
}

func TestMoveAndColumnCommands(t *testing.T) {
	e := newEnv(t)
	projectID := strings.TrimSpace(e.mustRun(t, "project", "add", "website", "--owner", "alice"))
	a := firstField(e.mustRun(t, "task", "add", projectID, "design"))
	b := firstField(e.mustRun(t, "task", "add", projectID, "build"))

	out := e.mustRun(t, "move", b, "--index", "0", "--user", "alice")
	assert.Contains(t, out, b)

	column := e.mustRun(t, "column", projectID, model.StatusOpen)
	assert.Less(t, strings.Index(column, "build"), strings.Index(column, "design"))

	out = e.mustRun(t, "move", a, "--status", model.StatusDone)
	assert.Contains(t, out, model.StatusDone)

	_, err := e.run(t, "move", a, "--index", "0", "--user", "mallory")
	assert.Error(t, err)

	_, err = e.run(t, "column", projectID, "blocked")
	assert.Error(t, err)

	e.mustRun(t, "project", "archive", projectID)
	_, err = e.run(t, "move", b, "--index", "1")
	assert.Error(t, err)
	assert.NotContains(t, e.mustRun(t, "project", "list"), "website")
	assert.Contains(t, e.mustRun(t, "project", "list", "--all"), "(archived)")
}

func TestRebalanceCommand(t *testing.T) {
	e := newEnv(t)
	projectID := strings.TrimSpace(e.mustRun(t, "project", "add", "website"))
	e.mustRun(t, "task", "add", projectID, "one")
	e.mustRun(t, "task", "add", projectID, "two")

	// Fresh columns already carry generated ranks.
	assert.Equal(t, "re-ranked 0 tasks\n", e.mustRun(t, "rebalance", projectID))
	assert.Equal(t, "re-ranked 0 tasks\n", e.mustRun(t, "rebalance", projectID, "--status", model.StatusOpen))

	_, err := e.run(t, "rebalance", "missing")
	assert.Error(t, err)
}

func TestConfigCommands(t *testing.T) {
	e := newEnv(t)

	out := e.mustRun(t, "config", "show")
	assert.Contains(t, out, "max_length: 32")
	assert.Contains(t, out, e.db)

	e.mustRun(t, "config", "init")
	_, err := os.Stat(e.config)
	require.NoError(t, err)

	_, err = e.run(t, "config", "init")
	assert.Error(t, err)
	e.mustRun(t, "config", "init", "--force")
}

func TestConfigureLogging(t *testing.T) {
	logger := log.New()

	require.NoError(t, configureLogging(logger, model.LogConfig{Level: "warn", Format: "json"}, false))
	assert.Equal(t, log.WarnLevel, logger.GetLevel())
	assert.IsType(t, &log.JSONFormatter{}, logger.Formatter)

	require.NoError(t, configureLogging(logger, model.LogConfig{Level: "warn"}, true))
	assert.Equal(t, log.DebugLevel, logger.GetLevel())

	assert.Error(t, configureLogging(logger, model.LogConfig{Level: "loud"}, false))
	assert.Error(t, configureLogging(logger, model.LogConfig{Format: "xml"}, false))
}
