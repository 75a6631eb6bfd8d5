package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/otcore/internal/config"
	"github.com/roach88/otcore/internal/notify"
)

func commandWithStoreFlags(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "probe"}
	addStoreFlags(cmd)
	cmd.Flags().String("listen", "", "")
	cmd.Flags().String("notify", "", "")
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "otcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: 127.0.0.1:7000
store:
  driver: sqlite
  dsn: from-file.db
`), 0644))

	cmd := commandWithStoreFlags(t, "--dsn", "from-flag.db", "--notify", "poll")
	cfg, err := loadConfig(cmd, &RootOptions{ConfigPath: path})
	require.NoError(t, err)

	assert.Equal(t, path, cfg.File)
	assert.Equal(t, "127.0.0.1:7000", cfg.Listen)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "from-flag.db", cfg.Store.DSN)
	assert.Equal(t, config.NotifyPoll, cfg.Notify.Mode)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfig_VerboseAndEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("OTCORE_STORE_DRIVER", "memory")

	cfg, err := loadConfig(commandWithStoreFlags(t), &RootOptions{Verbose: true})
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Empty(t, cfg.File)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := loadConfig(commandWithStoreFlags(t), &RootOptions{ConfigPath: "missing.yaml"})
	require.Error(t, err)

	_, err = loadConfig(commandWithStoreFlags(t, "--store", "oracle"), &RootOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func openMemoryRuntime(t *testing.T, args ...string) *runtime {
	t.Helper()
	t.Chdir(t.TempDir())
	args = append(args, "--store", "memory", "--log-level", "error")
	rt, err := openRuntime(commandWithStoreFlags(t, args...), &RootOptions{})
	require.NoError(t, err)
	t.Cleanup(rt.Close)
	return rt
}

func TestRuntime_PushNotifications(t *testing.T) {
	rt := openMemoryRuntime(t)

	notes, err := rt.notifications()
	require.NoError(t, err)
	defer notes.Close()

	assert.IsType(t, &notify.Hub{}, notes.notifier)
	assert.Len(t, notes.runs, 1)
	assert.NotNil(t, notes.publisher)
}

func TestRuntime_PollNotifications(t *testing.T) {
	rt := openMemoryRuntime(t, "--notify", "poll")

	notes, err := rt.notifications()
	require.NoError(t, err)
	defer notes.Close()

	assert.IsType(t, &notify.Poller{}, notes.notifier)
	assert.Empty(t, notes.runs)
}

func TestRuntime_RedisRelay(t *testing.T) {
	t.Setenv("OTCORE_REDIS_ADDRS", "127.0.0.1:6390")
	rt := openMemoryRuntime(t)
	require.Equal(t, []string{"127.0.0.1:6390"}, rt.cfg.Redis.Addrs)

	notes, err := rt.notifications()
	require.NoError(t, err)
	defer notes.Close()

	assert.IsType(t, &notify.RedisRelay{}, notes.notifier)
	assert.Len(t, notes.runs, 2)
	assert.Len(t, notes.closers, 1)
}

func TestRuntime_Pipeline(t *testing.T) {
	rt := openMemoryRuntime(t)

	pl, err := rt.pipeline(nil)
	require.NoError(t, err)
	assert.NotNil(t, pl)
}
