package hookcmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHasPostflightHook(t *testing.T) {
	require.False(t, HasPostflightHook(nil))

	entries := []any{
		map[string]any{
			"hooks": []any{
				map[string]any{"command": "postflight hook stop"},
			},
		},
	}
	require.True(t, HasPostflightHook(entries))

	// Malformed entries should not panic.
	require.False(t, HasPostflightHook([]any{"not-a-map"}))
	require.False(t, HasPostflightHook([]any{map[string]any{"hooks": "not-a-slice"}}))
}

func TestIsPostflightHookCommand(t *testing.T) {
	require.True(t, IsPostflightHookCommand("postflight hook stop"))
	require.True(t, IsPostflightHookCommand("postflight hook session-start"))
	require.True(t, IsPostflightHookCommand("postflight hook scan"))
	require.True(t, IsPostflightHookCommand("/usr/local/bin/postflight hook stop"))
	require.True(t, IsPostflightHookCommand(`"/Users/someone/go/bin/postflight" hook session-start`))

	require.False(t, IsPostflightHookCommand("echo postflight hook stop"))
	require.False(t, IsPostflightHookCommand("/usr/local/bin/not-postflight hook stop"))
	require.False(t, IsPostflightHookCommand("postflight status"))
	require.False(t, IsPostflightHookCommand(""))
	require.False(t, IsPostflightHookCommand("postflight hook unknown-subcommand"))
	require.False(t, IsPostflightHookCommand("postflight hook"))
}

func TestPostflightHooks_CoversStopAndSessionStart(t *testing.T) {
	hooks := buildPostflightHooks()
	require.Contains(t, hooks, "Stop")
	require.Contains(t, hooks, "SessionStart")
	require.Len(t, hooks, 2)

	stop := hooks["Stop"]
	require.Len(t, stop.Hooks, 1)
	require.Equal(t, "command", stop.Hooks[0].Type)
	require.Contains(t, stop.Hooks[0].Command, "hook stop")

	start := hooks["SessionStart"]
	require.Equal(t, "startup|resume|clear", start.Matcher)
	require.Contains(t, start.Hooks[0].Command, "hook session-start")
}

func TestHookEntryEqual(t *testing.T) {
	a := map[string]any{
		"matcher": "",
		"hooks": []any{
			map[string]any{"type": "command", "command": "postflight hook stop", "timeout": float64(30000)},
		},
	}
	b := map[string]any{
		"matcher": "",
		"hooks": []any{
			map[string]any{"type": "command", "command": "postflight hook stop", "timeout": float64(30000)},
		},
	}
	require.True(t, hookEntryEqual(a, b))

	// Different timeout
	c := map[string]any{
		"matcher": "",
		"hooks": []any{
			map[string]any{"type": "command", "command": "postflight hook stop", "timeout": float64(10000)},
		},
	}
	require.False(t, hookEntryEqual(a, c))

	// Different matcher
	d := map[string]any{
		"matcher": "startup",
		"hooks": []any{
			map[string]any{"type": "command", "command": "postflight hook stop", "timeout": float64(30000)},
		},
	}
	require.False(t, hookEntryEqual(a, d))
}

func TestUpsertPostflightHookEntry(t *testing.T) {
	newEntry := map[string]any{
		"matcher": "",
		"hooks": []any{
			map[string]any{"type": "command", "command": "postflight hook stop", "timeout": float64(30000)},
		},
	}

	// Fresh install (nil existing)
	entries, outcome := upsertPostflightHookEntry(nil, newEntry)
	require.Equal(t, hookInstalled, outcome)
	require.Len(t, entries, 1)

	// Skip (identical entry already present)
	entries, outcome = upsertPostflightHookEntry(entries, newEntry)
	require.Equal(t, hookSkipped, outcome)
	require.Len(t, entries, 1)

	// Update (different timeout)
	updatedEntry := map[string]any{
		"matcher": "",
		"hooks": []any{
			map[string]any{"type": "command", "command": "postflight hook stop", "timeout": float64(10000)},
		},
	}
	entries, outcome = upsertPostflightHookEntry(entries, updatedEntry)
	require.Equal(t, hookUpdated, outcome)
	require.Len(t, entries, 1)

	// Foreign entries are preserved
	foreign := map[string]any{
		"hooks": []any{
			map[string]any{"type": "command", "command": "other-tool do-thing"},
		},
	}
	mixed := []any{foreign, entries[0]}
	entries, outcome = upsertPostflightHookEntry(mixed, updatedEntry)
	require.Equal(t, hookSkipped, outcome)
	require.Len(t, entries, 2) // foreign + ours
}

func TestReadSettings_AndWriteSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	settings, err := readSettings(path)
	require.NoError(t, err)
	require.Empty(t, settings)

	input := map[string]any{"hooks": map[string]any{"Stop": []any{}}}
	require.NoError(t, writeSettings(path, input))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotEmpty(t, b)
	require.Equal(t, byte('\n'), b[len(b)-1])

	loaded, err := readSettings(path)
	require.NoError(t, err)
	require.Contains(t, loaded, "hooks")
}

func TestReadSettings_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))

	settings, err := readSettings(path)
	require.Error(t, err)
	require.Nil(t, settings)
}

// seedInstalledSettings writes a settings file with postflight hooks
// registered under fixed command strings, plus one foreign Stop entry.
func seedInstalledSettings(t *testing.T, home string) string {
	t.Helper()
	path := filepath.Join(home, ".claude", "settings.json")
	settings := map[string]any{
		"model": "opus",
		"hooks": map[string]any{
			"Stop": []any{
				map[string]any{
					"hooks": []any{
						map[string]any{"type": "command", "command": "other-tool cleanup"},
					},
				},
				map[string]any{
					"matcher": "",
					"hooks": []any{
						map[string]any{"type": "command", "command": "postflight hook stop", "timeout": float64(30000)},
					},
				},
			},
			"SessionStart": []any{
				map[string]any{
					"matcher": "startup|resume|clear",
					"hooks": []any{
						map[string]any{"type": "command", "command": "postflight hook session-start", "timeout": float64(3000)},
					},
				},
			},
		},
	}
	require.NoError(t, writeSettings(path, settings))
	return path
}

func TestCurrentInstallState(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	// Missing file reports nothing installed.
	state := CurrentInstallState()
	require.False(t, state.Stop)
	require.False(t, state.SessionStart)
	require.NotEmpty(t, state.Path)

	seedInstalledSettings(t, home)

	state = CurrentInstallState()
	require.True(t, state.Stop)
	require.True(t, state.SessionStart)
}

func TestUninstall_RemovesOursPreservesForeign(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := seedInstalledSettings(t, home)

	uninstall := NewUninstallCmd()
	uninstall.SetArgs([]string{})
	require.NoError(t, uninstall.Execute())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var settings map[string]any
	require.NoError(t, json.Unmarshal(data, &settings))
	require.Equal(t, "opus", settings["model"])

	hooks := settings["hooks"].(map[string]any)
	stopEntries := hooks["Stop"].([]any)
	require.Len(t, stopEntries, 1)
	require.False(t, HasPostflightHook(stopEntries))

	// SessionStart had only our entry, so the event key is gone entirely.
	require.NotContains(t, hooks, "SessionStart")

	state := CurrentInstallState()
	require.False(t, state.Stop)
	require.False(t, state.SessionStart)
}

func TestUninstall_NoSettingsFileIsNoop(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	uninstall := NewUninstallCmd()
	uninstall.SetArgs([]string{})
	require.NoError(t, uninstall.Execute())
}
