// Package hookcmd provides hook installation and uninstallation commands.
// This package is separate from the main commands package to allow independent
// evolution of hook lifecycle management.
package hookcmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/dotcommander/postflight/internal/output"
)

const postflightCommandFallback = "postflight"

//nolint:gochecknoglobals // sync.Once singleton cache for hook definitions; required by the sync.Once pattern
var (
	postflightHooksOnce  sync.Once
	postflightHooksCache map[string]hookEntry
)

type hookHandler struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Timeout int    `json:"timeout"`
}

type hookEntry struct {
	Matcher string        `json:"matcher"`
	Hooks   []hookHandler `json:"hooks"`
}

func claudeSettingsPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".claude", "settings.json")
}

func projectClaudeSettingsPath() string {
	wd, err := os.Getwd()
	if err != nil {
		return filepath.Join(".", ".claude", "settings.json")
	}
	return filepath.Join(wd, ".claude", "settings.json")
}

func resolveClaudeSettingsPath(projectScoped bool) string {
	if projectScoped {
		return projectClaudeSettingsPath()
	}
	return claudeSettingsPath()
}

func postflightExecutable() string {
	exe, err := os.Executable()
	if err != nil || strings.TrimSpace(exe) == "" {
		return postflightCommandFallback
	}
	return exe
}

func buildPostflightHookCommand(subcommand string) string {
	exe := postflightExecutable()
	if exe == postflightCommandFallback {
		return fmt.Sprintf("postflight hook %s", subcommand)
	}
	return fmt.Sprintf("%q hook %s", exe, subcommand)
}

func postflightHooks() map[string]hookEntry {
	postflightHooksOnce.Do(func() {
		postflightHooksCache = buildPostflightHooks()
	})
	return postflightHooksCache
}

func buildPostflightHooks() map[string]hookEntry {
	return map[string]hookEntry{
		"Stop": {
			Matcher: "",
			Hooks: []hookHandler{{
				Type:    "command",
				Command: buildPostflightHookCommand("stop"),
				Timeout: 30000,
			}},
		},
		"SessionStart": {
			Matcher: "startup|resume|clear",
			Hooks: []hookHandler{{
				Type:    "command",
				Command: buildPostflightHookCommand("session-start"),
				Timeout: 3000,
			}},
		},
	}
}

func postflightHookEventNames() []string {
	events := make([]string, 0, len(postflightHooks()))
	for name := range postflightHooks() {
		events = append(events, name)
	}
	sort.Strings(events)
	return events
}

func readSettings(path string) (map[string]any, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path derived from home dir or cwd
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var settings map[string]any
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return settings, nil
}

func writeSettings(path string, settings map[string]any) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	return os.WriteFile(path, data, 0600)
}

// HasPostflightHook checks if a hooks array already contains a postflight
// hook command.
func HasPostflightHook(entries []any) bool {
	for _, entry := range entries {
		entryMap, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		hooks, ok := entryMap["hooks"].([]any)
		if !ok {
			continue
		}
		for _, h := range hooks {
			hMap, ok := h.(map[string]any)
			if !ok {
				continue
			}
			cmd, _ := hMap["command"].(string)
			if IsPostflightHookCommand(cmd) {
				return true
			}
		}
	}
	return false
}

// IsPostflightHookCommand checks if a command string is a postflight hook
// command.
func IsPostflightHookCommand(command string) bool {
	cmd := strings.TrimSpace(command)
	if cmd == "" {
		return false
	}
	parts := strings.Fields(cmd)
	if len(parts) < 3 {
		return false
	}

	execToken := strings.Trim(parts[0], "\"'")
	if filepath.Base(execToken) != "postflight" {
		return false
	}
	if parts[1] != "hook" {
		return false
	}

	switch parts[2] {
	case "stop", "session-start", "scan":
		return true
	default:
		return false
	}
}

func hookEntryEqual(a, b map[string]any) bool {
	aj, _ := json.Marshal(a)
	bj, _ := json.Marshal(b)
	return string(aj) == string(bj)
}

type installOutcome int

const (
	hookInstalled installOutcome = iota
	hookUpdated
	hookSkipped
)

// upsertPostflightHookEntry replaces any existing postflight entry for an
// event with newEntry, preserving foreign entries untouched.
func upsertPostflightHookEntry(existing []any, newEntry map[string]any) ([]any, installOutcome) {
	var kept []any
	hadOurs := false
	matchingOurs := false

	for _, currentEntry := range existing {
		entryObj, ok := currentEntry.(map[string]any)
		if !ok {
			kept = append(kept, currentEntry)
			continue
		}
		hooks, ok := entryObj["hooks"].([]any)
		if !ok {
			kept = append(kept, currentEntry)
			continue
		}
		isOurs := false
		for _, h := range hooks {
			hMap, ok := h.(map[string]any)
			if !ok {
				continue
			}
			cmd, _ := hMap["command"].(string)
			if IsPostflightHookCommand(cmd) {
				isOurs = true
				break
			}
		}
		if isOurs {
			hadOurs = true
			if hookEntryEqual(entryObj, newEntry) {
				matchingOurs = true
			}
			continue
		}
		kept = append(kept, currentEntry)
	}

	kept = append(kept, newEntry)
	if matchingOurs {
		return kept, hookSkipped
	}
	if hadOurs {
		return kept, hookUpdated
	}
	return kept, hookInstalled
}

// InstallState reports which postflight hooks the user-level settings file
// currently registers.
type InstallState struct {
	Path         string `json:"path"`
	Stop         bool   `json:"stop"`
	SessionStart bool   `json:"session_start"`
}

// CurrentInstallState inspects ~/.claude/settings.json without modifying it.
func CurrentInstallState() InstallState {
	path := claudeSettingsPath()
	state := InstallState{Path: path}

	settings, err := readSettings(path)
	if err != nil {
		return state
	}
	hooksObj, _ := settings["hooks"].(map[string]any)
	if hooksObj == nil {
		return state
	}

	if entries, ok := hooksObj["Stop"].([]any); ok {
		state.Stop = HasPostflightHook(entries)
	}
	if entries, ok := hooksObj["SessionStart"].([]any); ok {
		state.SessionStart = HasPostflightHook(entries)
	}
	return state
}

// NewInstallCmd creates the hook install command.
func NewInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install postflight hooks into Claude Code settings",
		Long:  "Registers the Stop and SessionStart hooks in Claude Code's settings.json. Existing foreign hooks are preserved.",
		RunE: func(cmd *cobra.Command, args []string) error {
			projectScoped, _ := cmd.Flags().GetBool("project")
			path := resolveClaudeSettingsPath(projectScoped)

			settings, err := readSettings(path)
			if err != nil {
				return err
			}

			hooksObj, _ := settings["hooks"].(map[string]any)
			if hooksObj == nil {
				hooksObj = map[string]any{}
			}

			var installed []string
			var updated []string
			var skipped []string

			for eventName, entry := range postflightHooks() {
				existing, _ := hooksObj[eventName].([]any)

				entryJSON, _ := json.Marshal(entry)
				var entryMap map[string]any
				_ = json.Unmarshal(entryJSON, &entryMap)

				entries, outcome := upsertPostflightHookEntry(existing, entryMap)
				hooksObj[eventName] = entries

				switch outcome {
				case hookInstalled:
					installed = append(installed, eventName)
				case hookUpdated:
					updated = append(updated, eventName)
				case hookSkipped:
					skipped = append(skipped, eventName)
				}
			}

			settings["hooks"] = hooksObj
			if err := writeSettings(path, settings); err != nil {
				return err
			}

			sort.Strings(installed)
			sort.Strings(updated)
			sort.Strings(skipped)

			var parts []string
			if len(installed) > 0 {
				parts = append(parts, fmt.Sprintf("hooks installed (%s)", strings.Join(installed, ", ")))
			}
			if len(updated) > 0 {
				parts = append(parts, fmt.Sprintf("hooks updated (%s)", strings.Join(updated, ", ")))
			}
			if len(installed) == 0 && len(updated) == 0 {
				parts = append(parts, "hooks already installed")
			}

			type result struct {
				Message   string   `json:"message"`
				Path      string   `json:"path"`
				Installed []string `json:"installed"`
				Updated   []string `json:"updated,omitempty"`
				Skipped   []string `json:"skipped"`
			}
			return output.PrintSuccess(result{
				Message:   strings.Join(parts, "; ") + ". Run 'postflight status' to verify.",
				Path:      path,
				Installed: installed,
				Updated:   updated,
				Skipped:   skipped,
			})
		},
	}

	cmd.Flags().Bool("project", false, "Install hooks in ./.claude/settings.json")

	return cmd
}

// NewStatusCmd creates the hook status command: reports which postflight
// hooks are registered without touching the settings file.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which postflight hooks are registered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return output.PrintSuccess(CurrentInstallState())
		},
	}
}

// NewUninstallCmd creates the hook uninstall command.
//
//nolint:gocognit // settings surgery keeps foreign entries intact, which takes branches
func NewUninstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Remove postflight hooks from Claude Code settings",
		Long:  "Removes postflight hook entries from Claude Code's settings.json. Foreign hooks are preserved.",
		RunE: func(cmd *cobra.Command, args []string) error {
			projectScoped, _ := cmd.Flags().GetBool("project")
			path := resolveClaudeSettingsPath(projectScoped)

			settings, err := readSettings(path)
			if err != nil {
				return err
			}

			type result struct {
				Path    string   `json:"path"`
				Removed []string `json:"removed"`
			}

			hooksObj, _ := settings["hooks"].(map[string]any)
			if hooksObj == nil {
				return output.PrintSuccess(result{Path: path, Removed: []string{}})
			}

			var removed []string
			for _, eventName := range postflightHookEventNames() {
				entries, ok := hooksObj[eventName].([]any)
				if !ok {
					continue
				}

				var kept []any
				for _, entry := range entries {
					entryMap, ok := entry.(map[string]any)
					if !ok {
						kept = append(kept, entry)
						continue
					}
					hooks, ok := entryMap["hooks"].([]any)
					if !ok {
						kept = append(kept, entry)
						continue
					}

					isOurs := false
					for _, h := range hooks {
						hMap, ok := h.(map[string]any)
						if !ok {
							continue
						}
						cmd, _ := hMap["command"].(string)
						if IsPostflightHookCommand(cmd) {
							isOurs = true
							break
						}
					}

					if !isOurs {
						kept = append(kept, entry)
					}
				}

				if len(kept) != len(entries) {
					removed = append(removed, eventName)
				}

				if len(kept) == 0 {
					delete(hooksObj, eventName)
				} else {
					hooksObj[eventName] = kept
				}
			}

			settings["hooks"] = hooksObj
			if err := writeSettings(path, settings); err != nil {
				return err
			}

			sort.Strings(removed)
			return output.PrintSuccess(result{Path: path, Removed: removed})
		},
	}

	cmd.Flags().Bool("project", false, "Uninstall hooks from ./.claude/settings.json")

	return cmd
}
