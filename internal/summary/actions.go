package summary

import "github.com/dotcommander/postflight/internal/models"

// The follow-up action menu is a static registry of named workflows, each
// with an applicability predicate over (error_count, modified_file_count).
// The builder never hardcodes workflow logic beyond evaluating this table.

type registryEntry struct {
	action  models.ActionDescriptor
	applies func(errorCount, modifiedFileCount int) bool
}

var actionRegistry = []registryEntry{
	{
		action: models.ActionDescriptor{
			Name:        "review_validation_report",
			Description: "Open the raw validator report for this session",
			Command:     "postflight summaries show --latest",
		},
		applies: func(errorCount, _ int) bool { return errorCount > 0 },
	},
	{
		action: models.ActionDescriptor{
			Name:        "fix_reported_errors",
			Description: "Resume the assistant session to fix the reported errors",
			Command:     "claude --continue",
		},
		applies: func(errorCount, modifiedFileCount int) bool {
			return errorCount > 0 && modifiedFileCount > 0
		},
	},
	{
		action: models.ActionDescriptor{
			Name:        "rerun_validation",
			Description: "Re-run the full workspace scan after fixes land",
			Command:     "postflight hook scan",
		},
		applies: func(errorCount, _ int) bool { return errorCount > 0 },
	},
	{
		action: models.ActionDescriptor{
			Name:        "commit_session_changes",
			Description: "Review and commit the files modified during this session",
			Command:     "git add -p",
		},
		applies: func(errorCount, modifiedFileCount int) bool {
			return errorCount == 0 && modifiedFileCount > 0
		},
	},
}

// AvailableActions evaluates the registry. Pure: same inputs always yield
// the same actions in registry order. Returns an empty (non-nil) slice when
// nothing applies so the persisted JSON shows [] rather than null.
func AvailableActions(errorCount, modifiedFileCount int) []models.ActionDescriptor {
	actions := []models.ActionDescriptor{}
	for _, entry := range actionRegistry {
		if entry.applies(errorCount, modifiedFileCount) {
			actions = append(actions, entry.action)
		}
	}
	return actions
}
