// Package transcript reads Claude Code session transcripts (JSONL) and
// extracts the pieces the session summary needs: the last user prompt, an
// excerpt of the last assistant response, and the files modified by editing
// tools during the session.
package transcript

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"strings"
)

const (
	maxPromptLen  = 500
	maxExcerptLen = 2000
)

// editingTools maps tool names that write to files. Only their file_path
// (or notebook_path) inputs count as session modifications.
var editingTools = map[string]bool{
	"Edit":         true,
	"Write":        true,
	"MultiEdit":    true,
	"NotebookEdit": true,
}

// Info holds what a transcript contributes to the session summary and to
// the modified-file validation pass.
type Info struct {
	LastUserPrompt      string
	LastResponseExcerpt string
	ModifiedFiles       []string
}

type contentItem struct {
	Type  string          `json:"type"`
	Text  string          `json:"text"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

type transcriptMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type transcriptRecord struct {
	Type    string            `json:"type"`
	Message transcriptMessage `json:"message"`
}

type toolFileInput struct {
	FilePath     string `json:"file_path"`
	NotebookPath string `json:"notebook_path"`
}

// Read streams the transcript line by line and returns the extracted Info.
// An empty path yields a zero Info without error; the caller decides how to
// degrade. Individual malformed lines are skipped.
func Read(path string) (Info, error) {
	if path == "" {
		return Info{}, nil
	}
	f, err := os.Open(path) //nolint:gosec // G304: path comes from the hook payload
	if err != nil {
		return Info{}, err
	}
	defer f.Close()
	return parse(f)
}

func parse(r io.Reader) (Info, error) {
	var info Info
	seen := make(map[string]bool)

	// Transcript lines routinely exceed bufio.Scanner's default token size
	// (large tool outputs), so read with an unbounded line reader.
	br := bufio.NewReaderSize(r, 64*1024)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			consumeLine(strings.TrimSpace(line), &info, seen)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return info, err
		}
	}
	return info, nil
}

func consumeLine(line string, info *Info, seen map[string]bool) {
	if line == "" {
		return
	}
	var rec transcriptRecord
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return
	}
	if rec.Type != "user" && rec.Type != "assistant" {
		return
	}

	items := contentItems(rec.Message.Content)
	var textParts []string
	for _, item := range items {
		switch item.Type {
		case "text":
			if item.Text != "" {
				textParts = append(textParts, item.Text)
			}
		case "tool_use":
			if p := modifiedPath(item); p != "" && !seen[p] {
				seen[p] = true
				info.ModifiedFiles = append(info.ModifiedFiles, p)
			}
		}
	}
	if len(textParts) == 0 {
		return
	}

	text := strings.Join(textParts, " ")
	switch rec.Type {
	case "user":
		info.LastUserPrompt, _ = truncateString(text, maxPromptLen)
	case "assistant":
		info.LastResponseExcerpt, _ = truncateString(text, maxExcerptLen)
	}
}

// contentItems accepts both content encodings Claude Code emits: an array of
// typed blocks, or a bare string for plain user prompts.
func contentItems(raw json.RawMessage) []contentItem {
	if len(raw) == 0 {
		return nil
	}
	var items []contentItem
	if err := json.Unmarshal(raw, &items); err == nil {
		return items
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return []contentItem{{Type: "text", Text: s}}
	}
	return nil
}

func modifiedPath(item contentItem) string {
	if !editingTools[item.Name] {
		return ""
	}
	var in toolFileInput
	if err := json.Unmarshal(item.Input, &in); err != nil {
		return ""
	}
	if in.FilePath != "" {
		return in.FilePath
	}
	return in.NotebookPath
}

func truncateString(raw string, max int) (string, bool) {
	if max <= 0 {
		return raw, false
	}
	runes := []rune(raw)
	if len(runes) <= max {
		return raw, false
	}
	return string(runes[:max]), true
}
