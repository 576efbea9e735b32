package output

import (
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// recoverableError mirrors models.RecoverableError locally so Error() can
// detect enriched errors without a hard dependency on callers wrapping them.
type recoverableError interface {
	error
	ErrorCode() string
	Context() map[string]string
	SuggestedAction() string
}

// Response represents a standard JSON response
type Response struct {
	SchemaVersion   string            `json:"schema_version"`
	Success         bool              `json:"success"`
	Data            interface{}       `json:"data,omitempty"`
	Error           string            `json:"error,omitempty"`
	ErrorCode       string            `json:"error_code,omitempty"`
	ErrorContext    map[string]string `json:"error_context,omitempty"`
	SuggestedAction string            `json:"suggested_action,omitempty"`
}

// Success wraps a successful response with data
func Success(data interface{}) Response {
	return Response{
		SchemaVersion: "v1",
		Success:       true,
		Data:          data,
	}
}

// Error wraps an error in a response. Errors implementing
// models.RecoverableError contribute their code, context, and remediation.
func Error(err error) Response {
	resp := Response{
		SchemaVersion: "v1",
		Success:       false,
		Error:         err.Error(),
	}
	var re recoverableError
	if errors.As(err, &re) {
		resp.ErrorCode = re.ErrorCode()
		resp.ErrorContext = re.Context()
		resp.SuggestedAction = re.SuggestedAction()
	}
	return resp
}

// Config controls where and how JSON is written.
type Config struct {
	Writer io.Writer
	Pretty bool
}

// DefaultConfig writes to stdout. Output is compact by default to minimize
// token/output size for agent consumption; pretty JSON is enabled for humans
// via POSTFLIGHT_PRETTY_JSON=1 or when stdout is a terminal.
func DefaultConfig() Config {
	pretty := false
	switch os.Getenv("POSTFLIGHT_PRETTY_JSON") {
	case "1", "true":
		pretty = true
	case "0", "false":
		pretty = false
	default:
		pretty = isatty.IsTerminal(os.Stdout.Fd())
	}
	return Config{Writer: os.Stdout, Pretty: pretty}
}

// PrintWith encodes v as JSON per cfg.
func PrintWith(cfg Config, v interface{}) error {
	enc := json.NewEncoder(cfg.Writer)
	if cfg.Pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// Print prints a value as JSON to stdout using the default config.
func Print(v interface{}) error {
	return PrintWith(DefaultConfig(), v)
}

// PrintSuccess prints a success response
func PrintSuccess(data interface{}) error {
	return Print(Success(data))
}

// PrintError prints an error response
func PrintError(err error) error {
	return Print(Error(err))
}
