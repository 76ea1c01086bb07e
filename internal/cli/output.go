package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/artdr/internal/errdefs"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Run failure (every back-end failed, storage integrity, I/O)
	ExitCommandError = 2 // Bad request (validation, unknown config or embedding)
)

// ErrCodeGeneric is reported for errors outside the errdefs taxonomy.
const ErrCodeGeneric = "ERROR"

// ExitError represents an error with a specific exit code.
// Commands return it after the error has been written to the output, so
// callers only need the code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for errors and diagnostics (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
	RunID  string    `json:"run_id,omitempty"`
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "VALIDATION", "NOT_FOUND", ...
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Result writes data as a JSON envelope, or calls text in text mode.
func (f *OutputFormatter) Result(data any, text func(w io.Writer) error) error {
	if f.Format == "json" {
		return f.Success(data)
	}
	return text(f.Writer)
}

// Error outputs an error in the configured format. JSON errors go to
// Writer so the envelope is always on stdout; text errors go to ErrWriter.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	w := f.GetErrWriter()
	fmt.Fprintf(w, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(w, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err and returns the ExitError the command should return.
func (f *OutputFormatter) Fail(err error) error {
	code := string(errdefs.CodeOf(err))
	if code == "" {
		code = ErrCodeGeneric
	}
	_ = f.Error(code, err.Error(), errorDetails(err))
	return WrapExitError(exitCodeFor(err), code, err)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// CauseDetail is one failed alternate in an ALGORITHM_UNAVAILABLE error.
type CauseDetail struct {
	Backend string `json:"backend"`
	Kind    string `json:"kind"`
	Error   string `json:"error"`
}

func errorDetails(err error) any {
	var ue *errdefs.AlgorithmUnavailableError
	if errors.As(err, &ue) {
		out := make([]CauseDetail, len(ue.Causes))
		for i, c := range ue.Causes {
			out[i] = CauseDetail{Backend: c.Backend, Kind: string(c.Kind)}
			if c.Err != nil {
				out[i].Error = c.Err.Error()
			}
		}
		return out
	}
	var ve *errdefs.ValidationError
	if errors.As(err, &ve) && ve.Field != "" {
		return map[string]string{"field": ve.Field}
	}
	return nil
}

func exitCodeFor(err error) int {
	if errdefs.IsValidation(err) || errdefs.IsNotFound(err) {
		return ExitCommandError
	}
	return ExitFailure
}
