package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/mitchellh/go-wordwrap"
)

// ErrorKind identifies an orchestration-level failure.
type ErrorKind string

const (
	// ErrorKindInvalidConfig indicates the config does not match the schema.
	ErrorKindInvalidConfig ErrorKind = "InvalidConfig"

	// ErrorKindInvalidJSON indicates the config file could not be parsed.
	ErrorKindInvalidJSON ErrorKind = "InvalidJSON"

	// ErrorKindConfigFileExists indicates a config write would overwrite an existing file.
	ErrorKindConfigFileExists ErrorKind = "ConfigFileExists"

	// ErrorKindConfigNotFound indicates an explicitly requested config is missing.
	ErrorKindConfigNotFound ErrorKind = "ConfigNotFound"

	// ErrorKindRemoteConfigFetch indicates a remote config could not be downloaded.
	ErrorKindRemoteConfigFetch ErrorKind = "RemoteConfigFetch"

	// ErrorKindPluginNotFound indicates a configured plugin is not in the catalog.
	ErrorKindPluginNotFound ErrorKind = "PluginNotFound"

	// ErrorKindTasksNotFound indicates one or more --task names matched nothing.
	ErrorKindTasksNotFound ErrorKind = "TasksNotFound"

	// ErrorKindDuplicateTask indicates a task name was registered twice.
	ErrorKindDuplicateTask ErrorKind = "DuplicateTask"

	// ErrorKindInvalidFlags indicates an unusable combination of CLI flags.
	ErrorKindInvalidFlags ErrorKind = "InvalidFlags"

	// ErrorKindUnknown wraps errors that carry no kind of their own.
	ErrorKindUnknown ErrorKind = "Unknown"
)

// ErrorOptions is the option bag used to build messages.
type ErrorOptions struct {
	ConfigPath        string
	ConfigDestination string
	URL               string
	PluginName        string
	TaskName          string
	TaskNames         []string
	Reason            string
	Err               error
}

// ErrorDetails is the fixed description of an ErrorKind.
type ErrorDetails struct {
	Message      func(opts ErrorOptions) string
	CallToAction func(opts ErrorOptions) string
	ErrorCode    int
}

var errorsByKind = map[ErrorKind]ErrorDetails{
	ErrorKindInvalidConfig: {
		Message: func(o ErrorOptions) string {
			return fmt.Sprintf("Config in %s is invalid.", o.ConfigPath)
		},
		CallToAction: func(o ErrorOptions) string {
			return fmt.Sprintf("Please ensure the config is valid and matches the schema at %s", ConfigSchemaURL)
		},
		ErrorCode: 1,
	},
	ErrorKindInvalidJSON: {
		Message: func(o ErrorOptions) string {
			return fmt.Sprintf("The checkup config at %s contains invalid JSON.\nError: %s", o.ConfigPath, errText(o.Err))
		},
		CallToAction: func(o ErrorOptions) string {
			return "Please ensure the config file is valid JSON"
		},
		ErrorCode: 1,
	},
	ErrorKindConfigFileExists: {
		Message: func(o ErrorOptions) string {
			return "Checkup config file exists in this directory"
		},
		CallToAction: func(o ErrorOptions) string {
			return fmt.Sprintf("Remove the existing config file in %s, or choose a different destination", o.ConfigDestination)
		},
		ErrorCode: 1,
	},
	ErrorKindConfigNotFound: {
		Message: func(o ErrorOptions) string {
			return fmt.Sprintf("Could not find a checkup config at %s", o.ConfigPath)
		},
		CallToAction: func(o ErrorOptions) string {
			return "Run `checkup config init` to create one"
		},
		ErrorCode: 1,
	},
	ErrorKindRemoteConfigFetch: {
		Message: func(o ErrorOptions) string {
			return fmt.Sprintf("Could not fetch the checkup config from %s: %s", o.URL, errText(o.Err))
		},
		CallToAction: func(o ErrorOptions) string {
			return "Check that the URL is reachable and returns a JSON document"
		},
		ErrorCode: 1,
	},
	ErrorKindPluginNotFound: {
		Message: func(o ErrorOptions) string {
			return fmt.Sprintf("Cannot find the %s plugin", o.PluginName)
		},
		CallToAction: func(o ErrorOptions) string {
			return "Make sure the plugin is compiled into checkup, or remove it from the config"
		},
		ErrorCode: 1,
	},
	ErrorKindTasksNotFound: {
		Message: func(o ErrorOptions) string {
			suffix := ""
			if len(o.TaskNames) > 1 {
				suffix = "s"
			}
			return fmt.Sprintf("Cannot find the %s task%s.", strings.Join(o.TaskNames, ","), suffix)
		},
		CallToAction: func(o ErrorOptions) string {
			return "Run `checkup --listTasks` to see available tasks"
		},
		ErrorCode: 1,
	},
	ErrorKindDuplicateTask: {
		Message: func(o ErrorOptions) string {
			return fmt.Sprintf("A task named %s is already registered", o.TaskName)
		},
		CallToAction: func(o ErrorOptions) string {
			return "Task names must be unique within a plugin"
		},
		ErrorCode: 1,
	},
	ErrorKindInvalidFlags: {
		Message: func(o ErrorOptions) string {
			return o.Reason
		},
		CallToAction: func(o ErrorOptions) string {
			return "Run `checkup --help` for usage"
		},
		ErrorCode: 1,
	},
	ErrorKindUnknown: {
		Message: func(o ErrorOptions) string {
			return errText(o.Err)
		},
		CallToAction: func(o ErrorOptions) string {
			return "Please report this issue at https://github.com/checkupjs/checkup/issues"
		},
		ErrorCode: 1,
	},
}

func errText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// CheckupError is a fatal orchestration error with a remediation hint and exit code.
type CheckupError struct {
	Kind         ErrorKind `json:"kind"`
	Message      string    `json:"message"`
	CallToAction string    `json:"callToAction"`
	ErrorCode    int       `json:"errorCode"`

	options ErrorOptions
	stack   []uintptr
}

// NewCheckupError builds an error of the given kind. The message is computed immediately.
func NewCheckupError(kind ErrorKind, opts ErrorOptions) *CheckupError {
	details, ok := errorsByKind[kind]
	if !ok {
		kind = ErrorKindUnknown
		details = errorsByKind[kind]
	}

	pcs := make([]uintptr, 32)
	n := runtime.Callers(2, pcs)

	return &CheckupError{
		Kind:         kind,
		Message:      details.Message(opts),
		CallToAction: details.CallToAction(opts),
		ErrorCode:    details.ErrorCode,
		options:      opts,
		stack:        pcs[:n],
	}
}

// AsCheckupError returns err as a CheckupError, wrapping it as ErrorKindUnknown if needed.
func AsCheckupError(err error) *CheckupError {
	if err == nil {
		return nil
	}
	var ce *CheckupError
	if errors.As(err, &ce) {
		return ce
	}
	return NewCheckupError(ErrorKindUnknown, ErrorOptions{Err: err})
}

// Error implements the error interface.
func (e *CheckupError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error, if any.
func (e *CheckupError) Unwrap() error {
	return e.options.Err
}

// Is reports whether target is a CheckupError of the same kind.
func (e *CheckupError) Is(target error) bool {
	t, ok := target.(*CheckupError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// IsKind reports whether err is a CheckupError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ce *CheckupError
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}

// RenderOptions controls how a CheckupError is rendered.
type RenderOptions struct {
	// Version is written to the head of the error log.
	Version string

	// LogDir is the directory that receives error logs. Defaults to <cwd>/.checkup.
	LogDir string

	// CI disables the error log. Defaults to IsCI().
	CI *bool

	// Now is used for the log file name. Defaults to time.Now.
	Now func() time.Time
}

// Render returns the user-facing text and the process exit code. Outside CI
// it also persists an error log and appends its path to the text.
func (e *CheckupError) Render(opts RenderOptions) (string, int) {
	details := []string{
		fmt.Sprintf("%s: %s", errorHeader, e.Message),
		e.CallToAction,
	}

	ci := IsCI()
	if opts.CI != nil {
		ci = *opts.CI
	}
	if ci {
		return colorHeader(strings.Join(details, "\n")), e.ErrorCode
	}

	logPath, err := e.writeErrorLog(details, opts)
	if err != nil {
		details = append(details, fmt.Sprintf("Error details could not be written: %v", err))
	} else {
		details = append(details, fmt.Sprintf("Error details written to %s", logPath))
	}

	return colorHeader(wrapHard(strings.Join(details, "\n"), renderWidth)), e.ErrorCode
}

const (
	errorHeader = "Checkup Error"
	renderWidth = 80
)

// colorHeader colors the leading error header. It runs after wrapping so
// escape sequences never count toward line width.
func colorHeader(s string) string {
	return strings.Replace(s, errorHeader, color.New(color.FgRed, color.OpBold).Sprint(errorHeader), 1)
}

// wrapHard wraps s at word boundaries, then splits any word still longer
// than width, so no line exceeds width runes.
func wrapHard(s string, width int) string {
	lines := strings.Split(wordwrap.WrapString(s, uint(width)), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		runes := []rune(line)
		for len(runes) > width {
			out = append(out, string(runes[:width]))
			runes = runes[width:]
		}
		out = append(out, string(runes))
	}
	return strings.Join(out, "\n")
}

func (e *CheckupError) writeErrorLog(details []string, opts RenderOptions) (string, error) {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	logDir := opts.LogDir
	if logDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to resolve working directory: %w", err)
		}
		logDir = filepath.Join(cwd, ".checkup")
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}

	logFilePath := filepath.Join(logDir, fmt.Sprintf("checkup-error-%s.log", now().Format("2006-01-02-15_04_05")))

	output := []string{
		fmt.Sprintf("Checkup v%s", version),
		"",
		StripANSI(strings.Join(details, "\n")),
		"",
		e.cleanStack(),
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create log directory %s: %w", logDir, err)
	}
	if err := os.WriteFile(logFilePath, []byte(strings.Join(output, "\n")), 0644); err != nil {
		return "", fmt.Errorf("failed to write error log: %w", err)
	}

	return logFilePath, nil
}

// cleanStack formats the captured frames without runtime internals.
func (e *CheckupError) cleanStack() string {
	if len(e.stack) == 0 {
		return "No stack available"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("CheckupError: %s", e.Message))
	frames := runtime.CallersFrames(e.stack)
	for {
		frame, more := frames.Next()
		if !strings.HasPrefix(frame.Function, "runtime.") && frame.Function != "" {
			b.WriteString(fmt.Sprintf("\n    at %s (%s:%d)", frame.Function, frame.File, frame.Line))
		}
		if !more {
			break
		}
	}
	return b.String()
}

var ansiPattern = regexp.MustCompile("\x1b\\[[0-9;]*[A-Za-z]")

// StripANSI removes terminal color sequences.
func StripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}
