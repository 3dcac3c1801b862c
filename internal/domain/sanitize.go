package domain

// Mode selects one of the fixed sanitization presets.
type Mode string

const (
	ModeSanitize     Mode = "sanitize"
	ModeCI           Mode = "ci"
	ModeRemovePII    Mode = "pii"
	ModePrivacyGrain Mode = "grain"
)

// Options is the single source of truth read by the command builder.
type Options struct {
	StripMetadata         bool   `json:"stripMetadata"`
	DeterministicEncoding bool   `json:"deterministicEncoding"`
	OutputFormat          string `json:"outputFormat,omitempty"`
	ApplyGrain            bool   `json:"applyGrain"`
}

// SourceFile is the caller-supplied media. MediaType is the declared type
// and may be empty.
type SourceFile struct {
	Name      string
	MediaType string
	Data      []byte
}

// Request pairs a source file with the options to apply. Treat as immutable
// once constructed.
type Request struct {
	Mode    Mode
	Source  SourceFile
	Options Options
}

// Result is the sanitized output. The caller owns Data.
type Result struct {
	Data          []byte     `json:"-"`
	MimeType      string     `json:"mimeType"`
	Extension     string     `json:"extension"`
	SuggestedName string     `json:"suggestedName"`
	OutputPath    string     `json:"outputPath,omitempty"`
	Log           CommandLog `json:"log"`
}

// CommandLog captures one external engine invocation.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// ProcessingStatus is the caller-facing view of the orchestrator.
type ProcessingStatus struct {
	IsLoaded     bool   `json:"isLoaded"`
	IsProcessing bool   `json:"isProcessing"`
	Progress     int    `json:"progress"`
	Error        string `json:"error,omitempty"`
}

// ModeOption describes one preset for mode pickers.
type ModeOption struct {
	ID          Mode    `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Options     Options `json:"options"`
}
