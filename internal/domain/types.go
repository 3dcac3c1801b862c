package domain

// JobStatus tracks each stage of a single sanitization operation.
type JobStatus string

const (
	JobStatusIdle       JobStatus = "idle"
	JobStatusStaging    JobStatus = "staging"
	JobStatusExecuting  JobStatus = "executing"
	JobStatusCollecting JobStatus = "collecting"
	JobStatusCleanup    JobStatus = "cleanup"
	JobStatusDone       JobStatus = "done"
	JobStatusFailed     JobStatus = "failed"
)

// Settings contains user-selectable runtime configuration.
type Settings struct {
	FFmpegPath  string `json:"ffmpegPath" toml:"ffmpeg_path"`
	StagingRoot string `json:"stagingRoot" toml:"staging_root"`
	OutputDir   string `json:"outputDir" toml:"output_dir"`
	AutoInstall bool   `json:"autoInstall" toml:"auto_install"`
	LogLevel    string `json:"logLevel" toml:"log_level"`
	DefaultMode Mode   `json:"defaultMode" toml:"default_mode"`
}

// Job stores the current job identity and lifecycle status.
type Job struct {
	ID     string    `json:"id"`
	Mode   Mode      `json:"mode,omitempty"`
	Status JobStatus `json:"status"`
}
