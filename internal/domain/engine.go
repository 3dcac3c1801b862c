package domain

// EngineState is the process-wide load state of the transcoding engine.
type EngineState string

const (
	EngineNotLoaded EngineState = "not_loaded"
	EngineLoading   EngineState = "loading"
	EngineLoaded    EngineState = "loaded"
	EngineFailed    EngineState = "failed"
)

// EngineStatus is a snapshot of the engine state. Reason is set only when
// State is EngineFailed.
type EngineStatus struct {
	State   EngineState `json:"state"`
	Reason  string      `json:"reason,omitempty"`
	Version string      `json:"version,omitempty"`
}
