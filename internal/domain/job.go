package domain

import "time"

// JobState enumerates the generation job lifecycle states.
type JobState string

const (
	StatePending         JobState = "pending"
	StateProcessingAudio JobState = "processing_audio"
	StateProcessingVideo JobState = "processing_video"
	StateUploading       JobState = "uploading"
	StateCompleted       JobState = "completed"
	StateFailed          JobState = "failed"
)

// Progress checkpoints per stage. Progress only ever moves forward.
const (
	ProgressQueued    = 0
	ProgressAdmitted  = 10
	ProgressAudioDone = 40
	ProgressAnimated  = 50
	ProgressLipSynced = 62
	ProgressVideoDone = 75
	ProgressCompleted = 100
)

// Terminal reports whether no further transitions are allowed from s.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Valid reports whether s is a known lifecycle state.
func (s JobState) Valid() bool {
	switch s {
	case StatePending, StateProcessingAudio, StateProcessingVideo,
		StateUploading, StateCompleted, StateFailed:
		return true
	}
	return false
}

var forwardTransitions = map[JobState]JobState{
	StatePending:         StateProcessingAudio,
	StateProcessingAudio: StateProcessingVideo,
	StateProcessingVideo: StateUploading,
	StateUploading:       StateCompleted,
}

// CanTransition reports whether from -> to is a legal state machine edge.
// Every non-terminal state may fail; forward movement is strictly ordered.
func CanTransition(from, to JobState) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return from.Valid()
	}
	return forwardTransitions[from] == to
}

// InputRefs carries the opaque pointers the submission path validated.
// At least one of ImageRef/AudioRef/Text is set; the core never opens them.
type InputRefs struct {
	ImageRef string
	AudioRef string
	Text     string
}

// Job is one generation request moving through the stage pipeline.
// Rows are created by the submission wrapper and mutated only through
// compare-and-set transitions by the worker and the reaper.
type Job struct {
	ID           string
	OwnerID      string
	State        JobState
	Progress     int
	Price        int64
	Inputs       InputRefs
	SpeechRef    string
	VideoRef     string
	ArtifactRef  string
	ErrorMessage string
	ChargeID     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	StartedAt    *time.Time
	PurgedAt     *time.Time
}
