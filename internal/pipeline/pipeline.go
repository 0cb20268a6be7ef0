// Package pipeline holds the media stages a job flows through: speech
// synthesis, head animation, lip sync, upscaling and final upload. Each
// stage reads refs produced by earlier stages and returns the ref it
// wrote, so the orchestrator stays ignorant of media formats.
package pipeline

import "context"

// StageContext carries everything a stage may need. Stages fill in the
// refs they produce so later stages can consume them.
type StageContext struct {
	JobID     string
	OwnerID   string
	ImageRef  string
	AudioRef  string
	Text      string
	SpeechRef string
	VideoRef  string
}

// StageResult is the output ref of a finished stage.
type StageResult struct {
	Stage     string
	OutputRef string
}

// Stage is a single step of the generation pipeline.
type Stage interface {
	Name() string
	Execute(ctx context.Context, sc *StageContext) (*StageResult, error)
}
