package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"server/internal/storage"
)

// SpeechStage produces the driving audio. Jobs submitted with an audio
// ref skip synthesis and reuse it; text jobs are synthesized through the
// speech backend.
type SpeechStage struct {
	Client *Client
	Store  *storage.FileStore
}

type speechRequest struct {
	Text  string `json:"text"`
	JobID string `json:"job_id"`
}

type speechResponse struct {
	AudioB64 string `json:"audio_b64"`
	Format   string `json:"format"`
}

func (s *SpeechStage) Name() string { return "speech" }

func (s *SpeechStage) Execute(ctx context.Context, sc *StageContext) (*StageResult, error) {
	if sc.AudioRef != "" {
		sc.SpeechRef = sc.AudioRef
		return &StageResult{Stage: s.Name(), OutputRef: sc.AudioRef}, nil
	}
	if sc.Text == "" {
		return nil, errors.New("speech: job has neither audio ref nor text")
	}

	var data []byte
	if s.Client.Synthetic() {
		data = syntheticBytes(s.Name(), sc.JobID+":"+sc.Text, 32*1024)
	} else {
		var resp speechResponse
		if err := s.Client.postJSON(ctx, "/v1/synthesize", speechRequest{Text: sc.Text, JobID: sc.JobID}, &resp); err != nil {
			return nil, err
		}
		decoded, err := base64.StdEncoding.DecodeString(resp.AudioB64)
		if err != nil {
			return nil, fmt.Errorf("speech: decode audio: %w", err)
		}
		data = decoded
	}

	key, err := s.Store.Write(ctx, fmt.Sprintf("jobs/%s/speech.wav", sc.JobID), data)
	if err != nil {
		return nil, fmt.Errorf("speech: store audio: %w", err)
	}
	sc.SpeechRef = key
	return &StageResult{Stage: s.Name(), OutputRef: key}, nil
}

var _ Stage = (*SpeechStage)(nil)
