package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"server/internal/storage"
)

// AnimateStage turns the source image plus the driving audio into a raw
// head-motion video.
type AnimateStage struct {
	Client *Client
	Store  *storage.FileStore
}

type animateRequest struct {
	ImageRef  string `json:"image_ref"`
	SpeechRef string `json:"speech_ref"`
	JobID     string `json:"job_id"`
}

type videoResponse struct {
	VideoB64 string `json:"video_b64"`
	Format   string `json:"format"`
}

func (s *AnimateStage) Name() string { return "animate" }

func (s *AnimateStage) Execute(ctx context.Context, sc *StageContext) (*StageResult, error) {
	if sc.ImageRef == "" {
		return nil, errors.New("animate: job has no image ref")
	}
	if sc.SpeechRef == "" {
		return nil, errors.New("animate: no speech ref from previous stage")
	}

	var data []byte
	if s.Client.Synthetic() {
		data = syntheticBytes(s.Name(), sc.JobID+":"+sc.ImageRef+":"+sc.SpeechRef, 256*1024)
	} else {
		var resp videoResponse
		req := animateRequest{ImageRef: sc.ImageRef, SpeechRef: sc.SpeechRef, JobID: sc.JobID}
		if err := s.Client.postJSON(ctx, "/v1/animate", req, &resp); err != nil {
			return nil, err
		}
		decoded, err := base64.StdEncoding.DecodeString(resp.VideoB64)
		if err != nil {
			return nil, fmt.Errorf("animate: decode video: %w", err)
		}
		data = decoded
	}

	key, err := s.Store.Write(ctx, fmt.Sprintf("jobs/%s/animate.mp4", sc.JobID), data)
	if err != nil {
		return nil, fmt.Errorf("animate: store video: %w", err)
	}
	sc.VideoRef = key
	return &StageResult{Stage: s.Name(), OutputRef: key}, nil
}

var _ Stage = (*AnimateStage)(nil)
