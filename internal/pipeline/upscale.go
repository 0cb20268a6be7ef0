package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"server/internal/storage"
)

// UpscaleStage sharpens the lip-synced video to delivery resolution.
type UpscaleStage struct {
	Client *Client
	Store  *storage.FileStore
}

type upscaleRequest struct {
	VideoRef string `json:"video_ref"`
	JobID    string `json:"job_id"`
}

func (s *UpscaleStage) Name() string { return "upscale" }

func (s *UpscaleStage) Execute(ctx context.Context, sc *StageContext) (*StageResult, error) {
	if sc.VideoRef == "" {
		return nil, errors.New("upscale: no video ref from previous stage")
	}

	var data []byte
	if s.Client.Synthetic() {
		data = syntheticBytes(s.Name(), sc.JobID+":"+sc.VideoRef, 512*1024)
	} else {
		var resp videoResponse
		if err := s.Client.postJSON(ctx, "/v1/upscale", upscaleRequest{VideoRef: sc.VideoRef, JobID: sc.JobID}, &resp); err != nil {
			return nil, err
		}
		decoded, err := base64.StdEncoding.DecodeString(resp.VideoB64)
		if err != nil {
			return nil, fmt.Errorf("upscale: decode video: %w", err)
		}
		data = decoded
	}

	key, err := s.Store.Write(ctx, fmt.Sprintf("jobs/%s/upscale.mp4", sc.JobID), data)
	if err != nil {
		return nil, fmt.Errorf("upscale: store video: %w", err)
	}
	sc.VideoRef = key
	return &StageResult{Stage: s.Name(), OutputRef: key}, nil
}

var _ Stage = (*UpscaleStage)(nil)
