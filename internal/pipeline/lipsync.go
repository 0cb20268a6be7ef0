package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"server/internal/storage"
)

// LipSyncStage aligns the mouth region of the animated video with the
// driving audio.
type LipSyncStage struct {
	Client *Client
	Store  *storage.FileStore
}

type lipSyncRequest struct {
	VideoRef  string `json:"video_ref"`
	SpeechRef string `json:"speech_ref"`
	JobID     string `json:"job_id"`
}

func (s *LipSyncStage) Name() string { return "lipsync" }

func (s *LipSyncStage) Execute(ctx context.Context, sc *StageContext) (*StageResult, error) {
	if sc.VideoRef == "" {
		return nil, errors.New("lipsync: no video ref from previous stage")
	}
	if sc.SpeechRef == "" {
		return nil, errors.New("lipsync: no speech ref from previous stage")
	}

	var data []byte
	if s.Client.Synthetic() {
		data = syntheticBytes(s.Name(), sc.JobID+":"+sc.VideoRef, 256*1024)
	} else {
		var resp videoResponse
		req := lipSyncRequest{VideoRef: sc.VideoRef, SpeechRef: sc.SpeechRef, JobID: sc.JobID}
		if err := s.Client.postJSON(ctx, "/v1/lipsync", req, &resp); err != nil {
			return nil, err
		}
		decoded, err := base64.StdEncoding.DecodeString(resp.VideoB64)
		if err != nil {
			return nil, fmt.Errorf("lipsync: decode video: %w", err)
		}
		data = decoded
	}

	key, err := s.Store.Write(ctx, fmt.Sprintf("jobs/%s/lipsync.mp4", sc.JobID), data)
	if err != nil {
		return nil, fmt.Errorf("lipsync: store video: %w", err)
	}
	sc.VideoRef = key
	return &StageResult{Stage: s.Name(), OutputRef: key}, nil
}

var _ Stage = (*LipSyncStage)(nil)
