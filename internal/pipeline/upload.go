package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"server/internal/storage"
)

// UploadStage publishes the finished video under the stable artifact
// key and returns the public URL. Intermediate stage outputs stay in
// place for debugging until retention removes them.
type UploadStage struct {
	Store   *storage.FileStore
	BaseURL string
}

func (s *UploadStage) Name() string { return "upload" }

func (s *UploadStage) Execute(ctx context.Context, sc *StageContext) (*StageResult, error) {
	if sc.VideoRef == "" {
		return nil, errors.New("upload: no video ref from previous stage")
	}

	data, err := s.Store.Read(ctx, sc.VideoRef)
	if err != nil {
		return nil, fmt.Errorf("upload: read final video: %w", err)
	}
	key, err := s.Store.Write(ctx, fmt.Sprintf("artifacts/%s.mp4", sc.JobID), data)
	if err != nil {
		return nil, fmt.Errorf("upload: publish artifact: %w", err)
	}

	ref := key
	if base := strings.TrimRight(s.BaseURL, "/"); base != "" {
		ref = base + "/" + key
	}
	return &StageResult{Stage: s.Name(), OutputRef: ref}, nil
}

var _ Stage = (*UploadStage)(nil)
