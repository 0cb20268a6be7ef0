package pipeline

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"server/internal/storage"
)

func newTestStore(t *testing.T) *storage.FileStore {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return store
}

func TestSyntheticPipelineEndToEnd(t *testing.T) {
	store := newTestStore(t)
	client := NewClient(Options{})
	if !client.Synthetic() {
		t.Fatal("client without base URL should be synthetic")
	}

	sc := &StageContext{
		JobID:    "6a0e58a5-16b0-4f31-9df5-5ce1b7b0c0de",
		OwnerID:  "owner",
		ImageRef: "uploads/face.png",
		Text:     "hello there",
	}

	stages := []Stage{
		&SpeechStage{Client: client, Store: store},
		&AnimateStage{Client: client, Store: store},
		&LipSyncStage{Client: client, Store: store},
		&UpscaleStage{Client: client, Store: store},
	}
	for _, st := range stages {
		res, err := st.Execute(context.Background(), sc)
		if err != nil {
			t.Fatalf("%s: %v", st.Name(), err)
		}
		if res.OutputRef == "" {
			t.Fatalf("%s: empty output ref", st.Name())
		}
		if _, err := store.Read(context.Background(), res.OutputRef); err != nil {
			t.Fatalf("%s: output not stored: %v", st.Name(), err)
		}
	}

	upload := &UploadStage{Store: store, BaseURL: "https://cdn.example.com"}
	res, err := upload.Execute(context.Background(), sc)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	want := "https://cdn.example.com/artifacts/" + sc.JobID + ".mp4"
	if res.OutputRef != want {
		t.Fatalf("artifact ref = %q, want %q", res.OutputRef, want)
	}
}

func TestSpeechStageReusesProvidedAudio(t *testing.T) {
	store := newTestStore(t)
	st := &SpeechStage{Client: NewClient(Options{}), Store: store}

	sc := &StageContext{JobID: "j1", AudioRef: "uploads/voice.wav", Text: "ignored"}
	res, err := st.Execute(context.Background(), sc)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.OutputRef != "uploads/voice.wav" || sc.SpeechRef != "uploads/voice.wav" {
		t.Fatalf("expected provided audio to be reused, got %q", res.OutputRef)
	}
}

func TestSpeechStageRequiresInput(t *testing.T) {
	st := &SpeechStage{Client: NewClient(Options{}), Store: newTestStore(t)}
	if _, err := st.Execute(context.Background(), &StageContext{JobID: "j1"}); err == nil {
		t.Fatal("expected error for job with neither audio nor text")
	}
}

func TestSyntheticOutputIsDeterministic(t *testing.T) {
	a := syntheticBytes("speech", "seed", 1024)
	b := syntheticBytes("speech", "seed", 1024)
	if !bytes.Equal(a, b) {
		t.Fatal("same seed should produce identical bytes")
	}
	c := syntheticBytes("speech", "other", 1024)
	if bytes.Equal(a, c) {
		t.Fatal("different seeds should produce different bytes")
	}
}

func TestStageOrderGuards(t *testing.T) {
	store := newTestStore(t)
	client := NewClient(Options{})

	if _, err := (&AnimateStage{Client: client, Store: store}).Execute(context.Background(), &StageContext{JobID: "j", ImageRef: "img"}); err == nil || !strings.Contains(err.Error(), "speech ref") {
		t.Fatalf("animate without speech ref: %v", err)
	}
	if _, err := (&LipSyncStage{Client: client, Store: store}).Execute(context.Background(), &StageContext{JobID: "j", SpeechRef: "s"}); err == nil || !strings.Contains(err.Error(), "video ref") {
		t.Fatalf("lipsync without video ref: %v", err)
	}
	if _, err := (&UpscaleStage{Client: client, Store: store}).Execute(context.Background(), &StageContext{JobID: "j"}); err == nil {
		t.Fatal("upscale without video ref should fail")
	}
	if _, err := (&UploadStage{Store: store}).Execute(context.Background(), &StageContext{JobID: "j"}); err == nil {
		t.Fatal("upload without video ref should fail")
	}
}
