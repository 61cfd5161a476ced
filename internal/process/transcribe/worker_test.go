package transcribe

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readstack/readstack/internal/core/domain"
	cerrors "github.com/readstack/readstack/internal/core/errors"
	"github.com/readstack/readstack/internal/core/metadata"
	db "github.com/readstack/readstack/internal/storage"
)

const podcastID = "33333333-3333-3333-3333-333333333333"

type mockRepo struct {
	contents  map[string]*domain.Content
	persisted map[string]map[string]any
}

func (m *mockRepo) GetContentByID(_ context.Context, id string) (*domain.Content, error) {
	c, ok := m.contents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", cerrors.ErrContentNotFound, id)
	}

	clone := *c
	clone.Metadata = metadata.Clone(c.Metadata)

	return &clone, nil
}

func (m *mockRepo) RefreshMergeContentMetadata(_ context.Context, id string, base, updated map[string]any, preserveLatest ...string) (map[string]any, error) {
	return metadata.Merge(m.contents[id].Metadata, base, updated, preserveLatest...), nil
}

func (m *mockRepo) UpdateContentMetadata(_ context.Context, id string, meta map[string]any) error {
	if m.persisted == nil {
		m.persisted = make(map[string]map[string]any)
	}

	m.persisted[id] = meta
	m.contents[id].Metadata = meta

	return nil
}

type mockQueue struct {
	enqueued []string
}

func (m *mockQueue) Dequeue(_ context.Context, _ string, _ ...string) (*db.Task, error) {
	return nil, nil
}

func (m *mockQueue) CompleteTask(_ context.Context, _ string, _ bool) error {
	return nil
}

func (m *mockQueue) Enqueue(_ context.Context, taskType, contentID string, _ map[string]any) (string, error) {
	m.enqueued = append(m.enqueued, taskType+":"+contentID)

	return "task-id", nil
}

type mockFetcher struct {
	body []byte
	err  error
}

func (m *mockFetcher) FetchContent(_ context.Context, _ string) ([]byte, http.Header, error) {
	return m.body, nil, m.err
}

type mockTranscriber struct {
	transcript string
	err        error
	gotName    string
}

func (m *mockTranscriber) TranscribeAudio(_ context.Context, filename string, _ []byte) (string, error) {
	m.gotName = filename

	return m.transcript, m.err
}

func podcastRow() *domain.Content {
	return &domain.Content{
		ID:       podcastID,
		Type:     domain.ContentTypePodcast,
		URL:      "https://example.com/episode",
		Status:   domain.StatusProcessing,
		Metadata: map[string]any{domain.MetaKeyAudioURL: "https://cdn.example.com/ep1.mp3"},
	}
}

func TestTranscribeContentMergesTranscriptAndReenqueues(t *testing.T) {
	repo := &mockRepo{contents: map[string]*domain.Content{podcastID: podcastRow()}}
	queue := &mockQueue{}
	transcriber := &mockTranscriber{transcript: "Welcome to the show."}

	w := NewWorker(repo, queue, &mockFetcher{body: []byte("audio-bytes")}, transcriber, Config{WorkerID: "t0"}, nil)

	err := w.transcribeContent(context.Background(), podcastID)
	require.NoError(t, err)

	persisted := repo.persisted[podcastID]
	require.NotNil(t, persisted)
	assert.Equal(t, "Welcome to the show.", persisted[domain.MetaKeyTranscript])
	assert.Equal(t, "https://cdn.example.com/ep1.mp3", persisted[domain.MetaKeyAudioURL])

	assert.Equal(t, []string{db.TaskTypeProcessContent + ":" + podcastID}, queue.enqueued)
	assert.Equal(t, "ep1.mp3", transcriber.gotName)
}

func TestTranscribeContentExistingTranscriptJustReenqueues(t *testing.T) {
	row := podcastRow()
	row.Metadata[domain.MetaKeyTranscript] = "already here"

	repo := &mockRepo{contents: map[string]*domain.Content{podcastID: row}}
	queue := &mockQueue{}
	transcriber := &mockTranscriber{transcript: "should not be used"}

	w := NewWorker(repo, queue, &mockFetcher{}, transcriber, Config{WorkerID: "t0"}, nil)

	err := w.transcribeContent(context.Background(), podcastID)
	require.NoError(t, err)

	assert.Empty(t, repo.persisted)
	assert.Len(t, queue.enqueued, 1)
}

func TestTranscribeContentAcceptsAudioLargerThanPageCap(t *testing.T) {
	repo := &mockRepo{contents: map[string]*domain.Content{podcastID: podcastRow()}}
	queue := &mockQueue{}
	transcriber := &mockTranscriber{transcript: "A long episode."}

	// Audio well above the 10 MB article page cap must still transcribe;
	// only MaxAudioSizeMB bounds this path.
	audio := make([]byte, 20*1024*1024)
	w := NewWorker(repo, queue, &mockFetcher{body: audio}, transcriber, Config{WorkerID: "t0", MaxAudioSizeMB: 100}, nil)

	err := w.transcribeContent(context.Background(), podcastID)
	require.NoError(t, err)

	persisted := repo.persisted[podcastID]
	require.NotNil(t, persisted)
	assert.Equal(t, "A long episode.", persisted[domain.MetaKeyTranscript])
}

func TestTranscribeContentAudioTooLarge(t *testing.T) {
	repo := &mockRepo{contents: map[string]*domain.Content{podcastID: podcastRow()}}

	big := make([]byte, 2*1024*1024)
	w := NewWorker(repo, &mockQueue{}, &mockFetcher{body: big}, &mockTranscriber{}, Config{WorkerID: "t0", MaxAudioSizeMB: 1}, nil)

	err := w.transcribeContent(context.Background(), podcastID)
	require.Error(t, err)
	assert.ErrorIs(t, err, cerrors.ErrResponseTooLarge)
}

func TestTranscribeContentMissingAudioURL(t *testing.T) {
	row := podcastRow()
	delete(row.Metadata, domain.MetaKeyAudioURL)

	repo := &mockRepo{contents: map[string]*domain.Content{podcastID: row}}
	w := NewWorker(repo, &mockQueue{}, &mockFetcher{}, &mockTranscriber{}, Config{WorkerID: "t0"}, nil)

	err := w.transcribeContent(context.Background(), podcastID)
	require.Error(t, err)
}

func TestAudioFilename(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://cdn.example.com/ep1.mp3", "ep1.mp3"},
		{"https://cdn.example.com/ep1.m4a?token=abc", "ep1.m4a"},
		{"https://cdn.example.com/stream", "audio.mp3"},
		{"", "audio.mp3"},
	}

	for _, tt := range tests {
		if got := audioFilename(tt.url); got != tt.want {
			t.Errorf("audioFilename(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}
