package llm

import "context"

// MockClient returns a canned summary without network calls. Used by
// local development and tests.
type MockClient struct{}

func NewMock() *MockClient {
	return &MockClient{}
}

func (m *MockClient) SummarizeContent(_ context.Context, title, _ string) (*StructuredSummary, error) {
	if title == "" {
		title = "Untitled"
	}

	return &StructuredSummary{
		Title:    title,
		Overview: "Mock overview of the content.",
		BulletPoints: []string{
			"First mock takeaway.",
			"Second mock takeaway.",
			"Third mock takeaway.",
		},
		Topics:         []string{"mock"},
		Classification: ClassificationToRead,
	}, nil
}

// MockTranscriber returns a fixed transcript.
type MockTranscriber struct{}

func NewMockTranscriber() *MockTranscriber {
	return &MockTranscriber{}
}

func (m *MockTranscriber) TranscribeAudio(_ context.Context, _ string, _ []byte) (string, error) {
	return "Mock transcript.", nil
}
