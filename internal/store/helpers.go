package store

import (
	"encoding/json"
	"fmt"

	"github.com/FounderLoop/interviewbot/internal/models"
)

// marshalTranscript serializes a transcript for a JSON database column.
// A nil transcript serializes as an empty array so columns stay NOT NULL.
func marshalTranscript(t models.Transcript) ([]byte, error) {
	if t == nil {
		t = models.Transcript{}
	}
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transcript: %w", err)
	}
	return data, nil
}

// unmarshalTranscript deserializes a transcript column.
func unmarshalTranscript(data []byte) (models.Transcript, error) {
	if len(data) == 0 {
		return models.Transcript{}, nil
	}
	var t models.Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transcript: %w", err)
	}
	return t, nil
}
