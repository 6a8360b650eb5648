package xqueue

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pavelanni/capagrader/internal/model"
)

// ParseScoreMessage decodes an external grader reply. The reply must be a
// JSON object carrying correct, score and msg. Negative scores are clamped
// to zero.
func ParseScoreMessage(raw []byte) (model.ScoreMessage, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return model.ScoreMessage{}, &JSONParsingError{Name: "score_msg", Detail: err.Error()}
	}
	if fields == nil {
		return model.ScoreMessage{}, &TypeErrorSubmission{Detail: "score_msg must be a JSON object"}
	}
	for _, key := range []string{"correct", "score", "msg"} {
		if _, ok := fields[key]; !ok {
			return model.ScoreMessage{}, &MissingKeyError{Key: key}
		}
	}

	var msg model.ScoreMessage
	var ok bool
	if msg.Correct, ok = fields["correct"].(bool); !ok {
		return model.ScoreMessage{}, &TypeErrorSubmission{Detail: fmt.Sprintf("correct must be a boolean, got %s", jsonType(fields["correct"]))}
	}
	if msg.Score, ok = fields["score"].(float64); !ok {
		return model.ScoreMessage{}, &TypeErrorSubmission{Detail: fmt.Sprintf("score must be a number, got %s", jsonType(fields["score"]))}
	}
	if msg.Msg, ok = fields["msg"].(string); !ok {
		return model.ScoreMessage{}, &TypeErrorSubmission{Detail: fmt.Sprintf("msg must be a string, got %s", jsonType(fields["msg"]))}
	}
	msg.Score = max(msg.Score, 0)
	msg.Msg = strings.ReplaceAll(msg.Msg, "&nbsp;", "&#160;")
	return msg, nil
}
