package verify

import (
	"encoding/json"
	"fmt"
	"strings"
)

// defaultSteps is the stock guided sequence. Deployments override it via
// configuration; positions outside the facial set are filtered out of the
// capture loop.
var defaultSteps = []VoiceStep{
	{Text: "Olhe para frente", DelayMS: 1500, Position: PositionFront},
	{Text: "Vire à esquerda", DelayMS: 2000, Position: PositionLeft},
	{Text: "Vire à direita", DelayMS: 2000, Position: PositionRight},
	{Text: "Piscar e sorrir", DelayMS: 2000, Position: PositionBlinkSmile},
}

// DefaultSteps returns a copy of the stock guided sequence.
func DefaultSteps() []VoiceStep {
	out := make([]VoiceStep, len(defaultSteps))
	copy(out, defaultSteps)
	return out
}

// ValidateSteps checks a configured sequence for use by the sequencer.
func ValidateSteps(steps []VoiceStep) error {
	if len(steps) == 0 {
		return NewInvalidRequestError("voice steps must not be empty")
	}
	for i, step := range steps {
		if strings.TrimSpace(step.Position) == "" {
			return NewInvalidRequestError(fmt.Sprintf("voice step %d: position is required", i))
		}
		if step.DelayMS < 0 {
			return NewInvalidRequestError(fmt.Sprintf("voice step %d: delay_ms must be >= 0", i))
		}
	}
	return nil
}

// ParseSteps decodes a JSON-encoded step list (the VERIFY_VOICE_STEPS
// override) and validates it.
func ParseSteps(raw string) ([]VoiceStep, error) {
	var steps []VoiceStep
	if err := json.Unmarshal([]byte(raw), &steps); err != nil {
		return nil, NewInvalidRequestError(fmt.Sprintf("invalid voice steps JSON: %v", err))
	}
	if err := ValidateSteps(steps); err != nil {
		return nil, err
	}
	return steps, nil
}

// FacialSteps filters the sequence down to facial poses, dropping document
// and upload instructions that have no place in the camera loop.
func FacialSteps(steps []VoiceStep) []VoiceStep {
	out := make([]VoiceStep, 0, len(steps))
	for _, step := range steps {
		switch step.Position {
		case PositionDocument, PositionUpload:
			continue
		}
		out = append(out, step)
	}
	return out
}
