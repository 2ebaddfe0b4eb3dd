package art

import (
	"strconv"
	"strings"
)

// negativePrompt is the fixed quality guard appended to every
// unbracketed prompt with weight -1.
const negativePrompt = "tiling, poorly drawn hands, poorly drawn feet, poorly drawn face, out of frame, extra limbs, disfigured, " +
	"deformed, body out of frame, bad anatomy, watermark, signature, cut off, low contrast, underexposed, " +
	"overexposed, bad art, beginner, amateur, distorted face, too many fingers"

type TextPrompt struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

// ParsePrompts splits a subject into weighted sub-prompts. Two forms
// are understood:
//
//	[text_a:weight_a|text_b:weight_b|...]  explicit weights
//	paragraph per prompt                   weights 1, 0.5, 0.25, ...
//
// The unbracketed form gets the negative quality guard appended; the
// bracketed form is taken as-is.
func ParsePrompts(subject string) []TextPrompt {
	var prompts []TextPrompt

	if strings.HasPrefix(subject, "[") {
		subject = strings.TrimPrefix(subject, "[")
		subject = strings.TrimSuffix(subject, "]")
		for line := range strings.SplitSeq(subject, "|") {
			text, rawWeight, _ := strings.Cut(line, ":")
			weight, _ := strconv.ParseFloat(strings.TrimSpace(rawWeight), 64)
			prompts = append(prompts, TextPrompt{
				Text:   text,
				Weight: weight,
			})
		}
		return prompts
	}

	weight := 1.0
	for line := range strings.SplitSeq(subject, "\n\n") {
		if len(line) > 0 {
			prompts = append(prompts, TextPrompt{
				Text:   line,
				Weight: weight,
			})
			weight *= 0.5
		}
	}
	prompts = append(prompts, TextPrompt{
		Text:   negativePrompt,
		Weight: -1,
	})
	return prompts
}
