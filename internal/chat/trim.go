package chat

// Trim enforces a byte budget on a history. The first message is always
// kept verbatim. Scanning from the newest message backward, whole
// messages are dropped once the accumulated content length would exceed
// the budget; the message sitting on the boundary keeps its last
// `remaining` bytes instead of being dropped outright. Messages with
// empty content never consume budget. Trim is idempotent for a fixed
// budget.
func Trim(history []Message, budget int) []Message {
	if len(history) == 0 {
		return history
	}

	size := 0
	index := 0
	headroom := -1
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Content == "" {
			continue
		}
		if len(history[i].Content)+size > budget {
			index = i
			headroom = budget - size
			break
		}
		size += len(history[i].Content)
	}

	trimmed := []Message{history[0]}
	if index > 0 {
		boundary := history[index]
		if headroom > 0 {
			boundary.Content = boundary.Content[len(boundary.Content)-headroom:]
		}
		trimmed = append(trimmed, boundary)
	}
	trimmed = append(trimmed, history[index+1:]...)
	return trimmed
}
