package core

import (
	"math"
	"strconv"
	"strings"
)

// interpretCommand checks lowercased trimmed text for a control
// command and performs its effect. It runs before any history mutation
// or dispatch, so a command never becomes part of the conversation.
func (r *Router) interpretCommand(chatID int64, text string) bool {
	switch {
	case strings.HasPrefix(text, "/command"), strings.HasPrefix(text, "/help"):
		r.send(chatID, r.L("help", nil))

	case strings.HasPrefix(text, "/start"):
		r.send(chatID, r.L("greeting", nil))

	case text == "reset":
		if err := r.store.Reset(chatID); err != nil {
			r.logger.WithError(err).WithField("chat_id", chatID).Error("Failed to reset history")
		}
		r.send(chatID, r.L("context_cleared", nil))

	case strings.HasPrefix(text, "temperature "):
		raw := strings.Replace(text[len("temperature "):], ",", ".", 1)
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			// unvalidated on purpose: a junk value stores as NaN and
			// surfaces later as a broken sampling temperature
			value = math.NaN()
		}
		if err := r.store.SetTemperature(chatID, value); err != nil {
			r.logger.WithError(err).WithField("chat_id", chatID).Error("Failed to store temperature")
		}
		r.send(chatID, r.L("temperature_set", map[string]any{
			"Value": strconv.FormatFloat(value, 'g', -1, 64),
		}))

	default:
		return false
	}

	return true
}
