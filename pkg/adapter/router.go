package adapter

import (
	"encoding/json"

	"github.com/erisforge/onebridge/pkg/logger"
	"github.com/erisforge/onebridge/pkg/onebot"
)

// HandleFrame classifies one raw frame from an account's session. Frames
// carrying an echo field are API responses and only ever resolve a pending
// call; everything else is converted and emitted as a protocol event.
// Malformed frames are logged and dropped; the read loop never sees them.
func (a *Adapter) HandleFrame(account string, raw []byte) {
	state, ok := a.state(account)
	if !ok {
		logger.ErrorCF("router", "Frame for unknown account, dropping", map[string]interface{}{
			"account": account,
		})
		return
	}

	var frame map[string]any
	if err := json.Unmarshal(raw, &frame); err != nil {
		logger.ErrorCF("router", "Failed to decode frame, dropping", map[string]interface{}{
			"account": account,
			"error":   err.Error(),
		})
		return
	}

	if echo, present := frame["echo"]; present {
		a.resolvePending(state, onebot.Stringify(echo), frame)
		return
	}

	evt := onebot.ConvertEvent(frame, state.account.BotID)
	logger.DebugCF("router", "Event received", map[string]interface{}{
		"account": account,
		"type":    evt.Type,
		"detail":  evt.DetailType,
	})
	a.bus.Emit(account, evt)
}
