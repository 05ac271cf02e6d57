// Package onebot holds the wire types shared by both sides of the bridge:
// the OneBot v11 action/response envelope spoken on the websocket, and the
// OneBot 12 shaped event structure handed to the host framework.
package onebot

import (
	"encoding/json"
	"fmt"
)

// Request is one API action sent to the v11 implementation. Echo is the
// correlation token; the matching response carries it back unchanged.
type Request struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params"`
	Echo   string         `json:"echo"`
}

// Self identifies the bot an event or response belongs to.
type Self struct {
	Platform string `json:"platform,omitempty"`
	UserID   string `json:"user_id"`
}

// Event is the structured (dialect B) event delivered to the host emitter.
// Raw keeps the original v11 frame for consumers that need fields the
// conversion does not model.
type Event struct {
	Time       int64          `json:"time,omitempty"`
	Type       string         `json:"type"`
	DetailType string         `json:"detail_type,omitempty"`
	SubType    string         `json:"sub_type,omitempty"`
	Self       Self           `json:"self"`
	UserID     string         `json:"user_id,omitempty"`
	GroupID    string         `json:"group_id,omitempty"`
	MessageID  string         `json:"message_id,omitempty"`
	Message    []Segment      `json:"message,omitempty"`
	AltMessage string         `json:"alt_message,omitempty"`
	Raw        map[string]any `json:"-"`
}

// StandardResponse is the normalized result of one API call. Status is
// "failed" whenever RetCode is non-zero or the call timed out.
type StandardResponse struct {
	Status    string         `json:"status"`
	RetCode   int64          `json:"retcode"`
	Data      any            `json:"data"`
	MessageID string         `json:"message_id"`
	Message   string         `json:"message"`
	Self      Self           `json:"self"`
	Raw       map[string]any `json:"onebot_raw,omitempty"`
}

const (
	StatusOK     = "ok"
	StatusFailed = "failed"

	// RetCodeTimeout is the reserved retcode for calls that saw no matching
	// response within the timeout window.
	RetCodeTimeout = 33001

	// RetCodeUnavailable is the reserved retcode for calls issued with no
	// live connection for the account.
	RetCodeUnavailable = 33002
)

// NormalizeResponse maps a raw v11 response frame into a StandardResponse.
func NormalizeResponse(raw map[string]any, self Self) *StandardResponse {
	resp := &StandardResponse{
		Status: StatusOK,
		Self:   self,
		Raw:    raw,
	}
	if raw == nil {
		return resp
	}

	if status, ok := raw["status"].(string); ok && status != "" {
		resp.Status = status
	}
	resp.RetCode = toInt64(raw["retcode"])
	if msg, ok := raw["message"].(string); ok {
		resp.Message = msg
	}
	resp.Data = raw["data"]

	// message_id may sit at the top level or inside data.
	resp.MessageID = stringValue(raw["message_id"])
	if resp.MessageID == "" {
		if data, ok := raw["data"].(map[string]any); ok {
			resp.MessageID = stringValue(data["message_id"])
		}
	}

	if resp.RetCode != 0 {
		resp.Status = StatusFailed
	}
	return resp
}

// TimeoutResponse builds the normalized failure for a timed-out call.
func TimeoutResponse(endpoint, account string, self Self) *StandardResponse {
	return &StandardResponse{
		Status:  StatusFailed,
		RetCode: RetCodeTimeout,
		Message: fmt.Sprintf("API call timed out: %s (account %s)", endpoint, account),
		Self:    self,
	}
}

// FailedResponse builds a normalized failure with an explicit retcode.
func FailedResponse(retcode int64, message string, self Self) *StandardResponse {
	return &StandardResponse{
		Status:  StatusFailed,
		RetCode: retcode,
		Message: message,
		Self:    self,
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}

// Stringify renders a decoded JSON scalar as a string, tolerating the
// numeric forms JSON decoding produces for ids.
func Stringify(v any) string {
	return stringValue(v)
}

func stringValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return fmt.Sprintf("%.0f", s)
	case json.Number:
		return s.String()
	case int64:
		return fmt.Sprintf("%d", s)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}
