package onebot

import (
	"encoding/json"
)

// Segment conversion between the v11 array dialect and the structured v12
// dialect. Both directions are pure functions; any segment type without an
// explicit rule passes through with its type tag and data untouched so newer
// implementations keep working.

// UpgradeSegments converts v11 segments into their v12 form.
func UpgradeSegments(segments []Segment) []Segment {
	out := make([]Segment, 0, len(segments))
	for _, seg := range segments {
		out = append(out, upgradeSegment(seg))
	}
	return out
}

func upgradeSegment(seg Segment) Segment {
	switch seg.Type {
	case "text":
		return seg.clone()
	case "image":
		return renamed(seg, "image", "file", "file_id")
	case "record":
		return renamed(seg, "voice", "file", "file_id")
	case "video":
		return renamed(seg, "video", "file", "file_id")
	case "face":
		return renamed(seg, "face", "id", "face_id")
	case "at":
		if seg.String("qq") == "all" {
			return newSegment("mention_all", nil)
		}
		return newSegment("mention", map[string]any{"user_id": seg.String("qq")})
	case "reply":
		return newSegment("reply", map[string]any{"message_id": seg.String("id")})
	default:
		return seg.clone()
	}
}

// DowngradeSegments converts v12 segments into their v11 form.
func DowngradeSegments(segments []Segment) []Segment {
	out := make([]Segment, 0, len(segments))
	for _, seg := range segments {
		out = append(out, downgradeSegment(seg))
	}
	return out
}

func downgradeSegment(seg Segment) Segment {
	switch seg.Type {
	case "text":
		return seg.clone()
	case "image":
		return renamed(seg, "image", "file_id", "file")
	case "voice":
		return renamed(seg, "record", "file_id", "file")
	case "video":
		return renamed(seg, "video", "file_id", "file")
	case "face":
		return renamed(seg, "face", "face_id", "id")
	case "mention":
		return AtSegment(seg.String("user_id"))
	case "mention_all":
		return AtAllSegment()
	case "reply":
		return ReplySegment(seg.String("message_id"))
	default:
		return seg.clone()
	}
}

// renamed copies a segment under a new type tag, moving one data key. Extra
// keys (url, cache flags, vendor extensions) ride along unchanged.
func renamed(seg Segment, typ, from, to string) Segment {
	out := newSegment(typ, nil)
	for key, value := range seg.Data {
		if key == from {
			out.Data[to] = value
			continue
		}
		out.Data[key] = value
	}
	return out
}

// ConvertEvent maps a decoded v11 event frame into the host-facing Event.
// botID stamps self.user_id when the frame does not name its own bot.
func ConvertEvent(raw map[string]any, botID string) *Event {
	evt := &Event{
		Time:       toInt64(raw["time"]),
		Type:       stringValue(raw["post_type"]),
		SubType:    stringValue(raw["sub_type"]),
		UserID:     stringValue(raw["user_id"]),
		GroupID:    stringValue(raw["group_id"]),
		MessageID:  stringValue(raw["message_id"]),
		AltMessage: stringValue(raw["raw_message"]),
		Raw:        raw,
	}
	if evt.Type == "" {
		evt.Type = "unknown"
	}

	switch evt.Type {
	case "message":
		evt.DetailType = stringValue(raw["message_type"])
	case "notice":
		evt.DetailType = stringValue(raw["notice_type"])
	case "request":
		evt.DetailType = stringValue(raw["request_type"])
	case "meta_event":
		evt.DetailType = stringValue(raw["meta_event_type"])
	}

	if body, ok := raw["message"]; ok {
		segments := decodeMessageBody(body)
		evt.Message = UpgradeSegments(segments)
		// Implementations are not required to send raw_message; fall back
		// to the CQ rendering of the body so alt text is always present.
		if evt.AltMessage == "" {
			evt.AltMessage = FormatCQString(segments)
		}
	}

	evt.Self = Self{Platform: "onebot", UserID: stringValue(raw["self_id"])}
	if self, ok := raw["self"].(map[string]any); ok {
		if id := stringValue(self["user_id"]); id != "" {
			evt.Self.UserID = id
		}
		if platform := stringValue(self["platform"]); platform != "" {
			evt.Self.Platform = platform
		}
	}
	if evt.Self.UserID == "" {
		evt.Self.UserID = botID
	}
	return evt
}

// decodeMessageBody accepts either the v11 segment array or a CQ string.
func decodeMessageBody(body any) []Segment {
	switch value := body.(type) {
	case string:
		return ParseCQString(value)
	case []any:
		segments := make([]Segment, 0, len(value))
		for _, item := range value {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			seg := newSegment(stringValue(entry["type"]), nil)
			if data, ok := entry["data"].(map[string]any); ok {
				for k, v := range data {
					seg.Data[k] = v
				}
			}
			segments = append(segments, seg)
		}
		return segments
	case []Segment:
		return value
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(value, &decoded); err != nil {
			return nil
		}
		return decodeMessageBody(decoded)
	default:
		return nil
	}
}
