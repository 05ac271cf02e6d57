package onebot

// Segment is one typed unit of an ordered message. Data values are kept as
// decoded JSON (strings, numbers, bools) so unknown segment types survive a
// round trip untouched.
type Segment struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

func newSegment(typ string, data map[string]any) Segment {
	if data == nil {
		data = map[string]any{}
	}
	return Segment{Type: typ, Data: data}
}

func TextSegment(text string) Segment {
	return newSegment("text", map[string]any{"text": text})
}

func ImageSegment(file string) Segment {
	return newSegment("image", map[string]any{"file": file})
}

func RecordSegment(file string) Segment {
	return newSegment("record", map[string]any{"file": file})
}

func VideoSegment(file string) Segment {
	return newSegment("video", map[string]any{"file": file})
}

func FaceSegment(id string) Segment {
	return newSegment("face", map[string]any{"id": id})
}

func AtSegment(userID string) Segment {
	return newSegment("at", map[string]any{"qq": userID})
}

func AtAllSegment() Segment {
	return newSegment("at", map[string]any{"qq": "all"})
}

func ReplySegment(messageID string) Segment {
	return newSegment("reply", map[string]any{"id": messageID})
}

// String returns segment data value under key as a string, tolerating the
// numeric forms JSON decoding produces.
func (s Segment) String(key string) string {
	if s.Data == nil {
		return ""
	}
	return stringValue(s.Data[key])
}

func (s Segment) clone() Segment {
	data := make(map[string]any, len(s.Data))
	for k, v := range s.Data {
		data[k] = v
	}
	return Segment{Type: s.Type, Data: data}
}
