package onebot

import (
	"strings"
)

// CQ code handling for v11 implementations that deliver message bodies as a
// single string ("[CQ:image,file=a.png]hello") instead of a segment array.

var cqTextEscaper = strings.NewReplacer(
	"&", "&amp;",
	"[", "&#91;",
	"]", "&#93;",
)

var cqValueEscaper = strings.NewReplacer(
	"&", "&amp;",
	"[", "&#91;",
	"]", "&#93;",
	",", "&#44;",
)

var cqUnescaper = strings.NewReplacer(
	"&#44;", ",",
	"&#91;", "[",
	"&#93;", "]",
	"&amp;", "&",
)

// ParseCQString splits a CQ-coded string into ordered segments. Plain text
// runs become text segments; malformed CQ blocks are kept as literal text
// rather than dropped.
func ParseCQString(raw string) []Segment {
	var segments []Segment
	for len(raw) > 0 {
		start := strings.Index(raw, "[CQ:")
		if start < 0 {
			segments = appendText(segments, cqUnescaper.Replace(raw))
			break
		}
		if start > 0 {
			segments = appendText(segments, cqUnescaper.Replace(raw[:start]))
			raw = raw[start:]
			continue
		}
		end := strings.Index(raw, "]")
		if end < 0 {
			segments = appendText(segments, cqUnescaper.Replace(raw))
			break
		}
		segments = append(segments, parseCQBlock(raw[4:end]))
		raw = raw[end+1:]
	}
	return segments
}

func parseCQBlock(body string) Segment {
	parts := strings.Split(body, ",")
	seg := newSegment(parts[0], nil)
	for _, part := range parts[1:] {
		key, value, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		seg.Data[key] = cqUnescaper.Replace(value)
	}
	return seg
}

// FormatCQString renders segments back into a single CQ-coded string.
func FormatCQString(segments []Segment) string {
	var sb strings.Builder
	for _, seg := range segments {
		if seg.Type == "text" {
			sb.WriteString(cqTextEscaper.Replace(seg.String("text")))
			continue
		}
		sb.WriteString("[CQ:")
		sb.WriteString(seg.Type)
		for key, value := range seg.Data {
			sb.WriteString(",")
			sb.WriteString(key)
			sb.WriteString("=")
			sb.WriteString(cqValueEscaper.Replace(stringValue(value)))
		}
		sb.WriteString("]")
	}
	return sb.String()
}

func appendText(segments []Segment, text string) []Segment {
	if text == "" {
		return segments
	}
	return append(segments, TextSegment(text))
}
