package ingest

import (
	"encoding/json"
	"strings"
)

// SegmentKind identifies a transcript content segment. The set is
// closed; anything unrecognized lands in SegmentOther with its raw
// payload preserved for faithful replay.
type SegmentKind int

const (
	SegmentText SegmentKind = iota
	SegmentThinking
	SegmentToolUse
	SegmentToolResult
	SegmentOther
)

// Segment is one typed content block of a transcript message.
type Segment struct {
	Kind SegmentKind

	// Text holds the payload of text and thinking segments.
	Text string

	// ToolUseID, ToolName and Input describe a tool invocation.
	// Input is kept verbatim; the parser does not special-case
	// individual tool schemas.
	ToolUseID string
	ToolName  string
	Input     json.RawMessage

	// Result is the verbatim payload of a tool_result segment.
	Result json.RawMessage

	// Raw is the original segment, preserved for replay.
	Raw json.RawMessage
}

// rawSegment is the wire shape of a content block.
type rawSegment struct {
	Type     string          `json:"type"`
	Text     string          `json:"text"`
	Thinking string          `json:"thinking"`
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Input    json.RawMessage `json:"input"`
	Content  json.RawMessage `json:"content"`
}

// decodeSegments decodes a message body's content field, which is
// either a plain string or a sequence of typed content blocks.
func decodeSegments(content json.RawMessage) []Segment {
	if len(content) == 0 {
		return nil
	}

	var plain string
	if err := json.Unmarshal(content, &plain); err == nil {
		return []Segment{{Kind: SegmentText, Text: plain, Raw: content}}
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(content, &raws); err != nil {
		return nil
	}

	segments := make([]Segment, 0, len(raws))
	for _, raw := range raws {
		var rs rawSegment
		if err := json.Unmarshal(raw, &rs); err != nil {
			segments = append(segments, Segment{Kind: SegmentOther, Raw: raw})
			continue
		}

		seg := Segment{Raw: raw}
		switch rs.Type {
		case "text":
			seg.Kind = SegmentText
			seg.Text = rs.Text
		case "thinking":
			seg.Kind = SegmentThinking
			seg.Text = rs.Thinking
		case "tool_use":
			seg.Kind = SegmentToolUse
			seg.ToolUseID = rs.ID
			seg.ToolName = rs.Name
			seg.Input = rs.Input
		case "tool_result":
			seg.Kind = SegmentToolResult
			seg.Result = rs.Content
		default:
			seg.Kind = SegmentOther
		}
		segments = append(segments, seg)
	}
	return segments
}

// flattenSegments concatenates the textual, reasoning, and tool-result
// segments into one string for full-text search. Non-text payloads are
// stringified; tool invocations are excluded.
func flattenSegments(segments []Segment) string {
	var parts []string
	for _, seg := range segments {
		switch seg.Kind {
		case SegmentText, SegmentThinking:
			if seg.Text != "" {
				parts = append(parts, seg.Text)
			}
		case SegmentToolResult:
			if text := stringifyResult(seg.Result); text != "" {
				parts = append(parts, text)
			}
		}
	}
	return strings.Join(parts, "\n")
}

// stringifyResult renders a tool_result payload as text. String
// payloads come through as-is; structured payloads keep their raw
// serialized form.
func stringifyResult(result json.RawMessage) string {
	if len(result) == 0 {
		return ""
	}
	var plain string
	if err := json.Unmarshal(result, &plain); err == nil {
		return plain
	}
	return string(result)
}
