package adapter

import (
	"context"
	"fmt"

	"github.com/erisforge/onebridge/pkg/onebot"
)

// Target kinds for outbound messages.
const (
	TargetUser  = "user"
	TargetGroup = "group"
)

// SendBuilder assembles one outbound message fluently. The final segment
// sequence always comes out as reply prefix, mention-all, individual
// mentions, then body content, and is dispatched as a single send_msg call.
type SendBuilder struct {
	adapter    *Adapter
	account    string
	targetType string
	targetID   string

	replyTo  string
	atAll    bool
	mentions []string
	files    []*onebot.EncodedFile
}

// Send starts a builder for the given account.
func (a *Adapter) Send(account string) *SendBuilder {
	return &SendBuilder{adapter: a, account: account, targetType: TargetUser}
}

func (b *SendBuilder) ToUser(userID string) *SendBuilder {
	b.targetType = TargetUser
	b.targetID = userID
	return b
}

func (b *SendBuilder) ToGroup(groupID string) *SendBuilder {
	b.targetType = TargetGroup
	b.targetID = groupID
	return b
}

// Reply quotes a prior message id.
func (b *SendBuilder) Reply(messageID string) *SendBuilder {
	b.replyTo = messageID
	return b
}

// AtAll mentions everyone in a group target.
func (b *SendBuilder) AtAll() *SendBuilder {
	b.atAll = true
	return b
}

// At mentions one or more users.
func (b *SendBuilder) At(userIDs ...string) *SendBuilder {
	b.mentions = append(b.mentions, userIDs...)
	return b
}

func (b *SendBuilder) Text(ctx context.Context, text string) (*onebot.StandardResponse, error) {
	return b.dispatch(ctx, onebot.TextSegment(text))
}

// Image sends a picture by URL or local path.
func (b *SendBuilder) Image(ctx context.Context, file string) (*onebot.StandardResponse, error) {
	return b.dispatch(ctx, onebot.ImageSegment(file))
}

// ImageData sends raw picture bytes, inlined as base64 when possible.
func (b *SendBuilder) ImageData(ctx context.Context, data []byte, filename string) (*onebot.StandardResponse, error) {
	return b.sendMedia(ctx, "image", data, filename)
}

func (b *SendBuilder) Voice(ctx context.Context, file string) (*onebot.StandardResponse, error) {
	return b.dispatch(ctx, onebot.RecordSegment(file))
}

func (b *SendBuilder) VoiceData(ctx context.Context, data []byte, filename string) (*onebot.StandardResponse, error) {
	return b.sendMedia(ctx, "record", data, filename)
}

func (b *SendBuilder) Video(ctx context.Context, file string) (*onebot.StandardResponse, error) {
	return b.dispatch(ctx, onebot.VideoSegment(file))
}

func (b *SendBuilder) VideoData(ctx context.Context, data []byte, filename string) (*onebot.StandardResponse, error) {
	return b.sendMedia(ctx, "video", data, filename)
}

func (b *SendBuilder) Face(ctx context.Context, id string) (*onebot.StandardResponse, error) {
	return b.dispatch(ctx, onebot.FaceSegment(id))
}

// Raw sends pre-built v11 segments unchanged, after the standard prefix.
func (b *SendBuilder) Raw(ctx context.Context, segments []onebot.Segment) (*onebot.StandardResponse, error) {
	return b.dispatch(ctx, segments...)
}

// Kind dispatches a send by capability name. Names without an explicit rule
// do not fail: they degrade to a diagnostic text message describing the
// attempted call, keeping callers operable when new kinds appear before
// they are implemented here.
func (b *SendBuilder) Kind(ctx context.Context, kind string, args map[string]any) (*onebot.StandardResponse, error) {
	switch kind {
	case "text":
		return b.Text(ctx, onebot.Stringify(args["text"]))
	case "image":
		return b.Image(ctx, onebot.Stringify(args["file"]))
	case "voice", "record":
		return b.Voice(ctx, onebot.Stringify(args["file"]))
	case "video":
		return b.Video(ctx, onebot.Stringify(args["file"]))
	case "face":
		return b.Face(ctx, onebot.Stringify(args["id"]))
	default:
		diagnostic := fmt.Sprintf("[onebridge] unsupported send kind %q with args %v", kind, args)
		return b.Text(ctx, diagnostic)
	}
}

// Recall deletes a previously sent message.
func (b *SendBuilder) Recall(ctx context.Context, messageID string) (*onebot.StandardResponse, error) {
	return b.adapter.CallAPI(ctx, b.account, "delete_msg", map[string]any{
		"message_id": messageID,
	})
}

// Edit replaces a sent message by recalling it and sending the new text.
func (b *SendBuilder) Edit(ctx context.Context, messageID, newText string) (*onebot.StandardResponse, error) {
	if _, err := b.Recall(ctx, messageID); err != nil {
		return nil, err
	}
	return b.Text(ctx, newText)
}

// Batch sends the same text to several targets of one kind. Each send is an
// independent call; failures do not stop the rest.
func (b *SendBuilder) Batch(ctx context.Context, targetType string, targetIDs []string, text string) []*onebot.StandardResponse {
	responses := make([]*onebot.StandardResponse, 0, len(targetIDs))
	for _, id := range targetIDs {
		builder := b.adapter.Send(b.account)
		if targetType == TargetGroup {
			builder.ToGroup(id)
		} else {
			builder.ToUser(id)
		}
		resp, _ := builder.Text(ctx, text)
		responses = append(responses, resp)
	}
	return responses
}

func (b *SendBuilder) sendMedia(ctx context.Context, kind string, data []byte, filename string) (*onebot.StandardResponse, error) {
	encoded, err := onebot.EncodeFileData(kind, data, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", kind, err)
	}
	b.files = append(b.files, encoded)

	var seg onebot.Segment
	switch kind {
	case "record":
		seg = onebot.RecordSegment(encoded.Ref)
	case "video":
		seg = onebot.VideoSegment(encoded.Ref)
	default:
		seg = onebot.ImageSegment(encoded.Ref)
	}
	return b.dispatch(ctx, seg)
}

// dispatch assembles the final segment sequence and issues send_msg. Temp
// media files are cleaned up on every exit path once the call returns.
func (b *SendBuilder) dispatch(ctx context.Context, body ...onebot.Segment) (*onebot.StandardResponse, error) {
	defer func() {
		for _, file := range b.files {
			file.Cleanup()
		}
		b.files = nil
	}()

	segments := make([]onebot.Segment, 0, len(body)+len(b.mentions)+2)
	if b.replyTo != "" {
		segments = append(segments, onebot.ReplySegment(b.replyTo))
	}
	if b.atAll {
		segments = append(segments, onebot.AtAllSegment())
	}
	for _, userID := range b.mentions {
		segments = append(segments, onebot.AtSegment(userID))
	}
	segments = append(segments, body...)

	params := map[string]any{
		"message_type": messageType(b.targetType),
		"message":      segments,
	}
	if b.targetType == TargetGroup {
		params["group_id"] = b.targetID
	} else {
		params["user_id"] = b.targetID
	}

	return b.adapter.CallAPI(ctx, b.account, "send_msg", params)
}

func messageType(targetType string) string {
	if targetType == TargetGroup {
		return "group"
	}
	return "private"
}
