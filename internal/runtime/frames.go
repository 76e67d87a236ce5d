package runtime

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"

	idspkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/ids"
	metadatapkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/metadata"
)

// Topics carrying IPC traffic. Renderer-to-main frames travel on TopicMain;
// main-to-renderer frames travel on the per-window topic.
const (
	TopicMain         = "ipc.main"
	topicWindowPrefix = "ipc.window."
)

// WindowTopic returns the main-to-renderer topic for a window id.
func WindowTopic(id WindowID) string {
	return topicWindowPrefix + strconv.FormatInt(int64(id), 10)
}

// Metadata keys used on every IPC frame. These keys are reserved and must not
// be used for custom metadata.
const (
	MetadataKeyNamespace     = "ipc_namespace"
	MetadataKeyChannel       = "ipc_channel"
	MetadataKeyFrame         = "ipc_frame"
	MetadataKeyCorrelationID = "ipc_correlation_id"
	MetadataKeyWindowID      = "ipc_window_id"
	MetadataKeyStreamID      = "ipc_stream_id"
	MetadataKeySeq           = "ipc_seq"
	MetadataKeyDirection     = "ipc_direction"
	MetadataKeyStatus        = "ipc_status"
	MetadataKeyTargetID      = "ipc_target_id"
	MetadataKeyTargetRole    = "ipc_target_role"
)

type frameType string

const (
	frameRequest   frameType = "request"
	frameReply     frameType = "reply"
	frameEvent     frameType = "event"
	frameBroadcast frameType = "broadcast"
	frameRoute     frameType = "route"
	frameOpen      frameType = "open"
	frameChunk     frameType = "chunk"
	frameEnd       frameType = "end"
	frameError     frameType = "error"
	frameCancel    frameType = "cancel"
	framePause     frameType = "pause"
	frameResume    frameType = "resume"
)

const (
	statusOK    = "ok"
	statusError = "error"
)

// frame is the decoded form of one IPC message. Payload bytes stay opaque to
// the routing layer; everything the demux loop needs lives in metadata.
type frame struct {
	Type        frameType
	Namespace   Namespace
	Channel     string
	Correlation string
	Window      WindowID // source window, zero for main-originated frames
	StreamID    string
	Seq         uint64
	Direction   StreamDirection
	Status      string
	TargetID    int64
	TargetRole  string
	Payload     []byte

	// Extra carries caller-supplied metadata, everything outside the
	// reserved ipc_ keys.
	Extra metadatapkg.Metadata
}

// reservedMetadataKeys guards the frame codec's own keys against caller
// metadata collisions.
var reservedMetadataKeys = map[string]struct{}{
	MetadataKeyNamespace:     {},
	MetadataKeyChannel:       {},
	MetadataKeyFrame:         {},
	MetadataKeyCorrelationID: {},
	MetadataKeyWindowID:      {},
	MetadataKeyStreamID:      {},
	MetadataKeySeq:           {},
	MetadataKeyDirection:     {},
	MetadataKeyStatus:        {},
	MetadataKeyTargetID:      {},
	MetadataKeyTargetRole:    {},
}

func decodeFrame(msg *message.Message) (frame, error) {
	md := msg.Metadata

	ft := frameType(md.Get(MetadataKeyFrame))
	if ft == "" {
		return frame{}, fmt.Errorf("frame %s has no %s metadata", msg.UUID, MetadataKeyFrame)
	}

	f := frame{
		Type:        ft,
		Namespace:   Namespace(md.Get(MetadataKeyNamespace)),
		Channel:     md.Get(MetadataKeyChannel),
		Correlation: md.Get(MetadataKeyCorrelationID),
		StreamID:    md.Get(MetadataKeyStreamID),
		Direction:   StreamDirection(md.Get(MetadataKeyDirection)),
		Status:      md.Get(MetadataKeyStatus),
		TargetRole:  md.Get(MetadataKeyTargetRole),
		Payload:     msg.Payload,
	}

	if raw := md.Get(MetadataKeyWindowID); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return frame{}, fmt.Errorf("frame %s has malformed window id %q: %w", msg.UUID, raw, err)
		}
		f.Window = WindowID(id)
	}

	if raw := md.Get(MetadataKeyTargetID); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return frame{}, fmt.Errorf("frame %s has malformed target id %q: %w", msg.UUID, raw, err)
		}
		f.TargetID = id
	}

	if raw := md.Get(MetadataKeySeq); raw != "" {
		seq, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return frame{}, fmt.Errorf("frame %s has malformed seq %q: %w", msg.UUID, raw, err)
		}
		f.Seq = seq
	}

	for key, value := range md {
		if _, reserved := reservedMetadataKeys[key]; reserved {
			continue
		}
		if f.Extra == nil {
			f.Extra = metadatapkg.Metadata{}
		}
		f.Extra[key] = value
	}

	return f, nil
}

// newFrameMessage encodes a frame as a Watermill message with a fresh ULID.
// Zero-valued fields are left out of the metadata.
func newFrameMessage(f frame) *message.Message {
	msg := message.NewMessage(idspkg.CreateULID(), f.Payload)
	md := msg.Metadata

	md.Set(MetadataKeyFrame, string(f.Type))
	if f.Namespace != "" {
		md.Set(MetadataKeyNamespace, string(f.Namespace))
	}
	if f.Channel != "" {
		md.Set(MetadataKeyChannel, f.Channel)
	}
	if f.Correlation != "" {
		md.Set(MetadataKeyCorrelationID, f.Correlation)
	}
	if f.Window != 0 {
		md.Set(MetadataKeyWindowID, strconv.FormatInt(int64(f.Window), 10))
	}
	if f.StreamID != "" {
		md.Set(MetadataKeyStreamID, f.StreamID)
	}
	if f.Seq != 0 {
		md.Set(MetadataKeySeq, strconv.FormatUint(f.Seq, 10))
	}
	if f.Direction != "" {
		md.Set(MetadataKeyDirection, string(f.Direction))
	}
	if f.Status != "" {
		md.Set(MetadataKeyStatus, f.Status)
	}
	if f.TargetID != 0 {
		md.Set(MetadataKeyTargetID, strconv.FormatInt(f.TargetID, 10))
	}
	if f.TargetRole != "" {
		md.Set(MetadataKeyTargetRole, f.TargetRole)
	}

	for key, value := range f.Extra {
		if _, reserved := reservedMetadataKeys[key]; reserved {
			continue
		}
		md.Set(key, value)
	}

	return msg
}

func (f frame) describe() string {
	var b strings.Builder
	b.WriteString(string(f.Type))
	if f.Channel != "" {
		b.WriteString(" ")
		b.WriteString(string(f.Namespace))
		b.WriteString(":")
		b.WriteString(f.Channel)
	}
	if f.StreamID != "" {
		fmt.Fprintf(&b, " stream=%s seq=%d", f.StreamID, f.Seq)
	}
	return b.String()
}
