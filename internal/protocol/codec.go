package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	apperrors "github.com/spreads/client/internal/errors"
)

// envelope reads only the tag of a frame.
type envelope struct {
	Type *MessageType `json:"type"`
}

// Decode parses a raw inbound frame.
//
// Returns:
//   - (msg, nil) for a recognized tag
//   - (nil, nil) for a well-formed frame with an unknown tag; unknown tags are
//     ignored for forward compatibility
//   - (nil, err) with code protocol.invalid_message when the frame is not a
//     JSON object, has no string "type", or a recognized tag carries a payload
//     of the wrong shape
func Decode(raw []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, apperrors.InvalidMessage("frame is not a JSON object", err)
	}
	if env.Type == nil {
		return nil, apperrors.InvalidMessage("frame has no type field", nil)
	}

	var msg Inbound
	var err error
	switch *env.Type {
	case TypeCaptureStatus:
		msg, err = decodeAs[CaptureStatus](raw)
	case TypeCaptureComplete:
		msg, err = decodeAs[CaptureComplete](raw)
	case TypePreviewUpdate:
		msg, err = decodeAs[PreviewUpdate](raw)
	case TypeError:
		msg, err = decodeAs[CaptureError](raw)
	case TypeProcessingStatus:
		msg, err = decodeAs[ProcessingStatus](raw)
	case TypeProcessingStep:
		msg, err = decodeAs[ProcessingStep](raw)
	case TypeProcessingLog:
		msg, err = decodeAs[ProcessingLog](raw)
	case TypeProcessingComplete:
		msg, err = decodeAs[ProcessingComplete](raw)
	case TypeProcessingError:
		msg, err = decodeAs[ProcessingError](raw)
	case TypeLog:
		msg, err = decodeAs[Log](raw)
	case TypeNotification:
		msg, err = decodeAs[Notification](raw)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.InvalidMessage(fmt.Sprintf("malformed %s frame", *env.Type), err)
	}
	return msg, nil
}

func decodeAs[T Inbound](raw []byte) (Inbound, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Encode serializes an inbound frame with its type tag. The client never
// sends these; the simulator and tests do.
func Encode(msg Inbound) ([]byte, error) {
	return withType(msg.Type(), msg)
}

// EncodeCommand serializes an outbound command with its type tag.
func EncodeCommand(cmd Command) ([]byte, error) {
	return withType(cmd.Type(), cmd)
}

// DecodeCommand parses an outbound command frame. Used by the server side.
// Unknown tags yield (nil, nil) just like Decode.
func DecodeCommand(raw []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, apperrors.InvalidMessage("frame is not a JSON object", err)
	}
	if env.Type == nil {
		return nil, apperrors.InvalidMessage("frame has no type field", nil)
	}

	var cmd Command
	var err error
	switch *env.Type {
	case TypeCapture:
		var c Capture
		err = json.Unmarshal(raw, &c)
		cmd = c
	case TypeStartProcessing:
		var c StartProcessing
		err = json.Unmarshal(raw, &c)
		cmd = c
	case TypeCancelProcessing:
		var c CancelProcessing
		err = json.Unmarshal(raw, &c)
		cmd = c
	default:
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.InvalidMessage(fmt.Sprintf("malformed %s frame", *env.Type), err)
	}
	return cmd, nil
}

// withType marshals v and splices the "type" tag in as the first field,
// producing the flat frame layout the server expects.
func withType(t MessageType, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeProtocolEncodeFailed, fmt.Sprintf("encode %s", t), err)
	}
	tag, err := json.Marshal(t)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeProtocolEncodeFailed, fmt.Sprintf("encode %s", t), err)
	}

	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	buf.Write(tag)
	inner := bytes.TrimSpace(body)
	inner = inner[1 : len(inner)-1] // strip { }
	if len(bytes.TrimSpace(inner)) > 0 {
		buf.WriteByte(',')
		buf.Write(inner)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
