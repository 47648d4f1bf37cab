// Package protocol defines the push-channel wire format between the spreads
// server and this client.
//
// Every frame is a flat JSON object tagged by a "type" field. Inbound frames
// (server -> client) decode into the closed Inbound sum type: one Go struct
// per tag, sealed by an unexported method so no other package can add a
// variant. Consumers switch over the variants of their domain exhaustively
// (see package router). Outbound frames (client -> server) are Commands.
package protocol

// MessageType identifies the kind of frame carried on the push channel.
type MessageType string

// Capture domain (server -> client).
const (
	// TypeCaptureStatus reports device readiness. The server is the sole
	// authority on readiness; the client never infers it.
	TypeCaptureStatus MessageType = "capture_status"

	// TypeCaptureComplete reports that a requested capture finished.
	TypeCaptureComplete MessageType = "capture_complete"

	// TypePreviewUpdate carries the latest odd/even preview pair.
	TypePreviewUpdate MessageType = "preview_update"

	// TypeError reports a capture-side failure.
	TypeError MessageType = "error"
)

// Processing domain (server -> client).
const (
	TypeProcessingStatus   MessageType = "processing_status"
	TypeProcessingStep     MessageType = "processing_step"
	TypeProcessingLog      MessageType = "processing_log"
	TypeProcessingComplete MessageType = "processing_complete"
	TypeProcessingError    MessageType = "processing_error"
)

// App-wide (server -> client).
const (
	// TypeLog forwards a server log record. Only WARNING and ERROR records
	// are shown to the user.
	TypeLog MessageType = "log"

	// TypeNotification is an informational message for the user.
	TypeNotification MessageType = "notification"
)

// Commands (client -> server).
const (
	TypeCapture          MessageType = "capture"
	TypeStartProcessing  MessageType = "start_processing"
	TypeCancelProcessing MessageType = "cancel_processing"
)

// Domain groups inbound variants by the consumer that handles them.
type Domain int

const (
	DomainCapture Domain = iota
	DomainProcessing
	DomainApp
)

func (d Domain) String() string {
	switch d {
	case DomainCapture:
		return "capture"
	case DomainProcessing:
		return "processing"
	case DomainApp:
		return "app"
	default:
		return "unknown"
	}
}

// Inbound is a decoded server frame. The variant set is closed: the
// implementations below are the only ones.
type Inbound interface {
	Type() MessageType
	Domain() Domain
	inbound()
}

// DeviceStatus is the capture device readiness reported by the server.
type DeviceStatus string

const (
	DeviceIdle      DeviceStatus = "idle"
	DevicePreparing DeviceStatus = "preparing"
	DeviceReady     DeviceStatus = "ready"
	DeviceCapturing DeviceStatus = "capturing"
)

// Images is an odd/even pair of image URIs. An empty string means no image.
type Images struct {
	Odd  string `json:"odd,omitempty"`
	Even string `json:"even,omitempty"`
}

// CaptureStatus is the "capture_status" frame.
type CaptureStatus struct {
	Status DeviceStatus `json:"status"`
}

// CaptureComplete is the "capture_complete" frame.
type CaptureComplete struct {
	PageID string `json:"pageId"`
	Images Images `json:"images"`
}

// PreviewUpdate is the "preview_update" frame.
type PreviewUpdate struct {
	Images Images `json:"images"`
}

// CaptureError is the "error" frame.
type CaptureError struct {
	Message string `json:"message"`
}

// ProcessingStatus is the "processing_status" frame. Stage, Progress and
// CurrentStep overwrite the session's values verbatim.
type ProcessingStatus struct {
	Stage       Stage   `json:"stage"`
	Progress    float64 `json:"progress"`
	CurrentStep string  `json:"currentStep"`
}

// ProcessingStep is the "processing_step" frame. Duration is in seconds.
type ProcessingStep struct {
	Step     string  `json:"step"`
	Status   string  `json:"status"`
	Duration float64 `json:"duration"`
}

// ProcessingLog is the "processing_log" frame.
type ProcessingLog struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// ProcessingComplete is the "processing_complete" frame.
type ProcessingComplete struct{}

// ProcessingError is the "processing_error" frame.
type ProcessingError struct {
	Message string `json:"message"`
}

// Log is the app-wide "log" frame.
type Log struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Notification is the app-wide "notification" frame.
type Notification struct {
	Message string `json:"message"`
}

func (CaptureStatus) Type() MessageType      { return TypeCaptureStatus }
func (CaptureComplete) Type() MessageType    { return TypeCaptureComplete }
func (PreviewUpdate) Type() MessageType      { return TypePreviewUpdate }
func (CaptureError) Type() MessageType       { return TypeError }
func (ProcessingStatus) Type() MessageType   { return TypeProcessingStatus }
func (ProcessingStep) Type() MessageType     { return TypeProcessingStep }
func (ProcessingLog) Type() MessageType      { return TypeProcessingLog }
func (ProcessingComplete) Type() MessageType { return TypeProcessingComplete }
func (ProcessingError) Type() MessageType    { return TypeProcessingError }
func (Log) Type() MessageType                { return TypeLog }
func (Notification) Type() MessageType       { return TypeNotification }

func (CaptureStatus) Domain() Domain      { return DomainCapture }
func (CaptureComplete) Domain() Domain    { return DomainCapture }
func (PreviewUpdate) Domain() Domain      { return DomainCapture }
func (CaptureError) Domain() Domain       { return DomainCapture }
func (ProcessingStatus) Domain() Domain   { return DomainProcessing }
func (ProcessingStep) Domain() Domain     { return DomainProcessing }
func (ProcessingLog) Domain() Domain      { return DomainProcessing }
func (ProcessingComplete) Domain() Domain { return DomainProcessing }
func (ProcessingError) Domain() Domain    { return DomainProcessing }
func (Log) Domain() Domain                { return DomainApp }
func (Notification) Domain() Domain       { return DomainApp }

func (CaptureStatus) inbound()      {}
func (CaptureComplete) inbound()    {}
func (PreviewUpdate) inbound()      {}
func (CaptureError) inbound()       {}
func (ProcessingStatus) inbound()   {}
func (ProcessingStep) inbound()     {}
func (ProcessingLog) inbound()      {}
func (ProcessingComplete) inbound() {}
func (ProcessingError) inbound()    {}
func (Log) inbound()                {}
func (Notification) inbound()       {}

// IsAlertLevel reports whether a server log level is shown to the user.
func IsAlertLevel(level string) bool {
	return level == "WARNING" || level == "ERROR"
}
