package protocol

// Command is an outbound frame. Commands are fire-and-forget: the protocol
// has no acknowledgement.
type Command interface {
	Type() MessageType
	command()
}

// Capture asks the server to capture the given page of a workflow.
type Capture struct {
	WorkflowID string `json:"workflow_id"`
	PageNumber int    `json:"page_number"`
}

// StartProcessing kicks off the post-capture pipeline for a workflow.
type StartProcessing struct {
	WorkflowID string `json:"workflow_id"`
}

// CancelProcessing stops the pipeline for a workflow.
type CancelProcessing struct {
	WorkflowID string `json:"workflow_id"`
}

func (Capture) Type() MessageType          { return TypeCapture }
func (StartProcessing) Type() MessageType  { return TypeStartProcessing }
func (CancelProcessing) Type() MessageType { return TypeCancelProcessing }

func (Capture) command()          {}
func (StartProcessing) command()  {}
func (CancelProcessing) command() {}
