package session

import (
	"log"
	"sync"
	"time"

	"github.com/spreads/client/internal/api"
	"github.com/spreads/client/internal/protocol"
	"github.com/spreads/client/internal/router"
)

// ProcessingState is what the processing screen renders.
type ProcessingState struct {
	Stage       protocol.Stage
	Progress    float64 // as last reported by the server
	CurrentStep string

	// WorkflowStatus mirrors the workflow record; it becomes "finished"
	// when the pipeline completes.
	WorkflowStatus string

	// Err is set by a processing_error and is terminal.
	Err string

	Started   bool // start_processing was sent
	Cancelled bool // the user cancelled and the screen should leave
}

// DisplayedProgress is the greater of the stage-implied progress and the
// reported one, so the bar never shows less than the stage order implies.
func (st ProcessingState) DisplayedProgress() float64 {
	return max(protocol.StageProgress(st.Stage), st.Progress)
}

// Terminal reports whether the pipeline has finished or failed.
func (st ProcessingState) Terminal() bool {
	return st.Stage.Terminal()
}

// Step is one entry of the pipeline step history.
type Step struct {
	Name      string
	Status    string
	Timestamp time.Time
	Duration  time.Duration
}

// LogEntry is one retained pipeline log line.
type LogEntry struct {
	Level     string
	Message   string
	Timestamp time.Time
}

// ProcessingSession drives one workflow's processing screen.
type ProcessingSession struct {
	*Remote[ProcessingState, Step, LogEntry]

	workflowID string
	deps       Deps
	startOnce  sync.Once
}

var _ router.ProcessingHandler = (*ProcessingSession)(nil)

// NewProcessingSession creates a session at stage initializing.
func NewProcessingSession(wf *api.Workflow, deps Deps) *ProcessingSession {
	deps.defaults()
	initial := ProcessingState{
		Stage:          protocol.StageInitializing,
		WorkflowStatus: wf.Status,
	}
	return &ProcessingSession{
		Remote:     newRemote[ProcessingState, Step, LogEntry](initial, nil),
		workflowID: wf.ID,
		deps:       deps,
	}
}

// WorkflowID returns the workflow being processed.
func (s *ProcessingSession) WorkflowID() string {
	return s.workflowID
}

// Steps returns the step history, oldest first.
func (s *ProcessingSession) Steps() []Step {
	return s.History()
}

// Logs returns the newest TailSize log entries, oldest first.
func (s *ProcessingSession) Logs() []LogEntry {
	return s.Tail()
}

// Mount starts the pipeline if the workflow's pages were captured. The
// start command goes out at most once per session, however often Mount is
// called.
func (s *ProcessingSession) Mount() error {
	if s.State().WorkflowStatus != api.StatusCaptured {
		return nil
	}

	var err error
	s.startOnce.Do(func() {
		err = s.deps.Sender.Send(protocol.StartProcessing{WorkflowID: s.workflowID})
		if err != nil {
			log.Printf("session: start_processing for %s not sent: %v", s.workflowID, err)
			return
		}
		s.mutate(func(st *ProcessingState, _ *[]Step) bool {
			st.Started = true
			return true
		})
	})
	return err
}

// Cancel asks the server to stop and marks the session cancelled right
// away. No acknowledgement is awaited.
func (s *ProcessingSession) Cancel() error {
	err := s.deps.Sender.Send(protocol.CancelProcessing{WorkflowID: s.workflowID})
	if err != nil {
		log.Printf("session: cancel_processing for %s not sent: %v", s.workflowID, err)
	}
	s.mutate(func(st *ProcessingState, _ *[]Step) bool {
		st.Cancelled = true
		return true
	})
	return err
}

// OnProcessingStatus overwrites stage, progress and current step verbatim.
// Once the session failed it stays failed.
func (s *ProcessingSession) OnProcessingStatus(m protocol.ProcessingStatus) {
	s.mutate(func(st *ProcessingState, _ *[]Step) bool {
		if st.Stage == protocol.StageFailed {
			return false
		}
		st.Stage = m.Stage
		st.Progress = m.Progress
		st.CurrentStep = m.CurrentStep
		return true
	})
}

// OnProcessingStep appends to the unbounded step history.
func (s *ProcessingSession) OnProcessingStep(m protocol.ProcessingStep) {
	step := Step{
		Name:      m.Step,
		Status:    m.Status,
		Timestamp: s.deps.Now(),
		Duration:  time.Duration(m.Duration * float64(time.Second)),
	}
	s.mutate(func(_ *ProcessingState, steps *[]Step) bool {
		*steps = append(*steps, step)
		return true
	})
}

// OnProcessingLog appends to the log tail; the oldest entry beyond
// TailSize is dropped.
func (s *ProcessingSession) OnProcessingLog(m protocol.ProcessingLog) {
	s.push(LogEntry{Level: m.Level, Message: m.Message, Timestamp: s.deps.Now()})
}

// OnProcessingComplete finishes the pipeline and the workflow.
func (s *ProcessingSession) OnProcessingComplete(protocol.ProcessingComplete) {
	s.mutate(func(st *ProcessingState, _ *[]Step) bool {
		st.Stage = protocol.StageCompleted
		st.Progress = 100
		st.WorkflowStatus = api.StatusFinished
		return true
	})
}

// OnProcessingError fails the session. There is no automatic retry.
func (s *ProcessingSession) OnProcessingError(m protocol.ProcessingError) {
	s.mutate(func(st *ProcessingState, _ *[]Step) bool {
		st.Stage = protocol.StageFailed
		st.Err = m.Message
		return true
	})
	s.deps.notifyError(m.Message)
}
