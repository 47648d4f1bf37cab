package simserver

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/spreads/client/internal/api"
	"github.com/spreads/client/internal/protocol"
)

// Workflow config keys that make the simulator fail on purpose.
const (
	// ConfigFailCapture makes every capture of the workflow fail.
	ConfigFailCapture = "simulate_capture_failure"

	// ConfigFailStage names the stage at which processing fails.
	ConfigFailStage = "simulate_failure_stage"
)

// walk is one running pipeline.
type walk struct {
	cancel context.CancelFunc
}

func imagePath(workflowID string, page int, side string) string {
	return fmt.Sprintf("/api/workflow/%s/image/%03d-%s.jpg", workflowID, page, side)
}

// simulateCapture answers a capture command: capturing, then after
// CaptureDelay the preview, the completed page and ready again.
func (s *Server) simulateCapture(c *client, cmd protocol.Capture) {
	ctx := context.Background()
	wf, err := s.store.GetWorkflow(ctx, cmd.WorkflowID)
	if err != nil {
		c.push(protocol.CaptureError{Message: fmt.Sprintf("workflow %s not found", cmd.WorkflowID)})
		return
	}

	c.push(protocol.CaptureStatus{Status: protocol.DeviceCapturing})

	timer := time.NewTimer(s.opts.CaptureDelay)
	defer timer.Stop()
	select {
	case <-c.done:
		return
	case <-timer.C:
	}

	if fail, _ := wf.Config[ConfigFailCapture].(bool); fail {
		c.push(protocol.CaptureError{Message: "camera did not respond"})
		c.push(protocol.CaptureStatus{Status: protocol.DeviceReady})
		return
	}

	if wf.Status == api.StatusNew {
		if _, err := s.store.UpdateWorkflow(ctx, wf.ID, api.WorkflowUpdate{Status: api.StatusCapture}); err != nil {
			log.Printf("simserver: mark %s capturing: %v", wf.ID, err)
		}
	}

	images := protocol.Images{
		Odd:  imagePath(wf.ID, cmd.PageNumber, "odd"),
		Even: imagePath(wf.ID, cmd.PageNumber, "even"),
	}
	c.push(protocol.PreviewUpdate{Images: images})
	c.push(protocol.CaptureComplete{PageID: uuid.NewString(), Images: images})
	c.push(protocol.CaptureStatus{Status: protocol.DeviceReady})
	log.Printf("simserver: captured page %d of %s", cmd.PageNumber, wf.ID)
}

// startProcessing begins a pipeline walk unless one is already running
// for the workflow.
func (s *Server) startProcessing(c *client, cmd protocol.StartProcessing) {
	wf, err := s.store.GetWorkflow(context.Background(), cmd.WorkflowID)
	if err != nil {
		c.push(protocol.ProcessingError{Message: fmt.Sprintf("workflow %s not found", cmd.WorkflowID)})
		return
	}

	s.mu.Lock()
	if _, running := s.processing[wf.ID]; running {
		s.mu.Unlock()
		c.push(protocol.Notification{Message: fmt.Sprintf("%s is already being processed", wf.Name)})
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &walk{cancel: cancel}
	s.processing[wf.ID] = w
	s.mu.Unlock()

	go s.runPipeline(ctx, c, wf, w)
}

// cancelProcessing stops a running walk and tells the client.
func (s *Server) cancelProcessing(c *client, cmd protocol.CancelProcessing) {
	s.mu.Lock()
	w, running := s.processing[cmd.WorkflowID]
	if running {
		delete(s.processing, cmd.WorkflowID)
	}
	s.mu.Unlock()

	if !running {
		c.push(protocol.Notification{Message: "nothing to cancel"})
		return
	}
	w.cancel()
	c.push(protocol.Notification{Message: "Processing cancelled"})
}

// runPipeline walks every stage before completed, then finishes the
// workflow.
func (s *Server) runPipeline(ctx context.Context, c *client, wf *api.Workflow, w *walk) {
	defer s.finishWalk(wf.ID, w)

	s.setStatus(wf.ID, api.StatusProcessing)
	failAt, _ := wf.Config[ConfigFailStage].(string)

	stages := protocol.Stages()
	for _, stage := range stages[:len(stages)-1] {
		c.push(protocol.ProcessingStatus{
			Stage:       stage,
			Progress:    protocol.StageProgress(stage),
			CurrentStep: stage.Describe(),
		})
		c.push(protocol.ProcessingLog{Level: "INFO", Message: fmt.Sprintf("%s: %s", stage, stage.Describe())})

		started := time.Now()
		if !s.sleep(ctx, c) {
			s.setStatus(wf.ID, api.StatusCaptured)
			log.Printf("simserver: processing of %s stopped at %s", wf.ID, stage)
			return
		}

		if string(stage) == failAt {
			c.push(protocol.ProcessingLog{Level: "ERROR", Message: fmt.Sprintf("%s failed", stage)})
			c.push(protocol.ProcessingError{Message: fmt.Sprintf("simulated failure during %s", stage)})
			s.setStatus(wf.ID, api.StatusError)
			return
		}

		c.push(protocol.ProcessingStep{
			Step:     string(stage),
			Status:   "completed",
			Duration: time.Since(started).Seconds(),
		})
	}

	if !s.setStatus(wf.ID, api.StatusFinished) {
		c.push(protocol.ProcessingError{Message: "could not save the processed workflow"})
		return
	}
	c.push(protocol.ProcessingStatus{
		Stage:       protocol.StageCompleted,
		Progress:    100,
		CurrentStep: protocol.StageCompleted.Describe(),
	})
	c.push(protocol.ProcessingComplete{})
	log.Printf("simserver: processing of %s completed", wf.ID)
}

// sleep waits one stage delay. It reports false when the walk was
// cancelled or the client went away.
func (s *Server) sleep(ctx context.Context, c *client) bool {
	timer := time.NewTimer(s.opts.StageDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-c.done:
		return false
	case <-timer.C:
		return true
	}
}

func (s *Server) finishWalk(id string, w *walk) {
	w.cancel()
	s.mu.Lock()
	if s.processing[id] == w {
		delete(s.processing, id)
	}
	s.mu.Unlock()
}

func (s *Server) setStatus(id, status string) bool {
	if _, err := s.store.UpdateWorkflow(context.Background(), id, api.WorkflowUpdate{Status: status}); err != nil {
		log.Printf("simserver: set %s status %s: %v", id, status, err)
		return false
	}
	return true
}
