package session

import (
	"context"
	"log"
	"time"

	"github.com/spreads/client/internal/api"
	apperrors "github.com/spreads/client/internal/errors"
	"github.com/spreads/client/internal/protocol"
	"github.com/spreads/client/internal/router"
)

// CaptureState is what the capture screen renders.
type CaptureState struct {
	// Status is whatever the server last reported. The client never sets
	// it on its own.
	Status protocol.DeviceStatus

	// Capturing is the single-flight flag: a capture command is outstanding.
	Capturing bool

	CurrentPage int
	Preview     protocol.Images

	// Err is the server-reported capture error. Once set, Capture is
	// refused until the screen is reopened.
	Err string

	// Finished is set once the pages were persisted and the screen should
	// leave.
	Finished bool
}

// Notice is a server-pushed error kept in the capture tail.
type Notice struct {
	Message   string
	Timestamp time.Time
}

// Deps are the collaborators a session talks to. Notifier and Now are
// optional.
type Deps struct {
	Sender   Sender
	Notifier Notifier
	Updater  WorkflowUpdater
	Now      func() time.Time
}

func (d *Deps) defaults() {
	if d.Now == nil {
		d.Now = time.Now
	}
}

func (d *Deps) notifyError(msg string) {
	if d.Notifier != nil {
		d.Notifier.Error(msg)
	}
}

// CaptureSession drives one workflow's capture screen.
type CaptureSession struct {
	*Remote[CaptureState, api.Page, Notice]

	workflowID string
	deps       Deps
}

var _ router.CaptureHandler = (*CaptureSession)(nil)

// NewCaptureSession seeds a session from the workflow's already captured
// pages. Status starts idle until the server says otherwise.
func NewCaptureSession(wf *api.Workflow, deps Deps) *CaptureSession {
	deps.defaults()
	initial := CaptureState{
		Status:      protocol.DeviceIdle,
		CurrentPage: len(wf.Pages),
	}
	return &CaptureSession{
		Remote:     newRemote[CaptureState, api.Page, Notice](initial, wf.Pages),
		workflowID: wf.ID,
		deps:       deps,
	}
}

// WorkflowID returns the workflow being captured.
func (s *CaptureSession) WorkflowID() string {
	return s.workflowID
}

// Pages returns the captured pages in sequence order.
func (s *CaptureSession) Pages() []api.Page {
	return s.History()
}

// CanCapture reports whether Capture would be accepted right now.
func (s *CaptureSession) CanCapture() bool {
	st := s.State()
	return st.Err == "" && !st.Capturing && st.Status == protocol.DeviceReady
}

// Capture requests the next page. It is accepted only when the device is
// ready, no capture is in flight, and no capture error is pending; otherwise
// nothing is sent. A send failure clears the in-flight flag again.
func (s *CaptureSession) Capture() error {
	var (
		page   int
		reject error
	)
	s.mutate(func(st *CaptureState, _ *[]api.Page) bool {
		switch {
		case st.Err != "":
			reject = apperrors.CaptureFailed(st.Err)
		case st.Capturing:
			reject = apperrors.CaptureInFlight(st.CurrentPage + 1)
		case st.Status != protocol.DeviceReady:
			reject = apperrors.CaptureNotReady(string(st.Status))
		default:
			st.Capturing = true
			page = st.CurrentPage + 1
			return true
		}
		return false
	})
	if reject != nil {
		return reject
	}

	err := s.deps.Sender.Send(protocol.Capture{WorkflowID: s.workflowID, PageNumber: page})
	if err != nil {
		log.Printf("session: capture page %d not sent: %v", page, err)
		s.mutate(func(st *CaptureState, _ *[]api.Page) bool {
			st.Capturing = false
			return true
		})
		return err
	}
	return nil
}

// Retake drops the last captured page locally. The server is not told: the
// next capture reuses the page number and Finish writes the full list, so
// the server's copy converges when the session is finished.
func (s *CaptureSession) Retake() error {
	var reject error
	s.mutate(func(st *CaptureState, pages *[]api.Page) bool {
		switch {
		case st.Capturing:
			reject = apperrors.CaptureInFlight(st.CurrentPage + 1)
		case st.CurrentPage == 0:
			reject = apperrors.NothingToRetake()
		default:
			st.CurrentPage--
			if n := len(*pages); n > 0 {
				*pages = (*pages)[:n-1]
			}
			return true
		}
		return false
	})
	return reject
}

// Finish persists the pages with status "captured". On failure nothing
// changes locally; the error is shown as a banner and returned.
func (s *CaptureSession) Finish(ctx context.Context) error {
	st := s.State()
	pages := s.Pages()
	switch {
	case st.Capturing:
		return apperrors.CaptureInFlight(st.CurrentPage + 1)
	case len(pages) == 0:
		return apperrors.NoPages()
	}

	_, err := s.deps.Updater.UpdateWorkflow(ctx, s.workflowID, api.WorkflowUpdate{
		Status: api.StatusCaptured,
		Pages:  pages,
	})
	if err != nil {
		log.Printf("session: finish %s failed: %v", s.workflowID, err)
		s.deps.notifyError("Failed to finish capture session: " + apperrors.GetMessage(err))
		return err
	}

	s.mutate(func(st *CaptureState, _ *[]api.Page) bool {
		st.Finished = true
		return true
	})
	return nil
}

// OnCaptureStatus adopts the server's device status verbatim.
func (s *CaptureSession) OnCaptureStatus(m protocol.CaptureStatus) {
	s.mutate(func(st *CaptureState, _ *[]api.Page) bool {
		st.Status = m.Status
		return true
	})
}

// OnCaptureComplete records the new page and clears the in-flight flag.
func (s *CaptureSession) OnCaptureComplete(m protocol.CaptureComplete) {
	now := s.deps.Now()
	s.mutate(func(st *CaptureState, pages *[]api.Page) bool {
		st.Capturing = false
		*pages = append(*pages, api.Page{
			ID:        m.PageID,
			Sequence:  st.CurrentPage + 1,
			Captured:  true,
			Images:    m.Images,
			Timestamp: now,
		})
		st.CurrentPage++
		return true
	})
}

// OnPreviewUpdate replaces the preview pair. Previews are independent of
// capture completion.
func (s *CaptureSession) OnPreviewUpdate(m protocol.PreviewUpdate) {
	s.mutate(func(st *CaptureState, _ *[]api.Page) bool {
		st.Preview = m.Images
		return true
	})
}

// OnCaptureError enters the error state and shows a banner.
func (s *CaptureSession) OnCaptureError(m protocol.CaptureError) {
	s.mutate(func(st *CaptureState, _ *[]api.Page) bool {
		st.Err = m.Message
		st.Capturing = false
		return true
	})
	s.push(Notice{Message: m.Message, Timestamp: s.deps.Now()})
	s.deps.notifyError(m.Message)
}
