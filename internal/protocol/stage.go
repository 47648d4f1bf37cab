package protocol

// Stage is one step of the post-capture processing pipeline.
type Stage string

const (
	StageInitializing   Stage = "initializing"
	StagePreprocessing  Stage = "preprocessing"
	StageDeskewing      Stage = "deskewing"
	StageCropping       Stage = "cropping"
	StageSplitting      Stage = "splitting"
	StageDewarping      Stage = "dewarping"
	StageOCR            Stage = "ocr"
	StagePostprocessing Stage = "postprocessing"
	StageOutput         Stage = "output"
	StageCompleted      Stage = "completed"

	// StageFailed is out of band: reachable from any stage, not part of the order.
	StageFailed Stage = "failed"
)

// stageOrder is the fixed pipeline order.
var stageOrder = []Stage{
	StageInitializing,
	StagePreprocessing,
	StageDeskewing,
	StageCropping,
	StageSplitting,
	StageDewarping,
	StageOCR,
	StagePostprocessing,
	StageOutput,
	StageCompleted,
}

var stageDescriptions = map[Stage]string{
	StageInitializing:   "Initializing processing pipeline...",
	StagePreprocessing:  "Preprocessing captured images...",
	StageDeskewing:      "Correcting page orientation and skew...",
	StageCropping:       "Detecting and cropping page boundaries...",
	StageSplitting:      "Separating left and right pages...",
	StageDewarping:      "Correcting page curvature...",
	StageOCR:            "Performing optical character recognition...",
	StagePostprocessing: "Applying final image enhancements...",
	StageOutput:         "Generating output files...",
	StageCompleted:      "Processing completed successfully!",
	StageFailed:         "Processing failed",
}

// Stages returns the pipeline stages in order. The slice is a copy.
func Stages() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// Index returns the stage's position in the pipeline order, or -1 for
// failed and unknown stages.
func (s Stage) Index() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Describe returns a human-readable description of the stage.
func (s Stage) Describe() string {
	if d, ok := stageDescriptions[s]; ok {
		return d
	}
	return "Processing..."
}

// Terminal reports whether no further stage follows.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// StageProgress is the progress implied by a stage's position in the
// order: index / (stageCount - 1) * 100. Unknown and failed stages imply 0.
func StageProgress(s Stage) float64 {
	idx := s.Index()
	if idx < 0 {
		return 0
	}
	return float64(idx) / float64(len(stageOrder)-1) * 100
}
