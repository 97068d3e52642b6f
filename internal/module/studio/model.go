// Package studio implements the asset-kit generation pipeline: uploads,
// single-shot generation, and the multi-stage orchestrated run that turns a
// batch of jewelry photos into backgrounds, studio views and model shots.
package studio

import (
	"time"

	"github.com/google/uuid"
)

// GenType tags a generation request and selects its prompt suffix.
type GenType string

const (
	GenTypeBackground GenType = "background"
	GenTypeStudio     GenType = "studio"
	GenTypeModel      GenType = "model"
	GenTypeStandard   GenType = ""
)

// Category identifies a model-shot body placement.
type Category string

const (
	CategoryEar   Category = "ear"
	CategoryNeck  Category = "neck"
	CategoryWrist Category = "wrist"
)

// Categories lists every model-shot category in a stable order.
var Categories = []Category{CategoryEar, CategoryNeck, CategoryWrist}

const (
	// backgroundCount is the number of independent background variants
	// requested per run.
	backgroundCount = 5
	// shotsPerCategory is the number of model shots requested per category.
	shotsPerCategory = 3
	// studioReferenceCount is how many background assets seed later stages.
	studioReferenceCount = 2
)

// TotalSteps returns the progress denominator for a run over imageCount
// primary images: one upload step, one per background, and one per studio or
// model-shot call.
func TotalSteps(imageCount int) int {
	return 1 + backgroundCount + imageCount*(1+len(Categories)*shotsPerCategory)
}

// ModelShotGroup holds the surviving shots of one category. A group is only
// present when at least one of its shots succeeded.
type ModelShotGroup struct {
	Category Category `json:"category"`
	Images   []string `json:"images"`
}

// ObjectResult is the per-primary-image slice of the aggregate.
type ObjectResult struct {
	StudioView string           `json:"studioView,omitempty"`
	ModelShots []ModelShotGroup `json:"modelShots"`
}

// Aggregate is the merged result of a run. ObjectResults is index-aligned
// with the original upload order; BackgroundAssets grows in completion
// order. Both only grow while a run is in flight.
type Aggregate struct {
	BackgroundAssets []string       `json:"backgroundAssets"`
	ObjectResults    []ObjectResult `json:"objectResults"`
}

// NewAggregate returns an aggregate sized for imageCount primary images.
func NewAggregate(imageCount int) Aggregate {
	return Aggregate{
		BackgroundAssets: []string{},
		ObjectResults:    make([]ObjectResult, imageCount),
	}
}

// Clone deep-copies the aggregate so snapshots never alias live state.
func (a Aggregate) Clone() Aggregate {
	out := Aggregate{
		BackgroundAssets: append([]string(nil), a.BackgroundAssets...),
		ObjectResults:    make([]ObjectResult, len(a.ObjectResults)),
	}
	for i, obj := range a.ObjectResults {
		cp := ObjectResult{StudioView: obj.StudioView}
		for _, group := range obj.ModelShots {
			cp.ModelShots = append(cp.ModelShots, ModelShotGroup{
				Category: group.Category,
				Images:   append([]string(nil), group.Images...),
			})
		}
		out.ObjectResults[i] = cp
	}
	return out
}

// Stage labels the pipeline phase a run is in.
type Stage string

const (
	StageUploading   Stage = "uploading"
	StageBackgrounds Stage = "backgrounds"
	StageObjects     Stage = "objects"
	StageAggregating Stage = "aggregating"
	StageComplete    Stage = "complete"
)

// Progress is the observational step counter republished on every completed
// sub-call. Completed never decreases.
type Progress struct {
	Stage     Stage  `json:"stage"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Message   string `json:"message"`
}

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// IsTerminal checks if the status is a terminal state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Run is one pipeline execution. Progress is nil before the run starts and
// again shortly after completion.
type Run struct {
	ID          uuid.UUID `json:"id"`
	Status      RunStatus `json:"status"`
	Aggregate   Aggregate `json:"result"`
	Progress    *Progress `json:"progress,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// FileInput is one uploaded file held in memory until stage one stores it.
type FileInput struct {
	Name        string
	ContentType string
	Data        []byte
}

// RunInput is the orchestrator's input batch.
type RunInput struct {
	Images     []FileInput
	References []FileInput
}
