package studio

import "time"

// Update is one immutable partial result emitted by a pipeline branch.
// Updates are applied in arrival order by a single consumer, so concurrent
// branches never touch the run directly. Branches own disjoint aggregate
// fields; the reducer only serializes, it never needs to merge.
type Update interface {
	apply(run *Run)
}

// stageUpdate switches the progress stage label and message.
type stageUpdate struct {
	Stage   Stage
	Message string
}

func (u stageUpdate) apply(run *Run) {
	p := ensureProgress(run)
	p.Stage = u.Stage
	p.Message = u.Message
}

// stepUpdate increments the completed-step counter by one.
type stepUpdate struct {
	Message string
}

func (u stepUpdate) apply(run *Run) {
	p := ensureProgress(run)
	p.Completed++
	if u.Message != "" {
		p.Message = u.Message
	}
}

// backgroundUpdate appends one finished background asset.
type backgroundUpdate struct {
	URL string
}

func (u backgroundUpdate) apply(run *Run) {
	run.Aggregate.BackgroundAssets = append(run.Aggregate.BackgroundAssets, u.URL)
}

// studioUpdate sets the studio view of one object result.
type studioUpdate struct {
	Index int
	URL   string
}

func (u studioUpdate) apply(run *Run) {
	if u.Index < 0 || u.Index >= len(run.Aggregate.ObjectResults) {
		return
	}
	run.Aggregate.ObjectResults[u.Index].StudioView = u.URL
}

// modelShotsUpdate adds one settled category group to an object result.
// At most one group per category ever arrives.
type modelShotsUpdate struct {
	Index int
	Group ModelShotGroup
}

func (u modelShotsUpdate) apply(run *Run) {
	if u.Index < 0 || u.Index >= len(run.Aggregate.ObjectResults) {
		return
	}
	obj := &run.Aggregate.ObjectResults[u.Index]
	for i, existing := range obj.ModelShots {
		if existing.Category == u.Group.Category {
			obj.ModelShots[i] = u.Group
			return
		}
	}
	obj.ModelShots = append(obj.ModelShots, u.Group)
}

// finalUpdate replaces the incremental aggregate with the settled one.
// Idempotent: the final aggregate contains exactly what was merged.
type finalUpdate struct {
	Aggregate Aggregate
}

func (u finalUpdate) apply(run *Run) {
	run.Aggregate = u.Aggregate.Clone()
}

func ensureProgress(run *Run) *Progress {
	if run.Progress == nil {
		run.Progress = &Progress{Total: TotalSteps(len(run.Aggregate.ObjectResults))}
	}
	return run.Progress
}

// applyUpdates drains updates into the run under the runner's lock function
// until the channel closes.
func applyUpdates(updates <-chan Update, withRun func(func(*Run))) {
	for u := range updates {
		withRun(func(run *Run) {
			u.apply(run)
			run.UpdatedAt = time.Now()
		})
	}
}
