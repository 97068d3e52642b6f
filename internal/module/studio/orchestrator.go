package studio

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Uploader stores one uploaded file and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, filename, contentType string, data []byte) (string, error)
}

// GenerateParams is one generation request: prompt, primary image URLs,
// style reference URLs and the type tag driving the prompt suffix.
type GenerateParams struct {
	Prompt     string
	URLs       []string
	References []string
	Type       GenType
}

// Generator runs one generation request and returns the stored result URL.
type Generator interface {
	Generate(ctx context.Context, params GenerateParams) (string, error)
}

// Orchestrator drives a run through its five stages. Stage one failure
// aborts the run; every generation branch degrades to omission instead.
type Orchestrator struct {
	uploader  Uploader
	generator Generator
	log       *zap.Logger
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(uploader Uploader, generator Generator, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		uploader:  uploader,
		generator: generator,
		log:       log,
	}
}

// Execute runs the pipeline, emitting an Update for every partial result and
// progress step. The returned error is non-nil only for whole-run failures.
func (o *Orchestrator) Execute(ctx context.Context, input RunInput, emit func(Update)) error {
	primaryURLs, refURLs, err := o.uploadAll(ctx, input, emit)
	if err != nil {
		return err
	}

	backgrounds := o.generateBackgrounds(ctx, primaryURLs, refURLs, emit)
	results := o.processObjects(ctx, primaryURLs, refURLs, backgrounds, emit)

	emit(stageUpdate{Stage: StageAggregating, Message: "Merging results"})
	emit(finalUpdate{Aggregate: Aggregate{
		BackgroundAssets: backgrounds,
		ObjectResults:    results,
	}})

	emit(stageUpdate{Stage: StageComplete, Message: "Complete"})
	return nil
}

// uploadAll is stage one: every primary and reference file is uploaded in
// parallel, and any single failure fails the run before generation starts.
func (o *Orchestrator) uploadAll(ctx context.Context, input RunInput, emit func(Update)) ([]string, []string, error) {
	emit(stageUpdate{Stage: StageUploading, Message: "Uploading images"})

	primaryURLs := make([]string, len(input.Images))
	refURLs := make([]string, len(input.References))

	g, gctx := errgroup.WithContext(ctx)
	for i, file := range input.Images {
		g.Go(func() error {
			url, err := o.uploader.Upload(gctx, file.Name, file.ContentType, file.Data)
			if err != nil {
				return fmt.Errorf("upload %s: %w", file.Name, err)
			}
			primaryURLs[i] = url
			return nil
		})
	}
	for i, file := range input.References {
		g.Go(func() error {
			url, err := o.uploader.Upload(gctx, file.Name, file.ContentType, file.Data)
			if err != nil {
				return fmt.Errorf("upload reference %s: %w", file.Name, err)
			}
			refURLs[i] = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	emit(stepUpdate{Message: "Images uploaded"})
	return primaryURLs, refURLs, nil
}

// generateBackgrounds is stage two: five independent variants, collected in
// completion order. Individual failures are logged and omitted.
func (o *Orchestrator) generateBackgrounds(ctx context.Context, primaryURLs, refURLs []string, emit func(Update)) []string {
	emit(stageUpdate{Stage: StageBackgrounds, Message: "Generating background variants"})

	// References steer the style; without any, the first primary stands in.
	styleRefs := refURLs
	if len(styleRefs) == 0 && len(primaryURLs) > 0 {
		styleRefs = primaryURLs[:1]
	}

	var (
		mu          sync.Mutex
		backgrounds []string
		wg          sync.WaitGroup
	)
	for i, prompt := range BackgroundPrompts() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			url, err := o.generator.Generate(ctx, GenerateParams{
				Prompt: prompt,
				URLs:   styleRefs,
				Type:   GenTypeBackground,
			})
			if err != nil {
				o.log.Warn("background generation failed",
					zap.Int("variant", i),
					zap.Error(err),
				)
			} else {
				mu.Lock()
				backgrounds = append(backgrounds, url)
				emit(backgroundUpdate{URL: url})
				mu.Unlock()
			}
			emit(stepUpdate{Message: "Generating background variants"})
		}()
	}
	wg.Wait()

	return backgrounds
}

// processObjects is stage three: for every primary image, one studio call
// and three category branches of three shots each, all parallel. Each of
// the ten calls degrades independently.
func (o *Orchestrator) processObjects(ctx context.Context, primaryURLs, refURLs, backgrounds []string, emit func(Update)) []ObjectResult {
	emit(stageUpdate{Stage: StageObjects, Message: "Generating studio views and model shots"})

	studioRefs := firstN(backgrounds, studioReferenceCount)
	modelRefs := append(append([]string(nil), studioRefs...), refURLs...)

	results := make([]ObjectResult, len(primaryURLs))

	var wg sync.WaitGroup
	for i, primaryURL := range primaryURLs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.processObject(ctx, i, primaryURL, studioRefs, modelRefs, &results[i], emit)
		}()
	}
	wg.Wait()

	return results
}

func (o *Orchestrator) processObject(ctx context.Context, index int, primaryURL string, studioRefs, modelRefs []string, result *ObjectResult, emit func(Update)) {
	var (
		mu sync.Mutex // guards result.ModelShots across category branches
		wg sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		url, err := o.generator.Generate(ctx, GenerateParams{
			Prompt:     StudioPrompt(),
			URLs:       []string{primaryURL},
			References: studioRefs,
			Type:       GenTypeStudio,
		})
		if err != nil {
			o.log.Warn("studio view generation failed",
				zap.Int("object", index),
				zap.Error(err),
			)
		} else {
			result.StudioView = url
			emit(studioUpdate{Index: index, URL: url})
		}
		emit(stepUpdate{Message: fmt.Sprintf("Item %d: studio view", index+1)})
	}()

	for _, cat := range Categories {
		wg.Add(1)
		go func() {
			defer wg.Done()
			group := o.generateCategory(ctx, index, primaryURL, modelRefs, cat, emit)
			if len(group.Images) == 0 {
				return // empty categories are omitted
			}
			mu.Lock()
			result.ModelShots = append(result.ModelShots, group)
			emit(modelShotsUpdate{Index: index, Group: group})
			mu.Unlock()
		}()
	}

	wg.Wait()
}

// generateCategory requests the category's three shots in parallel and
// returns the group once all of them settle, keeping only successes.
func (o *Orchestrator) generateCategory(ctx context.Context, index int, primaryURL string, modelRefs []string, cat Category, emit func(Update)) ModelShotGroup {
	shots := make([]string, shotsPerCategory)

	var wg sync.WaitGroup
	for j := range shots {
		wg.Add(1)
		go func() {
			defer wg.Done()
			url, err := o.generator.Generate(ctx, GenerateParams{
				Prompt:     CategoryPrompt(cat),
				URLs:       []string{primaryURL},
				References: modelRefs,
				Type:       GenTypeModel,
			})
			if err != nil {
				o.log.Warn("model shot generation failed",
					zap.Int("object", index),
					zap.String("category", string(cat)),
					zap.Int("shot", j),
					zap.Error(err),
				)
			} else {
				shots[j] = url
			}
			emit(stepUpdate{Message: fmt.Sprintf("Item %d: %s shots", index+1, cat)})
		}()
	}
	wg.Wait()

	group := ModelShotGroup{Category: cat}
	for _, url := range shots {
		if url != "" {
			group.Images = append(group.Images, url)
		}
	}
	return group
}

func firstN(s []string, n int) []string {
	if len(s) < n {
		n = len(s)
	}
	return append([]string(nil), s[:n]...)
}
