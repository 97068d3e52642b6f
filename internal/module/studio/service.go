package studio

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/gemkit/server/internal/module/imagegen"
	"github.com/gemkit/server/internal/module/storage"
	"github.com/gemkit/server/internal/module/studio/cache"
	apperrors "github.com/gemkit/server/internal/shared/errors"
	"github.com/gemkit/server/internal/shared/metrics"
)

const (
	uploadFolder    = "uploads"
	processedFolder = "processed"
)

// Service glues storage and generation together: it stores uploads, runs
// single generations and persists their results, and satisfies the
// orchestrator's Uploader and Generator interfaces.
type Service struct {
	store   *storage.Client
	gen     *imagegen.Client
	results *cache.ResultCache
	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewService creates a service. The result cache may be nil.
func NewService(store *storage.Client, gen *imagegen.Client, results *cache.ResultCache, m *metrics.Metrics, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:   store,
		gen:     gen,
		results: results,
		metrics: m,
		log:     log,
	}
}

// Upload stores one file and returns its public URL.
func (s *Service) Upload(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", apperrors.Validation("empty file")
	}

	url, err := s.store.PutBytes(ctx, data, uploadFolder, contentType)
	if err != nil {
		return "", err
	}

	s.log.Debug("file uploaded",
		zap.String("filename", filename),
		zap.String("url", url),
	)
	return url, nil
}

// Generate runs one generation call and stores the result, returning the
// stored asset's public URL. The prompt receives the type's fixed suffix;
// primary URLs and references are merged into one reference list, with the
// generation client enforcing its own cap.
func (s *Service) Generate(ctx context.Context, params GenerateParams) (string, error) {
	if strings.TrimSpace(params.Prompt) == "" {
		return "", apperrors.Validation("prompt is required")
	}
	if len(params.URLs) == 0 {
		return "", apperrors.Validation("at least one image URL is required")
	}

	prompt := ApplyTypeSuffix(params.Prompt, params.Type)
	refs := append(append([]string(nil), params.URLs...), params.References...)

	if cached, err := s.results.Get(ctx, string(params.Type), prompt, params.URLs, params.References); err != nil {
		s.log.Warn("result cache lookup failed", zap.Error(err))
	} else if cached != "" {
		s.log.Debug("result cache hit", zap.String("url", cached))
		return cached, nil
	}

	dataURI, err := s.gen.Generate(ctx, prompt, refs)
	if s.metrics != nil {
		s.metrics.RecordGenerationCall(string(params.Type), err)
	}
	if err != nil {
		return "", err
	}

	url, err := s.store.PutURL(ctx, dataURI, s.resultFolder(params.Type), "")
	if err != nil {
		return "", err
	}

	if err := s.results.Set(ctx, string(params.Type), prompt, params.URLs, params.References, url); err != nil {
		s.log.Warn("result cache store failed", zap.Error(err))
	}

	return url, nil
}

// resultFolder namespaces stored results by generation type.
func (s *Service) resultFolder(genType GenType) string {
	if genType == GenTypeStandard {
		return processedFolder
	}
	return processedFolder + "/" + string(genType)
}
