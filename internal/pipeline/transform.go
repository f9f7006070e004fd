package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/snowsense/internal/analysis"
	"github.com/couchcryptid/snowsense/internal/domain"
)

// Analyzer runs one snow analysis.
type Analyzer interface {
	Analyze(ctx context.Context, req domain.AnalysisRequest) (analysis.Result, error)
}

// SnowTransformer implements Transformer by decoding the request, running the
// analysis and serializing the resulting report.
type SnowTransformer struct {
	analyzer Analyzer
	logger   *slog.Logger
}

// NewTransformer creates a SnowTransformer.
func NewTransformer(analyzer Analyzer, logger *slog.Logger) *SnowTransformer {
	return &SnowTransformer{
		analyzer: analyzer,
		logger:   logger,
	}
}

func (t *SnowTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error) {
	req, err := domain.ParseRequest(raw)
	if err != nil {
		return domain.OutputEvent{}, err
	}

	res, err := t.analyzer.Analyze(ctx, req)
	if err != nil {
		return domain.OutputEvent{}, fmt.Errorf("analyze request %s: %w", req.RequestID, err)
	}

	t.logger.Debug("request analyzed",
		"request_id", req.RequestID,
		"region", res.Report.Region,
		"snow_area_km2", res.Report.SnowAreaKm2,
	)
	return domain.SerializeReport(res.Report)
}
