package workflow

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/designd/internal/assets"
	"github.com/fyrsmithlabs/designd/internal/events"
	"github.com/fyrsmithlabs/designd/internal/llm"
	"github.com/fyrsmithlabs/designd/internal/logging"
	"github.com/fyrsmithlabs/designd/internal/session"
	"github.com/fyrsmithlabs/designd/internal/vectorstore"
)

// runImage runs analysis and search for a new image session and suspends
// in StageAwaitingSelection.
func (d *Driver) runImage(ctx context.Context, id, imagePath, userQuery string) (*ImageResult, error) {
	ctx = logging.WithSessionID(ctx, id)
	ctx, span := d.tracer.Start(ctx, "workflow.StartImageSession",
		trace.WithAttributes(attribute.String("session.id", id)))
	defer span.End()

	unlock := d.lock(id)
	defer unlock()

	st := session.New(id, d.cfg.Now())
	st.InputType = session.InputImage
	st.ImagePath = imagePath
	st.UserQuery = userQuery
	d.enter(ctx, st, session.StageRouting)
	if d.sessions != nil {
		d.sessions.Add(ctx, 1, metric.WithAttributes(attribute.String("input_type", string(session.InputImage))))
	}
	d.publish(ctx, st, events.TypeStarted)

	image, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, d.fail(ctx, span, st, fmt.Errorf("failed to read image: %w", err))
	}

	d.enter(ctx, st, session.StageImageAnalyzing)
	err = d.timed(ctx, session.StageImageAnalyzing, func() error {
		st.Base64Image = assets.DataURL(image)
		d.countModelCall(ctx, "describe_image")
		analysis, err := d.deps.Model.DescribeImage(ctx, st.Base64Image)
		if err != nil {
			return fmt.Errorf("image analysis failed: %w", err)
		}
		st.InputAnalysis = analysis
		return nil
	})
	if err != nil {
		return nil, d.fail(ctx, span, st, err)
	}

	d.enter(ctx, st, session.StageImageSearching)
	err = d.timed(ctx, session.StageImageSearching, func() error {
		vec, err := d.deps.Embedder.EmbedImage(ctx, image)
		if err != nil {
			return fmt.Errorf("image embedding failed: %w", err)
		}
		res, err := d.deps.Searcher.SearchAndFilter(ctx, vec, d.cfg.ImageResults)
		if err != nil {
			return fmt.Errorf("similar design search failed: %w", err)
		}
		st.SearchResults = toSearchResults(res)
		st.ComparisonResults = d.rank(res)
		return nil
	})
	if err != nil {
		return nil, d.fail(ctx, span, st, err)
	}

	d.enter(ctx, st, session.StageAwaitingSelection)
	if err := d.save(ctx, st); err != nil {
		span.RecordError(err)
		return nil, err
	}
	d.publish(ctx, st, events.TypeAwaitingSelection)

	d.logger.Info(ctx, "image session awaiting selection",
		zap.Int("results", len(st.ComparisonResults)),
	)

	return &ImageResult{
		SessionID:     st.ID,
		InputAnalysis: st.InputAnalysis,
		Results:       st.ComparisonResults,
		Message:       SelectionMessage,
		Options:       st.Options(),
	}, nil
}

// rank assigns 1-based indices in result order and resolves local images.
func (d *Driver) rank(res *vectorstore.QueryResult) []session.RankedResult {
	out := make([]session.RankedResult, 0, res.Len())
	for i := 0; i < res.Len(); i++ {
		id := res.IDs[i]
		var md map[string]string
		if i < len(res.Metadatas) {
			md = res.Metadatas[i]
		}
		path, _ := d.deps.Resolver.Resolve(id)
		out = append(out, session.RankedResult{
			Index:             i + 1,
			DesignID:          id,
			Distance:          res.Distances[i],
			ApplicationNumber: metadataOr(md, vectorstore.MetaApplicationNumber),
			ArticleName:       metadataOr(md, vectorstore.MetaArticleName),
			AdmstStat:         metadataOr(md, vectorstore.MetaAdmstStat),
			ImagePath:         path,
		})
	}
	return out
}

func metadataOr(md map[string]string, key string) string {
	if v, ok := md[key]; ok {
		return v
	}
	return MissingMetadataValue
}

func toSearchResults(res *vectorstore.QueryResult) session.SearchResults {
	if res == nil {
		return session.SearchResults{}
	}
	return session.SearchResults{
		IDs:       res.IDs,
		Distances: res.Distances,
		Metadatas: res.Metadatas,
	}
}

// ResumeWithSelection completes a suspended image session with the chosen
// design. An index that is not among the results still produces a report.
// Resuming a completed session returns the stored outcome unchanged.
func (d *Driver) ResumeWithSelection(ctx context.Context, id string, index int) (*SelectionResult, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}
	ctx = logging.WithSessionID(ctx, id)
	ctx, span := d.tracer.Start(ctx, "workflow.ResumeWithSelection",
		trace.WithAttributes(
			attribute.String("session.id", id),
			attribute.Int("selected_index", index),
		))
	defer span.End()

	unlock := d.lock(id)
	defer unlock()

	st, err := d.deps.Store.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}

	if st.InputType != session.InputImage {
		return nil, fmt.Errorf("%w: session %s is a %s session", ErrInvalidStage, id, st.InputType)
	}
	switch st.Stage {
	case session.StageDone:
		d.logger.Info(ctx, "session already complete, returning stored report")
		return selectionResult(st), nil
	case session.StageAwaitingSelection:
	default:
		return nil, fmt.Errorf("%w: session %s is in stage %s", ErrInvalidStage, id, st.Stage)
	}

	st.SelectedIndex = index

	d.enter(ctx, st, session.StageComparing)
	if err := d.timed(ctx, session.StageComparing, func() error { return d.compare(ctx, st) }); err != nil {
		return nil, d.fail(ctx, span, st, err)
	}

	d.enter(ctx, st, session.StageReporting)
	if err := d.timed(ctx, session.StageReporting, func() error { return d.report(ctx, st) }); err != nil {
		return nil, d.fail(ctx, span, st, err)
	}

	d.enter(ctx, st, session.StageDone)
	if err := d.save(ctx, st); err != nil {
		span.RecordError(err)
		return nil, err
	}
	d.publish(ctx, st, events.TypeCompleted)

	d.logger.Info(ctx, "image session complete", zap.Int("selected_index", index))
	return selectionResult(st), nil
}

func (d *Driver) compare(ctx context.Context, st *session.State) error {
	selected, ok := st.Selected()
	if !ok || selected.ImagePath == "" || !fileExists(selected.ImagePath) {
		st.DetailedComparison = ComparisonNotFound
		return nil
	}

	comparisonURL, err := assets.ReadDataURL(selected.ImagePath)
	if err != nil {
		return fmt.Errorf("failed to read comparison image: %w", err)
	}

	d.countModelCall(ctx, "compare_images")
	out, err := d.deps.Model.CompareImages(ctx, st.Base64Image, comparisonURL)
	if err != nil {
		return fmt.Errorf("image comparison failed: %w", err)
	}
	st.DetailedComparison = out
	return nil
}

func (d *Driver) report(ctx context.Context, st *session.State) error {
	userQuery := st.UserQuery
	if userQuery == "" {
		userQuery = DefaultReportQuery
	}

	d.countModelCall(ctx, "write_report")
	out, err := d.deps.Model.WriteReport(ctx, llm.ReportInput{
		InputAnalysis:      st.InputAnalysis,
		DetailedComparison: st.DetailedComparison,
		SelectedDesignInfo: designInfo(st),
		UserQuery:          userQuery,
	})
	if err != nil {
		return fmt.Errorf("report generation failed: %w", err)
	}
	st.FinalReport = out
	return nil
}

// designInfo describes the selected design for the report prompt.
func designInfo(st *session.State) string {
	selected, ok := st.Selected()
	if !ok {
		return NoDesignInfo
	}
	return fmt.Sprintf("출원번호: %s\n상품명: %s\n등록상태: %s\n유사도 거리: %.4f",
		selected.ApplicationNumber,
		selected.ArticleName,
		selected.AdmstStat,
		selected.Distance,
	)
}

func selectionResult(st *session.State) *SelectionResult {
	res := &SelectionResult{
		SessionID:          st.ID,
		DetailedComparison: st.DetailedComparison,
		FinalReport:        st.FinalReport,
	}
	if selected, ok := st.Selected(); ok {
		res.SelectedDesign = &selected
	}
	return res
}
