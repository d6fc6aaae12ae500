package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/designd/internal/events"
	"github.com/fyrsmithlabs/designd/internal/logging"
	"github.com/fyrsmithlabs/designd/internal/sanitize"
	"github.com/fyrsmithlabs/designd/internal/session"
)

const instrumentationName = "github.com/fyrsmithlabs/designd/internal/workflow"

// Config configures the driver.
type Config struct {
	// ImageResults is the number of neighbours requested for an image (default: 10).
	ImageResults int

	// UploadDir receives uploaded images (default: ./temp_uploads).
	UploadDir string

	// Now and NewID are overridable in tests.
	Now   func() time.Time
	NewID func() string
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		ImageResults: 10,
		UploadDir:    "./temp_uploads",
	}
}

// Deps are the collaborators of the driver.
type Deps struct {
	Model    Model
	Embedder ImageEmbedder
	Searcher Searcher
	Resolver Resolver
	Tools    Toolbox
	Store    session.Store
	Events   events.Publisher
}

// Driver runs sessions against a checkpoint store.
type Driver struct {
	cfg    Config
	deps   Deps
	logger *logging.Logger

	// Calls on the same session id are serialised. Entries are dropped
	// when the last holder unlocks.
	locksMu sync.Mutex
	locks   map[string]*sessionLock

	tracer      trace.Tracer
	stages      metric.Int64Counter
	sessions    metric.Int64Counter
	modelCalls  metric.Int64Counter
	stageTiming metric.Float64Histogram
}

// NewDriver validates deps and creates a driver.
func NewDriver(deps Deps, cfg Config, logger *logging.Logger) (*Driver, error) {
	if deps.Model == nil || deps.Store == nil {
		return nil, errors.New("model and session store are required")
	}
	if deps.Embedder == nil || deps.Searcher == nil || deps.Resolver == nil {
		return nil, errors.New("embedder, searcher and resolver are required")
	}
	if deps.Tools == nil {
		return nil, errors.New("toolbox is required")
	}
	if deps.Events == nil {
		deps.Events = events.Nop{}
	}
	if logger == nil {
		logger = logging.Nop()
	}

	def := DefaultConfig()
	if cfg.ImageResults <= 0 {
		cfg.ImageResults = def.ImageResults
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = def.UploadDir
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return uuid.NewString() }
	}

	d := &Driver{
		cfg:    cfg,
		deps:   deps,
		logger: logger.Named("workflow"),
		locks:  make(map[string]*sessionLock),
		tracer: otel.Tracer(instrumentationName),
	}
	d.initMetrics()
	return d, nil
}

func (d *Driver) initMetrics() {
	meter := otel.Meter(instrumentationName)
	var err error

	d.stages, err = meter.Int64Counter(
		"designd.workflow.stage_transitions_total",
		metric.WithDescription("Session stage transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		d.logger.Warn(context.Background(), "failed to create stage counter", zap.Error(err))
	}

	d.sessions, err = meter.Int64Counter(
		"designd.workflow.sessions_total",
		metric.WithDescription("Sessions started by input type"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		d.logger.Warn(context.Background(), "failed to create session counter", zap.Error(err))
	}

	d.modelCalls, err = meter.Int64Counter(
		"designd.workflow.model_calls_total",
		metric.WithDescription("Language model calls made by the driver"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		d.logger.Warn(context.Background(), "failed to create model call counter", zap.Error(err))
	}

	d.stageTiming, err = meter.Float64Histogram(
		"designd.workflow.stage_duration_seconds",
		metric.WithDescription("Time spent in each stage"),
		metric.WithUnit("s"),
	)
	if err != nil {
		d.logger.Warn(context.Background(), "failed to create stage histogram", zap.Error(err))
	}
}

// Start routes req to exactly one branch. The route is decided here and
// never revisited.
func (d *Driver) Start(ctx context.Context, req Request) (*Outcome, error) {
	if route(req) == session.InputImage {
		id := req.SessionID
		if id == "" {
			id = d.cfg.NewID()
		}
		res, err := d.runImage(ctx, id, req.ImagePath, req.UserQuery)
		if err != nil {
			return nil, err
		}
		return &Outcome{InputType: session.InputImage, Image: res}, nil
	}

	if req.TextQuery == "" {
		return nil, fmt.Errorf("%w: no usable image path and no text query", ErrInvalidInput)
	}
	res, err := d.AnswerText(ctx, req.SessionID, req.TextQuery)
	if err != nil {
		return nil, err
	}
	return &Outcome{InputType: session.InputText, Text: res}, nil
}

func route(req Request) session.InputType {
	if req.ImagePath != "" && readable(req.ImagePath) {
		return session.InputImage
	}
	return session.InputText
}

// StartImageSession stores the upload as {upload_dir}/{id}-{basename} and
// runs the image branch up to the selection point. The upload is removed
// once the branch returns; resume works from the stored data URL.
func (d *Driver) StartImageSession(ctx context.Context, image []byte, filename, userQuery string) (*ImageResult, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidInput)
	}
	base := sanitize.Filename(filename)
	if base == "" {
		base = "upload.jpg"
	}

	if err := os.MkdirAll(d.cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	id := d.cfg.NewID()
	path := filepath.Join(d.cfg.UploadDir, id+"-"+base)
	if err := os.WriteFile(path, image, 0o600); err != nil {
		return nil, fmt.Errorf("failed to save upload: %w", err)
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			d.logger.Warn(ctx, "failed to remove upload", zap.String("path", path), zap.Error(err))
		}
	}()

	out, err := d.Start(ctx, Request{SessionID: id, ImagePath: path, UserQuery: userQuery})
	if err != nil {
		return nil, err
	}
	return out.Image, nil
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// lock serialises calls for one session id.
func (d *Driver) lock(id string) func() {
	d.locksMu.Lock()
	l, ok := d.locks[id]
	if !ok {
		l = &sessionLock{}
		d.locks[id] = l
	}
	l.refs++
	d.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		d.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(d.locks, id)
		}
		d.locksMu.Unlock()
	}
}

// enter moves st into stage and records the transition.
func (d *Driver) enter(ctx context.Context, st *session.State, stage session.Stage) {
	st.Stage = stage
	st.UpdatedAt = d.cfg.Now()
	trace.SpanFromContext(ctx).AddEvent("stage", trace.WithAttributes(attribute.String("stage", string(stage))))
	if d.stages != nil {
		d.stages.Add(ctx, 1, metric.WithAttributes(
			attribute.String("stage", string(stage)),
			attribute.String("input_type", string(st.InputType)),
		))
	}
	d.logger.Debug(ctx, "stage entered", zap.String("stage", string(stage)))
}

// timed runs fn and records how long stage took.
func (d *Driver) timed(ctx context.Context, stage session.Stage, fn func() error) error {
	start := time.Now()
	err := fn()
	if d.stageTiming != nil {
		d.stageTiming.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
			attribute.String("stage", string(stage)),
			attribute.Bool("error", err != nil),
		))
	}
	return err
}

func (d *Driver) countModelCall(ctx context.Context, op string) {
	if d.modelCalls != nil {
		d.modelCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	}
}

func (d *Driver) save(ctx context.Context, st *session.State) error {
	st.UpdatedAt = d.cfg.Now()
	if err := d.deps.Store.Save(ctx, st); err != nil {
		return fmt.Errorf("failed to checkpoint session: %w", err)
	}
	return nil
}

// fail records err on st, checkpoints it in StageFailed and returns err.
// Partial results already on st are kept.
func (d *Driver) fail(ctx context.Context, span trace.Span, st *session.State, err error) error {
	failedAt := st.Stage
	st.LastError = err.Error()
	d.enter(ctx, st, session.StageFailed)
	if serr := d.save(ctx, st); serr != nil {
		d.logger.Error(ctx, "failed to checkpoint failed session", zap.Error(serr))
	}
	d.publish(ctx, st, events.TypeFailed)

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	d.logger.Warn(ctx, "session failed",
		zap.String("stage", string(failedAt)),
		zap.Error(err),
	)
	return err
}

func (d *Driver) publish(ctx context.Context, st *session.State, typ events.Type) {
	ev := events.Event{
		Type:      typ,
		SessionID: st.ID,
		Stage:     string(st.Stage),
		InputType: string(st.InputType),
		Error:     st.LastError,
		Timestamp: d.cfg.Now().UTC(),
	}
	if err := d.deps.Events.Publish(ctx, ev); err != nil {
		d.logger.Warn(ctx, "failed to publish session event",
			zap.String("event", string(typ)),
			zap.Error(err),
		)
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// readable reports whether path is a regular file that can be opened.
func readable(path string) bool {
	if !fileExists(path) {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}
