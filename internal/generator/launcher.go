package generator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/alenia-group/quotation-cli/internal/model"
	"github.com/alenia-group/quotation-cli/internal/storage"
)

// Build constructs a Generator bound to the given storage session.
// Background jobs use it with a session of their own, since the
// request-scoped session is torn down once the response is sent.
type Build func(st storage.Storage) *Generator

// JobHandle tracks one launched generation job. A supervisor can watch
// Done and inspect Err rather than relying on in-band failure marking.
type JobHandle struct {
	BatchID string

	done chan struct{}
	err  error
}

// Done is closed when the job finishes, success or failure.
func (h *JobHandle) Done() <-chan struct{} { return h.done }

// Err returns the job's error. Valid only after Done is closed.
func (h *JobHandle) Err() error { return h.err }

// Runner owns the background generation jobs: one per batch, each running
// independently with no shared mutable state across batches.
type Runner struct {
	ctx context.Context
	g   *errgroup.Group

	mu   sync.Mutex
	jobs map[string]*JobHandle
}

// NewRunner creates a Runner. Jobs inherit ctx, which should outlive any
// single request (typically the process context).
func NewRunner(ctx context.Context) *Runner {
	g, gctx := errgroup.WithContext(ctx)
	return &Runner{ctx: gctx, g: g, jobs: make(map[string]*JobHandle)}
}

// Launch schedules fn as a background job and returns its handle. While a
// job for the same batch id is still running, Launch refuses: exactly one
// background unit of work mutates a batch at a time. A finished job may be
// relaunched.
func (r *Runner) Launch(batchID string, fn func(ctx context.Context) error) (*JobHandle, error) {
	handle := &JobHandle{BatchID: batchID, done: make(chan struct{})}

	r.mu.Lock()
	if existing, ok := r.jobs[batchID]; ok {
		select {
		case <-existing.done:
		default:
			r.mu.Unlock()
			return nil, &GenerationInProgressError{BatchID: batchID}
		}
	}
	r.jobs[batchID] = handle
	r.mu.Unlock()

	r.g.Go(func() error {
		handle.err = fn(r.ctx)
		close(handle.done)
		// Job errors are reported through the handle, never abort siblings.
		return nil
	})
	return handle, nil
}

// Job returns the handle for a batch, if one was launched.
func (r *Runner) Job(batchID string) (*JobHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.jobs[batchID]
	return h, ok
}

// Wait blocks until all launched jobs finish. Used on shutdown.
func (r *Runner) Wait() {
	_ = r.g.Wait()
}

// Launcher decouples the multi-minute generation pipeline from the request
// that triggers it.
type Launcher struct {
	storage  storage.Storage
	sessions storage.Factory
	build    Build
	runner   *Runner
}

// NewLauncher creates a Launcher. The request-scoped storage is used only
// for the synchronous existence check; every launched job opens its own
// session through the factory.
func NewLauncher(st storage.Storage, sessions storage.Factory, build Build, runner *Runner) *Launcher {
	return &Launcher{storage: st, sessions: sessions, build: build, runner: runner}
}

// Start verifies the batch exists, marks it pending, and schedules the
// generation pipeline as a background job. The returned handle reports the
// job's completion independently of the persisted batch state.
func (l *Launcher) Start(ctx context.Context, batchID, templateName string) (*JobHandle, error) {
	// Checked before the pending write so a live job's record is not
	// clobbered; the runner re-checks under its lock when scheduling.
	if existing, ok := l.runner.Job(batchID); ok {
		select {
		case <-existing.Done():
		default:
			return nil, &GenerationInProgressError{BatchID: batchID}
		}
	}

	batch, err := l.storage.GetBatch(ctx, batchID)
	if err != nil {
		return nil, mapStorageErr(err, batchID)
	}

	batch.Status = model.BatchStatusPending
	if err := l.storage.SaveBatch(ctx, batch, model.ConfirmTTL); err != nil {
		return nil, eris.Wrapf(err, "launcher: persist pending batch %s", batchID)
	}

	handle, err := l.runner.Launch(batchID, func(jobCtx context.Context) error {
		return l.runJob(jobCtx, batchID, templateName)
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("generation scheduled",
		zap.String("batch_id", batchID),
		zap.String("template", templateName),
	)
	return handle, nil
}

// runJob executes the pipeline inside its own storage session, released on
// every exit path. If the job dies before the generator could record the
// failure, the safety net marks the batch failed so it can never appear
// stuck in pending or processing.
func (l *Launcher) runJob(ctx context.Context, batchID, templateName string) (err error) {
	st, err := l.sessions(ctx)
	if err != nil {
		zap.L().Error("failed to open storage session for generation job",
			zap.String("batch_id", batchID), zap.Error(err))
		return eris.Wrapf(err, "launcher: open session for batch %s", batchID)
	}
	defer st.Close() //nolint:errcheck

	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("launcher: generation job panic: %v", r)
		}
		if err != nil {
			l.markFailedFallback(ctx, st, batchID, err)
		}
	}()

	return l.build(st).Execute(ctx, batchID, templateName)
}

// markFailedFallback is the last-resort failure path, not the primary one:
// the generator already isolates per-item failures and records batch-level
// precondition failures itself.
func (l *Launcher) markFailedFallback(ctx context.Context, st storage.Storage, batchID string, cause error) {
	batch, err := st.GetBatch(ctx, batchID)
	if err != nil || batch.Status.Terminal() {
		return
	}

	batch.MarkFailed(fmt.Sprintf("generation aborted: %s", eris.Cause(cause).Error()), time.Now())
	if err := st.SaveBatch(ctx, batch, model.DownloadTTL); err != nil {
		zap.L().Error("failed to mark batch failed after job death",
			zap.String("batch_id", batchID), zap.Error(err))
	}
}
