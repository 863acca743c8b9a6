package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// WorkflowConfig holds the collaborators of a Workflow.
type WorkflowConfig struct {
	Sink        Sink         // Receives the valid records on commit (required)
	Listener    Listener     // Optional event subscriber
	MaxFileSize int64        // 0 means DefaultMaxFileSize
	Logger      *slog.Logger // nil means slog.Default()
}

// Workflow drives one Session through its stages and performs the side
// effects the pure transitions leave out: reading the file, calling the
// sink and emitting events.
//
// A Workflow is not safe for concurrent use.
type Workflow struct {
	session  Session
	sink     Sink
	listener Listener
	maxBytes int64
	logger   *slog.Logger
}

// NewWorkflow creates a workflow for a new session.
func NewWorkflow(id string, entity EntityType, opts Options, cfg WorkflowConfig) (*Workflow, error) {
	if cfg.Sink == nil {
		return nil, fmt.Errorf("workflow requires a sink")
	}

	session, err := NewSession(id, entity, opts)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Workflow{
		session:  session,
		sink:     cfg.Sink,
		listener: cfg.Listener,
		maxBytes: cfg.MaxFileSize,
		logger:   logger.With("session_id", id),
	}, nil
}

// Session returns the current state. Its slices must be treated as
// read-only.
func (w *Workflow) Session() Session {
	return w.session
}

// Stage returns the current stage.
func (w *Workflow) Stage() Stage {
	return w.session.Stage
}

// ReadFile reads, decodes and tokenizes r, then seeds the mapping.
// On failure the session stays at (or returns to) select_file.
func (w *Workflow) ReadFile(ctx context.Context, name string, r io.Reader) error {
	return w.apply(ctx, "read_file", func(s Session) (Session, []Event, error) {
		if s.Stage == StageDone {
			return s.Load(name, nil, nil)
		}
		table, source, err := ReadTable(ctx, r, s.Options, w.maxBytes)
		if err != nil {
			return s.FileFailed(err)
		}
		return s.Load(name, source, table)
	})
}

// Remap overrides the source column of one field.
func (w *Workflow) Remap(ctx context.Context, field, header string) error {
	return w.apply(ctx, "remap", func(s Session) (Session, []Event, error) {
		return s.Remap(field, header)
	})
}

// SelectEntity switches the target schema.
func (w *Workflow) SelectEntity(ctx context.Context, entity EntityType) error {
	return w.apply(ctx, "select_entity", func(s Session) (Session, []Event, error) {
		return s.SelectEntity(entity)
	})
}

// Configure replaces the tokenizer options.
func (w *Workflow) Configure(ctx context.Context, opts Options) error {
	return w.apply(ctx, "configure", func(s Session) (Session, []Event, error) {
		return s.Configure(opts)
	})
}

// Verify validates the mapping and every row.
func (w *Workflow) Verify(ctx context.Context) error {
	return w.apply(ctx, "verify", func(s Session) (Session, []Event, error) {
		return s.Verify()
	})
}

// Commit hands the valid records to the sink and completes the import.
// The sink is called at most once per successful commit; a committed
// session rejects further commits.
func (w *Workflow) Commit(ctx context.Context) error {
	return w.apply(ctx, "commit", func(s Session) (Session, []Event, error) {
		if err := s.ReadyToCommit(); err != nil {
			return s.Fail(err)
		}
		if err := w.sink.Commit(ctx, s.Batch()); err != nil {
			return s.CommitFailed(err)
		}
		return s.Complete()
	})
}

// Reset discards the file and returns to select_file.
func (w *Workflow) Reset(ctx context.Context) {
	next, events := w.session.Reset()
	w.session = next
	w.emit(ctx, events)
}

// apply runs one transition, recovering panics as ErrUnknownProcessing.
// Events are emitted only after the resulting state is stored.
func (w *Workflow) apply(ctx context.Context, op string, fn func(Session) (Session, []Event, error)) error {
	next, events, err := w.run(op, fn)
	w.session = next
	w.emit(ctx, events)

	if err != nil {
		w.logger.Warn("import step failed",
			"op", op,
			"entity", next.Entity,
			"stage", next.Stage,
			"error", err,
		)
	}
	return err
}

func (w *Workflow) run(op string, fn func(Session) (Session, []Event, error)) (next Session, events []Event, err error) {
	current := w.session

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("import step panicked", "op", op, "panic", r)
			next, events, err = current.Fail(fmt.Errorf("%w: %s: %v", ErrUnknownProcessing, op, r))
		}
	}()

	return fn(current)
}

func (w *Workflow) emit(ctx context.Context, events []Event) {
	for _, ev := range events {
		ev.SessionID = w.session.ID

		switch ev.Kind {
		case EventStageChanged:
			w.logger.Info("import stage changed",
				"entity", w.session.Entity,
				"from", ev.From,
				"to", ev.To,
			)
		case EventCommitSucceeded:
			w.logger.Info("import committed",
				"entity", w.session.Entity,
				"records", ev.Count,
				"file", w.session.FileName,
			)
		}

		if w.listener != nil {
			w.notify(ctx, ev)
		}
	}
}

// notify delivers one event. A panicking listener is logged and never
// affects the session.
func (w *Workflow) notify(ctx context.Context, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("import listener panicked", "event", ev.Kind, "panic", r)
		}
	}()
	w.listener.OnEvent(ctx, ev)
}
