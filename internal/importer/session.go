package importer

// session.go holds the import aggregate and its transitions.
//
// A Session is a value. Every transition takes the current session and
// returns the next one together with the events it produced; nothing is
// mutated in place, so slices held by an earlier value stay valid.
//
// Guards:
//
//	select_file -> map_fields  file read and tokenized
//	map_fields  -> verify      ValidateMapping passes
//	verify      -> done        Stats.Valid > 0 and the sink accepted the batch
//	any         -> select_file Reset, always allowed
//
// A failed guard appends a message to Errors and keeps the stage. A
// successful stage change clears pending errors.

import (
	"errors"
	"fmt"
)

// Session is the state of one import.
type Session struct {
	ID      string     `json:"id"`
	Entity  EntityType `json:"entity"`
	Options Options    `json:"options"`
	Stage   Stage      `json:"stage"`

	FileName string    `json:"fileName,omitempty"`
	Source   []byte    `json:"-"` // Raw file content, kept for Configure
	Table    *RowTable `json:"-"`

	Mapping  []FieldMapping `json:"mapping"`
	Stats    Stats          `json:"stats"`
	Preview  []Record       `json:"preview"`
	Records  []Record       `json:"-"` // Valid records, handed to the sink
	Rejected []RejectedRow  `json:"rejected,omitempty"`

	Errors []string `json:"errors"`
}

// NewSession starts an import for entity at select_file.
func NewSession(id string, entity EntityType, opts Options) (Session, error) {
	if _, err := Lookup(entity); err != nil {
		return Session{}, err
	}
	if err := opts.Validate(); err != nil {
		return Session{}, err
	}
	return Session{
		ID:      id,
		Entity:  entity,
		Options: opts,
		Stage:   StageSelectFile,
	}, nil
}

// Headers returns the headers of the loaded table, or nil.
func (s Session) Headers() []string {
	return s.Table.Headers()
}

// Load installs a freshly tokenized file and seeds the mapping.
// A file already loaded is discarded; a committed session must be reset
// first.
func (s Session) Load(name string, source []byte, table *RowTable) (Session, []Event, error) {
	if s.Stage == StageDone {
		return s.fail(fmt.Errorf("%w: import already committed, reset before loading a new file", ErrInvalidStage))
	}
	if table == nil || len(table.Rows) == 0 {
		return s.fail(fmt.Errorf("%w: no lines to import", ErrEmptyOrMalformed))
	}

	def, err := Lookup(s.Entity)
	if err != nil {
		return s.fail(err)
	}

	next := s.discardFile()
	next.FileName = name
	next.Source = source
	next.Table = table
	next.Mapping = AutoMap(table.Headers(), def.Fields, table.FirstDataRow())

	next, err = next.refresh(def)
	if err != nil {
		return s.fail(err)
	}
	return next.advance(s.Stage, StageMapFields)
}

// FileFailed records a failed read. Any file loaded before is discarded
// and the session returns to select_file.
func (s Session) FileFailed(err error) (Session, []Event, error) {
	if !errors.Is(err, ErrFileRead) && !errors.Is(err, ErrEmptyOrMalformed) && !errors.Is(err, ErrInvalidOptions) {
		err = fmt.Errorf("%w: %w", ErrFileRead, err)
	}
	if s.Stage == StageDone {
		return s.fail(err)
	}

	next := s.discardFile()
	next.Stage = StageSelectFile
	var events []Event
	if s.Stage != StageSelectFile {
		events = append(events, stageChanged(s.Stage, StageSelectFile))
	}
	return next.failWith(events, err)
}

// Remap points field at header (empty clears it). From verify the session
// goes back to map_fields.
func (s Session) Remap(field, header string) (Session, []Event, error) {
	if s.Stage != StageMapFields && s.Stage != StageVerify {
		return s.fail(fmt.Errorf("%w: mapping can only change while mapping or verifying", ErrInvalidStage))
	}

	def, err := Lookup(s.Entity)
	if err != nil {
		return s.fail(err)
	}

	mapping, err := Remap(s.Mapping, field, header, s.Headers(), s.Table.FirstDataRow())
	if err != nil {
		return s.fail(err)
	}

	next := s
	next.Mapping = mapping
	next, err = next.refresh(def)
	if err != nil {
		return s.fail(err)
	}
	if s.Stage == StageVerify {
		return next.advance(s.Stage, StageMapFields)
	}
	next.Errors = nil
	return next, nil, nil
}

// SelectEntity switches the target schema. A loaded file is re-mapped
// from scratch against the new schema.
func (s Session) SelectEntity(entity EntityType) (Session, []Event, error) {
	if s.Stage == StageDone {
		return s.fail(fmt.Errorf("%w: import already committed", ErrInvalidStage))
	}

	def, err := Lookup(entity)
	if err != nil {
		return s.fail(err)
	}

	next := s
	next.Entity = entity
	next.Errors = nil
	if next.Table == nil {
		return next, nil, nil
	}

	next.Mapping = AutoMap(next.Headers(), def.Fields, next.Table.FirstDataRow())
	next, err = next.refresh(def)
	if err != nil {
		return s.fail(err)
	}
	return next.advance(s.Stage, StageMapFields)
}

// Configure replaces the options. A loaded file is parsed again from its
// raw content; if that fails the file is discarded.
func (s Session) Configure(opts Options) (Session, []Event, error) {
	if s.Stage == StageDone {
		return s.fail(fmt.Errorf("%w: import already committed", ErrInvalidStage))
	}
	if err := opts.Validate(); err != nil {
		return s.fail(err)
	}

	next := s
	next.Options = opts
	next.Errors = nil
	if next.Source == nil {
		return next, nil, nil
	}

	table, err := ParseSource(next.Source, opts)
	if err != nil {
		return next.FileFailed(err)
	}
	return next.Load(next.FileName, next.Source, table)
}

// Verify checks the mapping and runs the validator over every row.
func (s Session) Verify() (Session, []Event, error) {
	if s.Stage != StageMapFields && s.Stage != StageVerify {
		return s.fail(fmt.Errorf("%w: nothing to verify", ErrInvalidStage))
	}

	def, err := Lookup(s.Entity)
	if err != nil {
		return s.fail(err)
	}
	if err := ValidateMapping(def.Fields, s.Mapping); err != nil {
		return s.fail(err)
	}

	next, err := s.refresh(def)
	if err != nil {
		return s.fail(err)
	}
	return next.advance(s.Stage, StageVerify)
}

// ReadyToCommit reports whether Complete may be applied.
func (s Session) ReadyToCommit() error {
	if s.Stage != StageVerify {
		return fmt.Errorf("%w: verify the import before committing", ErrInvalidStage)
	}
	if s.Stats.Valid == 0 {
		return fmt.Errorf("%w: %d of %d rows are invalid", ErrNoValidRows, s.Stats.Invalid, s.Stats.Total)
	}
	return nil
}

// Batch returns what the sink receives on commit.
func (s Session) Batch() Batch {
	return Batch{
		SessionID: s.ID,
		Entity:    s.Entity,
		FileName:  s.FileName,
		Records:   s.Records,
	}
}

// Complete marks the session committed after the sink accepted the batch.
func (s Session) Complete() (Session, []Event, error) {
	if err := s.ReadyToCommit(); err != nil {
		return s.fail(err)
	}
	next, events, err := s.advance(s.Stage, StageDone)
	events = append(events, Event{Kind: EventCommitSucceeded, Count: len(s.Records)})
	return next, events, err
}

// CommitFailed records a sink failure; the session stays at verify.
func (s Session) CommitFailed(err error) (Session, []Event, error) {
	if !errors.Is(err, ErrCommitFailed) {
		err = fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}
	return s.fail(err)
}

// Fail records an arbitrary failure without changing stage.
func (s Session) Fail(err error) (Session, []Event, error) {
	return s.fail(err)
}

// Reset discards everything but the identity, entity type and options.
func (s Session) Reset() (Session, []Event) {
	next := Session{
		ID:      s.ID,
		Entity:  s.Entity,
		Options: s.Options,
		Stage:   StageSelectFile,
	}
	if s.Stage == StageSelectFile {
		return next, nil
	}
	return next, []Event{stageChanged(s.Stage, StageSelectFile)}
}

// refresh recomputes stats, preview and records from table and mapping.
func (s Session) refresh(def EntityDefinition) (Session, error) {
	result, err := NewValidator(def.Fields).Validate(s.Table, s.Mapping)
	if err != nil {
		return s, err
	}
	s.Stats = result.Stats
	s.Preview = result.Preview
	s.Records = result.Records
	s.Rejected = result.Rejected
	return s, nil
}

// discardFile clears everything derived from the current file.
func (s Session) discardFile() Session {
	s.FileName = ""
	s.Source = nil
	s.Table = nil
	s.Mapping = nil
	s.Stats = Stats{}
	s.Preview = nil
	s.Records = nil
	s.Rejected = nil
	return s
}

// advance moves to stage to, clearing pending errors.
func (s Session) advance(from, to Stage) (Session, []Event, error) {
	s.Stage = to
	s.Errors = nil
	if from == to {
		return s, nil, nil
	}
	return s, []Event{stageChanged(from, to)}, nil
}

func (s Session) fail(err error) (Session, []Event, error) {
	return s.failWith(nil, err)
}

func (s Session) failWith(events []Event, err error) (Session, []Event, error) {
	msg := err.Error()
	errs := make([]string, len(s.Errors), len(s.Errors)+1)
	copy(errs, s.Errors)
	s.Errors = append(errs, msg)
	return s, append(events, Event{Kind: EventErrorRaised, Err: err, Message: msg}), err
}

func stageChanged(from, to Stage) Event {
	return Event{Kind: EventStageChanged, From: from, To: to}
}
