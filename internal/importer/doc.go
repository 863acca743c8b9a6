// Package importer provides the bulk data-import pipeline.
//
// This package is the core of the importer, containing all parsing, mapping
// and validation logic independent of any UI or transport layer. It can be
// used by web handlers, CLI tools, or tests without modification.
//
// # Architecture
//
// The pipeline is organized around a few small components:
//
//   - Tokenizer: [Tokenize] turns delimited text into a [RowTable].
//   - Schema Registry: entity types are registered via [Register]; each
//     [EntityDefinition] lists its [FieldSpec] values and two example rows.
//   - Mapping Engine: [AutoMap] proposes a source column per field and
//     [Remap] overrides a single entry.
//   - Validator: [ValidateMapping] checks required coverage and
//     [Validator.Validate] classifies rows, producing [Stats] and a preview.
//   - Workflow: [Session] transitions move an import through its stages;
//     [Workflow] wires a session to a [Sink] and a [Listener].
//   - Template Generator: [Template] emits a sample file for an entity type.
//
// # Workflow Stages
//
// An import moves through four stages:
//
//	select_file -> map_fields -> verify -> done
//
// Each transition is guarded. A failed guard appends a message to
// [Session.Errors] and the stage does not advance. [Session.Reset] returns to
// select_file from anywhere, keeping the entity type and [Options].
//
// # Reading Files
//
// [ReadTable] is the only blocking operation: it reads the source, decodes
// it from the declared encoding and tokenizes it. Everything after that runs
// synchronously on the caller's goroutine.
//
// # Error Handling
//
// Every failure wraps one of the package sentinels ([ErrFileRead],
// [ErrEmptyOrMalformed], [ErrMappingIncomplete], [ErrNoValidRows],
// [ErrUnknownProcessing], ...). Use [MapError] to obtain a user-facing
// message with a support code.
package importer
