// Package sink provides the destinations an import commits its valid
// records to.
//
// Every sink stores one row per record with the batch it belongs to, the
// session that produced it, the entity type, the record's position in the
// batch and the record itself as JSON:
//
//	id | batch_id | session_id | entity_type | file_name | position | data | imported_at
//
// A batch is written in a single transaction; either every record of the
// batch is stored or none is.
package sink
