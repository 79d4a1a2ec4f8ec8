// Package models defines the persisted entities of the sync engine.
//
// Two groups of models live here:
//
//   - Synced entities: [Note] and [Block]. Each row carries a Version that the
//     server increments on every change. Clients never see versions directly;
//     they receive whole rows keyed by [NoteKey] or [BlockKey].
//   - Sync bookkeeping: [ClientGroup], [Client], [MutationLogEntry] and
//     [ClientView]. They record which mutations have been applied and what each
//     client group has already been sent.
//
// # Typed IDs
//
// [UserID], [NoteID], [BlockID], [ClientGroupID] and [ClientID] are distinct
// string types so that a client id cannot be passed where a note id is
// expected. They implement driver.Valuer and sql.Scanner so GORM stores them
// as plain strings, and [ClientGroupID.ClientViewRecordID] maps a client view
// onto a SurrealDB record id.
package models
