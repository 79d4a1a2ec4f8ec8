// Package pkg contains the sub-packages of the notesync server.
//
// # Application Layer
//
// [github.com/notesync/notesync/pkg/notesync] - Configuration, commands, the HTTP API and the poke websocket.
//
// [github.com/notesync/notesync/pkg/engine] - Push and pull. Owns transactions, replay detection and error kinds.
//
// # Domain Layer
//
// [github.com/notesync/notesync/pkg/models] - Notes, blocks, the mutation log, client groups, clients and typed IDs.
//
// [github.com/notesync/notesync/pkg/cvr] - Client view records and the diff that turns two of them into a patch.
//
// [github.com/notesync/notesync/pkg/mutation] - Mutation names and argument validation.
//
// [github.com/notesync/notesync/pkg/markdown] - The default parser from note content to blocks.
//
// # Infrastructure Layer
//
// [github.com/notesync/notesync/pkg/store] - The [github.com/notesync/notesync/pkg/store.Store] interface, the read-only wrapper and split client view storage.
//
// [github.com/notesync/notesync/pkg/store/postgres] - GORM implementation for PostgreSQL and SQLite.
//
// [github.com/notesync/notesync/pkg/store/surrealdb] - Client view records in SurrealDB.
//
// [github.com/notesync/notesync/pkg/poke] - Per-user change notifications.
//
// [github.com/notesync/notesync/pkg/logger] - Structured logging over slog or zerolog.
//
// # Integration Layer
//
// [github.com/notesync/notesync/pkg/client] - HTTP client for pull, push and pokes.
//
// [github.com/notesync/notesync/pkg/notesynctesting] - Test stores, log recording and client replicas.
//
// # Package Dependencies
//
//	notesync → engine, poke, store, store/postgres, store/surrealdb, logger
//	engine → cvr, mutation, markdown, store, models, logger
//	store/postgres → store, models, logger
//	store/surrealdb → store, models, cvr
//	client → engine, models
package pkg
