// Package store defines the storage abstraction behind the sync engine.
//
// [Store] exposes a single entry point, [Store.Transaction]. The [Tx] handed
// to the callback combines four narrower interfaces, one per engine
// component: [VersionStore], [MutationLog], [ClientStateTracker] and
// [ClientViewStore]. Push and pull each run inside one transaction, so a
// push batch commits or rolls back as a unit and a pull reads entities and
// client state from one snapshot.
//
// Implementations:
//   - [github.com/notesync/notesync/pkg/store/postgres]: GORM over PostgreSQL
//     or SQLite. Implements everything.
//   - [github.com/notesync/notesync/pkg/store/surrealdb]: a [ClientViewStore]
//     only, for deployments that keep client views out of the relational
//     database.
//
// [ReadOnlyStore] wraps any Store for maintenance windows.
package store
