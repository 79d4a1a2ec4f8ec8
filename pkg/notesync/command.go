package notesync

// Command is one CLI subcommand. Parse returns one and Main dispatches on
// its concrete type.
type Command interface {
	// Name matches the CLI subcommand.
	Name() string
}

// MigrateCommand creates or updates the schema of every configured store:
// GORM AutoMigrate on the SQL database and table definitions on SurrealDB
// when it holds the client view records. Safe to run repeatedly.
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string {
	return "migrate"
}

// RunCommand serves the sync API until the context is cancelled.
type RunCommand struct{}

func (c *RunCommand) Name() string {
	return "run"
}
