package db

// Repositories provides access to all database repositories
type Repositories struct {
	Programs *ProgramRepository
	Settings *SettingsRepository
}

// NewRepositories creates a new repository collection
func NewRepositories(db *DB) *Repositories {
	return &Repositories{
		Programs: NewProgramRepository(db),
		Settings: NewSettingsRepository(db),
	}
}
