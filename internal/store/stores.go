package store

import "fmt"

// Backend names accepted in sessions.backend.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendBadger   = "badger"
)

// StoreConfig selects and configures the session backend.
type StoreConfig struct {
	Backend     string
	Path        string // sqlite file or badger directory
	PostgresDSN string
}

// Validate reports configuration that cannot open any backend.
func (c StoreConfig) Validate() error {
	switch c.Backend {
	case "", BackendMemory:
		return nil
	case BackendSQLite, BackendBadger:
		if c.Path == "" {
			return fmt.Errorf("sessions backend %q requires a path", c.Backend)
		}
		return nil
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("sessions backend postgres requires SQUABBLE_POSTGRES_DSN")
		}
		return nil
	}
	return fmt.Errorf("unknown sessions backend %q", c.Backend)
}
