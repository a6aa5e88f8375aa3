package repository

// Database drivers registered for NewSQLStore.
import (
	_ "github.com/lib/pq"  // postgres
	_ "modernc.org/sqlite" // sqlite
)
