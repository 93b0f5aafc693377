package store

// Option configures a Store.
type Option func(s *Store)

// WithDatabaseName sets the database name reported to the migrator.
func WithDatabaseName(databaseName string) Option {
	return func(s *Store) {
		s.databaseName = databaseName
	}
}

// WithDatabaseSchema sets the schema holding the tables. Default "public".
func WithDatabaseSchema(databaseSchema string) Option {
	return func(s *Store) {
		s.databaseSchema = databaseSchema
	}
}

// WithTablePrefix prefixes every table name.
func WithTablePrefix(prefix string) Option {
	return func(s *Store) {
		s.databasePrefix = prefix
	}
}
