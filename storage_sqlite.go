package img2bag

import (
	"database/sql"

	"go.uber.org/multierr"
	_ "modernc.org/sqlite"
)

const sqliteSchemaVersion = 4

var sqliteSchema = []string{
	`PRAGMA journal_mode=MEMORY`,
	`PRAGMA synchronous=OFF`,
	`CREATE TABLE schema(schema_version INTEGER PRIMARY KEY, ros_distro TEXT NOT NULL)`,
	`CREATE TABLE metadata(id INTEGER PRIMARY KEY, metadata_version INTEGER NOT NULL, metadata TEXT NOT NULL)`,
	`CREATE TABLE topics(id INTEGER PRIMARY KEY, name TEXT NOT NULL, type TEXT NOT NULL, serialization_format TEXT NOT NULL, offered_qos_profiles TEXT NOT NULL)`,
	`CREATE TABLE messages(id INTEGER PRIMARY KEY, topic_id INTEGER NOT NULL, timestamp INTEGER NOT NULL, data BLOB NOT NULL)`,
	`CREATE INDEX timestamp_idx ON messages (timestamp ASC)`,
}

// sqliteStorage writes everything inside one transaction, committed on close.
type sqliteStorage struct {
	db     *sql.DB
	tx     *sql.Tx
	insert *sql.Stmt
}

func openSQLite(path string) (*sqliteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// a single connection keeps the pragmas in effect for the transaction
	db.SetMaxOpenConns(1)

	for _, stmt := range sqliteSchema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, multierr.Append(err, db.Close())
		}
	}
	if _, err := db.Exec(`INSERT INTO schema(schema_version, ros_distro) VALUES (?, ?)`, sqliteSchemaVersion, rosDistro); err != nil {
		return nil, multierr.Append(err, db.Close())
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, multierr.Append(err, db.Close())
	}

	insert, err := tx.Prepare(`INSERT INTO messages(topic_id, timestamp, data) VALUES (?, ?, ?)`)
	if err != nil {
		return nil, multierr.Combine(err, tx.Rollback(), db.Close())
	}

	return &sqliteStorage{db: db, tx: tx, insert: insert}, nil
}

func (s *sqliteStorage) createTopic(id uint16, topic Topic) error {
	_, err := s.tx.Exec(
		`INSERT INTO topics(id, name, type, serialization_format, offered_qos_profiles) VALUES (?, ?, ?, ?, ?)`,
		int64(id), topic.Name, topic.Type, topic.SerializationFormat, topic.OfferedQoSProfiles,
	)
	return err
}

func (s *sqliteStorage) write(id uint16, _ uint32, timestamp int64, data []byte) error {
	_, err := s.insert.Exec(int64(id), timestamp, data)
	return err
}

func (s *sqliteStorage) close(m *Metadata) error {
	b, err := m.marshal()
	if err == nil {
		_, err = s.tx.Exec(`INSERT INTO metadata(metadata_version, metadata) VALUES (?, ?)`, metadataVersion, string(b))
	}

	err = multierr.Append(err, s.insert.Close())
	if err != nil {
		return multierr.Combine(err, s.tx.Rollback(), s.db.Close())
	}

	return multierr.Append(s.tx.Commit(), s.db.Close())
}
