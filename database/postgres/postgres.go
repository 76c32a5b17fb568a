// Package postgres writes classified output features into a PostgreSQL
// table with COPY.
package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/streetferret/crudo/collect"
	"github.com/streetferret/crudo/log"
)

const (
	defaultSchema = "public"
	defaultTable  = "crudo_features"
)

var columns = []string{"osm_id", "layer", "geometry", "min_pixel_size", "attributes"}

type Config struct {
	// ConnectionParams is a postgres:// (or postgis://) URL or a
	// key=value connection string. schema= and table= parameters select
	// the target table.
	ConnectionParams string
}

// Sink copies features into one table inside a single transaction.
// Begin truncates the table, Commit makes all written rows visible.
type Sink struct {
	db     *sql.DB
	tx     *sql.Tx
	stmt   *sql.Stmt
	Schema string
	Table  string
	rows   int64
}

func Open(conf Config) (*Sink, error) {
	params, err := normalizeParams(conf.ConnectionParams)
	if err != nil {
		return nil, err
	}
	params, schema, table := splitTarget(params)

	db, err := sql.Open("postgres", params.String())
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "connecting to database")
	}
	return &Sink{db: db, Schema: schema, Table: table}, nil
}

func normalizeParams(conn string) (connParams, error) {
	if strings.HasPrefix(conn, "postgis://") {
		conn = strings.Replace(conn, "postgis", "postgres", 1)
	}
	if strings.HasPrefix(conn, "postgres://") || strings.HasPrefix(conn, "postgresql://") {
		var err error
		conn, err = pq.ParseURL(conn)
		if err != nil {
			return nil, errors.Wrap(err, "parsing connection URL")
		}
	}
	params, err := parseConnParams(conn)
	if err != nil {
		return nil, err
	}
	return disableDefaultSslOnLocalhost(params), nil
}

// splitTarget removes schema= and table= from params.
func splitTarget(params connParams) (connParams, string, string) {
	schema, table := defaultSchema, defaultTable
	if v, ok := params.get("schema"); ok {
		schema = v
	}
	if v, ok := params.get("table"); ok {
		table = v
	}
	return params.without("schema", "table"), schema, table
}

func disableDefaultSslOnLocalhost(params connParams) connParams {
	if _, ok := params.get("sslmode"); ok {
		return params
	}
	host, _ := params.get("host")
	if (host != "localhost" && host != "127.0.0.1") || os.Getenv("PGSSLMODE") != "" {
		return params
	}
	// found localhost but explicit no sslmode, disable sslmode
	return append(params, connParam{"sslmode", "disable"})
}

func createTableSQL(schema, table string) string {
	return fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s.%s (
            id SERIAL PRIMARY KEY,
            osm_id BIGINT,
            layer VARCHAR NOT NULL,
            geometry VARCHAR NOT NULL,
            min_pixel_size REAL,
            attributes JSONB
        );`,
		pq.QuoteIdentifier(schema),
		pq.QuoteIdentifier(table),
	)
}

func truncateSQL(schema, table string) string {
	return fmt.Sprintf(`TRUNCATE TABLE %s.%s RESTART IDENTITY`,
		pq.QuoteIdentifier(schema), pq.QuoteIdentifier(table))
}

func (s *Sink) Begin() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	s.tx = tx

	for _, stmt := range []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, pq.QuoteIdentifier(s.Schema)),
		createTableSQL(s.Schema, s.Table),
		truncateSQL(s.Schema, s.Table),
	} {
		if _, err := tx.Exec(stmt); err != nil {
			s.rollback()
			return &SQLError{stmt, err}
		}
	}

	copySQL := pq.CopyInSchema(s.Schema, s.Table, columns...)
	s.stmt, err = tx.Prepare(copySQL)
	if err != nil {
		s.rollback()
		return &SQLError{copySQL, err}
	}
	return nil
}

// Write implements reader.Sink.
func (s *Sink) Write(features []*collect.Feature) error {
	if s.stmt == nil {
		return errors.New("sink not started")
	}
	for _, f := range features {
		row, err := Row(f)
		if err != nil {
			return err
		}
		if _, err := s.stmt.Exec(row...); err != nil {
			return errors.Wrapf(err, "copying feature %d", f.SourceID)
		}
		s.rows += 1
	}
	return nil
}

// Row returns the column values of f.
func Row(f *collect.Feature) ([]interface{}, error) {
	attrs := f.Attrs
	if attrs == nil {
		attrs = map[string]string{}
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return nil, err
	}
	return []interface{}{f.SourceID, f.Layer, string(f.Geometry), f.MinPixelSize, string(b)}, nil
}

func (s *Sink) Commit() error {
	if s.stmt == nil {
		return errors.New("sink not started")
	}
	// flush COPY buffer
	if _, err := s.stmt.Exec(); err != nil {
		s.rollback()
		return err
	}
	if err := s.stmt.Close(); err != nil {
		s.rollback()
		return err
	}
	s.stmt = nil
	if err := s.tx.Commit(); err != nil {
		return err
	}
	s.tx = nil
	log.Infof("copied %d features into %s.%s", s.rows, s.Schema, s.Table)
	return nil
}

func (s *Sink) rollback() {
	if s.stmt != nil {
		s.stmt.Close()
		s.stmt = nil
	}
	if s.tx != nil {
		if err := s.tx.Rollback(); err != nil {
			log.Warnf("rollback failed: %v", err)
		}
		s.tx = nil
	}
}

// Close aborts an open transaction and closes the connection.
func (s *Sink) Close() error {
	s.rollback()
	return s.db.Close()
}

type SQLError struct {
	query         string
	originalError error
}

func (e *SQLError) Error() string {
	return fmt.Sprintf("SQL Error: %s in query %s", e.originalError.Error(), e.query)
}
