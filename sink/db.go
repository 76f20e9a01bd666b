/*
 * CapMaster - Cross-Capture TCP Correlation Toolkit
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHORS DISCLAIM ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS.
 */

package sink

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/netforensic/capmaster/internal/errs"
)

// caseIDPattern pins the case-id to SQL-identifier-safe characters before
// it is interpolated into a table name (spec.md §9 Open Questions).
var caseIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// expectedColumns is the pinned schema, per spec.md §6.3.
var expectedColumns = []string{
	"pcap_id", "flow_hash", "first_time", "last_time",
	"tcp_flags_different_cnt", "tcp_flags_different_type", "tcp_flags_different_text",
	"seq_num_different_cnt", "seq_num_different_text", "id",
}

// Row is one row of the kase_{k}_tcp_stream_extra table.
type Row struct {
	PcapID                   int    `db:"pcap_id"`
	FlowHash                 int64  `db:"flow_hash"`
	FirstTime                int64  `db:"first_time"`
	LastTime                 int64  `db:"last_time"`
	TCPFlagsDifferentCount   int64  `db:"tcp_flags_different_cnt"`
	TCPFlagsDifferentType    string `db:"tcp_flags_different_type"`
	TCPFlagsDifferentText    string `db:"tcp_flags_different_text"`
	SeqNumDifferentCount     int64  `db:"seq_num_different_cnt"`
	SeqNumDifferentText      string `db:"seq_num_different_text"`
}

// DB wraps the sqlx handle used for the compare-mode write-through.
type DB struct {
	conn *sqlx.DB
}

// Open connects to the backing store. driverName/dsn follow sqlx's usual
// meaning; CapMaster defaults to the pure-Go "sqlite" driver so the sink
// never needs cgo.
func Open(driverName, dsn string) (*DB, error) {
	conn, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, errs.Wrap(errs.KindDatabaseUnavailable, err, "opening database connection")
	}

	if err := conn.Ping(); err != nil {
		return nil, errs.Wrap(errs.KindDatabaseUnavailable, err, "pinging database")
	}

	return &DB{conn: conn}, nil
}

// Close releases the underlying connection.
func (d *DB) Close() error { return d.conn.Close() }

// TableName renders "kase_{k}_tcp_stream_extra" after validating the
// case id is a safe SQL identifier.
func TableName(caseID string) (string, error) {
	if !caseIDPattern.MatchString(caseID) {
		return "", errs.New(errs.KindConfigInvalid, "case id must match [a-zA-Z0-9_]+")
	}

	return fmt.Sprintf("kase_%s_tcp_stream_extra", caseID), nil
}

// ensureTable creates the table if absent, or verifies the existing
// table's column set matches expectedColumns, per spec.md §6.3's
// schema-mismatch requirement.
func (d *DB) ensureTable(ctx context.Context, table string) error {
	var count int
	if err := d.conn.GetContext(ctx, &count,
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?`, table); err != nil {
		return errs.Wrap(errs.KindDatabaseUnavailable, err, "checking for existing table")
	}

	if count == 0 {
		ddl := fmt.Sprintf(`CREATE TABLE %s (
			pcap_id integer,
			flow_hash bigint,
			first_time bigint,
			last_time bigint,
			tcp_flags_different_cnt bigint,
			tcp_flags_different_type text,
			tcp_flags_different_text text,
			seq_num_different_cnt bigint,
			seq_num_different_text text,
			id integer primary key autoincrement
		)`, table)

		if _, err := d.conn.ExecContext(ctx, ddl); err != nil {
			return errs.Wrap(errs.KindDatabaseUnavailable, err, "creating table "+table)
		}

		return nil
	}

	var cols []struct {
		Name string `db:"name"`
	}
	if err := d.conn.SelectContext(ctx, &cols, fmt.Sprintf("PRAGMA table_info(%s)", table)); err != nil {
		return errs.Wrap(errs.KindDatabaseUnavailable, err, "reading table schema")
	}

	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		seen[c.Name] = true
	}

	for _, want := range expectedColumns {
		if !seen[want] {
			return errs.New(errs.KindDatabaseSchemaMismatch,
				fmt.Sprintf("table %s is missing expected column %q", table, want))
		}
	}

	return nil
}

// WriteBatch writes all rows for one compare invocation in a single
// transaction, rolling back on any error (spec.md §5 "writes are batched
// in a single transaction per file pair").
func (d *DB) WriteBatch(ctx context.Context, caseID string, rows []Row) error {
	table, err := TableName(caseID)
	if err != nil {
		return err
	}

	if err := d.ensureTable(ctx, table); err != nil {
		return err
	}

	tx, err := d.conn.BeginTxx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.KindDatabaseUnavailable, err, "beginning transaction")
	}

	insert := fmt.Sprintf(`INSERT INTO %s
		(pcap_id, flow_hash, first_time, last_time, tcp_flags_different_cnt,
		 tcp_flags_different_type, tcp_flags_different_text, seq_num_different_cnt, seq_num_different_text)
		VALUES (:pcap_id, :flow_hash, :first_time, :last_time, :tcp_flags_different_cnt,
		 :tcp_flags_different_type, :tcp_flags_different_text, :seq_num_different_cnt, :seq_num_different_text)`, table)

	for _, r := range rows {
		if _, err := tx.NamedExecContext(ctx, insert, r); err != nil {
			_ = tx.Rollback()
			return errs.Wrap(errs.KindDatabaseUnavailable, err, "inserting row")
		}
	}

	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.KindDatabaseUnavailable, err, "committing transaction")
	}

	return nil
}

// JoinSemicolon is the "semicolon-separated" text encoding spec.md §6.3
// requires for the *_text columns.
func JoinSemicolon(items []string) string {
	return strings.Join(items, ";")
}
