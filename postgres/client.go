package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/slackmgr/sqsrecovery/errorhandler"
)

// UnknownSource is stored for records that carry no source queue name.
const UnknownSource = "unknown"

var errNotConnected = errors.New("client is not connected")

var _ errorhandler.Recorder = (*Client)(nil)

// pool defines the interface for database operations.
// This interface is satisfied by *pgxpool.Pool and can be mocked for testing.
type pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Close()
	Ping(ctx context.Context) error
}

type Client struct {
	conn      pool
	opts      *options
	cancelTTL context.CancelFunc
}

func New(opts ...Option) *Client {
	o := newOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &Client{opts: o}
}

func (c *Client) Connect(ctx context.Context) error {
	// Close existing connection if any to prevent leaks
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	if err := c.opts.validate(); err != nil {
		return fmt.Errorf("invalid Postgres db configuration: %w", err)
	}

	config, err := pgxpool.ParseConfig(c.opts.connectionString())
	if err != nil {
		return fmt.Errorf("failed to parse Postgres db connection string: %w", err)
	}

	if c.opts.poolMaxConnections != nil {
		config.MaxConns = *c.opts.poolMaxConnections
	}

	if c.opts.poolMinConnections != nil {
		config.MinConns = *c.opts.poolMinConnections
	}

	if c.opts.poolMinIdleConnections != nil {
		config.MinIdleConns = *c.opts.poolMinIdleConnections
	}

	if c.opts.poolMaxConnectionLifetime != nil {
		config.MaxConnLifetime = *c.opts.poolMaxConnectionLifetime
	}

	if c.opts.poolMaxConnectionIdleTime != nil {
		config.MaxConnIdleTime = *c.opts.poolMaxConnectionIdleTime
	}

	if c.opts.poolHealthCheckPeriod != nil {
		config.HealthCheckPeriod = *c.opts.poolHealthCheckPeriod
	}

	if c.opts.poolMaxConnectionLifetimeJitter != nil {
		config.MaxConnLifetimeJitter = *c.opts.poolMaxConnectionLifetimeJitter
	}

	conn, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to create new Postgres connection pool: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return fmt.Errorf("failed to ping Postgres db: %w", err)
	}

	c.conn = conn

	return nil
}

func (c *Client) Close(_ context.Context) error {
	if c.cancelTTL != nil {
		c.cancelTTL()
		c.cancelTTL = nil
	}

	if c.conn == nil {
		return nil
	}

	c.conn.Close()

	c.conn = nil

	return nil
}

// Init creates the record table and its indexes. Unless skipSchemaValidation
// is set, it then verifies the columns against information_schema. The TTL
// cleanup goroutine is started on the first successful call.
func (c *Client) Init(ctx context.Context, skipSchemaValidation bool) error {
	if c.conn == nil {
		return errNotConnected
	}

	tx, err := c.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin init transaction: %w", err)
	}

	defer func() { _ = tx.Rollback(ctx) }() // No-op if committed

	for _, sql := range c.opts.createStatements() {
		if _, err := tx.Exec(ctx, sql); err != nil {
			return fmt.Errorf("failed to execute create statement: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit init transaction: %w", err)
	}

	if !skipSchemaValidation {
		if err := c.verifySchema(ctx); err != nil {
			return err
		}
	}

	if c.cancelTTL == nil && c.opts.ttlCleanupInterval != nil {
		ttlCtx, cancel := context.WithCancel(context.Background())
		c.cancelTTL = cancel

		//nolint:contextcheck // The TTL goroutine must outlive the Init call.
		go c.runTTLCleanup(ttlCtx)
	}

	return nil
}

func (c *Client) verifySchema(ctx context.Context) error {
	query := "SELECT table_name, column_name, data_type, is_nullable FROM information_schema.columns WHERE table_schema = 'public' AND table_name = $1 ORDER BY ordinal_position"

	rows, err := c.conn.Query(ctx, query, c.opts.table)
	if err != nil {
		return fmt.Errorf("failed to query information schema: %w", err)
	}

	defer rows.Close()

	infoRows := map[string]*dbRow{}

	for rows.Next() {
		var table, column string
		infoRow := &dbRow{}

		if err := rows.Scan(&table, &column, &infoRow.DataType, &infoRow.IsNullable); err != nil {
			return fmt.Errorf("failed to scan row from information schema: %w", err)
		}

		infoRows[table+"."+column] = infoRow
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating over rows from information schema: %w", err)
	}

	if err := c.opts.verifyCurrentDatabaseVersion(infoRows); err != nil {
		return fmt.Errorf("failed to verify current database version: %w", err)
	}

	return nil
}

// DropAllData drops the record table.
func (c *Client) DropAllData(ctx context.Context) error {
	if c.conn == nil {
		return errNotConnected
	}

	tx, err := c.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin drop tables transaction: %w", err)
	}

	defer func() { _ = tx.Rollback(ctx) }() // No-op if committed

	for _, sql := range c.opts.dropStatements() {
		if _, err := tx.Exec(ctx, sql); err != nil {
			return fmt.Errorf("failed to execute drop statement: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit drop tables transaction: %w", err)
	}

	return nil
}

// RecordUnrecoverable stores a single record. Recording the same message at
// the same timestamp twice overwrites the first row.
func (c *Client) RecordUnrecoverable(ctx context.Context, record *errorhandler.UnrecoverableRecord) error {
	if c.conn == nil {
		return errNotConnected
	}

	sql, args, err := c.getRecordInsertSQL(record)
	if err != nil {
		return err
	}

	if _, err := c.conn.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to save unrecoverable record to Postgres db: %w", err)
	}

	return nil
}

// RecordUnrecoverableBatch stores several records in one round trip.
func (c *Client) RecordUnrecoverableBatch(ctx context.Context, records ...*errorhandler.UnrecoverableRecord) error {
	if c.conn == nil {
		return errNotConnected
	}

	if len(records) == 0 {
		return nil
	}

	if len(records) == 1 {
		return c.RecordUnrecoverable(ctx, records[0])
	}

	batch := &pgx.Batch{}

	for _, record := range records {
		sql, args, err := c.getRecordInsertSQL(record)
		if err != nil {
			return err
		}

		batch.Queue(sql, args...)
	}

	results := c.conn.SendBatch(ctx, batch)

	defer results.Close()

	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to save unrecoverable record to Postgres db: %w", err)
		}
	}

	return nil
}

// FindUnrecoverable returns up to limit unexpired records of the given source
// queue, oldest first. An empty source selects records stored without one,
// and a limit of zero or less returns every match.
func (c *Client) FindUnrecoverable(ctx context.Context, source string, limit int) ([]*errorhandler.UnrecoverableRecord, error) {
	if c.conn == nil {
		return nil, errNotConnected
	}

	if source == "" {
		source = UnknownSource
	}

	query := fmt.Sprintf("SELECT attrs FROM %s WHERE source = $1 AND expires_at > NOW() ORDER BY recorded_at ASC", c.opts.table)
	args := []any{source}

	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	return c.queryRecords(ctx, query, args...)
}

// FindUnrecoverableByMessageID returns every unexpired record of the given
// message, oldest first.
func (c *Client) FindUnrecoverableByMessageID(ctx context.Context, messageID string) ([]*errorhandler.UnrecoverableRecord, error) {
	if c.conn == nil {
		return nil, errNotConnected
	}

	if messageID == "" {
		return nil, errors.New("message ID cannot be empty")
	}

	query := fmt.Sprintf("SELECT attrs FROM %s WHERE message_id = $1 AND expires_at > NOW() ORDER BY recorded_at ASC", c.opts.table)

	return c.queryRecords(ctx, query, messageID)
}

// DeleteUnrecoverable removes the row of a previously stored record.
func (c *Client) DeleteUnrecoverable(ctx context.Context, record *errorhandler.UnrecoverableRecord) error {
	if c.conn == nil {
		return errNotConnected
	}

	if record == nil {
		return errors.New("record cannot be nil")
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", c.opts.table)

	if _, err := c.conn.Exec(ctx, query, recordID(record)); err != nil {
		return fmt.Errorf("failed to delete unrecoverable record from Postgres db: %w", err)
	}

	return nil
}

func (c *Client) queryRecords(ctx context.Context, query string, args ...any) ([]*errorhandler.UnrecoverableRecord, error) {
	rows, err := c.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find unrecoverable records in Postgres db: %w", err)
	}

	defer rows.Close()

	var records []*errorhandler.UnrecoverableRecord

	for rows.Next() {
		var body json.RawMessage

		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan unrecoverable record: %w", err)
		}

		record := &errorhandler.UnrecoverableRecord{}

		if err := json.Unmarshal(body, record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal unrecoverable record: %w", err)
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over unrecoverable records: %w", err)
	}

	return records, nil
}

func (c *Client) getRecordInsertSQL(record *errorhandler.UnrecoverableRecord) (string, []any, error) {
	if record == nil {
		return "", nil, errors.New("record cannot be nil")
	}

	if record.MessageID == "" {
		return "", nil, errors.New("record message ID cannot be empty")
	}

	body, err := json.Marshal(record)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal unrecoverable record: %w", err)
	}

	param1 := recordID(record)
	param2 := RecordModelVersion
	param3 := record.MessageID
	param4 := sourceOf(record)
	param5 := record.ReceiveCount
	param6 := record.Timestamp
	param7 := string(body)
	param8 := time.Now().Add(c.opts.timeToLive)

	statement := fmt.Sprintf("INSERT INTO %s (id, version, message_id, source, receive_count, recorded_at, attrs, expires_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT (id) DO UPDATE SET receive_count = EXCLUDED.receive_count, attrs = EXCLUDED.attrs, expires_at = EXCLUDED.expires_at", c.opts.table)
	args := []any{param1, param2, param3, param4, param5, param6, param7, param8}

	return statement, args, nil
}

func (c *Client) runTTLCleanup(ctx context.Context) {
	ticker := time.NewTicker(*c.opts.ttlCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.deleteExpiredRows(ctx)
		}
	}
}

func (c *Client) deleteExpiredRows(ctx context.Context) {
	_, _ = c.conn.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE expires_at < NOW()", c.opts.table))
}

func sourceOf(record *errorhandler.UnrecoverableRecord) string {
	if record.Source == "" {
		return UnknownSource
	}

	return record.Source
}

// recordID returns <source>#<message id>#<unix nanos>.
func recordID(record *errorhandler.UnrecoverableRecord) string {
	return fmt.Sprintf("%s#%s#%d", sourceOf(record), record.MessageID, record.Timestamp.UnixNano())
}
