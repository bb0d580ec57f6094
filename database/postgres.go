package database

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fenilmodi00/nextipo-backend/config"
	"github.com/fenilmodi00/nextipo-backend/models"
	"github.com/fenilmodi00/nextipo-backend/shared"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

//go:embed schema.sql
var schemaSQL string

const ipoColumns = `id, name, script_code, icon_url, min_price, max_price, listing_price, lot_size,
	premium, premium_percentage, premium_last_updated, open_date, close_date, allotment_date,
	listing_date, allotment_link, current_status, exchange, is_buyer, is_seller, is_pre_apply,
	created_at, updated_at`

const uniqueViolation = "23505"

// Connect opens a pooled connection with the default pool settings
func Connect(dbURL string) (*sql.DB, error) {
	return ConnectWithConfig(dbURL, config.DefaultDatabaseConfig())
}

// ConnectWithConfig opens the database, applies pool limits and verifies it with a ping
func ConnectWithConfig(dbURL string, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.PingTimeout)
	defer cancel()

	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"max_open_conns":     cfg.MaxOpenConns,
		"max_idle_conns":     cfg.MaxIdleConns,
		"conn_max_lifetime":  cfg.ConnMaxLifetime,
		"conn_max_idle_time": cfg.ConnMaxIdleTime,
	}).Info("Connected to database successfully")

	return db, nil
}

// HealthCheck pings the database and logs pool statistics
func HealthCheck(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("database connection not established")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	stats := db.Stats()
	logrus.WithFields(logrus.Fields{
		"max_open_connections": stats.MaxOpenConnections,
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"wait_count":           stats.WaitCount,
		"wait_duration":        stats.WaitDuration,
	}).Debug("Database connection pool health check")

	return nil
}

// Migrate applies the embedded schema. Statements are idempotent, so a failing
// statement is logged and the rest still run.
func Migrate(ctx context.Context, db *sql.DB) error {
	statements := parseSQLStatements(schemaSQL)
	failed := 0

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			failed++
			logrus.Warnf("Migration statement failed (continuing): %v", err)
		}
	}

	if failed == len(statements) && failed > 0 {
		return fmt.Errorf("all %d migration statements failed", failed)
	}
	logrus.WithField("statements", len(statements)).Info("Database migration completed successfully")
	return nil
}

// parseSQLStatements splits SQL content into statements, dropping comment-only lines
func parseSQLStatements(content string) []string {
	var statements []string
	var currentStatement strings.Builder

	lines := strings.Split(content, "\n")

	for _, line := range lines {
		line = strings.TrimSpace(line)

		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}

		if currentStatement.Len() > 0 {
			currentStatement.WriteString(" ")
		}
		currentStatement.WriteString(line)

		if strings.HasSuffix(line, ";") {
			stmt := strings.TrimSuffix(currentStatement.String(), ";")
			stmt = strings.TrimSpace(stmt)
			if stmt != "" {
				statements = append(statements, stmt)
			}
			currentStatement.Reset()
		}
	}

	if currentStatement.Len() > 0 {
		stmt := strings.TrimSpace(currentStatement.String())
		if stmt != "" {
			statements = append(statements, stmt)
		}
	}

	return statements
}

// PostgresStore is the durable Store backed by lib/pq
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// DB exposes the pool for health checks
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) CreateIPO(ctx context.Context, in models.IPOInput) (*models.IPORecord, error) {
	ts := s.now()
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO ipos (name, script_code, icon_url, min_price, max_price, listing_price, lot_size,
			premium, premium_percentage, premium_last_updated, open_date, close_date, allotment_date,
			listing_date, allotment_link, current_status, exchange, is_buyer, is_seller, is_pre_apply,
			natural_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $22)
		RETURNING `+ipoColumns, ipoArgs(in, ts)...)

	rec, err := scanIPO(row)
	if err != nil {
		return nil, dbError(err, "CreateIPO")
	}
	return rec, nil
}

func (s *PostgresStore) GetAllIPOs(ctx context.Context) ([]models.IPORecord, error) {
	return s.queryIPOs(ctx, "GetAllIPOs", `SELECT `+ipoColumns+` FROM ipos ORDER BY created_at DESC, id ASC`)
}

func (s *PostgresStore) GetIPOsByStatus(ctx context.Context, status string) ([]models.IPORecord, error) {
	return s.queryIPOs(ctx, "GetIPOsByStatus",
		`SELECT `+ipoColumns+` FROM ipos WHERE current_status = $1 ORDER BY created_at DESC, id ASC`, status)
}

func (s *PostgresStore) SearchIPOs(ctx context.Context, query string) ([]models.IPORecord, error) {
	pattern := "%" + escapeLike(query) + "%"
	return s.queryIPOs(ctx, "SearchIPOs", `
		SELECT `+ipoColumns+` FROM ipos
		WHERE name ILIKE $1 OR script_code ILIKE $1 OR exchange ILIKE $1
		ORDER BY created_at DESC, id ASC`, pattern)
}

func (s *PostgresStore) GetIPOByID(ctx context.Context, id int64) (*models.IPORecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ipoColumns+` FROM ipos WHERE id = $1`, id)
	rec, err := scanIPO(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError(err, "GetIPOByID")
	}
	return rec, nil
}

func (s *PostgresStore) UpdateIPO(ctx context.Context, id int64, patch models.IPOPatch) (*models.IPORecord, error) {
	var out *models.IPORecord
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+ipoColumns+` FROM ipos WHERE id = $1 FOR UPDATE`, id)
		current, err := scanIPO(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		patch.Apply(current)
		current.UpdatedAt = s.now()
		out, err = replaceIPO(ctx, tx, current.ID, inputFromRecord(*current), current.UpdatedAt)
		return err
	})
	if err != nil {
		return nil, dbError(err, "UpdateIPO")
	}
	return out, nil
}

func (s *PostgresStore) UpsertIPO(ctx context.Context, in models.IPOInput) (*models.IPORecord, bool, error) {
	var (
		out     *models.IPORecord
		created bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		key := in.NaturalKey()
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return err
		}

		var id int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM ipos WHERE natural_key = $1 ORDER BY id ASC LIMIT 1`, key).Scan(&id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			ts := s.now()
			row := tx.QueryRowContext(ctx, `
				INSERT INTO ipos (name, script_code, icon_url, min_price, max_price, listing_price, lot_size,
					premium, premium_percentage, premium_last_updated, open_date, close_date, allotment_date,
					listing_date, allotment_link, current_status, exchange, is_buyer, is_seller, is_pre_apply,
					natural_key, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $22)
				RETURNING `+ipoColumns, ipoArgs(in, ts)...)
			out, err = scanIPO(row)
			created = true
			return err
		case err != nil:
			return err
		default:
			out, err = replaceIPO(ctx, tx, id, in, s.now())
			return err
		}
	})
	if err != nil {
		return nil, false, dbError(err, "UpsertIPO")
	}
	return out, created, nil
}

func (s *PostgresStore) CreateContact(ctx context.Context, in models.ContactInput) (*models.ContactMessage, error) {
	msg := models.ContactMessage{Name: in.Name, Email: in.Email, Message: in.Message}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO contact_messages (name, email, message, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`, in.Name, in.Email, in.Message, s.now()).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, dbError(err, "CreateContact")
	}
	return &msg, nil
}

func (s *PostgresStore) GetAllContacts(ctx context.Context) ([]models.ContactMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, message, created_at FROM contact_messages
		ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, dbError(err, "GetAllContacts")
	}
	defer rows.Close()

	contacts := []models.ContactMessage{}
	for rows.Next() {
		var msg models.ContactMessage
		if err := rows.Scan(&msg.ID, &msg.Name, &msg.Email, &msg.Message, &msg.CreatedAt); err != nil {
			return nil, dbError(err, "GetAllContacts")
		}
		contacts = append(contacts, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err, "GetAllContacts")
	}
	return contacts, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, in models.UserInput) (*models.User, error) {
	user := models.User{Username: in.Username, Password: in.Password}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (username, password) VALUES ($1, $2) RETURNING id`,
		in.Username, in.Password).Scan(&user.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, shared.NewServiceError(
				shared.ErrorCategoryValidation, "USERNAME_TAKEN",
				fmt.Sprintf("username %q already exists", in.Username),
				"PostgresStore", "CreateUser", false, err,
			)
		}
		return nil, dbError(err, "CreateUser")
	}
	return &user, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return s.getUser(ctx, "GetUser", `SELECT id, username, password FROM users WHERE id = $1`, id)
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getUser(ctx, "GetUserByUsername", `SELECT id, username, password FROM users WHERE username = $1`, username)
}

func (s *PostgresStore) getUser(ctx context.Context, operation, query string, arg any) (*models.User, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&user.ID, &user.Username, &user.Password)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError(err, operation)
	}
	return &user, nil
}

func (s *PostgresStore) Counts(ctx context.Context) (StoreCounts, error) {
	counts := StoreCounts{Backend: "postgres"}
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM ipos),
		       (SELECT COUNT(*) FROM contact_messages),
		       (SELECT COUNT(*) FROM users)`).Scan(&counts.IPOs, &counts.Contacts, &counts.Users)
	if err != nil {
		return counts, dbError(err, "Counts")
	}
	return counts, nil
}

func (s *PostgresStore) Close() error {
	if s.db == nil {
		return nil
	}
	logrus.Info("Database connection closed")
	return s.db.Close()
}

func (s *PostgresStore) queryIPOs(ctx context.Context, operation, query string, args ...any) ([]models.IPORecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError(err, operation)
	}
	defer rows.Close()

	records := []models.IPORecord{}
	for rows.Next() {
		rec, err := scanIPO(rows)
		if err != nil {
			return nil, dbError(err, operation)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err, operation)
	}
	return records, nil
}

func (s *PostgresStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logrus.WithError(rbErr).Warn("Transaction rollback failed")
		}
		return err
	}
	return tx.Commit()
}

func replaceIPO(ctx context.Context, tx *sql.Tx, id int64, in models.IPOInput, updatedAt time.Time) (*models.IPORecord, error) {
	args := append(ipoArgs(in, updatedAt)[:21], updatedAt, id)
	row := tx.QueryRowContext(ctx, `
		UPDATE ipos SET name = $1, script_code = $2, icon_url = $3, min_price = $4, max_price = $5,
			listing_price = $6, lot_size = $7, premium = $8, premium_percentage = $9,
			premium_last_updated = $10, open_date = $11, close_date = $12, allotment_date = $13,
			listing_date = $14, allotment_link = $15, current_status = $16, exchange = $17,
			is_buyer = $18, is_seller = $19, is_pre_apply = $20, natural_key = $21, updated_at = $22
		WHERE id = $23
		RETURNING `+ipoColumns, args...)
	return scanIPO(row)
}

// ipoArgs returns the 22 insert parameters; the last one is the timestamp
func ipoArgs(in models.IPOInput, ts time.Time) []any {
	return []any{
		in.Name, in.ScriptCode, in.IconURL, in.MinPrice, in.MaxPrice, in.ListingPrice, in.LotSize,
		in.Premium, in.PremiumPercentage, in.PremiumLastUpdated, in.OpenDate, in.CloseDate, in.AllotmentDate,
		in.ListingDate, in.AllotmentLink, in.CurrentStatus, in.Exchange, in.IsBuyer, in.IsSeller, in.IsPreApply,
		in.NaturalKey(), ts,
	}
}

func inputFromRecord(r models.IPORecord) models.IPOInput {
	return models.IPOInput{
		Name:               r.Name,
		ScriptCode:         r.ScriptCode,
		IconURL:            r.IconURL,
		MinPrice:           r.MinPrice,
		MaxPrice:           r.MaxPrice,
		ListingPrice:       r.ListingPrice,
		LotSize:            r.LotSize,
		Premium:            r.Premium,
		PremiumPercentage:  r.PremiumPercentage,
		PremiumLastUpdated: r.PremiumLastUpdated,
		OpenDate:           r.OpenDate,
		CloseDate:          r.CloseDate,
		AllotmentDate:      r.AllotmentDate,
		ListingDate:        r.ListingDate,
		AllotmentLink:      r.AllotmentLink,
		CurrentStatus:      r.CurrentStatus,
		Exchange:           r.Exchange,
		IsBuyer:            r.IsBuyer,
		IsSeller:           r.IsSeller,
		IsPreApply:         r.IsPreApply,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIPO(row rowScanner) (*models.IPORecord, error) {
	var (
		rec                                              models.IPORecord
		iconURL, minPrice, maxPrice, listingPrice        sql.NullString
		premium, allotmentDate, listingDate, allotmentLk sql.NullString
		lotSize                                          sql.NullInt64
		premiumPct                                       sql.NullFloat64
		premiumUpdated                                   sql.NullTime
	)
	err := row.Scan(
		&rec.ID, &rec.Name, &rec.ScriptCode, &iconURL, &minPrice, &maxPrice, &listingPrice, &lotSize,
		&premium, &premiumPct, &premiumUpdated, &rec.OpenDate, &rec.CloseDate, &allotmentDate,
		&listingDate, &allotmentLk, &rec.CurrentStatus, &rec.Exchange, &rec.IsBuyer, &rec.IsSeller, &rec.IsPreApply,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.IconURL = nullString(iconURL)
	rec.MinPrice = nullString(minPrice)
	rec.MaxPrice = nullString(maxPrice)
	rec.ListingPrice = nullString(listingPrice)
	rec.Premium = nullString(premium)
	rec.AllotmentDate = nullString(allotmentDate)
	rec.ListingDate = nullString(listingDate)
	rec.AllotmentLink = nullString(allotmentLk)
	if lotSize.Valid {
		v := int(lotSize.Int64)
		rec.LotSize = &v
	}
	if premiumPct.Valid {
		v := premiumPct.Float64
		rec.PremiumPercentage = &v
	}
	if premiumUpdated.Valid {
		v := premiumUpdated.Time
		rec.PremiumLastUpdated = &v
	}
	return &rec, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

// escapeLike escapes ILIKE wildcards so the query matches literally
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func dbError(err error, operation string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return shared.WrapError(err, shared.ErrorCategoryDatabase, "QUERY_FAILED", "PostgresStore", operation, true)
}
