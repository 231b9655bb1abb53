package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"estate-assistant/internal/model"
	"estate-assistant/internal/service"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

//go:embed schema.sql
var schemaSQL string

const propertyColumns = `
	id, title, description, price, address, city, state, zip_code,
	property_type, type, listing_type, bedrooms, num_bedrooms, bathrooms,
	square_feet, features, images, is_active, created_at`

// ErrPropertyNotFound is returned when no property has the requested id
var ErrPropertyNotFound = errors.New("property not found")

// PostgresRepository handles database operations
type PostgresRepository struct {
	db *sqlx.DB
}

var (
	_ service.PropertyStore       = (*PostgresRepository)(nil)
	_ service.VectorIndex         = (*PostgresRepository)(nil)
	_ service.ConversationLog     = (*PostgresRepository)(nil)
	_ service.EmbeddingRepository = (*PostgresRepository)(nil)
	_ service.EmbeddingLookup     = (*PostgresRepository)(nil)
)

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(dsn string, maxConn, maxIdleConn int) (*PostgresRepository, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(maxConn)
	db.SetMaxIdleConns(maxIdleConn)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{db: db}, nil
}

// NewPostgresRepositoryFromDB wraps an existing connection pool
func NewPostgresRepositoryFromDB(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Close closes the database connection
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// Ping checks the connection
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Migrate creates the pgvector extension and the tables the assistant uses
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// buildFilterQuery renders the structured property search. City and state
// match as case-insensitive substrings, property type and bedrooms accept
// either the current or the legacy column.
func buildFilterQuery(filters model.FilterSet, limit int) (string, []interface{}) {
	whereClauses := []string{"1=1"}
	args := []interface{}{}
	argIndex := 1

	if filters.City != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("city ILIKE $%d", argIndex))
		args = append(args, "%"+*filters.City+"%")
		argIndex++
	}
	if filters.State != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("state ILIKE $%d", argIndex))
		args = append(args, "%"+*filters.State+"%")
		argIndex++
	}
	if filters.PropertyType != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("(type = $%d OR property_type = $%d)", argIndex, argIndex))
		args = append(args, *filters.PropertyType)
		argIndex++
	}
	if filters.ListingType != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("listing_type = $%d", argIndex))
		args = append(args, *filters.ListingType)
		argIndex++
	}
	if filters.Bedrooms != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("(bedrooms = $%d OR num_bedrooms = $%d)", argIndex, argIndex))
		args = append(args, *filters.Bedrooms)
		argIndex++
	}

	query := fmt.Sprintf(`SELECT %s FROM properties WHERE %s ORDER BY created_at DESC LIMIT $%d`,
		propertyColumns, strings.Join(whereClauses, " AND "), argIndex)
	args = append(args, limit)
	return query, args
}

// FindProperties returns up to limit properties matching every set filter
func (r *PostgresRepository) FindProperties(ctx context.Context, filters model.FilterSet, limit int) ([]model.PropertyRecord, error) {
	query, args := buildFilterQuery(filters, limit)

	var properties []model.PropertyRecord
	if err := r.db.SelectContext(ctx, &properties, query, args...); err != nil {
		return nil, fmt.Errorf("failed to fetch properties: %w", err)
	}
	return properties, nil
}

// GetPropertiesByIDs returns the properties with the given ids in the order
// of ids. Unknown ids are skipped.
func (r *PostgresRepository) GetPropertiesByIDs(ctx context.Context, ids []string) ([]model.PropertyRecord, error) {
	if len(ids) == 0 {
		return []model.PropertyRecord{}, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM properties WHERE id = ANY($1)`, propertyColumns)
	var properties []model.PropertyRecord
	if err := r.db.SelectContext(ctx, &properties, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to fetch properties by id: %w", err)
	}
	return service.OrderByIDs(properties, ids), nil
}

// GetPropertyByID retrieves a single property
func (r *PostgresRepository) GetPropertyByID(ctx context.Context, id string) (*model.PropertyRecord, error) {
	var property model.PropertyRecord
	query := fmt.Sprintf(`SELECT %s FROM properties WHERE id = $1`, propertyColumns)
	err := r.db.GetContext(ctx, &property, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPropertyNotFound
		}
		return nil, fmt.Errorf("failed to get property: %w", err)
	}
	return &property, nil
}

// GetEmbedding returns the stored vector for id
func (r *PostgresRepository) GetEmbedding(ctx context.Context, id string) ([]float32, error) {
	var vec *pgvector.Vector
	err := r.db.QueryRowContext(ctx, `SELECT embedding FROM properties WHERE id = $1`, id).Scan(&vec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPropertyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get embedding: %w", err)
	}
	if vec == nil {
		return nil, service.ErrNoEmbedding
	}
	return vec.Slice(), nil
}

// Query returns the topK properties nearest to vector by cosine distance
func (r *PostgresRepository) Query(ctx context.Context, vector []float32, topK int) ([]service.VectorMatch, error) {
	query := `
		SELECT id, 1 - (embedding <=> $1) AS score
		FROM properties
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $2
	`
	var matches []service.VectorMatch
	if err := r.db.SelectContext(ctx, &matches, query, pgvector.NewVector(vector), topK); err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	return matches, nil
}

// ListPropertiesWithoutEmbedding returns up to limit properties with no vector
func (r *PostgresRepository) ListPropertiesWithoutEmbedding(ctx context.Context, limit int) ([]model.PropertyRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM properties WHERE embedding IS NULL ORDER BY created_at LIMIT $1`, propertyColumns)
	var properties []model.PropertyRecord
	if err := r.db.SelectContext(ctx, &properties, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list properties without embedding: %w", err)
	}
	return properties, nil
}

// BatchUpdateEmbeddings updates embeddings for multiple properties
func (r *PostgresRepository) BatchUpdateEmbeddings(ctx context.Context, items []model.EmbeddingItem) (int, []string) {
	success := 0
	var errs []string

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		errs = append(errs, fmt.Sprintf("failed to start transaction: %v", err))
		return success, errs
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `UPDATE properties SET embedding = $1 WHERE id = $2`)
	if err != nil {
		errs = append(errs, fmt.Sprintf("failed to prepare statement: %v", err))
		return success, errs
	}
	defer stmt.Close()

	// A failed statement aborts the whole transaction in PostgreSQL, so each
	// row runs under its own savepoint and a bad row only rolls back itself.
	for _, item := range items {
		if _, err := tx.ExecContext(ctx, `SAVEPOINT embedding_row`); err != nil {
			errs = append(errs, fmt.Sprintf("failed to create savepoint: %v", err))
			return 0, errs
		}
		res, err := stmt.ExecContext(ctx, pgvector.NewVector(item.Embedding), item.PropertyID)
		if err != nil {
			errs = append(errs, fmt.Sprintf("property_id %s: %v", item.PropertyID, err))
			if _, rbErr := tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT embedding_row`); rbErr != nil {
				errs = append(errs, fmt.Sprintf("failed to roll back savepoint: %v", rbErr))
				return 0, errs
			}
			continue
		}
		if _, err := tx.ExecContext(ctx, `RELEASE SAVEPOINT embedding_row`); err != nil {
			errs = append(errs, fmt.Sprintf("failed to release savepoint: %v", err))
			return 0, errs
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			errs = append(errs, fmt.Sprintf("property_id %s: not found", item.PropertyID))
			continue
		}
		success++
	}

	if err := tx.Commit(); err != nil {
		errs = append(errs, fmt.Sprintf("failed to commit transaction: %v", err))
		return 0, errs
	}

	return success, errs
}

// SaveConversation logs one exchange
func (r *PostgresRepository) SaveConversation(ctx context.Context, entry model.ConversationLogEntry) error {
	query := `
		INSERT INTO conversations (id, user_id, transcript, ai_response, property_ids, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.UserID, entry.Transcript, entry.AIResponse, pq.Array(entry.PropertyIDs), entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}
