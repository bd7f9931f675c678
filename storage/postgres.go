package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Dhairya-Sondhi/CodeLab-IDE/collab"
	"github.com/Dhairya-Sondhi/CodeLab-IDE/domain"
)

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresRepo(ctx context.Context, connString string) (*PostgresRepo, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &PostgresRepo{pool: pool}, nil
}

func (repo *PostgresRepo) Close() {
	repo.pool.Close()
}

func (repo *PostgresRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	user := domain.User{Username: username}

	row := repo.pool.QueryRow(ctx, "SELECT id, password_hash FROM users WHERE username = $1", username)

	err := row.Scan(&user.Id, &user.PasswordHash)

	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return domain.User{}, domain.ErrUserNotFound
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return domain.User{}, err
		default:
			return domain.User{}, fmt.Errorf("%w: %w", domain.UnexpectedDatabaseError, err)
		}
	}

	return user, nil
}

func (repo *PostgresRepo) GetUserById(ctx context.Context, id string) (domain.User, error) {
	user := domain.User{Id: id}

	row := repo.pool.QueryRow(ctx, "SELECT username, password_hash FROM users WHERE id = $1", id)

	err := row.Scan(&user.Username, &user.PasswordHash)

	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return domain.User{}, domain.ErrUserNotFound
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return domain.User{}, err
		default:
			return domain.User{}, fmt.Errorf("%w: %w", domain.UnexpectedDatabaseError, err)
		}
	}

	return user, nil
}

func (repo *PostgresRepo) CreateUser(ctx context.Context, username string, passwordHash string) (string, error) {
	row := repo.pool.QueryRow(ctx, "INSERT INTO users(username, password_hash) VALUES($1, $2) RETURNING id", username, passwordHash)

	var id string
	err := row.Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			// "23505" is the PostgreSQL error code for unique_violation
			if pgErr.Code == "23505" {
				return "", domain.ErrDuplicateUsername
			}
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}

		return "", fmt.Errorf("%w: %w", domain.UnexpectedDatabaseError, err)
	}

	return id, nil
}

// LoadRoom fetches a room's persisted snapshot. Rooms never flushed before
// come back as domain.ErrRoomNotFound, which callers treat as a fresh room.
func (repo *PostgresRepo) LoadRoom(ctx context.Context, roomId string) (collab.RoomRecord, error) {
	record := collab.RoomRecord{}

	row := repo.pool.QueryRow(ctx, "SELECT document, input, output, language FROM rooms WHERE id = $1", roomId)

	err := row.Scan(&record.Document, &record.Input, &record.Output, &record.Language)

	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return collab.RoomRecord{}, domain.ErrRoomNotFound
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return collab.RoomRecord{}, err
		default:
			return collab.RoomRecord{}, fmt.Errorf("%w: %w", domain.UnexpectedDatabaseError, err)
		}
	}

	return record, nil
}

// SaveRoomDocument upserts the encoded document and its language for a room.
func (repo *PostgresRepo) SaveRoomDocument(ctx context.Context, roomId string, document []byte, language string) error {
	_, err := repo.pool.Exec(ctx,
		`INSERT INTO rooms(id, document, language) VALUES($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET document = $2, language = $3, updated_at = now()`,
		roomId, document, language)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: %w", domain.UnexpectedDatabaseError, err)
	}
	return nil
}

// SaveRoomState upserts the ephemeral input/output panels for a room.
func (repo *PostgresRepo) SaveRoomState(ctx context.Context, roomId, input, output string) error {
	_, err := repo.pool.Exec(ctx,
		`INSERT INTO rooms(id, input, output) VALUES($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET input = $2, output = $3, updated_at = now()`,
		roomId, input, output)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: %w", domain.UnexpectedDatabaseError, err)
	}
	return nil
}
