// Package repository реализует хранилище на PostgreSQL: справочник подписчиков,
// запросы о помощи, журнал доставок с историей статусов и регистрации помощников.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	// Регистрация драйвера pgx для использования с database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"
)

var (
	// ErrNotFound запись не найдена.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition недопустимый переход статуса доставки.
	ErrInvalidTransition = errors.New("invalid delivery status transition")
	// ErrAlreadyReserved у подписчика уже есть запись о доставке по этому запросу.
	ErrAlreadyReserved = errors.New("delivery already reserved")
	// ErrInvalidData значение не помещается в столбец или имеет неверный формат.
	ErrInvalidData = errors.New("invalid data")
)

// Storage инкапсулирует соединение с базой данных PostgreSQL.
type Storage struct {
	DB *sql.DB
}

// New открывает подключение к PostgreSQL и проверяет его.
func New(storageConnectionString string) (*Storage, error) {
	const op = "storage.New"

	db, err := sql.Open("pgx", storageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{
		DB: db,
	}, nil
}

// Close закрывает пул соединений.
func (s *Storage) Close() error {
	return s.DB.Close()
}

// CheckDatabaseReady проверяет, что схема уже создана миграциями.
func CheckDatabaseReady(storage *Storage) error {
	var exists bool
	err := storage.DB.QueryRow(`SELECT EXISTS (
        SELECT FROM information_schema.tables
        WHERE table_name = 'deliveries'
    )`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check table deliveries: %w", err)
	}
	if !exists {
		return errors.New("required table deliveries missing")
	}
	return nil
}

func checkCtx(ctx context.Context, op string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
		return nil
	}
}

// textArray сканирует TEXT[] в []string.
func textArray(dst *[]string) sql.Scanner {
	return pgtype.NewMap().SQLScanner(dst)
}

// isDataException ошибки класса 22: переполнение числа, слишком длинная строка и т.п.
// Повтор с теми же данными не поможет.
func isDataException(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgerrcode.IsDataException(pgErr.Code)
}

func rollback(tx *sql.Tx) {
	_ = tx.Rollback()
}
