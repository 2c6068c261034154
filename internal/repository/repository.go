// Пакет repository — слой доступа к таблицам каталога в PostgreSQL.
// Все запросы — чистый SQL через pgx, без ORM. Особенности диалекта
// (генерация идентификаторов, блокировка строк) вынесены в Dialect.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — конфликт уникальности (дублирующаяся запись).
	ErrConflict = errors.New("конфликт — запись уже существует")
	// ErrForeignKey — ссылка на несуществующую запись справочника.
	ErrForeignKey = errors.New("ссылка на несуществующую запись")
)

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется *pgxpool.Pool, *pgxpool.Conn и pgx.Tx, что позволяет
// использовать репозитории как внутри, так и вне транзакций.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxRunner выполняет операции каталога в транзакции.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner создаёт TxRunner для управления транзакциями.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunInTx выполняет fn внутри транзакции.
// Любая ошибка fn (в том числе пользовательская) откатывает транзакцию;
// фиксация происходит только после успешного завершения fn.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // откат после коммита — no-op

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

// Sequence — имя последовательности идентификаторов.
type Sequence string

const (
	ArchiveFileIDSequence    Sequence = "archive_file_id_seq"
	FileRecycleLogIDSequence Sequence = "file_recycle_log_id_seq"
	StorageClassIDSequence   Sequence = "storage_class_id_seq"
)

// Dialect — особенности конкретной СУБД, от которых зависит SQL каталога.
type Dialect interface {
	// Name возвращает имя диалекта для логов.
	Name() string
	// NextID возвращает следующее значение последовательности.
	NextID(ctx context.Context, db DBTX, seq Sequence) (uint64, error)
	// LockSuffix возвращает окончание SELECT для блокировки строк до конца транзакции.
	LockSuffix() string
}

// PostgresDialect — диалект PostgreSQL.
type PostgresDialect struct{}

// Name возвращает "postgres".
func (PostgresDialect) Name() string { return "postgres" }

// NextID вызывает NEXTVAL для последовательности.
func (PostgresDialect) NextID(ctx context.Context, db DBTX, seq Sequence) (uint64, error) {
	var id uint64
	if err := db.QueryRow(ctx, `SELECT NEXTVAL($1::regclass)`, string(seq)).Scan(&id); err != nil {
		return 0, fmt.Errorf("ошибка получения значения %s: %w", seq, err)
	}
	return id, nil
}

// LockSuffix возвращает " FOR UPDATE".
func (PostgresDialect) LockSuffix() string { return " FOR UPDATE" }

// lockSuffix возвращает окончание запроса для блокировки, если lock == true.
func lockSuffix(d Dialect, lock bool) string {
	if !lock || d == nil {
		return ""
	}
	return d.LockSuffix()
}

// isUniqueViolation проверяет, является ли ошибка нарушением уникальности PostgreSQL.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// isForeignKeyViolation проверяет нарушение внешнего ключа.
// Возвращает имя нарушенного ограничения.
func isForeignKeyViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" { // foreign_key_violation
		return pgErr.ConstraintName, true
	}
	return "", false
}

// mapWriteError переводит ошибки ограничений в ошибки репозитория.
func mapWriteError(err error, what string) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrConflict, what)
	}
	if constraint, ok := isForeignKeyViolation(err); ok {
		return fmt.Errorf("%w: %s (%s)", ErrForeignKey, what, constraint)
	}
	return fmt.Errorf("ошибка записи %s: %w", what, err)
}

// whereBuilder собирает условия WHERE с нумерованными параметрами.
type whereBuilder struct {
	conditions []string
	args       []any
	argNum     int
}

func newWhereBuilder(startArg int) *whereBuilder {
	return &whereBuilder{argNum: startArg}
}

// add добавляет условие; format содержит один %d — номер параметра.
func (b *whereBuilder) add(format string, arg any) {
	b.conditions = append(b.conditions, fmt.Sprintf(format, b.argNum))
	b.args = append(b.args, arg)
	b.argNum++
}

func (b *whereBuilder) where() string {
	if len(b.conditions) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(b.conditions, " AND ")
}
