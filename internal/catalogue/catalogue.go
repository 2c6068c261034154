// Пакет catalogue — каталог метаданных ленточного архива: жизненный цикл
// лент, архивные файлы и их копии на лентах, журнал удалённых копий
// (file recycle log), справочники и политики монтирования.
//
// Каталог не хранит состояния между вызовами, кроме кэша политик
// монтирования. Многошаговые операции выполняются в одной транзакции.
package catalogue

import (
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/goartstore/tape-catalogue/internal/domain/model"
	"github.com/bigkaa/goartstore/tape-catalogue/internal/repository"
)

// Значения кэша политик монтирования по умолчанию.
const (
	DefaultMountPolicyCacheSize = 1000
	DefaultMountPolicyCacheTTL  = time.Minute
)

// deps — общие зависимости подкаталогов.
type deps struct {
	pool     *pgxpool.Pool
	txRunner *repository.TxRunner
	dialect  repository.Dialect
	logger   *slog.Logger
	now      func() time.Time
	// system — от чьего имени выполняются служебные изменения
	system model.SecurityIdentity
}

func (d *deps) entryLog(identity model.SecurityIdentity) model.EntryLog {
	return model.NewEntryLog(identity, d.now())
}

// Option — параметр создания каталога.
type Option func(*options)

type options struct {
	dialect   repository.Dialect
	cacheSize int
	cacheTTL  time.Duration
	now       func() time.Time
}

// WithDialect задаёт диалект СУБД (по умолчанию PostgreSQL).
func WithDialect(d repository.Dialect) Option {
	return func(o *options) { o.dialect = d }
}

// WithMountPolicyCache задаёт размер и TTL кэша политик монтирования.
func WithMountPolicyCache(size int, ttl time.Duration) Option {
	return func(o *options) {
		o.cacheSize = size
		o.cacheTTL = ttl
	}
}

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Catalogue — точка сборки подкаталогов. Возвращает конкретные типы,
// общий пул подключений передаётся каждому подкаталогу.
type Catalogue struct {
	tapes        *TapeCatalogue
	archiveFiles *ArchiveFileCatalogue
	tapeFiles    *TapeFileCatalogue
	recycleLog   *FileRecycleLogCatalogue
	reference    *ReferenceCatalogue
}

// New создаёт каталог поверх пула подключений.
func New(pool *pgxpool.Pool, logger *slog.Logger, opts ...Option) *Catalogue {
	o := options{
		dialect:   repository.PostgresDialect{},
		cacheSize: DefaultMountPolicyCacheSize,
		cacheTTL:  DefaultMountPolicyCacheTTL,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&o)
	}

	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}

	d := deps{
		pool:     pool,
		txRunner: repository.NewTxRunner(pool),
		dialect:  o.dialect,
		logger:   logger,
		now:      o.now,
		system:   model.SecurityIdentity{Username: "tape-catalogue", Host: host},
	}
	sub := func(component string) deps {
		c := d
		c.logger = logger.With(slog.String("component", component))
		return c
	}

	policies := newMountPolicyResolver(o.cacheSize, o.cacheTTL, sub("mount_policy"))

	recycleLog := &FileRecycleLogCatalogue{deps: sub("file_recycle_log")}
	tapeFiles := &TapeFileCatalogue{deps: sub("tape_file_catalogue"), recycleLog: recycleLog, policies: policies}
	c := &Catalogue{
		tapes:        &TapeCatalogue{deps: sub("tape_catalogue"), recycleLog: recycleLog},
		archiveFiles: &ArchiveFileCatalogue{deps: sub("archive_file_catalogue"), recycleLog: recycleLog, tapeFiles: tapeFiles, policies: policies},
		tapeFiles:    tapeFiles,
		recycleLog:   recycleLog,
		reference:    &ReferenceCatalogue{deps: sub("reference_catalogue"), policies: policies},
	}

	logger.Info("Каталог инициализирован",
		slog.String("dialect", o.dialect.Name()),
		slog.Int("mount_policy_cache_size", o.cacheSize),
		slog.String("mount_policy_cache_ttl", o.cacheTTL.String()),
	)
	return c
}

// Tapes возвращает каталог лент.
func (c *Catalogue) Tapes() *TapeCatalogue { return c.tapes }

// ArchiveFiles возвращает каталог архивных файлов.
func (c *Catalogue) ArchiveFiles() *ArchiveFileCatalogue { return c.archiveFiles }

// TapeFiles возвращает каталог копий на лентах.
func (c *Catalogue) TapeFiles() *TapeFileCatalogue { return c.tapeFiles }

// FileRecycleLog возвращает каталог журнала удалённых копий.
func (c *Catalogue) FileRecycleLog() *FileRecycleLogCatalogue { return c.recycleLog }

// Reference возвращает каталог справочников.
func (c *Catalogue) Reference() *ReferenceCatalogue { return c.reference }
