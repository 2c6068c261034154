package catalogue

import (
	"github.com/bigkaa/goartstore/tape-catalogue/internal/domain/model"
	"github.com/bigkaa/goartstore/tape-catalogue/internal/repository"
)

// ArchiveFileItor — ленивый итератор по архивным файлам.
// Держит подключение из пула; Close обязателен, повторный вызов безопасен.
// Подключение освобождается и при исчерпании итератора.
//
//	it, err := c.ArchiveFiles().GetArchiveFilesItor(ctx, criteria)
//	if err != nil { ... }
//	defer it.Close()
//	for it.Next() { f := it.ArchiveFile() }
//	if err := it.Err(); err != nil { ... }
type ArchiveFileItor struct {
	rows    *repository.ArchiveFileRows
	release func()
	closed  bool
}

// Next переходит к следующему архивному файлу.
func (it *ArchiveFileItor) Next() bool {
	if it.closed {
		return false
	}
	if it.rows.Next() {
		return true
	}
	it.Close()
	return false
}

// ArchiveFile возвращает текущий архивный файл со всеми копиями.
func (it *ArchiveFileItor) ArchiveFile() *model.ArchiveFile { return it.rows.ArchiveFile() }

// Err возвращает ошибку итерации.
func (it *ArchiveFileItor) Err() error { return it.rows.Err() }

// Close закрывает курсор и возвращает подключение в пул.
func (it *ArchiveFileItor) Close() {
	if it.closed {
		return
	}
	it.closed = true
	it.rows.Close()
	it.release()
}

// FileRecycleLogItor — ленивый итератор по журналу удалённых копий.
// Правила использования те же, что у ArchiveFileItor.
type FileRecycleLogItor struct {
	rows    *repository.FileRecycleLogRows
	release func()
	closed  bool
}

// Next переходит к следующей записи журнала.
func (it *FileRecycleLogItor) Next() bool {
	if it.closed {
		return false
	}
	if it.rows.Next() {
		return true
	}
	it.Close()
	return false
}

// Entry возвращает текущую запись журнала.
func (it *FileRecycleLogItor) Entry() *model.FileRecycleLog { return it.rows.Entry() }

// Err возвращает ошибку итерации.
func (it *FileRecycleLogItor) Err() error { return it.rows.Err() }

// Close закрывает курсор и возвращает подключение в пул.
func (it *FileRecycleLogItor) Close() {
	if it.closed {
		return
	}
	it.closed = true
	it.rows.Close()
	it.release()
}
