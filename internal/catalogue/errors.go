package catalogue

import (
	"errors"
	"fmt"
)

// ErrUserError — класс ошибок, вызванных некорректным запросом или
// нарушенным бизнес-условием. Такие ошибки возвращаются вызывающему
// без изменений и не повторяются.
var ErrUserError = errors.New("ошибка пользователя")

func userError(msg string) error {
	return fmt.Errorf("%w: %s", ErrUserError, msg)
}

// Пользовательские ошибки каталога.
var (
	ErrMissingValue                  = userError("не задано обязательное значение")
	ErrInvalidVID                    = userError("недопустимый VID")
	ErrNonExistentTape               = userError("лента не существует")
	ErrNonEmptyTape                  = userError("лента не пуста")
	ErrNonExistentTapeState          = userError("недопустимое состояние ленты")
	ErrEmptyReasonWhenStateNotActive = userError("для состояния, отличного от ACTIVE, требуется причина")
	ErrTapeAlreadyExists             = userError("лента уже существует")
	ErrNonExistentLogicalLibrary     = userError("логическая библиотека не существует")
	ErrNonExistentTapePool           = userError("пул лент не существует")
	ErrNonExistentMediaType          = userError("тип носителя не существует")
	ErrNonExistentVO                 = userError("виртуальная организация не существует")
	ErrNonExistentStorageClass       = userError("класс хранения не существует")
	ErrNonExistentMountPolicy        = userError("политика монтирования не существует")
	ErrTapeNotReclaimable            = userError("лента в состоянии, не допускающем reclaim")
	ErrTapeNotFull                   = userError("лента не заполнена")
	ErrTapeHasLiveFiles              = userError("на ленте есть действующие копии файлов")
	ErrEmptySearchCriterion          = userError("критерий поиска задан пустым")
	ErrNoMountPolicy                 = userError("не найдена политика монтирования")
	ErrFileUnavailable               = userError("файл недоступен для чтения")
	ErrNonExistentArchiveFile        = userError("архивный файл не существует")
	ErrNonExistentTapeFile           = userError("копия файла не существует")
	ErrDiskInstanceMismatch          = userError("дисковый инстанс не совпадает")
	ErrDeleteRequestMismatch         = userError("запрос удаления не соответствует каталогу")
	ErrNoRecycledFile                = userError("в журнале удалённых копий нет подходящей записи")
	ErrAmbiguousRecycledFile         = userError("критериям соответствует несколько записей журнала")
	ErrCopyAlreadyExists             = userError("копия с таким номером уже существует")
	ErrLastCopy                      = userError("нельзя удалить последнюю копию файла")
	ErrAlreadyExists                 = userError("запись уже существует")
	ErrInvalidValue                  = userError("недопустимое значение")
	ErrNonExistentArchiveRoute       = userError("маршрут архивации не существует")
	ErrNoArchiveRoutes               = userError("у класса хранения нет маршрутов архивации")
	ErrArchiveRoutesIncomplete       = userError("число маршрутов архивации не совпадает с числом копий")
)

// Внутренние ошибки: нарушение согласованности данных или ошибка программы.
var (
	ErrFSeqMismatch         = errors.New("нарушена последовательность fSeq")
	ErrMultipleVIDsInBatch  = errors.New("пачка записанных файлов относится к нескольким лентам")
	ErrDuplicateArchiveFile = errors.New("архивный файл повторяется в пачке")
	ErrArchiveFileMismatch  = errors.New("записанный файл не совпадает с каталогом")
	ErrArchiveFileVanished  = errors.New("архивный файл исчез до переноса в журнал")
	ErrNotAllTapesFound     = errors.New("найдены не все ленты")
	ErrTapeVanished         = errors.New("лента не найдена")
)

// IsUserError сообщает, относится ли ошибка к классу пользовательских.
func IsUserError(err error) bool {
	return errors.Is(err, ErrUserError)
}

// IsNotFound сообщает, указывает ли ошибка на отсутствующую сущность.
func IsNotFound(err error) bool {
	for _, target := range []error{
		ErrNonExistentTape, ErrNonExistentLogicalLibrary, ErrNonExistentTapePool,
		ErrNonExistentMediaType, ErrNonExistentVO, ErrNonExistentStorageClass,
		ErrNonExistentMountPolicy, ErrNonExistentArchiveFile, ErrNonExistentTapeFile,
		ErrNoRecycledFile, ErrNonExistentArchiveRoute,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsConflict сообщает, указывает ли ошибка на конфликт с текущим состоянием каталога.
func IsConflict(err error) bool {
	for _, target := range []error{
		ErrTapeAlreadyExists, ErrNonEmptyTape, ErrCopyAlreadyExists, ErrAlreadyExists,
		ErrTapeHasLiveFiles, ErrLastCopy,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// wrapInternal добавляет имя операции к внутренней ошибке.
// Пользовательские ошибки возвращаются без изменений.
func wrapInternal(op string, err error) error {
	if err == nil || IsUserError(err) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
