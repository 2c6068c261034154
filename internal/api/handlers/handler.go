// handler.go — основной обработчик HTTP API каталога.
// Декодирует запросы, вызывает операции каталога и сериализует ответы.
package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/goartstore/tape-catalogue/internal/api/errors"
	"github.com/bigkaa/goartstore/tape-catalogue/internal/catalogue"
)

// maxBodyBytes — ограничение размера тела запроса (пачка записанных файлов).
const maxBodyBytes = 16 << 20

// streamFlushEvery — через сколько элементов сбрасывать потоковый ответ клиенту.
const streamFlushEvery = 500

// APIHandler — обработчик API каталога.
type APIHandler struct {
	cat    *catalogue.Catalogue
	logger *slog.Logger
}

// NewAPIHandler создаёт обработчик API.
func NewAPIHandler(cat *catalogue.Catalogue, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		cat:    cat,
		logger: logger.With(slog.String("component", "api_handler")),
	}
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON читает тело запроса в dst. Неизвестные поля — ошибка.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			apierrors.ValidationError(w, "Пустое тело запроса")
			return false
		}
		apierrors.ValidationError(w, "Некорректный JSON в теле запроса: "+err.Error())
		return false
	}
	return true
}

// fail переводит ошибку операции каталога в HTTP-ответ.
func (h *APIHandler) fail(w http.ResponseWriter, op string, err error) {
	apierrors.WriteCatalogueError(w, h.logger, op, err)
}

// archiveFileIDParam разбирает {id} из пути.
func archiveFileIDParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный идентификатор архивного файла: %q", raw))
		return 0, false
	}
	return id, true
}

// queryParam — привязка одного необязательного query-параметра.
type queryParam struct {
	name string
	dest any
}

// bindQuery привязывает query-параметры в стиле form (explode) к указателям.
// Отсутствующие параметры оставляют nil.
func bindQuery(w http.ResponseWriter, r *http.Request, params ...queryParam) bool {
	query := r.URL.Query()
	for _, p := range params {
		if err := runtime.BindQueryParameter("form", true, false, p.name, query, p.dest); err != nil {
			apierrors.ValidationError(w, fmt.Sprintf("Некорректный параметр %s: %v", p.name, err))
			return false
		}
	}
	return true
}

// streamJSONArray выдаёт элементы курсора JSON-массивом, не накапливая их
// в памяти. Ошибка после начала выдачи только логируется: статус уже отправлен.
func streamJSONArray[E any](h *APIHandler, w http.ResponseWriter, op string,
	next func() bool, item func() E, iterErr func() error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	_, _ = io.WriteString(w, "[")
	n := 0
	for next() {
		if n > 0 {
			_, _ = io.WriteString(w, ",")
		}
		if err := enc.Encode(item()); err != nil {
			h.logger.Warn("Клиент прервал потоковую выдачу",
				slog.String("operation", op),
				slog.String("error", err.Error()),
			)
			return
		}
		n++
		if flusher != nil && n%streamFlushEvery == 0 {
			flusher.Flush()
		}
	}
	if err := iterErr(); err != nil {
		h.logger.Error("Ошибка потоковой выдачи",
			slog.String("operation", op),
			slog.Int("sent", n),
			slog.String("error", err.Error()),
		)
		return
	}
	_, _ = io.WriteString(w, "]")
}
