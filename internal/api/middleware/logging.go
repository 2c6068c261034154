// logging.go — журнал HTTP-запросов каталога через slog.
// Кроме статуса и длительности пишет шаблон маршрута chi, объекты каталога
// из пути (VID, ID архивного файла, номер копии, имя справочника)
// и пользователя, от имени которого выполнена операция.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// statusRecorder запоминает статус-код и размер ответа.
type statusRecorder struct {
	http.ResponseWriter
	statusCode  int
	written     int64
	wroteHeader bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Flush нужен потоковой выдаче архивных файлов и журнала.
func (rw *statusRecorder) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// catalogueParams — параметры пути и имена атрибутов журнала для них.
var catalogueParams = map[string]string{
	"vid":           "vid",
	"id":            "archive_file_id",
	"copy_nb":       "copy_nb",
	"storage_class": "storage_class",
	"name":          "name",
}

// quietPrefixes — служебные пути, успешные запросы к которым пишутся на DEBUG.
var quietPrefixes = []string{"/health/", "/metrics"}

// requestActor заполняется аутентификацией во вложенном контексте;
// журнал читает его после ответа.
type requestActor struct {
	username string
	role     string
}

type actorKey struct{}

// noteActor сохраняет пользователя запроса для журнала.
func noteActor(ctx context.Context, claims *AuthClaims) {
	if a, ok := ctx.Value(actorKey{}).(*requestActor); ok && claims != nil {
		a.username = claims.Username()
		a.role = claims.Role
	}
}

// RequestLogger возвращает middleware, логирующий каждый HTTP-запрос.
// Уровень: ERROR для 5xx, WARN для 4xx, INFO для остальных;
// успешные запросы к служебным путям — DEBUG.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			actor := &requestActor{}
			rec := newStatusRecorder(w)

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), actorKey{}, actor)))

			level := requestLevel(r.URL.Path, rec.statusCode)
			if !logger.Enabled(r.Context(), level) {
				return
			}

			attrs := make([]slog.Attr, 0, 12)
			attrs = append(attrs,
				slog.String("method", r.Method),
				slog.String("route", routePattern(r)),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", rec.written),
				slog.String("request_id", RequestIDFromContext(r.Context())),
			)
			attrs = append(attrs, catalogueAttrs(r)...)
			if actor.username != "" {
				attrs = append(attrs,
					slog.String("user", actor.username),
					slog.String("role", actor.role),
				)
			} else {
				attrs = append(attrs, slog.String("remote_addr", r.RemoteAddr))
			}

			logger.LogAttrs(r.Context(), level, "HTTP запрос", attrs...)
		})
	}
}

func requestLevel(path string, status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	}
	for _, p := range quietPrefixes {
		if strings.HasPrefix(path, p) {
			return slog.LevelDebug
		}
	}
	return slog.LevelInfo
}

// catalogueAttrs возвращает объекты каталога из параметров маршрута.
func catalogueAttrs(r *http.Request) []slog.Attr {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return nil
	}
	var attrs []slog.Attr
	for i, key := range rctx.URLParams.Keys {
		name, ok := catalogueParams[key]
		if !ok || i >= len(rctx.URLParams.Values) {
			continue
		}
		attrs = append(attrs, slog.String(name, rctx.URLParams.Values[i]))
	}
	return attrs
}
