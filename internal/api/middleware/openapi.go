// openapi.go — валидация входящих запросов по OpenAPI-контракту (kin-openapi).
// Запросы к путям, которых нет в контракте, пропускаются без проверки:
// на них ответит роутер (404/405).
package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"

	apierrors "github.com/bigkaa/goartstore/tape-catalogue/internal/api/errors"
)

// OpenAPIValidator возвращает middleware, проверяющий параметры и тело
// запроса по контракту. Аутентификация здесь не проверяется, за неё
// отвечает JWT middleware.
func OpenAPIValidator(doc *openapi3.T, logger *slog.Logger) (func(http.Handler) http.Handler, error) {
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("ошибка построения роутера OpenAPI: %w", err)
	}
	opts := &openapi3filter.Options{
		AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, pathParams, err := router.FindRoute(r)
			if err != nil {
				if !errors.Is(err, routers.ErrPathNotFound) && !errors.Is(err, routers.ErrMethodNotAllowed) {
					logger.Warn("Ошибка сопоставления запроса с контрактом",
						slog.String("path", r.URL.Path),
						slog.String("error", err.Error()),
					)
				}
				next.ServeHTTP(w, r)
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options:    opts,
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				apierrors.ValidationError(w, validationMessage(err))
				return
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}

// validationMessage формирует краткое сообщение без дампа схемы.
func validationMessage(err error) string {
	var reqErr *openapi3filter.RequestError
	if !errors.As(err, &reqErr) {
		return err.Error()
	}

	var b strings.Builder
	switch {
	case reqErr.Parameter != nil:
		fmt.Fprintf(&b, "Параметр %s (%s)", reqErr.Parameter.Name, reqErr.Parameter.In)
	case reqErr.RequestBody != nil:
		b.WriteString("Тело запроса")
	default:
		b.WriteString("Запрос")
	}

	var schemaErr *openapi3.SchemaError
	switch {
	case errors.As(reqErr.Err, &schemaErr):
		if ptr := schemaErr.JSONPointer(); len(ptr) > 0 {
			fmt.Fprintf(&b, ", поле %s", strings.Join(ptr, "."))
		}
		fmt.Fprintf(&b, ": %s", schemaErr.Reason)
	case reqErr.Err != nil:
		fmt.Fprintf(&b, ": %v", reqErr.Err)
	default:
		fmt.Fprintf(&b, ": %s", reqErr.Reason)
	}
	return b.String()
}
