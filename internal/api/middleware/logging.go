// logging.go — журнал HTTP-запросов Deckstore через slog.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// statusRecorder запоминает код и объём ответа для журнала и метрик.
type statusRecorder struct {
	http.ResponseWriter
	statusCode  int
	written     int64
	wroteHeader bool
}

func newResponseWriter(w http.ResponseWriter) *statusRecorder {
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

// Unwrap нужен http.ResponseController (Flush при отдаче файлов).
func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

type requestLogKey struct{}

// requestLog — данные запроса, которые заполняют внутренние middleware.
type requestLog struct {
	userID string
}

// noteUser сообщает журналу запроса идентификатор пользователя.
// Вне RequestLogger ничего не делает.
func noteUser(ctx context.Context, userID string) {
	if rl, ok := ctx.Value(requestLogKey{}).(*requestLog); ok {
		rl.userID = userID
	}
}

// serviceRoutes — служебные маршруты, которые пишутся на уровне DEBUG,
// чтобы опросы kubelet и Prometheus не забивали журнал.
var serviceRoutes = []string{"/health/", "/metrics"}

// statusLevel выбирает уровень записи: 5xx — ERROR, 4xx — WARN.
func statusLevel(code int, path string) slog.Level {
	switch {
	case code >= 500:
		return slog.LevelError
	case code >= 400:
		return slog.LevelWarn
	}
	for _, p := range serviceRoutes {
		if strings.HasPrefix(path, p) {
			return slog.LevelDebug
		}
	}
	return slog.LevelInfo
}

// RequestLogger возвращает middleware, пишущий одну запись на запрос.
// В записи шаблон маршрута chi (route), фактический путь, размер тела
// загрузки и пользователь, если запрос прошёл JWT-аутентификацию.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newResponseWriter(w)
			rl := &requestLog{}

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestLogKey{}, rl)))

			level := statusLevel(rec.statusCode, r.URL.Path)
			if !logger.Enabled(r.Context(), level) {
				return
			}

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("route", routePattern(r)),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes_out", rec.written),
			}
			if r.ContentLength > 0 {
				attrs = append(attrs, slog.Int64("bytes_in", r.ContentLength))
			}
			if rl.userID != "" {
				attrs = append(attrs, slog.String("user_id", rl.userID))
			}
			attrs = append(attrs, slog.String("remote_addr", r.RemoteAddr))

			logger.LogAttrs(r.Context(), level, "HTTP запрос", attrs...)
		})
	}
}
