package httpapi

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyTTL       = 24 * time.Hour
	maxIdempotentBody    = 1 << 20 // 1 MiB
)

// recordingResponseWriter буферизует ответ, чтобы его можно было закешировать
// по idempotency-key.
type recordingResponseWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *recordingResponseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *recordingResponseWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	w.body.Write(p)
	return w.ResponseWriter.Write(p)
}

// IdempotencyMiddleware защищает мутирующие запросы от повторов.
// Ключ обязателен; повторный запрос с тем же ключом и телом получает
// закешированный ответ, конкурирующий — 409.
func IdempotencyMiddleware(repo domain.IdempotencyRepository, logger *log.Entry) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.WithField("component", "idempotency-middleware")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if repo == nil {
				next.ServeHTTP(w, r)
				return
			}

			key := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
			if key == "" {
				writeError(w, http.StatusBadRequest, "idempotency-key header is required")
				return
			}

			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "missing auth claims")
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotentBody))
			if err != nil {
				writeError(w, http.StatusBadRequest, "failed to read request body")
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			reqHash := buildRequestHash(claims.UserID, r.Method, r.URL.Path, body)

			record, err := repo.CreateProcessing(key, reqHash, time.Now().UTC().Add(idempotencyTTL))
			if err != nil {
				replayIdempotency(w, err, record, logger)
				return
			}

			rec := &recordingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}

			var markErr error
			if status < http.StatusBadRequest {
				markErr = repo.MarkDone(key, rec.body.Bytes(), status)
			} else {
				markErr = repo.MarkFailed(key, rec.body.Bytes(), status)
			}
			if markErr != nil {
				logger.WithError(markErr).WithField("idempotency_key", key).Warn("failed to cache idempotent response")
			}
		})
	}
}

func replayIdempotency(w http.ResponseWriter, createErr error, record domain.IdempotencyRecord, logger *log.Entry) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		writeError(w, http.StatusConflict, "idempotency key is already used with different request payload")
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch record.Status {
		case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
			if len(record.ResponseBody) == 0 && record.HTTPStatus == 0 {
				writeError(w, http.StatusInternalServerError, "idempotency cache is empty")
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(record.HTTPStatus)
			_, _ = w.Write(record.ResponseBody)
		case domain.IdempotencyStatusProcessing:
			writeError(w, http.StatusConflict, "request with the same idempotency key is already processing")
		default:
			writeError(w, http.StatusInternalServerError, "unknown idempotency record status")
		}
	default:
		logger.WithError(createErr).Warn("failed to create idempotency record")
		writeError(w, http.StatusInternalServerError, "failed to initialize idempotency request")
	}
}

// buildRequestHash включает идентификатор пользователя: чужой
// idempotency-key с тем же телом не должен воспроизводить чужой ответ.
func buildRequestHash(userID, method, path string, body []byte) string {
	payload := make([]byte, 0, len(userID)+len(method)+len(path)+len(body)+3)
	payload = append(payload, userID...)
	payload = append(payload, ':')
	payload = append(payload, method...)
	payload = append(payload, ':')
	payload = append(payload, path...)
	payload = append(payload, ':')
	payload = append(payload, body...)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
