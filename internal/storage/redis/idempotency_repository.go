package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

const (
	idempotencyKeyPrefix = "checkout:idem:"
	opTimeout            = 5 * time.Second
)

// idempotencyRepositoryRedis хранит idempotency-записи в Redis.
// TTL записи делегируется самому Redis, поэтому DeleteExpired — no-op.
type idempotencyRepositoryRedis struct {
	client *redis.Client
}

// NewIdempotencyRepository создаёт Redis-реализацию IdempotencyRepository.
func NewIdempotencyRepository(client *redis.Client) domain.IdempotencyRepository {
	return &idempotencyRepositoryRedis{client: client}
}

// idempotencyPayload — сериализуемое представление записи.
type idempotencyPayload struct {
	Key          string    `json:"key"`
	RequestHash  string    `json:"request_hash"`
	ResponseBody []byte    `json:"response_body,omitempty"`
	HTTPStatus   int       `json:"http_status"`
	Status       string    `json:"status"`
	TTLAt        time.Time `json:"ttl_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (r *idempotencyRepositoryRedis) CreateProcessing(key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	requestHash = strings.TrimSpace(requestHash)

	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}
	if requestHash == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	now := time.Now().UTC()
	if ttlAt.IsZero() {
		ttlAt = now.Add(24 * time.Hour)
	}

	record := domain.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      domain.IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	data, err := marshalRecord(record)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	// SETNX решает гонку двух конкурирующих запросов с одним ключом:
	// выигрывает ровно один.
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, data, time.Until(ttlAt)).Result()
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("setnx idempotency record: %w", err)
	}
	if !ok {
		existing, getErr := r.Get(key)
		if getErr != nil {
			return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
		}
		if existing.RequestHash != requestHash {
			return existing, domain.ErrIdempotencyHashMismatch
		}
		return existing, domain.ErrIdempotencyKeyAlreadyExists
	}

	return record, nil
}

func (r *idempotencyRepositoryRedis) Get(key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, idempotencyKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
		}
		return domain.IdempotencyRecord{}, fmt.Errorf("get idempotency record: %w", err)
	}

	return unmarshalRecord(data)
}

func (r *idempotencyRepositoryRedis) MarkDone(key string, responseBody []byte, httpStatus int) error {
	return r.markStatus(key, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

func (r *idempotencyRepositoryRedis) MarkFailed(key string, responseBody []byte, httpStatus int) error {
	return r.markStatus(key, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

// DeleteExpired не нужен: Redis удаляет ключи по TTL самостоятельно.
func (r *idempotencyRepositoryRedis) DeleteExpired(before time.Time, limit int) (int, error) {
	return 0, nil
}

func (r *idempotencyRepositoryRedis) markStatus(key string, status domain.IdempotencyStatus, responseBody []byte, httpStatus int) error {
	record, err := r.Get(key)
	if err != nil {
		return err
	}

	record.Status = status
	record.ResponseBody = append([]byte(nil), responseBody...)
	record.HTTPStatus = httpStatus
	record.UpdatedAt = time.Now().UTC()

	data, err := marshalRecord(record)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	// KEEPTTL сохраняет исходный срок жизни ключа.
	if err := r.client.Set(ctx, idempotencyKeyPrefix+key, data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("update idempotency record: %w", err)
	}
	return nil
}

func marshalRecord(record domain.IdempotencyRecord) ([]byte, error) {
	data, err := json.Marshal(idempotencyPayload{
		Key:          record.Key,
		RequestHash:  record.RequestHash,
		ResponseBody: record.ResponseBody,
		HTTPStatus:   record.HTTPStatus,
		Status:       string(record.Status),
		TTLAt:        record.TTLAt,
		CreatedAt:    record.CreatedAt,
		UpdatedAt:    record.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal idempotency record: %w", err)
	}
	return data, nil
}

func unmarshalRecord(data []byte) (domain.IdempotencyRecord, error) {
	var payload idempotencyPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("unmarshal idempotency record: %w", err)
	}

	record := domain.IdempotencyRecord{
		Key:          payload.Key,
		RequestHash:  payload.RequestHash,
		ResponseBody: payload.ResponseBody,
		HTTPStatus:   payload.HTTPStatus,
		Status:       domain.IdempotencyStatus(payload.Status),
		TTLAt:        payload.TTLAt,
		CreatedAt:    payload.CreatedAt,
		UpdatedAt:    payload.UpdatedAt,
	}
	if !record.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("invalid idempotency status %q", payload.Status)
	}
	return record, nil
}

var _ domain.IdempotencyRepository = (*idempotencyRepositoryRedis)(nil)
