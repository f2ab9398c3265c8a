package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/ledger/internal/accounting/money"
)

// CachedValidator memoizes validation results in Redis. Results are keyed by
// posting date because validity windows are date dependent. Errors are never
// cached, and a Redis outage degrades to direct calls.
type CachedValidator struct {
	next   Validator
	redis  *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

// NewCachedValidator wraps next with a Redis cache.
func NewCachedValidator(next Validator, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedValidator {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedValidator{next: next, redis: client, ttl: ttl, logger: logger}
}

func cacheKey(chart string, company money.CompanyCode, account money.AccountCode, postingDate time.Time) string {
	return fmt.Sprintf("coa:validation:%s:%s:%s:%s", chart, company, account, formatDate(postingDate))
}

// ValidateAccount implements Validator.
func (c *CachedValidator) ValidateAccount(ctx context.Context, chart string, account money.AccountCode, company money.CompanyCode, postingDate time.Time) (ValidationResult, error) {
	key := cacheKey(chart, company, account, postingDate)
	if cached, ok := c.get(ctx, key); ok {
		return cached, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		res, err := c.next.ValidateAccount(ctx, chart, account, company, postingDate)
		if err != nil {
			return ValidationResult{}, err
		}
		c.set(ctx, map[string]ValidationResult{key: res})
		return res, nil
	})
	if err != nil {
		return ValidationResult{}, err
	}
	return v.(ValidationResult), nil
}

// BatchValidateAccounts implements Validator. Only cache misses reach next.
func (c *CachedValidator) BatchValidateAccounts(ctx context.Context, chart string, accounts []money.AccountCode, company money.CompanyCode, postingDate time.Time) ([]ValidationResult, error) {
	if len(accounts) == 0 {
		return nil, nil
	}
	keys := make([]string, len(accounts))
	for i, a := range accounts {
		keys[i] = cacheKey(chart, company, a, postingDate)
	}
	results := make([]ValidationResult, len(accounts))
	found := make([]bool, len(accounts))
	var misses []money.AccountCode
	if vals, err := c.redis.MGet(ctx, keys...).Result(); err == nil {
		for i, raw := range vals {
			s, ok := raw.(string)
			if !ok {
				continue
			}
			if err := json.Unmarshal([]byte(s), &results[i]); err == nil {
				found[i] = true
			}
		}
	} else {
		c.logger.Warn("coa cache read failed", slog.Any("error", err))
	}
	for i, a := range accounts {
		if !found[i] {
			misses = append(misses, a)
		}
	}
	if len(misses) == 0 {
		return results, nil
	}
	flightKey := "batch:" + chart + ":" + company.String() + ":" + formatDate(postingDate) + ":" + joinCodes(misses)
	v, err, _ := c.group.Do(flightKey, func() (any, error) {
		return c.next.BatchValidateAccounts(ctx, chart, misses, company, postingDate)
	})
	if err != nil {
		return nil, err
	}
	fetched := v.([]ValidationResult)
	byCode := make(map[money.AccountCode]ValidationResult, len(fetched))
	toCache := make(map[string]ValidationResult, len(fetched))
	for _, r := range fetched {
		byCode[r.AccountCode] = r
		toCache[cacheKey(chart, company, r.AccountCode, postingDate)] = r
	}
	for i, a := range accounts {
		if !found[i] {
			r, ok := byCode[a]
			if !ok {
				r = ValidationResult{AccountCode: a}.normalize()
			}
			results[i] = r
		}
	}
	c.set(ctx, toCache)
	return results, nil
}

func (c *CachedValidator) get(ctx context.Context, key string) (ValidationResult, bool) {
	raw, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("coa cache read failed", slog.String("key", key), slog.Any("error", err))
		}
		return ValidationResult{}, false
	}
	var res ValidationResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return ValidationResult{}, false
	}
	return res, true
}

func (c *CachedValidator) set(ctx context.Context, entries map[string]ValidationResult) {
	if len(entries) == 0 {
		return
	}
	pipe := c.redis.Pipeline()
	for key, res := range entries {
		payload, err := json.Marshal(res)
		if err != nil {
			continue
		}
		pipe.Set(ctx, key, payload, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("coa cache write failed", slog.Any("error", err))
	}
}

func joinCodes(codes []money.AccountCode) string {
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = c.String()
	}
	return strings.Join(parts, ",")
}
