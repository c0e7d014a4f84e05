package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/soaringjerry/surveyhub/internal/models"
	"github.com/soaringjerry/surveyhub/internal/services"
)

// CatalogCache is a read-through Redis cache in front of the question
// catalog. Redis failures degrade to direct store reads.
type CatalogCache struct {
	client *redis.Client
	next   services.CatalogReader
	ttl    time.Duration
	log    *zap.SugaredLogger
}

var (
	_ services.CatalogReader      = (*CatalogCache)(nil)
	_ services.CatalogInvalidator = (*CatalogCache)(nil)
)

func NewCatalogCache(client *redis.Client, next services.CatalogReader, ttl time.Duration, log *zap.SugaredLogger) *CatalogCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &CatalogCache{client: client, next: next, ttl: ttl, log: log.Named("catalog_cache")}
}

func surveyKey(id int64) string    { return fmt.Sprintf("survey:%d", id) }
func questionsKey(id int64) string { return fmt.Sprintf("survey:%d:questions", id) }
func optionsKey(id int64) string   { return fmt.Sprintf("question:%d:options", id) }

func (c *CatalogCache) GetSurvey(ctx context.Context, id int64) (*models.Survey, error) {
	var sv models.Survey
	if c.get(ctx, surveyKey(id), &sv) {
		return &sv, nil
	}
	out, err := c.next.GetSurvey(ctx, id)
	if err != nil || out == nil {
		return out, err
	}
	c.set(ctx, surveyKey(id), out)
	return out, nil
}

func (c *CatalogCache) QuestionsOf(ctx context.Context, surveyID int64) ([]*models.Question, error) {
	var qs []*models.Question
	if c.get(ctx, questionsKey(surveyID), &qs) {
		return qs, nil
	}
	out, err := c.next.QuestionsOf(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	c.set(ctx, questionsKey(surveyID), out)
	return out, nil
}

func (c *CatalogCache) OptionsOf(ctx context.Context, questionID int64) ([]*models.Option, error) {
	var opts []*models.Option
	if c.get(ctx, optionsKey(questionID), &opts) {
		return opts, nil
	}
	out, err := c.next.OptionsOf(ctx, questionID)
	if err != nil {
		return nil, err
	}
	c.set(ctx, optionsKey(questionID), out)
	return out, nil
}

// InvalidateSurvey drops the survey and its question list. Failures are
// logged only; the store write has already committed and entries expire with
// the TTL.
func (c *CatalogCache) InvalidateSurvey(ctx context.Context, surveyID int64) error {
	c.del(ctx, surveyKey(surveyID), questionsKey(surveyID))
	return nil
}

func (c *CatalogCache) InvalidateQuestion(ctx context.Context, questionID int64) error {
	c.del(ctx, optionsKey(questionID))
	return nil
}

func (c *CatalogCache) del(ctx context.Context, keys ...string) {
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.log.Warnw("cache invalidate failed", "keys", keys, "error", err)
	}
}

// get reports whether key was found and decoded into dst.
func (c *CatalogCache) get(ctx context.Context, key string, dst any) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		c.log.Warnw("cache read failed", "key", key, "error", err)
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		c.log.Warnw("cache entry corrupt", "key", key, "error", err)
		_ = c.client.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *CatalogCache) set(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.log.Warnw("cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.Warnw("cache write failed", "key", key, "error", err)
	}
}
