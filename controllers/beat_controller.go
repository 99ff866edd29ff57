package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Lay199xxx/BangerBaby.com/models"
	"github.com/Lay199xxx/BangerBaby.com/repository"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	beatListCacheKey      = "beats:all"
	beatDetailCachePrefix = "beat:detail:"
	beatCacheTTL          = 5 * time.Minute
)

type BeatController struct {
	Beats  repository.BeatRepository
	Redis  *redis.Client
	Logger *zap.Logger
}

// GetBeats returns the full catalog, cache-first when Redis is configured.
func (bc *BeatController) GetBeats(c *gin.Context) {
	ctx := c.Request.Context()

	if cached, ok := bc.cachedJSON(ctx, beatListCacheKey); ok {
		c.Data(http.StatusOK, "application/json", cached)
		return
	}

	beats, err := bc.Beats.FindAll(ctx)
	if err != nil {
		bc.Logger.Error("Error fetching beats from database", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error fetching beats from database"})
		return
	}
	if beats == nil {
		beats = []models.Beat{}
	}

	bc.cacheJSONAsync(beatListCacheKey, beats)
	c.JSON(http.StatusOK, beats)
}

// GetBeat returns a single beat by its opaque identifier.
func (bc *BeatController) GetBeat(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	cacheKey := beatDetailCachePrefix + id
	if cached, ok := bc.cachedJSON(ctx, cacheKey); ok {
		c.Data(http.StatusOK, "application/json", cached)
		return
	}

	beat, err := bc.Beats.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Beat not found"})
			return
		}
		bc.Logger.Error("Error fetching single beat", zap.String("beat_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error fetching beat"})
		return
	}

	bc.cacheJSONAsync(cacheKey, beat)
	c.JSON(http.StatusOK, beat)
}

// cachedJSON reads a cached response body. Any Redis error is treated as a
// miss so the catalog stays readable when the cache is down.
func (bc *BeatController) cachedJSON(ctx context.Context, key string) ([]byte, bool) {
	if bc.Redis == nil {
		return nil, false
	}
	data, err := bc.Redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

func (bc *BeatController) cacheJSONAsync(key string, value interface{}) {
	if bc.Redis == nil {
		return
	}
	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		payload, err := json.Marshal(value)
		if err != nil {
			bc.Logger.Warn("Failed to marshal beat cache entry", zap.Error(err))
			return
		}
		if err := bc.Redis.Set(bgCtx, key, payload, beatCacheTTL).Err(); err != nil {
			bc.Logger.Warn("Failed to cache beats", zap.String("key", key), zap.Error(err))
		}
	}()
}
