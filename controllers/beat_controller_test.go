package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Lay199xxx/BangerBaby.com/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newBeatRouter(beats map[string]*models.Beat) *gin.Engine {
	gin.SetMode(gin.TestMode)
	bc := &BeatController{
		Beats:  &fakeBeatRepo{beats: beats},
		Redis:  nil, // cache disabled; reads go straight to the repo
		Logger: zap.NewNop(),
	}
	router := gin.New()
	router.GET("/api/beats", bc.GetBeats)
	router.GET("/api/beat/:id", bc.GetBeat)
	return router
}

func TestGetBeats(t *testing.T) {
	router := newBeatRouter(testCatalog())

	req := httptest.NewRequest(http.MethodGet, "/api/beats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var beats []models.Beat
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &beats))
	assert.Len(t, beats, 2)
}

func TestGetBeat_Found(t *testing.T) {
	router := newBeatRouter(testCatalog())

	req := httptest.NewRequest(http.MethodGet, "/api/beat/Storms", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var beat models.Beat
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &beat))
	assert.Equal(t, "Storms", beat.ID)
	assert.Equal(t, 3000, beat.Price)
}

func TestGetBeat_NotFound(t *testing.T) {
	router := newBeatRouter(testCatalog())

	req := httptest.NewRequest(http.MethodGet, "/api/beat/Ghost", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
