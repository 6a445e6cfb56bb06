package car

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/CarLinkTrade/CarLinkTrade/internal/catalog"
	"github.com/CarLinkTrade/CarLinkTrade/internal/common/db"
	"github.com/CarLinkTrade/CarLinkTrade/internal/common/logger"
	"github.com/CarLinkTrade/CarLinkTrade/internal/common/server"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestHandler(t *testing.T) (*mux.Router, *gorm.DB) {
	t.Helper()
	gdb, err := db.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&catalog.Make{}, &catalog.Model{}, &catalog.Variant{},
		&Car{}, &CarImage{},
	))
	log, err := logger.NewLogrusLogger("error", "text", "stdout", "")
	require.NoError(t, err)

	h := NewHandler(gdb, log, true)
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return r, gdb
}

func doJSON(t *testing.T, r *mux.Router, userID uint, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != 0 {
		ctx := server.ContextWithAuth(req.Context(), server.AuthInfo{Subject: fmt.Sprintf("%d", userID)})
		req = req.WithContext(ctx)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func createListing(t *testing.T, r *mux.Router, ownerID uint) Car {
	t.Helper()
	rec := doJSON(t, r, ownerID, http.MethodPost, "/cars", map[string]interface{}{
		"make_title":    "Honda",
		"model_title":   "Civic",
		"variant_title": "Oriel",
		"color":         "black",
		"year":          2019,
		"mileage":       58000,
		"price":         "12500.00",
		"image_paths":   []string{"cars/1.jpg", "cars/2.jpg"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		Car Car `json:"car"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Car
}

func TestHandlerCreateResolvesCatalog(t *testing.T) {
	r, gdb := newTestHandler(t)
	c := createListing(t, r, 1)

	assert.Equal(t, StatusAvailable, c.Status)
	assert.Equal(t, uint(1), c.OwnerID)
	require.NotNil(t, c.Make)
	assert.Equal(t, "Honda", c.Make.Name)
	require.NotNil(t, c.Variant)
	assert.Equal(t, "Oriel", c.Variant.Name)
	assert.Len(t, c.Images, 2)

	// 同名品类复用，不重复建档
	createListing(t, r, 2)
	var makes int64
	require.NoError(t, gdb.Model(&catalog.Make{}).Count(&makes).Error)
	assert.EqualValues(t, 1, makes)
}

func TestHandlerCreateValidation(t *testing.T) {
	r, _ := newTestHandler(t)
	rec := doJSON(t, r, 1, http.MethodPost, "/cars", map[string]interface{}{
		"make_title":    "Honda",
		"model_title":   "Civic",
		"variant_title": "Oriel",
		"year":          1850,
		"mileage":       -5,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp struct {
		Errors map[string]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Errors, "year")
	assert.Contains(t, resp.Errors, "mileage")
	assert.Contains(t, resp.Errors, "price")
}

func TestHandlerUpdateOwnershipAndStatus(t *testing.T) {
	r, _ := newTestHandler(t)
	c := createListing(t, r, 1)
	path := fmt.Sprintf("/cars/%d", c.ID)

	// 非车主不能改
	rec := doJSON(t, r, 2, http.MethodPut, path, map[string]interface{}{"color": "red"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "Unauthorized")

	// 状态字段不接受直接写
	rec = doJSON(t, r, 1, http.MethodPut, path, map[string]interface{}{"status": "SOLD"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(t, r, 1, http.MethodPut, path, map[string]interface{}{"color": "red", "price": "11999.99"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Car Car `json:"car"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "red", resp.Car.Color)
	assert.Equal(t, StatusAvailable, resp.Car.Status)
}

func TestHandlerDeleteCascadesImages(t *testing.T) {
	r, gdb := newTestHandler(t)
	c := createListing(t, r, 1)
	path := fmt.Sprintf("/cars/%d", c.ID)

	rec := doJSON(t, r, 2, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, r, 1, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var cars, images int64
	require.NoError(t, gdb.Model(&Car{}).Count(&cars).Error)
	require.NoError(t, gdb.Model(&CarImage{}).Count(&images).Error)
	assert.Zero(t, cars)
	assert.Zero(t, images)
}

func TestHandlerListAndMyCars(t *testing.T) {
	r, _ := newTestHandler(t)
	createListing(t, r, 1)
	createListing(t, r, 2)

	rec := doJSON(t, r, 0, http.MethodGet, "/cars", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listResp struct {
		Cars  []Car `json:"cars"`
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listResp))
	assert.Len(t, listResp.Cars, 2)
	assert.EqualValues(t, 2, listResp.Total)

	rec = doJSON(t, r, 1, http.MethodGet, "/mycars", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var mine []Car
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mine))
	assert.Len(t, mine, 1)

	rec = doJSON(t, r, 0, http.MethodGet, "/cars/random?count=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var random []Car
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &random))
	assert.Len(t, random, 1)
}
