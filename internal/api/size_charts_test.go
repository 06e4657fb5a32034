package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aioutlet/product-service/internal/catalog"
	"github.com/aioutlet/product-service/internal/events"
)

func footwearChartRequest() CreateSizeChartRequest {
	return CreateSizeChartRequest{
		Name:     "EU Footwear",
		SizeType: "footwear",
		Rows: []SizeChartRowPayload{
			{Label: "42", Measurements: map[string]string{"eu": "42", "us": "8.5", "footLengthCm": "26.5"}},
			{Label: "43", Measurements: map[string]string{"eu": "43", "us": "9", "footLengthCm": "27.2"}},
		},
	}
}

func seedChart(t *testing.T, store *fakeCatalogStore, name string) string {
	t.Helper()

	chart := &catalog.SizeChart{
		Name:     name,
		SizeType: "footwear",
		Rows: []catalog.SizeChartRow{
			{Label: "42", Measurements: map[string]string{"eu": "42"}},
		},
	}
	require.NoError(t, store.CreateSizeChart(context.Background(), chart))

	return chart.ID
}

func TestCreateSizeChart_PersistsChart(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server, store, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/size-charts", footwearChartRequest())
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())

	var resp SizeChartResponse
	decodeJSON(t, rec, &resp)

	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "EU Footwear", resp.Name)
	assert.Equal(t, "footwear", resp.SizeType)
	assert.Equal(t, "anonymous", resp.CreatedBy)
	assert.False(t, resp.CreatedAt.IsZero())
	require.Len(t, resp.Rows, 2)
	assert.Equal(t, "42", resp.Rows[0].Label)
	assert.Equal(t, "8.5", resp.Rows[0].Measurements["us"])

	stored, err := store.GetSizeChart(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, "EU Footwear", stored.Name)
}

func TestCreateSizeChart_EmptyNameRejected(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server, store, _ := newTestServer(t)

	req := footwearChartRequest()
	req.Name = "   "

	rec := doJSON(t, server, http.MethodPost, "/api/v1/size-charts", req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	charts, err := store.ListSizeCharts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, charts)
}

func TestListSizeCharts_PreservesCreationOrder(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server, store, _ := newTestServer(t)
	seedChart(t, store, "EU Footwear")
	seedChart(t, store, "US Apparel")

	rec := doRequest(t, server, http.MethodGet, "/api/v1/size-charts", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SizeChartListResponse
	decodeJSON(t, rec, &resp)

	assert.Equal(t, 2, resp.Total)
	require.Len(t, resp.SizeCharts, 2)
	assert.Equal(t, "EU Footwear", resp.SizeCharts[0].Name)
	assert.Equal(t, "US Apparel", resp.SizeCharts[1].Name)
}

func TestListSizeCharts_EmptyArrayMaterialized(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server, _, _ := newTestServer(t)

	rec := doRequest(t, server, http.MethodGet, "/api/v1/size-charts", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"sizeCharts":[]`)
}

func TestGetSizeChart_ReturnsChart(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server, store, _ := newTestServer(t)
	chartID := seedChart(t, store, "EU Footwear")

	rec := doRequest(t, server, http.MethodGet, "/api/v1/size-charts/"+chartID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SizeChartResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, chartID, resp.ID)
	assert.Equal(t, "EU Footwear", resp.Name)
}

func TestGetSizeChart_NotFound(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server, _, _ := newTestServer(t)

	rec := doRequest(t, server, http.MethodGet, "/api/v1/size-charts/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAssignSizeChart_SetsProductAndEmits(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server, store, publisher := newTestServer(t, activeProduct("p-1"))
	chartID := seedChart(t, store, "EU Footwear")

	rec := doRequest(t, server, http.MethodPost, "/api/v1/products/p-1/size-chart/"+chartID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	var resp ProductResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, chartID, resp.SizeChartID)

	stored, err := store.GetProduct(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, chartID, stored.SizeChartID)

	assert.Len(t, publisher.byTopic(events.TopicSizeChartAssigned), 1)
}

func TestAssignSizeChart_MissingChart(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server, _, publisher := newTestServer(t, activeProduct("p-1"))

	rec := doRequest(t, server, http.MethodPost, "/api/v1/products/p-1/size-chart/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, publisher.byTopic(events.TopicSizeChartAssigned))
}

func TestAssignSizeChart_MissingProduct(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server, store, publisher := newTestServer(t)
	chartID := seedChart(t, store, "EU Footwear")

	rec := doRequest(t, server, http.MethodPost, "/api/v1/products/missing/size-chart/"+chartID, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, publisher.byTopic(events.TopicSizeChartAssigned))
}

func TestUnassignSizeChart_ClearsAndEmits(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	product := activeProduct("p-1")
	product.SizeChartID = "chart-7"
	server, store, publisher := newTestServer(t, product)

	rec := doRequest(t, server, http.MethodDelete, "/api/v1/products/p-1/size-chart", "", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	stored, err := store.GetProduct(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Empty(t, stored.SizeChartID)

	assert.Len(t, publisher.byTopic(events.TopicSizeChartUnassigned), 1)
}

func TestUnassignSizeChart_NoChartIsIdempotent(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server, _, publisher := newTestServer(t, activeProduct("p-1"))

	rec := doRequest(t, server, http.MethodDelete, "/api/v1/products/p-1/size-chart", "", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, publisher.byTopic(events.TopicSizeChartUnassigned))
}

func TestUnassignSizeChart_MissingProduct(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server, _, _ := newTestServer(t)

	rec := doRequest(t, server, http.MethodDelete, "/api/v1/products/missing/size-chart", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
