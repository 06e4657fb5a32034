package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aioutlet/product-service/internal/catalog"
	"github.com/aioutlet/product-service/internal/events"
)

func colorSizeVariant(color, size string) ChildVariationRequest {
	return ChildVariationRequest{
		Name:  "Trail Running Shoe " + color + " " + size,
		Price: 89.99,
		Attributes: []VariantAttributeRequest{
			{Name: "color", Value: color},
			{Name: "size", Value: size},
		},
	}
}

// createFamily drives the family creation endpoint and returns the decoded
// response, failing the test on any non-201 outcome.
func createFamily(t *testing.T, server *Server, children ...ChildVariationRequest) VariationFamilyResponse {
	t.Helper()

	rec := doJSON(t, server, http.MethodPost, "/api/v1/variations", CreateVariationFamilyRequest{
		Parent: CreateProductRequest{
			SKU:        "SHOE-PARENT",
			Name:       "Trail Running Shoe",
			Brand:      "Peakline",
			Department: "Footwear",
			Category:   "Running",
			Price:      89.99,
		},
		Children: children,
	})
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())

	var resp VariationFamilyResponse
	decodeJSON(t, rec, &resp)

	return resp
}

func TestCreateVariationFamily_PersistsAndEmits(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server, store, publisher := newTestServer(t)

	resp := createFamily(t, server,
		colorSizeVariant("red", "S"),
		colorSizeVariant("red", "M"),
	)

	assert.Equal(t, string(catalog.VariationParent), resp.Parent.VariationType)
	assert.Equal(t, 2, resp.Parent.VariationCount)
	require.Len(t, resp.Matrix, 2)
	assert.Equal(t, map[string]string{"color": "red", "size": "S"}, resp.Matrix[0].Attributes)
	assert.True(t, resp.Matrix[0].Available)

	child := store.mustGet(t, resp.Matrix[0].ProductID)
	assert.Equal(t, string(catalog.VariationChild), child.VariationType.String())
	assert.Equal(t, resp.Parent.ID, child.ParentID)
	assert.Equal(t, "Peakline", child.Brand, "children inherit the parent's brand")
	assert.Equal(t, "Footwear", child.Department)

	require.Len(t, publisher.byTopic(events.TopicProductCreated), 1)
	require.Len(t, publisher.byTopic(events.TopicVariationCreated), 2)
}

func TestCreateVariationFamily_DuplicateTupleRejected(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server, store, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/variations", CreateVariationFamilyRequest{
		Parent: CreateProductRequest{Name: "Trail Running Shoe", Price: 89.99},
		Children: []ChildVariationRequest{
			colorSizeVariant("red", "S"),
			colorSizeVariant("red", "S"),
		},
	})

	require.Equal(t, http.StatusConflict, rec.Code, "body: %s", rec.Body.String())
	assert.Empty(t, store.order, "a rejected family leaves nothing behind")
}

func TestCreateVariationFamily_RequiresChildren(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server, _, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/variations", CreateVariationFamilyRequest{
		Parent: CreateProductRequest{Name: "Trail Running Shoe", Price: 89.99},
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetVariationFamily_ExcludesDeletedChildren(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server, _, _ := newTestServer(t)

	family := createFamily(t, server,
		colorSizeVariant("red", "S"),
		colorSizeVariant("red", "M"),
	)

	rec := doRequest(t, server, http.MethodDelete, "/api/v1/variations/children/"+family.Matrix[0].ProductID, "", nil)
	require.Equal(t, http.StatusNoContent, rec.Code, "body: %s", rec.Body.String())

	rec = doRequest(t, server, http.MethodGet, "/api/v1/variations/"+family.Parent.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp VariationFamilyResponse
	decodeJSON(t, rec, &resp)

	assert.Equal(t, 1, resp.Parent.VariationCount)
	require.Len(t, resp.Matrix, 1)
	assert.Equal(t, family.Matrix[1].ProductID, resp.Matrix[0].ProductID)
}

func TestGetVariationFamily_RejectsNonParent(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server, _, _ := newTestServer(t, activeProduct("p-1"))

	rec := doRequest(t, server, http.MethodGet, "/api/v1/variations/p-1", "", nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddChild_AppendsAndBumpsCount(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server, store, publisher := newTestServer(t)

	family := createFamily(t, server, colorSizeVariant("red", "S"))

	rec := doJSON(t, server, http.MethodPost, "/api/v1/variations/"+family.Parent.ID+"/children",
		colorSizeVariant("red", "M"))

	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())

	var child ProductResponse
	decodeJSON(t, rec, &child)

	assert.Equal(t, string(catalog.VariationChild), child.VariationType)
	assert.Equal(t, family.Parent.ID, child.ParentID)
	assert.Equal(t, "Peakline", child.Brand)

	assert.Equal(t, 2, store.mustGet(t, family.Parent.ID).VariationCount)
	require.Len(t, publisher.byTopic(events.TopicVariationCreated), 2)
}

func TestAddChild_DuplicateTupleConflicts(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server, store, _ := newTestServer(t)

	family := createFamily(t, server, colorSizeVariant("red", "S"))

	rec := doJSON(t, server, http.MethodPost, "/api/v1/variations/"+family.Parent.ID+"/children",
		colorSizeVariant("red", "S"))

	require.Equal(t, http.StatusConflict, rec.Code, "body: %s", rec.Body.String())
	assert.Equal(t, 1, store.mustGet(t, family.Parent.ID).VariationCount)
}

func TestAddChild_UnknownParent(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server, _, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/variations/missing/children",
		colorSizeVariant("red", "S"))

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFilterChildren_ByAttributeConstraints(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server, _, _ := newTestServer(t)

	family := createFamily(t, server,
		colorSizeVariant("red", "S"),
		colorSizeVariant("red", "M"),
		colorSizeVariant("blue", "S"),
	)

	base := "/api/v1/variations/" + family.Parent.ID + "/children"

	rec := doRequest(t, server, http.MethodGet, base, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChildListResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, 3, resp.Total)

	rec = doRequest(t, server, http.MethodGet, base+"?color=red", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeJSON(t, rec, &resp)
	assert.Equal(t, 2, resp.Total)

	rec = doRequest(t, server, http.MethodGet, base+"?color=blue&size=S", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeJSON(t, rec, &resp)
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, "blue", resp.Children[0].Attributes["color"])

	rec = doRequest(t, server, http.MethodGet, base+"?color=green", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeJSON(t, rec, &resp)
	assert.Equal(t, 0, resp.Total)
	assert.NotNil(t, resp.Children)
}

func TestUpdateChild_AppliesChildScopedFields(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server, store, publisher := newTestServer(t)

	family := createFamily(t, server, colorSizeVariant("red", "S"))
	childID := family.Matrix[0].ProductID

	name := "Trail Running Shoe red S v2"
	price := 79.99

	rec := doJSON(t, server, http.MethodPatch, "/api/v1/variations/children/"+childID, UpdateChildRequest{
		Name:  &name,
		Price: &price,
	})

	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	var resp ProductResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, name, resp.Name)
	assert.Equal(t, price, resp.Price)

	stored := store.mustGet(t, childID)
	assert.Equal(t, price, stored.Price)

	require.Len(t, publisher.byTopic(events.TopicVariationUpdated), 1)
}

func TestUpdateChild_TupleRenameCollisionConflicts(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server, _, _ := newTestServer(t)

	family := createFamily(t, server,
		colorSizeVariant("red", "S"),
		colorSizeVariant("red", "M"),
	)

	rec := doJSON(t, server, http.MethodPatch, "/api/v1/variations/children/"+family.Matrix[1].ProductID,
		UpdateChildRequest{
			Attributes: []VariantAttributeRequest{
				{Name: "color", Value: "red"},
				{Name: "size", Value: "S"},
			},
		})

	require.Equal(t, http.StatusConflict, rec.Code, "body: %s", rec.Body.String())
}

func TestUpdateChild_RejectsNonChild(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server, _, _ := newTestServer(t, activeProduct("p-1"))

	name := "renamed"

	rec := doJSON(t, server, http.MethodPatch, "/api/v1/variations/children/p-1", UpdateChildRequest{
		Name: &name,
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteChild_SoftDeletesAndDecrements(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server, store, publisher := newTestServer(t)

	family := createFamily(t, server,
		colorSizeVariant("red", "S"),
		colorSizeVariant("red", "M"),
	)
	childID := family.Matrix[0].ProductID

	rec := doRequest(t, server, http.MethodDelete, "/api/v1/variations/children/"+childID, "", nil)

	require.Equal(t, http.StatusNoContent, rec.Code, "body: %s", rec.Body.String())
	assert.False(t, store.mustGet(t, childID).IsActive)
	assert.Equal(t, 1, store.mustGet(t, family.Parent.ID).VariationCount)
	require.Len(t, publisher.byTopic(events.TopicVariationDeleted), 1)

	rec = doRequest(t, server, http.MethodDelete, "/api/v1/variations/children/"+childID, "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code, "deleting an already-deleted child")
}

func TestDeleteChild_RejectsNonChild(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server, _, _ := newTestServer(t, activeProduct("p-1"))

	rec := doRequest(t, server, http.MethodDelete, "/api/v1/variations/children/p-1", "", nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
