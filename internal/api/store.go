package api

import (
	"context"

	"github.com/aioutlet/product-service/internal/catalog"
	"github.com/aioutlet/product-service/internal/storage"
)

// ProductStore is what the HTTP layer needs from product persistence: the
// full domain store plus the operational surfaces behind the admin endpoints.
type ProductStore interface {
	catalog.Store

	// ListIndexes reports the indexes present on the products table.
	ListIndexes(ctx context.Context) ([]storage.IndexInfo, error)

	// ListDeadLetters returns parked inbound events newest first with the
	// total count.
	ListDeadLetters(ctx context.Context, page catalog.Page) ([]storage.ParkedEvent, int, error)
}

// Compile-time check that the PostgreSQL store satisfies the HTTP layer.
var _ ProductStore = (*storage.ProductStore)(nil)
