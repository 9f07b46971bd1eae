package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson"
)

func setupTestMongo(t *testing.T) (*MongoStorage, func()) {
	if testing.Short() {
		t.Skip("skipping MongoDB container test in short mode")
	}
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := ConnectMongoDB(ctx, uri, "testdb")
	require.NoError(t, err)

	store := NewMongoStorage(db)
	require.NoError(t, store.CreateIndexes(ctx))

	cleanup := func() {
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return store, cleanup
}

func TestMongoStorage(t *testing.T) {
	store, cleanup := setupTestMongo(t)
	defer cleanup()

	runStorageContract(t, store)
}

func TestMongoStorage_OneDocumentPerSession(t *testing.T) {
	store, cleanup := setupTestMongo(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, store.SaveItems(ctx, "user123", sampleItems()))
	require.NoError(t, store.SaveCartID(ctx, "user123", "gid://shopify/Cart/1"))
	require.NoError(t, store.SaveCheckoutURL(ctx, "user123", "https://shop.example/c/1"))

	count, err := store.collection.CountDocuments(ctx, bson.M{"session_id": "user123"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	var doc bson.M
	require.NoError(t, store.collection.FindOne(ctx, bson.M{"session_id": "user123"}).Decode(&doc))
	assert.Equal(t, "gid://shopify/Cart/1", doc["cart_id"])
	assert.Contains(t, doc, "updated_at")
}

func TestMongoStorage_InvalidStoredPrice(t *testing.T) {
	store, cleanup := setupTestMongo(t)
	defer cleanup()

	ctx := context.Background()
	_, err := store.collection.InsertOne(ctx, bson.M{
		"session_id": "broken",
		"items": bson.A{bson.M{
			"variant_id":    "V1",
			"amount":        "not-a-number",
			"currency_code": "JPY",
			"quantity":      1,
		}},
	})
	require.NoError(t, err)

	_, err = store.LoadItems(ctx, "broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid stored price")
}
