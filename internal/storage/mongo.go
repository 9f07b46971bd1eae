package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const sessionTTL = 30 * 24 * time.Hour

func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(100).
		SetMinPoolSize(10)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(database), nil
}

type itemDocument struct {
	ProductID       string           `bson:"product_id"`
	VariantID       string           `bson:"variant_id"`
	Title           string           `bson:"title"`
	Handle          string           `bson:"handle"`
	Amount          string           `bson:"amount"`
	CurrencyCode    string           `bson:"currency_code"`
	Quantity        int              `bson:"quantity"`
	Image           string           `bson:"image,omitempty"`
	SelectedOptions []optionDocument `bson:"selected_options,omitempty"`
}

type optionDocument struct {
	Name  string `bson:"name"`
	Value string `bson:"value"`
}

// MongoStorage keeps one document per session in cart_sessions.
type MongoStorage struct {
	collection *mongo.Collection
}

func NewMongoStorage(db *mongo.Database) *MongoStorage {
	return &MongoStorage{collection: db.Collection("cart_sessions")}
}

func (m *MongoStorage) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(sessionTTL.Seconds())),
		},
	}

	if _, err := m.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func (m *MongoStorage) LoadItems(ctx context.Context, sessionID string) ([]domain.LineItem, error) {
	val, err := m.field(ctx, sessionID, "items")
	if err != nil {
		return nil, err
	}

	var docs []itemDocument
	if err := val.Unmarshal(&docs); err != nil {
		return nil, fmt.Errorf("failed to decode cart items: %w", err)
	}

	items := make([]domain.LineItem, 0, len(docs))
	for _, d := range docs {
		item, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (m *MongoStorage) SaveItems(ctx context.Context, sessionID string, items []domain.LineItem) error {
	docs := make([]itemDocument, 0, len(items))
	for _, item := range items {
		docs = append(docs, fromDomain(item))
	}
	return m.setField(ctx, sessionID, "items", docs)
}

func (m *MongoStorage) LoadCartID(ctx context.Context, sessionID string) (string, error) {
	return m.stringField(ctx, sessionID, "cart_id")
}

func (m *MongoStorage) SaveCartID(ctx context.Context, sessionID string, cartID string) error {
	return m.setField(ctx, sessionID, "cart_id", cartID)
}

func (m *MongoStorage) LoadCheckoutURL(ctx context.Context, sessionID string) (string, error) {
	return m.stringField(ctx, sessionID, "checkout_url")
}

func (m *MongoStorage) SaveCheckoutURL(ctx context.Context, sessionID string, url string) error {
	return m.setField(ctx, sessionID, "checkout_url", url)
}

func (m *MongoStorage) Clear(ctx context.Context, sessionID string) error {
	if _, err := m.collection.DeleteOne(ctx, bson.M{"session_id": sessionID}); err != nil {
		return fmt.Errorf("failed to delete cart session: %w", err)
	}
	return nil
}

func (m *MongoStorage) setField(ctx context.Context, sessionID, field string, value any) error {
	filter := bson.M{"session_id": sessionID}
	update := bson.M{
		"$set": bson.M{
			field:        value,
			"updated_at": time.Now(),
		},
	}
	opts := options.Update().SetUpsert(true)

	if _, err := m.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to save %s: %w", field, err)
	}
	return nil
}

func (m *MongoStorage) field(ctx context.Context, sessionID, field string) (bson.RawValue, error) {
	opts := options.FindOne().SetProjection(bson.M{field: 1})
	raw, err := m.collection.FindOne(ctx, bson.M{"session_id": sessionID}, opts).Raw()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return bson.RawValue{}, ErrNotFound
		}
		return bson.RawValue{}, fmt.Errorf("failed to get cart session: %w", err)
	}

	val, err := raw.LookupErr(field)
	if err != nil {
		return bson.RawValue{}, ErrNotFound
	}
	return val, nil
}

func (m *MongoStorage) stringField(ctx context.Context, sessionID, field string) (string, error) {
	val, err := m.field(ctx, sessionID, field)
	if err != nil {
		return "", err
	}
	s, ok := val.StringValueOK()
	if !ok || s == "" {
		return "", ErrNotFound
	}
	return s, nil
}

func fromDomain(item domain.LineItem) itemDocument {
	doc := itemDocument{
		ProductID:    item.ProductID,
		VariantID:    item.VariantID,
		Title:        item.Title,
		Handle:       item.Handle,
		Amount:       item.Price.Amount.String(),
		CurrencyCode: item.Price.CurrencyCode,
		Quantity:     item.Quantity,
		Image:        item.Image,
	}
	for _, o := range item.SelectedOptions {
		doc.SelectedOptions = append(doc.SelectedOptions, optionDocument{Name: o.Name, Value: o.Value})
	}
	return doc
}

func (d itemDocument) toDomain() (domain.LineItem, error) {
	amount, err := decimal.NewFromString(d.Amount)
	if err != nil {
		return domain.LineItem{}, fmt.Errorf("invalid stored price %q for %s: %w", d.Amount, d.VariantID, err)
	}
	item := domain.LineItem{
		ProductID: d.ProductID,
		VariantID: d.VariantID,
		Title:     d.Title,
		Handle:    d.Handle,
		Price:     domain.Money{Amount: amount, CurrencyCode: d.CurrencyCode},
		Quantity:  d.Quantity,
		Image:     d.Image,
	}
	for _, o := range d.SelectedOptions {
		item.SelectedOptions = append(item.SelectedOptions, domain.SelectedOption{Name: o.Name, Value: o.Value})
	}
	return item, nil
}
