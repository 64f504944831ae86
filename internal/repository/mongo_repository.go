package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrCartNotFound     = errors.New("cart not found")
	ErrConcurrentUpdate = errors.New("cart was modified concurrently")
)

const maxUpdateAttempts = 3

type cartDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	UserID    string             `bson:"user_id"`
	Items     []lineDocument     `bson:"items"`
	Version   int64              `bson:"version"`
	CreatedAt time.Time          `bson:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at"`
}

type lineDocument struct {
	ProductRef  string                `bson:"product_ref"`
	Category    string                `bson:"category,omitempty"`
	Quantity    int                   `bson:"quantity"`
	PriceAtTime *primitive.Decimal128 `bson:"price_at_time,omitempty"`
	Variation   *domain.Variation     `bson:"variation,omitempty"`
	AddedAt     time.Time             `bson:"added_at"`
}

type mongoRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

func NewMongoRepository(db *mongo.Database) CartRepository {
	return &mongoRepository{
		collection: db.Collection("carts"),
		now:        time.Now,
	}
}

func (m *mongoRepository) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	var doc cartDocument
	err := m.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return fromDocument(doc)
}

// UpdateCart is an optimistic read-modify-write: the replace only matches
// the version that was read, and a lost race is retried from a fresh read.
func (m *mongoRepository) UpdateCart(ctx context.Context, userID string, mutate func(*domain.Cart) error) (*domain.Cart, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		cart, err := m.GetCart(ctx, userID)
		isNew := errors.Is(err, ErrCartNotFound)
		if isNew {
			cart = domain.NewCart(userID, m.now())
		} else if err != nil {
			return nil, err
		}

		if err := mutate(cart); err != nil {
			return nil, err
		}
		cart.UpdatedAt = m.now()

		doc, err := toDocument(cart)
		if err != nil {
			return nil, err
		}
		doc.Version = cart.Version + 1

		if isNew {
			res, err := m.collection.InsertOne(ctx, doc)
			if mongo.IsDuplicateKeyError(err) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("failed to create cart: %w", err)
			}
			if id, ok := res.InsertedID.(primitive.ObjectID); ok {
				cart.ID = id.Hex()
			}
			cart.Version = doc.Version
			return cart, nil
		}

		filter := bson.M{"user_id": userID, "version": cart.Version}
		res, err := m.collection.ReplaceOne(ctx, filter, doc)
		if err != nil {
			return nil, fmt.Errorf("failed to update cart: %w", err)
		}
		if res.MatchedCount == 0 {
			continue
		}
		cart.Version = doc.Version
		return cart, nil
	}
	return nil, ErrConcurrentUpdate
}

func (m *mongoRepository) DeleteCart(ctx context.Context, userID string) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"user_id": userID})
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}
	return nil
}

// CreateIndexes enforces one cart per user and expires carts untouched for
// 90 days.
func (m *mongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60),
		},
	}

	if _, err := m.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// IndexCreator is implemented by repositories that manage their own indexes.
type IndexCreator interface {
	CreateIndexes(ctx context.Context) error
}

func toDocument(cart *domain.Cart) (cartDocument, error) {
	doc := cartDocument{
		UserID:    cart.UserID,
		Items:     make([]lineDocument, 0, len(cart.Items)),
		Version:   cart.Version,
		CreatedAt: cart.CreatedAt,
		UpdatedAt: cart.UpdatedAt,
	}
	if cart.ID != "" {
		id, err := primitive.ObjectIDFromHex(cart.ID)
		if err != nil {
			return cartDocument{}, fmt.Errorf("invalid cart id %q: %w", cart.ID, err)
		}
		doc.ID = id
	}

	for _, l := range cart.Items {
		line := lineDocument{
			ProductRef: l.ProductRef,
			Category:   l.Category,
			Quantity:   l.Quantity,
			Variation:  l.Variation,
			AddedAt:    l.AddedAt,
		}
		if l.PriceAtTime.Valid {
			price, err := primitive.ParseDecimal128(l.PriceAtTime.Decimal.String())
			if err != nil {
				return cartDocument{}, fmt.Errorf("invalid price for %s: %w", l.ProductRef, err)
			}
			line.PriceAtTime = &price
		}
		doc.Items = append(doc.Items, line)
	}
	return doc, nil
}

func fromDocument(doc cartDocument) (*domain.Cart, error) {
	cart := &domain.Cart{
		ID:        doc.ID.Hex(),
		UserID:    doc.UserID,
		Items:     make(domain.Lines, 0, len(doc.Items)),
		Version:   doc.Version,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}

	for _, l := range doc.Items {
		line := domain.CartLine{
			ProductRef: l.ProductRef,
			Category:   l.Category,
			Quantity:   l.Quantity,
			Variation:  l.Variation,
			AddedAt:    l.AddedAt,
		}
		if l.PriceAtTime != nil {
			price, err := decimal.NewFromString(l.PriceAtTime.String())
			if err != nil {
				return nil, fmt.Errorf("invalid stored price for %s: %w", l.ProductRef, err)
			}
			line.PriceAtTime = decimal.NewNullDecimal(price)
		}
		cart.Items = append(cart.Items, line)
	}
	return cart, nil
}
