package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"funnelgram/entity"
)

// SaveFunnel upserts a funnel document. Steps are embedded, so a save
// replaces the whole graph atomically.
func (m *MongoDB) SaveFunnel(ctx context.Context, f *entity.Funnel) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(funnelsCollection)

	f.UpdatedAt = time.Now()

	filter := bson.D{{Key: "id", Value: f.ID}}
	update := bson.D{{Key: "$set", Value: f}}
	opts := options.Update().SetUpsert(true)

	_, err = collection.UpdateOne(ctx, filter, update, opts)
	return err
}

// GetFunnel retrieves a funnel by ID, nil when absent.
func (m *MongoDB) GetFunnel(ctx context.Context, id string) (*entity.Funnel, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(funnelsCollection)

	var f entity.Funnel
	err = collection.FindOne(ctx, bson.D{{Key: "id", Value: id}}).Decode(&f)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}

	return &f, nil
}

// ListFunnels returns every funnel of a bot.
func (m *MongoDB) ListFunnels(ctx context.Context, botID string) ([]entity.Funnel, error) {
	return m.findFunnels(ctx, bson.D{{Key: "bot_id", Value: botID}})
}

// ActiveFunnels returns the active funnels of a bot.
func (m *MongoDB) ActiveFunnels(ctx context.Context, botID string) ([]entity.Funnel, error) {
	return m.findFunnels(ctx, bson.D{{Key: "bot_id", Value: botID}, {Key: "active", Value: true}})
}

func (m *MongoDB) findFunnels(ctx context.Context, filter bson.D) ([]entity.Funnel, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(funnelsCollection)

	cursor, err := collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var funnels []entity.Funnel
	if err := cursor.All(ctx, &funnels); err != nil {
		return nil, err
	}
	return funnels, nil
}

// DeleteFunnel removes a funnel document.
func (m *MongoDB) DeleteFunnel(ctx context.Context, id string) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(funnelsCollection)

	_, err = collection.DeleteOne(ctx, bson.D{{Key: "id", Value: id}})
	return err
}
