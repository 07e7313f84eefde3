package repository

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"funnelgram/entity"
)

// SaveTrigger upserts a trigger rule.
func (m *MongoDB) SaveTrigger(ctx context.Context, t *entity.Trigger) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(triggersCollection)

	filter := bson.D{{Key: "id", Value: t.ID}}
	update := bson.D{{Key: "$set", Value: t}}
	opts := options.Update().SetUpsert(true)

	_, err = collection.UpdateOne(ctx, filter, update, opts)
	return err
}

// GetTrigger retrieves a trigger by ID, nil when absent.
func (m *MongoDB) GetTrigger(ctx context.Context, id string) (*entity.Trigger, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(triggersCollection)

	var t entity.Trigger
	err = collection.FindOne(ctx, bson.D{{Key: "id", Value: id}}).Decode(&t)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}

	return &t, nil
}

// ListTriggers returns every trigger of a bot.
func (m *MongoDB) ListTriggers(ctx context.Context, botID string) ([]entity.Trigger, error) {
	return m.findTriggers(ctx, bson.D{{Key: "bot_id", Value: botID}})
}

// ActiveTriggers returns the active triggers of a bot, highest priority
// first.
func (m *MongoDB) ActiveTriggers(ctx context.Context, botID string) ([]entity.Trigger, error) {
	return m.findTriggers(ctx, bson.D{{Key: "bot_id", Value: botID}, {Key: "active", Value: true}})
}

func (m *MongoDB) findTriggers(ctx context.Context, filter bson.D) ([]entity.Trigger, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(triggersCollection)

	sort := options.Find().SetSort(bson.D{{Key: "priority", Value: -1}, {Key: "created_at", Value: -1}})
	cursor, err := collection.Find(ctx, filter, sort)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var triggers []entity.Trigger
	if err := cursor.All(ctx, &triggers); err != nil {
		return nil, err
	}
	return triggers, nil
}

// DeleteTrigger removes a trigger rule.
func (m *MongoDB) DeleteTrigger(ctx context.Context, id string) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(triggersCollection)

	_, err = collection.DeleteOne(ctx, bson.D{{Key: "id", Value: id}})
	return err
}
