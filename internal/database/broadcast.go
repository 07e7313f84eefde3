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

// SaveBroadcast upserts a campaign document.
func (m *MongoDB) SaveBroadcast(ctx context.Context, b *entity.Broadcast) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(broadcastsCollection)

	b.UpdatedAt = time.Now()

	filter := bson.D{{Key: "id", Value: b.ID}}
	update := bson.D{{Key: "$set", Value: b}}
	opts := options.Update().SetUpsert(true)

	_, err = collection.UpdateOne(ctx, filter, update, opts)
	return err
}

// GetBroadcast retrieves a campaign by ID, nil when absent.
func (m *MongoDB) GetBroadcast(ctx context.Context, id string) (*entity.Broadcast, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(broadcastsCollection)

	var b entity.Broadcast
	err = collection.FindOne(ctx, bson.D{{Key: "id", Value: id}}).Decode(&b)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}

	return &b, nil
}

// ListBroadcasts returns every campaign of a bot, newest first.
func (m *MongoDB) ListBroadcasts(ctx context.Context, botID string) ([]entity.Broadcast, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(broadcastsCollection)

	sort := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := collection.Find(ctx, bson.D{{Key: "bot_id", Value: botID}}, sort)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var broadcasts []entity.Broadcast
	if err := cursor.All(ctx, &broadcasts); err != nil {
		return nil, err
	}
	return broadcasts, nil
}

// ListDueScheduled returns scheduled campaigns whose start moment has
// passed.
func (m *MongoDB) ListDueScheduled(ctx context.Context, now time.Time) ([]entity.Broadcast, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(broadcastsCollection)

	filter := bson.D{
		{Key: "status", Value: entity.BroadcastScheduled},
		{Key: "scheduled_at", Value: bson.D{{Key: "$lte", Value: now}}},
	}

	cursor, err := collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var broadcasts []entity.Broadcast
	if err := cursor.All(ctx, &broadcasts); err != nil {
		return nil, err
	}
	return broadcasts, nil
}

// DeleteBroadcast removes a campaign and its audience snapshot.
func (m *MongoDB) DeleteBroadcast(ctx context.Context, id string) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	db := connection.Database(m.database)
	if _, err := db.Collection(broadcastsCollection).DeleteOne(ctx, bson.D{{Key: "id", Value: id}}); err != nil {
		return err
	}
	_, err = db.Collection(audiencesCollection).DeleteOne(ctx, bson.D{{Key: "broadcast_id", Value: id}})
	return err
}

// SaveAudience stores the audience snapshot of a campaign run.
func (m *MongoDB) SaveAudience(ctx context.Context, broadcastID string, rcpts []entity.Recipient) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(audiencesCollection)

	filter := bson.D{{Key: "broadcast_id", Value: broadcastID}}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "broadcast_id", Value: broadcastID},
		{Key: "recipients", Value: rcpts},
		{Key: "created_at", Value: time.Now()},
	}}}
	opts := options.Update().SetUpsert(true)

	_, err = collection.UpdateOne(ctx, filter, update, opts)
	return err
}

// LoadAudience retrieves the audience snapshot of a campaign run.
func (m *MongoDB) LoadAudience(ctx context.Context, broadcastID string) ([]entity.Recipient, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(audiencesCollection)

	var doc struct {
		Recipients []entity.Recipient `bson:"recipients"`
	}
	err = collection.FindOne(ctx, bson.D{{Key: "broadcast_id", Value: broadcastID}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}

	return doc.Recipients, nil
}
