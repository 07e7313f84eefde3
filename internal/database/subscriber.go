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

// SaveSubscriber upserts a subscriber keyed by (bot_id, telegram_id).
func (m *MongoDB) SaveSubscriber(ctx context.Context, sub *entity.Subscriber) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(subscribersCollection)

	filter := bson.D{{Key: "bot_id", Value: sub.BotID}, {Key: "telegram_id", Value: sub.TelegramID}}
	update := bson.D{{Key: "$set", Value: sub}}
	opts := options.Update().SetUpsert(true)

	_, err = collection.UpdateOne(ctx, filter, update, opts)
	return err
}

// GetSubscriber retrieves a subscriber, nil when absent.
func (m *MongoDB) GetSubscriber(ctx context.Context, botID string, userID int64) (*entity.Subscriber, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(subscribersCollection)

	filter := bson.D{{Key: "bot_id", Value: botID}, {Key: "telegram_id", Value: userID}}

	var sub entity.Subscriber
	err = collection.FindOne(ctx, filter).Decode(&sub)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}

	return &sub, nil
}

// ListSubscribers returns every subscriber of a bot.
func (m *MongoDB) ListSubscribers(ctx context.Context, botID string) ([]entity.Subscriber, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(subscribersCollection)

	cursor, err := collection.Find(ctx, bson.D{{Key: "bot_id", Value: botID}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var subs []entity.Subscriber
	if err := cursor.All(ctx, &subs); err != nil {
		return nil, err
	}
	return subs, nil
}

// Audience resolves an audience filter into broadcast recipients.
func (m *MongoDB) Audience(ctx context.Context, botID string, f entity.AudienceFilter) ([]entity.Recipient, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(subscribersCollection)

	filter := bson.D{{Key: "bot_id", Value: botID}}
	if len(f.Tags) > 0 {
		filter = append(filter, bson.E{Key: "tags", Value: bson.D{{Key: "$in", Value: f.Tags}}})
	}
	if f.ExcludeBlocked {
		filter = append(filter, bson.E{Key: "blocked", Value: false})
	}
	if f.ActiveAfter != nil {
		filter = append(filter, bson.E{Key: "last_active_at", Value: bson.D{{Key: "$gte", Value: *f.ActiveAfter}}})
	}

	projection := options.Find().SetProjection(bson.D{{Key: "telegram_id", Value: 1}, {Key: "chat_id", Value: 1}})
	cursor, err := collection.Find(ctx, filter, projection)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		TelegramID int64 `bson:"telegram_id"`
		ChatID     int64 `bson:"chat_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	rcpts := make([]entity.Recipient, len(rows))
	for i, r := range rows {
		rcpts[i] = entity.Recipient{UserID: r.TelegramID, ChatID: r.ChatID}
	}
	return rcpts, nil
}

// CountSubscribers counts a bot's subscribers, optionally active since a
// moment.
func (m *MongoDB) CountSubscribers(ctx context.Context, botID string, activeAfter *time.Time) (int64, error) {
	connection, err := m.connect()
	if err != nil {
		return 0, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(subscribersCollection)

	filter := bson.D{{Key: "bot_id", Value: botID}}
	if activeAfter != nil {
		filter = append(filter, bson.E{Key: "last_active_at", Value: bson.D{{Key: "$gte", Value: *activeAfter}}})
	}
	return collection.CountDocuments(ctx, filter)
}
