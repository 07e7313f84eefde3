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

// SaveState persists a user's conversation state.
func (m *MongoDB) SaveState(ctx context.Context, state *entity.ConversationState) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(statesCollection)

	state.UpdatedAt = time.Now()

	filter := bson.D{{Key: "bot_id", Value: state.BotID}, {Key: "user_id", Value: state.UserID}}
	update := bson.D{{Key: "$set", Value: state}}
	opts := options.Update().SetUpsert(true)

	_, err = collection.UpdateOne(ctx, filter, update, opts)
	return err
}

// LoadState retrieves a user's conversation state, nil when absent.
func (m *MongoDB) LoadState(ctx context.Context, botID string, userID int64) (*entity.ConversationState, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(statesCollection)

	filter := bson.D{{Key: "bot_id", Value: botID}, {Key: "user_id", Value: userID}}

	var state entity.ConversationState
	err = collection.FindOne(ctx, filter).Decode(&state)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}

	return &state, nil
}

// DeleteState removes a user's conversation state.
func (m *MongoDB) DeleteState(ctx context.Context, botID string, userID int64) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(statesCollection)

	filter := bson.D{{Key: "bot_id", Value: botID}, {Key: "user_id", Value: userID}}

	_, err = collection.DeleteOne(ctx, filter)
	return err
}

// ListDelayed returns states parked on a delay step that are due at or
// before now, for re-arming wakeups after a restart.
func (m *MongoDB) ListDelayed(ctx context.Context, botID string, now time.Time) ([]entity.ConversationState, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(statesCollection)

	filter := bson.D{
		{Key: "bot_id", Value: botID},
		{Key: "waiting", Value: entity.WaitingDelay},
		{Key: "delayed_until", Value: bson.D{{Key: "$lte", Value: now}}},
	}

	cursor, err := collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var states []entity.ConversationState
	if err := cursor.All(ctx, &states); err != nil {
		return nil, err
	}
	return states, nil
}
