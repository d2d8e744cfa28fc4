// Package dynamo implements the store interfaces on DynamoDB: messages in a
// table keyed (sessionId, ts) and sessions in a table keyed (userId, sessionId).
package dynamo

import (
	"context"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/voicewire/voicewire/pkg/store"
)

type Store struct {
	client        *dynamodb.Client
	messagesTable string
	sessionsTable string
	now           func() time.Time
}

func New(client *dynamodb.Client, messagesTable, sessionsTable string) *Store {
	return &Store{
		client:        client,
		messagesTable: messagesTable,
		sessionsTable: sessionsTable,
		now:           time.Now,
	}
}

type messageItem struct {
	SessionID string `dynamodbav:"sessionId"`
	TS        int64  `dynamodbav:"ts"`
	Role      string `dynamodbav:"role"`
	Content   string `dynamodbav:"content"`
}

type sessionItem struct {
	UserID       string `dynamodbav:"userId"`
	SessionID    string `dynamodbav:"sessionId"`
	SystemPrompt string `dynamodbav:"systemPrompt,omitempty"`
	CreatedAt    int64  `dynamodbav:"createdAt"`
}

func (s *Store) SaveMessage(ctx context.Context, sessionID string, role store.Role, content string) error {
	item, err := attributevalue.MarshalMap(messageItem{
		SessionID: sessionID,
		TS:        s.now().UnixMilli(),
		Role:      string(role),
		Content:   content,
	})
	if err != nil {
		return errors.Wrap(err, "marshal message item")
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.messagesTable),
		Item:      item,
	})
	return errors.Wrapf(err, "save message for session %s", sessionID)
}

func (s *Store) GetMessages(ctx context.Context, sessionID string) ([]store.Message, error) {
	var out []store.Message
	var startKey map[string]types.AttributeValue
	for {
		resp, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.messagesTable),
			KeyConditionExpression: aws.String("sessionId = :sid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":sid": &types.AttributeValueMemberS{Value: sessionID},
			},
			ScanIndexForward:  aws.Bool(true),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "query messages for session %s", sessionID)
		}
		var items []messageItem
		if err := attributevalue.UnmarshalListOfMaps(resp.Items, &items); err != nil {
			return nil, errors.Wrap(err, "unmarshal message items")
		}
		for _, item := range items {
			out = append(out, store.Message{
				Role:      store.Role(item.Role),
				Content:   item.Content,
				Timestamp: item.TS,
			})
		}
		startKey = resp.LastEvaluatedKey
		if len(startKey) == 0 {
			break
		}
	}
	return out, nil
}

func (s *Store) CreateSession(ctx context.Context, userID string) (store.Session, error) {
	sess := store.Session{
		UserID:    userID,
		SessionID: uuid.NewString(),
		CreatedAt: s.now().UnixMilli(),
	}
	item, err := attributevalue.MarshalMap(sessionItem{
		UserID:    sess.UserID,
		SessionID: sess.SessionID,
		CreatedAt: sess.CreatedAt,
	})
	if err != nil {
		return store.Session{}, errors.Wrap(err, "marshal session item")
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.sessionsTable),
		Item:      item,
	})
	if err != nil {
		return store.Session{}, errors.Wrapf(err, "create session for user %s", userID)
	}
	return sess, nil
}

func (s *Store) GetSession(ctx context.Context, userID, sessionID string) (*store.Session, error) {
	resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.sessionsTable),
		Key:       sessionKey(userID, sessionID),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "get session %s", sessionID)
	}
	if len(resp.Item) == 0 {
		return nil, nil
	}
	var item sessionItem
	if err := attributevalue.UnmarshalMap(resp.Item, &item); err != nil {
		return nil, errors.Wrap(err, "unmarshal session item")
	}
	return &store.Session{
		UserID:       item.UserID,
		SessionID:    item.SessionID,
		SystemPrompt: item.SystemPrompt,
		CreatedAt:    item.CreatedAt,
	}, nil
}

func (s *Store) ListSessions(ctx context.Context, userID string) ([]store.Session, error) {
	var out []store.Session
	var startKey map[string]types.AttributeValue
	for {
		resp, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.sessionsTable),
			KeyConditionExpression: aws.String("userId = :uid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":uid": &types.AttributeValueMemberS{Value: userID},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "query sessions for user %s", userID)
		}
		var items []sessionItem
		if err := attributevalue.UnmarshalListOfMaps(resp.Items, &items); err != nil {
			return nil, errors.Wrap(err, "unmarshal session items")
		}
		for _, item := range items {
			out = append(out, store.Session{
				UserID:       item.UserID,
				SessionID:    item.SessionID,
				SystemPrompt: item.SystemPrompt,
				CreatedAt:    item.CreatedAt,
			})
		}
		startKey = resp.LastEvaluatedKey
		if len(startKey) == 0 {
			break
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out, nil
}

func (s *Store) UpdateSystemPrompt(ctx context.Context, userID, sessionID, systemPrompt string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.sessionsTable),
		Key:              sessionKey(userID, sessionID),
		UpdateExpression: aws.String("SET systemPrompt = :sp"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sp": &types.AttributeValueMemberS{Value: systemPrompt},
		},
	})
	return errors.Wrapf(err, "update system prompt for session %s", sessionID)
}

func (s *Store) DeleteSession(ctx context.Context, userID, sessionID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.sessionsTable),
		Key:       sessionKey(userID, sessionID),
	})
	return errors.Wrapf(err, "delete session %s", sessionID)
}

func sessionKey(userID, sessionID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"userId":    &types.AttributeValueMemberS{Value: userID},
		"sessionId": &types.AttributeValueMemberS{Value: sessionID},
	}
}
