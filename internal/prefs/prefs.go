// Package prefs stores small per-user string settings such as the copy destination.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jun/gophdrive/explorer/internal/model"
)

// KeyCopyDestination holds the id of the folder chosen as copy destination.
const KeyCopyDestination = "copy_destination"

// ErrNotSet is returned when a preference has no value.
var ErrNotSet = errors.New("preference not set")

// Store reads and writes string preferences per user.
type Store interface {
	Get(ctx context.Context, userID, key string) (string, error)
	Set(ctx context.Context, userID, key, value string) error
}

// DynamoAPI is the subset of *dynamodb.Client methods the store uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoStore keeps preferences in a table keyed by user_id and pref_key.
// A nil client keeps them in memory.
type DynamoStore struct {
	client    DynamoAPI
	tableName string

	// In-memory fallback
	values map[string]string
	mu     sync.RWMutex
}

// NewStore creates a preference store. tableName defaults to "Preferences".
func NewStore(client DynamoAPI, tableName string) *DynamoStore {
	if tableName == "" {
		tableName = "Preferences"
	}
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		values:    make(map[string]string),
	}
}

func memKey(userID, key string) string { return userID + "\x00" + key }

// Get returns the value stored under key, or ErrNotSet.
func (s *DynamoStore) Get(ctx context.Context, userID, key string) (string, error) {
	if s.client == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		v, ok := s.values[memKey(userID, key)]
		if !ok {
			return "", ErrNotSet
		}
		return v, nil
	}

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"user_id":  &types.AttributeValueMemberS{Value: userID},
			"pref_key": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to get preference %q: %w", key, err)
	}
	if out.Item == nil {
		return "", ErrNotSet
	}
	var p model.Preference
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return "", fmt.Errorf("failed to unmarshal preference: %w", err)
	}
	return p.Value, nil
}

// Set stores value under key, replacing any previous value.
func (s *DynamoStore) Set(ctx context.Context, userID, key, value string) error {
	if s.client == nil {
		s.mu.Lock()
		s.values[memKey(userID, key)] = value
		s.mu.Unlock()
		return nil
	}

	av, err := attributevalue.MarshalMap(model.Preference{UserID: userID, Key: key, Value: value})
	if err != nil {
		return fmt.Errorf("failed to marshal preference: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	}); err != nil {
		return fmt.Errorf("failed to save preference %q: %w", key, err)
	}
	return nil
}
