package prefs

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDynamo struct {
	items map[string]map[string]types.AttributeValue
	err   error
}

func key(av map[string]types.AttributeValue) string {
	return av["user_id"].(*types.AttributeValueMemberS).Value + "/" + av["pref_key"].(*types.AttributeValueMemberS).Value
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.GetItemOutput{Item: f.items[key(in.Key)]}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.items[key(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func TestStore_InMemory(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, "")

	_, err := s.Get(ctx, "u1", KeyCopyDestination)
	assert.ErrorIs(t, err, ErrNotSet)

	require.NoError(t, s.Set(ctx, "u1", KeyCopyDestination, "folder-1"))
	v, err := s.Get(ctx, "u1", KeyCopyDestination)
	require.NoError(t, err)
	assert.Equal(t, "folder-1", v)

	_, err = s.Get(ctx, "u2", KeyCopyDestination)
	assert.ErrorIs(t, err, ErrNotSet)
}

func TestStore_Dynamo(t *testing.T) {
	ctx := context.Background()
	fake := &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
	s := NewStore(fake, "Prefs")

	require.NoError(t, s.Set(ctx, "u1", KeyCopyDestination, "folder-1"))
	require.NoError(t, s.Set(ctx, "u1", KeyCopyDestination, "folder-2"))
	require.Len(t, fake.items, 1)

	var stored struct {
		Value string `dynamodbav:"value"`
	}
	require.NoError(t, attributevalue.UnmarshalMap(fake.items["u1/copy_destination"], &stored))
	assert.Equal(t, "folder-2", stored.Value)

	v, err := s.Get(ctx, "u1", KeyCopyDestination)
	require.NoError(t, err)
	assert.Equal(t, "folder-2", v)

	_, err = s.Get(ctx, "u1", "other")
	assert.ErrorIs(t, err, ErrNotSet)
}

func TestStore_DynamoErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("throttled")
	s := NewStore(&fakeDynamo{err: boom}, "")

	_, err := s.Get(ctx, "u1", KeyCopyDestination)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, s.Set(ctx, "u1", KeyCopyDestination, "x"), boom)
}
