package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of *dynamodb.Client methods the file store uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// nodeStore persists the nodes of a single user's tree.
// get returns (nil, nil) for unknown ids.
type nodeStore interface {
	get(ctx context.Context, id string) (*FileItem, error)
	put(ctx context.Context, n *FileItem) error
	remove(ctx context.Context, id string) error
	all(ctx context.Context) ([]*FileItem, error)
}

type mapStore struct {
	mu    sync.RWMutex
	nodes map[string]FileItem
}

func newMapStore() *mapStore {
	return &mapStore{nodes: make(map[string]FileItem)}
}

func (s *mapStore) get(_ context.Context, id string) (*FileItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, nil
	}
	return &n, nil
}

func (s *mapStore) put(_ context.Context, n *FileItem) error {
	s.mu.Lock()
	s.nodes[n.ID] = *n
	s.mu.Unlock()
	return nil
}

func (s *mapStore) remove(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.nodes, id)
	s.mu.Unlock()
	return nil
}

func (s *mapStore) all(_ context.Context) ([]*FileItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*FileItem, 0, len(s.nodes))
	for _, n := range s.nodes {
		n := n
		out = append(out, &n)
	}
	return out, nil
}

// dynamoStore keeps nodes in the FileStore table keyed by "<user>#<id>".
// Items carry a TTL so demo trees expire on their own.
type dynamoStore struct {
	client DynamoAPI
	table  string
	userID string
}

func (s *dynamoStore) key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: s.userID + "#" + id},
	}
}

func (s *dynamoStore) get(ctx context.Context, id string) (*FileItem, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       s.key(id),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get item from DynamoDB: %w", err)
	}
	if out.Item == nil {
		return nil, nil
	}
	var n FileItem
	if err := attributevalue.UnmarshalMap(out.Item, &n); err != nil {
		return nil, fmt.Errorf("failed to unmarshal file item: %w", err)
	}
	return &n, nil
}

func (s *dynamoStore) put(ctx context.Context, n *FileItem) error {
	av, err := attributevalue.MarshalMap(n)
	if err != nil {
		return fmt.Errorf("failed to marshal file item: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to save file item to DynamoDB: %w", err)
	}
	return nil
}

func (s *dynamoStore) remove(ctx context.Context, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       s.key(id),
	})
	if err != nil {
		return fmt.Errorf("failed to delete file item from DynamoDB: %w", err)
	}
	return nil
}

// all scans the table for the user's nodes (inefficient but fine for demo trees).
func (s *dynamoStore) all(ctx context.Context) ([]*FileItem, error) {
	p := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:        aws.String(s.table),
		FilterExpression: aws.String("user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: s.userID},
		},
	})

	var out []*FileItem
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file store: %w", err)
		}
		var items []FileItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal file items: %w", err)
		}
		for i := range items {
			out = append(out, &items[i])
		}
	}
	return out, nil
}
