package memory

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jun/gophdrive/explorer/internal/adapter"
	"github.com/jun/gophdrive/explorer/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func childNames(item *model.Item) []string {
	var names []string
	for _, c := range item.Children {
		names = append(names, c.Name)
	}
	return names
}

func TestMemoryAdapter_RootStartsEmpty(t *testing.T) {
	m := NewMemoryAdapter(nil, "", "user1")

	root, err := m.GetItem(context.Background(), model.RootID, adapter.ExpandChildrenAndThumbnails)
	require.NoError(t, err)
	assert.Equal(t, model.RootID, root.ID)
	assert.True(t, root.IsFolder())
	assert.False(t, root.HasChildren())
	assert.NotEmpty(t, root.Raw)
}

func TestMemoryAdapter_CreateFolder_ThenReloadHasExactlyOne(t *testing.T) {
	m := NewMemoryAdapter(nil, "", "user1")
	ctx := context.Background()

	folder, err := m.CreateFolder(ctx, model.RootID, "Docs")
	require.NoError(t, err)
	assert.True(t, folder.IsFolder())
	assert.Nil(t, folder.File)

	root, err := m.GetItem(ctx, model.RootID, adapter.ExpandChildrenAndThumbnails)
	require.NoError(t, err)
	require.Equal(t, []string{"Docs"}, childNames(root))
	assert.True(t, root.Children[0].IsFolder())
	assert.False(t, root.Children[0].IsFile())
	assert.Equal(t, 1, root.Folder.ChildCount)
}

func TestMemoryAdapter_CreateFolder_Conflict(t *testing.T) {
	m := NewMemoryAdapter(nil, "", "user1")
	ctx := context.Background()

	_, err := m.CreateFolder(ctx, model.RootID, "Docs")
	require.NoError(t, err)

	_, err = m.CreateFolder(ctx, model.RootID, "docs")
	assert.ErrorIs(t, err, adapter.ErrNameAlreadyExists)
}

func TestMemoryAdapter_InvalidNames(t *testing.T) {
	m := NewMemoryAdapter(nil, "", "user1")
	ctx := context.Background()

	for _, name := range []string{"", "  ", "a/b", "what?", strings.Repeat("n", maxDemoNameLength+1)} {
		_, err := m.CreateFolder(ctx, model.RootID, name)
		assert.ErrorIs(t, err, adapter.ErrInvalidRequest, "name %q", name)
	}
}

func TestMemoryAdapter_ChildrenSortedByName(t *testing.T) {
	m := NewMemoryAdapter(nil, "", "user1")
	ctx := context.Background()

	for _, n := range []string{"zeta", "Alpha", "beta"} {
		_, err := m.CreateFolder(ctx, model.RootID, n)
		require.NoError(t, err)
	}

	root, err := m.GetItem(ctx, model.RootID, adapter.ExpandChildrenAndThumbnails)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "beta", "zeta"}, childNames(root))
}

func TestMemoryAdapter_RenameItem(t *testing.T) {
	m := NewMemoryAdapter(nil, "", "user1")
	ctx := context.Background()

	f, err := m.UploadContent(ctx, model.RootID, "old.txt", strings.NewReader("x"), 1, adapter.ConflictFail, nil)
	require.NoError(t, err)
	_, err = m.CreateFolder(ctx, model.RootID, "Other")
	require.NoError(t, err)

	renamed, err := m.RenameItem(ctx, f.ID, "NewName")
	require.NoError(t, err)
	assert.Equal(t, "NewName", renamed.Name)
	assert.Equal(t, f.ID, renamed.ID)

	root, err := m.GetItem(ctx, model.RootID, adapter.ExpandChildrenAndThumbnails)
	require.NoError(t, err)
	assert.Equal(t, []string{"NewName", "Other"}, childNames(root))

	// Renaming to a sibling's name fails; renaming to the same name with new case succeeds.
	_, err = m.RenameItem(ctx, f.ID, "other")
	assert.ErrorIs(t, err, adapter.ErrNameAlreadyExists)
	_, err = m.RenameItem(ctx, f.ID, "NEWNAME")
	assert.NoError(t, err)

	_, err = m.RenameItem(ctx, model.RootID, "x")
	assert.ErrorIs(t, err, adapter.ErrInvalidRequest)

	_, err = m.RenameItem(ctx, "missing", "x")
	assert.ErrorIs(t, err, adapter.ErrNotFound)
}

func TestMemoryAdapter_DeleteRecursive(t *testing.T) {
	m := NewMemoryAdapter(nil, "", "user1")
	ctx := context.Background()

	a, err := m.CreateFolder(ctx, model.RootID, "A")
	require.NoError(t, err)
	b, err := m.CreateFolder(ctx, a.ID, "B")
	require.NoError(t, err)
	c, err := m.UploadContent(ctx, b.ID, "c.txt", strings.NewReader("c"), 1, adapter.ConflictFail, nil)
	require.NoError(t, err)

	require.NoError(t, m.DeleteItem(ctx, a.ID))

	for _, id := range []string{a.ID, b.ID, c.ID} {
		_, err := m.GetItem(ctx, id, "")
		assert.ErrorIs(t, err, adapter.ErrNotFound)
	}
	assert.ErrorIs(t, m.DeleteItem(ctx, a.ID), adapter.ErrNotFound)
	assert.ErrorIs(t, m.DeleteItem(ctx, model.RootID), adapter.ErrInvalidRequest)
}

func TestMemoryAdapter_ResolvePath(t *testing.T) {
	m := NewMemoryAdapter(nil, "", "user1")
	ctx := context.Background()

	a, _ := m.CreateFolder(ctx, model.RootID, "A")
	b, _ := m.CreateFolder(ctx, a.ID, "B")
	c, err := m.CreateFolder(ctx, b.ID, "C")
	require.NoError(t, err)

	got, err := m.ResolvePath(ctx, model.RootID, "A/B/C", adapter.ExpandChildrenAndThumbnails)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, "/drive/root:/A/B", got.ParentReference.Path)

	got, err = m.ResolvePath(ctx, a.ID, "/B/", "")
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)

	_, err = m.ResolvePath(ctx, model.RootID, "A/X/C", "")
	assert.ErrorIs(t, err, adapter.ErrNotFound)
	assert.Contains(t, err.Error(), "A/X/C")
}

func TestMemoryAdapter_Upload_ConflictBehaviors(t *testing.T) {
	m := NewMemoryAdapter(nil, "", "user1")
	ctx := context.Background()

	orig, err := m.UploadContent(ctx, model.RootID, "photo.jpg", strings.NewReader("v1"), 2, adapter.ConflictFail, nil)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", orig.File.MimeType)

	_, err = m.UploadContent(ctx, model.RootID, "photo.jpg", strings.NewReader("v2"), 2, adapter.ConflictFail, nil)
	assert.ErrorIs(t, err, adapter.ErrNameAlreadyExists)

	data, err := m.Content(ctx, orig.ID)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))

	replaced, err := m.UploadContent(ctx, model.RootID, "photo.jpg", strings.NewReader("v3!"), 3, adapter.ConflictReplace, nil)
	require.NoError(t, err)
	assert.Equal(t, orig.ID, replaced.ID)
	assert.Equal(t, int64(3), replaced.Size)

	renamed, err := m.UploadContent(ctx, model.RootID, "photo.jpg", strings.NewReader("v4"), 2, adapter.ConflictRename, nil)
	require.NoError(t, err)
	assert.Equal(t, "photo (1).jpg", renamed.Name)
}

func TestMemoryAdapter_Upload_ProgressInChunks(t *testing.T) {
	m := NewMemoryAdapter(nil, "", "user1")
	payload := bytes.Repeat([]byte{'p'}, 3*copyBufferSize+10)

	var reports []int64
	_, err := m.UploadContent(context.Background(), model.RootID, "big.bin", bytes.NewReader(payload), int64(len(payload)), adapter.ConflictFail,
		func(current, total int64) {
			assert.Equal(t, int64(len(payload)), total)
			reports = append(reports, current)
		})
	require.NoError(t, err)
	require.Len(t, reports, 4)
	assert.Equal(t, int64(len(payload)), reports[len(reports)-1])
	for i := 1; i < len(reports); i++ {
		assert.Greater(t, reports[i], reports[i-1])
	}
}

func TestMemoryAdapter_Upload_TooLarge(t *testing.T) {
	m := NewMemoryAdapter(nil, "", "user1")

	_, err := m.UploadContent(context.Background(), model.RootID, "huge.bin", bytes.NewReader(nil), maxDemoContentSize+1, adapter.ConflictFail, nil)
	assert.ErrorIs(t, err, adapter.ErrInvalidRequest)
}

func TestMemoryAdapter_ItemLimit(t *testing.T) {
	m := NewMemoryAdapter(nil, "", "user2")
	ctx := context.Background()

	// The root counts towards the limit.
	for i := 0; i < maxDemoItemCount-1; i++ {
		_, err := m.UploadContent(ctx, model.RootID, fmt.Sprintf("note-%03d.txt", i), strings.NewReader("ok"), 2, adapter.ConflictFail, nil)
		require.NoError(t, err, "item %d", i)
	}
	_, err := m.CreateFolder(ctx, model.RootID, "overflow")
	assert.ErrorIs(t, err, adapter.ErrInvalidRequest)
}

func TestMemoryAdapter_Thumbnails(t *testing.T) {
	m := NewMemoryAdapter(nil, "", "user1")
	ctx := context.Background()
	require.NoError(t, m.SeedDemo(ctx))

	pics, err := m.ResolvePath(ctx, model.RootID, "Pictures", adapter.ExpandChildrenAndThumbnails)
	require.NoError(t, err)
	require.Len(t, pics.Children, 1)
	require.Len(t, pics.Children[0].Thumbnails, 1)

	limited, err := m.GetItem(ctx, pics.ID, adapter.ExpandChildrenAndThumbnailsLimited)
	require.NoError(t, err)
	assert.Empty(t, limited.Children[0].Thumbnails)

	data, err := m.Thumbnail(ctx, pics.Children[0].ID)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))

	docs, err := m.ResolvePath(ctx, model.RootID, "Documents/Welcome.txt", "")
	require.NoError(t, err)
	_, err = m.Thumbnail(ctx, docs.ID)
	assert.ErrorIs(t, err, adapter.ErrNotFound)
}

func TestMemoryAdapter_SeedDemo_Idempotent(t *testing.T) {
	m := NewMemoryAdapter(nil, "", "user1")
	ctx := context.Background()
	require.NoError(t, m.SeedDemo(ctx))
	require.NoError(t, m.SeedDemo(ctx))

	root, err := m.GetItem(ctx, model.RootID, adapter.ExpandChildrenAndThumbnails)
	require.NoError(t, err)
	assert.Equal(t, []string{"Documents", "Empty", "Pictures"}, childNames(root))
}

func TestMemoryAdapter_CreateLink(t *testing.T) {
	m := NewMemoryAdapter(nil, "", "user1")
	ctx := context.Background()
	f, _ := m.CreateFolder(ctx, model.RootID, "Shared")

	view, err := m.CreateLink(ctx, f.ID, model.LinkView)
	require.NoError(t, err)
	edit, err := m.CreateLink(ctx, f.ID, model.LinkEdit)
	require.NoError(t, err)
	assert.NotEqual(t, view.URL, edit.URL)
	assert.Equal(t, model.LinkView, view.Type)

	_, err = m.CreateLink(ctx, f.ID, "embed")
	assert.ErrorIs(t, err, adapter.ErrInvalidRequest)
}

func TestProvider_ReusesAdapterPerUser(t *testing.T) {
	p := NewProvider(nil, "")
	ctx := context.Background()

	a1, err := p.GetAdapter(ctx, "u1")
	require.NoError(t, err)
	a2, _ := p.GetAdapter(ctx, "u1")
	b, _ := p.GetAdapter(ctx, "u2")
	assert.Same(t, a1, a2)
	assert.NotSame(t, a1, b)
}

// fakeDynamo stores raw attribute maps keyed by pk.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
}

func pkOf(key map[string]types.AttributeValue) string {
	return key["pk"].(*types.AttributeValueMemberS).Value
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[pkOf(in.Key)]}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[pkOf(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, pkOf(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	uid := in.ExpressionAttributeValues[":uid"].(*types.AttributeValueMemberS).Value
	var out []map[string]types.AttributeValue
	for _, item := range f.items {
		if item["user_id"].(*types.AttributeValueMemberS).Value == uid {
			out = append(out, item)
		}
	}
	return &dynamodb.ScanOutput{Items: out}, nil
}

func TestMemoryAdapter_DynamoPersistence(t *testing.T) {
	db := &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
	ctx := context.Background()

	m := NewMemoryAdapter(db, "FileStore", "user1")
	docs, err := m.CreateFolder(ctx, model.RootID, "Docs")
	require.NoError(t, err)
	_, err = m.UploadContent(ctx, docs.ID, "a.txt", strings.NewReader("hello"), 5, adapter.ConflictFail, nil)
	require.NoError(t, err)

	// Another user sharing the table sees nothing of user1's tree.
	other := NewMemoryAdapter(db, "FileStore", "user2")
	root2, err := other.GetItem(ctx, model.RootID, adapter.ExpandChildrenAndThumbnails)
	require.NoError(t, err)
	assert.Empty(t, root2.Children)

	// A fresh adapter for the same user reads the persisted tree.
	again := NewMemoryAdapter(db, "FileStore", "user1")
	item, err := again.ResolvePath(ctx, model.RootID, "Docs/a.txt", "")
	require.NoError(t, err)
	assert.Equal(t, int64(5), item.Size)

	require.NoError(t, again.DeleteItem(ctx, docs.ID))
	_, err = m.GetItem(ctx, docs.ID, "")
	assert.ErrorIs(t, err, adapter.ErrNotFound)
}
