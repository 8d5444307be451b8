// Package browser drives the item view: it loads drive items, applies
// mutations through an adapter.DriveService and reports every outcome to a
// Presenter.
package browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jun/gophdrive/explorer/internal/adapter"
	"github.com/jun/gophdrive/explorer/internal/metrics"
	"github.com/jun/gophdrive/explorer/internal/model"
	"github.com/jun/gophdrive/explorer/internal/prefs"
	"github.com/jun/gophdrive/explorer/internal/thumbs"
	"go.uber.org/zap"
)

// progressBuffer is how many progress updates an idle reader may fall behind
// before intermediate updates are dropped.
const progressBuffer = 64

// Connectivity reports whether the drive API can be reached.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// Options tune request shaping.
type Options struct {
	// ExpandLimited requests children without their thumbnails.
	ExpandLimited bool

	// PrefetchConcurrency bounds parallel thumbnail downloads.
	PrefetchConcurrency int
}

// Deps is everything a Controller needs. Service is required; nil Presenter,
// Checker, Prefs and Logger get no-op or in-memory defaults, and a nil Thumbs
// disables thumbnail prefetch.
type Deps struct {
	Service   adapter.DriveService
	Presenter Presenter
	Thumbs    *thumbs.Cache
	Checker   Connectivity
	Prefs     prefs.Store
	UserID    string
	Logger    *zap.Logger
	Options   Options
}

// Controller holds the navigation state of one item view.
type Controller struct {
	service   adapter.DriveService
	presenter Presenter
	checker   Connectivity
	prefs     prefs.Store
	userID    string
	logger    *zap.Logger
	opts      Options
	prefetch  *thumbs.Prefetcher

	mu    sync.Mutex
	state State
	gen   uint64
}

type alwaysOnline struct{}

func (alwaysOnline) Online(context.Context) bool { return true }

// New creates a controller. It panics if d.Service is nil.
func New(d Deps) *Controller {
	if d.Service == nil {
		panic("browser: nil DriveService")
	}
	c := &Controller{
		service:   d.Service,
		presenter: d.Presenter,
		checker:   d.Checker,
		prefs:     d.Prefs,
		userID:    d.UserID,
		logger:    d.Logger,
		opts:      d.Options,
	}
	if c.presenter == nil {
		c.presenter = NopPresenter{}
	}
	if c.checker == nil {
		c.checker = alwaysOnline{}
	}
	if c.prefs == nil {
		c.prefs = prefs.NewStore(nil, "")
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if d.Thumbs != nil {
		c.prefetch = thumbs.NewPrefetcher(d.Thumbs, d.Options.PrefetchConcurrency, c.logger)
	}
	return c
}

// State returns a snapshot of the current navigation state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close stops any thumbnail prefetch still running.
func (c *Controller) Close() {
	c.stopPrefetch()
}

func (c *Controller) expand() string {
	if c.opts.ExpandLimited {
		return adapter.ExpandChildrenAndThumbnailsLimited
	}
	return adapter.ExpandChildrenAndThumbnails
}

func (c *Controller) fail(op Op, operand string, err error) *OpError {
	oe := newOpError(op, operand, err)
	c.logger.Warn("drive operation failed",
		zap.String("op", string(op)),
		zap.String("operand", operand),
		zap.Stringer("kind", oe.Kind),
		zap.Error(err),
	)
	c.presenter.Failed(oe)
	return oe
}

// run checks connectivity, performs call and routes the outcome: failures go
// through fail, successes to onSuccess.
func run[T any](ctx context.Context, c *Controller, op Op, operand string, call func(context.Context) (T, error), onSuccess func(T)) (T, error) {
	var zero T
	if !c.checker.Online(ctx) {
		return zero, c.fail(op, operand, ErrOffline)
	}

	start := time.Now()
	v, err := call(ctx)
	metrics.RecordOperation(string(op), time.Since(start), err)
	if err != nil {
		return zero, c.fail(op, operand, err)
	}
	if onSuccess != nil {
		onSuccess(v)
	}
	return v, nil
}

// LoadItem fetches id with its children and thumbnails and publishes the
// resulting state. A response that arrives after a newer LoadItem started is
// dropped and ErrSuperseded is returned.
func (c *Controller) LoadItem(ctx context.Context, id string) (*model.Item, error) {
	if id == "" {
		return nil, c.fail(OpLoad, id, fmt.Errorf("%w: empty item id", ErrInvalidArgument))
	}
	if !c.checker.Online(ctx) {
		return nil, c.fail(OpLoad, id, ErrOffline)
	}

	c.stopPrefetch()

	c.mu.Lock()
	c.gen++
	gen := c.gen
	// HasChildren keeps describing the last successful response until the next one lands.
	c.state = State{ItemID: id, Focus: FocusLoading, HasChildren: c.state.HasChildren, Generation: gen}
	loading := c.state
	c.mu.Unlock()
	c.presenter.StateChanged(loading)

	start := time.Now()
	item, err := c.service.GetItem(ctx, id, c.expand())
	metrics.RecordOperation(string(OpLoad), time.Since(start), err)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		metrics.RecordStaleLoad()
		c.logger.Debug("discarding stale load", zap.String("item_id", id), zap.Uint64("generation", gen))
		return nil, ErrSuperseded
	}
	if err != nil {
		oe := newOpError(OpLoad, id, err)
		c.state.Focus = FocusError
		c.state.Err = oe
		c.state.ErrMessage = Message(oe)
		c.state.EmptyMessage = c.state.ErrMessage
		failed := c.state
		c.mu.Unlock()

		c.logger.Warn("item lookup failed", zap.String("item_id", id), zap.Error(err))
		c.presenter.Failed(oe)
		c.presenter.StateChanged(failed)
		return nil, oe
	}
	c.state = c.populate(gen, id, item)
	loaded := c.state
	c.mu.Unlock()

	c.presenter.StateChanged(loaded)
	c.prefetchThumbnails(ctx, item.Children)
	return item, nil
}

func (c *Controller) populate(gen uint64, id string, item *model.Item) State {
	has := item.HasChildren()
	s := State{
		ItemID:      id,
		Item:        item,
		Children:    item.Children,
		HasChildren: has,
		Focus:       coerce(FocusPopulated, has),
		Breadcrumb:  Breadcrumb(item),
		Generation:  gen,
	}
	if !has {
		if item.IsFolder() {
			s.EmptyMessage = EmptyFolderMessage
		} else {
			s.EmptyMessage = EmptyFileMessage
		}
	}
	if len(item.Raw) > 0 {
		text, err := Diagnostic(item.Raw)
		if err != nil {
			c.logger.Error("unable to parse the response body as json", zap.String("item_id", id), zap.Error(err))
		} else {
			s.Diagnostic = text
		}
	}
	return s
}

func (c *Controller) prefetchThumbnails(ctx context.Context, children []model.Item) {
	if c.prefetch == nil {
		return
	}
	var ids []string
	for _, child := range children {
		if len(child.Thumbnails) > 0 {
			ids = append(ids, child.ID)
		}
	}
	if len(ids) == 0 {
		return
	}
	c.prefetch.Start(context.WithoutCancel(ctx), c.service, ids)
}

func (c *Controller) stopPrefetch() {
	if c.prefetch != nil {
		c.prefetch.Stop()
	}
}

// WaitThumbnails blocks until the current prefetch batch finishes.
func (c *Controller) WaitThumbnails() {
	if c.prefetch != nil {
		c.prefetch.Wait()
	}
}

// Refresh reloads the current item, or the root when nothing was loaded yet.
func (c *Controller) Refresh(ctx context.Context) (*model.Item, error) {
	id := c.State().ItemID
	if id == "" {
		id = model.RootID
	}
	return c.LoadItem(ctx, id)
}

// RequestFocus shows pane f. Populated falls back to Empty when the last
// load returned no children. The focus actually applied is returned.
func (c *Controller) RequestFocus(f Focus) Focus {
	c.mu.Lock()
	actual := coerce(f, c.state.HasChildren)
	c.state.Focus = actual
	s := c.state
	c.mu.Unlock()
	c.presenter.StateChanged(s)
	return actual
}

// label returns the name of id: from the current listing when it is shown
// there, otherwise looked up without expansion. It falls back to id itself
// when offline or when the lookup fails.
func (c *Controller) label(ctx context.Context, id string) string {
	if name, ok := c.shownName(id); ok {
		return name
	}
	if id == "" || !c.checker.Online(ctx) {
		return id
	}
	item, err := c.service.GetItem(ctx, id, "")
	if err != nil || item.Name == "" {
		return id
	}
	return item.Name
}

func (c *Controller) shownName(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Item == nil {
		return "", false
	}
	if c.state.Item.ID == id || c.state.ItemID == id {
		return c.state.Item.Name, true
	}
	for _, child := range c.state.Children {
		if child.ID == id {
			return child.Name, true
		}
	}
	return "", false
}

// ResolveByPath looks up the item at path relative to anchorID. It does not
// touch the navigation state.
func (c *Controller) ResolveByPath(ctx context.Context, anchorID, path string) (*model.Item, error) {
	if anchorID == "" {
		anchorID = model.RootID
	}
	rel := strings.Trim(path, "/")
	if rel == "" {
		return nil, c.fail(OpResolve, path, fmt.Errorf("%w: empty path", ErrInvalidArgument))
	}
	return run(ctx, c, OpResolve, path, func(ctx context.Context) (*model.Item, error) {
		return c.service.ResolvePath(ctx, anchorID, rel, c.expand())
	}, nil)
}

// CreateFolder creates name under parentID and reloads parentID.
func (c *Controller) CreateFolder(ctx context.Context, parentID, name string) (*model.Item, error) {
	parent := c.label(ctx, parentID)
	if strings.TrimSpace(name) == "" {
		return nil, c.fail(OpCreateFolder, parent, fmt.Errorf("%w: empty folder name", ErrInvalidArgument))
	}
	folder, err := run(ctx, c, OpCreateFolder, parent, func(ctx context.Context) (*model.Item, error) {
		return c.service.CreateFolder(ctx, parentID, name)
	}, func(f *model.Item) {
		c.presenter.Notify(fmt.Sprintf("Created folder %q.", f.Name))
	})
	if err != nil {
		return nil, err
	}
	c.LoadItem(ctx, parentID)
	return folder, nil
}

// RenameItem renames id and reloads the current listing.
func (c *Controller) RenameItem(ctx context.Context, id, newName string) (*model.Item, error) {
	original := c.label(ctx, id)
	if strings.TrimSpace(newName) == "" {
		return nil, c.fail(OpRename, original, fmt.Errorf("%w: empty name", ErrInvalidArgument))
	}
	renamed, err := run(ctx, c, OpRename, original, func(ctx context.Context) (*model.Item, error) {
		return c.service.RenameItem(ctx, id, newName)
	}, func(item *model.Item) {
		c.presenter.Notify(fmt.Sprintf("Renamed %q to %q.", original, item.Name))
	})
	if err != nil {
		return nil, err
	}
	if c.State().ItemID != "" {
		c.Refresh(ctx)
	}
	return renamed, nil
}

// DeleteItem deletes id and asks the presenter to navigate back. The listing
// is not reloaded.
func (c *Controller) DeleteItem(ctx context.Context, id string) error {
	name := c.label(ctx, id)
	_, err := run(ctx, c, OpDelete, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.service.DeleteItem(ctx, id)
	}, func(struct{}) {
		c.presenter.Notify(fmt.Sprintf("Deleted %q.", name))
		c.presenter.NavigateBack(id)
	})
	return err
}

// UploadContent uploads content as filename under parentID in the
// background. An existing child with the same name fails the upload with
// KindNameConflict. On success parentID is reloaded.
func (c *Controller) UploadContent(ctx context.Context, parentID, filename string, content []byte) *UploadTask {
	progress := make(chan Progress, progressBuffer)
	done := make(chan Result[*model.Item], 1)

	go func() {
		defer close(done)
		item, err := c.upload(ctx, parentID, filename, content, progress)
		close(progress)
		done <- Result[*model.Item]{Value: item, Err: err}
	}()

	return &UploadTask{Progress: progress, Done: done}
}

func (c *Controller) upload(ctx context.Context, parentID, filename string, content []byte, progress chan<- Progress) (*model.Item, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, c.fail(OpUpload, filename, fmt.Errorf("%w: empty file name", ErrInvalidArgument))
	}

	report := func(sent, total int64) {
		p := Progress{Name: filename, Sent: sent, Total: total}
		c.presenter.UploadProgress(p)
		select {
		case progress <- p:
		default:
		}
	}

	size := int64(len(content))
	item, err := run(ctx, c, OpUpload, filename, func(ctx context.Context) (*model.Item, error) {
		return c.service.UploadContent(ctx, parentID, filename, bytes.NewReader(content), size, adapter.ConflictFail, report)
	}, func(item *model.Item) {
		metrics.RecordUpload(size)
		c.presenter.Notify(fmt.Sprintf("Upload of %q complete.", item.Name))
	})
	if err != nil {
		return nil, err
	}
	c.LoadItem(ctx, parentID)
	return item, nil
}

// CreateSharingLink creates a view or edit link for id.
func (c *Controller) CreateSharingLink(ctx context.Context, id string, linkType model.LinkType) (*model.Link, error) {
	name := c.label(ctx, id)
	if !linkType.Valid() {
		return nil, c.fail(OpLink, name, fmt.Errorf("%w: unknown link type %q", ErrInvalidArgument, linkType))
	}
	return run(ctx, c, OpLink, name, func(ctx context.Context) (*model.Link, error) {
		return c.service.CreateLink(ctx, id, linkType)
	}, func(l *model.Link) {
		c.presenter.Notify(fmt.Sprintf("Created %s link: %s", l.Type, l.URL))
	})
}

// SetCopyDestination remembers folder as the target for copies.
func (c *Controller) SetCopyDestination(ctx context.Context, folder *model.Item) error {
	if folder == nil || !folder.IsFolder() {
		operand := ""
		if folder != nil {
			operand = folder.Name
		}
		return c.fail(OpCopyDestination, operand, fmt.Errorf("%w: copy destination must be a folder", ErrInvalidArgument))
	}
	if err := c.prefs.Set(ctx, c.userID, prefs.KeyCopyDestination, folder.ID); err != nil {
		return c.fail(OpCopyDestination, folder.Name, err)
	}
	c.presenter.Notify(fmt.Sprintf("%q is now the copy destination.", folder.Name))
	return nil
}

// CopyDestination returns the id of the remembered copy destination, or
// prefs.ErrNotSet.
func (c *Controller) CopyDestination(ctx context.Context) (string, error) {
	id, err := c.prefs.Get(ctx, c.userID, prefs.KeyCopyDestination)
	if err != nil {
		if errors.Is(err, prefs.ErrNotSet) {
			return "", err
		}
		return "", c.fail(OpCopyDestination, "", err)
	}
	return id, nil
}

// Download returns the pre-authenticated content URL of a file item.
func (c *Controller) Download(ctx context.Context, id string) (string, error) {
	name := c.label(ctx, id)
	item, err := run(ctx, c, OpDownload, name, func(ctx context.Context) (*model.Item, error) {
		item, err := c.service.GetItem(ctx, id, "")
		if err != nil {
			return nil, err
		}
		if !item.IsFile() || item.DownloadURL == "" {
			return nil, fmt.Errorf("%w: %s has no downloadable content", ErrInvalidArgument, item.Name)
		}
		return item, nil
	}, nil)
	if err != nil {
		return "", err
	}
	c.presenter.Notify(fmt.Sprintf("Starting download of %q.", item.Name))
	return item.DownloadURL, nil
}
