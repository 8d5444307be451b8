package browser

import (
	"bytes"
	"encoding/json"

	"github.com/jun/gophdrive/explorer/internal/model"
)

// Focus selects which pane of the item view should be shown.
type Focus int

const (
	FocusLoading Focus = iota
	FocusPopulated
	FocusEmpty
	FocusError
)

func (f Focus) String() string {
	switch f {
	case FocusLoading:
		return "loading"
	case FocusPopulated:
		return "populated"
	case FocusEmpty:
		return "empty"
	case FocusError:
		return "error"
	}
	return "unknown"
}

// MarshalText renders the focus by name in JSON responses.
func (f Focus) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// Messages shown in place of an empty listing.
const (
	EmptyFolderMessage = "This folder is empty."
	EmptyFileMessage   = "This item is a file and has no children."
)

// driveLabelPrefix labels items that carry no parent path, such as the root.
const driveLabelPrefix = "/drive/"

// diagnosticIndent matches the indentation of the raw response pane.
const diagnosticIndent = "   "

// State is a snapshot of what the item view shows. Item is nil while a load
// is in flight and after a failed load.
type State struct {
	ItemID       string       `json:"itemId"`
	Item         *model.Item  `json:"item,omitempty"`
	Children     []model.Item `json:"children"`
	HasChildren  bool         `json:"hasChildren"`
	Focus        Focus        `json:"focus"`
	EmptyMessage string       `json:"emptyMessage,omitempty"`
	Breadcrumb   string       `json:"breadcrumb,omitempty"`
	Diagnostic   string       `json:"diagnostic,omitempty"`
	Err          *OpError     `json:"-"`
	ErrMessage   string       `json:"error,omitempty"`
	Generation   uint64       `json:"generation"`
}

// Breadcrumb labels an item by its parent path, or under /drive/ when the
// item has no parent path.
func Breadcrumb(item *model.Item) string {
	if item.ParentReference != nil && item.ParentReference.Path != "" {
		return item.ParentReference.Path + "/" + item.Name
	}
	return driveLabelPrefix + item.Name
}

// Diagnostic re-indents a raw response payload for display.
func Diagnostic(raw json.RawMessage) (string, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", diagnosticIndent); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// coerce demotes Populated to Empty when the listing has nothing to show.
func coerce(f Focus, hasChildren bool) Focus {
	if f == FocusPopulated && !hasChildren {
		return FocusEmpty
	}
	return f
}
