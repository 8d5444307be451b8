package browser

import (
	"errors"
	"fmt"

	"github.com/jun/gophdrive/explorer/internal/adapter"
)

var (
	// ErrOffline is returned when no connection to the drive API is available.
	ErrOffline = errors.New("no network connection")

	// ErrInvalidArgument is returned for arguments rejected before any request is made.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrSuperseded is returned by a load whose response arrived after a newer
	// load had started. Its result is discarded.
	ErrSuperseded = errors.New("load superseded by a newer navigation")
)

// Kind classifies a failed operation for presentation.
type Kind int

const (
	KindGeneric Kind = iota
	KindOffline
	KindNameConflict
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindOffline:
		return "offline"
	case KindNameConflict:
		return "name_conflict"
	case KindInvalid:
		return "invalid"
	}
	return "generic"
}

// Op names a controller operation.
type Op string

const (
	OpLoad            Op = "load"
	OpResolve         Op = "resolve"
	OpCreateFolder    Op = "create_folder"
	OpRename          Op = "rename"
	OpDelete          Op = "delete"
	OpUpload          Op = "upload"
	OpLink            Op = "create_link"
	OpCopyDestination Op = "copy_destination"
	OpDownload        Op = "download"
)

// OpError describes a failed operation. Operand is the item id, name or path
// the user would recognise.
type OpError struct {
	Op      Op
	Operand string
	Kind    Kind
	Err     error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Operand, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func newOpError(op Op, operand string, err error) *OpError {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe
	}
	return &OpError{Op: op, Operand: operand, Kind: classify(err), Err: err}
}

func classify(err error) Kind {
	switch {
	case errors.Is(err, ErrOffline):
		return KindOffline
	case errors.Is(err, adapter.ErrNameAlreadyExists):
		return KindNameConflict
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, adapter.ErrInvalidRequest):
		return KindInvalid
	}
	return KindGeneric
}

// Message maps a failure to the text shown to the user.
func Message(err error) string {
	var oe *OpError
	if !errors.As(err, &oe) {
		return "Something went wrong: " + err.Error()
	}
	if oe.Kind == KindOffline {
		return "No network connection is available. Check your connection and try again."
	}

	conflict := oe.Kind == KindNameConflict
	switch oe.Op {
	case OpLoad:
		if oe.Kind == KindInvalid {
			return "No item was selected."
		}
		return fmt.Sprintf("Unable to look up item %q.", oe.Operand)
	case OpResolve:
		return fmt.Sprintf("Unable to find an item at path %q.", oe.Operand)
	case OpCreateFolder:
		if conflict {
			return fmt.Sprintf("Unable to create the folder in %q: an item with that name already exists.", oe.Operand)
		}
		return fmt.Sprintf("Unable to create a new folder in %q.", oe.Operand)
	case OpRename:
		if conflict {
			return fmt.Sprintf("Unable to rename %q: an item with that name already exists.", oe.Operand)
		}
		return fmt.Sprintf("Unable to rename %q.", oe.Operand)
	case OpDelete:
		return fmt.Sprintf("Unable to delete %q.", oe.Operand)
	case OpUpload:
		if conflict {
			return fmt.Sprintf("Upload failed: an item named %q already exists.", oe.Operand)
		}
		return fmt.Sprintf("Upload of %q failed.", oe.Operand)
	case OpLink:
		return fmt.Sprintf("Unable to create a sharing link for %q.", oe.Operand)
	case OpCopyDestination:
		if oe.Kind == KindInvalid {
			return "Only folders can be chosen as the copy destination."
		}
		return "Unable to update the copy destination."
	case OpDownload:
		if oe.Kind == KindInvalid {
			return fmt.Sprintf("%q cannot be downloaded.", oe.Operand)
		}
		return fmt.Sprintf("Unable to download %q.", oe.Operand)
	}
	return "Something went wrong: " + oe.Err.Error()
}
