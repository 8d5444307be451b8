package model

import (
	"encoding/json"
	"time"
)

// RootID addresses the drive's default entry point.
const RootID = "root"

// UserToken represents the user's sealed OAuth2 refresh token stored in DynamoDB.
type UserToken struct {
	UserID                string    `json:"user_id" dynamodbav:"user_id"`
	EncryptedRefreshToken string    `json:"encrypted_refresh_token" dynamodbav:"encrypted_refresh_token"`
	Provider              string    `json:"provider" dynamodbav:"provider"`
	UpdatedAt             time.Time `json:"updated_at" dynamodbav:"updated_at"`
}

// Preference is a single string setting owned by a user.
type Preference struct {
	UserID string `json:"user_id" dynamodbav:"user_id"`
	Key    string `json:"pref_key" dynamodbav:"pref_key"`
	Value  string `json:"value" dynamodbav:"value"`
}

// ItemReference points at the parent of a drive item.
type ItemReference struct {
	ID      string `json:"id,omitempty"`
	DriveID string `json:"driveId,omitempty"`
	Path    string `json:"path,omitempty"`
}

// Folder is the facet present on folder items.
type Folder struct {
	ChildCount int `json:"childCount"`
}

// File is the facet present on file items.
type File struct {
	MimeType string `json:"mimeType,omitempty"`
}

// Thumbnail is a single rendition of an item preview.
type Thumbnail struct {
	URL    string `json:"url,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// ThumbnailSet groups the renditions the service generated for an item.
type ThumbnailSet struct {
	ID     string     `json:"id,omitempty"`
	Small  *Thumbnail `json:"small,omitempty"`
	Medium *Thumbnail `json:"medium,omitempty"`
	Large  *Thumbnail `json:"large,omitempty"`
}

// Item is a file or folder in the drive. Children holds a single page only.
type Item struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Size            int64           `json:"size,omitempty"`
	LastModified    time.Time       `json:"lastModifiedDateTime,omitempty"`
	WebURL          string          `json:"webUrl,omitempty"`
	DownloadURL     string          `json:"@microsoft.graph.downloadUrl,omitempty"`
	ParentReference *ItemReference  `json:"parentReference,omitempty"`
	Folder          *Folder         `json:"folder,omitempty"`
	File            *File           `json:"file,omitempty"`
	Children        []Item          `json:"children,omitempty"`
	Thumbnails      []ThumbnailSet  `json:"thumbnails,omitempty"`
	Raw             json.RawMessage `json:"-"`
}

// IsFolder reports whether the item carries the folder facet.
func (i *Item) IsFolder() bool { return i.Folder != nil }

// IsFile reports whether the item carries the file facet.
func (i *Item) IsFile() bool { return i.File != nil }

// HasChildren reports whether the fetched page of children is non-empty.
func (i *Item) HasChildren() bool { return len(i.Children) > 0 }

// LinkType selects the access granted by a sharing link.
type LinkType string

const (
	LinkView LinkType = "view"
	LinkEdit LinkType = "edit"
)

// Valid reports whether t is a link type the service accepts.
func (t LinkType) Valid() bool {
	return t == LinkView || t == LinkEdit
}

// Link is a generated sharing URL.
type Link struct {
	URL  string   `json:"webUrl"`
	Type LinkType `json:"type"`
}
