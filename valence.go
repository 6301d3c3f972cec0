// Copyright (c) 2025 Ronan Le Meillat
//
// ePortfolio Downloader - A tool for downloading D2L ePortfolio presentations for offline viewing
//
// Author: Ronan Le Meillat
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ObjectType is the ePortfolio ObjectTypeId
type ObjectType int

// Known ePortfolio object types
const (
	TypeObject               ObjectType = 0
	TypeCollection           ObjectType = 100
	TypeStaticCollection     ObjectType = 110
	TypeDynamicCollection    ObjectType = 120
	TypeReflection           ObjectType = 200
	TypeArtifact             ObjectType = 300
	TypeFileArtifact         ObjectType = 310
	TypeFormArtifact         ObjectType = 320
	TypeLEArtifact           ObjectType = 330
	TypeLECompetencyArtifact ObjectType = 331
	TypeLEGradeArtifact      ObjectType = 332
	TypeLEQuizArtifact       ObjectType = 333
	TypeLEDropboxArtifact    ObjectType = 334
	TypeURLArtifact          ObjectType = 340
	TypePresentation         ObjectType = 400
	TypeLearningObjective    ObjectType = 600
)

var objectTypeNames = map[ObjectType]string{
	TypeObject:               "ep_object",
	TypeCollection:           "collection",
	TypeStaticCollection:     "static_collection",
	TypeDynamicCollection:    "dynamic_collection",
	TypeReflection:           "reflection",
	TypeArtifact:             "artifact",
	TypeFileArtifact:         "file_artifact",
	TypeFormArtifact:         "form_artifact",
	TypeLEArtifact:           "le_artifact",
	TypeLECompetencyArtifact: "le_competency_artifact",
	TypeLEGradeArtifact:      "le_grade_artifact",
	TypeLEQuizArtifact:       "le_quiz_artifact",
	TypeLEDropboxArtifact:    "le_dropbox_artifact",
	TypeURLArtifact:          "url_artifact",
	TypePresentation:         "presentation",
	TypeLearningObjective:    "learning_objective",
}

func (t ObjectType) String() string {
	if name, ok := objectTypeNames[t]; ok {
		return name
	}
	return "ep_object_" + strconv.Itoa(int(t))
}

// IsCollection reports whether the type holds other objects
func (t ObjectType) IsCollection() bool {
	return t == TypeCollection || t == TypeStaticCollection || t == TypeDynamicCollection
}

// ObjectProperties is the union of the properties returned for every
// ePortfolio object type. Fields a type does not carry stay zero.
type ObjectProperties struct {
	ObjectID          int64      `json:"ObjectId"`
	Name              string     `json:"Name"`
	Description       string     `json:"Description"`
	AllowComments     bool       `json:"AllowComments"`
	UserID            int64      `json:"UserId"`
	ObjectTypeID      ObjectType `json:"ObjectTypeId"`
	ViewLink          string     `json:"ViewLink"`
	CommentsCount     int        `json:"CommentsCount"`
	HasUnreadComments bool       `json:"HasUnreadComments"`
	Created           string     `json:"Created"`
	Modified          string     `json:"Modified"`

	// File artifacts
	Extension string `json:"Extension,omitempty"`
	FileName  string `json:"FileName,omitempty"`
	FileSize  int64  `json:"FileSize,omitempty"`
	UploadKey string `json:"UploadKey,omitempty"`

	// URL artifacts
	URL string `json:"Url,omitempty"`

	// Collections
	ItemsCount int     `json:"ItemsCount,omitempty"`
	ItemIDs    []int64 `json:"ItemIds,omitempty"`

	// Presentations
	BannerTitle       string `json:"BannerTitle,omitempty"`
	BannerDescription string `json:"BannerDescription,omitempty"`

	Tags        []Tag         `json:"Tags,omitempty"`
	Permissions []ObjectRight `json:"Permissions,omitempty"`
	Comments    []Comment     `json:"Comments,omitempty"`
}

// Tag is an ePortfolio object tag
type Tag struct {
	Type int    `json:"Type"` // 0 public, 1 private
	Text string `json:"Text"`
}

// Comment is one comment left on an object. Body is HTML.
type Comment struct {
	ObjectID    int64  `json:"ObjectId"`
	CommentID   int64  `json:"CommentId"`
	UserID      int64  `json:"UserId"`
	CreatedDate string `json:"CreatedDate"`
	Body        string `json:"Body"`
}

// ObjectRight is a right granted on an object shared with another user
type ObjectRight int

const (
	RightView            ObjectRight = 1
	RightSeeComments     ObjectRight = 2
	RightAddComments     ObjectRight = 3
	RightViewAssessments ObjectRight = 4
	RightAddAssessments  ObjectRight = 5
	RightEdit            ObjectRight = 6
)

var objectRightNames = map[ObjectRight]string{
	RightView:            "View",
	RightSeeComments:     "SeeComments",
	RightAddComments:     "AddComments",
	RightViewAssessments: "ViewAssessments",
	RightAddAssessments:  "AddAssessments",
	RightEdit:            "Edit",
}

func (r ObjectRight) String() string {
	if name, ok := objectRightNames[r]; ok {
		return name
	}
	return "Right" + strconv.Itoa(int(r))
}

// ID returns the object id in the string form used inside page markup
func (p *ObjectProperties) ID() string { return strconv.FormatInt(p.ObjectID, 10) }

// PagingInfo is the cursor of a paged result set
type PagingInfo struct {
	Bookmark     string `json:"Bookmark"`
	HasMoreItems bool   `json:"HasMoreItems"`
}

// PagedResultSet is one page of ePortfolio objects
type PagedResultSet struct {
	PagingInfo PagingInfo         `json:"PagingInfo"`
	Items      []ObjectProperties `json:"Items"`
}

// CommentSet is one page of the comments on an object
type CommentSet struct {
	PagingInfo PagingInfo `json:"PagingInfo"`
	Items      []Comment  `json:"Items"`
}

// ListOptions filters ListObjects
type ListOptions struct {
	Query    string
	Bookmark string
	PageSize int
}

// NameResolver resolves the display file name of an embedded object
type NameResolver interface {
	ResolveFileName(ctx context.Context, objectID string) (string, error)
}

// ValenceClient reads ePortfolio objects from the Valence REST API
type ValenceClient struct {
	domain  string
	version string
	fetcher Fetcher
}

// NewValenceClient creates a client for domain using fetcher for transport.
// Authentication is whatever the fetcher attaches to its requests.
func NewValenceClient(domain, version string, fetcher Fetcher) *ValenceClient {
	if version == "" {
		version = DefaultAPIVersion
	}
	return &ValenceClient{domain: strings.TrimSuffix(domain, "/"), version: version, fetcher: fetcher}
}

func (c *ValenceClient) route(format string, args ...any) string {
	return c.domain + "/d2l/api/eP/" + c.version + fmt.Sprintf(format, args...)
}

func (c *ValenceClient) getJSON(ctx context.Context, route string, out any) error {
	body, err := c.fetcher.Fetch(ctx, route)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMetadataLookup, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrMetadataLookup, route, err)
	}
	return nil
}

// GetObject returns the generic properties of an object
func (c *ValenceClient) GetObject(ctx context.Context, id string) (*ObjectProperties, error) {
	var props ObjectProperties
	if err := c.getJSON(ctx, c.route("/object/%s", url.PathEscape(id)), &props); err != nil {
		return nil, err
	}
	return &props, nil
}

// GetObjectProperties returns an object with the properties specific to its
// type. Types without a dedicated route keep the generic properties.
func (c *ValenceClient) GetObjectProperties(ctx context.Context, id string) (*ObjectProperties, error) {
	generic, err := c.GetObject(ctx, id)
	if err != nil {
		return nil, err
	}

	var route string
	switch t := generic.ObjectTypeID; {
	case t == TypeFileArtifact:
		route = c.route("/artifact/file/%s", url.PathEscape(id))
	case t == TypeURLArtifact:
		route = c.route("/artifact/link/%s", url.PathEscape(id))
	case t.IsCollection():
		route = c.route("/collection/%s/contents/", url.PathEscape(id))
	case t == TypePresentation:
		route = c.route("/presentation/%s", url.PathEscape(id))
	default:
		return generic, nil
	}

	var typed ObjectProperties
	if err := c.getJSON(ctx, route, &typed); err != nil {
		return nil, err
	}
	// Typed routes may omit the type id
	if typed.ObjectTypeID == TypeObject {
		typed.ObjectTypeID = generic.ObjectTypeID
	}
	if typed.ObjectID == 0 {
		typed.ObjectID = generic.ObjectID
	}
	if typed.Name == "" {
		typed.Name = generic.Name
	}
	if typed.ViewLink == "" {
		typed.ViewLink = generic.ViewLink
	}
	return &typed, nil
}

// ResolveFileName returns the trimmed FileName of an object. An object
// without a file name cannot be placed in a mirror.
func (c *ValenceClient) ResolveFileName(ctx context.Context, id string) (string, error) {
	props, err := c.GetObjectProperties(ctx, id)
	if err != nil {
		return "", err
	}
	name := strings.TrimSpace(props.FileName)
	if name == "" {
		return "", fmt.Errorf("%w: object %s (%s) has no file name", ErrMetadataLookup, id, props.ObjectTypeID)
	}
	return name, nil
}

// GetComments returns one page of the comments on an object, starting after
// bookmark when it is set.
func (c *ValenceClient) GetComments(ctx context.Context, id, bookmark string) (*CommentSet, error) {
	route := c.route("/object/%s/comments/", url.PathEscape(id))
	if bookmark != "" {
		route += "?" + url.Values{"bookmark": {bookmark}}.Encode()
	}

	var set CommentSet
	if err := c.getJSON(ctx, route, &set); err != nil {
		return nil, err
	}
	return &set, nil
}

// GetTags returns the public and private tags of an object
func (c *ValenceClient) GetTags(ctx context.Context, id string) ([]Tag, error) {
	var tags []Tag
	if err := c.getJSON(ctx, c.route("/object/%s/tags/", url.PathEscape(id)), &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

// ContentURL is the address of an object's file stream
func (c *ValenceClient) ContentURL(id string) string {
	return c.route("/object/%s/content", url.PathEscape(id))
}

// ListObjects returns one page of the objects owned by the current user
func (c *ValenceClient) ListObjects(ctx context.Context, opts ListOptions) (*PagedResultSet, error) {
	q := url.Values{}
	if opts.Query != "" {
		q.Set("q", opts.Query)
	}
	if opts.Bookmark != "" {
		q.Set("bookmark", opts.Bookmark)
	}
	if opts.PageSize > 0 {
		q.Set("pagesize", strconv.Itoa(opts.PageSize))
	}

	route := c.route("/objects/my/")
	if len(q) > 0 {
		route += "?" + q.Encode()
	}

	var set PagedResultSet
	if err := c.getJSON(ctx, route, &set); err != nil {
		return nil, err
	}
	return &set, nil
}
