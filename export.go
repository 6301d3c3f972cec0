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
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ObjectSource is the metadata service an Exporter reads from
type ObjectSource interface {
	NameResolver
	GetObjectProperties(ctx context.Context, id string) (*ObjectProperties, error)
	GetComments(ctx context.Context, id, bookmark string) (*CommentSet, error)
	GetTags(ctx context.Context, id string) ([]Tag, error)
	ContentURL(id string) string
}

// Exporter saves ePortfolio objects of any type to the output directory
type Exporter struct {
	Source   ObjectSource
	Fetcher  Fetcher
	Mirror   *Mirror
	Dir      string
	XML      bool // write metadata as XML instead of key: value text
	Comments bool // include the comments left on each object
}

// Export writes the metadata of an object followed by its content. Collections
// are exported item by item into the same directory.
func (e *Exporter) Export(ctx context.Context, id string) error {
	return e.export(ctx, id, map[string]bool{})
}

func (e *Exporter) export(ctx context.Context, id string, seen map[string]bool) error {
	if seen[id] {
		return nil
	}
	seen[id] = true

	obj, err := e.Source.GetObjectProperties(ctx, id)
	if err != nil {
		return fmt.Errorf("object %s: %w", id, err)
	}
	infoLog.Printf("Exporting %s %s (%s)", obj.ObjectTypeID, id, obj.Name)

	if obj.Tags == nil {
		if tags, err := e.Source.GetTags(ctx, id); err != nil {
			debugLog.Printf("No tags for %s: %v", id, err)
		} else {
			obj.Tags = tags
		}
	}
	if e.Comments {
		if obj.Comments, err = e.comments(ctx, id); err != nil {
			return fmt.Errorf("object %s: %w", id, err)
		}
	}

	if err := os.MkdirAll(e.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := e.writeMetadata(obj); err != nil {
		return err
	}

	switch t := obj.ObjectTypeID; {
	case t == TypeFileArtifact:
		name := sanitizeFileName(strings.TrimSpace(obj.FileName))
		if name == "" {
			return fmt.Errorf("%w: object %s has no file name", ErrMetadataLookup, id)
		}
		return e.Fetcher.Download(ctx, e.Source.ContentURL(id), filepath.Join(e.Dir, name))
	case t == TypeURLArtifact:
		return e.writeText(obj.Name+".txt", "Name: "+obj.Name, "URL: "+obj.URL, "Description: "+obj.Description)
	case t.IsCollection():
		for _, item := range obj.ItemIDs {
			if err := e.export(ctx, strconv.FormatInt(item, 10), seen); err != nil {
				return err
			}
		}
		return nil
	case t == TypePresentation:
		if e.Mirror == nil {
			return fmt.Errorf("no mirror configured for presentation %s", id)
		}
		result, err := e.Mirror.Run(ctx, obj)
		if err != nil {
			return err
		}
		infoLog.Printf("Presentation saved to %s", result.Dir)
		return nil
	default:
		return e.writeText(obj.Name+".txt", "Name: "+obj.Name, "Description: "+obj.Description)
	}
}

// comments follows the comment bookmarks of an object to the last page
func (e *Exporter) comments(ctx context.Context, id string) ([]Comment, error) {
	var (
		all      []Comment
		bookmark string
	)
	for {
		set, err := e.Source.GetComments(ctx, id, bookmark)
		if err != nil {
			return nil, err
		}
		all = append(all, set.Items...)
		next := set.PagingInfo.Bookmark
		if !set.PagingInfo.HasMoreItems || next == "" || next == bookmark {
			return all, nil
		}
		bookmark = next
	}
}

// metadataField is one metadata property. Sections such as Tags hold child
// fields instead of a value.
type metadataField struct {
	XMLName  xml.Name
	Value    string `xml:",chardata"`
	Children []metadataField
}

func field(name, value string) metadataField {
	return metadataField{XMLName: xml.Name{Local: name}, Value: value}
}

func section(name string, children ...metadataField) metadataField {
	return metadataField{XMLName: xml.Name{Local: name}, Children: children}
}

// metadataFields is the fixed set of properties written for every object
func metadataFields(obj *ObjectProperties) []metadataField {
	fields := []metadataField{
		field("ObjectId", obj.ID()),
		field("Name", obj.Name),
		field("Description", obj.Description),
		field("ObjectTypeId", strconv.Itoa(int(obj.ObjectTypeID))),
		field("UserId", strconv.FormatInt(obj.UserID, 10)),
		field("AllowComments", strconv.FormatBool(obj.AllowComments)),
		field("CommentsCount", strconv.Itoa(obj.CommentsCount)),
		field("Created", obj.Created),
		field("Modified", obj.Modified),
		field("ViewLink", obj.ViewLink),
	}
	if obj.FileName != "" {
		fields = append(fields,
			field("FileName", obj.FileName),
			field("Extension", obj.Extension),
			field("FileSize", strconv.FormatInt(obj.FileSize, 10)),
		)
	}
	if obj.URL != "" {
		fields = append(fields, field("Url", obj.URL))
	}
	if obj.ObjectTypeID.IsCollection() {
		fields = append(fields, field("ItemsCount", strconv.Itoa(len(obj.ItemIDs))))
	}
	if len(obj.Tags) > 0 {
		tags := section("Tags")
		for _, tag := range obj.Tags {
			tags.Children = append(tags.Children, section("Tag",
				field("Type", strconv.Itoa(tag.Type)),
				field("Text", tag.Text),
			))
		}
		fields = append(fields, tags)
	}
	if len(obj.Permissions) > 0 {
		perms := section("Permissions")
		for _, right := range obj.Permissions {
			perms.Children = append(perms.Children, field("Permission", right.String()))
		}
		fields = append(fields, perms)
	}
	if len(obj.Comments) > 0 {
		comments := section("Comments")
		for _, c := range obj.Comments {
			comments.Children = append(comments.Children, section("Comment",
				field("CommentId", strconv.FormatInt(c.CommentID, 10)),
				field("UserId", strconv.FormatInt(c.UserID, 10)),
				field("CreatedDate", c.CreatedDate),
				field("Body", c.Body),
			))
		}
		fields = append(fields, comments)
	}
	return fields
}

// textLines renders fields as "key: value" lines, indenting section children
// with one tab per level.
func textLines(fields []metadataField, indent string) []string {
	var lines []string
	for _, f := range fields {
		if f.Children == nil {
			lines = append(lines, indent+f.XMLName.Local+": "+f.Value)
			continue
		}
		lines = append(lines, indent+f.XMLName.Local+":")
		lines = append(lines, textLines(f.Children, indent+"\t")...)
	}
	return lines
}

func (e *Exporter) writeMetadata(obj *ObjectProperties) error {
	fields := metadataFields(obj)

	if !e.XML {
		return e.writeText(obj.Name+"_metadata.txt", textLines(fields, "")...)
	}

	out, err := xml.MarshalIndent(section(obj.ObjectTypeID.String(), fields...), "", "\t")
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	out = append([]byte(xml.Header), out...)
	return e.writeFile(obj.Name+"_metadata.xml", append(out, '\n'))
}

func (e *Exporter) writeText(name string, lines ...string) error {
	return e.writeFile(name, []byte(strings.Join(lines, "\n")+"\n"))
}

func (e *Exporter) writeFile(name string, data []byte) error {
	outputPath := filepath.Join(e.Dir, sanitizeFileName(name))
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", outputPath, err)
	}
	infoLog.Printf("Saved file: %s", outputPath)
	return nil
}
