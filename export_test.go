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
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"testing"
)

func newTestExporter(t *testing.T, asXML bool) *Exporter {
	t.Helper()
	srv := newValenceServer(t, map[string]string{
		"/d2l/api/eP/2.3/object/9001":              `{"ObjectId":9001,"Name":"Essay","ObjectTypeId":310}`,
		"/d2l/api/eP/2.3/artifact/file/9001":       `{"Name":"Essay","Description":"Final draft","FileName":"essay.pdf","Extension":"pdf","FileSize":8}`,
		"/d2l/api/eP/2.3/object/9001/content":      "%PDF-1.4",
		"/d2l/api/eP/2.3/object/55":                `{"ObjectId":55,"Name":"Site","ObjectTypeId":340}`,
		"/d2l/api/eP/2.3/artifact/link/55":         `{"Description":"My homepage","Url":"https://www.example.com/"}`,
		"/d2l/api/eP/2.3/object/7":                 `{"ObjectId":7,"Name":"Thoughts","Description":"Week one","ObjectTypeId":200}`,
		"/d2l/api/eP/2.3/object/100":               `{"ObjectId":100,"Name":"Coursework","ObjectTypeId":100}`,
		"/d2l/api/eP/2.3/collection/100/contents/": `{"ItemIds":[9001,55,100]}`,
	})
	client := srv.client()
	return &Exporter{Source: client, Fetcher: client.fetcher, Dir: t.TempDir(), XML: asXML}
}

func readExport(t *testing.T, e *Exporter, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(e.Dir, name))
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return string(data)
}

func TestExportFileArtifact(t *testing.T) {
	e := newTestExporter(t, false)
	if err := e.Export(context.Background(), "9001"); err != nil {
		t.Fatalf("Export: %v", err)
	}

	if got := readExport(t, e, "essay.pdf"); got != "%PDF-1.4" {
		t.Errorf("essay.pdf = %q; want %%PDF-1.4", got)
	}
	meta := readExport(t, e, "Essay_metadata.txt")
	for _, line := range []string{"ObjectId: 9001", "Name: Essay", "Description: Final draft", "ObjectTypeId: 310", "FileName: essay.pdf"} {
		if !strings.Contains(meta, line+"\n") {
			t.Errorf("metadata missing %q:\n%s", line, meta)
		}
	}
}

func TestExportURLArtifact(t *testing.T) {
	e := newTestExporter(t, false)
	if err := e.Export(context.Background(), "55"); err != nil {
		t.Fatalf("Export: %v", err)
	}

	want := "Name: Site\nURL: https://www.example.com/\nDescription: My homepage\n"
	if got := readExport(t, e, "Site.txt"); got != want {
		t.Errorf("Site.txt mismatch:\n%s", unifiedDiff(want, got))
	}
}

func TestExportDefault(t *testing.T) {
	e := newTestExporter(t, false)
	if err := e.Export(context.Background(), "7"); err != nil {
		t.Fatalf("Export: %v", err)
	}

	want := "Name: Thoughts\nDescription: Week one\n"
	if got := readExport(t, e, "Thoughts.txt"); got != want {
		t.Errorf("Thoughts.txt mismatch:\n%s", unifiedDiff(want, got))
	}
}

func TestExportCollection(t *testing.T) {
	e := newTestExporter(t, false)
	if err := e.Export(context.Background(), "100"); err != nil {
		t.Fatalf("Export: %v", err)
	}

	for _, name := range []string{"Coursework_metadata.txt", "Essay_metadata.txt", "essay.pdf", "Site_metadata.txt", "Site.txt"} {
		if _, err := os.Stat(filepath.Join(e.Dir, name)); err != nil {
			t.Errorf("collection export missing %s: %v", name, err)
		}
	}
	if meta := readExport(t, e, "Coursework_metadata.txt"); !strings.Contains(meta, "ItemsCount: 3\n") {
		t.Errorf("collection metadata missing ItemsCount:\n%s", meta)
	}
}

func TestExportXMLMetadata(t *testing.T) {
	e := newTestExporter(t, true)
	if err := e.Export(context.Background(), "55"); err != nil {
		t.Fatalf("Export: %v", err)
	}

	data := readExport(t, e, "Site_metadata.xml")
	if !strings.HasPrefix(data, xml.Header+"<url_artifact>\n\t<ObjectId>55</ObjectId>") {
		t.Errorf("unexpected XML layout:\n%s", data)
	}

	var decoded struct {
		XMLName xml.Name
		Name    string `xml:"Name"`
		URL     string `xml:"Url"`
	}
	if err := xml.Unmarshal([]byte(data), &decoded); err != nil {
		t.Fatalf("xml.Unmarshal: %v", err)
	}
	if decoded.XMLName.Local != "url_artifact" || decoded.Name != "Site" || decoded.URL != "https://www.example.com/" {
		t.Errorf("decoded metadata = %+v", decoded)
	}
}

func TestExportPresentationNeedsMirror(t *testing.T) {
	srv := newValenceServer(t, map[string]string{
		"/d2l/api/eP/2.3/object/1234":       `{"ObjectId":1234,"Name":"Portfolio","ObjectTypeId":400}`,
		"/d2l/api/eP/2.3/presentation/1234": `{"ViewLink":"/d2l/eP/presentations/presentation_preview_popup.d2l?presId=1234"}`,
	})
	client := srv.client()
	e := &Exporter{Source: client, Fetcher: client.fetcher, Dir: t.TempDir()}

	if err := e.Export(context.Background(), "1234"); err == nil {
		t.Error("Export of a presentation without a mirror succeeded; want error")
	}
}

func TestExportTypedCollections(t *testing.T) {
	for _, typ := range []ObjectType{TypeStaticCollection, TypeDynamicCollection} {
		id := strconv.Itoa(int(typ))
		srv := newValenceServer(t, map[string]string{
			"/d2l/api/eP/2.3/object/" + id:                    `{"ObjectId":` + id + `,"Name":"Group","ObjectTypeId":` + id + `}`,
			"/d2l/api/eP/2.3/collection/" + id + "/contents/": `{"ItemIds":[7]}`,
			"/d2l/api/eP/2.3/object/7":                        `{"ObjectId":7,"Name":"Thoughts","Description":"Week one","ObjectTypeId":200}`,
		})
		client := srv.client()
		e := &Exporter{Source: client, Fetcher: client.fetcher, Dir: t.TempDir()}

		if err := e.Export(context.Background(), id); err != nil {
			t.Fatalf("%s: Export: %v", typ, err)
		}
		if !srv.requested("/d2l/api/eP/2.3/collection/" + id + "/contents/") {
			t.Errorf("%s: contents route not requested", typ)
		}
		if _, err := os.Stat(filepath.Join(e.Dir, "Thoughts.txt")); err != nil {
			t.Errorf("%s: collection item not exported: %v", typ, err)
		}
	}
}

func newAnnotatedExporter(t *testing.T, asXML bool) (*Exporter, *valenceServer) {
	t.Helper()
	srv := newValenceServer(t, map[string]string{
		"/d2l/api/eP/2.3/object/7":                       `{"ObjectId":7,"Name":"Thoughts","Description":"Week one","ObjectTypeId":200,"Permissions":[1,6]}`,
		"/d2l/api/eP/2.3/object/7/tags/":                 `[{"Type":0,"Text":"week1"},{"Type":1,"Text":"draft"}]`,
		"/d2l/api/eP/2.3/object/7/comments/":             `{"PagingInfo":{"Bookmark":"c1","HasMoreItems":true},"Items":[{"ObjectId":7,"CommentId":1,"UserId":42,"CreatedDate":"2025-01-02","Body":"<p>Nice</p>"}]}`,
		"/d2l/api/eP/2.3/object/7/comments/?bookmark=c1": `{"PagingInfo":{"Bookmark":"","HasMoreItems":false},"Items":[{"ObjectId":7,"CommentId":2,"UserId":43,"CreatedDate":"2025-01-03","Body":"Thanks"}]}`,
	})
	client := srv.client()
	return &Exporter{Source: client, Fetcher: client.fetcher, Dir: t.TempDir(), XML: asXML, Comments: true}, srv
}

func TestExportAnnotationsText(t *testing.T) {
	e, _ := newAnnotatedExporter(t, false)
	if err := e.Export(context.Background(), "7"); err != nil {
		t.Fatalf("Export: %v", err)
	}

	meta := readExport(t, e, "Thoughts_metadata.txt")
	want := "Tags:\n" +
		"\tTag:\n\t\tType: 0\n\t\tText: week1\n" +
		"\tTag:\n\t\tType: 1\n\t\tText: draft\n" +
		"Permissions:\n\tPermission: View\n\tPermission: Edit\n" +
		"Comments:\n" +
		"\tComment:\n\t\tCommentId: 1\n\t\tUserId: 42\n\t\tCreatedDate: 2025-01-02\n\t\tBody: <p>Nice</p>\n" +
		"\tComment:\n\t\tCommentId: 2\n\t\tUserId: 43\n\t\tCreatedDate: 2025-01-03\n\t\tBody: Thanks\n"
	if !strings.HasSuffix(meta, want) {
		t.Errorf("metadata annotations mismatch:\n%s", unifiedDiff(want, meta))
	}
}

func TestExportAnnotationsXML(t *testing.T) {
	e, _ := newAnnotatedExporter(t, true)
	if err := e.Export(context.Background(), "7"); err != nil {
		t.Fatalf("Export: %v", err)
	}

	var decoded struct {
		Tags []struct {
			Type int    `xml:"Type"`
			Text string `xml:"Text"`
		} `xml:"Tags>Tag"`
		Permissions []string `xml:"Permissions>Permission"`
		Comments    []struct {
			CommentID int64  `xml:"CommentId"`
			Body      string `xml:"Body"`
		} `xml:"Comments>Comment"`
	}
	if err := xml.Unmarshal([]byte(readExport(t, e, "Thoughts_metadata.xml")), &decoded); err != nil {
		t.Fatalf("xml.Unmarshal: %v", err)
	}

	if len(decoded.Tags) != 2 || decoded.Tags[0].Text != "week1" || decoded.Tags[1].Type != 1 {
		t.Errorf("Tags = %+v", decoded.Tags)
	}
	if !reflect.DeepEqual(decoded.Permissions, []string{"View", "Edit"}) {
		t.Errorf("Permissions = %q; want [View Edit]", decoded.Permissions)
	}
	if len(decoded.Comments) != 2 || decoded.Comments[0].Body != "<p>Nice</p>" || decoded.Comments[1].CommentID != 2 {
		t.Errorf("Comments = %+v", decoded.Comments)
	}
}

func TestExportWithoutCommentsSkipsCommentsRoute(t *testing.T) {
	e, srv := newAnnotatedExporter(t, false)
	e.Comments = false
	if err := e.Export(context.Background(), "7"); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if srv.requested("/d2l/api/eP/2.3/object/7/comments/") {
		t.Error("comments requested without the comments option")
	}
	if meta := readExport(t, e, "Thoughts_metadata.txt"); strings.Contains(meta, "Comments:") {
		t.Errorf("metadata has a Comments section:\n%s", meta)
	}
}
