package convert

import (
	"fmt"
	"strings"
	"time"

	"aggregat4/linkbook/internal/domain"
)

var textEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

func escape(s string) string {
	return textEscaper.Replace(s)
}

type folderGroup struct {
	name      string
	bookmarks []domain.Bookmark
}

// groupByFolder keeps folders in order of first appearance.
func groupByFolder(bookmarks []domain.Bookmark) []*folderGroup {
	var groups []*folderGroup
	index := make(map[string]*folderGroup)
	for _, b := range bookmarks {
		name := b.FolderName()
		if name == "" {
			name = uncategorized
		}
		g, ok := index[name]
		if !ok {
			g = &folderGroup{name: name}
			index[name] = g
			groups = append(groups, g)
		}
		g.bookmarks = append(g.bookmarks, b)
	}
	return groups
}

// ExportHTML writes a Netscape bookmark file with one folder per bookmark folder, all inside a
// single top-level export folder.
func ExportHTML(bookmarks []domain.Bookmark, now time.Time) (string, error) {
	if len(bookmarks) == 0 {
		return "", errNothingToExport
	}
	stamp := now.Unix()
	var b strings.Builder
	b.WriteString("<!DOCTYPE NETSCAPE-Bookmark-file-1>\n")
	b.WriteString("<!-- This is an automatically generated file.\n     It will be read and overwritten.\n     DO NOT EDIT! -->\n")
	b.WriteString(`<META HTTP-EQUIV="Content-Type" CONTENT="text/html; charset=UTF-8">` + "\n")
	b.WriteString("<TITLE>Bookmarks</TITLE>\n")
	b.WriteString("<H1>Bookmarks</H1>\n")
	b.WriteString("<DL><p>\n")
	fmt.Fprintf(&b, "    <DT><H3 ADD_DATE=\"%d\" LAST_MODIFIED=\"%d\">%s</H3>\n", stamp, stamp, exportFolderTitle)
	b.WriteString("    <DL><p>\n")
	for _, g := range groupByFolder(bookmarks) {
		fmt.Fprintf(&b, "        <DT><H3 ADD_DATE=\"%d\" LAST_MODIFIED=\"%d\">%s</H3>\n", stamp, stamp, escape(g.name))
		b.WriteString("        <DL><p>\n")
		for _, bm := range g.bookmarks {
			writeAnchor(&b, bm)
		}
		b.WriteString("        </DL><p>\n")
	}
	b.WriteString("    </DL><p>\n")
	b.WriteString("</DL><p>\n")
	return b.String(), nil
}

func writeAnchor(b *strings.Builder, bm domain.Bookmark) {
	fmt.Fprintf(b, `            <DT><A HREF="%s" ADD_DATE="%d"`, escape(bm.URL), bm.CreatedAt.Unix())
	if bm.Favicon != nil && *bm.Favicon != "" {
		fmt.Fprintf(b, ` ICON="%s"`, escape(*bm.Favicon))
	}
	if len(bm.Tags) > 0 {
		fmt.Fprintf(b, ` TAGS="%s"`, escape(strings.Join(bm.Tags, ",")))
	}
	fmt.Fprintf(b, ">%s</A>\n", escape(bm.Title))
	if bm.Description != "" {
		fmt.Fprintf(b, "            <DD>%s\n", escape(bm.Description))
	}
}
