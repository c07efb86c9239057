package models

import (
	"fmt"
	"strconv"
)

type CursorKind int

const (
	CursorURL CursorKind = iota
	CursorPageIndex
	CursorOffset
)

func (k CursorKind) String() string {
	switch k {
	case CursorURL:
		return "url"
	case CursorPageIndex:
		return "page"
	case CursorOffset:
		return "offset"
	}
	return "unknown"
}

// PageCursor identifies where a site's pagination should resume. Only the
// adapter that produced it knows how to turn it into a fetchable URL: URL
// cursors carry the address itself, index and offset cursors carry a base
// URL plus a position.
type PageCursor struct {
	Kind  CursorKind
	URL   string
	Index int
}

func URLCursor(u string) PageCursor {
	return PageCursor{Kind: CursorURL, URL: u}
}

func PageIndexCursor(base string, page int) PageCursor {
	return PageCursor{Kind: CursorPageIndex, URL: base, Index: page}
}

func OffsetCursor(base string, offset int) PageCursor {
	return PageCursor{Kind: CursorOffset, URL: base, Index: offset}
}

// Key is the identity used for the per-job seen set.
func (c PageCursor) Key() string {
	if c.Kind == CursorURL {
		return c.Kind.String() + ":" + c.URL
	}
	return c.Kind.String() + ":" + c.URL + "#" + strconv.Itoa(c.Index)
}

func (c PageCursor) String() string {
	if c.Kind == CursorURL {
		return c.URL
	}
	return fmt.Sprintf("%s[%s=%d]", c.URL, c.Kind, c.Index)
}
