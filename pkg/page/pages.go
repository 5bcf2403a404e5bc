// Package page is the demo job served by the symphony listener: it reads one
// HTTP request from a connection and answers with a static page.
package page

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
)

const (
	helloPage    = "hello.html"
	notFoundPage = "404.html"
)

//go:embed templates/*.html
var embedded embed.FS

// Pages holds the rendered bodies served by the job.
type Pages struct {
	Hello    []byte
	NotFound []byte
}

// LoadPages reads hello.html and 404.html from dir. An empty dir uses the
// built-in pages.
func LoadPages(dir string) (*Pages, error) {
	var fsys fs.FS
	if dir == "" {
		sub, err := fs.Sub(embedded, "templates")
		if err != nil {
			return nil, err
		}
		fsys = sub
	} else {
		fsys = os.DirFS(dir)
	}

	hello, err := fs.ReadFile(fsys, helloPage)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", helloPage, err)
	}
	notFound, err := fs.ReadFile(fsys, notFoundPage)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", notFoundPage, err)
	}
	return &Pages{Hello: hello, NotFound: notFound}, nil
}
