package assets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"
)

// Dir serves assets from a file system, typically os.DirFS of the built site.
type Dir struct {
	fsys fs.FS
}

var _ Origin = (*Dir)(nil)

// NewDir creates a Dir origin over fsys.
func NewDir(fsys fs.FS) *Dir {
	return &Dir{fsys: fsys}
}

// Fetch resolves urlPath to a file. "/" and paths ending in "/" map to
// index.html; an extensionless path that is not a file is tried as
// "<path>/index.html" and then "<path>.html".
func (d *Dir) Fetch(ctx context.Context, urlPath string) (*Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, name := range candidates(urlPath) {
		body, err := fs.ReadFile(d.fsys, name)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) || isDirErr(d.fsys, name) {
				continue
			}
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}

		h := make(http.Header)
		h.Set("Content-Type", contentType(name, body))
		h.Set("Content-Length", strconv.Itoa(len(body)))
		h.Set("ETag", ETag(body))
		return &Asset{Status: http.StatusOK, Header: h, Body: body}, nil
	}
	return notFound(), nil
}

// candidates lists the file names urlPath may resolve to, in order.
func candidates(urlPath string) []string {
	clean := path.Clean("/" + urlPath)
	rel := strings.TrimPrefix(clean, "/")
	if rel == "" {
		return []string{"index.html"}
	}
	if strings.HasSuffix(urlPath, "/") {
		return []string{rel + "/index.html"}
	}
	names := []string{rel}
	if path.Ext(rel) == "" {
		names = append(names, rel+"/index.html", rel+".html")
	}
	return names
}

func isDirErr(fsys fs.FS, name string) bool {
	info, err := fs.Stat(fsys, name)
	return err == nil && info.IsDir()
}

func contentType(name string, body []byte) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return http.DetectContentType(body)
}
