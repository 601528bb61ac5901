// Package images decides how an image reference embedded in a tracked
// email is served: from the local upload directory, proxied from a remote
// URL, or replaced by the built-in placeholder pixel. Every real
// resolution attempt is recorded in the image-read log; failures degrade
// to the placeholder so tracking never visibly breaks email rendering.
package images

import (
	"context"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/ignite/engagement-tracker/internal/eventlog"
	"github.com/ignite/engagement-tracker/internal/pkg/httpfetch"
	"github.com/ignite/engagement-tracker/internal/pkg/logger"
	"github.com/ignite/engagement-tracker/internal/tracking"
)

// placeholderGIF is a 1x1 transparent GIF.
var placeholderGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0xff, 0x21, 0xf9,
	0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00,
	0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x01, 0x44, 0x00,
	0x3b,
}

const (
	placeholderContentType = "image/gif"

	// defaultRemoteContentType is assumed when the remote host omits one.
	defaultRemoteContentType = "image/jpeg"

	// maxRemoteImageSize caps proxied bodies to keep oversized remote
	// images from exhausting memory.
	maxRemoteImageSize = 10 * 1024 * 1024
)

// Resolver resolves image references against the upload directory and
// remote hosts, logging each attempt to the image-read log.
type Resolver struct {
	uploadDir string
	imgReads  *eventlog.Store
	fetch     *httpfetch.Client
}

// NewResolver creates a Resolver. fetch bounds every remote proxy attempt.
func NewResolver(uploadDir string, imgReads *eventlog.Store, fetch *httpfetch.Client) *Resolver {
	return &Resolver{uploadDir: uploadDir, imgReads: imgReads, fetch: fetch}
}

// Placeholder returns the built-in pixel and its content type.
func Placeholder() ([]byte, string) {
	return placeholderGIF, placeholderContentType
}

// Resolve turns an image reference into response bytes and a content
// type. It never fails: local and remote errors are logged as image-read
// events and degrade to the placeholder pixel. An empty imageParam serves
// the placeholder directly without logging a read event.
func (r *Resolver) Resolve(ctx context.Context, imageParam, email, messageID string) ([]byte, string) {
	if imageParam == "" {
		return Placeholder()
	}
	if isRemoteURL(imageParam) {
		return r.resolveRemote(ctx, imageParam, email, messageID)
	}
	return r.resolveLocal(imageParam, email, messageID)
}

// resolveLocal serves a file from the upload directory. Only the final
// path segment of the reference is used, so caller-supplied directory
// components cannot escape the upload dir.
func (r *Resolver) resolveLocal(imageParam, email, messageID string) ([]byte, string) {
	name := basename(imageParam)
	fpath := filepath.Join(r.uploadDir, name)

	content, err := os.ReadFile(fpath)
	if err != nil {
		logger.Warn("local image unavailable",
			"email", email,
			"filename", imageParam,
			"error", err.Error(),
		)
		r.logRead(tracking.ImageReadEvent{
			Email:     email,
			MessageID: messageID,
			Served:    tracking.ServedLocal,
			Filename:  imageParam,
			Error:     err.Error(),
		})
		return Placeholder()
	}

	ctype := mime.TypeByExtension(filepath.Ext(name))
	if ctype == "" {
		ctype = "application/octet-stream"
	}

	r.logRead(tracking.ImageReadEvent{
		Email:     email,
		MessageID: messageID,
		Served:    tracking.ServedLocal,
		Filename:  imageParam,
	})
	return content, ctype
}

// resolveRemote proxies the image from a remote URL with one bounded
// fetch. Any status code from the remote is proxied through; only
// transport failures fall back to the placeholder.
func (r *Resolver) resolveRemote(ctx context.Context, url, email, messageID string) ([]byte, string) {
	resp, err := r.fetch.Get(ctx, url)
	if err != nil {
		return r.remoteFailure(url, email, messageID, err)
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteImageSize))
	if err != nil {
		return r.remoteFailure(url, email, messageID, err)
	}

	ctype := resp.Header.Get("Content-Type")
	if ctype == "" {
		ctype = defaultRemoteContentType
	}

	r.logRead(tracking.ImageReadEvent{
		Email:     email,
		MessageID: messageID,
		Served:    tracking.ServedRemote,
		URL:       url,
	})
	return content, ctype
}

func (r *Resolver) remoteFailure(url, email, messageID string, err error) ([]byte, string) {
	logger.Warn("remote image fetch failed",
		"email", email,
		"url", url,
		"error", err.Error(),
	)
	r.logRead(tracking.ImageReadEvent{
		Email:     email,
		MessageID: messageID,
		Served:    tracking.ServedRemote,
		URL:       url,
		Error:     err.Error(),
	})
	return Placeholder()
}

// logRead appends one image-read event. A logging failure must not take
// down image delivery, so it is reported and swallowed here.
func (r *Resolver) logRead(evt tracking.ImageReadEvent) {
	if err := r.imgReads.Append(evt); err != nil {
		logger.Error("image read log append failed", "error", err.Error())
	}
}

func isRemoteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// basename strips any directory components, tolerating both separator
// styles in caller-supplied references.
func basename(s string) string {
	return path.Base(strings.ReplaceAll(s, "\\", "/"))
}
