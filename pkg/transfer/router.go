// Package transfer routes file bytes between callers and providers, either by
// handing out a direct backend URL or by proxying the bytes through this
// process.
package transfer

import (
	"context"
	"io"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/provider"
	"github.com/marmos91/dittovfs/pkg/store"
)

// Transfer directions and modes, as reported to Metrics.
const (
	DirectionUpload   = "upload"
	DirectionDownload = "download"

	ModeDirect = "direct"
	ModeProxy  = "proxy"
)

// Acquirer opens a fresh adapter for a provider. The release func runs
// Cleanup exactly once.
type Acquirer interface {
	Acquire(ctx context.Context, providerID string) (provider.StorageProvider, func(), error)
}

// Metrics observes transfers.
type Metrics interface {
	RecordTransfer(providerType, direction, mode string, bytes int64)
	RecordTransferError(providerType, direction string)
}

type nopMetrics struct{}

func (nopMetrics) RecordTransfer(string, string, string, int64) {}
func (nopMetrics) RecordTransferError(string, string)           {}

// Download is the answer to RequestDownload: either a URL to redirect to or
// a Stream the caller must close.
type Download struct {
	URL    string
	Stream *Stream

	Name     string
	MimeType string
	Size     int64
}

// Redirect reports whether the caller should be sent to URL.
func (d *Download) Redirect() bool {
	return d.URL != ""
}

// Router dispatches uploads and downloads to provider adapters.
type Router struct {
	store    store.Store
	acquirer Acquirer
	metrics  Metrics
}

// NewRouter creates a router. m may be nil.
func NewRouter(s store.Store, acquirer Acquirer, m Metrics) *Router {
	if m == nil {
		m = nopMetrics{}
	}
	return &Router{store: s, acquirer: acquirer, metrics: m}
}

// RequestUpload prepares an upload. When the ticket has no direct URL the
// caller must follow up with UploadFile for ticket.FileID.
func (r *Router) RequestUpload(ctx context.Context, providerID string, req provider.UploadRequest) (*provider.UploadTicket, error) {
	adapter, done, err := r.acquirer.Acquire(ctx, providerID)
	if err != nil {
		return nil, err
	}
	defer done()

	ticket, err := adapter.RequestUpload(ctx, req)
	if err != nil {
		r.metrics.RecordTransferError(adapter.Type(), DirectionUpload)
		return nil, provider.Wrap(adapter.Type(), "request_upload", err)
	}
	if ticket.UseDirectUpload {
		r.metrics.RecordTransfer(adapter.Type(), DirectionUpload, ModeDirect, req.Size)
	}
	return &ticket, nil
}

// UploadFile proxies bytes for remoteID and returns the final remote id.
func (r *Router) UploadFile(ctx context.Context, providerID, remoteID string, body io.Reader, size int64) (string, error) {
	adapter, done, err := r.acquirer.Acquire(ctx, providerID)
	if err != nil {
		return "", err
	}
	defer done()

	newID, err := adapter.UploadFile(ctx, remoteID, body, size)
	if err != nil {
		r.metrics.RecordTransferError(adapter.Type(), DirectionUpload)
		return "", provider.Wrap(adapter.Type(), "upload", err)
	}
	if newID == "" {
		newID = remoteID
	}
	r.metrics.RecordTransfer(adapter.Type(), DirectionUpload, ModeProxy, size)
	return newID, nil
}

// RequestDownload resolves a cached file row to a direct URL, or to a proxied
// Stream when the backend cannot mint one. The stream is bound to ctx.
func (r *Router) RequestDownload(ctx context.Context, fileID string) (*Download, error) {
	file, err := r.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.IsDeleted {
		return nil, &provider.NotFoundError{Kind: "file", ID: fileID}
	}

	adapter, done, err := r.acquirer.Acquire(ctx, file.ProviderID)
	if err != nil {
		return nil, err
	}
	typ := adapter.Type()

	d := &Download{Name: file.Name, MimeType: file.MimeType, Size: file.Size}

	ticket, err := adapter.RequestDownload(ctx, file.RemoteID)
	if err != nil {
		done()
		r.metrics.RecordTransferError(typ, DirectionDownload)
		return nil, provider.Wrap(typ, "request_download", err)
	}
	if ticket.UseDirectDownload && ticket.DownloadURL != "" {
		done()
		d.URL = ticket.DownloadURL
		r.metrics.RecordTransfer(typ, DirectionDownload, ModeDirect, file.Size)
		return d, nil
	}

	rc, err := adapter.DownloadFile(ctx, file.RemoteID)
	if err != nil {
		done()
		r.metrics.RecordTransferError(typ, DirectionDownload)
		return nil, provider.Wrap(typ, "download", err)
	}

	d.Stream = NewStream(ctx, rc, done, func(read int64) {
		r.metrics.RecordTransfer(typ, DirectionDownload, ModeProxy, read)
		logger.Debug("Proxied %d bytes of file %s", read, fileID)
	})
	return d, nil
}
