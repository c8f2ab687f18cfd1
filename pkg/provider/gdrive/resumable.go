package gdrive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/provider"
)

// statusResumeIncomplete is the 308 Drive answers to a non-final chunk.
const statusResumeIncomplete = 308

// SupportsChunkedUpload reports resumable upload support.
func (p *Provider) SupportsChunkedUpload() bool { return true }

// InitiateMultipart opens a resumable upload session. The session URI
// returned in Location is the upload id.
//
// Drive appends chunks to the session in order: parts must be uploaded
// sequentially starting at 1, and every part but the last should be a
// multiple of 256 KiB.
func (p *Provider) InitiateMultipart(ctx context.Context, req provider.UploadRequest) (*provider.UploadSession, error) {
	if err := p.ready("initiate_multipart"); err != nil {
		return nil, err
	}

	meta := map[string]any{
		"name":    req.Name,
		"parents": []string{p.folder(req.ParentID)},
	}
	if req.MimeType != "" {
		meta["mimeType"] = req.MimeType
	}
	body, err := json.Marshal(meta)
	if err != nil {
		return nil, provider.Wrap(Type, "initiate_multipart", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.uploadURL+"?uploadType=resumable", bytes.NewReader(body))
	if err != nil {
		return nil, provider.Wrap(Type, "initiate_multipart", err)
	}
	httpReq.Header.Set("Content-Type", "application/json; charset=UTF-8")
	if req.MimeType != "" {
		httpReq.Header.Set("X-Upload-Content-Type", req.MimeType)
	}
	if req.Size > 0 {
		httpReq.Header.Set("X-Upload-Content-Length", strconv.FormatInt(req.Size, 10))
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, wrapErr("initiate_multipart", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusErr("initiate_multipart", resp)
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return nil, &provider.ProviderError{Type: Type, Op: "initiate_multipart", Message: "no session URI in response"}
	}

	s := &provider.UploadSession{
		UploadID: location,
		Name:     req.Name,
		MimeType: req.MimeType,
		Size:     req.Size,
		ParentID: req.ParentID,
	}
	s.Set("offset", "0")
	s.Set("next_part", "1")
	return s, nil
}

// UploadPart appends one chunk to the session. The chunk that completes a
// known-size upload makes Drive create the file; its id is kept in the
// session for CompleteMultipart.
func (p *Provider) UploadPart(ctx context.Context, s *provider.UploadSession, partNumber int, r io.Reader, size int64) (provider.Part, error) {
	if err := p.ready("upload_part"); err != nil {
		return provider.Part{}, err
	}

	next, _ := strconv.Atoi(s.Get("next_part"))
	if partNumber != next {
		return provider.Part{}, provider.StatusError(Type, "upload_part", http.StatusConflict,
			fmt.Sprintf("resumable uploads need sequential parts: expected %d, got %d", next, partNumber))
	}

	if size < 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return provider.Part{}, provider.Wrap(Type, "upload_part", err)
		}
		r = bytes.NewReader(data)
		size = int64(len(data))
	}

	offset, _ := strconv.ParseInt(s.Get("offset"), 10, 64)
	total := "*"
	if s.Size > 0 {
		total = strconv.FormatInt(s.Size, 10)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, s.UploadID, r)
	if err != nil {
		return provider.Part{}, provider.Wrap(Type, "upload_part", err)
	}
	httpReq.ContentLength = size
	if size == 0 {
		httpReq.Body = http.NoBody
		httpReq.Header.Set("Content-Range", "bytes */"+total)
	} else {
		httpReq.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%s", offset, offset+size-1, total))
	}

	fileID, err := p.sendChunk(httpReq, "upload_part")
	if err != nil {
		return provider.Part{}, err
	}
	if fileID != "" {
		s.Set("file_id", fileID)
	}
	s.Set("offset", strconv.FormatInt(offset+size, 10))
	s.Set("next_part", strconv.Itoa(partNumber+1))

	return provider.Part{PartNumber: partNumber, ETag: strconv.FormatInt(offset, 10), Size: size}, nil
}

// CompleteMultipart returns the id of the created file. Known-size uploads
// complete implicitly with their last chunk; otherwise the total length is
// declared now.
func (p *Provider) CompleteMultipart(ctx context.Context, s *provider.UploadSession, parts []provider.Part) (string, error) {
	if err := p.ready("complete_multipart"); err != nil {
		return "", err
	}

	sorted := append([]provider.Part(nil), parts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })
	for i, part := range sorted {
		if part.PartNumber != i+1 {
			return "", provider.StatusError(Type, "complete_multipart", http.StatusBadRequest, fmt.Sprintf("missing part %d", i+1))
		}
	}

	if id := s.Get("file_id"); id != "" {
		s.RemoteID = id
		return id, nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, s.UploadID, http.NoBody)
	if err != nil {
		return "", provider.Wrap(Type, "complete_multipart", err)
	}
	httpReq.Header.Set("Content-Range", "bytes */"+s.Get("offset"))

	id, err := p.sendChunk(httpReq, "complete_multipart")
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", &provider.ProviderError{Type: Type, Op: "complete_multipart", Message: "upload not finalized by server"}
	}
	s.RemoteID = id
	return id, nil
}

// AbortMultipart cancels the session. Drive discards abandoned sessions after
// a week anyway, so failures are only logged.
func (p *Provider) AbortMultipart(ctx context.Context, s *provider.UploadSession) error {
	if err := p.ready("abort_multipart"); err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.UploadID, http.NoBody)
	if err != nil {
		return provider.Wrap(Type, "abort_multipart", err)
	}
	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		logger.Debug("Drive resumable session cancel failed: %v", err)
		return nil
	}
	_ = resp.Body.Close()
	return nil
}

// sendChunk sends a session request and returns the file id when the upload
// is complete, "" when Drive expects more data.
func (p *Provider) sendChunk(req *http.Request, op string) (string, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", wrapErr(op, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case statusResumeIncomplete:
		return "", nil
	case http.StatusOK, http.StatusCreated:
		var created struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
			return "", provider.Wrap(Type, op, fmt.Errorf("failed to decode upload response: %w", err))
		}
		return created.ID, nil
	default:
		return "", statusErr(op, resp)
	}
}

// statusErr reads a Drive JSON error body into a ProviderError.
func statusErr(op string, resp *http.Response) error {
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)
	return provider.StatusError(Type, op, resp.StatusCode, body.Error.Message)
}
