package s3

import (
	"context"
	"errors"
	"io"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/provider"
)

// SupportsChunkedUpload reports native multipart support.
func (p *Provider) SupportsChunkedUpload() bool { return true }

// InitiateMultipart starts an S3 multipart upload for the destination key.
func (p *Provider) InitiateMultipart(ctx context.Context, req provider.UploadRequest) (*provider.UploadSession, error) {
	if err := p.ready("initiate_multipart"); err != nil {
		return nil, err
	}

	key := p.folderPrefix(req.ParentID) + provider.SanitizeName(req.Name)
	input := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}
	if req.MimeType != "" {
		input.ContentType = aws.String(req.MimeType)
	}

	out, err := p.client.CreateMultipartUpload(ctx, input)
	if err != nil {
		return nil, wrapErr("initiate_multipart", err)
	}

	s := &provider.UploadSession{
		UploadID: aws.ToString(out.UploadId),
		RemoteID: key,
		Name:     req.Name,
		MimeType: req.MimeType,
		Size:     req.Size,
		ParentID: req.ParentID,
	}
	s.Set("key", key)
	return s, nil
}

// UploadPart uploads one part. Parts are independent and may arrive in any
// order; the returned ETag is needed to complete the upload.
func (p *Provider) UploadPart(ctx context.Context, s *provider.UploadSession, partNumber int, r io.Reader, size int64) (provider.Part, error) {
	if err := p.ready("upload_part"); err != nil {
		return provider.Part{}, err
	}

	input := &s3.UploadPartInput{
		Bucket:     aws.String(p.bucket),
		Key:        aws.String(s.Get("key")),
		UploadId:   aws.String(s.UploadID),
		PartNumber: aws.Int32(int32(partNumber)),
		Body:       r,
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}

	out, err := p.client.UploadPart(ctx, input)
	if err != nil {
		return provider.Part{}, wrapErr("upload_part", err)
	}

	return provider.Part{PartNumber: partNumber, ETag: aws.ToString(out.ETag), Size: size}, nil
}

// CompleteMultipart assembles the parts, sorted by part number as S3 requires.
func (p *Provider) CompleteMultipart(ctx context.Context, s *provider.UploadSession, parts []provider.Part) (string, error) {
	if err := p.ready("complete_multipart"); err != nil {
		return "", err
	}

	sorted := append([]provider.Part(nil), parts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })

	completed := make([]types.CompletedPart, 0, len(sorted))
	for _, part := range sorted {
		completed = append(completed, types.CompletedPart{
			ETag:       aws.String(part.ETag),
			PartNumber: aws.Int32(int32(part.PartNumber)),
		})
	}

	key := s.Get("key")
	_, err := p.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(p.bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(s.UploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return "", wrapErr("complete_multipart", err)
	}
	return key, nil
}

// AbortMultipart discards uploaded parts. An upload that no longer exists is
// not an error.
func (p *Provider) AbortMultipart(ctx context.Context, s *provider.UploadSession) error {
	if err := p.ready("abort_multipart"); err != nil {
		return err
	}

	_, err := p.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(p.bucket),
		Key:      aws.String(s.Get("key")),
		UploadId: aws.String(s.UploadID),
	})
	if err != nil {
		var noSuchUpload *types.NoSuchUpload
		if errors.As(err, &noSuchUpload) {
			logger.Debug("S3 multipart upload %s already gone", s.UploadID)
			return nil
		}
		return wrapErr("abort_multipart", err)
	}
	return nil
}
