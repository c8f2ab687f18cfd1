package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/dittovfs/pkg/provider"
)

// deleteBatchSize is the DeleteObjects limit per request.
const deleteBatchSize = 1000

// GetQuota sums the size of every object under the prefix. S3 has no quota
// API, so this is an O(n) paginated scan; it only runs on connect and sync.
func (p *Provider) GetQuota(ctx context.Context) (provider.Quota, error) {
	if err := p.ready("quota"); err != nil {
		return provider.Quota{}, err
	}

	var used int64
	paginator := s3.NewListObjectsV2Paginator(p.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(p.bucket),
		Prefix: aws.String(p.prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return provider.Quota{}, wrapErr("quota", err)
		}
		for _, obj := range page.Contents {
			used += aws.ToInt64(obj.Size)
		}
	}

	return provider.NewQuota(used, nil), nil
}

// RequestUpload presigns a PUT for the destination key so the client uploads
// directly to the bucket.
func (p *Provider) RequestUpload(ctx context.Context, req provider.UploadRequest) (provider.UploadTicket, error) {
	if err := p.ready("request_upload"); err != nil {
		return provider.UploadTicket{}, err
	}

	key := p.folderPrefix(req.ParentID) + provider.SanitizeName(req.Name)
	presigned, err := p.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(p.expiry))
	if err != nil {
		return provider.UploadTicket{}, wrapErr("request_upload", err)
	}

	return provider.UploadTicket{
		FileID:          key,
		UploadURL:       presigned.URL,
		UploadFields:    flattenHeader(presigned.SignedHeader),
		UseDirectUpload: true,
	}, nil
}

// UploadFile writes the object through the proxy path.
func (p *Provider) UploadFile(ctx context.Context, remoteID string, r io.Reader, size int64) (string, error) {
	if err := p.ready("upload"); err != nil {
		return "", err
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(remoteID),
		Body:   r,
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}
	if _, err := p.client.PutObject(ctx, input); err != nil {
		return "", wrapErr("upload", err)
	}
	return "", nil
}

// RequestDownload presigns a GET for the object.
func (p *Provider) RequestDownload(ctx context.Context, remoteID string) (provider.DownloadTicket, error) {
	if err := p.ready("request_download"); err != nil {
		return provider.DownloadTicket{}, err
	}

	presigned, err := p.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(remoteID),
	}, s3.WithPresignExpires(p.expiry))
	if err != nil {
		return provider.DownloadTicket{}, wrapErr("request_download", err)
	}

	return provider.DownloadTicket{DownloadURL: presigned.URL, UseDirectDownload: true}, nil
}

func (p *Provider) DownloadFile(ctx context.Context, remoteID string) (io.ReadCloser, error) {
	if err := p.ready("download"); err != nil {
		return nil, err
	}

	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(remoteID),
	})
	if err != nil {
		return nil, wrapErr("download", err)
	}
	return out.Body, nil
}

// CreateFolder writes a zero-byte marker object for the folder prefix.
func (p *Provider) CreateFolder(ctx context.Context, name string, parentID string) (provider.RemoteFolder, error) {
	if err := p.ready("create_folder"); err != nil {
		return provider.RemoteFolder{}, err
	}

	key := p.folderPrefix(parentID) + provider.SanitizeName(name) + "/"
	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(nil),
		ContentLength: aws.Int64(0),
	})
	if err != nil {
		return provider.RemoteFolder{}, wrapErr("create_folder", err)
	}

	return provider.RemoteFolder{RemoteID: key, Name: name, ParentID: parentID}, nil
}

// Delete removes an object, or every object under a folder prefix.
func (p *Provider) Delete(ctx context.Context, remoteID string, isFolder bool) error {
	if err := p.ready("delete"); err != nil {
		return err
	}

	if !isFolder {
		if remoteID == "" || !p.inScope(remoteID) {
			return &provider.NotFoundError{Kind: "file", ID: remoteID}
		}
		_, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(p.bucket),
			Key:    aws.String(remoteID),
		})
		return wrapErr("delete", err)
	}

	prefix := p.folderPrefix(remoteID)
	if !p.inScope(prefix) {
		return &provider.NotFoundError{Kind: "folder", ID: remoteID}
	}
	keys, err := p.keysUnder(ctx, "delete", prefix)
	if err != nil {
		return err
	}
	return p.deleteKeys(ctx, keys)
}

func (p *Provider) deleteKeys(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(keys) {
			end = len(keys)
		}

		objects := make([]types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(k)})
		}

		out, err := p.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(p.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return wrapErr("delete", err)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return &provider.ProviderError{
				Type:    Type,
				Op:      "delete",
				Message: fmt.Sprintf("failed to delete %s: %s", aws.ToString(first.Key), aws.ToString(first.Message)),
				Details: map[string]any{"failed": len(out.Errors)},
			}
		}
	}
	return nil
}

// Move is copy followed by delete; S3 has no rename.
func (p *Provider) Move(ctx context.Context, remoteID string, newParentID, newName *string) error {
	if err := p.ready("move"); err != nil {
		return err
	}

	isFolder := strings.HasSuffix(remoteID, "/")
	if _, err := p.copyTo(ctx, "move", remoteID, newParentID, newName); err != nil {
		return err
	}
	return p.Delete(ctx, remoteID, isFolder)
}

func (p *Provider) Copy(ctx context.Context, remoteID string, targetParentID, newName *string) (string, error) {
	if err := p.ready("copy"); err != nil {
		return "", err
	}
	return p.copyTo(ctx, "copy", remoteID, targetParentID, newName)
}

// copyTo copies a file or, recursively, a folder prefix and returns the new
// remote id.
func (p *Provider) copyTo(ctx context.Context, op, remoteID string, targetParentID, newName *string) (string, error) {
	isFolder := strings.HasSuffix(remoteID, "/")

	parent := p.parentOf(remoteID)
	if targetParentID != nil {
		parent = *targetParentID
	}
	name := baseName(remoteID)
	if newName != nil {
		name = provider.SanitizeName(*newName)
	}

	dest := p.folderPrefix(parent) + name
	if !isFolder {
		if dest == remoteID {
			return "", provider.StatusError(Type, op, http.StatusConflict, "source and destination are the same")
		}
		return dest, p.copyObject(ctx, op, remoteID, dest)
	}

	dest += "/"
	if strings.HasPrefix(dest, remoteID) {
		return "", provider.StatusError(Type, op, http.StatusConflict, "cannot copy a folder into itself")
	}

	keys, err := p.keysUnder(ctx, op, remoteID)
	if err != nil {
		return "", err
	}
	for _, k := range keys {
		if err := p.copyObject(ctx, op, k, dest+strings.TrimPrefix(k, remoteID)); err != nil {
			return "", err
		}
	}
	return dest, nil
}

func (p *Provider) copyObject(ctx context.Context, op, src, dst string) error {
	source := (&url.URL{Path: p.bucket + "/" + src}).EscapedPath()
	_, err := p.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(p.bucket),
		Key:        aws.String(dst),
		CopySource: aws.String(source),
	})
	return wrapErr(op, err)
}

// keysUnder lists every key starting with prefix, the marker included.
func (p *Provider) keysUnder(ctx context.Context, op, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(p.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(p.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, wrapErr(op, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

func (p *Provider) GetFileMetadata(ctx context.Context, remoteID string) (provider.RemoteFile, error) {
	if err := p.ready("file_metadata"); err != nil {
		return provider.RemoteFile{}, err
	}

	out, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(remoteID),
	})
	if err != nil {
		return provider.RemoteFile{}, wrapErr("file_metadata", err)
	}

	return provider.RemoteFile{
		RemoteID:   remoteID,
		Name:       baseName(remoteID),
		ParentID:   p.parentOf(remoteID),
		MimeType:   aws.ToString(out.ContentType),
		Size:       aws.ToInt64(out.ContentLength),
		Hash:       strings.Trim(aws.ToString(out.ETag), `"`),
		ModifiedAt: aws.ToTime(out.LastModified),
	}, nil
}

// GetFolderMetadata accepts both materialized folders (marker object) and
// implicit ones (keys exist under the prefix).
func (p *Provider) GetFolderMetadata(ctx context.Context, remoteID string) (provider.RemoteFolder, error) {
	if err := p.ready("folder_metadata"); err != nil {
		return provider.RemoteFolder{}, err
	}

	prefix := normalizePrefix(remoteID)
	out, err := p.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(p.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return provider.RemoteFolder{}, wrapErr("folder_metadata", err)
	}
	if len(out.Contents) == 0 {
		return provider.RemoteFolder{}, provider.StatusError(Type, "folder_metadata", http.StatusNotFound, "folder "+remoteID+" not found")
	}

	folder := provider.RemoteFolder{
		RemoteID: prefix,
		Name:     baseName(prefix),
		ParentID: p.parentOf(prefix),
	}
	if aws.ToString(out.Contents[0].Key) == prefix {
		folder.ModifiedAt = aws.ToTime(out.Contents[0].LastModified)
	}
	return folder, nil
}

func flattenHeader(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
