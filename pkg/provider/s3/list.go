package s3

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/dittovfs/pkg/provider"
)

// defaultListLimit mirrors the S3 maximum page size.
const defaultListLimit = 1000

// List returns one page of a folder using the "/" delimiter: common prefixes
// become folders, objects become files. The folder's own marker object is not
// reported. The S3 continuation token is used as the page token.
func (p *Provider) List(ctx context.Context, req provider.ListRequest) (provider.ListResult, error) {
	if err := p.ready("list"); err != nil {
		return provider.ListResult{}, err
	}

	limit := req.Limit
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}

	prefix := p.folderPrefix(req.FolderID)
	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(p.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
		MaxKeys:   aws.Int32(int32(limit)),
	}
	if req.PageToken != "" {
		input.ContinuationToken = aws.String(req.PageToken)
	}

	out, err := p.client.ListObjectsV2(ctx, input)
	if err != nil {
		return provider.ListResult{}, wrapErr("list", err)
	}

	var result provider.ListResult
	for _, cp := range out.CommonPrefixes {
		key := aws.ToString(cp.Prefix)
		result.Folders = append(result.Folders, provider.RemoteFolder{
			RemoteID: key,
			Name:     baseName(key),
			ParentID: req.FolderID,
		})
	}
	for _, obj := range out.Contents {
		key := aws.ToString(obj.Key)
		if key == prefix || strings.HasSuffix(key, "/") {
			continue
		}
		result.Files = append(result.Files, provider.RemoteFile{
			RemoteID:   key,
			Name:       baseName(key),
			ParentID:   req.FolderID,
			Size:       aws.ToInt64(obj.Size),
			Hash:       strings.Trim(aws.ToString(obj.ETag), `"`),
			ModifiedAt: aws.ToTime(obj.LastModified),
		})
	}

	if aws.ToBool(out.IsTruncated) {
		result.NextPageToken = aws.ToString(out.NextContinuationToken)
	}
	return result, nil
}
