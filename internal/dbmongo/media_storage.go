package dbmongo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"goreels/internal/blob"
	"goreels/internal/common"
)

// MediaStorage is a blob.Store backed by a GridFS bucket. Refs are the hex
// ObjectIDs of the GridFS files.
type MediaStorage struct {
	gridFS *gridfs.Bucket
}

func NewMediaStorage(mongoClient *MongoClient) *MediaStorage {
	return &MediaStorage{
		gridFS: mongoClient.GridFS,
	}
}

func (ms *MediaStorage) Upload(ctx context.Context, filename, mimeType string, content io.Reader) (*blob.Object, error) {
	fileType := common.DetectFileType(mimeType)

	metadata := bson.M{
		"file_type":   fileType.String(),
		"mime_type":   mimeType,
		"uploaded_at": time.Now().UTC(),
	}

	stream, err := ms.gridFS.OpenUploadStream(filename, options.GridFSUpload().SetMetadata(metadata))
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = stream.SetWriteDeadline(deadline)
	}

	size, err := io.Copy(stream, content)
	if err != nil {
		_ = stream.Abort()
		return nil, fmt.Errorf("file copy failed: %w", err)
	}
	if err := stream.Close(); err != nil {
		return nil, fmt.Errorf("upload finalize failed: %w", err)
	}

	return &blob.Object{
		Ref:         stream.FileID.(primitive.ObjectID).Hex(),
		Name:        filename,
		ContentType: mimeType,
		Size:        size,
	}, nil
}

// Exists looks the ref up in the bucket's files collection. A ref that is not
// a valid ObjectID can never exist and is reported absent.
func (ms *MediaStorage) Exists(ctx context.Context, ref string) (bool, error) {
	objectID, err := primitive.ObjectIDFromHex(ref)
	if err != nil {
		return false, nil
	}

	n, err := ms.gridFS.GetFilesCollection().CountDocuments(ctx, bson.M{"_id": objectID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("gridfs lookup failed: %w", err)
	}
	return n > 0, nil
}

func (ms *MediaStorage) Delete(ctx context.Context, ref string) error {
	objectID, err := primitive.ObjectIDFromHex(ref)
	if err != nil {
		return nil
	}
	if err := ms.gridFS.DeleteContext(ctx, objectID); err != nil && !errors.Is(err, gridfs.ErrFileNotFound) {
		return fmt.Errorf("gridfs delete failed: %w", err)
	}
	return nil
}

func (ms *MediaStorage) Open(ctx context.Context, ref string) (io.ReadCloser, *blob.Object, error) {
	objectID, err := primitive.ObjectIDFromHex(ref)
	if err != nil {
		return nil, nil, blob.ErrNotFound
	}

	stream, err := ms.gridFS.OpenDownloadStream(objectID)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, nil, blob.ErrNotFound
		}
		return nil, nil, fmt.Errorf("download failed: %w", err)
	}

	fileInfo := stream.GetFile()
	var metadata bson.M
	if fileInfo.Metadata != nil {
		_ = bson.Unmarshal(fileInfo.Metadata, &metadata)
	}

	return stream, &blob.Object{
		Ref:         ref,
		Name:        fileInfo.Name,
		ContentType: getStringFromMap(metadata, "mime_type"),
		Size:        fileInfo.Length,
	}, nil
}

func getStringFromMap(m bson.M, key string) string {
	if m == nil {
		return ""
	}
	if val, ok := m[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

var _ blob.Store = (*MediaStorage)(nil)
