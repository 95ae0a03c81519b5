package service

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"

	"github.com/kmorrill/receipt-budgeter/internal/extraction"
)

// GCSArchiver stores uploaded receipt images in a Cloud Storage bucket.
type GCSArchiver struct {
	bucket *storage.BucketHandle
}

// NewGCSArchiver creates an archiver writing into the named bucket.
func NewGCSArchiver(client *storage.Client, bucket string) *GCSArchiver {
	return &GCSArchiver{bucket: client.Bucket(bucket)}
}

// Archive writes the image under receipts/<id> and returns the object path.
func (a *GCSArchiver) Archive(ctx context.Context, receiptID string, image extraction.ImagePart) (string, error) {
	object := fmt.Sprintf("receipts/%s%s", receiptID, extensionFor(image.MIMEType))
	w := a.bucket.Object(object).NewWriter(ctx)
	w.ContentType = image.MIMEType
	if _, err := w.Write(image.Data); err != nil {
		w.Close()
		return "", fmt.Errorf("failed to write receipt image: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize receipt image: %w", err)
	}
	return object, nil
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/heic":
		return ".heic"
	case "image/heif":
		return ".heif"
	default:
		return ""
	}
}
