package backend

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// MaxImagesPerUpload bounds a single batch upload.
const MaxImagesPerUpload = 10

// ImageUpload is one file of a batch upload.
type ImageUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// UploadProductImages uploads a batch of images for a product as
// multipart/form-data, one "images" part per file.
func (c *Client) UploadProductImages(ctx context.Context, productID string, files []ImageUpload) ([]domain.Image, error) {
	if len(files) == 0 {
		return nil, apperrors.InvalidInput("at least one image is required")
	}
	if len(files) > MaxImagesPerUpload {
		return nil, apperrors.InvalidInput(fmt.Sprintf("at most %d images can be uploaded at once", MaxImagesPerUpload))
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="images"; filename=%q`, f.Filename))
		ct := f.ContentType
		if ct == "" {
			ct = http.DetectContentType(f.Data)
		}
		h.Set("Content-Type", ct)

		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("create multipart part: %w", err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, fmt.Errorf("write multipart part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	var out []domain.Image
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/images/product/" + url.PathEscape(productID) + "/batch",
		body:   bytes.NewReader(buf.Bytes()),
		ctype:  mw.FormDataContentType(),
		auth:   required,
		out:    &out,
	})
	return nonNil(out), err
}

// DeleteImages deletes a batch of product images.
func (c *Client) DeleteImages(ctx context.Context, imageIDs []string) error {
	if len(imageIDs) == 0 {
		return apperrors.InvalidInput("at least one image id is required")
	}
	in := struct {
		ImageIDs []string `json:"image_ids"`
	}{ImageIDs: imageIDs}
	return c.doJSON(ctx, http.MethodDelete, "/products/images/delete/batch", required, in, nil)
}

// SetPrimaryImage marks an image as its product's primary image.
func (c *Client) SetPrimaryImage(ctx context.Context, imageID string) error {
	return c.doJSON(ctx, http.MethodPut, "/products/images/"+url.PathEscape(imageID)+"/primary", required, nil, nil)
}
