// ABOUTME: File staging, presigned upload and download URL endpoints
// ABOUTME: Uploads go straight to object storage with a multipart POST

package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"

	"github.com/2389/coven-chat/internal/transcript"
)

// UploadTarget is a presigned upload destination for one file.
type UploadTarget struct {
	UploadURL    string            `json:"upload_url"`
	UploadFields map[string]string `json:"upload_fields"`
	FileID       string            `json:"file_id"`
	S3Key        string            `json:"s3_key"`
}

type stageRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

// StageFile reserves an upload slot for a file.
func (c *Client) StageFile(ctx context.Context, filename, contentType string) (*UploadTarget, error) {
	if filename == "" {
		return nil, errors.New("filename required")
	}
	var target UploadTarget
	req := stageRequest{Filename: filename, ContentType: contentType}
	if err := c.doJSON(ctx, http.MethodPost, c.apiURL("/api/v1/files/stage"), req, &target, true); err != nil {
		return nil, err
	}
	if target.UploadURL == "" {
		return nil, errors.New("server returned an empty upload url")
	}
	return &target, nil
}

// UploadFile sends r to the presigned target. The form fields are written
// before the file part. No bearer token is sent.
func (c *Client) UploadFile(ctx context.Context, target *UploadTarget, filename string, r io.Reader) error {
	if target == nil {
		return errors.New("upload target required")
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeUploadForm(mw, target.UploadFields, filename, r))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.UploadURL, pr)
	if err != nil {
		pr.Close()
		return fmt.Errorf("creating upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		pr.CloseWithError(err)
		return fmt.Errorf("uploading file: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("uploading file: %w", err)
	}
	c.logger.Debug("uploaded file", "file_id", target.FileID, "filename", filename)
	return nil
}

func writeUploadForm(mw *multipart.Writer, fields map[string]string, filename string, r io.Reader) error {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := mw.WriteField(k, fields[k]); err != nil {
			return err
		}
	}

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, r); err != nil {
		return err
	}
	return mw.Close()
}

// Attach stages and uploads a file in one step and returns the attachment
// to send with the next message.
func (c *Client) Attach(ctx context.Context, filename, contentType string, size int64, r io.Reader) (transcript.Attachment, error) {
	target, err := c.StageFile(ctx, filename, contentType)
	if err != nil {
		return transcript.Attachment{}, fmt.Errorf("staging %s: %w", filename, err)
	}
	if err := c.UploadFile(ctx, target, filename, r); err != nil {
		return transcript.Attachment{}, err
	}
	return transcript.Attachment{
		FileID:      target.FileID,
		S3Key:       target.S3Key,
		Filename:    filename,
		ContentType: contentType,
		Size:        size,
	}, nil
}

// PresignedURL returns a temporary download URL for a staged file.
func (c *Client) PresignedURL(ctx context.Context, fileID string) (string, error) {
	if fileID == "" {
		return "", errors.New("file id required")
	}
	var out struct {
		URL string `json:"url"`
	}
	path := "/api/v1/files/" + url.PathEscape(fileID)
	if err := c.doJSON(ctx, http.MethodGet, c.apiURL(path), nil, &out, true); err != nil {
		return "", err
	}
	return out.URL, nil
}
