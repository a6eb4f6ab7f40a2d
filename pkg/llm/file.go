package llm

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// FilePurpose tells the server what an uploaded file is for.
type FilePurpose string

const (
	FilePurposeExtract   FilePurpose = "file-extract"
	FilePurposeRetrieval FilePurpose = "retrieval-text"
	FilePurposeImage     FilePurpose = "retrieval-image"
	FilePurposeStorage   FilePurpose = "storage"
)

// FileSource is where an upload's bytes come from: a local path, or a remote
// URL fetched before uploading. Exactly one of Path and URL is set.
type FileSource struct {
	Path               string
	URL                string
	InsecureSkipVerify bool // remote only
}

// LocalFile returns a FileSource for a path on disk.
func LocalFile(p string) FileSource { return FileSource{Path: p} }

// RemoteFile returns a FileSource for a URL.
func RemoteFile(u string, insecure bool) FileSource {
	return FileSource{URL: u, InsecureSkipVerify: insecure}
}

// Name is the file name sent with the upload.
func (s FileSource) Name() (string, error) {
	var name string
	switch {
	case s.Path != "":
		name = filepath.Base(s.Path)
	case s.URL != "":
		u, err := url.Parse(s.URL)
		if err != nil {
			return "", fmt.Errorf("llm: parse file url: %w", err)
		}
		name = path.Base(u.Path)
	}
	if name == "" || name == "." || name == "/" {
		return "", ErrNoFileName
	}
	return name, nil
}

// FileUploadRequest uploads one file.
type FileUploadRequest struct {
	Source  FileSource
	Purpose FilePurpose
}

// FileUploadRequestBuilder builds a FileUploadRequest.
type FileUploadRequestBuilder struct {
	req    FileUploadRequest
	source bool
}

// NewFileUploadRequestBuilder returns a builder whose purpose defaults to
// file-extract.
func NewFileUploadRequestBuilder() *FileUploadRequestBuilder {
	return &FileUploadRequestBuilder{req: FileUploadRequest{Purpose: FilePurposeExtract}}
}

// WithSource sets the local path or remote URL to upload.
func (b *FileUploadRequestBuilder) WithSource(s FileSource) *FileUploadRequestBuilder {
	b.req.Source = s
	b.source = s.Path != "" || s.URL != ""
	return b
}

// WithPurpose sets what the server should do with the file.
func (b *FileUploadRequestBuilder) WithPurpose(p FilePurpose) *FileUploadRequestBuilder {
	b.req.Purpose = p
	return b
}

// Build fails with ErrMissingFileSource when no source was set.
func (b *FileUploadRequestBuilder) Build() (*FileUploadRequest, error) {
	if !b.source {
		return nil, ErrMissingFileSource
	}
	req := b.req
	return &req, nil
}

// FileObject describes an uploaded file.
type FileObject struct {
	ID            string      `json:"id"`
	Object        string      `json:"object"`
	Bytes         int64       `json:"bytes"`
	CreatedAt     int64       `json:"created_at"`
	Filename      string      `json:"filename"`
	Purpose       FilePurpose `json:"purpose"`
	Status        string      `json:"status,omitempty"`
	StatusDetails string      `json:"status_details,omitempty"`
}

// FileListResponse maps to the /files response body.
type FileListResponse struct {
	Object string       `json:"object"`
	Data   []FileObject `json:"data"`
}

// FileContentResponse is the text the server extracted from a file.
type FileContentResponse struct {
	FileType string `json:"file_type,omitempty"`
	Filename string `json:"filename,omitempty"`
	Title    string `json:"title,omitempty"`
	Type     string `json:"type,omitempty"`
	Content  string `json:"content"`
}

// UploadFile uploads req.Source as multipart form data. Local files are
// streamed from disk; remote sources are downloaded first.
func (c *httpClient) UploadFile(ctx context.Context, req *FileUploadRequest) (*FileObject, error) {
	name, err := req.Source.Name()
	if err != nil {
		return nil, err
	}

	src, err := c.openSource(ctx, req.Source)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadForm(mw, req.Purpose, name, src))
	}()
	defer pr.Close()

	c.log.WithFields(logrus.Fields{"file": name, "purpose": req.Purpose}).Debug("upload file")

	resp, err := c.do(ctx, http.MethodPost, "files", pr, func(h http.Header) {
		h.Set("Content-Type", mw.FormDataContentType())
	})
	if err != nil {
		return nil, err
	}
	var out FileObject
	if err := c.decodeBody(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func writeUploadForm(mw *multipart.Writer, purpose FilePurpose, name string, src io.Reader) error {
	if err := mw.WriteField("purpose", string(purpose)); err != nil {
		return err
	}
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return err
	}
	return mw.Close()
}

// openSource returns a reader over the bytes of s.
func (c *httpClient) openSource(ctx context.Context, s FileSource) (io.ReadCloser, error) {
	if s.Path != "" {
		f, err := os.Open(s.Path)
		if err != nil {
			return nil, fmt.Errorf("llm: open upload file: %w", err)
		}
		return f, nil
	}

	hc := c.http
	if s.InsecureSkipVerify {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		if base, ok := c.http.Transport.(*http.Transport); ok {
			tr = base.Clone()
		}
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		hc = &http.Client{Transport: tr}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("llm: build download request: %w", err)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm: download %s: %w", s.URL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := classifyError(resp)
		resp.Body.Close()
		return nil, apiErr
	}
	return resp.Body, nil
}

// ListFiles lists uploaded files.
func (c *httpClient) ListFiles(ctx context.Context) (*FileListResponse, error) {
	var out FileListResponse
	if err := c.doJSON(ctx, http.MethodGet, "files", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetFile retrieves one file's metadata.
func (c *httpClient) GetFile(ctx context.Context, id string) (*FileObject, error) {
	var out FileObject
	if err := c.doJSON(ctx, http.MethodGet, "files/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FileContent retrieves the text extracted from a file.
func (c *httpClient) FileContent(ctx context.Context, id string) (*FileContentResponse, error) {
	var out FileContentResponse
	if err := c.doJSON(ctx, http.MethodGet, "files/"+url.PathEscape(id)+"/content", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteFile deletes a file.
func (c *httpClient) DeleteFile(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "files/"+url.PathEscape(id), nil, nil)
}
