// Package storage implements the client for the remote file host: a
// GoFile-style HTTP API taking one multipart POST per upload and answering
// with a JSON envelope. It satisfies the pipeline's Uploader and Deleter
// interfaces and carries the upload failure classification.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/deutschtag/germanday/pipeline"
)

// DefaultUploadTimeout is the hard per-upload deadline when none is configured.
const DefaultUploadTimeout = 120 * time.Second

// Client talks to the storage host. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	folderID   string
	timeout    time.Duration
}

// NewClient creates a storage client. baseURL is the host root without a
// trailing slash; folderID optionally targets a pre-created folder.
func NewClient(baseURL, token, folderID string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultUploadTimeout
	}
	return &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		folderID:   folderID,
		timeout:    timeout,
	}
}

// uploadEnvelope mirrors the host's JSON response. Older deployments use
// data.id, newer ones data.fileId; both are accepted.
type uploadEnvelope struct {
	Status string `json:"status"`
	Data   struct {
		ID           string `json:"id"`
		FileID       string `json:"fileId"`
		DownloadPage string `json:"downloadPage"`
		DirectLink   string `json:"directLink"`
	} `json:"data"`
}

// Upload performs a single multipart POST of the file and reports progress
// as whole percentages of the file bytes sent. The call enforces the
// configured hard deadline and never retries; a failed upload surfaces as a
// *pipeline.UploadError for the caller to act on.
func (c *Client) Upload(ctx context.Context, name string, size int64, r io.Reader, progress pipeline.ProgressFunc) (pipeline.UploadResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		var werr error
		defer func() { pw.CloseWithError(werr) }()
		if c.folderID != "" {
			if werr = mw.WriteField("folderId", c.folderID); werr != nil {
				return
			}
		}
		part, err := mw.CreateFormFile("file", name)
		if err != nil {
			werr = err
			return
		}
		counted := &progressReader{reader: r, total: size, report: progress}
		if _, err := io.Copy(part, counted); err != nil {
			werr = err
			return
		}
		werr = mw.Close()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/contents/uploadfile", pr)
	if err != nil {
		return pipeline.UploadResult{}, &pipeline.UploadError{Kind: pipeline.UploadNetwork, Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pipeline.UploadResult{}, classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return pipeline.UploadResult{}, &pipeline.UploadError{
			Kind: pipeline.UploadServerRejected,
			Err:  fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	var env uploadEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return pipeline.UploadResult{}, &pipeline.UploadError{Kind: pipeline.UploadServerRejected, Err: err}
	}
	if env.Status != "ok" {
		return pipeline.UploadResult{}, &pipeline.UploadError{
			Kind: pipeline.UploadServerRejected,
			Err:  fmt.Errorf("server status %q", env.Status),
		}
	}

	fileID := env.Data.ID
	if fileID == "" {
		fileID = env.Data.FileID
	}
	if fileID == "" {
		// Success envelope without an identifier is unusable.
		return pipeline.UploadResult{}, &pipeline.UploadError{Kind: pipeline.UploadMissingFileID}
	}

	return pipeline.UploadResult{
		FileID:       fileID,
		DownloadPage: env.Data.DownloadPage,
		DirectURL:    env.Data.DirectLink,
		UploadedAt:   time.Now(),
	}, nil
}

// Delete removes a remote file, used for compensating deletes and the
// orphan sweeper.
func (c *Client) Delete(ctx context.Context, fileID string) error {
	if fileID == "" {
		return errors.New("empty file id")
	}
	payload := strings.NewReader(fmt.Sprintf(`{"contentsId":%q}`, fileID))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/contents", payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("delete failed with status %d", resp.StatusCode)
	}
	return nil
}

// classifyTransport maps a transport error onto the upload taxonomy.
func classifyTransport(ctx context.Context, err error) *pipeline.UploadError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &pipeline.UploadError{Kind: pipeline.UploadTimeout, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &pipeline.UploadError{Kind: pipeline.UploadTimeout, Err: err}
	}
	return &pipeline.UploadError{Kind: pipeline.UploadNetwork, Err: err}
}

// progressReader counts file bytes as the transport consumes them and
// reports floor(sent/total*100), strictly non-decreasing per upload.
type progressReader struct {
	reader  io.Reader
	total   int64
	sent    int64
	lastPct int
	report  pipeline.ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.reader.Read(b)
	if n > 0 {
		p.sent += int64(n)
		if p.report != nil && p.total > 0 {
			pct := int(p.sent * 100 / p.total)
			if pct > 100 {
				pct = 100
			}
			if pct > p.lastPct {
				p.lastPct = pct
				p.report(pct)
			}
		}
	}
	return n, err
}
