package drive

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/text/unicode/norm"
)

// Drive API endpoints and the fixed remote folder layout.
const (
	defaultAPIBase    = "https://www.googleapis.com/drive/v3"
	defaultUploadBase = "https://www.googleapis.com/upload/drive/v3"

	rootFolderName = "BalanceWise"
	dietFolderName = "Diet"

	folderMimeType = "application/vnd.google-apps.folder"
	photoMimeType  = "image/jpeg"
)

// FolderCache caches remote folder ids per partition key so repeated passes
// skip the folder lookup/create round-trips. A "" id means cache miss.
type FolderCache interface {
	FolderID(ctx context.Context, key string) (string, error)
	SetFolderID(ctx context.Context, key, folderID string) error
}

// UploadResult is the discriminated outcome of an upload. Err is non-nil
// exactly when Success is false; it is always a classified *Error or a
// wrapped local I/O error, never a panic path.
type UploadResult struct {
	Success bool
	FileID  string
	Err     error
}

// Client talks to the Google Drive v3 REST API. It never propagates raw HTTP
// responses to callers: uploads return a discriminated UploadResult, deletes
// treat 404 as success, and all failures carry a classified Kind.
type Client struct {
	apiBase    string
	uploadBase string
	httpClient *http.Client
	token      TokenSource
	cache      FolderCache
	logger     *slog.Logger

	// group collapses concurrent folder-path derivations for the same
	// partition key into one remote lookup/create sequence.
	group singleflight.Group
}

// NewClient creates a Drive client using the production API endpoints.
func NewClient(token TokenSource, cache FolderCache, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		apiBase:    defaultAPIBase,
		uploadBase: defaultUploadBase,
		httpClient: httpClient,
		token:      token,
		cache:      cache,
		logger:     logger,
	}
}

// partitionKey derives the cache key and folder name for a timestamp.
func partitionKey(ts time.Time) (key, yearMonth string) {
	yearMonth = ts.UTC().Format("2006-01")
	return "diet_" + yearMonth, yearMonth
}

// EnsureFolderPath resolves (creating as needed) the remote folder
// BalanceWise/Diet/<YYYY-MM> for the given timestamp and returns its id.
// Results are cached per year-month partition. Concurrent callers for the
// same partition share one derivation. The find-then-create walk is not
// atomic at the remote; a racing external writer can produce a benign
// duplicate folder, which Drive permits.
func (c *Client) EnsureFolderPath(ctx context.Context, ts time.Time) (string, error) {
	key, yearMonth := partitionKey(ts)

	if cached, err := c.cache.FolderID(ctx, key); err != nil {
		c.logger.Warn("folder cache read failed", slog.String("error", err.Error()))
	} else if cached != "" {
		return cached, nil
	}

	id, err, _ := c.group.Do(key, func() (any, error) {
		rootID, err := c.getOrCreateFolder(ctx, rootFolderName, "")
		if err != nil {
			return "", err
		}

		dietID, err := c.getOrCreateFolder(ctx, dietFolderName, rootID)
		if err != nil {
			return "", err
		}

		monthID, err := c.getOrCreateFolder(ctx, yearMonth, dietID)
		if err != nil {
			return "", err
		}

		if cacheErr := c.cache.SetFolderID(ctx, key, monthID); cacheErr != nil {
			c.logger.Warn("folder cache write failed", slog.String("error", cacheErr.Error()))
		}

		return monthID, nil
	})
	if err != nil {
		return "", err
	}

	return id.(string), nil
}

// getOrCreateFolder finds a folder by name under parentID (root search when
// parentID is empty), creating it when absent.
func (c *Client) getOrCreateFolder(ctx context.Context, name, parentID string) (string, error) {
	id, err := c.findFolder(ctx, name, parentID)
	if err != nil {
		return "", err
	}

	if id != "" {
		return id, nil
	}

	return c.createFolder(ctx, name, parentID)
}

// findFolder searches for a non-trashed folder by name and parent.
// Returns "" when no match exists.
func (c *Client) findFolder(ctx context.Context, name, parentID string) (string, error) {
	query := fmt.Sprintf("name='%s' and mimeType='%s' and trashed=false", name, folderMimeType)
	if parentID != "" {
		query = fmt.Sprintf("name='%s' and '%s' in parents and mimeType='%s' and trashed=false",
			name, parentID, folderMimeType)
	}

	u := c.apiBase + "/files?q=" + url.QueryEscape(query) + "&fields=" + url.QueryEscape("files(id,name,mimeType)")

	resp, err := c.doAuthed(ctx, http.MethodGet, u, "", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", statusError(resp.StatusCode, string(body))
	}

	var result struct {
		Files []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"files"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("drive: decoding folder search: %w", err)
	}

	if len(result.Files) == 0 {
		return "", nil
	}

	return result.Files[0].ID, nil
}

// createFolder creates a folder under parentID and returns its id.
func (c *Client) createFolder(ctx context.Context, name, parentID string) (string, error) {
	metadata := map[string]any{
		"name":     name,
		"mimeType": folderMimeType,
	}
	if parentID != "" {
		metadata["parents"] = []string{parentID}
	}

	body, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("drive: encoding folder metadata: %w", err)
	}

	resp, err := c.doAuthed(ctx, http.MethodPost, c.apiBase+"/files?fields=id",
		"application/json", strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		respBody, _ := io.ReadAll(resp.Body)
		return "", statusError(resp.StatusCode, string(respBody))
	}

	var created struct {
		ID string `json:"id"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("drive: decoding folder create: %w", err)
	}

	c.logger.Info("created remote folder",
		slog.String("name", name),
		slog.String("id", created.ID),
	)

	return created.ID, nil
}

// UploadFile reads the photo at localURI fully into memory and issues one
// multipart create-file call scoped to folderID. It never returns a Go error
// across the boundary: failures come back as UploadResult{Success: false}.
func (c *Client) UploadFile(ctx context.Context, localURI, filename, folderID string) UploadResult {
	data, err := os.ReadFile(localPath(localURI))
	if err != nil {
		return UploadResult{Err: fmt.Errorf("drive: reading %s: %w", localURI, err)}
	}

	filename = norm.NFC.String(filename)

	metadata := map[string]any{
		"name":     filename,
		"parents":  []string{folderID},
		"mimeType": photoMimeType,
	}

	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return UploadResult{Err: fmt.Errorf("drive: encoding file metadata: %w", err)}
	}

	boundary := "photosync-" + randomBoundary()
	body := buildMultipartBody(boundary, string(metadataJSON), data)

	u := c.uploadBase + "/files?uploadType=multipart&fields=" + url.QueryEscape("id,name")

	resp, err := c.doAuthed(ctx, http.MethodPost, u,
		"multipart/related; boundary="+boundary, strings.NewReader(body))
	if err != nil {
		return UploadResult{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		respBody, _ := io.ReadAll(resp.Body)
		return UploadResult{Err: statusError(resp.StatusCode, string(respBody))}
	}

	var file struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		return UploadResult{Err: fmt.Errorf("drive: decoding upload response: %w", err)}
	}

	c.logger.Info("uploaded photo",
		slog.String("filename", filename),
		slog.String("file_id", file.ID),
		slog.Int("bytes", len(data)),
	)

	return UploadResult{Success: true, FileID: file.ID}
}

// DeleteFile deletes a remote file. A 404 means the file is already gone and
// counts as success (idempotent delete). Any other failure is returned.
func (c *Client) DeleteFile(ctx context.Context, fileID string) error {
	resp, err := c.doAuthed(ctx, http.MethodDelete, c.apiBase+"/files/"+url.PathEscape(fileID), "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		c.logger.Info("remote file already gone", slog.String("file_id", fileID))
		return nil
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return statusError(resp.StatusCode, string(body))
	}

	return nil
}

// UpdateFile replaces a remote file by deleting the old id and uploading the
// new content. Not an identity-preserving update: downstream code only needs
// "old gone, new present". A failed delete of the old file is logged and the
// upload proceeds; the stale file is already orphaned from the entry's view.
func (c *Client) UpdateFile(ctx context.Context, oldFileID, localURI, filename, folderID string) UploadResult {
	if err := c.DeleteFile(ctx, oldFileID); err != nil {
		c.logger.Warn("deleting old remote file failed, uploading replacement anyway",
			slog.String("file_id", oldFileID),
			slog.String("error", err.Error()),
		)
	}

	return c.UploadFile(ctx, localURI, filename, folderID)
}

// doAuthed issues an HTTP request with a fresh bearer token. Transport-level
// failures come back classified as KindNetwork.
func (c *Client) doAuthed(ctx context.Context, method, url, contentType string, body io.Reader) (*http.Response, error) {
	tok, err := c.token.Token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("drive: building request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+tok)

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("drive: request canceled: %w", ctx.Err())
		}

		return nil, networkError(method+" "+url, err)
	}

	return resp, nil
}

// buildMultipartBody assembles the multipart/related payload: a JSON
// metadata part followed by a base64-encoded content part.
func buildMultipartBody(boundary, metadataJSON string, data []byte) string {
	var b strings.Builder

	b.WriteString("\r\n--" + boundary + "\r\n")
	b.WriteString("Content-Type: application/json; charset=UTF-8\r\n\r\n")
	b.WriteString(metadataJSON + "\r\n")
	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Type: " + photoMimeType + "\r\n")
	b.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
	b.WriteString(base64.StdEncoding.EncodeToString(data) + "\r\n")
	b.WriteString("--" + boundary + "--")

	return b.String()
}

// randomBoundary returns a random hex string for the multipart boundary.
func randomBoundary() string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms; fall back to a
		// fixed boundary rather than aborting an upload.
		return "0123456789abcdef"
	}

	return hex.EncodeToString(b)
}

// localPath strips a file:// scheme from a photo URI.
func localPath(uri string) string {
	return strings.TrimPrefix(uri, "file://")
}
