package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deutschtag/germanday/pipeline"
)

func TestUploadSuccess(t *testing.T) {
	var gotAuth, gotFolder, gotFileName string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/contents/uploadfile", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotFolder = r.FormValue("folderId")
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		gotFileName = hdr.Filename
		body, _ := io.ReadAll(f)
		require.Equal(t, "hello poster", string(body))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"status":"ok","data":{"id":"abc-1","downloadPage":"https://gofile.io/d/abc","directLink":"https://store1.gofile.io/download/abc-1/poster.png"}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok-1", "folder-9", 30*time.Second)
	res, err := c.Upload(context.Background(), "poster.png", 12, strings.NewReader("hello poster"), nil)
	require.NoError(t, err)
	assert.Equal(t, "abc-1", res.FileID)
	assert.Equal(t, "https://gofile.io/d/abc", res.DownloadPage)
	assert.False(t, res.UploadedAt.IsZero())
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, "folder-9", gotFolder)
	assert.Equal(t, "poster.png", gotFileName)
}

func TestUploadAcceptsFileIdField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		io.WriteString(w, `{"status":"ok","data":{"fileId":"new-style-id"}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "", time.Second*10)
	res, err := c.Upload(context.Background(), "a.pdf", 1, strings.NewReader("x"), nil)
	require.NoError(t, err)
	assert.Equal(t, "new-style-id", res.FileID)
}

func TestUploadMissingFileID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		io.WriteString(w, `{"status":"ok","data":{}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "", time.Second*10)
	_, err := c.Upload(context.Background(), "a.pdf", 1, strings.NewReader("x"), nil)
	var ue *pipeline.UploadError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, pipeline.UploadMissingFileID, ue.Kind)
}

func TestUploadServerRejected(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "http error status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.Copy(io.Discard, r.Body)
				http.Error(w, "quota exceeded", http.StatusForbidden)
			},
		},
		{
			name: "error envelope",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.Copy(io.Discard, r.Body)
				io.WriteString(w, `{"status":"error-auth","data":{}}`)
			},
		},
		{
			name: "garbage body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.Copy(io.Discard, r.Body)
				io.WriteString(w, `<html>gateway error</html>`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := NewClient(srv.URL, "", "", time.Second*10)
			_, err := c.Upload(context.Background(), "a.pdf", 1, strings.NewReader("x"), nil)
			var ue *pipeline.UploadError
			require.ErrorAs(t, err, &ue)
			assert.Equal(t, pipeline.UploadServerRejected, ue.Kind)
		})
	}
}

func TestUploadTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := NewClient(srv.URL, "", "", 50*time.Millisecond)
	_, err := c.Upload(context.Background(), "a.pdf", 1, strings.NewReader("x"), nil)
	var ue *pipeline.UploadError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, pipeline.UploadTimeout, ue.Kind)
}

func TestUploadNetworkError(t *testing.T) {
	// Server that is already gone.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient(srv.URL, "", "", time.Second*10)
	_, err := c.Upload(context.Background(), "a.pdf", 1, strings.NewReader("x"), nil)
	var ue *pipeline.UploadError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, pipeline.UploadNetwork, ue.Kind)
}

func TestUploadReportsMonotonicProgress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		io.WriteString(w, `{"status":"ok","data":{"id":"p-1"}}`)
	}))
	defer srv.Close()

	payload := strings.Repeat("x", 64<<10)
	var got []int
	c := NewClient(srv.URL, "", "", time.Second*30)
	_, err := c.Upload(context.Background(), "big.bin", int64(len(payload)), strings.NewReader(payload), func(pct int) {
		got = append(got, pct)
	})
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.True(t, sort.IntsAreSorted(got), "progress must be non-decreasing: %v", got)
	assert.Equal(t, 100, got[len(got)-1])
	for _, pct := range got {
		assert.GreaterOrEqual(t, pct, 0)
		assert.LessOrEqual(t, pct, 100)
	}
}

func TestDelete(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/contents", r.URL.Path)
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", "", time.Second*10)
	require.NoError(t, c.Delete(context.Background(), "abc-1"))
	assert.JSONEq(t, `{"contentsId":"abc-1"}`, gotBody)

	assert.Error(t, c.Delete(context.Background(), ""))
}

func TestProgressReaderStrictlyIncreasing(t *testing.T) {
	var got []int
	pr := &progressReader{
		reader: io.LimitReader(strings.NewReader(strings.Repeat("a", 10)), 10),
		total:  10,
		report: func(pct int) { got = append(got, pct) },
	}
	buf := make([]byte, 3)
	for {
		if _, err := pr.Read(buf); err != nil {
			break
		}
	}
	assert.Equal(t, []int{30, 60, 90, 100}, got)
}
