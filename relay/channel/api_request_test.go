package channel

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"io"
	"net/http"
	"testing"

	"github.com/andybalholm/brotli"
)

func responseWith(encoding string, body []byte) *http.Response {
	resp := &http.Response{
		Header: http.Header{},
		Body:   io.NopCloser(bytes.NewReader(body)),
	}
	if encoding != "" {
		resp.Header.Set("Content-Encoding", encoding)
	}
	return resp
}

func TestReadResponseBody(t *testing.T) {
	plain := []byte(`{"id": "task_1", "status": "running"}`)

	t.Run("明文", func(t *testing.T) {
		got, err := ReadResponseBody(responseWith("", plain), 1<<20)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, plain) {
			t.Errorf("got %s", got)
		}
	})

	t.Run("gzip", func(t *testing.T) {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		_, _ = gz.Write(plain)
		_ = gz.Close()

		got, err := ReadResponseBody(responseWith("gzip", buf.Bytes()), 1<<20)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, plain) {
			t.Errorf("got %s", got)
		}
	})

	t.Run("brotli", func(t *testing.T) {
		var buf bytes.Buffer
		br := brotli.NewWriter(&buf)
		_, _ = br.Write(plain)
		_ = br.Close()

		got, err := ReadResponseBody(responseWith("br", buf.Bytes()), 1<<20)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, plain) {
			t.Errorf("got %s", got)
		}
	})

	t.Run("deflate", func(t *testing.T) {
		var buf bytes.Buffer
		fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write(plain)
		_ = fw.Close()

		got, err := ReadResponseBody(responseWith("deflate", buf.Bytes()), 1<<20)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, plain) {
			t.Errorf("got %s", got)
		}
	})

	t.Run("超限截断", func(t *testing.T) {
		got, err := ReadResponseBody(responseWith("", plain), 4)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 4 {
			t.Errorf("limit must cap the read, got %d bytes", len(got))
		}
	})

	t.Run("坏 gzip 流报错", func(t *testing.T) {
		if _, err := ReadResponseBody(responseWith("gzip", []byte("not gzip")), 1<<20); err == nil {
			t.Fatal("invalid gzip must fail")
		}
	})
}
