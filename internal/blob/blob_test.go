package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"
)

func TestFS_PutGet(t *testing.T) {
	s, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	ctx := context.Background()

	if _, err := s.Get(ctx, LessonKey("frac-unit")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing: got %v, want ErrNotFound", err)
	}
	if err := s.Put(ctx, LessonKey("frac-unit"), []byte(`{"title":"Unit fractions"}`), "application/json"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(ctx, "lessons/frac-unit.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `{"title":"Unit fractions"}` {
		t.Errorf("got %s", got)
	}

	if err := s.Put(ctx, LessonKey("frac-unit"), []byte(`{}`), ""); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _ = s.Get(ctx, LessonKey("frac-unit"))
	if string(got) != `{}` {
		t.Errorf("after overwrite got %s", got)
	}
}

func TestFS_RejectsEscapingKeys(t *testing.T) {
	s, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	for _, key := range []string{"", "/etc/passwd", "../x", "a/../../b"} {
		if err := s.Put(context.Background(), key, []byte("x"), ""); err == nil {
			t.Errorf("Put(%q) should fail", key)
		}
	}
}

func TestOpen_Drivers(t *testing.T) {
	s, err := Open(context.Background(), Config{Driver: "fs", Root: t.TempDir()})
	if err != nil {
		t.Fatalf("Open fs: %v", err)
	}
	if s.Driver() != DriverFS {
		t.Errorf("driver = %s", s.Driver())
	}
	if _, err := Open(context.Background(), Config{Driver: "gcs"}); err == nil {
		t.Error("expected unsupported driver error")
	}
	if _, err := Open(context.Background(), Config{Driver: "s3"}); err == nil {
		t.Error("expected missing bucket error")
	}
}

// fakeS3 answers path-style object requests from memory.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	paths   []string
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, req.URL.Path)
	key := strings.TrimPrefix(req.URL.Path, "/")
	switch req.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		if dec, ok := decodeChunked(body); ok {
			body = dec
		}
		f.objects[key] = body
		return response(http.StatusOK, nil), nil
	case http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			return response(http.StatusNotFound, []byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)), nil
		}
		return response(http.StatusOK, body), nil
	}
	return response(http.StatusNotImplemented, nil), nil
}

func response(status int, body []byte) *http.Response {
	h := http.Header{"Content-Length": {strconv.Itoa(len(body))}}
	if status == http.StatusOK {
		h.Set("ETag", `"etag"`)
	} else {
		h.Set("Content-Type", "application/xml")
	}
	return &http.Response{StatusCode: status, Header: h, Body: io.NopCloser(bytes.NewReader(body)), ContentLength: int64(len(body))}
}

// decodeChunked unwraps a single-chunk aws-chunked body.
func decodeChunked(b []byte) ([]byte, bool) {
	parts := strings.Split(string(b), "\r\n")
	if len(parts) < 3 || parts[2] != "0" {
		return nil, false
	}
	n, err := strconv.ParseInt(parts[0], 16, 64)
	if err != nil || int64(len(parts[1])) != n {
		return nil, false
	}
	return []byte(parts[1]), true
}

func newFakeS3(t *testing.T, prefix string) (*S3, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: make(map[string][]byte)}
	s, err := NewS3(context.Background(), S3Config{
		Bucket:          "lessons-bucket",
		Region:          "us-east-1",
		Endpoint:        "https://s3.test.local",
		Prefix:          prefix,
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		PathStyle:       true,
		HTTPClient:      &http.Client{Transport: fake},
	})
	if err != nil {
		t.Fatalf("NewS3: %v", err)
	}
	return s, fake
}

func TestS3_PutGet(t *testing.T) {
	s, fake := newFakeS3(t, "course-a")
	ctx := context.Background()

	if _, err := s.Get(ctx, LessonKey("frac-add")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing: got %v, want ErrNotFound", err)
	}
	if err := s.Put(ctx, LessonKey("frac-add"), []byte(`{"title":"Adding"}`), "application/json"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok := fake.objects["lessons-bucket/course-a/lessons/frac-add.json"]; !ok {
		t.Fatalf("objects = %v", fake.paths)
	}
	got, err := s.Get(ctx, LessonKey("frac-add"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `{"title":"Adding"}` {
		t.Errorf("got %s", got)
	}
	if s.Driver() != DriverS3 {
		t.Errorf("driver = %s", s.Driver())
	}
}

func TestS3_RejectsEscapingKeys(t *testing.T) {
	s, fake := newFakeS3(t, "")
	if _, err := s.Get(context.Background(), "../secret"); err == nil {
		t.Fatal("expected key error")
	}
	if len(fake.paths) != 0 {
		t.Errorf("request sent for bad key: %v", fake.paths)
	}
}
