package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"

	"popkat/internal/shared/storage/object"
)

func TestMapErr(t *testing.T) {
	s := &Store{bucket: "popkat"}

	tests := []struct {
		name     string
		err      error
		notFound bool
	}{
		{name: "no such key", err: minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}, notFound: true},
		{name: "plain 404", err: minio.ErrorResponse{Code: "NotFound", StatusCode: http.StatusNotFound}, notFound: true},
		{name: "access denied", err: minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}},
		{name: "transport", err: errors.New("connection reset")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.mapErr("get", "abc_1.png", tt.err)
			if errors.Is(got, object.ErrNotFound) != tt.notFound {
				t.Fatalf("mapErr(%v) = %v, notFound want %t", tt.err, got, tt.notFound)
			}
		})
	}
}

type storedObject struct {
	body        string
	contentType string
	acl         string
}

// fakeBucket is a minimal path-style S3 backend for a single bucket.
type fakeBucket struct {
	mu         sync.Mutex
	name       string
	exists     bool
	created    bool
	listDenied bool
	objects    map[string]storedObject
	uploads    map[string]*multipartUpload
}

type multipartUpload struct {
	key   string
	meta  storedObject
	parts map[int]string
}

func newFakeBucket(name string) *fakeBucket {
	return &fakeBucket{
		name:    name,
		exists:  true,
		objects: map[string]storedObject{},
		uploads: map[string]*multipartUpload{},
	}
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/")
	bucket, key, _ := strings.Cut(path, "/")
	if bucket != b.name {
		writeS3Error(w, http.StatusNotFound, "NoSuchBucket")
		return
	}

	switch {
	case key == "" && r.Method == http.MethodHead:
		if !b.exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case key == "" && r.Method == http.MethodPut:
		b.exists = true
		b.created = true
		w.WriteHeader(http.StatusOK)
	case key == "" && r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2":
		if b.listDenied {
			writeS3Error(w, http.StatusForbidden, "AccessDenied")
			return
		}
		b.writeList(w)
	case r.Method == http.MethodPost && r.URL.Query().Has("uploads"):
		id := fmt.Sprintf("upload-%d", len(b.uploads)+1)
		b.uploads[id] = &multipartUpload{
			key:   key,
			meta:  storedObject{contentType: r.Header.Get("Content-Type"), acl: r.Header.Get("X-Amz-Acl")},
			parts: map[int]string{},
		}
		writeXML(w, fmt.Sprintf("<InitiateMultipartUploadResult><Bucket>%s</Bucket><Key>%s</Key><UploadId>%s</UploadId></InitiateMultipartUploadResult>", b.name, key, id))
	case r.Method == http.MethodPut && r.URL.Query().Has("uploadId"):
		up, ok := b.uploads[r.URL.Query().Get("uploadId")]
		if !ok {
			writeS3Error(w, http.StatusNotFound, "NoSuchUpload")
			return
		}
		n, _ := strconv.Atoi(r.URL.Query().Get("partNumber"))
		body, _ := io.ReadAll(r.Body)
		up.parts[n] = string(body)
		w.Header().Set("ETag", fmt.Sprintf(`"part-%d"`, n))
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPost && r.URL.Query().Has("uploadId"):
		id := r.URL.Query().Get("uploadId")
		up, ok := b.uploads[id]
		if !ok {
			writeS3Error(w, http.StatusNotFound, "NoSuchUpload")
			return
		}
		_, _ = io.Copy(io.Discard, r.Body)
		var sb strings.Builder
		for n := 1; n <= len(up.parts); n++ {
			sb.WriteString(up.parts[n])
		}
		obj := up.meta
		obj.body = sb.String()
		b.objects[up.key] = obj
		delete(b.uploads, id)
		writeXML(w, fmt.Sprintf(`<CompleteMultipartUploadResult><Bucket>%s</Bucket><Key>%s</Key><ETag>"etag-%s"</ETag></CompleteMultipartUploadResult>`, b.name, up.key, up.key))
	case r.Method == http.MethodDelete && r.URL.Query().Has("uploadId"):
		delete(b.uploads, r.URL.Query().Get("uploadId"))
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		b.objects[key] = storedObject{
			body:        string(body),
			contentType: r.Header.Get("Content-Type"),
			acl:         r.Header.Get("X-Amz-Acl"),
		}
		w.Header().Set("ETag", `"etag-`+key+`"`)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet || r.Method == http.MethodHead:
		obj, ok := b.objects[key]
		if !ok {
			writeS3Error(w, http.StatusNotFound, "NoSuchKey")
			return
		}
		w.Header().Set("ETag", `"etag-`+key+`"`)
		w.Header().Set("Last-Modified", time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC).Format(http.TimeFormat))
		w.Header().Set("Content-Type", obj.contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(obj.body)))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = io.WriteString(w, obj.body)
		}
	case r.Method == http.MethodDelete:
		delete(b.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (b *fakeBucket) object(key string) (storedObject, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, ok := b.objects[key]
	return obj, ok
}

func (b *fakeBucket) wasCreated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.created
}

func (b *fakeBucket) writeList(w http.ResponseWriter) {
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(`<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">`)
	fmt.Fprintf(&sb, "<Name>%s</Name><KeyCount>%d</KeyCount><IsTruncated>false</IsTruncated>", b.name, len(keys))
	for _, k := range keys {
		fmt.Fprintf(&sb, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2026-01-01T00:00:00.000Z</LastModified><ETag>\"etag-%s\"</ETag></Contents>",
			k, len(b.objects[k].body), k)
	}
	sb.WriteString("</ListBucketResult>")

	writeXML(w, sb.String())
}

func writeXML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>`+body)
}

func writeS3Error(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>%s</Code><Message>%s</Message></Error>`, code, code)
}

// newTestStore points a real minio client at a fake HTTP backend.
func newTestStore(t *testing.T, bucket *fakeBucket) *Store {
	t.Helper()
	server := httptest.NewServer(bucket)
	t.Cleanup(server.Close)

	store, err := New(context.Background(), Config{
		Endpoint:  server.URL,
		AccessKey: "test-key",
		SecretKey: "test-secret",
		Bucket:    bucket.name,
		Region:    "us-east-1",
		ACL:       "public-read",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestNewCreatesMissingBucket(t *testing.T) {
	bucket := newFakeBucket("popkat")
	bucket.exists = false

	newTestStore(t, bucket)

	if !bucket.wasCreated() {
		t.Fatalf("expected bucket to be created")
	}
}

func TestStorePutSendsBodyAndHeaders(t *testing.T) {
	bucket := newFakeBucket("popkat")
	store := newTestStore(t, bucket)

	err := store.Put(context.Background(), "abc_1.png", strings.NewReader("png bytes"), 9, "image/png")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := bucket.object("abc_1.png")
	if !ok {
		t.Fatalf("object not stored")
	}
	if got.contentType != "image/png" {
		t.Fatalf("content type = %q", got.contentType)
	}
	if got.acl != "public-read" {
		t.Fatalf("acl = %q", got.acl)
	}
	// Plain HTTP uploads are aws-chunked, so the payload sits inside chunk framing.
	if !strings.Contains(got.body, "png bytes") {
		t.Fatalf("body = %q", got.body)
	}
}

func TestStorePutUnknownSizeUsesMultipart(t *testing.T) {
	bucket := newFakeBucket("popkat")
	store := newTestStore(t, bucket)

	err := store.Put(context.Background(), "abc_2", strings.NewReader("streamed bytes"), -1, "image/webp")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := bucket.object("abc_2")
	if !ok {
		t.Fatalf("object not stored")
	}
	if got.contentType != "image/webp" || got.acl != "public-read" {
		t.Fatalf("metadata = %+v", got)
	}
	if !strings.Contains(got.body, "streamed bytes") {
		t.Fatalf("body = %q", got.body)
	}
}

func TestStoreGetStreamsObject(t *testing.T) {
	bucket := newFakeBucket("popkat")
	bucket.objects["abc_1"] = storedObject{body: "png bytes", contentType: "image/png"}
	store := newTestStore(t, bucket)

	obj, err := store.Get(context.Background(), "abc_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer obj.Body.Close()

	if obj.ContentType != "image/png" {
		t.Fatalf("content type = %q", obj.ContentType)
	}
	if obj.Size != 9 {
		t.Fatalf("size = %d", obj.Size)
	}
	body, err := io.ReadAll(obj.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != "png bytes" {
		t.Fatalf("body = %q", body)
	}
}

func TestStoreGetMissingKeyIsNotFound(t *testing.T) {
	store := newTestStore(t, newFakeBucket("popkat"))

	_, err := store.Get(context.Background(), "missing_1.png")
	if !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreDeleteAndList(t *testing.T) {
	bucket := newFakeBucket("popkat")
	bucket.objects["a_1.png"] = storedObject{body: "a"}
	bucket.objects["b_2.png"] = storedObject{body: "b"}
	bucket.objects["c_3.png"] = storedObject{body: "c"}
	store := newTestStore(t, bucket)
	ctx := context.Background()

	if err := store.Delete(ctx, "b_2.png"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	keys, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	sort.Strings(keys)
	if strings.Join(keys, ",") != "a_1.png,c_3.png" {
		t.Fatalf("keys = %v", keys)
	}
}

func TestStoreListSurfacesBackendError(t *testing.T) {
	bucket := newFakeBucket("popkat")
	bucket.listDenied = true
	store := newTestStore(t, bucket)

	keys, err := store.List(context.Background())
	if err == nil {
		t.Fatalf("expected error, got keys %v", keys)
	}
	var resp minio.ErrorResponse
	if !errors.As(err, &resp) || resp.Code != "AccessDenied" {
		t.Fatalf("expected AccessDenied, got %v", err)
	}
}
