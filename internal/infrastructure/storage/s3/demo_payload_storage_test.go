package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dreschagin/mainnet-dashboard/internal/application/port"
)

type fakeGetter struct {
	objects map[string]string
	err     error
	keys    []string
}

func (f *fakeGetter) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.keys = append(f.keys, *in.Key)
	if f.err != nil {
		return nil, f.err
	}
	body, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestDemoPayloadStorage_Load(t *testing.T) {
	getter := &fakeGetter{objects: map[string]string{
		"demo/network-stats.json": `{"tps":1}`,
		"demo/broken.json":        `{`,
		"demo/huge.json":          `"` + strings.Repeat("x", 64) + `"`,
	}}
	storage := NewDemoPayloadStorageWithClient(getter, Config{Bucket: "dash", Prefix: "demo/", MaxObjectBytes: 32})

	payload, err := storage.Load(context.Background(), "network-stats")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if string(payload) != `{"tps":1}` {
		t.Fatalf("payload = %s", payload)
	}

	if _, err := storage.Load(context.Background(), "missing"); !errors.Is(err, port.ErrDemoPayloadNotFound) {
		t.Fatalf("expected ErrDemoPayloadNotFound, got %v", err)
	}
	if _, err := storage.Load(context.Background(), "broken"); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if _, err := storage.Load(context.Background(), "huge"); err == nil {
		t.Fatal("expected error for oversized object")
	}
	if getter.keys[0] != "demo/network-stats.json" {
		t.Fatalf("unexpected object key %q", getter.keys[0])
	}
}

func TestDemoPayloadStorage_TransportError(t *testing.T) {
	storage := NewDemoPayloadStorageWithClient(&fakeGetter{err: errors.New("dial tcp: timeout")}, Config{Bucket: "dash"})

	_, err := storage.Load(context.Background(), "network-stats")
	if err == nil || errors.Is(err, port.ErrDemoPayloadNotFound) {
		t.Fatalf("expected transport error, got %v", err)
	}
}
