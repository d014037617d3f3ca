package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/common"
	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/store"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeObjects struct {
	objects map[string][]byte
}

func (f *fakeObjects) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeObjects) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestSnapshotStore(t *testing.T) {
	ctx := context.Background()
	fake := &fakeObjects{objects: map[string][]byte{}}
	s := NewSnapshotStore(fake, "kiwi", "")

	if _, err := s.Load(ctx, "g1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Load() error = %v, want ErrNotFound", err)
	}

	g := common.NewGraph()
	g.Nodes = append(g.Nodes, common.Node{ID: "n1", Type: "Location", Properties: common.Properties{"name": common.String("Phoenix")}})
	if err := s.Save(ctx, "g1", g); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, ok := fake.objects["kiwi/graphs/g1.json"]; !ok {
		t.Fatalf("object not written under expected key: %v", fake.objects)
	}

	loaded, err := s.Load(ctx, "g1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if name, _ := loaded.Nodes[0].Properties["name"].AsString(); name != "Phoenix" {
		t.Fatalf("loaded name = %q", name)
	}

	if err := s.Delete(ctx, "g1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(fake.objects) != 0 {
		t.Fatalf("objects left after delete: %v", fake.objects)
	}
}
