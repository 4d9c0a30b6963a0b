package s3store

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curtbushko/zoom-transfer/internal/config"
)

type fakeS3 struct {
	inputs []*s3.PutObjectInput
	bodies []string
	err    error
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.inputs = append(f.inputs, params)
	f.bodies = append(f.bodies, string(data))
	return &s3.PutObjectOutput{}, nil
}

func TestKey(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		path   string
		want   string
	}{
		{"no prefix", "", "/m123-Weekly_Sync.json", "m123-Weekly_Sync.json"},
		{"prefix", "zoom", "/m123-Weekly_Sync.json", "zoom/m123-Weekly_Sync.json"},
		{"prefix with slashes", "/zoom/recordings/", "/a.mp4", "zoom/recordings/a.mp4"},
		{"relative path", "zoom", "a.mp4", "zoom/a.mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(&fakeS3{}, config.S3Config{Bucket: "b", Prefix: tt.prefix})
			assert.Equal(t, tt.want, d.Key(tt.path))
		})
	}
}

func TestPut(t *testing.T) {
	fake := &fakeS3{}
	d := New(fake, config.S3Config{Bucket: "recordings", Prefix: "zoom"})
	assert.Equal(t, "s3", d.Name())

	require.NoError(t, d.Put(context.Background(), "/m123-Weekly_Sync.json", strings.NewReader(`{"a":1}`), 7))

	require.Len(t, fake.inputs, 1)
	input := fake.inputs[0]
	assert.Equal(t, "recordings", aws.ToString(input.Bucket))
	assert.Equal(t, "zoom/m123-Weekly_Sync.json", aws.ToString(input.Key))
	assert.Equal(t, int64(7), aws.ToInt64(input.ContentLength))
	assert.Equal(t, "application/json", aws.ToString(input.ContentType))
	assert.Equal(t, []string{`{"a":1}`}, fake.bodies)
}

func TestPutErrors(t *testing.T) {
	cause := errors.New("AccessDenied")
	d := New(&fakeS3{err: cause}, config.S3Config{Bucket: "recordings"})

	err := d.Put(context.Background(), "/a.json", strings.NewReader("{}"), 2)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "s3://recordings/a.json")

	assert.Error(t, d.Put(context.Background(), "", strings.NewReader(""), 0))
}
