package blob

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockS3Client struct {
	copies  []*s3.CopyObjectInput
	deletes []*s3.DeleteObjectsInput
	pages   []*s3.ListObjectsV2Output
	listed  []*s3.ListObjectsV2Input
	copyErr error
	delOut  *s3.DeleteObjectsOutput
}

func (m *mockS3Client) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	m.copies = append(m.copies, in)
	return &s3.CopyObjectOutput{}, m.copyErr
}

func (m *mockS3Client) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	m.deletes = append(m.deletes, in)
	if m.delOut != nil {
		return m.delOut, nil
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func (m *mockS3Client) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.listed = append(m.listed, in)
	if len(m.pages) == 0 {
		return &s3.ListObjectsV2Output{}, nil
	}
	p := m.pages[0]
	m.pages = m.pages[1:]
	return p, nil
}

func objects(prefix string, n int) []s3types.Object {
	out := make([]s3types.Object, n)
	for i := range out {
		out[i] = s3types.Object{Key: aws.String(fmt.Sprintf("%s%04d.pdf", prefix, i))}
	}
	return out
}

func newTestStore(t *testing.T, m *mockS3Client) *Store {
	t.Helper()
	s, err := New(context.Background(), "private-files", "public-files", WithS3Client(m))
	require.NoError(t, err)
	return s
}

func TestNew_RequiresBuckets(t *testing.T) {
	_, err := New(context.Background(), "", "public", WithS3Client(&mockS3Client{}))
	assert.Error(t, err)
	_, err = New(context.Background(), "private", "", WithS3Client(&mockS3Client{}))
	assert.Error(t, err)
}

func TestCopyToPublic(t *testing.T) {
	m := &mockS3Client{}
	s := newTestStore(t, m)

	require.NoError(t, s.CopyToPublic(context.Background(), "/uploads/images/chart one.png", "/methodologies/abc/chart one.png"))

	require.Len(t, m.copies, 1)
	in := m.copies[0]
	assert.Equal(t, "public-files", *in.Bucket)
	assert.Equal(t, "methodologies/abc/chart one.png", *in.Key)
	assert.Equal(t, "private-files/uploads/images/chart%20one.png", *in.CopySource)
}

func TestCopyToPublic_Error(t *testing.T) {
	m := &mockS3Client{copyErr: errors.New("access denied")}
	s := newTestStore(t, m)

	err := s.CopyToPublic(context.Background(), "a/b", "c/b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestDeletePublicPrefix_Paginates(t *testing.T) {
	m := &mockS3Client{pages: []*s3.ListObjectsV2Output{
		{Contents: objects("releases/rv1/", 1200), IsTruncated: aws.Bool(true), NextContinuationToken: aws.String("next")},
		{Contents: objects("releases/rv1/z", 3)},
	}}
	s := newTestStore(t, m)

	n, err := s.DeletePublicPrefix(context.Background(), "releases/rv1/")
	require.NoError(t, err)
	assert.Equal(t, 1203, n)

	require.Len(t, m.listed, 2)
	assert.Nil(t, m.listed[0].ContinuationToken)
	assert.Equal(t, "next", *m.listed[1].ContinuationToken)

	require.Len(t, m.deletes, 3)
	assert.Len(t, m.deletes[0].Delete.Objects, 1000)
	assert.Len(t, m.deletes[1].Delete.Objects, 200)
	assert.Len(t, m.deletes[2].Delete.Objects, 3)
	assert.Equal(t, "public-files", *m.deletes[0].Bucket)
}

func TestDeletePublicPrefix_NothingToDelete(t *testing.T) {
	m := &mockS3Client{}
	s := newTestStore(t, m)

	n, err := s.DeletePublicPrefix(context.Background(), "methodologies/none/")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, m.deletes)
}

func TestDeletePublicPrefix_RejectsEmptyPrefix(t *testing.T) {
	m := &mockS3Client{}
	s := newTestStore(t, m)

	_, err := s.DeletePublicPrefix(context.Background(), "/")
	require.Error(t, err)
	assert.Empty(t, m.listed)
}

func TestDeletePublicPrefix_PartialFailure(t *testing.T) {
	m := &mockS3Client{
		pages: []*s3.ListObjectsV2Output{{Contents: objects("p/", 4)}},
		delOut: &s3.DeleteObjectsOutput{Errors: []s3types.Error{
			{Key: aws.String("p/0002.pdf"), Message: aws.String("Access Denied")},
		}},
	}
	s := newTestStore(t, m)

	n, err := s.DeletePublicPrefix(context.Background(), "p/")
	require.Error(t, err)
	assert.Equal(t, 3, n)
	assert.Contains(t, err.Error(), "p/0002.pdf")
}
