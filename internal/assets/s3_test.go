package assets

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"survey-engine/internal/model"
)

type mockObjectAPI struct {
	mock.Mock
}

func (m *mockObjectAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(in)
	out, _ := args.Get(0).(*s3.PutObjectOutput)
	return out, args.Error(1)
}

func (m *mockObjectAPI) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(in)
	out, _ := args.Get(0).(*s3.DeleteObjectOutput)
	return out, args.Error(1)
}

// stubS3 swaps the client constructors. Tests using it cannot run in parallel.
func stubS3(t *testing.T, api objectAPI) (*awsconfig.LoadOptions, *s3.Options) {
	t.Helper()
	origLoad := loadDefaultAWSConfig
	origNew := newS3ClientFromConfig
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNew
	})

	var loaded awsconfig.LoadOptions
	var clientOpts s3.Options
	loadDefaultAWSConfig = func(_ context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		for _, fn := range optFns {
			if err := fn(&loaded); err != nil {
				return aws.Config{}, err
			}
		}
		return aws.Config{}, nil
	}
	newS3ClientFromConfig = func(_ aws.Config, optFns ...func(*s3.Options)) objectAPI {
		for _, fn := range optFns {
			fn(&clientOpts)
		}
		return api
	}
	return &loaded, &clientOpts
}

func TestNewS3StoreAppliesOptions(t *testing.T) {
	loaded, clientOpts := stubS3(t, &mockObjectAPI{})

	_, err := NewS3Store(context.Background(), S3Options{
		Region:       "us-east-1",
		Endpoint:     "http://127.0.0.1:9000",
		AccessKey:    "minioadmin",
		SecretKey:    "minioadmin",
		Bucket:       "survey-assets",
		UsePathStyle: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "us-east-1", loaded.Region)
	require.NotNil(t, loaded.Credentials)
	creds, err := loaded.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "minioadmin", creds.AccessKeyID)

	require.NotNil(t, clientOpts.BaseEndpoint)
	assert.Equal(t, "http://127.0.0.1:9000", *clientOpts.BaseEndpoint)
	assert.True(t, clientOpts.UsePathStyle)
}

func TestNewS3StoreErrors(t *testing.T) {
	stubS3(t, &mockObjectAPI{})

	_, err := NewS3Store(context.Background(), S3Options{Region: "us-east-1"})
	require.Error(t, err)

	loadDefaultAWSConfig = func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no profile")
	}
	_, err = NewS3Store(context.Background(), S3Options{Bucket: "b"})
	require.ErrorContains(t, err, "load aws config")
}

func TestS3StoreUploadAndDelete(t *testing.T) {
	api := &mockObjectAPI{}
	stubS3(t, api)
	store, err := NewS3Store(context.Background(), S3Options{Region: "us-east-1", Bucket: "survey-assets"})
	require.NoError(t, err)

	data := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	api.On("PutObject", mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		body, _ := io.ReadAll(in.Body)
		return aws.ToString(in.Bucket) == "survey-assets" &&
			strings.HasPrefix(aws.ToString(in.Key), "tenant-1/") &&
			aws.ToString(in.ContentType) == "image/png" &&
			string(body) == string(data)
	})).Return(&s3.PutObjectOutput{}, nil).Once()

	ref, err := store.UploadBinary(context.Background(), "tenant-1", data)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(ref, ".png"))

	api.On("DeleteObject", mock.MatchedBy(func(in *s3.DeleteObjectInput) bool {
		return aws.ToString(in.Key) == ref
	})).Return(&s3.DeleteObjectOutput{}, nil).Once()
	require.NoError(t, store.DeleteBinary(context.Background(), ref))

	require.ErrorIs(t, store.DeleteBinary(context.Background(), "../x"), model.ErrValidation)
	api.AssertExpectations(t)
}

func TestS3StoreUploadFailure(t *testing.T) {
	api := &mockObjectAPI{}
	stubS3(t, api)
	store, err := NewS3Store(context.Background(), S3Options{Bucket: "survey-assets"})
	require.NoError(t, err)

	api.On("PutObject", mock.Anything).Return(nil, errors.New("access denied")).Once()
	_, err = store.UploadBinary(context.Background(), "tenant-1", []byte("x"))
	require.ErrorContains(t, err, "access denied")
}
