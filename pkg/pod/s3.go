package pod

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bertrandchenal/lakota/pkg/lakotaerrs"
)

// S3 is a Pod backed by an S3-compatible object store, used for lakota's
// durable/remote tier. Credential and endpoint resolution is intentionally
// minimal: lakota reads them from the environment rather than implementing
// a full credential-provider chain.
type S3 struct {
	client *minio.Client
	bucket string
	prefix string
}

const (
	envEndpoint  = "LAKOTA_S3_ENDPOINT"
	envAccessKey = "LAKOTA_S3_ACCESS_KEY"
	envSecretKey = "LAKOTA_S3_SECRET_KEY"
	envSecure    = "LAKOTA_S3_SECURE"
)

// openS3 parses a "bucket/prefix" path (the part of an s3:// URI after the
// scheme) and dials an S3 client using credentials from the environment.
func openS3(rest string) (*S3, error) {
	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return nil, fmt.Errorf("pod: s3 URI missing bucket name")
	}

	endpoint, ok := osLookupEnv(envEndpoint)
	if !ok || endpoint == "" {
		endpoint = "s3.amazonaws.com"
	}
	accessKey, _ := osLookupEnv(envAccessKey)
	secretKey, _ := osLookupEnv(envSecretKey)
	secure := true
	if v, ok := osLookupEnv(envSecure); ok && v == "false" {
		secure = false
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("pod: dial s3 endpoint %s: %w", endpoint, lakotaerrs.RemoteIO)
	}

	return &S3{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *S3) objectName(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

func (s *S3) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.objectName(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("pod: s3 get %s: %w", key, lakotaerrs.RemoteIO)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" {
			return nil, fmt.Errorf("pod: %s: %w", key, lakotaerrs.PodNotFound)
		}
		return nil, fmt.Errorf("pod: s3 read %s: %w", key, lakotaerrs.RemoteIO)
	}
	return data, nil
}

func (s *S3) Put(ctx context.Context, key string, content []byte) error {
	if _, err := s.client.StatObject(ctx, s.bucket, s.objectName(key), minio.StatObjectOptions{}); err == nil {
		// Object already exists; content-addressed keys make this a no-op.
		return nil
	}

	reader := strings.NewReader(string(content))
	_, err := s.client.PutObject(ctx, s.bucket, s.objectName(key), reader, int64(len(content)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("pod: s3 put %s: %w", key, lakotaerrs.RemoteIO)
	}
	return nil
}

func (s *S3) List(ctx context.Context, prefix string) ([]string, error) {
	return s.listObjects(ctx, prefix, false)
}

func (s *S3) Walk(ctx context.Context, prefix string) ([]string, error) {
	return s.listObjects(ctx, prefix, true)
}

func (s *S3) listObjects(ctx context.Context, prefix string, recursive bool) ([]string, error) {
	var keys []string
	objCh := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.objectName(prefix),
		Recursive: recursive,
	})
	for obj := range objCh {
		if obj.Err != nil {
			return nil, fmt.Errorf("pod: s3 list %s: %w", prefix, lakotaerrs.RemoteIO)
		}
		name := obj.Key
		if s.prefix != "" {
			name = strings.TrimPrefix(name, s.prefix+"/")
		}
		keys = append(keys, name)
	}
	return keys, nil
}

func (s *S3) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, s.objectName(key), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("pod: s3 delete %s: %w", key, lakotaerrs.RemoteIO)
	}
	return nil
}

func (s *S3) Stat(ctx context.Context, key string) (time.Time, error) {
	info, err := s.client.StatObject(ctx, s.bucket, s.objectName(key), minio.StatObjectOptions{})
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
			return time.Time{}, fmt.Errorf("pod: %s: %w", key, lakotaerrs.PodNotFound)
		}
		return time.Time{}, fmt.Errorf("pod: s3 stat %s: %w", key, lakotaerrs.RemoteIO)
	}
	return info.LastModified, nil
}

func (s *S3) String() string { return "s3://" + s.bucket + "/" + s.prefix }
