/*
Package s3 archives finished tasks to any S3-compatible object store.
*/
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/theapemachine/a2a-payments/pkg/a2a"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

/*
Store keeps one JSON object per task under tasks/<id>.json.
*/
type Store struct {
	client *minio.Client
	bucket string
}

/*
NewStore connects to the object store and makes sure the bucket exists.
*/
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})

	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)

	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}

	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}

		log.Info("created archive bucket", "bucket", cfg.Bucket)
	}

	return &Store{client: client, bucket: cfg.Bucket}, nil
}

func (store *Store) Put(ctx context.Context, task *a2a.Task) error {
	data, err := json.Marshal(task)

	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	_, err = store.client.PutObject(
		ctx,
		store.bucket,
		ObjectKey(task.ID),
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"},
	)

	if err != nil {
		return fmt.Errorf("failed to put task %s: %w", task.ID, err)
	}

	return nil
}

func (store *Store) Get(ctx context.Context, taskID string) (*a2a.Task, error) {
	object, err := store.client.GetObject(ctx, store.bucket, ObjectKey(taskID), minio.GetObjectOptions{})

	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", taskID, err)
	}

	defer object.Close()

	data, err := io.ReadAll(object)

	if err != nil {
		return nil, fmt.Errorf("failed to read task %s: %w", taskID, err)
	}

	return DecodeTask(data)
}

func ObjectKey(taskID string) string {
	return "tasks/" + taskID + ".json"
}

func DecodeTask(data []byte) (*a2a.Task, error) {
	task := &a2a.Task{}

	if err := json.Unmarshal(data, task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}

	if task.ID == "" {
		return nil, fmt.Errorf("archived object has no task id")
	}

	return task, nil
}
