// Package artifacts хранит архивы исходников сборок.
//
// Два устройства: S3Device (S3-совместимое хранилище через minio-go)
// и LocalDevice (файловая система, для разработки и одиночного узла).
package artifacts

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Типы устройств, записываемые в build.source_type.
const (
	DeviceS3    = "s3"
	DeviceLocal = "local"
)

// ObjectKey возвращает ключ архива исходников деплоймента.
func ObjectKey(tenantID, deploymentID string) string {
	return path.Join(tenantID, deploymentID+".tar.gz")
}

// S3Config — настройки S3 устройства.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// S3Device загружает архивы в бакет.
type S3Device struct {
	mc     *minio.Client
	bucket string
}

// NewS3Device создаёт клиент без сетевых вызовов.
func NewS3Device(cfg S3Config) (*S3Device, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	return &S3Device{mc: mc, bucket: cfg.Bucket}, nil
}

// EnsureBucket создаёт бакет, если его нет.
func (d *S3Device) EnsureBucket(ctx context.Context) error {
	exists, err := d.mc.BucketExists(ctx, d.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", d.bucket, err)
	}
	if exists {
		return nil
	}
	if err := d.mc.MakeBucket(ctx, d.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", d.bucket, err)
	}
	return nil
}

// Upload загружает локальный файл и возвращает ключ объекта.
func (d *S3Device) Upload(ctx context.Context, tenantID, deploymentID, localPath string) (string, error) {
	key := ObjectKey(tenantID, deploymentID)
	_, err := d.mc.FPutObject(ctx, d.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: "application/gzip",
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return key, nil
}

// DeviceType возвращает "s3".
func (d *S3Device) DeviceType() string {
	return DeviceS3
}

// LocalDevice копирует архивы в каталог на диске.
type LocalDevice struct {
	root string
}

// NewLocalDevice создаёт LocalDevice с корнем root.
func NewLocalDevice(root string) *LocalDevice {
	return &LocalDevice{root: root}
}

// Upload копирует файл и возвращает абсолютный путь копии.
func (d *LocalDevice) Upload(ctx context.Context, tenantID, deploymentID, localPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dst := filepath.Join(d.root, filepath.FromSlash(ObjectKey(tenantID, deploymentID)))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open source archive: %w", err)
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create artifact: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return "", fmt.Errorf("copy artifact: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close artifact: %w", err)
	}
	return dst, nil
}

// DeviceType возвращает "local".
func (d *LocalDevice) DeviceType() string {
	return DeviceLocal
}
