package archive

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"VcFM/config"
	"VcFM/core/playlist"
	"VcFM/logger"
	"VcFM/model"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	// ErrUploadInProgress 同一曲目的归档已在进行中
	ErrUploadInProgress = errors.New("upload already in progress")
	// ErrNoLocalFile 当前曲目没有可归档的本地文件
	ErrNoLocalFile = errors.New("no local media file")
)

// Archiver 把曲目的本地媒体文件归档到对象存储，支撑"下载当前曲目"。
// 归档按来源ID去重：InProgress 标记挡住并发重复上传，
// Saved 集合与 MessageID 映射记录已完成的归档对象。
type Archiver struct {
	client *minio.Client
	bucket string
	store  *playlist.Store
}

// NewArchiver 创建归档器并验证存储桶可用
func NewArchiver(cfg *config.Config, store *playlist.Store) (*Archiver, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 MinIO 客户端失败: %w", err)
	}

	a := &Archiver{client: client, bucket: cfg.MinioBucket, store: store}
	if err := a.ensureBucket(context.Background()); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Archiver) ensureBucket(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("检查存储桶失败: %w", err)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("创建存储桶失败: %w", err)
		}
		logger.Info("归档存储桶已创建", logger.String("bucket", a.bucket))
	}
	return nil
}

// ArchiveTrack 归档一条曲目的本地文件，返回对象引用。
// 已归档的直接返回既有引用；并发重复归档返回 ErrUploadInProgress。
func (a *Archiver) ArchiveTrack(ctx context.Context, attrs map[string]string) (string, error) {
	providerID := attrs[model.AttrID]
	if providerID == "" {
		return "", ErrNoLocalFile
	}

	// 已有归档对象，直接复用
	if ref, err := a.store.MessageRef(ctx, providerID); err != nil {
		return "", err
	} else if ref != "" {
		return ref, nil
	}

	saved, err := a.store.IsSaved(ctx, providerID)
	if err != nil {
		return "", err
	}
	if !saved {
		busy, err := a.store.InProgress(ctx, providerID)
		if err != nil {
			return "", err
		}
		if busy {
			return "", ErrUploadInProgress
		}

		path := attrs[model.AttrPath]
		if path == "" {
			return "", ErrNoLocalFile
		}

		if err := a.store.SetInProgress(ctx, providerID); err != nil {
			return "", err
		}

		objectName := fmt.Sprintf("%ss/%s%s", attrs[model.AttrKind], providerID, filepath.Ext(path))
		contentType := "audio/mpeg"
		if attrs[model.AttrKind] == string(model.KindVideo) {
			contentType = "video/mp4"
		}

		if _, err := a.client.FPutObject(ctx, a.bucket, objectName, path, minio.PutObjectOptions{
			ContentType: contentType,
		}); err != nil {
			a.store.ClearInProgress(ctx, providerID)
			return "", fmt.Errorf("上传归档对象失败: %w", err)
		}

		if err := a.store.ClearInProgress(ctx, providerID); err != nil {
			logger.Warn("清除上传标记失败", logger.String("providerId", providerID), logger.ErrorField(err))
		}
		if err := a.store.MarkSaved(ctx, providerID); err != nil {
			return "", err
		}
		if err := a.store.SetMessageRef(ctx, providerID, objectName); err != nil {
			return "", err
		}

		logger.Info("曲目已归档",
			logger.String("providerId", providerID),
			logger.String("object", objectName))
	}

	return a.store.MessageRef(ctx, providerID)
}
