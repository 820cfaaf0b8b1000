package storage

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// BucketStats 存储桶统计信息
type BucketStats struct {
	TotalObjects int64
	TotalSize    int64
	LastModified time.Time
}

// ObjectInfo 归档对象信息
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
}

// Browser 归档存储桶的运维浏览器，供命令行查看与清理归档对象
type Browser struct {
	client     *minio.Client
	bucketName string
}

// NewBrowser 创建归档浏览器
func NewBrowser(endpoint, accessKey, secretKey, bucketName string, useSSL bool) (*Browser, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 MinIO 客户端失败: %v", err)
	}

	return &Browser{
		client:     client,
		bucketName: bucketName,
	}, nil
}

// ListObjects 列出指定前缀下的归档对象并汇总统计
func (b *Browser) ListObjects(prefix string, recursive bool) ([]ObjectInfo, *BucketStats, error) {
	ctx := context.Background()

	exists, err := b.client.BucketExists(ctx, b.bucketName)
	if err != nil {
		return nil, nil, fmt.Errorf("检查存储桶是否存在失败: %v", err)
	}
	if !exists {
		return nil, nil, fmt.Errorf("存储桶 %s 不存在", b.bucketName)
	}

	stats := &BucketStats{}
	var objects []ObjectInfo

	objectCh := b.client.ListObjects(ctx, b.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: recursive,
	})
	for object := range objectCh {
		if object.Err != nil {
			return nil, nil, fmt.Errorf("列出对象时出错: %v", object.Err)
		}

		stats.TotalObjects++
		stats.TotalSize += object.Size
		if object.LastModified.After(stats.LastModified) {
			stats.LastModified = object.LastModified
		}

		objects = append(objects, ObjectInfo{
			Key:          object.Key,
			Size:         object.Size,
			LastModified: object.LastModified,
			ContentType:  object.ContentType,
		})
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, stats, nil
}

// PrintBucketStats 打印存储桶状态报告
func (b *Browser) PrintBucketStats(prefix string) error {
	objects, stats, err := b.ListObjects(prefix, true)
	if err != nil {
		return err
	}

	log.Printf("\n📊 存储桶状态报告: %s", b.bucketName)
	log.Printf("🔍 前缀过滤: %s", prefix)
	log.Printf("📝 总文件数: %d", stats.TotalObjects)
	log.Printf("💾 总存储大小: %s", formatSize(stats.TotalSize))
	log.Printf("🕒 最后更新时间: %s", stats.LastModified.Format("2006-01-02 15:04:05"))
	log.Printf("\n📋 文件列表:")

	for _, obj := range objects {
		log.Printf("  ├─ %s", obj.Key)
		log.Printf("  │  ├─ 大小: %s", formatSize(obj.Size))
		log.Printf("  │  └─ 修改时间: %s", obj.LastModified.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// PrintTree 按目录层级打印归档结构
func (b *Browser) PrintTree(prefix string) error {
	objects, _, err := b.ListObjects(prefix, true)
	if err != nil {
		return err
	}

	// 按一级目录分组
	groups := make(map[string][]ObjectInfo)
	var dirs []string
	for _, obj := range objects {
		dir := "/"
		if i := strings.Index(obj.Key, "/"); i >= 0 {
			dir = obj.Key[:i]
		}
		if _, seen := groups[dir]; !seen {
			dirs = append(dirs, dir)
		}
		groups[dir] = append(groups[dir], obj)
	}
	sort.Strings(dirs)

	for _, dir := range dirs {
		fmt.Printf("%s/\n", dir)
		for _, obj := range groups[dir] {
			fmt.Printf("  %s (%s)\n", obj.Key, formatSize(obj.Size))
		}
	}
	return nil
}

// DeleteDirectory 删除指定前缀下的全部归档对象
func (b *Browser) DeleteDirectory(prefix string) error {
	ctx := context.Background()

	objectCh := b.client.ListObjects(ctx, b.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	var deleted int
	for object := range objectCh {
		if object.Err != nil {
			return fmt.Errorf("列出对象时出错: %v", object.Err)
		}
		if err := b.client.RemoveObject(ctx, b.bucketName, object.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("删除对象 %s 失败: %v", object.Key, err)
		}
		deleted++
	}

	log.Printf("✅ 已删除 %d 个对象 (前缀: %s)", deleted, prefix)
	return nil
}

// formatSize 格式化文件大小
func formatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
