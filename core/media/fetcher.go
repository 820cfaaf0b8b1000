package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"VcFM/core/playlist"
	"VcFM/model"

	"github.com/google/uuid"
)

// Fetcher 把远端媒体文件下载到本地媒体目录。
// 下载先落到临时文件，成功后按内容身份命名移入 {kind}s/ 目录，
// 避免半截文件被当成可播放媒体。
type Fetcher struct {
	client  *http.Client
	baseDir string
}

// NewFetcher 创建媒体下载器
func NewFetcher(baseDir string) *Fetcher {
	return &Fetcher{
		client:  &http.Client{Timeout: 5 * time.Minute},
		baseDir: baseDir,
	}
}

// Download 下载 link 指向的媒体文件。
// identity 是曲目身份串，文件名取其内容哈希加原始扩展名。
func (f *Fetcher) Download(ctx context.Context, link string, kind model.MediaKind, identity string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", fmt.Errorf("创建下载请求失败: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("下载媒体文件失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("下载返回错误状态码: %d", resp.StatusCode)
	}

	if err := os.MkdirAll(f.baseDir, 0755); err != nil {
		return "", fmt.Errorf("创建媒体目录失败: %w", err)
	}

	tmpPath := filepath.Join(f.baseDir, uuid.New().String()+".part")
	tmp, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("创建临时文件失败: %w", err)
	}

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("写入媒体文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("关闭媒体文件失败: %w", err)
	}

	ext := path.Ext(link)
	filename := playlist.TrackKey(identity) + ext
	dir := filepath.Join(f.baseDir, string(kind)+"s")

	final, err := SaveTo(dir, tmpPath, filename)
	if err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	return final, nil
}

// SaveTo 把文件移动到指定目录下（目录不存在时创建）
func SaveTo(dir string, src string, filename string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("创建目录失败: %w", err)
	}
	if filename == "" {
		filename = filepath.Base(src)
	}
	dst := filepath.Join(dir, filename)
	if err := os.Rename(src, dst); err != nil {
		return "", fmt.Errorf("移动文件失败: %w", err)
	}
	return dst, nil
}
