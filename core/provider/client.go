package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"VcFM/logger"
	"VcFM/model"
)

// Client 外部歌曲搜索服务的客户端。
// 搜索返回音频与视频两类结果；详情接口补全时长与下载地址。
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// ProbeDuration 可选：视频详情接口不返回时长时，
	// 由外部协作方按下载地址探测（如 ffprobe）。未设置则时长为 0。
	ProbeDuration func(ctx context.Context, link string) (float64, error)
}

// NewClient 创建搜索服务客户端
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// SearchResult 搜索结果中的一条曲目
type SearchResult struct {
	ID        string
	Artist    string
	Title     string
	Link      string
	Thumbnail string
	Kind      model.MediaKind
}

type searchItem struct {
	ID     json.Number `json:"id"`
	Artist string      `json:"artist"`
	Song   string      `json:"song"`
	Link   string      `json:"link"`
	Photo  string      `json:"photo"`
}

func (it *searchItem) toResult(kind model.MediaKind) SearchResult {
	return SearchResult{
		ID:        it.ID.String(),
		Artist:    it.Artist,
		Title:     it.Song,
		Link:      it.Link,
		Thumbnail: it.Photo,
		Kind:      kind,
	}
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API返回错误状态码: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}
	return nil
}

// Search 按关键词搜索，音频结果在前，视频结果在后
func (c *Client) Search(ctx context.Context, query string) ([]SearchResult, error) {
	endpoint := fmt.Sprintf("%s/search?query=%s", c.BaseURL, url.QueryEscape(query))

	var data struct {
		MP3s   []searchItem `json:"mp3s"`
		Videos []searchItem `json:"videos"`
	}
	if err := c.getJSON(ctx, endpoint, &data); err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(data.MP3s)+len(data.Videos))
	for i := range data.MP3s {
		results = append(results, data.MP3s[i].toResult(model.KindAudio))
	}
	for i := range data.Videos {
		results = append(results, data.Videos[i].toResult(model.KindVideo))
	}
	return results, nil
}

type detailResponse struct {
	ID       json.Number `json:"id"`
	Artist   string      `json:"artist"`
	Song     string      `json:"song"`
	Duration json.Number `json:"duration"`
	Link     string      `json:"link"`
	Photo    string      `json:"photo"`
}

// GetAudio 获取音频曲目的完整元数据
func (c *Client) GetAudio(ctx context.Context, id string) (*model.Track, error) {
	endpoint := fmt.Sprintf("%s/mp3?id=%s", c.BaseURL, url.QueryEscape(id))

	var data detailResponse
	if err := c.getJSON(ctx, endpoint, &data); err != nil {
		return nil, err
	}

	duration, _ := strconv.ParseFloat(data.Duration.String(), 64)
	return &model.Track{
		Namespace: model.NamespaceProvider,
		ID:        data.ID.String(),
		Kind:      model.KindAudio,
		Artist:    data.Artist,
		Title:     data.Song,
		Duration:  duration,
		Link:      data.Link,
		Thumbnail: data.Photo,
	}, nil
}

// GetVideo 获取视频曲目的完整元数据。
// 详情接口不带时长，设置了 ProbeDuration 时按下载地址探测。
func (c *Client) GetVideo(ctx context.Context, id string) (*model.Track, error) {
	endpoint := fmt.Sprintf("%s/video/%s", c.BaseURL, url.PathEscape(id))

	var data detailResponse
	if err := c.getJSON(ctx, endpoint, &data); err != nil {
		return nil, err
	}

	track := &model.Track{
		Namespace: model.NamespaceProvider,
		ID:        data.ID.String(),
		Kind:      model.KindVideo,
		Artist:    data.Artist,
		Title:     data.Song,
		Link:      data.Link,
		Thumbnail: data.Photo,
	}

	if d, err := strconv.ParseFloat(data.Duration.String(), 64); err == nil && d > 0 {
		track.Duration = d
	} else if c.ProbeDuration != nil {
		d, err := c.ProbeDuration(ctx, data.Link)
		if err != nil {
			logger.Warn("探测视频时长失败", logger.String("id", track.ID), logger.ErrorField(err))
		} else {
			track.Duration = d
		}
	}

	return track, nil
}
