package model

import "strconv"

// MediaKind 媒体类型
type MediaKind string

const (
	KindAudio MediaKind = "audio"
	KindVideo MediaKind = "video"
)

// 曲目属性名，对应存储层 Detail-{attr} 的 attr 部分。
// 属性按名分散存储，便于局部更新（如追加 seek 偏移）而不重写整条记录。
const (
	AttrNamespace = "identifier" // 来源命名空间：provider / upload
	AttrID        = "id"         // 来源内的曲目ID
	AttrKind      = "type"       // audio | video
	AttrArtist    = "artist"
	AttrTitle     = "title"
	AttrDuration  = "duration" // 秒，允许小数
	AttrLink      = "link"     // 远端下载地址
	AttrPath      = "path"     // 本地媒体文件路径
	AttrThumbnail = "thumbnail"
	AttrSeek      = "seek"   // 累计跳转表达式，如 "+10-5"
	AttrMsgRef    = "msg_id" // 上传来源的消息引用
)

// 曲目来源命名空间
const (
	NamespaceProvider = "provider" // 外部搜索服务
	NamespaceUpload   = "upload"   // 用户上传的媒体
)

// Track 播放队列中的一条曲目。
// 缺失的属性在序列化时省略，而不是写入空值。
type Track struct {
	Namespace string
	ID        string
	Kind      MediaKind
	Artist    string
	Title     string
	Duration  float64
	Link      string
	Path      string
	Thumbnail string
	Seek      string
	MsgRef    string
}

// Identity 返回用于内容哈希的身份串 "{namespace}/{id}"
func (t *Track) Identity() string {
	return t.Namespace + "/" + t.ID
}

// Attrs 转换为属性映射，零值字段省略
func (t *Track) Attrs() map[string]string {
	attrs := make(map[string]string)
	if t.Namespace != "" {
		attrs[AttrNamespace] = t.Namespace
	}
	if t.ID != "" {
		attrs[AttrID] = t.ID
	}
	if t.Kind != "" {
		attrs[AttrKind] = string(t.Kind)
	}
	if t.Artist != "" {
		attrs[AttrArtist] = t.Artist
	}
	if t.Title != "" {
		attrs[AttrTitle] = t.Title
	}
	if t.Duration != 0 {
		attrs[AttrDuration] = strconv.FormatFloat(t.Duration, 'f', -1, 64)
	}
	if t.Link != "" {
		attrs[AttrLink] = t.Link
	}
	if t.Path != "" {
		attrs[AttrPath] = t.Path
	}
	if t.Thumbnail != "" {
		attrs[AttrThumbnail] = t.Thumbnail
	}
	if t.Seek != "" {
		attrs[AttrSeek] = t.Seek
	}
	if t.MsgRef != "" {
		attrs[AttrMsgRef] = t.MsgRef
	}
	return attrs
}

// TrackFromAttrs 从属性映射还原曲目，未知属性忽略
func TrackFromAttrs(attrs map[string]string) *Track {
	t := &Track{
		Namespace: attrs[AttrNamespace],
		ID:        attrs[AttrID],
		Kind:      MediaKind(attrs[AttrKind]),
		Artist:    attrs[AttrArtist],
		Title:     attrs[AttrTitle],
		Link:      attrs[AttrLink],
		Path:      attrs[AttrPath],
		Thumbnail: attrs[AttrThumbnail],
		Seek:      attrs[AttrSeek],
		MsgRef:    attrs[AttrMsgRef],
	}
	if v, ok := attrs[AttrDuration]; ok {
		t.Duration, _ = strconv.ParseFloat(v, 64)
	}
	return t
}
