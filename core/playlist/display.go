package playlist

import (
	"fmt"
	"strconv"
	"strings"

	"VcFM/model"
)

// FormatSeconds 把秒数格式化为 MM:SS，超过一小时为 HH:MM:SS
func FormatSeconds(seconds float64) string {
	total := int(seconds)
	hours := total / 3600
	total %= 3600
	minutes := total / 60
	total %= 60
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, total)
	}
	return fmt.Sprintf("%02d:%02d", minutes, total)
}

// SeekOffset 计算累计跳转表达式的总偏移。
// 表达式是带符号整数的连写，如 "+10-5" = 5；按整数加法求值，
// 不做任何动态表达式解释。空串偏移为 0，畸形表达式返回错误。
func SeekOffset(expr string) (int, error) {
	if expr == "" {
		return 0, nil
	}

	total := 0
	i := 0
	for i < len(expr) {
		sign := 1
		switch expr[i] {
		case '+':
		case '-':
			sign = -1
		default:
			return 0, fmt.Errorf("invalid seek expression %q", expr)
		}
		i++

		start := i
		for i < len(expr) && expr[i] >= '0' && expr[i] <= '9' {
			i++
		}
		if start == i {
			return 0, fmt.Errorf("invalid seek expression %q", expr)
		}

		n, err := strconv.Atoi(expr[start:i])
		if err != nil {
			return 0, fmt.Errorf("invalid seek expression %q", expr)
		}
		total += sign * n
	}
	return total, nil
}

// AppendSeek 在表达式尾部追加一次带符号的跳转增量
func AppendSeek(expr string, delta int) string {
	return expr + fmt.Sprintf("%+d", delta)
}

// Display 渲染播放器文案：歌手、曲名、总时长与当前进度。
// playedSeconds 为传输层上报的已播放时长，叠加曲目自身的累计跳转偏移。
func Display(attrs map[string]string, playedSeconds float64) string {
	var b strings.Builder

	// 刚入会时传输层会上报 0，显示为起播后的 2 秒
	if playedSeconds == 0 {
		playedSeconds = 2
	}
	if expr, ok := attrs[model.AttrSeek]; ok {
		if offset, err := SeekOffset(expr); err == nil {
			playedSeconds += float64(offset)
		}
	}

	if artist, ok := attrs[model.AttrArtist]; ok {
		b.WriteString(fmt.Sprintf("🗣 歌手 : %s\n", artist))
	}
	if title, ok := attrs[model.AttrTitle]; ok {
		if attrs[model.AttrKind] == string(model.KindVideo) {
			b.WriteString(fmt.Sprintf("🎵 MV名称 : %s\n", title))
		} else {
			b.WriteString(fmt.Sprintf("🎵 歌曲名称 : %s\n", title))
		}
	}
	if duration, ok := attrs[model.AttrDuration]; ok {
		d, _ := strconv.ParseFloat(duration, 64)
		b.WriteString(fmt.Sprintf("⏱ 时长 : %s - %s", FormatSeconds(d), FormatSeconds(playedSeconds)))
	}

	return b.String()
}

// DisplayName 渲染队列列表中的单行名称，带媒体类型图标
func DisplayName(attrs map[string]string) string {
	var name string
	if artist, ok := attrs[model.AttrArtist]; ok {
		name = artist + " - "
	}
	if title, ok := attrs[model.AttrTitle]; ok {
		name += title
	}
	if name == "" {
		name = "Unknown Track"
	}

	icon := "🎵"
	if attrs[model.AttrKind] == string(model.KindVideo) {
		icon = "🎬"
	}
	return icon + " " + name
}
