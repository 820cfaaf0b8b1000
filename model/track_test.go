package model

import "testing"

func TestTrackAttrsOmitsZeroValues(t *testing.T) {
	track := &Track{
		Namespace: NamespaceProvider,
		ID:        "42",
		Kind:      KindAudio,
		Title:     "Song",
		Duration:  212.5,
	}

	attrs := track.Attrs()
	if len(attrs) != 5 {
		t.Errorf("属性数 = %d, want 5: %v", len(attrs), attrs)
	}
	if _, ok := attrs[AttrArtist]; ok {
		t.Error("零值字段不应出现在属性映射中")
	}
	if attrs[AttrDuration] != "212.5" {
		t.Errorf("duration = %q, want 212.5", attrs[AttrDuration])
	}
}

func TestTrackFromAttrs(t *testing.T) {
	got := TrackFromAttrs(map[string]string{
		AttrNamespace: NamespaceProvider,
		AttrID:        "42",
		AttrKind:      "video",
		AttrDuration:  "300",
		AttrSeek:      "+10-5",
		"unknown":     "ignored",
	})

	if got.Identity() != "provider/42" {
		t.Errorf("Identity = %q", got.Identity())
	}
	if got.Kind != KindVideo || got.Duration != 300 || got.Seek != "+10-5" {
		t.Errorf("track = %+v", got)
	}
}
