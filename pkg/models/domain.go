package models

import "sort"

// MediaItemProperty is a key in a media item's property set.
type MediaItemProperty string

const (
	PropertyTitle     MediaItemProperty = "title"
	PropertySubtitle  MediaItemProperty = "subtitle"
	PropertyArtist    MediaItemProperty = "artist"
	PropertyYouTubeID MediaItemProperty = "youtubeID"
	PropertyWebURL    MediaItemProperty = "webURL"
)

// MediaItemProperties is the descriptive metadata attached to a reference
// signature, e.g. {title: "song"}.
type MediaItemProperties map[MediaItemProperty]string

// MediaItem is an immutable property set. Values handed to NewMediaItem are
// copied, and Properties returns a copy, so a MediaItem never changes after
// creation.
type MediaItem struct {
	props MediaItemProperties
}

func NewMediaItem(props MediaItemProperties) MediaItem {
	cp := make(MediaItemProperties, len(props))
	for k, v := range props {
		cp[k] = v
	}
	return MediaItem{props: cp}
}

func (m MediaItem) Get(key MediaItemProperty) (string, bool) {
	v, ok := m.props[key]
	return v, ok
}

func (m MediaItem) Title() string  { return m.props[PropertyTitle] }
func (m MediaItem) Artist() string { return m.props[PropertyArtist] }

func (m MediaItem) Properties() MediaItemProperties {
	cp := make(MediaItemProperties, len(m.props))
	for k, v := range m.props {
		cp[k] = v
	}
	return cp
}

// Keys returns the property keys in lexical order.
func (m MediaItem) Keys() []MediaItemProperty {
	keys := make([]MediaItemProperty, 0, len(m.props))
	for k := range m.props {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func (m MediaItem) Len() int { return len(m.props) }
