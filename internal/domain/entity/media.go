package entity

// Media types recognized by the Telegram media extractor.
const (
	MediaImage    = "image"
	MediaVideo    = "video"
	MediaAudio    = "audio"
	MediaSticker  = "sticker"
	MediaGIF      = "gif"
	MediaDocument = "document"
	MediaPoll     = "poll"
	MediaLocation = "location"
	MediaContact  = "contact"
)

// MediaFile is one media attachment discovered on an article, deduplicated
// per-article by URL.
type MediaFile struct {
	Type      string            `json:"type"`
	URL       string            `json:"url"`
	Thumbnail string            `json:"thumbnail,omitempty"`
	SourceTag string            `json:"source_tag,omitempty"`
	Duration  int               `json:"duration,omitempty"`
	FileName  string            `json:"file_name,omitempty"`
	FileSize  int64             `json:"file_size,omitempty"`
	PollData  map[string]string `json:"poll_data,omitempty"`
	Location  map[string]string `json:"location_data,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}
