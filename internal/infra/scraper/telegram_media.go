package scraper

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"newsflow/internal/domain/entity"
	"newsflow/internal/utils/text"
)

// mediaProbe describes how one media type is discovered on a message widget.
type mediaProbe struct {
	mediaType string
	selectors []string
	attrs     []string
}

// mediaProbes cover the recognized media types. Attribute probes include
// data-* attributes and inline background-image styles.
var mediaProbes = []mediaProbe{
	{entity.MediaImage, []string{
		".tgme_widget_message_photo_wrap",
		".tgme_widget_message_photo a",
		"a.tgme_widget_message_photo_wrap",
	}, []string{"style", "data-src", "href"}},
	{entity.MediaVideo, []string{
		".tgme_widget_message_video_wrap video",
		".tgme_widget_message_video",
		"video",
	}, []string{"src", "data-src", "style"}},
	{entity.MediaAudio, []string{
		".tgme_widget_message_voice",
		"audio",
	}, []string{"src", "data-src"}},
	{entity.MediaSticker, []string{
		".tgme_widget_message_sticker_wrap picture img",
		".tgme_widget_message_sticker",
	}, []string{"src", "style", "data-webp"}},
	{entity.MediaGIF, []string{
		".tgme_widget_message_gif video",
		"video.tgme_widget_message_gif",
	}, []string{"src", "data-src"}},
	{entity.MediaDocument, []string{
		".tgme_widget_message_document_wrap a",
		".tgme_widget_message_document",
	}, []string{"href", "data-src"}},
	{entity.MediaPoll, []string{".tgme_widget_message_poll"}, nil},
	{entity.MediaLocation, []string{".tgme_widget_message_location_wrap a"}, []string{"href", "style"}},
	{entity.MediaContact, []string{".tgme_widget_message_contact_wrap"}, nil},
}

// excludedPhotoSelectors identify channel/owner/profile imagery that must
// never be treated as content media.
var excludedPhotoSelectors = []string{
	".tgme_widget_message_owner_photo",
	".tgme_widget_message_user_photo",
	".tgme_channel_info_header_photo",
	".tgme_page_photo_image",
}

var backgroundImagePattern = regexp.MustCompile(`background-image:\s*url\('?"?([^'")]+)'?"?\)`)

// nonContentImageMarkers filter emoji, avatars and obvious icons by URL.
var nonContentImageMarkers = []string{"emoji", "avatar", "profile", "userpic", "icon", "favicon", "logo-"}

// extractMedia discovers all media attachments on one message widget,
// deduplicated by URL.
func (f *TelegramFetcher) extractMedia(sel *goquery.Selection) []entity.MediaFile {
	excluded := make(map[string]bool)
	for _, exSelector := range excludedPhotoSelectors {
		sel.Find(exSelector).Each(func(_ int, node *goquery.Selection) {
			if u := mediaURLFrom(node, []string{"style", "src", "href"}); u != "" {
				excluded[u] = true
			}
		})
	}

	seen := make(map[string]bool)
	var media []entity.MediaFile
	for _, probe := range mediaProbes {
		for _, selector := range probe.selectors {
			sel.Find(selector).Each(func(_ int, node *goquery.Selection) {
				switch probe.mediaType {
				case entity.MediaPoll:
					if question := strings.TrimSpace(node.Find(".tgme_widget_message_poll_question").Text()); question != "" {
						key := "poll:" + question
						if !seen[key] {
							seen[key] = true
							media = append(media, entity.MediaFile{
								Type:      entity.MediaPoll,
								SourceTag: selector,
								PollData:  map[string]string{"question": question},
							})
						}
					}
					return
				case entity.MediaContact:
					if name := strings.TrimSpace(node.Text()); name != "" {
						key := "contact:" + name
						if !seen[key] {
							seen[key] = true
							media = append(media, entity.MediaFile{
								Type:      entity.MediaContact,
								SourceTag: selector,
								Metadata:  map[string]string{"name": name},
							})
						}
					}
					return
				}

				mediaURL := mediaURLFrom(node, probe.attrs)
				if mediaURL == "" {
					return
				}
				mediaURL = absolutizeMediaURL(mediaURL)
				if excluded[mediaURL] || seen[mediaURL] {
					return
				}
				if probe.mediaType == entity.MediaImage && !isContentImage(mediaURL) {
					return
				}
				seen[mediaURL] = true

				file := entity.MediaFile{
					Type:      probe.mediaType,
					URL:       mediaURL,
					SourceTag: selector,
				}
				if thumb, ok := node.Attr("poster"); ok {
					file.Thumbnail = absolutizeMediaURL(thumb)
				}
				if name, ok := node.Attr("download"); ok {
					file.FileName = name
				}
				media = append(media, file)
			})
		}
	}
	return media
}

// mediaURLFrom probes the node's attributes for a usable URL, including
// background-image styles.
func mediaURLFrom(node *goquery.Selection, attrs []string) string {
	for _, attr := range attrs {
		value, ok := node.Attr(attr)
		if !ok || value == "" {
			continue
		}
		if attr == "style" {
			if m := backgroundImagePattern.FindStringSubmatch(value); m != nil {
				return strings.TrimSpace(m[1])
			}
			continue
		}
		cleaned, _ := text.CleanURL(value)
		return cleaned
	}
	return ""
}

// absolutizeMediaURL normalizes protocol-relative and root-relative URLs.
func absolutizeMediaURL(raw string) string {
	switch {
	case strings.HasPrefix(raw, "//"):
		return "https:" + raw
	case strings.HasPrefix(raw, "/"):
		return "https://t.me" + raw
	}
	return raw
}

// isContentImage filters emoji, profile and icon imagery by URL markers and
// obvious icon dimensions embedded in the path.
func isContentImage(mediaURL string) bool {
	lower := strings.ToLower(mediaURL)
	for _, marker := range nonContentImageMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	for _, size := range []string{"16x16", "32x32", "48x48", "64x64"} {
		if strings.Contains(lower, size) {
			return false
		}
	}
	return true
}
