package presenter

import (
	"regexp"

	"github.com/kozaktomas/hijabist/internal/constants"
)

// Matches watch, youtu.be, embed, /v/ and shorts URLs.
var youTubeIDPattern = regexp.MustCompile(
	`(?:youtube\.com/(?:[^/]+/.+/|(?:v|e(?:mbed)?)/|.*[?&]v=)|youtu\.be/|youtube\.com/shorts/)([^"&?/\s]{11})`)

// YouTubeVideoID extracts the 11 character video ID, or "" if there is none.
func YouTubeVideoID(url string) string {
	m := youTubeIDPattern.FindStringSubmatch(url)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// YouTubeEmbedURL returns the embeddable player URL, or "" without an ID.
func YouTubeEmbedURL(url string) string {
	id := YouTubeVideoID(url)
	if id == "" {
		return ""
	}
	return "https://www.youtube.com/embed/" + id + "?rel=0&modestbranding=1"
}

// YouTubeThumbnail returns the medium quality thumbnail, or a placeholder.
func YouTubeThumbnail(url string) string {
	id := YouTubeVideoID(url)
	if id == "" {
		return constants.ThumbnailPlaceholder
	}
	return "https://img.youtube.com/vi/" + id + "/mqdefault.jpg"
}
