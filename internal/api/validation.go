package api

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/npezzotti/go-watchparty/internal/database"
	"github.com/npezzotti/go-watchparty/internal/server"
)

const (
	minTitleLength = 2
	maxTitleLength = 120
	maxThemeLength = 40
	minSeats       = 12
	maxSeats       = 48
)

var youtubePattern = regexp.MustCompile(`(?i)^(https?://)?(www\.)?(youtube\.com/watch\?v=|youtu\.be/)[\w-]{6,}`)

const (
	ContentYouTube = "youtube"
	ContentMP3     = "mp3"
	ContentMP4     = "mp4"
)

// detectContentType classifies a media URL. The second result is false for
// anything that is not a YouTube, MP3 or MP4 link.
func detectContentType(url string) (string, bool) {
	if url == "" {
		return "", false
	}
	if youtubePattern.MatchString(url) {
		return ContentYouTube, true
	}

	lowered := strings.ToLower(url)
	switch {
	case strings.Contains(lowered, ".mp3"):
		return ContentMP3, true
	case strings.Contains(lowered, ".mp4"):
		return ContentMP4, true
	}

	return "", false
}

type PlaylistItemRequest struct {
	ContentUrl string `json:"contentUrl"`
	Title      string `json:"title"`
}

type CreatePartyRequest struct {
	Title      string                `json:"title"`
	ContentUrl string                `json:"contentUrl"`
	Visibility string                `json:"visibility"`
	MaxSeats   int                   `json:"maxSeats"`
	Theme      string                `json:"theme"`
	Playlist   []PlaylistItemRequest `json:"playlist"`
}

// params validates the request and resolves its playlist. A bare contentUrl
// becomes a one item playlist when no playlist is given.
func (req CreatePartyRequest) params() (server.CreatePartyParams, *ApiError) {
	title := strings.TrimSpace(req.Title)
	if n := utf8.RuneCountInString(title); n < minTitleLength || n > maxTitleLength {
		return server.CreatePartyParams{}, NewValidationError("title must be 2 to 120 characters")
	}

	theme := strings.TrimSpace(req.Theme)
	if utf8.RuneCountInString(theme) > maxThemeLength {
		return server.CreatePartyParams{}, NewValidationError("theme must be at most 40 characters")
	}

	visibility := req.Visibility
	if visibility == "" {
		visibility = database.VisibilityPrivate
	}
	if visibility != database.VisibilityPrivate && visibility != database.VisibilityPublic {
		return server.CreatePartyParams{}, NewValidationError("visibility must be private or public")
	}

	if req.MaxSeats < minSeats || req.MaxSeats > maxSeats {
		return server.CreatePartyParams{}, NewValidationError("maxSeats must be between 12 and 48")
	}

	var playlist []database.PlaylistItemParams
	for _, item := range req.Playlist {
		url := strings.TrimSpace(item.ContentUrl)
		if url == "" {
			continue
		}

		contentType, ok := detectContentType(url)
		if !ok {
			return server.CreatePartyParams{}, NewValidationError("content must be a YouTube, MP3, or MP4 link")
		}
		playlist = append(playlist, database.PlaylistItemParams{
			ContentType: contentType,
			ContentUrl:  url,
			Title:       strings.TrimSpace(item.Title),
		})
	}

	if len(playlist) == 0 {
		url := strings.TrimSpace(req.ContentUrl)
		contentType, ok := detectContentType(url)
		if !ok {
			return server.CreatePartyParams{}, NewValidationError("content must be a YouTube, MP3, or MP4 link")
		}
		playlist = append(playlist, database.PlaylistItemParams{ContentType: contentType, ContentUrl: url})
	}

	return server.CreatePartyParams{
		Title:      title,
		Visibility: visibility,
		MaxSeats:   req.MaxSeats,
		Theme:      theme,
		Playlist:   playlist,
	}, nil
}
