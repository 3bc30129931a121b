package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/himanishpuri/CatalogCoach/pkg/utils"
)

// YTMetadata contains metadata extracted from a YouTube video
type YTMetadata struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Artist     string  `json:"artist"`
	Track      string  `json:"track"`
	Uploader   string  `json:"uploader"`
	Channel    string  `json:"channel"`
	Duration   float64 `json:"duration"`
	WebpageURL string  `json:"webpage_url"`
}

// PickArtist falls back from the tagged artist to the channel and uploader.
func (m YTMetadata) PickArtist() string {
	for _, v := range []string{m.Artist, m.Channel, m.Uploader} {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return "Unknown Artist"
}

// DownloadYouTubeAudio fetches the best audio stream of a video with yt-dlp
// and has it extracted to WAV in outputDir. It returns the WAV path and the
// video metadata.
func DownloadYouTubeAudio(ctx context.Context, youtubeURL, outputDir string) (string, *YTMetadata, error) {
	if !utils.IsYouTubeURL(youtubeURL) {
		return "", nil, fmt.Errorf("not a YouTube URL: %s", youtubeURL)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 3*time.Minute)
		defer cancel()
	}
	if err := utils.MakeDir(outputDir); err != nil {
		return "", nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	template := filepath.Join(outputDir, "%(id)s.%(ext)s")
	dl := ytdlp.New().
		Format("bestaudio").
		ExtractAudio().
		AudioFormat("wav").
		NoPlaylist().
		NoWarnings().
		PrintJSON().
		Output(template)

	result, err := dl.Run(ctx, youtubeURL)
	if err != nil {
		if ctx.Err() != nil {
			return "", nil, ctx.Err()
		}
		stderr := ""
		if result != nil {
			stderr = result.Stderr
		}
		return "", nil, fmt.Errorf("yt-dlp download failed: %w\nstderr: %s", err, stderr)
	}

	meta, err := parseYTMetadata(result.Stdout)
	if err != nil {
		return "", nil, err
	}

	wavPath := filepath.Join(outputDir, meta.ID+".wav")
	if _, err := os.Stat(wavPath); err != nil {
		return "", nil, fmt.Errorf("downloaded audio not found for video %s: %w", meta.ID, err)
	}
	return wavPath, meta, nil
}

// parseYTMetadata reads the last JSON object yt-dlp printed.
func parseYTMetadata(stdout string) (*YTMetadata, error) {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var meta YTMetadata
		if err := json.Unmarshal([]byte(line), &meta); err != nil {
			return nil, fmt.Errorf("failed to parse yt-dlp JSON: %w", err)
		}
		if strings.TrimSpace(meta.ID) == "" {
			return nil, fmt.Errorf("missing video ID in yt-dlp output")
		}
		if strings.TrimSpace(meta.Title) == "" {
			return nil, fmt.Errorf("missing title in yt-dlp output")
		}
		return &meta, nil
	}
	return nil, fmt.Errorf("no metadata in yt-dlp output")
}
