// Package ytdlp wraps the yt-dlp and ffmpeg binaries for video metadata
// resolution and normalized audio extraction.
package ytdlp
