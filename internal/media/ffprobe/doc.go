// Package ffprobe reads container durations with the ffprobe binary.
package ffprobe
