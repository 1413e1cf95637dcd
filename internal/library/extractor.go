package library

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cadence/pkg/models"

	"github.com/dhowden/tag"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	"github.com/sirupsen/logrus"
	"github.com/tcolgate/mp3"
)

// fallbackBitrate is used when no mp3 frame can be decoded (192 kbps)
const fallbackBitrate = 192000

// Extractor reads catalog metadata from audio files
type Extractor struct {
	supportedFormats []string
	logger           *logrus.Logger
}

// NewExtractor creates a new metadata extractor
func NewExtractor(supportedFormats []string, logger *logrus.Logger) *Extractor {
	formats := make([]string, 0, len(supportedFormats))
	for _, f := range supportedFormats {
		f = strings.ToLower(f)
		if !strings.HasPrefix(f, ".") {
			f = "." + f
		}
		formats = append(formats, f)
	}
	return &Extractor{supportedFormats: formats, logger: logger}
}

// ExtractFromFile builds a catalog track from filePath. Files without
// readable tags are still imported, titled after the file name.
func (e *Extractor) ExtractFromFile(filePath string) (models.Track, error) {
	startTime := time.Now()

	file, err := os.Open(filePath)
	if err != nil {
		return models.Track{}, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return models.Track{}, fmt.Errorf("failed to stat audio file: %w", err)
	}

	duration, err := e.calculateDuration(filePath)
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"file_path": filePath,
			"error":     err.Error(),
		}).Warn("Failed to calculate duration, setting to 0")
		duration = 0
	}

	track := models.Track{
		Title:    titleFromPath(filePath),
		Duration: duration,
		FilePath: filePath,
		FileSize: stat.Size(),
	}

	metadata, err := tag.ReadFrom(file)
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"file_path": filePath,
			"error":     err.Error(),
		}).Debug("No readable tags, using filename")
		return track, nil
	}

	if title := strings.TrimSpace(metadata.Title()); title != "" {
		track.Title = title
	}
	if album := strings.TrimSpace(metadata.Album()); album != "" {
		track.Album = &models.Album{Title: album}
	}
	for _, name := range splitNames(metadata.Artist()) {
		track.Artists = append(track.Artists, models.Artist{Name: name})
	}
	if len(track.Artists) == 0 {
		for _, name := range splitNames(metadata.AlbumArtist()) {
			track.Artists = append(track.Artists, models.Artist{Name: name})
		}
	}
	for _, name := range splitNames(metadata.Genre()) {
		track.Genres = append(track.Genres, models.Genre{Name: name})
	}
	track.TrackNumber, _ = metadata.Track()

	e.logger.WithFields(logrus.Fields{
		"file_path":       filePath,
		"title":           track.Title,
		"artists":         strings.Join(track.ArtistNames(), ", "),
		"duration":        duration,
		"processing_time": time.Since(startTime),
	}).Debug("Successfully extracted metadata")

	return track, nil
}

// IsAudioFile checks if a file is a supported audio format
func (e *Extractor) IsAudioFile(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	if ext == "" {
		return false
	}
	for _, format := range e.supportedFormats {
		if ext == format {
			return true
		}
	}
	return false
}

func (e *Extractor) calculateDuration(filePath string) (int, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".mp3":
		return durationMP3(filePath)
	case ".flac":
		return durationFLAC(filePath)
	case ".wav":
		return durationWAV(filePath)
	default:
		return 0, fmt.Errorf("unsupported format: %s", ext)
	}
}

// durationMP3 sums decoded frame durations, falling back to a size based
// estimate when not a single frame decodes.
func durationMP3(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec := mp3.NewDecoder(f)
	var total time.Duration
	var skipped int
	frames := 0
	for {
		var fr mp3.Frame
		if err := dec.Decode(&fr, &skipped); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if frames == 0 {
				return estimateFromFileSize(f, fallbackBitrate)
			}
			break
		}
		total += fr.Duration()
		frames++
	}
	return int(total.Seconds()), nil
}

func durationFLAC(path string) (int, error) {
	stream, err := flac.ParseFile(path)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	si := stream.Info
	if si.NSamples > 0 && si.SampleRate > 0 {
		secs := float64(si.NSamples) / float64(si.SampleRate)
		return int(secs + 0.5), nil
	}
	return 0, fmt.Errorf("flac stream missing sample info")
}

// durationWAV reads the header and derives the length from the PCM size.
func durationWAV(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, fmt.Errorf("invalid wav file")
	}
	if dec.SampleRate == 0 || dec.BitDepth == 0 || dec.NumChans == 0 {
		return 0, fmt.Errorf("invalid wav header")
	}

	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	pcmBytes := st.Size() - 44
	if pcmBytes < 0 {
		pcmBytes = 0
	}
	frameSize := int64(dec.BitDepth/8) * int64(dec.NumChans)
	if frameSize <= 0 {
		return 0, fmt.Errorf("invalid sample frame size")
	}
	secs := float64(pcmBytes/frameSize) / float64(dec.SampleRate)
	return int(secs + 0.5), nil
}

func estimateFromFileSize(f *os.File, bitrate int) (int, error) {
	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return int((st.Size() * 8) / int64(bitrate)), nil
}

func titleFromPath(filePath string) string {
	name := filepath.Base(filePath)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// splitNames splits multi-value tags such as "Artist A; Artist B" or
// "Rock/Pop", dropping blanks and repeats.
func splitNames(value string) []string {
	parts := strings.FieldsFunc(value, func(r rune) bool {
		return r == ';' || r == '/' || r == '\x00'
	})

	seen := make(map[string]bool, len(parts))
	var names []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || seen[strings.ToLower(p)] {
			continue
		}
		seen[strings.ToLower(p)] = true
		names = append(names, p)
	}
	return names
}
