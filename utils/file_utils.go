package utils

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

const (
	// MaxFileSize caps any upload (10MB)
	MaxFileSize = 10 * 1024 * 1024

	productImageWidth = 1200
	thumbnailWidth    = 320
)

var (
	allowedImageExts = map[string]bool{
		".jpg":  true,
		".jpeg": true,
		".png":  true,
		".gif":  true,
	}
	allowedDocumentExts = map[string]bool{
		".jpg":  true,
		".jpeg": true,
		".png":  true,
		".pdf":  true,
	}

	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)
)

// CleanFilename removes path components and any character outside [a-zA-Z0-9.-]
func CleanFilename(filename string) string {
	filename = filepath.Base(filename)
	return unsafeFilenameChars.ReplaceAllString(filename, "")
}

// ValidateFileType checks the extension against the allowed set for mediaType
func ValidateFileType(filename, mediaType string) error {
	ext := strings.ToLower(filepath.Ext(filename))

	switch mediaType {
	case "image":
		if !allowedImageExts[ext] {
			return fmt.Errorf("unsupported image format. Allowed formats: jpg, jpeg, png, gif")
		}
	case "document":
		if !allowedDocumentExts[ext] {
			return fmt.Errorf("unsupported document format. Allowed formats: jpg, jpeg, png, pdf")
		}
	default:
		return fmt.Errorf("invalid media type. Must be 'image' or 'document'")
	}
	return nil
}

// UniqueKey builds a storage key under dir that cannot collide with earlier uploads
func UniqueKey(dir, filename string) string {
	ext := strings.ToLower(filepath.Ext(CleanFilename(filename)))
	return fmt.Sprintf("%s/%s%s", strings.Trim(dir, "/"), uuid.NewString(), ext)
}

// ProcessedImage holds the resized image and its thumbnail, both JPEG
type ProcessedImage struct {
	Full      []byte
	Thumbnail []byte
}

// ProcessImage decodes an uploaded image, caps its width and renders a
// thumbnail. Everything happens in memory.
func ProcessImage(data []byte, filename string) (*ProcessedImage, error) {
	if len(data) > MaxFileSize {
		return nil, fmt.Errorf("file too large. Maximum size is %d bytes", MaxFileSize)
	}
	if err := ValidateFileType(CleanFilename(filename), "image"); err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %v", err)
	}

	full := img
	if img.Bounds().Dx() > productImageWidth {
		full = imaging.Resize(img, productImageWidth, 0, imaging.Lanczos)
	}
	thumb := imaging.Fit(img, thumbnailWidth, thumbnailWidth, imaging.Lanczos)

	var fullBuf, thumbBuf bytes.Buffer
	if err := jpeg.Encode(&fullBuf, full, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %v", err)
	}
	if err := jpeg.Encode(&thumbBuf, thumb, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %v", err)
	}

	return &ProcessedImage{Full: fullBuf.Bytes(), Thumbnail: thumbBuf.Bytes()}, nil
}

// ContentTypeFor maps a filename extension to a MIME type for stored objects
func ContentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
