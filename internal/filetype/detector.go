package filetype

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// FileTypeInfo describes an uploaded submission or answer key file.
type FileTypeInfo struct {
	MIMEType        string
	Extension       string
	IsPDF           bool
	NeedsConversion bool
	Supported       bool
	Description     string
}

// Detector identifies submission file types by magic bytes, not filename.
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect inspects the file's content. ZIP and OLE containers are resolved to
// the word-processing format the extension claims, since modern and legacy
// Office files are indistinguishable containers at the magic-byte level.
func (d *Detector) Detect(filePath string) (*FileTypeInfo, error) {
	mtype, err := mimetype.DetectFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}

	mimeType := mtype.String()
	extension := mtype.Extension()

	log.Debug().Str("mime", mimeType).Str("ext", extension).Str("file", filePath).Msg("detected file type")

	if mimeType == "application/zip" || strings.Contains(mimeType, "application/x-zip") {
		ext := strings.ToLower(filepath.Ext(filePath))
		switch ext {
		case ".docx":
			mimeType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
			extension = ".docx"
		case ".odt":
			mimeType = "application/vnd.oasis.opendocument.text"
			extension = ".odt"
		default:
			log.Warn().Str("ext", ext).Msg("ZIP file with unrecognized extension")
		}
	}

	if mimeType == "application/x-ole-storage" || mimeType == "application/x-cfb" {
		ext := strings.ToLower(filepath.Ext(filePath))
		if ext == ".doc" {
			mimeType = "application/msword"
			extension = ".doc"
		} else {
			log.Warn().Str("ext", ext).Msg("OLE storage with unrecognized extension")
		}
	}

	info := &FileTypeInfo{
		MIMEType:  mimeType,
		Extension: extension,
	}
	d.classify(info)
	return info, nil
}

// classify decides whether the submission can be graded directly, needs a
// PDF conversion first, or is rejected.
func (d *Detector) classify(info *FileTypeInfo) {
	switch info.MIMEType {
	case "application/pdf":
		info.IsPDF = true
		info.Supported = true
		info.Description = "PDF document"

	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		info.NeedsConversion = true
		info.Supported = true
		info.Description = "Microsoft Word document"

	case "application/msword":
		info.NeedsConversion = true
		info.Supported = true
		info.Description = "Microsoft Word document (legacy)"

	case "application/vnd.oasis.opendocument.text":
		info.NeedsConversion = true
		info.Supported = true
		info.Description = "OpenDocument text"

	case "application/rtf", "text/rtf":
		info.NeedsConversion = true
		info.Supported = true
		info.Description = "Rich Text Format"

	default:
		if strings.HasPrefix(info.MIMEType, "text/") {
			info.NeedsConversion = true
			info.Supported = true
			info.Description = "Plain text file"
			return
		}
		info.Description = fmt.Sprintf("Unsupported file type: %s", info.MIMEType)
	}
}

// RequiresConversion reports whether a file must go through the PDF
// converter before grading.
func (d *Detector) RequiresConversion(filePath string) (bool, error) {
	info, err := d.Detect(filePath)
	if err != nil {
		return false, err
	}
	if !info.Supported {
		return false, fmt.Errorf("unsupported submission type: %s", info.MIMEType)
	}
	return info.NeedsConversion, nil
}
