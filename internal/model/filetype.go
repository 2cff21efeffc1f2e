package model

import "github.com/michael-0acf4/null.fs/internal/vpath"

// FileType is a closed, purely presentational classification inferred
// from a path's extension. It never affects replication semantics.
type FileType string

const (
	FileTypeImage      FileType = "Image"
	FileTypeVideo      FileType = "Video"
	FileTypeDocument   FileType = "Document"
	FileTypeExecutable FileType = "Executable"
	FileTypeArchive    FileType = "Archive"
	FileTypeText       FileType = "Text"
	FileTypeUnknown    FileType = "Unknown"
)

var extensionTable = map[string]FileType{
	"png": FileTypeImage, "jpg": FileTypeImage, "jpeg": FileTypeImage,
	"gif": FileTypeImage, "bmp": FileTypeImage, "webp": FileTypeImage, "tiff": FileTypeImage,

	"mp4": FileTypeVideo, "mkv": FileTypeVideo, "avi": FileTypeVideo,
	"mov": FileTypeVideo, "flv": FileTypeVideo, "wmv": FileTypeVideo, "webm": FileTypeVideo,

	"pdf": FileTypeDocument, "doc": FileTypeDocument, "docx": FileTypeDocument,
	"xls": FileTypeDocument, "xlsx": FileTypeDocument, "ppt": FileTypeDocument, "pptx": FileTypeDocument,

	"exe": FileTypeExecutable, "bat": FileTypeExecutable, "sh": FileTypeExecutable,
	"bin": FileTypeExecutable, "app": FileTypeExecutable,

	"zip": FileTypeArchive, "rar": FileTypeArchive, "7z": FileTypeArchive,
	"tar": FileTypeArchive, "gz": FileTypeArchive, "bz2": FileTypeArchive,

	"txt": FileTypeText, "md": FileTypeText, "csv": FileTypeText,
	"json": FileTypeText, "xml": FileTypeText, "yaml": FileTypeText, "yml": FileTypeText,
}

// mimeTable drives the Content-Type header for /v1/download. Entries not
// listed here fall back to "application/octet-stream".
var mimeTable = map[string]string{
	"png": "image/png", "jpg": "image/jpeg", "jpeg": "image/jpeg",
	"gif": "image/gif", "bmp": "image/bmp", "webp": "image/webp", "tiff": "image/tiff",

	"mp4": "video/mp4", "mkv": "video/x-matroska", "avi": "video/x-msvideo",
	"mov": "video/quicktime", "flv": "video/x-flv", "wmv": "video/x-ms-wmv", "webm": "video/webm",

	"pdf": "application/pdf",
	"doc": "application/msword", "docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"xls": "application/vnd.ms-excel", "xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"ppt": "application/vnd.ms-powerpoint", "pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",

	"exe": "application/x-msdownload", "bat": "application/x-bat",
	"sh": "application/x-sh", "bin": "application/octet-stream", "app": "application/octet-stream",

	"zip": "application/zip", "rar": "application/x-rar-compressed", "7z": "application/x-7z-compressed",
	"tar": "application/x-tar", "gz": "application/gzip", "bz2": "application/x-bzip2",

	"txt": "text/plain", "md": "text/markdown", "csv": "text/csv",
	"json": "application/json", "xml": "application/xml", "yaml": "application/yaml", "yml": "application/yaml",
}

// InferFileType classifies p by the extension of its last segment.
func InferFileType(p vpath.VPath) FileType {
	ext, ok := p.Extension()
	if !ok {
		return FileTypeUnknown
	}
	if t, ok := extensionTable[ext]; ok {
		return t
	}
	return FileTypeUnknown
}

// MIMEType returns the Content-Type that should be used to serve p,
// falling back to application/octet-stream for unrecognized extensions.
func MIMEType(p vpath.VPath) string {
	ext, ok := p.Extension()
	if !ok {
		return "application/octet-stream"
	}
	if m, ok := mimeTable[ext]; ok {
		return m
	}
	return "application/octet-stream"
}
