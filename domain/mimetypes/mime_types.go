package mimetypes

import (
	"mime"
	"strings"

	"github.com/samber/lo"
)

type MIME string

const (
	Unknown     MIME = "unknown"
	OctetStream MIME = "application/octet-stream"
	TextPlain   MIME = "text/plain"
	TextCSV     MIME = "text/csv"

	ApplicationPDF  MIME = "application/pdf"
	ApplicationJSON MIME = "application/json"
	ApplicationZIP  MIME = "application/zip"

	ImagePNG  MIME = "image/png"
	ImageJPEG MIME = "image/jpeg"
	ImageGIF  MIME = "image/gif"
	ImageWEBP MIME = "image/webp"
)

// Kind is how the chat renders an attachment.
type Kind string

const (
	KindImage    Kind = "image"
	KindDocument Kind = "document"
	KindFile     Kind = "file"
)

var documents = lo.SliceToMap([]MIME{
	TextPlain,
	TextCSV,
	ApplicationPDF,
	ApplicationJSON,
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}, func(m MIME) (MIME, struct{}) {
	return m, struct{}{}
})

// Matches reports whether a detected content type (parameters allowed) is the expected one.
func Matches(detected string, expected MIME) (MIME, bool) {
	mt, _, err := mime.ParseMediaType(detected)
	if err != nil {
		return Unknown, false
	}
	return expected, mt == string(expected)
}

// Classify maps a detected content type to the attachment kind.
func Classify(detected string) Kind {
	mt, _, err := mime.ParseMediaType(detected)
	if err != nil {
		return KindFile
	}
	if strings.HasPrefix(mt, "image/") {
		return KindImage
	}
	if _, ok := documents[MIME(mt)]; ok {
		return KindDocument
	}
	return KindFile
}
