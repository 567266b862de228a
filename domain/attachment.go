package domain

import (
	"crm-chat/domain/mimetypes"

	"github.com/gabriel-vasile/mimetype"
)

// Attachment describes a file already uploaded and referenced by URL.
type Attachment struct {
	URL  string
	Type string // detected MIME type
	Name string
	Size int64
}

// NewAttachment describes an uploaded file, sniffing its MIME type from the content.
func NewAttachment(name, url string, data []byte) Attachment {
	return Attachment{
		URL:  url,
		Type: mimetype.Detect(data).String(),
		Name: name,
		Size: int64(len(data)),
	}
}

func (a Attachment) Kind() mimetypes.Kind {
	return mimetypes.Classify(a.Type)
}
