package models

import (
	"fmt"

	"github.com/dmitrijs2005/tgfilestream/internal/common"
)

// Kind names as stored in file records.
const (
	KindDocument = "document"
	KindAudio    = "audio"
	KindVideo    = "video"
	KindPhoto    = "photo"
)

// FileKind is the payload carried by a message. It is one of Document,
// Audio, Video or Photo.
type FileKind interface {
	isFileKind()
}

type Document struct{ Media }
type Audio struct{ Media }
type Video struct{ Media }

// Photo holds the highest resolution variant of a photo message.
type Photo struct{ PhotoSize }

func (Document) isFileKind() {}
func (Audio) isFileKind()    {}
func (Video) isFileKind()    {}
func (Photo) isFileKind()    {}

// Classify picks the payload kind of m. Photos resolve to their largest
// variant, which the backend lists last. A message with no file payload
// yields common.ErrUnsupportedFileKind.
func Classify(m *Message) (FileKind, error) {
	switch {
	case m == nil:
	case m.Document != nil:
		return Document{*m.Document}, nil
	case m.Audio != nil:
		return Audio{*m.Audio}, nil
	case m.Video != nil:
		return Video{*m.Video}, nil
	case len(m.Photo) > 0:
		return Photo{m.Photo[len(m.Photo)-1]}, nil
	}
	return nil, common.ErrUnsupportedFileKind
}

// Describe turns a classified payload into the uniform FileInfo.
func Describe(messageID int64, k FileKind) (*FileInfo, error) {
	switch v := k.(type) {
	case Document:
		return fromMedia(messageID, KindDocument, v.Media, "Document", "application/octet-stream"), nil
	case Audio:
		return fromMedia(messageID, KindAudio, v.Media, "Audio File", "audio/mpeg"), nil
	case Video:
		return fromMedia(messageID, KindVideo, v.Media, "Video File", "video/mp4"), nil
	case Photo:
		return &FileInfo{
			MessageID: messageID,
			FileID:    v.FileID,
			UniqueID:  v.FileUniqueID,
			Name:      v.FileUniqueID + ".jpg",
			Size:      v.FileSize,
			MimeType:  "image/jpeg",
			Kind:      KindPhoto,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %T", common.ErrUnsupportedFileKind, k)
	}
}

// DescribeMessage is Classify followed by Describe.
func DescribeMessage(m *Message) (*FileInfo, error) {
	k, err := Classify(m)
	if err != nil {
		return nil, err
	}
	return Describe(m.MessageID, k)
}

func fromMedia(messageID int64, kind string, m Media, name, mime string) *FileInfo {
	if m.FileName != "" {
		name = m.FileName
	}
	if m.MimeType != "" {
		mime = m.MimeType
	}
	return &FileInfo{
		MessageID: messageID,
		FileID:    m.FileID,
		UniqueID:  m.FileUniqueID,
		Name:      name,
		Size:      m.FileSize,
		MimeType:  mime,
		Kind:      kind,
	}
}
