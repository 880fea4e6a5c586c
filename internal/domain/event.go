// Webhook event descriptors.
//
// This file defines the closed set of event and message kinds the ingestion
// pipeline dispatches on, plus the transport-independent descriptor structs
// the LINE webhook payload is parsed into. Keeping the kinds as typed
// constants (instead of comparing raw platform strings inline) means every
// switch over them has an explicit unhandled branch.
package domain

import "time"

// EventKind classifies an inbound webhook event.
type EventKind string

// Known event kinds. Anything the platform sends outside this set parses to
// EventUnhandled and is recorded as skipped by the pipeline.
const (
	EventMessage   EventKind = "message"
	EventFollow    EventKind = "follow"
	EventUnfollow  EventKind = "unfollow"
	EventUnhandled EventKind = "unhandled"
)

// MessageKind classifies the payload of a message event.
type MessageKind string

// Known message kinds, mirroring the message_type column enum.
const (
	MessageText     MessageKind = "text"
	MessageImage    MessageKind = "image"
	MessageFile     MessageKind = "file"
	MessageAudio    MessageKind = "audio"
	MessageVideo    MessageKind = "video"
	MessageSticker  MessageKind = "sticker"
	MessageLocation MessageKind = "location"
)

// Valid reports whether k is one of the known message kinds.
func (k MessageKind) Valid() bool {
	switch k {
	case MessageText, MessageImage, MessageFile, MessageAudio, MessageVideo, MessageSticker, MessageLocation:
		return true
	}
	return false
}

// FileRef carries the metadata of a file-bearing message. The content itself
// is not downloaded during ingestion.
type FileRef struct {
	Name     string
	Path     string
	Size     int64
	MimeType string
}

// StickerRef identifies a sticker within a sticker package.
type StickerRef struct {
	PackageID string
	StickerID string
}

// LocationRef carries the coordinates (and optional address) of a location
// message.
type LocationRef struct {
	Latitude  float64
	Longitude float64
	Address   string
}

// InboundMessage is the message sub-descriptor of a message event.
// Exactly one of Text/File/Sticker/Location is meaningful, selected by Kind.
type InboundMessage struct {
	LineMessageID string
	Kind          MessageKind
	Text          string
	File          *FileRef
	Sticker       *StickerRef
	Location      *LocationRef
}

// Event is one entry of an inbound webhook batch, already decoupled from the
// platform wire format. Message is nil unless Kind == EventMessage.
type Event struct {
	Kind       EventKind
	LineUserID string
	Timestamp  time.Time
	Message    *InboundMessage
}
