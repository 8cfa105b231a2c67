package metadata

import (
	"maps"

	"github.com/ThreeDotsLabs/watermill/message"
)

// FromWatermill copies message metadata. The result is never nil.
func FromWatermill(md message.Metadata) Metadata {
	if out := maps.Clone(md); out != nil {
		return Metadata(out)
	}
	return Metadata{}
}

// ToWatermill copies attributes onto fresh message metadata, e.g. before a
// redriven message is published. The result is never nil.
func ToWatermill(attrs Metadata) message.Metadata {
	if out := maps.Clone(attrs); out != nil {
		return message.Metadata(out)
	}
	return message.Metadata{}
}
