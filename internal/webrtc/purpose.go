package webrtc

import "strings"

// Purpose is the kind of a logical channel. It is decoded once from the
// label when the channel is created and travels with the channel handle.
type Purpose int

const (
	PurposeUnknown Purpose = iota
	PurposeChat
	PurposeFeatures
	PurposeTransfer
	PurposeEffect
)

// Long-lived channels are pre-negotiated on fixed ids so both sides create
// them independently.
const (
	ChatLabel     = "text chat"
	ChatID        = uint16(50)
	FeaturesLabel = "features"
	FeaturesID    = uint16(60)

	transferPrefix = "image-"
	effectPrefix   = "filter-"
)

// String returns a short name for logs.
func (p Purpose) String() string {
	switch p {
	case PurposeChat:
		return "chat"
	case PurposeFeatures:
		return "features"
	case PurposeTransfer:
		return "transfer"
	case PurposeEffect:
		return "effect"
	default:
		return "unknown"
	}
}

// Label encodes the wire label of a channel with this purpose. name is the
// file name for transfers and the effect name for effects; it is ignored for
// the fixed channels.
func (p Purpose) Label(name string) string {
	switch p {
	case PurposeChat:
		return ChatLabel
	case PurposeFeatures:
		return FeaturesLabel
	case PurposeTransfer:
		return transferPrefix + name
	case PurposeEffect:
		return effectPrefix + name
	default:
		return name
	}
}

// Negotiated returns the fixed id of a pre-negotiated channel.
func (p Purpose) Negotiated() (uint16, bool) {
	switch p {
	case PurposeChat:
		return ChatID, true
	case PurposeFeatures:
		return FeaturesID, true
	default:
		return 0, false
	}
}

// ParseLabel decodes a wire label into its purpose and name.
func ParseLabel(label string) (Purpose, string) {
	switch {
	case label == ChatLabel:
		return PurposeChat, ""
	case label == FeaturesLabel:
		return PurposeFeatures, ""
	case strings.HasPrefix(label, transferPrefix):
		return PurposeTransfer, strings.TrimPrefix(label, transferPrefix)
	case strings.HasPrefix(label, effectPrefix):
		return PurposeEffect, strings.TrimPrefix(label, effectPrefix)
	default:
		return PurposeUnknown, label
	}
}
