package models

import "fmt"

// Side identifies one face of the identity card.
type Side string

const (
	SideFront Side = "front"
	SideBack  Side = "back"
)

// Sides lists both card sides in processing order.
var Sides = []Side{SideFront, SideBack}

// ParseSide converts s to a Side.
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case SideFront, SideBack:
		return Side(s), nil
	default:
		return "", fmt.Errorf("unknown card side %q", s)
	}
}

// Title returns the display label used by the presentation layer.
func (s Side) Title() string {
	switch s {
	case SideFront:
		return "Front Side Details"
	case SideBack:
		return "Back Side Details"
	default:
		return string(s)
	}
}

// Image is an uploaded card image held in memory for the lifetime of a request.
type Image struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}

// Empty reports whether no image data was supplied.
func (i *Image) Empty() bool {
	return i == nil || len(i.Data) == 0
}
