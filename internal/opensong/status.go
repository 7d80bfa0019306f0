package opensong

import (
	"encoding/xml"
	"errors"
	"io"
	"strconv"
	"strings"
)

// Well-known non-XML frames delivered on the websocket channel.
const (
	AckConnected         = "OK"
	AckAlreadySubscribed = "The requested action is not available."
)

// Status is the presentation state carried by one websocket status frame.
type Status struct {
	Running bool
	Slide   int
}

// IsStatusFrame reports whether a websocket text frame looks like an XML
// status document rather than a plain acknowledgement.
func IsStatusFrame(frame string) bool {
	return strings.HasPrefix(frame, "<?xml") && strings.HasSuffix(frame, ">")
}

// ParseStatus extracts the presentation state from a status frame. The frame
// carries a small XML document; only <presentation running=""> and
// <slide itemnumber=""> are of interest, wherever they sit in the tree.
func ParseStatus(frame string) (Status, error) {
	dec := xml.NewDecoder(strings.NewReader(frame))
	dec.Strict = true
	dec.Entity = make(map[string]string)

	var st Status
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return st, nil
			}
			return Status{}, err
		}
		el, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch el.Name.Local {
		case "presentation":
			if v, ok := attr(el, "running"); ok {
				n, err := strconv.Atoi(v)
				if err != nil {
					return Status{}, err
				}
				st.Running = n != 0
			}
		case "slide":
			if v, ok := attr(el, "itemnumber"); ok {
				n, err := strconv.Atoi(v)
				if err != nil {
					return Status{}, err
				}
				st.Slide = n
			}
		}
	}
}

func attr(el xml.StartElement, name string) (string, bool) {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}
