// Package sniff identifies uploaded content by its bytes rather than by its declared name.
package sniff

import (
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gabriel-vasile/mimetype"
)

// Detector returns the media type of a payload without parameters, e.g. "application/pdf".
type Detector interface {
	Detect(data []byte) string
}

// MagicDetector sniffs content signatures with the mimetype library.
type MagicDetector struct{}

// NewDetector returns the default content-signature detector.
func NewDetector() MagicDetector {
	return MagicDetector{}
}

// Detect implements Detector.
func (MagicDetector) Detect(data []byte) string {
	return Essence(mimetype.Detect(data).String())
}

// Essence strips parameters such as "; charset=utf-8" and lowercases the type.
func Essence(contentType string) string {
	essence, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(essence))
}

// AllowList is the set of media types accepted for ingestion.
type AllowList struct {
	types mapset.Set[string]
}

// NewAllowList builds an allow list from configured media types.
func NewAllowList(types []string) *AllowList {
	set := mapset.NewThreadUnsafeSet[string]()
	for _, t := range types {
		if e := Essence(t); e != "" {
			set.Add(e)
		}
	}
	return &AllowList{types: set}
}

// Allows reports whether contentType, or one of its known aliases, is on the list.
func (a *AllowList) Allows(contentType string) bool {
	essence := Essence(contentType)
	if essence == "" {
		return false
	}
	if a.types.Contains(essence) {
		return true
	}
	known := mimetype.Lookup(essence)
	if known == nil {
		return false
	}
	allowed := false
	a.types.Each(func(t string) bool {
		if known.Is(t) {
			allowed = true
			return true
		}
		return false
	})
	return allowed
}

// Types returns the allowed media types in no particular order.
func (a *AllowList) Types() []string {
	return a.types.ToSlice()
}
