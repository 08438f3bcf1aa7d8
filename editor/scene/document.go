package scene

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrCorruptSnapshot = errors.New("corrupt scene snapshot")

const documentVersion = 1

// Document is the serialized form of a scene. View state such as zoom and the
// active selection is never part of it.
type Document struct {
	Version         int       `json:"version"`
	Width           int       `json:"width"`
	Height          int       `json:"height"`
	BackgroundColor string    `json:"backgroundColor"`
	BackgroundImage *Layer    `json:"backgroundImage,omitempty"`
	OverlayImage    *Layer    `json:"overlayImage,omitempty"`
	Objects         []*Object `json:"objects"`
}

func (s *Scene) Document() Document {
	objs := s.objects
	if objs == nil {
		objs = []*Object{}
	}
	return Document{
		Version:         documentVersion,
		Width:           s.width,
		Height:          s.height,
		BackgroundColor: s.backgroundColor,
		BackgroundImage: s.backgroundImage,
		OverlayImage:    s.overlayImage,
		Objects:         objs,
	}
}

// Marshal serializes the scene. Equal scenes produce identical bytes.
func (s *Scene) Marshal() ([]byte, error) {
	return json.Marshal(s.Document())
}

// Load replaces the whole scene with a serialized document. The scene is left
// untouched if data cannot be decoded.
func (s *Scene) Load(data []byte) error {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if err := doc.validate(); err != nil {
		return err
	}

	s.width, s.height = doc.Width, doc.Height
	s.backgroundColor = doc.BackgroundColor
	if s.backgroundColor == "" {
		s.backgroundColor = Transparent
	}
	s.backgroundImage = doc.BackgroundImage
	s.overlayImage = doc.OverlayImage
	s.objects = doc.Objects
	s.events.emit(Event{Kind: SceneLoaded, Objects: s.Objects()})
	return nil
}

func (d *Document) validate() error {
	if d.Version != documentVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorruptSnapshot, d.Version)
	}
	if d.Width <= 0 || d.Height <= 0 {
		return fmt.Errorf("%w: invalid size %dx%d", ErrCorruptSnapshot, d.Width, d.Height)
	}
	mains := 0
	for i, o := range d.Objects {
		if o == nil {
			return fmt.Errorf("%w: nil object at %d", ErrCorruptSnapshot, i)
		}
		if !o.hasProps() {
			return fmt.Errorf("%w: object %s of type %q has no properties", ErrCorruptSnapshot, o.ID, o.Kind)
		}
		if o.IsMainImage() {
			mains++
		}
	}
	if mains > 1 {
		return fmt.Errorf("%w: %d main images", ErrCorruptSnapshot, mains)
	}
	return nil
}

func (o *Object) hasProps() bool {
	switch o.Kind {
	case KindImage:
		return o.Image != nil
	case KindPath:
		return o.Path != nil
	case KindText:
		return o.Text != nil
	case KindRect, KindCircle:
		return o.Shape != nil
	}
	return false
}
