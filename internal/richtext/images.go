package richtext

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ImageRefPrefix marks an <img> whose bytes live in Content's image list.
const ImageRefPrefix = "fn-image:"

// Scale limits accepted by ScaleImage, in percent.
const (
	MinScale = 1
	MaxScale = 200
)

var (
	// ErrNoImage is returned for an image index outside the body's list.
	ErrNoImage = errors.New("richtext: no such image")
	// ErrScale is returned for a scale outside MinScale..MaxScale.
	ErrScale = errors.New("richtext: scale out of range")
)

var dataURIPrefix = regexp.MustCompile(`^data:([^,;]*)((?:;[^,;]*)*);base64\s*,`)

// Image is an embedded picture. MediaType is what the data URI declared;
// the rich-text serializer writes the bare "image".
type Image struct {
	Data      []byte
	MediaType string
	Width     int
	Height    int
}

func (img Image) dataURI() string {
	mt := img.MediaType
	if mt == "" {
		mt = "image"
	}
	return "data:" + mt + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// sniffedType returns a concrete media type for browsers.
func (img Image) sniffedType() string {
	if strings.Contains(img.MediaType, "/") {
		return img.MediaType
	}
	return http.DetectContentType(img.Data)
}

// NaturalSize decodes the image header for its pixel size.
func (img Image) NaturalSize() (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil {
		return 0, 0, fmt.Errorf("richtext: decode image: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

func (c *Content) liftImages() {
	walk(c.doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.DataAtom != atom.Img {
			return true
		}
		src, ok := getAttr(n, "src")
		if !ok {
			return true
		}
		m := dataURIPrefix.FindStringSubmatchIndex(src)
		if m == nil {
			return true
		}
		payload := strings.Map(func(r rune) rune {
			if r == ' ' || r == '\n' || r == '\r' || r == '\t' {
				return -1
			}
			return r
		}, src[m[1]:])
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return true
		}
		img := Image{Data: data, MediaType: src[m[2]:m[3]]}
		if v, ok := getAttr(n, "width"); ok {
			img.Width, _ = strconv.Atoi(v)
		}
		if v, ok := getAttr(n, "height"); ok {
			img.Height, _ = strconv.Atoi(v)
		}
		n.Attr = setAttr(n.Attr, "src", ImageRefPrefix+strconv.Itoa(len(c.images)))
		c.images = append(c.images, img)
		return true
	})
}

func imageRef(n *html.Node) (int, bool) {
	if n.Type != html.ElementNode || n.DataAtom != atom.Img {
		return 0, false
	}
	src, ok := getAttr(n, "src")
	if !ok || !strings.HasPrefix(src, ImageRefPrefix) {
		return 0, false
	}
	idx, err := strconv.Atoi(src[len(ImageRefPrefix):])
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}

func withImageAttrs(attrs []html.Attribute, src string, w, h int) []html.Attribute {
	out := append([]html.Attribute(nil), attrs...)
	out = setAttr(out, "src", src)
	if w > 0 {
		out = setAttr(out, "width", strconv.Itoa(w))
	} else {
		out = removeAttr(out, "width")
	}
	if h > 0 {
		out = setAttr(out, "height", strconv.Itoa(h))
	} else {
		out = removeAttr(out, "height")
	}
	return out
}

// Images returns a copy of the embedded image list, in document order.
func (c *Content) Images() []Image {
	return append([]Image(nil), c.images...)
}

// ImageData returns the bytes of image i, e.g. for saving it to a file.
func (c *Content) ImageData(i int) ([]byte, error) {
	if i < 0 || i >= len(c.images) {
		return nil, fmt.Errorf("%w: %d", ErrNoImage, i)
	}
	return append([]byte(nil), c.images[i].Data...), nil
}

// EmbedImage appends an image at the end of the body and returns its index.
// A zero width or height is taken from the image itself.
func (c *Content) EmbedImage(data []byte, mediaType string, width, height int) (int, error) {
	img := Image{Data: append([]byte(nil), data...), MediaType: mediaType, Width: width, Height: height}
	if width <= 0 || height <= 0 {
		w, h, err := img.NaturalSize()
		if err != nil {
			return 0, err
		}
		img.Width, img.Height = w, h
	}
	idx := len(c.images)
	c.images = append(c.images, img)

	body := findElement(c.doc, atom.Body)
	p := &html.Node{Type: html.ElementNode, Data: "p", DataAtom: atom.P}
	p.AppendChild(&html.Node{
		Type:     html.ElementNode,
		Data:     "img",
		DataAtom: atom.Img,
		Attr:     []html.Attribute{{Key: "src", Val: ImageRefPrefix + strconv.Itoa(idx)}},
	})
	body.AppendChild(p)
	return idx, nil
}

// ScaleImage resizes image i to percent of its natural size.
func (c *Content) ScaleImage(i, percent int) error {
	if i < 0 || i >= len(c.images) {
		return fmt.Errorf("%w: %d", ErrNoImage, i)
	}
	if percent < MinScale || percent > MaxScale {
		return fmt.Errorf("%w: %d", ErrScale, percent)
	}
	w, h, err := c.images[i].NaturalSize()
	if err != nil {
		return err
	}
	c.images[i].Width = scaled(w, percent)
	c.images[i].Height = scaled(h, percent)
	return nil
}

// scaled never returns 0, which would mean "natural size".
func scaled(n, percent int) int {
	return max(1, n*percent/100)
}
