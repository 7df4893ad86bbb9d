package richtext

import (
	"github.com/microcosm-cc/bluemonday"
)

var policy = func() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowDataURIImages()
	p.AllowStyling()
	p.AllowStyles(
		"font-family", "font-size", "font-weight", "font-style",
		"text-decoration", "color", "background-color", "text-align",
		"margin-top", "margin-bottom", "margin-left", "margin-right", "text-indent",
	).Globally()
	return p
}()

// Sanitize returns body markup that is safe to hand to a browser. Embedded
// images keep working: their data URIs are rewritten with a concrete media
// type before the policy runs.
func Sanitize(s string) string {
	c, err := Parse(s)
	if err != nil {
		return policy.Sanitize(s)
	}
	out, err := c.render(func(img Image) string {
		img.MediaType = img.sniffedType()
		return img.dataURI()
	})
	if err != nil {
		return policy.Sanitize(s)
	}
	return policy.Sanitize(out)
}
