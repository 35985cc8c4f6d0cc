package migrate

import (
	"regexp"
	"strings"
)

// htmlImage matches the <img> tags GitHub inserts for pasted screenshots.
var htmlImage = regexp.MustCompile(`<img(\s+width="[0-9]+")?(\s+alt="([^"]*)")?\s+src="([^"]*)">`)

const defaultImageName = "image.png"

// RewriteImages converts HTML image tags into markdown images. Tags without
// alt text are described by the last path segment of their source.
func RewriteImages(content string) string {
	return htmlImage.ReplaceAllStringFunc(content, func(tag string) string {
		m := htmlImage.FindStringSubmatch(tag)
		desc, src := m[3], m[4]
		if m[2] == "" {
			desc = lastPathSegment(src)
		}
		return "![" + desc + "](" + src + ")"
	})
}

func lastPathSegment(src string) string {
	if i := strings.LastIndex(src, "/"); i >= 0 {
		src = src[i+1:]
	}
	if src == "" {
		return defaultImageName
	}
	return src
}

// Footer renders the migration notes appended to every story description.
func Footer(notes []string) string {
	return "\n\n---\n\n#### Migration notes\n\n" + strings.Join(notes, "\n\n") + "\n\n---\n\n"
}
