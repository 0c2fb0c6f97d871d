package archive

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/derad-network/derad/config/params"
)

// Tag is one name value pair attached to an archive transaction. Names may
// repeat, per aircraft tags rely on that.
type Tag struct {
	Name  string
	Value string
}

// ErrTagsTooLarge flags a tag set above the gateway limit. Retrying cannot
// fix it, the batch has to be dropped.
var ErrTagsTooLarge = errors.New("tag set exceeds gateway limit")

// SanitizeTagValue strips C0 and C1 control characters from a tag value and
// substitutes "unknown" when nothing remains.
func SanitizeTagValue(s string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f || (r >= 0x80 && r <= 0x9f) {
			return -1
		}
		return r
	}, s)
	if cleaned == "" {
		return "unknown"
	}
	return cleaned
}

// ValidateTags enforces the gateway cap on the summed byte length of tag
// names and values.
func ValidateTags(tags []Tag) error {
	total := 0
	for _, t := range tags {
		total += len(t.Name) + len(t.Value)
	}
	if total >= params.DeradConfig().MaxTagBytes {
		return errors.Wrapf(ErrTagsTooLarge, "%d tags totalling %d bytes", len(tags), total)
	}
	return nil
}
