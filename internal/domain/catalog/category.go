package catalog

import "strings"

type Category string

const (
	CategoryAbstract        Category = "abstract"
	CategoryLandscape       Category = "landscape"
	CategoryPortrait        Category = "portrait"
	CategoryModern          Category = "modern"
	CategoryDigitalPainting Category = "digital painting"
	Category3DArt           Category = "3D art"
	CategoryIllustration    Category = "illustration"
	CategoryPixelArt        Category = "pixel art"
	CategoryPhotography     Category = "photography"
	CategoryConceptArt      Category = "concept art"
	CategoryAnimation       Category = "animation"
	CategoryMixedMedia      Category = "mixed media"
	CategoryOther           Category = "other"
)

// Categories is the single source for both validation and filter menus.
var Categories = []Category{
	CategoryAbstract,
	CategoryLandscape,
	CategoryPortrait,
	CategoryModern,
	CategoryDigitalPainting,
	Category3DArt,
	CategoryIllustration,
	CategoryPixelArt,
	CategoryPhotography,
	CategoryConceptArt,
	CategoryAnimation,
	CategoryMixedMedia,
	CategoryOther,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory accepts any casing and surrounding whitespace and returns the
// canonical value.
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	for _, known := range Categories {
		if strings.EqualFold(s, string(known)) {
			return known, true
		}
	}
	return "", false
}
