package common

import "strings"

// MediaFileType is the kind of media stored in the blob store
type MediaFileType string

const (
	MediaFileTypeImage MediaFileType = "image"
	MediaFileTypeVideo MediaFileType = "video"
)

// String returns the string representation
func (mft MediaFileType) String() string {
	return string(mft)
}

// IsValid checks if the media file type is valid
func (mft MediaFileType) IsValid() bool {
	return mft == MediaFileTypeImage || mft == MediaFileTypeVideo
}

// DetectFileType maps a MIME type to a media file type. Reels are video first,
// so anything that is not an image is stored as video.
func DetectFileType(mimeType string) MediaFileType {
	lowerMimeType := strings.ToLower(mimeType)
	if strings.HasPrefix(lowerMimeType, "image/") {
		return MediaFileTypeImage
	}
	return MediaFileTypeVideo
}

// Category is the closed set of reel categories.
type Category string

const (
	CategoryComedy     Category = "comedy"
	CategoryMusic      Category = "music"
	CategoryDance      Category = "dance"
	CategoryEducation  Category = "education"
	CategorySports     Category = "sports"
	CategoryGaming     Category = "gaming"
	CategoryFood       Category = "food"
	CategoryTravel     Category = "travel"
	CategoryFashion    Category = "fashion"
	CategoryTechnology Category = "technology"
	CategoryOther      Category = "other"
)

// Categories lists every valid category in a stable order.
var Categories = []Category{
	CategoryComedy, CategoryMusic, CategoryDance, CategoryEducation, CategorySports,
	CategoryGaming, CategoryFood, CategoryTravel, CategoryFashion, CategoryTechnology,
	CategoryOther,
}

func (c Category) String() string {
	return string(c)
}

func (c Category) IsValid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory normalizes and validates a caller supplied category.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	return c, c.IsValid()
}

// SharePlatform is where a reel was shared to.
type SharePlatform string

const (
	PlatformInternal  SharePlatform = "internal"
	PlatformFacebook  SharePlatform = "facebook"
	PlatformTwitter   SharePlatform = "twitter"
	PlatformWhatsApp  SharePlatform = "whatsapp"
	PlatformInstagram SharePlatform = "instagram"
	PlatformTelegram  SharePlatform = "telegram"
	PlatformCopyLink  SharePlatform = "copy_link"
	PlatformOther     SharePlatform = "other"
)

var SharePlatforms = []SharePlatform{
	PlatformInternal, PlatformFacebook, PlatformTwitter, PlatformWhatsApp,
	PlatformInstagram, PlatformTelegram, PlatformCopyLink, PlatformOther,
}

func (p SharePlatform) String() string {
	return string(p)
}

func (p SharePlatform) IsValid() bool {
	for _, known := range SharePlatforms {
		if p == known {
			return true
		}
	}
	return false
}

func ParseSharePlatform(s string) (SharePlatform, bool) {
	p := SharePlatform(strings.ToLower(strings.TrimSpace(s)))
	return p, p.IsValid()
}

// InactiveReason records why a reel left the feeds.
type InactiveReason string

const (
	ReasonNone         InactiveReason = ""
	ReasonMediaMissing InactiveReason = "media_missing"
	ReasonRemoved      InactiveReason = "removed"
)

func (r InactiveReason) String() string {
	return string(r)
}

func (r InactiveReason) IsValid() bool {
	return r == ReasonMediaMissing || r == ReasonRemoved
}
