package models

type ImageCategory string

const (
	ImageContent      ImageCategory = "content"
	ImageIllustration ImageCategory = "illustration"
	ImageDiagram      ImageCategory = "diagram"
	ImageLogo         ImageCategory = "logo"
)

// ImageResource is an image a generated page may reference.
type ImageResource struct {
	Category    ImageCategory `json:"category"`
	Description string        `json:"description"`
	URL         string        `json:"url"`
}
