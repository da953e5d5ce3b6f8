package models

// Resource is one netdisk share to be turned into a post. It is read from
// the resource feed and never mutated during a run.
type Resource struct {
	Title       string   `json:"title" validate:"required"`
	Category    string   `json:"category"`
	Type        string   `json:"type"`
	Files       []string `json:"files" validate:"required,min=1,dive,url"`
	Tags        []string `json:"tags"`
	Description string   `json:"description"`
}

// SynthesizedContent is the provider output for a single resource.
type SynthesizedContent struct {
	Title       string   `json:"title"`
	Excerpt     string   `json:"excerpt"`
	Tags        []string `json:"tags"`
	ImagePrompt string   `json:"imagePrompt"`
	Body        string   `json:"content"`
	Model       string   `json:"model,omitempty"`
}
