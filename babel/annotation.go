package babel

import (
	"encoding/json"

	perrors "github.com/pilab-dev/persona-client/errors"
)

// Body is the content of an annotation.
type Body struct {
	Format  string                 `json:"format"`
	Type    string                 `json:"type"`
	Chars   string                 `json:"chars,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Target is what an annotation is about.
type Target struct {
	URI            string `json:"uri"`
	Fragment       string `json:"fragment,omitempty"`
	AsReferencedBy string `json:"asReferencedBy,omitempty"`
}

// Annotation is a babel annotation.
type Annotation struct {
	ID           string  `json:"_id,omitempty"`
	HasBody      *Body   `json:"hasBody"`
	HasTarget    *Target `json:"hasTarget"`
	AnnotatedBy  string  `json:"annotatedBy"`
	AnnotatedAt  string  `json:"annotatedAt,omitempty"`
	MotivatedBy  string  `json:"motivatedBy,omitempty"`
	SerializedBy string  `json:"serializedBy,omitempty"`
}

func (a *Annotation) validate() error {
	switch {
	case a.HasBody == nil:
		return perrors.NewRequestValidation("hasBody", "Missing hasBody in data array")
	case a.HasBody.Format == "":
		return perrors.NewRequestValidation("hasBody.format", "Missing format in data array")
	case a.HasBody.Type == "":
		return perrors.NewRequestValidation("hasBody.type", "Missing type in data array")
	case a.AnnotatedBy == "":
		return perrors.NewRequestValidation("annotatedBy", "Missing annotatedBy in data array")
	case a.HasTarget == nil:
		return perrors.NewRequestValidation("hasTarget", "Missing hasTarget in data array")
	case a.HasTarget.URI == "":
		return perrors.NewRequestValidation("hasTarget.uri", "hasTarget must be an array containing uri")
	}
	return nil
}

// AnnotationList is returned by GetAnnotations.
type AnnotationList struct {
	Count       int          `json:"count"`
	Annotations []Annotation `json:"annotations"`
}

// Feed is an activity feed. Annotations are ids unless the feed was hydrated.
type Feed struct {
	Annotations  []json.RawMessage                 `json:"annotations"`
	FeedLength   int                               `json:"feed_length"`
	DeltaToken   json.Number                       `json:"delta_token,omitempty"`
	Limit        int                               `json:"limit,omitempty"`
	Offset       int                               `json:"offset,omitempty"`
	UserProfiles map[string]map[string]interface{} `json:"userProfiles,omitempty"`
}

// IDs returns the annotation ids of a feed that was not hydrated.
func (f *Feed) IDs() []string {
	ids := make([]string, 0, len(f.Annotations))
	for _, raw := range f.Annotations {
		var id string
		if err := json.Unmarshal(raw, &id); err == nil {
			ids = append(ids, id)
			continue
		}
		var a Annotation
		if err := json.Unmarshal(raw, &a); err == nil && a.ID != "" {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// Hydrated decodes the annotations of a hydrated feed.
func (f *Feed) Hydrated() ([]Annotation, error) {
	out := make([]Annotation, 0, len(f.Annotations))
	for _, raw := range f.Annotations {
		var a Annotation
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
