package record

import (
	"encoding/json"
	"strings"

	"chorus/internal/core"
)

// profileContent is the JSON body of a profile record.
type profileContent struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	About       string `json:"about"`
	Picture     string `json:"picture"`
}

// ToProfile converts a profile record into its domain view. It returns
// false when the record is not a profile or its content is not a JSON
// object; profiles carry their metadata in the content body, not in
// tags. DisplayName wins over name when both are set.
func ToProfile(rec core.RawRecord) (core.Profile, bool) {
	if rec.Kind != core.KindProfile || !core.IsHexKey(rec.Author) {
		return core.Profile{}, false
	}

	var content profileContent
	if err := json.Unmarshal([]byte(rec.Content), &content); err != nil {
		return core.Profile{}, false
	}

	name := strings.TrimSpace(content.DisplayName)
	if name == "" {
		name = strings.TrimSpace(content.Name)
	}

	return core.Profile{
		Author:    rec.Author,
		Name:      name,
		About:     strings.TrimSpace(content.About),
		Picture:   strings.TrimSpace(content.Picture),
		UpdatedAt: rec.CreatedAt,
	}, true
}
