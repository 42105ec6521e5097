package export

import (
	"encoding/json"
	"os"
)

// ManifestEntry represents one exported atlas entry.
type ManifestEntry struct {
	Atlas   string  `json:"atlas"`
	Name    string  `json:"name"`
	Backing string  `json:"backing"`
	Width   int     `json:"width"`
	Height  int     `json:"height"`
	U0      float64 `json:"u0"`
	V0      float64 `json:"v0"`
	U1      float64 `json:"u1"`
	V1      float64 `json:"v1"`
	Image   string  `json:"image"`
}

// WriteManifest writes the successful results as JSON to path.
func WriteManifest(path string, results []Result) error {
	entries := make([]ManifestEntry, 0, len(results))
	for _, r := range results {
		if !r.Success {
			continue
		}
		entries = append(entries, ManifestEntry{
			Atlas:   r.Atlas,
			Name:    r.Name,
			Backing: r.Backing,
			Width:   r.Width,
			Height:  r.Height,
			U0:      r.Coords.U0,
			V0:      r.Coords.V0,
			U1:      r.Coords.U1,
			V1:      r.Coords.V1,
			Image:   r.Image,
		})
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
