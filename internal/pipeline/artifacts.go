package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
)

// Artifact is a file written by a pipeline run, with its path relative to
// the root it was written under.
type Artifact struct {
	Path     string
	Relative string
}

// Artifacts lists the page images, crops and overlays written for a document
// that produced pageCount pages.
func (p *Pipeline) Artifacts(filename string, pageCount int) ([]Artifact, error) {
	base := BaseName(filename)
	var out []Artifact
	for n := 1; n <= pageCount; n++ {
		name := fmt.Sprintf("%s_page_%d", base, n)
		imagePath := filepath.Join(p.config.PageImageDir, name+".jpg")
		if _, err := os.Stat(imagePath); err != nil {
			return nil, fmt.Errorf("page %d image: %w", n, err)
		}
		out = append(out, Artifact{Path: imagePath, Relative: filepath.ToSlash(filepath.Join("pages", name+".jpg"))})

		dir := filepath.Join(p.config.ParsedSectionsDir, name)
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("page %d sections: %w", n, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			out = append(out, Artifact{
				Path:     filepath.Join(dir, e.Name()),
				Relative: filepath.ToSlash(filepath.Join("sections", name, e.Name())),
			})
		}
	}
	return out, nil
}
