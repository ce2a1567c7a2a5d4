package render

import (
	"fmt"
	"os"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

// loadFont parses the annotation font. An empty path falls back to the
// embedded Go Regular face so the service works without any font files
// installed.
func loadFont(path string) (*truetype.Font, error) {
	if path == "" {
		return truetype.Parse(goregular.TTF)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read font %s: %w", path, err)
	}
	f, err := truetype.Parse(b)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font %s: %w", path, err)
	}
	return f, nil
}

// faceAt builds a rendering face at the given pixel size.
func faceAt(f *truetype.Font, size float64) font.Face {
	return truetype.NewFace(f, &truetype.Options{Size: size})
}
