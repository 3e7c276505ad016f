package extract

import (
	"fmt"

	"github.com/deckforge/deckforge/internal/domain"
)

// NormalizeBox converts a raw bounding box (x0,y0,x1,y1) in page units with a
// bottom-up origin into page-relative fractions with y=0 at the visual top of
// the page. The result is dimension-independent, so records stay portable
// across page-size changes.
func NormalizeBox(x0, y0, x1, y1, pageWidth, pageHeight float64) (x, y, width float64, err error) {
	if pageWidth <= 0 || pageHeight <= 0 {
		return 0, 0, 0, domain.MalformedPageError(
			fmt.Sprintf("page dimensions must be positive, got %gx%g", pageWidth, pageHeight), nil)
	}

	x = x0 / pageWidth
	y = 1 - y1/pageHeight
	width = (x1 - x0) / pageWidth
	return x, y, width, nil
}
