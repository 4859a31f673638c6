package imagerender

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	"github.com/rs/zerolog/log"

	"github.com/local/invoicebrain/internal/pdfdoc"
)

// Region is a crop given as fractions of page height (Top, Bottom) and
// width (Left, Right).
type Region struct {
	Top    float64
	Bottom float64
	Left   float64
	Right  float64
}

// Full covers the whole page.
var Full = Region{Top: 0, Bottom: 1, Left: 0, Right: 1}

// Rect maps the region onto bounds, truncating like integer pixel math.
func (r Region) Rect(bounds image.Rectangle) image.Rectangle {
	w, h := bounds.Dx(), bounds.Dy()
	rect := image.Rect(
		bounds.Min.X+int(float64(w)*r.Left),
		bounds.Min.Y+int(float64(h)*r.Top),
		bounds.Min.X+int(float64(w)*r.Right),
		bounds.Min.Y+int(float64(h)*r.Bottom),
	)
	return rect.Intersect(bounds)
}

// Rasterizer renders a page region to an image ready for OCR.
type Rasterizer interface {
	RenderRegion(pdfPath string, pageNum, dpi int, region Region) ([]byte, error)
}

// Renderer rasterizes PDF pages through a pdfdoc.Opener.
type Renderer struct {
	opener pdfdoc.Opener
}

// New creates a Renderer; a nil opener selects the default go-fitz backend.
func New(opener pdfdoc.Opener) *Renderer {
	if opener == nil {
		opener = pdfdoc.Default()
	}
	return &Renderer{opener: opener}
}

// RenderRegion renders the 1-based pageNum at dpi, crops region, converts
// it to binarized grayscale and returns PNG bytes.
func (r *Renderer) RenderRegion(pdfPath string, pageNum, dpi int, region Region) ([]byte, error) {
	if r.opener == nil {
		return nil, pdfdoc.ErrNoOpener
	}
	doc, err := r.opener.Open(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	if pageNum < 1 || pageNum > doc.NumPage() {
		return nil, fmt.Errorf("page %d out of range (1-%d)", pageNum, doc.NumPage())
	}

	// go-fitz uses 0-based indexing
	img, err := doc.ImageDPI(pageNum-1, float64(dpi))
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", pageNum, err)
	}

	crop := Crop(img, region)
	if crop.Bounds().Empty() {
		return nil, fmt.Errorf("empty crop %+v on %v", region, img.Bounds())
	}
	bin := Binarize(ToGray(crop))

	var buf bytes.Buffer
	if err := png.Encode(&buf, bin); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}

	log.Debug().
		Int("page", pageNum).
		Int("dpi", dpi).
		Int("width", bin.Bounds().Dx()).
		Int("height", bin.Bounds().Dy()).
		Int("png_size", buf.Len()).
		Msg("rendered page region")

	return buf.Bytes(), nil
}

// Crop returns the region of img. Images without SubImage are copied.
func Crop(img image.Image, region Region) image.Image {
	rect := region.Rect(img.Bounds())
	if s, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return s.SubImage(rect)
	}
	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Src)
	return dst
}

// ToGray converts img to an 8-bit grayscale image anchored at the origin.
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

// Binarize thresholds g with Otsu's method: ink becomes black, paper white.
func Binarize(g *image.Gray) *image.Gray {
	t := OtsuThreshold(g)
	out := image.NewGray(g.Bounds())
	for i, v := range g.Pix {
		if v > t {
			out.Pix[i] = 255
		}
	}
	return out
}

// OtsuThreshold returns the gray level that maximizes between-class variance.
func OtsuThreshold(g *image.Gray) uint8 {
	var hist [256]int
	for _, v := range g.Pix {
		hist[v]++
	}
	total := len(g.Pix)
	if total == 0 {
		return 127
	}
	var sum float64
	for i, c := range hist {
		sum += float64(i * c)
	}
	var sumB float64
	var wB int
	var best float64
	var threshold uint8
	for i := 0; i < 256; i++ {
		wB += hist[i]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(i * hist[i])
		mB := sumB / float64(wB)
		mF := (sum - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			threshold = uint8(i)
		}
	}
	return threshold
}
