package browser

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"time"

	"github.com/chromedp/chromedp"
)

// elementRect is the viewport-relative bounding box of an element, in CSS
// pixels.
type elementRect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// CaptureElement scrolls the located element into view, takes a screenshot,
// and returns a PNG crop of just that element, corrected for the device
// pixel ratio. A crop that ends up empty fails with ErrCaptureFailed.
func (s *Session) CaptureElement(ctx context.Context, loc Locator) ([]byte, error) {
	scroll := fmt.Sprintf(`(function(){const el=%s; if(!el) return false; el.scrollIntoView(true); return true;})()`, loc.jsElement())
	var found bool
	if err := s.run(ctx, chromedp.Evaluate(scroll, &found)); err != nil {
		return nil, fmt.Errorf("capture %s: %w", loc, err)
	}
	if !found {
		return nil, fmt.Errorf("capture %s: %w", loc, ErrNotFound)
	}

	// Let the scroll and any lazy rendering settle before measuring.
	select {
	case <-time.After(s.settleDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	rectExpr := fmt.Sprintf(`(function(){
		const el=%s;
		if(!el) return null;
		const r=el.getBoundingClientRect();
		return {x:r.x, y:r.y, w:r.width, h:r.height};
	})()`, loc.jsElement())

	var (
		shot []byte
		rect *elementRect
		dpr  float64
	)
	err := s.run(ctx,
		chromedp.CaptureScreenshot(&shot),
		chromedp.Evaluate(rectExpr, &rect),
		chromedp.Evaluate(`window.devicePixelRatio`, &dpr),
	)
	if err != nil {
		return nil, fmt.Errorf("capture %s: %w", loc, err)
	}
	if rect == nil {
		return nil, fmt.Errorf("capture %s: element vanished before measuring: %w", loc, ErrNotFound)
	}
	if dpr == 0 {
		dpr = 1
	}

	img, err := png.Decode(bytes.NewReader(shot))
	if err != nil {
		return nil, fmt.Errorf("capture %s: decode screenshot: %w", loc, err)
	}

	crop := scaleAndClamp(*rect, dpr, img.Bounds())
	if crop.Empty() {
		return nil, fmt.Errorf("capture %s: crop %v is empty at ratio %.2f: %w", loc, *rect, dpr, ErrCaptureFailed)
	}

	out, err := encodeCrop(img, crop)
	if err != nil {
		return nil, fmt.Errorf("capture %s: %w", loc, err)
	}
	return out, nil
}

// scaleAndClamp converts a CSS-pixel rect into device pixels and clamps it to
// the screenshot bounds.
func scaleAndClamp(r elementRect, ratio float64, bounds image.Rectangle) image.Rectangle {
	crop := image.Rect(
		int(r.X*ratio),
		int(r.Y*ratio),
		int((r.X+r.W)*ratio),
		int((r.Y+r.H)*ratio),
	)
	return crop.Intersect(bounds)
}

// encodeCrop re-encodes the cropped region as PNG.
func encodeCrop(img image.Image, crop image.Rectangle) ([]byte, error) {
	type subImager interface {
		SubImage(image.Rectangle) image.Image
	}

	var cropped image.Image
	if si, ok := img.(subImager); ok {
		cropped = si.SubImage(crop)
	} else {
		dst := image.NewRGBA(image.Rect(0, 0, crop.Dx(), crop.Dy()))
		draw.Draw(dst, dst.Bounds(), img, crop.Min, draw.Src)
		cropped = dst
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, cropped); err != nil {
		return nil, fmt.Errorf("encode crop: %w", err)
	}
	return buf.Bytes(), nil
}
