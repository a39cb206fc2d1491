package vision

import (
	"image"
	"image/color"
	"math"
)

// FallbackDepth renders a radial-gradient depth map: bright at the geometric
// center, fading to black at the corners. Intensity is
// 255 * (1 - dist/maxDist) with dist measured from the integer center pixel
// and maxDist the center-to-origin distance, so the exact center is 255 and
// the corners are 0. Deterministic and dependency-free; it is the terminal
// link of the depth chain and guarantees pipeline completion without any
// provider configured.
func FallbackDepth(width, height int) *image.Gray {
	depth := image.NewGray(image.Rect(0, 0, width, height))

	centerX, centerY := float64(width/2), float64(height/2)
	maxDist := math.Hypot(centerX, centerY)
	if maxDist == 0 {
		return depth
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dist := math.Hypot(float64(x)-centerX, float64(y)-centerY)
			value := 255 * (1 - dist/maxDist)
			if value < 0 {
				value = 0
			}
			depth.SetGray(x, y, grayOf(value))
		}
	}
	return depth
}

// FallbackMask renders an elliptical foreground mask centered on the image
// with semi-axes of 0.4*width and 0.4*height. A pixel is foreground (255)
// iff (dx/rx)^2 + (dy/ry)^2 <= 1.
func FallbackMask(width, height int) *image.Gray {
	mask := image.NewGray(image.Rect(0, 0, width, height))

	centerX, centerY := float64(width/2), float64(height/2)
	radiusX, radiusY := float64(width)*0.4, float64(height)*0.4
	if radiusX == 0 || radiusY == 0 {
		return mask
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dx := (float64(x) - centerX) / radiusX
			dy := (float64(y) - centerY) / radiusY
			if dx*dx+dy*dy <= 1 {
				mask.SetGray(x, y, grayOf(255))
			}
		}
	}
	return mask
}

func grayOf(value float64) color.Gray {
	return color.Gray{Y: uint8(value)}
}
