// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/relabs-tech/attitude_fusion/internal/orientation"
)

// Readout size matches the 128x64 OLED panels used on the board.
const (
	displayWidth  = 128
	displayHeight = 64
)

var (
	pixelOff = color.Gray{Y: 0}
	pixelOn  = color.Gray{Y: 255}
)

// renderOrientation draws a monochrome attitude readout: angles on the left,
// a horizon line tilted by roll and shifted by pitch on the right.
func renderOrientation(pose orientation.Pose, haveData bool, label string) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, displayWidth, displayHeight))
	for i := range img.Pix {
		img.Pix[i] = pixelOff.Y
	}

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{pixelOn},
		Face: basicfont.Face7x13,
	}

	if !haveData {
		drawer.Dot = fixed.P(0, 26)
		drawer.DrawBytes([]byte("Orientation"))
		drawer.Dot = fixed.P(0, 39)
		drawer.DrawBytes([]byte("Waiting..."))
		return img
	}

	drawer.Dot = fixed.P(0, 13)
	drawer.DrawBytes([]byte(fmt.Sprintf("R: %6.1f", pose.Roll)))

	drawer.Dot = fixed.P(0, 26)
	drawer.DrawBytes([]byte(fmt.Sprintf("P: %6.1f", pose.Pitch)))

	drawer.Dot = fixed.P(0, 39)
	drawer.DrawBytes([]byte(fmt.Sprintf("Y: %6.1f", pose.Yaw)))

	drawer.Dot = fixed.P(0, 58)
	drawer.DrawBytes([]byte(label))

	drawHorizon(img, image.Rect(80, 8, displayWidth, 56), pose.Roll, pose.Pitch)
	return img
}

// drawHorizon draws a box and a horizon line inside r. One pixel of
// vertical shift per degree of pitch, clipped to the box.
func drawHorizon(img *image.Gray, r image.Rectangle, rollDeg, pitchDeg float64) {
	for x := r.Min.X; x < r.Max.X; x++ {
		img.SetGray(x, r.Min.Y, pixelOn)
		img.SetGray(x, r.Max.Y-1, pixelOn)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		img.SetGray(r.Min.X, y, pixelOn)
		img.SetGray(r.Max.X-1, y, pixelOn)
	}

	cx := float64(r.Min.X+r.Max.X) / 2
	cy := float64(r.Min.Y+r.Max.Y)/2 + pitchDeg*float64(r.Dy())/90
	slope := math.Tan(-rollDeg * math.Pi / 180)
	inner := r.Inset(1)
	for x := inner.Min.X; x < inner.Max.X; x++ {
		y := int(math.Round(cy + slope*(float64(x)-cx)))
		if (image.Point{X: x, Y: y}).In(inner) {
			img.SetGray(x, y, pixelOn)
		}
	}
}
