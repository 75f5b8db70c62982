package chart

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/lox/chamberodds/internal/models"
)

const (
	Width  = 900
	Height = 420

	padLeft   = 40
	padRight  = 30
	padTop    = 60
	padBottom = 50
)

var (
	background = color.RGBA{250, 250, 248, 255}
	axis       = color.RGBA{90, 90, 90, 255}
	demColor   = color.RGBA{36, 94, 168, 255}
	repColor   = color.RGBA{196, 52, 52, 255}
	threshold  = color.RGBA{20, 20, 20, 255}
	labelColor = color.RGBA{40, 40, 40, 255}
)

var (
	labelFace font.Face
	titleFace font.Face
	fontOnce  sync.Once
	fontErr   error
)

func loadFonts() {
	fontOnce.Do(func() {
		f, err := opentype.Parse(goregular.TTF)
		if err != nil {
			fontErr = fmt.Errorf("parse go regular: %w", err)
			return
		}
		labelFace, err = opentype.NewFace(f, &opentype.FaceOptions{Size: 13, DPI: 72, Hinting: font.HintingFull})
		if err != nil {
			fontErr = fmt.Errorf("create label face: %w", err)
			return
		}
		titleFace, err = opentype.NewFace(f, &opentype.FaceOptions{Size: 20, DPI: 72, Hinting: font.HintingFull})
		if err != nil {
			fontErr = fmt.Errorf("create title face: %w", err)
		}
	})
}

// RenderHistogram draws a chamber's seat-total distribution as a PNG bar
// chart. Bins at or above the control threshold are coloured for Party A and
// a vertical rule marks the threshold.
func RenderHistogram(rules models.ChamberRules, result models.ChamberResult) ([]byte, error) {
	loadFonts()
	if fontErr != nil {
		return nil, fmt.Errorf("load fonts: %w", fontErr)
	}

	h := result.Histogram
	if len(h.Counts) == 0 {
		return nil, fmt.Errorf("chamber %s: empty histogram", rules.ID)
	}
	binWidth := max(h.BinWidth, 1)

	img := image.NewRGBA(image.Rect(0, 0, Width, Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	plotW := Width - padLeft - padRight
	plotH := Height - padTop - padBottom
	baseY := Height - padBottom
	barW := float64(plotW) / float64(len(h.Counts))

	peak := 0
	for _, c := range h.Counts {
		peak = max(peak, c)
	}

	for i, c := range h.Counts {
		if c == 0 || peak == 0 {
			continue
		}
		x0 := padLeft + int(float64(i)*barW)
		x1 := padLeft + int(float64(i+1)*barW)
		if x1-x0 > 2 {
			x1--
		}
		top := baseY - int(float64(c)/float64(peak)*float64(plotH))

		// A bin counts as a Party A win only if its lowest total controls.
		col := repColor
		if rules.DemControls(h.Start + i*binWidth) {
			col = demColor
		}
		fillRect(img, image.Rect(x0, top, x1, baseY), col)
	}

	fillRect(img, image.Rect(padLeft, baseY, Width-padRight, baseY+1), axis)

	if pos, ok := seatPosition(h, binWidth, rules.ControlSeats); ok {
		x := padLeft + int(pos*barW)
		fillRect(img, image.Rect(x, padTop-10, x+2, baseY+6), threshold)
		drawText(img, fmt.Sprintf("%d to control", rules.ControlSeats), x+6, padTop, labelColor, labelFace)
	}

	drawText(img, fmt.Sprint(h.Start), padLeft, baseY+22, labelColor, labelFace)
	last := h.Start + (len(h.Counts)-1)*binWidth
	drawText(img, fmt.Sprint(last), Width-padRight-textWidth(fmt.Sprint(last), labelFace), baseY+22, labelColor, labelFace)
	drawText(img, "seats won", Width/2-textWidth("seats won", labelFace)/2, baseY+40, labelColor, labelFace)

	name := rules.Name
	if name == "" {
		name = rules.ID
	}
	title := fmt.Sprintf("%s: control %.1f%%, expected seats %.1f", name, result.ControlProbability*100, result.ExpectedSeats)
	drawText(img, title, padLeft, 32, labelColor, titleFace)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode histogram: %w", err)
	}
	return buf.Bytes(), nil
}

// seatPosition maps a seat total to a fractional bin offset, or false when
// the total is outside the displayed range.
func seatPosition(h models.Histogram, binWidth, seats int) (float64, bool) {
	pos := float64(seats-h.Start) / float64(binWidth)
	if pos < 0 || pos > float64(len(h.Counts)) {
		return 0, false
	}
	return pos, true
}

func fillRect(img *image.RGBA, r image.Rectangle, col color.Color) {
	draw.Draw(img, r.Intersect(img.Bounds()), image.NewUniform(col), image.Point{}, draw.Src)
}

func drawText(img *image.RGBA, text string, x, y int, col color.Color, face font.Face) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

func textWidth(text string, face font.Face) int {
	return font.MeasureString(face, text).Round()
}
