package export

import (
	"fmt"
	"image/color"
	"io"
	"os"

	"complaintbot/internal/domain"

	"github.com/fogleman/gg"
)

const (
	dashWidth    = 1200
	dashHeight   = 800
	panelPadding = 40
	maxBars      = 6
)

var (
	dashBg      = color.RGBA{R: 245, G: 247, B: 250, A: 255}
	dashText    = color.RGBA{R: 30, G: 41, B: 59, A: 255}
	dashMuted   = color.RGBA{R: 100, G: 116, B: 139, A: 255}
	dashAxis    = color.RGBA{R: 203, G: 213, B: 225, A: 255}
	dashDefault = color.RGBA{R: 37, G: 99, B: 235, A: 255}
)

var barColors = map[string]color.Color{
	string(domain.StatusPending):      color.RGBA{R: 234, G: 179, B: 8, A: 255},
	string(domain.StatusSuccessful):   color.RGBA{R: 22, G: 163, B: 74, A: 255},
	string(domain.StatusFailed):       color.RGBA{R: 220, G: 38, B: 38, A: 255},
	string(domain.ImportanceLow):      color.RGBA{R: 148, G: 163, B: 184, A: 255},
	string(domain.ImportanceMedium):   color.RGBA{R: 59, G: 130, B: 246, A: 255},
	string(domain.ImportanceHigh):     color.RGBA{R: 249, G: 115, B: 22, A: 255},
	string(domain.ImportanceCritical): color.RGBA{R: 185, G: 28, B: 28, A: 255},
}

// fontCandidates are tried in order; gg's built-in face is used when none
// of them loads.
var fontCandidates = []string{
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/TTF/DejaVuSans.ttf",
}

type bar struct {
	label string
	value int
}

// RenderDashboard draws status, importance and top-category bar charts as
// a PNG.
func RenderDashboard(w io.Writer, r Report) error {
	dc := gg.NewContext(dashWidth, dashHeight)
	dc.SetColor(dashBg)
	dc.Clear()
	loadFont(dc, 18)

	dc.SetColor(dashText)
	dc.DrawStringAnchored("Complaint Dashboard", dashWidth/2, 30, 0.5, 0.5)
	dc.SetColor(dashMuted)
	dc.DrawStringAnchored(fmt.Sprintf("%d complaints, %.2f%% processed, generated %s UTC",
		r.Stats.Total, r.Stats.ProcessedPercentage, r.GeneratedAt.UTC().Format(timeLayout)),
		dashWidth/2, 58, 0.5, 0.5)

	status := []bar{
		{string(domain.StatusPending), r.Stats.Pending},
		{string(domain.StatusSuccessful), r.Stats.Successful},
		{string(domain.StatusFailed), r.Stats.Failed},
	}
	var importance []bar
	for _, level := range domain.Importances {
		importance = append(importance, bar{string(level), r.Breakdown.ByImportance[level]})
	}
	var categories []bar
	for i, kv := range sortedCounts(r.Breakdown.ByCategory) {
		if i == maxBars {
			break
		}
		categories = append(categories, bar{clip(kv.key, 18), kv.n})
	}

	half := float64(dashWidth-3*panelPadding) / 2
	top := 90.0
	panelH := float64(dashHeight) - top - 2*panelPadding
	upperH := panelH * 0.45

	drawBars(dc, "By status", status, panelPadding, top, half, upperH)
	drawBars(dc, "By importance", importance, 2*panelPadding+half, top, half, upperH)
	drawBars(dc, "Top categories", categories, panelPadding, top+upperH+panelPadding, float64(dashWidth-2*panelPadding), panelH-upperH)

	if err := dc.EncodePNG(w); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

func loadFont(dc *gg.Context, points float64) {
	for _, path := range fontCandidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := dc.LoadFontFace(path, points); err == nil {
			return
		}
	}
}

func drawBars(dc *gg.Context, title string, bars []bar, x, y, w, h float64) {
	dc.SetColor(dashText)
	dc.DrawString(title, x, y+16)

	chartTop := y + 36
	chartH := h - 36 - 28
	base := chartTop + chartH

	dc.SetColor(dashAxis)
	dc.SetLineWidth(1)
	dc.DrawLine(x, base, x+w, base)
	dc.Stroke()

	if len(bars) == 0 {
		dc.SetColor(dashMuted)
		dc.DrawStringAnchored("no data", x+w/2, chartTop+chartH/2, 0.5, 0.5)
		return
	}

	peak := 1
	for _, b := range bars {
		peak = max(peak, b.value)
	}
	slot := w / float64(len(bars))
	barW := slot * 0.6
	for i, b := range bars {
		bx := x + float64(i)*slot + (slot-barW)/2
		bh := chartH * 0.85 * float64(b.value) / float64(peak)
		c, ok := barColors[b.label]
		if !ok {
			c = dashDefault
		}
		dc.SetColor(c)
		dc.DrawRectangle(bx, base-bh, barW, bh)
		dc.Fill()

		dc.SetColor(dashText)
		dc.DrawStringAnchored(fmt.Sprint(b.value), bx+barW/2, base-bh-10, 0.5, 0.5)
		dc.SetColor(dashMuted)
		dc.DrawStringAnchored(b.label, bx+barW/2, base+16, 0.5, 0.5)
	}
}
