package document

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"strconv"
	"strings"
	"time"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	"github.com/jung-kurt/gofpdf"
)

// ManifestStop is one school on the route.
type ManifestStop struct {
	RouteOrder      int
	SchoolName      string
	Address         string
	PlannedPortions int
	ActualPortions  *int
	Status          string
}

// ManifestData is everything printed on a distribution manifest.
type ManifestData struct {
	DistributionID string
	Date           time.Time
	Status         string
	DriverName     string
	VehiclePlate   string
	TotalPortions  int
	BatchNumbers   []string
	Stops          []ManifestStop
}

// RenderManifestPDF renders the driver's manifest: header, route table and a Code128 of the distribution id.
func RenderManifestPDF(data ManifestData, printedAt time.Time) ([]byte, error) {
	if strings.TrimSpace(data.DistributionID) == "" {
		return nil, fmt.Errorf("manifest requires a distribution id")
	}

	barcodePNG, err := renderCode128PNG(data.DistributionID, 1200, 200)
	if err != nil {
		return nil, err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Distribution Manifest", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 12, "DISTRIBUTION MANIFEST", "", 1, "C", false, 0, "")

	dateText := "N/A"
	if !data.Date.IsZero() {
		dateText = data.Date.Format("02/01/2006")
	}
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 7, "Date: "+dateText, "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 7, "Status: "+data.Status, "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 7, "Driver: "+orDash(data.DriverName), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 7, "Vehicle: "+orDash(data.VehiclePlate), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 7, "Total portions: "+strconv.Itoa(data.TotalPortions), "", 1, "L", false, 0, "")
	if len(data.BatchNumbers) > 0 {
		pdf.MultiCell(0, 7, "Batches: "+strings.Join(data.BatchNumbers, ", "), "", "L", false)
	}
	pdf.Ln(4)

	widths := []float64{12, 70, 58, 24, 24}
	headers := []string{"#", "School", "Address", "Planned", "Delivered"}
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 8, h, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	for _, stop := range data.Stops {
		delivered := "-"
		if stop.ActualPortions != nil {
			delivered = strconv.Itoa(*stop.ActualPortions)
		} else if stop.Status == "FAILED" {
			delivered = "FAILED"
		}
		pdf.CellFormat(widths[0], 8, strconv.Itoa(stop.RouteOrder), "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[1], 8, truncate(stop.SchoolName, 38), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[2], 8, truncate(stop.Address, 32), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[3], 8, strconv.Itoa(stop.PlannedPortions), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[4], 8, delivered, "1", 1, "R", false, 0, "")
	}

	opt := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	imageName := "distribution-barcode-" + data.DistributionID
	pdf.RegisterImageOptionsReader(imageName, opt, bytes.NewReader(barcodePNG))
	pageW, _ := pdf.GetPageSize()
	imgW := 150.0
	imgH := 25.0
	y := pdf.GetY() + 10
	pdf.ImageOptions(imageName, (pageW-imgW)/2, y, imgW, imgH, false, opt, 0, "")

	pdf.SetY(y + imgH + 2)
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 6, data.DistributionID, "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, "Printed: "+printedAt.Format("02/01/2006 15:04"), "", 1, "C", false, 0, "")

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func renderCode128PNG(value string, width, height int) ([]byte, error) {
	code, err := code128.Encode(value)
	if err != nil {
		return nil, err
	}
	scaled, err := barcode.Scale(code, width, height)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, toNRGBA(scaled)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func toNRGBA(src image.Image) *image.NRGBA {
	bounds := src.Bounds()
	dst := image.NewNRGBA(bounds)
	draw.Draw(dst, bounds, src, bounds.Min, draw.Src)
	return dst
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "."
}
