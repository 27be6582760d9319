package ingest_service

import (
    "bytes"
    "fmt"
    "image/png"

    "github.com/gen2brain/go-fitz"
)

// rasterizePDF renders each page of the PDF to a PNG. Tesseract has no PDF
// codec; scanned PDFs have to reach it as plain raster images, one per page.
func rasterizePDF(data []byte) ([][]byte, error) {
    doc, err := fitz.NewFromMemory(data)
    if err != nil {
        return nil, fmt.Errorf("failed to open PDF for rasterization: %v", err)
    }
    defer doc.Close()

    images := make([][]byte, 0, doc.NumPage())
    for i := 0; i < doc.NumPage(); i++ {
        img, err := doc.Image(i)
        if err != nil {
            return nil, fmt.Errorf("failed to render page %d: %v", i+1, err)
        }
        var buf bytes.Buffer
        if err := png.Encode(&buf, img); err != nil {
            return nil, fmt.Errorf("failed to encode page %d: %v", i+1, err)
        }
        images = append(images, buf.Bytes())
    }
    return images, nil
}
