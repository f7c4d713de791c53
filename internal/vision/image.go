package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

const (
	// SnapshotSize is the edge of the square display snapshot.
	SnapshotSize = 200
	// SnapshotPadding is added around the face box before cropping.
	SnapshotPadding = 50

	SnapshotQuality = 90
	FrameQuality    = 80
)

// DecodeImage decodes a JPEG or PNG payload.
func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// EncodeJPEG encodes an image as JPEG with the given quality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Snapshot crops box plus SnapshotPadding on every side, clamped to the
// image bounds, and scales it to SnapshotSize x SnapshotSize.
func Snapshot(img image.Image, box image.Rectangle) image.Image {
	bounds := img.Bounds()
	region := image.Rect(
		box.Min.X-SnapshotPadding, box.Min.Y-SnapshotPadding,
		box.Max.X+SnapshotPadding, box.Max.Y+SnapshotPadding,
	).Intersect(bounds)
	if region.Empty() {
		region = bounds
	}

	dst := image.NewRGBA(image.Rect(0, 0, SnapshotSize, SnapshotSize))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, region, draw.Src, nil)
	return dst
}

// cropFace returns the face region with 10% padding, clamped to the image.
func cropFace(img image.Image, box image.Rectangle) image.Image {
	bounds := img.Bounds()
	box = box.Intersect(bounds)
	if box.Empty() {
		return nil
	}

	padW := box.Dx() / 10
	padH := box.Dy() / 10
	region := image.Rect(box.Min.X-padW, box.Min.Y-padH, box.Max.X+padW, box.Max.Y+padH).Intersect(bounds)

	crop := image.NewRGBA(image.Rect(0, 0, region.Dx(), region.Dy()))
	draw.Copy(crop, image.Point{}, img, region, draw.Src, nil)
	return crop
}

// imageToFloat32CHW scales img to targetW x targetH and converts it to CHW
// float32 with per-channel normalisation: pixel = (pixel - mean) / std.
func imageToFloat32CHW(img image.Image, targetW, targetH int, mean, std [3]float32) []float32 {
	resized := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	draw.ApproxBiLinear.Scale(resized, resized.Bounds(), img, img.Bounds(), draw.Src, nil)

	plane := targetW * targetH
	data := make([]float32, 3*plane)
	for y := 0; y < targetH; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < targetW; x++ {
			px := row[x*4 : x*4+3]
			idx := y*targetW + x
			data[idx] = (float32(px[0]) - mean[0]) / std[0]
			data[plane+idx] = (float32(px[1]) - mean[1]) / std[1]
			data[2*plane+idx] = (float32(px[2]) - mean[2]) / std[2]
		}
	}
	return data
}
