package scanning

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func samplePNG(width, height int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		img.Set(x, height/2, color.Black)
	}
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("isHEICFormat", func() {
	It("should detect the heic brand", func() {
		data := append([]byte{0, 0, 0, 24}, []byte("ftypheic0000")...)
		Expect(isHEICFormat(data)).To(BeTrue())
	})

	It("should reject short data", func() {
		Expect(isHEICFormat([]byte("ftyp"))).To(BeFalse())
	})

	It("should reject other brands", func() {
		data := append([]byte{0, 0, 0, 24}, []byte("ftypisom0000")...)
		Expect(isHEICFormat(data)).To(BeFalse())
	})
})

var _ = Describe("decodeDocument", func() {
	When("the data is a PNG", func() {
		It("should decode it", func() {
			img, err := decodeDocument(samplePNG(40, 20), "image/png")
			Expect(err).NotTo(HaveOccurred())
			Expect(img.Bounds().Dx()).To(Equal(40))
		})
	})

	When("the data is not an image", func() {
		It("returns an UnsupportedImageError", func() {
			_, err := decodeDocument([]byte("not an image"), "image/jpeg")
			var unsupported *UnsupportedImageError
			Expect(errors.As(err, &unsupported)).To(BeTrue())
			Expect(unsupported.ContentType).To(Equal("image/jpeg"))
		})
	})
})

var _ = Describe("prepareForOCR", func() {
	It("should upscale small scans to the OCR height", func() {
		out, err := prepareForOCR(samplePNG(100, 50), "image/png")
		Expect(err).NotTo(HaveOccurred())

		img, err := png.Decode(bytes.NewReader(out))
		Expect(err).NotTo(HaveOccurred())
		Expect(img.Bounds().Dy()).To(Equal(minOCRHeight))
		Expect(img.Bounds().Dx()).To(Equal(2 * minOCRHeight))
	})
})

var _ = Describe("clampOCRConfidence", func() {
	It("should keep confidence within bounds", func() {
		Expect(clampOCRConfidence(0.1)).To(Equal(minOCRConfidence))
		Expect(clampOCRConfidence(0.99)).To(Equal(maxOCRConfidence))
		Expect(clampOCRConfidence(0.8)).To(Equal(0.8))
	})
})
