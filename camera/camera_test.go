package camera_test

import (
	"math/big"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/compoundpi/compoundpi/camera"
)

var _ = Describe("Settings.Validate", func() {
	It("accepts the defaults", func() {
		Expect(camera.DefaultSettings().Validate()).To(Succeed())
	})

	It("rejects a framerate above 90", func() {
		s := camera.DefaultSettings()
		s.Framerate = big.NewRat(120, 1)
		Expect(s.Validate()).To(HaveOccurred())
	})

	It("rejects AWB gains outside [0.0, 8.0]", func() {
		s := camera.DefaultSettings()
		s.AWBHasGains = true
		s.AWBRed = big.NewRat(9, 1)
		s.AWBBlue = big.NewRat(1, 1)
		Expect(s.Validate()).To(HaveOccurred())
	})

	It("rejects exposure speed exceeding 1000/framerate when exposure is fixed", func() {
		s := camera.DefaultSettings()
		s.Framerate = big.NewRat(30, 1)
		s.ExposureMode = "off"
		s.HasSpeed = true
		s.ExposureSpeed = 100 // 1000/30 ~= 33.3ms
		Expect(s.Validate()).To(HaveOccurred())
	})

	It("rejects ISO outside [0, 1600]", func() {
		s := camera.DefaultSettings()
		s.ISO = 2000
		Expect(s.Validate()).To(HaveOccurred())
	})

	It("rejects exposure compensation outside [-24, 24]", func() {
		s := camera.DefaultSettings()
		s.ExposureComp = 25
		Expect(s.Validate()).To(HaveOccurred())
	})
})

var _ = Describe("Fake", func() {
	It("captures the requested number of frames", func() {
		cam := camera.NewFake()
		Expect(cam.Configure(camera.DefaultSettings())).To(Succeed())

		frames, err := cam.Capture(3, false, nil)
		Expect(err).To(Succeed())
		Expect(frames).To(HaveLen(3))
		for _, f := range frames {
			Expect(f.Data).To(Equal([]byte("fake-jpeg-frame")))
			Expect(f.Timestamp).To(BeNumerically(">", 0))
		}
	})

	It("rejects operations after Close", func() {
		cam := camera.NewFake()
		Expect(cam.Close()).To(Succeed())

		_, err := cam.Capture(1, false, nil)
		Expect(err).To(HaveOccurred())
	})
})
