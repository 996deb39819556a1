package player

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Analysis window sizes. The native path taps the decoded stream directly
// and can afford the larger window; the fallback path analyses the PCM it
// decodes itself and uses a smaller one.
const (
	nativeWindow = 1024
	nativeBins   = 100

	fallbackWindow = 512
	fallbackBins   = 64
)

// analyser turns a stream of mono samples into normalized spectrum frames.
// Samples are accumulated into a fixed window; each time the window fills
// it is transformed and reduced to a fixed number of bins in [0, 1], and
// the frame is handed to the emit callback. Safe for one producer.
type analyser struct {
	mu     sync.Mutex
	fft    *fourier.FFT
	window []float64
	hann   []float64
	coeffs []complex128
	fill   int
	bins   int
	emit   func([]float64)
}

func newAnalyser(windowSize, bins int, emit func([]float64)) *analyser {
	hann := make([]float64, windowSize)
	for i := range hann {
		hann[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(windowSize-1)))
	}
	return &analyser{
		fft:    fourier.NewFFT(windowSize),
		window: make([]float64, windowSize),
		hann:   hann,
		coeffs: make([]complex128, windowSize/2+1),
		bins:   bins,
		emit:   emit,
	}
}

// pushStereo folds stereo frames to mono and feeds them to the window
func (a *analyser) pushStereo(samples [][2]float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, s := range samples {
		a.window[a.fill] = (s[0] + s[1]) / 2
		a.fill++
		if a.fill == len(a.window) {
			a.flushLocked()
		}
	}
}

// pushMono feeds raw mono samples to the window
func (a *analyser) pushMono(samples []float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, s := range samples {
		a.window[a.fill] = s
		a.fill++
		if a.fill == len(a.window) {
			a.flushLocked()
		}
	}
}

func (a *analyser) flushLocked() {
	a.fill = 0

	for i := range a.window {
		a.window[i] *= a.hann[i]
	}
	a.fft.Coefficients(a.coeffs, a.window)

	// Skip the DC coefficient and spread the rest across the bins,
	// keeping the peak magnitude per bin.
	usable := a.coeffs[1:]
	frame := make([]float64, a.bins)
	perBin := float64(len(usable)) / float64(a.bins)
	scale := float64(len(a.window)) / 4

	for i, c := range usable {
		bin := int(float64(i) / perBin)
		if bin >= a.bins {
			bin = a.bins - 1
		}
		mag := math.Hypot(real(c), imag(c)) / scale
		if mag > frame[bin] {
			frame[bin] = mag
		}
	}
	for i, v := range frame {
		// Perceptual curve, clamped to the normalized contract
		frame[i] = math.Min(1, math.Sqrt(v))
	}

	a.emit(frame)
}
