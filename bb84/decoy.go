package bb84

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// VacuumErrorRate is the error rate of vacuum (dark count) detections, which
// carry a uniformly random bit.
const VacuumErrorRate = 0.5

// A SinglePhotonEstimate bounds the contribution of single-photon pulses to
// the signal: Y1 is a lower bound on their yield and E1 an upper bound on their
// error rate.
type SinglePhotonEstimate struct {
	Y1 float64
	E1 float64
}

// EstimateSinglePhoton bounds Y1 and e1 from the signal bucket and one decoy
// bucket, taking the background yield Y0 to be zero unless the decoy is itself
// the vacuum.
//
// The bounds follow Ma, Qi, Zhao and Lo, "Practical decoy state for quantum
// key distribution", Phys. Rev. A 72, 012326 (2005). With a weak decoy ν > 0:
//
//	Y1 >= μ/(μν - ν²) · (Q_ν e^ν - Q_μ e^μ ν²/μ² - (μ² - ν²)/μ² · Y0)
//
// and with a vacuum decoy, where Y0 = Q_0:
//
//	Y1 >= (Q_μ e^μ - Y0 - Σ_{n>=2} μⁿ/n!) / μ
//
// In both cases e1 <= min_x (E_x Q_x e^x - Y0/2) / (Y1 x) over the non-vacuum
// intensities x.
func EstimateSinglePhoton(signal, decoy IntensityBucket, muSignal, muDecoy float64) (SinglePhotonEstimate, error) {
	if err := checkOrder(muSignal, muDecoy); err != nil {
		return SinglePhotonEstimate{}, err
	}
	if muDecoy == 0 {
		return vacuumBound(signal, muSignal, decoy.Yield), nil
	}
	return weakDecoyBound(signal, decoy, muSignal, muDecoy, 0), nil
}

// EstimateSinglePhotonWithVacuum is EstimateSinglePhoton with Y0 taken from a
// separate vacuum bucket.
func EstimateSinglePhotonWithVacuum(signal, decoy, vacuum IntensityBucket, muSignal, muDecoy float64) (SinglePhotonEstimate, error) {
	if err := checkOrder(muSignal, muDecoy); err != nil {
		return SinglePhotonEstimate{}, err
	}
	if muDecoy == 0 {
		return vacuumBound(signal, muSignal, decoy.Yield), nil
	}
	return weakDecoyBound(signal, decoy, muSignal, muDecoy, vacuum.Yield), nil
}

func checkOrder(muSignal, muDecoy float64) error {
	if !(muDecoy >= 0 && muSignal > muDecoy) {
		return fmt.Errorf("%w: signal %v, decoy %v", ErrIntensityOrder, muSignal, muDecoy)
	}
	return nil
}

func weakDecoyBound(signal, decoy IntensityBucket, mu, nu, y0 float64) SinglePhotonEstimate {
	qMu := gain(signal, mu)
	qNu := gain(decoy, nu)
	y1 := mu / (mu*nu - nu*nu) * (qNu - qMu*nu*nu/(mu*mu) - (mu*mu-nu*nu)/(mu*mu)*y0)
	y1 = clamp(y1, 0, 1)
	return SinglePhotonEstimate{
		Y1: y1,
		E1: errorBound(y1, y0, observation{signal, mu}, observation{decoy, nu}),
	}
}

func vacuumBound(signal IntensityBucket, mu, y0 float64) SinglePhotonEstimate {
	p := distuv.Poisson{Lambda: mu}
	multiPhoton := (1 - p.CDF(1)) / p.Prob(0)
	y1 := clamp((gain(signal, mu)-y0-multiPhoton)/mu, 0, 1)
	return SinglePhotonEstimate{
		Y1: y1,
		E1: errorBound(y1, y0, observation{signal, mu}),
	}
}

type observation struct {
	bucket IntensityBucket
	mu     float64
}

func errorBound(y1, y0 float64, obs ...observation) float64 {
	if y1 <= 0 {
		return VacuumErrorRate
	}
	e1 := math.Inf(1)
	for _, o := range obs {
		e := (o.bucket.QBER*gain(o.bucket, o.mu) - VacuumErrorRate*y0) / (y1 * o.mu)
		e1 = math.Min(e1, e)
	}
	return clamp(e1, 0, VacuumErrorRate)
}

// gain returns Q_μ e^μ. mu must be positive.
func gain(b IntensityBucket, mu float64) float64 {
	return b.Yield / distuv.Poisson{Lambda: mu}.Prob(0)
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
