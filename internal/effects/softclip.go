package effects

// SoftClip passes samples below the knee untouched and bends anything above it
// smoothly toward the ceiling of 1, then hard-clips whatever is left.
type SoftClip struct {
	knee float32
}

func NewSoftClip(knee float32) *SoftClip {
	if knee <= 0 || knee >= 1 {
		knee = 0.8
	}
	return &SoftClip{knee: knee}
}

func (s *SoftClip) Process(l, r float32) (float32, float32) {
	return s.shape(l), s.shape(r)
}

func (s *SoftClip) shape(v float32) float32 {
	k := s.knee
	room := 1 - k
	switch {
	case v > k:
		v = k + room*(1-1/(1+(v-k)*5))
	case v < -k:
		v = -k - room*(1-1/(1+(-v-k)*5))
	}
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

func (s *SoftClip) Reset() {}
