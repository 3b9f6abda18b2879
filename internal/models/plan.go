package models

// TilePlan is the list of windows covering one axis. Every window has the
// same Size; the axis is zero-padded by Padding so the last window ends
// exactly at Length+Padding.
type TilePlan struct {
	// Starts holds the inclusive start of every window, strictly increasing.
	Starts []int

	// Ends holds the exclusive end of every window, Ends[i] == Starts[i]+Size.
	Ends []int

	// Size is the common window length.
	Size int

	// Padding is the number of zero elements appended to the axis.
	Padding int

	// Length is the unpadded axis length.
	Length int
}

// Count returns the number of windows.
func (p TilePlan) Count() int { return len(p.Starts) }

// PaddedLength returns the axis length after padding.
func (p TilePlan) PaddedLength() int { return p.Length + p.Padding }

// Validate checks that the windows are ordered, equally sized and end at
// the padded length.
func (p TilePlan) Validate() error {
	if len(p.Starts) == 0 {
		return NewReconstructionError("tile plan has no windows")
	}
	if len(p.Starts) != len(p.Ends) {
		return NewReconstructionError("tile plan has %d starts and %d ends", len(p.Starts), len(p.Ends))
	}
	if p.Size <= 0 {
		return NewReconstructionError("tile plan size %d is not positive", p.Size)
	}
	if p.Padding < 0 {
		return NewReconstructionError("tile plan padding %d is negative", p.Padding)
	}
	for i := range p.Starts {
		if p.Ends[i]-p.Starts[i] != p.Size {
			return NewReconstructionError("window %d spans [%d, %d), expected size %d", i, p.Starts[i], p.Ends[i], p.Size)
		}
		if i > 0 && p.Starts[i] <= p.Starts[i-1] {
			return NewReconstructionError("window %d starts at %d, not after window %d at %d", i, p.Starts[i], i-1, p.Starts[i-1])
		}
	}
	if p.Starts[0] != 0 {
		return NewReconstructionError("first window starts at %d, expected 0", p.Starts[0])
	}
	if last := p.Ends[len(p.Ends)-1]; last != p.PaddedLength() {
		return NewReconstructionError("last window ends at %d, padded length is %d", last, p.PaddedLength())
	}
	return nil
}
