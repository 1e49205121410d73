package barcode

// GrayTable maps reflected Gray codes to bin indexes. Codes that do not appear
// on the printed scale map to a sentinel. A table is immutable once built.
type GrayTable struct {
	bits int
	bins []int32
}

const sentinel = -1

// DefaultTable is the table for DefaultGeometry.
var DefaultTable = NewGrayTable(DefaultGeometry().Bits, DefaultGeometry().Bins)

// NewGrayTable builds the table for a scale of nbins positions coded on bits bits.
func NewGrayTable(bits, nbins int) *GrayTable {
	size := 1 << bits
	if nbins > size {
		nbins = size
	}
	t := &GrayTable{bits: bits, bins: make([]int32, size)}
	for i := range t.bins {
		t.bins[i] = sentinel
	}
	for b := 0; b < nbins; b++ {
		t.bins[Encode(b)] = int32(b)
	}
	return t
}

// Encode returns the reflected Gray code of bin.
func Encode(bin int) uint32 {
	return uint32(bin) ^ uint32(bin)>>1
}

// Bits returns the code width.
func (t *GrayTable) Bits() int {
	return t.bits
}

// Lookup returns the bin for code. ok is false for sentinel entries and
// codes wider than the table.
func (t *GrayTable) Lookup(code uint32) (bin int, ok bool) {
	if code >= uint32(len(t.bins)) {
		return 0, false
	}
	v := t.bins[code]
	if v == sentinel {
		return 0, false
	}
	return int(v), true
}
