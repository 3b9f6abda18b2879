package models

import (
	"fmt"
	"math"
)

// Axis identifies one of the seven semantic axes of an ImageTensor.
type Axis int

const (
	AxisFOV Axis = iota
	AxisFrame
	AxisCrop
	AxisSlice
	AxisRow
	AxisCol
	AxisChannel

	// NumAxes is the fixed rank of every tensor in the pipeline.
	NumAxes = 7
)

// AxisNames is the only accepted axis order.
var AxisNames = [NumAxes]string{"fovs", "stacks", "crops", "slices", "rows", "cols", "channels"}

func (a Axis) String() string {
	if a < 0 || int(a) >= NumAxes {
		return fmt.Sprintf("axis(%d)", int(a))
	}
	return AxisNames[a]
}

// ImageTensor is a dense 7-axis array laid out as
// [fov, frame, crop, slice, row, col, channel] in row-major order,
// so the channel index varies fastest.
type ImageTensor struct {
	// Dims holds the axis names. It must equal AxisNames.
	Dims [NumAxes]string

	// Shape holds the length of every axis.
	Shape [NumAxes]int

	// Data is the flattened tensor content.
	Data []float64

	// FOVNames labels the fov axis; len(FOVNames) == Shape[AxisFOV].
	FOVNames []string

	// ChanNames labels the channel axis; len(ChanNames) == Shape[AxisChannel].
	// For label tensors this holds the single label name.
	ChanNames []string
}

// NewImageTensor allocates a zero-filled tensor. Missing fov or channel names
// are generated as "fov_<i>" and "channel_<i>".
func NewImageTensor(shape [NumAxes]int, fovNames, chanNames []string) (*ImageTensor, error) {
	n := 1
	for i, s := range shape {
		if s <= 0 {
			return nil, NewValidationError("axis %s has non-positive length %d", Axis(i), s)
		}
		n *= s
	}
	if fovNames == nil {
		fovNames = defaultNames("fov", shape[AxisFOV])
	}
	if chanNames == nil {
		chanNames = defaultNames("channel", shape[AxisChannel])
	}
	t := &ImageTensor{
		Dims:      AxisNames,
		Shape:     shape,
		Data:      make([]float64, n),
		FOVNames:  append([]string(nil), fovNames...),
		ChanNames: append([]string(nil), chanNames...),
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func defaultNames(prefix string, n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("%s_%d", prefix, i)
	}
	return names
}

// Validate checks axis order, data length and coordinate names.
func (t *ImageTensor) Validate() error {
	if t == nil {
		return NewValidationError("tensor is nil")
	}
	if t.Dims != AxisNames {
		return NewValidationError("tensor does not have expected dims %v, found %v", AxisNames, t.Dims)
	}
	n := 1
	for i, s := range t.Shape {
		if s <= 0 {
			return NewValidationError("axis %s has non-positive length %d", Axis(i), s)
		}
		n *= s
	}
	if len(t.Data) != n {
		return NewValidationError("tensor data has %d elements, shape %v needs %d", len(t.Data), t.Shape, n)
	}
	if len(t.FOVNames) != t.Shape[AxisFOV] {
		return NewValidationError("got %d fov names for %d fovs", len(t.FOVNames), t.Shape[AxisFOV])
	}
	if len(t.ChanNames) != t.Shape[AxisChannel] {
		return NewValidationError("got %d channel names for %d channels", len(t.ChanNames), t.Shape[AxisChannel])
	}
	return nil
}

// ValidateLabels checks that the tensor is a valid label tensor: exactly one
// channel holding non-negative integers.
func (t *ImageTensor) ValidateLabels() error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.Shape[AxisChannel] != 1 {
		return NewValidationError("label tensor must have exactly one channel, got %d", t.Shape[AxisChannel])
	}
	for i, v := range t.Data {
		if v < 0 || v != math.Trunc(v) || math.IsInf(v, 0) {
			return NewValidationError("label value %v at flat index %d is not a non-negative integer", v, i)
		}
	}
	return nil
}

// Len returns the number of elements.
func (t *ImageTensor) Len() int { return len(t.Data) }

// Index returns the flat offset of an element.
func (t *ImageTensor) Index(fov, frame, crop, slice, row, col, ch int) int {
	s := t.Shape
	return ((((((fov*s[1]+frame)*s[2]+crop)*s[3]+slice)*s[4]+row)*s[5]+col)*s[6] + ch)
}

// At returns one element.
func (t *ImageTensor) At(fov, frame, crop, slice, row, col, ch int) float64 {
	return t.Data[t.Index(fov, frame, crop, slice, row, col, ch)]
}

// Set assigns one element.
func (t *ImageTensor) Set(fov, frame, crop, slice, row, col, ch int, v float64) {
	t.Data[t.Index(fov, frame, crop, slice, row, col, ch)] = v
}

// Plane copies one rows x cols plane of a channel into a new slice.
func (t *ImageTensor) Plane(fov, frame, crop, slice, ch int) []float64 {
	rows, cols := t.Shape[AxisRow], t.Shape[AxisCol]
	out := make([]float64, rows*cols)
	base := t.Index(fov, frame, crop, slice, 0, 0, ch)
	step := t.Shape[AxisChannel]
	for i := range out {
		out[i] = t.Data[base+i*step]
	}
	return out
}

// SetPlane writes a rows x cols plane into one channel.
func (t *ImageTensor) SetPlane(fov, frame, crop, slice, ch int, plane []float64) {
	base := t.Index(fov, frame, crop, slice, 0, 0, ch)
	step := t.Shape[AxisChannel]
	for i, v := range plane {
		t.Data[base+i*step] = v
	}
}

// LabelPlane returns the label plane of channel 0 as integers.
func (t *ImageTensor) LabelPlane(fov, frame, crop, slice int) []int64 {
	rows, cols := t.Shape[AxisRow], t.Shape[AxisCol]
	out := make([]int64, rows*cols)
	base := t.Index(fov, frame, crop, slice, 0, 0, 0)
	step := t.Shape[AxisChannel]
	for i := range out {
		out[i] = int64(t.Data[base+i*step])
	}
	return out
}

// SetLabelPlane writes integer labels into channel 0.
func (t *ImageTensor) SetLabelPlane(fov, frame, crop, slice int, plane []int64) {
	base := t.Index(fov, frame, crop, slice, 0, 0, 0)
	step := t.Shape[AxisChannel]
	for i, v := range plane {
		t.Data[base+i*step] = float64(v)
	}
}

// Clone returns a deep copy.
func (t *ImageTensor) Clone() *ImageTensor {
	c := *t
	c.Data = append([]float64(nil), t.Data...)
	c.FOVNames = append([]string(nil), t.FOVNames...)
	c.ChanNames = append([]string(nil), t.ChanNames...)
	return &c
}

// FOV returns a copy of a single fov as a tensor with a fov axis of length 1.
func (t *ImageTensor) FOV(i int) *ImageTensor {
	shape := t.Shape
	shape[AxisFOV] = 1
	per := len(t.Data) / t.Shape[AxisFOV]
	return &ImageTensor{
		Dims:      t.Dims,
		Shape:     shape,
		Data:      append([]float64(nil), t.Data[i*per:(i+1)*per]...),
		FOVNames:  []string{t.FOVNames[i]},
		ChanNames: append([]string(nil), t.ChanNames...),
	}
}

// ConcatFOVs joins tensors along the fov axis. All other axes must agree.
func ConcatFOVs(parts []*ImageTensor) (*ImageTensor, error) {
	if len(parts) == 0 {
		return nil, NewValidationError("no tensors to concatenate")
	}
	first := parts[0]
	shape := first.Shape
	shape[AxisFOV] = 0
	var fovs []string
	var data []float64
	for i, p := range parts {
		for a := AxisFrame; a < NumAxes; a++ {
			if p.Shape[a] != first.Shape[a] {
				return nil, NewValidationError("tensor %d has %s length %d, expected %d", i, a, p.Shape[a], first.Shape[a])
			}
		}
		shape[AxisFOV] += p.Shape[AxisFOV]
		fovs = append(fovs, p.FOVNames...)
		data = append(data, p.Data...)
	}
	return &ImageTensor{
		Dims:      AxisNames,
		Shape:     shape,
		Data:      data,
		FOVNames:  fovs,
		ChanNames: append([]string(nil), first.ChanNames...),
	}, nil
}

// FOVIndex looks up a fov by name.
func (t *ImageTensor) FOVIndex(name string) (int, bool) {
	for i, n := range t.FOVNames {
		if n == name {
			return i, true
		}
	}
	return -1, false
}

// ChannelIndex looks up a channel by name.
func (t *ImageTensor) ChannelIndex(name string) (int, bool) {
	for i, n := range t.ChanNames {
		if n == name {
			return i, true
		}
	}
	return -1, false
}

// PlaneAt addresses a plane of a stitched tensor (crop and slice axes of
// length 1) by fov and channel name.
func (t *ImageTensor) PlaneAt(fovName string, frame int, chanName string) ([]float64, error) {
	f, ok := t.FOVIndex(fovName)
	if !ok {
		return nil, fmt.Errorf("unknown fov %q", fovName)
	}
	c, ok := t.ChannelIndex(chanName)
	if !ok {
		return nil, fmt.Errorf("unknown channel %q", chanName)
	}
	if frame < 0 || frame >= t.Shape[AxisFrame] {
		return nil, fmt.Errorf("frame %d out of range [0, %d)", frame, t.Shape[AxisFrame])
	}
	return t.Plane(f, frame, 0, 0, c), nil
}

// Bytes returns the in-memory size of the tensor data.
func (t *ImageTensor) Bytes() uint64 {
	return uint64(len(t.Data)) * 8
}
