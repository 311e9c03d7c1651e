package dxgiscreengrab

// packRows copies rows of rowBytes bytes from a strided source into a
// tightly packed destination. GPU row pitch is backend-defined and regularly
// exceeds the logical row width; the alignment padding must never reach dst.
func packRows(dst, src []byte, rows, rowBytes, srcPitch int) {
	if srcPitch == rowBytes {
		copy(dst, src[:rows*rowBytes])
		return
	}
	for y := 0; y < rows; y++ {
		copy(dst[y*rowBytes:(y+1)*rowBytes], src[y*srcPitch:y*srcPitch+rowBytes])
	}
}
