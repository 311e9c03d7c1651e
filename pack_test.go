package dxgiscreengrab

import (
	"bytes"
	"testing"
)

func TestPackRowsEqualPitch(t *testing.T) {
	const rows, rowBytes = 4, 12
	src := make([]byte, rows*rowBytes)
	for i := range src {
		src[i] = byte(i)
	}

	dst := make([]byte, rows*rowBytes)
	packRows(dst, src, rows, rowBytes, rowBytes)

	if !bytes.Equal(dst, src) {
		t.Fatal("equal-pitch copy must be byte-identical")
	}
}

func TestPackRowsStripsStridePadding(t *testing.T) {
	const rows, rowBytes, pitch = 3, 8, 13
	src := make([]byte, rows*pitch)
	for y := 0; y < rows; y++ {
		for x := 0; x < pitch; x++ {
			if x < rowBytes {
				src[y*pitch+x] = byte(y*16 + x)
			} else {
				src[y*pitch+x] = 0xEE
			}
		}
	}

	dst := make([]byte, rows*rowBytes)
	packRows(dst, src, rows, rowBytes, pitch)

	for y := 0; y < rows; y++ {
		for x := 0; x < rowBytes; x++ {
			want := byte(y*16 + x)
			if got := dst[y*rowBytes+x]; got != want {
				t.Fatalf("row %d byte %d: expected 0x%02X, got 0x%02X", y, x, want, got)
			}
		}
	}
	if bytes.IndexByte(dst, 0xEE) >= 0 {
		t.Fatal("stride padding leaked into packed output")
	}
}
