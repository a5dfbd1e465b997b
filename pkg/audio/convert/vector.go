// ABOUTME: Eight-wide unrolled kernels used when the CPU has wide vector units
// ABOUTME: Each kernel handles full groups of eight then falls back to scalar for the tail
package convert

import (
	"encoding/binary"
	"math"
)

const groupWidth = 8

func decodeS16Vector(dst []float32, src []byte) int {
	n := min(len(dst), len(src)/2)
	i := 0
	for ; i+groupWidth <= n; i += groupWidth {
		s := src[i*2 : i*2+16 : i*2+16]
		d := dst[i : i+groupWidth : i+groupWidth]
		d[0] = float32(int16(binary.LittleEndian.Uint16(s[0:]))) / scale16
		d[1] = float32(int16(binary.LittleEndian.Uint16(s[2:]))) / scale16
		d[2] = float32(int16(binary.LittleEndian.Uint16(s[4:]))) / scale16
		d[3] = float32(int16(binary.LittleEndian.Uint16(s[6:]))) / scale16
		d[4] = float32(int16(binary.LittleEndian.Uint16(s[8:]))) / scale16
		d[5] = float32(int16(binary.LittleEndian.Uint16(s[10:]))) / scale16
		d[6] = float32(int16(binary.LittleEndian.Uint16(s[12:]))) / scale16
		d[7] = float32(int16(binary.LittleEndian.Uint16(s[14:]))) / scale16
	}
	decodeS16Scalar(dst[i:n], src[i*2:])
	return 0
}

func decodeS24Vector(dst []float32, src []byte) int {
	n := min(len(dst), len(src)/3)
	i := 0
	for ; i+groupWidth <= n; i += groupWidth {
		s := src[i*3 : i*3+24 : i*3+24]
		d := dst[i : i+groupWidth : i+groupWidth]
		for j := 0; j < groupWidth; j++ {
			d[j] = fromS24(s[j*3:])
		}
	}
	decodeS24Scalar(dst[i:n], src[i*3:])
	return 0
}

func decodeS32Vector(dst []float32, src []byte) int {
	n := min(len(dst), len(src)/4)
	i := 0
	for ; i+groupWidth <= n; i += groupWidth {
		s := src[i*4 : i*4+32 : i*4+32]
		d := dst[i : i+groupWidth : i+groupWidth]
		d[0] = fromS32(s[0:])
		d[1] = fromS32(s[4:])
		d[2] = fromS32(s[8:])
		d[3] = fromS32(s[12:])
		d[4] = fromS32(s[16:])
		d[5] = fromS32(s[20:])
		d[6] = fromS32(s[24:])
		d[7] = fromS32(s[28:])
	}
	decodeS32Scalar(dst[i:n], src[i*4:])
	return 0
}

func decodeF32Vector(dst []float32, src []byte) int {
	n := min(len(dst), len(src)/4)
	bad := 0
	i := 0
	for ; i+groupWidth <= n; i += groupWidth {
		s := src[i*4 : i*4+32 : i*4+32]
		d := dst[i : i+groupWidth : i+groupWidth]
		var nonFinite bool
		for j := 0; j < groupWidth; j++ {
			d[j] = math.Float32frombits(binary.LittleEndian.Uint32(s[j*4:]))
			nonFinite = nonFinite || !finite(d[j])
		}
		// Rare path: only rescan the group when something was off.
		if nonFinite {
			bad += sanitizeScalar(d)
		}
	}
	bad += decodeF32Scalar(dst[i:n], src[i*4:])
	return bad
}

func encodeS16Vector(dst []byte, src []float32) {
	n := min(len(src), len(dst)/2)
	i := 0
	for ; i+groupWidth <= n; i += groupWidth {
		s := src[i : i+groupWidth : i+groupWidth]
		d := dst[i*2 : i*2+16 : i*2+16]
		binary.LittleEndian.PutUint16(d[0:], uint16(toS16(s[0])))
		binary.LittleEndian.PutUint16(d[2:], uint16(toS16(s[1])))
		binary.LittleEndian.PutUint16(d[4:], uint16(toS16(s[2])))
		binary.LittleEndian.PutUint16(d[6:], uint16(toS16(s[3])))
		binary.LittleEndian.PutUint16(d[8:], uint16(toS16(s[4])))
		binary.LittleEndian.PutUint16(d[10:], uint16(toS16(s[5])))
		binary.LittleEndian.PutUint16(d[12:], uint16(toS16(s[6])))
		binary.LittleEndian.PutUint16(d[14:], uint16(toS16(s[7])))
	}
	encodeS16Scalar(dst[i*2:], src[i:n])
}

func encodeS24Vector(dst []byte, src []float32) {
	n := min(len(src), len(dst)/3)
	i := 0
	for ; i+groupWidth <= n; i += groupWidth {
		s := src[i : i+groupWidth : i+groupWidth]
		d := dst[i*3 : i*3+24 : i*3+24]
		for j := 0; j < groupWidth; j++ {
			v := toS24(s[j])
			d[j*3] = byte(v)
			d[j*3+1] = byte(v >> 8)
			d[j*3+2] = byte(v >> 16)
		}
	}
	encodeS24Scalar(dst[i*3:], src[i:n])
}

func encodeS32Vector(dst []byte, src []float32) {
	n := min(len(src), len(dst)/4)
	i := 0
	for ; i+groupWidth <= n; i += groupWidth {
		s := src[i : i+groupWidth : i+groupWidth]
		d := dst[i*4 : i*4+32 : i*4+32]
		binary.LittleEndian.PutUint32(d[0:], uint32(toS32(s[0])))
		binary.LittleEndian.PutUint32(d[4:], uint32(toS32(s[1])))
		binary.LittleEndian.PutUint32(d[8:], uint32(toS32(s[2])))
		binary.LittleEndian.PutUint32(d[12:], uint32(toS32(s[3])))
		binary.LittleEndian.PutUint32(d[16:], uint32(toS32(s[4])))
		binary.LittleEndian.PutUint32(d[20:], uint32(toS32(s[5])))
		binary.LittleEndian.PutUint32(d[24:], uint32(toS32(s[6])))
		binary.LittleEndian.PutUint32(d[28:], uint32(toS32(s[7])))
	}
	encodeS32Scalar(dst[i*4:], src[i:n])
}

func encodeF32Vector(dst []byte, src []float32) {
	n := min(len(src), len(dst)/4)
	i := 0
	for ; i+groupWidth <= n; i += groupWidth {
		s := src[i : i+groupWidth : i+groupWidth]
		d := dst[i*4 : i*4+32 : i*4+32]
		for j := 0; j < groupWidth; j++ {
			binary.LittleEndian.PutUint32(d[j*4:], math.Float32bits(toF32(s[j])))
		}
	}
	encodeF32Scalar(dst[i*4:], src[i:n])
}

func sanitizeVector(buf []float32) int {
	bad := 0
	i := 0
	for ; i+groupWidth <= len(buf); i += groupWidth {
		g := buf[i : i+groupWidth : i+groupWidth]
		// x-x is zero for every finite lane, so one sum checks the group.
		acc := (g[0] - g[0]) + (g[1] - g[1]) + (g[2] - g[2]) + (g[3] - g[3]) +
			(g[4] - g[4]) + (g[5] - g[5]) + (g[6] - g[6]) + (g[7] - g[7])
		if acc != 0 {
			bad += sanitizeScalar(g)
		}
	}
	return bad + sanitizeScalar(buf[i:])
}
