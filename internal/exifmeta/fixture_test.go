package exifmeta

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

// TIFF 字段类型。
const (
	tByte     = 1
	tASCII    = 2
	tLong     = 4
	tRational = 5
)

type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

func asciiEntry(tag uint16, s string) ifdEntry {
	b := append([]byte(s), 0)
	return ifdEntry{tag: tag, typ: tASCII, count: uint32(len(b)), data: b}
}

func longEntry(tag uint16, v uint32) ifdEntry {
	return ifdEntry{tag: tag, typ: tLong, count: 1, data: binary.LittleEndian.AppendUint32(nil, v)}
}

func byteEntry(tag uint16, v byte) ifdEntry {
	return ifdEntry{tag: tag, typ: tByte, count: 1, data: []byte{v}}
}

func ratEntry(tag uint16, vals ...[2]uint32) ifdEntry {
	var b []byte
	for _, v := range vals {
		b = binary.LittleEndian.AppendUint32(b, v[0])
		b = binary.LittleEndian.AppendUint32(b, v[1])
	}
	return ifdEntry{tag: tag, typ: tRational, count: uint32(len(vals)), data: b}
}

func ifdLen(es []ifdEntry) int {
	n := 2 + 12*len(es) + 4
	for _, e := range es {
		if len(e.data) > 4 {
			n += len(e.data) + len(e.data)%2
		}
	}
	return n
}

// appendIFD 把一个 IFD（及其溢出数据）追加到 b；偏移以 b 的起点（TIFF 头）为基准。
func appendIFD(b []byte, es []ifdEntry) []byte {
	sort.Slice(es, func(i, j int) bool { return es[i].tag < es[j].tag })
	extra := len(b) + 2 + 12*len(es) + 4
	var tail []byte

	b = binary.LittleEndian.AppendUint16(b, uint16(len(es)))
	for _, e := range es {
		b = binary.LittleEndian.AppendUint16(b, e.tag)
		b = binary.LittleEndian.AppendUint16(b, e.typ)
		b = binary.LittleEndian.AppendUint32(b, e.count)
		if len(e.data) <= 4 {
			v := make([]byte, 4)
			copy(v, e.data)
			b = append(b, v...)
			continue
		}
		b = binary.LittleEndian.AppendUint32(b, uint32(extra+len(tail)))
		tail = append(tail, e.data...)
		if len(e.data)%2 == 1 {
			tail = append(tail, 0)
		}
	}
	b = binary.LittleEndian.AppendUint32(b, 0)
	return append(b, tail...)
}

type exifFixture struct {
	dateTimeOriginal string
	subSec           string
	gps              []ifdEntry
	// brokenGPSPointer=true 时 GPS 指针指向 TIFF 数据之外。
	brokenGPSPointer bool
}

// jpegBytes 生成一个只有 SOI + APP1(Exif) + EOI 的最小 JPEG。
func (f exifFixture) jpegBytes() []byte {
	exifIFD := []ifdEntry{asciiEntry(0x9003, f.dateTimeOriginal)}
	if f.subSec != "" {
		exifIFD = append(exifIFD, asciiEntry(0x9291, f.subSec))
	}

	withGPS := len(f.gps) > 0 || f.brokenGPSPointer
	ifd0Count := 1
	if withGPS {
		ifd0Count = 2
	}
	ifd0Len := 2 + 12*ifd0Count + 4
	exifOff := 8 + ifd0Len
	gpsOff := exifOff + ifdLen(exifIFD)
	if f.brokenGPSPointer {
		gpsOff = 0xFFFF
	}

	ifd0 := []ifdEntry{longEntry(0x8769, uint32(exifOff))}
	if withGPS {
		ifd0 = append(ifd0, longEntry(0x8825, uint32(gpsOff)))
	}

	tiff := []byte("II*\x00")
	tiff = binary.LittleEndian.AppendUint32(tiff, 8)
	tiff = appendIFD(tiff, ifd0)
	tiff = appendIFD(tiff, exifIFD)
	if len(f.gps) > 0 && !f.brokenGPSPointer {
		tiff = appendIFD(tiff, f.gps)
	}

	app1 := append([]byte("Exif\x00\x00"), tiff...)
	out := []byte{0xFF, 0xD8, 0xFF, 0xE1}
	out = binary.BigEndian.AppendUint16(out, uint16(len(app1)+2))
	out = append(out, app1...)
	return append(out, 0xFF, 0xD9)
}

func (f exifFixture) write(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "IMG_0001.JPG")
	if err := os.WriteFile(path, f.jpegBytes(), 0o644); err != nil {
		t.Fatalf("写入样本失败：%v", err)
	}
	return path
}
