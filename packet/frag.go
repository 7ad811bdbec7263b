package packet

import (
	"encoding/binary"
	"fmt"
	"math/rand"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

const (
	// fragUnit is the IP fragmentation granularity: offsets are
	// expressed in 8-byte units, so every non-final fragment length
	// must be a multiple of 8.
	fragUnit = 8

	// minFirstFragment must cover a full TCP header so the target's
	// reassembly sees valid ports/flags in the leading fragment.
	minFirstFragment = 24

	// ipv6FragHeaderLen is the fixed size of the fragment extension header.
	ipv6FragHeaderLen = 8
)

// Fragment is one slice of a transport segment, prior to IP framing.
type Fragment struct {
	Offset int // byte offset into the original segment
	Data   []byte
	More   bool // "more fragments" follows
}

// SplitFragments slices segment into randomly sized fragments within
// [minSize, maxSize]. Sizes are rounded down to the 8-byte unit, the
// first fragment is forced to hold at least a whole TCP header, and
// only the final fragment clears the More flag.
func SplitFragments(segment []byte, minSize, maxSize int) []Fragment {
	if minSize < fragUnit {
		minSize = fragUnit
	}
	minSize -= minSize % fragUnit
	if maxSize < minSize {
		maxSize = minSize
	}
	maxSize -= maxSize % fragUnit

	var frags []Fragment
	offset := 0
	remain := len(segment)
	for remain > 0 {
		size := randomFragSize(minSize, maxSize)
		if offset == 0 && size < minFirstFragment {
			size = minFirstFragment
		}
		if size > remain {
			size = remain
		} else if size < remain {
			// A non-final fragment must land on an 8-byte boundary.
			size -= size % fragUnit
		}
		frags = append(frags, Fragment{
			Offset: offset,
			Data:   segment[offset : offset+size],
			More:   size < remain,
		})
		offset += size
		remain -= size
	}
	return frags
}

func randomFragSize(minSize, maxSize int) int {
	if maxSize == minSize {
		return minSize
	}
	steps := (maxSize-minSize)/fragUnit + 1
	return minSize + rand.Intn(steps)*fragUnit
}

// BuildIPv4Fragments frames fragments as IPv4 packets sharing one
// identification value so the target reassembles them into the
// original TCP segment.
func (b *Builder) BuildIPv4Fragments(frags []Fragment, id uint16, ttl uint8) ([][]byte, error) {
	out := make([][]byte, 0, len(frags))
	for _, f := range frags {
		ip := &layers.IPv4{
			Version:    4,
			IHL:        5,
			Id:         id,
			TTL:        ttl,
			Protocol:   layers.IPProtocolTCP,
			SrcIP:      b.SrcIP,
			DstIP:      b.DstIP,
			FragOffset: uint16(f.Offset / fragUnit),
		}
		if f.More {
			ip.Flags = layers.IPv4MoreFragments
		}

		buf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
		if err := gopacket.SerializeLayers(buf, opts, ip, gopacket.Payload(f.Data)); err != nil {
			return nil, fmt.Errorf("serialize fragment at offset %d: %w", f.Offset, err)
		}
		out = append(out, buf.Bytes())
	}
	return out, nil
}

// BuildIPv6Fragments frames fragments behind IPv6 fragment extension
// headers, next-header TCP. gopacket's IPv6Fragment layer decodes but
// does not serialize, so the fixed 8-byte header is written by hand:
// next header, reserved, offset(13 bits)<<3|M, identification.
func (b *Builder) BuildIPv6Fragments(frags []Fragment, id uint32, hopLimit uint8) ([][]byte, error) {
	out := make([][]byte, 0, len(frags))
	for _, f := range frags {
		hdr := make([]byte, ipv6FragHeaderLen, ipv6FragHeaderLen+len(f.Data))
		hdr[0] = uint8(layers.IPProtocolTCP)
		offAndFlags := uint16(f.Offset/fragUnit) << 3
		if f.More {
			offAndFlags |= 1
		}
		binary.BigEndian.PutUint16(hdr[2:4], offAndFlags)
		binary.BigEndian.PutUint32(hdr[4:8], id)

		ip := &layers.IPv6{
			Version:    6,
			HopLimit:   hopLimit,
			NextHeader: layers.IPProtocolIPv6Fragment,
			SrcIP:      b.SrcIP,
			DstIP:      b.DstIP,
		}

		buf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{FixLengths: true}
		if err := gopacket.SerializeLayers(buf, opts, ip, gopacket.Payload(append(hdr, f.Data...))); err != nil {
			return nil, fmt.Errorf("serialize v6 fragment at offset %d: %w", f.Offset, err)
		}
		out = append(out, buf.Bytes())
	}
	return out, nil
}

// FragmentID returns a random nonzero IPv4 identification value.
func FragmentID() uint16 {
	return uint16(rand.Intn(65535) + 1)
}
