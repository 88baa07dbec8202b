package genome

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const sdpWidth = 8

var (
	sdpBases   = [4]byte{'A', 'C', 'G', 'T'}
	sdpStrains = [sdpWidth]byte{'A', 'B', 'C', 'D', 'E', 'F', 'G', 'H'}
)

// MaxSDP is one past the largest code that fits in eight base-4 digits.
const MaxSDP = 1 << (2 * sdpWidth)

// SDPBases expands a strain distribution pattern code into the base carried
// by each of the eight founder strains A..H.
func SDPBases(code int) ([]byte, error) {
	if code < 0 || code >= MaxSDP {
		return nil, fmt.Errorf("sdp code %d out of range [0, %d)", code, MaxSDP)
	}
	digits := strconv.FormatInt(int64(code), 4)
	digits = strings.Repeat("0", sdpWidth-len(digits)) + digits

	out := make([]byte, sdpWidth)
	for i := 0; i < sdpWidth; i++ {
		out[i] = sdpBases[digits[i]-'0']
	}
	return out, nil
}

type sdpGroup struct {
	base    byte
	strains string
}

func sdpGroups(code int) ([]sdpGroup, error) {
	bases, err := SDPBases(code)
	if err != nil {
		return nil, err
	}
	var groups []sdpGroup
	index := map[byte]int{}
	for i, b := range bases {
		gi, ok := index[b]
		if !ok {
			gi = len(groups)
			index[b] = gi
			groups = append(groups, sdpGroup{base: b})
		}
		groups[gi].strains += string(sdpStrains[i])
	}
	return groups, nil
}

// DecodeSDP renders the strains grouped by shared base, largest group
// first and ties in order of first appearance, e.g. "ABDEFH:CG".
func DecodeSDP(code int) (string, error) {
	groups, err := sdpGroups(code)
	if err != nil {
		return "", err
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return len(groups[i].strains) > len(groups[j].strains)
	})
	parts := make([]string, len(groups))
	for i, g := range groups {
		parts[i] = g.strains
	}
	return strings.Join(parts, ":"), nil
}

// DecodeSDPOrdered renders the groups in the given base order, skipping
// bases no strain carries.
func DecodeSDPOrdered(code int, order []byte) (string, error) {
	groups, err := sdpGroups(code)
	if err != nil {
		return "", err
	}
	byBase := map[byte]string{}
	for _, g := range groups {
		byBase[g.base] = g.strains
	}
	var parts []string
	for _, b := range order {
		if s := byBase[b]; s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ":"), nil
}

// EncodeSDP is the inverse of SDPBases.
func EncodeSDP(bases string) (int, error) {
	if len(bases) != sdpWidth {
		return 0, fmt.Errorf("sdp needs %d bases, got %d", sdpWidth, len(bases))
	}
	code := 0
	for i := 0; i < sdpWidth; i++ {
		d := strings.IndexByte(string(sdpBases[:]), bases[i])
		if d < 0 {
			return 0, fmt.Errorf("invalid base %q at strain %c", bases[i], sdpStrains[i])
		}
		code = code*4 + d
	}
	return code, nil
}
