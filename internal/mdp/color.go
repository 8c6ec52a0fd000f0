package mdp

// RGB565 component masks.
const (
	rgb565Red   = 0xF800
	rgb565Green = 0x07E0
	rgb565Blue  = 0x001F
)

// RGB is an 8-bit-per-channel color.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// ColorFromRGB565 expands the instrument's packed 16-bit color to 8-bit
// channels. The expansion is lossy in the usual 5-6-5 way: 0xFFFF maps to
// (248, 252, 248), not pure white.
func ColorFromRGB565(packed uint16) RGB {
	return RGB{
		R: uint8((packed & rgb565Red) >> 8),
		G: uint8((packed & rgb565Green) >> 3),
		B: uint8((packed & rgb565Blue) << 3),
	}
}
