package mdp

import "testing"

func TestColorFromRGB565(t *testing.T) {
	tests := []struct {
		packed uint16
		want   RGB
	}{
		{0x0000, RGB{0, 0, 0}},
		{0xFFFF, RGB{248, 252, 248}}, // lossy 5-6-5 expansion, not pure white
		{0xF800, RGB{248, 0, 0}},
		{0x07E0, RGB{0, 252, 0}},
		{0x001F, RGB{0, 0, 248}},
	}
	for _, tt := range tests {
		if got := ColorFromRGB565(tt.packed); got != tt.want {
			t.Errorf("ColorFromRGB565(0x%04X) = %+v, want %+v", tt.packed, got, tt.want)
		}
	}
}
