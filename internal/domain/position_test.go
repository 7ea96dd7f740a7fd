package domain

import "testing"

func TestPosition_Direction(t *testing.T) {
	tests := []struct {
		name    string
		side    PositionSide
		isLong  bool
		isShort bool
		isFlat  bool
	}{
		{"Long", Long, true, false, false},
		{"Short", Short, false, true, false},
		{"Flat", Flat, false, false, true},
		{"Zero", "", false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Position{Side: tt.side}
			if got := p.IsLong(); got != tt.isLong {
				t.Errorf("Position.IsLong() = %v, want %v", got, tt.isLong)
			}
			if got := p.IsShort(); got != tt.isShort {
				t.Errorf("Position.IsShort() = %v, want %v", got, tt.isShort)
			}
			if got := p.IsFlat(); got != tt.isFlat {
				t.Errorf("Position.IsFlat() = %v, want %v", got, tt.isFlat)
			}
		})
	}
}

func TestPositionSide_OrderSides(t *testing.T) {
	if Long.EntrySide() != SideBuy || Long.ExitSide() != SideSell {
		t.Errorf("Long sides = %s/%s", Long.EntrySide(), Long.ExitSide())
	}
	if Short.EntrySide() != SideSell || Short.ExitSide() != SideBuy {
		t.Errorf("Short sides = %s/%s", Short.EntrySide(), Short.ExitSide())
	}
}
