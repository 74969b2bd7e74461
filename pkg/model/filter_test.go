package model

import "testing"

func TestTaskFilter_Clamp(t *testing.T) {
	tests := []struct {
		name       string
		input      TaskFilter
		wantLimit  int
		wantOffset int
	}{
		{"defaults", TaskFilter{Limit: 0, Offset: 0}, 100, 0},
		{"negative limit", TaskFilter{Limit: -5, Offset: 0}, 100, 0},
		{"over max", TaskFilter{Limit: 5000, Offset: 0}, 1000, 0},
		{"negative offset", TaskFilter{Limit: 10, Offset: -3}, 10, 0},
		{"valid", TaskFilter{Limit: 50, Offset: 10}, 50, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.input.Clamp()
			if tt.input.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", tt.input.Limit, tt.wantLimit)
			}
			if tt.input.Offset != tt.wantOffset {
				t.Errorf("Offset = %d, want %d", tt.input.Offset, tt.wantOffset)
			}
		})
	}
}

func TestDefaultTaskFilter(t *testing.T) {
	f := DefaultTaskFilter()
	if f.Limit != 100 {
		t.Errorf("Limit = %d, want 100", f.Limit)
	}
	if f.Offset != 0 {
		t.Errorf("Offset = %d, want 0", f.Offset)
	}
}
