package pipeline_test

import (
	"errors"
	"testing"

	"packsight/src/core/pipeline"
)

func TestParseStepRange(t *testing.T) {
	tests := []struct {
		name       string
		expr       string
		totalSteps int
		want       pipeline.StepRange
		wantErr    bool
	}{
		{
			name:       "empty selects full range",
			expr:       "",
			totalSteps: 7,
			want:       pipeline.StepRange{Start: 1, End: 7},
		},
		{
			name:       "single ordinal",
			expr:       "3",
			totalSteps: 7,
			want:       pipeline.StepRange{Start: 3, End: 3},
		},
		{
			name:       "explicit range",
			expr:       "2-5",
			totalSteps: 7,
			want:       pipeline.StepRange{Start: 2, End: 5},
		},
		{
			name:       "whitespace tolerated",
			expr:       " 2 - 5 ",
			totalSteps: 7,
			want:       pipeline.StepRange{Start: 2, End: 5},
		},
		{
			name:       "full range spelled out",
			expr:       "1-7",
			totalSteps: 7,
			want:       pipeline.StepRange{Start: 1, End: 7},
		},
		{
			name:       "start below one",
			expr:       "0-3",
			totalSteps: 7,
			wantErr:    true,
		},
		{
			name:       "end beyond total",
			expr:       "1-8",
			totalSteps: 7,
			wantErr:    true,
		},
		{
			name:       "inverted range",
			expr:       "5-2",
			totalSteps: 7,
			wantErr:    true,
		},
		{
			name:       "single ordinal beyond total",
			expr:       "9",
			totalSteps: 7,
			wantErr:    true,
		},
		{
			name:       "not a number",
			expr:       "x-3",
			totalSteps: 7,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pipeline.ParseStepRange(tt.expr, tt.totalSteps)

			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseStepRange(%q, %d) error = %v, wantErr %v", tt.expr, tt.totalSteps, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, pipeline.ErrValidation) {
					t.Errorf("ParseStepRange(%q, %d) error = %v, want ErrValidation", tt.expr, tt.totalSteps, err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ParseStepRange(%q, %d) = %v, want %v", tt.expr, tt.totalSteps, got, tt.want)
			}
		})
	}
}

func TestStepRangeSpan(t *testing.T) {
	tests := []struct {
		name string
		rng  pipeline.StepRange
		want int
	}{
		{name: "single step", rng: pipeline.StepRange{Start: 3, End: 3}, want: 1},
		{name: "tail of pipeline", rng: pipeline.StepRange{Start: 5, End: 7}, want: 3},
		{name: "full range", rng: pipeline.FullRange(7), want: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rng.Span(); got != tt.want {
				t.Errorf("Span() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestStepRangeContains(t *testing.T) {
	rng := pipeline.StepRange{Start: 2, End: 5}

	for ord, want := range map[int]bool{1: false, 2: true, 4: true, 5: true, 6: false} {
		if got := rng.Contains(ord); got != want {
			t.Errorf("Contains(%d) = %v, want %v", ord, got, want)
		}
	}
}

func TestStepRangeString(t *testing.T) {
	if got := (pipeline.StepRange{Start: 5, End: 7}).String(); got != "5-7" {
		t.Errorf("String() = %q, want %q", got, "5-7")
	}
}
