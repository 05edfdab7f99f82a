package ledger

import "testing"

func TestValidateYearsAcceptsSingleYear(t *testing.T) {
	err := ValidateYears([]int{2023, 2023}, []int{2023})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
}

func TestValidateYearsRejectsMixedYears(t *testing.T) {
	err := ValidateYears([]int{2023}, []int{2024})
	if err == nil {
		t.Fatal("expected InvalidYear error")
	}
	iy, ok := err.(InvalidYear)
	if !ok {
		t.Fatalf("expected InvalidYear, got %T", err)
	}
	if iy.Year != 2023 || len(iy.Other) != 1 || iy.Other[0] != 2024 {
		t.Errorf("unexpected InvalidYear fields: %+v", iy)
	}
}
