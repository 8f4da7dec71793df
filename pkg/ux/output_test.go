// Copyright (C) 2025 Cinelog Labs (dev@cinelog.dev)
// Tests for the ux package

package ux

import (
	"testing"
)

func TestParsePersonalityLevel(t *testing.T) {
	cases := []struct {
		input string
		want  PersonalityLevel
	}{
		{"full", PersonalityFull},
		{"f", PersonalityFull},
		{"minimal", PersonalityMinimal},
		{"min", PersonalityMinimal},
		{"machine", PersonalityMachine},
		{"quiet", PersonalityMachine},
		{"MACHINE", PersonalityMachine},
		{"bogus", PersonalityFull},
		{"", PersonalityFull},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			if got := ParsePersonalityLevel(tc.input); got != tc.want {
				t.Errorf("ParsePersonalityLevel(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestSetPersonalityLevel(t *testing.T) {
	orig := GetPersonality().Level
	t.Cleanup(func() { SetPersonalityLevel(orig) })

	SetPersonalityLevel(PersonalityMachine)
	if got := GetPersonality().Level; got != PersonalityMachine {
		t.Errorf("level = %q after set", got)
	}
}

func TestIconRender(t *testing.T) {
	// Rendering must never panic regardless of icon, including unknown ones.
	for _, icon := range []Icon{IconSuccess, IconWarning, IconError, IconPending, IconArrow, IconReel, Icon("?")} {
		if got := icon.Render(); got == "" {
			t.Errorf("icon %q rendered empty", icon)
		}
	}
}

func TestSpinnerStartStop(t *testing.T) {
	orig := GetPersonality().Level
	t.Cleanup(func() { SetPersonalityLevel(orig) })
	SetPersonalityLevel(PersonalityMachine)

	s := NewSpinner("repairing")
	s.Start()
	s.Stop()
	// Stop again is a no-op.
	s.Stop()
}
