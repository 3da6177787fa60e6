package validate

import (
	"errors"
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		constraints StringConstraints
		want        string
		wantErr     error
	}{
		{
			name:        "valid string",
			input:       "What is your position on housing?",
			constraints: StringConstraints{MinLength: 10, MaxLength: 100},
			want:        "What is your position on housing?",
		},
		{
			name:        "trims whitespace",
			input:       "  hello world  ",
			constraints: StringConstraints{TrimSpace: true},
			want:        "hello world",
		},
		{
			name:        "empty not allowed",
			input:       "",
			constraints: StringConstraints{},
			wantErr:     ErrEmpty,
		},
		{
			name:        "empty allowed",
			input:       "",
			constraints: StringConstraints{AllowEmpty: true},
			want:        "",
		},
		{
			name:        "whitespace only trims to empty",
			input:       "   ",
			constraints: StringConstraints{TrimSpace: true},
			wantErr:     ErrEmpty,
		},
		{
			name:        "too short",
			input:       "hi",
			constraints: StringConstraints{MinLength: 10},
			wantErr:     ErrStringTooShort,
		},
		{
			name:        "too long",
			input:       strings.Repeat("a", 20),
			constraints: StringConstraints{MaxLength: 10},
			wantErr:     ErrStringTooLong,
		},
		{
			name:        "multibyte counts runes",
			input:       "こんにちは世界です。",
			constraints: StringConstraints{MinLength: 10, MaxLength: 10},
			want:        "こんにちは世界です。",
		},
		{
			name:        "control characters rejected",
			input:       "hello\x00world",
			constraints: StringConstraints{},
			wantErr:     ErrInvalidCharacters,
		},
		{
			name:        "newline and tab allowed",
			input:       "line one\nline\ttwo",
			constraints: StringConstraints{},
			want:        "line one\nline\ttwo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := String(tt.input, tt.constraints)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("String() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("String() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizeHTML(t *testing.T) {
	got := SanitizeHTML(`<script>alert("x")</script>`)
	if strings.Contains(got, "<script>") {
		t.Errorf("SanitizeHTML() did not escape tags: %q", got)
	}
}

func TestQuestionText(t *testing.T) {
	got, err := QuestionText("  What will you do about transit?  ", 10, 500)
	if err != nil {
		t.Fatalf("QuestionText() error = %v", err)
	}
	if got != "What will you do about transit?" {
		t.Errorf("QuestionText() = %q", got)
	}

	if _, err := QuestionText("short", 10, 500); !errors.Is(err, ErrStringTooShort) {
		t.Errorf("QuestionText(short) error = %v, want ErrStringTooShort", err)
	}
}

func TestReportReason(t *testing.T) {
	if _, err := ReportReason("spam", 1000); err != nil {
		t.Errorf("ReportReason() error = %v", err)
	}
	if _, err := ReportReason("", 1000); err == nil {
		t.Error("ReportReason(empty) should error")
	}
	if _, err := ReportReason(strings.Repeat("a", 1001), 1000); !errors.Is(err, ErrStringTooLong) {
		t.Errorf("ReportReason(long) error = %v, want ErrStringTooLong", err)
	}
}

func TestTag(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "simple slug", input: "housing", want: "housing"},
		{name: "hyphenated", input: "public-transit", want: "public-transit"},
		{name: "numeric", input: "prop-13", want: "prop-13"},
		{name: "uppercase rejected", input: "Housing", wantErr: true},
		{name: "spaces rejected", input: "public transit", wantErr: true},
		{name: "empty rejected", input: "", wantErr: true},
		{name: "leading hyphen rejected", input: "-tag", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Tag(tt.input, 50)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Tag(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("Tag(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
