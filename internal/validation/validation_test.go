package validation

import "testing"

func TestValidateUUID(t *testing.T) {
	tests := []struct {
		id      string
		wantErr bool
	}{
		{"550e8400-e29b-41d4-a716-446655440000", false},
		{"550E8400-E29B-41D4-A716-446655440000", false},
		{"", true},
		{"not-a-uuid", true},
		{"550e8400e29b41d4a716446655440000", true},
	}
	for _, tt := range tests {
		if err := ValidateUUID(tt.id); (err != nil) != tt.wantErr {
			t.Errorf("ValidateUUID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
		}
	}
}

func TestSettingsKey(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{"tk-multi-loader2", false},
		{"export.presets", false},
		{"", true},
		{" padded", true},
		{"a/b", true},
		{"semi;colon", true},
		{string(make([]byte, 129)), true},
	}
	for _, tt := range tests {
		if err := SettingsKey(tt.key); (err != nil) != tt.wantErr {
			t.Errorf("SettingsKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
		}
	}
}

func TestResourceDestination(t *testing.T) {
	tests := []struct {
		dest    string
		wantErr bool
	}{
		{"", false},
		{"Shotgun", false},
		{"Shotgun/textures", false},
		{"My Shelf", false},
		{"/abs", true},
		{"a//b", true},
		{"a/../b", true},
		{"..", true},
		{"a/b/", true},
		{"bad?name", true},
	}
	for _, tt := range tests {
		if err := ResourceDestination(tt.dest); (err != nil) != tt.wantErr {
			t.Errorf("ResourceDestination(%q) error = %v, wantErr %v", tt.dest, err, tt.wantErr)
		}
	}
}
