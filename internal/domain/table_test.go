package domain

import "testing"

func validMapping(col int, lang string) ColumnMapping {
	return ColumnMapping{ColumnIndex: col, ShouldTranslate: true, TargetLanguage: lang}
}

func TestTranslationConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     TranslationConfig
		headers int
		wantErr bool
	}{
		{
			name: "valid",
			cfg: TranslationConfig{
				SourceLanguage: "en",
				BatchSize:      10,
				ColumnMappings: []ColumnMapping{validMapping(0, "ko"), validMapping(2, "ko")},
			},
			headers: 3,
		},
		{
			name:    "batch size zero",
			cfg:     TranslationConfig{SourceLanguage: "en", BatchSize: 0},
			headers: 1,
			wantErr: true,
		},
		{
			name:    "missing source language",
			cfg:     TranslationConfig{SourceLanguage: "  ", BatchSize: 5},
			headers: 1,
			wantErr: true,
		},
		{
			name: "column index out of range",
			cfg: TranslationConfig{
				SourceLanguage: "en",
				BatchSize:      5,
				ColumnMappings: []ColumnMapping{validMapping(3, "ko")},
			},
			headers: 3,
			wantErr: true,
		},
		{
			name: "duplicate column index",
			cfg: TranslationConfig{
				SourceLanguage: "en",
				BatchSize:      5,
				ColumnMappings: []ColumnMapping{validMapping(1, "ko"), validMapping(1, "ko")},
			},
			headers: 3,
			wantErr: true,
		},
		{
			name: "mixed target languages",
			cfg: TranslationConfig{
				SourceLanguage: "en",
				BatchSize:      5,
				ColumnMappings: []ColumnMapping{validMapping(0, "ko"), validMapping(1, "ja")},
			},
			headers: 3,
			wantErr: true,
		},
		{
			name: "inactive mapping may carry a different language",
			cfg: TranslationConfig{
				SourceLanguage: "en",
				BatchSize:      5,
				ColumnMappings: []ColumnMapping{
					validMapping(0, "ko"),
					{ColumnIndex: 1, ShouldTranslate: false, TargetLanguage: "ja"},
				},
			},
			headers: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate(tt.headers)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestActiveMappings(t *testing.T) {
	cfg := TranslationConfig{
		SourceLanguage: "en",
		BatchSize:      5,
		ColumnMappings: []ColumnMapping{
			validMapping(0, "ko"),
			{ColumnIndex: 1, ShouldTranslate: false, TargetLanguage: "ko"},
			{ColumnIndex: 2, ShouldTranslate: true, TargetLanguage: ""},
			validMapping(3, "ko"),
		},
	}

	active := cfg.ActiveMappings()
	if len(active) != 2 {
		t.Fatalf("active mappings = %d, want 2", len(active))
	}
	for _, col := range []int{0, 3} {
		if _, ok := active[col]; !ok {
			t.Errorf("column %d missing from active mappings", col)
		}
	}
}

func TestRowCloneIsIndependent(t *testing.T) {
	original := Row{"a", "b"}
	clone := original.Clone()
	clone[0] = "changed"

	if original[0] != "a" {
		t.Error("clone shares backing array with original")
	}
}
