package market

import "testing"

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "600519", want: "sh600519"},
		{in: "000001", want: "sz000001"},
		{in: "300750", want: "sz300750"},
		{in: "830799", want: "bj830799"},
		{in: "SH600000", want: "sh600000"},
		{in: " sz000002 ", want: "sz000002"},
		{in: "600519.SH", want: "sh600519"},
		{in: "000001.sz", want: "sz000001"},
		{in: "", wantErr: true},
		{in: "60051", wantErr: true},
		{in: "sh60051a", wantErr: true},
		{in: "700001", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeSymbol(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeSymbol(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err == nil && got.String() != tt.want {
				t.Errorf("NormalizeSymbol(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestSymbolForms(t *testing.T) {
	s := Symbol{Exchange: Shanghai, Code: "600519"}
	if s.Upper() != "SH600519" || s.Dotted() != "600519.SH" {
		t.Errorf("unexpected forms %s %s", s.Upper(), s.Dotted())
	}
}
