package mcp

import "testing"

func TestServerConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ServerConfig
		wantErr bool
	}{
		{"missing command", ServerConfig{}, true},
		{"valid", ServerConfig{Command: "npx", Args: []string{"-y", "@playwright/mcp"}}, false},
		{"path traversal in command", ServerConfig{Command: "../../bin/mcp"}, true},
		{"path traversal in workdir", ServerConfig{Command: "npx", WorkDir: "../etc"}, true},
		{"shell metachar in arg", ServerConfig{Command: "npx", Args: []string{"foo; rm -rf /"}}, true},
		{"ampersand chaining", ServerConfig{Command: "npx", Args: []string{"foo && bar"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCallResultText(t *testing.T) {
	r := &CallResult{Content: []ResultContent{
		{Type: "text", Text: "- Page URL: https://netflix.com\n"},
		{Type: "image", Text: "ignored"},
		{Type: "text", Text: "- Page Title: Netflix"},
	}}
	got := r.Text()
	want := "- Page URL: https://netflix.com\n- Page Title: Netflix"
	if got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
}
