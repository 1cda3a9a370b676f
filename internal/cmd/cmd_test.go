package cmd

import "testing"

func TestRootCommand(t *testing.T) {
	if rootCmd == nil {
		t.Fatal("rootCmd is nil")
	}
	if rootCmd.Use != "parbuild" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "parbuild")
	}

	// Compare by Name(), not Use which may include args.
	expected := []string{"serve", "status"}
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range expected {
		if !names[want] {
			t.Errorf("missing subcommand %q", want)
		}
	}
}
