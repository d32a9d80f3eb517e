package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// OutputFormat selects how command results are rendered.
type OutputFormat string

const (
	// FormatText is the human-readable default.
	FormatText OutputFormat = "text"
	// FormatJSON renders results as indented JSON.
	FormatJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case FormatText, FormatJSON:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q (use text or json)", s)
	}
}

// WriteServerList renders a kind → URLs snapshot in the chosen format. Kinds
// print sorted so repeated invocations compare cleanly.
func WriteServerList(w io.Writer, format OutputFormat, servers map[string][]string) error {
	if format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(servers)
	}

	kinds := make([]string, 0, len(servers))
	for kind := range servers {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	for _, kind := range kinds {
		urls := servers[kind]
		if _, err := fmt.Fprintf(w, "%s (%d)\n", kind, len(urls)); err != nil {
			return err
		}
		for _, url := range urls {
			if _, err := fmt.Fprintf(w, "  %s\n", url); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteRegistered renders a successful registration.
func WriteRegistered(w io.Writer, format OutputFormat, server RegisteredServer) error {
	if format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(server)
	}
	_, err := fmt.Fprintf(w, "✓ Registered %s as %s\n", server.URL, server.ID)
	return err
}
